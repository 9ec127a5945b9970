package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ctchen222/bookworm/internal/api/apperror"
	"ctchen222/bookworm/internal/api/models"
	"ctchen222/bookworm/internal/api/repository"
	"ctchen222/bookworm/internal/validator"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/crypto/bcrypt"
)

const (
	MsgAllFieldsRequired  = "All fields are required"
	MsgInvalidEmail       = "Please enter a valid email"
	MsgPasswordTooShort   = "Password must be at least 8 characters"
	MsgPasswordTooLong    = "Password must be at most 72 bytes"
	MsgUsernameTooShort   = "Username must be at least 3 characters"
	MsgEmailInUse         = "Email is already in use"
	MsgUsernameTaken      = "Username is already taken"
	MsgDuplicateAccount   = "Email or username is already in use"
	MsgInvalidCredentials = "Invalid credentials"
	MsgRegistered         = "User registered successfully"
	MsgTokenInvalid       = "Token is not valid"
)

var tracer = otel.Tracer("service")

// UserService defines the interface for user-related business logic.
type UserService interface {
	Register(ctx context.Context, req *models.RegisterRequest) (*models.RegisterResponse, error)
	Login(ctx context.Context, req *models.LoginRequest) (*models.LoginResponse, error)
	// Authenticate resolves a bearer token to the user it was issued for.
	Authenticate(ctx context.Context, token string) (*models.User, error)
}

type userService struct {
	userRepo repository.UserRepository
	tokens   *TokenManager
	now      func() time.Time

	registrations metric.Int64Counter
	logins        metric.Int64Counter
}

// NewUserService creates a new UserService.
func NewUserService(userRepo repository.UserRepository, tokens *TokenManager) UserService {
	meter := otel.Meter("service")
	registrations, _ := meter.Int64Counter("bookworm.auth.registrations",
		metric.WithDescription("Completed user registrations"))
	logins, _ := meter.Int64Counter("bookworm.auth.logins",
		metric.WithDescription("Login attempts by result"))

	return &userService{
		userRepo:      userRepo,
		tokens:        tokens,
		now:           time.Now,
		registrations: registrations,
		logins:        logins,
	}
}

// Register validates the request, stores the user and issues a token.
func (s *userService) Register(ctx context.Context, req *models.RegisterRequest) (*models.RegisterResponse, error) {
	ctx, span := tracer.Start(ctx, "UserService.Register")
	defer span.End()

	if err := registrationError(req); err != nil {
		return nil, err
	}

	existing, err := s.userRepo.GetUserByEmail(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperror.NewValidationError(MsgEmailInUse)
	}
	existing, err = s.userRepo.GetUserByUsername(ctx, req.Username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperror.NewValidationError(MsgUsernameTaken)
	}

	user := &models.User{
		Username:     req.Username,
		Email:        req.Email,
		ProfileImage: models.AvatarURL(req.Username),
		CreatedAt:    s.now().UTC().Truncate(time.Millisecond),
	}
	if err := s.userRepo.CreateUser(ctx, user, req.Password); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperror.NewValidationError(MsgDuplicateAccount)
		}
		return nil, err
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, err
	}

	s.registrations.Add(ctx, 1)
	slog.InfoContext(ctx, "user registered", "user_id", user.ID, "username", user.Username)

	return &models.RegisterResponse{
		Token:   token,
		Message: MsgRegistered,
		User:    user.Public(),
	}, nil
}

// registrationError ranks the failing validation tags so that the first
// applicable message wins: missing fields, email, password, then username.
func registrationError(req *models.RegisterRequest) error {
	err := validator.Struct(req)
	if err == nil {
		return nil
	}
	fields, ok := validator.FieldErrors(err)
	if !ok {
		return fmt.Errorf("failed to validate registration: %w", err)
	}

	switch {
	case validator.HasTag(fields, "required"):
		return apperror.NewValidationError(MsgAllFieldsRequired)
	case fields["email"] != "":
		return apperror.NewValidationError(MsgInvalidEmail)
	case fields["password"] == "bcryptmax":
		return apperror.NewValidationError(MsgPasswordTooLong)
	case fields["password"] != "":
		return apperror.NewValidationError(MsgPasswordTooShort)
	case fields["username"] != "":
		return apperror.NewValidationError(MsgUsernameTooShort)
	}
	return apperror.NewValidationError(MsgAllFieldsRequired)
}

// Login checks the credentials and issues a token. Unknown emails and wrong
// passwords produce the same error.
func (s *userService) Login(ctx context.Context, req *models.LoginRequest) (*models.LoginResponse, error) {
	ctx, span := tracer.Start(ctx, "UserService.Login")
	defer span.End()

	if err := validator.Struct(req); err != nil {
		return nil, apperror.NewValidationError(MsgAllFieldsRequired)
	}

	user, err := s.userRepo.GetUserByEmail(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		s.countLogin(ctx, "unknown_email")
		return nil, apperror.NewValidationError(MsgInvalidCredentials)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		s.countLogin(ctx, "wrong_password")
		return nil, apperror.NewValidationError(MsgInvalidCredentials)
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, err
	}
	s.countLogin(ctx, "success")

	return &models.LoginResponse{
		Token: token,
		User:  user.PublicWithCreatedAt(),
	}, nil
}

func (s *userService) countLogin(ctx context.Context, result string) {
	s.logins.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// Authenticate verifies the token and loads its user without the password hash.
func (s *userService) Authenticate(ctx context.Context, token string) (*models.User, error) {
	ctx, span := tracer.Start(ctx, "UserService.Authenticate")
	defer span.End()

	userID, err := s.tokens.Parse(token)
	if err != nil {
		return nil, apperror.NewAuthError(MsgTokenInvalid, err)
	}

	user, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperror.NewAuthError(MsgTokenInvalid, nil)
	}
	return user, nil
}
