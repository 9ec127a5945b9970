package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ctchen222/bookworm/internal/api/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type sqlUserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a SQL-backed UserRepository.
func NewUserRepository(db *sqlx.DB) UserRepository {
	return &sqlUserRepository{db: db}
}

// CreateUser hashes the password and inserts a new user into the database.
func (r *sqlUserRepository) CreateUser(ctx context.Context, user *models.User, password string) error {
	ctx, span := tracer.Start(ctx, "UserRepository.CreateUser")
	defer span.End()

	hashedPassword, err := hashPassword(password)
	if err != nil {
		return err
	}
	user.PasswordHash = hashedPassword
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	query := r.db.Rebind(`INSERT INTO users (id, username, email, password_hash, profile_image, created_at) VALUES (?, ?, ?, ?, ?, ?)`)
	_, err = r.db.ExecContext(ctx, query, user.ID, user.Username, user.Email, user.PasswordHash, user.ProfileImage, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("failed to create user: %w", ErrDuplicate)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUserByEmail retrieves a user, including the password hash, by email.
func (r *sqlUserRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	ctx, span := tracer.Start(ctx, "UserRepository.GetUserByEmail")
	defer span.End()

	return r.getUser(ctx, `SELECT id, username, email, password_hash, profile_image, created_at FROM users WHERE email = ?`, email)
}

// GetUserByUsername retrieves a user from the database by their username.
func (r *sqlUserRepository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	ctx, span := tracer.Start(ctx, "UserRepository.GetUserByUsername")
	defer span.End()

	return r.getUser(ctx, `SELECT id, username, email, password_hash, profile_image, created_at FROM users WHERE username = ?`, username)
}

// GetUserByID retrieves a user without the password hash.
func (r *sqlUserRepository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	ctx, span := tracer.Start(ctx, "UserRepository.GetUserByID")
	defer span.End()

	return r.getUser(ctx, `SELECT id, username, email, profile_image, created_at FROM users WHERE id = ?`, id)
}

func (r *sqlUserRepository) getUser(ctx context.Context, query string, arg any) (*models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, r.db.Rebind(query), arg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // No user found is not an application error
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}
