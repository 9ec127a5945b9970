package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ctchen222/bookworm/internal/api/models"

	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"golang.org/x/crypto/bcrypt"
)

var tracer = otel.Tracer("repository")

// ErrDuplicate is returned when a write violates a unique index.
var ErrDuplicate = errors.New("duplicate key")

// UserRepository defines the interface for user data operations.
// Lookups return (nil, nil) when no user matches.
type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User, password string) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	// GetUserByID never populates PasswordHash.
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}

// BookRepository defines the interface for book data operations.
// GetBookByID returns (nil, nil) for unknown or malformed ids.
type BookRepository interface {
	CreateBook(ctx context.Context, book *models.Book) error
	GetBookByID(ctx context.Context, id string) (*models.Book, error)
	DeleteBook(ctx context.Context, id string) error
	ListBooks(ctx context.Context, skip, limit int) ([]models.BookWithOwner, error)
	CountBooks(ctx context.Context) (int64, error)
	ListBooksByUser(ctx context.Context, userID string) ([]models.Book, error)
}

func hashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

// isUniqueViolation recognizes unique-constraint errors from PostgreSQL and SQLite.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
