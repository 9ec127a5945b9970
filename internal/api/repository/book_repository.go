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
	"go.opentelemetry.io/otel/attribute"
)

const bookColumns = `id, title, description, cover_image, rating, user_id, created_at, updated_at`

type sqlBookRepository struct {
	db *sqlx.DB
}

// NewBookRepository creates a SQL-backed BookRepository.
func NewBookRepository(db *sqlx.DB) BookRepository {
	return &sqlBookRepository{db: db}
}

func (r *sqlBookRepository) CreateBook(ctx context.Context, book *models.Book) error {
	ctx, span := tracer.Start(ctx, "BookRepository.CreateBook")
	defer span.End()

	if book.ID == "" {
		book.ID = uuid.NewString()
	}
	if book.CreatedAt.IsZero() {
		book.CreatedAt = time.Now().UTC()
	}
	book.UpdatedAt = book.CreatedAt

	query := r.db.Rebind(`INSERT INTO books (` + bookColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := r.db.ExecContext(ctx, query,
		book.ID, book.Title, book.Description, book.CoverImage, book.Rating, book.UserID, book.CreatedAt, book.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create book: %w", err)
	}
	return nil
}

func (r *sqlBookRepository) GetBookByID(ctx context.Context, id string) (*models.Book, error) {
	ctx, span := tracer.Start(ctx, "BookRepository.GetBookByID")
	defer span.End()
	span.SetAttributes(attribute.String("book.id", id))

	var book models.Book
	err := r.db.GetContext(ctx, &book, r.db.Rebind(`SELECT `+bookColumns+` FROM books WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get book: %w", err)
	}
	return &book, nil
}

func (r *sqlBookRepository) DeleteBook(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "BookRepository.DeleteBook")
	defer span.End()
	span.SetAttributes(attribute.String("book.id", id))

	if _, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM books WHERE id = ?`), id); err != nil {
		return fmt.Errorf("failed to delete book: %w", err)
	}
	return nil
}

type bookOwnerRow struct {
	models.Book
	OwnerUsername     string `db:"owner_username"`
	OwnerProfileImage string `db:"owner_profile_image"`
}

func (r *sqlBookRepository) ListBooks(ctx context.Context, skip, limit int) ([]models.BookWithOwner, error) {
	ctx, span := tracer.Start(ctx, "BookRepository.ListBooks")
	defer span.End()
	span.SetAttributes(attribute.Int("page.skip", skip), attribute.Int("page.limit", limit))

	query := r.db.Rebind(`
		SELECT b.id, b.title, b.description, b.cover_image, b.rating, b.user_id, b.created_at, b.updated_at,
			u.username AS owner_username, u.profile_image AS owner_profile_image
		FROM books b
		JOIN users u ON u.id = b.user_id
		ORDER BY b.created_at DESC, b.id DESC
		LIMIT ? OFFSET ?`)

	var rows []bookOwnerRow
	if err := r.db.SelectContext(ctx, &rows, query, limit, skip); err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}

	books := make([]models.BookWithOwner, 0, len(rows))
	for _, row := range rows {
		books = append(books, models.BookWithOwner{
			ID:          row.ID,
			Title:       row.Title,
			Description: row.Description,
			CoverImage:  row.CoverImage,
			Rating:      row.Rating,
			User: models.Owner{
				ID:           row.UserID,
				Username:     row.OwnerUsername,
				ProfileImage: row.OwnerProfileImage,
			},
			CreatedAt: row.CreatedAt,
			UpdatedAt: row.UpdatedAt,
		})
	}
	return books, nil
}

func (r *sqlBookRepository) CountBooks(ctx context.Context) (int64, error) {
	ctx, span := tracer.Start(ctx, "BookRepository.CountBooks")
	defer span.End()

	var total int64
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM books`); err != nil {
		return 0, fmt.Errorf("failed to count books: %w", err)
	}
	return total, nil
}

func (r *sqlBookRepository) ListBooksByUser(ctx context.Context, userID string) ([]models.Book, error) {
	ctx, span := tracer.Start(ctx, "BookRepository.ListBooksByUser")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	books := []models.Book{}
	query := r.db.Rebind(`SELECT ` + bookColumns + ` FROM books WHERE user_id = ? ORDER BY created_at DESC, id DESC`)
	if err := r.db.SelectContext(ctx, &books, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list books for user: %w", err)
	}
	return books, nil
}
