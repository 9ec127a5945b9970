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
	"ctchen222/bookworm/internal/media"
	"ctchen222/bookworm/internal/validator"

	"go.opentelemetry.io/otel/attribute"
)

const (
	MsgRatingOutOfRange  = "Rating must be between 1 and 5"
	MsgUnsupportedCover  = "Cover image must be a data URL or an http(s) URL"
	MsgCoverNotImage     = "Cover image must be an image"
	MsgCoverTooLarge     = "Cover image is too large"
	MsgCoverBlocked      = "Cover image URL points to a disallowed address"
	MsgBookCreated       = "Book created successfully"
	MsgBookDeleted       = "Book deleted successfully"
	MsgBookNotFound      = "Book not found"
	MsgUnauthorized      = "Unauthorized"
	MsgInvalidPagination = "Page and limit must be positive integers and limit at most 50"
)

// BookService defines the interface for book-related business logic.
type BookService interface {
	CreateBook(ctx context.Context, owner *models.User, req *models.CreateBookRequest) (*models.Book, error)
	ListBooks(ctx context.Context, query models.ListBooksQuery) (*models.BookPage, error)
	DeleteBook(ctx context.Context, caller *models.User, id string) error
	ListUserBooks(ctx context.Context, caller *models.User) ([]models.Book, error)
}

type bookService struct {
	bookRepo repository.BookRepository
	media    media.Store
	now      func() time.Time
}

// BookServiceOption customizes a BookService.
type BookServiceOption func(*bookService)

// WithClock overrides the time source used for book timestamps.
func WithClock(now func() time.Time) BookServiceOption {
	return func(s *bookService) {
		s.now = now
	}
}

// NewBookService creates a new BookService.
func NewBookService(bookRepo repository.BookRepository, store media.Store, opts ...BookServiceOption) BookService {
	s := &bookService{
		bookRepo: bookRepo,
		media:    store,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateBook validates the request, hosts the cover image and stores the book.
func (s *bookService) CreateBook(ctx context.Context, owner *models.User, req *models.CreateBookRequest) (*models.Book, error) {
	ctx, span := tracer.Start(ctx, "BookService.CreateBook")
	defer span.End()

	if err := bookRequestError(req); err != nil {
		return nil, err
	}

	coverURL, err := s.media.Upload(ctx, req.CoverImage)
	if err != nil {
		switch {
		case errors.Is(err, media.ErrUnsupportedSource):
			return nil, apperror.NewValidationError(MsgUnsupportedCover)
		case errors.Is(err, media.ErrNotImage):
			return nil, apperror.NewValidationError(MsgCoverNotImage)
		case errors.Is(err, media.ErrTooLarge):
			return nil, apperror.NewValidationError(MsgCoverTooLarge)
		case errors.Is(err, media.ErrBlockedAddress):
			return nil, apperror.NewValidationError(MsgCoverBlocked)
		}
		return nil, apperror.NewInternalError("failed to upload cover image", err)
	}

	book := &models.Book{
		Title:       req.Title,
		Description: req.Description,
		CoverImage:  coverURL,
		Rating:      float64(*req.Rating),
		UserID:      owner.ID,
		CreatedAt:   s.now().UTC().Truncate(time.Millisecond),
	}
	if err := s.bookRepo.CreateBook(ctx, book); err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("book.id", book.ID))
	slog.InfoContext(ctx, "book created", "book_id", book.ID, "user_id", owner.ID)
	return book, nil
}

func bookRequestError(req *models.CreateBookRequest) error {
	err := validator.Struct(req)
	if err == nil {
		return nil
	}
	fields, ok := validator.FieldErrors(err)
	if !ok {
		return fmt.Errorf("failed to validate book: %w", err)
	}
	if validator.HasTag(fields, "required") {
		return apperror.NewValidationError(MsgAllFieldsRequired)
	}
	if fields["rating"] != "" {
		return apperror.NewValidationError(MsgRatingOutOfRange)
	}
	return apperror.NewValidationError(MsgAllFieldsRequired)
}

// ListBooks returns one page of the public listing, newest first.
func (s *bookService) ListBooks(ctx context.Context, query models.ListBooksQuery) (*models.BookPage, error) {
	ctx, span := tracer.Start(ctx, "BookService.ListBooks")
	defer span.End()

	if err := validator.Struct(query); err != nil {
		return nil, apperror.NewValidationError(MsgInvalidPagination)
	}

	books := []models.BookWithOwner{}
	if skip, ok := query.Skip(); ok {
		var err error
		books, err = s.bookRepo.ListBooks(ctx, skip, query.Limit)
		if err != nil {
			return nil, err
		}
	}
	total, err := s.bookRepo.CountBooks(ctx)
	if err != nil {
		return nil, err
	}

	return &models.BookPage{
		Books:       books,
		CurrentPage: query.Page,
		TotalBooks:  total,
		TotalPages:  models.TotalPages(total, query.Limit),
	}, nil
}

// DeleteBook removes a book owned by caller. The cover image is released on a
// best-effort basis; failures are logged and never reach the caller.
func (s *bookService) DeleteBook(ctx context.Context, caller *models.User, id string) error {
	ctx, span := tracer.Start(ctx, "BookService.DeleteBook")
	defer span.End()
	span.SetAttributes(attribute.String("book.id", id))

	book, err := s.bookRepo.GetBookByID(ctx, id)
	if err != nil {
		return err
	}
	if book == nil {
		return apperror.NewNotFoundError(MsgBookNotFound)
	}
	if book.UserID != caller.ID {
		return apperror.NewAuthError(MsgUnauthorized, nil)
	}

	res := s.media.Delete(ctx, book.CoverImage)
	switch {
	case res.Err != nil:
		slog.WarnContext(ctx, "failed to delete cover image", "book_id", id, "key", res.Key, "error", res.Err)
	case res.Skipped:
		slog.DebugContext(ctx, "cover image not hosted by media store", "book_id", id)
	default:
		slog.DebugContext(ctx, "cover image deleted", "book_id", id, "key", res.Key)
	}

	if err := s.bookRepo.DeleteBook(ctx, id); err != nil {
		return err
	}
	slog.InfoContext(ctx, "book deleted", "book_id", id, "user_id", caller.ID)
	return nil
}

// ListUserBooks returns every book of caller, newest first.
func (s *bookService) ListUserBooks(ctx context.Context, caller *models.User) ([]models.Book, error) {
	ctx, span := tracer.Start(ctx, "BookService.ListUserBooks")
	defer span.End()

	return s.bookRepo.ListBooksByUser(ctx, caller.ID)
}
