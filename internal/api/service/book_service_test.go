package service_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"ctchen222/bookworm/internal/api/apperror"
	"ctchen222/bookworm/internal/api/models"
	"ctchen222/bookworm/internal/api/service"
	"ctchen222/bookworm/internal/media"
	"ctchen222/bookworm/internal/media/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type bookFixture struct {
	*authFixture
	media *mocks.MockStore
	svc   service.BookService
	clock time.Time
}

func newBookFixture(t *testing.T) *bookFixture {
	f := &bookFixture{
		authFixture: newAuthFixture(t),
		media:       mocks.NewMockStore(gomock.NewController(t)),
		clock:       time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	// Each book is created one second after the previous one.
	next := func() time.Time {
		f.clock = f.clock.Add(time.Second)
		return f.clock
	}
	f.svc = service.NewBookService(f.books, f.media, service.WithClock(next))
	return f
}

func (f *bookFixture) register(t *testing.T, name string) *models.User {
	t.Helper()
	resp, err := f.authFixture.svc.Register(context.Background(), &models.RegisterRequest{
		Username: name,
		Email:    name + "@example.com",
		Password: "password123",
	})
	require.NoError(t, err)
	user, err := f.users.GetUserByID(context.Background(), resp.User.ID)
	require.NoError(t, err)
	return user
}

func (f *bookFixture) create(t *testing.T, owner *models.User, title string) *models.Book {
	t.Helper()
	hosted := "https://cdn.example.com/covers/" + title + ".png"
	f.media.EXPECT().Upload(gomock.Any(), "data:image/png;base64,AAAA").Return(hosted, nil)

	book, err := f.svc.CreateBook(context.Background(), owner, &models.CreateBookRequest{
		Title:       title,
		Description: "A review of " + title,
		CoverImage:  "data:image/png;base64,AAAA",
		Rating:      ptr(models.Rating(4)),
	})
	require.NoError(t, err)
	return book
}

func ptr[T any](v T) *T {
	return &v
}

func TestBookService_CreateBook(t *testing.T) {
	f := newBookFixture(t)
	owner := f.register(t, "reader")

	book := f.create(t, owner, "dune")
	assert.NotEmpty(t, book.ID)
	assert.Equal(t, "https://cdn.example.com/covers/dune.png", book.CoverImage)
	assert.Equal(t, owner.ID, book.UserID)
	assert.Equal(t, 4.0, book.Rating)
	assert.Equal(t, book.CreatedAt, book.UpdatedAt)
}

func TestBookService_CreateBookValidation(t *testing.T) {
	f := newBookFixture(t)
	owner := f.register(t, "reader")
	ctx := context.Background()

	cases := []struct {
		name string
		req  models.CreateBookRequest
		want string
	}{
		{"missing title", models.CreateBookRequest{Description: "d", CoverImage: "data:x", Rating: ptr(models.Rating(3))}, service.MsgAllFieldsRequired},
		{"missing rating", models.CreateBookRequest{Title: "t", Description: "d", CoverImage: "data:x"}, service.MsgAllFieldsRequired},
		{"zero rating", models.CreateBookRequest{Title: "t", Description: "d", CoverImage: "data:x", Rating: ptr(models.Rating(0))}, service.MsgRatingOutOfRange},
		{"rating above five", models.CreateBookRequest{Title: "t", Description: "d", CoverImage: "data:x", Rating: ptr(models.Rating(6))}, service.MsgRatingOutOfRange},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := tc.req
			_, err := f.svc.CreateBook(ctx, owner, &req)
			assertValidation(t, err, tc.want)
		})
	}
}

func TestBookService_CreateBookMediaFailures(t *testing.T) {
	f := newBookFixture(t)
	owner := f.register(t, "reader")
	ctx := context.Background()
	req := &models.CreateBookRequest{Title: "t", Description: "d", CoverImage: "cover.png", Rating: ptr(models.Rating(3))}

	f.media.EXPECT().Upload(gomock.Any(), "cover.png").Return("", media.ErrUnsupportedSource)
	_, err := f.svc.CreateBook(ctx, owner, req)
	assertValidation(t, err, service.MsgUnsupportedCover)

	f.media.EXPECT().Upload(gomock.Any(), "cover.png").Return("", fmt.Errorf("dial: %w", media.ErrBlockedAddress))
	_, err = f.svc.CreateBook(ctx, owner, req)
	assertValidation(t, err, service.MsgCoverBlocked)

	f.media.EXPECT().Upload(gomock.Any(), "cover.png").Return("", errors.New("bucket unavailable"))
	_, err = f.svc.CreateBook(ctx, owner, req)
	assert.True(t, apperror.Is(err, apperror.Internal), "got %v", err)

	mine, err := f.svc.ListUserBooks(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, mine)
}

func TestBookService_ListBooksPagination(t *testing.T) {
	f := newBookFixture(t)
	owner := f.register(t, "reader")
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		f.create(t, owner, fmt.Sprintf("book-%02d", i))
	}

	first, err := f.svc.ListBooks(ctx, models.ListBooksQuery{Page: 1, Limit: 5})
	require.NoError(t, err)
	assert.Len(t, first.Books, 5)
	assert.Equal(t, 1, first.CurrentPage)
	assert.Equal(t, int64(12), first.TotalBooks)
	assert.Equal(t, int64(3), first.TotalPages)
	assert.Equal(t, "book-11", first.Books[0].Title)
	assert.Equal(t, "reader", first.Books[0].User.Username)
	assert.Equal(t, owner.ProfileImage, first.Books[0].User.ProfileImage)

	last, err := f.svc.ListBooks(ctx, models.ListBooksQuery{Page: 3, Limit: 5})
	require.NoError(t, err)
	assert.Len(t, last.Books, 2)
	assert.Equal(t, 3, last.CurrentPage)
	assert.Equal(t, "book-01", last.Books[0].Title)
	assert.Equal(t, "book-00", last.Books[1].Title)

	beyond, err := f.svc.ListBooks(ctx, models.ListBooksQuery{Page: 4, Limit: 5})
	require.NoError(t, err)
	assert.Empty(t, beyond.Books)
}

func TestBookService_ListBooksPageBeyondAddressableRange(t *testing.T) {
	f := newBookFixture(t)
	owner := f.register(t, "reader")
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		f.create(t, owner, fmt.Sprintf("book-%d", i))
	}

	page, err := f.svc.ListBooks(ctx, models.ListBooksQuery{Page: math.MaxInt, Limit: 50})
	require.NoError(t, err)
	assert.NotNil(t, page.Books)
	assert.Empty(t, page.Books)
	assert.Equal(t, math.MaxInt, page.CurrentPage)
	assert.Equal(t, int64(3), page.TotalBooks)
	assert.Equal(t, int64(1), page.TotalPages)
}

func TestBookService_ListBooksRejectsBadPagination(t *testing.T) {
	f := newBookFixture(t)
	ctx := context.Background()

	for _, q := range []models.ListBooksQuery{
		{Page: 0, Limit: 5},
		{Page: 1, Limit: 0},
		{Page: 1, Limit: 51},
		{Page: -2, Limit: 5},
	} {
		_, err := f.svc.ListBooks(ctx, q)
		assertValidation(t, err, service.MsgInvalidPagination)
	}
}

func TestBookService_DeleteBook(t *testing.T) {
	f := newBookFixture(t)
	owner := f.register(t, "owner")
	stranger := f.register(t, "stranger")
	ctx := context.Background()
	book := f.create(t, owner, "dune")

	err := f.svc.DeleteBook(ctx, stranger, book.ID)
	appErr, ok := apperror.From(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, apperror.Auth, appErr.Kind)
	assert.Equal(t, service.MsgUnauthorized, appErr.Message)

	stored, err := f.books.GetBookByID(ctx, book.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)

	f.media.EXPECT().Delete(gomock.Any(), book.CoverImage).Return(media.DeleteResult{Key: "covers/dune.png"})
	require.NoError(t, f.svc.DeleteBook(ctx, owner, book.ID))

	page, err := f.svc.ListBooks(ctx, models.ListBooksQuery{Page: 1, Limit: 5})
	require.NoError(t, err)
	assert.Empty(t, page.Books)
}

func TestBookService_DeleteBookNotFound(t *testing.T) {
	f := newBookFixture(t)
	owner := f.register(t, "owner")

	for _, id := range []string{"missing", "not-an-object-id", ""} {
		err := f.svc.DeleteBook(context.Background(), owner, id)
		assert.True(t, apperror.Is(err, apperror.NotFound), "id %q: %v", id, err)
	}
}

func TestBookService_DeleteBookIgnoresMediaFailure(t *testing.T) {
	f := newBookFixture(t)
	owner := f.register(t, "owner")
	ctx := context.Background()
	book := f.create(t, owner, "dune")

	f.media.EXPECT().Delete(gomock.Any(), book.CoverImage).
		Return(media.DeleteResult{Key: "covers/dune.png", Err: errors.New("bucket unavailable")})
	require.NoError(t, f.svc.DeleteBook(ctx, owner, book.ID))

	gone, err := f.books.GetBookByID(ctx, book.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestBookService_ListUserBooks(t *testing.T) {
	f := newBookFixture(t)
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")
	ctx := context.Background()

	f.create(t, alice, "a1")
	f.create(t, bob, "b1")
	f.create(t, alice, "a2")

	mine, err := f.svc.ListUserBooks(ctx, alice)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "a2", mine[0].Title)
	assert.Equal(t, "a1", mine[1].Title)

	carol := f.register(t, "carol")
	none, err := f.svc.ListUserBooks(ctx, carol)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}
