package models

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"time"
)

const (
	DefaultPage  = 1
	DefaultLimit = 5
	MaxLimit     = 50
)

// Book is a review entry owned by a single user.
type Book struct {
	ID          string    `json:"_id" db:"id"`
	Title       string    `json:"title" db:"title"`
	Description string    `json:"description" db:"description"`
	CoverImage  string    `json:"coverImage" db:"cover_image"`
	Rating      float64   `json:"rating" db:"rating"`
	UserID      string    `json:"user" db:"user_id"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" db:"updated_at"`
}

// Owner is the subset of a user inlined into listed books.
type Owner struct {
	ID           string `json:"_id"`
	Username     string `json:"username"`
	ProfileImage string `json:"profileImage"`
}

// BookWithOwner is a book whose owner reference has been resolved.
type BookWithOwner struct {
	ID          string    `json:"_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	CoverImage  string    `json:"coverImage"`
	Rating      float64   `json:"rating"`
	User        Owner     `json:"user"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Rating is a book score. It decodes from a JSON number or a numeric string.
type Rating float64

func (r *Rating) UnmarshalJSON(data []byte) error {
	raw := string(bytes.TrimSpace(data))
	if unquoted, err := strconv.Unquote(raw); err == nil {
		raw = unquoted
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("rating must be a number, got %s", data)
	}
	*r = Rating(v)
	return nil
}

// CreateBookRequest is the body of a book creation request.
// Rating is a pointer so that an explicit 0 is distinguishable from a missing field.
type CreateBookRequest struct {
	Title       string  `json:"title" validate:"required"`
	Description string  `json:"description" validate:"required"`
	CoverImage  string  `json:"coverImage" validate:"required"`
	Rating      *Rating `json:"rating" validate:"required,min=1,max=5"`
}

// ListBooksQuery holds the pagination parameters of the public listing.
type ListBooksQuery struct {
	Page  int `form:"page,default=1" validate:"min=1"`
	Limit int `form:"limit,default=5" validate:"min=1,max=50"`
}

// Skip is the number of records bypassed before the requested page. It
// reports false when the offset does not fit in an int, which no collection
// can reach.
func (q ListBooksQuery) Skip() (int, bool) {
	if q.Page < 1 || q.Limit < 1 {
		return 0, true
	}
	if q.Page-1 > math.MaxInt/q.Limit {
		return 0, false
	}
	return (q.Page - 1) * q.Limit, true
}

// BookPage is one page of the public listing.
type BookPage struct {
	Books       []BookWithOwner `json:"books"`
	CurrentPage int             `json:"currentPage"`
	TotalBooks  int64           `json:"totalBooks"`
	TotalPages  int64           `json:"totalPages"`
}

// CreateBookResponse is returned after a book has been stored.
type CreateBookResponse struct {
	Message string `json:"message"`
	Book    *Book  `json:"book"`
}

// TotalPages returns ceil(total/limit).
func TotalPages(total int64, limit int) int64 {
	if limit <= 0 {
		return 0
	}
	l := int64(limit)
	return (total + l - 1) / l
}
