package controller

import (
	"net/http"

	"ctchen222/bookworm/internal/api/middleware"
	"ctchen222/bookworm/internal/api/models"
	"ctchen222/bookworm/internal/api/response"
	"ctchen222/bookworm/internal/api/service"

	"github.com/gin-gonic/gin"
)

// BookController handles book-related HTTP requests.
type BookController struct {
	bookService service.BookService
}

// NewBookController creates a new BookController.
func NewBookController(bookService service.BookService) *BookController {
	return &BookController{
		bookService: bookService,
	}
}

// Create stores a new book for the authenticated user.
func (bc *BookController) Create(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		response.ErrorResponse(c, http.StatusUnauthorized, middleware.MsgNoToken)
		return
	}

	var req models.CreateBookRequest
	if !bindJSON(c, &req) {
		return
	}

	book, err := bc.bookService.CreateBook(c.Request.Context(), user, &req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.CreatedResponse(c, models.CreateBookResponse{
		Message: service.MsgBookCreated,
		Book:    book,
	})
}

// List returns one page of all books, newest first.
func (bc *BookController) List(c *gin.Context) {
	query := models.ListBooksQuery{Page: models.DefaultPage, Limit: models.DefaultLimit}
	if err := c.ShouldBindQuery(&query); err != nil {
		response.ErrorResponse(c, http.StatusBadRequest, service.MsgInvalidPagination)
		return
	}

	page, err := bc.bookService.ListBooks(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessResponse(c, page)
}

// ListMine returns every book of the authenticated user.
func (bc *BookController) ListMine(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		response.ErrorResponse(c, http.StatusUnauthorized, middleware.MsgNoToken)
		return
	}

	books, err := bc.bookService.ListUserBooks(c.Request.Context(), user)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessResponse(c, books)
}

// Delete removes a book owned by the authenticated user.
func (bc *BookController) Delete(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		response.ErrorResponse(c, http.StatusUnauthorized, middleware.MsgNoToken)
		return
	}

	if err := bc.bookService.DeleteBook(c.Request.Context(), user, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}

	response.MessageResponse(c, service.MsgBookDeleted)
}
