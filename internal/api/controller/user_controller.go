package controller

import (
	"errors"
	"io"
	"net/http"

	"ctchen222/bookworm/internal/api/models"
	"ctchen222/bookworm/internal/api/response"
	"ctchen222/bookworm/internal/api/service"

	"github.com/gin-gonic/gin"
)

const (
	// MsgInvalidBody is returned when the request body is not valid JSON.
	MsgInvalidBody = "Invalid request body"
	// MsgBodyTooLarge is returned when the request body exceeds the server limit.
	MsgBodyTooLarge = "Request body too large"
)

// UserController handles user-related HTTP requests.
type UserController struct {
	userService service.UserService
}

// NewUserController creates a new UserController.
func NewUserController(userService service.UserService) *UserController {
	return &UserController{
		userService: userService,
	}
}

// Register handles the user registration endpoint.
func (uc *UserController) Register(c *gin.Context) {
	var req models.RegisterRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := uc.userService.Register(c.Request.Context(), &req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.CreatedResponse(c, resp)
}

// Login handles the user login endpoint.
func (uc *UserController) Login(c *gin.Context) {
	var req models.LoginRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := uc.userService.Login(c.Request.Context(), &req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessResponse(c, resp)
}

// bindJSON decodes the body into obj. An empty body leaves obj zero-valued so
// that field validation reports the missing fields.
func bindJSON(c *gin.Context, obj any) bool {
	err := c.ShouldBindJSON(obj)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		response.ErrorResponse(c, http.StatusRequestEntityTooLarge, MsgBodyTooLarge)
		return false
	}
	response.ErrorResponse(c, http.StatusBadRequest, MsgInvalidBody)
	return false
}
