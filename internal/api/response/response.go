package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Message is the body of plain acknowledgement and error responses.
type Message struct {
	Message string `json:"message"`
}

// SuccessResponse returns a 200 JSON response with the given payload.
func SuccessResponse(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// CreatedResponse returns a 201 JSON response with the given payload.
func CreatedResponse(c *gin.Context, payload any) {
	c.JSON(http.StatusCreated, payload)
}

// MessageResponse returns a 200 JSON response with only a message.
func MessageResponse(c *gin.Context, message string) {
	c.JSON(http.StatusOK, Message{Message: message})
}

// ErrorResponse writes a {message} body and aborts the handler chain.
func ErrorResponse(c *gin.Context, code int, message string) {
	c.AbortWithStatusJSON(code, Message{Message: message})
}
