package response

import (
	"log/slog"
	"net/http"

	"ctchen222/bookworm/internal/api/apperror"

	"github.com/gin-gonic/gin"
)

// ServerErrorMessage is the body message for every 5xx response.
const ServerErrorMessage = "Server error"

// Error writes err as a {message} body. Client faults keep their message;
// everything else is logged and reported as a generic server error.
func Error(c *gin.Context, err error) {
	appErr, ok := apperror.From(err)
	if !ok || appErr.Kind == apperror.Internal {
		slog.ErrorContext(c.Request.Context(), "request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"error", err,
		)
		ErrorResponse(c, http.StatusInternalServerError, ServerErrorMessage)
		return
	}
	ErrorResponse(c, appErr.StatusCode(), appErr.Message)
}
