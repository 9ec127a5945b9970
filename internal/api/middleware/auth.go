package middleware

import (
	"context"
	"net/http"
	"strings"

	"ctchen222/bookworm/internal/api/apperror"
	"ctchen222/bookworm/internal/api/models"
	"ctchen222/bookworm/internal/api/response"

	"github.com/gin-gonic/gin"
)

const (
	// MsgNoToken is returned when the Authorization header is missing or malformed.
	MsgNoToken = "No authentication token, access denied"

	userContextKey = "user"
	bearerScheme   = "Bearer "
)

// Authenticator resolves a bearer token to its user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.User, error)
}

// Auth rejects requests without a valid bearer token and stores the
// authenticated user in the gin context.
func Auth(authenticator Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			response.ErrorResponse(c, http.StatusUnauthorized, MsgNoToken)
			return
		}

		user, err := authenticator.Authenticate(c.Request.Context(), token)
		if err != nil {
			if appErr, ok := apperror.From(err); ok && appErr.Kind == apperror.Auth {
				response.ErrorResponse(c, http.StatusUnauthorized, appErr.Message)
				return
			}
			response.Error(c, err)
			return
		}

		c.Set(userContextKey, user)
		c.Next()
	}
}

// CurrentUser returns the user stored by Auth.
func CurrentUser(c *gin.Context) (*models.User, bool) {
	v, ok := c.Get(userContextKey)
	if !ok {
		return nil, false
	}
	user, ok := v.(*models.User)
	return user, ok && user != nil
}

func bearerToken(header string) (string, bool) {
	if len(header) < len(bearerScheme) || !strings.EqualFold(header[:len(bearerScheme)], bearerScheme) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearerScheme):])
	return token, token != ""
}
