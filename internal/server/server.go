package server

import (
	"fmt"
	"net/http"

	"ctchen222/bookworm/internal/api/controller"
	"ctchen222/bookworm/internal/api/middleware"
	"ctchen222/bookworm/internal/ratelimit"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const serviceName = "bookworm"

// Options tunes the HTTP layer.
type Options struct {
	// BodyLimit caps request bodies in bytes. Zero disables the cap.
	BodyLimit int64
	// AuthLimiter throttles the auth routes when set.
	AuthLimiter *ratelimit.Limiter
	// TrustedProxies lists the proxy IPs or CIDRs whose X-Forwarded-For is
	// honored when resolving the client IP. Empty trusts no proxy.
	TrustedProxies []string
}

// Server owns the gin engine and its routes.
type Server struct {
	engine *gin.Engine
}

// NewServer wires the controllers into a gin engine.
func NewServer(
	userController *controller.UserController,
	bookController *controller.BookController,
	authenticator middleware.Authenticator,
	opts Options,
) (*Server, error) {
	engine := gin.New()
	if err := engine.SetTrustedProxies(opts.TrustedProxies); err != nil {
		return nil, fmt.Errorf("invalid trusted proxies: %w", err)
	}
	engine.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.Logger(),
		middleware.CORS(),
		bodyLimit(opts.BodyLimit),
	)

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := engine.Group("/api")

	auth := api.Group("/auth")
	if opts.AuthLimiter != nil {
		auth.Use(opts.AuthLimiter.Middleware("auth"))
	}
	auth.POST("/register", userController.Register)
	auth.POST("/login", userController.Login)

	requireAuth := middleware.Auth(authenticator)
	books := api.Group("/books")
	books.GET("", bookController.List)
	books.POST("", requireAuth, bookController.Create)
	books.GET("/user", requireAuth, bookController.ListMine)
	books.DELETE("/:id", requireAuth, bookController.Delete)

	return &Server{engine: engine}, nil
}

// Engine returns the underlying gin engine.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Handler returns the engine wrapped with OpenTelemetry HTTP instrumentation.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.engine, serviceName)
}

func bodyLimit(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}
