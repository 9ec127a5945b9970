package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"ctchen222/bookworm/internal/api/controller"
	"ctchen222/bookworm/internal/api/repository"
	"ctchen222/bookworm/internal/api/service"
	"ctchen222/bookworm/internal/config"
	"ctchen222/bookworm/internal/db"
	"ctchen222/bookworm/internal/keepalive"
	"ctchen222/bookworm/internal/logger"
	"ctchen222/bookworm/internal/media"
	"ctchen222/bookworm/internal/ratelimit"
	"ctchen222/bookworm/internal/server"
	"ctchen222/bookworm/internal/telemetry"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	_ "go.uber.org/automaxprocs"
)

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	flags := config.Flags()
	cmd := &cobra.Command{
		Use:          "bookworm",
		Short:        "Book review sharing API server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(flags)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration:\n%w", err)
			}
			return run(cmd.Context(), cfg)
		},
	}
	cmd.Flags().AddFlagSet(flags)
	return cmd
}

// stores bundles the repositories of the selected backend with its teardown.
type stores struct {
	users repository.UserRepository
	books repository.BookRepository
	close func(context.Context) error
}

func openStores(ctx context.Context, cfg config.StoreConfig) (*stores, error) {
	switch cfg.Driver {
	case config.DriverMongo:
		database, err := db.MongoConnect(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		if err := db.EnsureMongoIndexes(ctx, database); err != nil {
			_ = db.MongoDisconnect(ctx, database)
			return nil, err
		}
		return &stores{
			users: repository.NewMongoUserRepository(database),
			books: repository.NewMongoBookRepository(database),
			close: func(ctx context.Context) error { return db.MongoDisconnect(ctx, database) },
		}, nil
	case config.DriverSQLite, config.DriverPostgres:
		conn, err := db.Connect(ctx, cfg.Driver, cfg.SQLDSN)
		if err != nil {
			return nil, err
		}
		if err := db.InitializeDB(ctx, conn); err != nil {
			_ = conn.Close()
			return nil, err
		}
		return &stores{
			users: repository.NewUserRepository(conn),
			books: repository.NewBookRepository(conn),
			close: func(context.Context) error { return conn.Close() },
		}, nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize telemetry
	shutdown, err := telemetry.InitOtel(ctx, cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			slog.Error("error shutting down telemetry", "error", err)
		}
	}()

	if err := logger.Init(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	gin.SetMode(gin.ReleaseMode)

	// Persistence
	st, err := openStores(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", cfg.Store.Driver, err)
	}
	defer func() {
		if err := st.close(context.Background()); err != nil {
			slog.Error("error closing store", "error", err)
		}
	}()
	slog.Info("store ready", "driver", cfg.Store.Driver)

	// Media
	images, err := media.NewS3Store(ctx, media.S3Options{
		Endpoint:      cfg.Media.Endpoint,
		Region:        cfg.Media.Region,
		Bucket:        cfg.Media.Bucket,
		AccessKey:     cfg.Media.AccessKey,
		SecretKey:     cfg.Media.SecretKey,
		PublicBaseURL: cfg.Media.PublicBaseURL,
		UsePathStyle:  cfg.Media.UsePathStyle,
		MaxBytes:      cfg.Media.MaxBytes,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize media store: %w", err)
	}

	// Login throttling
	opts := server.Options{
		BodyLimit:      cfg.Server.BodyLimit,
		TrustedProxies: cfg.Server.TrustedProxies,
	}
	if cfg.Redis.Addr != "" {
		rdb, err := db.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password)
		if err != nil {
			return fmt.Errorf("failed to initialize redis: %w", err)
		}
		defer rdb.Close()
		opts.AuthLimiter = ratelimit.New(rdb, cfg.RateLimit.LoginLimit, cfg.RateLimit.LoginWindow)
		slog.Info("auth rate limiting enabled", "limit", cfg.RateLimit.LoginLimit, "window", cfg.RateLimit.LoginWindow)
	}

	// Create services
	tokens := service.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	userService := service.NewUserService(st.users, tokens)
	bookService := service.NewBookService(st.books, images)

	// Create controllers
	userController := controller.NewUserController(userService)
	bookController := controller.NewBookController(bookService)

	srv, err := server.NewServer(userController, bookController, userService, opts)
	if err != nil {
		return err
	}

	if cfg.KeepAlive.URL != "" {
		go keepalive.New(cfg.KeepAlive.URL, cfg.KeepAlive.Interval).Run(ctx)
	}

	httpServer := &http.Server{
		Addr:    cfg.Addr(),
		Handler: srv.Handler(),
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("http server started", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	slog.Info("server exiting")
	return nil
}
