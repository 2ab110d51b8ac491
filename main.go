package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/debemdeboas/archive-editor/internal/analytics"
	"github.com/debemdeboas/archive-editor/internal/auth"
	"github.com/debemdeboas/archive-editor/internal/completion"
	"github.com/debemdeboas/archive-editor/internal/config"
	"github.com/debemdeboas/archive-editor/internal/db"
	"github.com/debemdeboas/archive-editor/internal/logger"
	"github.com/debemdeboas/archive-editor/internal/model"
	"github.com/debemdeboas/archive-editor/internal/render"
	"github.com/debemdeboas/archive-editor/internal/repository"
	"github.com/debemdeboas/archive-editor/internal/repository/editor"
	"github.com/debemdeboas/archive-editor/internal/routes"
	"github.com/debemdeboas/archive-editor/internal/session"
	"github.com/debemdeboas/archive-editor/internal/sse"
	"github.com/debemdeboas/archive-editor/internal/util/compression"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:          "archive-editor",
		Short:        "Collaborative markdown post editor with AI completions",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the configuration file")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Start the editor HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
	root.AddCommand(serve)
	root.RunE = serve.RunE

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func setupLogging(level string) zerolog.Logger {
	l := logger.New(level)
	config.SetLogger(logger.Component(l, "config"))
	db.SetLogger(logger.Component(l, "db"))
	repository.SetLogger(logger.Component(l, "repository"))
	editor.SetLogger(logger.Component(l, "editor"))
	session.SetLogger(logger.Component(l, "session"))
	completion.SetLogger(logger.Component(l, "completion"))
	sse.SetLogger(logger.Component(l, "sse"))
	auth.SetLogger(logger.Component(l, "auth"))
	render.SetLogger(logger.Component(l, "render"))
	return l
}

func runServe(ctx context.Context) error {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "No .env file loaded")
	}

	// The config package logs while loading, so it gets a bootstrap logger.
	config.SetLogger(logger.New("info"))
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	l := setupLogging(cfg.Logging.Level)

	// The users table lives in SQLite whatever the post backend is.
	dbPath := cfg.Storage.Path
	if cfg.Storage.Backend != "sqlite" {
		dbPath = db.DefaultPath
	}
	database := db.NewSQLiteAt(dbPath)
	if err := database.InitDB(); err != nil {
		l.Fatal().Err(err).Msg(config.ErrInitializeDatabase)
	}
	defer database.Close()

	posts, err := newPostRepository(ctx, cfg.Storage, database)
	if err != nil {
		l.Fatal().Err(err).Str("backend", cfg.Storage.Backend).Msg("Error creating post repository")
	}

	completer, err := completion.New(cfg.Completion, os.Getenv(cfg.Completion.APIKeyEnv))
	if err != nil {
		l.Fatal().Err(err).Msg("Error creating completion client")
	}

	renderer, err := render.New(cfg.Render.Renderer, cfg.Render.SyntaxTheme)
	if err != nil {
		l.Fatal().Err(err).Msg("Error creating renderer")
	}

	authProvider, ed25519Provider := newAuthProvider(cfg.Auth, database, l)

	clients := sse.NewSSEClients()
	tracker := analytics.NewCounter(analytics.NewLogTracker(logger.Component(l, "analytics")))
	editorRepo := editor.NewMemoryRepository(repository.NewDraftStore(posts), completer, clients, editor.SessionOptions{
		Debounce:         cfg.Editor.Debounce,
		Marker:           cfg.Editor.CompletionMarker,
		SaveRetries:      cfg.Editor.SaveRetries,
		SaveRetryBackoff: cfg.Editor.SaveRetryBackoff,
		UndoLimit:        cfg.Editor.UndoLimit,
		Tracker:          tracker,
	})
	editorHandler := editor.NewHandler(editorRepo, authProvider, renderer)

	posts.SetReloadNotifier(editorRepo.NotifyReload)
	if err := posts.Init(ctx); err != nil {
		l.Fatal().Err(err).Msg(config.ErrInitializingPosts)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(routes.RobotsPath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(config.HCType, config.CTypePlain)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("User-agent: *\nDisallow: /"))
	})
	mux.HandleFunc(routes.HealthPath, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc(routes.SSEPath, sse.EventsHandler(clients, editorHandler.AuthorizeEvents))
	mux.HandleFunc(routes.WebhookUser, authProvider.HandleWebhookUser)
	if ed25519Provider != nil {
		auth.RegisterEd25519AuthRoutes(mux, ed25519Provider)
	}
	editorHandler.Register(mux)

	handler := cacheIt(secureHeaders(authProvider.WithHeaderAuthorization()(mux)))

	addr := net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return l.WithContext(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		l.Info().Str("site", cfg.Site.Name).Str("addr", addr).Str("storage", cfg.Storage.Backend).Str("completion", cfg.Completion.Provider).Msg("Server listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			l.Error().Err(err).Msg("Server stopped")
			return err
		}
	case <-ctx.Done():
		l.Info().Msg("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		l.Warn().Err(err).Msg("Error shutting down server")
	}

	// Pending drafts are flushed before the database goes away.
	editorRepo.CloseAll()
	l.Info().Int("rate_limited", tracker.Count(analytics.EventRateLimitReached)).Msg("Server stopped")
	return nil
}

func newPostRepository(ctx context.Context, cfg config.StorageConfig, database db.DB) (repository.PostRepository, error) {
	switch cfg.Backend {
	case "sqlite":
		compressor, err := compression.New(cfg.Compression)
		if err != nil {
			return nil, err
		}
		return repository.NewDBPostRepository(database, compressor, cfg.ReloadPeriod), nil
	case "fs":
		return repository.NewFSPostRepository(cfg.Path, cfg.ReloadPeriod), nil
	case "s3":
		compressor, err := compression.New(cfg.Compression)
		if err != nil {
			return nil, err
		}
		client, err := repository.NewS3Client(ctx, repository.S3Options{
			Bucket:          cfg.S3.Bucket,
			Prefix:          cfg.S3.Prefix,
			Endpoint:        cfg.S3.Endpoint,
			Region:          cfg.S3.Region,
			AccessKeyID:     os.Getenv(cfg.S3.AccessKeyEnv),
			SecretAccessKey: os.Getenv(cfg.S3.SecretKeyEnv),
		})
		if err != nil {
			return nil, err
		}
		return repository.NewS3PostRepository(client, cfg.S3.Bucket, cfg.S3.Prefix, compressor, cfg.ReloadPeriod), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// newAuthProvider also returns the ed25519 provider when one is in use, so
// its challenge routes can be registered.
func newAuthProvider(cfg config.AuthConfig, database db.DB, l zerolog.Logger) (auth.AuthProvider, *auth.Ed25519AuthProvider) {
	if !cfg.Enabled {
		l.Warn().Str("user", cfg.AdminUser).Msg("Authentication disabled, every request acts as the admin user")
		return auth.StaticAuthProvider{UserID: model.UserID(cfg.AdminUser)}, nil
	}

	switch cfg.Type {
	case "clerk":
		return auth.NewClerkAuthProvider(os.Getenv(cfg.ClerkKeyEnv), database), nil
	default:
		p, err := auth.NewEd25519AuthProvider(os.Getenv(cfg.PublicKeyEnv), "Authorization", model.UserID(cfg.AdminUser))
		if err != nil {
			l.Fatal().Err(err).Msg("Error creating ed25519 auth provider")
		}
		return p, p
	}
}

func cacheIt(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(config.HCacheControl, "no-cache")
		w.Header().Set("Vary", "Cookie")
		h.ServeHTTP(w, r)
	})
}

func secureHeaders(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == routes.RobotsPath {
			h.ServeHTTP(w, r)
			return
		}
		w.Header().Set("X-Frame-Options", "deny")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		h.ServeHTTP(w, r)
	})
}
