package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	gorilla "github.com/gorilla/sessions"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/dstam/groundwork/assets"
	"github.com/dstam/groundwork/internal"
	"github.com/dstam/groundwork/internal/auth"
	authdb "github.com/dstam/groundwork/internal/auth/db"
	"github.com/dstam/groundwork/internal/db"
	"github.com/dstam/groundwork/internal/db/migrate"
	"github.com/dstam/groundwork/internal/email"
	"github.com/dstam/groundwork/internal/email/smtp"
	emailview "github.com/dstam/groundwork/internal/email/view"
	"github.com/dstam/groundwork/internal/krypto"
	"github.com/dstam/groundwork/internal/web"
	"github.com/dstam/groundwork/internal/web/sessions"
	"github.com/dstam/groundwork/internal/web/view"
	"github.com/dstam/groundwork/migrations"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// A local .env file is a convenience for development, it's fine if
	// it doesn't exist.
	_ = godotenv.Load()

	os.Exit(run(ctx, os.Stderr))
}

func run(ctx context.Context, w io.Writer) int {
	logger := slog.New(slog.NewTextHandler(w, nil))

	cfg, err := configFromEnv()
	if err != nil {
		logger.Error("failed to get config from environment", "error", err)
		return 1
	}

	sqlDB, err := db.OpenSQLite(cfg.db.file, true)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		return 1
	}

	defer func() {
		if err := sqlDB.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	if cfg.db.migrate {
		logger.Info("attempting to migrate database", "db", cfg.db.file)

		migrated, err := migrate.RunFS(ctx, sqlDB, migrations.FS, migrate.Metadata{
			AppVersion: internal.BuildRevision,
			Timestamp:  internal.BuildRevisionTime,
		})
		if err != nil {
			logger.Error("failed to migrate database", "error", err)
			return 1
		}

		for _, m := range migrated {
			logger.Info("migration ran", "sequence", m.Sequence, "filename", m.Filename)
		}
	}

	emailSvc, err := emailService(cfg, logger)
	if err != nil {
		logger.Error("failed to setup email service", "error", err)
		return 1
	}

	store := authdb.New(sqlDB)

	authCfg := cfg.auth.service
	authCfg.BaseURL = cfg.baseURL.String()

	authSvc, err := auth.NewService(store, emailSvc, cfg.auth.secretKey, func(err error) {
		logger.Error("async auth workflow failed", "error", err)
	}, authCfg)
	if err != nil {
		logger.Error("failed to setup auth service", "error", err)
		return 1
	}

	viewRenderer, err := viewRenderer(cfg, logger)
	if err != nil {
		logger.Error("failed to setup view renderer", "error", err)
		return 1
	}

	cookieStore := gorilla.NewCookieStore(keysAsBytes(cfg.http.cookieKeys)...)
	cookieStore.Options = &gorilla.Options{
		Path:     "/",
		MaxAge:   86400 * 30,
		HttpOnly: true,
		Secure:   cfg.http.server.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	}

	webServer := web.NewServer(&web.ServerDeps{
		Logger:       logger,
		ViewRenderer: viewRenderer,
		AuthService:  authSvc,
		Resolver:     auth.NewResolver(store, logger),
		SessionStore: sessions.NewStore(cookieStore),
		DistFS:       http.FS(assets.DistFS),
	}, cfg.http.server)

	srv := &http.Server{
		Addr:         cfg.http.addr,
		ReadTimeout:  cfg.http.readTimeout,
		WriteTimeout: cfg.http.writeTimeout,
		IdleTimeout:  cfg.http.idleTimeout,
		Handler:      webServer,
	}

	// We need to run two tasks concurrently:
	// - Listen and serving of the HTTP server.
	// - Waiting for a signal to stop the server.

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server",
			"addr", cfg.http.addr,
			"buildRevision", internal.BuildRevision,
			"buildRevisionTime", internal.BuildRevisionTime,
			"buildModified", internal.BuildModified,
		)
		// ListenAndServe always returns a non-nil error,
		// g will cancel gCtx when an error is returned, so
		// this will also stop the other goroutine.
		return srv.ListenAndServe()
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("stopping http server")

		shutCtx, cancel := context.WithTimeout(context.Background(), cfg.http.shutdownTimeout)
		defer cancel()

		return srv.Shutdown(shutCtx)
	})

	err = g.Wait()

	// Let any in-flight password reset workers finish before exiting.
	authSvc.Wait()

	if err != nil && err != http.ErrServerClosed {
		logger.Error("http server stopped with error", "error", err)
		return 1
	}

	logger.Info("http server stopped successfully")

	return 0
}

// emailService creates the email service with the sender selected by
// the EMAIL_SENDER env variable.
func emailService(cfg config, logger *slog.Logger) (*email.Service, error) {
	var sender email.Sender
	switch cfg.email.sender {
	case "log":
		sender = email.NewLogSender(logger)
	case "smtp":
		if cfg.email.smtp.Host == "" {
			return nil, fmt.Errorf("smtp sender needs SMTP_HOST to be set")
		}
		sender = smtp.New(cfg.email.smtp)
	case "memory":
		sender = email.NewMemorySender()
	default:
		return nil, fmt.Errorf("unknown email sender %q", cfg.email.sender)
	}

	return email.NewService(emailview.NewFSRenderer(assets.EmailFS), sender, cfg.email.from), nil
}

// viewRenderer creates the HTML view renderer. By default the embedded
// templates are parsed once at startup. When HTTP_VIEW_DIR is set the
// templates are loaded from disk on every request, which is useful
// during development.
func viewRenderer(cfg config, logger *slog.Logger) (web.ViewRenderer, error) {
	if cfg.http.viewDir != "" {
		logger.Info("loading templates from disk", "dir", cfg.http.viewDir)
		return view.NewFSRenderer(os.DirFS(cfg.http.viewDir)), nil
	}

	return view.NewMemRenderer(assets.TemplateFS)
}

func keysAsBytes(keys []krypto.Key) [][]byte {
	out := make([][]byte, 0, len(keys))
	for _, k := range keys {
		out = append(out, k.SecretValue())
	}

	return out
}
