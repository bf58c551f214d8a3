package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	app "github.com/mintline/edition_layer/internal/app"
	"github.com/mintline/edition_layer/internal/app/httpapi"
	"github.com/mintline/edition_layer/internal/middleware"
)

type serveOptions struct {
	auditFile string
}

// NewServeCommand runs the HTTP API until interrupted.
func NewServeCommand(root *RootOptions) *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the inventory HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), root, opts)
		},
	}
	cmd.Flags().StringVar(&opts.auditFile, "audit-file", "", "append audit entries to this JSONL file (postgres deployments use the audit_log table)")
	return cmd
}

func runServe(parent context.Context, root *RootOptions, opts *serveOptions) error {
	cfg, log, err := root.load()
	if err != nil {
		return err
	}
	if cfg.Auth.JWTSecret == "" {
		return errors.New("AUTH_JWT_SECRET is required to serve the API")
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := openRuntime(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer rt.close(log)

	application, err := app.New(rt.stores, appOptions(cfg), log.Named("app"))
	if err != nil {
		return err
	}
	if err := application.Start(ctx); err != nil {
		return err
	}

	var sink httpapi.AuditSink
	switch {
	case opts.auditFile != "":
		if sink, err = httpapi.NewFileAuditSink(opts.auditFile); err != nil {
			return err
		}
	case rt.db != nil:
		sink = httpapi.NewPostgresAuditSink(rt.db)
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, log.Named("ratelimit"))
	limiter.StartCleanup(ctx, 5*time.Minute)

	handler := httpapi.NewHandler(application, httpapi.Options{
		Auth:        middleware.NewAuthMiddleware([]byte(cfg.Auth.JWTSecret), cfg.Auth.Issuer, log.Named("auth"), []string{"/healthz", "/metrics"}),
		RateLimiter: limiter,
		CORS:        middleware.NewCORSMiddleware(cfg.CORS.Origins()),
		AuditSink:   sink,
		Logger:      log.Named("http"),
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           handler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", srv.Addr).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown requested")
	case err := <-errCh:
		if err != nil {
			log.WithError(err).Error("http server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	if err := application.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("application stop")
	}
	log.Info("stopped")
	return nil
}
