package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	auth "github.com/goliatone/go-tenant-auth"
	"github.com/goliatone/go-tenant-auth/activitymap"
	"github.com/goliatone/go-tenant-auth/repository"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var pruneInterval time.Duration

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger := auth.NewZapLogger(zlogger)

		db, err := repository.Open(ctx, opts.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()

		repos := repository.NewRepositoryManager(db, activitymap.WithActorFallback("authd"))
		repos.MustValidate()

		if err := migrateSchema(ctx, repos); err != nil {
			return err
		}

		authz, err := auth.NewAuthorizer()
		if err != nil {
			return fmt.Errorf("failed to build authorizer: %w", err)
		}

		metrics := auth.NewMetrics(prometheus.DefaultRegisterer)

		auther := auth.NewAuthenticator(repos.Stores(), opts).
			WithLogger(logger).
			WithActivitySink(repos.AuditLogs()).
			WithMetrics(metrics).
			WithPasswordResetHook(func(ctx context.Context, user auth.PublicUser) error {
				logger.Info("password reset requested", "user_id", user.ID, "tenant_id", user.TenantID)
				return nil
			})

		httpAuth, err := auth.NewHTTPAuthenticator(auther, opts)
		if err != nil {
			return err
		}
		httpAuth.WithLogger(logger)

		controller := auth.NewAuthController(auther, httpAuth,
			auth.WithControllerLogger(logger),
			auth.WithControllerDebug(debug),
			auth.WithControllerAuthorizer(authz),
			auth.WithControllerAuditTrail(repos.AuditLogs()),
		)

		app := fiber.New(fiber.Config{
			AppName:               "authd",
			DisableStartupMessage: true,
			ReadTimeout:           10 * time.Second,
			WriteTimeout:          10 * time.Second,
		})

		app.Get("/healthz", func(c *fiber.Ctx) error {
			if err := db.PingContext(c.UserContext()); err != nil {
				return c.Status(fiber.StatusServiceUnavailable).SendString("database unavailable")
			}
			return c.SendString("ok")
		})
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

		auth.RegisterAuthRoutes(app, controller)

		go pruneLoop(ctx, auther, logger)

		errCh := make(chan error, 1)
		go func() {
			logger.Info("listening", "addr", opts.HTTPAddr, "environment", opts.Environment)
			errCh <- app.Listen(opts.HTTPAddr)
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		logger.Info("shutting down")
		return app.ShutdownWithTimeout(10 * time.Second)
	},
}

func init() {
	serveCmd.Flags().DurationVar(&pruneInterval, "prune-interval", time.Hour, "How often expired sessions and refresh tokens are deleted (0 disables)")
}

func pruneLoop(ctx context.Context, auther *auth.Auther, logger auth.Logger) {
	if pruneInterval <= 0 {
		return
	}

	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := auther.PruneExpired(ctx)
			if err != nil {
				logger.Warn("prune expired failed", "error", err)
				continue
			}
			logger.Debug("pruned expired rows", "sessions", res.Sessions, "refresh_tokens", res.RefreshTokens)
		}
	}
}
