package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/chronicle/internal/config"
	"github.com/ehr/chronicle/internal/domain/evolution"
	"github.com/ehr/chronicle/internal/domain/fusion"
	"github.com/ehr/chronicle/internal/domain/identity"
	"github.com/ehr/chronicle/internal/domain/profile"
	"github.com/ehr/chronicle/internal/domain/timeline"
	"github.com/ehr/chronicle/internal/platform/auth"
	"github.com/ehr/chronicle/internal/platform/middleware"
	"github.com/ehr/chronicle/internal/platform/recordstore"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "chronicle",
		Short: "Patient history reconciliation service",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(resolveCmd())
	rootCmd.AddCommand(exportCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the reconciliation API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func resolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <identifier>",
		Short: "Resolve an identifier to canonical identities and print them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			resolver := identity.NewResolver(recordstore.New(cfg.DataRoot))
			matches, err := resolver.Resolve(args[0])
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(matches, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}

func exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <identifier> [identifier...]",
		Short: "Build evolution reports and write them to the export directory",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			orchestrator := newOrchestrator(cfg, logger)
			for _, identifier := range args {
				path, _, err := orchestrator.Export(cmd.Context(), identifier, cfg.ExportDir)
				if err != nil {
					return fmt.Errorf("export %s: %w", identifier, err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), path)
			}
			return nil
		},
	}
}

func newLogger() zerolog.Logger {
	if os.Getenv("ENV") == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func newOrchestrator(cfg *config.Config, logger zerolog.Logger) *evolution.Orchestrator {
	store := recordstore.New(cfg.DataRoot)
	resolver := identity.NewResolver(store)
	return evolution.New(
		timeline.NewBuilder(store, resolver, logger),
		fusion.NewFuser(store, logger),
		profile.NewBuilder(store, resolver, logger),
		logger,
	)
}

// newServer wires the echo instance: global middleware, auth, and every
// domain handler under /api/v1.
func newServer(cfg *config.Config, logger zerolog.Logger) *echo.Echo {
	store := recordstore.New(cfg.DataRoot)
	resolver := identity.NewResolver(store)
	timelines := timeline.NewBuilder(store, resolver, logger)
	profiles := profile.NewBuilder(store, resolver, logger)
	orchestrator := evolution.New(timelines, fusion.NewFuser(store, logger), profiles, logger)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Health check
	e.GET("/health", func(c echo.Context) error {
		if err := store.CheckRoot(); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "degraded", "version": version,
			})
		}
		return c.JSON(http.StatusOK, map[string]string{
			"status": "ok", "version": version,
		})
	})

	// API group
	apiV1 := e.Group("/api/v1")
	apiV1.Use(auth.Middleware(cfg.APIJWTSecret))
	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	identity.NewHandler(resolver).RegisterRoutes(apiV1)
	timeline.NewHandler(timelines).RegisterRoutes(apiV1)
	profile.NewHandler(profiles).RegisterRoutes(apiV1)
	evolution.NewHandler(orchestrator, cfg.ExportDir).RegisterRoutes(apiV1)

	return e
}

func runServer() error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}
	if cfg.IsDev() && cfg.APIJWTSecret == "" {
		logger.Warn().Msg("API_JWT_SECRET is unset; the API is unauthenticated (development only)")
	}

	e := newServer(cfg, logger)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("data_root", cfg.DataRoot).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
