package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/pheno/pheno/internal/config"
	"github.com/pheno/pheno/internal/domain/mapper"
	"github.com/pheno/pheno/internal/domain/ontology"
	"github.com/pheno/pheno/internal/domain/recognition"
	"github.com/pheno/pheno/internal/platform/auth"
	"github.com/pheno/pheno/internal/platform/db"
	"github.com/pheno/pheno/internal/platform/middleware"
	"github.com/pheno/pheno/internal/platform/telemetry"
)

const (
	appName    = "pheno-server"
	appVersion = "0.1.0"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          appName,
		Short:        "HPO concept recognition server",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(recognizeCmd())
	rootCmd.AddCommand(mapCmd())
	rootCmd.AddCommand(lookupCmd())
	rootCmd.AddCommand(indexCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the recognition API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

// newLogger writes JSON to out, or a console format in development.
func newLogger(cfg *config.Config, out io.Writer) zerolog.Logger {
	if cfg.IsDev() {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(cfg.Level()).With().Timestamp().Str("service", appName).Logger()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// indexFromFile parses an obographs export and builds the index.
func indexFromFile(path string, logger zerolog.Logger) (*ontology.Index, error) {
	start := time.Now()
	exp, err := ontology.ParseFile(path)
	if err != nil {
		return nil, err
	}
	idx, err := ontology.Build(exp, ontology.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("build index from %s: %w", path, err)
	}
	logger.Info().Str("path", path).Dur("elapsed", time.Since(start)).Msg("index built from file")
	return idx, nil
}

// loadIndex honours INDEX_SOURCE. The returned cleanup closes any pool it opened.
func loadIndex(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*ontology.Index, func(), error) {
	if cfg.IndexSource != config.IndexSourceDB {
		idx, err := indexFromFile(cfg.HPOJSON, logger)
		return idx, func() {}, err
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, appName, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, err
	}
	idx, err := ontology.NewIndexRepoPG(pool).LoadIndex(ctx)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("load index from database: %w", err)
	}
	logger.Info().Str("version", idx.Version()).Int("terms", idx.Len()).Msg("index loaded from database")
	return idx, pool.Close, nil
}

func loadOverlay(path string) (*recognition.Overlay, error) {
	if path == "" {
		return nil, nil
	}
	return recognition.LoadOverlay(path)
}

// serverDeps are the collaborators newServer wires into routes.
type serverDeps struct {
	cfg     *config.Config
	logger  zerolog.Logger
	index   *ontology.Index
	overlay *recognition.Overlay
	metrics *telemetry.Metrics
	db      db.Pinger
	stats   func() *db.PoolStats
}

func newServer(d serverDeps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(d.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(d.logger, "/health", "/metrics"))
	e.Use(d.metrics.Middleware())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: d.cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(middleware.BodyLimit("1M", "16M", "/api/v1/recognize/batch", "/api/v1/map"))
	e.Use(middleware.RequestTimeout(60*time.Second, "/metrics"))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": appVersion,
			"hpo":     d.index.Version(),
		})
	})
	e.GET("/metrics", d.metrics.Handler())
	if d.db != nil {
		e.GET("/health/db", db.HealthHandler(d.db, d.stats))
	}

	engine := recognition.NewEngine(d.index, d.logger, recognition.WithRecorder(d.metrics))
	svc := recognition.NewService(engine, d.overlay, d.cfg.Workers)
	d.metrics.SetIndex(d.index.Version(), d.index.Len(), len(d.index.Labels()))

	apiV1 := e.Group("/api/v1")
	if d.cfg.AuthEnabled() {
		apiV1.Use(auth.JWTMiddleware(auth.JWTConfig{
			SigningKey: []byte(d.cfg.AuthSecret),
			Skipper:    auth.AuthSkipper,
		}))
	} else {
		d.logger.Warn().Msg("AUTH_SECRET not set: API is unauthenticated")
	}
	recognition.NewHandler(svc).RegisterRoutes(apiV1, d.cfg.AuthEnabled())
	mapper.NewHandler(engine, d.overlay, d.logger).RegisterRoutes(apiV1, d.cfg.AuthEnabled())

	return e
}

func runServer() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	idx, cleanup, err := loadIndex(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load index")
		return err
	}
	defer cleanup()

	overlay, err := loadOverlay(cfg.OverlayFile)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load overlay")
		return err
	}

	deps := serverDeps{
		cfg:     cfg,
		logger:  logger,
		index:   idx,
		overlay: overlay,
		metrics: telemetry.NewMetrics(),
	}
	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, appName, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			logger.Warn().Err(err).Msg("database unavailable; /health/db disabled")
		} else {
			defer pool.Close()
			deps.db = pool
			deps.stats = func() *db.PoolStats { return db.GetPoolStats(pool) }
		}
	}

	e := newServer(deps)

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("hpo", idx.Version()).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}
