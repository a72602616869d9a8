// Package server assembles the HTTP surface: middleware, route registration
// and lifecycle for the log service and its background retention runner.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/rs/zerolog"

	"github.com/logward/logward/internal/archive"
	"github.com/logward/logward/internal/config"
	"github.com/logward/logward/internal/handler"
	"github.com/logward/logward/internal/repository"
	"github.com/logward/logward/internal/response"
	"github.com/logward/logward/internal/retention"
	"github.com/logward/logward/internal/service"
	"github.com/logward/logward/internal/tenant"
	"github.com/logward/logward/internal/validate"
)

// Server holds the Echo app and the background pieces stopped on Shutdown.
type Server struct {
	Echo   *echo.Echo
	Config *config.Config

	pool   *pgxpool.Pool
	runner *retention.Runner
	log    zerolog.Logger
}

// New builds the Echo server, wires every dependency and registers routes.
// nrApp may be nil when observability is disabled.
func New(cfg *config.Config, pool *pgxpool.Pool, nrApp *newrelic.Application, logger zerolog.Logger) (*Server, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.Server.CORSAllowedOrigins,
	}))
	e.Use(requestLogger(logger))
	if nrApp != nil {
		e.Use(transactionMiddleware(nrApp))
	}

	opTimeout := cfg.Database.OpTimeout()
	logRepo := repository.NewLogRepository(pool, opTimeout)
	tenantRepo := repository.NewTenantRepository(pool, opTimeout)

	limits := validate.DefaultLimits()
	limits.ClockSkew = cfg.Ingest.ClockSkew()
	limits.AllowClientTimestamp = cfg.Ingest.AllowClientTimestamp

	opts := service.DefaultOptions()
	opts.MaxBatchSize = cfg.Ingest.BatchSize()
	opts.MaxPageSize = cfg.Query.MaxPage()
	opts.DefaultPageSize = cfg.Query.DefaultPage()

	logs := service.NewLogs(logRepo, limits, opts, logger)
	manager := retention.NewManager(logRepo, tenantRepo, cfg.Retention.Batch(), logger)

	var runner *retention.Runner
	if cfg.Retention.Enabled {
		runner = retention.NewRunner(manager, cfg.Retention.SweepInterval(), logger)
	}

	var archiveClient *archive.Client
	if cfg.Archive != nil {
		var err error
		archiveClient, err = archive.NewClient(&archive.Config{
			Endpoint:  cfg.Archive.Endpoint,
			Region:    cfg.Archive.Region,
			Bucket:    cfg.Archive.Bucket,
			AccessKey: cfg.Archive.AccessKey,
			SecretKey: cfg.Archive.SecretKey,
		})
		if err != nil {
			return nil, err
		}
		if archiveClient != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := archiveClient.EnsureBucket(ctx); err != nil {
				logger.Warn().Err(err).Msg("archive bucket check failed, uploads may fail")
			}
		}
	}

	h := &handler.LogHandler{
		Logs:      logs,
		Resolver:  tenant.NewResolver(tenantRepo),
		Retention: manager,
		Quotas:    tenantRepo,
		Archive:   archiveClient,
	}

	e.POST("/logs", h.CreateLog)
	e.POST("/logs/bulk", h.BulkIngest)
	e.GET("/logs", h.ListLogs)
	e.GET("/logs/services", h.ListServices)
	e.GET("/logs/metrics", h.GetMetrics)
	e.GET("/logs/export", h.ExportLogs)
	e.GET("/logs/archive", h.ListArchive)
	e.PUT("/logs/retention", h.PutQuota)
	e.GET("/logs/retention", h.GetQuota)
	e.DELETE("/logs/retention", h.SweepRetention)
	e.GET("/logs/:id", h.GetLog)
	e.DELETE("/logs/:id", h.DeleteLog)

	e.GET("/healthz", func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(ctx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		}
		return response.OK(c, map[string]string{"status": "ok"})
	})

	srv := &Server{
		Echo:   e,
		Config: cfg,
		pool:   pool,
		runner: runner,
		log:    logger,
	}

	e.Server.ReadTimeout = time.Duration(cfg.Server.ReadTimeout) * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.Server.WriteTimeout) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.Server.IdleTimeout) * time.Second

	return srv, nil
}

// Start runs the HTTP listener and the retention runner. It blocks until the
// context is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	if s.runner != nil {
		s.runner.Start()
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			s.log.Error().Err(err).Msg("shutdown")
		}
	}()
	err := s.Echo.Start(":" + s.Config.Server.Port)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops accepting requests, then stops the retention runner so no
// sweep outlives the pool.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.Echo.Shutdown(ctx)
	if s.runner != nil {
		s.runner.Stop()
	}
	return err
}

// requestLogger emits one structured line per request.
func requestLogger(logger zerolog.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:     true,
		LogMethod:  true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			evt := logger.Info()
			if v.Status >= 500 {
				evt = logger.Error()
			}
			evt.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Err(v.Error).
				Msg("request")
			return nil
		},
	})
}

// transactionMiddleware opens a New Relic transaction per request so the
// pgx tracer can attach datastore segments to it.
func transactionMiddleware(app *newrelic.Application) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			txn := app.StartTransaction(c.Request().Method + " " + c.Path())
			defer txn.End()
			txn.SetWebRequestHTTP(c.Request())
			w := txn.SetWebResponse(c.Response().Writer)
			c.Response().Writer = w
			req := c.Request().WithContext(newrelic.NewContext(c.Request().Context(), txn))
			c.SetRequest(req)
			if err := next(c); err != nil {
				txn.NoticeError(err)
				return err
			}
			return nil
		}
	}
}
