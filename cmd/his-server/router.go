package main

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/his/his/internal/config"
	"github.com/his/his/internal/domain/identity"
	"github.com/his/his/internal/domain/records"
	"github.com/his/his/internal/platform/auth"
	"github.com/his/his/internal/platform/db"
	"github.com/his/his/internal/platform/middleware"
	"github.com/his/his/internal/platform/telemetry"
)

const version = "0.1.0"

type routerDeps struct {
	cfg         *config.Config
	logger      zerolog.Logger
	issuer      *auth.Issuer
	revocations auth.RevocationStore
	identity    *identity.Service
	records     *records.Service
	poolStats   func() *db.PoolStats
	checks      []db.Check
	telemetry   *telemetry.Provider
}

// newRouter assembles the HTTP surface: global middleware, public health
// endpoints and the authenticated /api/v1 group.
func newRouter(d routerDeps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(d.logger)

	e.Use(middleware.Recovery(d.logger))
	if d.telemetry != nil {
		e.Use(d.telemetry.Middleware())
	}
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(d.logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: d.cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(middleware.Sanitize(d.logger))
	e.Use(middleware.BodyLimit(d.cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(d.cfg.RequestTimeout))

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: d.cfg.RateLimitRPS,
		BurstSize:         d.cfg.RateLimitBurst,
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(d.poolStats, d.checks...))

	apiV1 := e.Group("/api/v1",
		middleware.RateLimit(rateLimitCfg),
		auth.JWTMiddleware(d.issuer, d.revocations, auth.AuthSkipper, d.logger),
		middleware.Audit(d.logger),
	)

	identity.NewHandler(d.identity, d.issuer, d.revocations, d.logger).RegisterRoutes(apiV1)
	records.NewHandler(d.records).RegisterRoutes(apiV1)

	return e
}

func withPool(fn func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(ctx, cfg, pool)
}

func migrationsDir(flag string, cfg *config.Config) string {
	if flag != "" {
		return flag
	}
	return cfg.MigrationsDir
}

func printMigrationStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}
