package telemetry

import (
	"context"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/his/his/internal/platform/auth"
	"github.com/his/his/internal/platform/db"
	"github.com/his/his/internal/platform/events"
	"github.com/his/his/internal/platform/middleware"
)

// Middleware traces each request and records request count, duration and
// concurrency. Health probes are not traced.
func (p *Provider) Middleware() echo.MiddlewareFunc {
	traced := otelecho.Middleware(p.cfg.ServiceName,
		otelecho.WithTracerProvider(p.tracers),
		otelecho.WithSkipper(func(c echo.Context) bool {
			return strings.HasPrefix(c.Path(), "/health")
		}),
	)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		inner := func(c echo.Context) error {
			ctx := c.Request().Context()
			route := c.Path()
			if route == "" {
				route = c.Request().URL.Path
			}
			base := []attribute.KeyValue{
				attribute.String("http.request.method", c.Request().Method),
				attribute.String("http.route", route),
			}

			p.active.Add(ctx, 1, metric.WithAttributes(base...))
			start := time.Now()
			err := next(c)
			elapsed := time.Since(start)
			p.active.Add(ctx, -1, metric.WithAttributes(base...))

			status := middleware.ResponseStatus(c, err)
			attrs := append(base, attribute.Int("http.response.status_code", status))
			p.requests.Add(ctx, 1, metric.WithAttributes(attrs...))
			p.duration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attrs...))

			// The principal is set further down the chain.
			if span := trace.SpanFromContext(c.Request().Context()); span.IsRecording() {
				if pr := auth.PrincipalFromContext(c.Request().Context()); pr != nil {
					span.SetAttributes(
						attribute.String("his.user_id", pr.UserID),
						attribute.String("his.role", string(pr.Role)),
					)
				}
				if err != nil {
					span.SetAttributes(attribute.String("error.message", err.Error()))
				}
			}
			return err
		}
		return traced(inner)
	}
}

// ObservePool reports database pool usage on every metrics collection.
func (p *Provider) ObservePool(stats func() *db.PoolStats) error {
	acquired, err := p.meter.Int64ObservableGauge("db.pool.acquired_connections",
		metric.WithDescription("Connections currently checked out of the pool."))
	if err != nil {
		return err
	}
	idle, err := p.meter.Int64ObservableGauge("db.pool.idle_connections",
		metric.WithDescription("Idle connections in the pool."))
	if err != nil {
		return err
	}
	maxConns, err := p.meter.Int64ObservableGauge("db.pool.max_connections",
		metric.WithDescription("Configured pool size."))
	if err != nil {
		return err
	}

	_, err = p.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s := stats()
		if s == nil {
			return nil
		}
		o.ObserveInt64(acquired, int64(s.AcquiredConns))
		o.ObserveInt64(idle, int64(s.IdleConns))
		o.ObserveInt64(maxConns, int64(s.MaxConns))
		return nil
	}, acquired, idle, maxConns)
	return err
}

// CountingPublisher counts every successfully published record event before
// handing it on.
func (p *Provider) CountingPublisher(next events.Publisher) events.Publisher {
	return &countingPublisher{next: next, counter: p.events}
}

type countingPublisher struct {
	next    events.Publisher
	counter metric.Int64Counter
}

func (c *countingPublisher) Publish(ctx context.Context, evt events.Event) error {
	if err := c.next.Publish(ctx, evt); err != nil {
		return err
	}
	c.counter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("his.collection", evt.Kind),
		attribute.String("his.operation", string(evt.Op)),
	))
	return nil
}

func (c *countingPublisher) Close() error {
	return c.next.Close()
}
