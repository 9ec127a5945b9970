// Package keepalive periodically requests a URL so that an idle host stays awake.
package keepalive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("keepalive")

// Pinger sends a GET to a URL on every tick.
type Pinger struct {
	url      string
	interval time.Duration
	client   *http.Client
}

// New creates a Pinger for url. A non-positive interval defaults to 14 minutes.
func New(url string, interval time.Duration) *Pinger {
	if interval <= 0 {
		interval = 14 * time.Minute
	}
	return &Pinger{
		url:      url,
		interval: interval,
		client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// Run pings until ctx is cancelled.
func (p *Pinger) Run(ctx context.Context) {
	slog.InfoContext(ctx, "keepalive started", "url", p.url, "interval", p.interval)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "keepalive stopped", "url", p.url)
			return
		case <-ticker.C:
			if err := p.Ping(ctx); err != nil {
				slog.WarnContext(ctx, "keepalive ping failed", "url", p.url, "error", err)
			}
		}
	}
}

// Ping performs a single request and reports non-2xx responses as errors.
func (p *Pinger) Ping(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "keepalive.Ping", trace.WithAttributes(
		attribute.String("http.url", p.url),
	))
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return fmt.Errorf("failed to build keepalive request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "keepalive request failed")
		return fmt.Errorf("failed to ping: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		span.SetStatus(codes.Error, "unexpected status")
		return fmt.Errorf("unexpected keepalive status %d", resp.StatusCode)
	}
	slog.DebugContext(ctx, "keepalive ping", "url", p.url, "status", resp.StatusCode)
	return nil
}
