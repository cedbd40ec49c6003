package apiclient

import (
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// loggingTransport logs each outbound request with method, path, status
// code and duration. Headers are never logged.
type loggingTransport struct {
	base   http.RoundTripper
	logger *slog.Logger
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.base.RoundTrip(req)

	attrs := []slog.Attr{
		slog.String("method", req.Method),
		slog.String("path", req.URL.Path),
		slog.Duration("duration", time.Since(start)),
		slog.String("request_id", req.Header.Get(requestIDHeader)),
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
		t.logger.LogAttrs(req.Context(), slog.LevelWarn, "request failed", attrs...)
		return nil, err
	}

	attrs = append(attrs, slog.Int("status", resp.StatusCode))
	switch {
	case resp.StatusCode >= 500:
		t.logger.LogAttrs(req.Context(), slog.LevelError, "request", attrs...)
	case resp.StatusCode >= 400:
		t.logger.LogAttrs(req.Context(), slog.LevelWarn, "request", attrs...)
	default:
		t.logger.LogAttrs(req.Context(), slog.LevelDebug, "request", attrs...)
	}
	return resp, nil
}

// NewTransport wraps base with request logging and OpenTelemetry client
// spans. A nil base means http.DefaultTransport.
func NewTransport(base http.RoundTripper, logger *slog.Logger) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return otelhttp.NewTransport(&loggingTransport{base: base, logger: logger})
}
