package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/starknet/codescan/internal/logging"
)

// HTTPLoggingMiddleware logs each request at a level picked from its status.
func HTTPLoggingMiddleware(ctx huma.Context, next func(huma.Context)) {
	start := time.Now()
	logger := logging.GetLogger("http")

	attrs := []slog.Attr{
		slog.String("method", ctx.Method()),
		slog.String("path", ctx.URL().Path),
		slog.String("remote_addr", ctx.RemoteAddr()),
	}
	if q := ctx.URL().RawQuery; q != "" {
		attrs = append(attrs, slog.String("query", q))
	}
	if ua := ctx.Header("User-Agent"); ua != "" {
		attrs = append(attrs, slog.String("user_agent", ua))
	}

	next(ctx)

	status := ctx.Status()
	attrs = append(attrs,
		slog.Int("status", status),
		slog.Duration("duration", time.Since(start)),
	)
	logger.LogAttrs(ctx.Context(), requestLevel(ctx.Method(), ctx.URL().Path, status), "HTTP request completed", attrs...)
}

// requestLevel keeps preflights and the status poll out of info logs.
// A missing code on photo decode is an expected outcome, not a warning.
func requestLevel(method, path string, status int) slog.Level {
	switch {
	case method == http.MethodOptions:
		return slog.LevelDebug
	case status >= 500:
		return slog.LevelError
	case status == http.StatusNotFound && path == photoDecodePath:
		return slog.LevelInfo
	case status >= 400:
		return slog.LevelWarn
	case path == scannerStatusPath:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}
