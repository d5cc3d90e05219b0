// Package exporters serves the scanner metrics over HTTP.
package exporters

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/starknet/codescan/internal/logging"
)

// HTTPHandler serves every promauto-registered metric. A collector that
// fails to gather is logged and the remaining metrics are still served.
func HTTPHandler() http.Handler {
	return promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
		ErrorLog:          errorLog{logging.GetLogger("metrics")},
		ErrorHandling:     promhttp.ContinueOnError,
		EnableOpenMetrics: true,
	})
}

// errorLog adapts slog to promhttp.Logger.
type errorLog struct {
	logger *slog.Logger
}

func (l errorLog) Println(v ...any) {
	l.logger.Warn("Metrics gathering failed", "error", fmt.Sprint(v...))
}
