package middleware

import (
	"github.com/gorilla/mux"

	"github.com/mintline/edition_layer/internal/app/metrics"
)

// MetricsMiddleware records HTTP metrics. Installed with Router.Use so the
// matched route template is available as the path label.
func MetricsMiddleware() mux.MiddlewareFunc {
	return metrics.InstrumentHandler
}
