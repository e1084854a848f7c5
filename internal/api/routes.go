package api

import (
	"net/http"

	"github.com/FabricioLanche/PharmaVida-Ingesta-v3/internal/health"
	"github.com/FabricioLanche/PharmaVida-Ingesta-v3/internal/observability"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	Jobs          JobRunner
	Metrics       *observability.Metrics
	HealthChecker *health.Checker
	APIKey        string
}

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(cfg RouterConfig) http.Handler {
	handler := NewHandler(cfg.Jobs, cfg.HealthChecker)

	mux := http.NewServeMux()

	// Probes and informational routes - no auth required
	mux.HandleFunc("GET /{$}", handler.Index)
	mux.HandleFunc("GET /health", handler.Health)
	mux.HandleFunc("GET /livez", handler.Livez)
	mux.HandleFunc("GET /readyz", handler.Readyz)
	mux.HandleFunc("GET /api/ingesta/health", handler.IngestaHealth)

	// Ingestion endpoints - auth required
	authMiddleware := AuthMiddleware(cfg.APIKey)
	mux.Handle("POST /api/ingesta/{kind}", authMiddleware(http.HandlerFunc(handler.RunIngestion)))

	// Apply middleware chain (order matters: outermost first)
	var h http.Handler = mux
	h = ContentTypeMiddleware()(h)
	h = CORSMiddleware()(h)
	if cfg.Metrics != nil {
		h = MetricsMiddleware(cfg.Metrics)(h)
	}
	h = RequestIDMiddleware()(h)
	h = LoggingMiddleware()(h)
	h = RecoveryMiddleware()(h)

	return h
}
