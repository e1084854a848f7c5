// Package api provides the HTTP handlers and routing for the ingestion gateway.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/FabricioLanche/PharmaVida-Ingesta-v3/internal/apperrors"
	"github.com/FabricioLanche/PharmaVida-Ingesta-v3/internal/health"
	"github.com/FabricioLanche/PharmaVida-Ingesta-v3/internal/job"
)

const (
	serviceName    = "ingesta-gateway"
	serviceVersion = "2.0.0"

	// DockerCheck is the readiness check consulted by the ingestion health route.
	DockerCheck = "docker"
)

// JobRunner runs one ingestion job synchronously. *job.Service satisfies it.
type JobRunner interface {
	Run(ctx context.Context, kind job.Kind) *job.Envelope
}

// Handler contains HTTP handlers for the ingestion API
type Handler struct {
	jobs   JobRunner
	health *health.Checker
}

// NewHandler creates a new API handler
func NewHandler(jobs JobRunner, healthChecker *health.Checker) *Handler {
	return &Handler{
		jobs:   jobs,
		health: healthChecker,
	}
}

// RunIngestion handles POST /api/ingesta/{kind}
func (h *Handler) RunIngestion(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("kind")
	kind, err := job.ParseKind(raw)
	if err != nil {
		slog.WarnContext(r.Context(), "Client error", "error", err, "path", r.URL.Path)
		h.writeJSON(w, apperrors.HTTPStatus(err), job.Failure(job.Kind(raw), err))
		return
	}

	env := h.jobs.Run(r.Context(), kind)
	if env.OK() {
		h.writeJSON(w, http.StatusOK, env)
		return
	}

	status := apperrors.StatusForKind(env.ErrorKind)
	slog.ErrorContext(r.Context(), "Ingestion failed",
		"kind", kind,
		"runId", env.RunID,
		"errorKind", env.ErrorKind,
		"error", env.Error,
		"logs", env.Logs,
	)
	h.writeJSON(w, status, env)
}

// IngestaHealth handles GET /api/ingesta/health. It reports whether the
// container runtime is reachable right now, bypassing the readiness cache.
func (h *Handler) IngestaHealth(w http.ResponseWriter, r *http.Request) {
	result, ok := h.health.CheckNow(r.Context(), DockerCheck)
	if ok && result.Status == health.StatusHealthy {
		h.writeJSON(w, http.StatusOK, map[string]string{
			"status":            string(health.StatusHealthy),
			"service":           serviceName,
			"docker_connection": "ok",
		})
		return
	}

	message := result.Message
	if !ok {
		message = DockerCheck + " check not configured"
	}
	h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{
		"status":            string(health.StatusUnhealthy),
		"service":           serviceName,
		"docker_connection": "failed",
		"error":             message,
	})
}

// Index handles GET /
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	endpoints := make(map[string]string, len(job.Kinds())+1)
	for _, kind := range job.Kinds() {
		endpoints[string(kind)] = "POST /api/ingesta/" + string(kind)
	}
	endpoints["health"] = "GET /api/ingesta/health"

	h.writeJSON(w, http.StatusOK, map[string]any{
		"message":      "PharmaVida Ingesta API Gateway",
		"version":      serviceVersion,
		"architecture": "Microservices with ephemeral containers",
		"endpoints":    endpoints,
	})
}

// Health handles GET /health. It only reports that the gateway process is serving.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"status":  string(health.StatusHealthy),
		"service": "api-gateway",
	})
}

// Livez handles GET /livez - liveness probe.
// Returns 200 if the process is alive. Does not check dependencies.
func (h *Handler) Livez(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.health.Liveness(r.Context()))
}

// Readyz handles GET /readyz - readiness probe.
// A degraded service (credentials missing) still takes traffic; runs will
// report the failure in their envelope.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	response := h.health.Readiness(r.Context())

	status := http.StatusOK
	if !response.IsReady() {
		status = http.StatusServiceUnavailable
	}

	h.writeJSON(w, status, response)
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}
