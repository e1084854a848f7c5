package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/FabricioLanche/PharmaVida-Ingesta-v3/internal/apperrors"
	"github.com/FabricioLanche/PharmaVida-Ingesta-v3/internal/health"
	"github.com/FabricioLanche/PharmaVida-Ingesta-v3/internal/job"
)

// fakeJobs returns a canned envelope per kind and records every call.
type fakeJobs struct {
	mu     sync.Mutex
	calls  []job.Kind
	result map[job.Kind]*job.Envelope
}

func (f *fakeJobs) Run(_ context.Context, kind job.Kind) *job.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, kind)
	if env, ok := f.result[kind]; ok {
		return env
	}
	return job.Success(kind, map[string]any{"ok": true})
}

func (f *fakeJobs) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func dockerCheck(err error) health.Check {
	return health.Check{
		Name:     DockerCheck,
		Critical: true,
		Probe:    health.ProbeFunc(func(context.Context) error { return err }),
	}
}

func decodeEnvelope(t *testing.T, body *bytes.Buffer) job.Envelope {
	t.Helper()
	var env job.Envelope
	if err := json.NewDecoder(body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return env
}

func TestHandler_Livez(t *testing.T) {
	t.Parallel()
	handler := NewHandler(&fakeJobs{}, health.NewChecker())

	req := httptest.NewRequest(http.MethodGet, "/livez", nil)
	w := httptest.NewRecorder()

	handler.Livez(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	var response health.Response
	json.NewDecoder(w.Body).Decode(&response)

	if response.Status != health.StatusHealthy {
		t.Errorf("Expected status healthy, got %s", response.Status)
	}
}

func TestHandler_Readyz(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		checks   []health.Check
		expected int
	}{
		{"no checks", nil, http.StatusServiceUnavailable},
		{"docker up", []health.Check{dockerCheck(nil)}, http.StatusOK},
		{"docker down", []health.Check{dockerCheck(errors.New("no socket"))}, http.StatusServiceUnavailable},
		{
			"credentials missing is degraded",
			[]health.Check{
				dockerCheck(nil),
				{Name: "credentials", Probe: health.ProbeFunc(func(context.Context) error { return errors.New("missing") })},
			},
			http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			handler := NewHandler(&fakeJobs{}, health.NewChecker(tt.checks...))

			w := httptest.NewRecorder()
			handler.Readyz(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			if w.Code != tt.expected {
				t.Errorf("Expected status %d, got %d", tt.expected, w.Code)
			}
		})
	}
}

func TestHandler_IngestaHealth(t *testing.T) {
	t.Parallel()

	t.Run("healthy", func(t *testing.T) {
		t.Parallel()
		handler := NewHandler(&fakeJobs{}, health.NewChecker(dockerCheck(nil)))

		w := httptest.NewRecorder()
		handler.IngestaHealth(w, httptest.NewRequest(http.MethodGet, "/api/ingesta/health", nil))

		if w.Code != http.StatusOK {
			t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
		}
		var resp map[string]string
		json.NewDecoder(w.Body).Decode(&resp)
		if resp["status"] != "healthy" || resp["docker_connection"] != "ok" || resp["service"] != serviceName {
			t.Errorf("unexpected body: %v", resp)
		}
	})

	t.Run("unhealthy", func(t *testing.T) {
		t.Parallel()
		handler := NewHandler(&fakeJobs{}, health.NewChecker(dockerCheck(errors.New("dial unix /var/run/docker.sock: connect: no such file"))))

		w := httptest.NewRecorder()
		handler.IngestaHealth(w, httptest.NewRequest(http.MethodGet, "/api/ingesta/health", nil))

		if w.Code != http.StatusServiceUnavailable {
			t.Fatalf("Expected status %d, got %d", http.StatusServiceUnavailable, w.Code)
		}
		var resp map[string]string
		json.NewDecoder(w.Body).Decode(&resp)
		if resp["status"] != "unhealthy" || resp["docker_connection"] != "failed" {
			t.Errorf("unexpected body: %v", resp)
		}
		if resp["error"] == "" {
			t.Error("Expected error message")
		}
	})

	t.Run("not configured", func(t *testing.T) {
		t.Parallel()
		handler := NewHandler(&fakeJobs{}, health.NewChecker())

		w := httptest.NewRecorder()
		handler.IngestaHealth(w, httptest.NewRequest(http.MethodGet, "/api/ingesta/health", nil))

		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("Expected status %d, got %d", http.StatusServiceUnavailable, w.Code)
		}
	})
}

func TestHandler_Index(t *testing.T) {
	t.Parallel()
	handler := NewHandler(&fakeJobs{}, health.NewChecker())

	w := httptest.NewRecorder()
	handler.Index(w, httptest.NewRequest(http.MethodGet, "/", nil))

	var resp struct {
		Version   string            `json:"version"`
		Endpoints map[string]string `json:"endpoints"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Version != serviceVersion {
		t.Errorf("Expected version %s, got %s", serviceVersion, resp.Version)
	}
	if resp.Endpoints["mysql"] != "POST /api/ingesta/mysql" {
		t.Errorf("unexpected mysql endpoint: %q", resp.Endpoints["mysql"])
	}
	if len(resp.Endpoints) != len(job.Kinds())+1 {
		t.Errorf("Expected %d endpoints, got %d", len(job.Kinds())+1, len(resp.Endpoints))
	}
}

func TestRouter_RunIngestion(t *testing.T) {
	t.Parallel()
	code := 2
	jobs := &fakeJobs{result: map[job.Kind]*job.Envelope{
		job.KindMySQL: job.Failure(job.KindMySQL, apperrors.ImageNotFound("pharmavida-ingesta-mysql:latest", "docker build")),
		job.KindPostgreSQL: {
			Status: job.StatusError, Kind: job.KindPostgreSQL,
			Error: "container exited with code 2", ErrorKind: apperrors.KindNonZeroExit,
			Logs: "traceback", ExitCode: &code,
		},
		job.KindMongoDB: job.Success(job.KindMongoDB, map[string]any{"medicos": map[string]any{"registros": 3}}),
	}}
	router := NewRouter(RouterConfig{Jobs: jobs, HealthChecker: health.NewChecker()})

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantEnv    string
		wantKind   apperrors.Kind
	}{
		{"success", "/api/ingesta/mongodb", http.StatusOK, job.StatusSuccess, ""},
		{"image missing", "/api/ingesta/mysql", http.StatusInternalServerError, job.StatusError, apperrors.KindImageNotFound},
		{"non-zero exit", "/api/ingesta/postgresql", http.StatusInternalServerError, job.StatusError, apperrors.KindNonZeroExit},
		{"unknown kind", "/api/ingesta/oracle", http.StatusBadRequest, job.StatusError, apperrors.KindValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, tt.path, nil))

			if w.Code != tt.wantStatus {
				t.Fatalf("Expected status %d, got %d", tt.wantStatus, w.Code)
			}
			env := decodeEnvelope(t, w.Body)
			if env.Status != tt.wantEnv {
				t.Errorf("Expected envelope status %s, got %s", tt.wantEnv, env.Status)
			}
			if env.ErrorKind != tt.wantKind {
				t.Errorf("Expected error kind %q, got %q", tt.wantKind, env.ErrorKind)
			}
		})
	}
}

func TestRouter_RunIngestion_PreservesDiagnostics(t *testing.T) {
	t.Parallel()
	code := 1
	jobs := &fakeJobs{result: map[job.Kind]*job.Envelope{
		job.KindMySQL: job.Failure(job.KindMySQL, apperrors.NonZeroExit(code, "boom\n")),
	}}
	router := NewRouter(RouterConfig{Jobs: jobs, HealthChecker: health.NewChecker()})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/ingesta/mysql", nil))

	env := decodeEnvelope(t, w.Body)
	if env.Logs != "boom\n" {
		t.Errorf("Expected logs verbatim, got %q", env.Logs)
	}
	if env.ExitCode == nil || *env.ExitCode != 1 {
		t.Errorf("Expected exit code 1, got %v", env.ExitCode)
	}
}

func TestRouter_RuntimeUnavailableIs503(t *testing.T) {
	t.Parallel()
	jobs := &fakeJobs{result: map[job.Kind]*job.Envelope{
		job.KindMongoDB: job.Failure(job.KindMongoDB, apperrors.RuntimeUnavailable(errors.New("no socket"))),
	}}
	router := NewRouter(RouterConfig{Jobs: jobs, HealthChecker: health.NewChecker()})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/ingesta/mongodb", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status %d, got %d", http.StatusServiceUnavailable, w.Code)
	}
}

func TestRouter_Auth(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		header   string
		expected int
		runs     int
	}{
		{"missing header", "", http.StatusUnauthorized, 0},
		{"wrong scheme", "Basic secret", http.StatusUnauthorized, 0},
		{"wrong key", "Bearer nope", http.StatusUnauthorized, 0},
		{"valid key", "Bearer secret", http.StatusOK, 1},
		{"case-insensitive scheme", "bearer secret", http.StatusOK, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			jobs := &fakeJobs{}
			router := NewRouter(RouterConfig{Jobs: jobs, HealthChecker: health.NewChecker(), APIKey: "secret"})

			req := httptest.NewRequest(http.MethodPost, "/api/ingesta/mysql", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.expected {
				t.Errorf("Expected status %d, got %d", tt.expected, w.Code)
			}
			if got := jobs.callCount(); got != tt.runs {
				t.Errorf("Expected %d runs, got %d", tt.runs, got)
			}
		})
	}
}

func TestRouter_HealthRoutesSkipAuth(t *testing.T) {
	t.Parallel()
	router := NewRouter(RouterConfig{Jobs: &fakeJobs{}, HealthChecker: health.NewChecker(dockerCheck(nil)), APIKey: "secret"})

	for _, path := range []string{"/", "/health", "/livez", "/readyz", "/api/ingesta/health"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusOK {
			t.Errorf("%s: expected status %d, got %d", path, http.StatusOK, w.Code)
		}
	}
}

func TestRouter_UnknownPath(t *testing.T) {
	t.Parallel()
	router := NewRouter(RouterConfig{Jobs: &fakeJobs{}, HealthChecker: health.NewChecker()})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, w.Code)
	}
}

func TestMiddleware_Logging(t *testing.T) {
	t.Parallel()
	called := false
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	handler := LoggingMiddleware()(inner)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	if !called {
		t.Error("Inner handler was not called")
	}
}

func TestMiddleware_Recovery(t *testing.T) {
	t.Parallel()
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("test panic")
	})

	handler := RecoveryMiddleware()(inner)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status %d, got %d", http.StatusInternalServerError, w.Code)
	}
}

func TestMiddleware_ContentType(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name        string
		method      string
		contentType string
		wantCalled  bool
	}{
		{"post without content type", http.MethodPost, "", true},
		{"post json", http.MethodPost, "application/json", true},
		{"post json with charset", http.MethodPost, "application/json; charset=utf-8", true},
		{"post text", http.MethodPost, "text/plain", false},
		{"get ignores content type", http.MethodGet, "text/plain", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			called := false
			handler := ContentTypeMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			}))

			req := httptest.NewRequest(tt.method, "/test", bytes.NewBufferString("{}"))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if called != tt.wantCalled {
				t.Errorf("Expected called=%v, got %v", tt.wantCalled, called)
			}
			if !tt.wantCalled && w.Code != http.StatusUnsupportedMediaType {
				t.Errorf("Expected status %d, got %d", http.StatusUnsupportedMediaType, w.Code)
			}
		})
	}
}

func TestMiddleware_CORS(t *testing.T) {
	t.Parallel()
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	handler := CORSMiddleware()(inner)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/api/ingesta/mysql", nil))

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("Expected CORS header")
	}
}

func TestMiddleware_RequestID(t *testing.T) {
	t.Parallel()
	var seen string
	handler := RequestIDMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" || w.Header().Get(RequestIDHeader) != seen {
		t.Errorf("Expected generated request id in context and header, got %q / %q", seen, w.Header().Get(RequestIDHeader))
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if seen != "abc-123" {
		t.Errorf("Expected caller request id to propagate, got %q", seen)
	}
}
