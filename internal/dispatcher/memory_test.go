package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/FabricioLanche/PharmaVida-Ingesta-v3/internal/testutil"
	"github.com/FabricioLanche/PharmaVida-Ingesta-v3/pkg/cloudevent"
)

func runEvent(subject, id string) *cloudevent.CloudEvent {
	return cloudevent.New("pharmavida.ingesta.run.completed", "ingesta-gateway", subject, id, map[string]any{"status": "success"})
}

func newDispatcher(t *testing.T, cfg MemoryConfig) *MemoryDispatcher {
	t.Helper()
	d, err := NewMemory(cfg, nil)
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		d.Close(ctx)
	})
	return d
}

func TestNewMemory_RejectsInvalidURL(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "not a url", "ftp://example.com/hook", "/relative"} {
		if _, err := NewMemory(MemoryConfig{URL: raw}, nil); err == nil {
			t.Errorf("expected error for URL %q", raw)
		}
	}
}

func TestMemoryDispatcher_Publish(t *testing.T) {
	t.Parallel()
	var mu sync.Mutex
	var got cloudevent.CloudEvent
	var received atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		json.NewDecoder(r.Body).Decode(&got)
		mu.Unlock()
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	d := newDispatcher(t, MemoryConfig{URL: server.URL, BufferSize: 10, Workers: 2})

	if err := d.Publish(runEvent("mongodb", "evt-1")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	testutil.MustWaitFor(t, func() bool {
		return d.Stats().Delivered >= 1
	}, testutil.WithTimeout(5*time.Second))

	if received.Load() != 1 {
		t.Errorf("expected 1 delivery, got %d", received.Load())
	}
	mu.Lock()
	defer mu.Unlock()
	if got.Subject != "mongodb" || got.ID != "evt-1" {
		t.Errorf("unexpected event received: %+v", got)
	}
}

func TestMemoryDispatcher_BufferFull(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	defer close(release)

	d := newDispatcher(t, MemoryConfig{URL: server.URL, BufferSize: 2, Workers: 1})

	var full int
	for i := range 6 {
		if err := d.Publish(runEvent("mysql", string(rune('a'+i)))); errors.Is(err, ErrBufferFull) {
			full++
		}
	}

	if full == 0 {
		t.Error("expected some publishes to hit a full buffer")
	}
	if d.Stats().Dropped != int64(full) {
		t.Errorf("expected %d dropped, got %d", full, d.Stats().Dropped)
	}
}

func TestMemoryDispatcher_Retry(t *testing.T) {
	t.Parallel()
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	d := newDispatcher(t, MemoryConfig{URL: server.URL, Workers: 1})
	d.Publish(runEvent("postgresql", "evt-1"))

	testutil.MustWaitFor(t, func() bool {
		return d.Stats().Delivered >= 1
	}, testutil.WithTimeout(5*time.Second))

	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
	if got := d.Stats().RetriesTotal; got != 2 {
		t.Errorf("expected 2 retries, got %d", got)
	}
}

func TestMemoryDispatcher_NoRetryOn4xx(t *testing.T) {
	t.Parallel()
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	d := newDispatcher(t, MemoryConfig{URL: server.URL, Workers: 1})
	d.Publish(runEvent("mysql", "evt-1"))

	testutil.MustWaitFor(t, func() bool {
		return d.Stats().Failed >= 1
	}, testutil.WithTimeout(5*time.Second))

	if attempts.Load() != 1 {
		t.Errorf("expected 1 attempt (no retry on 4xx), got %d", attempts.Load())
	}
}

func TestMemoryDispatcher_CircuitOpensAndDrops(t *testing.T) {
	t.Parallel()
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	d := newDispatcher(t, MemoryConfig{URL: server.URL, Workers: 1, BufferSize: 20, MaxRetries: 1})

	const events = 2 * defaultBreakerThreshold
	for i := range events {
		d.Publish(runEvent("mongodb", string(rune('a'+i))))
	}

	testutil.MustWaitFor(t, func() bool {
		s := d.Stats()
		return s.Failed+s.Dropped >= events
	}, testutil.WithTimeout(10*time.Second))

	stats := d.Stats()
	if stats.Failed != defaultBreakerThreshold {
		t.Errorf("expected %d failed before the circuit opened, got %d", defaultBreakerThreshold, stats.Failed)
	}
	if stats.Dropped != events-defaultBreakerThreshold {
		t.Errorf("expected %d dropped while open, got %d", events-defaultBreakerThreshold, stats.Dropped)
	}
	if stats.Breaker != "open" {
		t.Errorf("expected open breaker, got %s", stats.Breaker)
	}
	if got := attempts.Load(); got != 2*defaultBreakerThreshold {
		t.Errorf("expected %d HTTP attempts, got %d", 2*defaultBreakerThreshold, got)
	}
}

func TestMemoryDispatcher_Signature(t *testing.T) {
	t.Parallel()
	var mu sync.Mutex
	var valid bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		valid = cloudevent.Verify(body, "secret-key", r.Header.Get(cloudevent.SignatureHeader))
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	d := newDispatcher(t, MemoryConfig{URL: server.URL, SigningKey: "secret-key", Workers: 1})
	d.Publish(runEvent("mysql", "evt-1"))

	testutil.MustWaitFor(t, func() bool {
		return d.Stats().Delivered >= 1
	}, testutil.WithTimeout(5*time.Second))

	mu.Lock()
	defer mu.Unlock()
	if !valid {
		t.Error("expected a signature that verifies against the body")
	}
}

func TestMemoryDispatcher_GracefulShutdown(t *testing.T) {
	t.Parallel()
	var received atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	d, err := NewMemory(MemoryConfig{URL: server.URL, BufferSize: 100, Workers: 2}, nil)
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}

	for i := range 10 {
		d.Publish(runEvent("postgresql", string(rune('a'+i))))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Close(ctx); err != nil {
		t.Errorf("Close failed: %v", err)
	}

	if received.Load() != 10 {
		t.Errorf("expected 10 deliveries, got %d", received.Load())
	}
	if err := d.Publish(runEvent("postgresql", "late")); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed after Close, got %v", err)
	}
	if err := d.Close(ctx); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}
}

func TestExtractHost(t *testing.T) {
	t.Parallel()
	tests := []struct {
		rawURL   string
		expected string
	}{
		{"http://localhost:8080/webhook", "localhost:8080"},
		{"https://hooks.example.com/ingesta?token=abc", "hooks.example.com"},
		{"://invalid", "://invalid"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := extractHost(tt.rawURL); got != tt.expected {
			t.Errorf("extractHost(%q) = %q, want %q", tt.rawURL, got, tt.expected)
		}
	}
}
