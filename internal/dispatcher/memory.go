package dispatcher

import (
	"context"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/FabricioLanche/PharmaVida-Ingesta-v3/pkg/backoff"
	"github.com/FabricioLanche/PharmaVida-Ingesta-v3/pkg/circuitbreaker"
	"github.com/FabricioLanche/PharmaVida-Ingesta-v3/pkg/cloudevent"
)

// MemoryDispatcher is an in-memory async event dispatcher.
// Events are queued in a bounded channel and delivered by a worker pool.
// If the buffer is full, or the webhook circuit is open, events are dropped
// (logged + metric incremented).
type MemoryDispatcher struct {
	queue   chan *cloudevent.CloudEvent
	sender  *cloudevent.Sender
	breaker *circuitbreaker.Breaker
	retry   backoff.Policy
	config  MemoryConfig
	host    string
	logger  *slog.Logger
	metrics MetricsRecorder

	queued       atomic.Int64
	delivered    atomic.Int64
	failed       atomic.Int64
	dropped      atomic.Int64
	retriesTotal atomic.Int64

	// mu guards closed against concurrent Publish and Close.
	mu       sync.RWMutex
	closed   bool
	wg       sync.WaitGroup
	shutdown chan struct{}
}

// MetricsRecorder is an optional interface for recording dispatcher metrics.
type MetricsRecorder interface {
	RecordDispatcherDelivered(ctx context.Context, durationSeconds float64)
	RecordDispatcherFailed(ctx context.Context)
	RecordDispatcherDropped(ctx context.Context)
	RecordDispatcherQueueSize(ctx context.Context, size int64)
}

// NewMemory creates a dispatcher for cfg.URL and starts its workers.
func NewMemory(cfg MemoryConfig, metrics MetricsRecorder) (*MemoryDispatcher, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	d := &MemoryDispatcher{
		queue:    make(chan *cloudevent.CloudEvent, cfg.BufferSize),
		sender:   cloudevent.NewSender(cfg.HTTPTimeout, "ingesta-gateway"),
		config:   cfg,
		host:     extractHost(cfg.URL),
		metrics:  metrics,
		shutdown: make(chan struct{}),
	}
	d.logger = slog.With("component", "dispatcher", "destination", d.host)
	d.breaker = circuitbreaker.New(circuitbreaker.Config{
		Threshold: defaultBreakerThreshold,
		Cooldown:  defaultBreakerCooldown,
		OnStateChange: func(from, to circuitbreaker.State) {
			d.logger.Warn("Webhook circuit changed", "from", from.String(), "to", to.String())
		},
	})
	d.retry = backoff.Policy{
		Attempts:  cfg.MaxRetries + 1,
		Backoff:   backoff.Config{Initial: defaultInitialBackoff, Max: defaultMaxBackoff},
		Permanent: cloudevent.IsPermanent,
		OnRetry: func(retry int, err error) {
			d.retriesTotal.Add(1)
			d.logger.Debug("Retrying delivery", "retry", retry, "error", err)
		},
	}

	d.wg.Add(cfg.Workers)
	for range cfg.Workers {
		go d.worker()
	}

	if metrics != nil {
		go d.reportQueueSize()
	}

	d.logger.Info("Dispatcher started", "workers", cfg.Workers, "buffer", cfg.BufferSize)
	return d, nil
}

// reportQueueSize periodically reports the queue size metric.
func (d *MemoryDispatcher) reportQueueSize() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-d.shutdown:
			return
		case <-ticker.C:
			d.metrics.RecordDispatcherQueueSize(context.Background(), int64(len(d.queue)))
		}
	}
}

// Publish queues an event for async delivery.
func (d *MemoryDispatcher) Publish(event *cloudevent.CloudEvent) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}

	select {
	case d.queue <- event:
		d.queued.Add(1)
		return nil
	default:
		d.drop(event, "buffer full")
		return ErrBufferFull
	}
}

// Stats returns current dispatcher statistics.
func (d *MemoryDispatcher) Stats() Stats {
	return Stats{
		QueueDepth:   len(d.queue),
		Queued:       d.queued.Load(),
		Delivered:    d.delivered.Load(),
		Failed:       d.failed.Load(),
		Dropped:      d.dropped.Load(),
		RetriesTotal: d.retriesTotal.Load(),
		Breaker:      d.breaker.State().String(),
	}
}

// Close gracefully shuts down the dispatcher.
func (d *MemoryDispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.shutdown)
	d.mu.Unlock()

	d.logger.Info("Dispatcher shutting down", "queued", len(d.queue))

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("Dispatcher shutdown complete",
			"delivered", d.delivered.Load(),
			"failed", d.failed.Load(),
			"dropped", d.dropped.Load(),
		)
		return nil
	case <-ctx.Done():
		d.logger.Warn("Dispatcher shutdown timed out", "remaining", len(d.queue))
		return ctx.Err()
	}
}

// worker processes events from the queue.
func (d *MemoryDispatcher) worker() {
	defer d.wg.Done()

	for {
		select {
		case <-d.shutdown:
			d.drainQueue()
			return
		case event := <-d.queue:
			d.deliver(event)
		}
	}
}

// drainQueue delivers remaining events after shutdown signal.
func (d *MemoryDispatcher) drainQueue() {
	for {
		select {
		case event := <-d.queue:
			d.deliver(event)
		default:
			return
		}
	}
}

// deliver sends one event with retries, guarded by the webhook breaker.
func (d *MemoryDispatcher) deliver(event *cloudevent.CloudEvent) {
	if !d.breaker.Allow() {
		d.drop(event, "circuit open")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()

	start := time.Now()
	err := d.retry.Do(ctx, func(ctx context.Context) error {
		return d.sender.Send(ctx, d.config.URL, event, d.config.SigningKey)
	})
	if err != nil {
		d.breaker.RecordFailure()
		d.failed.Add(1)
		if d.metrics != nil {
			d.metrics.RecordDispatcherFailed(ctx)
		}
		d.logger.Warn("Delivery failed", "type", event.Type, "subject", event.Subject, "id", event.ID, "error", err)
		return
	}

	d.breaker.RecordSuccess()
	d.delivered.Add(1)
	if d.metrics != nil {
		d.metrics.RecordDispatcherDelivered(ctx, time.Since(start).Seconds())
	}
}

func (d *MemoryDispatcher) drop(event *cloudevent.CloudEvent, reason string) {
	d.dropped.Add(1)
	if d.metrics != nil {
		d.metrics.RecordDispatcherDropped(context.Background())
	}
	d.logger.Warn("Event dropped", "reason", reason, "type", event.Type, "subject", event.Subject, "id", event.ID)
}

// extractHost returns the host of rawURL for logging, never the full URL.
func extractHost(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return rawURL
	}
	return parsed.Host
}

var _ Dispatcher = (*MemoryDispatcher)(nil)
