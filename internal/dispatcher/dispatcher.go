// Package dispatcher delivers run notifications to the configured webhook
// asynchronously, so a slow or failing receiver never delays a run.
package dispatcher

import (
	"context"
	"errors"

	"github.com/FabricioLanche/PharmaVida-Ingesta-v3/pkg/cloudevent"
)

var (
	// ErrBufferFull is returned when the queue is full and the event is dropped.
	ErrBufferFull = errors.New("dispatcher buffer full, event dropped")
	// ErrClosed is returned by Publish after Close.
	ErrClosed = errors.New("dispatcher is closed")
)

// Dispatcher handles async delivery of run events.
type Dispatcher interface {
	// Publish queues an event for delivery. Non-blocking.
	Publish(event *cloudevent.CloudEvent) error

	// Stats returns current dispatcher statistics.
	Stats() Stats

	// Close stops accepting events and delivers what is queued.
	// The context deadline controls how long to wait for drain.
	Close(ctx context.Context) error
}

// Stats holds dispatcher statistics.
type Stats struct {
	QueueDepth   int    // current queue size
	Queued       int64  // total events queued
	Delivered    int64  // successful deliveries
	Failed       int64  // failed after retries
	Dropped      int64  // dropped due to full buffer or open circuit
	RetriesTotal int64  // total retry attempts
	Breaker      string // webhook circuit state
}
