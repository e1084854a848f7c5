// Package testutil provides polling helpers for tests that observe
// asynchronous work (dispatcher deliveries, servers coming up).
package testutil

import (
	"net/http"
	"testing"
	"time"
)

// WaitOptions configures WaitFor behavior.
type WaitOptions struct {
	Timeout  time.Duration
	Interval time.Duration
	Message  string
}

// WaitOption is a functional option for WaitFor.
type WaitOption func(*WaitOptions)

// WithTimeout sets the maximum wait time (default: 30s).
func WithTimeout(d time.Duration) WaitOption {
	return func(o *WaitOptions) {
		o.Timeout = d
	}
}

// WithInterval sets the polling interval (default: 50ms).
func WithInterval(d time.Duration) WaitOption {
	return func(o *WaitOptions) {
		o.Interval = d
	}
}

// WithMessage sets the failure message used by the Must variants.
func WithMessage(msg string) WaitOption {
	return func(o *WaitOptions) {
		o.Message = msg
	}
}

func defaultOptions() WaitOptions {
	return WaitOptions{
		Timeout:  30 * time.Second,
		Interval: 50 * time.Millisecond,
		Message:  "timed out waiting for condition",
	}
}

// WaitFor polls until condition returns true or timeout is reached.
// The condition is always evaluated at least once.
func WaitFor(tb testing.TB, condition func() bool, opts ...WaitOption) bool {
	tb.Helper()
	return wait(condition, resolve(opts))
}

// MustWaitFor polls until condition returns true or fails the test on timeout.
func MustWaitFor(tb testing.TB, condition func() bool, opts ...WaitOption) {
	tb.Helper()
	o := resolve(opts)
	if !wait(condition, o) {
		tb.Fatalf("%s (after %v)", o.Message, o.Timeout)
	}
}

// MustWaitForStatus polls url with GET until it answers with status.
func MustWaitForStatus(tb testing.TB, url string, status int, opts ...WaitOption) {
	tb.Helper()
	client := &http.Client{Timeout: 2 * time.Second}
	o := resolve(append([]WaitOption{WithMessage("timed out waiting for " + url)}, opts...))
	ok := wait(func() bool {
		resp, err := client.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == status
	}, o)
	if !ok {
		tb.Fatalf("%s (after %v)", o.Message, o.Timeout)
	}
}

func resolve(opts []WaitOption) WaitOptions {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func wait(condition func() bool, o WaitOptions) bool {
	deadline := time.Now().Add(o.Timeout)
	for {
		if condition() {
			return true
		}
		if !time.Now().Before(deadline) {
			return false
		}
		time.Sleep(o.Interval)
	}
}
