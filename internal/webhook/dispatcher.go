// ABOUTME: Fire-and-forget webhook delivery of session events to one receiver.
// ABOUTME: Bounded goroutine spawn per event; overload sheds instead of queuing.

package webhook

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Dispatcher delivers events to the configured webhook receiver.
// Emit never blocks the caller: each delivery runs in its own goroutine,
// bounded by a semaphore. There is no retry and no queue; when the receiver
// is unreachable or all slots are busy, the event is dropped and logged.
type Dispatcher struct {
	defaultURL string
	client     *http.Client
	logger     *slog.Logger
	sem        chan struct{}
	wg         sync.WaitGroup
}

// Options configures a Dispatcher.
type Options struct {
	// DefaultURL is the process-wide receiver. Empty disables dispatch for
	// events that carry no per-session override.
	DefaultURL string
	// Timeout bounds each outbound POST. Zero means 10s.
	Timeout time.Duration
	// MaxInFlight caps concurrent deliveries. Zero means 32.
	MaxInFlight int
}

// New creates a Dispatcher. Pass nil logger for default.
func New(opts Options, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxInFlight == 0 {
		opts.MaxInFlight = 32
	}
	return &Dispatcher{
		defaultURL: opts.DefaultURL,
		client:     &http.Client{Timeout: opts.Timeout},
		logger:     logger.With("component", "webhook"),
		sem:        make(chan struct{}, opts.MaxInFlight),
	}
}

// Emit serializes the event and POSTs it to the receiver in the background.
// The call returns immediately. If no receiver URL is configured (neither the
// event's override nor the process default), the event is skipped with a log
// line and no network I/O occurs.
func (d *Dispatcher) Emit(evt Event) {
	url := evt.TargetURL
	if url == "" {
		url = d.defaultURL
	}
	if url == "" {
		d.logger.Info("webhook URL not configured, skipping event",
			"event", evt.Kind,
			"session_id", evt.SessionID,
		)
		return
	}

	select {
	case d.sem <- struct{}{}:
	default:
		// All delivery slots busy. Shedding is deliberate: a slow receiver
		// must not turn into unbounded memory growth here.
		d.logger.Warn("webhook dispatch overloaded, shedding event",
			"event", evt.Kind,
			"session_id", evt.SessionID,
		)
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() { <-d.sem }()
		d.deliver(url, evt)
	}()
}

// deliver performs one POST and logs the outcome.
func (d *Dispatcher) deliver(url string, evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	body, err := json.Marshal(envelope{
		Event:     evt.Kind,
		SessionID: evt.SessionID,
		Phone:     evt.Phone,
		Data:      evt.Data,
		Timestamp: evt.Timestamp,
	})
	if err != nil {
		d.logger.Error("failed to marshal webhook event",
			"event", evt.Kind,
			"session_id", evt.SessionID,
			"error", err,
		)
		return
	}

	resp, err := d.client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		d.logger.Error("webhook delivery failed",
			"event", evt.Kind,
			"session_id", evt.SessionID,
			"error", err,
		)
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		d.logger.Error("webhook receiver rejected event",
			"event", evt.Kind,
			"session_id", evt.SessionID,
			"status", resp.StatusCode,
		)
		return
	}

	d.logger.Info("webhook delivered",
		"event", evt.Kind,
		"session_id", evt.SessionID,
	)
}

// Close waits for in-flight deliveries to finish. Events emitted after Close
// starts may still be delivered; callers stop emitting before closing.
func (d *Dispatcher) Close() {
	d.wg.Wait()
}
