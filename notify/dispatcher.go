package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/c360/plantwatch/alert"
	"github.com/c360/plantwatch/metric"
	"github.com/c360/plantwatch/pkg/retry"
)

const (
	// DefaultAttemptTimeout bounds one delivery attempt on one channel
	DefaultAttemptTimeout = 10 * time.Second
	// DefaultMaxAttempts is the per-channel retry budget
	DefaultMaxAttempts = 3
)

// Recorder receives the outcome of every delivery attempt. Implemented by
// the alert lifecycle manager.
type Recorder interface {
	RecordNotification(alertID string, rec alert.NotificationRecord)
}

// DispatcherOption configures a Dispatcher
type DispatcherOption func(*Dispatcher)

// WithAttemptTimeout overrides the per-attempt delivery timeout
func WithAttemptTimeout(d time.Duration) DispatcherOption {
	return func(dp *Dispatcher) { dp.attemptTimeout = d }
}

// WithRetry overrides the per-channel retry policy
func WithRetry(cfg retry.Config) DispatcherOption {
	return func(dp *Dispatcher) { dp.retry = cfg }
}

// Dispatcher fans one alert out to a set of named channels, each on its own
// goroutine with an independent timeout and retry budget. Channel outcomes
// are appended to the alert's notification log through the Recorder; a
// failed or slow channel never blocks the others. Dispatcher implements
// alert.Notifier.
type Dispatcher struct {
	mu       sync.RWMutex
	channels map[string]Channel

	recorder Recorder
	metrics  *metric.Metrics
	logger   *slog.Logger

	attemptTimeout time.Duration
	retry          retry.Config
	wg             sync.WaitGroup
}

// NewDispatcher creates a dispatcher over the given channels
func NewDispatcher(channels []Channel, recorder Recorder, metrics *metric.Metrics, logger *slog.Logger, opts ...DispatcherOption) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		channels:       make(map[string]Channel, len(channels)),
		recorder:       recorder,
		metrics:        metrics,
		logger:         logger.With("component", "notify-dispatcher"),
		attemptTimeout: DefaultAttemptTimeout,
		retry: retry.Config{
			MaxAttempts:  DefaultMaxAttempts,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     5 * time.Second,
			Multiplier:   2.0,
			AddJitter:    true,
		},
	}
	for _, ch := range channels {
		d.channels[ch.Name()] = ch
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SetRecorder installs the outcome recorder. The dispatcher and the alert
// manager reference each other, so whichever is built first gets its
// counterpart injected afterwards.
func (d *Dispatcher) SetRecorder(r Recorder) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.recorder = r
}

// Register adds or replaces a channel
func (d *Dispatcher) Register(ch Channel) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.channels[ch.Name()] = ch
}

// Dispatch implements alert.Notifier. Each requested channel runs on its own
// goroutine; the call returns once the goroutines are started.
func (d *Dispatcher) Dispatch(ctx context.Context, a alert.Alert, channels []string) {
	for _, name := range channels {
		d.mu.RLock()
		ch, ok := d.channels[name]
		d.mu.RUnlock()

		if !ok {
			d.logger.Warn("Unknown notification channel requested",
				"channel", name, "alert_id", a.ID)
			continue
		}
		if !ch.Enabled() {
			d.logger.Debug("Skipping disabled channel", "channel", name, "alert_id", a.ID)
			continue
		}

		d.wg.Add(1)
		go func(ch Channel) {
			defer d.wg.Done()
			d.deliver(ctx, ch, a)
		}(ch)
	}
}

// deliver runs one channel's delivery with the retry budget, then records
// the outcome.
func (d *Dispatcher) deliver(ctx context.Context, ch Channel, a alert.Alert) {
	start := time.Now()
	err := retry.Do(ctx, d.retry, func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, d.attemptTimeout)
		defer cancel()
		return ch.Send(attemptCtx, a)
	})
	elapsed := time.Since(start)

	rec := alert.NotificationRecord{
		Channel:   ch.Name(),
		Timestamp: time.Now().UTC(),
		Success:   err == nil,
	}
	outcome := "success"
	if err != nil {
		rec.Error = err.Error()
		outcome = "failure"
		d.logger.Error("Notification delivery failed",
			"channel", ch.Name(),
			"alert_id", a.ID,
			"elapsed", elapsed,
			"error", err)
	} else {
		d.logger.Info("Notification delivered",
			"channel", ch.Name(),
			"alert_id", a.ID,
			"elapsed", elapsed)
	}

	d.mu.RLock()
	recorder := d.recorder
	d.mu.RUnlock()
	if recorder != nil {
		recorder.RecordNotification(a.ID, rec)
	}
	if d.metrics != nil {
		d.metrics.NotificationAttempts.WithLabelValues(ch.Name(), outcome).Inc()
		d.metrics.NotificationDuration.Observe(elapsed.Seconds())
	}
}

// Wait blocks until all in-flight deliveries complete. Used at shutdown.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
