// Package ingest receives alert triggers from the message bus, validates
// them, and hands accepted triggers to the alert lifecycle manager. Rejected
// triggers are counted and logged, with the rejection log deduplicated so a
// chattering producer cannot flood the service log.
package ingest

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360/plantwatch/alert"
	"github.com/c360/plantwatch/component"
	"github.com/c360/plantwatch/errors"
	"github.com/c360/plantwatch/metric"
	"github.com/c360/plantwatch/natsclient"
	"github.com/c360/plantwatch/pkg/cache"
)

const (
	// TriggerSubject is the wildcard subscription covering all trigger
	// subjects of the form alerts.{equipmentId}.{sensor}
	TriggerSubject = "alerts.>"
	// QueueGroup shares the trigger load across scaled instances
	QueueGroup = "plantwatch-ingest"

	// rejectionLogSize bounds the once-per-cause rejection log
	rejectionLogSize = 512
)

// TriggerHandler accepts validated triggers. Implemented by the alert
// lifecycle manager.
type TriggerHandler interface {
	HandleTrigger(ctx context.Context, in alert.Input) (alert.Alert, bool)
}

// Subscriber is the trigger ingress component. It implements
// component.LifecycleComponent.
type Subscriber struct {
	client  *natsclient.Client
	handler TriggerHandler
	metrics *metric.Metrics
	logger  *slog.Logger

	// rejectionLog suppresses repeat log lines per (subject, reason)
	rejectionLog *cache.LRU[struct{}]
	sub          *nats.Subscription

	mu         sync.Mutex
	state      component.State
	startedAt  time.Time
	lastCheck  time.Time
	errorCount int
	lastError  string
}

// NewSubscriber creates the trigger ingress component
func NewSubscriber(client *natsclient.Client, handler TriggerHandler, metrics *metric.Metrics, logger *slog.Logger) *Subscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscriber{
		client:  client,
		handler: handler,
		metrics: metrics,
		logger:  logger.With("component", "ingest"),
		state:   component.StateCreated,
	}
}

// Meta implements component.Discoverable
func (s *Subscriber) Meta() component.Metadata {
	return component.Metadata{
		Name:        "ingest",
		Type:        "subscriber",
		Description: "alert trigger ingress from the message bus",
		Version:     "1.0.0",
	}
}

// Health implements component.Discoverable
func (s *Subscriber) Health() component.HealthStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := component.HealthStatus{
		Healthy:    s.state == component.StateStarted && s.client.Status() == natsclient.StatusConnected,
		LastCheck:  s.lastCheck,
		ErrorCount: s.errorCount,
		LastError:  s.lastError,
	}
	if !s.startedAt.IsZero() {
		status.Uptime = time.Since(s.startedAt)
	}
	return status
}

// Initialize validates dependencies and builds the rejection log
func (s *Subscriber) Initialize() error {
	if s.client == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "ingest", "Initialize", "client validation")
	}
	if s.handler == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "ingest", "Initialize", "handler validation")
	}

	log, err := cache.NewLRU[struct{}](rejectionLogSize, nil)
	if err != nil {
		return errors.Wrap(err, "ingest", "Initialize", "rejection log creation")
	}
	s.rejectionLog = log

	s.mu.Lock()
	s.state = component.StateInitialized
	s.mu.Unlock()
	return nil
}

// Start subscribes to the trigger subject within the ingest queue group
func (s *Subscriber) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != component.StateInitialized {
		s.mu.Unlock()
		return errors.WrapInvalid(errors.ErrNotInitialized, "ingest", "Start", "state check")
	}
	s.mu.Unlock()

	sub, err := s.client.QueueSubscribe(TriggerSubject, QueueGroup, func(msg *nats.Msg) {
		s.handleMessage(ctx, msg)
	})
	if err != nil {
		s.mu.Lock()
		s.state = component.StateFailed
		s.mu.Unlock()
		return errors.Wrap(err, "ingest", "Start", "trigger subscription")
	}

	s.mu.Lock()
	s.sub = sub
	s.state = component.StateStarted
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("Trigger ingress started", "subject", TriggerSubject, "queue", QueueGroup)
	return nil
}

// Stop unsubscribes from the trigger subject
func (s *Subscriber) Stop(time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != component.StateStarted {
		return nil
	}
	if s.sub != nil {
		if err := s.sub.Unsubscribe(); err != nil {
			s.logger.Warn("Failed to unsubscribe trigger ingress", "error", err)
		}
		s.sub = nil
	}
	s.state = component.StateStopped
	s.logger.Info("Trigger ingress stopped")
	return nil
}

// handleMessage decodes, validates, and forwards one trigger message
func (s *Subscriber) handleMessage(ctx context.Context, msg *nats.Msg) {
	s.mu.Lock()
	s.lastCheck = time.Now()
	s.mu.Unlock()

	var trigger alert.Trigger
	if err := json.Unmarshal(msg.Data, &trigger); err != nil {
		s.reject(msg.Subject, "malformed_json", err)
		return
	}

	in, err := alert.Validate(trigger)
	if err != nil {
		reason := "invalid"
		var rej *alert.RejectionError
		if stderrors.As(err, &rej) {
			reason = rej.Reason
		}
		s.reject(msg.Subject, reason, err)
		return
	}

	a, created := s.handler.HandleTrigger(ctx, in)
	s.logger.Debug("Trigger accepted",
		"subject", msg.Subject,
		"alert_id", a.ID,
		"created", created)
}

// reject counts a rejected trigger and logs it once per (subject, reason)
func (s *Subscriber) reject(subject, reason string, err error) {
	s.mu.Lock()
	s.errorCount++
	s.lastError = err.Error()
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.TriggersRejected.WithLabelValues(reason).Inc()
	}

	key := subject + "|" + reason
	if _, seen := s.rejectionLog.Get(key); seen {
		return
	}
	s.rejectionLog.Set(key, struct{}{})
	s.logger.Warn("Rejected alert trigger",
		"subject", subject,
		"reason", reason,
		"error", err)
}
