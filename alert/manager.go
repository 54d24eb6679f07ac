package alert

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/c360/plantwatch/errors"
	"github.com/c360/plantwatch/metric"
)

// Escalator arms and cancels time-delayed escalation steps for an alert.
// Implemented by the escalation scheduler.
type Escalator interface {
	// ImmediateChannels returns the channels dispatched at creation time
	// for the given severity.
	ImmediateChannels(severity Severity) []string
	// Arm schedules the delayed escalation steps for an escalate-eligible
	// alert.
	Arm(a Alert)
	// Cancel stops all pending steps for an alert. Safe to call for unknown
	// ids and after steps have fired.
	Cancel(alertID string)
}

// Notifier fans a rendered alert out to notification channels. Implemented
// by the notification dispatcher. Dispatch must not block the caller beyond
// goroutine startup; sends run off the lifecycle timing path.
type Notifier interface {
	Dispatch(ctx context.Context, a Alert, channels []string)
}

// ManagerDeps holds runtime dependencies for the lifecycle manager
type ManagerDeps struct {
	Escalator Escalator
	Notifier  Notifier
	Publisher Publisher // optional
	Metrics   *metric.Metrics
	Logger    *slog.Logger
}

// Manager owns the canonical state of every alert: the active set keyed by
// the dedup tuple and the append-only history of cleared alerts. All state
// transitions happen under one lock so concurrent triggers for the same
// tuple can never create two records.
type Manager struct {
	mu      sync.Mutex
	active  map[dedupKey]*Alert
	byID    map[string]dedupKey
	history []Alert

	escalator Escalator
	notifier  Notifier
	publisher Publisher
	metrics   *metric.Metrics
	logger    *slog.Logger
}

// NewManager creates a lifecycle manager
func NewManager(deps ManagerDeps) (*Manager, error) {
	if deps.Escalator == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "alert-manager", "NewManager", "escalator validation")
	}
	if deps.Notifier == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "alert-manager", "NewManager", "notifier validation")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		active:    make(map[dedupKey]*Alert),
		byID:      make(map[string]dedupKey),
		escalator: deps.Escalator,
		notifier:  deps.Notifier,
		publisher: deps.Publisher,
		metrics:   deps.Metrics,
		logger:    logger.With("component", "alert-manager"),
	}, nil
}

// HandleTrigger processes a validated trigger. A trigger whose dedup tuple
// already has an active alert updates that record in place; otherwise a new
// alert is created, immediate channels are dispatched, and escalation is
// armed for escalate-eligible severities. Returns a copy of the resulting
// alert and whether it was newly created.
func (m *Manager) HandleTrigger(ctx context.Context, in Input) (Alert, bool) {
	now := time.Now().UTC()

	m.mu.Lock()
	if existing, ok := m.active[in.key()]; ok {
		// Duplicate trigger: merge, no new dispatch round
		existing.Value = in.Value
		existing.Message = in.Message
		existing.Threshold = in.Threshold
		existing.UpdatedAt = now
		if in.Severity.AtLeast(existing.Severity) {
			existing.Severity = in.Severity
		}
		merged := existing.clone()
		m.mu.Unlock()

		if m.metrics != nil {
			m.metrics.AlertsDeduplicated.Inc()
		}
		m.publish(EventUpdated, merged)
		m.logger.Debug("Merged duplicate trigger",
			"alert_id", merged.ID,
			"equipment", merged.EquipmentID,
			"sensor", merged.Sensor,
			"parameter", merged.Parameter)
		return merged, false
	}

	a := &Alert{
		ID:          uuid.NewString(),
		EquipmentID: in.EquipmentID,
		Sensor:      in.Sensor,
		Parameter:   in.Parameter,
		Severity:    in.Severity,
		Message:     in.Message,
		Value:       in.Value,
		Threshold:   in.Threshold,
		Location:    in.Location,
		Category:    in.Category,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.active[in.key()] = a
	m.byID[a.ID] = in.key()
	created := a.clone()
	activeCount := len(m.active)
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.AlertsCreated.Inc()
		m.metrics.AlertsActive.Set(float64(activeCount))
	}

	m.logger.Info("Alert created",
		"alert_id", created.ID,
		"equipment", created.EquipmentID,
		"sensor", created.Sensor,
		"severity", created.Severity)

	m.notifier.Dispatch(ctx, created, m.escalator.ImmediateChannels(created.Severity))
	if created.Severity.Escalates() {
		m.escalator.Arm(created)
	}
	m.publish(EventCreated, created)
	return created, true
}

// Acknowledge stamps the acknowledgement and cancels all pending escalation
// steps for the alert. Acknowledging an already-acknowledged alert is a
// no-op; a cleared or unknown alert is an error.
func (m *Manager) Acknowledge(id, by, reason string) error {
	now := time.Now().UTC()

	m.mu.Lock()
	a, err := m.lookupLocked(id)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if a.Acknowledged {
		m.mu.Unlock()
		return nil
	}
	a.Acknowledged = true
	a.AcknowledgedBy = by
	a.AcknowledgedAt = now
	a.UpdatedAt = now
	acked := a.clone()
	m.mu.Unlock()

	// Cancel after the state is stamped: a step that races the cancel will
	// state-check in Escalate and no-op.
	m.escalator.Cancel(id)
	m.publish(EventAcknowledged, acked)
	m.logger.Info("Alert acknowledged", "alert_id", id, "by", by, "reason", reason)
	return nil
}

// Clear terminates the alert: it is removed from the active set, stamped,
// and appended to the immutable history. Pending escalation steps are
// cancelled. Clearing an unknown alert is an error; history entries are
// never cleared twice because they leave the active set.
func (m *Manager) Clear(id, by, reason string) error {
	now := time.Now().UTC()

	m.mu.Lock()
	a, err := m.lookupLocked(id)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	key := m.byID[id]
	a.Cleared = true
	a.ClearedBy = by
	a.ClearedAt = now
	a.UpdatedAt = now
	if reason != "" && a.Message != reason {
		a.Message = a.Message + " (cleared: " + reason + ")"
	}
	delete(m.active, key)
	delete(m.byID, id)
	m.history = append(m.history, a.clone())
	cleared := a.clone()
	activeCount := len(m.active)
	m.mu.Unlock()

	m.escalator.Cancel(id)

	if m.metrics != nil {
		m.metrics.AlertsCleared.Inc()
		m.metrics.AlertsActive.Set(float64(activeCount))
	}
	m.publish(EventCleared, cleared)
	m.logger.Info("Alert cleared", "alert_id", id, "by", by, "reason", reason)
	return nil
}

// Escalate is the scheduler's re-entry point when a delayed step fires. The
// alert state is checked under the lock immediately before the level
// increment: a step firing after acknowledge or clear is a detected no-op,
// never a crash. Returns the updated copy and true when the escalation
// applied.
func (m *Manager) Escalate(id string) (Alert, bool) {
	now := time.Now().UTC()

	m.mu.Lock()
	a, err := m.lookupLocked(id)
	if err != nil || a.Acknowledged {
		m.mu.Unlock()
		m.logger.Debug("Ignoring stale escalation", "alert_id", id)
		return Alert{}, false
	}
	a.EscalationLevel++
	a.UpdatedAt = now
	escalated := a.clone()
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.EscalationsFired.Inc()
	}
	m.publish(EventEscalated, escalated)
	m.logger.Info("Alert escalated",
		"alert_id", id,
		"level", escalated.EscalationLevel,
		"severity", escalated.Severity)
	return escalated, true
}

// RecordNotification appends a delivery attempt to the alert's notification
// log. Attempts landing after the alert was cleared are dropped: history is
// immutable.
func (m *Manager) RecordNotification(id string, rec NotificationRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, err := m.lookupLocked(id)
	if err != nil {
		m.logger.Debug("Dropping notification record for inactive alert",
			"alert_id", id, "channel", rec.Channel)
		return
	}
	a.NotificationsSent = append(a.NotificationsSent, rec)
}

// Get returns a copy of an active alert by id
func (m *Manager) Get(id string) (Alert, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, err := m.lookupLocked(id)
	if err != nil {
		return Alert{}, false
	}
	return a.clone(), true
}

// Active returns copies of all active alerts
func (m *Manager) Active() []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Alert, 0, len(m.active))
	for _, a := range m.active {
		out = append(out, a.clone())
	}
	return out
}

// ActiveCount returns the size of the active set
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// History returns copies of all cleared alerts, oldest first
func (m *Manager) History() []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Alert, len(m.history))
	for i := range m.history {
		out[i] = m.history[i].clone()
	}
	return out
}

// lookupLocked resolves an active alert by id. Caller holds the lock.
func (m *Manager) lookupLocked(id string) (*Alert, error) {
	key, ok := m.byID[id]
	if !ok {
		return nil, errors.ErrAlertNotFound
	}
	a, ok := m.active[key]
	if !ok {
		return nil, errors.ErrAlertNotFound
	}
	return a, nil
}

// publish emits a lifecycle event if a publisher is configured
func (m *Manager) publish(eventType EventType, a Alert) {
	if m.publisher == nil {
		return
	}
	m.publisher.PublishEvent(Event{
		Type:      eventType,
		Alert:     a,
		Timestamp: time.Now().UTC(),
	})
}
