package alert

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/c360/plantwatch/natsclient"
)

// EventType identifies a lifecycle transition
type EventType string

// Lifecycle event types
const (
	EventCreated      EventType = "alert.created"
	EventUpdated      EventType = "alert.updated"
	EventEscalated    EventType = "alert.escalated"
	EventAcknowledged EventType = "alert.acknowledged"
	EventCleared      EventType = "alert.cleared"
)

// Event is a typed domain event emitted on every lifecycle transition
type Event struct {
	Type      EventType `json:"type"`
	Alert     Alert     `json:"alert"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher delivers lifecycle events to interested subscribers. The
// lifecycle manager never blocks on a publisher.
type Publisher interface {
	PublishEvent(event Event)
}

// NATSPublisher publishes lifecycle events on the message bus, one subject
// per event type (for example "alert.created"). Consumers subscribe with
// "alert.>".
type NATSPublisher struct {
	client *natsclient.Client
	logger *slog.Logger
}

// NewNATSPublisher creates an event publisher over the shared NATS client
func NewNATSPublisher(client *natsclient.Client, logger *slog.Logger) *NATSPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSPublisher{
		client: client,
		logger: logger.With("component", "alert-events"),
	}
}

// PublishEvent publishes the event. Publish failures are logged, never
// propagated: event delivery is best-effort and must not disturb the
// lifecycle transition that produced the event.
func (p *NATSPublisher) PublishEvent(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("Failed to marshal lifecycle event", "type", event.Type, "error", err)
		return
	}
	if err := p.client.Publish(string(event.Type), data); err != nil {
		p.logger.Warn("Failed to publish lifecycle event",
			"type", event.Type, "alert_id", event.Alert.ID, "error", err)
	}
}
