package notify

import (
	"context"
	"log/slog"

	"github.com/c360/plantwatch/alert"
)

// Marker is a pseudo-channel that records an escalation milestone (for
// example the management-escalation or broadcast step) in the notification
// log and the service log without delivering anywhere. Always enabled.
type Marker struct {
	name   string
	logger *slog.Logger
}

// NewMarker creates a marker channel under the given name
func NewMarker(name string, logger *slog.Logger) *Marker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Marker{name: name, logger: logger.With("component", "notify-marker")}
}

// Name implements Channel
func (m *Marker) Name() string { return m.name }

// Enabled implements Channel
func (m *Marker) Enabled() bool { return true }

// Send logs the milestone
func (m *Marker) Send(_ context.Context, a alert.Alert) error {
	m.logger.Warn("Escalation milestone reached",
		"marker", m.name,
		"alert_id", a.ID,
		"equipment", a.EquipmentID,
		"severity", a.Severity,
		"level", a.EscalationLevel)
	return nil
}
