// Package alert implements the alert-trigger validator and the lifecycle
// manager that owns the canonical state of every alert from creation through
// escalation, acknowledgement, and clearing.
package alert

import (
	"fmt"
	"time"
)

// Severity is the alert severity, totally ordered by priority
type Severity string

// Known severities, from lowest to highest priority
const (
	SeverityInfo      Severity = "info"
	SeverityWarning   Severity = "warning"
	SeverityCritical  Severity = "critical"
	SeverityEmergency Severity = "emergency"
)

// severityRank orders severities for comparison
var severityRank = map[Severity]int{
	SeverityInfo:      0,
	SeverityWarning:   1,
	SeverityCritical:  2,
	SeverityEmergency: 3,
}

// ParseSeverity validates a severity string
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(s)
	if _, ok := severityRank[sev]; !ok {
		return "", fmt.Errorf("invalid_severity:%s", s)
	}
	return sev, nil
}

// AtLeast reports whether s is at or above the priority of other
func (s Severity) AtLeast(other Severity) bool {
	return severityRank[s] >= severityRank[other]
}

// Escalates reports whether alerts of this severity are escalate-eligible.
// Info alerts are recorded and dispatched once but never escalate.
func (s Severity) Escalates() bool {
	return s.AtLeast(SeverityWarning)
}

// Trigger is the raw inbound alert-trigger record, as received from the
// message bus on alerts.{equipmentId}.{sensor}.
//
// Parameter distinguishes independent alarm conditions on the same sensor:
// a sensor with separate low and high limits on one value must populate
// Parameter distinctly for each (for example "level_low" and "level_high"),
// or the two conditions will deduplicate into one alert.
type Trigger struct {
	EquipmentID string    `json:"equipmentId"`
	Sensor      string    `json:"sensor,omitempty"`
	Parameter   string    `json:"parameter,omitempty"`
	Severity    string    `json:"severity"`
	Message     string    `json:"message"`
	Value       float64   `json:"value,omitempty"`
	Threshold   float64   `json:"threshold,omitempty"`
	Timestamp   time.Time `json:"timestamp,omitempty"`
	Location    string    `json:"location,omitempty"`
	Category    string    `json:"category,omitempty"`
}

// Input is a validated, normalized trigger ready for the lifecycle manager
type Input struct {
	EquipmentID string
	Sensor      string
	Parameter   string
	Severity    Severity
	Message     string
	Value       float64
	Threshold   float64
	Timestamp   time.Time
	Location    string
	Category    string
}

// dedupKey identifies "the same alert condition" across repeated triggers
type dedupKey struct {
	equipmentID string
	sensor      string
	parameter   string
}

func (in Input) key() dedupKey {
	return dedupKey{equipmentID: in.EquipmentID, sensor: in.Sensor, parameter: in.Parameter}
}

// NotificationRecord is one append-only entry in an alert's delivery log
type NotificationRecord struct {
	Channel   string    `json:"channel"`
	Timestamp time.Time `json:"timestamp"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
}

// Alert is the canonical alert record. At most one active (not cleared)
// alert exists per (equipmentId, sensor, parameter) tuple; repeated triggers
// for the tuple update the existing record.
type Alert struct {
	ID          string   `json:"id"`
	EquipmentID string   `json:"equipmentId"`
	Sensor      string   `json:"sensor"`
	Parameter   string   `json:"parameter"`
	Severity    Severity `json:"severity"`
	Message     string   `json:"message"`
	Value       float64  `json:"value"`
	Threshold   float64  `json:"threshold"`
	Location    string   `json:"location,omitempty"`
	Category    string   `json:"category,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Acknowledged   bool      `json:"acknowledged"`
	AcknowledgedBy string    `json:"acknowledgedBy,omitempty"`
	AcknowledgedAt time.Time `json:"acknowledgedAt,omitempty"`

	Cleared   bool      `json:"cleared"`
	ClearedBy string    `json:"clearedBy,omitempty"`
	ClearedAt time.Time `json:"clearedAt,omitempty"`

	EscalationLevel   int                  `json:"escalationLevel"`
	NotificationsSent []NotificationRecord `json:"notificationsSent"`
}

// Active reports whether the alert is still in the active set
func (a *Alert) Active() bool {
	return !a.Cleared
}

// clone returns a deep copy safe to hand outside the manager's lock
func (a *Alert) clone() Alert {
	cp := *a
	cp.NotificationsSent = make([]NotificationRecord, len(a.NotificationsSent))
	copy(cp.NotificationsSent, a.NotificationsSent)
	return cp
}
