package alert

import (
	"fmt"
	"time"
)

// UnknownField is the sentinel used for absent optional trigger fields
const UnknownField = "unknown"

// RejectionError explains why a trigger was rejected by validation.
// Rejections are terminal for the trigger: they are logged by the caller and
// never reach the lifecycle manager.
type RejectionError struct {
	Reason string // "missing_field:<name>" or "invalid_severity:<value>"
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("trigger rejected: %s", e.Reason)
}

func missingField(name string) *RejectionError {
	return &RejectionError{Reason: "missing_field:" + name}
}

// Validate checks an inbound trigger and returns a normalized input record.
// Required: equipmentId, a known severity, and a message. Optional fields
// default to the "unknown" sentinel. Validate is a pure function.
func Validate(t Trigger) (Input, error) {
	if t.EquipmentID == "" {
		return Input{}, missingField("equipmentId")
	}
	if t.Severity == "" {
		return Input{}, missingField("severity")
	}
	if t.Message == "" {
		return Input{}, missingField("message")
	}

	severity, err := ParseSeverity(t.Severity)
	if err != nil {
		return Input{}, &RejectionError{Reason: "invalid_severity:" + t.Severity}
	}

	in := Input{
		EquipmentID: t.EquipmentID,
		Sensor:      t.Sensor,
		Parameter:   t.Parameter,
		Severity:    severity,
		Message:     t.Message,
		Value:       t.Value,
		Threshold:   t.Threshold,
		Timestamp:   t.Timestamp,
		Location:    t.Location,
		Category:    t.Category,
	}

	if in.Sensor == "" {
		in.Sensor = UnknownField
	}
	if in.Parameter == "" {
		in.Parameter = UnknownField
	}
	if in.Location == "" {
		in.Location = UnknownField
	}
	if in.Category == "" {
		in.Category = UnknownField
	}
	if in.Timestamp.IsZero() {
		in.Timestamp = time.Now().UTC()
	}

	return in, nil
}
