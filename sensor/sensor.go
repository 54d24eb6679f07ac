// Package sensor defines the normalized sensor descriptor produced by
// protocol adapters and the equipment groupings derived from it.
package sensor

import (
	"fmt"
	"sort"
	"time"
)

// Status represents the liveness state of a sensor
type Status string

const (
	// StatusActive means the sensor was seen in a recent discovery cycle
	StatusActive Status = "active"
	// StatusOffline means the sensor has not been refreshed within the
	// configured offline threshold
	StatusOffline Status = "offline"
	// StatusSimulated means the descriptor came from a simulated source,
	// never from live hardware
	StatusSimulated Status = "simulated"
)

// Valid reports whether s is a known status value
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusOffline, StatusSimulated:
		return true
	}
	return false
}

// Thresholds holds the warning and critical bands for a measured value.
// A zero bound means the bound is not configured.
type Thresholds struct {
	WarningLow   float64 `json:"warning_low,omitempty"`
	WarningHigh  float64 `json:"warning_high,omitempty"`
	CriticalLow  float64 `json:"critical_low,omitempty"`
	CriticalHigh float64 `json:"critical_high,omitempty"`
}

// Descriptor is the normalized sensor record shared across adapters, the
// registry, and external consumers.
//
// ID is globally unique and stable across rediscovery; it is never reused
// for a different physical sensor. LastSeenAt and Status are mutated only by
// the discovery orchestrator.
type Descriptor struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Type         string     `json:"type"` // semantic category: temperature, pressure, status, ...
	Unit         string     `json:"unit,omitempty"`
	Min          float64    `json:"min,omitempty"`
	Max          float64    `json:"max,omitempty"`
	Source       string     `json:"source"` // adapter that produced the descriptor
	Location     string     `json:"location,omitempty"`
	EquipmentID  string     `json:"equipment_id"`
	Category     string     `json:"category,omitempty"`
	Thresholds   Thresholds `json:"thresholds,omitempty"`
	Status       Status     `json:"status"`
	DiscoveredAt time.Time  `json:"discovered_at"`
	LastSeenAt   time.Time  `json:"last_seen_at"`
}

// Validate checks the invariant fields of a descriptor
func (d *Descriptor) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("descriptor missing id")
	}
	if d.Source == "" {
		return fmt.Errorf("descriptor %s missing source", d.ID)
	}
	if d.EquipmentID == "" {
		return fmt.Errorf("descriptor %s missing equipment_id", d.ID)
	}
	if d.Status != "" && !d.Status.Valid() {
		return fmt.Errorf("descriptor %s has unknown status %q", d.ID, d.Status)
	}
	return nil
}

// DefaultThresholds derives warning/critical bands from the sensor range when
/// no explicit thresholds are configured: warning at 80%/20% of the range,
// critical at 95%/5%.
func (d *Descriptor) DefaultThresholds() Thresholds {
	if d.Thresholds != (Thresholds{}) {
		return d.Thresholds
	}
	span := d.Max - d.Min
	if span <= 0 {
		return Thresholds{}
	}
	return Thresholds{
		WarningLow:   d.Min + span*0.20,
		WarningHigh:  d.Min + span*0.80,
		CriticalLow:  d.Min + span*0.05,
		CriticalHigh: d.Min + span*0.95,
	}
}

// EquipmentGroup is a derived grouping of sensors sharing an equipment id.
// Groups are rebuilt by the orchestrator from the current sensor set and are
// never edited directly.
type EquipmentGroup struct {
	Name      string   `json:"name"` // equipment id, the grouping key
	Category  string   `json:"category,omitempty"`
	SensorIDs []string `json:"sensor_ids"`
	HasAlarms bool     `json:"has_alarms"`
	HasStatus bool     `json:"has_status"`
}

// BuildGroups derives equipment groups from a sensor set. Sensor ids within a
// group are ordered by id for deterministic output.
func BuildGroups(descriptors []Descriptor) []EquipmentGroup {
	byEquipment := make(map[string]*EquipmentGroup)
	for _, d := range descriptors {
		group, ok := byEquipment[d.EquipmentID]
		if !ok {
			group = &EquipmentGroup{
				Name:     d.EquipmentID,
				Category: d.Category,
			}
			byEquipment[d.EquipmentID] = group
		}
		group.SensorIDs = append(group.SensorIDs, d.ID)
		if d.Thresholds != (Thresholds{}) {
			group.HasAlarms = true
		}
		if d.Type == "status" {
			group.HasStatus = true
		}
	}

	names := make([]string, 0, len(byEquipment))
	for name := range byEquipment {
		names = append(names, name)
	}
	sort.Strings(names)

	groups := make([]EquipmentGroup, 0, len(names))
	for _, name := range names {
		group := byEquipment[name]
		sort.Strings(group.SensorIDs)
		groups = append(groups, *group)
	}
	return groups
}
