package adapter

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/c360/plantwatch/sensor"
)

// simProfile describes one deterministic simulated sensor template
type simProfile struct {
	kind string
	unit string
	min  float64
	max  float64
}

// Templates cycled through when generating simulated descriptors. The order
// is fixed so a simulated source produces the same descriptor set on every
// cycle of every run.
var simProfiles = []simProfile{
	{kind: "temperature", unit: "degC", min: 0, max: 120},
	{kind: "pressure", unit: "bar", min: 0, max: 10},
	{kind: "level", unit: "%", min: 0, max: 100},
	{kind: "flow", unit: "L/min", min: 0, max: 500},
	{kind: "status", unit: "", min: 0, max: 1},
}

// Simulated is the stand-in source used when the real backing system for a
// family is not configured, typically in staging and demo environments. It
// produces a deterministic descriptor set flagged StatusSimulated so
// simulated sensors are never mistaken for live hardware.
type Simulated struct {
	family string
	count  int
	logger *slog.Logger
}

// NewSimulated creates a simulated source standing in for the named family
func NewSimulated(family string, count int, logger *slog.Logger) *Simulated {
	if count <= 0 {
		count = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Simulated{
		family: family,
		count:  count,
		logger: logger.With("component", "simulated-adapter", "family", family),
	}
}

// Name returns the family this simulated source stands in for
func (s *Simulated) Name() string { return s.family }

// Discover returns the deterministic simulated descriptor set
func (s *Simulated) Discover(_ context.Context) ([]sensor.Descriptor, error) {
	descriptors := make([]sensor.Descriptor, 0, s.count)
	for i := 0; i < s.count; i++ {
		profile := simProfiles[i%len(simProfiles)]
		equipment := fmt.Sprintf("Sim_%s_%02d", s.family, i/len(simProfiles)+1)
		descriptors = append(descriptors, sensor.Descriptor{
			ID:          fmt.Sprintf("sim-%s-%03d", s.family, i),
			Name:        fmt.Sprintf("Simulated %s %d", profile.kind, i),
			Type:        profile.kind,
			Unit:        profile.unit,
			Min:         profile.min,
			Max:         profile.max,
			Source:      s.family,
			Location:    "simulation",
			EquipmentID: equipment,
			Category:    "simulated",
			Status:      sensor.StatusSimulated,
		})
	}
	return descriptors, nil
}
