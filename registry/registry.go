// Package registry provides the durable store of known sensors and the
// equipment groups derived from them.
//
// Write access is restricted to the discovery orchestrator: sensors are
// inserted and refreshed by discovery cycles, marked offline by the staleness
// sweep, and removed only by explicit administrative action. All other
// components see read-only accessors and snapshots. This single-writer
// discipline is what keeps discovery cycles race-free against consumers.
package registry

import (
	"log/slog"
	"sync"
	"time"

	"github.com/c360/plantwatch/errors"
	"github.com/c360/plantwatch/sensor"
)

// Registry is the mutable shared store of sensor descriptors and derived
// equipment groups.
type Registry struct {
	mu      sync.RWMutex
	sensors map[string]sensor.Descriptor
	groups  []sensor.EquipmentGroup
	logger  *slog.Logger
}

// New creates an empty registry
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		sensors: make(map[string]sensor.Descriptor),
		logger:  logger.With("component", "registry"),
	}
}

// Upsert inserts a newly discovered sensor or refreshes a known one.
// New sensors get DiscoveredAt stamped and status active (unless the source
// flagged them simulated). Known sensors keep their DiscoveredAt and identity;
// descriptor fields and LastSeenAt are refreshed, and an offline sensor seen
// again returns to its source status. Returns true when the sensor was new.
//
// Orchestrator-only write path.
func (r *Registry) Upsert(d sensor.Descriptor, seenAt time.Time) (bool, error) {
	if err := d.Validate(); err != nil {
		return false, errors.WrapInvalid(err, "registry", "Upsert", "descriptor validation")
	}

	status := d.Status
	if status == "" {
		status = sensor.StatusActive
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, known := r.sensors[d.ID]
	if !known {
		d.Status = status
		d.DiscoveredAt = seenAt
		d.LastSeenAt = seenAt
		r.sensors[d.ID] = d
		return true, nil
	}

	d.Status = status
	d.DiscoveredAt = existing.DiscoveredAt
	d.LastSeenAt = seenAt
	r.sensors[d.ID] = d
	return false, nil
}

// MarkOffline transitions a sensor to offline. Returns true only on the
// active-to-offline transition so repeated sweeps stay idempotent.
//
// Orchestrator-only write path.
func (r *Registry) MarkOffline(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.sensors[id]
	if !ok || d.Status == sensor.StatusOffline {
		return false
	}
	d.Status = sensor.StatusOffline
	r.sensors[id] = d
	return true
}

// Remove deletes a sensor. This is the explicit administrative removal path;
// staleness never deletes, it marks offline.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sensors[id]; !ok {
		return errors.WrapInvalid(errors.ErrSensorNotFound, "registry", "Remove", "lookup")
	}
	delete(r.sensors, id)
	return nil
}

// RebuildGroups re-derives equipment groups from the current sensor set.
//
// Orchestrator-only write path, called after each merge.
func (r *Registry) RebuildGroups() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.groups = sensor.BuildGroups(r.sensorSliceLocked())
	return len(r.groups)
}

// ByID returns a sensor by id
func (r *Registry) ByID(id string) (sensor.Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.sensors[id]
	return d, ok
}

// BySource returns all sensors produced by the named adapter
func (r *Registry) BySource(source string) []sensor.Descriptor {
	return r.filter(func(d sensor.Descriptor) bool { return d.Source == source })
}

// ByCategory returns all sensors in a category
func (r *Registry) ByCategory(category string) []sensor.Descriptor {
	return r.filter(func(d sensor.Descriptor) bool { return d.Category == category })
}

// ByStatus returns all sensors with the given status
func (r *Registry) ByStatus(status sensor.Status) []sensor.Descriptor {
	return r.filter(func(d sensor.Descriptor) bool { return d.Status == status })
}

// All returns a copy of every registered sensor
func (r *Registry) All() []sensor.Descriptor {
	return r.filter(func(sensor.Descriptor) bool { return true })
}

// Groups returns the derived equipment groups
func (r *Registry) Groups() []sensor.EquipmentGroup {
	r.mu.RLock()
	defer r.mu.RUnlock()
	groups := make([]sensor.EquipmentGroup, len(r.groups))
	copy(groups, r.groups)
	return groups
}

// Count returns the number of registered sensors
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sensors)
}

// StaleIDs returns ids of non-offline sensors whose LastSeenAt is older than
// the threshold at the given reference time.
func (r *Registry) StaleIDs(now time.Time, threshold time.Duration) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var stale []string
	for id, d := range r.sensors {
		if d.Status == sensor.StatusOffline {
			continue
		}
		if now.Sub(d.LastSeenAt) > threshold {
			stale = append(stale, id)
		}
	}
	return stale
}

// filter returns a copy of sensors matching the predicate
func (r *Registry) filter(keep func(sensor.Descriptor) bool) []sensor.Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []sensor.Descriptor
	for _, d := range r.sensors {
		if keep(d) {
			out = append(out, d)
		}
	}
	return out
}

// sensorSliceLocked returns the raw sensor slice. Caller holds the lock.
func (r *Registry) sensorSliceLocked() []sensor.Descriptor {
	out := make([]sensor.Descriptor, 0, len(r.sensors))
	for _, d := range r.sensors {
		out = append(out, d)
	}
	return out
}
