package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/c360/plantwatch/errors"
	"github.com/c360/plantwatch/sensor"
)

// snapshotVersion is the current on-disk snapshot format version
const snapshotVersion = 1

// Snapshot is the persisted registry state, versioned for forward
// compatibility.
type Snapshot struct {
	Version int                 `json:"version"`
	Updated time.Time           `json:"updated"`
	Sensors []sensor.Descriptor `json:"sensors"`
}

// ExportMetadata describes an export for external consumers
type ExportMetadata struct {
	Generated      time.Time `json:"generated"`
	SensorCount    int       `json:"sensorCount"`
	EquipmentCount int       `json:"equipmentCount"`
}

// Export is the read-only view consumed by dashboard-generation and
// deployment tooling. It is the sole interface those collaborators need.
type Export struct {
	Sensors   []sensor.Descriptor     `json:"sensors"`
	Equipment []sensor.EquipmentGroup `json:"equipment"`
	Metadata  ExportMetadata          `json:"metadata"`
}

// Export builds a point-in-time read-only export of sensors and equipment
func (r *Registry) Export() Export {
	sensors := r.All()
	sort.Slice(sensors, func(i, j int) bool { return sensors[i].ID < sensors[j].ID })

	groups := r.Groups()
	return Export{
		Sensors:   sensors,
		Equipment: groups,
		Metadata: ExportMetadata{
			Generated:      time.Now().UTC(),
			SensorCount:    len(sensors),
			EquipmentCount: len(groups),
		},
	}
}

// Save writes the registry to a versioned JSON snapshot file. The write goes
// through a temp file and rename so a crash mid-write never corrupts the
// previous snapshot.
func (r *Registry) Save(path string) error {
	sensors := r.All()
	sort.Slice(sensors, func(i, j int) bool { return sensors[i].ID < sensors[j].ID })

	snapshot := Snapshot{
		Version: snapshotVersion,
		Updated: time.Now().UTC(),
		Sensors: sensors,
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return errors.WrapFatal(err, "registry", "Save", "marshal snapshot")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.WrapTransient(err, "registry", "Save", "create snapshot directory")
		}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.WrapTransient(err, "registry", "Save", "write snapshot")
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.WrapTransient(err, "registry", "Save", "rename snapshot")
	}

	return nil
}

// Load replaces the registry contents from a snapshot file. A missing file is
// not an error; the registry simply starts empty. Invalid descriptors in the
// snapshot are skipped with a warning rather than failing the whole load.
func (r *Registry) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.WrapTransient(err, "registry", "Load", "read snapshot")
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return errors.WrapFatal(errors.ErrSnapshotCorrupted, "registry", "Load",
			fmt.Sprintf("decode snapshot %s", path))
	}
	if snapshot.Version != snapshotVersion {
		return errors.WrapFatal(errors.ErrSnapshotCorrupted, "registry", "Load",
			fmt.Sprintf("unsupported snapshot version %d", snapshot.Version))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.sensors = make(map[string]sensor.Descriptor, len(snapshot.Sensors))
	for _, d := range snapshot.Sensors {
		if err := d.Validate(); err != nil {
			r.logger.Warn("Skipping invalid sensor in snapshot", "id", d.ID, "error", err)
			continue
		}
		r.sensors[d.ID] = d
	}
	r.groups = sensor.BuildGroups(r.sensorSliceLocked())

	r.logger.Info("Registry loaded from snapshot",
		"path", path,
		"sensors", len(r.sensors),
		"updated", snapshot.Updated)
	return nil
}
