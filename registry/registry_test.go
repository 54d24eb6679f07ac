package registry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/plantwatch/sensor"
)

func testDescriptor(id, equipment string) sensor.Descriptor {
	return sensor.Descriptor{
		ID:          id,
		Name:        id,
		Type:        "temperature",
		Source:      "hub",
		EquipmentID: equipment,
		Category:    "tanks",
	}
}

func TestUpsert_NewAndRefresh(t *testing.T) {
	r := New(nil)
	t0 := time.Now()

	isNew, err := r.Upsert(testDescriptor("s1", "Tank_A"), t0)
	require.NoError(t, err)
	assert.True(t, isNew)

	d, ok := r.ByID("s1")
	require.True(t, ok)
	assert.Equal(t, sensor.StatusActive, d.Status)
	assert.Equal(t, t0, d.DiscoveredAt)
	assert.Equal(t, t0, d.LastSeenAt)

	t1 := t0.Add(time.Minute)
	isNew, err = r.Upsert(testDescriptor("s1", "Tank_A"), t1)
	require.NoError(t, err)
	assert.False(t, isNew)

	d, _ = r.ByID("s1")
	assert.Equal(t, t0, d.DiscoveredAt, "DiscoveredAt is stable across rediscovery")
	assert.Equal(t, t1, d.LastSeenAt)
}

func TestUpsert_InvalidDescriptor(t *testing.T) {
	r := New(nil)
	_, err := r.Upsert(sensor.Descriptor{ID: "x"}, time.Now())
	assert.Error(t, err)
	assert.Equal(t, 0, r.Count())
}

func TestUpsert_SimulatedStatusPreserved(t *testing.T) {
	r := New(nil)
	d := testDescriptor("sim1", "Demo")
	d.Status = sensor.StatusSimulated

	_, err := r.Upsert(d, time.Now())
	require.NoError(t, err)

	got, _ := r.ByID("sim1")
	assert.Equal(t, sensor.StatusSimulated, got.Status)
}

func TestUniqueIDs(t *testing.T) {
	r := New(nil)
	now := time.Now()
	for i := 0; i < 3; i++ {
		_, err := r.Upsert(testDescriptor("same-id", "Tank_A"), now)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, r.Count())
}

func TestMarkOffline_IdempotentTransition(t *testing.T) {
	r := New(nil)
	_, err := r.Upsert(testDescriptor("s1", "Tank_A"), time.Now())
	require.NoError(t, err)

	assert.True(t, r.MarkOffline("s1"), "first transition reports true")
	assert.False(t, r.MarkOffline("s1"), "re-evaluation while offline is a no-op")
	assert.False(t, r.MarkOffline("ghost"))

	d, _ := r.ByID("s1")
	assert.Equal(t, sensor.StatusOffline, d.Status)
}

func TestOfflineSensorReturnsOnRediscovery(t *testing.T) {
	r := New(nil)
	_, err := r.Upsert(testDescriptor("s1", "Tank_A"), time.Now())
	require.NoError(t, err)
	r.MarkOffline("s1")

	_, err = r.Upsert(testDescriptor("s1", "Tank_A"), time.Now())
	require.NoError(t, err)

	d, _ := r.ByID("s1")
	assert.Equal(t, sensor.StatusActive, d.Status)
}

func TestStaleIDs(t *testing.T) {
	r := New(nil)
	now := time.Now()

	_, err := r.Upsert(testDescriptor("fresh", "Tank_A"), now)
	require.NoError(t, err)
	_, err = r.Upsert(testDescriptor("stale", "Tank_B"), now.Add(-10*time.Minute))
	require.NoError(t, err)

	stale := r.StaleIDs(now, 5*time.Minute)
	assert.Equal(t, []string{"stale"}, stale)

	// Already-offline sensors are not reported again
	r.MarkOffline("stale")
	assert.Empty(t, r.StaleIDs(now, 5*time.Minute))
}

func TestAccessors(t *testing.T) {
	r := New(nil)
	now := time.Now()

	a := testDescriptor("a", "Tank_A")
	b := testDescriptor("b", "Tank_B")
	b.Source = "tagserver"
	b.Category = "utilities"

	_, err := r.Upsert(a, now)
	require.NoError(t, err)
	_, err = r.Upsert(b, now)
	require.NoError(t, err)

	assert.Len(t, r.BySource("hub"), 1)
	assert.Len(t, r.BySource("tagserver"), 1)
	assert.Len(t, r.ByCategory("tanks"), 1)
	assert.Len(t, r.ByStatus(sensor.StatusActive), 2)
	assert.Len(t, r.All(), 2)
}

func TestRemove(t *testing.T) {
	r := New(nil)
	_, err := r.Upsert(testDescriptor("s1", "Tank_A"), time.Now())
	require.NoError(t, err)

	require.NoError(t, r.Remove("s1"))
	assert.Error(t, r.Remove("s1"))
	assert.Equal(t, 0, r.Count())
}

func TestRebuildGroupsAndExport(t *testing.T) {
	r := New(nil)
	now := time.Now()
	_, err := r.Upsert(testDescriptor("a1", "Tank_A"), now)
	require.NoError(t, err)
	_, err = r.Upsert(testDescriptor("a2", "Tank_A"), now)
	require.NoError(t, err)
	_, err = r.Upsert(testDescriptor("b1", "Tank_B"), now)
	require.NoError(t, err)

	count := r.RebuildGroups()
	assert.Equal(t, 2, count)

	export := r.Export()
	assert.Equal(t, 3, export.Metadata.SensorCount)
	assert.Equal(t, 2, export.Metadata.EquipmentCount)
	require.Len(t, export.Sensors, 3)
	assert.Equal(t, "a1", export.Sensors[0].ID, "export is sorted by id")
}

func TestSnapshot_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snapshots", "registry.json")

	r := New(nil)
	now := time.Now()
	for _, id := range []string{"s1", "s2", "s3"} {
		_, err := r.Upsert(testDescriptor(id, "Tank_A"), now)
		require.NoError(t, err)
	}
	r.MarkOffline("s2")

	require.NoError(t, r.Save(path))

	loaded := New(nil)
	require.NoError(t, loaded.Load(path))

	assert.Equal(t, r.Count(), loaded.Count())
	for _, id := range []string{"s1", "s2", "s3"} {
		orig, ok := r.ByID(id)
		require.True(t, ok)
		got, ok := loaded.ByID(id)
		require.True(t, ok)
		assert.Equal(t, orig.Status, got.Status)
	}
	assert.NotEmpty(t, loaded.Groups(), "groups rebuilt on load")
}

func TestLoad_MissingFileIsNotAnError(t *testing.T) {
	r := New(nil)
	assert.NoError(t, r.Load(filepath.Join(t.TempDir(), "missing.json")))
	assert.Equal(t, 0, r.Count())
}

func TestLoad_CorruptedSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	r := New(nil)
	err := r.Load(path)
	assert.Error(t, err)
}
