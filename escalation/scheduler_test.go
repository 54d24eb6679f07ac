package escalation

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/plantwatch/alert"
)

// fireRecorder collects fire callbacks for assertions
type fireRecorder struct {
	mu    sync.Mutex
	fires []fireCall
}

type fireCall struct {
	alertID  string
	level    int
	channels []string
}

func (r *fireRecorder) fire(alertID string, level int, channels []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fires = append(r.fires, fireCall{alertID: alertID, level: level, channels: channels})
}

func (r *fireRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.fires)
}

func (r *fireRecorder) calls() []fireCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]fireCall, len(r.fires))
	copy(out, r.fires)
	return out
}

func testPolicies() map[alert.Severity]Policy {
	return map[alert.Severity]Policy{
		alert.SeverityWarning: {
			Immediate: []string{ChannelAudio, ChannelPush},
			Steps: []Step{
				{Delay: 20 * time.Millisecond, Channels: []string{ChannelEmail, ChannelSMS}},
				{Delay: 40 * time.Millisecond, Channels: []string{ChannelWebhook}},
			},
			MaxLevel: 3,
		},
		alert.SeverityEmergency: {
			Immediate: AllChannels,
			Steps: []Step{
				{Delay: 10 * time.Millisecond, Channels: AllChannels},
			},
			MaxLevel: 4,
		},
	}
}

func waitForFires(t *testing.T, rec *fireRecorder, n int, within time.Duration) {
	t.Helper()
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		if rec.count() >= n {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	require.GreaterOrEqual(t, rec.count(), n, "expected %d fires within %v", n, within)
}

func TestSchedulerImmediateChannels(t *testing.T) {
	s := NewScheduler(testPolicies(), nil)

	assert.Equal(t, []string{ChannelAudio, ChannelPush}, s.ImmediateChannels(alert.SeverityWarning))
	assert.Nil(t, s.ImmediateChannels(alert.SeverityInfo))
}

func TestSchedulerFiresStepsInOrder(t *testing.T) {
	rec := &fireRecorder{}
	s := NewScheduler(testPolicies(), nil)
	s.SetFire(rec.fire)

	s.Arm(alert.Alert{ID: "a1", Severity: alert.SeverityWarning})
	waitForFires(t, rec, 2, time.Second)

	calls := rec.calls()
	assert.Equal(t, "a1", calls[0].alertID)
	assert.Equal(t, 1, calls[0].level)
	assert.Equal(t, []string{ChannelEmail, ChannelSMS}, calls[0].channels)
	assert.Equal(t, 2, calls[1].level)
	assert.Equal(t, []string{ChannelWebhook}, calls[1].channels)
}

func TestSchedulerRepeatsLastStepUntilCap(t *testing.T) {
	rec := &fireRecorder{}
	s := NewScheduler(testPolicies(), nil)
	s.SetFire(rec.fire)

	s.Arm(alert.Alert{ID: "e1", Severity: alert.SeverityEmergency})
	waitForFires(t, rec, 4, 2*time.Second)

	// MaxLevel 4: the single listed step fires as level 1 then repeats
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 4, rec.count())
	for i, call := range rec.calls() {
		assert.Equal(t, i+1, call.level)
	}
	assert.Equal(t, 0, s.Pending())
}

func TestSchedulerCancelStopsPendingSteps(t *testing.T) {
	rec := &fireRecorder{}
	s := NewScheduler(testPolicies(), nil)
	s.SetFire(rec.fire)

	s.Arm(alert.Alert{ID: "a2", Severity: alert.SeverityWarning})
	require.Equal(t, 1, s.Pending())

	s.Cancel("a2")
	assert.Equal(t, 0, s.Pending())

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, 0, rec.count(), "no step may fire after cancel")
}

func TestSchedulerCancelUnknownIsNoop(t *testing.T) {
	s := NewScheduler(testPolicies(), nil)
	s.Cancel("never-armed")
	assert.Equal(t, 0, s.Pending())
}

func TestSchedulerArmIgnoresNonEscalatingSeverity(t *testing.T) {
	rec := &fireRecorder{}
	s := NewScheduler(testPolicies(), nil)
	s.SetFire(rec.fire)

	s.Arm(alert.Alert{ID: "i1", Severity: alert.SeverityInfo})
	assert.Equal(t, 0, s.Pending())
}

func TestSchedulerRearmReplacesArena(t *testing.T) {
	rec := &fireRecorder{}
	s := NewScheduler(testPolicies(), nil)
	s.SetFire(rec.fire)

	s.Arm(alert.Alert{ID: "a3", Severity: alert.SeverityWarning})
	s.Arm(alert.Alert{ID: "a3", Severity: alert.SeverityWarning})
	assert.Equal(t, 1, s.Pending())

	s.Cancel("a3")
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, 0, rec.count())
}
