package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/plantwatch/alert"
	"github.com/c360/plantwatch/pkg/retry"
)

// fakeChannel is a scriptable channel for dispatcher tests
type fakeChannel struct {
	name    string
	enabled bool
	err     error
	delay   time.Duration

	mu    sync.Mutex
	sends int
}

func (f *fakeChannel) Name() string  { return f.name }
func (f *fakeChannel) Enabled() bool { return f.enabled }

func (f *fakeChannel) Send(ctx context.Context, _ alert.Alert) error {
	f.mu.Lock()
	f.sends++
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.err
}

func (f *fakeChannel) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sends
}

// recordSink captures RecordNotification calls
type recordSink struct {
	mu      sync.Mutex
	records []alert.NotificationRecord
}

func (r *recordSink) RecordNotification(_ string, rec alert.NotificationRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
}

func (r *recordSink) byChannel() map[string]alert.NotificationRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]alert.NotificationRecord, len(r.records))
	for _, rec := range r.records {
		out[rec.Channel] = rec
	}
	return out
}

func quickRetry() retry.Config {
	return retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2.0}
}

func testAlert() alert.Alert {
	return alert.Alert{
		ID:          "a-1",
		EquipmentID: "tank-3",
		Sensor:      "level-1",
		Severity:    alert.SeverityWarning,
		Message:     "level above 80%",
	}
}

func TestDispatchRecordsOutcomesPerChannel(t *testing.T) {
	ok := &fakeChannel{name: "email", enabled: true}
	bad := &fakeChannel{name: "sms", enabled: true, err: errors.New("gateway down")}
	sink := &recordSink{}

	d := NewDispatcher([]Channel{ok, bad}, sink, nil, nil, WithRetry(quickRetry()))
	d.Dispatch(context.Background(), testAlert(), []string{"email", "sms"})
	d.Wait()

	records := sink.byChannel()
	require.Len(t, records, 2)
	assert.True(t, records["email"].Success)
	assert.False(t, records["sms"].Success)
	assert.Contains(t, records["sms"].Error, "gateway down")
}

func TestDispatchFailureDoesNotBlockOthers(t *testing.T) {
	slow := &fakeChannel{name: "webhook", enabled: true, delay: 200 * time.Millisecond, err: errors.New("timeout")}
	fast := &fakeChannel{name: "push", enabled: true}
	sink := &recordSink{}

	d := NewDispatcher([]Channel{slow, fast}, sink, nil, nil,
		WithRetry(retry.Config{MaxAttempts: 1}), WithAttemptTimeout(50*time.Millisecond))

	start := time.Now()
	d.Dispatch(context.Background(), testAlert(), []string{"webhook", "push"})

	// The fast channel completes well before the slow one times out
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && fast.sendCount() == 0 {
		time.Sleep(time.Millisecond)
	}
	assert.Equal(t, 1, fast.sendCount())
	assert.Less(t, time.Since(start), 150*time.Millisecond)

	d.Wait()
	records := sink.byChannel()
	assert.True(t, records["push"].Success)
	assert.False(t, records["webhook"].Success)
}

func TestDispatchRetriesUpToBudget(t *testing.T) {
	flaky := &fakeChannel{name: "email", enabled: true, err: errors.New("transient")}
	sink := &recordSink{}

	d := NewDispatcher([]Channel{flaky}, sink, nil, nil, WithRetry(quickRetry()))
	d.Dispatch(context.Background(), testAlert(), []string{"email"})
	d.Wait()

	assert.Equal(t, 3, flaky.sendCount())
	records := sink.byChannel()
	assert.False(t, records["email"].Success)
}

func TestDispatchSkipsDisabledAndUnknownChannels(t *testing.T) {
	disabled := &fakeChannel{name: "sms", enabled: false}
	sink := &recordSink{}

	d := NewDispatcher([]Channel{disabled}, sink, nil, nil, WithRetry(quickRetry()))
	d.Dispatch(context.Background(), testAlert(), []string{"sms", "carrier-pigeon"})
	d.Wait()

	assert.Equal(t, 0, disabled.sendCount())
	assert.Empty(t, sink.byChannel(), "skipped channels record nothing")
}

func TestRegisterReplacesChannel(t *testing.T) {
	old := &fakeChannel{name: "email", enabled: false}
	d := NewDispatcher([]Channel{old}, nil, nil, nil, WithRetry(quickRetry()))

	replacement := &fakeChannel{name: "email", enabled: true}
	d.Register(replacement)

	d.Dispatch(context.Background(), testAlert(), []string{"email"})
	d.Wait()
	assert.Equal(t, 1, replacement.sendCount())
	assert.Equal(t, 0, old.sendCount())
}
