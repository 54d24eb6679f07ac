package ingest

import (
	"context"
	"sync"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/plantwatch/alert"
	"github.com/c360/plantwatch/natsclient"
)

// fakeHandler records accepted triggers
type fakeHandler struct {
	mu     sync.Mutex
	inputs []alert.Input
}

func (f *fakeHandler) HandleTrigger(_ context.Context, in alert.Input) (alert.Alert, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, in)
	return alert.Alert{ID: "a-1", EquipmentID: in.EquipmentID}, true
}

func (f *fakeHandler) accepted() []alert.Input {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]alert.Input(nil), f.inputs...)
}

func newTestSubscriber(t *testing.T) (*Subscriber, *fakeHandler) {
	t.Helper()
	// The client is never connected; handleMessage does not touch it
	client, err := natsclient.NewClient("nats://localhost:4222")
	require.NoError(t, err)

	handler := &fakeHandler{}
	s := NewSubscriber(client, handler, nil, nil)
	require.NoError(t, s.Initialize())
	return s, handler
}

func msg(subject, body string) *nats.Msg {
	return &nats.Msg{Subject: subject, Data: []byte(body)}
}

func TestHandleMessageAcceptsValidTrigger(t *testing.T) {
	s, handler := newTestSubscriber(t)

	s.handleMessage(context.Background(), msg("alerts.tank-3.level-1",
		`{"equipmentId":"tank-3","sensor":"level-1","severity":"warning","message":"level above 80%","value":84.2}`))

	accepted := handler.accepted()
	require.Len(t, accepted, 1)
	assert.Equal(t, "tank-3", accepted[0].EquipmentID)
	assert.Equal(t, alert.SeverityWarning, accepted[0].Severity)
	assert.Equal(t, 84.2, accepted[0].Value)
}

func TestHandleMessageRejectsMalformedJSON(t *testing.T) {
	s, handler := newTestSubscriber(t)

	s.handleMessage(context.Background(), msg("alerts.tank-3.level-1", `{not json`))

	assert.Empty(t, handler.accepted())
	assert.Equal(t, 1, s.Health().ErrorCount)
}

func TestHandleMessageRejectsInvalidTrigger(t *testing.T) {
	s, handler := newTestSubscriber(t)

	s.handleMessage(context.Background(), msg("alerts.tank-3.level-1",
		`{"severity":"warning","message":"no equipment"}`))
	s.handleMessage(context.Background(), msg("alerts.tank-3.level-1",
		`{"equipmentId":"tank-3","severity":"panic","message":"bad severity"}`))

	assert.Empty(t, handler.accepted())
	assert.Equal(t, 2, s.Health().ErrorCount)
}

func TestRejectionLoggedOncePerCause(t *testing.T) {
	s, _ := newTestSubscriber(t)

	// Same subject and reason three times: one rejection log entry
	for i := 0; i < 3; i++ {
		s.handleMessage(context.Background(), msg("alerts.tank-3.level-1", `{not json`))
	}
	assert.Equal(t, 1, s.rejectionLog.Len())
	assert.Equal(t, 3, s.Health().ErrorCount, "every rejection still counts")

	// A different subject is a new cause
	s.handleMessage(context.Background(), msg("alerts.tank-4.level-1", `{not json`))
	assert.Equal(t, 2, s.rejectionLog.Len())
}

func TestInitializeRequiresDeps(t *testing.T) {
	assert.Error(t, NewSubscriber(nil, &fakeHandler{}, nil, nil).Initialize())

	client, err := natsclient.NewClient("nats://localhost:4222")
	require.NoError(t, err)
	assert.Error(t, NewSubscriber(client, nil, nil, nil).Initialize())
}

func TestStartRequiresInitialize(t *testing.T) {
	client, err := natsclient.NewClient("nats://localhost:4222")
	require.NoError(t, err)
	s := NewSubscriber(client, &fakeHandler{}, nil, nil)
	assert.Error(t, s.Start(context.Background()))
}
