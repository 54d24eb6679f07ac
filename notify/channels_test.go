package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/plantwatch/alert"
)

func channelAlert() alert.Alert {
	return alert.Alert{
		ID:          "a-42",
		EquipmentID: "fermenter-2",
		Sensor:      "temp-1",
		Parameter:   "temp_high",
		Severity:    alert.SeverityCritical,
		Message:     "temperature above 28C",
		Value:       29.4,
		Threshold:   28,
		Location:    "cellar-1",
		CreatedAt:   time.Date(2026, 8, 12, 9, 30, 0, 0, time.UTC),
	}
}

func TestEmailEnabledRequiresConfig(t *testing.T) {
	assert.False(t, NewEmail(EmailConfig{Enabled: true}).Enabled())
	assert.False(t, NewEmail(EmailConfig{Host: "smtp.local", To: []string{"ops@plant"}}).Enabled())
	assert.True(t, NewEmail(EmailConfig{Enabled: true, Host: "smtp.local", To: []string{"ops@plant"}}).Enabled())
}

func TestEmailRendersMessage(t *testing.T) {
	e := NewEmail(EmailConfig{
		Enabled: true,
		Host:    "smtp.local",
		Port:    25,
		From:    "plantwatch@plant",
		To:      []string{"ops@plant", "shift@plant"},
	})

	var gotAddr string
	var gotMsg []byte
	e.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr = addr
		gotMsg = msg
		assert.Equal(t, "plantwatch@plant", from)
		assert.Equal(t, []string{"ops@plant", "shift@plant"}, to)
		return nil
	}

	require.NoError(t, e.Send(context.Background(), channelAlert()))
	assert.Equal(t, "smtp.local:25", gotAddr)
	body := string(gotMsg)
	assert.Contains(t, body, "Subject: [CRITICAL] fermenter-2: temperature above 28C")
	assert.Contains(t, body, "Value:     29.40 (threshold 28.00)")
	assert.Contains(t, body, "cellar-1")
}

func TestSMSTruncatesToSingleSegment(t *testing.T) {
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		bodies = append(bodies, payload["body"])
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewSMS(SMSConfig{Enabled: true, GatewayURL: srv.URL, To: []string{"+15550001", "+15550002"}})

	a := channelAlert()
	a.Message = strings.Repeat("temperature runaway ", 20)
	require.NoError(t, s.Send(context.Background(), a))

	require.Len(t, bodies, 2, "one message per recipient")
	for _, body := range bodies {
		assert.LessOrEqual(t, len([]rune(body)), smsMaxRunes)
	}
}

func TestSMSGatewayErrorFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s := NewSMS(SMSConfig{Enabled: true, GatewayURL: srv.URL, To: []string{"+15550001"}})
	assert.Error(t, s.Send(context.Background(), channelAlert()))
}

func TestWebhookPostsSeverityColoredAttachment(t *testing.T) {
	var payload webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(data, &payload))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	wh := NewWebhook(WebhookConfig{Enabled: true, URL: srv.URL})
	require.NoError(t, wh.Send(context.Background(), channelAlert()))

	require.Len(t, payload.Attachments, 1)
	assert.Equal(t, "danger", payload.Attachments[0].Color)
	assert.Equal(t, "fermenter-2", payload.Attachments[0].Title)
	assert.Contains(t, payload.Text, "temperature above 28C")
}

func TestWebhookEndpointErrorFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	wh := NewWebhook(WebhookConfig{Enabled: true, URL: srv.URL})
	assert.Error(t, wh.Send(context.Background(), channelAlert()))
}

func TestMarkerAlwaysSucceeds(t *testing.T) {
	m := NewMarker("management-escalation", nil)
	assert.Equal(t, "management-escalation", m.Name())
	assert.True(t, m.Enabled())
	assert.NoError(t, m.Send(context.Background(), channelAlert()))
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "short", truncateRunes("short", 160))
	long := strings.Repeat("ä", 200)
	got := truncateRunes(long, 160)
	assert.Equal(t, 160, len([]rune(got)))
	assert.True(t, strings.HasSuffix(got, "…"))
}
