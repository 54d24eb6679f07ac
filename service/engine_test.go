package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/plantwatch/alert"
	"github.com/c360/plantwatch/config"
)

func TestNewWiresDefaultGraph(t *testing.T) {
	e, err := New(config.Default(), nil)
	require.NoError(t, err)

	assert.NotNil(t, e.Manager())
	assert.NotNil(t, e.Registry())
	assert.Len(t, e.components, 2, "discovery orchestrator and trigger ingress")
}

func TestNewRequiresAnEnabledSource(t *testing.T) {
	cfg := config.Default()
	cfg.Sources.Simulated.Enabled = false

	_, err := New(cfg, nil)
	assert.Error(t, err)
}

func TestAlertCommandEndpoint(t *testing.T) {
	e, err := New(config.Default(), nil)
	require.NoError(t, err)

	a, created := e.Manager().HandleTrigger(context.Background(), alert.Input{
		EquipmentID: "pump-1",
		Sensor:      "vibe-1",
		Parameter:   "vibration_high",
		Severity:    alert.SeverityWarning,
		Message:     "vibration above limit",
		Timestamp:   time.Now().UTC(),
	})
	require.True(t, created)

	post := func(path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		rec := httptest.NewRecorder()
		e.handleAlertCommand(rec, req)
		return rec
	}

	rec := post("/api/alerts/"+a.ID+"/acknowledge", `{"by":"operator-1","reason":"inspecting"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var acked alert.Alert
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&acked))
	assert.True(t, acked.Acknowledged)
	assert.Equal(t, "operator-1", acked.AcknowledgedBy)

	rec = post("/api/alerts/"+a.ID+"/clear", `{"by":"operator-1","reason":"fixed"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, e.Manager().ActiveCount())

	rec = post("/api/alerts/no-such-id/acknowledge", `{"by":"operator-1"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = post("/api/alerts/"+a.ID+"/acknowledge", `{"reason":"missing by"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/alerts/"+a.ID+"/acknowledge", nil)
	getRec := httptest.NewRecorder()
	e.handleAlertCommand(getRec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, getRec.Code)
}

func TestNewRejectsBadPolicyPath(t *testing.T) {
	cfg := config.Default()
	cfg.Escalation.PolicyPath = "/nonexistent/policies.yaml"

	_, err := New(cfg, nil)
	assert.Error(t, err)
}
