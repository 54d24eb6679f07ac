package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/c360/plantwatch/alert"
	"github.com/c360/plantwatch/errors"
)

// WebhookConfig configures an outbound webhook (Slack-compatible payload)
type WebhookConfig struct {
	Enabled bool   `json:"enabled"`
	URL     string `json:"url"`
}

// severityColors maps severity to the attachment color bar
var severityColors = map[alert.Severity]string{
	alert.SeverityInfo:      "#439fe0",
	alert.SeverityWarning:   "warning",
	alert.SeverityCritical:  "danger",
	alert.SeverityEmergency: "#8b0000",
}

// Webhook posts notifications to a configured HTTP endpoint
type Webhook struct {
	config WebhookConfig
	client *http.Client
}

// NewWebhook creates the webhook channel
func NewWebhook(config WebhookConfig) *Webhook {
	return &Webhook{
		config: config,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

// Name implements Channel
func (w *Webhook) Name() string { return "webhook" }

// Enabled implements Channel
func (w *Webhook) Enabled() bool {
	return w.config.Enabled && w.config.URL != ""
}

type webhookField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type webhookAttachment struct {
	Color  string         `json:"color"`
	Title  string         `json:"title"`
	Text   string         `json:"text"`
	Fields []webhookField `json:"fields"`
	Ts     int64          `json:"ts"`
}

type webhookPayload struct {
	Text        string              `json:"text"`
	Attachments []webhookAttachment `json:"attachments"`
}

// Send posts a severity-colored attachment describing the alert
func (w *Webhook) Send(ctx context.Context, a alert.Alert) error {
	payload := webhookPayload{
		Text: subject(a),
		Attachments: []webhookAttachment{{
			Color: severityColors[a.Severity],
			Title: a.EquipmentID,
			Text:  a.Message,
			Fields: []webhookField{
				{Title: "Severity", Value: string(a.Severity), Short: true},
				{Title: "Sensor", Value: a.Sensor, Short: true},
				{Title: "Value", Value: fmt.Sprintf("%.2f", a.Value), Short: true},
				{Title: "Threshold", Value: fmt.Sprintf("%.2f", a.Threshold), Short: true},
				{Title: "Location", Value: a.Location, Short: true},
				{Title: "Escalation level", Value: fmt.Sprintf("%d", a.EscalationLevel), Short: true},
			},
			Ts: a.CreatedAt.Unix(),
		}},
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return errors.WrapInvalid(err, "notify-webhook", "Send", "payload encoding")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.config.URL, bytes.NewReader(data))
	if err != nil {
		return errors.WrapInvalid(err, "notify-webhook", "Send", "request creation")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return errors.WrapTransient(err, "notify-webhook", "Send", "endpoint request")
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.WrapTransient(
			fmt.Errorf("endpoint returned %d", resp.StatusCode),
			"notify-webhook", "Send", "endpoint response")
	}
	return nil
}
