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

// smsMaxRunes is the single-segment SMS length limit
const smsMaxRunes = 160

// SMSConfig configures delivery through an HTTP SMS gateway
type SMSConfig struct {
	Enabled    bool     `json:"enabled"`
	GatewayURL string   `json:"gatewayUrl"`
	APIKey     string   `json:"apiKey,omitempty"`
	To         []string `json:"to"`
}

// SMS delivers notifications through an HTTP SMS gateway
type SMS struct {
	config SMSConfig
	client *http.Client
}

// NewSMS creates the SMS channel
func NewSMS(config SMSConfig) *SMS {
	return &SMS{
		config: config,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

// Name implements Channel
func (s *SMS) Name() string { return "sms" }

// Enabled implements Channel
func (s *SMS) Enabled() bool {
	return s.config.Enabled && s.config.GatewayURL != "" && len(s.config.To) > 0
}

// Send posts the alert to the gateway, one message per recipient. The body
// is truncated to a single SMS segment.
func (s *SMS) Send(ctx context.Context, a alert.Alert) error {
	body := truncateRunes(subject(a), smsMaxRunes)

	for _, to := range s.config.To {
		payload, err := json.Marshal(map[string]string{"to": to, "body": body})
		if err != nil {
			return errors.WrapInvalid(err, "notify-sms", "Send", "payload encoding")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.GatewayURL, bytes.NewReader(payload))
		if err != nil {
			return errors.WrapInvalid(err, "notify-sms", "Send", "request creation")
		}
		req.Header.Set("Content-Type", "application/json")
		if s.config.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+s.config.APIKey)
		}

		resp, err := s.client.Do(req)
		if err != nil {
			return errors.WrapTransient(err, "notify-sms", "Send", "gateway request")
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return errors.WrapTransient(
				fmt.Errorf("gateway returned %d for %s", resp.StatusCode, to),
				"notify-sms", "Send", "gateway response")
		}
	}
	return nil
}

// truncateRunes shortens s to at most n runes
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
