package notify

import (
	"context"

	"github.com/gorilla/websocket"

	"github.com/c360/plantwatch/alert"
	"github.com/c360/plantwatch/errors"
)

// PushConfig configures delivery to a websocket push gateway
type PushConfig struct {
	Enabled    bool   `json:"enabled"`
	GatewayURL string `json:"gatewayUrl"` // ws:// or wss://
}

// Push delivers notifications to operator dashboards through a websocket
// push gateway. Each send dials, writes one message, and closes; the gateway
// owns fan-out to connected clients.
type Push struct {
	config PushConfig
	dialer *websocket.Dialer
}

// NewPush creates the push channel
func NewPush(config PushConfig) *Push {
	return &Push{config: config, dialer: websocket.DefaultDialer}
}

// Name implements Channel
func (p *Push) Name() string { return "push" }

// Enabled implements Channel
func (p *Push) Enabled() bool {
	return p.config.Enabled && p.config.GatewayURL != ""
}

type pushMessage struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data"`
}

// Send writes one push message to the gateway
func (p *Push) Send(ctx context.Context, a alert.Alert) error {
	conn, _, err := p.dialer.DialContext(ctx, p.config.GatewayURL, nil)
	if err != nil {
		return errors.WrapTransient(err, "notify-push", "Send", "gateway dial")
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetWriteDeadline(deadline)
	}

	msg := pushMessage{
		Title: subject(a),
		Body:  a.Message,
		Data: map[string]string{
			"alertId":   a.ID,
			"equipment": a.EquipmentID,
			"sensor":    a.Sensor,
			"severity":  string(a.Severity),
		},
	}
	if err := conn.WriteJSON(msg); err != nil {
		return errors.WrapTransient(err, "notify-push", "Send", "message write")
	}

	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return nil
}
