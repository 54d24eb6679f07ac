// Package notify delivers alert notifications across the configured
// channels. Channels are independent: a failure or timeout on one never
// blocks or fails another, and a disabled channel is skipped without error.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/c360/plantwatch/alert"
)

// Channel is one notification delivery mechanism
type Channel interface {
	// Name returns the channel's registry name (for example "email")
	Name() string
	// Enabled reports whether the channel is configured for delivery
	Enabled() bool
	// Send delivers one alert notification. The context carries the
	// per-attempt timeout set by the dispatcher.
	Send(ctx context.Context, a alert.Alert) error
}

// subject renders the one-line summary used by several channels
func subject(a alert.Alert) string {
	return fmt.Sprintf("[%s] %s: %s", strings.ToUpper(string(a.Severity)), a.EquipmentID, a.Message)
}
