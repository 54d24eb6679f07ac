package notify

import (
	"context"
	"encoding/json"

	"github.com/c360/plantwatch/alert"
	"github.com/c360/plantwatch/errors"
	"github.com/c360/plantwatch/natsclient"
)

// AudioSubject is the bus subject control-room audio players subscribe to
const AudioSubject = "notify.audio"

// AudioConfig configures the control-room audio cue channel
type AudioConfig struct {
	Enabled bool `json:"enabled"`
}

// audioRepeats maps severity to cue repeat count
var audioRepeats = map[alert.Severity]int{
	alert.SeverityInfo:      1,
	alert.SeverityWarning:   1,
	alert.SeverityCritical:  2,
	alert.SeverityEmergency: 3,
}

// Audio publishes an audio cue on the message bus; control-room players
// subscribed to the cue subject render the actual sound.
type Audio struct {
	config AudioConfig
	client *natsclient.Client
}

// NewAudio creates the audio channel
func NewAudio(config AudioConfig, client *natsclient.Client) *Audio {
	return &Audio{config: config, client: client}
}

// Name implements Channel
func (a *Audio) Name() string { return "audio" }

// Enabled implements Channel
func (a *Audio) Enabled() bool {
	return a.config.Enabled && a.client != nil
}

type audioCue struct {
	AlertID  string `json:"alertId"`
	Severity string `json:"severity"`
	Repeat   int    `json:"repeat"`
	Message  string `json:"message"`
}

// Send publishes the cue
func (a *Audio) Send(ctx context.Context, al alert.Alert) error {
	if err := ctx.Err(); err != nil {
		return errors.WrapTransient(err, "notify-audio", "Send", "deadline check")
	}

	repeat := audioRepeats[al.Severity]
	if repeat == 0 {
		repeat = 1
	}
	data, err := json.Marshal(audioCue{
		AlertID:  al.ID,
		Severity: string(al.Severity),
		Repeat:   repeat,
		Message:  al.Message,
	})
	if err != nil {
		return errors.WrapInvalid(err, "notify-audio", "Send", "cue encoding")
	}

	if err := a.client.Publish(AudioSubject, data); err != nil {
		return errors.WrapTransient(err, "notify-audio", "Send", "cue publish")
	}
	return nil
}
