// Package config loads and validates the PlantWatch service configuration
// from a JSON file, with sensible defaults for everything that can default.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/c360/plantwatch/adapter"
	"github.com/c360/plantwatch/errors"
	"github.com/c360/plantwatch/notify"
)

// Duration wraps time.Duration for human-readable JSON ("60s", "5m")
type Duration time.Duration

// UnmarshalJSON accepts either a duration string or nanoseconds
func (d *Duration) UnmarshalJSON(data []byte) error {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value, err)
		}
		*d = Duration(parsed)
		return nil
	case float64:
		*d = Duration(time.Duration(value))
		return nil
	default:
		return fmt.Errorf("invalid duration value %v", v)
	}
}

// MarshalJSON renders the duration as a string
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Std returns the wrapped time.Duration
func (d Duration) Std() time.Duration { return time.Duration(d) }

// NATSConfig configures the message bus connection
type NATSConfig struct {
	URL      string `json:"url"`
	Name     string `json:"name,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// DiscoveryConfig configures the discovery orchestrator
type DiscoveryConfig struct {
	Interval         Duration `json:"interval,omitempty"`
	SourceTimeout    Duration `json:"sourceTimeout,omitempty"`
	OfflineThreshold Duration `json:"offlineThreshold,omitempty"`
	SnapshotPath     string   `json:"snapshotPath,omitempty"`
}

// HubSourceConfig enables the TCP sensor-hub source
type HubSourceConfig struct {
	Enabled bool `json:"enabled"`
	adapter.HubConfig
}

// TagServerSourceConfig enables the HTTP tag-server source
type TagServerSourceConfig struct {
	Enabled bool `json:"enabled"`
	adapter.TagServerConfig
}

// PubSubSourceConfig enables the bus announcement source
type PubSubSourceConfig struct {
	Enabled bool `json:"enabled"`
	adapter.PubSubConfig
}

// RegisterSourceConfig enables the register-map source
type RegisterSourceConfig struct {
	Enabled bool `json:"enabled"`
	adapter.RegisterConfig
}

// SimulatedSourceConfig enables deterministic simulated sensors, used when a
// real source family is unavailable in a development environment.
type SimulatedSourceConfig struct {
	Enabled bool   `json:"enabled"`
	Family  string `json:"family,omitempty"`
	Count   int    `json:"count,omitempty"`
}

// SourcesConfig configures the discovery source families
type SourcesConfig struct {
	Hub       HubSourceConfig       `json:"hub,omitempty"`
	TagServer TagServerSourceConfig `json:"tagServer,omitempty"`
	PubSub    PubSubSourceConfig    `json:"pubSub,omitempty"`
	Register  RegisterSourceConfig  `json:"register,omitempty"`
	Simulated SimulatedSourceConfig `json:"simulated,omitempty"`
}

// ChannelsConfig configures the notification channels. A channel left
// disabled is skipped at dispatch time, never an error.
type ChannelsConfig struct {
	Email   notify.EmailConfig   `json:"email,omitempty"`
	SMS     notify.SMSConfig     `json:"sms,omitempty"`
	Webhook notify.WebhookConfig `json:"webhook,omitempty"`
	Push    notify.PushConfig    `json:"push,omitempty"`
	Audio   notify.AudioConfig   `json:"audio,omitempty"`
}

// EscalationConfig configures the escalation scheduler
type EscalationConfig struct {
	// PolicyPath points at an optional YAML policy override file
	PolicyPath string `json:"policyPath,omitempty"`
}

// ServiceConfig configures service-level concerns
type ServiceConfig struct {
	Name string `json:"name,omitempty"`
	// HTTPAddr serves health and metrics endpoints
	HTTPAddr string `json:"httpAddr,omitempty"`
}

// Config is the full service configuration
type Config struct {
	Service    ServiceConfig    `json:"service,omitempty"`
	NATS       NATSConfig       `json:"nats"`
	Discovery  DiscoveryConfig  `json:"discovery,omitempty"`
	Sources    SourcesConfig    `json:"sources,omitempty"`
	Channels   ChannelsConfig   `json:"channels,omitempty"`
	Escalation EscalationConfig `json:"escalation,omitempty"`
}

// Default returns a configuration with all defaults applied
func Default() Config {
	return Config{
		Service: ServiceConfig{
			Name:     "plantwatch",
			HTTPAddr: ":8090",
		},
		NATS: NATSConfig{
			URL:  "nats://localhost:4222",
			Name: "plantwatch",
		},
		Discovery: DiscoveryConfig{
			Interval:         Duration(60 * time.Second),
			SourceTimeout:    Duration(10 * time.Second),
			OfflineThreshold: Duration(5 * time.Minute),
			SnapshotPath:     "data/registry.json",
		},
		Sources: SourcesConfig{
			Simulated: SimulatedSourceConfig{Enabled: true, Family: "hub", Count: 5},
		},
	}
}

// Load reads a JSON configuration file over the defaults. An empty path
// returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.WrapTransient(err, "config", "Load", "read config file")
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.WrapInvalid(err, "config", "Load", "decode config file")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for consistency
func (c *Config) Validate() error {
	if c.NATS.URL == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "config", "Validate", "nats.url check")
	}
	if c.Sources.Hub.Enabled && c.Sources.Hub.Address == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "config", "Validate", "sources.hub.address check")
	}
	if c.Sources.TagServer.Enabled && c.Sources.TagServer.BaseURL == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "config", "Validate", "sources.tagServer.base_url check")
	}
	if c.Sources.Register.Enabled && len(c.Sources.Register.Devices) == 0 {
		return errors.WrapInvalid(errors.ErrMissingConfig, "config", "Validate", "sources.register.devices check")
	}
	if c.Channels.SMS.Enabled && c.Channels.SMS.GatewayURL == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "config", "Validate", "channels.sms.gatewayUrl check")
	}
	if c.Channels.Webhook.Enabled && c.Channels.Webhook.URL == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "config", "Validate", "channels.webhook.url check")
	}
	if c.Discovery.Interval < 0 || c.Discovery.OfflineThreshold < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "config", "Validate", "discovery duration check")
	}
	return nil
}
