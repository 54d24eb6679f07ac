// Package escalation schedules the time-delayed escalation steps of active
// alerts. Each armed step is an independently cancellable timer held in an
// arena keyed by alert id; cancellation is a first-class operation driven by
// acknowledge and clear transitions.
package escalation

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/plantwatch/alert"
	"github.com/c360/plantwatch/errors"
)

// Channel names used by the default policies
const (
	ChannelEmail   = "email"
	ChannelSMS     = "sms"
	ChannelWebhook = "webhook"
	ChannelPush    = "push"
	ChannelAudio   = "audio"

	// Marker channels flag escalation milestones rather than deliver to a
	// person; the dispatcher records them in the notification log.
	MarkerManagement = "management-escalation"
	MarkerBroadcast  = "broadcast"
)

// AllChannels is every deliverable channel, used by the emergency policy
var AllChannels = []string{ChannelAudio, ChannelPush, ChannelEmail, ChannelSMS, ChannelWebhook}

// Step is one delayed escalation round
type Step struct {
	Delay    time.Duration `yaml:"delay"`
	Channels []string      `yaml:"channels"`
}

// Policy defines the escalation behavior for one severity. After the last
// listed step, the scheduler repeats that step at its delay until MaxLevel
// is reached; exceeding the cap stops further scheduling but leaves the
// alert active until explicitly cleared.
type Policy struct {
	Immediate []string `yaml:"immediate"`
	Steps     []Step   `yaml:"steps"`
	MaxLevel  int      `yaml:"max_level"`
}

// DefaultPolicies returns the built-in per-severity policies
func DefaultPolicies() map[alert.Severity]Policy {
	return map[alert.Severity]Policy{
		alert.SeverityInfo: {
			Immediate: []string{ChannelAudio, ChannelPush},
			// Info alerts are dispatched once and never escalate
		},
		alert.SeverityWarning: {
			Immediate: []string{ChannelAudio, ChannelPush},
			Steps: []Step{
				{Delay: 5 * time.Minute, Channels: []string{ChannelEmail, ChannelSMS}},
				{Delay: 15 * time.Minute, Channels: []string{ChannelWebhook}},
			},
			MaxLevel: 3,
		},
		alert.SeverityCritical: {
			Immediate: []string{ChannelAudio, ChannelPush, ChannelEmail},
			Steps: []Step{
				{Delay: time.Minute, Channels: []string{ChannelSMS, ChannelWebhook}},
				{Delay: 5 * time.Minute, Channels: []string{MarkerManagement}},
			},
			MaxLevel: 5,
		},
		alert.SeverityEmergency: {
			Immediate: AllChannels,
			Steps: []Step{
				{Delay: 30 * time.Second, Channels: AllChannels},
				{Delay: 2 * time.Minute, Channels: []string{MarkerBroadcast}},
			},
			MaxLevel: 10,
		},
	}
}

// policyFile is the YAML override document shape
type policyFile struct {
	Policies map[string]policyOverride `yaml:"policies"`
}

type policyOverride struct {
	Immediate []string       `yaml:"immediate"`
	Steps     []stepOverride `yaml:"steps"`
	MaxLevel  *int           `yaml:"max_level"`
}

type stepOverride struct {
	Delay    string   `yaml:"delay"`
	Channels []string `yaml:"channels"`
}

// LoadPolicies merges a YAML override file over the default policies. Only
// severities present in the file are touched; within a severity, only the
// fields present override.
func LoadPolicies(path string) (map[alert.Severity]Policy, error) {
	policies := DefaultPolicies()
	if path == "" {
		return policies, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapTransient(err, "escalation", "LoadPolicies", "read policy file")
	}

	var file policyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.WrapInvalid(err, "escalation", "LoadPolicies", "decode policy file")
	}

	for name, override := range file.Policies {
		severity, err := alert.ParseSeverity(name)
		if err != nil {
			return nil, errors.WrapInvalid(err, "escalation", "LoadPolicies", "severity key validation")
		}

		policy := policies[severity]
		if override.Immediate != nil {
			policy.Immediate = override.Immediate
		}
		if override.Steps != nil {
			steps := make([]Step, 0, len(override.Steps))
			for i, s := range override.Steps {
				delay, err := time.ParseDuration(s.Delay)
				if err != nil || delay <= 0 {
					return nil, errors.WrapInvalid(
						fmt.Errorf("policy %s step %d has invalid delay %q", name, i, s.Delay),
						"escalation", "LoadPolicies", "step validation")
				}
				steps = append(steps, Step{Delay: delay, Channels: s.Channels})
			}
			policy.Steps = steps
		}
		if override.MaxLevel != nil {
			policy.MaxLevel = *override.MaxLevel
		}
		policies[severity] = policy
	}

	return policies, nil
}
