package escalation

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/plantwatch/alert"
)

func TestDefaultPoliciesShape(t *testing.T) {
	policies := DefaultPolicies()

	info := policies[alert.SeverityInfo]
	assert.Empty(t, info.Steps)
	assert.Zero(t, info.MaxLevel)

	warning := policies[alert.SeverityWarning]
	require.Len(t, warning.Steps, 2)
	assert.Equal(t, 5*time.Minute, warning.Steps[0].Delay)
	assert.Equal(t, 3, warning.MaxLevel)

	critical := policies[alert.SeverityCritical]
	require.Len(t, critical.Steps, 2)
	assert.Equal(t, []string{MarkerManagement}, critical.Steps[1].Channels)
	assert.Equal(t, 5, critical.MaxLevel)

	emergency := policies[alert.SeverityEmergency]
	assert.Equal(t, AllChannels, emergency.Immediate)
	assert.Equal(t, 30*time.Second, emergency.Steps[0].Delay)
	assert.Equal(t, 10, emergency.MaxLevel)
}

func TestLoadPoliciesEmptyPathReturnsDefaults(t *testing.T) {
	policies, err := LoadPolicies("")
	require.NoError(t, err)
	assert.Equal(t, DefaultPolicies(), policies)
}

func TestLoadPoliciesMergesOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policies.yaml")
	doc := `policies:
  warning:
    steps:
      - delay: 2m
        channels: [email]
    max_level: 2
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	policies, err := LoadPolicies(path)
	require.NoError(t, err)

	warning := policies[alert.SeverityWarning]
	require.Len(t, warning.Steps, 1)
	assert.Equal(t, 2*time.Minute, warning.Steps[0].Delay)
	assert.Equal(t, []string{"email"}, warning.Steps[0].Channels)
	assert.Equal(t, 2, warning.MaxLevel)
	// Immediate untouched by the override
	assert.Equal(t, DefaultPolicies()[alert.SeverityWarning].Immediate, warning.Immediate)

	// Other severities keep their defaults
	assert.Equal(t, DefaultPolicies()[alert.SeverityCritical], policies[alert.SeverityCritical])
}

func TestLoadPoliciesRejectsBadInput(t *testing.T) {
	dir := t.TempDir()

	badSeverity := filepath.Join(dir, "bad-severity.yaml")
	require.NoError(t, os.WriteFile(badSeverity, []byte("policies:\n  panic:\n    max_level: 1\n"), 0o644))
	_, err := LoadPolicies(badSeverity)
	assert.Error(t, err)

	badDelay := filepath.Join(dir, "bad-delay.yaml")
	require.NoError(t, os.WriteFile(badDelay, []byte("policies:\n  warning:\n    steps:\n      - delay: soon\n        channels: [email]\n"), 0o644))
	_, err = LoadPolicies(badDelay)
	assert.Error(t, err)

	_, err = LoadPolicies(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
