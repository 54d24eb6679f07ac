package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/c360/plantwatch/errors"
	"github.com/c360/plantwatch/sensor"
)

// TagServerConfig configures a tag server adapter
type TagServerConfig struct {
	BaseURL  string        `json:"base_url"` // e.g. http://tagserver:8088
	Provider string        `json:"provider,omitempty"`
	Timeout  time.Duration `json:"timeout,omitempty"`
	Username string        `json:"username,omitempty"`
	Password string        `json:"password,omitempty"`
}

// TagServer enumerates points from an HTTP tag server. The server exposes its
// browseable tag tree as a flat JSON list at /api/tags.
type TagServer struct {
	cfg    TagServerConfig
	client *http.Client
	logger *slog.Logger
}

// tagRecord is one entry of the tag server's /api/tags response
type tagRecord struct {
	Path      string  `json:"path"` // e.g. "Brewery/Tank_A01/Level"
	Name      string  `json:"name"`
	DataType  string  `json:"dataType"`
	Unit      string  `json:"engUnit"`
	MinValue  float64 `json:"minValue"`
	MaxValue  float64 `json:"maxValue"`
	AlarmLow  float64 `json:"alarmLow"`
	AlarmHigh float64 `json:"alarmHigh"`
}

// NewTagServer creates a tag server adapter
func NewTagServer(cfg TagServerConfig, logger *slog.Logger) (*TagServer, error) {
	if cfg.BaseURL == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "tagserver-adapter", "NewTagServer", "base URL validation")
	}
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &TagServer{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger.With("component", "tagserver-adapter", "base_url", cfg.BaseURL),
	}, nil
}

// Name returns the source family name
func (t *TagServer) Name() string { return SourceTagServer }

// Discover fetches the tag list and maps browseable points to descriptors
func (t *TagServer) Discover(ctx context.Context) ([]sensor.Descriptor, error) {
	ctx, cancel := withTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	url := strings.TrimRight(t.cfg.BaseURL, "/") + "/api/tags"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.WrapInvalid(err, "tagserver-adapter", "Discover", "request build")
	}
	if t.cfg.Username != "" {
		req.SetBasicAuth(t.cfg.Username, t.cfg.Password)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, errors.WrapTransient(err, "tagserver-adapter", "Discover", "tag list fetch")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.WrapTransient(
			fmt.Errorf("tag server returned %d", resp.StatusCode),
			"tagserver-adapter", "Discover", "tag list fetch")
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, errors.WrapTransient(err, "tagserver-adapter", "Discover", "response read")
	}

	var tags []tagRecord
	if err := json.Unmarshal(body, &tags); err != nil {
		return nil, errors.WrapInvalid(err, "tagserver-adapter", "Discover", "response decode")
	}

	descriptors := make([]sensor.Descriptor, 0, len(tags))
	for _, tag := range tags {
		d, ok := t.toDescriptor(tag)
		if !ok {
			continue
		}
		descriptors = append(descriptors, d)
	}
	return descriptors, nil
}

// toDescriptor maps a tag path like "Brewery/Tank_A01/Level" to a descriptor.
// Paths with fewer than three segments are structural folders, not points.
func (t *TagServer) toDescriptor(tag tagRecord) (sensor.Descriptor, bool) {
	parts := strings.Split(tag.Path, "/")
	if len(parts) < 3 {
		return sensor.Descriptor{}, false
	}

	category := parts[0]
	equipment := parts[len(parts)-2]
	name := tag.Name
	if name == "" {
		name = parts[len(parts)-1]
	}

	kind := "analog"
	if strings.EqualFold(tag.DataType, "boolean") {
		kind = "status"
	}

	d := sensor.Descriptor{
		ID:          fmt.Sprintf("tag-%s", strings.ReplaceAll(tag.Path, "/", ".")),
		Name:        name,
		Type:        kind,
		Unit:        tag.Unit,
		Min:         tag.MinValue,
		Max:         tag.MaxValue,
		Source:      SourceTagServer,
		EquipmentID: equipment,
		Category:    strings.ToLower(category),
		Status:      sensor.StatusActive,
	}
	if tag.AlarmLow != 0 || tag.AlarmHigh != 0 {
		d.Thresholds = sensor.Thresholds{
			WarningLow:  tag.AlarmLow,
			WarningHigh: tag.AlarmHigh,
		}
	}
	return d, true
}
