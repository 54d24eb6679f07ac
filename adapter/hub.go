package adapter

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/c360/plantwatch/errors"
	"github.com/c360/plantwatch/sensor"
)

// HubConfig configures a hub adapter
type HubConfig struct {
	Address  string        `json:"address"` // host:port of the sensor hub
	Timeout  time.Duration `json:"timeout,omitempty"`
	Location string        `json:"location,omitempty"` // default location for attached sensors
}

// Hub enumerates sensors attached to a TCP sensor hub. The hub speaks a
// line-oriented protocol: the adapter sends "LIST" and receives one JSON
// record per attached sensor, terminated by "END".
type Hub struct {
	cfg    HubConfig
	logger *slog.Logger
}

// hubRecord is the wire format of one hub enumeration line
type hubRecord struct {
	Port      int     `json:"port"`
	Serial    string  `json:"serial"`
	Name      string  `json:"name"`
	Kind      string  `json:"kind"`
	Unit      string  `json:"unit"`
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	Equipment string  `json:"equipment"`
	Category  string  `json:"category"`
}

// NewHub creates a hub adapter
func NewHub(cfg HubConfig, logger *slog.Logger) (*Hub, error) {
	if cfg.Address == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "hub-adapter", "NewHub", "address validation")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		cfg:    cfg,
		logger: logger.With("component", "hub-adapter", "address", cfg.Address),
	}, nil
}

// Name returns the source family name
func (h *Hub) Name() string { return SourceHub }

// Discover connects to the hub and enumerates attached sensors
func (h *Hub) Discover(ctx context.Context) ([]sensor.Descriptor, error) {
	ctx, cancel := withTimeout(ctx, h.cfg.Timeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", h.cfg.Address)
	if err != nil {
		return nil, errors.WrapTransient(err, "hub-adapter", "Discover", "hub connection")
	}
	defer func() { _ = conn.Close() }()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if _, err := fmt.Fprintln(conn, "LIST"); err != nil {
		return nil, errors.WrapTransient(err, "hub-adapter", "Discover", "enumeration request")
	}

	var descriptors []sensor.Descriptor
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "END" {
			break
		}

		var rec hubRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			h.logger.Warn("Skipping malformed hub record", "line", line, "error", err)
			continue
		}
		descriptors = append(descriptors, h.toDescriptor(rec))
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.WrapTransient(err, "hub-adapter", "Discover", "enumeration read")
	}

	return descriptors, nil
}

// toDescriptor maps a hub record to the common descriptor. The id combines
// the hub serial with the port so it stays stable across rediscovery even
// when sensors are renamed.
func (h *Hub) toDescriptor(rec hubRecord) sensor.Descriptor {
	equipment := rec.Equipment
	if equipment == "" {
		equipment = fmt.Sprintf("hub-%s", rec.Serial)
	}
	return sensor.Descriptor{
		ID:          fmt.Sprintf("hub-%s-port%d", rec.Serial, rec.Port),
		Name:        rec.Name,
		Type:        rec.Kind,
		Unit:        rec.Unit,
		Min:         rec.Min,
		Max:         rec.Max,
		Source:      SourceHub,
		Location:    h.cfg.Location,
		EquipmentID: equipment,
		Category:    rec.Category,
		Status:      sensor.StatusActive,
	}
}
