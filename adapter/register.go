package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/c360/plantwatch/errors"
	"github.com/c360/plantwatch/sensor"
)

// RegisterPoint maps one register address on a device to sensor metadata.
// The byte-level register decoding is owned by a lower-level driver; the
// adapter contract only covers enumeration.
type RegisterPoint struct {
	Register  uint16  `json:"register"`
	Name      string  `json:"name"`
	Kind      string  `json:"kind"`
	Unit      string  `json:"unit,omitempty"`
	Min       float64 `json:"min,omitempty"`
	Max       float64 `json:"max,omitempty"`
	Equipment string  `json:"equipment"`
	Category  string  `json:"category,omitempty"`
}

// RegisterDeviceConfig configures one register-addressed device
type RegisterDeviceConfig struct {
	Address  string          `json:"address"` // host:port
	UnitID   uint8           `json:"unit_id"`
	Location string          `json:"location,omitempty"`
	Points   []RegisterPoint `json:"points"`
}

// RegisterConfig configures a register adapter
type RegisterConfig struct {
	Devices []RegisterDeviceConfig `json:"devices"`
	Timeout time.Duration          `json:"timeout,omitempty"`
}

// Register enumerates register-addressed devices (Modbus-style). Device point
// maps come from configuration; discovery verifies each device is reachable
// and emits descriptors for its configured points. Unreachable devices
// contribute nothing to the cycle.
type Register struct {
	cfg    RegisterConfig
	logger *slog.Logger
}

// NewRegister creates a register adapter
func NewRegister(cfg RegisterConfig, logger *slog.Logger) (*Register, error) {
	if len(cfg.Devices) == 0 {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "register-adapter", "NewRegister", "device list validation")
	}
	for i, dev := range cfg.Devices {
		if dev.Address == "" {
			return nil, errors.WrapInvalid(
				fmt.Errorf("device %d missing address", i),
				"register-adapter", "NewRegister", "device validation")
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Register{
		cfg:    cfg,
		logger: logger.With("component", "register-adapter"),
	}, nil
}

// Name returns the source family name
func (r *Register) Name() string { return SourceRegister }

// Discover probes each configured device and emits descriptors for the
// points of every reachable one.
func (r *Register) Discover(ctx context.Context) ([]sensor.Descriptor, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	var descriptors []sensor.Descriptor
	var unreachable int

	for _, dev := range r.cfg.Devices {
		if err := r.probe(ctx, dev.Address); err != nil {
			unreachable++
			r.logger.Warn("Register device unreachable",
				"address", dev.Address, "unit_id", dev.UnitID, "error", err)
			continue
		}
		for _, point := range dev.Points {
			descriptors = append(descriptors, r.toDescriptor(dev, point))
		}
	}

	if unreachable == len(r.cfg.Devices) {
		return nil, errors.WrapTransient(errors.ErrAdapterUnavailable,
			"register-adapter", "Discover", "device probing")
	}
	return descriptors, nil
}

// probe verifies a device accepts TCP connections
func (r *Register) probe(ctx context.Context, address string) error {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return err
	}
	return conn.Close()
}

// toDescriptor maps a configured register point to a descriptor. The id is
// derived from device address, unit and register, which stays stable across
// rediscovery and renames.
func (r *Register) toDescriptor(dev RegisterDeviceConfig, point RegisterPoint) sensor.Descriptor {
	return sensor.Descriptor{
		ID:          fmt.Sprintf("reg-%s-u%d-r%d", dev.Address, dev.UnitID, point.Register),
		Name:        point.Name,
		Type:        point.Kind,
		Unit:        point.Unit,
		Min:         point.Min,
		Max:         point.Max,
		Source:      SourceRegister,
		Location:    dev.Location,
		EquipmentID: point.Equipment,
		Category:    point.Category,
		Status:      sensor.StatusActive,
	}
}
