package adapter

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360/plantwatch/errors"
	"github.com/c360/plantwatch/natsclient"
	"github.com/c360/plantwatch/sensor"
)

// DiscoverSubject is the request subject announced publishers respond to
const DiscoverSubject = "sensors.discover"

// PubSubConfig configures a pub/sub adapter
type PubSubConfig struct {
	Subject string        `json:"subject,omitempty"` // override for DiscoverSubject
	Timeout time.Duration `json:"timeout,omitempty"`
}

// PubSub enumerates sensors published over the message bus. It broadcasts a
// discovery request and gathers announcement replies from every publisher
// until the collection window closes. Publishers that are down simply do not
// reply; that is not an error for the ones that do.
type PubSub struct {
	cfg    PubSubConfig
	client *natsclient.Client
	logger *slog.Logger
}

// announcement is the reply payload each sensor publisher sends
type announcement struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Kind      string  `json:"kind"`
	Unit      string  `json:"unit,omitempty"`
	Min       float64 `json:"min,omitempty"`
	Max       float64 `json:"max,omitempty"`
	Equipment string  `json:"equipment"`
	Location  string  `json:"location,omitempty"`
	Category  string  `json:"category,omitempty"`
}

// NewPubSub creates a pub/sub adapter over the shared NATS client
func NewPubSub(cfg PubSubConfig, client *natsclient.Client, logger *slog.Logger) (*PubSub, error) {
	if client == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "pubsub-adapter", "NewPubSub", "NATS client validation")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Subject == "" {
		cfg.Subject = DiscoverSubject
	}
	return &PubSub{
		cfg:    cfg,
		client: client,
		logger: logger.With("component", "pubsub-adapter"),
	}, nil
}

// Name returns the source family name
func (p *PubSub) Name() string { return SourcePubSub }

// Discover broadcasts a discovery request and collects announcements
func (p *PubSub) Discover(ctx context.Context) ([]sensor.Descriptor, error) {
	ctx, cancel := withTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	conn := p.client.Connection()
	if conn == nil {
		return nil, errors.WrapTransient(natsclient.ErrNotConnected,
			"pubsub-adapter", "Discover", "connection check")
	}

	inbox := nats.NewInbox()
	sub, err := conn.SubscribeSync(inbox)
	if err != nil {
		return nil, errors.WrapTransient(err, "pubsub-adapter", "Discover", "inbox subscribe")
	}
	defer func() { _ = sub.Unsubscribe() }()

	if err := conn.PublishRequest(p.cfg.Subject, inbox, nil); err != nil {
		return nil, errors.WrapTransient(err, "pubsub-adapter", "Discover", "discovery broadcast")
	}

	var descriptors []sensor.Descriptor
	for {
		msg, err := sub.NextMsgWithContext(ctx)
		if err != nil {
			// The collection window closing is the normal exit
			if ctx.Err() != nil {
				return descriptors, nil
			}
			return descriptors, errors.WrapTransient(err, "pubsub-adapter", "Discover", "announcement read")
		}

		var ann announcement
		if err := json.Unmarshal(msg.Data, &ann); err != nil {
			p.logger.Warn("Skipping malformed announcement", "error", err)
			continue
		}
		if ann.ID == "" || ann.Equipment == "" {
			p.logger.Warn("Skipping incomplete announcement", "id", ann.ID)
			continue
		}
		descriptors = append(descriptors, sensor.Descriptor{
			ID:          "pubsub-" + ann.ID,
			Name:        ann.Name,
			Type:        ann.Kind,
			Unit:        ann.Unit,
			Min:         ann.Min,
			Max:         ann.Max,
			Source:      SourcePubSub,
			Location:    ann.Location,
			EquipmentID: ann.Equipment,
			Category:    ann.Category,
			Status:      sensor.StatusActive,
		})
	}
}
