// Package adapter contains the protocol adapters that enumerate sensors from
// heterogeneous data sources and map them to the common descriptor.
//
// Every source family (hub, tagserver, pubsub, register) has a real adapter
// and a deterministic simulated adapter implementing the same Source
// interface. Which variant runs is decided once at startup by configuration,
// never by runtime capability probing inside discovery logic.
package adapter

import (
	"context"
	"time"

	"github.com/c360/plantwatch/sensor"
)

// Source family names
const (
	SourceHub       = "hub"
	SourceTagServer = "tagserver"
	SourcePubSub    = "pubsub"
	SourceRegister  = "register"
)

// DefaultTimeout bounds a single Discover call for connection-oriented sources
const DefaultTimeout = 5 * time.Second

// Source enumerates sensors from one protocol family.
//
// Discover must be idempotent, side-effect-free beyond transient connections
// it owns, and honor context cancellation. It returns the descriptors it
// could enumerate or an error; the orchestrator isolates per-source failures
// so one broken source never blocks discovery of the others.
type Source interface {
	Name() string
	Discover(ctx context.Context) ([]sensor.Descriptor, error)
}

// withTimeout derives a bounded context for a single discovery call
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return context.WithTimeout(ctx, timeout)
}
