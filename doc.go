// Package plantwatch provides sensor discovery and alert lifecycle
// management for industrial monitoring installations.
//
// # Architecture
//
// PlantWatch is organized around two cooperating planes:
//
// Discovery plane:
//   - adapter: protocol adapters enumerating sensors from heterogeneous
//     sources (TCP hub, HTTP tag server, bus announcements, register maps),
//     plus deterministic simulated sources for development
//   - discovery: the periodic orchestrator fanning out to all sources
//     concurrently, tolerating partial failure, and sweeping stale sensors
//     offline
//   - registry: the durable single-writer store of sensor descriptors and
//     derived equipment groups, persisted as a versioned JSON snapshot
//
// Alerting plane:
//   - ingest: trigger ingress from NATS subjects alerts.{equipmentId}.{sensor}
//   - alert: trigger validation and the lifecycle manager owning creation,
//     deduplication, acknowledgement, and clearing
//   - escalation: per-severity escalation policies and the cancellable
//     step-timer scheduler
//   - notify: independent notification channels (email, SMS, webhook,
//     websocket push, audio cues) behind a fan-out dispatcher
//
// Shared infrastructure lives in component (lifecycle contract), natsclient
// (reconnecting bus client), metric (Prometheus), errors (classified
// errors), and pkg (retry, LRU cache). The service package assembles the
// graph and cmd/plantwatch is the entry point.
package plantwatch
