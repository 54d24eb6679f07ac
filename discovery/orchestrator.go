// Package discovery runs the periodic sensor discovery cycle: it fans out to
// every configured source concurrently, merges the results into the registry,
// sweeps stale sensors offline, and persists a snapshot. One cycle runs at a
// time; a tick that arrives while a cycle is still in flight is skipped.
package discovery

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/plantwatch/adapter"
	"github.com/c360/plantwatch/component"
	"github.com/c360/plantwatch/errors"
	"github.com/c360/plantwatch/metric"
	"github.com/c360/plantwatch/natsclient"
	"github.com/c360/plantwatch/registry"
	"github.com/c360/plantwatch/sensor"
)

// CompleteSubject is the bus subject announcing a finished cycle
const CompleteSubject = "discovery.complete"

// Default cycle parameters
const (
	DefaultInterval         = 60 * time.Second
	DefaultSourceTimeout    = 10 * time.Second
	DefaultOfflineThreshold = 5 * time.Minute
)

// Config holds orchestrator settings
type Config struct {
	// Interval between discovery cycles
	Interval time.Duration
	// SourceTimeout bounds one source's Discover call within a cycle
	SourceTimeout time.Duration
	// OfflineThreshold is how long a sensor may go unseen before the sweep
	// marks it offline
	OfflineThreshold time.Duration
	// SnapshotPath is where the registry snapshot is written after each
	// cycle that changed state. Empty disables persistence.
	SnapshotPath string
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.SourceTimeout <= 0 {
		c.SourceTimeout = DefaultSourceTimeout
	}
	if c.OfflineThreshold <= 0 {
		c.OfflineThreshold = DefaultOfflineThreshold
	}
	return c
}

// CycleResult summarizes one completed discovery cycle
type CycleResult struct {
	Discovered    int           `json:"discovered"`
	New           int           `json:"new"`
	Refreshed     int           `json:"refreshed"`
	MarkedOffline int           `json:"markedOffline"`
	SourceErrors  int           `json:"sourceErrors"`
	Groups        int           `json:"groups"`
	Elapsed       time.Duration `json:"elapsed"`
	Timestamp     time.Time     `json:"timestamp"`
}

// Orchestrator is the sole writer of the sensor registry. It implements
// component.LifecycleComponent.
type Orchestrator struct {
	config   Config
	sources  []adapter.Source
	registry *registry.Registry
	nats     *natsclient.Client // optional, for cycle announcements
	metrics  *metric.Metrics
	logger   *slog.Logger

	inFlight atomic.Bool
	stopCh   chan struct{}
	doneCh   chan struct{}

	mu         sync.Mutex
	state      component.State
	startedAt  time.Time
	lastCheck  time.Time
	errorCount int
	lastError  string
}

// NewOrchestrator creates a discovery orchestrator over the given sources
func NewOrchestrator(config Config, sources []adapter.Source, reg *registry.Registry, nats *natsclient.Client, metrics *metric.Metrics, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		config:   config.withDefaults(),
		sources:  sources,
		registry: reg,
		nats:     nats,
		metrics:  metrics,
		logger:   logger.With("component", "discovery"),
		state:    component.StateCreated,
	}
}

// Meta implements component.Discoverable
func (o *Orchestrator) Meta() component.Metadata {
	return component.Metadata{
		Name:        "discovery",
		Type:        "orchestrator",
		Description: "periodic multi-source sensor discovery",
		Version:     "1.0.0",
	}
}

// Health implements component.Discoverable
func (o *Orchestrator) Health() component.HealthStatus {
	o.mu.Lock()
	defer o.mu.Unlock()

	status := component.HealthStatus{
		Healthy:    o.state == component.StateStarted,
		LastCheck:  o.lastCheck,
		ErrorCount: o.errorCount,
		LastError:  o.lastError,
	}
	if !o.startedAt.IsZero() {
		status.Uptime = time.Since(o.startedAt)
	}
	return status
}

// Initialize validates configuration. Loading a previous snapshot happens
// here so a restart starts from the last known sensor set.
func (o *Orchestrator) Initialize() error {
	if o.registry == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "discovery", "Initialize", "registry validation")
	}
	if len(o.sources) == 0 {
		return errors.WrapInvalid(errors.ErrMissingConfig, "discovery", "Initialize", "source validation")
	}

	if o.config.SnapshotPath != "" {
		if err := o.registry.Load(o.config.SnapshotPath); err != nil {
			return errors.Wrap(err, "discovery", "Initialize", "snapshot load")
		}
	}

	o.mu.Lock()
	o.state = component.StateInitialized
	o.mu.Unlock()
	return nil
}

// Start launches the cycle loop. The first cycle runs immediately, then on
// every interval tick.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.state != component.StateInitialized {
		o.mu.Unlock()
		return errors.WrapInvalid(errors.ErrNotInitialized, "discovery", "Start", "state check")
	}
	o.state = component.StateStarted
	o.startedAt = time.Now()
	o.stopCh = make(chan struct{})
	o.doneCh = make(chan struct{})
	o.mu.Unlock()

	go o.run(ctx)

	o.logger.Info("Discovery orchestrator started",
		"interval", o.config.Interval,
		"sources", len(o.sources),
		"offline_threshold", o.config.OfflineThreshold)
	return nil
}

// run is the cycle loop
func (o *Orchestrator) run(ctx context.Context) {
	defer close(o.doneCh)

	if _, err := o.RunCycle(ctx); err != nil {
		o.logger.Warn("Initial discovery cycle failed", "error", err)
	}

	ticker := time.NewTicker(o.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.stopCh:
			return
		case <-ticker.C:
			if _, err := o.RunCycle(ctx); err != nil {
				o.logger.Warn("Discovery cycle failed", "error", err)
			}
		}
	}
}

// Stop halts the cycle loop, waiting up to timeout for an in-flight cycle
func (o *Orchestrator) Stop(timeout time.Duration) error {
	o.mu.Lock()
	if o.state != component.StateStarted {
		o.mu.Unlock()
		return nil
	}
	o.state = component.StateStopped
	stopCh, doneCh := o.stopCh, o.doneCh
	o.mu.Unlock()

	close(stopCh)
	select {
	case <-doneCh:
		o.logger.Info("Discovery orchestrator stopped")
		return nil
	case <-time.After(timeout):
		return errors.WrapTransient(errors.ErrStopTimeout, "discovery", "Stop", "loop shutdown")
	}
}

// sourceResult carries one source's contribution to a cycle
type sourceResult struct {
	name    string
	sensors []sensor.Descriptor
	err     error
}

// RunCycle executes one discovery cycle. If a cycle is already in flight the
// call is skipped with ErrCycleInFlight; the spawn-and-skip discipline keeps
// slow adapters from stacking cycles. A failing source never fails the
// cycle: its error is counted and the remaining sources' results are merged.
func (o *Orchestrator) RunCycle(ctx context.Context) (CycleResult, error) {
	if !o.inFlight.CompareAndSwap(false, true) {
		if o.metrics != nil {
			o.metrics.DiscoveryCyclesSkipped.Inc()
		}
		o.logger.Warn("Skipping discovery cycle, previous cycle still in flight")
		return CycleResult{}, errors.WrapTransient(errors.ErrCycleInFlight, "discovery", "RunCycle", "overlap check")
	}
	defer o.inFlight.Store(false)

	start := time.Now()
	results := make(chan sourceResult, len(o.sources))
	var wg sync.WaitGroup
	for _, src := range o.sources {
		wg.Add(1)
		go func(src adapter.Source) {
			defer wg.Done()
			sctx, cancel := context.WithTimeout(ctx, o.config.SourceTimeout)
			defer cancel()
			sensors, err := src.Discover(sctx)
			results <- sourceResult{name: src.Name(), sensors: sensors, err: err}
		}(src)
	}
	wg.Wait()
	close(results)

	seenAt := time.Now().UTC()
	result := CycleResult{Timestamp: seenAt}

	for res := range results {
		if res.err != nil {
			result.SourceErrors++
			o.recordError(res.err)
			if o.metrics != nil {
				o.metrics.AdapterErrors.WithLabelValues(res.name).Inc()
			}
			o.logger.Warn("Source discovery failed",
				"source", res.name, "error", res.err)
			continue
		}
		for _, d := range res.sensors {
			isNew, err := o.registry.Upsert(d, seenAt)
			if err != nil {
				o.logger.Warn("Dropping invalid descriptor",
					"source", res.name, "id", d.ID, "error", err)
				continue
			}
			result.Discovered++
			if isNew {
				result.New++
				o.logger.Info("Discovered new sensor",
					"id", d.ID, "source", d.Source, "equipment", d.EquipmentID)
			} else {
				result.Refreshed++
			}
		}
	}

	for _, id := range o.registry.StaleIDs(seenAt, o.config.OfflineThreshold) {
		if o.registry.MarkOffline(id) {
			result.MarkedOffline++
			o.logger.Warn("Sensor marked offline", "id", id)
		}
	}

	result.Groups = o.registry.RebuildGroups()

	if o.config.SnapshotPath != "" {
		if err := o.registry.Save(o.config.SnapshotPath); err != nil {
			o.recordError(err)
			o.logger.Error("Failed to persist registry snapshot", "error", err)
		}
	}

	result.Elapsed = time.Since(start)
	o.observeCycle(result)
	o.announce(result)

	o.logger.Info("Discovery cycle complete",
		"discovered", result.Discovered,
		"new", result.New,
		"offline", result.MarkedOffline,
		"source_errors", result.SourceErrors,
		"elapsed", result.Elapsed)

	if result.Elapsed > o.config.Interval {
		o.logger.Warn("Discovery cycle overran the interval",
			"elapsed", result.Elapsed, "interval", o.config.Interval)
	}
	return result, nil
}

// observeCycle updates cycle metrics and the per-status sensor gauges
func (o *Orchestrator) observeCycle(result CycleResult) {
	o.mu.Lock()
	o.lastCheck = time.Now()
	o.mu.Unlock()

	if o.metrics == nil {
		return
	}
	o.metrics.DiscoveryCycles.Inc()
	o.metrics.DiscoveryDuration.Observe(result.Elapsed.Seconds())
	for _, status := range []sensor.Status{sensor.StatusActive, sensor.StatusOffline, sensor.StatusSimulated} {
		o.metrics.SensorsByStatus.WithLabelValues(string(status)).Set(float64(len(o.registry.ByStatus(status))))
	}
}

// announce publishes the cycle summary on the bus, best-effort
func (o *Orchestrator) announce(result CycleResult) {
	if o.nats == nil {
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := o.nats.Publish(CompleteSubject, data); err != nil {
		o.logger.Debug("Failed to announce discovery cycle", "error", err)
	}
}

// recordError updates health bookkeeping
func (o *Orchestrator) recordError(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errorCount++
	o.lastError = err.Error()
}
