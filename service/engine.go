// Package service assembles the PlantWatch components into a running
// engine: the NATS client, sensor registry, discovery orchestrator,
// escalation scheduler, notification dispatcher, alert lifecycle manager,
// and trigger ingress, plus the health and metrics HTTP endpoint.
package service

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/c360/plantwatch/adapter"
	"github.com/c360/plantwatch/alert"
	"github.com/c360/plantwatch/component"
	"github.com/c360/plantwatch/config"
	"github.com/c360/plantwatch/discovery"
	"github.com/c360/plantwatch/errors"
	"github.com/c360/plantwatch/escalation"
	"github.com/c360/plantwatch/ingest"
	"github.com/c360/plantwatch/metric"
	"github.com/c360/plantwatch/natsclient"
	"github.com/c360/plantwatch/notify"
	"github.com/c360/plantwatch/registry"
)

// stopTimeout bounds each component's graceful shutdown
const stopTimeout = 10 * time.Second

// Engine owns the full component graph and its lifecycle
type Engine struct {
	cfg    config.Config
	logger *slog.Logger

	nats       *natsclient.Client
	metrics    *metric.MetricsRegistry
	registry   *registry.Registry
	manager    *alert.Manager
	scheduler  *escalation.Scheduler
	dispatcher *notify.Dispatcher

	// lifecycle components, started in order and stopped in reverse
	components []component.LifecycleComponent
	httpServer *http.Server
	cancel     context.CancelFunc
}

// New wires the component graph from configuration. Nothing is connected or
// started until Start.
func New(cfg config.Config, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		cfg:      cfg,
		logger:   logger.With("component", "engine"),
		metrics:  metric.NewMetricsRegistry(),
		registry: registry.New(logger),
	}
	core := e.metrics.CoreMetrics()

	nats, err := natsclient.NewClient(cfg.NATS.URL,
		natsclient.WithName(cfg.NATS.Name),
		natsclient.WithLogger(logger),
		natsclient.WithCredentials(cfg.NATS.Username, cfg.NATS.Password),
		natsclient.WithStatusCallback(func(connected bool) {
			if connected {
				core.NATSConnected.Set(1)
			} else {
				core.NATSConnected.Set(0)
			}
		}),
	)
	if err != nil {
		return nil, err
	}
	e.nats = nats

	policies, err := escalation.LoadPolicies(cfg.Escalation.PolicyPath)
	if err != nil {
		return nil, err
	}
	e.scheduler = escalation.NewScheduler(policies, logger)

	e.dispatcher = notify.NewDispatcher(e.buildChannels(logger), nil, core, logger)

	manager, err := alert.NewManager(alert.ManagerDeps{
		Escalator: e.scheduler,
		Notifier:  e.dispatcher,
		Publisher: alert.NewNATSPublisher(nats, logger),
		Metrics:   core,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	e.manager = manager
	e.dispatcher.SetRecorder(manager)

	// Close the manager/scheduler/dispatcher triangle: a fired step
	// escalates the alert, then dispatches the step's channels.
	e.scheduler.SetFire(func(alertID string, level int, channels []string) {
		a, ok := manager.Escalate(alertID)
		if !ok {
			return
		}
		e.dispatcher.Dispatch(context.Background(), a, channels)
	})

	sources, err := e.buildSources(logger)
	if err != nil {
		return nil, err
	}
	orchestrator := discovery.NewOrchestrator(discovery.Config{
		Interval:         cfg.Discovery.Interval.Std(),
		SourceTimeout:    cfg.Discovery.SourceTimeout.Std(),
		OfflineThreshold: cfg.Discovery.OfflineThreshold.Std(),
		SnapshotPath:     cfg.Discovery.SnapshotPath,
	}, sources, e.registry, nats, core, logger)

	subscriber := ingest.NewSubscriber(nats, manager, core, logger)

	e.components = []component.LifecycleComponent{orchestrator, subscriber}
	return e, nil
}

// buildChannels creates every notification channel plus the escalation
// milestone markers. Disabled channels are still registered; the dispatcher
// skips them at delivery time.
func (e *Engine) buildChannels(logger *slog.Logger) []notify.Channel {
	return []notify.Channel{
		notify.NewEmail(e.cfg.Channels.Email),
		notify.NewSMS(e.cfg.Channels.SMS),
		notify.NewWebhook(e.cfg.Channels.Webhook),
		notify.NewPush(e.cfg.Channels.Push),
		notify.NewAudio(e.cfg.Channels.Audio, e.nats),
		notify.NewMarker(escalation.MarkerManagement, logger),
		notify.NewMarker(escalation.MarkerBroadcast, logger),
	}
}

// buildSources creates the enabled discovery sources
func (e *Engine) buildSources(logger *slog.Logger) ([]adapter.Source, error) {
	var sources []adapter.Source

	if e.cfg.Sources.Hub.Enabled {
		hub, err := adapter.NewHub(e.cfg.Sources.Hub.HubConfig, logger)
		if err != nil {
			return nil, err
		}
		sources = append(sources, hub)
	}
	if e.cfg.Sources.TagServer.Enabled {
		ts, err := adapter.NewTagServer(e.cfg.Sources.TagServer.TagServerConfig, logger)
		if err != nil {
			return nil, err
		}
		sources = append(sources, ts)
	}
	if e.cfg.Sources.PubSub.Enabled {
		ps, err := adapter.NewPubSub(e.cfg.Sources.PubSub.PubSubConfig, e.nats, logger)
		if err != nil {
			return nil, err
		}
		sources = append(sources, ps)
	}
	if e.cfg.Sources.Register.Enabled {
		reg, err := adapter.NewRegister(e.cfg.Sources.Register.RegisterConfig, logger)
		if err != nil {
			return nil, err
		}
		sources = append(sources, reg)
	}
	if e.cfg.Sources.Simulated.Enabled {
		sources = append(sources, adapter.NewSimulated(e.cfg.Sources.Simulated.Family, e.cfg.Sources.Simulated.Count, logger))
	}

	if len(sources) == 0 {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "engine", "buildSources", "enabled source check")
	}
	return sources, nil
}

// Manager exposes the alert lifecycle manager, for the HTTP surface and tests
func (e *Engine) Manager() *alert.Manager { return e.manager }

// Registry exposes the sensor registry
func (e *Engine) Registry() *registry.Registry { return e.registry }

// Start connects the bus, initializes and starts every component in order,
// and brings up the HTTP endpoint. On any failure the already-started
// components are stopped in reverse.
func (e *Engine) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	if err := e.nats.Connect(runCtx); err != nil {
		cancel()
		return errors.Wrap(err, "engine", "Start", "NATS connect")
	}

	var started []component.LifecycleComponent
	for _, comp := range e.components {
		meta := comp.Meta()
		if err := comp.Initialize(); err != nil {
			e.stopAll(started)
			cancel()
			return errors.Wrap(err, "engine", "Start", "initialize "+meta.Name)
		}
		if err := comp.Start(runCtx); err != nil {
			e.stopAll(started)
			cancel()
			return errors.Wrap(err, "engine", "Start", "start "+meta.Name)
		}
		started = append(started, comp)
		e.logger.Info("Component started", "name", meta.Name, "type", meta.Type)
	}

	e.startHTTP()
	e.logger.Info("Engine started", "components", len(e.components))
	return nil
}

// startHTTP serves /healthz, /readyz, /metrics, and the read-only alert and
// sensor views.
func (e *Engine) startHTTP() {
	if e.cfg.Service.HTTPAddr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", e.metrics.Handler())
	mux.HandleFunc("/healthz", e.handleHealth)
	mux.HandleFunc("/readyz", e.handleReady)
	mux.HandleFunc("/api/alerts", e.handleAlerts)
	mux.HandleFunc("/api/alerts/", e.handleAlertCommand)
	mux.HandleFunc("/api/sensors", e.handleSensors)

	e.httpServer = &http.Server{
		Addr:              e.cfg.Service.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := e.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			e.logger.Error("HTTP server failed", "error", err)
		}
	}()
	e.logger.Info("HTTP endpoint listening", "addr", e.cfg.Service.HTTPAddr)
}

// handleHealth reports per-component health
func (e *Engine) handleHealth(w http.ResponseWriter, _ *http.Request) {
	type componentHealth struct {
		Name   string                 `json:"name"`
		Health component.HealthStatus `json:"health"`
	}

	healthy := true
	report := make([]componentHealth, 0, len(e.components))
	for _, comp := range e.components {
		h := comp.Health()
		healthy = healthy && h.Healthy
		report = append(report, componentHealth{Name: comp.Meta().Name, Health: h})
	}

	w.Header().Set("Content-Type", "application/json")
	if !healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"healthy":    healthy,
		"components": report,
	})
}

// handleReady reports bus connectivity
func (e *Engine) handleReady(w http.ResponseWriter, _ *http.Request) {
	if e.nats.Status() != natsclient.StatusConnected {
		http.Error(w, "nats disconnected", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// handleAlerts serves the active alert set
func (e *Engine) handleAlerts(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(e.manager.Active())
}

// handleAlertCommand routes POST /api/alerts/{id}/acknowledge and
// POST /api/alerts/{id}/clear to the lifecycle manager.
func (e *Engine) handleAlertCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/alerts/")
	id, action, ok := strings.Cut(rest, "/")
	if !ok || id == "" {
		http.Error(w, "expected /api/alerts/{id}/{action}", http.StatusBadRequest)
		return
	}

	var body struct {
		By     string `json:"by"`
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if body.By == "" {
		http.Error(w, "by is required", http.StatusBadRequest)
		return
	}

	var err error
	switch action {
	case "acknowledge":
		err = e.manager.Acknowledge(id, body.By, body.Reason)
	case "clear":
		err = e.manager.Clear(id, body.By, body.Reason)
	default:
		http.Error(w, "unknown action "+action, http.StatusBadRequest)
		return
	}
	if err != nil {
		if stderrors.Is(err, errors.ErrAlertNotFound) {
			http.Error(w, "alert not found", http.StatusNotFound)
		} else {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if a, ok := e.manager.Get(id); ok {
		json.NewEncoder(w).Encode(a)
		return
	}
	// Cleared alerts leave the active set
	json.NewEncoder(w).Encode(map[string]string{"id": id, "status": "cleared"})
}

// handleSensors serves the registry export
func (e *Engine) handleSensors(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(e.registry.Export())
}

// Stop shuts the engine down: HTTP first so no new requests land, then
// components in reverse start order, then in-flight notification deliveries,
// then the bus connection.
func (e *Engine) Stop(ctx context.Context) error {
	if e.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, stopTimeout)
		if err := e.httpServer.Shutdown(shutdownCtx); err != nil {
			e.logger.Warn("HTTP shutdown failed", "error", err)
		}
		cancel()
	}

	e.stopAll(e.components)
	e.dispatcher.Wait()

	if e.cancel != nil {
		e.cancel()
	}
	if err := e.nats.Close(ctx); err != nil {
		e.logger.Warn("NATS close failed", "error", err)
	}

	e.logger.Info("Engine stopped")
	return nil
}

// stopAll stops components in reverse order
func (e *Engine) stopAll(comps []component.LifecycleComponent) {
	for i := len(comps) - 1; i >= 0; i-- {
		meta := comps[i].Meta()
		if err := comps[i].Stop(stopTimeout); err != nil {
			e.logger.Warn("Component stop failed", "name", meta.Name, "error", err)
		} else {
			e.logger.Info("Component stopped", "name", meta.Name)
		}
	}
}
