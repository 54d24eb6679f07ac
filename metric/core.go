package metric

import "github.com/prometheus/client_golang/prometheus"

// Namespace is the Prometheus namespace for all PlantWatch metrics
const Namespace = "plantwatch"

// Metrics holds the core platform metrics shared across components
type Metrics struct {
	// Discovery
	DiscoveryCycles        prometheus.Counter
	DiscoveryCyclesSkipped prometheus.Counter
	DiscoveryDuration      prometheus.Histogram
	SensorsByStatus        *prometheus.GaugeVec
	AdapterErrors          *prometheus.CounterVec

	// Alert lifecycle
	AlertsActive       prometheus.Gauge
	AlertsCreated      prometheus.Counter
	AlertsDeduplicated prometheus.Counter
	AlertsCleared      prometheus.Counter
	TriggersRejected   *prometheus.CounterVec
	EscalationsFired   prometheus.Counter

	// Notifications
	NotificationAttempts *prometheus.CounterVec
	NotificationDuration prometheus.Histogram

	// Transport
	NATSConnected prometheus.Gauge
}

// NewMetrics creates the core platform metrics
func NewMetrics() *Metrics {
	return &Metrics{
		DiscoveryCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "discovery",
			Name:      "cycles_total",
			Help:      "Total discovery cycles completed",
		}),
		DiscoveryCyclesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "discovery",
			Name:      "cycles_skipped_total",
			Help:      "Discovery ticks skipped because a cycle was still in flight",
		}),
		DiscoveryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "discovery",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of complete discovery cycles",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		SensorsByStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "registry",
			Name:      "sensors",
			Help:      "Registered sensors by status",
		}, []string{"status"}),
		AdapterErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "discovery",
			Name:      "adapter_errors_total",
			Help:      "Discovery failures per adapter source",
		}, []string{"source"}),
		AlertsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "alerts",
			Name:      "active",
			Help:      "Currently active (not cleared) alerts",
		}),
		AlertsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "alerts",
			Name:      "created_total",
			Help:      "Alerts created from valid non-duplicate triggers",
		}),
		AlertsDeduplicated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "alerts",
			Name:      "deduplicated_total",
			Help:      "Triggers merged into an existing active alert",
		}),
		AlertsCleared: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "alerts",
			Name:      "cleared_total",
			Help:      "Alerts cleared and moved to history",
		}),
		TriggersRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "alerts",
			Name:      "triggers_rejected_total",
			Help:      "Triggers rejected by validation, by reason",
		}, []string{"reason"}),
		EscalationsFired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "escalation",
			Name:      "steps_fired_total",
			Help:      "Escalation steps that fired and dispatched",
		}),
		NotificationAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "notify",
			Name:      "attempts_total",
			Help:      "Notification attempts by channel and outcome",
		}, []string{"channel", "outcome"}),
		NotificationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "notify",
			Name:      "send_duration_seconds",
			Help:      "Duration of channel sends including retries",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "nats",
			Name:      "connected",
			Help:      "Whether the NATS connection is established (1) or not (0)",
		}),
	}
}
