// Package metrics exposes the controller's cycle outcomes as Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/boiler-controller/internal/logic"
)

const namespace = "boiler_controller"

var modes = []logic.Mode{
	logic.ModeWaiting,
	logic.ModeReady,
	logic.ModeNormal,
	logic.ModeDegraded,
	logic.ModeRescue,
	logic.ModeEmergencyStop,
}

// Metrics holds the collectors for one controller, registered on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	cycles               prometheus.Counter
	transmissionFailures prometheus.Counter
	detections           prometheus.Counter
	repairs              prometheus.Counter
	messages             *prometheus.CounterVec
	publishErrors        prometheus.Counter
	journalErrors        prometheus.Counter

	mode           *prometheus.GaugeVec
	waterLevel     prometheus.Gauge
	steamLevel     prometheus.Gauge
	estimatedLevel prometheus.Gauge
	openPumps      prometheus.Gauge
	valveOpen      prometheus.Gauge
	deviceFailed   *prometheus.GaugeVec

	cycleDuration prometheus.Histogram

	last logic.Counts
}

// New creates the collectors. Go runtime and process collectors are
// registered alongside them.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		cycles: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Total number of control cycles run",
		}),
		transmissionFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transmission_failures_total",
			Help:      "Total number of inbound batches rejected by the transmission validator",
		}),
		detections: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failure_detections_total",
			Help:      "Total number of device failures detected",
		}),
		repairs: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "repairs_total",
			Help:      "Total number of device repairs acknowledged",
		}),
		messages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Total number of messages exchanged with the physical units",
		}, []string{"direction", "kind"}),
		publishErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Total number of outbound batches that failed to publish",
		}),
		journalErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "journal_errors_total",
			Help:      "Total number of cycles that failed to be journaled",
		}),

		mode: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mode",
			Help:      "Current operating mode (1 for the active mode, 0 otherwise)",
		}, []string{"mode"}),
		waterLevel: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "water_level",
			Help:      "Last water level reading accepted by the validator",
		}),
		steamLevel: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "steam_level",
			Help:      "Last steam output reading accepted by the validator",
		}),
		estimatedLevel: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "estimated_level",
			Help:      "Estimated water level used while the level sensor is failed",
		}),
		openPumps: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_pumps",
			Help:      "Number of pumps the controller believes open",
		}),
		valveOpen: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "valve_open",
			Help:      "Evacuation valve state (0=closed, 1=open)",
		}),
		deviceFailed: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "device_failed",
			Help:      "Device failure state (0=healthy, 1=awaiting acknowledgement, 2=awaiting repair)",
		}, []string{"device"}),

		cycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Time spent running one cycle including publishing",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
		}),
	}
}

// ObserveCycle records the outcome of one cycle.
func (m *Metrics) ObserveCycle(snap logic.Snapshot, in, out []logic.Message, d time.Duration) {
	c := snap.Counts
	m.cycles.Add(float64(c.Cycles - m.last.Cycles))
	m.transmissionFailures.Add(float64(c.TransmissionFailures - m.last.TransmissionFailures))
	m.detections.Add(float64(c.Detections - m.last.Detections))
	m.repairs.Add(float64(c.Repairs - m.last.Repairs))
	m.last = c

	for _, msg := range in {
		m.messages.WithLabelValues("inbound", string(msg.Kind)).Inc()
	}
	for _, msg := range out {
		m.messages.WithLabelValues("outbound", string(msg.Kind)).Inc()
	}

	for _, mode := range modes {
		v := 0.0
		if mode == snap.Mode {
			v = 1
		}
		m.mode.WithLabelValues(mode.String()).Set(v)
	}
	m.waterLevel.Set(snap.WaterLevel)
	m.steamLevel.Set(snap.SteamLevel)
	if snap.Mode == logic.ModeRescue {
		m.estimatedLevel.Set(snap.EstimatedLevel)
	}
	m.openPumps.Set(float64(snap.OpenPumps()))
	m.valveOpen.Set(boolGauge(snap.ValveOpen))

	m.deviceFailed.WithLabelValues("level").Set(float64(snap.LevelSensor))
	m.deviceFailed.WithLabelValues("steam").Set(float64(snap.SteamSensor))
	for i, p := range snap.Pumps {
		n := strconv.Itoa(i)
		m.deviceFailed.WithLabelValues("pump_" + n).Set(float64(p.Pump))
		m.deviceFailed.WithLabelValues("pump_controller_" + n).Set(float64(p.Controller))
	}

	m.cycleDuration.Observe(d.Seconds())
}

// PublishError counts an outbound batch that could not be published.
func (m *Metrics) PublishError() {
	m.publishErrors.Inc()
}

// JournalError counts a cycle that could not be journaled.
func (m *Metrics) JournalError() {
	m.journalErrors.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
