package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/laurabot-hal/internal/alert"
	"github.com/nerrad567/laurabot-hal/internal/hal"
)

const namespace = "laurabot"

// Collector holds every engine metric on a private registry.
type Collector struct {
	registry *prometheus.Registry

	probeDuration   *prometheus.HistogramVec
	probeAttempts   *prometheus.CounterVec
	boundTier       *prometheus.GaugeVec
	commands        *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	fallbacks       *prometheus.CounterVec
	ticks           prometheus.Counter
	readings        prometheus.Counter
	tickDuration    prometheus.Histogram
	ingested        *prometheus.CounterVec
	failures        *prometheus.CounterVec
	alerts          *prometheus.CounterVec
	recoveries      *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

// New creates a Collector with Go runtime and process collectors registered.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		probeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "probe_duration_seconds",
			Help:      "Time spent resolving one capability class during a probe.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"class", "tier"}),
		probeAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probe_attempts_total",
			Help:      "Probe candidate attempts by class, tier and outcome.",
		}, []string{"class", "tier", "outcome"}),
		boundTier: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bound_tier",
			Help:      "Tier rank bound to each class after the last probe (0 real, 1 device_only, 2 simulated).",
		}, []string{"class"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Routed hardware commands by operation, serving tier and result.",
		}, []string{"op", "tier", "result"}),
		commandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Routed hardware command latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "command_fallbacks_total",
			Help:      "Per-call downgrades from the bound tier.",
		}, []string{"op", "from", "to"}),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "simulation_ticks_total",
			Help:      "Simulation ticks that produced readings.",
		}),
		readings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "simulation_readings_total",
			Help:      "Simulated sensor readings produced.",
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "simulation_tick_duration_seconds",
			Help:      "Time spent computing one simulation tick.",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05},
		}),
		ingested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "external_readings_total",
			Help:      "External sensor readings ingested by sensor type.",
		}, []string{"type"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "simulated_failures_total",
			Help:      "Injected simulated failure windows by target.",
		}, []string{"target"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Sensor alerts raised by type and severity.",
		}, []string{"type", "severity"}),
		recoveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recoveries_total",
			Help:      "Sensor severity recoveries by type.",
		}, []string{"type"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Diagnostics API requests by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Diagnostics API request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.probeDuration,
		c.probeAttempts,
		c.boundTier,
		c.commands,
		c.commandDuration,
		c.fallbacks,
		c.ticks,
		c.readings,
		c.tickDuration,
		c.ingested,
		c.failures,
		c.alerts,
		c.recoveries,
		c.httpRequests,
		c.httpDuration,
	)
	return c
}

// Handler serves the registry for scraping.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveProbe records how long a class took to resolve and the tier it got.
func (c *Collector) ObserveProbe(class hal.CapabilityClass, tier hal.Tier, d time.Duration) {
	if c == nil {
		return
	}
	c.probeDuration.WithLabelValues(string(class), string(tier)).Observe(d.Seconds())
	c.boundTier.WithLabelValues(string(class)).Set(float64(tier.Rank()))
}

// ObserveAttempt counts one probe candidate attempt.
func (c *Collector) ObserveAttempt(class hal.CapabilityClass, tier hal.Tier, outcome string) {
	if c == nil {
		return
	}
	c.probeAttempts.WithLabelValues(string(class), string(tier), outcome).Inc()
}

// ObserveCommand counts one routed command.
func (c *Collector) ObserveCommand(op string, tier hal.Tier, success bool, elapsed time.Duration) {
	if c == nil {
		return
	}
	result := "success"
	if !success {
		result = "failure"
	}
	if tier == "" {
		tier = "none"
	}
	c.commands.WithLabelValues(op, string(tier), result).Inc()
	c.commandDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// ObserveFallback counts one per-call downgrade.
func (c *Collector) ObserveFallback(op string, from, to hal.Tier) {
	if c == nil {
		return
	}
	c.fallbacks.WithLabelValues(op, string(from), string(to)).Inc()
}

// ObserveTick records one simulation tick.
func (c *Collector) ObserveTick(produced int, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.ticks.Inc()
	c.readings.Add(float64(produced))
	c.tickDuration.Observe(elapsed.Seconds())
}

// ObserveIngest counts one external reading.
func (c *Collector) ObserveIngest(sensorType string) {
	if c == nil {
		return
	}
	c.ingested.WithLabelValues(sensorType).Inc()
}

// ObserveFailureInjected counts one failure window.
func (c *Collector) ObserveFailureInjected(target string) {
	if c == nil {
		return
	}
	c.failures.WithLabelValues(target).Inc()
}

// ObserveAlert counts one raised alert.
func (c *Collector) ObserveAlert(sensorType string, severity alert.Severity) {
	if c == nil {
		return
	}
	c.alerts.WithLabelValues(sensorType, string(severity)).Inc()
}

// ObserveRecovery counts one recovery.
func (c *Collector) ObserveRecovery(sensorType string) {
	if c == nil {
		return
	}
	c.recoveries.WithLabelValues(sensorType).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// WrapHandler counts requests and latency for route.
func (c *Collector) WrapHandler(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r)

		if c != nil {
			c.httpRequests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
			c.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		}
	})
}
