package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/emozilla/ethereum-validator-stack/types"
)

type Metrics struct {
	registry      *prometheus.Registry
	preCollectFns []func(r *http.Request)

	overallSeverity  prometheus.Gauge
	backendSeverity  *prometheus.GaugeVec
	backendReachable *prometheus.GaugeVec
	backendSyncing   *prometheus.GaugeVec
	syncDistance     *prometheus.GaugeVec
	headNumber       *prometheus.GaugeVec
	probeLatency     *prometheus.GaugeVec
	probeAttempts    *prometheus.GaugeVec
	validatorActive  prometheus.Gauge
	validatorLive    prometheus.Gauge
	validatorDuty    prometheus.Gauge
	cycleCount       prometheus.Counter
}

type MetricsHandler struct {
	metrics *Metrics
	handler http.Handler
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry:      registry,
		preCollectFns: []func(r *http.Request){},

		overallSeverity: factory.NewGauge(prometheus.GaugeOpts{
			Name: "validator_health_overall_severity",
			Help: "Overall verdict of the last health cycle (0 ok, 1 degraded, 2 critical, 3 unknown)",
		}),
		backendSeverity: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "validator_health_backend_severity",
			Help: "Severity contribution of each backend in the last health cycle",
		}, []string{"backend"}),
		backendReachable: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "validator_health_backend_reachable",
			Help: "Whether the backend answered in the last health cycle",
		}, []string{"backend"}),
		backendSyncing: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "validator_health_backend_syncing",
			Help: "Whether the backend reported to be syncing (-1 unknown)",
		}, []string{"backend"}),
		syncDistance: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "validator_health_backend_sync_distance",
			Help: "Sync distance reported by the backend in blocks or slots",
		}, []string{"backend"}),
		headNumber: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "validator_health_backend_head",
			Help: "Head block number or head slot reported by the backend",
		}, []string{"backend"}),
		probeLatency: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "validator_health_probe_latency_seconds",
			Help: "Duration of the last probe including retries",
		}, []string{"backend"}),
		probeAttempts: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "validator_health_probe_attempts",
			Help: "Number of attempts used by the last probe",
		}, []string{"backend"}),
		validatorActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "validator_health_validator_active",
			Help: "Whether the validator is in an active state",
		}),
		validatorLive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "validator_health_validator_attesting",
			Help: "Whether the validator attested in the previous epoch (-1 unknown)",
		}),
		validatorDuty: factory.NewGauge(prometheus.GaugeOpts{
			Name: "validator_health_validator_last_duty_epoch",
			Help: "Epoch of the latest attester duty found (-1 none)",
		}),
		cycleCount: factory.NewCounter(prometheus.CounterOpts{
			Name: "validator_health_cycles_total",
			Help: "Number of health cycles run for scrapes",
		}),
	}
}

func (m *Metrics) AddPreCollectFn(fn func(r *http.Request)) {
	m.preCollectFns = append(m.preCollectFns, fn)
}

// Update exports a freshly reconciled report. Values of backends without a result are removed.
func (m *Metrics) Update(report *types.HealthReport) {
	m.cycleCount.Inc()
	m.overallSeverity.Set(float64(report.Overall))

	for _, backend := range types.AllBackends {
		label := backend.String()
		m.backendSeverity.WithLabelValues(label).Set(float64(report.BackendSeverity[backend]))

		result := report.PerBackend[backend]
		if result == nil {
			m.backendReachable.DeleteLabelValues(label)
			m.backendSyncing.DeleteLabelValues(label)
			m.syncDistance.DeleteLabelValues(label)
			m.headNumber.DeleteLabelValues(label)
			m.probeLatency.DeleteLabelValues(label)
			m.probeAttempts.DeleteLabelValues(label)
			continue
		}

		m.backendReachable.WithLabelValues(label).Set(boolGauge(result.Reachable))
		m.backendSyncing.WithLabelValues(label).Set(optionalBoolGauge(result.Syncing))
		m.probeLatency.WithLabelValues(label).Set(result.Latency.Seconds())
		m.probeAttempts.WithLabelValues(label).Set(float64(result.Attempts))

		if result.SyncDistance != nil {
			m.syncDistance.WithLabelValues(label).Set(float64(*result.SyncDistance))
		} else {
			m.syncDistance.DeleteLabelValues(label)
		}
		if result.Head != nil {
			m.headNumber.WithLabelValues(label).Set(float64(*result.Head))
		} else {
			m.headNumber.DeleteLabelValues(label)
		}
	}

	if status := report.Validator; status != nil {
		m.validatorActive.Set(boolGauge(status.Active))
		m.validatorLive.Set(optionalBoolGauge(status.Attesting))
		if status.LastDutyEpoch != nil {
			m.validatorDuty.Set(float64(*status.LastDutyEpoch))
		} else {
			m.validatorDuty.Set(-1)
		}
	} else {
		m.validatorActive.Set(0)
		m.validatorLive.Set(-1)
		m.validatorDuty.Set(-1)
	}
}

// GetMetricsHandler returns a handler that runs all pre-collect functions before every scrape.
func (m *Metrics) GetMetricsHandler() http.Handler {
	return &MetricsHandler{
		metrics: m,
		handler: promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}),
	}
}

func (mh *MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	for _, fn := range mh.metrics.preCollectFns {
		fn(r)
	}

	mh.handler.ServeHTTP(w, r)
}

func boolGauge(value bool) float64 {
	if value {
		return 1
	}
	return 0
}

func optionalBoolGauge(value *bool) float64 {
	if value == nil {
		return -1
	}
	return boolGauge(*value)
}
