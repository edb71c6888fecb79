package metrics

import "github.com/prometheus/client_golang/prometheus"

// promMetrics holds the Prometheus collectors the Metrics Collector
// exports alongside its own ring-buffer snapshots.
type promMetrics struct {
	generationSeconds  *prometheus.HistogramVec
	pipelineSeconds    *prometheus.HistogramVec
	stepSeconds        *prometheus.HistogramVec
	memoryPercent      prometheus.Gauge
	outcomesTotal      *prometheus.CounterVec
	cacheOutcomesTotal *prometheus.CounterVec
}

func newPromMetrics(reg prometheus.Registerer) *promMetrics {
	m := &promMetrics{
		generationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lexrag_generation_seconds",
				Help:    "LLM generation latency in seconds, by model.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 15, 30, 60, 120, 240},
			},
			[]string{"model"},
		),
		pipelineSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lexrag_pipeline_seconds",
				Help:    "End-to-end pipeline latency in seconds, by tier (fast/accurate).",
				Buckets: []float64{0.5, 1, 2, 5, 10, 15, 30, 60, 120, 240},
			},
			[]string{"tier"},
		),
		stepSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lexrag_step_seconds",
				Help:    "Per-step pipeline latency in seconds, by step name.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"step"},
		),
		memoryPercent: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "lexrag_memory_percent",
				Help: "Host memory utilization percentage.",
			},
		),
		outcomesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lexrag_pipeline_outcomes_total",
				Help: "Total pipeline outcomes by result (success/failure).",
			},
			[]string{"result"},
		),
		cacheOutcomesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lexrag_cache_outcomes_total",
				Help: "Total context cache outcomes by result (hit/miss).",
			},
			[]string{"result"},
		),
	}

	reg.MustRegister(
		m.generationSeconds, m.pipelineSeconds, m.stepSeconds,
		m.memoryPercent, m.outcomesTotal, m.cacheOutcomesTotal,
	)
	return m
}
