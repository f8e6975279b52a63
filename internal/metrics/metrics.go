// Package metrics instruments the ingestion pipeline with Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "image_ingest"

// Branch labels which terminal action started a pipeline run
type Branch string

const (
	BranchConfirm Branch = "confirm"
	BranchSkip    Branch = "skip"
)

// Pipeline holds the collectors for one registry. A nil *Pipeline is valid
// and records nothing.
type Pipeline struct {
	runs        *prometheus.CounterVec
	fallbacks   *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	outputBytes *prometheus.HistogramVec
}

// New creates the pipeline collectors and registers them with reg. A nil reg
// leaves them unregistered.
func New(reg prometheus.Registerer) *Pipeline {
	p := &Pipeline{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      "Pipeline runs by branch and result.",
		}, []string{"branch", "result"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compression_fallbacks_total",
			Help:      "Compressions that returned the original bytes.",
		}, []string{"preset"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "processing_duration_seconds",
			Help:      "Time spent in the processing state.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"branch"}),
		outputBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "output_bytes",
			Help:      "Size of emitted assets.",
			Buckets:   prometheus.ExponentialBuckets(16*1024, 2, 10),
		}, []string{"preset"}),
	}
	if reg != nil {
		reg.MustRegister(p.runs, p.fallbacks, p.duration, p.outputBytes)
	}
	return p
}

// ObserveRun records the outcome and duration of a processing run
func (p *Pipeline) ObserveRun(branch Branch, err error, d time.Duration) {
	if p == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	p.runs.WithLabelValues(string(branch), result).Inc()
	p.duration.WithLabelValues(string(branch)).Observe(d.Seconds())
}

// ObserveOutput records the size of an emitted asset
func (p *Pipeline) ObserveOutput(preset string, size int64) {
	if p == nil {
		return
	}
	p.outputBytes.WithLabelValues(preset).Observe(float64(size))
}

// IncFallback counts a compression that fell back to the original bytes
func (p *Pipeline) IncFallback(preset string) {
	if p == nil {
		return
	}
	p.fallbacks.WithLabelValues(preset).Inc()
}
