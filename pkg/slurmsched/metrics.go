package slurmsched

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace is the metric name prefix used by every collector this package
// registers.
const Namespace = "slurmsched"

// metricsBackend wraps a Backend, recording call counts, error counts and
// durations for every operation it instruments.
type metricsBackend struct {
	next Backend

	calls    *prometheus.CounterVec
	errors   *prometheus.CounterVec
	duration *prometheus.HistogramVec
	jobs     *prometheus.GaugeVec
}

// InstrumentBackend wraps backend with Prometheus instrumentation and
// registers its collectors against reg.
func InstrumentBackend(backend Backend, reg prometheus.Registerer) Backend {
	m := &metricsBackend{
		next: backend,
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "calls_total",
			Help:      "Total number of backend operation calls.",
		}, []string{"operation"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "call_errors_total",
			Help:      "Total number of backend operation calls that returned an error.",
		}, []string{"operation"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "call_duration_seconds",
			Help:      "Duration of backend operation calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		jobs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "jobs_by_state",
			Help:      "Number of times Poll observed a job in each Slurm state; a job is counted again on every Poll.",
		}, []string{"state"}),
	}

	reg.MustRegister(m.calls, m.errors, m.duration, m.jobs)

	return m
}

func (m *metricsBackend) observe(operation string, err error, start time.Time) {
	m.calls.WithLabelValues(operation).Inc()
	m.duration.WithLabelValues(operation).Observe(time.Since(start).Seconds())

	if err != nil {
		m.errors.WithLabelValues(operation).Inc()
	}
}

func (m *metricsBackend) Submit(ctx context.Context, job *Job) error {
	start := time.Now()
	err := m.next.Submit(ctx, job)
	m.observe("submit", err, start)

	return err
}

func (m *metricsBackend) Poll(ctx context.Context, jobs []*Job) error {
	start := time.Now()
	err := m.next.Poll(ctx, jobs)
	m.observe("poll", err, start)

	for _, job := range jobs {
		if job.State != "" {
			m.jobs.WithLabelValues(job.State).Inc()
		}
	}

	return err
}

func (m *metricsBackend) Wait(ctx context.Context, job *Job) error {
	start := time.Now()
	err := m.next.Wait(ctx, job)
	m.observe("wait", err, start)

	return err
}

func (m *metricsBackend) Cancel(ctx context.Context, job *Job) error {
	start := time.Now()
	err := m.next.Cancel(ctx, job)
	m.observe("cancel", err, start)

	return err
}

func (m *metricsBackend) Finished(ctx context.Context, job *Job) (bool, error) {
	start := time.Now()
	done, err := m.next.Finished(ctx, job)
	m.observe("finished", err, start)

	return done, err
}

func (m *metricsBackend) CompletionTime(ctx context.Context, job *Job) (*float64, error) {
	start := time.Now()
	t, err := m.next.CompletionTime(ctx, job)
	m.observe("completion_time", err, start)

	return t, err
}

func (m *metricsBackend) IsArray(job *Job) bool {
	return m.next.IsArray(job)
}

func (m *metricsBackend) AllNodes(ctx context.Context) (NodeSet, error) {
	start := time.Now()
	nodes, err := m.next.AllNodes(ctx)
	m.observe("all_nodes", err, start)

	return nodes, err
}

func (m *metricsBackend) DefaultPartition(ctx context.Context) (string, error) {
	start := time.Now()
	p, err := m.next.DefaultPartition(ctx)
	m.observe("default_partition", err, start)

	return p, err
}

func (m *metricsBackend) FilterNodes(ctx context.Context, candidate NodeSet, job *Job) (NodeSet, error) {
	start := time.Now()
	nodes, err := m.next.FilterNodes(ctx, candidate, job)
	m.observe("filter_nodes", err, start)

	return nodes, err
}
