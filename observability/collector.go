package observability

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/xraph/asyncexec/job"
	"github.com/xraph/asyncexec/worker"
)

// StatsSource is implemented by worker.Pool.
type StatsSource interface {
	Stats() worker.Stats
}

// Collector is a prometheus.Collector over a node executor's statistics.
// Values are read at scrape time, so nothing has to be updated on the
// hot path.
type Collector struct {
	source  StatsSource
	store   job.Store
	timeout time.Duration
	logger  *slog.Logger

	running       *prometheus.Desc
	queueDepth    *prometheus.Desc
	queueCapacity *prometheus.Desc
	activeWorkers *prometheus.Desc
	acquired      *prometheus.Desc
	offered       *prometheus.Desc
	executed      *prometheus.Desc
	failed        *prometheus.Desc
	rejected      *prometheus.Desc
	jobs          *prometheus.Desc
}

// CollectorOption configures a Collector.
type CollectorOption func(*Collector)

// WithJobCounts adds an asyncexec_jobs gauge with the number of stored
// jobs per state, counted on every scrape within timeout.
func WithJobCounts(store job.Store, timeout time.Duration) CollectorOption {
	return func(c *Collector) {
		c.store = store
		c.timeout = timeout
	}
}

// WithCollectorLogger sets the logger for failed job counts.
func WithCollectorLogger(l *slog.Logger) CollectorOption {
	return func(c *Collector) { c.logger = l }
}

// NewCollector creates a Collector. nodeName becomes a constant "node"
// label so several executors can be scraped from one registry.
func NewCollector(source StatsSource, nodeName string, opts ...CollectorOption) *Collector {
	labels := prometheus.Labels{"node": nodeName}
	desc := func(name, help string, variable ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName("asyncexec", "", name), help, variable, labels)
	}

	c := &Collector{
		source:        source,
		logger:        slog.Default(),
		running:       desc("executor_running", "Whether the async executor is running (1) or stopped (0)."),
		queueDepth:    desc("queue_depth", "Claimed jobs waiting for a worker."),
		queueCapacity: desc("queue_capacity", "Capacity of the hand-off queue."),
		activeWorkers: desc("active_workers", "Workers currently running a handler."),
		acquired:      desc("jobs_acquired_total", "Jobs claimed by acquisition cycles."),
		offered:       desc("jobs_offered_total", "Jobs accepted through the immediate offer."),
		executed:      desc("jobs_executed_total", "Jobs whose handler succeeded."),
		failed:        desc("jobs_failed_total", "Jobs whose handler or outcome persistence failed."),
		rejected:      desc("jobs_rejected_total", "Jobs released because queue limits denied them."),
		jobs:          desc("jobs", "Stored jobs per state.", "state"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.running
	ch <- c.queueDepth
	ch <- c.queueCapacity
	ch <- c.activeWorkers
	ch <- c.acquired
	ch <- c.offered
	ch <- c.executed
	ch <- c.failed
	ch <- c.rejected
	if c.store != nil {
		ch <- c.jobs
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.source.Stats()

	running := 0.0
	if s.Running {
		running = 1
	}
	ch <- prometheus.MustNewConstMetric(c.running, prometheus.GaugeValue, running)
	ch <- prometheus.MustNewConstMetric(c.queueDepth, prometheus.GaugeValue, float64(s.QueueDepth))
	ch <- prometheus.MustNewConstMetric(c.queueCapacity, prometheus.GaugeValue, float64(s.QueueCapacity))
	ch <- prometheus.MustNewConstMetric(c.activeWorkers, prometheus.GaugeValue, float64(s.ActiveWorkers))
	ch <- prometheus.MustNewConstMetric(c.acquired, prometheus.CounterValue, float64(s.Acquired))
	ch <- prometheus.MustNewConstMetric(c.offered, prometheus.CounterValue, float64(s.Offered))
	ch <- prometheus.MustNewConstMetric(c.executed, prometheus.CounterValue, float64(s.Executed))
	ch <- prometheus.MustNewConstMetric(c.failed, prometheus.CounterValue, float64(s.Failed))
	ch <- prometheus.MustNewConstMetric(c.rejected, prometheus.CounterValue, float64(s.Rejected))

	if c.store != nil {
		c.collectJobCounts(ch)
	}
}

func (c *Collector) collectJobCounts(ch chan<- prometheus.Metric) {
	ctx := context.Background()
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	for _, state := range job.States {
		n, err := c.store.CountJobs(ctx, job.Query{State: state})
		if err != nil {
			c.logger.Warn("failed to count jobs for metrics",
				slog.String("state", string(state)),
				slog.String("error", err.Error()),
			)
			continue
		}
		ch <- prometheus.MustNewConstMetric(c.jobs, prometheus.GaugeValue, float64(n), string(state))
	}
}
