// Package metrics defines the Prometheus series shipgitd exposes: push
// traffic, build outcomes, and build-queue occupancy.
package metrics

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	PushesTotal        *prometheus.CounterVec
	PushAuthFailures   *prometheus.CounterVec
	GitRPCLatency      *prometheus.HistogramVec
	BuildsTotal        *prometheus.CounterVec
	BuildDuration      prometheus.Histogram
	QueueAvailable     prometheus.Gauge
	QueueLength        prometheus.Gauge
	QueueInflightNames prometheus.Gauge
}

// New builds the registered Metrics used by the running server.
func New() *Metrics {
	m := newUnregistered()
	prometheus.MustRegister(collectorsOf(m)...)
	return m
}

// NewUnregistered builds Metrics without registering them with the default
// registry, for tests that construct more than one Server in a process.
func NewUnregistered() *Metrics {
	return newUnregistered()
}

func newUnregistered() *Metrics {
	return &Metrics{
		PushesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shipgit_pushes_total",
			Help: "git-receive-pack requests by owner/repo and result",
		}, []string{"owner", "repo", "result"}),
		PushAuthFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shipgit_push_auth_failures_total",
			Help: "push-auth middleware rejections by realm",
		}, []string{"realm"}),
		GitRPCLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shipgit_git_rpc_seconds",
			Help:    "latency of git upload-pack/receive-pack subprocess calls",
			Buckets: prometheus.DefBuckets,
		}, []string{"service"}),
		BuildsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shipgit_builds_total",
			Help: "completed builds by terminal status",
		}, []string{"status"}),
		BuildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "shipgit_build_duration_seconds",
			Help:    "wall-clock time spent inside the Builder",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		QueueAvailable: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "shipgit_build_queue_available_slots",
			Help: "build slots currently free",
		}),
		QueueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "shipgit_build_queue_length",
			Help: "items waiting to be dispatched",
		}),
		QueueInflightNames: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "shipgit_build_queue_inflight_names",
			Help: "distinct container names queued or dispatched",
		}),
	}
}

func collectorsOf(m *Metrics) []prometheus.Collector {
	return []prometheus.Collector{
		m.PushesTotal,
		m.PushAuthFailures,
		m.GitRPCLatency,
		m.BuildsTotal,
		m.BuildDuration,
		m.QueueAvailable,
		m.QueueLength,
		m.QueueInflightNames,
	}
}
