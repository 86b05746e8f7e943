package main

import (
	"github.com/learnhub/judgecore/registry"
	"github.com/learnhub/judgecore/worker"
	"github.com/learnhub/judgecore/workspace"
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "judge"

var (
	// 1ms -> 10s
	timeBuckets = []float64{
		0.001, 0.002, 0.005, 0.008, 0.010, 0.025, 0.050, 0.075, 0.1, 0.2,
		0.4, 0.6, 0.8, 1.0, 1.5, 2, 5, 10,
	}

	// 1 byte -> 1m
	outputBuckets = prometheus.ExponentialBuckets(1, 4, 11)

	execErrorCount = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "error",
		Help:      "Number of executions that returned an error",
	}, []string{"kind"})

	execTimeHist = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "time_seconds",
		Help:      "Histogram for the wall time of compilations and runs",
		Buckets:   timeBuckets,
	}, []string{"kind", "status"})

	execOutputHist = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "output_bytes",
		Help:      "Histogram for the captured stdout size",
		Buckets:   outputBuckets,
	}, []string{"kind"})
)

func initMetrics() {
	prometheus.MustRegister(execErrorCount, execTimeHist, execOutputHist)
}

// initStateMetrics exports the running executions, the workspace
// allocations and the worker load
func initStateMetrics(reg *registry.Registry, ws *workspace.Manager, work worker.Worker) {
	prometheus.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "worker_queued",
			Help:      "Number of compilations and runs waiting for a worker slot",
		}, func() float64 { return float64(work.Queued()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "worker_busy",
			Help:      "Number of compilations and runs in progress",
		}, func() float64 { return float64(work.Busy()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "executions_running",
			Help:      "Number of executions registered as running",
		}, func() float64 { return float64(reg.Len()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "workspace_live",
			Help:      "Number of workspace allocations not yet released",
		}, func() float64 { return float64(ws.Live()) }),
	)
}

func execObserve(req *worker.Request, res worker.Response) {
	kind := req.Kind()
	if res.Error != nil {
		execErrorCount.WithLabelValues(kind).Inc()
		return
	}
	if res.Result == nil {
		return
	}
	execTimeHist.WithLabelValues(kind, res.Result.Status.String()).Observe(res.Result.Time.Seconds())
	execOutputHist.WithLabelValues(kind).Observe(float64(len(res.Result.Stdout)))
}
