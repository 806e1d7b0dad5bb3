package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jukebox",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "jukebox",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.3, 0.5, 1, 2, 5},
	}, []string{"method", "path"})

	ItemsEnqueued = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "jukebox",
		Name:      "items_enqueued_total",
		Help:      "Total submissions accepted into the queue.",
	})

	ItemsCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "jukebox",
		Name:      "items_completed_total",
		Help:      "Total submissions broadcast to completion.",
	})

	ItemsFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jukebox",
		Name:      "items_failed_total",
		Help:      "Total submissions that reached failed status, by reason.",
	}, []string{"reason"})

	QueueLength = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "jukebox",
		Name:      "queue_length",
		Help:      "Number of pending submissions.",
	})

	ActiveStream = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "jukebox",
		Name:      "active_stream",
		Help:      "1 while a clip is on air, 0 otherwise.",
	})

	SkipsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "jukebox",
		Name:      "skips_total",
		Help:      "Total clips cut short by a skip command.",
	})

	DownloadDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "jukebox",
		Name:      "download_duration_seconds",
		Help:      "Duration of the fetch phase per item in seconds.",
		Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
	})

	EncodeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "jukebox",
		Name:      "encode_duration_seconds",
		Help:      "Duration of the broadcast phase per item in seconds.",
		Buckets:   []float64{5, 15, 30, 60, 120, 300, 600},
	})

	ModerationVerdicts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jukebox",
		Name:      "moderation_verdicts_total",
		Help:      "Total admission-gate verdicts by outcome.",
	}, []string{"verdict"})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ItemsEnqueued,
		ItemsCompleted,
		ItemsFailed,
		QueueLength,
		ActiveStream,
		SkipsTotal,
		DownloadDuration,
		EncodeDuration,
		ModerationVerdicts,
	)
}
