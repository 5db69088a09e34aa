package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streamer",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "streamer",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 30},
	}, []string{"method", "path"})

	ActiveStreams = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "streamer",
		Name:      "active_streams",
		Help:      "Number of currently registered streaming sessions.",
	})

	DownloadSpeedBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "streamer",
		Name:      "download_speed_bytes",
		Help:      "Current aggregate download speed in bytes per second.",
	})

	PriorityFetchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "streamer",
		Name:      "priority_fetches_total",
		Help:      "Total number of high-priority range fetches issued after a seek.",
	})

	FetchTimeoutsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "streamer",
		Name:      "fetch_timeouts_total",
		Help:      "Total number of reads that gave up waiting for remote data.",
	})

	BytesServedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "streamer",
		Name:      "bytes_served_total",
		Help:      "Total bytes written to streaming clients.",
	})

	InitialBufferWaitSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "streamer",
		Name:      "initial_buffer_wait_seconds",
		Help:      "Time spent waiting for the initial buffer before playback starts.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	})

	CacheSweepsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "streamer",
		Name:      "cache_sweeps_total",
		Help:      "Total number of media cache eviction sweeps.",
	})

	CacheEvictedBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "streamer",
		Name:      "cache_evicted_bytes_total",
		Help:      "Total bytes removed from the media cache by eviction.",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ActiveStreams,
		DownloadSpeedBytes,
		PriorityFetchesTotal,
		FetchTimeoutsTotal,
		BytesServedTotal,
		InitialBufferWaitSeconds,
		CacheSweepsTotal,
		CacheEvictedBytesTotal,
	)
}
