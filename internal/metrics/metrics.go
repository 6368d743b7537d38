package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	UploadsStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_uploads_started_total",
			Help: "Total number of streaming uploads opened",
		},
		[]string{"bucket"},
	)
	UploadsAborted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_uploads_aborted_total",
			Help: "Total number of streaming uploads aborted",
		},
		[]string{"bucket"},
	)
	PartsUploaded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_upload_parts_total",
			Help: "Total number of multipart parts uploaded",
		},
		[]string{"bucket"},
	)
	JobsReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transcode_jobs_received_total",
			Help: "Total number of transcode jobs dequeued",
		},
		[]string{"content_type"},
	)
	JobsSucceeded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transcode_jobs_succeeded_total",
			Help: "Total number of transcode jobs completed successfully",
		},
		[]string{"content_type"},
	)
	JobsFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transcode_jobs_failed_total",
			Help: "Total number of transcode jobs that failed",
		},
		[]string{"content_type"},
	)
	JobsMalformed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "transcode_jobs_malformed_total",
			Help: "Total number of queue deliveries with unparseable payloads",
		},
	)
	TranscodeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "transcode_duration_seconds",
			Help:    "Wall-clock duration of transcoder invocations",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
		[]string{"content_type"},
	)
	StreamRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_stream_requests_total",
			Help: "Total number of streaming proxy requests by response status",
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(UploadsStarted)
	prometheus.MustRegister(UploadsAborted)
	prometheus.MustRegister(PartsUploaded)
	prometheus.MustRegister(JobsReceived)
	prometheus.MustRegister(JobsSucceeded)
	prometheus.MustRegister(JobsFailed)
	prometheus.MustRegister(JobsMalformed)
	prometheus.MustRegister(TranscodeDuration)
	prometheus.MustRegister(StreamRequests)
}
