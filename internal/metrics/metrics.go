// Package metrics holds the Prometheus collectors shared across the pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal counts finished annotation runs by terminal state.
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "formframe_runs_total",
		Help: "Total annotation runs by terminal state",
	}, []string{"result"})

	// RunDuration tracks wall-clock time from loading to a terminal state.
	RunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "formframe_run_duration_seconds",
		Help:    "Duration of annotation runs",
		Buckets: prometheus.ExponentialBuckets(0.5, 2.0, 10), // 0.5s to ~4m
	}, []string{"result"})

	// FramesRendered counts annotated frames drawn onto a surface.
	FramesRendered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "formframe_render_frames_total",
		Help: "Total frames rendered",
	})

	// FrameDrawErrors counts frames whose video image could not be drawn.
	FrameDrawErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "formframe_render_frame_errors_total",
		Help: "Total frames rendered without a video image",
	})

	// RecorderChunks counts non-empty encoded chunks appended to sessions.
	RecorderChunks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "formframe_recorder_chunks_total",
		Help: "Total encoded chunks captured",
	})

	// RecorderBytes counts encoded bytes appended to sessions.
	RecorderBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "formframe_recorder_bytes_total",
		Help: "Total encoded bytes captured",
	})

	// RecorderSessions counts recording sessions by negotiated MIME type and outcome.
	RecorderSessions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "formframe_recorder_sessions_total",
		Help: "Recording sessions by MIME type and outcome",
	}, []string{"mime_type", "outcome"})

	// HTTPRequestDuration tracks API latency by route pattern.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "formframe_http_request_duration_seconds",
		Help:    "HTTP request latencies in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)

// MimeLabel maps the unspecified-codec fallback to a readable label value.
func MimeLabel(mime string) string {
	if mime == "" {
		return "unspecified"
	}
	return mime
}
