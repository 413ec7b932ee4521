package core

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AnalysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snowcoach_analyses_total",
		Help: "Total number of analysis runs, by pipeline",
	}, []string{"pipeline"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "snowcoach_stage_duration_seconds",
		Help:    "Duration of each orchestration stage",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 60, 120},
	}, []string{"stage"})

	InferenceCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snowcoach_inference_calls_total",
		Help: "Outbound model calls, by model and status",
	}, []string{"model", "status"})

	PoseFramesSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snowcoach_pose_frames_skipped_total",
		Help: "Pose frames skipped after a failed model call",
	})

	FramesExtractedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snowcoach_frames_extracted_total",
		Help: "Total number of frames extracted across all uploads",
	})

	ChatRoutesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snowcoach_chat_routes_total",
		Help: "Follow-up questions, by selected section",
	}, []string{"section"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "snowcoach_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "status"})
)
