package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Requests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "superpaste_upstream_requests_total",
			Help: "no. of requests sent to paste services",
		},
		[]string{"backend", "method", "status"},
	)
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "superpaste_upstream_request_duration_seconds",
			Help:    "upstream request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "method"},
	)
	PastesCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "superpaste_pastes_created_total",
			Help: "no. of remote pastes created",
		},
		[]string{"backend"},
	)
	FilesUploaded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "superpaste_files_uploaded_total",
			Help: "no. of files uploaded",
		},
		[]string{"backend"},
	)
	PastesRetrieved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "superpaste_pastes_retrieved_total",
			Help: "no. of pastes retrieved",
		},
		[]string{"backend"},
	)
	ValidationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "superpaste_validation_failures_total",
			Help: "no. of create calls rejected before any request",
		},
		[]string{"backend", "code"},
	)
	OperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "superpaste_operation_errors_total",
			Help: "no. of failed paste service operations",
		},
		[]string{"backend", "op", "code"},
	)
	AsyncInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "superpaste_async_in_flight",
		Help: "no. of async create calls queued or running",
	})
	EmuPastesStored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "superpaste_emu_pastes_stored_total",
			Help: "no. of pastes stored by the local emulator",
		},
		[]string{"dialect"},
	)
	EmuRateLimitHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "superpaste_emu_rate_limit_hits_total",
		Help: "no. of emulator requests rejected by the rate limiter",
	})
)
