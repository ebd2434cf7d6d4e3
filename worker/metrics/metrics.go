package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var JobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "image_batch",
	Subsystem: "worker",
	Name:      "jobs_total",
	Help:      "Count of jobs that reached a terminal status",
}, []string{"status"})

var JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "image_batch",
	Subsystem: "worker",
	Name:      "job_duration_seconds",
	Help:      "Duration of job runs from claim to terminal status",
	Buckets:   []float64{1, 5, 15, 60, 300, 900, 1800, 3600},
}, []string{"status"})

var ImagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "image_batch",
	Subsystem: "worker",
	Name:      "images_total",
	Help:      "Count of processed images by result and error class",
}, []string{"result", "error_class"})

var WebhooksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "image_batch",
	Subsystem: "worker",
	Name:      "webhooks_total",
	Help:      "Count of webhook delivery attempts by result",
}, []string{"result"})
