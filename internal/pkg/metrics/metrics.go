package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AdmissionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "heartgate_admission_total",
		Help: "Admission pipeline outcomes by terminal stage",
	}, []string{"outcome"})

	LatencyBucket = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "heartgate_request_duration_seconds",
		Help:    "Request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	CompensationPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "heartgate_compensation_published_total",
		Help: "Compensation messages published after downstream failures",
	})

	CompensationApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "heartgate_compensation_applied_total",
		Help: "Compensation consumer outcomes",
	}, []string{"result"})

	OrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "heartgate_orders_total",
		Help: "Order state transitions",
	}, []string{"status"})

	ConsumerRedeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "heartgate_consumer_redeliveries_total",
		Help: "Messages handed back for redelivery by consumer",
	}, []string{"queue"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "heartgate_http_requests_total",
		Help: "HTTP requests by method, route and status",
	}, []string{"method", "route", "status"})
)
