package smsprovider

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	providerRequestDurationHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sms_proxy",
			Name:      "provider_request_duration_seconds",
			Help:      "Duration of outbound SMS provider requests.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	providerRequestsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sms_proxy",
			Name:      "provider_requests_total",
			Help:      "Total number of outbound SMS provider requests by outcome.",
		},
		[]string{"provider", "status"}, // success, error
	)
)

func observe(provider string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	providerRequestsCounter.WithLabelValues(provider, status).Inc()
}
