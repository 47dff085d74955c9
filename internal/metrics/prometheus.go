package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var HTTPRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "znainik_http_requests_total",
		Help: "Total number of HTTP requests received",
	},
	[]string{"route", "status", "method"},
)

var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "znainik_http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"route", "method"},
)

var RateLimitRejectionsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "znainik_rate_limit_rejections_total",
		Help: "Total number of subscribe requests rejected due to rate limiting",
	},
)

var PushSendsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "znainik_push_sends_total",
		Help: "Total number of push sends by outcome",
	},
	[]string{"outcome"},
)

var PushSendDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "znainik_push_send_duration_seconds",
		Help:    "Time taken by the push gateway to accept one message",
		Buckets: prometheus.DefBuckets,
	},
)

var SubscriptionsPrunedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "znainik_subscriptions_pruned_total",
		Help: "Total number of subscriptions removed after failed sends",
	},
)

var SubscriptionChangesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "znainik_subscription_changes_total",
		Help: "Total number of subscribe and unsubscribe calls that reached the store",
	},
	[]string{"action"},
)

var DispatchDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "znainik_dispatch_duration_seconds",
		Help:    "Duration of a whole fan-out including reconciliation",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"kind"},
)

var registerOnce sync.Once

// Register adds every collector to the default registry. Safe to call repeatedly.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(HTTPRequestsTotal)
		prometheus.MustRegister(HTTPRequestDuration)
		prometheus.MustRegister(RateLimitRejectionsTotal)
		prometheus.MustRegister(PushSendsTotal)
		prometheus.MustRegister(PushSendDuration)
		prometheus.MustRegister(SubscriptionsPrunedTotal)
		prometheus.MustRegister(SubscriptionChangesTotal)
		prometheus.MustRegister(DispatchDuration)
	})
}
