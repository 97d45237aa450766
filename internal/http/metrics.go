package http

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"cassa/internal/core"
)

var (
	transactionsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cassa_transactions_recorded_total",
		Help: "Transactions committed to the ledger, by kind.",
	}, []string{"kind"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cassa_http_request_duration_seconds",
		Help:    "HTTP request latency by path and status.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)

func observeTransaction(kind core.Kind) {
	transactionsRecorded.WithLabelValues(string(kind)).Inc()
}

func observeRequest(method, path string, status int, d time.Duration) {
	httpRequestDuration.WithLabelValues(method, path, strconv.Itoa(status)).Observe(d.Seconds())
}
