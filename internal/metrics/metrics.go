// Package metrics exposes Prometheus instrumentation for ledger activity.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

var (
	// Transaction metrics
	transactionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lockctl_transactions_total",
			Help: "Total number of ledger transactions by backend, method and status",
		},
		[]string{"backend", "method", "status"},
	)

	transactionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lockctl_transaction_duration_seconds",
			Help:    "Time from submission to receipt",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "method"},
	)

	revertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lockctl_reverts_total",
			Help: "Total number of reverted vault calls by reason kind",
		},
		[]string{"backend", "kind"},
	)

	// Vault metrics
	vaultsDeployed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lockctl_vaults_deployed_total",
			Help: "Total number of vaults deployed",
		},
		[]string{"backend"},
	)

	weiReleased = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lockctl_wei_released_total",
			Help: "Total wei released by successful withdrawals",
		},
		[]string{"backend"},
	)
)

// ObserveTransaction records one transaction outcome.
func ObserveTransaction(backend, method, status string, took time.Duration) {
	transactionsTotal.WithLabelValues(backend, method, status).Inc()
	transactionDuration.WithLabelValues(backend, method).Observe(took.Seconds())
}

// ObserveRevert records a reverted vault call.
func ObserveRevert(backend, kind string) {
	revertsTotal.WithLabelValues(backend, kind).Inc()
}

// ObserveDeployment records a successful vault deployment.
func ObserveDeployment(backend string) {
	vaultsDeployed.WithLabelValues(backend).Inc()
}

// ObserveRelease records wei leaving a vault. Float precision is acceptable here.
func ObserveRelease(backend string, wei float64) {
	weiReleased.WithLabelValues(backend).Add(wei)
}

// Gather returns the current state of the default registry.
func Gather() ([]*dto.MetricFamily, error) {
	return prometheus.DefaultGatherer.Gather()
}
