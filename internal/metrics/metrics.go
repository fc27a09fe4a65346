package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"route", "method", "status"},
	)

	// Wallet operations
	WalletOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_operations_total",
			Help: "Total committed wallet operations",
		},
		[]string{"op"}, // initialize|debit|credit|transfer
	)
	WalletOpsFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "wallet_operations_failed_total",
			Help: "Total wallet operations that did not commit",
		},
	)
	InsufficientFunds = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "wallet_insufficient_funds_total",
			Help: "Debits and transfers rejected for insufficient funds",
		},
	)

	// Income reconciliation
	IncomeReconciled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "income_rows_reconciled_total",
			Help: "Income rows credited to a wallet",
		},
	)

	// Cloud mirror
	MirrorPushFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mirror_push_failures_total",
			Help: "Failed best-effort mirror pushes",
		},
	)

	// Worker queue
	WorkerQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "worker_queue_depth",
			Help: "Current worker queue depth",
		},
	)
)

var Handler = promhttp.Handler

func Init() {
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(WalletOpsTotal)
	prometheus.MustRegister(WalletOpsFailed)
	prometheus.MustRegister(InsufficientFunds)
	prometheus.MustRegister(IncomeReconciled)
	prometheus.MustRegister(MirrorPushFailed)
	prometheus.MustRegister(WorkerQueueDepth)
}
