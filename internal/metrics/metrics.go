package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "schemagate"

var (
	// GenerationTotal counts product processing outcomes.
	// outcome: cached, fresh, quota_exhausted, generation_failed, ledger_fault, persistence_failed, not_onboarded
	GenerationTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "generation_total",
		Help:      "Total number of product processing attempts by outcome.",
	}, []string{"outcome"})

	// LedgerOperationsTotal counts ledger calls. op: check, deduct, add; result: ok, insufficient, error
	LedgerOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ledger_operations_total",
		Help:      "Total number of credit ledger operations by operation and result.",
	}, []string{"op", "result"})

	// StaleGuardTotal counts fingerprint comparisons. result: hit, miss
	StaleGuardTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stale_guard_total",
		Help:      "Total number of stale data guard evaluations by result.",
	}, []string{"result"})

	// DebitWithoutPersistTotal counts debits whose artifact could not be stored.
	DebitWithoutPersistTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "debit_without_persist_total",
		Help:      "Total number of credits debited for artifacts that failed to persist.",
	})

	// DeliveryTotal counts artifact publications. result: published, stale, error
	DeliveryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "delivery_total",
		Help:      "Total number of artifact deliveries by result.",
	}, []string{"result"})

	// InvalidSignatureTotal counts rejected webhook deliveries.
	InvalidSignatureTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "webhook",
		Name:      "invalid_signature_total",
		Help:      "Total number of product webhooks rejected for a bad signature.",
	})
)
