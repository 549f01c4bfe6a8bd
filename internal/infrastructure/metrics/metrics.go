package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SettlementMetrics holds every collector of the settlement core.
type SettlementMetrics struct {
	// Ledger
	TransfersTotal      *prometheus.CounterVec
	TransferAmountNano  *prometheus.CounterVec
	InsufficientBalance *prometheus.CounterVec
	IdempotentReplays   *prometheus.CounterVec
	TransferDuration    *prometheus.HistogramVec
	BalanceCacheLookups *prometheus.CounterVec

	// Deal state machine
	DealTransitionsTotal *prometheus.CounterVec
	DealCASConflicts     *prometheus.CounterVec

	// Outbox
	OutboxDelivered       *prometheus.CounterVec
	OutboxRetried         *prometheus.CounterVec
	OutboxFailed          *prometheus.CounterVec
	OutboxPublishDuration *prometheus.HistogramVec

	// Schedulers
	SchedulerRuns     *prometheus.CounterVec
	SchedulerDuration *prometheus.HistogramVec

	// Inbound triggers
	TriggersConsumed *prometheus.CounterVec
}

// NewSettlementMetrics registers the collectors on reg. Tests pass a fresh
// prometheus.NewRegistry() so repeated construction does not panic.
func NewSettlementMetrics(reg prometheus.Registerer) *SettlementMetrics {
	f := promauto.With(reg)
	return &SettlementMetrics{
		TransfersTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_transfers_total",
				Help: "Committed ledger transfers by operation kind",
			},
			[]string{"kind"},
		),
		TransferAmountNano: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_transfer_amount_nano_total",
				Help: "Sum of debit legs of committed transfers in nano",
			},
			[]string{"kind"},
		),
		InsufficientBalance: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_insufficient_balance_total",
				Help: "Transfers rejected because a checked account would go negative",
			},
			[]string{"account_kind"},
		),
		IdempotentReplays: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_idempotent_replays_total",
				Help: "Transfers answered from an existing idempotency key",
			},
			[]string{"kind"},
		),
		TransferDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledger_transfer_duration_seconds",
				Help:    "Time spent in the transfer transaction",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
			},
			[]string{"kind", "outcome"},
		),
		BalanceCacheLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_balance_cache_lookups_total",
				Help: "Balance cache lookups by result",
			},
			[]string{"result"},
		),
		DealTransitionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deal_transitions_total",
				Help: "Successful deal status transitions",
			},
			[]string{"from", "to"},
		),
		DealCASConflicts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deal_transition_conflicts_total",
				Help: "Transitions that lost the compare-and-swap race",
			},
			[]string{"to"},
		),
		OutboxDelivered: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outbox_delivered_total",
				Help: "Outbox entries delivered",
			},
			[]string{"topic"},
		),
		OutboxRetried: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outbox_retried_total",
				Help: "Outbox publish failures returned to PENDING",
			},
			[]string{"topic"},
		),
		OutboxFailed: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outbox_failed_total",
				Help: "Outbox entries that exhausted their retries",
			},
			[]string{"topic"},
		),
		OutboxPublishDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "outbox_publish_duration_seconds",
				Help:    "Broker publish latency",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
			},
			[]string{"topic"},
		),
		SchedulerRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scheduler_runs_total",
				Help: "Scheduler cycles by outcome (ok, error, skipped)",
			},
			[]string{"job", "outcome"},
		),
		SchedulerDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scheduler_run_duration_seconds",
				Help:    "Scheduler cycle duration",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"job"},
		),
		TriggersConsumed: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deal_triggers_consumed_total",
				Help: "Inbound deal trigger messages by type and outcome",
			},
			[]string{"type", "outcome"},
		),
	}
}

// KindOf returns the operation kind of an idempotency key ("release:42" -> "release").
func KindOf(idempotencyKey string) string {
	if i := strings.IndexByte(idempotencyKey, ':'); i > 0 {
		return idempotencyKey[:i]
	}
	return "unknown"
}

func (m *SettlementMetrics) RecordTransfer(key string, debitTotal int64, started time.Time) {
	kind := KindOf(key)
	m.TransfersTotal.WithLabelValues(kind).Inc()
	m.TransferAmountNano.WithLabelValues(kind).Add(float64(debitTotal))
	m.TransferDuration.WithLabelValues(kind, "committed").Observe(time.Since(started).Seconds())
}

func (m *SettlementMetrics) RecordTransferRejected(key string, started time.Time) {
	m.TransferDuration.WithLabelValues(KindOf(key), "rejected").Observe(time.Since(started).Seconds())
}

func (m *SettlementMetrics) RecordReplay(key string) {
	m.IdempotentReplays.WithLabelValues(KindOf(key)).Inc()
}

func (m *SettlementMetrics) RecordInsufficientBalance(account string) {
	m.InsufficientBalance.WithLabelValues(KindOf(account)).Inc()
}

func (m *SettlementMetrics) RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.BalanceCacheLookups.WithLabelValues(result).Inc()
}

func (m *SettlementMetrics) RecordTransition(from, to string) {
	m.DealTransitionsTotal.WithLabelValues(from, to).Inc()
}

func (m *SettlementMetrics) RecordTransitionConflict(to string) {
	m.DealCASConflicts.WithLabelValues(to).Inc()
}

func (m *SettlementMetrics) RecordOutboxDelivered(topic string, took time.Duration) {
	m.OutboxDelivered.WithLabelValues(topic).Inc()
	m.OutboxPublishDuration.WithLabelValues(topic).Observe(took.Seconds())
}

func (m *SettlementMetrics) RecordOutboxRetried(topic string) {
	m.OutboxRetried.WithLabelValues(topic).Inc()
}

func (m *SettlementMetrics) RecordOutboxFailed(topic string) {
	m.OutboxFailed.WithLabelValues(topic).Inc()
}

func (m *SettlementMetrics) RecordSchedulerRun(job, outcome string, took time.Duration) {
	m.SchedulerRuns.WithLabelValues(job, outcome).Inc()
	if outcome != "skipped" {
		m.SchedulerDuration.WithLabelValues(job).Observe(took.Seconds())
	}
}

func (m *SettlementMetrics) RecordTrigger(eventType, outcome string) {
	m.TriggersConsumed.WithLabelValues(eventType, outcome).Inc()
}
