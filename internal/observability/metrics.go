package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for RugShield.
type Metrics struct {
	// --- Engine ---
	OpsApplied     *prometheus.CounterVec
	OpsRejected    *prometheus.CounterVec
	OpDuration     *prometheus.HistogramVec
	EngineSequence prometheus.Gauge

	// --- Pools ---
	PoolBalance   *prometheus.GaugeVec
	PremiumsTotal prometheus.Counter
	SplitLoss     prometheus.Counter
	TotalStaked   prometheus.Gauge

	// --- Insurance ---
	PoliciesCreated  prometheus.Counter
	PoliciesCanceled prometheus.Counter
	ClaimsFiled      prometheus.Counter
	ClaimsPaid       *prometheus.CounterVec
	ClaimPayouts     prometheus.Counter

	// --- Governance & lottery ---
	ProposalsOpened   *prometheus.CounterVec
	VotesCast         *prometheus.CounterVec
	ProposalsExecuted *prometheus.CounterVec
	LotteryPrizesPaid prometheus.Counter

	// --- Migration & buyback ---
	TokensMigrated  prometheus.Counter
	BonusMigrations prometheus.Counter
	TokensBurned    prometheus.Counter

	// --- Channel & backpressure ---
	ChannelSize         *prometheus.GaugeVec
	ChannelCapacity     *prometheus.GaugeVec
	ChannelUtilization  *prometheus.GaugeVec
	PublishDrops        prometheus.Counter
	PersistBackpressure prometheus.Counter

	// --- Persistence ---
	PersistEventsWritten prometheus.Counter
	PersistBatchSize     prometheus.Histogram
	PersistBatchDur      prometheus.Histogram
	PersistErrors        *prometheus.CounterVec
	PersistRetry         prometheus.Counter
	PersistLastSequence  prometheus.Gauge

	// --- HTTP API ---
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	opBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	return &Metrics{
		OpsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rug_ops_applied_total",
			Help: "Operations successfully applied by the engine",
		}, []string{"op"}),

		OpsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rug_ops_rejected_total",
			Help: "Operations rejected (validation, state, resource)",
		}, []string{"op", "reason"}),

		OpDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rug_op_duration_seconds",
			Help:    "Time to apply a single operation",
			Buckets: opBuckets,
		}, []string{"op"}),

		EngineSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "rug_engine_sequence",
			Help: "Current global audit sequence number",
		}),

		PoolBalance: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rug_pool_balance",
			Help: "Current pool balance in token base units",
		}, []string{"pool"}),

		PremiumsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rug_premiums_collected_total",
			Help: "Premiums collected in token base units",
		}),

		SplitLoss: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rug_split_floor_loss_total",
			Help: "Units lost to floor division across pool splits",
		}),

		TotalStaked: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "rug_total_staked",
			Help: "Total staked balance in token base units",
		}),

		PoliciesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rug_policies_created_total",
			Help: "Insurance policies created",
		}),

		PoliciesCanceled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rug_policies_canceled_total",
			Help: "Insurance policies canceled",
		}),

		ClaimsFiled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rug_claims_filed_total",
			Help: "Claims filed",
		}),

		ClaimsPaid: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rug_claims_paid_total",
			Help: "Claims settled by outcome (full/partial)",
		}, []string{"outcome"}),

		ClaimPayouts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rug_claim_payouts_total",
			Help: "Claim payouts in token base units",
		}),

		ProposalsOpened: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rug_proposals_opened_total",
			Help: "Governance proposals opened",
		}, []string{"kind"}),

		VotesCast: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rug_votes_cast_total",
			Help: "Votes cast",
		}, []string{"choice"}),

		ProposalsExecuted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rug_proposals_executed_total",
			Help: "Proposals executed by outcome",
		}, []string{"kind", "outcome"}),

		LotteryPrizesPaid: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rug_lottery_prizes_paid_total",
			Help: "Lottery prizes paid in token base units",
		}),

		TokensMigrated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rug_tokens_migrated_total",
			Help: "Legacy tokens migrated, in source units",
		}),

		BonusMigrations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rug_bonus_migrations_total",
			Help: "Migrations settled inside the bonus window",
		}),

		TokensBurned: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rug_tokens_burned_total",
			Help: "Tokens burned by buyback, in token base units",
		}),

		ChannelSize: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rug_channel_size",
			Help: "Current items in channel",
		}, []string{"name"}),

		ChannelCapacity: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rug_channel_capacity",
			Help: "Channel capacity (constant)",
		}, []string{"name"}),

		ChannelUtilization: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rug_channel_utilization",
			Help: "Channel size / capacity (0.0-1.0)",
		}, []string{"name"}),

		PublishDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rug_publish_drops_total",
			Help: "Audit events dropped due to full publish channel",
		}),

		PersistBackpressure: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rug_persist_backpressure_total",
			Help: "Times the engine blocked on the persist channel",
		}),

		PersistEventsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rug_persist_events_written_total",
			Help: "Audit events written to Postgres",
		}),

		PersistBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "rug_persist_batch_size",
			Help:    "Events per batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		PersistBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "rug_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rug_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		PersistRetry: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rug_persist_retry_total",
			Help: "Persistence retries",
		}),

		PersistLastSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "rug_persist_last_sequence",
			Help: "Last persisted audit sequence",
		}),

		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rug_http_requests_total",
			Help: "HTTP API requests",
		}, []string{"endpoint", "status"}),

		HTTPDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rug_http_request_duration_seconds",
			Help:    "HTTP API latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"endpoint"}),
	}
}

// SetChannelMetrics updates channel utilization metrics.
func (m *Metrics) SetChannelMetrics(name string, size, capacity int) {
	m.ChannelSize.WithLabelValues(name).Set(float64(size))
	m.ChannelCapacity.WithLabelValues(name).Set(float64(capacity))
	if capacity > 0 {
		m.ChannelUtilization.WithLabelValues(name).Set(float64(size) / float64(capacity))
	}
}
