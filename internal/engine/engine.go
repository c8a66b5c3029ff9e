package engine

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"RugShield/internal/config"
	"RugShield/internal/event"
	"RugShield/internal/ledger"
	"RugShield/internal/observability"
	"RugShield/internal/oracle"
	"RugShield/internal/protocol"
	"RugShield/internal/state"
)

// Vault and reserve names on the value ledger. The treasury custodies
// all pooled value (premiums, rewards, prizes); the staking vault holds
// staked principal only.
const (
	TreasuryVault    = "treasury"
	StakingVault     = "staking"
	MigrationReserve = "migration"
)

// Params are the governance-tunable protocol parameters. Governance
// execution may mutate them at runtime; reads happen under the engine
// lock.
type Params struct {
	MinCoverage       uint64
	MaxCoverageDays   uint64
	MinStake          uint64
	MinVoteStake      uint64
	MinLotteryPrize   uint64
	MinLotteryPremium uint64

	VotingPeriod     time.Duration
	ClaimInterval    time.Duration
	ProposalCooldown time.Duration
	StakingLockup    time.Duration

	ClaimMode     string
	RewardVariant string

	TokenDecimals uint8
	PriceExpo     int32
}

// ParamsFromConfig lifts the protocol section of the configuration.
func ParamsFromConfig(cfg *config.Config) Params {
	return Params{
		MinCoverage:       cfg.MinCoverage,
		MaxCoverageDays:   cfg.MaxCoverageDays,
		MinStake:          cfg.MinStake,
		MinVoteStake:      cfg.MinVoteStake,
		MinLotteryPrize:   cfg.MinLotteryPrize,
		MinLotteryPremium: cfg.MinLotteryPremium,
		VotingPeriod:      cfg.VotingPeriod,
		ClaimInterval:     cfg.ClaimInterval,
		ProposalCooldown:  cfg.ProposalCooldown,
		StakingLockup:     cfg.StakingLockup,
		ClaimMode:         cfg.ClaimMode,
		RewardVariant:     cfg.RewardVariant,
		TokenDecimals:     cfg.TokenDecimals,
		PriceExpo:         cfg.PriceExpo,
	}
}

// Options wires an Engine together.
type Options struct {
	Protocol  *protocol.Protocol
	Ledger    ledger.Ledger
	Migration *state.Migration
	Params    Params

	// Clock is the single time source. Every operation reads it exactly
	// once; no engine code calls time.Now() for domain decisions.
	Clock func() time.Time

	PriceOracle  oracle.PriceOracle
	RiskOracle   oracle.RiskOracle
	RugOracle    oracle.RugStatusOracle
	RandomOracle oracle.RandomnessOracle

	Metrics *observability.Metrics
	Logger  zerolog.Logger

	// PersistChan receives every audit event with a blocking send; the
	// engine stalls until the persistence worker drains. PublishChan is
	// best-effort: full channel means the event is dropped and counted.
	PersistChan chan<- *event.Envelope
	PublishChan chan<- *event.Envelope
}

// Engine is the protocol-accounting core. One mutex serializes every
// operation: the pool balances, books, and ledger form a single
// mutual-exclusion domain, so each operation sees and commits a fully
// consistent state.
type Engine struct {
	mu sync.Mutex

	clock  func() time.Time
	params Params

	proto     *protocol.Protocol
	vault     ledger.Ledger
	policies  *state.PolicyBook
	claims    *state.ClaimBook
	stakes    *state.StakingBook
	proposals *state.ProposalBook
	migration *state.Migration

	prices    oracle.PriceOracle
	risk      oracle.RiskOracle
	rugStatus oracle.RugStatusOracle
	random    oracle.RandomnessOracle

	metrics *observability.Metrics
	log     zerolog.Logger

	sequence    uint64
	persistChan chan<- *event.Envelope
	publishChan chan<- *event.Envelope
}

// New validates the wiring and returns a ready engine. The protocol
// initialization event is emitted with the first clock reading.
func New(opts Options) (*Engine, error) {
	if opts.Protocol == nil {
		return nil, errors.New("engine: protocol state is required")
	}
	if opts.Ledger == nil {
		return nil, errors.New("engine: value ledger is required")
	}
	if opts.Clock == nil {
		return nil, errors.New("engine: clock is required")
	}
	if opts.PriceOracle == nil || opts.RiskOracle == nil || opts.RugOracle == nil || opts.RandomOracle == nil {
		return nil, errors.New("engine: all four oracles are required")
	}

	e := &Engine{
		clock:       opts.Clock,
		params:      opts.Params,
		proto:       opts.Protocol,
		vault:       opts.Ledger,
		policies:    state.NewPolicyBook(),
		claims:      state.NewClaimBook(),
		stakes:      state.NewStakingBook(),
		proposals:   state.NewProposalBook(),
		migration:   opts.Migration,
		prices:      opts.PriceOracle,
		risk:        opts.RiskOracle,
		rugStatus:   opts.RugOracle,
		random:      opts.RandomOracle,
		metrics:     opts.Metrics,
		log:         opts.Logger,
		persistChan: opts.PersistChan,
		publishChan: opts.PublishChan,
	}

	now := e.clock()
	e.emit(event.KindProtocolInitialized, opts.Protocol.Authority, now, map[string]any{
		"token_mint":     opts.Protocol.TokenMint,
		"reference_mint": opts.Protocol.ReferenceMint,
		"percents":       opts.Protocol.Percents,
	})
	return e, nil
}

// emit assigns the next audit sequence and hands the envelope to the
// output channels. Persist is a blocking send; publish drops on full.
func (e *Engine) emit(kind event.Kind, actor string, now time.Time, payload any) {
	e.sequence++
	env := &event.Envelope{
		Sequence:  e.sequence,
		Kind:      kind,
		Actor:     actor,
		Timestamp: now,
		Payload:   payload,
	}

	if e.persistChan != nil {
		select {
		case e.persistChan <- env:
		default:
			// Channel full: the engine stalls here until the persistence
			// worker drains. Counted so the stall is visible.
			if e.metrics != nil {
				e.metrics.PersistBackpressure.Inc()
			}
			e.persistChan <- env
		}
	}
	if e.publishChan != nil {
		select {
		case e.publishChan <- env:
		default:
			if e.metrics != nil {
				e.metrics.PublishDrops.Inc()
			}
		}
	}
	if e.metrics != nil {
		e.metrics.EngineSequence.Set(float64(e.sequence))
	}
}

// applied records a successful operation. Wall clock is used for the
// duration metric only; domain time always comes from the injected clock.
func (e *Engine) applied(op string, start time.Time) {
	if e.metrics == nil {
		return
	}
	e.metrics.OpsApplied.WithLabelValues(op).Inc()
	e.metrics.OpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	e.syncPoolGauges()
}

// reject records a failed operation and returns the error unchanged.
func (e *Engine) reject(op, reason string, err error) error {
	if e.metrics != nil {
		e.metrics.OpsRejected.WithLabelValues(op, reason).Inc()
	}
	e.log.Debug().Str("op", op).Str("reason", reason).Err(err).Msg("operation rejected")
	return err
}

func (e *Engine) syncPoolGauges() {
	if e.metrics == nil {
		return
	}
	e.metrics.PoolBalance.WithLabelValues("insurance").Set(float64(e.proto.InsurancePool))
	e.metrics.PoolBalance.WithLabelValues("staking").Set(float64(e.proto.StakingPool))
	e.metrics.PoolBalance.WithLabelValues("lottery").Set(float64(e.proto.LotteryPool))
	e.metrics.PoolBalance.WithLabelValues("buyback").Set(float64(e.proto.BuybackReserve))
	e.metrics.TotalStaked.Set(float64(e.proto.TotalStaked))
}

// Ledger holders for the protocol token.

func (e *Engine) userHolder(address string) ledger.Holder {
	return ledger.NewUserHolder(address, e.proto.TokenMint)
}

func (e *Engine) treasuryHolder() ledger.Holder {
	return ledger.NewVaultHolder(TreasuryVault, e.proto.TokenMint)
}

func (e *Engine) stakingHolder() ledger.Holder {
	return ledger.NewVaultHolder(StakingVault, e.proto.TokenMint)
}

// Sequence returns the last assigned audit sequence.
func (e *Engine) Sequence() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sequence
}
