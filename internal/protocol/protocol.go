package protocol

import (
	"fmt"
	"time"

	"RugShield/internal/math"
	"RugShield/internal/oracle"
)

// PoolPercents is the four-way split applied to every incoming premium.
// INVARIANT: the four fields sum to exactly 100 after any mutation.
type PoolPercents struct {
	Insurance uint8
	Staking   uint8
	Lottery   uint8
	Buyback   uint8
}

// Validate enforces the percentage-sum invariant.
func (p PoolPercents) Validate() error {
	sum := int(p.Insurance) + int(p.Staking) + int(p.Lottery) + int(p.Buyback)
	if sum != 100 {
		return fmt.Errorf("%w: got %d", ErrInvalidPercentages, sum)
	}
	return nil
}

// Shares is the concrete split of one amount across the four pools.
// Floor division means Total() may fall short of the split amount by up
// to 3 units; the loss is deterministic and accepted.
type Shares struct {
	Insurance uint64
	Staking   uint64
	Lottery   uint64
	Buyback   uint64
}

// Total sums the four shares.
func (s Shares) Total() uint64 {
	return s.Insurance + s.Staking + s.Lottery + s.Buyback
}

// Protocol is the singleton accounting state. It is the sole mutator of
// pool balances; every operation that touches it serializes behind the
// engine's operation lock.
type Protocol struct {
	Authority     string
	TokenMint     string
	ReferenceMint string

	TotalSupply    uint64
	InsurancePool  uint64
	StakingPool    uint64
	LotteryPool    uint64
	BuybackReserve uint64

	Percents PoolPercents

	TotalStaked   uint64
	TotalPolicies uint64
	TotalVotes    uint64
	TotalPremiums uint64

	ReferencePrice oracle.Price
	LastProposalAt time.Time
}

// New validates the initial percentages and returns a fresh protocol state.
func New(authority, tokenMint, referenceMint string, pcts PoolPercents) (*Protocol, error) {
	if err := pcts.Validate(); err != nil {
		return nil, err
	}
	return &Protocol{
		Authority:     authority,
		TokenMint:     tokenMint,
		ReferenceMint: referenceMint,
		Percents:      pcts,
	}, nil
}

// Split computes the four-way floor split of amount using the current
// percentages. Pure: no pool is mutated.
func (p *Protocol) Split(amount uint64) (Shares, error) {
	insurance, err := math.PercentOf(amount, p.Percents.Insurance)
	if err != nil {
		return Shares{}, err
	}
	staking, err := math.PercentOf(amount, p.Percents.Staking)
	if err != nil {
		return Shares{}, err
	}
	lottery, err := math.PercentOf(amount, p.Percents.Lottery)
	if err != nil {
		return Shares{}, err
	}
	buyback, err := math.PercentOf(amount, p.Percents.Buyback)
	if err != nil {
		return Shares{}, err
	}
	return Shares{Insurance: insurance, Staking: staking, Lottery: lottery, Buyback: buyback}, nil
}

// Credit adds shares to the four pools. All four additions are checked
// before any pool is written, so a failure has no partial effect.
func (p *Protocol) Credit(s Shares) error {
	insurance, err := math.CheckedAdd(p.InsurancePool, s.Insurance)
	if err != nil {
		return err
	}
	staking, err := math.CheckedAdd(p.StakingPool, s.Staking)
	if err != nil {
		return err
	}
	lottery, err := math.CheckedAdd(p.LotteryPool, s.Lottery)
	if err != nil {
		return err
	}
	buyback, err := math.CheckedAdd(p.BuybackReserve, s.Buyback)
	if err != nil {
		return err
	}

	p.InsurancePool = insurance
	p.StakingPool = staking
	p.LotteryPool = lottery
	p.BuybackReserve = buyback
	return nil
}

// Debit subtracts shares from the four pools, failing without partial
// effect if any pool would go below zero.
func (p *Protocol) Debit(s Shares) error {
	insurance, err := math.CheckedSub(p.InsurancePool, s.Insurance)
	if err != nil {
		return fmt.Errorf("%w: insurance pool", ErrInsufficientPool)
	}
	staking, err := math.CheckedSub(p.StakingPool, s.Staking)
	if err != nil {
		return fmt.Errorf("%w: staking pool", ErrInsufficientPool)
	}
	lottery, err := math.CheckedSub(p.LotteryPool, s.Lottery)
	if err != nil {
		return fmt.Errorf("%w: lottery pool", ErrInsufficientPool)
	}
	buyback, err := math.CheckedSub(p.BuybackReserve, s.Buyback)
	if err != nil {
		return fmt.Errorf("%w: buyback reserve", ErrInsufficientPool)
	}

	p.InsurancePool = insurance
	p.StakingPool = staking
	p.LotteryPool = lottery
	p.BuybackReserve = buyback
	return nil
}

// Distribute splits amount by the current percentages and credits the
// pools. Returns the applied shares.
func (p *Protocol) Distribute(amount uint64) (Shares, error) {
	shares, err := p.Split(amount)
	if err != nil {
		return Shares{}, err
	}
	if err := p.Credit(shares); err != nil {
		return Shares{}, err
	}
	return shares, nil
}

// Reverse is the exact inverse subtraction used on cancellation. It is
// computed against the refund amount using the CURRENT percentages,
// which may differ from the percentages at purchase time if governance
// changed them in between. That drift is a documented tradeoff, not a
// bug; see the cancellation tests.
func (p *Protocol) Reverse(refund uint64) (Shares, error) {
	shares, err := p.Split(refund)
	if err != nil {
		return Shares{}, err
	}
	if err := p.Debit(shares); err != nil {
		return Shares{}, err
	}
	return shares, nil
}

// SetPercents replaces the split, re-validating the sum invariant.
func (p *Protocol) SetPercents(pcts PoolPercents) error {
	if err := pcts.Validate(); err != nil {
		return err
	}
	p.Percents = pcts
	return nil
}

// CheckInvariants verifies the percentage sum. Pool balances are uint64
// so negativity is unrepresentable; underflow is caught at mutation time.
func (p *Protocol) CheckInvariants() error {
	return p.Percents.Validate()
}
