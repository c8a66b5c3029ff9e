package oracle

import (
	"errors"
	"time"
)

// Oracle-trust errors. The engine surfaces these verbatim; callers may
// resubmit once the oracle recovers.
var (
	ErrStalePrice        = errors.New("price reading is stale")
	ErrInvalidExponent   = errors.New("price exponent out of accepted range")
	ErrNonPositivePrice  = errors.New("price must be positive")
	ErrInvalidRandomness = errors.New("randomness result is invalid")
	ErrRiskScoreRange    = errors.New("risk score out of range")
)

// MaxPriceAge is the staleness cutoff for price readings.
const MaxPriceAge = 60 * time.Second

// Price is a reference-currency price with a fixed decimal exponent.
type Price struct {
	Value       uint64
	Expo        int32
	PublishedAt time.Time
}

// Validate rejects stale or mis-scaled readings against the supplied
// operation timestamp (read once per operation, never mid-operation).
func (p Price) Validate(now time.Time, wantExpo int32) error {
	if p.Value == 0 {
		return ErrNonPositivePrice
	}
	if p.Expo != wantExpo {
		return ErrInvalidExponent
	}
	if now.Sub(p.PublishedAt) > MaxPriceAge {
		return ErrStalePrice
	}
	return nil
}

// RiskMetrics is the risk oracle's supporting data for one token.
type RiskMetrics struct {
	Score               uint8 // 0-100
	HolderConcentration uint8 // 0-100, top-holder share
	Volatility          uint8 // 0-100, market volatility signal
	LiquidityLocked     bool
	LiquidityLockAmount uint64
	DevRugCount         uint32
	DevProjectCount     uint32
}

// Validate enforces the 0-100 score contract.
func (m RiskMetrics) Validate() error {
	if m.Score > 100 || m.HolderConcentration > 100 || m.Volatility > 100 {
		return ErrRiskScoreRange
	}
	return nil
}

// PriceOracle supplies the reference price feed.
type PriceOracle interface {
	Price() (Price, error)
}

// RiskOracle scores a token's rug-pull risk.
type RiskOracle interface {
	RiskMetrics(token string) (RiskMetrics, error)
}

// RugStatusOracle confirms whether a token has rugged.
type RugStatusOracle interface {
	IsRugged(token string) (bool, error)
}

// RandomnessOracle returns a 64-bit random value for a request id.
// Zero is treated as an invalid result and rejected by callers.
type RandomnessOracle interface {
	Random(requestID string) (uint64, error)
}
