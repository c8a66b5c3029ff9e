package oracle

import (
	"crypto/sha256"
	"encoding/binary"
	"time"
)

// FixedPriceOracle returns a single configured price reading. Tests use
// it to supply fresh, stale, or mis-scaled readings.
type FixedPriceOracle struct {
	Reading Price
	Err     error
}

func (o *FixedPriceOracle) Price() (Price, error) {
	if o.Err != nil {
		return Price{}, o.Err
	}
	return o.Reading, nil
}

// FixedRiskOracle returns per-token canned metrics, falling back to a
// default when a token has no entry.
type FixedRiskOracle struct {
	Metrics map[string]RiskMetrics
	Default RiskMetrics
	Err     error
}

func (o *FixedRiskOracle) RiskMetrics(token string) (RiskMetrics, error) {
	if o.Err != nil {
		return RiskMetrics{}, o.Err
	}
	if m, ok := o.Metrics[token]; ok {
		return m, nil
	}
	return o.Default, nil
}

// FixedRugStatusOracle reports a configured set of rugged tokens.
type FixedRugStatusOracle struct {
	Rugged map[string]bool
	Err    error
}

func (o *FixedRugStatusOracle) IsRugged(token string) (bool, error) {
	if o.Err != nil {
		return false, o.Err
	}
	return o.Rugged[token], nil
}

// HashRandomnessOracle derives randomness deterministically from the
// request id. Deterministic given the request id, which is exactly the
// draw contract: no client-side retry can bias an outcome.
type HashRandomnessOracle struct {
	Seed uint64

	// ForceZero makes every draw return the invalid zero value, for
	// adversarial tests.
	ForceZero bool
}

func (o *HashRandomnessOracle) Random(requestID string) (uint64, error) {
	if o.ForceZero {
		return 0, nil
	}

	var seed [8]byte
	binary.LittleEndian.PutUint64(seed[:], o.Seed)
	sum := sha256.Sum256(append(seed[:], []byte(requestID)...))
	v := binary.LittleEndian.Uint64(sum[:8])
	if v == 0 {
		// Vanishingly unlikely, but zero is reserved as the invalid marker.
		v = binary.LittleEndian.Uint64(sum[8:16])
	}
	return v, nil
}

// FreshPrice is a test/dev helper producing a valid reading at now.
func FreshPrice(value uint64, expo int32, now time.Time) Price {
	return Price{Value: value, Expo: expo, PublishedAt: now}
}
