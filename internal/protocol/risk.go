package protocol

import "RugShield/internal/oracle"

// RiskLevel buckets a 0-100 risk score. The bucket edges line up with
// the premium base-rate tiers so a policy's price and its reported level
// never disagree.
type RiskLevel uint8

const (
	RiskLevelLow RiskLevel = iota
	RiskLevelMedium
	RiskLevelHigh
	RiskLevelVeryHigh
)

func (l RiskLevel) String() string {
	switch l {
	case RiskLevelLow:
		return "Low"
	case RiskLevelMedium:
		return "Medium"
	case RiskLevelHigh:
		return "High"
	case RiskLevelVeryHigh:
		return "VeryHigh"
	default:
		return "Unknown"
	}
}

// DeriveRiskLevel maps a score to its bucket.
func DeriveRiskLevel(score uint8) RiskLevel {
	switch {
	case score <= 30:
		return RiskLevelLow
	case score <= 60:
		return RiskLevelMedium
	case score <= 80:
		return RiskLevelHigh
	default:
		return RiskLevelVeryHigh
	}
}

// RugPullRiskReport is an ephemeral, on-demand analysis of one token.
// It is computed from oracle metrics and never persisted.
type RugPullRiskReport struct {
	Token               string
	RiskScore           uint8
	HolderConcentration uint8
	LiquidityLocked     bool
	LiquidityLockAmount uint64
	DevRugCount         uint32
	DevProjectCount     uint32
	Level               RiskLevel
}

// BuildRiskReport validates the oracle metrics and derives the level.
func BuildRiskReport(token string, m oracle.RiskMetrics) (RugPullRiskReport, error) {
	if err := m.Validate(); err != nil {
		return RugPullRiskReport{}, err
	}
	return RugPullRiskReport{
		Token:               token,
		RiskScore:           m.Score,
		HolderConcentration: m.HolderConcentration,
		LiquidityLocked:     m.LiquidityLocked,
		LiquidityLockAmount: m.LiquidityLockAmount,
		DevRugCount:         m.DevRugCount,
		DevProjectCount:     m.DevProjectCount,
		Level:               DeriveRiskLevel(m.Score),
	}, nil
}
