package feed

import (
	"encoding/json"
	"fmt"
	"time"

	"RugShield/internal/oracle"
)

// JSON wire formats published by the oracle gateway. Field names use
// snake_case to match the upstream producers.

type priceJSON struct {
	Value       uint64 `json:"value"`
	Expo        int32  `json:"expo"`
	PublishedUs int64  `json:"published_at_us"`
}

// ParsePriceUpdate decodes one reference-price reading.
func ParsePriceUpdate(data []byte) (oracle.Price, error) {
	var j priceJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return oracle.Price{}, fmt.Errorf("parse price update: %w", err)
	}
	return oracle.Price{
		Value:       j.Value,
		Expo:        j.Expo,
		PublishedAt: time.UnixMicro(j.PublishedUs),
	}, nil
}

type riskJSON struct {
	Token               string `json:"token"`
	Score               uint8  `json:"score"`
	HolderConcentration uint8  `json:"holder_concentration"`
	Volatility          uint8  `json:"volatility"`
	LiquidityLocked     bool   `json:"liquidity_locked"`
	LiquidityLockAmount uint64 `json:"liquidity_lock_amount"`
	DevRugCount         uint32 `json:"dev_rug_count"`
	DevProjectCount     uint32 `json:"dev_project_count"`
}

// ParseRiskUpdate decodes one token's risk metrics and enforces the
// 0-100 range contract before the reading enters the store.
func ParseRiskUpdate(data []byte) (string, oracle.RiskMetrics, error) {
	var j riskJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return "", oracle.RiskMetrics{}, fmt.Errorf("parse risk update: %w", err)
	}
	if j.Token == "" {
		return "", oracle.RiskMetrics{}, fmt.Errorf("parse risk update: missing token")
	}
	m := oracle.RiskMetrics{
		Score:               j.Score,
		HolderConcentration: j.HolderConcentration,
		Volatility:          j.Volatility,
		LiquidityLocked:     j.LiquidityLocked,
		LiquidityLockAmount: j.LiquidityLockAmount,
		DevRugCount:         j.DevRugCount,
		DevProjectCount:     j.DevProjectCount,
	}
	if err := m.Validate(); err != nil {
		return "", oracle.RiskMetrics{}, err
	}
	return j.Token, m, nil
}

type rugStatusJSON struct {
	Token  string `json:"token"`
	Rugged bool   `json:"rugged"`
}

// ParseRugStatus decodes a rug-status confirmation.
func ParseRugStatus(data []byte) (string, bool, error) {
	var j rugStatusJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return "", false, fmt.Errorf("parse rug status: %w", err)
	}
	if j.Token == "" {
		return "", false, fmt.Errorf("parse rug status: missing token")
	}
	return j.Token, j.Rugged, nil
}
