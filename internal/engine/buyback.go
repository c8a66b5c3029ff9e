package engine

import (
	"time"

	"RugShield/internal/event"
	"RugShield/internal/math"
	"RugShield/internal/protocol"
)

// ExecuteBuyback burns tokens out of the buyback reserve, permanently
// reducing total supply. Authority-only.
func (e *Engine) ExecuteBuyback(caller string, amount uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := time.Now()
	now := e.clock()

	if caller != e.proto.Authority {
		return e.reject("execute_buyback", "state", protocol.ErrNotAuthority)
	}
	if amount == 0 {
		return e.reject("execute_buyback", "validation", protocol.ErrInvalidAmount)
	}
	if amount > e.proto.BuybackReserve {
		return e.reject("execute_buyback", "resource", protocol.ErrInsufficientPool)
	}
	newSupply, err := math.CheckedSub(e.proto.TotalSupply, amount)
	if err != nil {
		return e.reject("execute_buyback", "arithmetic", err)
	}

	shares := protocol.Shares{Buyback: amount}
	if err := e.proto.Debit(shares); err != nil {
		return e.reject("execute_buyback", "resource", err)
	}
	if err := e.vault.Burn(e.treasuryHolder(), amount); err != nil {
		_ = e.proto.Credit(shares)
		return e.reject("execute_buyback", "ledger", err)
	}
	e.proto.TotalSupply = newSupply

	e.emit(event.KindBuybackExecuted, caller, now, map[string]any{
		"burned":       amount,
		"total_supply": newSupply,
	})

	if e.metrics != nil {
		e.metrics.TokensBurned.Add(float64(amount))
	}
	e.applied("execute_buyback", start)
	e.log.Info().
		Uint64("burned", amount).
		Uint64("total_supply", newSupply).
		Msg("buyback executed")
	return nil
}

// AnalyzeToken builds an on-demand rug-pull risk report from oracle
// metrics. Nothing is persisted; the report is also published as an
// audit event.
func (e *Engine) AnalyzeToken(caller, token string) (protocol.RugPullRiskReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := time.Now()
	now := e.clock()

	metrics, err := e.risk.RiskMetrics(token)
	if err != nil {
		return protocol.RugPullRiskReport{}, e.reject("analyze_token", "oracle", err)
	}
	report, err := protocol.BuildRiskReport(token, metrics)
	if err != nil {
		return protocol.RugPullRiskReport{}, e.reject("analyze_token", "oracle", err)
	}

	e.emit(event.KindTokenAnalyzed, caller, now, report)
	e.applied("analyze_token", start)
	return report, nil
}

// UpdatePrice refreshes the cached reference price, rejecting stale or
// mis-scaled oracle readings.
func (e *Engine) UpdatePrice(caller string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := time.Now()
	now := e.clock()

	price, err := e.prices.Price()
	if err != nil {
		return e.reject("update_price", "oracle", err)
	}
	if err := price.Validate(now, e.params.PriceExpo); err != nil {
		return e.reject("update_price", "oracle", err)
	}
	e.proto.ReferencePrice = price

	e.emit(event.KindPriceUpdated, caller, now, map[string]any{
		"value": price.Value,
		"expo":  price.Expo,
	})
	e.applied("update_price", start)
	return nil
}
