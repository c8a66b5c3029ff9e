package engine

import (
	"time"

	"RugShield/internal/event"
	"RugShield/internal/ledger"
	"RugShield/internal/math"
	"RugShield/internal/protocol"
)

// Migrate swaps legacy tokens for new tokens. Inside the bonus window
// the payout is amount*bonusMultiplier/100; afterwards amount*ratio.
// The legacy tokens land in quarantine and never come back; the payout
// is drawn from the pre-funded migration reserve. total_migrated
// accumulates in source-token units.
func (e *Engine) Migrate(caller string, amount uint64) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := time.Now()
	now := e.clock()

	if amount == 0 {
		return 0, e.reject("migrate", "validation", protocol.ErrInvalidAmount)
	}
	m := e.migration
	if m == nil || !m.IsActive {
		return 0, e.reject("migrate", "state", protocol.ErrMigrationInactive)
	}
	if now.After(m.EndTime) {
		return 0, e.reject("migrate", "state", protocol.ErrMigrationEnded)
	}
	if !m.WindowOpen(now) {
		return 0, e.reject("migrate", "state", protocol.ErrMigrationInactive)
	}

	bonus := m.InBonusWindow(now)
	var newAmount uint64
	var err error
	if bonus {
		newAmount, err = math.MulDiv(amount, m.BonusMult, 100)
	} else {
		newAmount, err = math.CheckedMul(amount, m.Ratio)
	}
	if err != nil {
		return 0, e.reject("migrate", "arithmetic", err)
	}
	if newAmount == 0 {
		return 0, e.reject("migrate", "validation", protocol.ErrInvalidAmount)
	}
	newMigrated, err := math.CheckedAdd(m.TotalMigrated, amount)
	if err != nil {
		return 0, e.reject("migrate", "arithmetic", err)
	}

	legacyFrom := ledger.NewUserHolder(caller, m.LegacyToken)
	quarantine := ledger.NewQuarantineHolder(m.LegacyToken)
	reserve := ledger.NewReserveHolder(MigrationReserve, m.NewToken)
	recipient := ledger.NewUserHolder(caller, m.NewToken)

	// Both legs are validated before either moves so the pair applies
	// all-or-nothing.
	if e.vault.Balance(legacyFrom) < amount {
		return 0, e.reject("migrate", "ledger", ledger.ErrInsufficientFunds)
	}
	if e.vault.Balance(reserve) < newAmount {
		return 0, e.reject("migrate", "resource", protocol.ErrInsufficientPool)
	}
	if _, err := math.CheckedAdd(e.vault.Balance(recipient), newAmount); err != nil {
		return 0, e.reject("migrate", "arithmetic", err)
	}
	if err := e.vault.Transfer(legacyFrom, quarantine, amount); err != nil {
		return 0, e.reject("migrate", "ledger", err)
	}
	if err := e.vault.Transfer(reserve, recipient, newAmount); err != nil {
		return 0, e.reject("migrate", "ledger", err)
	}

	m.TotalMigrated = newMigrated

	e.emit(event.KindTokensMigrated, caller, now, map[string]any{
		"legacy_amount": amount,
		"new_amount":    newAmount,
		"bonus":         bonus,
	})

	if e.metrics != nil {
		e.metrics.TokensMigrated.Add(float64(amount))
		if bonus {
			e.metrics.BonusMigrations.Inc()
		}
	}
	e.applied("migrate", start)
	e.log.Info().
		Str("caller", caller).
		Uint64("legacy_amount", amount).
		Uint64("new_amount", newAmount).
		Bool("bonus", bonus).
		Msg("tokens migrated")
	return newAmount, nil
}
