package state

import "time"

// Migration is the time-boxed legacy-to-new token swap window. Logically
// closed once the window elapses; the active flag allows an early
// administrative shutdown.
type Migration struct {
	LegacyToken   string
	NewToken      string
	Ratio         uint64 // new-token units per legacy unit outside the bonus window
	BonusMult     uint64 // percent, e.g. 110 pays 1.10x inside the bonus window
	StartTime     time.Time
	EndTime       time.Time
	BonusDeadline time.Time

	// TotalMigrated accumulates in SOURCE-token units even though the
	// payout is denominated in the new token. The two denominations are
	// mixed on purpose: the counter answers "how much legacy supply has
	// been retired", not "how much new supply was issued".
	TotalMigrated uint64

	IsActive bool
}

// NewMigration opens a migration window.
func NewMigration(legacy, newToken string, ratio, bonusMult uint64, start, end, bonusDeadline time.Time) *Migration {
	return &Migration{
		LegacyToken:   legacy,
		NewToken:      newToken,
		Ratio:         ratio,
		BonusMult:     bonusMult,
		StartTime:     start,
		EndTime:       end,
		BonusDeadline: bonusDeadline,
		IsActive:      true,
	}
}

// WindowOpen reports whether migrations are currently accepted.
func (m *Migration) WindowOpen(now time.Time) bool {
	return m.IsActive && !now.Before(m.StartTime) && !now.After(m.EndTime)
}

// InBonusWindow reports whether the bonus multiplier applies.
func (m *Migration) InBonusWindow(now time.Time) bool {
	return !now.After(m.BonusDeadline)
}
