package ledger

import (
	"errors"
	"fmt"

	"RugShield/internal/math"
)

// Ledger is the value-transfer collaborator. Every method is atomic:
// it either fully applies or leaves all balances untouched. The engine
// issues at most one transfer per failure domain so a failed transfer
// means no state was mutated anywhere.
type Ledger interface {
	Transfer(from, to Holder, amount uint64) error
	Mint(to Holder, amount uint64) error
	Burn(from Holder, amount uint64) error
	Balance(h Holder) uint64
}

var (
	ErrInsufficientFunds = errors.New("insufficient holder funds")
	ErrZeroAmount        = errors.New("amount must be positive")
	ErrTokenMismatch     = errors.New("holders reference different tokens")
	ErrQuarantineDebit   = errors.New("quarantined funds cannot be moved")
)

// MemoryLedger is the in-process Ledger used by the engine and tests.
// All mutation happens under the engine's operation lock, so no internal
// locking is needed here.
type MemoryLedger struct {
	balances map[Holder]uint64
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		balances: make(map[Holder]uint64),
	}
}

// Transfer moves amount from one holder to another. Validation happens
// before any write, so a failure leaves both balances untouched.
func (l *MemoryLedger) Transfer(from, to Holder, amount uint64) error {
	if amount == 0 {
		return ErrZeroAmount
	}
	if from.Token != to.Token {
		return fmt.Errorf("%w: %s vs %s", ErrTokenMismatch, from.Token, to.Token)
	}
	if from.Scope == HolderScopeQuarantine {
		return ErrQuarantineDebit
	}
	if l.balances[from] < amount {
		return fmt.Errorf("%w: %s has %d, need %d", ErrInsufficientFunds, from.Path(), l.balances[from], amount)
	}

	credited, err := math.CheckedAdd(l.balances[to], amount)
	if err != nil {
		return err
	}

	l.balances[from] -= amount
	l.balances[to] = credited
	return nil
}

// Mint issues new supply to a holder.
func (l *MemoryLedger) Mint(to Holder, amount uint64) error {
	if amount == 0 {
		return ErrZeroAmount
	}
	credited, err := math.CheckedAdd(l.balances[to], amount)
	if err != nil {
		return err
	}
	l.balances[to] = credited
	return nil
}

// Burn destroys supply held by a holder.
func (l *MemoryLedger) Burn(from Holder, amount uint64) error {
	if amount == 0 {
		return ErrZeroAmount
	}
	if l.balances[from] < amount {
		return fmt.Errorf("%w: %s has %d, need %d", ErrInsufficientFunds, from.Path(), l.balances[from], amount)
	}
	l.balances[from] -= amount
	return nil
}

// Balance returns the current balance for a holder.
func (l *MemoryLedger) Balance(h Holder) uint64 {
	return l.balances[h]
}

// Snapshot returns a copy of all balances.
func (l *MemoryLedger) Snapshot() map[Holder]uint64 {
	snapshot := make(map[Holder]uint64, len(l.balances))
	for k, v := range l.balances {
		snapshot[k] = v
	}
	return snapshot
}
