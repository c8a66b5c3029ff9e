package state

import (
	"time"

	"RugShield/internal/protocol"
)

// StakingAccount tracks one user's stake. Created on first stake,
// mutated by stake and reward claims.
type StakingAccount struct {
	Owner       string
	Amount      uint64
	StakeTime   time.Time
	LastClaimAt time.Time
	RewardsPaid uint64
}

// StakingBook tracks staking accounts by owner.
type StakingBook struct {
	accounts map[string]*StakingAccount
}

func NewStakingBook() *StakingBook {
	return &StakingBook{
		accounts: make(map[string]*StakingAccount),
	}
}

// Get returns a user's staking account.
func (b *StakingBook) Get(owner string) (*StakingAccount, error) {
	account, ok := b.accounts[owner]
	if !ok {
		return nil, protocol.ErrStakeNotFound
	}
	return account, nil
}

// StakedAmount returns the user's staked balance, zero if none.
func (b *StakingBook) StakedAmount(owner string) uint64 {
	if account, ok := b.accounts[owner]; ok {
		return account.Amount
	}
	return 0
}

// AddStake creates or tops up an account. The first stake initializes
// stake_time and the claim timestamp.
func (b *StakingBook) AddStake(owner string, amount uint64, now time.Time) *StakingAccount {
	account, ok := b.accounts[owner]
	if !ok {
		account = &StakingAccount{
			Owner:       owner,
			StakeTime:   now,
			LastClaimAt: now,
		}
		b.accounts[owner] = account
	}
	account.Amount += amount
	return account
}

// All returns every staking account keyed by owner.
func (b *StakingBook) All() map[string]*StakingAccount {
	return b.accounts
}
