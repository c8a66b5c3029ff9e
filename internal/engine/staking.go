package engine

import (
	"time"

	"RugShield/internal/config"
	"RugShield/internal/event"
	"RugShield/internal/math"
	"RugShield/internal/protocol"
	"RugShield/internal/state"
)

const secondsPerDay = 86_400

// Stake moves tokens into the staking vault and bumps the user's
// staked balance and the global total. The first stake initializes the
// stake and claim timestamps.
func (e *Engine) Stake(caller string, amount uint64) (*state.StakingAccount, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := time.Now()
	now := e.clock()

	if amount < e.params.MinStake {
		return nil, e.reject("stake", "validation", protocol.ErrStakeTooSmall)
	}
	newTotal, err := math.CheckedAdd(e.proto.TotalStaked, amount)
	if err != nil {
		return nil, e.reject("stake", "arithmetic", err)
	}

	if err := e.vault.Transfer(e.userHolder(caller), e.stakingHolder(), amount); err != nil {
		return nil, e.reject("stake", "ledger", err)
	}

	account := e.stakes.AddStake(caller, amount, now)
	e.proto.TotalStaked = newTotal

	e.emit(event.KindTokensStaked, caller, now, map[string]any{
		"amount":       amount,
		"staked_total": account.Amount,
	})

	e.applied("stake", start)
	e.log.Info().
		Str("staker", caller).
		Uint64("amount", amount).
		Uint64("total_staked", newTotal).
		Msg("tokens staked")
	return account, nil
}

// ClaimRewards pays the caller's pro-rata share of the staking pool.
// The simple variant scales the share by the elapsed fraction of a day
// since the last claim; the governance variant pays the direct share
// but enforces the lockup since first stake. total_staked is never
// mutated here.
func (e *Engine) ClaimRewards(caller string) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := time.Now()
	now := e.clock()

	account, err := e.stakes.Get(caller)
	if err != nil {
		return 0, e.reject("claim_rewards", "state", err)
	}
	if now.Sub(account.LastClaimAt) < e.params.ClaimInterval {
		return 0, e.reject("claim_rewards", "state", protocol.ErrClaimTooSoon)
	}
	if e.params.RewardVariant == config.RewardVariantGovernance &&
		now.Sub(account.StakeTime) < e.params.StakingLockup {
		return 0, e.reject("claim_rewards", "state", protocol.ErrStakeLocked)
	}
	if e.proto.TotalStaked == 0 {
		return 0, e.reject("claim_rewards", "resource", protocol.ErrZeroReward)
	}

	reward, err := math.MulDiv(e.proto.StakingPool, account.Amount, e.proto.TotalStaked)
	if err != nil {
		return 0, e.reject("claim_rewards", "arithmetic", err)
	}
	if e.params.RewardVariant == config.RewardVariantSimple {
		elapsedSeconds := uint64(now.Sub(account.LastClaimAt) / time.Second)
		reward, err = math.MulDiv(reward, elapsedSeconds, secondsPerDay)
		if err != nil {
			return 0, e.reject("claim_rewards", "arithmetic", err)
		}
	}
	if reward == 0 {
		return 0, e.reject("claim_rewards", "resource", protocol.ErrZeroReward)
	}
	if reward > e.proto.StakingPool {
		return 0, e.reject("claim_rewards", "resource", protocol.ErrInsufficientPool)
	}

	shares := protocol.Shares{Staking: reward}
	if err := e.proto.Debit(shares); err != nil {
		return 0, e.reject("claim_rewards", "resource", err)
	}
	if err := e.vault.Transfer(e.treasuryHolder(), e.userHolder(caller), reward); err != nil {
		_ = e.proto.Credit(shares)
		return 0, e.reject("claim_rewards", "ledger", err)
	}

	account.LastClaimAt = now
	account.RewardsPaid += reward

	e.emit(event.KindRewardsClaimed, caller, now, map[string]any{
		"reward":       reward,
		"staking_pool": e.proto.StakingPool,
	})

	e.applied("claim_rewards", start)
	e.log.Info().
		Str("staker", caller).
		Uint64("reward", reward).
		Msg("rewards claimed")
	return reward, nil
}
