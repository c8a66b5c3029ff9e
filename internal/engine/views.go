package engine

import (
	"time"

	"RugShield/internal/protocol"
	"RugShield/internal/state"
)

// ProtocolView is a point-in-time copy of the protocol state for the
// read side. Copies leave the lock quickly; callers never see live
// pointers into engine state.
type ProtocolView struct {
	Authority     string                 `json:"authority"`
	TokenMint     string                 `json:"token_mint"`
	ReferenceMint string                 `json:"reference_mint"`
	TotalSupply   uint64                 `json:"total_supply"`
	Pools         map[string]uint64      `json:"pools"`
	Percents      protocol.PoolPercents  `json:"percents"`
	TotalStaked   uint64                 `json:"total_staked"`
	TotalPolicies uint64                 `json:"total_policies"`
	TotalVotes    uint64                 `json:"total_votes"`
	TotalPremiums uint64                 `json:"total_premiums"`
}

// MigrationView is a point-in-time copy of the migration window.
type MigrationView struct {
	LegacyToken   string    `json:"legacy_token"`
	NewToken      string    `json:"new_token"`
	Ratio         uint64    `json:"ratio"`
	BonusMult     uint64    `json:"bonus_multiplier"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	BonusDeadline time.Time `json:"bonus_deadline"`
	TotalMigrated uint64    `json:"total_migrated"`
	IsActive      bool      `json:"is_active"`
}

// ProtocolState returns a snapshot of pools and counters.
func (e *Engine) ProtocolState() ProtocolView {
	e.mu.Lock()
	defer e.mu.Unlock()
	return ProtocolView{
		Authority:     e.proto.Authority,
		TokenMint:     e.proto.TokenMint,
		ReferenceMint: e.proto.ReferenceMint,
		TotalSupply:   e.proto.TotalSupply,
		Pools: map[string]uint64{
			"insurance": e.proto.InsurancePool,
			"staking":   e.proto.StakingPool,
			"lottery":   e.proto.LotteryPool,
			"buyback":   e.proto.BuybackReserve,
		},
		Percents:      e.proto.Percents,
		TotalStaked:   e.proto.TotalStaked,
		TotalPolicies: e.proto.TotalPolicies,
		TotalVotes:    e.proto.TotalVotes,
		TotalPremiums: e.proto.TotalPremiums,
	}
}

// MigrationState returns a snapshot of the migration window, or false
// if no migration was configured.
func (e *Engine) MigrationState() (MigrationView, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.migration == nil {
		return MigrationView{}, false
	}
	m := e.migration
	return MigrationView{
		LegacyToken:   m.LegacyToken,
		NewToken:      m.NewToken,
		Ratio:         m.Ratio,
		BonusMult:     m.BonusMult,
		StartTime:     m.StartTime,
		EndTime:       m.EndTime,
		BonusDeadline: m.BonusDeadline,
		TotalMigrated: m.TotalMigrated,
		IsActive:      m.IsActive,
	}, true
}

// Policy returns a copy of one policy.
func (e *Engine) Policy(policyID uint64) (state.InsurancePolicy, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	policy, err := e.policies.Get(policyID)
	if err != nil {
		return state.InsurancePolicy{}, err
	}
	return *policy, nil
}

// Claim returns a copy of one claim.
func (e *Engine) Claim(claimID uint64) (state.Claim, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	claim, err := e.claims.Get(claimID)
	if err != nil {
		return state.Claim{}, err
	}
	return *claim, nil
}

// Proposal returns a copy of one vote proposal.
func (e *Engine) Proposal(voteID uint64) (state.VoteProposal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	vote, err := e.proposals.Get(voteID)
	if err != nil {
		return state.VoteProposal{}, err
	}
	return *vote, nil
}

// StakingAccount returns a copy of one staking account.
func (e *Engine) StakingAccount(owner string) (state.StakingAccount, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	account, err := e.stakes.Get(owner)
	if err != nil {
		return state.StakingAccount{}, err
	}
	return *account, nil
}

// Policies returns copies of every policy.
func (e *Engine) Policies() []state.InsurancePolicy {
	e.mu.Lock()
	defer e.mu.Unlock()
	all := e.policies.All()
	out := make([]state.InsurancePolicy, 0, len(all))
	for _, p := range all {
		out = append(out, *p)
	}
	return out
}

// Proposals returns copies of every proposal.
func (e *Engine) Proposals() []state.VoteProposal {
	e.mu.Lock()
	defer e.mu.Unlock()
	all := e.proposals.All()
	out := make([]state.VoteProposal, 0, len(all))
	for _, v := range all {
		out = append(out, *v)
	}
	return out
}

// Params returns the current governance-tunable parameters.
func (e *Engine) Parameters() Params {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.params
}
