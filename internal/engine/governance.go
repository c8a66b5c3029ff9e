package engine

import (
	"fmt"
	"time"

	"RugShield/internal/event"
	"RugShield/internal/math"
	"RugShield/internal/oracle"
	"RugShield/internal/protocol"
	"RugShield/internal/state"
)

// ProposeLottery earmarks the entire lottery pool, draws the three tier
// winners, and opens the approval vote. The pool is zeroed at proposal
// time: the cooldown guard prevents a second proposal from double
// earmarking while the first is pending.
func (e *Engine) ProposeLottery(proposer string) (*state.VoteProposal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := time.Now()
	now := e.clock()

	if !e.proto.LastProposalAt.IsZero() && now.Sub(e.proto.LastProposalAt) < e.params.ProposalCooldown {
		return nil, e.reject("propose_lottery", "state", protocol.ErrProposalCooldown)
	}
	if e.stakes.StakedAmount(proposer) < e.params.MinVoteStake {
		return nil, e.reject("propose_lottery", "state", protocol.ErrVoteStakeTooSmall)
	}
	pool := e.proto.LotteryPool
	if pool < e.params.MinLotteryPrize || pool/4 == 0 {
		return nil, e.reject("propose_lottery", "resource", protocol.ErrLotteryTooSmall)
	}

	// Eligible set is validated before any randomness draw.
	eligible := e.policies.EligibleParticipants(e.params.MinLotteryPremium)
	if len(eligible) == 0 {
		return nil, e.reject("propose_lottery", "state", protocol.ErrNoEligible)
	}

	// 50/25/25: tier 3 takes the remainder so the three prizes drain
	// the pool exactly.
	tier1 := pool / 2
	tier2 := pool / 4
	tier3 := pool - tier1 - tier2
	prizes := [3]uint64{tier1, tier2, tier3}

	drawID := e.proto.TotalVotes + 1
	winners := make([]state.LotteryWinner, 0, len(prizes))
	for tier, prize := range prizes {
		requestID := fmt.Sprintf("lottery:%d:tier:%d", drawID, tier+1)
		r, err := e.random.Random(requestID)
		if err != nil {
			return nil, e.reject("propose_lottery", "oracle", err)
		}
		if r == 0 {
			return nil, e.reject("propose_lottery", "oracle", oracle.ErrInvalidRandomness)
		}
		winners = append(winners, state.LotteryWinner{
			Address: eligible[r%uint64(len(eligible))],
			Prize:   prize,
		})
	}

	// Earmark: the pool goes to zero now, before the vote resolves.
	if err := e.proto.Debit(protocol.Shares{Lottery: pool}); err != nil {
		return nil, e.reject("propose_lottery", "resource", err)
	}

	vote := e.proposals.Create(proposer, state.ProposalKindLottery, now, now.Add(e.params.VotingPeriod))
	vote.Winners = winners
	vote.Earmark = pool
	e.proto.TotalVotes++
	e.proto.LastProposalAt = now

	e.emit(event.KindLotteryProposed, proposer, now, map[string]any{
		"vote_id":  vote.VoteID,
		"earmark":  pool,
		"winners":  winners,
		"end_time": vote.EndTime,
	})

	if e.metrics != nil {
		e.metrics.ProposalsOpened.WithLabelValues(state.ProposalKindLottery.String()).Inc()
	}
	e.applied("propose_lottery", start)
	e.log.Info().
		Str("proposer", proposer).
		Uint64("vote_id", vote.VoteID).
		Uint64("earmark", pool).
		Msg("lottery proposed")
	return vote, nil
}

// ProposeParameterChange opens a vote over a governance-tunable
// parameter. A pool-percentage change is validated at proposal time and
// again at execution.
func (e *Engine) ProposeParameterChange(proposer string, change state.ParamChange) (*state.VoteProposal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := time.Now()
	now := e.clock()

	if !e.proto.LastProposalAt.IsZero() && now.Sub(e.proto.LastProposalAt) < e.params.ProposalCooldown {
		return nil, e.reject("propose_parameter_change", "state", protocol.ErrProposalCooldown)
	}
	if e.stakes.StakedAmount(proposer) < e.params.MinVoteStake {
		return nil, e.reject("propose_parameter_change", "state", protocol.ErrVoteStakeTooSmall)
	}
	if change.Field == state.FieldPoolPercents {
		if err := change.Pcts.Validate(); err != nil {
			return nil, e.reject("propose_parameter_change", "validation", err)
		}
	}

	vote := e.proposals.Create(proposer, state.ProposalKindGovernanceChange, now, now.Add(e.params.VotingPeriod))
	vote.Change = change
	e.proto.TotalVotes++
	e.proto.LastProposalAt = now

	e.emit(event.KindParameterChangeProposed, proposer, now, map[string]any{
		"vote_id":  vote.VoteID,
		"field":    change.Field.String(),
		"end_time": vote.EndTime,
	})

	if e.metrics != nil {
		e.metrics.ProposalsOpened.WithLabelValues(state.ProposalKindGovernanceChange.String()).Inc()
	}
	e.applied("propose_parameter_change", start)
	e.log.Info().
		Str("proposer", proposer).
		Uint64("vote_id", vote.VoteID).
		Str("field", change.Field.String()).
		Msg("parameter change proposed")
	return vote, nil
}

// CastVote tallies a stake-weighted vote. One vote per identity per
// proposal; weight is the voter's staked balance at cast time.
func (e *Engine) CastVote(voter string, voteID uint64, approve bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := time.Now()
	now := e.clock()

	vote, err := e.proposals.Get(voteID)
	if err != nil {
		return e.reject("cast_vote", "state", err)
	}
	if !vote.IsActive {
		return e.reject("cast_vote", "state", protocol.ErrVoteNotActive)
	}
	if now.After(vote.EndTime) {
		return e.reject("cast_vote", "state", protocol.ErrVoteEnded)
	}
	if vote.HasVoted(voter) {
		return e.reject("cast_vote", "state", protocol.ErrAlreadyVoted)
	}
	weight := e.stakes.StakedAmount(voter)
	if weight < e.params.MinVoteStake {
		return e.reject("cast_vote", "state", protocol.ErrVoteStakeTooSmall)
	}

	vote.RecordVote(voter, approve, weight)

	choice := "no"
	if approve {
		choice = "yes"
	}
	e.emit(event.KindVoteCast, voter, now, map[string]any{
		"vote_id": voteID,
		"choice":  choice,
		"weight":  weight,
	})

	if e.metrics != nil {
		e.metrics.VotesCast.WithLabelValues(choice).Inc()
	}
	e.applied("cast_vote", start)
	return nil
}

// ExecuteProposal resolves a proposal once its voting period has ended.
// A strict yes-majority applies the effect; otherwise the proposal is
// rejected with no effect (a rejected lottery returns its earmark to
// the pool). Either way the proposal is terminal and a second execution
// fails. If applying the effect fails, the whole operation fails and
// the proposal stays open for a later retry.
func (e *Engine) ExecuteProposal(caller string, voteID uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := time.Now()
	now := e.clock()

	vote, err := e.proposals.Get(voteID)
	if err != nil {
		return e.reject("execute_proposal", "state", err)
	}
	if !vote.IsActive {
		return e.reject("execute_proposal", "state", protocol.ErrVoteExecuted)
	}
	if now.Before(vote.EndTime) {
		return e.reject("execute_proposal", "state", protocol.ErrVoteNotEnded)
	}

	passed := vote.YesVotes > vote.NoVotes
	switch vote.Kind {
	case state.ProposalKindLottery:
		err = e.executeLottery(vote, passed, now)
	case state.ProposalKindClaimApproval:
		err = e.executeClaimApproval(vote, passed, now)
	case state.ProposalKindGovernanceChange:
		err = e.executeGovernanceChange(vote, passed, now)
	default:
		err = protocol.ErrVoteNotFound
	}
	if err != nil {
		return e.reject("execute_proposal", "resource", err)
	}

	vote.IsActive = false
	vote.Approved = passed

	outcome := "rejected"
	if passed {
		outcome = "executed"
	}
	e.emit(event.KindProposalExecuted, caller, now, map[string]any{
		"vote_id":   voteID,
		"kind":      vote.Kind.String(),
		"outcome":   outcome,
		"yes_votes": vote.YesVotes,
		"no_votes":  vote.NoVotes,
	})

	if e.metrics != nil {
		e.metrics.ProposalsExecuted.WithLabelValues(vote.Kind.String(), outcome).Inc()
	}
	e.applied("execute_proposal", start)
	e.log.Info().
		Uint64("vote_id", voteID).
		Str("kind", vote.Kind.String()).
		Str("outcome", outcome).
		Msg("proposal executed")
	return nil
}

// executeLottery pays the pre-drawn winners from the earmarked funds,
// or returns the earmark to the lottery pool on rejection.
func (e *Engine) executeLottery(vote *state.VoteProposal, passed bool, now time.Time) error {
	if !passed {
		return e.proto.Credit(protocol.Shares{Lottery: vote.Earmark})
	}

	// Validate every payout before the first transfer so the set
	// applies all-or-nothing.
	treasury := e.treasuryHolder()
	var total uint64
	for _, w := range vote.Winners {
		t, err := math.CheckedAdd(total, w.Prize)
		if err != nil {
			return err
		}
		total = t
	}
	if e.vault.Balance(treasury) < total {
		return protocol.ErrInsufficientPool
	}

	for _, w := range vote.Winners {
		if w.Prize == 0 {
			continue
		}
		if err := e.vault.Transfer(treasury, e.userHolder(w.Address), w.Prize); err != nil {
			return err
		}
		e.emit(event.KindLotteryWon, w.Address, now, map[string]any{
			"vote_id": vote.VoteID,
			"prize":   w.Prize,
		})
	}

	if e.metrics != nil {
		e.metrics.LotteryPrizesPaid.Add(float64(total))
	}
	return nil
}

// executeClaimApproval settles a governance-approved claim the same way
// ProcessClaim settles an auto-approved one, or marks the claim
// rejected without moving funds.
func (e *Engine) executeClaimApproval(vote *state.VoteProposal, passed bool, now time.Time) error {
	claim, err := e.claims.Get(vote.ClaimID)
	if err != nil {
		return err
	}
	if !passed {
		claim.Status = state.ClaimStatusRejected
		return nil
	}

	payout, outcome, err := e.settleClaimPayout(vote.Beneficiary, vote.Amount)
	if err != nil {
		return err
	}
	claim.Status = state.ClaimStatusPaid

	e.emit(event.KindClaimPaid, vote.Beneficiary, now, map[string]any{
		"claim_id": claim.ClaimID,
		"vote_id":  vote.VoteID,
		"payout":   payout,
		"outcome":  outcome,
	})
	if e.metrics != nil {
		e.metrics.ClaimsPaid.WithLabelValues(outcome).Inc()
		e.metrics.ClaimPayouts.Add(float64(payout))
	}
	return nil
}

// executeGovernanceChange applies an approved parameter change. The
// percentage-sum invariant is re-validated at apply time.
func (e *Engine) executeGovernanceChange(vote *state.VoteProposal, passed bool, now time.Time) error {
	if !passed {
		return nil
	}

	change := vote.Change
	switch change.Field {
	case state.FieldPoolPercents:
		if err := e.proto.SetPercents(change.Pcts); err != nil {
			return err
		}
		e.emit(event.KindPoolPercentagesUpdated, vote.Proposer, now, map[string]any{
			"vote_id":  vote.VoteID,
			"percents": change.Pcts,
		})
	case state.FieldMinCoverage:
		e.params.MinCoverage = change.Value
	case state.FieldMinStake:
		e.params.MinStake = change.Value
	case state.FieldMinVoteStake:
		e.params.MinVoteStake = change.Value
	case state.FieldMinLotteryPrize:
		e.params.MinLotteryPrize = change.Value
	case state.FieldMinLotteryPremium:
		e.params.MinLotteryPremium = change.Value
	default:
		return protocol.ErrInvalidIndex
	}
	return nil
}
