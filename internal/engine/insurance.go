package engine

import (
	"fmt"
	"time"

	"RugShield/internal/config"
	"RugShield/internal/event"
	"RugShield/internal/math"
	"RugShield/internal/oracle"
	"RugShield/internal/protocol"
	"RugShield/internal/state"
)

const (
	// Tokens scoring at or above this are uninsurable, not surcharged.
	maxInsurableRiskScore = 90

	// Partial payout when the insurance pool cannot cover the claim.
	partialPayoutPct = 80
)

// BuyInsurance prices and opens a policy for one token. The premium is
// transferred to the treasury and split across the four pools in the
// same atomic step; a failed transfer leaves no state behind.
func (e *Engine) BuyInsurance(buyer, token string, coverage, coverageDays uint64) (*state.InsurancePolicy, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := time.Now()
	now := e.clock()

	if coverage == 0 {
		return nil, e.reject("buy_insurance", "validation", protocol.ErrInvalidAmount)
	}
	if coverage < e.params.MinCoverage {
		return nil, e.reject("buy_insurance", "validation", protocol.ErrCoverageTooSmall)
	}
	if coverageDays < 1 || coverageDays > e.params.MaxCoverageDays {
		return nil, e.reject("buy_insurance", "validation", protocol.ErrInvalidDuration)
	}

	metrics, err := e.risk.RiskMetrics(token)
	if err != nil {
		return nil, e.reject("buy_insurance", "oracle", err)
	}
	if err := metrics.Validate(); err != nil {
		return nil, e.reject("buy_insurance", "oracle", err)
	}
	if metrics.Score >= maxInsurableRiskScore {
		return nil, e.reject("buy_insurance", "state", protocol.ErrRiskTooHigh)
	}

	price, err := e.prices.Price()
	if err != nil {
		return nil, e.reject("buy_insurance", "oracle", err)
	}
	if err := price.Validate(now, e.params.PriceExpo); err != nil {
		return nil, e.reject("buy_insurance", "oracle", err)
	}

	premium, err := computePremium(coverage, coverageDays, metrics, price.Value, e.params.TokenDecimals)
	if err != nil {
		return nil, e.reject("buy_insurance", "arithmetic", err)
	}

	shares, err := e.proto.Split(premium)
	if err != nil {
		return nil, e.reject("buy_insurance", "arithmetic", err)
	}
	newPremiums, err := math.CheckedAdd(e.proto.TotalPremiums, premium)
	if err != nil {
		return nil, e.reject("buy_insurance", "arithmetic", err)
	}

	// Credit before the transfer: Credit is check-then-write, and a
	// transfer failure is undone by the exact inverse Debit, which
	// cannot fail on amounts just credited.
	if err := e.proto.Credit(shares); err != nil {
		return nil, e.reject("buy_insurance", "arithmetic", err)
	}
	if err := e.vault.Transfer(e.userHolder(buyer), e.treasuryHolder(), premium); err != nil {
		_ = e.proto.Debit(shares)
		return nil, e.reject("buy_insurance", "ledger", err)
	}

	end := now.Add(time.Duration(coverageDays) * 24 * time.Hour)
	policy := e.policies.Create(buyer, token, coverage, premium, now, end)
	e.proto.TotalPolicies++
	e.proto.TotalPremiums = newPremiums
	e.proto.ReferencePrice = price

	e.emit(event.KindPolicyCreated, buyer, now, map[string]any{
		"policy_id": policy.PolicyID,
		"token":     token,
		"coverage":  coverage,
		"premium":   premium,
		"end_time":  end,
	})

	if e.metrics != nil {
		e.metrics.PoliciesCreated.Inc()
		e.metrics.PremiumsTotal.Add(float64(premium))
		e.metrics.SplitLoss.Add(float64(premium - shares.Total()))
	}
	e.applied("buy_insurance", start)
	e.log.Info().
		Str("buyer", buyer).
		Str("token", token).
		Uint64("policy_id", policy.PolicyID).
		Uint64("premium", premium).
		Msg("policy created")
	return policy, nil
}

// computePremium prices coverage in protocol-token units. Base rate by
// risk tier, duration multiplier by coverage-day tier, and a volatility
// uplift when the oracle reports a volatility signal, then converted
// from reference units at the oracle price.
func computePremium(coverage, coverageDays uint64, m oracle.RiskMetrics, price uint64, decimals uint8) (uint64, error) {
	ref, err := math.MulDiv(coverage, baseRateForScore(m.Score), 10_000)
	if err != nil {
		return 0, err
	}
	ref, err = math.MulDiv(ref, timeMultiplier(coverageDays), 100)
	if err != nil {
		return 0, err
	}
	if m.Volatility > 0 {
		adjustment := 100 + uint64(m.Volatility)*50/100
		ref, err = math.MulDiv(ref, adjustment, 100)
		if err != nil {
			return 0, err
		}
	}

	premium, err := math.MulDiv(ref, math.Pow10(decimals), price)
	if err != nil {
		return 0, err
	}
	if premium == 0 {
		return 0, fmt.Errorf("%w: premium rounds to zero", protocol.ErrInvalidAmount)
	}
	return premium, nil
}

func baseRateForScore(score uint8) uint64 {
	switch {
	case score <= 30:
		return 500
	case score <= 60:
		return 1000
	case score <= 80:
		return 1500
	default:
		return 2000
	}
}

func timeMultiplier(days uint64) uint64 {
	switch {
	case days <= 7:
		return 100
	case days <= 30:
		return 120
	default:
		return 150
	}
}

// CancelInsurance refunds the unexpired portion of a premium and
// deactivates the policy. Within the first day the refund is 100%;
// afterwards it is the floor pro-rata share of remaining days. The
// refund is reversed out of the pools at the CURRENT percentages, which
// may have drifted since purchase.
func (e *Engine) CancelInsurance(caller string, policyID uint64) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := time.Now()
	now := e.clock()

	policy, err := e.policies.Get(policyID)
	if err != nil {
		return 0, e.reject("cancel_insurance", "state", err)
	}
	if policy.Owner != caller {
		return 0, e.reject("cancel_insurance", "state", protocol.ErrNotPolicyOwner)
	}
	if !policy.IsActive {
		return 0, e.reject("cancel_insurance", "state", protocol.ErrPolicyInactive)
	}
	if policy.HasClaimed {
		return 0, e.reject("cancel_insurance", "state", protocol.ErrPolicyClaimed)
	}

	// Per-pool sufficiency for the refund's four shares is enforced
	// by Reverse, with no partial effect on failure.
	refund := refundAmount(policy, now)
	if refund > 0 {
		shares, err := e.proto.Reverse(refund)
		if err != nil {
			return 0, e.reject("cancel_insurance", "resource", err)
		}
		if err := e.vault.Transfer(e.treasuryHolder(), e.userHolder(caller), refund); err != nil {
			_ = e.proto.Credit(shares)
			return 0, e.reject("cancel_insurance", "ledger", err)
		}
		e.policies.ReducePremiumTotal(caller, refund)
	}
	policy.IsActive = false

	e.emit(event.KindPolicyCanceled, caller, now, map[string]any{
		"policy_id": policyID,
		"refund":    refund,
	})

	if e.metrics != nil {
		e.metrics.PoliciesCanceled.Inc()
	}
	e.applied("cancel_insurance", start)
	e.log.Info().
		Str("owner", caller).
		Uint64("policy_id", policyID).
		Uint64("refund", refund).
		Msg("policy canceled")
	return refund, nil
}

// refundAmount computes the refund with floor division, clamped to
// [0, premium].
func refundAmount(policy *state.InsurancePolicy, now time.Time) uint64 {
	elapsedDays := uint64(now.Sub(policy.StartTime) / (24 * time.Hour))
	if elapsedDays <= 1 {
		return policy.PremiumPaid
	}

	totalDays := uint64(policy.EndTime.Sub(policy.StartTime) / (24 * time.Hour))
	if totalDays == 0 || elapsedDays >= totalDays {
		return 0
	}
	pct := (totalDays - elapsedDays) * 100 / totalDays
	refund, err := math.MulDiv(policy.PremiumPaid, pct, 100)
	if err != nil {
		return 0
	}
	return refund
}

// FileClaim records a claim against an active, unexpired, unclaimed
// policy once the rug-status oracle confirms the event. In AutoVerify
// mode the claim is approved immediately and settled by ProcessClaim;
// in GovernanceVote mode a ClaimApproval proposal is opened instead.
func (e *Engine) FileClaim(caller string, policyID, amount uint64, evidence string) (*state.Claim, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := time.Now()
	now := e.clock()

	policy, err := e.policies.Get(policyID)
	if err != nil {
		return nil, e.reject("file_claim", "state", err)
	}
	if policy.Owner != caller {
		return nil, e.reject("file_claim", "state", protocol.ErrNotPolicyOwner)
	}
	if !policy.IsActive {
		return nil, e.reject("file_claim", "state", protocol.ErrPolicyInactive)
	}
	if policy.HasClaimed {
		return nil, e.reject("file_claim", "state", protocol.ErrPolicyClaimed)
	}
	// Expiry is checked before the oracle: an expired policy is rejected
	// regardless of rug status.
	if policy.Expired(now) {
		return nil, e.reject("file_claim", "state", protocol.ErrPolicyExpired)
	}
	if amount == 0 || amount > policy.Coverage {
		return nil, e.reject("file_claim", "validation", protocol.ErrInvalidAmount)
	}

	rugged, err := e.rugStatus.IsRugged(policy.InsuredToken)
	if err != nil {
		return nil, e.reject("file_claim", "oracle", err)
	}
	if !rugged {
		return nil, e.reject("file_claim", "state", protocol.ErrNotRugged)
	}

	status := state.ClaimStatusAutoApproved
	if e.params.ClaimMode == config.ClaimModeGovernanceVote {
		status = state.ClaimStatusPending
	}
	claim := e.claims.Create(policyID, caller, policy.InsuredToken, amount, evidence, status, now)
	policy.HasClaimed = true

	e.emit(event.KindClaimSubmitted, caller, now, map[string]any{
		"claim_id":  claim.ClaimID,
		"policy_id": policyID,
		"amount":    amount,
		"status":    claim.Status.String(),
	})

	if e.params.ClaimMode == config.ClaimModeGovernanceVote {
		vote := e.proposals.Create(caller, state.ProposalKindClaimApproval, now, now.Add(e.params.VotingPeriod))
		vote.ClaimID = claim.ClaimID
		vote.Beneficiary = caller
		vote.Amount = amount
		claim.VoteID = vote.VoteID
		e.proto.TotalVotes++
		e.proto.LastProposalAt = now

		e.emit(event.KindClaimProposed, caller, now, map[string]any{
			"claim_id": claim.ClaimID,
			"vote_id":  vote.VoteID,
			"end_time": vote.EndTime,
		})
		if e.metrics != nil {
			e.metrics.ProposalsOpened.WithLabelValues(state.ProposalKindClaimApproval.String()).Inc()
		}
	}

	if e.metrics != nil {
		e.metrics.ClaimsFiled.Inc()
	}
	e.applied("file_claim", start)
	e.log.Info().
		Str("claimant", caller).
		Uint64("claim_id", claim.ClaimID).
		Uint64("policy_id", policyID).
		Str("status", claim.Status.String()).
		Msg("claim filed")
	return claim, nil
}

// ProcessClaim settles an auto-approved claim from the insurance pool.
// Full payout when the pool covers the claim; otherwise 80% of the
// available pool. A zero payout fails.
func (e *Engine) ProcessClaim(claimID uint64) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := time.Now()
	now := e.clock()

	claim, err := e.claims.Get(claimID)
	if err != nil {
		return 0, e.reject("process_claim", "state", err)
	}
	if claim.Status != state.ClaimStatusAutoApproved {
		return 0, e.reject("process_claim", "state", protocol.ErrClaimNotApproved)
	}

	payout, outcome, err := e.settleClaimPayout(claim.Claimant, claim.Amount)
	if err != nil {
		return 0, e.reject("process_claim", "resource", err)
	}
	claim.Status = state.ClaimStatusPaid

	e.emit(event.KindClaimPaid, claim.Claimant, now, map[string]any{
		"claim_id": claimID,
		"payout":   payout,
		"outcome":  outcome,
	})

	if e.metrics != nil {
		e.metrics.ClaimsPaid.WithLabelValues(outcome).Inc()
		e.metrics.ClaimPayouts.Add(float64(payout))
	}
	e.applied("process_claim", start)
	e.log.Info().
		Str("claimant", claim.Claimant).
		Uint64("claim_id", claimID).
		Uint64("payout", payout).
		Str("outcome", outcome).
		Msg("claim paid")
	return payout, nil
}

// settleClaimPayout debits the insurance pool and pays the claimant.
// Caller holds the engine lock.
func (e *Engine) settleClaimPayout(claimant string, amount uint64) (uint64, string, error) {
	payout := amount
	outcome := "full"
	if e.proto.InsurancePool < amount {
		p, err := math.MulDiv(e.proto.InsurancePool, partialPayoutPct, 100)
		if err != nil {
			return 0, "", err
		}
		payout = p
		outcome = "partial"
	}
	if payout == 0 {
		return 0, "", protocol.ErrZeroPayout
	}

	shares := protocol.Shares{Insurance: payout}
	if err := e.proto.Debit(shares); err != nil {
		return 0, "", err
	}
	if err := e.vault.Transfer(e.treasuryHolder(), e.userHolder(claimant), payout); err != nil {
		_ = e.proto.Credit(shares)
		return 0, "", err
	}
	return payout, outcome, nil
}
