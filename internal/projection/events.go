package projection

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

// rawEvent is one audit-log row as read by the worker.
type rawEvent struct {
	Sequence uint64
	Kind     string
	Actor    string
	Payload  []byte
}

// Payload shapes for the kinds the read model cares about. Unknown
// kinds are skipped; the audit log remains the source of truth.

type policyCreatedPayload struct {
	PolicyID uint64    `json:"policy_id"`
	Token    string    `json:"token"`
	Coverage uint64    `json:"coverage"`
	Premium  uint64    `json:"premium"`
	EndTime  time.Time `json:"end_time"`
}

type policyCanceledPayload struct {
	PolicyID uint64 `json:"policy_id"`
}

type claimSubmittedPayload struct {
	PolicyID uint64 `json:"policy_id"`
}

type tokensStakedPayload struct {
	StakedTotal uint64 `json:"staked_total"`
}

type rewardsClaimedPayload struct {
	Reward uint64 `json:"reward"`
}

type proposalOpenedPayload struct {
	VoteID  uint64    `json:"vote_id"`
	EndTime time.Time `json:"end_time"`
}

type proposalExecutedPayload struct {
	VoteID   uint64 `json:"vote_id"`
	Kind     string `json:"kind"`
	Outcome  string `json:"outcome"`
	YesVotes uint64 `json:"yes_votes"`
	NoVotes  uint64 `json:"no_votes"`
}

func applyEvent(ctx context.Context, tx *sql.Tx, e rawEvent) error {
	switch e.Kind {
	case "PolicyCreated":
		var p policyCreatedPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO projections.policies
				(policy_id, owner, token, coverage, premium, end_time, active, claimed, last_sequence)
			VALUES ($1, $2, $3, $4, $5, $6, TRUE, FALSE, $7)
			ON CONFLICT (policy_id) DO NOTHING
		`, p.PolicyID, e.Actor, p.Token, p.Coverage, p.Premium, p.EndTime, e.Sequence)
		return err

	case "PolicyCanceled":
		var p policyCanceledPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE projections.policies
			SET active = FALSE, last_sequence = $2
			WHERE policy_id = $1 AND last_sequence < $2
		`, p.PolicyID, e.Sequence)
		return err

	case "ClaimSubmitted":
		var p claimSubmittedPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE projections.policies
			SET claimed = TRUE, last_sequence = $2
			WHERE policy_id = $1 AND last_sequence < $2
		`, p.PolicyID, e.Sequence)
		return err

	case "TokensStaked":
		var p tokensStakedPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return err
		}
		// staked_total carries the account's post-stake balance, so the
		// upsert is idempotent under replay.
		_, err := tx.ExecContext(ctx, `
			INSERT INTO projections.staking_accounts (owner, staked, rewards_paid, last_sequence)
			VALUES ($1, $2, 0, $3)
			ON CONFLICT (owner) DO UPDATE
				SET staked = $2, last_sequence = $3
				WHERE projections.staking_accounts.last_sequence < $3
		`, e.Actor, p.StakedTotal, e.Sequence)
		return err

	case "RewardsClaimed":
		var p rewardsClaimedPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO projections.staking_accounts (owner, staked, rewards_paid, last_sequence)
			VALUES ($1, 0, $2, $3)
			ON CONFLICT (owner) DO UPDATE
				SET rewards_paid = projections.staking_accounts.rewards_paid + $2, last_sequence = $3
				WHERE projections.staking_accounts.last_sequence < $3
		`, e.Actor, p.Reward, e.Sequence)
		return err

	case "LotteryProposed":
		return insertProposal(ctx, tx, e, "Lottery")

	case "ClaimProposed":
		return insertProposal(ctx, tx, e, "ClaimApproval")

	case "ParameterChangeProposed":
		return insertProposal(ctx, tx, e, "GovernanceChange")

	case "ProposalExecuted":
		var p proposalExecutedPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE projections.proposals
			SET outcome = $2, yes_votes = $3, no_votes = $4, last_sequence = $5
			WHERE vote_id = $1 AND last_sequence < $5
		`, p.VoteID, p.Outcome, p.YesVotes, p.NoVotes, e.Sequence)
		return err

	default:
		return nil
	}
}

func insertProposal(ctx context.Context, tx *sql.Tx, e rawEvent, kind string) error {
	var p proposalOpenedPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.proposals
			(vote_id, kind, proposer, end_time, outcome, last_sequence)
		VALUES ($1, $2, $3, $4, 'open', $5)
		ON CONFLICT (vote_id) DO NOTHING
	`, p.VoteID, kind, e.Actor, p.EndTime, e.Sequence)
	return err
}
