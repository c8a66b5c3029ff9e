package event

import "time"

// Kind discriminates audit event payloads.
type Kind int32

const (
	KindUnknown Kind = iota
	KindProtocolInitialized
	KindPriceUpdated
	KindTokensMigrated
	KindPolicyCreated
	KindPolicyCanceled
	KindClaimSubmitted
	KindClaimProposed
	KindClaimPaid
	KindTokensStaked
	KindRewardsClaimed
	KindLotteryProposed
	KindLotteryWon
	KindVoteCast
	KindParameterChangeProposed
	KindProposalExecuted
	KindPoolPercentagesUpdated
	KindBuybackExecuted
	KindTokenAnalyzed
)

func (k Kind) String() string {
	switch k {
	case KindProtocolInitialized:
		return "ProtocolInitialized"
	case KindPriceUpdated:
		return "PriceUpdated"
	case KindTokensMigrated:
		return "TokensMigrated"
	case KindPolicyCreated:
		return "PolicyCreated"
	case KindPolicyCanceled:
		return "PolicyCanceled"
	case KindClaimSubmitted:
		return "ClaimSubmitted"
	case KindClaimProposed:
		return "ClaimProposed"
	case KindClaimPaid:
		return "ClaimPaid"
	case KindTokensStaked:
		return "TokensStaked"
	case KindRewardsClaimed:
		return "RewardsClaimed"
	case KindLotteryProposed:
		return "LotteryProposed"
	case KindLotteryWon:
		return "LotteryWon"
	case KindVoteCast:
		return "VoteCast"
	case KindParameterChangeProposed:
		return "ParameterChangeProposed"
	case KindProposalExecuted:
		return "ProposalExecuted"
	case KindPoolPercentagesUpdated:
		return "PoolPercentagesUpdated"
	case KindBuybackExecuted:
		return "BuybackExecuted"
	case KindTokenAnalyzed:
		return "TokenAnalyzed"
	default:
		return "Unknown"
	}
}

// Subject returns the NATS subject suffix for this kind.
func (k Kind) Subject() string {
	switch k {
	case KindProtocolInitialized:
		return "protocol.initialized"
	case KindPriceUpdated:
		return "price.updated"
	case KindTokensMigrated:
		return "migration.migrated"
	case KindPolicyCreated:
		return "insurance.created"
	case KindPolicyCanceled:
		return "insurance.canceled"
	case KindClaimSubmitted:
		return "claims.submitted"
	case KindClaimProposed:
		return "claims.proposed"
	case KindClaimPaid:
		return "claims.paid"
	case KindTokensStaked:
		return "staking.staked"
	case KindRewardsClaimed:
		return "staking.rewards"
	case KindLotteryProposed:
		return "lottery.proposed"
	case KindLotteryWon:
		return "lottery.won"
	case KindVoteCast:
		return "governance.vote"
	case KindParameterChangeProposed:
		return "governance.proposed"
	case KindProposalExecuted:
		return "governance.executed"
	case KindPoolPercentagesUpdated:
		return "governance.percentages"
	case KindBuybackExecuted:
		return "buyback.executed"
	case KindTokenAnalyzed:
		return "risk.analyzed"
	default:
		return "unknown"
	}
}

// Envelope wraps every audit event emitted by the engine. Sequence is
// the engine's global monotonic counter; Timestamp is the operation's
// single clock reading, never a wall-clock re-read.
type Envelope struct {
	Sequence  uint64
	Kind      Kind
	Actor     string
	Timestamp time.Time
	Payload   any
}
