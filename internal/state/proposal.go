package state

import (
	"time"

	"RugShield/internal/protocol"
)

// ProposalKind discriminates the governance action a vote decides.
type ProposalKind uint8

const (
	ProposalKindLottery ProposalKind = iota
	ProposalKindClaimApproval
	ProposalKindGovernanceChange
)

func (k ProposalKind) String() string {
	switch k {
	case ProposalKindLottery:
		return "Lottery"
	case ProposalKindClaimApproval:
		return "ClaimApproval"
	case ProposalKindGovernanceChange:
		return "GovernanceChange"
	default:
		return "Unknown"
	}
}

// ParamField names a governance-tunable scalar.
type ParamField uint8

const (
	FieldPoolPercents ParamField = iota
	FieldMinCoverage
	FieldMinStake
	FieldMinVoteStake
	FieldMinLotteryPrize
	FieldMinLotteryPremium
)

func (f ParamField) String() string {
	switch f {
	case FieldPoolPercents:
		return "PoolPercents"
	case FieldMinCoverage:
		return "MinCoverage"
	case FieldMinStake:
		return "MinStake"
	case FieldMinVoteStake:
		return "MinVoteStake"
	case FieldMinLotteryPrize:
		return "MinLotteryPrize"
	case FieldMinLotteryPremium:
		return "MinLotteryPremium"
	default:
		return "Unknown"
	}
}

// ParamChange is the payload of a GovernanceChange proposal. For
// FieldPoolPercents the quadruple is used; otherwise Value carries the
// new scalar.
type ParamChange struct {
	Field ParamField
	Value uint64
	Pcts  protocol.PoolPercents
}

// LotteryWinner is one pre-drawn tier winner with its earmarked prize.
type LotteryWinner struct {
	Address string
	Prize   uint64
}

// VoteProposal is a time-boxed governance item. State machine:
// Open -> (votes accrue) -> Executed | Rejected. Terminal states are
// never left; a second execution attempt fails.
type VoteProposal struct {
	VoteID   uint64
	Proposer string
	Kind     ProposalKind

	// ClaimApproval
	ClaimID     uint64
	Beneficiary string
	Amount      uint64

	// Lottery: winners are drawn and the prize pool earmarked at
	// proposal time, before the vote resolves.
	Winners  []LotteryWinner
	Earmark  uint64

	// GovernanceChange
	Change ParamChange

	YesVotes  uint64
	NoVotes   uint64
	StartTime time.Time
	EndTime   time.Time
	IsActive  bool
	Approved  bool

	voters map[string]bool
}

// HasVoted reports whether the identity already voted.
func (v *VoteProposal) HasVoted(voter string) bool {
	return v.voters[voter]
}

// RecordVote tallies a stake-weighted vote and marks the voter.
func (v *VoteProposal) RecordVote(voter string, approve bool, weight uint64) {
	if approve {
		v.YesVotes += weight
	} else {
		v.NoVotes += weight
	}
	v.voters[voter] = true
}

// ProposalBook tracks proposals by id.
type ProposalBook struct {
	proposals map[uint64]*VoteProposal
	nextID    uint64
}

func NewProposalBook() *ProposalBook {
	return &ProposalBook{
		proposals: make(map[uint64]*VoteProposal),
		nextID:    1,
	}
}

// Create assigns the next vote id and opens the proposal.
func (b *ProposalBook) Create(proposer string, kind ProposalKind, start, end time.Time) *VoteProposal {
	proposal := &VoteProposal{
		VoteID:    b.nextID,
		Proposer:  proposer,
		Kind:      kind,
		StartTime: start,
		EndTime:   end,
		IsActive:  true,
		voters:    make(map[string]bool),
	}
	b.proposals[proposal.VoteID] = proposal
	b.nextID++
	return proposal
}

// Get returns a proposal by id.
func (b *ProposalBook) Get(voteID uint64) (*VoteProposal, error) {
	proposal, ok := b.proposals[voteID]
	if !ok {
		return nil, protocol.ErrVoteNotFound
	}
	return proposal, nil
}

// All returns every proposal keyed by id.
func (b *ProposalBook) All() map[uint64]*VoteProposal {
	return b.proposals
}
