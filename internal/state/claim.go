package state

import (
	"time"

	"RugShield/internal/protocol"
)

// ClaimStatus is the claim lifecycle discriminator.
type ClaimStatus uint8

const (
	ClaimStatusPending ClaimStatus = iota
	ClaimStatusAutoApproved
	ClaimStatusRejected
	ClaimStatusPaid
)

func (s ClaimStatus) String() string {
	switch s {
	case ClaimStatusPending:
		return "Pending"
	case ClaimStatusAutoApproved:
		return "AutoApproved"
	case ClaimStatusRejected:
		return "Rejected"
	case ClaimStatusPaid:
		return "Paid"
	default:
		return "Unknown"
	}
}

// Claim is one filed insurance claim. In AutoVerify mode it is approved
// at filing time; in GovernanceVote mode it stays Pending until the
// linked proposal passes.
type Claim struct {
	ClaimID     uint64
	PolicyID    uint64
	Claimant    string
	RuggedToken string
	Amount      uint64
	Evidence    string
	Status      ClaimStatus
	VoteID      uint64 // linked proposal in GovernanceVote mode, 0 otherwise
	CreatedAt   time.Time
}

// ClaimBook tracks claims by id.
type ClaimBook struct {
	claims map[uint64]*Claim
	nextID uint64
}

func NewClaimBook() *ClaimBook {
	return &ClaimBook{
		claims: make(map[uint64]*Claim),
		nextID: 1,
	}
}

// Create assigns the next claim id and records the claim.
func (b *ClaimBook) Create(policyID uint64, claimant, token string, amount uint64, evidence string, status ClaimStatus, now time.Time) *Claim {
	claim := &Claim{
		ClaimID:     b.nextID,
		PolicyID:    policyID,
		Claimant:    claimant,
		RuggedToken: token,
		Amount:      amount,
		Evidence:    evidence,
		Status:      status,
		CreatedAt:   now,
	}
	b.claims[claim.ClaimID] = claim
	b.nextID++
	return claim
}

// Get returns a claim by id.
func (b *ClaimBook) Get(claimID uint64) (*Claim, error) {
	claim, ok := b.claims[claimID]
	if !ok {
		return nil, protocol.ErrClaimNotFound
	}
	return claim, nil
}

// All returns every claim keyed by id.
func (b *ClaimBook) All() map[uint64]*Claim {
	return b.claims
}
