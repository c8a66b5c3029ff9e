package state

import (
	"sort"
	"time"

	"RugShield/internal/protocol"
)

// InsurancePolicy is a time-boxed coverage contract insuring one token
// against a rug event. Terminal once canceled or claimed.
type InsurancePolicy struct {
	PolicyID     uint64
	Owner        string
	InsuredToken string
	Coverage     uint64
	PremiumPaid  uint64
	StartTime    time.Time
	EndTime      time.Time
	IsActive     bool
	HasClaimed   bool
}

// Expired reports whether the policy's coverage window has passed.
func (p *InsurancePolicy) Expired(now time.Time) bool {
	return now.After(p.EndTime)
}

// PolicyBook tracks policies and per-user cumulative premium totals.
// Premium totals double as the lottery-eligibility weight.
type PolicyBook struct {
	policies      map[uint64]*InsurancePolicy
	premiumTotals map[string]uint64
	nextID        uint64
}

func NewPolicyBook() *PolicyBook {
	return &PolicyBook{
		policies:      make(map[uint64]*InsurancePolicy),
		premiumTotals: make(map[string]uint64),
		nextID:        1,
	}
}

// Create assigns the next monotonic policy id and records the policy.
func (b *PolicyBook) Create(owner, token string, coverage, premium uint64, start, end time.Time) *InsurancePolicy {
	policy := &InsurancePolicy{
		PolicyID:     b.nextID,
		Owner:        owner,
		InsuredToken: token,
		Coverage:     coverage,
		PremiumPaid:  premium,
		StartTime:    start,
		EndTime:      end,
		IsActive:     true,
	}
	b.policies[policy.PolicyID] = policy
	b.nextID++

	b.premiumTotals[owner] += premium
	return policy
}

// Get returns a policy by id.
func (b *PolicyBook) Get(policyID uint64) (*InsurancePolicy, error) {
	policy, ok := b.policies[policyID]
	if !ok {
		return nil, protocol.ErrPolicyNotFound
	}
	return policy, nil
}

// PremiumTotal returns the user's cumulative premium sum.
func (b *PolicyBook) PremiumTotal(owner string) uint64 {
	return b.premiumTotals[owner]
}

// ReducePremiumTotal decrements a user's cumulative premium on
// cancellation, clamping at zero.
func (b *PolicyBook) ReducePremiumTotal(owner string, amount uint64) {
	total := b.premiumTotals[owner]
	if amount > total {
		amount = total
	}
	b.premiumTotals[owner] = total - amount
}

// EligibleParticipants returns users whose cumulative premium meets the
// minimum threshold, sorted by name. Draws index into this slice, so
// the order must be deterministic for a given book state.
func (b *PolicyBook) EligibleParticipants(minPremium uint64) []string {
	eligible := make([]string, 0, len(b.premiumTotals))
	for owner, total := range b.premiumTotals {
		if total > 0 && total >= minPremium {
			eligible = append(eligible, owner)
		}
	}
	sort.Strings(eligible)
	return eligible
}

// All returns every policy, keyed by id.
func (b *PolicyBook) All() map[uint64]*InsurancePolicy {
	return b.policies
}

// Count returns the number of policies ever created.
func (b *PolicyBook) Count() uint64 {
	return b.nextID - 1
}
