package protocol

import "errors"

// Validation errors
var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidDuration    = errors.New("coverage duration out of range")
	ErrInvalidPercentages = errors.New("pool percentages must sum to 100")
	ErrInvalidIndex       = errors.New("index out of range")
	ErrCoverageTooSmall   = errors.New("coverage below minimum")
)

// State errors
var (
	ErrPolicyInactive    = errors.New("policy is not active")
	ErrPolicyClaimed     = errors.New("policy already claimed")
	ErrPolicyExpired     = errors.New("policy has expired")
	ErrNotPolicyOwner    = errors.New("caller does not own this policy")
	ErrPolicyNotFound    = errors.New("policy not found")
	ErrClaimNotFound     = errors.New("claim not found")
	ErrClaimNotApproved  = errors.New("claim is not approved for payout")
	ErrVoteNotFound      = errors.New("vote proposal not found")
	ErrVoteNotActive     = errors.New("vote proposal is not active")
	ErrVoteEnded         = errors.New("voting period has ended")
	ErrVoteNotEnded      = errors.New("voting period has not ended")
	ErrVoteExecuted      = errors.New("vote proposal already executed")
	ErrAlreadyVoted      = errors.New("voter already voted on this proposal")
	ErrMigrationInactive = errors.New("migration is not active")
	ErrMigrationEnded    = errors.New("migration window has ended")
	ErrProposalCooldown  = errors.New("proposal cooldown has not elapsed")
	ErrStakeTooSmall     = errors.New("stake below minimum")
	ErrStakeNotFound     = errors.New("no staking account for user")
	ErrClaimTooSoon      = errors.New("minimum claim interval has not elapsed")
	ErrStakeLocked       = errors.New("staking lockup has not elapsed")
	ErrRiskTooHigh       = errors.New("token risk score too high to insure")
	ErrNotRugged         = errors.New("rug event not confirmed for token")
	ErrNoEligible        = errors.New("no eligible lottery participants")
	ErrVoteStakeTooSmall = errors.New("staked balance below voting minimum")
	ErrNotAuthority      = errors.New("caller is not the protocol authority")
)

// Resource errors
var (
	ErrInsufficientPool = errors.New("insufficient pool funds")
	ErrZeroReward       = errors.New("computed reward is zero")
	ErrZeroPayout       = errors.New("computed payout is zero")
	ErrLotteryTooSmall  = errors.New("lottery pool below minimum prize")
)
