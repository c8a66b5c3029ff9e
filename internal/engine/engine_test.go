package engine_test

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"RugShield/internal/engine"
	"RugShield/internal/ledger"
	"RugShield/internal/oracle"
	"RugShield/internal/protocol"
	"RugShield/internal/state"
)

var testEpoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// fakeClock is the single time source for a test engine. Tests move
// domain time forward explicitly; nothing in the engine reads the wall
// clock for domain decisions.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.now = c.now.Add(d)
}

// clockPriceOracle always returns a reading published at the fake
// clock's current time, so advancing time never makes the price stale.
type clockPriceOracle struct {
	clock *fakeClock
	value uint64
}

func (o *clockPriceOracle) Price() (oracle.Price, error) {
	return oracle.FreshPrice(o.value, -6, o.clock.now), nil
}

type fixture struct {
	t      *testing.T
	clock  *fakeClock
	vault  *ledger.MemoryLedger
	proto  *protocol.Protocol
	price  *clockPriceOracle
	risk   *oracle.FixedRiskOracle
	rug    *oracle.FixedRugStatusOracle
	random *oracle.HashRandomnessOracle
	eng    *engine.Engine
}

func defaultParams() engine.Params {
	return engine.Params{
		MinCoverage:       1_000,
		MaxCoverageDays:   90,
		MinStake:          100,
		MinVoteStake:      100,
		MinLotteryPrize:   1_000,
		MinLotteryPremium: 0,
		VotingPeriod:      72 * time.Hour,
		ClaimInterval:     24 * time.Hour,
		ProposalCooldown:  168 * time.Hour,
		StakingLockup:     7 * 24 * time.Hour,
		ClaimMode:         "auto",
		RewardVariant:     "simple",
		TokenDecimals:     6,
		PriceExpo:         -6,
	}
}

func newFixture(t *testing.T, mods ...func(*engine.Options)) *fixture {
	t.Helper()

	clock := &fakeClock{now: testEpoch}
	vault := ledger.NewMemoryLedger()

	proto, err := protocol.New("authority", "RUGSHIELD", "USDC", protocol.PoolPercents{
		Insurance: 40, Staking: 30, Lottery: 20, Buyback: 10,
	})
	if err != nil {
		t.Fatalf("new protocol: %v", err)
	}
	proto.TotalSupply = 1_000_000_000

	reserve := ledger.NewReserveHolder(engine.MigrationReserve, "RUGSHIELD")
	if err := vault.Mint(reserve, 1_000_000); err != nil {
		t.Fatalf("seed reserve: %v", err)
	}

	migration := state.NewMigration(
		"LEGACY", "RUGSHIELD", 1, 110,
		testEpoch,
		testEpoch.Add(90*24*time.Hour),
		testEpoch.Add(30*24*time.Hour),
	)

	f := &fixture{
		t:      t,
		clock:  clock,
		vault:  vault,
		proto:  proto,
		price:  &clockPriceOracle{clock: clock, value: 1_000_000},
		risk:   &oracle.FixedRiskOracle{Default: oracle.RiskMetrics{Score: 50}},
		rug:    &oracle.FixedRugStatusOracle{Rugged: map[string]bool{}},
		random: &oracle.HashRandomnessOracle{Seed: 7},
	}

	opts := engine.Options{
		Protocol:     proto,
		Ledger:       vault,
		Migration:    migration,
		Params:       defaultParams(),
		Clock:        clock.Now,
		PriceOracle:  f.price,
		RiskOracle:   f.risk,
		RugOracle:    f.rug,
		RandomOracle: f.random,
		Logger:       zerolog.Nop(),
	}
	for _, mod := range mods {
		mod(&opts)
	}

	f.eng, err = engine.New(opts)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return f
}

func (f *fixture) fund(user string, amount uint64) {
	f.t.Helper()
	if err := f.vault.Mint(ledger.NewUserHolder(user, "RUGSHIELD"), amount); err != nil {
		f.t.Fatalf("fund %s: %v", user, err)
	}
}

func (f *fixture) balance(user string) uint64 {
	return f.vault.Balance(ledger.NewUserHolder(user, "RUGSHIELD"))
}

// buyPolicy opens the standard policy used across tests: coverage
// 100_000 for 30 days at risk score 50 and price 1.0, which prices the
// premium at exactly 12_000.
func (f *fixture) buyPolicy(owner string) *state.InsurancePolicy {
	f.t.Helper()
	f.fund(owner, 1_000_000)
	policy, err := f.eng.BuyInsurance(owner, "MEMECOIN", 100_000, 30)
	if err != nil {
		f.t.Fatalf("buy insurance: %v", err)
	}
	return policy
}

func (f *fixture) stake(user string, amount uint64) {
	f.t.Helper()
	f.fund(user, amount)
	if _, err := f.eng.Stake(user, amount); err != nil {
		f.t.Fatalf("stake %s: %v", user, err)
	}
}

func (f *fixture) pools() (insurance, staking, lottery, buyback uint64) {
	return f.proto.InsurancePool, f.proto.StakingPool, f.proto.LotteryPool, f.proto.BuybackReserve
}

// --- Insurance ---

func TestBuyInsurancePricesAndSplitsPremium(t *testing.T) {
	f := newFixture(t)
	policy := f.buyPolicy("alice")

	// 100_000 * 10% base rate * 1.2 duration multiplier at price 1.0.
	if policy.PremiumPaid != 12_000 {
		t.Errorf("premium: got %d, want 12000", policy.PremiumPaid)
	}
	if policy.PolicyID != 1 || !policy.IsActive || policy.HasClaimed {
		t.Errorf("policy state: %+v", policy)
	}
	if !policy.EndTime.Equal(testEpoch.Add(30 * 24 * time.Hour)) {
		t.Errorf("end time: got %v", policy.EndTime)
	}

	ins, stk, lot, buy := f.pools()
	if ins != 4_800 || stk != 3_600 || lot != 2_400 || buy != 1_200 {
		t.Errorf("pools: %d/%d/%d/%d, want 4800/3600/2400/1200", ins, stk, lot, buy)
	}
	if got := f.balance("alice"); got != 1_000_000-12_000 {
		t.Errorf("buyer balance: got %d", got)
	}
	if f.proto.TotalPolicies != 1 || f.proto.TotalPremiums != 12_000 {
		t.Errorf("counters: policies=%d premiums=%d", f.proto.TotalPolicies, f.proto.TotalPremiums)
	}
}

func TestBuyInsuranceValidation(t *testing.T) {
	f := newFixture(t)
	f.fund("alice", 1_000_000)

	if _, err := f.eng.BuyInsurance("alice", "MEMECOIN", 0, 30); !errors.Is(err, protocol.ErrInvalidAmount) {
		t.Errorf("zero coverage: got %v", err)
	}
	if _, err := f.eng.BuyInsurance("alice", "MEMECOIN", 999, 30); !errors.Is(err, protocol.ErrCoverageTooSmall) {
		t.Errorf("under minimum: got %v", err)
	}
	if _, err := f.eng.BuyInsurance("alice", "MEMECOIN", 100_000, 0); !errors.Is(err, protocol.ErrInvalidDuration) {
		t.Errorf("zero days: got %v", err)
	}
	if _, err := f.eng.BuyInsurance("alice", "MEMECOIN", 100_000, 91); !errors.Is(err, protocol.ErrInvalidDuration) {
		t.Errorf("too many days: got %v", err)
	}
}

func TestBuyInsuranceRiskScoreCutoff(t *testing.T) {
	f := newFixture(t)
	f.risk.Metrics = map[string]oracle.RiskMetrics{
		"RISKY": {Score: 89},
		"SCAM":  {Score: 90},
	}
	f.fund("alice", 1_000_000)

	// 89 is the highest insurable score and pays the top base rate.
	policy, err := f.eng.BuyInsurance("alice", "RISKY", 100_000, 30)
	if err != nil {
		t.Fatalf("score 89 rejected: %v", err)
	}
	if policy.PremiumPaid != 24_000 {
		t.Errorf("premium at score 89: got %d, want 24000", policy.PremiumPaid)
	}

	if _, err := f.eng.BuyInsurance("alice", "SCAM", 100_000, 30); !errors.Is(err, protocol.ErrRiskTooHigh) {
		t.Errorf("score 90: got %v, want ErrRiskTooHigh", err)
	}
}

func TestBuyInsuranceRejectsStalePrice(t *testing.T) {
	stale := &oracle.FixedPriceOracle{
		Reading: oracle.FreshPrice(1_000_000, -6, testEpoch.Add(-2*time.Minute)),
	}
	f := newFixture(t, func(o *engine.Options) {
		o.PriceOracle = stale
	})
	f.fund("alice", 1_000_000)

	if _, err := f.eng.BuyInsurance("alice", "MEMECOIN", 100_000, 30); !errors.Is(err, oracle.ErrStalePrice) {
		t.Errorf("got %v, want ErrStalePrice", err)
	}
	ins, stk, lot, buy := f.pools()
	if ins+stk+lot+buy != 0 {
		t.Error("rejected purchase credited pools")
	}
}

func TestBuyInsuranceFailedTransferLeavesNoState(t *testing.T) {
	f := newFixture(t)
	f.fund("alice", 100) // cannot afford the 12_000 premium

	if _, err := f.eng.BuyInsurance("alice", "MEMECOIN", 100_000, 30); !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("got %v, want ErrInsufficientFunds", err)
	}
	ins, stk, lot, buy := f.pools()
	if ins+stk+lot+buy != 0 {
		t.Error("failed purchase left pool credits behind")
	}
	if f.proto.TotalPolicies != 0 {
		t.Error("failed purchase counted a policy")
	}
	if got := f.balance("alice"); got != 100 {
		t.Errorf("buyer balance mutated: got %d", got)
	}
}

func TestCancelInsuranceFirstDayFullRefund(t *testing.T) {
	f := newFixture(t)
	policy := f.buyPolicy("alice")

	refund, err := f.eng.CancelInsurance("alice", policy.PolicyID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if refund != 12_000 {
		t.Errorf("refund: got %d, want full 12000", refund)
	}

	// The full-premium reversal drains exactly what the purchase credited.
	ins, stk, lot, buy := f.pools()
	if ins+stk+lot+buy != 0 {
		t.Errorf("pools not drained: %d/%d/%d/%d", ins, stk, lot, buy)
	}
	if got := f.balance("alice"); got != 1_000_000 {
		t.Errorf("buyer balance: got %d, want 1_000_000 restored", got)
	}

	got, err := f.eng.Policy(policy.PolicyID)
	if err != nil {
		t.Fatalf("policy view: %v", err)
	}
	if got.IsActive {
		t.Error("canceled policy still active")
	}
}

func TestCancelInsuranceProRataRefund(t *testing.T) {
	f := newFixture(t)
	policy := f.buyPolicy("alice")
	f.clock.advance(10 * 24 * time.Hour)

	refund, err := f.eng.CancelInsurance("alice", policy.PolicyID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	// 20 of 30 days remain: floor(20*100/30) = 66% of 12_000.
	if refund != 7_920 {
		t.Errorf("refund: got %d, want 7920", refund)
	}
	if f.proto.InsurancePool != 4_800-3_168 {
		t.Errorf("insurance pool: got %d, want 1632", f.proto.InsurancePool)
	}
	if got := f.balance("alice"); got != 1_000_000-12_000+7_920 {
		t.Errorf("buyer balance: got %d", got)
	}
}

func TestCancelInsuranceExpiredPolicyZeroRefund(t *testing.T) {
	f := newFixture(t)
	policy := f.buyPolicy("alice")
	f.clock.advance(31 * 24 * time.Hour)

	refund, err := f.eng.CancelInsurance("alice", policy.PolicyID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if refund != 0 {
		t.Errorf("refund: got %d, want 0", refund)
	}
	if f.proto.InsurancePool != 4_800 {
		t.Error("zero refund touched the pools")
	}
}

func TestCancelInsuranceGuards(t *testing.T) {
	f := newFixture(t)
	policy := f.buyPolicy("alice")

	if _, err := f.eng.CancelInsurance("mallory", policy.PolicyID); !errors.Is(err, protocol.ErrNotPolicyOwner) {
		t.Errorf("wrong owner: got %v", err)
	}
	if _, err := f.eng.CancelInsurance("alice", 99); !errors.Is(err, protocol.ErrPolicyNotFound) {
		t.Errorf("missing policy: got %v", err)
	}

	if _, err := f.eng.CancelInsurance("alice", policy.PolicyID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := f.eng.CancelInsurance("alice", policy.PolicyID); !errors.Is(err, protocol.ErrPolicyInactive) {
		t.Errorf("second cancel: got %v", err)
	}
}

func TestCancelInsuranceInsufficientInsuranceShare(t *testing.T) {
	f := newFixture(t)
	alice := f.buyPolicy("alice")
	bob := f.buyPolicy("bob")

	// A paid claim drains the insurance pool below the 40% share of a
	// full refund: 9600 - 5000 = 4600 < 4800.
	f.rug.Rugged["MEMECOIN"] = true
	claim, err := f.eng.FileClaim("alice", alice.PolicyID, 5_000, "")
	if err != nil {
		t.Fatalf("file claim: %v", err)
	}
	if _, err := f.eng.ProcessClaim(claim.ClaimID); err != nil {
		t.Fatalf("process claim: %v", err)
	}

	if _, err := f.eng.CancelInsurance("bob", bob.PolicyID); !errors.Is(err, protocol.ErrInsufficientPool) {
		t.Errorf("cancel with drained insurance pool: got %v", err)
	}

	// The rejected cancel has no partial effect.
	got, _ := f.eng.Policy(bob.PolicyID)
	if !got.IsActive {
		t.Error("rejected cancel deactivated the policy")
	}
	if bal := f.balance("bob"); bal != 1_000_000-12_000 {
		t.Errorf("bob balance: got %d, want 988000", bal)
	}
	ins, stk, lot, buy := f.pools()
	if ins != 4_600 || stk != 7_200 || lot != 4_800 || buy != 2_400 {
		t.Errorf("pools changed: %d/%d/%d/%d", ins, stk, lot, buy)
	}
}

// --- Claims ---

func TestFileClaimAutoVerify(t *testing.T) {
	f := newFixture(t)
	policy := f.buyPolicy("alice")
	f.rug.Rugged["MEMECOIN"] = true

	claim, err := f.eng.FileClaim("alice", policy.PolicyID, 1_000, "liquidity pulled")
	if err != nil {
		t.Fatalf("file claim: %v", err)
	}
	if claim.Status != state.ClaimStatusAutoApproved {
		t.Errorf("status: got %s, want AutoApproved", claim.Status)
	}
	if claim.VoteID != 0 {
		t.Errorf("auto claim linked to vote %d", claim.VoteID)
	}

	got, _ := f.eng.Policy(policy.PolicyID)
	if !got.HasClaimed {
		t.Error("policy not marked claimed at filing")
	}
}

func TestFileClaimGuards(t *testing.T) {
	f := newFixture(t)
	policy := f.buyPolicy("alice")

	// Not rugged yet.
	if _, err := f.eng.FileClaim("alice", policy.PolicyID, 1_000, ""); !errors.Is(err, protocol.ErrNotRugged) {
		t.Errorf("not rugged: got %v", err)
	}

	f.rug.Rugged["MEMECOIN"] = true
	if _, err := f.eng.FileClaim("mallory", policy.PolicyID, 1_000, ""); !errors.Is(err, protocol.ErrNotPolicyOwner) {
		t.Errorf("wrong owner: got %v", err)
	}
	if _, err := f.eng.FileClaim("alice", policy.PolicyID, 0, ""); !errors.Is(err, protocol.ErrInvalidAmount) {
		t.Errorf("zero amount: got %v", err)
	}
	if _, err := f.eng.FileClaim("alice", policy.PolicyID, policy.Coverage+1, ""); !errors.Is(err, protocol.ErrInvalidAmount) {
		t.Errorf("over coverage: got %v", err)
	}
}

func TestFileClaimExpiryCheckedBeforeOracle(t *testing.T) {
	f := newFixture(t)
	policy := f.buyPolicy("alice")
	f.clock.advance(31 * 24 * time.Hour)

	// Token never rugged: an expired policy must still fail on expiry,
	// not on rug status.
	if _, err := f.eng.FileClaim("alice", policy.PolicyID, 1_000, ""); !errors.Is(err, protocol.ErrPolicyExpired) {
		t.Errorf("got %v, want ErrPolicyExpired", err)
	}
}

func TestProcessClaimFullPayout(t *testing.T) {
	f := newFixture(t)
	policy := f.buyPolicy("alice")
	f.rug.Rugged["MEMECOIN"] = true
	claim, err := f.eng.FileClaim("alice", policy.PolicyID, 1_000, "")
	if err != nil {
		t.Fatalf("file claim: %v", err)
	}

	payout, err := f.eng.ProcessClaim(claim.ClaimID)
	if err != nil {
		t.Fatalf("process claim: %v", err)
	}
	if payout != 1_000 {
		t.Errorf("payout: got %d, want 1000", payout)
	}
	if f.proto.InsurancePool != 3_800 {
		t.Errorf("insurance pool: got %d, want 3800", f.proto.InsurancePool)
	}

	got, _ := f.eng.Claim(claim.ClaimID)
	if got.Status != state.ClaimStatusPaid {
		t.Errorf("status: got %s, want Paid", got.Status)
	}
	if _, err := f.eng.ProcessClaim(claim.ClaimID); !errors.Is(err, protocol.ErrClaimNotApproved) {
		t.Errorf("double process: got %v", err)
	}
}

func TestProcessClaimPartialPayout(t *testing.T) {
	f := newFixture(t)
	policy := f.buyPolicy("alice")
	f.rug.Rugged["MEMECOIN"] = true
	claim, err := f.eng.FileClaim("alice", policy.PolicyID, 50_000, "")
	if err != nil {
		t.Fatalf("file claim: %v", err)
	}

	// Pool holds 4_800 against a 50_000 claim: 80% of the pool pays out.
	payout, err := f.eng.ProcessClaim(claim.ClaimID)
	if err != nil {
		t.Fatalf("process claim: %v", err)
	}
	if payout != 3_840 {
		t.Errorf("payout: got %d, want 3840", payout)
	}
	if f.proto.InsurancePool != 960 {
		t.Errorf("insurance pool: got %d, want 960", f.proto.InsurancePool)
	}
}

func TestClaimGovernanceModeEndToEnd(t *testing.T) {
	f := newFixture(t, func(o *engine.Options) {
		o.Params.ClaimMode = "governance"
	})
	policy := f.buyPolicy("alice")
	f.rug.Rugged["MEMECOIN"] = true
	f.stake("vera", 1_000)

	claim, err := f.eng.FileClaim("alice", policy.PolicyID, 1_000, "liquidity pulled")
	if err != nil {
		t.Fatalf("file claim: %v", err)
	}
	if claim.Status != state.ClaimStatusPending {
		t.Fatalf("status: got %s, want Pending", claim.Status)
	}
	if claim.VoteID == 0 {
		t.Fatal("governance claim has no linked proposal")
	}

	if err := f.eng.CastVote("vera", claim.VoteID, true); err != nil {
		t.Fatalf("cast vote: %v", err)
	}
	f.clock.advance(72*time.Hour + time.Second)
	if err := f.eng.ExecuteProposal("anyone", claim.VoteID); err != nil {
		t.Fatalf("execute: %v", err)
	}

	got, _ := f.eng.Claim(claim.ClaimID)
	if got.Status != state.ClaimStatusPaid {
		t.Errorf("status: got %s, want Paid", got.Status)
	}
	if f.proto.InsurancePool != 3_800 {
		t.Errorf("insurance pool: got %d, want 3800", f.proto.InsurancePool)
	}
}

func TestClaimGovernanceModeRejection(t *testing.T) {
	f := newFixture(t, func(o *engine.Options) {
		o.Params.ClaimMode = "governance"
	})
	policy := f.buyPolicy("alice")
	f.rug.Rugged["MEMECOIN"] = true
	f.stake("vera", 1_000)

	claim, err := f.eng.FileClaim("alice", policy.PolicyID, 1_000, "")
	if err != nil {
		t.Fatalf("file claim: %v", err)
	}
	if err := f.eng.CastVote("vera", claim.VoteID, false); err != nil {
		t.Fatalf("cast vote: %v", err)
	}
	f.clock.advance(72*time.Hour + time.Second)
	if err := f.eng.ExecuteProposal("anyone", claim.VoteID); err != nil {
		t.Fatalf("execute: %v", err)
	}

	got, _ := f.eng.Claim(claim.ClaimID)
	if got.Status != state.ClaimStatusRejected {
		t.Errorf("status: got %s, want Rejected", got.Status)
	}
	if f.proto.InsurancePool != 4_800 {
		t.Error("rejected claim moved funds")
	}
}

// --- Staking ---

func TestStakeAndClaimRewards(t *testing.T) {
	f := newFixture(t)
	f.buyPolicy("alice") // staking pool now 3_600
	f.stake("stan", 1_000)

	if f.proto.TotalStaked != 1_000 {
		t.Errorf("total staked: got %d", f.proto.TotalStaked)
	}
	if got := f.vault.Balance(ledger.NewVaultHolder(engine.StakingVault, "RUGSHIELD")); got != 1_000 {
		t.Errorf("staking vault: got %d, want 1000", got)
	}

	// Claim interval not yet elapsed.
	if _, err := f.eng.ClaimRewards("stan"); !errors.Is(err, protocol.ErrClaimTooSoon) {
		t.Fatalf("got %v, want ErrClaimTooSoon", err)
	}

	// A full day elapsed: the simple variant pays the entire pro-rata
	// share, and a sole staker owns the whole pool.
	f.clock.advance(24 * time.Hour)
	reward, err := f.eng.ClaimRewards("stan")
	if err != nil {
		t.Fatalf("claim rewards: %v", err)
	}
	if reward != 3_600 {
		t.Errorf("reward: got %d, want 3600", reward)
	}
	if f.proto.StakingPool != 0 {
		t.Errorf("staking pool: got %d, want 0", f.proto.StakingPool)
	}
	if f.proto.TotalStaked != 1_000 {
		t.Error("reward claim mutated total staked")
	}

	account, err := f.eng.StakingAccount("stan")
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if account.RewardsPaid != 3_600 {
		t.Errorf("rewards paid: got %d", account.RewardsPaid)
	}

	// Pool drained: an immediate follow-up claim yields nothing.
	f.clock.advance(24 * time.Hour)
	if _, err := f.eng.ClaimRewards("stan"); !errors.Is(err, protocol.ErrZeroReward) {
		t.Errorf("empty pool: got %v, want ErrZeroReward", err)
	}
}

func TestStakeBelowMinimum(t *testing.T) {
	f := newFixture(t)
	f.fund("stan", 1_000)
	if _, err := f.eng.Stake("stan", 99); !errors.Is(err, protocol.ErrStakeTooSmall) {
		t.Errorf("got %v, want ErrStakeTooSmall", err)
	}
}

func TestClaimRewardsProRataSplit(t *testing.T) {
	f := newFixture(t)
	f.buyPolicy("alice") // staking pool 3_600
	f.stake("stan", 3_000)
	f.stake("sue", 1_000)
	f.clock.advance(24 * time.Hour)

	reward, err := f.eng.ClaimRewards("stan")
	if err != nil {
		t.Fatalf("claim rewards: %v", err)
	}
	if reward != 2_700 {
		t.Errorf("stan reward: got %d, want 2700 (3/4 of pool)", reward)
	}

	// Sue's share is computed against the reduced pool.
	reward, err = f.eng.ClaimRewards("sue")
	if err != nil {
		t.Fatalf("claim rewards: %v", err)
	}
	if reward != 225 {
		t.Errorf("sue reward: got %d, want 225 (1/4 of remaining 900)", reward)
	}
}

func TestClaimRewardsGovernanceVariantLockup(t *testing.T) {
	f := newFixture(t, func(o *engine.Options) {
		o.Params.RewardVariant = "governance"
	})
	f.buyPolicy("alice")
	f.stake("stan", 1_000)

	// Past the claim interval but inside the lockup.
	f.clock.advance(24 * time.Hour)
	if _, err := f.eng.ClaimRewards("stan"); !errors.Is(err, protocol.ErrStakeLocked) {
		t.Fatalf("got %v, want ErrStakeLocked", err)
	}

	// Past the lockup: the governance variant pays the direct share with
	// no elapsed-time scaling.
	f.clock.advance(6 * 24 * time.Hour)
	reward, err := f.eng.ClaimRewards("stan")
	if err != nil {
		t.Fatalf("claim rewards: %v", err)
	}
	if reward != 3_600 {
		t.Errorf("reward: got %d, want 3600", reward)
	}
}

// --- Lottery ---

func TestProposeLotteryDrawsAndEarmarks(t *testing.T) {
	f := newFixture(t)
	f.buyPolicy("alice") // lottery pool 2_400, alice eligible
	f.stake("stan", 1_000)

	vote, err := f.eng.ProposeLottery("stan")
	if err != nil {
		t.Fatalf("propose lottery: %v", err)
	}
	if vote.Kind != state.ProposalKindLottery {
		t.Errorf("kind: got %s", vote.Kind)
	}
	if vote.Earmark != 2_400 {
		t.Errorf("earmark: got %d, want 2400", vote.Earmark)
	}
	if f.proto.LotteryPool != 0 {
		t.Errorf("lottery pool after earmark: got %d, want 0", f.proto.LotteryPool)
	}

	// 50/25/25 with tier 3 absorbing the remainder.
	if len(vote.Winners) != 3 {
		t.Fatalf("winners: got %d, want 3", len(vote.Winners))
	}
	if vote.Winners[0].Prize != 1_200 || vote.Winners[1].Prize != 600 || vote.Winners[2].Prize != 600 {
		t.Errorf("prizes: %d/%d/%d, want 1200/600/600",
			vote.Winners[0].Prize, vote.Winners[1].Prize, vote.Winners[2].Prize)
	}
	for i, w := range vote.Winners {
		if w.Address != "alice" {
			t.Errorf("winner %d: got %s, want the sole eligible participant", i, w.Address)
		}
	}
}

func TestProposeLotteryGuards(t *testing.T) {
	f := newFixture(t)
	f.buyPolicy("alice")

	// Proposer has no stake.
	if _, err := f.eng.ProposeLottery("stan"); !errors.Is(err, protocol.ErrVoteStakeTooSmall) {
		t.Errorf("unstaked proposer: got %v", err)
	}

	f.stake("stan", 1_000)
	if _, err := f.eng.ProposeLottery("stan"); err != nil {
		t.Fatalf("propose: %v", err)
	}

	// Cooldown blocks the next proposal even though the vote is pending.
	f.clock.advance(72 * time.Hour)
	if _, err := f.eng.ProposeLottery("stan"); !errors.Is(err, protocol.ErrProposalCooldown) {
		t.Errorf("inside cooldown: got %v", err)
	}
}

func TestProposeLotteryPoolTooSmall(t *testing.T) {
	f := newFixture(t)
	f.stake("stan", 1_000)

	// Empty lottery pool.
	if _, err := f.eng.ProposeLottery("stan"); !errors.Is(err, protocol.ErrLotteryTooSmall) {
		t.Errorf("got %v, want ErrLotteryTooSmall", err)
	}
}

func TestProposeLotteryNoEligibleParticipants(t *testing.T) {
	f := newFixture(t)
	f.stake("stan", 1_000)

	// Pool funded directly with no policies behind it.
	if err := f.proto.Credit(protocol.Shares{Lottery: 5_000}); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if _, err := f.eng.ProposeLottery("stan"); !errors.Is(err, protocol.ErrNoEligible) {
		t.Errorf("got %v, want ErrNoEligible", err)
	}
	if f.proto.LotteryPool != 5_000 {
		t.Error("rejected proposal earmarked the pool")
	}
}

func TestProposeLotteryInvalidRandomness(t *testing.T) {
	f := newFixture(t)
	f.random.ForceZero = true
	f.buyPolicy("alice")
	f.stake("stan", 1_000)

	if _, err := f.eng.ProposeLottery("stan"); !errors.Is(err, oracle.ErrInvalidRandomness) {
		t.Errorf("got %v, want ErrInvalidRandomness", err)
	}
	if f.proto.LotteryPool != 2_400 {
		t.Error("failed draw earmarked the pool")
	}
}

func TestExecuteLotteryApprovedPaysWinners(t *testing.T) {
	f := newFixture(t)
	f.buyPolicy("alice")
	f.stake("stan", 1_000)

	vote, err := f.eng.ProposeLottery("stan")
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if err := f.eng.CastVote("stan", vote.VoteID, true); err != nil {
		t.Fatalf("cast vote: %v", err)
	}

	// Too early.
	if err := f.eng.ExecuteProposal("anyone", vote.VoteID); !errors.Is(err, protocol.ErrVoteNotEnded) {
		t.Fatalf("early execute: got %v", err)
	}

	before := f.balance("alice")
	f.clock.advance(72*time.Hour + time.Second)
	if err := f.eng.ExecuteProposal("anyone", vote.VoteID); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got := f.balance("alice"); got != before+2_400 {
		t.Errorf("winner balance: got %d, want +2400", got)
	}

	// Terminal: a second execution fails.
	if err := f.eng.ExecuteProposal("anyone", vote.VoteID); !errors.Is(err, protocol.ErrVoteExecuted) {
		t.Errorf("double execute: got %v", err)
	}
}

func TestExecuteLotteryRejectedReturnsEarmark(t *testing.T) {
	f := newFixture(t)
	f.buyPolicy("alice")
	f.stake("stan", 1_000)

	vote, err := f.eng.ProposeLottery("stan")
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if err := f.eng.CastVote("stan", vote.VoteID, false); err != nil {
		t.Fatalf("cast vote: %v", err)
	}

	before := f.balance("alice")
	f.clock.advance(72*time.Hour + time.Second)
	if err := f.eng.ExecuteProposal("anyone", vote.VoteID); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if f.proto.LotteryPool != 2_400 {
		t.Errorf("lottery pool: got %d, want earmark returned", f.proto.LotteryPool)
	}
	if got := f.balance("alice"); got != before {
		t.Error("rejected lottery paid a winner")
	}
}

// --- Governance ---

func TestCastVoteGuards(t *testing.T) {
	f := newFixture(t)
	f.buyPolicy("alice")
	f.stake("stan", 1_000)

	vote, err := f.eng.ProposeLottery("stan")
	if err != nil {
		t.Fatalf("propose: %v", err)
	}

	// Voter below the stake floor.
	if err := f.eng.CastVote("nobody", vote.VoteID, true); !errors.Is(err, protocol.ErrVoteStakeTooSmall) {
		t.Errorf("unstaked voter: got %v", err)
	}

	if err := f.eng.CastVote("stan", vote.VoteID, true); err != nil {
		t.Fatalf("cast vote: %v", err)
	}
	if err := f.eng.CastVote("stan", vote.VoteID, false); !errors.Is(err, protocol.ErrAlreadyVoted) {
		t.Errorf("double vote: got %v", err)
	}

	f.clock.advance(72*time.Hour + time.Second)
	f.stake("sue", 1_000)
	if err := f.eng.CastVote("sue", vote.VoteID, true); !errors.Is(err, protocol.ErrVoteEnded) {
		t.Errorf("late vote: got %v", err)
	}
}

func TestVoteWeightIsStakeAtCastTime(t *testing.T) {
	f := newFixture(t)
	f.buyPolicy("alice")
	f.stake("stan", 300)
	f.stake("sue", 200)

	vote, err := f.eng.ProposeLottery("stan")
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if err := f.eng.CastVote("stan", vote.VoteID, true); err != nil {
		t.Fatalf("cast vote: %v", err)
	}
	if err := f.eng.CastVote("sue", vote.VoteID, false); err != nil {
		t.Fatalf("cast vote: %v", err)
	}

	got, _ := f.eng.Proposal(vote.VoteID)
	if got.YesVotes != 300 || got.NoVotes != 200 {
		t.Errorf("tallies: yes=%d no=%d, want 300/200", got.YesVotes, got.NoVotes)
	}
}

func TestParameterChangeScalarField(t *testing.T) {
	f := newFixture(t)
	f.stake("stan", 1_000)

	vote, err := f.eng.ProposeParameterChange("stan", state.ParamChange{
		Field: state.FieldMinStake,
		Value: 500,
	})
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if err := f.eng.CastVote("stan", vote.VoteID, true); err != nil {
		t.Fatalf("cast vote: %v", err)
	}
	f.clock.advance(72*time.Hour + time.Second)
	if err := f.eng.ExecuteProposal("anyone", vote.VoteID); err != nil {
		t.Fatalf("execute: %v", err)
	}

	if got := f.eng.Parameters().MinStake; got != 500 {
		t.Errorf("min stake: got %d, want 500", got)
	}
	f.fund("sue", 1_000)
	if _, err := f.eng.Stake("sue", 400); !errors.Is(err, protocol.ErrStakeTooSmall) {
		t.Errorf("stake under new floor: got %v", err)
	}
}

func TestParameterChangePoolPercents(t *testing.T) {
	f := newFixture(t)
	f.stake("stan", 1_000)

	vote, err := f.eng.ProposeParameterChange("stan", state.ParamChange{
		Field: state.FieldPoolPercents,
		Pcts:  protocol.PoolPercents{Insurance: 25, Staking: 25, Lottery: 25, Buyback: 25},
	})
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if err := f.eng.CastVote("stan", vote.VoteID, true); err != nil {
		t.Fatalf("cast vote: %v", err)
	}
	f.clock.advance(72*time.Hour + time.Second)
	if err := f.eng.ExecuteProposal("anyone", vote.VoteID); err != nil {
		t.Fatalf("execute: %v", err)
	}

	want := protocol.PoolPercents{Insurance: 25, Staking: 25, Lottery: 25, Buyback: 25}
	if f.proto.Percents != want {
		t.Errorf("percents: got %+v", f.proto.Percents)
	}
}

func TestParameterChangeRejectsBadPercentsAtProposal(t *testing.T) {
	f := newFixture(t)
	f.stake("stan", 1_000)

	_, err := f.eng.ProposeParameterChange("stan", state.ParamChange{
		Field: state.FieldPoolPercents,
		Pcts:  protocol.PoolPercents{Insurance: 50, Staking: 50, Lottery: 50, Buyback: 50},
	})
	if !errors.Is(err, protocol.ErrInvalidPercentages) {
		t.Errorf("got %v, want ErrInvalidPercentages", err)
	}
}

func TestParameterChangeRejectedVoteHasNoEffect(t *testing.T) {
	f := newFixture(t)
	f.stake("stan", 1_000)

	vote, err := f.eng.ProposeParameterChange("stan", state.ParamChange{
		Field: state.FieldMinCoverage,
		Value: 5_000,
	})
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	// No votes cast: zero yes does not beat zero no.
	f.clock.advance(72*time.Hour + time.Second)
	if err := f.eng.ExecuteProposal("anyone", vote.VoteID); err != nil {
		t.Fatalf("execute: %v", err)
	}

	if got := f.eng.Parameters().MinCoverage; got != 1_000 {
		t.Errorf("min coverage: got %d, want unchanged 1000", got)
	}
	got, _ := f.eng.Proposal(vote.VoteID)
	if got.IsActive || got.Approved {
		t.Errorf("proposal state: active=%v approved=%v", got.IsActive, got.Approved)
	}
}

// --- Migration ---

func TestMigrateBonusWindow(t *testing.T) {
	f := newFixture(t)
	if err := f.vault.Mint(ledger.NewUserHolder("mia", "LEGACY"), 10_000); err != nil {
		t.Fatalf("fund legacy: %v", err)
	}

	newAmount, err := f.eng.Migrate("mia", 1_000)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if newAmount != 1_100 {
		t.Errorf("bonus payout: got %d, want 1100", newAmount)
	}
	if got := f.balance("mia"); got != 1_100 {
		t.Errorf("recipient balance: got %d", got)
	}
	if got := f.vault.Balance(ledger.NewQuarantineHolder("LEGACY")); got != 1_000 {
		t.Errorf("quarantine: got %d, want 1000", got)
	}

	// After the bonus deadline the plain ratio applies.
	f.clock.advance(31 * 24 * time.Hour)
	newAmount, err = f.eng.Migrate("mia", 1_000)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if newAmount != 1_000 {
		t.Errorf("ratio payout: got %d, want 1000", newAmount)
	}

	view, ok := f.eng.MigrationState()
	if !ok {
		t.Fatal("no migration state")
	}
	if view.TotalMigrated != 2_000 {
		t.Errorf("total migrated: got %d, want 2000 source units", view.TotalMigrated)
	}
}

func TestMigrateWindowClosed(t *testing.T) {
	f := newFixture(t)
	if err := f.vault.Mint(ledger.NewUserHolder("mia", "LEGACY"), 10_000); err != nil {
		t.Fatalf("fund legacy: %v", err)
	}

	f.clock.advance(91 * 24 * time.Hour)
	if _, err := f.eng.Migrate("mia", 1_000); !errors.Is(err, protocol.ErrMigrationEnded) {
		t.Errorf("past end: got %v, want ErrMigrationEnded", err)
	}
}

func TestMigrateGuards(t *testing.T) {
	f := newFixture(t)

	if _, err := f.eng.Migrate("mia", 0); !errors.Is(err, protocol.ErrInvalidAmount) {
		t.Errorf("zero amount: got %v", err)
	}
	// No legacy balance.
	if _, err := f.eng.Migrate("mia", 1_000); !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Errorf("no legacy balance: got %v", err)
	}
}

func TestMigrateInactive(t *testing.T) {
	f := newFixture(t, func(o *engine.Options) {
		o.Migration = nil
	})
	if _, err := f.eng.Migrate("mia", 1_000); !errors.Is(err, protocol.ErrMigrationInactive) {
		t.Errorf("got %v, want ErrMigrationInactive", err)
	}
}

// --- Buyback ---

func TestExecuteBuyback(t *testing.T) {
	f := newFixture(t)
	f.buyPolicy("alice") // buyback reserve 1_200

	if err := f.eng.ExecuteBuyback("mallory", 100); !errors.Is(err, protocol.ErrNotAuthority) {
		t.Errorf("non-authority: got %v", err)
	}
	if err := f.eng.ExecuteBuyback("authority", 1_201); !errors.Is(err, protocol.ErrInsufficientPool) {
		t.Errorf("over reserve: got %v", err)
	}

	treasuryBefore := f.vault.Balance(ledger.NewVaultHolder(engine.TreasuryVault, "RUGSHIELD"))
	if err := f.eng.ExecuteBuyback("authority", 100); err != nil {
		t.Fatalf("buyback: %v", err)
	}
	if f.proto.BuybackReserve != 1_100 {
		t.Errorf("reserve: got %d, want 1100", f.proto.BuybackReserve)
	}
	if f.proto.TotalSupply != 1_000_000_000-100 {
		t.Errorf("total supply: got %d", f.proto.TotalSupply)
	}
	if got := f.vault.Balance(ledger.NewVaultHolder(engine.TreasuryVault, "RUGSHIELD")); got != treasuryBefore-100 {
		t.Errorf("treasury: got %d, want burned down by 100", got)
	}
}

// --- Analysis ---

func TestAnalyzeToken(t *testing.T) {
	f := newFixture(t)
	f.risk.Metrics = map[string]oracle.RiskMetrics{
		"MEMECOIN": {Score: 72, HolderConcentration: 55, Volatility: 30},
	}

	report, err := f.eng.AnalyzeToken("api", "MEMECOIN")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if report.RiskScore != 72 {
		t.Errorf("score: got %d, want 72", report.RiskScore)
	}
	if report.Level != protocol.RiskLevelHigh {
		t.Errorf("level: got %s, want High", report.Level)
	}
}

func TestUpdatePrice(t *testing.T) {
	f := newFixture(t)
	f.price.value = 2_000_000

	if err := f.eng.UpdatePrice("api"); err != nil {
		t.Fatalf("update price: %v", err)
	}
	if f.proto.ReferencePrice.Value != 2_000_000 {
		t.Errorf("reference price: got %d", f.proto.ReferencePrice.Value)
	}
}
