package vault

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"defipool/bridge"
	"defipool/core/events"
	"defipool/crypto"
	nativecommon "defipool/native/common"
	"defipool/native/token"
)

func TestDepositSettlementScenario(t *testing.T) {
	env := newTestEnv(t)
	alice, bob := env.user(0xA1), env.user(0xB1)
	env.fund(alice, 40)
	env.fund(bob, 60)
	env.deposit(alice, 40)
	env.deposit(bob, 60)

	next, err := env.engine.DepositAssetsToL1(env.operator)
	if err != nil {
		t.Fatalf("bridge deposits: %v", err)
	}
	if next != 1 {
		t.Fatalf("expected next deposit round 1, got %d", next)
	}
	if bal := env.underlying(env.escrow); bal.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("expected token bridge to hold 100, got %s", bal)
	}

	received := mustInt(t, "80000000000000000000")
	if err := env.engine.HandleDistributeShare(0, received); err != nil {
		t.Fatalf("settle: %v", err)
	}
	if got := env.sharesOf(alice); got.Cmp(mustInt(t, "32000000000000000000")) != 0 {
		t.Fatalf("alice shares: %s", got)
	}
	if got := env.sharesOf(bob); got.Cmp(mustInt(t, "48000000000000000000")) != 0 {
		t.Fatalf("bob shares: %s", got)
	}

	vs := env.state()
	wantAPS := new(big.Int).Div(new(big.Int).Mul(big.NewInt(100), big.NewInt(Precision)), received)
	if vs.AssetsPerShare.Cmp(wantAPS) != 0 || !vs.Priced {
		t.Fatalf("unexpected assets per share %s (want %s)", vs.AssetsPerShare, wantAPS)
	}
	if vs.TotalAssets.Cmp(big.NewInt(100)) != 0 || vs.TotalShares.Cmp(received) != 0 {
		t.Fatalf("unexpected pool totals %s/%s", vs.TotalAssets, vs.TotalShares)
	}
	assets, err := env.engine.AssetsOf(alice)
	if err != nil {
		t.Fatalf("assets of: %v", err)
	}
	// 100 underlying over 80e18 shares scales to 100e9/80e18, which floors
	// to a zero rate, so every holder prices at 0 until a later settlement.
	if wantAPS.Sign() != 0 {
		t.Fatalf("expected the rate to floor to zero, got %s", wantAPS)
	}
	if assets.Sign() != 0 {
		t.Fatalf("assets of alice priced at a zero rate, got %s", assets)
	}
	env.checkShareConservation(alice, bob)
}

func TestSettlementIsRejectedOnReplay(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(0xA1)
	env.fund(alice, 50)
	env.deposit(alice, 50)
	if _, err := env.engine.DepositAssetsToL1(env.operator); err != nil {
		t.Fatalf("bridge: %v", err)
	}
	if err := env.engine.HandleDistributeShare(0, big.NewInt(40)); err != nil {
		t.Fatalf("settle: %v", err)
	}
	env.recorder.Events = nil

	err := env.engine.HandleDistributeShare(0, big.NewInt(40))
	if !errors.Is(err, ErrAlreadySettled) || !errors.Is(err, ErrState) {
		t.Fatalf("expected ErrAlreadySettled, got %v", err)
	}
	if got := env.sharesOf(alice); got.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("replay must not mint again, balance %s", got)
	}
	if len(env.recorder.Events) != 0 {
		t.Fatalf("failed settlement emitted events: %v", env.recorder.Types())
	}
	if err := env.engine.DistributeShare(env.operator, 0, big.NewInt(40)); !errors.Is(err, ErrAlreadySettled) {
		t.Fatalf("manual path must apply the same gate, got %v", err)
	}
	if err := env.engine.HandleDistributeShare(1, big.NewInt(1)); !errors.Is(err, ErrAlreadySettled) {
		t.Fatalf("open round must not settle, got %v", err)
	}
	if err := env.engine.HandleDistributeShare(7, big.NewInt(1)); !errors.Is(err, ErrUnknownRound) {
		t.Fatalf("expected ErrUnknownRound, got %v", err)
	}
}

func TestProRataDustStaysUndistributed(t *testing.T) {
	env := newTestEnv(t)
	users := []byte{0x01, 0x02, 0x03}
	for _, b := range users {
		env.fund(env.user(b), 1)
		env.deposit(env.user(b), 1)
	}
	if _, err := env.engine.DepositAssetsToL1(env.operator); err != nil {
		t.Fatalf("bridge: %v", err)
	}
	if err := env.engine.HandleDistributeShare(0, big.NewInt(10)); err != nil {
		t.Fatalf("settle: %v", err)
	}
	for _, b := range users {
		if got := env.sharesOf(env.user(b)); got.Cmp(big.NewInt(3)) != 0 {
			t.Fatalf("expected floor(10/3)=3 shares, got %s", got)
		}
	}
	round, err := env.engine.Round(RoundDeposit, 0)
	if err != nil {
		t.Fatalf("round: %v", err)
	}
	if round.Status != RoundSettled || round.Dust.Cmp(big.NewInt(1)) != 0 || round.Distributed.Cmp(big.NewInt(9)) != 0 {
		t.Fatalf("unexpected settled round %+v", round)
	}
	supply, _ := env.engine.TotalSupply()
	if supply.Cmp(big.NewInt(9)) != 0 || env.state().TotalShares.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("expected supply 9 against pool shares 10, got %s/%s", supply, env.state().TotalShares)
	}
	env.checkShareConservation(env.user(1), env.user(2), env.user(3))
}

func TestCancelDepositRestoresBalance(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(0xA1)
	env.fund(alice, 100)
	env.deposit(alice, 40)
	if bal := env.underlying(alice); bal.Cmp(big.NewInt(60)) != 0 {
		t.Fatalf("expected 60 after deposit, got %s", bal)
	}
	total, err := env.engine.CancelDeposit(alice)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if total.Sign() != 0 {
		t.Fatalf("expected empty round after cancel, got %s", total)
	}
	if bal := env.underlying(alice); bal.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("expected balance restored to 100, got %s", bal)
	}
	if _, err := env.engine.CancelDeposit(alice); !errors.Is(err, ErrNothingToCancel) {
		t.Fatalf("expected ErrNothingToCancel, got %v", err)
	}
	if _, err := env.engine.DepositAssetsToL1(env.operator); !errors.Is(err, ErrEmptyRound) {
		t.Fatalf("expected ErrEmptyRound, got %v", err)
	}
}

func TestDepositConservation(t *testing.T) {
	env := newTestEnv(t)
	alice, bob := env.user(0xA1), env.user(0xB1)
	env.fund(alice, 100)
	env.fund(bob, 100)

	steps := []func(){
		func() { env.deposit(alice, 10) },
		func() { env.deposit(bob, 25) },
		func() { env.deposit(alice, 5) },
		func() {
			if _, err := env.engine.CancelDeposit(bob); err != nil {
				t.Fatalf("cancel: %v", err)
			}
		},
		func() { env.deposit(bob, 7) },
	}
	for i, step := range steps {
		step()
		round, err := env.engine.Round(RoundDeposit, 0)
		if err != nil {
			t.Fatalf("round: %v", err)
		}
		sum := big.NewInt(0)
		for _, holder := range []crypto.Address{alice, bob} {
			c, err := env.engine.Contribution(RoundDeposit, 0, holder)
			if err != nil {
				t.Fatalf("contribution: %v", err)
			}
			sum.Add(sum, c)
		}
		if sum.Cmp(round.TotalAmount) != 0 {
			t.Fatalf("step %d: total %s != sum of contributions %s", i, round.TotalAmount, sum)
		}
		if env.underlying(env.vault).Cmp(round.TotalAmount) < 0 {
			t.Fatalf("step %d: vault custody below round total", i)
		}
	}
}

func TestDepositRequiresAllowance(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(0xA1)
	if err := env.token.Mint(env.minter, alice, big.NewInt(10)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	_, err := env.engine.Deposit(alice, big.NewInt(10))
	if !errors.Is(err, token.ErrInsufficientAllowance) {
		t.Fatalf("expected allowance failure, got %v", err)
	}
	round, _ := env.engine.Round(RoundDeposit, 0)
	if round.TotalAmount.Sign() != 0 || round.ParticipantCount() != 0 {
		t.Fatalf("failed deposit mutated the round: %+v", round)
	}
	if _, err := env.engine.Deposit(alice, big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) || !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestRoundIsolationAfterBridging(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(0xA1)
	env.fund(alice, 50)
	env.deposit(alice, 40)
	if _, err := env.engine.DepositAssetsToL1(env.operator); err != nil {
		t.Fatalf("bridge: %v", err)
	}
	env.deposit(alice, 5)

	old, _ := env.engine.Round(RoundDeposit, 0)
	fresh, _ := env.engine.Round(RoundDeposit, 1)
	if old.TotalAmount.Cmp(big.NewInt(40)) != 0 || old.Status != RoundClosed {
		t.Fatalf("closed round changed: %+v", old)
	}
	if fresh.ID != 1 || fresh.TotalAmount.Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("unexpected fresh round %+v", fresh)
	}
	if c, _ := env.engine.Contribution(RoundDeposit, 0, alice); c.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("closed contribution changed: %s", c)
	}
	if _, err := env.engine.CancelDeposit(alice); err != nil {
		t.Fatalf("cancel in new round: %v", err)
	}
	if bal := env.underlying(alice); bal.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("only the open contribution is refundable, balance %s", bal)
	}
}

func TestWithdrawLifecycle(t *testing.T) {
	env := newTestEnv(t)
	alice, bob, carol := env.user(0xA1), env.user(0xB1), env.user(0xC1)
	env.fund(alice, 40)
	env.fund(bob, 60)
	env.deposit(alice, 40)
	env.deposit(bob, 60)
	if _, err := env.engine.DepositAssetsToL1(env.operator); err != nil {
		t.Fatalf("bridge deposits: %v", err)
	}

	if _, err := env.engine.Redeem(alice, big.NewInt(1)); !errors.Is(err, ErrInsufficientShares) {
		t.Fatalf("expected ErrInsufficientShares before settlement, got %v", err)
	}
	if _, _, err := env.engine.Withdraw(alice, big.NewInt(1)); !errors.Is(err, ErrNoPriceYet) {
		t.Fatalf("expected ErrNoPriceYet, got %v", err)
	}
	if _, _, err := env.engine.Mint(carol, big.NewInt(1)); !errors.Is(err, ErrNoPriceYet) {
		t.Fatalf("expected ErrNoPriceYet, got %v", err)
	}

	if err := env.engine.HandleDistributeShare(0, big.NewInt(80)); err != nil {
		t.Fatalf("settle deposits: %v", err)
	}
	if aps, priced, _ := env.engine.AssetsPerShare(); !priced || aps.Cmp(big.NewInt(1_250_000_000)) != 0 {
		t.Fatalf("unexpected rate %s", aps)
	}
	if assets, _ := env.engine.AssetsOf(alice); assets.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("expected alice to be worth 40, got %s", assets)
	}

	env.fund(carol, 10)
	cost, total, err := env.engine.Mint(carol, big.NewInt(8))
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if cost.Cmp(big.NewInt(10)) != 0 || total.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("unexpected mint cost %s total %s", cost, total)
	}
	if got := env.sharesOf(carol); got.Sign() != 0 {
		t.Fatalf("minted shares arrive with the next settlement, got %s", got)
	}

	total, err = env.engine.Redeem(alice, big.NewInt(32))
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if total.Cmp(big.NewInt(32)) != 0 || env.sharesOf(alice).Sign() != 0 {
		t.Fatalf("redeem must burn immediately, total %s", total)
	}
	shares, total, err := env.engine.Withdraw(bob, big.NewInt(30))
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if shares.Cmp(big.NewInt(24)) != 0 || total.Cmp(big.NewInt(56)) != 0 {
		t.Fatalf("unexpected withdraw shares %s total %s", shares, total)
	}

	next, err := env.engine.SendWithdrawalRequestToL1(env.operator)
	if err != nil {
		t.Fatalf("send withdrawal request: %v", err)
	}
	if next != 1 {
		t.Fatalf("expected next withdraw round 1, got %d", next)
	}

	// The vault only holds carol's pending 10, so paying 70 must fail and
	// leave everything untouched.
	err = env.engine.HandleDistributeAsset(0, big.NewInt(70))
	if !errors.Is(err, token.ErrInsufficientBalance) {
		t.Fatalf("expected custody shortfall, got %v", err)
	}
	if round, _ := env.engine.Round(RoundWithdraw, 0); round.Status != RoundClosed {
		t.Fatalf("failed settlement must leave the round closed")
	}
	if bal := env.underlying(alice); bal.Sign() != 0 {
		t.Fatalf("failed settlement paid alice %s", bal)
	}

	if err := env.token.Mint(env.minter, env.vault, big.NewInt(70)); err != nil {
		t.Fatalf("credit vault: %v", err)
	}
	if err := env.engine.HandleDistributeAsset(0, big.NewInt(70)); err != nil {
		t.Fatalf("settle withdrawals: %v", err)
	}
	if bal := env.underlying(alice); bal.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("alice expected 40, got %s", bal)
	}
	if bal := env.underlying(bob); bal.Cmp(big.NewInt(30)) != 0 {
		t.Fatalf("bob expected 30, got %s", bal)
	}
	if bal := env.underlying(env.vault); bal.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("vault must still hold carol's open deposit, got %s", bal)
	}
	vs := env.state()
	if vs.TotalShares.Cmp(big.NewInt(24)) != 0 || vs.TotalAssets.Cmp(big.NewInt(30)) != 0 {
		t.Fatalf("unexpected pool after withdraw %s/%s", vs.TotalShares, vs.TotalAssets)
	}
	if vs.AssetsPerShare.Cmp(big.NewInt(1_250_000_000)) != 0 {
		t.Fatalf("unexpected rate after withdraw %s", vs.AssetsPerShare)
	}
	if err := env.engine.HandleDistributeAsset(0, big.NewInt(70)); !errors.Is(err, ErrAlreadySettled) {
		t.Fatalf("expected replay rejection, got %v", err)
	}
	env.checkShareConservation(alice, bob, carol)
}

func TestWithdrawSettlementKeepsBatchRate(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(0xA1)
	bob := env.user(0xB0)
	env.fund(alice, 3)
	env.fund(bob, 3)
	env.deposit(alice, 3)
	env.deposit(bob, 3)
	if _, err := env.engine.DepositAssetsToL1(env.operator); err != nil {
		t.Fatalf("bridge deposits: %v", err)
	}
	if err := env.engine.HandleDistributeShare(0, big.NewInt(6)); err != nil {
		t.Fatalf("settle deposits: %v", err)
	}
	if _, err := env.engine.Redeem(alice, big.NewInt(3)); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if _, err := env.engine.SendWithdrawalRequestToL1(env.operator); err != nil {
		t.Fatalf("send withdrawal request: %v", err)
	}
	if err := env.token.Mint(env.minter, env.vault, big.NewInt(1)); err != nil {
		t.Fatalf("credit vault: %v", err)
	}
	// 1 underlying for 3 shares does not divide evenly.
	if err := env.engine.HandleDistributeAsset(0, big.NewInt(1)); err != nil {
		t.Fatalf("settle withdrawals: %v", err)
	}

	batchRate := big.NewInt(333_333_333)
	vs := env.state()
	if vs.AssetsPerShare.Cmp(batchRate) != 0 {
		t.Fatalf("expected pool rate %s, got %s", batchRate, vs.AssetsPerShare)
	}
	if vs.TotalShares.Cmp(big.NewInt(3)) != 0 || vs.TotalAssets.Sign() != 0 {
		t.Fatalf("unexpected pool after withdraw %s/%s", vs.TotalShares, vs.TotalAssets)
	}
	round, err := env.engine.Round(RoundWithdraw, 0)
	if err != nil {
		t.Fatalf("round: %v", err)
	}
	if round.AssetsPerShare.Cmp(batchRate) != 0 {
		t.Fatalf("round rate %s", round.AssetsPerShare)
	}

	// floor(1*1e9/333333333) = 3 shares, exactly bob's position.
	shares, _, err := env.engine.Withdraw(bob, big.NewInt(1))
	if err != nil {
		t.Fatalf("withdraw after uneven settlement: %v", err)
	}
	if shares.Cmp(big.NewInt(3)) != 0 || env.sharesOf(bob).Sign() != 0 {
		t.Fatalf("expected bob to queue 3 shares, got %s", shares)
	}
}

func TestCancelWithdrawMintsBack(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(0xA1)
	env.fund(alice, 10)
	env.deposit(alice, 10)
	if _, err := env.engine.DepositAssetsToL1(env.operator); err != nil {
		t.Fatalf("bridge: %v", err)
	}
	if err := env.engine.HandleDistributeShare(0, big.NewInt(10)); err != nil {
		t.Fatalf("settle: %v", err)
	}
	if _, err := env.engine.Redeem(alice, big.NewInt(4)); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if got := env.sharesOf(alice); got.Cmp(big.NewInt(6)) != 0 {
		t.Fatalf("expected 6 shares after redeem, got %s", got)
	}
	total, err := env.engine.CancelWithdraw(alice)
	if err != nil {
		t.Fatalf("cancel withdraw: %v", err)
	}
	if total.Sign() != 0 || env.sharesOf(alice).Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("expected shares restored, total %s", total)
	}
	if _, err := env.engine.CancelWithdraw(alice); !errors.Is(err, ErrNothingToCancel) {
		t.Fatalf("expected ErrNothingToCancel, got %v", err)
	}
	if _, err := env.engine.SendWithdrawalRequestToL1(env.operator); !errors.Is(err, ErrEmptyRound) {
		t.Fatalf("expected ErrEmptyRound, got %v", err)
	}
	env.checkShareConservation(alice)
}

func TestOperatorOnlyOperations(t *testing.T) {
	env := newTestEnv(t)
	mallory := env.user(0xEE)
	env.fund(mallory, 5)
	env.deposit(mallory, 5)

	if _, err := env.engine.DepositAssetsToL1(mallory); !errors.Is(err, ErrUnauthorized) || !errors.Is(err, ErrAuthorization) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := env.engine.SendWithdrawalRequestToL1(mallory); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := env.engine.DistributeShare(mallory, 0, big.NewInt(1)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := env.engine.DistributeUnderlying(mallory, 0, big.NewInt(1)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := env.engine.UpdateRemote(mallory, common.HexToAddress("0x2")); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestManualSettlementMarksRound(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(0xA1)
	env.fund(alice, 10)
	env.deposit(alice, 10)
	if _, err := env.engine.DepositAssetsToL1(env.operator); err != nil {
		t.Fatalf("bridge: %v", err)
	}
	if err := env.engine.DistributeShare(env.operator, 0, big.NewInt(20)); err != nil {
		t.Fatalf("manual settle: %v", err)
	}
	round, _ := env.engine.Round(RoundDeposit, 0)
	if !round.Manual || round.Status != RoundSettled {
		t.Fatalf("expected manual settlement recorded, got %+v", round)
	}
	if err := env.engine.HandleDistributeShare(0, big.NewInt(20)); !errors.Is(err, ErrAlreadySettled) {
		t.Fatalf("message path must see the manual settlement, got %v", err)
	}
}

func TestBridgeMessagesAndEvents(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(0xA1)
	env.fund(alice, 25)
	env.deposit(alice, 25)
	if _, err := env.engine.DepositAssetsToL1(env.operator); err != nil {
		t.Fatalf("bridge: %v", err)
	}
	envelopes, err := env.outbox.List(0, 10)
	if err != nil {
		t.Fatalf("list outbox: %v", err)
	}
	if len(envelopes) != 1 {
		t.Fatalf("expected one queued message, got %d", len(envelopes))
	}
	msg := envelopes[0]
	if msg.To != env.remote || msg.Type != bridge.DepositRequest || msg.RoundID != 0 || msg.Amount.Cmp(big.NewInt(25)) != 0 {
		t.Fatalf("unexpected envelope %+v", msg)
	}
	want := []string{events.TypeVaultDeposited, events.TypeVaultRoundClosed, events.TypeBridgeMessageSent}
	got := env.recorder.Types()
	if len(got) != len(want) {
		t.Fatalf("unexpected events %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestUpdateRemote(t *testing.T) {
	env := newTestEnv(t)
	if err := env.engine.UpdateRemote(env.operator, common.Address{}); !errors.Is(err, ErrZeroAddress) {
		t.Fatalf("expected ErrZeroAddress, got %v", err)
	}
	next := common.HexToAddress("0x2222222222222222222222222222222222222222")
	if err := env.engine.UpdateRemote(env.operator, next); err != nil {
		t.Fatalf("update remote: %v", err)
	}
	remote, err := env.engine.RemoteContract()
	if err != nil || remote != next {
		t.Fatalf("expected remote %s, got %s (%v)", next.Hex(), remote.Hex(), err)
	}
}

func TestDispatcherDrivesEngine(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(0xA1)
	env.fund(alice, 10)
	env.deposit(alice, 10)
	if _, err := env.engine.DepositAssetsToL1(env.operator); err != nil {
		t.Fatalf("bridge: %v", err)
	}
	dispatcher, err := bridge.NewDispatcher(env.engine, bridge.Handlers{
		DistributeShare: env.engine.HandleDistributeShare,
		DistributeAsset: env.engine.HandleDistributeAsset,
	})
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	spoofed := bridge.InboundMessage{From: common.HexToAddress("0x9"), Selector: bridge.SelectorDistributeShare, RoundID: 0, Amount: big.NewInt(10)}
	if err := dispatcher.Dispatch(spoofed); !errors.Is(err, bridge.ErrUnknownRemote) {
		t.Fatalf("expected spoofed origin rejected, got %v", err)
	}
	genuine := spoofed
	genuine.From = env.remote
	if err := dispatcher.Dispatch(genuine); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if got := env.sharesOf(alice); got.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("expected 10 shares, got %s", got)
	}
}

func TestPausedVaultBlocksUserOperations(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(0xA1)
	env.fund(alice, 10)
	env.engine.SetPauses(nativecommon.NewPauses("vault"))
	if _, err := env.engine.Deposit(alice, big.NewInt(10)); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if bal := env.underlying(alice); bal.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("paused deposit moved funds: %s", bal)
	}
}

func TestBridgingRequiresRemote(t *testing.T) {
	env := newTestEnv(t)
	vs := env.state()
	vs.Remote = common.Address{}
	if err := storeVaultState(env.mgr, vs); err != nil {
		t.Fatalf("store state: %v", err)
	}
	alice := env.user(0xA1)
	env.fund(alice, 10)
	env.deposit(alice, 10)
	if _, err := env.engine.DepositAssetsToL1(env.operator); !errors.Is(err, ErrRemoteNotConfigured) {
		t.Fatalf("expected ErrRemoteNotConfigured, got %v", err)
	}
	if round, _ := env.engine.Round(RoundDeposit, 0); round.Status != RoundOpen {
		t.Fatalf("failed bridge closed the round")
	}
}

func TestPreviewAndParticipants(t *testing.T) {
	env := newTestEnv(t)
	alice, bob := env.user(0xA1), env.user(0xB1)
	env.fund(alice, 4)
	env.fund(bob, 4)
	env.deposit(alice, 4)
	env.deposit(bob, 4)
	if _, err := env.engine.CancelDeposit(alice); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	list, err := env.engine.Participants(RoundDeposit, 0)
	if err != nil {
		t.Fatalf("participants: %v", err)
	}
	if len(list) != 2 || list[0].Contribution.Sign() != 0 || list[1].Contribution.Cmp(big.NewInt(4)) != 0 {
		t.Fatalf("unexpected participants %+v", list)
	}
	first, err := env.engine.Participant(RoundDeposit, 0, 0)
	if err != nil || !first.Equal(alice) {
		t.Fatalf("expected alice first, got %s (%v)", first, err)
	}
	if _, err := env.engine.PreviewMint(big.NewInt(1)); !errors.Is(err, ErrNoPriceYet) {
		t.Fatalf("expected ErrNoPriceYet, got %v", err)
	}
	meta, err := env.engine.ShareMetadata()
	if err != nil || meta.Symbol != DefaultShareSymbol {
		t.Fatalf("unexpected share metadata %+v (%v)", meta, err)
	}
}
