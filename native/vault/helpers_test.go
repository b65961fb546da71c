package vault

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"defipool/bridge"
	"defipool/core/events"
	"defipool/core/state"
	"defipool/crypto"
	"defipool/native/token"
	"defipool/storage"
)

func makeAddress(prefix crypto.AddressPrefix, b byte) crypto.Address {
	raw := make([]byte, 20)
	raw[0] = 0x5a
	raw[19] = b
	return crypto.NewAddress(prefix, raw)
}

func mustInt(t *testing.T, s string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		t.Fatalf("invalid integer %q", s)
	}
	return v
}

type testEnv struct {
	t        *testing.T
	mgr      *state.Manager
	engine   *Engine
	token    *token.Ledger
	outbox   *bridge.Outbox
	recorder *events.Recorder

	operator crypto.Address
	vault    crypto.Address
	escrow   crypto.Address
	minter   crypto.Address
	remote   common.Address
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		t:        t,
		mgr:      state.NewManager(storage.NewMemDB()),
		recorder: &events.Recorder{},
		operator: makeAddress(crypto.PoolPrefix, 0xF0),
		vault:    makeAddress(crypto.ModulePrefix, 0xF1),
		escrow:   makeAddress(crypto.ModulePrefix, 0xF2),
		minter:   makeAddress(crypto.PoolPrefix, 0xF3),
		remote:   common.HexToAddress("0x1111111111111111111111111111111111111111"),
	}
	if err := env.mgr.RegisterToken("USDC", "USD Coin", 6); err != nil {
		t.Fatalf("register underlying: %v", err)
	}
	if err := env.mgr.SetTokenMintAuthority("USDC", env.minter.Bytes()); err != nil {
		t.Fatalf("set mint authority: %v", err)
	}
	params := Params{
		ShareName:        DefaultShareName,
		ShareSymbol:      DefaultShareSymbol,
		ShareDecimals:    DefaultShareDecimals,
		UnderlyingSymbol: "USDC",
		VaultAddress:     env.vault,
		TokenBridge:      env.escrow,
		Operator:         env.operator,
		RemoteContract:   env.remote,
	}
	if err := InitGenesis(env.mgr, params); err != nil {
		t.Fatalf("genesis: %v", err)
	}
	env.token = token.NewLedger(env.mgr, "USDC")
	env.outbox = bridge.NewOutbox(env.mgr)
	env.engine = NewEngine(env.vault, env.escrow, DefaultShareSymbol)
	env.engine.SetState(env.mgr)
	env.engine.SetToken(env.token)
	env.engine.SetSender(env.outbox)
	env.engine.SetEmitter(env.recorder)
	env.engine.SetNowFunc(func() time.Time { return time.Unix(1_700_000_000, 0) })
	return env
}

func (env *testEnv) user(b byte) crypto.Address {
	return makeAddress(crypto.PoolPrefix, b)
}

// fund mints underlying to addr and approves the vault for all of it.
func (env *testEnv) fund(addr crypto.Address, amount int64) {
	env.t.Helper()
	if err := env.token.Mint(env.minter, addr, big.NewInt(amount)); err != nil {
		env.t.Fatalf("mint underlying: %v", err)
	}
	if err := env.token.Approve(addr, env.vault, big.NewInt(amount)); err != nil {
		env.t.Fatalf("approve: %v", err)
	}
}

func (env *testEnv) underlying(addr crypto.Address) *big.Int {
	env.t.Helper()
	bal, err := env.token.BalanceOf(addr)
	if err != nil {
		env.t.Fatalf("underlying balance: %v", err)
	}
	return bal
}

func (env *testEnv) sharesOf(addr crypto.Address) *big.Int {
	env.t.Helper()
	bal, err := env.engine.BalanceOf(addr)
	if err != nil {
		env.t.Fatalf("share balance: %v", err)
	}
	return bal
}

func (env *testEnv) deposit(addr crypto.Address, amount int64) {
	env.t.Helper()
	if _, err := env.engine.Deposit(addr, big.NewInt(amount)); err != nil {
		env.t.Fatalf("deposit %d: %v", amount, err)
	}
}

func (env *testEnv) state() *VaultState {
	env.t.Helper()
	vs, err := env.engine.State()
	if err != nil {
		env.t.Fatalf("state: %v", err)
	}
	return vs
}

// checkShareConservation asserts the sum of the given balances equals supply.
func (env *testEnv) checkShareConservation(holders ...crypto.Address) {
	env.t.Helper()
	sum := big.NewInt(0)
	for _, h := range holders {
		sum.Add(sum, env.sharesOf(h))
	}
	supply, err := env.engine.TotalSupply()
	if err != nil {
		env.t.Fatalf("supply: %v", err)
	}
	if sum.Cmp(supply) != 0 {
		env.t.Fatalf("share conservation broken: balances %s, supply %s", sum, supply)
	}
	if supply.Cmp(env.state().TotalShares) > 0 {
		env.t.Fatalf("supply %s exceeds pool shares %s", supply, env.state().TotalShares)
	}
}
