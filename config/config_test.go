package config

import (
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"defipool/core/state"
	"defipool/native/token"
	"defipool/native/vault"
	"defipool/storage"
)

func TestLoadCreatesDefaultGenesis(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "vault.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected default genesis to be written: %v", err)
	}
	if cfg.Network != defaultNetwork {
		t.Fatalf("unexpected network %q", cfg.Network)
	}
	if cfg.Vault.ShareSymbol != vault.DefaultShareSymbol || cfg.Vault.ShareDecimals != vault.DefaultShareDecimals {
		t.Fatalf("unexpected share defaults %+v", cfg.Vault)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Vault.Operator != cfg.Vault.Operator {
		t.Fatalf("operator changed across reload: %s vs %s", reloaded.Vault.Operator, cfg.Vault.Operator)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.toml")
	if err := os.WriteFile(path, []byte("Network = \"x\"\nBogus = 1\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "Bogus") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestValidateAllocations(t *testing.T) {
	cfg := defaultGenesis()
	cfg.Allocations = []Allocation{{Address: DevAddress("alice").String(), Amount: "0"}}
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected zero allocation to be rejected")
	}
	cfg.Allocations = []Allocation{
		{Address: DevAddress("alice").String(), Amount: "10"},
		{Address: DevAddress("alice").String(), Amount: "5"},
	}
	if err := Validate(cfg); err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("expected duplicate allocation error, got %v", err)
	}
	cfg.Allocations = cfg.Allocations[:1]
	cfg.Underlying.MintAuthority = ""
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected allocations without mint authority to be rejected")
	}
}

func TestApplySeedsState(t *testing.T) {
	cfg := defaultGenesis()
	alice := DevAddress("alice")
	cfg.Allocations = []Allocation{{Address: alice.String(), Amount: "1000000"}}
	cfg.Vault.RemoteContract = "0x1111111111111111111111111111111111111111"

	mgr := state.NewManager(storage.NewMemDB())
	if err := cfg.Apply(mgr); err != nil {
		t.Fatalf("apply: %v", err)
	}
	balance, err := token.NewLedger(mgr, "USDC").BalanceOf(alice)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("unexpected allocation %s", balance)
	}
	if !mgr.TokenExists(vault.DefaultShareSymbol) {
		t.Fatalf("share token not registered")
	}
	if !mgr.HasRole(vault.RoleOperator, DevAddress("operator").Bytes()) {
		t.Fatalf("operator role not installed")
	}

	// Reapplying must not double-allocate.
	if err := cfg.Apply(mgr); err != nil {
		t.Fatalf("reapply: %v", err)
	}
	balance, _ = token.NewLedger(mgr, "USDC").BalanceOf(alice)
	if balance.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("reapply changed allocation to %s", balance)
	}
}

func TestPauseSet(t *testing.T) {
	cfg := defaultGenesis()
	if cfg.PauseSet().IsPaused("vault") {
		t.Fatalf("vault should start unpaused")
	}
	cfg.Pauses.Vault = true
	if !cfg.PauseSet().IsPaused("vault") {
		t.Fatalf("vault should start paused")
	}
}
