package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"defipool/core/state"
	"defipool/crypto"
	nativecommon "defipool/native/common"
	"defipool/native/token"
	"defipool/native/vault"
)

const defaultNetwork = "defipool-local"

// Load loads the genesis file from path, writing a development default
// when it does not exist yet.
func Load(path string) (*Genesis, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	} else if err != nil {
		return nil, err
	}

	cfg := &Genesis{}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("genesis %s: unknown key %s", path, undecoded[0])
	}
	if strings.TrimSpace(cfg.Network) == "" {
		cfg.Network = defaultNetwork
	}
	cfg.Vault.EnsureDefaults()
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("genesis %s: %w", path, err)
	}
	return cfg, nil
}

// DevAddress derives a deterministic development account from label.
func DevAddress(label string) crypto.Address {
	digest := ethcrypto.Keccak256([]byte("defipool/dev/" + label))
	return crypto.NewAddress(crypto.PoolPrefix, digest[12:])
}

func defaultGenesis() *Genesis {
	cfg := &Genesis{
		Network: defaultNetwork,
		Underlying: Underlying{
			Symbol:        vault.DefaultUnderlyingSymbol,
			Name:          "USD Coin",
			Decimals:      6,
			MintAuthority: DevAddress("token-bridge").String(),
		},
		Vault: vault.Config{
			VaultAddress: crypto.NewAddress(crypto.ModulePrefix, DevAddress("vault").Bytes()).String(),
			TokenBridge:  DevAddress("token-bridge").String(),
			Operator:     DevAddress("operator").String(),
		},
		Allocations: []Allocation{},
	}
	cfg.Vault.EnsureDefaults()
	return cfg
}

// createDefault writes and returns a development genesis. The remote L1
// contract is left unset; the operator points the vault at it later.
func createDefault(path string) (*Genesis, error) {
	cfg := defaultGenesis()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Genesis) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// Apply writes the genesis into st. The caller commits. Applying to state
// that already holds a vault leaves it untouched.
func (g *Genesis) Apply(st *state.Manager) error {
	if err := Validate(g); err != nil {
		return err
	}
	params, err := g.Vault.Parse()
	if err != nil {
		return err
	}
	if params.UnderlyingSymbol != strings.ToUpper(strings.TrimSpace(g.Underlying.Symbol)) {
		return fmt.Errorf("vault underlying %s does not match registered underlying %s", params.UnderlyingSymbol, g.Underlying.Symbol)
	}
	if st.TokenExists(params.UnderlyingSymbol) {
		return vault.InitGenesis(st, params)
	}
	if err := st.RegisterToken(params.UnderlyingSymbol, g.Underlying.Name, g.Underlying.Decimals); err != nil {
		return err
	}
	var authority crypto.Address
	if raw := strings.TrimSpace(g.Underlying.MintAuthority); raw != "" {
		if authority, err = crypto.DecodeAddress(raw); err != nil {
			return err
		}
		if err := st.SetTokenMintAuthority(params.UnderlyingSymbol, authority.Bytes()); err != nil {
			return err
		}
	}
	ledger := token.NewLedger(st, params.UnderlyingSymbol)
	for _, alloc := range g.Allocations {
		addr, err := crypto.DecodeAddress(strings.TrimSpace(alloc.Address))
		if err != nil {
			return err
		}
		amount, err := parseAmount(alloc.Amount)
		if err != nil {
			return err
		}
		if err := ledger.Mint(authority, addr, amount); err != nil {
			return fmt.Errorf("allocate %s: %w", addr, err)
		}
	}
	return vault.InitGenesis(st, params)
}

// PauseSet returns the modules that start paused.
func (g *Genesis) PauseSet() *nativecommon.Pauses {
	var paused []string
	if g != nil && g.Pauses.Vault {
		paused = append(paused, "vault")
	}
	return nativecommon.NewPauses(paused...)
}
