package vault

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"defipool/crypto"
)

const (
	DefaultShareName        = "Jedi Interest bearing USDC"
	DefaultShareSymbol      = "JUSDC"
	DefaultShareDecimals    = 18
	DefaultUnderlyingSymbol = "USDC"
)

// Config captures the vault section of the genesis file.
type Config struct {
	ShareName        string `toml:"ShareName"`
	ShareSymbol      string `toml:"ShareSymbol"`
	ShareDecimals    uint8  `toml:"ShareDecimals"`
	UnderlyingSymbol string `toml:"UnderlyingSymbol"`
	VaultAddress     string `toml:"VaultAddress"`
	TokenBridge      string `toml:"TokenBridge"`
	Operator         string `toml:"Operator"`
	RemoteContract   string `toml:"RemoteContract"`
}

// EnsureDefaults fills unset share metadata.
func (c *Config) EnsureDefaults() {
	if c == nil {
		return
	}
	if strings.TrimSpace(c.ShareName) == "" {
		c.ShareName = DefaultShareName
	}
	if strings.TrimSpace(c.ShareSymbol) == "" {
		c.ShareSymbol = DefaultShareSymbol
	}
	if c.ShareDecimals == 0 {
		c.ShareDecimals = DefaultShareDecimals
	}
	if strings.TrimSpace(c.UnderlyingSymbol) == "" {
		c.UnderlyingSymbol = DefaultUnderlyingSymbol
	}
}

// Params is the parsed form of Config.
type Params struct {
	ShareName        string
	ShareSymbol      string
	ShareDecimals    uint8
	UnderlyingSymbol string
	VaultAddress     crypto.Address
	TokenBridge      crypto.Address
	Operator         crypto.Address
	RemoteContract   common.Address
}

// Parse validates the configuration and decodes its addresses.
func (c Config) Parse() (Params, error) {
	c.EnsureDefaults()
	params := Params{
		ShareName:        strings.TrimSpace(c.ShareName),
		ShareSymbol:      strings.ToUpper(strings.TrimSpace(c.ShareSymbol)),
		ShareDecimals:    c.ShareDecimals,
		UnderlyingSymbol: strings.ToUpper(strings.TrimSpace(c.UnderlyingSymbol)),
	}
	if params.ShareSymbol == params.UnderlyingSymbol {
		return Params{}, fmt.Errorf("vault config: share symbol must differ from underlying symbol")
	}
	var err error
	if params.VaultAddress, err = parseAccount("VaultAddress", c.VaultAddress); err != nil {
		return Params{}, err
	}
	if params.TokenBridge, err = parseAccount("TokenBridge", c.TokenBridge); err != nil {
		return Params{}, err
	}
	if params.Operator, err = parseAccount("Operator", c.Operator); err != nil {
		return Params{}, err
	}
	remote := strings.TrimSpace(c.RemoteContract)
	if remote != "" {
		if !common.IsHexAddress(remote) {
			return Params{}, fmt.Errorf("vault config: RemoteContract %q is not a hex address", remote)
		}
		params.RemoteContract = common.HexToAddress(remote)
	}
	return params, nil
}

func parseAccount(field, raw string) (crypto.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return crypto.Address{}, fmt.Errorf("vault config: %s is required", field)
	}
	addr, err := crypto.DecodeAddress(trimmed)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("vault config: %s: %w", field, err)
	}
	if addr.IsZero() {
		return crypto.Address{}, fmt.Errorf("vault config: %s must not be the zero address", field)
	}
	return addr, nil
}
