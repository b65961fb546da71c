package config

import "defipool/native/vault"

// Underlying describes the asset the vault pools. In development networks
// the token is registered from genesis and MintAuthority stands in for the
// token bridge when crediting L1 returns.
type Underlying struct {
	Symbol        string `toml:"Symbol"`
	Name          string `toml:"Name"`
	Decimals      uint8  `toml:"Decimals"`
	MintAuthority string `toml:"MintAuthority"`
}

// Allocation pre-funds an account with underlying at genesis.
type Allocation struct {
	Address string `toml:"Address"`
	Amount  string `toml:"Amount"`
}

// Pauses lists modules that start paused.
type Pauses struct {
	Vault bool `toml:"Vault"`
}

// Genesis bundles the vault genesis file.
type Genesis struct {
	Network     string       `toml:"Network"`
	Underlying  Underlying   `toml:"Underlying"`
	Vault       vault.Config `toml:"Vault"`
	Pauses      Pauses       `toml:"Pauses"`
	Allocations []Allocation `toml:"Allocations"`
}
