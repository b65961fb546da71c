package config

import (
	"fmt"
	"math/big"
	"strings"

	"defipool/crypto"
)

// Validate checks the genesis file before it is applied.
func Validate(g *Genesis) error {
	if g == nil {
		return fmt.Errorf("genesis: nil config")
	}
	if strings.TrimSpace(g.Underlying.Symbol) == "" {
		return fmt.Errorf("underlying: symbol required")
	}
	if strings.TrimSpace(g.Underlying.Name) == "" {
		return fmt.Errorf("underlying: name required")
	}
	if strings.TrimSpace(g.Underlying.MintAuthority) != "" {
		if _, err := crypto.DecodeAddress(strings.TrimSpace(g.Underlying.MintAuthority)); err != nil {
			return fmt.Errorf("underlying: mint authority: %w", err)
		}
	}
	if _, err := g.Vault.Parse(); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(g.Allocations))
	for i, alloc := range g.Allocations {
		addr, err := crypto.DecodeAddress(strings.TrimSpace(alloc.Address))
		if err != nil {
			return fmt.Errorf("allocations[%d]: %w", i, err)
		}
		if _, dup := seen[addr.String()]; dup {
			return fmt.Errorf("allocations[%d]: duplicate address %s", i, addr)
		}
		seen[addr.String()] = struct{}{}
		if _, err := parseAmount(alloc.Amount); err != nil {
			return fmt.Errorf("allocations[%d]: %w", i, err)
		}
	}
	if len(g.Allocations) > 0 && strings.TrimSpace(g.Underlying.MintAuthority) == "" {
		return fmt.Errorf("allocations require an underlying mint authority")
	}
	return nil
}

func parseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	return amount, nil
}
