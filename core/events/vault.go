package events

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"defipool/core/types"
	"defipool/crypto"
)

const (
	// TypeVaultDeposited is emitted when underlying joins the open deposit round.
	TypeVaultDeposited = "vault.deposited"
	// TypeVaultDepositCancelled is emitted when a contribution is refunded.
	TypeVaultDepositCancelled = "vault.deposit_cancelled"
	// TypeVaultRedeemRequested is emitted when shares join the open withdraw round.
	TypeVaultRedeemRequested = "vault.redeem_requested"
	// TypeVaultWithdrawCancelled is emitted when queued shares are minted back.
	TypeVaultWithdrawCancelled = "vault.withdraw_cancelled"
	// TypeVaultRoundClosed is emitted when the operator bridges a round.
	TypeVaultRoundClosed = "vault.round_closed"
	// TypeVaultRoundSettled is emitted once a closed round is finalised.
	TypeVaultRoundSettled = "vault.round_settled"
	// TypeVaultSharesDistributed is emitted per participant of a deposit settlement.
	TypeVaultSharesDistributed = "vault.shares_distributed"
	// TypeVaultAssetsDistributed is emitted per participant of a withdraw settlement.
	TypeVaultAssetsDistributed = "vault.assets_distributed"
	// TypeVaultRemoteUpdated is emitted when the L1 contract address changes.
	TypeVaultRemoteUpdated = "vault.remote_updated"
)

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func roundString(id uint64) string {
	return strconv.FormatUint(id, 10)
}

// VaultContribution covers deposits, cancellations and redeem requests.
type VaultContribution struct {
	EventKind  string
	Account    crypto.Address
	RoundID    uint64
	Amount     *big.Int
	RoundTotal *big.Int
	// Source names the entry point, e.g. "deposit" or "mint".
	Source string
}

func (e VaultContribution) EventType() string { return e.EventKind }

func (e VaultContribution) Event() *types.Event {
	attrs := map[string]string{
		"account":    e.Account.String(),
		"roundId":    roundString(e.RoundID),
		"amount":     amountString(e.Amount),
		"roundTotal": amountString(e.RoundTotal),
	}
	if e.Source != "" {
		attrs["source"] = e.Source
	}
	return &types.Event{Type: e.EventKind, Attributes: attrs}
}

type VaultRoundClosed struct {
	Kind        string
	RoundID     uint64
	Total       *big.Int
	NextRoundID uint64
}

func (VaultRoundClosed) EventType() string { return TypeVaultRoundClosed }

func (e VaultRoundClosed) Event() *types.Event {
	return &types.Event{
		Type: TypeVaultRoundClosed,
		Attributes: map[string]string{
			"kind":        e.Kind,
			"roundId":     roundString(e.RoundID),
			"total":       amountString(e.Total),
			"nextRoundId": roundString(e.NextRoundID),
		},
	}
}

type VaultRoundSettled struct {
	Kind           string
	RoundID        uint64
	RoundTotal     *big.Int
	Received       *big.Int
	Distributed    *big.Int
	Dust           *big.Int
	AssetsPerShare *big.Int
	TotalAssets    *big.Int
	TotalShares    *big.Int
	Manual         bool
}

func (VaultRoundSettled) EventType() string { return TypeVaultRoundSettled }

func (e VaultRoundSettled) Event() *types.Event {
	return &types.Event{
		Type: TypeVaultRoundSettled,
		Attributes: map[string]string{
			"kind":           e.Kind,
			"roundId":        roundString(e.RoundID),
			"roundTotal":     amountString(e.RoundTotal),
			"received":       amountString(e.Received),
			"distributed":    amountString(e.Distributed),
			"dust":           amountString(e.Dust),
			"assetsPerShare": amountString(e.AssetsPerShare),
			"totalAssets":    amountString(e.TotalAssets),
			"totalShares":    amountString(e.TotalShares),
			"manual":         strconv.FormatBool(e.Manual),
		},
	}
}

// VaultPayout is emitted for each participant credited by a settlement.
type VaultPayout struct {
	EventKind string
	Account   crypto.Address
	RoundID   uint64
	Amount    *big.Int
}

func (e VaultPayout) EventType() string { return e.EventKind }

func (e VaultPayout) Event() *types.Event {
	return &types.Event{
		Type: e.EventKind,
		Attributes: map[string]string{
			"account": e.Account.String(),
			"roundId": roundString(e.RoundID),
			"amount":  amountString(e.Amount),
		},
	}
}

type VaultRemoteUpdated struct {
	Previous common.Address
	Remote   common.Address
}

func (VaultRemoteUpdated) EventType() string { return TypeVaultRemoteUpdated }

func (e VaultRemoteUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeVaultRemoteUpdated,
		Attributes: map[string]string{
			"previous": e.Previous.Hex(),
			"remote":   e.Remote.Hex(),
		},
	}
}
