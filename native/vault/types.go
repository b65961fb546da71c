package vault

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// RoundKind distinguishes deposit rounds (underlying in) from withdraw rounds
// (shares out).
type RoundKind uint8

const (
	RoundDeposit RoundKind = iota + 1
	RoundWithdraw
)

func (k RoundKind) String() string {
	switch k {
	case RoundDeposit:
		return "deposit"
	case RoundWithdraw:
		return "withdraw"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

func (k RoundKind) valid() bool {
	return k == RoundDeposit || k == RoundWithdraw
}

// ParseRoundKind accepts "deposit" or "withdraw".
func ParseRoundKind(raw string) (RoundKind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "deposit":
		return RoundDeposit, nil
	case "withdraw":
		return RoundWithdraw, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidKind, raw)
	}
}

// RoundStatus is the lifecycle position of a round. Rounds only move forward:
// Open, then Closed when bridged, then Settled.
type RoundStatus uint8

const (
	RoundOpen RoundStatus = iota
	RoundClosed
	RoundSettled
)

func (s RoundStatus) String() string {
	switch s {
	case RoundOpen:
		return "open"
	case RoundClosed:
		return "closed"
	case RoundSettled:
		return "settled"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Round is one batch of contributions. Deposit rounds count underlying units,
// withdraw rounds count shares. Per-participant contributions are stored
// separately and read through the RoundLedger.
type Round struct {
	Kind        RoundKind
	ID          uint64
	Status      RoundStatus
	TotalAmount *big.Int
	// Participants keeps first-contribution order. Cancelled participants
	// stay listed with a zero contribution.
	Participants [][20]byte
	ClosedAt     uint64
	SettledAt    uint64
	// Received is the shares (deposit) or underlying (withdraw) L1 returned.
	Received    *big.Int
	Distributed *big.Int
	// Dust is Received minus Distributed. It is never swept.
	Dust *big.Int
	// AssetsPerShare is the scaled rate the settlement priced the round at.
	AssetsPerShare *big.Int
	Manual         bool
}

func newRound(kind RoundKind, id uint64) *Round {
	return &Round{
		Kind:           kind,
		ID:             id,
		Status:         RoundOpen,
		TotalAmount:    big.NewInt(0),
		Participants:   [][20]byte{},
		Received:       big.NewInt(0),
		Distributed:    big.NewInt(0),
		Dust:           big.NewInt(0),
		AssetsPerShare: big.NewInt(0),
	}
}

func copyInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// Clone returns a deep copy of the round.
func (r *Round) Clone() *Round {
	if r == nil {
		return nil
	}
	clone := *r
	clone.TotalAmount = copyInt(r.TotalAmount)
	clone.Received = copyInt(r.Received)
	clone.Distributed = copyInt(r.Distributed)
	clone.Dust = copyInt(r.Dust)
	clone.AssetsPerShare = copyInt(r.AssetsPerShare)
	clone.Participants = append([][20]byte{}, r.Participants...)
	return &clone
}

// ParticipantCount includes cancelled participants.
func (r *Round) ParticipantCount() int {
	if r == nil {
		return 0
	}
	return len(r.Participants)
}

// VaultState is the pool aggregate shared by every operation.
type VaultState struct {
	CurrentDepositRound  uint64
	CurrentWithdrawRound uint64
	// TotalShares is the pool's share position on L1. It differs from the
	// share ledger supply by undistributed dust and by shares burned into
	// withdraw rounds that have not settled yet.
	TotalShares    *big.Int
	TotalAssets    *big.Int
	AssetsPerShare *big.Int
	// Priced is set by the first deposit settlement. AssetsPerShare may
	// legitimately truncate to zero, so it cannot double as the flag.
	Priced bool
	Remote common.Address
}

func newVaultState() *VaultState {
	return &VaultState{
		TotalShares:    big.NewInt(0),
		TotalAssets:    big.NewInt(0),
		AssetsPerShare: big.NewInt(0),
	}
}

// Clone returns a deep copy of the vault state.
func (s *VaultState) Clone() *VaultState {
	if s == nil {
		return nil
	}
	clone := *s
	clone.TotalShares = copyInt(s.TotalShares)
	clone.TotalAssets = copyInt(s.TotalAssets)
	clone.AssetsPerShare = copyInt(s.AssetsPerShare)
	return &clone
}

// CurrentRound returns the id of the open round for kind.
func (s *VaultState) CurrentRound(kind RoundKind) uint64 {
	if kind == RoundWithdraw {
		return s.CurrentWithdrawRound
	}
	return s.CurrentDepositRound
}

func (s *VaultState) advance(kind RoundKind) uint64 {
	if kind == RoundWithdraw {
		s.CurrentWithdrawRound++
		return s.CurrentWithdrawRound
	}
	s.CurrentDepositRound++
	return s.CurrentDepositRound
}
