package vault

import (
	"fmt"
	"math/big"
)

// RoundLedger records deposit and withdraw rounds. Only the round whose id
// equals the current counter in VaultState accepts contributions; every
// older round is history.
type RoundLedger struct {
	state engineState
}

// NewRoundLedger binds a round ledger to state.
func NewRoundLedger(st engineState) *RoundLedger {
	return &RoundLedger{state: st}
}

// Round loads a round. The current round exists implicitly as an empty Open
// round until its first contribution is written.
func (l *RoundLedger) Round(vs *VaultState, kind RoundKind, id uint64) (*Round, error) {
	if !kind.valid() {
		return nil, ErrInvalidKind
	}
	current := vs.CurrentRound(kind)
	if id > current {
		return nil, fmt.Errorf("%w: %s round %d", ErrUnknownRound, kind, id)
	}
	round, ok, err := loadRound(l.state, kind, id)
	if err != nil {
		return nil, err
	}
	if ok {
		return round, nil
	}
	if id == current {
		return newRound(kind, id), nil
	}
	return nil, fmt.Errorf("%w: %s round %d", ErrUnknownRound, kind, id)
}

func (l *RoundLedger) currentOpen(vs *VaultState, kind RoundKind) (*Round, error) {
	round, err := l.Round(vs, kind, vs.CurrentRound(kind))
	if err != nil {
		return nil, err
	}
	if round.Status != RoundOpen {
		return nil, fmt.Errorf("%w: %s round %d is %s", ErrRoundClosed, kind, round.ID, round.Status)
	}
	return round, nil
}

// Contribution returns addr's contribution to a round. Unknown participants
// contribute zero.
func (l *RoundLedger) Contribution(kind RoundKind, id uint64, addr [20]byte) (*big.Int, error) {
	return loadContribution(l.state, kind, id, addr)
}

// Participant returns the address at index in first-contribution order.
func (l *RoundLedger) Participant(vs *VaultState, kind RoundKind, id uint64, index int) ([20]byte, error) {
	round, err := l.Round(vs, kind, id)
	if err != nil {
		return [20]byte{}, err
	}
	if index < 0 || index >= len(round.Participants) {
		return [20]byte{}, fmt.Errorf("%w: %d of %d", ErrParticipantOutOfRange, index, len(round.Participants))
	}
	return round.Participants[index], nil
}

// AddContribution credits amount to addr in the current open round of kind
// and returns the updated round.
func (l *RoundLedger) AddContribution(vs *VaultState, kind RoundKind, addr [20]byte, amount *big.Int) (*Round, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	round, err := l.currentOpen(vs, kind)
	if err != nil {
		return nil, err
	}
	prior, err := l.Contribution(kind, round.ID, addr)
	if err != nil {
		return nil, err
	}
	updated, err := Add(prior, amount)
	if err != nil {
		return nil, err
	}
	total, err := Add(round.TotalAmount, amount)
	if err != nil {
		return nil, err
	}
	if !containsParticipant(round.Participants, addr) {
		round.Participants = append(round.Participants, addr)
	}
	round.TotalAmount = total
	if err := storeContribution(l.state, kind, round.ID, addr, updated); err != nil {
		return nil, err
	}
	if err := storeRound(l.state, round); err != nil {
		return nil, err
	}
	return round, nil
}

// RemoveContribution zeroes addr's contribution in the current open round and
// returns the amount removed together with the updated round.
func (l *RoundLedger) RemoveContribution(vs *VaultState, kind RoundKind, addr [20]byte) (*big.Int, *Round, error) {
	round, err := l.currentOpen(vs, kind)
	if err != nil {
		return nil, nil, err
	}
	prior, err := l.Contribution(kind, round.ID, addr)
	if err != nil {
		return nil, nil, err
	}
	if prior.Sign() == 0 {
		return nil, nil, ErrNothingToCancel
	}
	total, err := Sub(round.TotalAmount, prior)
	if err != nil {
		return nil, nil, err
	}
	round.TotalAmount = total
	if err := storeContribution(l.state, kind, round.ID, addr, big.NewInt(0)); err != nil {
		return nil, nil, err
	}
	if err := storeRound(l.state, round); err != nil {
		return nil, nil, err
	}
	return prior, round, nil
}

// Close seals the current round of kind and advances the counter in vs. The
// caller persists vs.
func (l *RoundLedger) Close(vs *VaultState, kind RoundKind, now uint64) (*Round, error) {
	round, err := l.currentOpen(vs, kind)
	if err != nil {
		return nil, err
	}
	if round.TotalAmount.Sign() == 0 {
		return nil, fmt.Errorf("%w: %s round %d", ErrEmptyRound, kind, round.ID)
	}
	round.Status = RoundClosed
	round.ClosedAt = now
	if err := storeRound(l.state, round); err != nil {
		return nil, err
	}
	vs.advance(kind)
	return round, nil
}

// Settlement is the outcome recorded on a round when it settles.
type Settlement struct {
	Received       *big.Int
	Distributed    *big.Int
	Dust           *big.Int
	AssetsPerShare *big.Int
	Manual         bool
	At             uint64
}

// AwaitingSettlement loads a round and checks that it is Closed.
func (l *RoundLedger) AwaitingSettlement(vs *VaultState, kind RoundKind, id uint64) (*Round, error) {
	round, err := l.Round(vs, kind, id)
	if err != nil {
		return nil, err
	}
	if round.Status != RoundClosed {
		return nil, fmt.Errorf("%w: %s round %d is %s", ErrAlreadySettled, kind, id, round.Status)
	}
	return round, nil
}

// MarkSettled moves a Closed round to Settled and records the outcome.
func (l *RoundLedger) MarkSettled(vs *VaultState, kind RoundKind, id uint64, outcome Settlement) (*Round, error) {
	round, err := l.AwaitingSettlement(vs, kind, id)
	if err != nil {
		return nil, err
	}
	round.Status = RoundSettled
	round.SettledAt = outcome.At
	round.Received = copyInt(outcome.Received)
	round.Distributed = copyInt(outcome.Distributed)
	round.Dust = copyInt(outcome.Dust)
	round.AssetsPerShare = copyInt(outcome.AssetsPerShare)
	round.Manual = outcome.Manual
	if err := storeRound(l.state, round); err != nil {
		return nil, err
	}
	return round, nil
}

func containsParticipant(list [][20]byte, addr [20]byte) bool {
	for _, existing := range list {
		if existing == addr {
			return true
		}
	}
	return false
}
