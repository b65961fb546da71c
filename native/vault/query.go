package vault

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"defipool/crypto"
)

func (e *Engine) view() (*VaultState, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return loadVaultState(e.state)
}

// State returns a copy of the pool aggregate.
func (e *Engine) State() (*VaultState, error) {
	return e.view()
}

// RemoteContract returns the L1 contract the vault exchanges messages with.
func (e *Engine) RemoteContract() (common.Address, error) {
	vs, err := e.view()
	if err != nil {
		return common.Address{}, err
	}
	return vs.Remote, nil
}

func (e *Engine) TotalAssets() (*big.Int, error) {
	vs, err := e.view()
	if err != nil {
		return nil, err
	}
	return vs.TotalAssets, nil
}

// AssetsPerShare returns the scaled rate and whether any settlement has
// priced the pool yet.
func (e *Engine) AssetsPerShare() (*big.Int, bool, error) {
	vs, err := e.view()
	if err != nil {
		return nil, false, err
	}
	return vs.AssetsPerShare, vs.Priced, nil
}

// BalanceOf returns addr's share balance.
func (e *Engine) BalanceOf(addr crypto.Address) (*big.Int, error) {
	if _, err := e.view(); err != nil {
		return nil, err
	}
	return e.shares.BalanceOf(addr)
}

// TotalSupply returns circulating shares. It never exceeds TotalShares.
func (e *Engine) TotalSupply() (*big.Int, error) {
	if _, err := e.view(); err != nil {
		return nil, err
	}
	return e.shares.TotalSupply()
}

// ShareMetadata returns the share token's name, symbol and decimals.
func (e *Engine) ShareMetadata() (ShareMetadata, error) {
	if _, err := e.view(); err != nil {
		return ShareMetadata{}, err
	}
	return e.shares.Metadata()
}

// AssetsOf values addr's shares at the current rate. Before the first
// settlement nobody holds shares, so the value is zero.
func (e *Engine) AssetsOf(addr crypto.Address) (*big.Int, error) {
	vs, err := e.view()
	if err != nil {
		return nil, err
	}
	balance, err := e.shares.BalanceOf(addr)
	if err != nil {
		return nil, err
	}
	if !vs.Priced || balance.Sign() == 0 {
		return big.NewInt(0), nil
	}
	return e.settlement.ConvertSharesToAssets(vs, balance)
}

// PreviewMint returns the underlying Mint would pull for shares.
func (e *Engine) PreviewMint(shares *big.Int) (*big.Int, error) {
	vs, err := e.view()
	if err != nil {
		return nil, err
	}
	return e.settlement.ConvertSharesToAssets(vs, shares)
}

// PreviewWithdraw returns the shares Withdraw would queue for assets.
func (e *Engine) PreviewWithdraw(assets *big.Int) (*big.Int, error) {
	vs, err := e.view()
	if err != nil {
		return nil, err
	}
	return e.settlement.ConvertAssetsToShares(vs, assets)
}

// Round returns a copy of a round.
func (e *Engine) Round(kind RoundKind, id uint64) (*Round, error) {
	vs, err := e.view()
	if err != nil {
		return nil, err
	}
	return e.rounds.Round(vs, kind, id)
}

// CurrentRound returns the id of the open round of kind.
func (e *Engine) CurrentRound(kind RoundKind) (uint64, error) {
	vs, err := e.view()
	if err != nil {
		return 0, err
	}
	if !kind.valid() {
		return 0, ErrInvalidKind
	}
	return vs.CurrentRound(kind), nil
}

// Contribution returns addr's contribution to a round. Zero means the
// participant never joined or cancelled.
func (e *Engine) Contribution(kind RoundKind, id uint64, addr crypto.Address) (*big.Int, error) {
	if _, err := e.Round(kind, id); err != nil {
		return nil, err
	}
	return e.rounds.Contribution(kind, id, addr.Array())
}

// Participant returns the participant at index in first-contribution order.
func (e *Engine) Participant(kind RoundKind, id uint64, index int) (crypto.Address, error) {
	vs, err := e.view()
	if err != nil {
		return crypto.Address{}, err
	}
	raw, err := e.rounds.Participant(vs, kind, id, index)
	if err != nil {
		return crypto.Address{}, err
	}
	return e.account(raw), nil
}

// ParticipantContribution pairs a participant with its contribution.
type ParticipantContribution struct {
	Account      crypto.Address
	Contribution *big.Int
}

// Participants lists a round's participants with their contributions,
// including cancelled entries at zero.
func (e *Engine) Participants(kind RoundKind, id uint64) ([]ParticipantContribution, error) {
	round, err := e.Round(kind, id)
	if err != nil {
		return nil, err
	}
	out := make([]ParticipantContribution, 0, len(round.Participants))
	for _, raw := range round.Participants {
		amount, err := e.rounds.Contribution(kind, id, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, ParticipantContribution{Account: e.account(raw), Contribution: amount})
	}
	return out, nil
}

// IsOperator reports whether addr holds the operator role.
func (e *Engine) IsOperator(addr crypto.Address) (bool, error) {
	if _, err := e.view(); err != nil {
		return false, err
	}
	return e.requireOperator(addr) == nil, nil
}
