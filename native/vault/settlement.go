package vault

import (
	"math/big"
)

// Payout is one participant's share of a settled round.
type Payout struct {
	Account [20]byte
	Amount  *big.Int
}

// Distribution summarises how a settlement was split across a round.
type Distribution struct {
	Payouts     []Payout
	Distributed *big.Int
	Dust        *big.Int
	// AssetsPerShare is the rate the round was priced at.
	AssetsPerShare *big.Int
}

// SettlementEngine owns the pool exchange rate. It applies settlement
// reports to VaultState and splits what L1 returned across a round's
// participants, rounding every payout down so the total never exceeds what
// was received.
type SettlementEngine struct {
	rounds *RoundLedger
}

// NewSettlementEngine reads contributions through rounds.
func NewSettlementEngine(rounds *RoundLedger) *SettlementEngine {
	return &SettlementEngine{rounds: rounds}
}

func (s *SettlementEngine) distribute(round *Round, received *big.Int, credit func([20]byte, *big.Int) error) (*Distribution, error) {
	dist := &Distribution{Distributed: big.NewInt(0)}
	for _, participant := range round.Participants {
		contribution, err := s.rounds.Contribution(round.Kind, round.ID, participant)
		if err != nil {
			return nil, err
		}
		if contribution.Sign() == 0 {
			continue
		}
		amount, err := ProRata(received, contribution, round.TotalAmount)
		if err != nil {
			return nil, err
		}
		if amount.Sign() == 0 {
			continue
		}
		if err := credit(participant, amount); err != nil {
			return nil, err
		}
		dist.Payouts = append(dist.Payouts, Payout{Account: participant, Amount: amount})
		dist.Distributed.Add(dist.Distributed, amount)
	}
	dust, err := Sub(received, dist.Distributed)
	if err != nil {
		return nil, err
	}
	dist.Dust = dust
	return dist, nil
}

// ApplyDepositSettlement books sharesReceived for a closed deposit round,
// reprices the pool and passes each participant's shares to credit.
func (s *SettlementEngine) ApplyDepositSettlement(vs *VaultState, round *Round, sharesReceived *big.Int, credit func([20]byte, *big.Int) error) (*Distribution, error) {
	if sharesReceived == nil || sharesReceived.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	totalShares, err := Add(vs.TotalShares, sharesReceived)
	if err != nil {
		return nil, err
	}
	totalAssets, err := Add(vs.TotalAssets, round.TotalAmount)
	if err != nil {
		return nil, err
	}
	aps, err := AssetsPerShare(totalAssets, totalShares)
	if err != nil {
		return nil, err
	}
	dist, err := s.distribute(round, sharesReceived, credit)
	if err != nil {
		return nil, err
	}
	vs.TotalShares = totalShares
	vs.TotalAssets = totalAssets
	vs.AssetsPerShare = aps
	vs.Priced = true
	dist.AssetsPerShare = new(big.Int).Set(aps)
	return dist, nil
}

// ApplyWithdrawSettlement books assetsReceived for a closed withdraw round.
// The round's shares leave the pool position, the remaining position is
// revalued at the batch rate, and each participant's underlying is passed to
// pay.
func (s *SettlementEngine) ApplyWithdrawSettlement(vs *VaultState, round *Round, assetsReceived *big.Int, pay func([20]byte, *big.Int) error) (*Distribution, error) {
	if assetsReceived == nil || assetsReceived.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	batchRate, err := AssetsPerShare(assetsReceived, round.TotalAmount)
	if err != nil {
		return nil, err
	}
	totalShares, err := Sub(vs.TotalShares, round.TotalAmount)
	if err != nil {
		return nil, err
	}
	// The pool keeps the batch rate itself. TotalAssets is floored and never
	// feeds back into the rate.
	totalAssets, err := SharesToAssets(totalShares, batchRate)
	if err != nil {
		return nil, err
	}
	dist, err := s.distribute(round, assetsReceived, pay)
	if err != nil {
		return nil, err
	}
	vs.TotalShares = totalShares
	vs.TotalAssets = totalAssets
	vs.AssetsPerShare = new(big.Int).Set(batchRate)
	dist.AssetsPerShare = batchRate
	return dist, nil
}

// ConvertSharesToAssets prices shares at the current rate.
func (s *SettlementEngine) ConvertSharesToAssets(vs *VaultState, shares *big.Int) (*big.Int, error) {
	if !vs.Priced {
		return nil, ErrNoPriceYet
	}
	return SharesToAssets(shares, vs.AssetsPerShare)
}

// ConvertAssetsToShares prices assets at the current rate.
func (s *SettlementEngine) ConvertAssetsToShares(vs *VaultState, assets *big.Int) (*big.Int, error) {
	if !vs.Priced {
		return nil, ErrNoPriceYet
	}
	return AssetsToShares(assets, vs.AssetsPerShare)
}
