package vault

import (
	"math/big"

	"defipool/core/state"
)

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	Token(symbol string) (*state.TokenMetadata, error)
	Balance(addr []byte, symbol string) (*big.Int, error)
	SetBalance(addr []byte, symbol string, amount *big.Int) error
	HasRole(role string, addr []byte) bool
	Snapshot() int
	RevertToSnapshot(id int)
}

func loadVaultState(st engineState) (*VaultState, error) {
	vs := newVaultState()
	ok, err := st.KVGet(vaultStateKey, vs)
	if err != nil {
		return nil, err
	}
	if !ok {
		return newVaultState(), nil
	}
	vs.TotalShares = copyInt(vs.TotalShares)
	vs.TotalAssets = copyInt(vs.TotalAssets)
	vs.AssetsPerShare = copyInt(vs.AssetsPerShare)
	return vs, nil
}

func storeVaultState(st engineState, vs *VaultState) error {
	return st.KVPut(vaultStateKey, vs)
}

func loadRound(st engineState, kind RoundKind, id uint64) (*Round, bool, error) {
	round := new(Round)
	ok, err := st.KVGet(roundKey(kind, id), round)
	if err != nil || !ok {
		return nil, ok, err
	}
	if round.Participants == nil {
		round.Participants = [][20]byte{}
	}
	return round.Clone(), true, nil
}

func storeRound(st engineState, round *Round) error {
	return st.KVPut(roundKey(round.Kind, round.ID), round)
}

func loadContribution(st engineState, kind RoundKind, id uint64, addr [20]byte) (*big.Int, error) {
	amount := new(big.Int)
	ok, err := st.KVGet(contributionKey(kind, id, addr), amount)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return amount, nil
}

func storeContribution(st engineState, kind RoundKind, id uint64, addr [20]byte, amount *big.Int) error {
	return st.KVPut(contributionKey(kind, id, addr), copyInt(amount))
}
