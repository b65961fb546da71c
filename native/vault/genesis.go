package vault

type genesisState interface {
	engineState
	RegisterToken(symbol, name string, decimals uint8) error
	ReplaceRole(role string, addr []byte) error
}

// InitGenesis registers the share token, installs the operator and records
// the remote contract. It is a no-op once vault state exists.
func InitGenesis(st genesisState, params Params) error {
	if st == nil {
		return errNilState
	}
	if ok, err := st.KVGet(vaultStateKey, nil); err != nil {
		return err
	} else if ok {
		return nil
	}
	if err := st.RegisterToken(params.ShareSymbol, params.ShareName, params.ShareDecimals); err != nil {
		return err
	}
	if err := st.ReplaceRole(RoleOperator, params.Operator.Bytes()); err != nil {
		return err
	}
	vs := newVaultState()
	vs.Remote = params.RemoteContract
	return storeVaultState(st, vs)
}
