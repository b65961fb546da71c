package vault

import "strconv"

var (
	vaultStateKey      = []byte("vault/state")
	roundPrefix        = []byte("vault/round/")
	contributionPrefix = []byte("vault/contribution/")
	shareSupplyKey     = []byte("vault/shares/supply")
)

// RoleOperator is the state role holding the single privileged identity.
const RoleOperator = "VAULT_OPERATOR"

func roundKey(kind RoundKind, id uint64) []byte {
	buf := append([]byte(nil), roundPrefix...)
	buf = append(buf, kind.String()...)
	buf = append(buf, '/')
	return strconv.AppendUint(buf, id, 10)
}

func contributionKey(kind RoundKind, id uint64, addr [20]byte) []byte {
	buf := append([]byte(nil), contributionPrefix...)
	buf = append(buf, kind.String()...)
	buf = append(buf, '/')
	buf = strconv.AppendUint(buf, id, 10)
	buf = append(buf, '/')
	return append(buf, addr[:]...)
}
