package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"defipool/bridge"
	"defipool/crypto"
	"defipool/gateway/middleware"
	nativecommon "defipool/native/common"
	"defipool/native/token"
	"defipool/native/vault"
	"defipool/services/vaultd/export"
	"defipool/services/vaultd/inbox"
)

var errBadRequest = errors.New("bad request")

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorResponse{Error: err.Error()})
}

// statusFor maps error classes onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, vault.ErrValidation),
		errors.Is(err, bridge.ErrInvalidMessage),
		errors.Is(err, bridge.ErrUnknownSelector),
		errors.Is(err, token.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, vault.ErrAuthorization),
		errors.Is(err, bridge.ErrUnknownRemote),
		errors.Is(err, token.ErrMintUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, vault.ErrInsufficientBalance),
		errors.Is(err, token.ErrInsufficientBalance),
		errors.Is(err, token.ErrInsufficientAllowance):
		return http.StatusUnprocessableEntity
	case errors.Is(err, vault.ErrState),
		errors.Is(err, export.ErrNotSettled),
		errors.Is(err, inbox.ErrInFlight):
		return http.StatusConflict
	case errors.Is(err, nativecommon.ErrModulePaused):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// caller resolves the authenticated account.
func caller(r *http.Request) (crypto.Address, error) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		return crypto.Address{}, fmt.Errorf("%w: missing principal", errBadRequest)
	}
	addr, err := crypto.DecodeAddress(principal.Subject)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("%w: token subject is not an account: %v", errBadRequest, err)
	}
	return addr, nil
}

func parseAmount(field, raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: %s required", errBadRequest, field)
	}
	v, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %s must be a base-10 integer", errBadRequest, field)
	}
	return v, nil
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
