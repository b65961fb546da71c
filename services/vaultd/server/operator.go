package server

import (
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"defipool/crypto"
	"defipool/native/vault"
	"defipool/services/vaultd/export"
)

type settleRequest struct {
	RoundID uint64 `json:"round_id"`
	Amount  string `json:"amount"`
}

type remoteRequest struct {
	Address string `json:"address"`
}

type pauseRequest struct {
	Paused bool `json:"paused"`
}

type exportRequest struct {
	Kind    string `json:"kind"`
	RoundID uint64 `json:"round_id"`
}

func (s *Server) handleBridgeDeposits(w http.ResponseWriter, r *http.Request) {
	s.bridgeRound(w, r, "bridge-deposits", vault.RoundDeposit)
}

func (s *Server) handleBridgeWithdrawals(w http.ResponseWriter, r *http.Request) {
	s.bridgeRound(w, r, "bridge-withdrawals", vault.RoundWithdraw)
}

func (s *Server) bridgeRound(w http.ResponseWriter, r *http.Request, op string, kind vault.RoundKind) {
	from, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var closed *vault.Round
	var next uint64
	err = s.exec.Execute(r.Context(), op, func() error {
		current, err := s.exec.Engine().CurrentRound(kind)
		if err != nil {
			return err
		}
		if kind == vault.RoundDeposit {
			next, err = s.exec.Engine().DepositAssetsToL1(from)
		} else {
			next, err = s.exec.Engine().SendWithdrawalRequestToL1(from)
		}
		if err != nil {
			return err
		}
		closed, err = s.exec.Engine().Round(kind, current)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"closed":        newRoundView(closed),
		"next_round_id": next,
	})
}

func (s *Server) handleDistributeShare(w http.ResponseWriter, r *http.Request) {
	s.manualSettle(w, r, "distribute-share", vault.RoundDeposit)
}

func (s *Server) handleDistributeAsset(w http.ResponseWriter, r *http.Request) {
	s.manualSettle(w, r, "distribute-asset", vault.RoundWithdraw)
}

func (s *Server) manualSettle(w http.ResponseWriter, r *http.Request, op string, kind vault.RoundKind) {
	var req settleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	from, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var settled *vault.Round
	err = s.exec.Execute(r.Context(), op, func() error {
		engine := s.exec.Engine()
		var err error
		if kind == vault.RoundDeposit {
			err = engine.DistributeShare(from, req.RoundID, amount)
		} else {
			err = engine.DistributeUnderlying(from, req.RoundID, amount)
		}
		if err != nil {
			return err
		}
		settled, err = engine.Round(kind, req.RoundID)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newRoundView(settled))
}

func (s *Server) handleUpdateRemote(w http.ResponseWriter, r *http.Request) {
	var req remoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	raw := strings.TrimSpace(req.Address)
	if !common.IsHexAddress(raw) {
		writeError(w, fmt.Errorf("%w: address must be a hex L1 address", errBadRequest))
		return
	}
	from, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	remote := common.HexToAddress(raw)
	if err := s.exec.Execute(r.Context(), "update-remote", func() error {
		return s.exec.Engine().UpdateRemote(from, remote)
	}); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"remote": remote.Hex()})
}

// handlePause toggles the user-facing vault operations. Settlement and
// bridging keep working while paused.
func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	var req pauseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	from, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.requireOperator(from); err != nil {
		writeError(w, err)
		return
	}
	s.exec.Pauses().Set("vault", req.Paused)
	s.logger.Info("vault pause toggled", "operator", from.String(), "paused", req.Paused)
	writeJSON(w, http.StatusOK, map[string]bool{"paused": req.Paused})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if s.exporter == nil {
		writeJSON(w, http.StatusNotImplemented, errorResponse{Error: "export not configured"})
		return
	}
	var req exportRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	kind, err := vault.ParseRoundKind(req.Kind)
	if err != nil {
		writeError(w, err)
		return
	}
	var report *export.Report
	if err := s.exec.View(func() error {
		var err error
		report, err = export.Collect(s.exec.Engine(), kind, req.RoundID)
		return err
	}); err != nil {
		writeError(w, err)
		return
	}
	manifest, err := s.exporter.Write(report)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, manifest)
}

// handleBridgeCredit stands in for the token bridge crediting L1 returns to
// the vault. Only routed in dev mode.
func (s *Server) handleBridgeCredit(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.exec.CreditVault(r.Context(), amount); err != nil {
		writeError(w, err)
		return
	}
	var balance *big.Int
	if err := s.exec.View(func() error {
		var err error
		balance, err = s.exec.Token().BalanceOf(s.exec.Engine().VaultAddress())
		return err
	}); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"vault_balance": balance.String()})
}

func (s *Server) requireOperator(addr crypto.Address) error {
	return s.exec.View(func() error {
		ok, err := s.exec.Engine().IsOperator(addr)
		if err != nil {
			return err
		}
		if !ok {
			return vault.ErrUnauthorized
		}
		return nil
	})
}
