package server

import (
	"math/big"
	"net/http"

	"defipool/crypto"
	"defipool/native/vault"
)

type amountRequest struct {
	Amount string `json:"amount"`
}

type sharesRequest struct {
	Shares string `json:"shares"`
}

type assetsRequest struct {
	Assets string `json:"assets"`
}

type contributionResponse struct {
	Kind       string `json:"kind"`
	RoundID    uint64 `json:"round_id"`
	RoundTotal string `json:"round_total"`
	Assets     string `json:"assets,omitempty"`
	Shares     string `json:"shares,omitempty"`
}

// userOp runs fn for the authenticated caller and reports the caller's open
// round of kind afterwards.
func (s *Server) userOp(w http.ResponseWriter, r *http.Request, op string, kind vault.RoundKind, fn func(caller crypto.Address) (*contributionResponse, error)) {
	from, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var resp *contributionResponse
	err = s.exec.Execute(r.Context(), op, func() error {
		out, err := fn(from)
		if err != nil {
			return err
		}
		id, err := s.exec.Engine().CurrentRound(kind)
		if err != nil {
			return err
		}
		out.Kind = kind.String()
		out.RoundID = id
		resp = out
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
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
	s.userOp(w, r, "deposit", vault.RoundDeposit, func(from crypto.Address) (*contributionResponse, error) {
		total, err := s.exec.Engine().Deposit(from, amount)
		if err != nil {
			return nil, err
		}
		return &contributionResponse{RoundTotal: total.String()}, nil
	})
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	var req sharesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	shares, err := parseAmount("shares", req.Shares)
	if err != nil {
		writeError(w, err)
		return
	}
	s.userOp(w, r, "mint", vault.RoundDeposit, func(from crypto.Address) (*contributionResponse, error) {
		assets, total, err := s.exec.Engine().Mint(from, shares)
		if err != nil {
			return nil, err
		}
		return &contributionResponse{RoundTotal: total.String(), Assets: assets.String()}, nil
	})
}

func (s *Server) handleCancelDeposit(w http.ResponseWriter, r *http.Request) {
	s.userOp(w, r, "cancel-deposit", vault.RoundDeposit, func(from crypto.Address) (*contributionResponse, error) {
		total, err := s.exec.Engine().CancelDeposit(from)
		if err != nil {
			return nil, err
		}
		return &contributionResponse{RoundTotal: total.String()}, nil
	})
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	var req sharesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	shares, err := parseAmount("shares", req.Shares)
	if err != nil {
		writeError(w, err)
		return
	}
	s.userOp(w, r, "redeem", vault.RoundWithdraw, func(from crypto.Address) (*contributionResponse, error) {
		total, err := s.exec.Engine().Redeem(from, shares)
		if err != nil {
			return nil, err
		}
		return &contributionResponse{RoundTotal: total.String()}, nil
	})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req assetsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	assets, err := parseAmount("assets", req.Assets)
	if err != nil {
		writeError(w, err)
		return
	}
	s.userOp(w, r, "withdraw", vault.RoundWithdraw, func(from crypto.Address) (*contributionResponse, error) {
		shares, total, err := s.exec.Engine().Withdraw(from, assets)
		if err != nil {
			return nil, err
		}
		return &contributionResponse{RoundTotal: total.String(), Shares: shares.String()}, nil
	})
}

func (s *Server) handleCancelWithdraw(w http.ResponseWriter, r *http.Request) {
	s.userOp(w, r, "cancel-withdraw", vault.RoundWithdraw, func(from crypto.Address) (*contributionResponse, error) {
		total, err := s.exec.Engine().CancelWithdraw(from)
		if err != nil {
			return nil, err
		}
		return &contributionResponse{RoundTotal: total.String()}, nil
	})
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
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
	from, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.exec.Approve(r.Context(), from, amount); err != nil {
		writeError(w, err)
		return
	}
	var allowance *big.Int
	if err := s.exec.View(func() error {
		var err error
		allowance, err = s.exec.Token().Allowance(from, s.exec.Engine().VaultAddress())
		return err
	}); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"spender":   s.exec.Engine().VaultAddress().String(),
		"allowance": allowance.String(),
	})
}
