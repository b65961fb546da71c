package server

import (
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"defipool/bridge"
	"defipool/crypto"
	"defipool/native/vault"
	"defipool/services/vaultd/journal"
)

type roundView struct {
	Kind           string `json:"kind"`
	ID             uint64 `json:"id"`
	Status         string `json:"status"`
	Total          string `json:"total"`
	Participants   int    `json:"participants"`
	ClosedAt       uint64 `json:"closed_at,omitempty"`
	SettledAt      uint64 `json:"settled_at,omitempty"`
	Received       string `json:"received,omitempty"`
	Distributed    string `json:"distributed,omitempty"`
	Dust           string `json:"dust,omitempty"`
	AssetsPerShare string `json:"assets_per_share,omitempty"`
	Manual         bool   `json:"manual,omitempty"`

	Messages []envelopeView `json:"bridge_messages,omitempty"`
}

func newRoundView(round *vault.Round) *roundView {
	if round == nil {
		return nil
	}
	view := &roundView{
		Kind:         round.Kind.String(),
		ID:           round.ID,
		Status:       round.Status.String(),
		Total:        amountString(round.TotalAmount),
		Participants: len(round.Participants),
		ClosedAt:     round.ClosedAt,
		SettledAt:    round.SettledAt,
		Manual:       round.Manual,
	}
	if round.Status == vault.RoundSettled {
		view.Received = amountString(round.Received)
		view.Distributed = amountString(round.Distributed)
		view.Dust = amountString(round.Dust)
		view.AssetsPerShare = amountString(round.AssetsPerShare)
	}
	return view
}

type vaultView struct {
	Vault                string `json:"vault"`
	Remote               string `json:"remote"`
	ShareName            string `json:"share_name"`
	ShareSymbol          string `json:"share_symbol"`
	ShareDecimals        uint8  `json:"share_decimals"`
	CurrentDepositRound  uint64 `json:"current_deposit_round"`
	CurrentWithdrawRound uint64 `json:"current_withdraw_round"`
	TotalShares          string `json:"total_shares"`
	TotalAssets          string `json:"total_assets"`
	AssetsPerShare       string `json:"assets_per_share"`
	Priced               bool   `json:"priced"`
	ShareSupply          string `json:"share_supply"`
	Custody              string `json:"custody"`
	Paused               bool   `json:"paused"`
}

func (s *Server) handleVault(w http.ResponseWriter, r *http.Request) {
	var view vaultView
	err := s.exec.View(func() error {
		engine := s.exec.Engine()
		vs, err := engine.State()
		if err != nil {
			return err
		}
		meta, err := engine.ShareMetadata()
		if err != nil {
			return err
		}
		supply, err := engine.TotalSupply()
		if err != nil {
			return err
		}
		custody, err := s.exec.Token().BalanceOf(engine.VaultAddress())
		if err != nil {
			return err
		}
		view = vaultView{
			Vault:                engine.VaultAddress().String(),
			Remote:               vs.Remote.Hex(),
			ShareName:            meta.Name,
			ShareSymbol:          meta.Symbol,
			ShareDecimals:        meta.Decimals,
			CurrentDepositRound:  vs.CurrentDepositRound,
			CurrentWithdrawRound: vs.CurrentWithdrawRound,
			TotalShares:          amountString(vs.TotalShares),
			TotalAssets:          amountString(vs.TotalAssets),
			AssetsPerShare:       amountString(vs.AssetsPerShare),
			Priced:               vs.Priced,
			ShareSupply:          amountString(supply),
			Custody:              amountString(custody),
			Paused:               s.exec.Pauses().IsPaused("vault"),
		}
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// roundParams resolves {kind}/{id}; id may be "current".
func (s *Server) roundParams(r *http.Request) (vault.RoundKind, uint64, error) {
	kind, err := vault.ParseRoundKind(chi.URLParam(r, "kind"))
	if err != nil {
		return 0, 0, err
	}
	raw := strings.TrimSpace(chi.URLParam(r, "id"))
	if raw == "current" {
		var id uint64
		err := s.exec.View(func() error {
			var err error
			id, err = s.exec.Engine().CurrentRound(kind)
			return err
		})
		return kind, id, err
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: invalid round id %q", errBadRequest, raw)
	}
	return kind, id, nil
}

func (s *Server) handleRound(w http.ResponseWriter, r *http.Request) {
	kind, id, err := s.roundParams(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var (
		round    *vault.Round
		messages []*bridge.Envelope
	)
	if err := s.exec.View(func() error {
		var err error
		round, err = s.exec.Engine().Round(kind, id)
		if err != nil {
			return err
		}
		msgType := bridge.DepositRequest
		if kind == vault.RoundWithdraw {
			msgType = bridge.WithdrawalRequest
		}
		messages, err = s.exec.Outbox().ForRound(msgType, id)
		return err
	}); err != nil {
		writeError(w, err)
		return
	}
	view := newRoundView(round)
	if len(messages) > 0 {
		view.Messages = newEnvelopeViews(messages)
	}
	writeJSON(w, http.StatusOK, view)
}

type participantView struct {
	Index        int    `json:"index"`
	Account      string `json:"account"`
	Contribution string `json:"contribution"`
}

func (s *Server) handleParticipants(w http.ResponseWriter, r *http.Request) {
	kind, id, err := s.roundParams(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var participants []vault.ParticipantContribution
	if err := s.exec.View(func() error {
		var err error
		participants, err = s.exec.Engine().Participants(kind, id)
		return err
	}); err != nil {
		writeError(w, err)
		return
	}
	out := make([]participantView, 0, len(participants))
	for i, p := range participants {
		out = append(out, participantView{Index: i, Account: p.Account.String(), Contribution: amountString(p.Contribution)})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"kind":         kind.String(),
		"round_id":     id,
		"participants": out,
	})
}

type accountView struct {
	Address         string `json:"address"`
	Shares          string `json:"shares"`
	ShareValue      string `json:"share_value"`
	Underlying      string `json:"underlying"`
	Allowance       string `json:"allowance"`
	PendingDeposit  string `json:"pending_deposit"`
	PendingWithdraw string `json:"pending_withdraw"`
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(chi.URLParam(r, "address")))
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	var view accountView
	err = s.exec.View(func() error {
		engine := s.exec.Engine()
		shares, err := engine.BalanceOf(addr)
		if err != nil {
			return err
		}
		value, err := engine.AssetsOf(addr)
		if err != nil {
			return err
		}
		underlying, err := s.exec.Token().BalanceOf(addr)
		if err != nil {
			return err
		}
		allowance, err := s.exec.Token().Allowance(addr, engine.VaultAddress())
		if err != nil {
			return err
		}
		pendingDeposit, err := s.openContribution(vault.RoundDeposit, addr)
		if err != nil {
			return err
		}
		pendingWithdraw, err := s.openContribution(vault.RoundWithdraw, addr)
		if err != nil {
			return err
		}
		view = accountView{
			Address:         addr.String(),
			Shares:          amountString(shares),
			ShareValue:      amountString(value),
			Underlying:      amountString(underlying),
			Allowance:       amountString(allowance),
			PendingDeposit:  amountString(pendingDeposit),
			PendingWithdraw: amountString(pendingWithdraw),
		}
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) openContribution(kind vault.RoundKind, addr crypto.Address) (*big.Int, error) {
	engine := s.exec.Engine()
	id, err := engine.CurrentRound(kind)
	if err != nil {
		return nil, err
	}
	return engine.Contribution(kind, id, addr)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeJSON(w, http.StatusNotImplemented, errorResponse{Error: "journal not configured"})
		return
	}
	q := r.URL.Query()
	filter := journal.EventFilter{
		Type:    strings.TrimSpace(q.Get("type")),
		Kind:    strings.TrimSpace(q.Get("kind")),
		Account: strings.TrimSpace(q.Get("account")),
	}
	if raw := q.Get("after"); raw != "" {
		after, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, fmt.Errorf("%w: invalid after", errBadRequest))
			return
		}
		filter.After = after
	}
	if raw := q.Get("round"); raw != "" {
		round, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, fmt.Errorf("%w: invalid round", errBadRequest))
			return
		}
		filter.RoundID = &round
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, fmt.Errorf("%w: invalid limit", errBadRequest))
			return
		}
		filter.Limit = limit
	}
	records, err := s.journal.Events(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	type eventView struct {
		ID         uint64            `json:"id"`
		Batch      string            `json:"batch"`
		Operation  string            `json:"operation"`
		Type       string            `json:"type"`
		Attributes map[string]string `json:"attributes"`
		CreatedAt  string            `json:"created_at"`
	}
	out := make([]eventView, 0, len(records))
	for _, rec := range records {
		attrs, err := rec.DecodeAttributes()
		if err != nil {
			writeError(w, err)
			return
		}
		out = append(out, eventView{
			ID:         rec.ID,
			Batch:      rec.Batch.String(),
			Operation:  rec.Operation,
			Type:       rec.Type,
			Attributes: attrs,
			CreatedAt:  rec.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": out})
}
