package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"defipool/bridge"
	"defipool/services/vaultd/executor"
)

type envelopeView struct {
	Sequence  uint64 `json:"sequence"`
	ID        string `json:"id"`
	To        string `json:"to"`
	Type      string `json:"type"`
	RoundID   uint64 `json:"round_id"`
	Amount    string `json:"amount"`
	Payload   string `json:"payload"`
	CreatedAt string `json:"created_at"`
}

func (s *Server) handleOutbox(w http.ResponseWriter, r *http.Request) {
	var after uint64
	if raw := r.URL.Query().Get("after"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, fmt.Errorf("%w: invalid after", errBadRequest))
			return
		}
		after = parsed
	}
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, fmt.Errorf("%w: invalid limit", errBadRequest))
			return
		}
		limit = parsed
	}
	var envelopes []*bridge.Envelope
	if err := s.exec.View(func() error {
		var err error
		envelopes, err = s.exec.Outbox().List(after, limit)
		return err
	}); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"messages": newEnvelopeViews(envelopes)})
}

func newEnvelopeViews(envelopes []*bridge.Envelope) []envelopeView {
	out := make([]envelopeView, 0, len(envelopes))
	for _, env := range envelopes {
		out = append(out, envelopeView{
			Sequence:  env.Sequence,
			ID:        env.ID.Hex(),
			To:        env.To.Hex(),
			Type:      env.Type.String(),
			RoundID:   env.RoundID,
			Amount:    amountString(env.Amount),
			Payload:   common.Bytes2Hex(env.Payload),
			CreatedAt: time.Unix(env.CreatedAt, 0).UTC().Format(time.RFC3339),
		})
	}
	return out
}

type inboundRequest struct {
	From     string `json:"from"`
	Selector string `json:"selector"`
	RoundID  uint64 `json:"round_id"`
	Amount   string `json:"amount"`
	Nonce    uint64 `json:"nonce"`
}

func (s *Server) handleInbound(w http.ResponseWriter, r *http.Request) {
	var req inboundRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	from := strings.TrimSpace(req.From)
	if !common.IsHexAddress(from) {
		writeError(w, fmt.Errorf("%w: from must be a hex L1 address", errBadRequest))
		return
	}
	selector, err := bridge.ParseSelector(req.Selector)
	if err != nil {
		writeError(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	msg := bridge.InboundMessage{
		From:     common.HexToAddress(from),
		Selector: selector,
		RoundID:  req.RoundID,
		Amount:   amount,
		Nonce:    req.Nonce,
	}
	status := "applied"
	if err := s.exec.Deliver(r.Context(), msg); err != nil {
		if !errors.Is(err, executor.ErrDuplicate) {
			writeError(w, err)
			return
		}
		status = "duplicate"
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message_id": msg.ID().Hex(),
		"status":     status,
	})
}
