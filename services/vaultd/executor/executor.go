package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"defipool/bridge"
	"defipool/config"
	"defipool/core/events"
	"defipool/core/state"
	"defipool/crypto"
	nativecommon "defipool/native/common"
	"defipool/native/token"
	"defipool/native/vault"
	"defipool/observability"
	"defipool/services/vaultd/inbox"
	"defipool/services/vaultd/journal"
	"defipool/storage"
)

// ErrDuplicate is returned for an inbound message that was already applied.
var ErrDuplicate = errors.New("executor: inbound message already applied")

// Journal receives committed activity.
type Journal interface {
	AppendEvents(ctx context.Context, operation string, evts []events.Event) (uuid.UUID, error)
	RecordOutbound(ctx context.Context, env *bridge.Envelope) error
	RecordInbound(ctx context.Context, delivery journal.InboundDelivery) error
}

// Inbox deduplicates inbound deliveries.
type Inbox interface {
	Reserve(id common.Hash) error
	MarkApplied(id common.Hash) error
	Release(id common.Hash) error
}

// Options carries the executor's collaborators. All are optional.
type Options struct {
	Journal Journal
	Inbox   Inbox
	Emitter events.Emitter
	Metrics *observability.VaultMetrics
	Logger  *slog.Logger
	Now     func() time.Time
}

// Executor serialises vault operations. Each operation runs against the
// state overlay and is committed to the database only when it succeeds, so
// a crash or failure never leaves a partial write behind.
type Executor struct {
	mu         sync.RWMutex
	state      *state.Manager
	engine     *vault.Engine
	token      *token.Ledger
	outbox     *bridge.Outbox
	dispatcher *bridge.Dispatcher
	pauses     *nativecommon.Pauses
	pending    *events.Recorder
	authority  crypto.Address

	journal    Journal
	inbox      Inbox
	downstream events.Emitter
	metrics    *observability.VaultMetrics
	logger     *slog.Logger
}

// Bootstrap opens vault state on db, applies the genesis when the vault is
// new and wires the engine.
func Bootstrap(db storage.Database, genesis *config.Genesis, opts Options) (*Executor, error) {
	if db == nil {
		return nil, fmt.Errorf("executor: database required")
	}
	if genesis == nil {
		return nil, fmt.Errorf("executor: genesis required")
	}
	mgr := state.NewManager(db)
	if err := genesis.Apply(mgr); err != nil {
		mgr.Discard()
		return nil, fmt.Errorf("executor: apply genesis: %w", err)
	}
	if err := mgr.Commit(); err != nil {
		return nil, fmt.Errorf("executor: commit genesis: %w", err)
	}
	params, err := genesis.Vault.Parse()
	if err != nil {
		return nil, err
	}
	var authority crypto.Address
	if raw := strings.TrimSpace(genesis.Underlying.MintAuthority); raw != "" {
		if authority, err = crypto.DecodeAddress(raw); err != nil {
			return nil, err
		}
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Emitter == nil {
		opts.Emitter = events.NoopEmitter{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	ex := &Executor{
		state:      mgr,
		token:      token.NewLedger(mgr, params.UnderlyingSymbol),
		outbox:     bridge.NewOutbox(mgr),
		pauses:     genesis.PauseSet(),
		pending:    &events.Recorder{},
		authority:  authority,
		journal:    opts.Journal,
		inbox:      opts.Inbox,
		downstream: opts.Emitter,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
	}
	ex.outbox.SetClock(opts.Now)

	engine := vault.NewEngine(params.VaultAddress, params.TokenBridge, params.ShareSymbol)
	engine.SetState(mgr)
	engine.SetToken(ex.token)
	engine.SetSender(ex.outbox)
	engine.SetEmitter(ex.pending)
	engine.SetPauses(ex.pauses)
	engine.SetNowFunc(opts.Now)
	ex.engine = engine

	dispatcher, err := bridge.NewDispatcher(engine, bridge.Handlers{
		DistributeShare: engine.HandleDistributeShare,
		DistributeAsset: engine.HandleDistributeAsset,
	})
	if err != nil {
		return nil, err
	}
	ex.dispatcher = dispatcher
	return ex, nil
}

// Engine exposes the engine for use inside Execute and View callbacks.
func (e *Executor) Engine() *vault.Engine { return e.engine }

// Token exposes the underlying token ledger.
func (e *Executor) Token() *token.Ledger { return e.token }

// Outbox exposes the outbound bridge queue.
func (e *Executor) Outbox() *bridge.Outbox { return e.outbox }

// Pauses exposes the module pause switchboard.
func (e *Executor) Pauses() *nativecommon.Pauses { return e.pauses }

// Execute runs fn as one atomic operation named op. Events raised by fn are
// forwarded downstream only after the commit succeeds.
func (e *Executor) Execute(ctx context.Context, op string, fn func() error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := time.Now()
	err := e.executeLocked(ctx, op, fn)
	e.metrics.ObserveOperation(op, err, time.Since(start))
	return err
}

func (e *Executor) executeLocked(ctx context.Context, op string, fn func() error) error {
	e.pending.Events = nil
	if err := fn(); err != nil {
		e.state.Discard()
		e.pending.Events = nil
		e.logger.Warn("vault operation rejected", slog.String("operation", op), slog.String("error", err.Error()))
		return err
	}
	if err := e.state.Commit(); err != nil {
		e.state.Discard()
		e.pending.Events = nil
		return fmt.Errorf("executor: commit %s: %w", op, err)
	}
	emitted := e.pending.Events
	e.pending.Events = nil
	for _, evt := range emitted {
		e.downstream.Emit(evt)
	}
	e.record(ctx, op, emitted)
	e.logger.Info("vault operation committed", slog.String("operation", op), slog.Int("events", len(emitted)))
	return nil
}

// record writes committed events to the journal. The journal is derived
// data, so failures are logged rather than surfaced.
func (e *Executor) record(ctx context.Context, op string, emitted []events.Event) {
	if e.journal == nil || len(emitted) == 0 {
		return
	}
	if _, err := e.journal.AppendEvents(ctx, op, emitted); err != nil {
		e.logger.Error("journal append failed", slog.String("operation", op), slog.String("error", err.Error()))
	}
	for _, evt := range emitted {
		msg, ok := evt.(events.BridgeMessage)
		if !ok || msg.EventKind != events.TypeBridgeMessageSent {
			continue
		}
		env, found, err := e.outbox.Get(msg.Sequence)
		if err != nil || !found {
			e.logger.Error("outbox lookup failed", slog.Uint64("round", msg.RoundID), slog.Any("error", err))
			continue
		}
		if err := e.journal.RecordOutbound(ctx, env); err != nil {
			e.logger.Error("journal outbound failed", slog.String("error", err.Error()))
		}
	}
}

// View runs fn under a read lock. fn must not write.
func (e *Executor) View(fn func() error) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return fn()
}

// Approve lets the vault pull amount of underlying from owner.
func (e *Executor) Approve(ctx context.Context, owner crypto.Address, amount *big.Int) error {
	return e.Execute(ctx, "approve", func() error {
		return e.token.Approve(owner, e.engine.VaultAddress(), amount)
	})
}

// CreditVault mints underlying into the vault as the token bridge would when
// L1 returns assets. Only available when the genesis names a mint authority.
func (e *Executor) CreditVault(ctx context.Context, amount *big.Int) error {
	if e.authority.IsZero() {
		return fmt.Errorf("executor: underlying mint authority not configured")
	}
	return e.Execute(ctx, "bridge-credit", func() error {
		return e.token.Mint(e.authority, e.engine.VaultAddress(), amount)
	})
}

// Deliver applies an inbound L1 message exactly once.
func (e *Executor) Deliver(ctx context.Context, msg bridge.InboundMessage) error {
	id := msg.ID()
	selector := msg.Selector.String()
	if e.inbox != nil {
		if err := e.inbox.Reserve(id); err != nil {
			if errors.Is(err, inbox.ErrAlreadyApplied) {
				e.metrics.ObserveInbound(selector, "duplicate")
				return ErrDuplicate
			}
			e.metrics.ObserveInbound(selector, "busy")
			return err
		}
	}
	err := e.Execute(ctx, "inbound:"+selector, func() error {
		return e.dispatcher.Dispatch(msg)
	})
	delivery := journal.InboundDelivery{
		MessageID: id.Hex(),
		From:      msg.From.Hex(),
		Selector:  selector,
		RoundID:   msg.RoundID,
		Amount:    amountOrZero(msg.Amount),
		Nonce:     msg.Nonce,
		Outcome:   journal.OutcomeApplied,
	}
	if err != nil {
		delivery.Outcome = journal.OutcomeRejected
		delivery.Error = err.Error()
		e.metrics.ObserveInbound(selector, journal.OutcomeRejected)
		if e.inbox != nil {
			if releaseErr := e.inbox.Release(id); releaseErr != nil {
				e.logger.Error("inbox release failed", slog.String("error", releaseErr.Error()))
			}
		}
	} else {
		e.metrics.ObserveInbound(selector, journal.OutcomeApplied)
		if e.inbox != nil {
			if markErr := e.inbox.MarkApplied(id); markErr != nil {
				e.logger.Error("inbox mark applied failed", slog.String("error", markErr.Error()))
			}
		}
	}
	if e.journal != nil {
		if recErr := e.journal.RecordInbound(ctx, delivery); recErr != nil {
			e.logger.Error("journal inbound failed", slog.String("error", recErr.Error()))
		}
	}
	return err
}

func amountOrZero(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
