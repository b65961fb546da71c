package vault

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"defipool/bridge"
	"defipool/core/events"
	"defipool/crypto"
	nativecommon "defipool/native/common"
)

const moduleName = "vault"

// Token is the underlying asset collaborator.
type Token interface {
	TransferFrom(spender, owner, recipient crypto.Address, amount *big.Int) error
	Transfer(sender, recipient crypto.Address, amount *big.Int) error
	BalanceOf(addr crypto.Address) (*big.Int, error)
	Decimals() (uint8, error)
}

// MessageSender queues outbound bridge requests.
type MessageSender interface {
	Send(to common.Address, msg bridge.Message) (*bridge.Envelope, error)
}

// Engine is the vault's public operation surface. Every state-changing call
// runs against a state snapshot and either completes in full or leaves state
// untouched. Events are emitted only after success.
type Engine struct {
	state       engineState
	token       Token
	sender      MessageSender
	emitter     events.Emitter
	pauses      nativecommon.PauseView
	vault       crypto.Address
	tokenBridge crypto.Address
	nowFn       func() time.Time

	rounds     *RoundLedger
	shares     *ShareLedger
	settlement *SettlementEngine
	shareSym   string
}

// NewEngine constructs a vault engine holding custody at vaultAddr and
// forwarding bridged deposits to tokenBridge.
func NewEngine(vaultAddr, tokenBridge crypto.Address, shareSymbol string) *Engine {
	return &Engine{
		vault:       vaultAddr,
		tokenBridge: tokenBridge,
		shareSym:    shareSymbol,
		emitter:     events.NoopEmitter{},
		nowFn:       time.Now,
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(st engineState) {
	e.state = st
	e.rounds = NewRoundLedger(st)
	e.shares = NewShareLedger(st, e.shareSym)
	e.settlement = NewSettlementEngine(e.rounds)
}

// SetToken wires the underlying token.
func (e *Engine) SetToken(token Token) { e.token = token }

// SetSender wires the outbound bridge queue.
func (e *Engine) SetSender(sender MessageSender) { e.sender = sender }

func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetNowFunc overrides the clock used to stamp round transitions.
func (e *Engine) SetNowFunc(now func() time.Time) {
	if now != nil {
		e.nowFn = now
	}
}

// VaultAddress returns the custody account.
func (e *Engine) VaultAddress() crypto.Address { return e.vault }

func (e *Engine) now() uint64 {
	return uint64(e.nowFn().UTC().Unix())
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.token == nil {
		return errNilToken
	}
	return nil
}

// atomic runs fn against a snapshot. On error every write fn made is
// reverted; on success the returned events are emitted in order.
func (e *Engine) atomic(fn func(vs *VaultState) ([]events.Event, error)) error {
	if err := e.ready(); err != nil {
		return err
	}
	snap := e.state.Snapshot()
	vs, err := loadVaultState(e.state)
	if err == nil {
		var emitted []events.Event
		emitted, err = fn(vs)
		if err == nil {
			for _, evt := range emitted {
				e.emitter.Emit(evt)
			}
			return nil
		}
	}
	e.state.RevertToSnapshot(snap)
	return err
}

func (e *Engine) requireUser(caller crypto.Address) error {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if caller.IsZero() {
		return ErrZeroAddress
	}
	return nil
}

func (e *Engine) requireOperator(caller crypto.Address) error {
	if caller.IsZero() || !e.state.HasRole(RoleOperator, caller.Bytes()) {
		return ErrUnauthorized
	}
	return nil
}

func (e *Engine) account(raw [20]byte) crypto.Address {
	return crypto.AddressFromArray(crypto.PoolPrefix, raw)
}

// Deposit pulls amount of underlying from caller into the open deposit round
// and returns the new round total. The caller must have approved the vault.
func (e *Engine) Deposit(caller crypto.Address, amount *big.Int) (*big.Int, error) {
	if err := e.requireUser(caller); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	var total *big.Int
	err := e.atomic(func(vs *VaultState) ([]events.Event, error) {
		evt, err := e.depositUnderlying(vs, caller, amount, "deposit")
		if err != nil {
			return nil, err
		}
		total = evt.RoundTotal
		return []events.Event{evt}, nil
	})
	return total, err
}

// Mint buys shares at the current rate. The asset cost joins the open deposit
// round, so the shares arrive with the next deposit settlement. It returns
// the assets pulled and the new round total.
func (e *Engine) Mint(caller crypto.Address, shares *big.Int) (*big.Int, *big.Int, error) {
	if err := e.requireUser(caller); err != nil {
		return nil, nil, err
	}
	if shares == nil || shares.Sign() <= 0 {
		return nil, nil, ErrInvalidAmount
	}
	var assets, total *big.Int
	err := e.atomic(func(vs *VaultState) ([]events.Event, error) {
		cost, err := e.settlement.ConvertSharesToAssets(vs, shares)
		if err != nil {
			return nil, err
		}
		if cost.Sign() == 0 {
			return nil, fmt.Errorf("%w: %s shares price to zero assets", ErrInvalidAmount, shares)
		}
		evt, err := e.depositUnderlying(vs, caller, cost, "mint")
		if err != nil {
			return nil, err
		}
		assets, total = cost, evt.RoundTotal
		return []events.Event{evt}, nil
	})
	return assets, total, err
}

func (e *Engine) depositUnderlying(vs *VaultState, caller crypto.Address, amount *big.Int, source string) (events.VaultContribution, error) {
	if _, err := e.rounds.currentOpen(vs, RoundDeposit); err != nil {
		return events.VaultContribution{}, err
	}
	if err := e.token.TransferFrom(e.vault, caller, e.vault, amount); err != nil {
		return events.VaultContribution{}, fmt.Errorf("vault: pull underlying: %w", err)
	}
	round, err := e.rounds.AddContribution(vs, RoundDeposit, caller.Array(), amount)
	if err != nil {
		return events.VaultContribution{}, err
	}
	return events.VaultContribution{
		EventKind:  events.TypeVaultDeposited,
		Account:    caller,
		RoundID:    round.ID,
		Amount:     new(big.Int).Set(amount),
		RoundTotal: copyInt(round.TotalAmount),
		Source:     source,
	}, nil
}

// CancelDeposit refunds caller's whole contribution to the open deposit round
// and returns the new round total.
func (e *Engine) CancelDeposit(caller crypto.Address) (*big.Int, error) {
	if err := e.requireUser(caller); err != nil {
		return nil, err
	}
	var total *big.Int
	err := e.atomic(func(vs *VaultState) ([]events.Event, error) {
		refund, round, err := e.rounds.RemoveContribution(vs, RoundDeposit, caller.Array())
		if err != nil {
			return nil, err
		}
		if err := e.token.Transfer(e.vault, caller, refund); err != nil {
			return nil, fmt.Errorf("vault: refund underlying: %w", err)
		}
		total = copyInt(round.TotalAmount)
		return []events.Event{events.VaultContribution{
			EventKind:  events.TypeVaultDepositCancelled,
			Account:    caller,
			RoundID:    round.ID,
			Amount:     refund,
			RoundTotal: total,
		}}, nil
	})
	return total, err
}

// Redeem burns shares from caller and queues them in the open withdraw round.
// It returns the new round total in shares.
func (e *Engine) Redeem(caller crypto.Address, shares *big.Int) (*big.Int, error) {
	if err := e.requireUser(caller); err != nil {
		return nil, err
	}
	if shares == nil || shares.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	var total *big.Int
	err := e.atomic(func(vs *VaultState) ([]events.Event, error) {
		evt, err := e.queueShares(vs, caller, shares, "redeem")
		if err != nil {
			return nil, err
		}
		total = evt.RoundTotal
		return []events.Event{evt}, nil
	})
	return total, err
}

// Withdraw is Redeem expressed in underlying units. It returns the shares
// queued and the new round total.
func (e *Engine) Withdraw(caller crypto.Address, assets *big.Int) (*big.Int, *big.Int, error) {
	if err := e.requireUser(caller); err != nil {
		return nil, nil, err
	}
	if assets == nil || assets.Sign() <= 0 {
		return nil, nil, ErrInvalidAmount
	}
	var shares, total *big.Int
	err := e.atomic(func(vs *VaultState) ([]events.Event, error) {
		converted, err := e.settlement.ConvertAssetsToShares(vs, assets)
		if err != nil {
			return nil, err
		}
		if converted.Sign() == 0 {
			return nil, fmt.Errorf("%w: %s assets price to zero shares", ErrInvalidAmount, assets)
		}
		evt, err := e.queueShares(vs, caller, converted, "withdraw")
		if err != nil {
			return nil, err
		}
		shares, total = converted, evt.RoundTotal
		return []events.Event{evt}, nil
	})
	return shares, total, err
}

func (e *Engine) queueShares(vs *VaultState, caller crypto.Address, shares *big.Int, source string) (events.VaultContribution, error) {
	if _, err := e.rounds.currentOpen(vs, RoundWithdraw); err != nil {
		return events.VaultContribution{}, err
	}
	if err := e.shares.Burn(caller, shares); err != nil {
		return events.VaultContribution{}, err
	}
	round, err := e.rounds.AddContribution(vs, RoundWithdraw, caller.Array(), shares)
	if err != nil {
		return events.VaultContribution{}, err
	}
	return events.VaultContribution{
		EventKind:  events.TypeVaultRedeemRequested,
		Account:    caller,
		RoundID:    round.ID,
		Amount:     new(big.Int).Set(shares),
		RoundTotal: copyInt(round.TotalAmount),
		Source:     source,
	}, nil
}

// CancelWithdraw mints caller's queued shares back and returns the new round
// total.
func (e *Engine) CancelWithdraw(caller crypto.Address) (*big.Int, error) {
	if err := e.requireUser(caller); err != nil {
		return nil, err
	}
	var total *big.Int
	err := e.atomic(func(vs *VaultState) ([]events.Event, error) {
		shares, round, err := e.rounds.RemoveContribution(vs, RoundWithdraw, caller.Array())
		if err != nil {
			return nil, err
		}
		if err := e.shares.Mint(caller, shares); err != nil {
			return nil, err
		}
		total = copyInt(round.TotalAmount)
		return []events.Event{events.VaultContribution{
			EventKind:  events.TypeVaultWithdrawCancelled,
			Account:    caller,
			RoundID:    round.ID,
			Amount:     shares,
			RoundTotal: total,
		}}, nil
	})
	return total, err
}

// DepositAssetsToL1 closes the open deposit round, hands its underlying to
// the token bridge and queues a deposit request. It returns the id of the
// new open deposit round.
func (e *Engine) DepositAssetsToL1(caller crypto.Address) (uint64, error) {
	return e.bridgeRound(caller, RoundDeposit)
}

// SendWithdrawalRequestToL1 closes the open withdraw round and queues a
// withdrawal request for its shares. It returns the id of the new open
// withdraw round.
func (e *Engine) SendWithdrawalRequestToL1(caller crypto.Address) (uint64, error) {
	return e.bridgeRound(caller, RoundWithdraw)
}

func (e *Engine) bridgeRound(caller crypto.Address, kind RoundKind) (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	if e.sender == nil {
		return 0, errNilSender
	}
	if err := e.requireOperator(caller); err != nil {
		return 0, err
	}
	var next uint64
	err := e.atomic(func(vs *VaultState) ([]events.Event, error) {
		if vs.Remote == (common.Address{}) {
			return nil, ErrRemoteNotConfigured
		}
		round, err := e.rounds.Close(vs, kind, e.now())
		if err != nil {
			return nil, err
		}
		msgType := bridge.WithdrawalRequest
		if kind == RoundDeposit {
			msgType = bridge.DepositRequest
			if err := e.token.Transfer(e.vault, e.tokenBridge, round.TotalAmount); err != nil {
				return nil, fmt.Errorf("vault: bridge underlying: %w", err)
			}
		}
		env, err := e.sender.Send(vs.Remote, bridge.Message{Type: msgType, RoundID: round.ID, Amount: round.TotalAmount})
		if err != nil {
			return nil, fmt.Errorf("vault: send %s: %w", msgType, err)
		}
		if err := storeVaultState(e.state, vs); err != nil {
			return nil, err
		}
		next = vs.CurrentRound(kind)
		return []events.Event{
			events.VaultRoundClosed{Kind: kind.String(), RoundID: round.ID, Total: copyInt(round.TotalAmount), NextRoundID: next},
			events.BridgeMessage{
				EventKind:   events.TypeBridgeMessageSent,
				ID:          env.ID,
				Sequence:    env.Sequence,
				Counterpart: env.To,
				MessageType: env.Type.String(),
				RoundID:     env.RoundID,
				Amount:      env.Amount,
			},
		}, nil
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}

// HandleDistributeShare settles a closed deposit round with the shares L1
// bought for it. A round that is not Closed fails with ErrAlreadySettled.
func (e *Engine) HandleDistributeShare(roundID uint64, sharesReceived *big.Int) error {
	return e.settle(RoundDeposit, roundID, sharesReceived, false)
}

// HandleDistributeAsset settles a closed withdraw round with the underlying
// L1 returned for it. The vault must already hold the underlying.
func (e *Engine) HandleDistributeAsset(roundID uint64, assetsReceived *big.Int) error {
	return e.settle(RoundWithdraw, roundID, assetsReceived, false)
}

// DistributeShare is the operator's manual settlement of a deposit round. It
// follows the same path as HandleDistributeShare.
func (e *Engine) DistributeShare(caller crypto.Address, roundID uint64, sharesReceived *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.requireOperator(caller); err != nil {
		return err
	}
	return e.settle(RoundDeposit, roundID, sharesReceived, true)
}

// DistributeUnderlying is the operator's manual settlement of a withdraw
// round.
func (e *Engine) DistributeUnderlying(caller crypto.Address, roundID uint64, assetsReceived *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.requireOperator(caller); err != nil {
		return err
	}
	return e.settle(RoundWithdraw, roundID, assetsReceived, true)
}

func (e *Engine) settle(kind RoundKind, roundID uint64, received *big.Int, manual bool) error {
	if received == nil || received.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return e.atomic(func(vs *VaultState) ([]events.Event, error) {
		round, err := e.rounds.AwaitingSettlement(vs, kind, roundID)
		if err != nil {
			return nil, err
		}
		var (
			dist       *Distribution
			payoutKind string
		)
		if kind == RoundDeposit {
			payoutKind = events.TypeVaultSharesDistributed
			dist, err = e.settlement.ApplyDepositSettlement(vs, round, received, func(to [20]byte, amount *big.Int) error {
				return e.shares.Mint(e.account(to), amount)
			})
		} else {
			payoutKind = events.TypeVaultAssetsDistributed
			dist, err = e.settlement.ApplyWithdrawSettlement(vs, round, received, func(to [20]byte, amount *big.Int) error {
				if err := e.token.Transfer(e.vault, e.account(to), amount); err != nil {
					return fmt.Errorf("vault: pay underlying: %w", err)
				}
				return nil
			})
		}
		if err != nil {
			return nil, err
		}
		if _, err := e.rounds.MarkSettled(vs, kind, roundID, Settlement{
			Received:       received,
			Distributed:    dist.Distributed,
			Dust:           dist.Dust,
			AssetsPerShare: dist.AssetsPerShare,
			Manual:         manual,
			At:             e.now(),
		}); err != nil {
			return nil, err
		}
		if err := storeVaultState(e.state, vs); err != nil {
			return nil, err
		}
		emitted := make([]events.Event, 0, len(dist.Payouts)+1)
		for _, payout := range dist.Payouts {
			emitted = append(emitted, events.VaultPayout{
				EventKind: payoutKind,
				Account:   e.account(payout.Account),
				RoundID:   roundID,
				Amount:    payout.Amount,
			})
		}
		emitted = append(emitted, events.VaultRoundSettled{
			Kind:           kind.String(),
			RoundID:        roundID,
			RoundTotal:     copyInt(round.TotalAmount),
			Received:       new(big.Int).Set(received),
			Distributed:    dist.Distributed,
			Dust:           dist.Dust,
			AssetsPerShare: copyInt(vs.AssetsPerShare),
			TotalAssets:    copyInt(vs.TotalAssets),
			TotalShares:    copyInt(vs.TotalShares),
			Manual:         manual,
		})
		return emitted, nil
	})
}

// UpdateRemote points the vault at a different L1 contract. Outbound
// requests go to it and inbound settlements must come from it.
func (e *Engine) UpdateRemote(caller crypto.Address, remote common.Address) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.requireOperator(caller); err != nil {
		return err
	}
	if remote == (common.Address{}) {
		return ErrZeroAddress
	}
	return e.atomic(func(vs *VaultState) ([]events.Event, error) {
		previous := vs.Remote
		vs.Remote = remote
		if err := storeVaultState(e.state, vs); err != nil {
			return nil, err
		}
		return []events.Event{events.VaultRemoteUpdated{Previous: previous, Remote: remote}}, nil
	})
}
