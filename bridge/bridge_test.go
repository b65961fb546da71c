package bridge

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"defipool/core/state"
	"defipool/storage"
)

func TestPayloadRoundTrip(t *testing.T) {
	payload, err := EncodePayload(Message{Type: DepositRequest, RoundID: 7, Amount: big.NewInt(100)})
	require.NoError(t, err)
	msg, err := DecodePayload(payload)
	require.NoError(t, err)
	require.Equal(t, DepositRequest, msg.Type)
	require.Equal(t, uint64(7), msg.RoundID)
	require.Equal(t, "100", msg.Amount.String())

	_, err = EncodePayload(Message{Type: MessageType(9), Amount: big.NewInt(1)})
	require.ErrorIs(t, err, ErrInvalidMessage)
	_, err = DecodePayload([]byte{0xff})
	require.ErrorIs(t, err, ErrInvalidMessage)
}

func TestMessageTypeWireValues(t *testing.T) {
	require.Equal(t, uint8(2), uint8(DepositRequest))
	require.Equal(t, uint8(1), uint8(WithdrawalRequest))
	require.Equal(t, "deposit_request", DepositRequest.String())
}

func TestParseSelector(t *testing.T) {
	selector, err := ParseSelector(" handle_distribute_asset ")
	require.NoError(t, err)
	require.Equal(t, SelectorDistributeAsset, selector)
	_, err = ParseSelector("handle_mint")
	require.ErrorIs(t, err, ErrUnknownSelector)
}

func TestOutboxSequencing(t *testing.T) {
	mgr := state.NewManager(storage.NewMemDB())
	outbox := NewOutbox(mgr)
	outbox.SetClock(func() time.Time { return time.Unix(1700000000, 0) })
	remote := common.HexToAddress("0xabc")

	_, err := outbox.Send(common.Address{}, Message{Type: DepositRequest, Amount: big.NewInt(1)})
	require.ErrorIs(t, err, ErrInvalidMessage)

	first, err := outbox.Send(remote, Message{Type: DepositRequest, RoundID: 0, Amount: big.NewInt(100)})
	require.NoError(t, err)
	second, err := outbox.Send(remote, Message{Type: WithdrawalRequest, RoundID: 0, Amount: big.NewInt(80)})
	require.NoError(t, err)
	require.Equal(t, uint64(1), first.Sequence)
	require.Equal(t, uint64(2), second.Sequence)
	require.NotEqual(t, first.ID, second.ID)

	head, err := outbox.Head()
	require.NoError(t, err)
	require.Equal(t, uint64(2), head)

	list, err := outbox.List(1, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, WithdrawalRequest, list[0].Type)
	require.Equal(t, int64(1700000000), list[0].CreatedAt)
	decoded, err := DecodePayload(list[0].Payload)
	require.NoError(t, err)
	require.Equal(t, "80", decoded.Amount.String())

	third, err := outbox.Send(remote, Message{Type: DepositRequest, RoundID: 1, Amount: big.NewInt(5)})
	require.NoError(t, err)
	deposits, err := outbox.ForRound(DepositRequest, 0)
	require.NoError(t, err)
	require.Len(t, deposits, 1)
	require.Equal(t, first.ID, deposits[0].ID)
	deposits, err = outbox.ForRound(DepositRequest, 1)
	require.NoError(t, err)
	require.Len(t, deposits, 1)
	require.Equal(t, third.Sequence, deposits[0].Sequence)
	withdrawals, err := outbox.ForRound(WithdrawalRequest, 0)
	require.NoError(t, err)
	require.Len(t, withdrawals, 1)
	require.Equal(t, second.ID, withdrawals[0].ID)
	none, err := outbox.ForRound(WithdrawalRequest, 7)
	require.NoError(t, err)
	require.Empty(t, none)
}

type staticRemote struct{ addr common.Address }

func (s staticRemote) RemoteContract() (common.Address, error) { return s.addr, nil }

func TestDispatcherRequiresEveryHandler(t *testing.T) {
	_, err := NewDispatcher(staticRemote{}, Handlers{DistributeShare: func(uint64, *big.Int) error { return nil }})
	require.ErrorIs(t, err, ErrMissingHandler)
}

func TestDispatcherRoutesBySelector(t *testing.T) {
	remote := common.HexToAddress("0x1234")
	var shares, assets []uint64
	dispatcher, err := NewDispatcher(staticRemote{addr: remote}, Handlers{
		DistributeShare: func(roundID uint64, _ *big.Int) error { shares = append(shares, roundID); return nil },
		DistributeAsset: func(roundID uint64, _ *big.Int) error { assets = append(assets, roundID); return nil },
	})
	require.NoError(t, err)

	require.NoError(t, dispatcher.Dispatch(InboundMessage{From: remote, Selector: SelectorDistributeShare, RoundID: 3, Amount: big.NewInt(1)}))
	require.NoError(t, dispatcher.Dispatch(InboundMessage{From: remote, Selector: SelectorDistributeAsset, RoundID: 4, Amount: big.NewInt(1)}))
	require.Equal(t, []uint64{3}, shares)
	require.Equal(t, []uint64{4}, assets)

	err = dispatcher.Dispatch(InboundMessage{From: common.HexToAddress("0x9"), Selector: SelectorDistributeShare})
	require.True(t, errors.Is(err, ErrUnknownRemote))
	err = dispatcher.Dispatch(InboundMessage{From: remote, Selector: Selector(42)})
	require.ErrorIs(t, err, ErrUnknownSelector)
}

func TestInboundMessageID(t *testing.T) {
	msg := InboundMessage{From: common.HexToAddress("0x1"), Selector: SelectorDistributeShare, RoundID: 1, Amount: big.NewInt(5), Nonce: 1}
	again := msg
	require.Equal(t, msg.ID(), again.ID())
	again.Nonce = 2
	require.NotEqual(t, msg.ID(), again.ID())
}
