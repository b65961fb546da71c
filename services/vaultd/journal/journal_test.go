package journal

import (
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"defipool/bridge"
	"defipool/core/events"
	"defipool/crypto"
)

func setupJournal(t *testing.T) *Journal {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	j, err := Open(dsn, false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestAppendAndFilterEvents(t *testing.T) {
	j := setupJournal(t)
	ctx := context.Background()
	alice := crypto.NewAddress(crypto.PoolPrefix, make([]byte, 20))

	batch, err := j.AppendEvents(ctx, "deposit", []events.Event{
		events.VaultContribution{EventKind: events.TypeVaultDeposited, Account: alice, RoundID: 0, Amount: big.NewInt(5), RoundTotal: big.NewInt(5)},
	})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, batch)

	_, err = j.AppendEvents(ctx, "bridge-deposits", []events.Event{
		events.VaultRoundClosed{Kind: "deposit", RoundID: 0, Total: big.NewInt(5), NextRoundID: 1},
		events.VaultPayout{EventKind: events.TypeVaultSharesDistributed, Account: alice, RoundID: 0, Amount: big.NewInt(4)},
	})
	require.NoError(t, err)

	all, err := j.Events(ctx, EventFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "deposit", all[0].Kind)
	require.Equal(t, "deposit", all[2].Kind, "payout kind derives from type")
	require.NotNil(t, all[0].RoundID)

	closed, err := j.Events(ctx, EventFilter{Type: events.TypeVaultRoundClosed})
	require.NoError(t, err)
	require.Len(t, closed, 1)
	attrs, err := closed[0].DecodeAttributes()
	require.NoError(t, err)
	require.Equal(t, "1", attrs["nextRoundId"])

	after, err := j.Events(ctx, EventFilter{After: all[0].ID, Account: alice.String()})
	require.NoError(t, err)
	require.Len(t, after, 1)
}

func TestRecordOutboundIsIdempotent(t *testing.T) {
	j := setupJournal(t)
	ctx := context.Background()
	env := &bridge.Envelope{
		Sequence:  1,
		ID:        common.HexToHash("0x01"),
		To:        common.HexToAddress("0x11"),
		Type:      bridge.DepositRequest,
		RoundID:   0,
		Amount:    big.NewInt(100),
		CreatedAt: 1_700_000_000,
	}
	require.NoError(t, j.RecordOutbound(ctx, env))
	require.NoError(t, j.RecordOutbound(ctx, env))

	list, err := j.Outbound(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "100", list[0].Amount)
	require.Equal(t, bridge.DepositRequest.String(), list[0].MessageType)
}

func TestRecordInboundReplacesRejection(t *testing.T) {
	j := setupJournal(t)
	ctx := context.Background()
	id := common.HexToHash("0xabc").Hex()

	require.NoError(t, j.RecordInbound(ctx, InboundDelivery{MessageID: id, Outcome: OutcomeRejected, Error: "custody shortfall"}))
	require.NoError(t, j.RecordInbound(ctx, InboundDelivery{MessageID: id, Outcome: OutcomeApplied}))

	got, ok, err := j.Inbound(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, OutcomeApplied, got.Outcome)
	require.Empty(t, got.Error)

	_, ok, err = j.Inbound(ctx, "missing")
	require.NoError(t, err)
	require.False(t, ok)
}
