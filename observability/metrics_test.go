package observability

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"defipool/core/events"
)

func TestVaultMetricsFollowEvents(t *testing.T) {
	m := NewVaultMetrics(prometheus.NewRegistry())

	m.Emit(events.VaultContribution{EventKind: events.TypeVaultDeposited, RoundTotal: big.NewInt(100)})
	if got := testutil.ToFloat64(m.openRoundTotal.WithLabelValues("deposit")); got != 100 {
		t.Fatalf("open round total = %v, want 100", got)
	}

	m.Emit(events.VaultRoundClosed{Kind: "deposit", RoundID: 0, Total: big.NewInt(100), NextRoundID: 1})
	if got := testutil.ToFloat64(m.pendingRounds.WithLabelValues("deposit")); got != 1 {
		t.Fatalf("pending rounds = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.openRoundTotal.WithLabelValues("deposit")); got != 0 {
		t.Fatalf("open round total after close = %v", got)
	}

	m.Emit(events.VaultPayout{EventKind: events.TypeVaultSharesDistributed, Amount: big.NewInt(1)})
	m.Emit(events.VaultRoundSettled{
		Kind:           "deposit",
		TotalAssets:    big.NewInt(100),
		TotalShares:    big.NewInt(80),
		AssetsPerShare: big.NewInt(1_250_000_000),
		Manual:         true,
	})
	if got := testutil.ToFloat64(m.roundsSettled.WithLabelValues("deposit", "manual")); got != 1 {
		t.Fatalf("manual settlements = %v", got)
	}
	if got := testutil.ToFloat64(m.pendingRounds.WithLabelValues("deposit")); got != 0 {
		t.Fatalf("pending rounds after settle = %v", got)
	}
	if got := testutil.ToFloat64(m.assetsPerShare); got != 1_250_000_000 {
		t.Fatalf("assets per share = %v", got)
	}
	if got := testutil.ToFloat64(m.payouts.WithLabelValues("deposit")); got != 1 {
		t.Fatalf("payouts = %v", got)
	}
}

func TestObserveOperationOutcome(t *testing.T) {
	m := NewVaultMetrics(prometheus.NewRegistry())
	m.ObserveOperation("Deposit", nil, time.Millisecond)
	m.ObserveOperation("deposit", errors.New("boom"), time.Millisecond)
	m.ObserveInbound("handle_distribute_share", "duplicate")

	if got := testutil.ToFloat64(m.operations.WithLabelValues("deposit", "ok")); got != 1 {
		t.Fatalf("ok count = %v", got)
	}
	if got := testutil.ToFloat64(m.operations.WithLabelValues("deposit", "error")); got != 1 {
		t.Fatalf("error count = %v", got)
	}
	if got := testutil.ToFloat64(m.inbound.WithLabelValues("handle_distribute_share", "duplicate")); got != 1 {
		t.Fatalf("inbound count = %v", got)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *VaultMetrics
	m.Emit(events.VaultRoundClosed{Kind: "deposit"})
	m.ObserveOperation("deposit", nil, 0)
	m.SetOpenRound("deposit", big.NewInt(1))
}
