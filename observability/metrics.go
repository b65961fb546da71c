package observability

import (
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"defipool/core/events"
)

// VaultMetrics tracks vault activity. It doubles as an events.Emitter so the
// round and settlement series follow the engine's own event stream.
type VaultMetrics struct {
	operations     *prometheus.CounterVec
	latency        *prometheus.HistogramVec
	roundsClosed   *prometheus.CounterVec
	roundsSettled  *prometheus.CounterVec
	payouts        *prometheus.CounterVec
	inbound        *prometheus.CounterVec
	openRoundTotal *prometheus.GaugeVec
	pendingRounds  *prometheus.GaugeVec
	totalAssets    prometheus.Gauge
	totalShares    prometheus.Gauge
	assetsPerShare prometheus.Gauge
}

var (
	vaultMetricsOnce sync.Once
	vaultRegistry    *VaultMetrics
)

// Vault returns the process-wide vault metrics registered with the default
// prometheus registerer.
func Vault() *VaultMetrics {
	vaultMetricsOnce.Do(func() {
		vaultRegistry = NewVaultMetrics(prometheus.DefaultRegisterer)
	})
	return vaultRegistry
}

// NewVaultMetrics builds and registers a vault metric set on reg.
func NewVaultMetrics(reg prometheus.Registerer) *VaultMetrics {
	m := &VaultMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "defipool",
			Subsystem: "vault",
			Name:      "operations_total",
			Help:      "Vault operations segmented by operation and outcome.",
		}, []string{"operation", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "defipool",
			Subsystem: "vault",
			Name:      "operation_duration_seconds",
			Help:      "Latency of vault operations including commit.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		roundsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "defipool",
			Subsystem: "vault",
			Name:      "rounds_closed_total",
			Help:      "Rounds closed and bridged to L1.",
		}, []string{"kind"}),
		roundsSettled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "defipool",
			Subsystem: "vault",
			Name:      "rounds_settled_total",
			Help:      "Rounds settled, segmented by settlement path.",
		}, []string{"kind", "path"}),
		payouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "defipool",
			Subsystem: "vault",
			Name:      "payouts_total",
			Help:      "Individual participant payouts made during settlement.",
		}, []string{"kind"}),
		inbound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "defipool",
			Subsystem: "bridge",
			Name:      "inbound_messages_total",
			Help:      "Inbound bridge messages segmented by selector and outcome.",
		}, []string{"selector", "outcome"}),
		openRoundTotal: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "defipool",
			Subsystem: "vault",
			Name:      "open_round_total",
			Help:      "Total contributed to the currently open round.",
		}, []string{"kind"}),
		pendingRounds: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "defipool",
			Subsystem: "vault",
			Name:      "pending_rounds",
			Help:      "Rounds closed but not yet settled.",
		}, []string{"kind"}),
		totalAssets: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "defipool",
			Subsystem: "vault",
			Name:      "total_assets",
			Help:      "Underlying attributed to the pool position after the last settlement.",
		}),
		totalShares: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "defipool",
			Subsystem: "vault",
			Name:      "total_shares",
			Help:      "L1 shares held by the pool after the last settlement.",
		}),
		assetsPerShare: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "defipool",
			Subsystem: "vault",
			Name:      "assets_per_share",
			Help:      "Scaled assets per share (precision 1e9).",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.operations,
			m.latency,
			m.roundsClosed,
			m.roundsSettled,
			m.payouts,
			m.inbound,
			m.openRoundTotal,
			m.pendingRounds,
			m.totalAssets,
			m.totalShares,
			m.assetsPerShare,
		)
	}
	return m
}

// ObserveOperation records the outcome of an engine call.
func (m *VaultMetrics) ObserveOperation(operation string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	op := normalizeLabel(operation)
	m.operations.WithLabelValues(op, outcome).Inc()
	if elapsed > 0 {
		m.latency.WithLabelValues(op).Observe(elapsed.Seconds())
	}
}

// ObserveInbound records an inbound bridge message.
func (m *VaultMetrics) ObserveInbound(selector, outcome string) {
	if m == nil {
		return
	}
	m.inbound.WithLabelValues(normalizeLabel(selector), normalizeLabel(outcome)).Inc()
}

// SetOpenRound publishes the open round total for kind.
func (m *VaultMetrics) SetOpenRound(kind string, total *big.Int) {
	if m == nil {
		return
	}
	m.openRoundTotal.WithLabelValues(normalizeLabel(kind)).Set(bigToFloat(total))
}

// Emit implements events.Emitter.
func (m *VaultMetrics) Emit(evt events.Event) {
	if m == nil || evt == nil {
		return
	}
	switch e := evt.(type) {
	case events.VaultRoundClosed:
		kind := normalizeLabel(e.Kind)
		m.roundsClosed.WithLabelValues(kind).Inc()
		m.pendingRounds.WithLabelValues(kind).Inc()
		m.openRoundTotal.WithLabelValues(kind).Set(0)
	case events.VaultRoundSettled:
		kind := normalizeLabel(e.Kind)
		path := "message"
		if e.Manual {
			path = "manual"
		}
		m.roundsSettled.WithLabelValues(kind, path).Inc()
		m.pendingRounds.WithLabelValues(kind).Dec()
		m.totalAssets.Set(bigToFloat(e.TotalAssets))
		m.totalShares.Set(bigToFloat(e.TotalShares))
		m.assetsPerShare.Set(bigToFloat(e.AssetsPerShare))
	case events.VaultPayout:
		kind := "deposit"
		if e.EventKind == events.TypeVaultAssetsDistributed {
			kind = "withdraw"
		}
		m.payouts.WithLabelValues(kind).Inc()
	case events.VaultContribution:
		kind := "deposit"
		switch e.EventKind {
		case events.TypeVaultRedeemRequested, events.TypeVaultWithdrawCancelled:
			kind = "withdraw"
		}
		m.openRoundTotal.WithLabelValues(kind).Set(bigToFloat(e.RoundTotal))
	}
}

func normalizeLabel(v string) string {
	trimmed := strings.ToLower(strings.TrimSpace(v))
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}

func bigToFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	if math.IsInf(f, 0) {
		return math.MaxFloat64
	}
	return f
}
