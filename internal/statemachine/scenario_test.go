package statemachine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/escrow-settlement/internal/domain/escrow"
	"github.com/escrow-settlement/internal/platform/gateway"
	"github.com/escrow-settlement/internal/platform/metrics"
	"github.com/escrow-settlement/internal/settlement"
)

type scriptedTransfers struct {
	err   error
	calls []gateway.TransferRequest
}

func (s *scriptedTransfers) Transfer(_ context.Context, req gateway.TransferRequest) (*gateway.TransferResult, error) {
	s.calls = append(s.calls, req)
	if s.err != nil {
		return nil, s.err
	}
	return &gateway.TransferResult{Reference: "TRF-" + req.Reference}, nil
}

func newScenarioSweeper(h *harness, transfers *scriptedTransfers) *settlement.Sweeper {
	cfg := testConfig().Settlement
	cfg.BatchSize = 100
	return settlement.NewSweeper(
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		h.store, h.svc, transfers, &cfg,
		settlement.WithClock(h.clock.Now),
	)
}

func TestScenario_CaptureHoldSettle(t *testing.T) {
	ctx := context.Background()
	h := newHarness(testConfig())
	transfers := &scriptedTransfers{}
	sweeper := newScenarioSweeper(h, transfers)

	txRef := h.initialize(5000, "P1")
	stored, _ := h.store.GetByTxRef(ctx, txRef)
	assert.Equal(t, escrow.StatusPending, stored.Status)

	held, err := h.svc.ApplyWebhook(ctx, testSecret, webhookBodyFor(txRef, "successful", "FLW-1"))
	require.NoError(t, err)
	assert.Equal(t, escrow.StatusHeld, held.Status)
	assert.Equal(t, escrow.BalanceTypeIncoming, held.BalanceType)

	summary, err := sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, summary.Selected, "hold has not matured yet")

	h.clock.Advance(72*time.Hour + time.Second)
	summary, err = sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, settlement.Summary{Selected: 1, Completed: 1}, summary)

	settled, _ := h.store.GetByTxRef(ctx, txRef)
	assert.Equal(t, escrow.StatusCompleted, settled.Status)
	assert.Equal(t, escrow.TransferStatusSuccessful, settled.TransferStatus)
	assert.Equal(t, escrow.BalanceTypeAvailable, settled.BalanceType)
	assert.NotEmpty(t, settled.TransferReference)
	require.Len(t, transfers.calls, 1)
	assert.Equal(t, "MERCH-P1", transfers.calls[0].MerchantID)

	view, err := h.svc.GetPayeeTransactions(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, escrow.Balances{Available: 5000, Incoming: 0}, view.Balances)

	summary, err = sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, summary.Selected, "completed records are never selected again")

	assert.Equal(t, []escrow.EventType{
		escrow.EventInitialized,
		escrow.EventHeld,
		escrow.EventTransferProcessing,
		escrow.EventCompleted,
	}, h.outbox.eventTypes())
}

func TestScenario_TransferFailureKeepsFundsIncoming(t *testing.T) {
	ctx := context.Background()
	h := newHarness(testConfig())
	transfers := &scriptedTransfers{err: errors.New("insufficient merchant balance")}
	sweeper := newScenarioSweeper(h, transfers)

	txRef := h.initialize(5000, "P1")
	_, err := h.svc.ApplyWebhook(ctx, testSecret, webhookBodyFor(txRef, "successful", "FLW-1"))
	require.NoError(t, err)
	h.clock.Advance(73 * time.Hour)

	summary, err := sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, settlement.Summary{Selected: 1, Failed: 1}, summary)

	stored, _ := h.store.GetByTxRef(ctx, txRef)
	assert.Equal(t, escrow.StatusHeld, stored.Status)
	assert.Equal(t, escrow.TransferStatusFailed, stored.TransferStatus)
	assert.Empty(t, stored.TransferReference)

	view, err := h.svc.GetPayeeTransactions(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, escrow.Balances{Incoming: 5000}, view.Balances)

	// Retried on each following sweep until the attempt cap fails it for good.
	for i := 0; i < 2; i++ {
		h.clock.Advance(time.Hour)
		_, err = sweeper.RunOnce(ctx)
		require.NoError(t, err)
	}
	stored, _ = h.store.GetByTxRef(ctx, txRef)
	assert.Equal(t, escrow.StatusFailed, stored.Status)
	assert.Equal(t, 3, stored.TransferAttempts)
	assert.Len(t, transfers.calls, 3)

	h.clock.Advance(time.Hour)
	summary, err = sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, summary.Selected)

	view, _ = h.svc.GetPayeeTransactions(ctx, "P1")
	assert.Equal(t, escrow.Balances{}, view.Balances)
}

func TestScenario_UnpaidTransactionExpires(t *testing.T) {
	ctx := context.Background()
	h := newHarness(testConfig())

	txRef := h.initialize(5000, "P1")
	h.clock.Advance(25 * time.Hour)

	stale, err := h.store.ListExpiredPending(ctx, h.clock.Now().Add(-24*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	require.NoError(t, h.svc.Expire(ctx, stale[0]))

	lateCaptures := testutil.ToFloat64(metrics.LateCapturesTotal)

	late, err := h.svc.ApplyWebhook(ctx, testSecret, webhookBodyFor(txRef, "successful", "FLW-9"))
	require.NoError(t, err)
	assert.Equal(t, escrow.StatusFailed, late.Status)
	assert.Equal(t, escrow.PaymentStatusFailed, late.PaymentStatus)
	assert.Equal(t, escrow.ReasonPaymentNotCompleted, late.FailureReason)
	assert.Equal(t, "FLW-9", late.ExternalTransactionID)
	assert.Equal(t, lateCaptures+1, testutil.ToFloat64(metrics.LateCapturesTotal))

	assert.Equal(t, []escrow.EventType{
		escrow.EventInitialized, escrow.EventExpired, escrow.EventLateCapture,
	}, h.outbox.eventTypes())
	event, err := h.outbox.messages[2].Event()
	require.NoError(t, err)
	assert.Equal(t, "FLW-9", event.ExternalTransactionID)
	assert.Equal(t, escrow.StatusFailed, event.Status)

	logged := h.logLine("Payment captured after the transaction expired")
	require.NotNil(t, logged)
	assert.Equal(t, "ERROR", logged["level"])
	assert.Equal(t, true, logged["reconciliation"])
	assert.Equal(t, true, logged["security_event"])
	assert.Equal(t, txRef, logged["tx_ref"])

	// A redelivery of the same capture is not recorded twice.
	again, err := h.svc.ApplyWebhook(ctx, testSecret, webhookBodyFor(txRef, "successful", "FLW-9"))
	require.NoError(t, err)
	assert.Equal(t, escrow.StatusFailed, again.Status)
	assert.Len(t, h.outbox.eventTypes(), 3)
	assert.Equal(t, lateCaptures+1, testutil.ToFloat64(metrics.LateCapturesTotal))

	view, err := h.svc.GetPayeeTransactions(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, escrow.Balances{}, view.Balances)
}

func TestScenario_ExpiredTransactionIgnoresLateFailure(t *testing.T) {
	ctx := context.Background()
	h := newHarness(testConfig())

	txRef := h.initialize(5000, "P1")
	h.clock.Advance(25 * time.Hour)
	stored, err := h.store.GetByTxRef(ctx, txRef)
	require.NoError(t, err)
	require.NoError(t, h.svc.Expire(ctx, stored))

	late, err := h.svc.ApplyWebhook(ctx, testSecret, webhookBodyFor(txRef, "failed", "FLW-9"))
	require.NoError(t, err)
	assert.Equal(t, escrow.StatusFailed, late.Status)
	assert.Empty(t, late.ExternalTransactionID)
	assert.Equal(t, []escrow.EventType{escrow.EventInitialized, escrow.EventExpired}, h.outbox.eventTypes())
}
