package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/soyHouston256/stream-sales-sub004/internal/model"
	"github.com/soyHouston256/stream-sales-sub004/internal/service"
)

const queueGroup = "worker_group"

// Topics the worker reconciles after.
var Topics = []string{
	model.TopicPurchaseCompleted,
	model.TopicDisputeResolved,
	model.TopicWalletAdjusted,
}

// ReconcileWorker listens for committed ledger events and replays the
// history of every touched wallet, logging any drift between the stored
// balance and its ledger.
type ReconcileWorker struct {
	svc      service.MarketService
	natsConn *nats.Conn
	logger   *slog.Logger
}

func NewReconcileWorker(svc service.MarketService, nc *nats.Conn, logger *slog.Logger) *ReconcileWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReconcileWorker{svc: svc, natsConn: nc, logger: logger}
}

// Run subscribes to the event topics and blocks until ctx is cancelled.
func (w *ReconcileWorker) Run(ctx context.Context) error {
	subs := make([]*nats.Subscription, 0, len(Topics))
	for _, topic := range Topics {
		// QueueSubscribe ensures each event is handled by only one worker in the group.
		sub, err := w.natsConn.QueueSubscribe(topic, queueGroup, func(m *nats.Msg) {
			if err := w.Handle(ctx, m.Data); err != nil {
				w.logger.Error("worker: failed to reconcile", "subject", m.Subject, "error", err)
			}
		})
		if err != nil {
			return fmt.Errorf("worker: failed to subscribe to %s: %w", topic, err)
		}
		subs = append(subs, sub)
	}

	w.logger.Info("reconcile worker is running", "topics", Topics)

	<-ctx.Done()

	w.logger.Info("worker received shutdown signal, draining subscriptions...")
	for _, sub := range subs {
		_ = sub.Drain()
	}
	return nil
}

// Handle reconciles every wallet named by one encoded event. It returns the
// first error but still checks the remaining wallets.
func (w *ReconcileWorker) Handle(ctx context.Context, data []byte) error {
	var event model.LedgerEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}

	var first error
	for _, id := range event.WalletIDs {
		if err := w.reconcile(ctx, event, id); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (w *ReconcileWorker) reconcile(ctx context.Context, event model.LedgerEvent, walletID uuid.UUID) error {
	r, err := w.svc.Reconcile(ctx, walletID)
	if err != nil {
		return fmt.Errorf("reconcile wallet %s: %w", walletID, err)
	}
	if !r.Balanced() {
		w.logger.Error("worker: ledger drift detected",
			"topic", event.Topic,
			"entity_id", event.EntityID,
			"wallet_id", walletID,
			"stored", r.Stored.StringFixed(2),
			"replayed", r.Replayed.StringFixed(2),
			"drift", r.Drift.StringFixed(2),
		)
		return nil
	}
	w.logger.Debug("worker: wallet reconciled", "topic", event.Topic, "wallet_id", walletID)
	return nil
}

// Start implements the infrastructure.Server interface.
func (w *ReconcileWorker) Start(ctx context.Context) error {
	return w.Run(ctx)
}

// Stop implements the infrastructure.Server interface (no-op, shutdown is via ctx).
func (w *ReconcileWorker) Stop(ctx context.Context) error {
	return nil
}
