// Package dispute drives the dispute state machine and posts the
// compensating ledger entries of a resolution.
package dispute

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/soyHouston256/stream-sales-sub004/internal/apperr"
	"github.com/soyHouston256/stream-sales-sub004/internal/inventory"
	"github.com/soyHouston256/stream-sales-sub004/internal/ledger"
	"github.com/soyHouston256/stream-sales-sub004/internal/model"
	"github.com/soyHouston256/stream-sales-sub004/internal/repository"
)

type Resolver struct {
	store  repository.Store
	ledger *ledger.Ledger
	alloc  *inventory.Allocator
	cache  repository.Cache
	bus    repository.MessageBus
	logger *slog.Logger
}

func NewResolver(
	store repository.Store,
	l *ledger.Ledger,
	alloc *inventory.Allocator,
	cache repository.Cache,
	bus repository.MessageBus,
	logger *slog.Logger,
) *Resolver {
	if cache == nil {
		cache = repository.NopCache{}
	}
	if bus == nil {
		bus = repository.NopBus{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{store: store, ledger: l, alloc: alloc, cache: cache, bus: bus, logger: logger}
}

// Open starts a dispute on a completed purchase. Only the buyer may open
// one, and a purchase gets at most one dispute.
func (r *Resolver) Open(ctx context.Context, req model.OpenDisputeRequest) (*model.Dispute, error) {
	const op = "dispute.Open"

	if strings.TrimSpace(req.Reason) == "" {
		return nil, apperr.Invalid(op, "reason", `""`)
	}

	d := &model.Dispute{
		ID:             uuid.New(),
		PurchaseID:     req.PurchaseID,
		OpenedBy:       req.BuyerID,
		Reason:         req.Reason,
		Status:         model.DisputeOpen,
		RefundedAmount: decimal.Zero,
	}
	err := r.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		p, err := tx.GetPurchase(ctx, req.PurchaseID)
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFoundf(op, "purchase", req.PurchaseID)
		}
		if err != nil {
			return err
		}
		if p.BuyerID != req.BuyerID {
			return apperr.New(op, apperr.Forbidden, "only the buyer can dispute a purchase")
		}
		if p.Status != model.PurchaseCompleted {
			return apperr.Newf(op, apperr.InvalidDisputeTransition, "purchase %s is %s", p.ID, p.Status)
		}

		err = tx.InsertDispute(ctx, d)
		if errors.Is(err, repository.ErrDuplicateKey) {
			return apperr.Newf(op, apperr.InvalidDisputeTransition, "purchase %s already has a dispute", p.ID)
		}
		return err
	})
	if err != nil {
		return nil, apperr.Wrap(op, err)
	}

	r.logger.Info("dispute opened", "dispute_id", d.ID, "purchase_id", d.PurchaseID)
	return d, nil
}

func (r *Resolver) Get(ctx context.Context, id uuid.UUID) (*model.Dispute, error) {
	const op = "dispute.Get"

	var out *model.Dispute
	err := r.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		d, err := tx.GetDispute(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFoundf(op, "dispute", id)
		}
		out = d
		return err
	})
	if err != nil {
		return nil, apperr.Wrap(op, err)
	}
	return out, nil
}

// StartReview moves an open dispute to under_review.
func (r *Resolver) StartReview(ctx context.Context, id, reviewerID uuid.UUID) (*model.Dispute, error) {
	return r.transition(ctx, "dispute.StartReview", id, model.DisputeOpen, model.DisputeUnderReview, func(d *model.Dispute, _ time.Time) error {
		d.ReviewerID = &reviewerID
		return nil
	})
}

// Withdraw lets the buyer close a dispute that is still open.
func (r *Resolver) Withdraw(ctx context.Context, id, buyerID uuid.UUID) (*model.Dispute, error) {
	const op = "dispute.Withdraw"
	return r.transition(ctx, op, id, model.DisputeOpen, model.DisputeClosed, func(d *model.Dispute, now time.Time) error {
		if d.OpenedBy != buyerID {
			return apperr.New(op, apperr.Forbidden, "only the buyer can withdraw a dispute")
		}
		d.ClosedAt = &now
		return nil
	})
}

// Close archives a resolved dispute.
func (r *Resolver) Close(ctx context.Context, id uuid.UUID) (*model.Dispute, error) {
	return r.transition(ctx, "dispute.Close", id, model.DisputeResolved, model.DisputeClosed, func(d *model.Dispute, now time.Time) error {
		d.ClosedAt = &now
		return nil
	})
}

func (r *Resolver) transition(ctx context.Context, op string, id uuid.UUID, from, to model.DisputeStatus, apply func(*model.Dispute, time.Time) error) (*model.Dispute, error) {
	var out *model.Dispute
	err := r.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		d, err := tx.GetDisputeForUpdate(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFoundf(op, "dispute", id)
		}
		if err != nil {
			return err
		}
		if d.Status != from || !d.CanMoveTo(to) {
			return apperr.Newf(op, apperr.InvalidDisputeTransition, "dispute %s is %s, cannot move to %s", id, d.Status, to)
		}
		if err := apply(d, time.Now().UTC()); err != nil {
			return err
		}
		d.Status = to
		if err := tx.UpdateDispute(ctx, d); err != nil {
			return err
		}
		out = d
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap(op, err)
	}

	r.logger.Info("dispute updated", "dispute_id", id, "status", to)
	return out, nil
}

// Resolve settles a dispute under review. Refunds are posted under keys
// dispute:<id>:<leg>, and re-sending the same resolution returns the stored
// outcome instead of refunding twice.
func (r *Resolver) Resolve(ctx context.Context, req model.ResolveRequest) (*model.Outcome, error) {
	const op = "dispute.Resolve"

	if err := validate(op, req); err != nil {
		return nil, err
	}

	var (
		outcome *model.Outcome
		touched []uuid.UUID
	)
	err := r.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		outcome, touched, err = r.resolve(ctx, tx, req)
		return err
	})
	if err != nil {
		r.audit(ctx, req, err)
		return nil, apperr.Wrap(op, err)
	}
	if outcome.Replayed {
		return outcome, nil
	}

	r.logger.Info("dispute resolved",
		"dispute_id", outcome.Dispute.ID,
		"purchase_id", outcome.Purchase.ID,
		"resolution", req.Type,
		"refunded", outcome.Dispute.RefundedAmount.StringFixed(2),
	)
	r.afterCommit(ctx, outcome, touched)
	return outcome, nil
}

func validate(op string, req model.ResolveRequest) error {
	if !req.Type.Valid() {
		return apperr.Invalid(op, "resolution type", req.Type)
	}
	if req.Type != model.ResolutionPartialRefund {
		if req.Percentage != nil {
			return apperr.New(op, apperr.InvalidRequest, "percentage is only allowed for partial_refund")
		}
		return nil
	}
	if req.Percentage == nil {
		return apperr.New(op, apperr.InvalidRequest, "partial_refund requires a percentage")
	}
	pct := *req.Percentage
	if !pct.IsPositive() || !pct.LessThan(hundred) || !pct.Equal(pct.Round(2)) {
		return apperr.Invalid(op, "percentage", pct)
	}
	return nil
}

func (r *Resolver) resolve(ctx context.Context, tx repository.Tx, req model.ResolveRequest) (*model.Outcome, []uuid.UUID, error) {
	const op = "dispute.Resolve"

	d, err := tx.GetDisputeForUpdate(ctx, req.DisputeID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil, apperr.NotFoundf(op, "dispute", req.DisputeID)
	}
	if err != nil {
		return nil, nil, err
	}
	p, err := tx.GetPurchaseForUpdate(ctx, d.PurchaseID)
	if err != nil {
		return nil, nil, fmt.Errorf("load purchase %s: %w", d.PurchaseID, err)
	}

	if d.Status == model.DisputeResolved || d.Status == model.DisputeClosed {
		if sameResolution(d, req) {
			return &model.Outcome{Purchase: *p, Dispute: *d, Replayed: true}, nil, nil
		}
		return nil, nil, apperr.Newf(op, apperr.InvalidDisputeTransition, "dispute %s is already %s", d.ID, d.Status)
	}
	if !d.CanMoveTo(model.DisputeResolved) {
		return nil, nil, apperr.Newf(op, apperr.InvalidDisputeTransition, "dispute %s is %s, not under review", d.ID, d.Status)
	}

	var (
		refund  Refund
		status  = p.Status
		touched []uuid.UUID
	)
	switch req.Type {
	case model.ResolutionRefundSeller:
		refund, status = FullRefund(*p), model.PurchaseRefunded
	case model.ResolutionPartialRefund:
		refund, status = PartialRefund(*p, *req.Percentage), model.PurchasePartialRefund
	}

	if !refund.IsZero() {
		touched, err = r.postRefund(ctx, tx, d, p, refund)
		if err != nil {
			return nil, nil, err
		}
		p.RefundedAmount = p.RefundedAmount.Add(refund.Buyer)
		p.Status = status
		if err := tx.UpdatePurchaseRefund(ctx, p.ID, p.Status, p.RefundedAmount); err != nil {
			return nil, nil, err
		}
	}
	if req.Type == model.ResolutionRefundSeller {
		if err := r.releaseUnit(ctx, tx, p.Unit); err != nil {
			return nil, nil, err
		}
	}

	now := time.Now().UTC()
	resolution := req.Type
	d.Status = model.DisputeResolved
	d.Resolution = &resolution
	d.Percentage = req.Percentage
	d.ResolverID = &req.ResolverID
	d.RefundedAmount = refund.Buyer
	d.ResolvedAt = &now
	if err := tx.UpdateDispute(ctx, d); err != nil {
		return nil, nil, err
	}

	return &model.Outcome{Purchase: *p, Dispute: *d}, touched, nil
}

func sameResolution(d *model.Dispute, req model.ResolveRequest) bool {
	if d.Resolution == nil || *d.Resolution != req.Type {
		return false
	}
	if d.Percentage == nil || req.Percentage == nil {
		return d.Percentage == nil && req.Percentage == nil
	}
	return d.Percentage.Equal(*req.Percentage)
}

// postRefund debits each paid leg and credits the buyer, locking every
// wallet involved first. Legs are paid back from the wallets the purchase
// credited, whatever the platform account is configured as today.
func (r *Resolver) postRefund(ctx context.Context, tx repository.Tx, d *model.Dispute, p *model.Purchase, refund Refund) ([]uuid.UUID, error) {
	const op = "dispute.Resolve"

	owners := map[string]uuid.UUID{
		"buyer":    p.BuyerID,
		"provider": p.ProviderID,
		"platform": p.PlatformID,
	}
	if p.AffiliateID != nil {
		owners["affiliate"] = *p.AffiliateID
	}
	wallets := make(map[string]uuid.UUID, len(owners))
	ids := make([]uuid.UUID, 0, len(owners))
	for leg, owner := range owners {
		w, err := tx.GetWalletByOwner(ctx, owner, p.Currency)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.Newf(op, apperr.NotFound, "%s wallet for purchase %s not found", leg, p.ID)
		}
		if err != nil {
			return nil, err
		}
		wallets[leg] = w.ID
		ids = append(ids, w.ID)
	}
	if _, err := r.ledger.Lock(ctx, tx, ids...); err != nil {
		return nil, err
	}

	ref := model.Reference{Type: model.RefDispute, ID: d.ID}
	key := "dispute:" + d.ID.String() + ":"
	buyer := wallets["buyer"]
	for _, leg := range []struct {
		name   string
		amount decimal.Decimal
	}{
		{"provider", refund.Provider},
		{"platform", refund.Platform},
		{"affiliate", refund.Affiliate},
	} {
		if leg.amount.IsZero() {
			continue
		}
		if _, err := r.ledger.DebitTo(ctx, tx, wallets[leg.name], buyer, leg.amount, key+leg.name, ref); err != nil {
			return nil, err
		}
	}
	if _, err := r.ledger.Credit(ctx, tx, buyer, refund.Buyer, key+"buyer", ref); err != nil {
		return nil, err
	}
	return ids, nil
}

// releaseUnit returns the refunded unit to stock. A license revoked since
// the sale stays revoked.
func (r *Resolver) releaseUnit(ctx context.Context, tx repository.Tx, h model.UnitHandle) error {
	if h.Kind == model.UnitLicense {
		u, err := tx.GetUnit(ctx, h.Kind, h.UnitID)
		if err != nil {
			return fmt.Errorf("load unit %s: %w", h.UnitID, err)
		}
		if u.Status == model.UnitRevoked {
			return nil
		}
	}
	return r.alloc.ReleaseUnit(ctx, tx, h)
}

func (r *Resolver) afterCommit(ctx context.Context, o *model.Outcome, touched []uuid.UUID) {
	if err := r.cache.InvalidateBalances(ctx, touched...); err != nil {
		r.logger.Warn("balance cache invalidation failed", "dispute_id", o.Dispute.ID, "error", err)
	}
	// The cached purchase receipt still shows the sale as completed.
	p := o.Purchase
	if err := r.cache.InvalidateReceipt(ctx, p.BuyerID, p.IdempotencyKey); err != nil {
		r.logger.Warn("receipt cache invalidation failed", "dispute_id", o.Dispute.ID, "purchase_id", p.ID, "error", err)
	}

	event := model.LedgerEvent{
		Topic:      model.TopicDisputeResolved,
		EntityID:   o.Dispute.ID,
		WalletIDs:  touched,
		Amount:     o.Dispute.RefundedAmount,
		Status:     string(*o.Dispute.Resolution),
		OccurredAt: time.Now().UTC(),
	}
	if err := repository.PublishEvent(r.bus, event); err != nil {
		r.logger.Error("failed to publish dispute event", "dispute_id", o.Dispute.ID, "error", err)
	}
}

func (r *Resolver) audit(ctx context.Context, req model.ResolveRequest, cause error) {
	msg := apperr.Message(cause)
	entry := &model.AuditEntry{
		ID:        uuid.New(),
		RequestID: req.DisputeID.String(),
		Action:    "dispute.resolve",
		Status:    string(apperr.KindOf(cause)),
		Message:   &msg,
	}
	err := r.store.WithinTx(context.WithoutCancel(ctx), func(ctx context.Context, tx repository.Tx) error {
		return tx.InsertAudit(ctx, entry)
	})
	if err != nil {
		r.logger.Error("failed to write audit entry", "dispute_id", req.DisputeID, "error", err)
	}
	r.logger.Warn("dispute resolution failed", "dispute_id", req.DisputeID, "resolution", req.Type, "error", cause)
}
