// Package purchase runs the buy flow: one unit of work that claims a unit,
// debits the buyer, splits the proceeds and records the purchase.
package purchase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/soyHouston256/stream-sales-sub004/internal/apperr"
	"github.com/soyHouston256/stream-sales-sub004/internal/inventory"
	"github.com/soyHouston256/stream-sales-sub004/internal/ledger"
	"github.com/soyHouston256/stream-sales-sub004/internal/model"
	"github.com/soyHouston256/stream-sales-sub004/internal/repository"
)

type Config struct {
	PlatformUserID       uuid.UUID
	DefaultRate          decimal.Decimal
	DefaultAffiliateRate decimal.Decimal
}

// creditLeg is one share of a sale paid out of the buyer's debit.
type creditLeg struct {
	wallet uuid.UUID
	amount decimal.Decimal
	suffix string
}

type Orchestrator struct {
	store  repository.Store
	ledger *ledger.Ledger
	alloc  *inventory.Allocator
	cache  repository.Cache
	bus    repository.MessageBus
	cfg    Config
	logger *slog.Logger
}

func NewOrchestrator(
	store repository.Store,
	l *ledger.Ledger,
	alloc *inventory.Allocator,
	cache repository.Cache,
	bus repository.MessageBus,
	cfg Config,
	logger *slog.Logger,
) *Orchestrator {
	if cache == nil {
		cache = repository.NopCache{}
	}
	if bus == nil {
		bus = repository.NopBus{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{store: store, ledger: l, alloc: alloc, cache: cache, bus: bus, cfg: cfg, logger: logger}
}

// Purchase buys one unit of the variant for the buyer. Repeating a request
// with the same idempotency key returns the original receipt with no new
// effects.
func (o *Orchestrator) Purchase(ctx context.Context, req model.PurchaseRequest) (*model.Receipt, error) {
	const op = "purchase.Purchase"

	if req.IdempotencyKey == "" {
		return nil, apperr.Invalid(op, "idempotency key", `""`)
	}
	if req.BuyerID == uuid.Nil || req.VariantID == uuid.Nil {
		return nil, apperr.New(op, apperr.InvalidRequest, "buyer and variant are required")
	}

	if r, ok, err := o.cache.Receipt(ctx, req.BuyerID, req.IdempotencyKey); err != nil {
		o.logger.Warn("receipt cache lookup failed", "buyer_id", req.BuyerID, "key", req.IdempotencyKey, "error", err)
	} else if ok && r.Purchase.VariantID == req.VariantID {
		r.Replayed = true
		return r, nil
	}

	var (
		receipt *model.Receipt
		touched []uuid.UUID
	)
	err := o.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		receipt, touched, err = o.purchase(ctx, tx, req)
		return err
	})
	if err != nil {
		o.audit(ctx, req, err)
		return nil, apperr.Wrap(op, err)
	}
	if receipt.Replayed {
		return receipt, nil
	}

	p := receipt.Purchase
	o.logger.Info("purchase completed",
		"purchase_id", p.ID,
		"buyer_id", p.BuyerID,
		"unit_kind", p.Unit.Kind,
		"amount", p.Amount.StringFixed(2),
	)
	o.afterCommit(ctx, receipt, touched)
	return receipt, nil
}

func (o *Orchestrator) purchase(ctx context.Context, tx repository.Tx, req model.PurchaseRequest) (*model.Receipt, []uuid.UUID, error) {
	const op = "purchase.Purchase"

	prior, err := tx.GetPurchaseByKey(ctx, req.BuyerID, req.IdempotencyKey)
	switch {
	case err == nil:
		r, err := o.replay(ctx, tx, prior, req)
		return r, nil, err
	case !errors.Is(err, repository.ErrNotFound):
		return nil, nil, err
	}

	listing, err := tx.GetListing(ctx, req.VariantID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && !listing.Sellable()) {
		return nil, nil, apperr.Newf(op, apperr.ProductNotFound, "variant %s is not for sale", req.VariantID)
	}
	if err != nil {
		return nil, nil, err
	}
	if listing.Product.ProviderID == req.BuyerID {
		return nil, nil, apperr.New(op, apperr.InvalidRequest, "providers cannot buy their own products")
	}

	cfg, err := o.commissionConfig(ctx, tx)
	if err != nil {
		return nil, nil, err
	}
	affiliate, err := tx.ApprovedAffiliateFor(ctx, req.BuyerID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, nil, err
	}
	if affiliate != nil && (affiliate.UserID == req.BuyerID || affiliate.UserID == listing.Product.ProviderID) {
		affiliate = nil
	}

	unit, err := o.alloc.ClaimUnit(ctx, tx, listing.Product.ID)
	if err != nil {
		return nil, nil, err
	}

	price, currency := listing.Variant.Price, listing.Variant.Currency
	owners := []uuid.UUID{req.BuyerID, listing.Product.ProviderID, o.cfg.PlatformUserID}
	if affiliate != nil {
		owners = append(owners, affiliate.UserID)
	}
	wallets := make([]*model.Wallet, len(owners))
	ids := make([]uuid.UUID, len(owners))
	for i, owner := range owners {
		w, err := ledger.EnsureWallet(ctx, tx, owner, currency)
		if err != nil {
			return nil, nil, err
		}
		wallets[i], ids[i] = w, w.ID
	}
	if _, err := o.ledger.Lock(ctx, tx, ids...); err != nil {
		return nil, nil, err
	}
	buyer, provider, platform := wallets[0], wallets[1], wallets[2]

	purchaseID := uuid.New()
	ref := model.Reference{Type: model.RefPurchase, ID: purchaseID}
	key := fmt.Sprintf("purchase:%s:%s", req.BuyerID, req.IdempotencyKey)

	debit, err := o.ledger.Debit(ctx, tx, buyer.ID, price, key+":debit", ref)
	if err != nil {
		return nil, nil, err
	}

	split := ComputeSplit(price, cfg.Rate, cfg.AffiliateRate, affiliate != nil)
	legs := []creditLeg{
		{provider.ID, split.Provider, ":provider"},
		{platform.ID, split.Platform, ":platform"},
	}
	if affiliate != nil {
		legs = append(legs, creditLeg{wallets[3].ID, split.Affiliate, ":affiliate"})
	}
	for _, leg := range legs {
		if leg.amount.IsZero() {
			continue
		}
		if _, err := o.ledger.CreditFrom(ctx, tx, leg.wallet, buyer.ID, leg.amount, key+leg.suffix, ref); err != nil {
			return nil, nil, err
		}
	}

	now := time.Now().UTC()
	p := &model.Purchase{
		ID:                  purchaseID,
		BuyerID:             req.BuyerID,
		ProviderID:          listing.Product.ProviderID,
		PlatformID:          o.cfg.PlatformUserID,
		ProductID:           listing.Product.ID,
		VariantID:           listing.Variant.ID,
		Amount:              price,
		Currency:            currency,
		ConfigVersion:       cfg.Version,
		CommissionRate:      cfg.Rate,
		ProviderEarnings:    split.Provider,
		PlatformCommission:  split.Platform,
		AffiliateCommission: split.Affiliate,
		RefundedAmount:      decimal.Zero,
		Status:              model.PurchaseCompleted,
		Unit:                *unit,
		IdempotencyKey:      req.IdempotencyKey,
		CompletedAt:         &now,
	}
	if affiliate != nil {
		p.AffiliateID = &affiliate.UserID
	}
	if err := tx.InsertPurchase(ctx, p); err != nil {
		return nil, nil, fmt.Errorf("insert purchase: %w", err)
	}

	return &model.Receipt{Purchase: *p, NewBalance: debit.Wallet.Balance}, ids, nil
}

func (o *Orchestrator) replay(ctx context.Context, tx repository.Tx, prior *model.Purchase, req model.PurchaseRequest) (*model.Receipt, error) {
	const op = "purchase.Purchase"

	if prior.VariantID != req.VariantID {
		return nil, apperr.Newf(op, apperr.DuplicateIdempotencyKey,
			"idempotency key %q was used for variant %s", req.IdempotencyKey, prior.VariantID)
	}

	balance := decimal.Zero
	key := fmt.Sprintf("purchase:%s:%s:debit", req.BuyerID, req.IdempotencyKey)
	if entry, err := tx.GetLedgerTxByKey(ctx, key); err == nil {
		balance = entry.BalanceAfter
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	return &model.Receipt{Purchase: *prior, NewBalance: balance, Replayed: true}, nil
}

// commissionConfig returns the latest stored version, or the configured
// default as version 0.
func (o *Orchestrator) commissionConfig(ctx context.Context, tx repository.Tx) (*model.CommissionConfig, error) {
	cfg, err := tx.LatestCommissionConfig(ctx)
	if errors.Is(err, repository.ErrNotFound) {
		return &model.CommissionConfig{Rate: o.cfg.DefaultRate, AffiliateRate: o.cfg.DefaultAffiliateRate}, nil
	}
	return cfg, err
}

func (o *Orchestrator) afterCommit(ctx context.Context, r *model.Receipt, touched []uuid.UUID) {
	p := r.Purchase

	if err := o.cache.InvalidateBalances(ctx, touched...); err != nil {
		o.logger.Warn("balance cache invalidation failed", "purchase_id", p.ID, "error", err)
	}
	if err := o.cache.SetReceipt(ctx, p.BuyerID, p.IdempotencyKey, r); err != nil {
		o.logger.Warn("receipt cache write failed", "purchase_id", p.ID, "error", err)
	}

	event := model.LedgerEvent{
		Topic:      model.TopicPurchaseCompleted,
		EntityID:   p.ID,
		WalletIDs:  touched,
		Amount:     p.Amount,
		Status:     string(p.Status),
		OccurredAt: time.Now().UTC(),
	}
	if err := repository.PublishEvent(o.bus, event); err != nil {
		o.logger.Error("failed to publish purchase event", "purchase_id", p.ID, "error", err)
	}
}

// audit records a failed attempt in its own unit of work, after the
// purchase unit of work rolled back.
func (o *Orchestrator) audit(ctx context.Context, req model.PurchaseRequest, cause error) {
	msg := apperr.Message(cause)
	entry := &model.AuditEntry{
		ID:        uuid.New(),
		RequestID: req.IdempotencyKey,
		Action:    "purchase",
		Status:    string(apperr.KindOf(cause)),
		Message:   &msg,
	}
	err := o.store.WithinTx(context.WithoutCancel(ctx), func(ctx context.Context, tx repository.Tx) error {
		return tx.InsertAudit(ctx, entry)
	})
	if err != nil {
		o.logger.Error("failed to write audit entry", "key", req.IdempotencyKey, "error", err)
	}
	o.logger.Warn("purchase failed", "buyer_id", req.BuyerID, "variant_id", req.VariantID, "error", cause)
}

// Get loads a purchase visible to the viewer: its buyer, its provider, or
// anyone when viewer is uuid.Nil.
func (o *Orchestrator) Get(ctx context.Context, id, viewer uuid.UUID) (*model.Purchase, error) {
	const op = "purchase.Get"

	var out *model.Purchase
	err := o.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		p, err := tx.GetPurchase(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFoundf(op, "purchase", id)
		}
		out = p
		return err
	})
	if err != nil {
		return nil, apperr.Wrap(op, err)
	}
	if viewer != uuid.Nil && viewer != out.BuyerID && viewer != out.ProviderID {
		return nil, apperr.NotFoundf(op, "purchase", id)
	}
	return out, nil
}
