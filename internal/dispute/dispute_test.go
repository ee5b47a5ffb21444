package dispute

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyHouston256/stream-sales-sub004/internal/apperr"
	"github.com/soyHouston256/stream-sales-sub004/internal/inventory"
	"github.com/soyHouston256/stream-sales-sub004/internal/ledger"
	"github.com/soyHouston256/stream-sales-sub004/internal/model"
	"github.com/soyHouston256/stream-sales-sub004/internal/purchase"
	"github.com/soyHouston256/stream-sales-sub004/internal/repository"
	"github.com/soyHouston256/stream-sales-sub004/internal/repository/memstore"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func pct(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

// receiptCache keeps purchase receipts in a map so replays can be served
// from it the way Redis serves them in production.
type receiptCache struct {
	repository.NopCache
	mu       sync.Mutex
	receipts map[string]model.Receipt
}

func (c *receiptCache) Receipt(_ context.Context, buyerID uuid.UUID, key string) (*model.Receipt, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.receipts[buyerID.String()+"|"+key]
	return &r, ok, nil
}

func (c *receiptCache) SetReceipt(_ context.Context, buyerID uuid.UUID, key string, r *model.Receipt) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.receipts[buyerID.String()+"|"+key] = *r
	return nil
}

func (c *receiptCache) InvalidateReceipt(_ context.Context, buyerID uuid.UUID, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.receipts, buyerID.String()+"|"+key)
	return nil
}

type fixture struct {
	wallets   *ledger.Wallets
	inventory *inventory.Service
	orch      *purchase.Orchestrator
	resolver  *Resolver
	cache     *receiptCache
	platform  uuid.UUID
	provider  uuid.UUID
	buyer     uuid.UUID
	affiliate uuid.UUID
	admin     uuid.UUID
	product   *model.Product
	variant   *model.Variant
	sale      *model.Purchase
}

type saleSetup struct {
	// stock adds the unit that is sold. A license when nil.
	stock func(t *testing.T, f *fixture)
	// withAffiliate sells at 10% commission, 3% of it to an approved
	// affiliate who referred the buyer.
	withAffiliate bool
}

// newFixture sells one license priced at 100 to a buyer who deposited 100.
func newFixture(t *testing.T) *fixture {
	return newSale(t, saleSetup{})
}

func newSale(t *testing.T, setup saleSetup) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memstore.New()
	l := ledger.New()
	alloc := inventory.NewAllocator()
	f := &fixture{
		wallets:   ledger.NewWallets(store, l, "USD", nil),
		inventory: inventory.NewService(store, nil),
		cache:     &receiptCache{receipts: map[string]model.Receipt{}},
		platform:  uuid.New(),
		provider:  uuid.New(),
		buyer:     uuid.New(),
		affiliate: uuid.New(),
		admin:     uuid.New(),
	}
	f.resolver = NewResolver(store, l, alloc, f.cache, nil, nil)
	f.orch = purchase.NewOrchestrator(store, l, alloc, f.cache, nil, purchase.Config{
		PlatformUserID:       f.platform,
		DefaultRate:          dec("0.05"),
		DefaultAffiliateRate: decimal.Zero,
	}, nil)

	var err error
	f.product, err = f.inventory.CreateProduct(ctx, f.provider, "Music Family")
	require.NoError(t, err)
	f.variant, err = f.inventory.AddVariant(ctx, f.product.ID, "12 months", dec("100"), "USD")
	require.NoError(t, err)
	if setup.stock == nil {
		_, err = f.inventory.AddLicense(ctx, f.product.ID, "vault://lic/1")
		require.NoError(t, err)
	} else {
		setup.stock(t, f)
	}

	if setup.withAffiliate {
		_, err = f.orch.SetCommission(ctx, dec("0.10"), dec("0.03"))
		require.NoError(t, err)
		_, err = f.orch.SetAffiliateStatus(ctx, f.affiliate, model.AffiliateApproved)
		require.NoError(t, err)
		require.NoError(t, f.orch.Refer(ctx, f.buyer, f.affiliate))
	}

	w, err := f.wallets.Open(ctx, f.buyer)
	require.NoError(t, err)
	_, err = f.wallets.Deposit(ctx, model.DepositRequest{WalletID: w.ID, Amount: dec("100"), IdempotencyKey: "seed"})
	require.NoError(t, err)

	r, err := f.orch.Purchase(ctx, model.PurchaseRequest{BuyerID: f.buyer, VariantID: f.variant.ID, IdempotencyKey: "buy"})
	require.NoError(t, err)
	f.sale = &r.Purchase
	return f
}

func (f *fixture) assertReconciled(t *testing.T) {
	t.Helper()
	all, err := f.wallets.ReconcileAll(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, all)
	for _, rec := range all {
		assert.True(t, rec.Balanced(), rec.WalletID)
	}
}

func (f *fixture) underReview(t *testing.T) *model.Dispute {
	t.Helper()
	ctx := context.Background()
	d, err := f.resolver.Open(ctx, model.OpenDisputeRequest{PurchaseID: f.sale.ID, BuyerID: f.buyer, Reason: "credentials rejected"})
	require.NoError(t, err)
	d, err = f.resolver.StartReview(ctx, d.ID, f.admin)
	require.NoError(t, err)
	require.Equal(t, model.DisputeUnderReview, d.Status)
	return d
}

func (f *fixture) balance(t *testing.T, owner uuid.UUID) decimal.Decimal {
	t.Helper()
	w, err := f.wallets.Open(context.Background(), owner)
	require.NoError(t, err)
	return w.Balance
}

func (f *fixture) stock(t *testing.T) int {
	t.Helper()
	s, err := f.inventory.Stock(context.Background(), f.product.ID)
	require.NoError(t, err)
	return s.Total()
}

func TestPartialRefundSplitsProportionally(t *testing.T) {
	p := model.Purchase{
		Amount:              dec("9.99"),
		ProviderEarnings:    dec("9.29"),
		PlatformCommission:  dec("0.50"),
		AffiliateCommission: dec("0.20"),
	}
	r := PartialRefund(p, dec("33.33"))

	assert.True(t, r.Buyer.Equal(dec("3.33")))
	assert.True(t, r.Provider.Add(r.Platform).Add(r.Affiliate).Equal(r.Buyer))
	assert.False(t, r.Platform.IsNegative())
}

func TestFullRefundReversesSale(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.True(t, f.balance(t, f.provider).Equal(dec("95")))
	require.Equal(t, 0, f.stock(t))
	d := f.underReview(t)

	out, err := f.resolver.Resolve(ctx, model.ResolveRequest{DisputeID: d.ID, ResolverID: f.admin, Type: model.ResolutionRefundSeller})
	require.NoError(t, err)

	assert.Equal(t, model.DisputeResolved, out.Dispute.Status)
	assert.Equal(t, model.PurchaseRefunded, out.Purchase.Status)
	assert.True(t, out.Dispute.RefundedAmount.Equal(dec("100")))
	assert.True(t, f.balance(t, f.buyer).Equal(dec("100")))
	assert.True(t, f.balance(t, f.provider).IsZero())
	assert.True(t, f.balance(t, f.platform).IsZero())
	assert.Equal(t, 1, f.stock(t), "refunded unit returns to stock")
	assert.Equal(t, f.platform, out.Purchase.PlatformID)
	f.assertReconciled(t)
}

func TestRefundSellerReversesAffiliateLeg(t *testing.T) {
	ctx := context.Background()
	f := newSale(t, saleSetup{withAffiliate: true})
	require.NotNil(t, f.sale.AffiliateID)
	require.True(t, f.balance(t, f.provider).Equal(dec("90")))
	require.True(t, f.balance(t, f.platform).Equal(dec("7")))
	require.True(t, f.balance(t, f.affiliate).Equal(dec("3")))
	d := f.underReview(t)

	out, err := f.resolver.Resolve(ctx, model.ResolveRequest{DisputeID: d.ID, ResolverID: f.admin, Type: model.ResolutionRefundSeller})
	require.NoError(t, err)

	assert.Equal(t, model.PurchaseRefunded, out.Purchase.Status)
	assert.True(t, f.balance(t, f.buyer).Equal(dec("100")))
	assert.True(t, f.balance(t, f.provider).IsZero())
	assert.True(t, f.balance(t, f.platform).IsZero())
	assert.True(t, f.balance(t, f.affiliate).IsZero())
	assert.Equal(t, 1, f.stock(t))
	f.assertReconciled(t)
}

func TestPartialRefundTakesAffiliateShare(t *testing.T) {
	ctx := context.Background()
	f := newSale(t, saleSetup{withAffiliate: true})
	d := f.underReview(t)

	out, err := f.resolver.Resolve(ctx, model.ResolveRequest{
		DisputeID:  d.ID,
		ResolverID: f.admin,
		Type:       model.ResolutionPartialRefund,
		Percentage: pct("50"),
	})
	require.NoError(t, err)

	assert.Equal(t, model.PurchasePartialRefund, out.Purchase.Status)
	assert.True(t, f.balance(t, f.buyer).Equal(dec("50")))
	assert.True(t, f.balance(t, f.provider).Equal(dec("45")))
	assert.True(t, f.balance(t, f.platform).Equal(dec("3.50")))
	assert.True(t, f.balance(t, f.affiliate).Equal(dec("1.50")))
	assert.Equal(t, 0, f.stock(t))
	f.assertReconciled(t)
}

func TestFullRefundReleasesProfileSlot(t *testing.T) {
	ctx := context.Background()
	f := newSale(t, saleSetup{stock: func(t *testing.T, f *fixture) {
		_, slots, err := f.inventory.AddSharedAccount(context.Background(), f.product.ID, "Family plan", "vault://acc/1",
			[]string{"vault://acc/1/p1", "vault://acc/1/p2"})
		require.NoError(t, err)
		require.Len(t, slots, 2)
	}})
	require.Equal(t, model.UnitSlot, f.sale.Unit.Kind)
	require.NotNil(t, f.sale.Unit.AccountID)
	require.Equal(t, 1, f.stock(t))
	d := f.underReview(t)

	_, err := f.resolver.Resolve(ctx, model.ResolveRequest{DisputeID: d.ID, ResolverID: f.admin, Type: model.ResolutionRefundSeller})
	require.NoError(t, err)

	s, err := f.inventory.Stock(ctx, f.product.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Available[model.UnitSlot], "the refunded profile is sellable again")
	assert.Equal(t, 0, s.Available[model.UnitAccount])
	f.assertReconciled(t)
}

func TestPurchaseRetryAfterRefundShowsRefund(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	retry := model.PurchaseRequest{BuyerID: f.buyer, VariantID: f.variant.ID, IdempotencyKey: "buy"}

	cached, err := f.orch.Purchase(ctx, retry)
	require.NoError(t, err)
	require.True(t, cached.Replayed)
	require.Equal(t, model.PurchaseCompleted, cached.Purchase.Status)

	d := f.underReview(t)
	_, err = f.resolver.Resolve(ctx, model.ResolveRequest{DisputeID: d.ID, ResolverID: f.admin, Type: model.ResolutionRefundSeller})
	require.NoError(t, err)

	again, err := f.orch.Purchase(ctx, retry)
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, f.sale.ID, again.Purchase.ID)
	assert.Equal(t, model.PurchaseRefunded, again.Purchase.Status)
	assert.True(t, again.Purchase.RefundedAmount.Equal(dec("100")))
	assert.True(t, f.balance(t, f.buyer).Equal(dec("100")), "the retry buys nothing")
}

func TestPartialRefundKeepsUnitAssigned(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	d := f.underReview(t)

	out, err := f.resolver.Resolve(ctx, model.ResolveRequest{
		DisputeID:  d.ID,
		ResolverID: f.admin,
		Type:       model.ResolutionPartialRefund,
		Percentage: pct("50"),
	})
	require.NoError(t, err)

	assert.Equal(t, model.PurchasePartialRefund, out.Purchase.Status)
	assert.True(t, out.Purchase.RefundedAmount.Equal(dec("50")))
	assert.True(t, f.balance(t, f.buyer).Equal(dec("50")))
	assert.True(t, f.balance(t, f.provider).Equal(dec("47.50")))
	assert.True(t, f.balance(t, f.platform).Equal(dec("2.50")))
	assert.Equal(t, 0, f.stock(t))
}

func TestNoRefundMovesNoMoney(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	d := f.underReview(t)

	out, err := f.resolver.Resolve(ctx, model.ResolveRequest{DisputeID: d.ID, ResolverID: f.admin, Type: model.ResolutionNoRefund})
	require.NoError(t, err)

	assert.Equal(t, model.PurchaseCompleted, out.Purchase.Status)
	assert.True(t, out.Dispute.RefundedAmount.IsZero())
	assert.True(t, f.balance(t, f.buyer).IsZero())
	assert.True(t, f.balance(t, f.provider).Equal(dec("95")))
}

func TestResolveIsReplayable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	d := f.underReview(t)
	req := model.ResolveRequest{DisputeID: d.ID, ResolverID: f.admin, Type: model.ResolutionRefundSeller}

	_, err := f.resolver.Resolve(ctx, req)
	require.NoError(t, err)
	again, err := f.resolver.Resolve(ctx, req)
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.True(t, f.balance(t, f.buyer).Equal(dec("100")), "refund is not paid twice")

	req.Type = model.ResolutionNoRefund
	_, err = f.resolver.Resolve(ctx, req)
	assert.ErrorIs(t, err, apperr.ErrInvalidDisputeTransition)
}

func TestDisputeTransitions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.resolver.Open(ctx, model.OpenDisputeRequest{PurchaseID: f.sale.ID, BuyerID: uuid.New(), Reason: "not mine"})
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = f.resolver.Open(ctx, model.OpenDisputeRequest{PurchaseID: f.sale.ID, BuyerID: f.buyer})
	assert.ErrorIs(t, err, apperr.ErrInvalidRequest)

	d, err := f.resolver.Open(ctx, model.OpenDisputeRequest{PurchaseID: f.sale.ID, BuyerID: f.buyer, Reason: "expired"})
	require.NoError(t, err)
	_, err = f.resolver.Open(ctx, model.OpenDisputeRequest{PurchaseID: f.sale.ID, BuyerID: f.buyer, Reason: "again"})
	assert.ErrorIs(t, err, apperr.ErrInvalidDisputeTransition)

	_, err = f.resolver.Resolve(ctx, model.ResolveRequest{DisputeID: d.ID, ResolverID: f.admin, Type: model.ResolutionNoRefund})
	assert.ErrorIs(t, err, apperr.ErrInvalidDisputeTransition, "open disputes must be reviewed first")
	_, err = f.resolver.Close(ctx, d.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidDisputeTransition)

	_, err = f.resolver.Withdraw(ctx, d.ID, uuid.New())
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	d, err = f.resolver.Withdraw(ctx, d.ID, f.buyer)
	require.NoError(t, err)
	assert.Equal(t, model.DisputeClosed, d.Status)
	assert.NotNil(t, d.ClosedAt)

	_, err = f.resolver.StartReview(ctx, d.ID, f.admin)
	assert.ErrorIs(t, err, apperr.ErrInvalidDisputeTransition)
}

func TestResolveValidatesPercentage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	d := f.underReview(t)

	for _, p := range []*decimal.Decimal{nil, pct("0"), pct("100"), pct("12.345")} {
		_, err := f.resolver.Resolve(ctx, model.ResolveRequest{DisputeID: d.ID, ResolverID: f.admin, Type: model.ResolutionPartialRefund, Percentage: p})
		assert.ErrorIs(t, err, apperr.ErrInvalidRequest)
	}
	_, err := f.resolver.Resolve(ctx, model.ResolveRequest{DisputeID: d.ID, ResolverID: f.admin, Type: "refund_everyone"})
	assert.ErrorIs(t, err, apperr.ErrInvalidRequest)

	got, err := f.resolver.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DisputeUnderReview, got.Status)
}

func TestCloseAfterResolve(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	d := f.underReview(t)

	_, err := f.resolver.Resolve(ctx, model.ResolveRequest{DisputeID: d.ID, ResolverID: f.admin, Type: model.ResolutionRefundProvider})
	require.NoError(t, err)
	closed, err := f.resolver.Close(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DisputeClosed, closed.Status)
	require.NotNil(t, closed.Resolution)
	assert.Equal(t, model.ResolutionRefundProvider, *closed.Resolution)
}
