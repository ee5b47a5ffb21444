package purchase

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
	"github.com/soyHouston256/stream-sales-sub004/internal/repository/memstore"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type recordingBus struct {
	mu     sync.Mutex
	topics []string
}

func (b *recordingBus) Publish(topic string, _ []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.topics = append(b.topics, topic)
	return nil
}

type fixture struct {
	store     *memstore.Store
	wallets   *ledger.Wallets
	inventory *inventory.Service
	orch      *Orchestrator
	bus       *recordingBus
	platform  uuid.UUID
	provider  uuid.UUID
	product   *model.Product
	variant   *model.Variant
}

func newFixture(t *testing.T, price string) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memstore.New()
	l := ledger.New()
	f := &fixture{
		store:     store,
		wallets:   ledger.NewWallets(store, l, "USD", nil),
		inventory: inventory.NewService(store, nil),
		bus:       &recordingBus{},
		platform:  uuid.New(),
		provider:  uuid.New(),
	}
	f.orch = NewOrchestrator(store, l, inventory.NewAllocator(), nil, f.bus, Config{
		PlatformUserID:       f.platform,
		DefaultRate:          dec("0.05"),
		DefaultAffiliateRate: decimal.Zero,
	}, nil)

	var err error
	f.product, err = f.inventory.CreateProduct(ctx, f.provider, "Streaming Premium")
	require.NoError(t, err)
	f.variant, err = f.inventory.AddVariant(ctx, f.product.ID, "1 month", dec(price), "USD")
	require.NoError(t, err)
	return f
}

func (f *fixture) buyer(t *testing.T, balance string) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	id := uuid.New()
	w, err := f.wallets.Open(ctx, id)
	require.NoError(t, err)
	_, err = f.wallets.Deposit(ctx, model.DepositRequest{WalletID: w.ID, Amount: dec(balance), IdempotencyKey: uuid.NewString()})
	require.NoError(t, err)
	return id
}

func (f *fixture) stock(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := f.inventory.AddLicense(context.Background(), f.product.ID, uuid.NewString())
		require.NoError(t, err)
	}
}

func (f *fixture) balance(t *testing.T, owner uuid.UUID) decimal.Decimal {
	t.Helper()
	w, err := f.wallets.Open(context.Background(), owner)
	require.NoError(t, err)
	return w.Balance
}

func TestComputeSplit(t *testing.T) {
	s := ComputeSplit(dec("100"), dec("0.05"), decimal.Zero, false)
	assert.True(t, s.Provider.Equal(dec("95")))
	assert.True(t, s.Platform.Equal(dec("5")))
	assert.True(t, s.Affiliate.IsZero())

	s = ComputeSplit(dec("9.99"), dec("0.05"), dec("0.02"), true)
	assert.True(t, s.Platform.Add(s.Affiliate).Equal(dec("0.50")))
	assert.True(t, s.Affiliate.Equal(dec("0.20")))
	assert.True(t, s.Provider.Add(s.Commission()).Equal(dec("9.99")))

	s = ComputeSplit(dec("10"), dec("0.01"), dec("0.05"), true)
	assert.True(t, s.Affiliate.Equal(s.Commission()), "affiliate share is capped at the commission")
	assert.True(t, s.Platform.IsZero())
}

func TestPurchaseEndToEnd(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "30")
	account, err := f.inventory.AddAccount(ctx, f.product.ID, "Premium 1", "vault://acc/1")
	require.NoError(t, err)
	buyer := f.buyer(t, "50")

	r, err := f.orch.Purchase(ctx, model.PurchaseRequest{BuyerID: buyer, VariantID: f.variant.ID, IdempotencyKey: "k1"})
	require.NoError(t, err)

	assert.False(t, r.Replayed)
	assert.Equal(t, model.PurchaseCompleted, r.Purchase.Status)
	assert.Equal(t, model.UnitAccount, r.Purchase.Unit.Kind)
	assert.Equal(t, account.ID, r.Purchase.Unit.UnitID)
	assert.Equal(t, f.platform, r.Purchase.PlatformID)
	assert.True(t, r.NewBalance.Equal(dec("20")))
	assert.True(t, f.balance(t, buyer).Equal(dec("20")))
	assert.True(t, f.balance(t, f.provider).Equal(dec("28.50")))
	assert.True(t, f.balance(t, f.platform).Equal(dec("1.50")))
	assert.Equal(t, int64(0), r.Purchase.ConfigVersion)
	assert.Equal(t, []string{model.TopicPurchaseCompleted}, f.bus.topics)

	all, err := f.wallets.ReconcileAll(ctx)
	require.NoError(t, err)
	for _, rec := range all {
		assert.True(t, rec.Balanced(), rec.WalletID)
	}
}

func TestPurchaseRetryIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "30")
	f.stock(t, 2)
	buyer := f.buyer(t, "100")
	req := model.PurchaseRequest{BuyerID: buyer, VariantID: f.variant.ID, IdempotencyKey: "retry-me"}

	first, err := f.orch.Purchase(ctx, req)
	require.NoError(t, err)
	second, err := f.orch.Purchase(ctx, req)
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Equal(t, first.Purchase.ID, second.Purchase.ID)
	assert.True(t, second.NewBalance.Equal(dec("70")))
	assert.True(t, f.balance(t, buyer).Equal(dec("70")))

	stock, err := f.inventory.Stock(ctx, f.product.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stock.Total())

	_, err = f.orch.Purchase(ctx, model.PurchaseRequest{BuyerID: buyer, VariantID: uuid.New(), IdempotencyKey: "retry-me"})
	assert.ErrorIs(t, err, apperr.ErrDuplicateIdempotencyKey)
}

func TestPurchaseInsufficientFundsRollsBackClaim(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "30")
	f.stock(t, 1)
	buyer := f.buyer(t, "29.99")

	_, err := f.orch.Purchase(ctx, model.PurchaseRequest{BuyerID: buyer, VariantID: f.variant.ID, IdempotencyKey: "k1"})
	assert.ErrorIs(t, err, apperr.ErrInsufficientFunds)

	stock, err := f.inventory.Stock(ctx, f.product.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stock.Total())
	assert.True(t, f.balance(t, buyer).Equal(dec("29.99")))
	assert.True(t, f.balance(t, f.provider).IsZero())

	audit := f.store.AuditEntries()
	require.Len(t, audit, 1)
	assert.Equal(t, string(apperr.InsufficientFunds), audit[0].Status)
	assert.Empty(t, f.bus.topics)
}

func TestPurchaseUnknownOrInactiveVariant(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "30")
	buyer := f.buyer(t, "50")

	_, err := f.orch.Purchase(ctx, model.PurchaseRequest{BuyerID: buyer, VariantID: uuid.New(), IdempotencyKey: "k1"})
	assert.ErrorIs(t, err, apperr.ErrProductNotFound)

	_, err = f.orch.Purchase(ctx, model.PurchaseRequest{BuyerID: buyer, VariantID: f.variant.ID, IdempotencyKey: "k2"})
	assert.ErrorIs(t, err, apperr.ErrOutOfStock)
}

func TestLastUnitRaceHasOneWinner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "30")
	f.stock(t, 1)
	buyers := []uuid.UUID{f.buyer(t, "50"), f.buyer(t, "50")}

	errs := make([]error, len(buyers))
	var wg sync.WaitGroup
	for i, b := range buyers {
		wg.Add(1)
		go func(i int, b uuid.UUID) {
			defer wg.Done()
			_, errs[i] = f.orch.Purchase(ctx, model.PurchaseRequest{BuyerID: b, VariantID: f.variant.ID, IdempotencyKey: "race"})
		}(i, b)
	}
	wg.Wait()

	var ok, outOfStock int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case apperr.KindOf(err) == apperr.OutOfStock:
			outOfStock++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, outOfStock)

	total := f.balance(t, buyers[0]).Add(f.balance(t, buyers[1])).
		Add(f.balance(t, f.provider)).Add(f.balance(t, f.platform))
	assert.True(t, total.Equal(dec("100")), "money is conserved")
}

func TestPurchasePaysApprovedAffiliate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "100")
	f.stock(t, 2)
	buyer := f.buyer(t, "200")
	affiliate := uuid.New()

	_, err := f.orch.SetCommission(ctx, dec("0.10"), dec("0.03"))
	require.NoError(t, err)
	_, err = f.orch.SetAffiliateStatus(ctx, affiliate, model.AffiliatePending)
	require.NoError(t, err)
	require.NoError(t, f.orch.Refer(ctx, buyer, affiliate))

	r, err := f.orch.Purchase(ctx, model.PurchaseRequest{BuyerID: buyer, VariantID: f.variant.ID, IdempotencyKey: "p1"})
	require.NoError(t, err)
	assert.Nil(t, r.Purchase.AffiliateID, "pending affiliates earn nothing")
	assert.True(t, r.Purchase.PlatformCommission.Equal(dec("10")))
	assert.Equal(t, int64(1), r.Purchase.ConfigVersion)

	_, err = f.orch.SetAffiliateStatus(ctx, affiliate, model.AffiliateApproved)
	require.NoError(t, err)
	r, err = f.orch.Purchase(ctx, model.PurchaseRequest{BuyerID: buyer, VariantID: f.variant.ID, IdempotencyKey: "p2"})
	require.NoError(t, err)

	require.NotNil(t, r.Purchase.AffiliateID)
	assert.True(t, r.Purchase.AffiliateCommission.Equal(dec("3")))
	assert.True(t, r.Purchase.PlatformCommission.Equal(dec("7")))
	assert.True(t, f.balance(t, affiliate).Equal(dec("3")))
	assert.True(t, f.balance(t, f.provider).Equal(dec("180")))
	assert.True(t, f.balance(t, f.platform).Equal(dec("17")))
}

func TestSetCommissionValidatesRates(t *testing.T) {
	f := newFixture(t, "10")

	_, err := f.orch.SetCommission(context.Background(), dec("1.5"), decimal.Zero)
	assert.ErrorIs(t, err, apperr.ErrInvalidRequest)
	_, err = f.orch.SetCommission(context.Background(), dec("0.05"), dec("0.06"))
	assert.ErrorIs(t, err, apperr.ErrInvalidRequest)
	_, err = f.orch.SetCommission(context.Background(), dec("0.12345"), decimal.Zero)
	assert.ErrorIs(t, err, apperr.ErrInvalidRequest, "rates keep at most four decimals")
	_, err = f.orch.SetCommission(context.Background(), dec("0.1"), dec("0.00001"))
	assert.ErrorIs(t, err, apperr.ErrInvalidRequest)

	c, err := f.orch.SetCommission(context.Background(), dec("0.1234"), dec("0.0125"))
	require.NoError(t, err)
	assert.True(t, c.Rate.Equal(dec("0.1234")))
}
