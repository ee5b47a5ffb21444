package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/soyHouston256/stream-sales-sub004/internal/apperr"
	"github.com/soyHouston256/stream-sales-sub004/internal/dispute"
	"github.com/soyHouston256/stream-sales-sub004/internal/inventory"
	"github.com/soyHouston256/stream-sales-sub004/internal/ledger"
	"github.com/soyHouston256/stream-sales-sub004/internal/model"
	"github.com/soyHouston256/stream-sales-sub004/internal/purchase"
	"github.com/soyHouston256/stream-sales-sub004/internal/repository"
)

// MarketService defines the business operations of the marketplace.
// All transport layers (HTTP, gRPC, NATS) and the worker depend on this
// interface, not on the concrete components.
type MarketService interface {
	Ping(ctx context.Context) error

	OpenWallet(ctx context.Context, ownerID uuid.UUID) (*model.Wallet, error)
	GetWallet(ctx context.Context, id uuid.UUID) (*model.Wallet, error)
	Balance(ctx context.Context, walletID uuid.UUID) (decimal.Decimal, error)
	Deposit(ctx context.Context, req model.DepositRequest) (*ledger.Posting, error)
	Withdraw(ctx context.Context, req model.DepositRequest) (*ledger.Posting, error)
	History(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]model.LedgerTransaction, error)
	Reconcile(ctx context.Context, walletID uuid.UUID) (*model.Reconciliation, error)
	ReconcileAll(ctx context.Context) ([]model.Reconciliation, error)
	SetWalletStatus(ctx context.Context, id uuid.UUID, status model.WalletStatus) (*model.Wallet, error)

	CreateProduct(ctx context.Context, providerID uuid.UUID, name string) (*model.Product, error)
	AddVariant(ctx context.Context, productID uuid.UUID, name string, price decimal.Decimal) (*model.Variant, error)
	AddAccount(ctx context.Context, productID uuid.UUID, label, credentialRef string) (*model.InventoryUnit, error)
	AddSharedAccount(ctx context.Context, productID uuid.UUID, label, credentialRef string, slotRefs []string) (*model.InventoryUnit, []model.InventoryUnit, error)
	AddLicense(ctx context.Context, productID uuid.UUID, credentialRef string) (*model.InventoryUnit, error)
	RevokeLicense(ctx context.Context, id uuid.UUID) error
	DisableAccount(ctx context.Context, id uuid.UUID) error
	Stock(ctx context.Context, productID uuid.UUID) (*model.Stock, error)

	Purchase(ctx context.Context, req model.PurchaseRequest) (*model.Receipt, error)
	GetPurchase(ctx context.Context, id, viewerID uuid.UUID) (*model.Purchase, error)
	SetCommission(ctx context.Context, rate, affiliateRate decimal.Decimal) (*model.CommissionConfig, error)
	CommissionConfig(ctx context.Context) (*model.CommissionConfig, error)
	SetAffiliateStatus(ctx context.Context, userID uuid.UUID, status model.AffiliateStatus) (*model.Affiliate, error)
	Refer(ctx context.Context, buyerID, affiliateID uuid.UUID) error

	OpenDispute(ctx context.Context, req model.OpenDisputeRequest) (*model.Dispute, error)
	GetDispute(ctx context.Context, id uuid.UUID) (*model.Dispute, error)
	StartReview(ctx context.Context, id, reviewerID uuid.UUID) (*model.Dispute, error)
	WithdrawDispute(ctx context.Context, id, buyerID uuid.UUID) (*model.Dispute, error)
	ResolveDispute(ctx context.Context, req model.ResolveRequest) (*model.Outcome, error)
	CloseDispute(ctx context.Context, id uuid.UUID) (*model.Dispute, error)
}

type Options struct {
	Currency string
	Purchase purchase.Config
}

// Market composes the wallet ledger, inventory, purchase orchestrator and
// dispute resolver over one store.
type Market struct {
	store     repository.Store
	cache     repository.Cache
	bus       repository.MessageBus
	logger    *slog.Logger
	currency  string
	wallets   *ledger.Wallets
	inventory *inventory.Service
	orch      *purchase.Orchestrator
	resolver  *dispute.Resolver
}

var _ MarketService = (*Market)(nil)

func NewMarket(store repository.Store, cache repository.Cache, bus repository.MessageBus, opts Options, logger *slog.Logger) *Market {
	if opts.Currency == "" {
		opts.Currency = "USD"
	}
	if cache == nil {
		cache = repository.NopCache{}
	}
	if bus == nil {
		bus = repository.NopBus{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	l := ledger.New()
	alloc := inventory.NewAllocator()
	return &Market{
		store:     store,
		cache:     cache,
		bus:       bus,
		logger:    logger,
		currency:  opts.Currency,
		wallets:   ledger.NewWallets(store, l, opts.Currency, logger.With("component", "ledger")),
		inventory: inventory.NewService(store, logger.With("component", "inventory")),
		orch:      purchase.NewOrchestrator(store, l, alloc, cache, bus, opts.Purchase, logger.With("component", "purchase")),
		resolver:  dispute.NewResolver(store, l, alloc, cache, bus, logger.With("component", "dispute")),
	}
}

func (m *Market) Ping(ctx context.Context) error {
	return m.store.Ping(ctx)
}

func (m *Market) OpenWallet(ctx context.Context, ownerID uuid.UUID) (*model.Wallet, error) {
	return m.wallets.Open(ctx, ownerID)
}

func (m *Market) GetWallet(ctx context.Context, id uuid.UUID) (*model.Wallet, error) {
	return m.wallets.Get(ctx, id)
}

// Balance serves the wallet balance from the cache, filling it on a miss.
// The fill is skipped when a commit invalidated the wallet after its version
// was read.
func (m *Market) Balance(ctx context.Context, walletID uuid.UUID) (decimal.Decimal, error) {
	if b, ok, err := m.cache.Balance(ctx, walletID); err != nil {
		m.logger.Warn("balance cache read failed", "wallet_id", walletID, "error", err)
	} else if ok {
		return b, nil
	}

	version, verErr := m.cache.BalanceVersion(ctx, walletID)
	if verErr != nil {
		m.logger.Warn("balance cache version read failed", "wallet_id", walletID, "error", verErr)
	}

	w, err := m.wallets.Get(ctx, walletID)
	if err != nil {
		return decimal.Zero, err
	}
	if verErr == nil {
		if err := m.cache.SetBalance(ctx, walletID, w.Balance, version); err != nil {
			m.logger.Warn("balance cache write failed", "wallet_id", walletID, "error", err)
		}
	}
	return w.Balance, nil
}

func (m *Market) Deposit(ctx context.Context, req model.DepositRequest) (*ledger.Posting, error) {
	p, err := m.wallets.Deposit(ctx, req)
	if err != nil {
		return nil, err
	}
	m.adjusted(ctx, p)
	return p, nil
}

func (m *Market) Withdraw(ctx context.Context, req model.DepositRequest) (*ledger.Posting, error) {
	p, err := m.wallets.Withdraw(ctx, req)
	if err != nil {
		return nil, err
	}
	m.adjusted(ctx, p)
	return p, nil
}

// adjusted drops the cached balance and announces a committed deposit or
// withdrawal. Replays announce nothing.
func (m *Market) adjusted(ctx context.Context, p *ledger.Posting) {
	if p.Replayed {
		return
	}
	if err := m.cache.InvalidateBalances(ctx, p.Wallet.ID); err != nil {
		m.logger.Warn("balance cache invalidation failed", "wallet_id", p.Wallet.ID, "error", err)
	}
	event := model.LedgerEvent{
		Topic:      model.TopicWalletAdjusted,
		EntityID:   p.Entry.ID,
		WalletIDs:  []uuid.UUID{p.Wallet.ID},
		Amount:     p.Entry.Signed(),
		Status:     string(p.Entry.Type),
		OccurredAt: time.Now().UTC(),
	}
	if err := repository.PublishEvent(m.bus, event); err != nil {
		m.logger.Error("failed to publish wallet event", "wallet_id", p.Wallet.ID, "error", err)
	}
}

func (m *Market) History(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]model.LedgerTransaction, error) {
	return m.wallets.History(ctx, walletID, limit, offset)
}

func (m *Market) Reconcile(ctx context.Context, walletID uuid.UUID) (*model.Reconciliation, error) {
	return m.wallets.Reconcile(ctx, walletID)
}

func (m *Market) ReconcileAll(ctx context.Context) ([]model.Reconciliation, error) {
	return m.wallets.ReconcileAll(ctx)
}

func (m *Market) SetWalletStatus(ctx context.Context, id uuid.UUID, status model.WalletStatus) (*model.Wallet, error) {
	switch status {
	case model.WalletActive:
		return m.wallets.Activate(ctx, id)
	case model.WalletFrozen:
		return m.wallets.Freeze(ctx, id)
	case model.WalletClosed:
		return m.wallets.Close(ctx, id)
	}
	return nil, apperr.Invalid("service.SetWalletStatus", "status", status)
}

func (m *Market) CreateProduct(ctx context.Context, providerID uuid.UUID, name string) (*model.Product, error) {
	return m.inventory.CreateProduct(ctx, providerID, name)
}

// AddVariant prices a variant in the marketplace currency.
func (m *Market) AddVariant(ctx context.Context, productID uuid.UUID, name string, price decimal.Decimal) (*model.Variant, error) {
	return m.inventory.AddVariant(ctx, productID, name, price, m.currency)
}

func (m *Market) AddAccount(ctx context.Context, productID uuid.UUID, label, credentialRef string) (*model.InventoryUnit, error) {
	return m.inventory.AddAccount(ctx, productID, label, credentialRef)
}

func (m *Market) AddSharedAccount(ctx context.Context, productID uuid.UUID, label, credentialRef string, slotRefs []string) (*model.InventoryUnit, []model.InventoryUnit, error) {
	return m.inventory.AddSharedAccount(ctx, productID, label, credentialRef, slotRefs)
}

func (m *Market) AddLicense(ctx context.Context, productID uuid.UUID, credentialRef string) (*model.InventoryUnit, error) {
	return m.inventory.AddLicense(ctx, productID, credentialRef)
}

func (m *Market) RevokeLicense(ctx context.Context, id uuid.UUID) error {
	return m.inventory.RevokeLicense(ctx, id)
}

func (m *Market) DisableAccount(ctx context.Context, id uuid.UUID) error {
	return m.inventory.DisableAccount(ctx, id)
}

func (m *Market) Stock(ctx context.Context, productID uuid.UUID) (*model.Stock, error) {
	return m.inventory.Stock(ctx, productID)
}

func (m *Market) Purchase(ctx context.Context, req model.PurchaseRequest) (*model.Receipt, error) {
	return m.orch.Purchase(ctx, req)
}

func (m *Market) GetPurchase(ctx context.Context, id, viewerID uuid.UUID) (*model.Purchase, error) {
	return m.orch.Get(ctx, id, viewerID)
}

func (m *Market) SetCommission(ctx context.Context, rate, affiliateRate decimal.Decimal) (*model.CommissionConfig, error) {
	return m.orch.SetCommission(ctx, rate, affiliateRate)
}

func (m *Market) CommissionConfig(ctx context.Context) (*model.CommissionConfig, error) {
	return m.orch.CommissionConfig(ctx)
}

func (m *Market) SetAffiliateStatus(ctx context.Context, userID uuid.UUID, status model.AffiliateStatus) (*model.Affiliate, error) {
	return m.orch.SetAffiliateStatus(ctx, userID, status)
}

func (m *Market) Refer(ctx context.Context, buyerID, affiliateID uuid.UUID) error {
	return m.orch.Refer(ctx, buyerID, affiliateID)
}

func (m *Market) OpenDispute(ctx context.Context, req model.OpenDisputeRequest) (*model.Dispute, error) {
	return m.resolver.Open(ctx, req)
}

func (m *Market) GetDispute(ctx context.Context, id uuid.UUID) (*model.Dispute, error) {
	return m.resolver.Get(ctx, id)
}

func (m *Market) StartReview(ctx context.Context, id, reviewerID uuid.UUID) (*model.Dispute, error) {
	return m.resolver.StartReview(ctx, id, reviewerID)
}

func (m *Market) WithdrawDispute(ctx context.Context, id, buyerID uuid.UUID) (*model.Dispute, error) {
	return m.resolver.Withdraw(ctx, id, buyerID)
}

func (m *Market) ResolveDispute(ctx context.Context, req model.ResolveRequest) (*model.Outcome, error) {
	return m.resolver.Resolve(ctx, req)
}

func (m *Market) CloseDispute(ctx context.Context, id uuid.UUID) (*model.Dispute, error) {
	return m.resolver.Close(ctx, id)
}
