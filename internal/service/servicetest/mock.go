// Package servicetest provides a testify mock of service.MarketService for
// transport tests.
package servicetest

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/soyHouston256/stream-sales-sub004/internal/ledger"
	"github.com/soyHouston256/stream-sales-sub004/internal/model"
	"github.com/soyHouston256/stream-sales-sub004/internal/service"
)

type Market struct {
	mock.Mock
}

var _ service.MarketService = (*Market)(nil)

// ret returns result i as T, treating a nil mock return as the zero value.
func ret[T any](args mock.Arguments, i int) T {
	v, _ := args.Get(i).(T)
	return v
}

func (m *Market) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *Market) OpenWallet(ctx context.Context, ownerID uuid.UUID) (*model.Wallet, error) {
	args := m.Called(ctx, ownerID)
	return ret[*model.Wallet](args, 0), args.Error(1)
}

func (m *Market) GetWallet(ctx context.Context, id uuid.UUID) (*model.Wallet, error) {
	args := m.Called(ctx, id)
	return ret[*model.Wallet](args, 0), args.Error(1)
}

func (m *Market) Balance(ctx context.Context, walletID uuid.UUID) (decimal.Decimal, error) {
	args := m.Called(ctx, walletID)
	return ret[decimal.Decimal](args, 0), args.Error(1)
}

func (m *Market) Deposit(ctx context.Context, req model.DepositRequest) (*ledger.Posting, error) {
	args := m.Called(ctx, req)
	return ret[*ledger.Posting](args, 0), args.Error(1)
}

func (m *Market) Withdraw(ctx context.Context, req model.DepositRequest) (*ledger.Posting, error) {
	args := m.Called(ctx, req)
	return ret[*ledger.Posting](args, 0), args.Error(1)
}

func (m *Market) History(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]model.LedgerTransaction, error) {
	args := m.Called(ctx, walletID, limit, offset)
	return ret[[]model.LedgerTransaction](args, 0), args.Error(1)
}

func (m *Market) Reconcile(ctx context.Context, walletID uuid.UUID) (*model.Reconciliation, error) {
	args := m.Called(ctx, walletID)
	return ret[*model.Reconciliation](args, 0), args.Error(1)
}

func (m *Market) ReconcileAll(ctx context.Context) ([]model.Reconciliation, error) {
	args := m.Called(ctx)
	return ret[[]model.Reconciliation](args, 0), args.Error(1)
}

func (m *Market) SetWalletStatus(ctx context.Context, id uuid.UUID, status model.WalletStatus) (*model.Wallet, error) {
	args := m.Called(ctx, id, status)
	return ret[*model.Wallet](args, 0), args.Error(1)
}

func (m *Market) CreateProduct(ctx context.Context, providerID uuid.UUID, name string) (*model.Product, error) {
	args := m.Called(ctx, providerID, name)
	return ret[*model.Product](args, 0), args.Error(1)
}

func (m *Market) AddVariant(ctx context.Context, productID uuid.UUID, name string, price decimal.Decimal) (*model.Variant, error) {
	args := m.Called(ctx, productID, name, price)
	return ret[*model.Variant](args, 0), args.Error(1)
}

func (m *Market) AddAccount(ctx context.Context, productID uuid.UUID, label, credentialRef string) (*model.InventoryUnit, error) {
	args := m.Called(ctx, productID, label, credentialRef)
	return ret[*model.InventoryUnit](args, 0), args.Error(1)
}

func (m *Market) AddSharedAccount(ctx context.Context, productID uuid.UUID, label, credentialRef string, slotRefs []string) (*model.InventoryUnit, []model.InventoryUnit, error) {
	args := m.Called(ctx, productID, label, credentialRef, slotRefs)
	return ret[*model.InventoryUnit](args, 0), ret[[]model.InventoryUnit](args, 1), args.Error(2)
}

func (m *Market) AddLicense(ctx context.Context, productID uuid.UUID, credentialRef string) (*model.InventoryUnit, error) {
	args := m.Called(ctx, productID, credentialRef)
	return ret[*model.InventoryUnit](args, 0), args.Error(1)
}

func (m *Market) RevokeLicense(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *Market) DisableAccount(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *Market) Stock(ctx context.Context, productID uuid.UUID) (*model.Stock, error) {
	args := m.Called(ctx, productID)
	return ret[*model.Stock](args, 0), args.Error(1)
}

func (m *Market) Purchase(ctx context.Context, req model.PurchaseRequest) (*model.Receipt, error) {
	args := m.Called(ctx, req)
	return ret[*model.Receipt](args, 0), args.Error(1)
}

func (m *Market) GetPurchase(ctx context.Context, id, viewerID uuid.UUID) (*model.Purchase, error) {
	args := m.Called(ctx, id, viewerID)
	return ret[*model.Purchase](args, 0), args.Error(1)
}

func (m *Market) SetCommission(ctx context.Context, rate, affiliateRate decimal.Decimal) (*model.CommissionConfig, error) {
	args := m.Called(ctx, rate, affiliateRate)
	return ret[*model.CommissionConfig](args, 0), args.Error(1)
}

func (m *Market) CommissionConfig(ctx context.Context) (*model.CommissionConfig, error) {
	args := m.Called(ctx)
	return ret[*model.CommissionConfig](args, 0), args.Error(1)
}

func (m *Market) SetAffiliateStatus(ctx context.Context, userID uuid.UUID, status model.AffiliateStatus) (*model.Affiliate, error) {
	args := m.Called(ctx, userID, status)
	return ret[*model.Affiliate](args, 0), args.Error(1)
}

func (m *Market) Refer(ctx context.Context, buyerID, affiliateID uuid.UUID) error {
	return m.Called(ctx, buyerID, affiliateID).Error(0)
}

func (m *Market) OpenDispute(ctx context.Context, req model.OpenDisputeRequest) (*model.Dispute, error) {
	args := m.Called(ctx, req)
	return ret[*model.Dispute](args, 0), args.Error(1)
}

func (m *Market) GetDispute(ctx context.Context, id uuid.UUID) (*model.Dispute, error) {
	args := m.Called(ctx, id)
	return ret[*model.Dispute](args, 0), args.Error(1)
}

func (m *Market) StartReview(ctx context.Context, id, reviewerID uuid.UUID) (*model.Dispute, error) {
	args := m.Called(ctx, id, reviewerID)
	return ret[*model.Dispute](args, 0), args.Error(1)
}

func (m *Market) WithdrawDispute(ctx context.Context, id, buyerID uuid.UUID) (*model.Dispute, error) {
	args := m.Called(ctx, id, buyerID)
	return ret[*model.Dispute](args, 0), args.Error(1)
}

func (m *Market) ResolveDispute(ctx context.Context, req model.ResolveRequest) (*model.Outcome, error) {
	args := m.Called(ctx, req)
	return ret[*model.Outcome](args, 0), args.Error(1)
}

func (m *Market) CloseDispute(ctx context.Context, id uuid.UUID) (*model.Dispute, error) {
	args := m.Called(ctx, id)
	return ret[*model.Dispute](args, 0), args.Error(1)
}
