package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/soyHouston256/stream-sales-sub004/internal/model"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrDuplicateKey = errors.New("unique constraint violated")
)

// Store runs units of work. fn receives a Tx whose effects become visible
// only if fn returns nil and the commit succeeds; otherwise every write made
// through the Tx is rolled back.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Ping(ctx context.Context) error
	Close()
}

// Tx is the set of row operations available inside one unit of work.
type Tx interface {
	WalletRepo
	LedgerRepo
	CatalogRepo
	InventoryRepo
	PurchaseRepo
	DisputeRepo
	SettingsRepo
	AuditRepo
}

type WalletRepo interface {
	CreateWallet(ctx context.Context, w *model.Wallet) error
	GetWallet(ctx context.Context, id uuid.UUID) (*model.Wallet, error)
	GetWalletByOwner(ctx context.Context, ownerID uuid.UUID, currency string) (*model.Wallet, error)
	// LockWallets row-locks the wallets in ascending id order and returns them by id.
	LockWallets(ctx context.Context, ids ...uuid.UUID) (map[uuid.UUID]*model.Wallet, error)
	UpdateWalletBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) error
	UpdateWalletStatus(ctx context.Context, id uuid.UUID, status model.WalletStatus) error
	ListWallets(ctx context.Context) ([]model.Wallet, error)
}

type LedgerRepo interface {
	// InsertLedgerTx returns ErrDuplicateKey when the idempotency key exists.
	InsertLedgerTx(ctx context.Context, t *model.LedgerTransaction) error
	GetLedgerTxByKey(ctx context.Context, key string) (*model.LedgerTransaction, error)
	ListLedgerTxByWallet(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]model.LedgerTransaction, error)
	ListLedgerTxByReference(ctx context.Context, ref model.Reference) ([]model.LedgerTransaction, error)
	// SumLedgerByWallet returns total credits, total debits and row count.
	SumLedgerByWallet(ctx context.Context, walletID uuid.UUID) (decimal.Decimal, decimal.Decimal, int, error)
}

type CatalogRepo interface {
	CreateProduct(ctx context.Context, p *model.Product) error
	GetProduct(ctx context.Context, id uuid.UUID) (*model.Product, error)
	CreateVariant(ctx context.Context, v *model.Variant) error
	GetListing(ctx context.Context, variantID uuid.UUID) (*model.Listing, error)
}

type InventoryRepo interface {
	InsertUnit(ctx context.Context, u *model.InventoryUnit) error
	GetUnit(ctx context.Context, kind model.UnitKind, id uuid.UUID) (*model.InventoryUnit, error)
	// ClaimAvailable assigns the oldest available unit of kind for the product.
	// Returns ErrNotFound when none is available.
	ClaimAvailable(ctx context.Context, productID uuid.UUID, kind model.UnitKind) (*model.UnitHandle, error)
	// ReleaseAssigned moves an assigned unit back to available.
	// Returns ErrNotFound when the unit is not currently assigned.
	ReleaseAssigned(ctx context.Context, h model.UnitHandle) error
	RevokeLicense(ctx context.Context, id uuid.UUID) error
	// DisableAccount takes an available account and its free slots out of allocation.
	DisableAccount(ctx context.Context, id uuid.UUID) error
	CountAvailable(ctx context.Context, productID uuid.UUID) (map[model.UnitKind]int, error)
}

type PurchaseRepo interface {
	InsertPurchase(ctx context.Context, p *model.Purchase) error
	GetPurchase(ctx context.Context, id uuid.UUID) (*model.Purchase, error)
	GetPurchaseForUpdate(ctx context.Context, id uuid.UUID) (*model.Purchase, error)
	GetPurchaseByKey(ctx context.Context, buyerID uuid.UUID, key string) (*model.Purchase, error)
	UpdatePurchaseRefund(ctx context.Context, id uuid.UUID, status model.PurchaseStatus, refunded decimal.Decimal) error
}

type DisputeRepo interface {
	InsertDispute(ctx context.Context, d *model.Dispute) error
	GetDispute(ctx context.Context, id uuid.UUID) (*model.Dispute, error)
	GetDisputeForUpdate(ctx context.Context, id uuid.UUID) (*model.Dispute, error)
	UpdateDispute(ctx context.Context, d *model.Dispute) error
}

type SettingsRepo interface {
	// LatestCommissionConfig returns ErrNotFound when no version was written.
	LatestCommissionConfig(ctx context.Context) (*model.CommissionConfig, error)
	InsertCommissionConfig(ctx context.Context, c *model.CommissionConfig) error
	UpsertAffiliate(ctx context.Context, a *model.Affiliate) error
	InsertReferral(ctx context.Context, buyerID, affiliateID uuid.UUID) error
	// ApprovedAffiliateFor returns the approved affiliate who referred the buyer.
	ApprovedAffiliateFor(ctx context.Context, buyerID uuid.UUID) (*model.Affiliate, error)
}

type AuditRepo interface {
	InsertAudit(ctx context.Context, e *model.AuditEntry) error
}
