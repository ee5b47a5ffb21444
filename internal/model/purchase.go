package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Variant struct {
	ID        uuid.UUID       `json:"id"`
	ProductID uuid.UUID       `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Currency  string          `json:"currency"`
	Active    bool            `json:"active"`
	CreatedAt time.Time       `json:"created_at"`
}

// Listing is a variant joined with its product, as loaded by the orchestrator.
type Listing struct {
	Variant Variant `json:"variant"`
	Product Product `json:"product"`
}

func (l Listing) Sellable() bool {
	return l.Variant.Active && l.Product.Active
}

type PurchaseStatus string

const (
	PurchasePending       PurchaseStatus = "pending"
	PurchaseCompleted     PurchaseStatus = "completed"
	PurchaseFailed        PurchaseStatus = "failed"
	PurchaseRefunded      PurchaseStatus = "refunded"
	PurchasePartialRefund PurchaseStatus = "partial_refund"
)

type Purchase struct {
	ID                  uuid.UUID       `json:"id"`
	BuyerID             uuid.UUID       `json:"buyer_id"`
	ProviderID          uuid.UUID       `json:"provider_id"`
	PlatformID          uuid.UUID       `json:"platform_id"`
	ProductID           uuid.UUID       `json:"product_id"`
	VariantID           uuid.UUID       `json:"variant_id"`
	Amount              decimal.Decimal `json:"amount"`
	Currency            string          `json:"currency"`
	ConfigVersion       int64           `json:"config_version"`
	CommissionRate      decimal.Decimal `json:"commission_rate"`
	ProviderEarnings    decimal.Decimal `json:"provider_earnings"`
	PlatformCommission  decimal.Decimal `json:"platform_commission"`
	AffiliateID         *uuid.UUID      `json:"affiliate_id,omitempty"`
	AffiliateCommission decimal.Decimal `json:"affiliate_commission"`
	RefundedAmount      decimal.Decimal `json:"refunded_amount"`
	Status              PurchaseStatus  `json:"status"`
	Unit                UnitHandle      `json:"unit"`
	IdempotencyKey      string          `json:"idempotency_key"`
	CreatedAt           time.Time       `json:"created_at"`
	CompletedAt         *time.Time      `json:"completed_at,omitempty"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

type PurchaseRequest struct {
	BuyerID        uuid.UUID `json:"buyer_id"`
	VariantID      uuid.UUID `json:"variant_id"`
	IdempotencyKey string    `json:"idempotency_key"`
}

// Receipt is what the orchestrator hands back to transports.
type Receipt struct {
	Purchase   Purchase        `json:"purchase"`
	NewBalance decimal.Decimal `json:"new_balance"`
	Replayed   bool            `json:"replayed"`
}

// CommissionConfig is one version of the platform commission settings.
// Version 0 is the built-in default used before any row is written.
type CommissionConfig struct {
	Version       int64           `json:"version"`
	Rate          decimal.Decimal `json:"rate"`
	AffiliateRate decimal.Decimal `json:"affiliate_rate"`
	CreatedAt     time.Time       `json:"created_at"`
}

type AffiliateStatus string

const (
	AffiliatePending  AffiliateStatus = "pending"
	AffiliateApproved AffiliateStatus = "approved"
	AffiliateRejected AffiliateStatus = "rejected"
)

type Affiliate struct {
	UserID    uuid.UUID       `json:"user_id"`
	Status    AffiliateStatus `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

// Split is the division of one sale's proceeds.
type Split struct {
	Price     decimal.Decimal `json:"price"`
	Provider  decimal.Decimal `json:"provider"`
	Platform  decimal.Decimal `json:"platform"`
	Affiliate decimal.Decimal `json:"affiliate"`
}

// Commission is the platform's gross share before the affiliate carve-out.
func (s Split) Commission() decimal.Decimal {
	return s.Platform.Add(s.Affiliate)
}
