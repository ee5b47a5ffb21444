package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/soyHouston256/stream-sales-sub004/internal/model"
)

const purchaseColumns = `id, buyer_id, provider_id, platform_id, product_id, variant_id, amount, currency,
	config_version, commission_rate, provider_earnings, platform_commission, affiliate_id,
	affiliate_commission, refunded_amount, status, unit_kind, unit_id, unit_account_id,
	idempotency_key, created_at, completed_at, updated_at`

func scanPurchase(row scanner) (*model.Purchase, error) {
	var (
		p                  model.Purchase
		affiliate, account uuid.NullUUID
	)
	err := row.Scan(&p.ID, &p.BuyerID, &p.ProviderID, &p.PlatformID, &p.ProductID, &p.VariantID, &p.Amount, &p.Currency,
		&p.ConfigVersion, &p.CommissionRate, &p.ProviderEarnings, &p.PlatformCommission, &affiliate,
		&p.AffiliateCommission, &p.RefundedAmount, &p.Status, &p.Unit.Kind, &p.Unit.UnitID, &account,
		&p.IdempotencyKey, &p.CreatedAt, &p.CompletedAt, &p.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	p.AffiliateID = nullToPtr(affiliate)
	p.Unit.AccountID = nullToPtr(account)
	p.Unit.ProductID = p.ProductID
	return &p, nil
}

func (r *pgTx) InsertPurchase(ctx context.Context, p *model.Purchase) error {
	query := `
		INSERT INTO purchases (id, buyer_id, provider_id, platform_id, product_id, variant_id, amount, currency,
			config_version, commission_rate, provider_earnings, platform_commission, affiliate_id,
			affiliate_commission, refunded_amount, status, unit_kind, unit_id, unit_account_id,
			idempotency_key, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		ON CONFLICT (buyer_id, idempotency_key) DO NOTHING
		RETURNING created_at, updated_at`

	err := r.tx.QueryRow(ctx, query, p.ID, p.BuyerID, p.ProviderID, p.PlatformID, p.ProductID, p.VariantID, p.Amount,
		p.Currency, p.ConfigVersion, p.CommissionRate, p.ProviderEarnings, p.PlatformCommission,
		ptrToNull(p.AffiliateID), p.AffiliateCommission, p.RefundedAmount, p.Status, p.Unit.Kind,
		p.Unit.UnitID, ptrToNull(p.Unit.AccountID), p.IdempotencyKey, p.CompletedAt,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err := notFound(err); err == ErrNotFound {
		return ErrDuplicateKey
	}
	if err != nil {
		return fmt.Errorf("insert purchase: %w", err)
	}
	return nil
}

func (r *pgTx) GetPurchase(ctx context.Context, id uuid.UUID) (*model.Purchase, error) {
	return scanPurchase(r.tx.QueryRow(ctx, `SELECT `+purchaseColumns+` FROM purchases WHERE id = $1`, id))
}

func (r *pgTx) GetPurchaseForUpdate(ctx context.Context, id uuid.UUID) (*model.Purchase, error) {
	return scanPurchase(r.tx.QueryRow(ctx, `SELECT `+purchaseColumns+` FROM purchases WHERE id = $1 FOR UPDATE`, id))
}

func (r *pgTx) GetPurchaseByKey(ctx context.Context, buyerID uuid.UUID, key string) (*model.Purchase, error) {
	query := `SELECT ` + purchaseColumns + ` FROM purchases WHERE buyer_id = $1 AND idempotency_key = $2`
	return scanPurchase(r.tx.QueryRow(ctx, query, buyerID, key))
}

func (r *pgTx) UpdatePurchaseRefund(ctx context.Context, id uuid.UUID, status model.PurchaseStatus, refunded decimal.Decimal) error {
	query := `UPDATE purchases SET status = $1, refunded_amount = $2, updated_at = NOW() WHERE id = $3`
	tag, err := r.tx.Exec(ctx, query, status, refunded, id)
	if err != nil {
		return fmt.Errorf("update purchase refund: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const disputeColumns = `id, purchase_id, opened_by, reason, status, resolution, refund_percentage,
	reviewer_id, resolver_id, refunded_amount, created_at, updated_at, resolved_at, closed_at`

func scanDispute(row scanner) (*model.Dispute, error) {
	var (
		d                  model.Dispute
		resolution         *string
		percentage         decimal.NullDecimal
		reviewer, resolver uuid.NullUUID
	)
	err := row.Scan(&d.ID, &d.PurchaseID, &d.OpenedBy, &d.Reason, &d.Status, &resolution, &percentage,
		&reviewer, &resolver, &d.RefundedAmount, &d.CreatedAt, &d.UpdatedAt, &d.ResolvedAt, &d.ClosedAt)
	if err != nil {
		return nil, notFound(err)
	}
	if resolution != nil {
		rt := model.ResolutionType(*resolution)
		d.Resolution = &rt
	}
	if percentage.Valid {
		d.Percentage = &percentage.Decimal
	}
	d.ReviewerID = nullToPtr(reviewer)
	d.ResolverID = nullToPtr(resolver)
	return &d, nil
}

// InsertDispute returns ErrDuplicateKey when the purchase already has a dispute.
func (r *pgTx) InsertDispute(ctx context.Context, d *model.Dispute) error {
	query := `
		INSERT INTO disputes (id, purchase_id, opened_by, reason, status, refunded_amount)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (purchase_id) DO NOTHING
		RETURNING created_at, updated_at`

	err := r.tx.QueryRow(ctx, query, d.ID, d.PurchaseID, d.OpenedBy, d.Reason, d.Status, d.RefundedAmount).
		Scan(&d.CreatedAt, &d.UpdatedAt)
	if err := notFound(err); err == ErrNotFound {
		return ErrDuplicateKey
	}
	if err != nil {
		return fmt.Errorf("insert dispute: %w", err)
	}
	return nil
}

func (r *pgTx) GetDispute(ctx context.Context, id uuid.UUID) (*model.Dispute, error) {
	return scanDispute(r.tx.QueryRow(ctx, `SELECT `+disputeColumns+` FROM disputes WHERE id = $1`, id))
}

func (r *pgTx) GetDisputeForUpdate(ctx context.Context, id uuid.UUID) (*model.Dispute, error) {
	return scanDispute(r.tx.QueryRow(ctx, `SELECT `+disputeColumns+` FROM disputes WHERE id = $1 FOR UPDATE`, id))
}

func (r *pgTx) UpdateDispute(ctx context.Context, d *model.Dispute) error {
	var resolution *string
	if d.Resolution != nil {
		s := string(*d.Resolution)
		resolution = &s
	}
	var percentage decimal.NullDecimal
	if d.Percentage != nil {
		percentage = decimal.NullDecimal{Decimal: *d.Percentage, Valid: true}
	}

	query := `
		UPDATE disputes
		SET status = $1, resolution = $2, refund_percentage = $3, reviewer_id = $4, resolver_id = $5,
			refunded_amount = $6, resolved_at = $7, closed_at = $8, updated_at = NOW()
		WHERE id = $9
		RETURNING updated_at`

	err := r.tx.QueryRow(ctx, query, d.Status, resolution, percentage, ptrToNull(d.ReviewerID),
		ptrToNull(d.ResolverID), d.RefundedAmount, d.ResolvedAt, d.ClosedAt, d.ID).Scan(&d.UpdatedAt)
	if err != nil {
		return notFound(err)
	}
	return nil
}
