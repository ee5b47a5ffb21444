package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/soyHouston256/stream-sales-sub004/internal/model"
)

func (r *pgTx) LatestCommissionConfig(ctx context.Context) (*model.CommissionConfig, error) {
	query := `
		SELECT version, commission_rate, affiliate_rate, created_at
		FROM commission_configs
		ORDER BY version DESC
		LIMIT 1`

	var c model.CommissionConfig
	if err := r.tx.QueryRow(ctx, query).Scan(&c.Version, &c.Rate, &c.AffiliateRate, &c.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// InsertCommissionConfig appends the next version and sets c.Version.
func (r *pgTx) InsertCommissionConfig(ctx context.Context, c *model.CommissionConfig) error {
	query := `
		INSERT INTO commission_configs (version, commission_rate, affiliate_rate)
		SELECT COALESCE(MAX(version), 0) + 1, $1, $2 FROM commission_configs
		RETURNING version, created_at`

	if err := r.tx.QueryRow(ctx, query, c.Rate, c.AffiliateRate).Scan(&c.Version, &c.CreatedAt); err != nil {
		return fmt.Errorf("insert commission config: %w", err)
	}
	return nil
}

func (r *pgTx) UpsertAffiliate(ctx context.Context, a *model.Affiliate) error {
	query := `
		INSERT INTO affiliates (user_id, status)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET status = EXCLUDED.status
		RETURNING created_at`

	if err := r.tx.QueryRow(ctx, query, a.UserID, a.Status).Scan(&a.CreatedAt); err != nil {
		return fmt.Errorf("upsert affiliate: %w", err)
	}
	return nil
}

// InsertReferral records the first affiliate to refer the buyer; later
// referrals are ignored.
func (r *pgTx) InsertReferral(ctx context.Context, buyerID, affiliateID uuid.UUID) error {
	query := `
		INSERT INTO referrals (buyer_id, affiliate_id)
		VALUES ($1, $2)
		ON CONFLICT (buyer_id) DO NOTHING`

	_, err := r.tx.Exec(ctx, query, buyerID, affiliateID)
	if isForeignKeyViolation(err) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("insert referral: %w", err)
	}
	return nil
}

func (r *pgTx) ApprovedAffiliateFor(ctx context.Context, buyerID uuid.UUID) (*model.Affiliate, error) {
	query := `
		SELECT a.user_id, a.status, a.created_at
		FROM referrals r
		JOIN affiliates a ON a.user_id = r.affiliate_id
		WHERE r.buyer_id = $1 AND a.status = 'approved'`

	var a model.Affiliate
	if err := r.tx.QueryRow(ctx, query, buyerID).Scan(&a.UserID, &a.Status, &a.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

func (r *pgTx) InsertAudit(ctx context.Context, e *model.AuditEntry) error {
	query := `
		INSERT INTO audit_logs (id, request_id, action, status, message)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`

	if err := r.tx.QueryRow(ctx, query, e.ID, e.RequestID, e.Action, e.Status, e.Message).Scan(&e.CreatedAt); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}
