package purchase

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/soyHouston256/stream-sales-sub004/internal/apperr"
	"github.com/soyHouston256/stream-sales-sub004/internal/model"
	"github.com/soyHouston256/stream-sales-sub004/internal/repository"
)

// rateScale is the number of decimal places a stored rate keeps.
const rateScale = 4

// SetCommission writes a new commission config version. Purchases already
// made keep the version they were split with.
func (o *Orchestrator) SetCommission(ctx context.Context, rate, affiliateRate decimal.Decimal) (*model.CommissionConfig, error) {
	const op = "purchase.SetCommission"

	one := decimal.NewFromInt(1)
	if rate.IsNegative() || rate.GreaterThan(one) || !rate.Equal(rate.Round(rateScale)) {
		return nil, apperr.Invalid(op, "commission rate", rate)
	}
	if affiliateRate.IsNegative() || affiliateRate.GreaterThan(rate) || !affiliateRate.Equal(affiliateRate.Round(rateScale)) {
		return nil, apperr.Invalid(op, "affiliate rate", affiliateRate)
	}

	c := &model.CommissionConfig{Rate: rate, AffiliateRate: affiliateRate}
	err := o.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return tx.InsertCommissionConfig(ctx, c)
	})
	if err != nil {
		return nil, apperr.Wrap(op, err)
	}
	o.logger.Info("commission config updated", "version", c.Version, "rate", rate, "affiliate_rate", affiliateRate)
	return c, nil
}

func (o *Orchestrator) CommissionConfig(ctx context.Context) (*model.CommissionConfig, error) {
	const op = "purchase.CommissionConfig"

	var out *model.CommissionConfig
	err := o.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		c, err := o.commissionConfig(ctx, tx)
		out = c
		return err
	})
	if err != nil {
		return nil, apperr.Wrap(op, err)
	}
	return out, nil
}

func (o *Orchestrator) SetAffiliateStatus(ctx context.Context, userID uuid.UUID, status model.AffiliateStatus) (*model.Affiliate, error) {
	const op = "purchase.SetAffiliateStatus"

	switch status {
	case model.AffiliatePending, model.AffiliateApproved, model.AffiliateRejected:
	default:
		return nil, apperr.Invalid(op, "affiliate status", status)
	}

	a := &model.Affiliate{UserID: userID, Status: status}
	err := o.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return tx.UpsertAffiliate(ctx, a)
	})
	if err != nil {
		return nil, apperr.Wrap(op, err)
	}
	return a, nil
}

// Refer binds the buyer to the affiliate who referred them. Only the first
// referral counts.
func (o *Orchestrator) Refer(ctx context.Context, buyerID, affiliateID uuid.UUID) error {
	const op = "purchase.Refer"

	if buyerID == affiliateID {
		return apperr.New(op, apperr.InvalidRequest, "users cannot refer themselves")
	}
	err := o.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		err := tx.InsertReferral(ctx, buyerID, affiliateID)
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFoundf(op, "affiliate", affiliateID)
		}
		return err
	})
	return apperr.Wrap(op, err)
}
