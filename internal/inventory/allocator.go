// Package inventory allocates scarce sellable units: whole accounts,
// profile slots in shared accounts and license keys.
package inventory

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/soyHouston256/stream-sales-sub004/internal/apperr"
	"github.com/soyHouston256/stream-sales-sub004/internal/model"
	"github.com/soyHouston256/stream-sales-sub004/internal/repository"
)

type Allocator struct{}

func NewAllocator() *Allocator {
	return &Allocator{}
}

// ClaimUnit assigns exactly one available unit of the product, trying kinds
// in model.UnitKinds order and the oldest unit first within a kind.
func (a *Allocator) ClaimUnit(ctx context.Context, tx repository.Tx, productID uuid.UUID) (*model.UnitHandle, error) {
	const op = "inventory.ClaimUnit"

	for _, kind := range model.UnitKinds {
		h, err := tx.ClaimAvailable(ctx, productID, kind)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, apperr.Wrap(op, err)
		}
		return h, nil
	}
	return nil, apperr.Newf(op, apperr.OutOfStock, "no units available for product %s", productID)
}

// ReleaseUnit returns an assigned unit to the available pool.
func (a *Allocator) ReleaseUnit(ctx context.Context, tx repository.Tx, h model.UnitHandle) error {
	const op = "inventory.ReleaseUnit"

	err := tx.ReleaseAssigned(ctx, h)
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.Newf(op, apperr.UnitNotAssigned, "%s %s is not assigned", h.Kind, h.UnitID)
	}
	return apperr.Wrap(op, err)
}
