package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/soyHouston256/stream-sales-sub004/internal/apperr"
	"github.com/soyHouston256/stream-sales-sub004/internal/model"
	"github.com/soyHouston256/stream-sales-sub004/internal/repository"
)

// Service manages the catalog and stocks it with units.
type Service struct {
	store  repository.Store
	logger *slog.Logger
}

func NewService(store repository.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger}
}

func (s *Service) CreateProduct(ctx context.Context, providerID uuid.UUID, name string) (*model.Product, error) {
	const op = "inventory.CreateProduct"

	if strings.TrimSpace(name) == "" {
		return nil, apperr.Invalid(op, "name", `""`)
	}
	p := &model.Product{ID: uuid.New(), ProviderID: providerID, Name: name, Active: true}
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return tx.CreateProduct(ctx, p)
	})
	if err != nil {
		return nil, apperr.Wrap(op, err)
	}
	return p, nil
}

func (s *Service) AddVariant(ctx context.Context, productID uuid.UUID, name string, price decimal.Decimal, currency string) (*model.Variant, error) {
	const op = "inventory.AddVariant"

	if !price.IsPositive() || !price.Equal(price.Round(2)) {
		return nil, apperr.Invalid(op, "price", price)
	}
	v := &model.Variant{ID: uuid.New(), ProductID: productID, Name: name, Price: price, Currency: currency, Active: true}
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		err := tx.CreateVariant(ctx, v)
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.New(op, apperr.ProductNotFound, "product not found")
		}
		return err
	})
	if err != nil {
		return nil, apperr.Wrap(op, err)
	}
	return v, nil
}

// AddAccount stocks one whole account.
func (s *Service) AddAccount(ctx context.Context, productID uuid.UUID, label, credentialRef string) (*model.InventoryUnit, error) {
	const op = "inventory.AddAccount"

	if credentialRef == "" {
		return nil, apperr.Invalid(op, "credential_ref", `""`)
	}
	u := &model.InventoryUnit{
		ID:            uuid.New(),
		ProductID:     productID,
		Kind:          model.UnitAccount,
		TotalSlots:    1,
		Label:         label,
		CredentialRef: credentialRef,
		Status:        model.UnitAvailable,
	}
	if err := s.insert(ctx, op, u); err != nil {
		return nil, err
	}
	return u, nil
}

// AddSharedAccount stocks an account whose profiles are sold one slot at a
// time. slotRefs holds one credential reference per profile.
func (s *Service) AddSharedAccount(ctx context.Context, productID uuid.UUID, label, credentialRef string, slotRefs []string) (*model.InventoryUnit, []model.InventoryUnit, error) {
	const op = "inventory.AddSharedAccount"

	if credentialRef == "" {
		return nil, nil, apperr.Invalid(op, "credential_ref", `""`)
	}
	if len(slotRefs) < 2 {
		return nil, nil, apperr.Invalid(op, "slot count", len(slotRefs))
	}

	account := &model.InventoryUnit{
		ID:            uuid.New(),
		ProductID:     productID,
		Kind:          model.UnitAccount,
		TotalSlots:    len(slotRefs),
		Label:         label,
		CredentialRef: credentialRef,
		Status:        model.UnitAvailable,
	}
	slots := make([]model.InventoryUnit, len(slotRefs))
	for i, ref := range slotRefs {
		if ref == "" {
			return nil, nil, apperr.Invalid(op, fmt.Sprintf("slot %d credential_ref", i+1), `""`)
		}
		slots[i] = model.InventoryUnit{
			ID:            uuid.New(),
			ProductID:     productID,
			Kind:          model.UnitSlot,
			AccountID:     &account.ID,
			Label:         fmt.Sprintf("Profile %d", i+1),
			CredentialRef: ref,
			Status:        model.UnitAvailable,
		}
	}

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := s.checkProduct(ctx, op, tx, productID); err != nil {
			return err
		}
		if err := tx.InsertUnit(ctx, account); err != nil {
			return err
		}
		for i := range slots {
			if err := tx.InsertUnit(ctx, &slots[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, apperr.Wrap(op, err)
	}

	s.logger.Info("shared account stocked", "product_id", productID, "account_id", account.ID, "slots", len(slots))
	return account, slots, nil
}

func (s *Service) AddLicense(ctx context.Context, productID uuid.UUID, credentialRef string) (*model.InventoryUnit, error) {
	const op = "inventory.AddLicense"

	if credentialRef == "" {
		return nil, apperr.Invalid(op, "credential_ref", `""`)
	}
	u := &model.InventoryUnit{
		ID:            uuid.New(),
		ProductID:     productID,
		Kind:          model.UnitLicense,
		CredentialRef: credentialRef,
		Status:        model.UnitAvailable,
	}
	if err := s.insert(ctx, op, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) insert(ctx context.Context, op string, u *model.InventoryUnit) error {
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := s.checkProduct(ctx, op, tx, u.ProductID); err != nil {
			return err
		}
		return tx.InsertUnit(ctx, u)
	})
	return apperr.Wrap(op, err)
}

func (s *Service) checkProduct(ctx context.Context, op string, tx repository.Tx, productID uuid.UUID) error {
	_, err := tx.GetProduct(ctx, productID)
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.Newf(op, apperr.ProductNotFound, "product %s not found", productID)
	}
	return err
}

func (s *Service) RevokeLicense(ctx context.Context, id uuid.UUID) error {
	const op = "inventory.RevokeLicense"

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		err := tx.RevokeLicense(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFoundf(op, "license", id)
		}
		return err
	})
	return apperr.Wrap(op, err)
}

// DisableAccount takes an available account, and every free slot in it,
// out of allocation.
func (s *Service) DisableAccount(ctx context.Context, id uuid.UUID) error {
	const op = "inventory.DisableAccount"

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		err := tx.DisableAccount(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFoundf(op, "available account", id)
		}
		return err
	})
	return apperr.Wrap(op, err)
}

func (s *Service) Stock(ctx context.Context, productID uuid.UUID) (*model.Stock, error) {
	const op = "inventory.Stock"

	stock := &model.Stock{ProductID: productID}
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := s.checkProduct(ctx, op, tx, productID); err != nil {
			return err
		}
		counts, err := tx.CountAvailable(ctx, productID)
		stock.Available = counts
		return err
	})
	if err != nil {
		return nil, apperr.Wrap(op, err)
	}
	return stock, nil
}
