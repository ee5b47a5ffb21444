package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyHouston256/stream-sales-sub004/internal/model"
	"github.com/soyHouston256/stream-sales-sub004/internal/repository"
)

func TestWithinTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := New()
	w := &model.Wallet{ID: uuid.New(), OwnerID: uuid.New(), Currency: "USD", Status: model.WalletActive}

	boom := errors.New("boom")
	err := s.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		require.NoError(t, tx.CreateWallet(ctx, w))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	err = s.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		_, err := tx.GetWallet(ctx, w.ID)
		return err
	})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestWithinTxCancelledContextDiscardsWrites(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	w := &model.Wallet{ID: uuid.New(), OwnerID: uuid.New(), Currency: "USD", Status: model.WalletActive}

	err := s.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		require.NoError(t, tx.CreateWallet(ctx, w))
		cancel()
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)

	err = s.WithinTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		_, err := tx.GetWallet(ctx, w.ID)
		return err
	})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestClaimAvailableTakesOldestAndSkipsDisabledAccounts(t *testing.T) {
	ctx := context.Background()
	s := New()
	productID := uuid.New()
	shared := &model.InventoryUnit{ID: uuid.New(), ProductID: productID, Kind: model.UnitAccount, TotalSlots: 2, Status: model.UnitAvailable}
	first := &model.InventoryUnit{ID: uuid.New(), ProductID: productID, Kind: model.UnitSlot, AccountID: &shared.ID, Status: model.UnitAvailable}
	second := &model.InventoryUnit{ID: uuid.New(), ProductID: productID, Kind: model.UnitSlot, AccountID: &shared.ID, Status: model.UnitAvailable}

	err := s.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		require.NoError(t, tx.CreateProduct(ctx, &model.Product{ID: productID, Active: true}))
		require.NoError(t, tx.InsertUnit(ctx, shared))
		require.NoError(t, tx.InsertUnit(ctx, first))
		require.NoError(t, tx.InsertUnit(ctx, second))

		_, err := tx.ClaimAvailable(ctx, productID, model.UnitAccount)
		assert.ErrorIs(t, err, repository.ErrNotFound, "shared accounts are sold by slot")

		h, err := tx.ClaimAvailable(ctx, productID, model.UnitSlot)
		require.NoError(t, err)
		assert.Equal(t, first.ID, h.UnitID)
		assert.Equal(t, shared.ID, *h.AccountID)

		require.NoError(t, tx.DisableAccount(ctx, shared.ID))
		_, err = tx.ClaimAvailable(ctx, productID, model.UnitSlot)
		assert.ErrorIs(t, err, repository.ErrNotFound)

		counts, err := tx.CountAvailable(ctx, productID)
		require.NoError(t, err)
		assert.Equal(t, 0, counts[model.UnitSlot])
		return nil
	})
	require.NoError(t, err)
}

func TestLedgerKeysAreUnique(t *testing.T) {
	ctx := context.Background()
	s := New()
	walletID := uuid.New()

	err := s.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		entry := &model.LedgerTransaction{ID: uuid.New(), WalletID: walletID, Type: model.EntryCredit, Amount: decimal.NewFromInt(5), IdempotencyKey: "k"}
		require.NoError(t, tx.InsertLedgerTx(ctx, entry))

		dup := *entry
		dup.ID = uuid.New()
		assert.ErrorIs(t, tx.InsertLedgerTx(ctx, &dup), repository.ErrDuplicateKey)

		credits, debits, n, err := tx.SumLedgerByWallet(ctx, walletID)
		require.NoError(t, err)
		assert.True(t, credits.Equal(decimal.NewFromInt(5)))
		assert.True(t, debits.IsZero())
		assert.Equal(t, 1, n)
		return nil
	})
	require.NoError(t, err)
}
