package inventory

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyHouston256/stream-sales-sub004/internal/apperr"
	"github.com/soyHouston256/stream-sales-sub004/internal/model"
	"github.com/soyHouston256/stream-sales-sub004/internal/repository"
	"github.com/soyHouston256/stream-sales-sub004/internal/repository/memstore"
)

func newProduct(t *testing.T, svc *Service) *model.Product {
	t.Helper()
	p, err := svc.CreateProduct(context.Background(), uuid.New(), "Streaming Premium")
	require.NoError(t, err)
	return p
}

func claim(store repository.Store, a *Allocator, productID uuid.UUID) (*model.UnitHandle, error) {
	var h *model.UnitHandle
	err := store.WithinTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		var err error
		h, err = a.ClaimUnit(ctx, tx, productID)
		return err
	})
	return h, err
}

func TestClaimUnitPrefersAccountsThenSlotsThenLicenses(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	svc := NewService(store, nil)
	a := NewAllocator()
	p := newProduct(t, svc)

	license, err := svc.AddLicense(ctx, p.ID, "vault://license/1")
	require.NoError(t, err)
	_, slots, err := svc.AddSharedAccount(ctx, p.ID, "family", "vault://acct/shared", []string{"vault://slot/1", "vault://slot/2"})
	require.NoError(t, err)
	account, err := svc.AddAccount(ctx, p.ID, "solo", "vault://acct/solo")
	require.NoError(t, err)

	stock, err := svc.Stock(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, stock.Total())

	want := []uuid.UUID{account.ID, slots[0].ID, slots[1].ID, license.ID}
	for _, id := range want {
		h, err := claim(store, a, p.ID)
		require.NoError(t, err)
		assert.Equal(t, id, h.UnitID)
	}

	_, err = claim(store, a, p.ID)
	assert.ErrorIs(t, err, apperr.ErrOutOfStock)
}

func TestReleaseUnitRequiresAssigned(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	svc := NewService(store, nil)
	a := NewAllocator()
	p := newProduct(t, svc)
	_, err := svc.AddLicense(ctx, p.ID, "vault://license/1")
	require.NoError(t, err)

	h, err := claim(store, a, p.ID)
	require.NoError(t, err)

	release := func() error {
		return store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			return a.ReleaseUnit(ctx, tx, *h)
		})
	}
	require.NoError(t, release())
	assert.ErrorIs(t, release(), apperr.ErrUnitNotAssigned)

	again, err := claim(store, a, p.ID)
	require.NoError(t, err)
	assert.Equal(t, h.UnitID, again.UnitID)
}

func TestRevokedLicenseIsNeverClaimed(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	svc := NewService(store, nil)
	p := newProduct(t, svc)
	l, err := svc.AddLicense(ctx, p.ID, "vault://license/1")
	require.NoError(t, err)

	require.NoError(t, svc.RevokeLicense(ctx, l.ID))
	assert.ErrorIs(t, svc.RevokeLicense(ctx, l.ID), apperr.ErrNotFound)

	_, err = claim(store, NewAllocator(), p.ID)
	assert.ErrorIs(t, err, apperr.ErrOutOfStock)
}

func TestStockingUnknownProductFails(t *testing.T) {
	svc := NewService(memstore.New(), nil)

	_, err := svc.AddAccount(context.Background(), uuid.New(), "solo", "vault://acct/1")
	assert.ErrorIs(t, err, apperr.ErrProductNotFound)

	_, _, err = svc.AddSharedAccount(context.Background(), uuid.New(), "family", "vault://acct/2", []string{"only-one"})
	assert.ErrorIs(t, err, apperr.ErrInvalidRequest)
}

func TestConcurrentClaimsNeverDoubleSell(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	svc := NewService(store, nil)
	a := NewAllocator()
	p := newProduct(t, svc)
	for i := 0; i < 3; i++ {
		_, err := svc.AddLicense(ctx, p.ID, uuid.NewString())
		require.NoError(t, err)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		claimed = map[uuid.UUID]int{}
		misses  int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := claim(store, a, p.ID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				misses++
				return
			}
			claimed[h.UnitID]++
		}()
	}
	wg.Wait()

	assert.Len(t, claimed, 3)
	for _, n := range claimed {
		assert.Equal(t, 1, n)
	}
	assert.Equal(t, 7, misses)
}
