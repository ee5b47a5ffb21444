package memstore

import (
	"bytes"
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/soyHouston256/stream-sales-sub004/internal/model"
	"github.com/soyHouston256/stream-sales-sub004/internal/repository"
)

type tx struct {
	st  *state
	now func() time.Time
}

func (t *tx) next() int64 {
	t.st.seq++
	return t.st.seq
}

func (t *tx) CreateWallet(_ context.Context, w *model.Wallet) error {
	for _, existing := range t.st.wallets {
		if existing.OwnerID == w.OwnerID && existing.Currency == w.Currency {
			return repository.ErrDuplicateKey
		}
	}
	now := t.now()
	w.CreatedAt, w.UpdatedAt = now, now
	t.st.wallets[w.ID] = *w
	return nil
}

func (t *tx) GetWallet(_ context.Context, id uuid.UUID) (*model.Wallet, error) {
	w, ok := t.st.wallets[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &w, nil
}

func (t *tx) GetWalletByOwner(_ context.Context, ownerID uuid.UUID, currency string) (*model.Wallet, error) {
	for _, w := range t.st.wallets {
		if w.OwnerID == ownerID && w.Currency == currency {
			return &w, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (t *tx) LockWallets(_ context.Context, ids ...uuid.UUID) (map[uuid.UUID]*model.Wallet, error) {
	out := make(map[uuid.UUID]*model.Wallet, len(ids))
	for _, id := range ids {
		w, ok := t.st.wallets[id]
		if !ok {
			return nil, repository.ErrNotFound
		}
		out[id] = &w
	}
	return out, nil
}

func (t *tx) UpdateWalletBalance(_ context.Context, id uuid.UUID, balance decimal.Decimal) error {
	w, ok := t.st.wallets[id]
	if !ok {
		return repository.ErrNotFound
	}
	w.Balance = balance
	w.UpdatedAt = t.now()
	t.st.wallets[id] = w
	return nil
}

func (t *tx) UpdateWalletStatus(_ context.Context, id uuid.UUID, status model.WalletStatus) error {
	w, ok := t.st.wallets[id]
	if !ok {
		return repository.ErrNotFound
	}
	w.Status = status
	w.UpdatedAt = t.now()
	t.st.wallets[id] = w
	return nil
}

func (t *tx) ListWallets(context.Context) ([]model.Wallet, error) {
	out := make([]model.Wallet, 0, len(t.st.wallets))
	for _, w := range t.st.wallets {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0 })
	return out, nil
}

func (t *tx) InsertLedgerTx(_ context.Context, e *model.LedgerTransaction) error {
	if _, ok := t.st.ledgerByKey[e.IdempotencyKey]; ok {
		return repository.ErrDuplicateKey
	}
	e.CreatedAt = t.now()
	t.st.ledgerByKey[e.IdempotencyKey] = len(t.st.ledger)
	t.st.ledger = append(t.st.ledger, *e)
	return nil
}

func (t *tx) GetLedgerTxByKey(_ context.Context, key string) (*model.LedgerTransaction, error) {
	i, ok := t.st.ledgerByKey[key]
	if !ok {
		return nil, repository.ErrNotFound
	}
	e := t.st.ledger[i]
	return &e, nil
}

// ListLedgerTxByWallet pages newest first.
func (t *tx) ListLedgerTxByWallet(_ context.Context, walletID uuid.UUID, limit, offset int) ([]model.LedgerTransaction, error) {
	var out []model.LedgerTransaction
	skipped := 0
	for i := len(t.st.ledger) - 1; i >= 0 && len(out) < limit; i-- {
		e := t.st.ledger[i]
		if e.WalletID != walletID {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (t *tx) ListLedgerTxByReference(_ context.Context, ref model.Reference) ([]model.LedgerTransaction, error) {
	var out []model.LedgerTransaction
	for _, e := range t.st.ledger {
		if e.Reference == ref {
			out = append(out, e)
		}
	}
	return out, nil
}

func (t *tx) SumLedgerByWallet(_ context.Context, walletID uuid.UUID) (decimal.Decimal, decimal.Decimal, int, error) {
	credits, debits, n := decimal.Zero, decimal.Zero, 0
	for _, e := range t.st.ledger {
		if e.WalletID != walletID {
			continue
		}
		n++
		if e.Type == model.EntryDebit {
			debits = debits.Add(e.Amount)
		} else {
			credits = credits.Add(e.Amount)
		}
	}
	return credits, debits, n, nil
}

func (t *tx) CreateProduct(_ context.Context, p *model.Product) error {
	if _, ok := t.st.products[p.ID]; ok {
		return repository.ErrDuplicateKey
	}
	p.CreatedAt = t.now()
	t.st.products[p.ID] = *p
	return nil
}

func (t *tx) GetProduct(_ context.Context, id uuid.UUID) (*model.Product, error) {
	p, ok := t.st.products[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (t *tx) CreateVariant(_ context.Context, v *model.Variant) error {
	if _, ok := t.st.products[v.ProductID]; !ok {
		return repository.ErrNotFound
	}
	if _, ok := t.st.variants[v.ID]; ok {
		return repository.ErrDuplicateKey
	}
	v.CreatedAt = t.now()
	t.st.variants[v.ID] = *v
	return nil
}

func (t *tx) GetListing(_ context.Context, variantID uuid.UUID) (*model.Listing, error) {
	v, ok := t.st.variants[variantID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	p, ok := t.st.products[v.ProductID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &model.Listing{Variant: v, Product: p}, nil
}

func (t *tx) InsertUnit(_ context.Context, u *model.InventoryUnit) error {
	rows, ok := t.st.units[u.Kind]
	if !ok {
		return repository.ErrNotFound
	}
	if _, ok := rows[u.ID]; ok {
		return repository.ErrDuplicateKey
	}
	if _, ok := t.st.products[u.ProductID]; !ok {
		return repository.ErrNotFound
	}
	if u.Kind == model.UnitSlot {
		if u.AccountID == nil {
			return repository.ErrNotFound
		}
		if _, ok := t.st.units[model.UnitAccount][*u.AccountID]; !ok {
			return repository.ErrNotFound
		}
	}
	now := t.now()
	u.CreatedAt, u.UpdatedAt = now, now
	rows[u.ID] = unitRow{unit: *u, seq: t.next()}
	return nil
}

func (t *tx) GetUnit(_ context.Context, kind model.UnitKind, id uuid.UUID) (*model.InventoryUnit, error) {
	row, ok := t.st.units[kind][id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	u := row.unit
	return &u, nil
}

func (t *tx) claimable(productID uuid.UUID, kind model.UnitKind, row unitRow) bool {
	u := row.unit
	if u.ProductID != productID || u.Status != model.UnitAvailable {
		return false
	}
	switch kind {
	case model.UnitAccount:
		return u.TotalSlots == 1
	case model.UnitSlot:
		parent, ok := t.st.units[model.UnitAccount][*u.AccountID]
		return ok && parent.unit.Status != model.UnitDisabled
	}
	return true
}

// ClaimAvailable takes the oldest claimable unit, ordered by insertion.
func (t *tx) ClaimAvailable(_ context.Context, productID uuid.UUID, kind model.UnitKind) (*model.UnitHandle, error) {
	var (
		best  unitRow
		found bool
	)
	for _, row := range t.st.units[kind] {
		if !t.claimable(productID, kind, row) {
			continue
		}
		if !found || row.seq < best.seq {
			best, found = row, true
		}
	}
	if !found {
		return nil, repository.ErrNotFound
	}

	best.unit.Status = model.UnitAssigned
	best.unit.UpdatedAt = t.now()
	t.st.units[kind][best.unit.ID] = best
	return &model.UnitHandle{
		Kind:      kind,
		UnitID:    best.unit.ID,
		AccountID: best.unit.AccountID,
		ProductID: best.unit.ProductID,
	}, nil
}

func (t *tx) setUnitStatus(kind model.UnitKind, id uuid.UUID, from func(model.UnitStatus) bool, to model.UnitStatus) error {
	row, ok := t.st.units[kind][id]
	if !ok || !from(row.unit.Status) {
		return repository.ErrNotFound
	}
	row.unit.Status = to
	row.unit.UpdatedAt = t.now()
	t.st.units[kind][id] = row
	return nil
}

func (t *tx) ReleaseAssigned(_ context.Context, h model.UnitHandle) error {
	return t.setUnitStatus(h.Kind, h.UnitID, func(s model.UnitStatus) bool { return s == model.UnitAssigned }, model.UnitAvailable)
}

func (t *tx) RevokeLicense(_ context.Context, id uuid.UUID) error {
	return t.setUnitStatus(model.UnitLicense, id, func(s model.UnitStatus) bool { return s != model.UnitRevoked }, model.UnitRevoked)
}

func (t *tx) DisableAccount(_ context.Context, id uuid.UUID) error {
	return t.setUnitStatus(model.UnitAccount, id, func(s model.UnitStatus) bool { return s == model.UnitAvailable }, model.UnitDisabled)
}

func (t *tx) CountAvailable(_ context.Context, productID uuid.UUID) (map[model.UnitKind]int, error) {
	counts := make(map[model.UnitKind]int, len(model.UnitKinds))
	for _, kind := range model.UnitKinds {
		counts[kind] = 0
		for _, row := range t.st.units[kind] {
			if t.claimable(productID, kind, row) {
				counts[kind]++
			}
		}
	}
	return counts, nil
}

func purchaseKey(buyerID uuid.UUID, key string) string {
	return buyerID.String() + "|" + key
}

func (t *tx) InsertPurchase(_ context.Context, p *model.Purchase) error {
	k := purchaseKey(p.BuyerID, p.IdempotencyKey)
	if _, ok := t.st.purchaseByKey[k]; ok {
		return repository.ErrDuplicateKey
	}
	now := t.now()
	p.CreatedAt, p.UpdatedAt = now, now
	t.st.purchases[p.ID] = *p
	t.st.purchaseByKey[k] = p.ID
	return nil
}

func (t *tx) GetPurchase(_ context.Context, id uuid.UUID) (*model.Purchase, error) {
	p, ok := t.st.purchases[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (t *tx) GetPurchaseForUpdate(ctx context.Context, id uuid.UUID) (*model.Purchase, error) {
	return t.GetPurchase(ctx, id)
}

func (t *tx) GetPurchaseByKey(ctx context.Context, buyerID uuid.UUID, key string) (*model.Purchase, error) {
	id, ok := t.st.purchaseByKey[purchaseKey(buyerID, key)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return t.GetPurchase(ctx, id)
}

func (t *tx) UpdatePurchaseRefund(_ context.Context, id uuid.UUID, status model.PurchaseStatus, refunded decimal.Decimal) error {
	p, ok := t.st.purchases[id]
	if !ok {
		return repository.ErrNotFound
	}
	p.Status = status
	p.RefundedAmount = refunded
	p.UpdatedAt = t.now()
	t.st.purchases[id] = p
	return nil
}

func (t *tx) InsertDispute(_ context.Context, d *model.Dispute) error {
	if _, ok := t.st.purchases[d.PurchaseID]; !ok {
		return repository.ErrNotFound
	}
	if _, ok := t.st.disputeByPurchase[d.PurchaseID]; ok {
		return repository.ErrDuplicateKey
	}
	now := t.now()
	d.CreatedAt, d.UpdatedAt = now, now
	t.st.disputes[d.ID] = *d
	t.st.disputeByPurchase[d.PurchaseID] = d.ID
	return nil
}

func (t *tx) GetDispute(_ context.Context, id uuid.UUID) (*model.Dispute, error) {
	d, ok := t.st.disputes[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &d, nil
}

func (t *tx) GetDisputeForUpdate(ctx context.Context, id uuid.UUID) (*model.Dispute, error) {
	return t.GetDispute(ctx, id)
}

func (t *tx) UpdateDispute(_ context.Context, d *model.Dispute) error {
	if _, ok := t.st.disputes[d.ID]; !ok {
		return repository.ErrNotFound
	}
	d.UpdatedAt = t.now()
	t.st.disputes[d.ID] = *d
	return nil
}

func (t *tx) LatestCommissionConfig(context.Context) (*model.CommissionConfig, error) {
	if len(t.st.configs) == 0 {
		return nil, repository.ErrNotFound
	}
	c := t.st.configs[len(t.st.configs)-1]
	return &c, nil
}

func (t *tx) InsertCommissionConfig(_ context.Context, c *model.CommissionConfig) error {
	c.Version = int64(len(t.st.configs)) + 1
	c.CreatedAt = t.now()
	t.st.configs = append(t.st.configs, *c)
	return nil
}

func (t *tx) UpsertAffiliate(_ context.Context, a *model.Affiliate) error {
	if existing, ok := t.st.affiliates[a.UserID]; ok {
		a.CreatedAt = existing.CreatedAt
	} else {
		a.CreatedAt = t.now()
	}
	t.st.affiliates[a.UserID] = *a
	return nil
}

func (t *tx) InsertReferral(_ context.Context, buyerID, affiliateID uuid.UUID) error {
	if _, ok := t.st.affiliates[affiliateID]; !ok {
		return repository.ErrNotFound
	}
	if _, ok := t.st.referrals[buyerID]; !ok {
		t.st.referrals[buyerID] = affiliateID
	}
	return nil
}

func (t *tx) ApprovedAffiliateFor(_ context.Context, buyerID uuid.UUID) (*model.Affiliate, error) {
	affiliateID, ok := t.st.referrals[buyerID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	a, ok := t.st.affiliates[affiliateID]
	if !ok || a.Status != model.AffiliateApproved {
		return nil, repository.ErrNotFound
	}
	return &a, nil
}

func (t *tx) InsertAudit(_ context.Context, e *model.AuditEntry) error {
	e.CreatedAt = t.now()
	t.st.audit = append(t.st.audit, *e)
	return nil
}
