// Package memstore is an in-memory repository.Store for tests and
// single-process local runs. Units of work are serialized by one mutex and
// see a private copy of the data that replaces the shared copy on commit.
package memstore

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/soyHouston256/stream-sales-sub004/internal/model"
	"github.com/soyHouston256/stream-sales-sub004/internal/repository"
)

type unitRow struct {
	unit model.InventoryUnit
	seq  int64
}

type state struct {
	seq int64

	wallets     map[uuid.UUID]model.Wallet
	ledger      []model.LedgerTransaction
	ledgerByKey map[string]int

	products map[uuid.UUID]model.Product
	variants map[uuid.UUID]model.Variant
	units    map[model.UnitKind]map[uuid.UUID]unitRow

	purchases         map[uuid.UUID]model.Purchase
	purchaseByKey     map[string]uuid.UUID
	disputes          map[uuid.UUID]model.Dispute
	disputeByPurchase map[uuid.UUID]uuid.UUID

	configs    []model.CommissionConfig
	affiliates map[uuid.UUID]model.Affiliate
	referrals  map[uuid.UUID]uuid.UUID
	audit      []model.AuditEntry
}

func newState() *state {
	s := &state{
		wallets:           make(map[uuid.UUID]model.Wallet),
		ledgerByKey:       make(map[string]int),
		products:          make(map[uuid.UUID]model.Product),
		variants:          make(map[uuid.UUID]model.Variant),
		units:             make(map[model.UnitKind]map[uuid.UUID]unitRow),
		purchases:         make(map[uuid.UUID]model.Purchase),
		purchaseByKey:     make(map[string]uuid.UUID),
		disputes:          make(map[uuid.UUID]model.Dispute),
		disputeByPurchase: make(map[uuid.UUID]uuid.UUID),
		affiliates:        make(map[uuid.UUID]model.Affiliate),
		referrals:         make(map[uuid.UUID]uuid.UUID),
	}
	for _, k := range model.UnitKinds {
		s.units[k] = make(map[uuid.UUID]unitRow)
	}
	return s
}

func (s *state) clone() *state {
	c := &state{
		seq:               s.seq,
		wallets:           maps.Clone(s.wallets),
		ledger:            slices.Clone(s.ledger),
		ledgerByKey:       maps.Clone(s.ledgerByKey),
		products:          maps.Clone(s.products),
		variants:          maps.Clone(s.variants),
		units:             make(map[model.UnitKind]map[uuid.UUID]unitRow, len(s.units)),
		purchases:         maps.Clone(s.purchases),
		purchaseByKey:     maps.Clone(s.purchaseByKey),
		disputes:          maps.Clone(s.disputes),
		disputeByPurchase: maps.Clone(s.disputeByPurchase),
		configs:           slices.Clone(s.configs),
		affiliates:        maps.Clone(s.affiliates),
		referrals:         maps.Clone(s.referrals),
		audit:             slices.Clone(s.audit),
	}
	for k, rows := range s.units {
		c.units[k] = maps.Clone(rows)
	}
	return c
}

type Store struct {
	mu    sync.Mutex
	state *state
	now   func() time.Time
}

var (
	_ repository.Store = (*Store)(nil)
	_ repository.Tx    = (*tx)(nil)
)

func New() *Store {
	return &Store{
		state: newState(),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// WithinTx runs fn against a copy of the data and publishes the copy only
// when fn succeeds and ctx is still live.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	work := &tx{st: s.state.clone(), now: s.now}
	if err := fn(ctx, work); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.state = work.st
	return nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() {}

// AuditEntries returns the committed audit log, oldest first.
func (s *Store) AuditEntries() []model.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.state.audit)
}
