package ledger

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/soyHouston256/stream-sales-sub004/internal/apperr"
	"github.com/soyHouston256/stream-sales-sub004/internal/model"
	"github.com/soyHouston256/stream-sales-sub004/internal/repository"
)

// Wallets runs the standalone wallet operations, each in its own unit of work.
type Wallets struct {
	store    repository.Store
	ledger   *Ledger
	currency string
	logger   *slog.Logger
}

func NewWallets(store repository.Store, l *Ledger, currency string, logger *slog.Logger) *Wallets {
	if logger == nil {
		logger = slog.Default()
	}
	return &Wallets{store: store, ledger: l, currency: currency, logger: logger}
}

func (s *Wallets) Currency() string {
	return s.currency
}

// Open returns the owner's wallet, creating an empty active one on first use.
func (s *Wallets) Open(ctx context.Context, ownerID uuid.UUID) (*model.Wallet, error) {
	const op = "ledger.Open"

	var out *model.Wallet
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		w, err := EnsureWallet(ctx, tx, ownerID, s.currency)
		out = w
		return err
	})
	if err != nil {
		return nil, apperr.Wrap(op, err)
	}
	return out, nil
}

// EnsureWallet is Open on the caller's unit of work.
func EnsureWallet(ctx context.Context, tx repository.Tx, ownerID uuid.UUID, currency string) (*model.Wallet, error) {
	const op = "ledger.EnsureWallet"

	w, err := tx.GetWalletByOwner(ctx, ownerID, currency)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.Wrap(op, err)
	}

	w = &model.Wallet{
		ID:       uuid.New(),
		OwnerID:  ownerID,
		Currency: currency,
		Balance:  decimal.Zero,
		Status:   model.WalletActive,
	}
	if err := tx.CreateWallet(ctx, w); err != nil {
		return nil, apperr.Wrap(op, err)
	}
	return w, nil
}

func (s *Wallets) Get(ctx context.Context, id uuid.UUID) (*model.Wallet, error) {
	const op = "ledger.Get"

	var out *model.Wallet
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		w, err := tx.GetWallet(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFoundf(op, "wallet", id)
		}
		out = w
		return err
	})
	if err != nil {
		return nil, apperr.Wrap(op, err)
	}
	return out, nil
}

func (s *Wallets) Deposit(ctx context.Context, req model.DepositRequest) (*Posting, error) {
	return s.external(ctx, "ledger.Deposit", model.EntryCredit, model.RefDeposit, req)
}

func (s *Wallets) Withdraw(ctx context.Context, req model.DepositRequest) (*Posting, error) {
	return s.external(ctx, "ledger.Withdraw", model.EntryDebit, model.RefWithdraw, req)
}

// external moves money into or out of the system, with no counterparty wallet.
func (s *Wallets) external(ctx context.Context, op string, typ model.EntryType, refType string, req model.DepositRequest) (*Posting, error) {
	if req.IdempotencyKey == "" {
		return nil, apperr.Invalid(op, "idempotency key", `""`)
	}
	key := refType + ":" + req.IdempotencyKey
	ref := model.Reference{Type: refType, ID: uuid.NewSHA1(uuid.NameSpaceOID, []byte(key))}

	var posting *Posting
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		if typ == model.EntryCredit {
			posting, err = s.ledger.Credit(ctx, tx, req.WalletID, req.Amount, key, ref)
		} else {
			posting, err = s.ledger.Debit(ctx, tx, req.WalletID, req.Amount, key, ref)
		}
		return err
	})
	if err != nil {
		s.logger.Warn("wallet adjustment failed", "op", op, "wallet_id", req.WalletID, "key", key, "error", err)
		return nil, apperr.Wrap(op, err)
	}

	s.logger.Info("wallet adjusted",
		"op", op,
		"wallet_id", req.WalletID,
		"amount", req.Amount.StringFixed(2),
		"replayed", posting.Replayed,
	)
	return posting, nil
}

// Reconcile replays the wallet's ledger history and compares it with the
// stored balance.
func (s *Wallets) Reconcile(ctx context.Context, walletID uuid.UUID) (*model.Reconciliation, error) {
	const op = "ledger.Reconcile"

	var out *model.Reconciliation
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		r, err := reconcile(ctx, tx, walletID)
		out = r
		return err
	})
	if err != nil {
		return nil, apperr.Wrap(op, err)
	}
	if !out.Balanced() {
		s.logger.Error("wallet balance drift", "wallet_id", walletID, "stored", out.Stored, "replayed", out.Replayed)
	}
	return out, nil
}

// ReconcileAll reconciles every wallet in id order.
func (s *Wallets) ReconcileAll(ctx context.Context) ([]model.Reconciliation, error) {
	const op = "ledger.ReconcileAll"

	var out []model.Reconciliation
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		out = nil
		wallets, err := tx.ListWallets(ctx)
		if err != nil {
			return err
		}
		for _, w := range wallets {
			r, err := reconcile(ctx, tx, w.ID)
			if err != nil {
				return err
			}
			out = append(out, *r)
		}
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap(op, err)
	}
	return out, nil
}

func reconcile(ctx context.Context, tx repository.Tx, walletID uuid.UUID) (*model.Reconciliation, error) {
	w, err := tx.GetWallet(ctx, walletID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFoundf("ledger.Reconcile", "wallet", walletID)
	}
	if err != nil {
		return nil, err
	}
	credits, debits, n, err := tx.SumLedgerByWallet(ctx, walletID)
	if err != nil {
		return nil, err
	}
	replayed := credits.Sub(debits)
	return &model.Reconciliation{
		WalletID:       walletID,
		Stored:         w.Balance,
		Replayed:       replayed,
		Drift:          w.Balance.Sub(replayed),
		TotalCredits:   credits,
		TotalDebits:    debits,
		EntriesScanned: n,
	}, nil
}

// History returns one page of the wallet's ledger, newest first.
func (s *Wallets) History(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]model.LedgerTransaction, error) {
	const op = "ledger.History"

	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var out []model.LedgerTransaction
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if _, err := tx.GetWallet(ctx, walletID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return apperr.NotFoundf(op, "wallet", walletID)
			}
			return err
		}
		entries, err := tx.ListLedgerTxByWallet(ctx, walletID, limit, offset)
		out = entries
		return err
	})
	if err != nil {
		return nil, apperr.Wrap(op, err)
	}
	return out, nil
}

func (s *Wallets) Freeze(ctx context.Context, id uuid.UUID) (*model.Wallet, error) {
	return s.setStatus(ctx, "ledger.Freeze", id, model.WalletFrozen)
}

func (s *Wallets) Activate(ctx context.Context, id uuid.UUID) (*model.Wallet, error) {
	return s.setStatus(ctx, "ledger.Activate", id, model.WalletActive)
}

// Close is terminal and requires an empty wallet.
func (s *Wallets) Close(ctx context.Context, id uuid.UUID) (*model.Wallet, error) {
	return s.setStatus(ctx, "ledger.Close", id, model.WalletClosed)
}

func (s *Wallets) setStatus(ctx context.Context, op string, id uuid.UUID, status model.WalletStatus) (*model.Wallet, error) {
	var out *model.Wallet
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		locked, err := s.ledger.Lock(ctx, tx, id)
		if err != nil {
			return err
		}
		w := locked[id]
		switch {
		case w.Status == model.WalletClosed:
			return apperr.Newf(op, apperr.WalletNotActive, "wallet %s is closed", id)
		case status == model.WalletClosed && !w.Balance.IsZero():
			return apperr.Newf(op, apperr.InvalidRequest, "wallet %s still holds %s", id, w.Balance.StringFixed(2))
		}
		if err := tx.UpdateWalletStatus(ctx, id, status); err != nil {
			return err
		}
		w.Status = status
		out = w
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap(op, err)
	}
	s.logger.Info("wallet status changed", "wallet_id", id, "status", status)
	return out, nil
}
