// Package ledger moves money between wallets. Every mutation appends one
// immutable ledger transaction and applies its delta to the wallet row in the
// caller's unit of work.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/soyHouston256/stream-sales-sub004/internal/apperr"
	"github.com/soyHouston256/stream-sales-sub004/internal/model"
	"github.com/soyHouston256/stream-sales-sub004/internal/repository"
)

// Posting is the result of one ledger mutation: the entry and the wallet
// as it stands after it.
type Posting struct {
	Entry    model.LedgerTransaction `json:"entry"`
	Wallet   model.Wallet            `json:"wallet"`
	Replayed bool                    `json:"replayed"`
}

type Ledger struct{}

func New() *Ledger {
	return &Ledger{}
}

// Round2 rounds a money amount to cents, half away from zero.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Lock row-locks the wallets in ascending id order. Every multi-wallet
// operation locks through here so concurrent units of work cannot deadlock.
func (l *Ledger) Lock(ctx context.Context, tx repository.Tx, ids ...uuid.UUID) (map[uuid.UUID]*model.Wallet, error) {
	const op = "ledger.Lock"

	wallets, err := tx.LockWallets(ctx, ids...)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.New(op, apperr.NotFound, "wallet not found")
	}
	if err != nil {
		return nil, apperr.Wrap(op, err)
	}
	return wallets, nil
}

func (l *Ledger) Debit(ctx context.Context, tx repository.Tx, walletID uuid.UUID, amount decimal.Decimal, key string, ref model.Reference) (*Posting, error) {
	return l.post(ctx, tx, "ledger.Debit", model.EntryDebit, walletID, nil, amount, key, ref)
}

func (l *Ledger) Credit(ctx context.Context, tx repository.Tx, walletID uuid.UUID, amount decimal.Decimal, key string, ref model.Reference) (*Posting, error) {
	return l.post(ctx, tx, "ledger.Credit", model.EntryCredit, walletID, nil, amount, key, ref)
}

// DebitTo and CreditFrom record the counterparty wallet on the entry.
func (l *Ledger) DebitTo(ctx context.Context, tx repository.Tx, walletID, to uuid.UUID, amount decimal.Decimal, key string, ref model.Reference) (*Posting, error) {
	return l.post(ctx, tx, "ledger.Debit", model.EntryDebit, walletID, &to, amount, key, ref)
}

func (l *Ledger) CreditFrom(ctx context.Context, tx repository.Tx, walletID, from uuid.UUID, amount decimal.Decimal, key string, ref model.Reference) (*Posting, error) {
	return l.post(ctx, tx, "ledger.Credit", model.EntryCredit, walletID, &from, amount, key, ref)
}

// Transfer debits from and credits to as one step, under sub-keys
// key:debit and key:credit.
func (l *Ledger) Transfer(ctx context.Context, tx repository.Tx, from, to uuid.UUID, amount decimal.Decimal, key string, ref model.Reference) (*Posting, *Posting, error) {
	const op = "ledger.Transfer"

	if from == to {
		return nil, nil, apperr.Invalid(op, "destination wallet", to)
	}
	if _, err := l.Lock(ctx, tx, from, to); err != nil {
		return nil, nil, err
	}

	debit, err := l.DebitTo(ctx, tx, from, to, amount, key+":debit", ref)
	if err != nil {
		return nil, nil, err
	}
	credit, err := l.CreditFrom(ctx, tx, to, from, amount, key+":credit", ref)
	if err != nil {
		return nil, nil, err
	}
	return debit, credit, nil
}

func (l *Ledger) post(ctx context.Context, tx repository.Tx, op string, typ model.EntryType, walletID uuid.UUID, counterparty *uuid.UUID, amount decimal.Decimal, key string, ref model.Reference) (*Posting, error) {
	if !amount.IsPositive() || !amount.Equal(Round2(amount)) {
		return nil, apperr.Invalid(op, "amount", amount)
	}
	if key == "" {
		return nil, apperr.Invalid(op, "idempotency key", `""`)
	}

	if prior, err := l.replay(ctx, tx, op, typ, walletID, amount, key); err != nil || prior != nil {
		return prior, err
	}

	locked, err := l.Lock(ctx, tx, walletID)
	if err != nil {
		return nil, err
	}
	w := locked[walletID]
	if w.Status != model.WalletActive {
		return nil, apperr.Newf(op, apperr.WalletNotActive, "wallet %s is %s", w.ID, w.Status)
	}

	entry := model.LedgerTransaction{
		ID:             uuid.New(),
		WalletID:       walletID,
		Type:           typ,
		Amount:         amount,
		Reference:      ref,
		IdempotencyKey: key,
	}
	switch typ {
	case model.EntryDebit:
		if w.Balance.LessThan(amount) {
			return nil, apperr.Newf(op, apperr.InsufficientFunds, "insufficient funds: balance %s, need %s",
				w.Balance.StringFixed(2), amount.StringFixed(2))
		}
		entry.SourceWalletID = &walletID
		entry.DestinationWalletID = counterparty
	case model.EntryCredit:
		entry.SourceWalletID = counterparty
		entry.DestinationWalletID = &walletID
	}
	entry.BalanceAfter = w.Balance.Add(entry.Signed())

	if err := tx.UpdateWalletBalance(ctx, walletID, entry.BalanceAfter); err != nil {
		return nil, apperr.Wrap(op, fmt.Errorf("update balance: %w", err))
	}
	// A duplicate here means a concurrent unit of work inserted the same
	// key first; the store retries and the retry takes the replay path.
	if err := tx.InsertLedgerTx(ctx, &entry); err != nil {
		return nil, apperr.Wrap(op, fmt.Errorf("insert entry %s: %w", key, err))
	}

	w.Balance = entry.BalanceAfter
	return &Posting{Entry: entry, Wallet: *w}, nil
}

// replay returns the posting stored under key, or nil when the key is new.
func (l *Ledger) replay(ctx context.Context, tx repository.Tx, op string, typ model.EntryType, walletID uuid.UUID, amount decimal.Decimal, key string) (*Posting, error) {
	prior, err := tx.GetLedgerTxByKey(ctx, key)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(op, err)
	}

	if prior.WalletID != walletID || prior.Type != typ || !prior.Amount.Equal(amount) {
		return nil, apperr.Newf(op, apperr.DuplicateIdempotencyKey,
			"idempotency key %q already used for a different %s", key, prior.Type)
	}

	w, err := tx.GetWallet(ctx, walletID)
	if err != nil {
		return nil, apperr.Wrap(op, err)
	}
	return &Posting{Entry: *prior, Wallet: *w, Replayed: true}, nil
}
