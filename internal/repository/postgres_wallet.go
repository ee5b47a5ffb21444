package repository

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/soyHouston256/stream-sales-sub004/internal/model"
)

const walletColumns = `id, owner_id, currency, balance, status, created_at, updated_at`

func scanWallet(row scanner) (*model.Wallet, error) {
	var w model.Wallet
	if err := row.Scan(&w.ID, &w.OwnerID, &w.Currency, &w.Balance, &w.Status, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, notFound(err)
	}
	return &w, nil
}

func (r *pgTx) CreateWallet(ctx context.Context, w *model.Wallet) error {
	query := `
		INSERT INTO wallets (id, owner_id, currency, balance, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (owner_id, currency) DO NOTHING
		RETURNING created_at, updated_at`

	err := r.tx.QueryRow(ctx, query, w.ID, w.OwnerID, w.Currency, w.Balance, w.Status).
		Scan(&w.CreatedAt, &w.UpdatedAt)
	if err := notFound(err); err == ErrNotFound {
		return ErrDuplicateKey
	}
	if err != nil {
		return fmt.Errorf("insert wallet: %w", err)
	}
	return nil
}

func (r *pgTx) GetWallet(ctx context.Context, id uuid.UUID) (*model.Wallet, error) {
	return scanWallet(r.tx.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1`, id))
}

func (r *pgTx) GetWalletByOwner(ctx context.Context, ownerID uuid.UUID, currency string) (*model.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE owner_id = $1 AND currency = $2`
	return scanWallet(r.tx.QueryRow(ctx, query, ownerID, currency))
}

func (r *pgTx) LockWallets(ctx context.Context, ids ...uuid.UUID) (map[uuid.UUID]*model.Wallet, error) {
	keys := uniqueIDs(ids)
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE id = ANY($1::uuid[]) ORDER BY id FOR UPDATE`

	rows, err := r.tx.Query(ctx, query, keys)
	if err != nil {
		return nil, fmt.Errorf("lock wallets: %w", err)
	}
	defer rows.Close()

	locked := make(map[uuid.UUID]*model.Wallet, len(keys))
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		locked[w.ID] = w
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("lock wallets: %w", err)
	}
	if len(locked) != len(keys) {
		return nil, ErrNotFound
	}
	return locked, nil
}

func (r *pgTx) UpdateWalletBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) error {
	tag, err := r.tx.Exec(ctx, `UPDATE wallets SET balance = $1, updated_at = NOW() WHERE id = $2`, balance, id)
	if err != nil {
		return fmt.Errorf("update wallet balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgTx) UpdateWalletStatus(ctx context.Context, id uuid.UUID, status model.WalletStatus) error {
	tag, err := r.tx.Exec(ctx, `UPDATE wallets SET status = $1, updated_at = NOW() WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("update wallet status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgTx) ListWallets(ctx context.Context) ([]model.Wallet, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+walletColumns+` FROM wallets ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	defer rows.Close()

	var wallets []model.Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		wallets = append(wallets, *w)
	}
	return wallets, rows.Err()
}

const ledgerColumns = `id, wallet_id, type, amount, balance_after, source_wallet_id,
	destination_wallet_id, reference_type, reference_id, idempotency_key, created_at`

func scanLedgerTx(row scanner) (*model.LedgerTransaction, error) {
	var (
		t        model.LedgerTransaction
		src, dst uuid.NullUUID
	)
	err := row.Scan(&t.ID, &t.WalletID, &t.Type, &t.Amount, &t.BalanceAfter, &src, &dst,
		&t.Reference.Type, &t.Reference.ID, &t.IdempotencyKey, &t.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	t.SourceWalletID = nullToPtr(src)
	t.DestinationWalletID = nullToPtr(dst)
	return &t, nil
}

func (r *pgTx) InsertLedgerTx(ctx context.Context, t *model.LedgerTransaction) error {
	query := `
		INSERT INTO ledger_transactions (id, wallet_id, type, amount, balance_after, source_wallet_id,
			destination_wallet_id, reference_type, reference_id, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING created_at`

	err := r.tx.QueryRow(ctx, query, t.ID, t.WalletID, t.Type, t.Amount, t.BalanceAfter,
		ptrToNull(t.SourceWalletID), ptrToNull(t.DestinationWalletID),
		t.Reference.Type, t.Reference.ID, t.IdempotencyKey).Scan(&t.CreatedAt)
	if err := notFound(err); err == ErrNotFound {
		return ErrDuplicateKey
	}
	if err != nil {
		return fmt.Errorf("insert ledger transaction: %w", err)
	}
	return nil
}

func (r *pgTx) GetLedgerTxByKey(ctx context.Context, key string) (*model.LedgerTransaction, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_transactions WHERE idempotency_key = $1`
	return scanLedgerTx(r.tx.QueryRow(ctx, query, key))
}

func (r *pgTx) ListLedgerTxByWallet(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]model.LedgerTransaction, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_transactions
		WHERE wallet_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`
	return r.queryLedger(ctx, query, walletID, limit, offset)
}

func (r *pgTx) ListLedgerTxByReference(ctx context.Context, ref model.Reference) ([]model.LedgerTransaction, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_transactions
		WHERE reference_type = $1 AND reference_id = $2
		ORDER BY created_at, id`
	return r.queryLedger(ctx, query, ref.Type, ref.ID)
}

func (r *pgTx) queryLedger(ctx context.Context, query string, args ...any) ([]model.LedgerTransaction, error) {
	rows, err := r.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	var out []model.LedgerTransaction
	for rows.Next() {
		t, err := scanLedgerTx(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (r *pgTx) SumLedgerByWallet(ctx context.Context, walletID uuid.UUID) (decimal.Decimal, decimal.Decimal, int, error) {
	query := `
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE type = 'credit'), 0),
			COALESCE(SUM(amount) FILTER (WHERE type = 'debit'), 0),
			COUNT(*)
		FROM ledger_transactions
		WHERE wallet_id = $1`

	var (
		credits, debits decimal.Decimal
		count           int
	)
	if err := r.tx.QueryRow(ctx, query, walletID).Scan(&credits, &debits, &count); err != nil {
		return decimal.Zero, decimal.Zero, 0, fmt.Errorf("sum ledger: %w", err)
	}
	return credits, debits, count, nil
}

// uniqueIDs returns the distinct ids as strings sorted ascending, which is
// also the byte order PostgreSQL uses for uuid.
func uniqueIDs(ids []uuid.UUID) []string {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id.String())
	}
	sort.Strings(out)
	return out
}

func nullToPtr(n uuid.NullUUID) *uuid.UUID {
	if !n.Valid {
		return nil
	}
	id := n.UUID
	return &id
}

func ptrToNull(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}
