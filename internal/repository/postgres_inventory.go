package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/soyHouston256/stream-sales-sub004/internal/model"
)

func (r *pgTx) CreateProduct(ctx context.Context, p *model.Product) error {
	query := `
		INSERT INTO products (id, provider_id, name, active)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`

	if err := r.tx.QueryRow(ctx, query, p.ID, p.ProviderID, p.Name, p.Active).Scan(&p.CreatedAt); err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func (r *pgTx) GetProduct(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	query := `SELECT id, provider_id, name, active, created_at FROM products WHERE id = $1`

	var p model.Product
	if err := r.tx.QueryRow(ctx, query, id).Scan(&p.ID, &p.ProviderID, &p.Name, &p.Active, &p.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (r *pgTx) CreateVariant(ctx context.Context, v *model.Variant) error {
	query := `
		INSERT INTO variants (id, product_id, name, price, currency, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`

	err := r.tx.QueryRow(ctx, query, v.ID, v.ProductID, v.Name, v.Price, v.Currency, v.Active).Scan(&v.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert variant: %w", err)
	}
	return nil
}

func (r *pgTx) GetListing(ctx context.Context, variantID uuid.UUID) (*model.Listing, error) {
	query := `
		SELECT v.id, v.product_id, v.name, v.price, v.currency, v.active, v.created_at,
			p.id, p.provider_id, p.name, p.active, p.created_at
		FROM variants v
		JOIN products p ON p.id = v.product_id
		WHERE v.id = $1`

	var l model.Listing
	err := r.tx.QueryRow(ctx, query, variantID).Scan(
		&l.Variant.ID, &l.Variant.ProductID, &l.Variant.Name, &l.Variant.Price, &l.Variant.Currency,
		&l.Variant.Active, &l.Variant.CreatedAt,
		&l.Product.ID, &l.Product.ProviderID, &l.Product.Name, &l.Product.Active, &l.Product.CreatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return &l, nil
}

func (r *pgTx) InsertUnit(ctx context.Context, u *model.InventoryUnit) error {
	var (
		query string
		args  []any
	)
	switch u.Kind {
	case model.UnitAccount:
		query = `
			INSERT INTO inventory_accounts (id, product_id, label, credential_ref, total_slots, status)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING created_at, updated_at`
		args = []any{u.ID, u.ProductID, u.Label, u.CredentialRef, u.TotalSlots, u.Status}
	case model.UnitSlot:
		query = `
			INSERT INTO inventory_slots (id, account_id, product_id, label, credential_ref, status)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING created_at, updated_at`
		args = []any{u.ID, ptrToNull(u.AccountID), u.ProductID, u.Label, u.CredentialRef, u.Status}
	case model.UnitLicense:
		query = `
			INSERT INTO inventory_licenses (id, product_id, label, credential_ref, status)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING created_at, updated_at`
		args = []any{u.ID, u.ProductID, u.Label, u.CredentialRef, u.Status}
	default:
		return fmt.Errorf("insert unit: unknown kind %q", u.Kind)
	}

	if err := r.tx.QueryRow(ctx, query, args...).Scan(&u.CreatedAt, &u.UpdatedAt); err != nil {
		return fmt.Errorf("insert %s: %w", u.Kind, err)
	}
	return nil
}

func (r *pgTx) GetUnit(ctx context.Context, kind model.UnitKind, id uuid.UUID) (*model.InventoryUnit, error) {
	var query string
	switch kind {
	case model.UnitAccount:
		query = `SELECT id, product_id, NULL::uuid, total_slots, label, credential_ref, status, created_at, updated_at
			FROM inventory_accounts WHERE id = $1`
	case model.UnitSlot:
		query = `SELECT id, product_id, account_id, 0, label, credential_ref, status, created_at, updated_at
			FROM inventory_slots WHERE id = $1`
	case model.UnitLicense:
		query = `SELECT id, product_id, NULL::uuid, 0, label, credential_ref, status, created_at, updated_at
			FROM inventory_licenses WHERE id = $1`
	default:
		return nil, ErrNotFound
	}

	var (
		u       = model.InventoryUnit{Kind: kind}
		account uuid.NullUUID
	)
	err := r.tx.QueryRow(ctx, query, id).Scan(&u.ID, &u.ProductID, &account, &u.TotalSlots, &u.Label,
		&u.CredentialRef, &u.Status, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	u.AccountID = nullToPtr(account)
	return &u, nil
}

// Claims skip rows locked by concurrent claims, so two buyers racing for the
// last unit never both see it as available.
var claimQueries = map[model.UnitKind]string{
	model.UnitAccount: `
		UPDATE inventory_accounts SET status = 'assigned', updated_at = NOW()
		WHERE id = (
			SELECT id FROM inventory_accounts
			WHERE product_id = $1 AND status = 'available' AND total_slots = 1
			ORDER BY created_at, id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, NULL::uuid`,
	model.UnitSlot: `
		UPDATE inventory_slots SET status = 'assigned', updated_at = NOW()
		WHERE id = (
			SELECT s.id FROM inventory_slots s
			JOIN inventory_accounts a ON a.id = s.account_id
			WHERE s.product_id = $1 AND s.status = 'available' AND a.status <> 'disabled'
			ORDER BY s.created_at, s.id
			LIMIT 1
			FOR UPDATE OF s SKIP LOCKED
		)
		RETURNING id, account_id`,
	model.UnitLicense: `
		UPDATE inventory_licenses SET status = 'assigned', updated_at = NOW()
		WHERE id = (
			SELECT id FROM inventory_licenses
			WHERE product_id = $1 AND status = 'available'
			ORDER BY created_at, id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, NULL::uuid`,
}

func (r *pgTx) ClaimAvailable(ctx context.Context, productID uuid.UUID, kind model.UnitKind) (*model.UnitHandle, error) {
	query, ok := claimQueries[kind]
	if !ok {
		return nil, ErrNotFound
	}

	h := model.UnitHandle{Kind: kind, ProductID: productID}
	var account uuid.NullUUID
	if err := r.tx.QueryRow(ctx, query, productID).Scan(&h.UnitID, &account); err != nil {
		return nil, notFound(err)
	}
	h.AccountID = nullToPtr(account)
	return &h, nil
}

func (r *pgTx) ReleaseAssigned(ctx context.Context, h model.UnitHandle) error {
	table, ok := unitTables[h.Kind]
	if !ok {
		return ErrNotFound
	}

	query := `UPDATE ` + table + ` SET status = 'available', updated_at = NOW() WHERE id = $1 AND status = 'assigned'`
	tag, err := r.tx.Exec(ctx, query, h.UnitID)
	if err != nil {
		return fmt.Errorf("release %s: %w", h.Kind, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgTx) RevokeLicense(ctx context.Context, id uuid.UUID) error {
	tag, err := r.tx.Exec(ctx,
		`UPDATE inventory_licenses SET status = 'revoked', updated_at = NOW() WHERE id = $1 AND status <> 'revoked'`, id)
	if err != nil {
		return fmt.Errorf("revoke license: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgTx) DisableAccount(ctx context.Context, id uuid.UUID) error {
	tag, err := r.tx.Exec(ctx,
		`UPDATE inventory_accounts SET status = 'disabled', updated_at = NOW() WHERE id = $1 AND status = 'available'`, id)
	if err != nil {
		return fmt.Errorf("disable account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgTx) CountAvailable(ctx context.Context, productID uuid.UUID) (map[model.UnitKind]int, error) {
	query := `
		SELECT 'account', COUNT(*) FROM inventory_accounts
			WHERE product_id = $1 AND status = 'available' AND total_slots = 1
		UNION ALL
		SELECT 'slot', COUNT(*) FROM inventory_slots s
			JOIN inventory_accounts a ON a.id = s.account_id
			WHERE s.product_id = $1 AND s.status = 'available' AND a.status <> 'disabled'
		UNION ALL
		SELECT 'license', COUNT(*) FROM inventory_licenses
			WHERE product_id = $1 AND status = 'available'`

	rows, err := r.tx.Query(ctx, query, productID)
	if err != nil {
		return nil, fmt.Errorf("count available: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.UnitKind]int, len(model.UnitKinds))
	for rows.Next() {
		var (
			kind model.UnitKind
			n    int
		)
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("count available: %w", err)
		}
		counts[kind] = n
	}
	return counts, rows.Err()
}

var unitTables = map[model.UnitKind]string{
	model.UnitAccount: "inventory_accounts",
	model.UnitSlot:    "inventory_slots",
	model.UnitLicense: "inventory_licenses",
}
