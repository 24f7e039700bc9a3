package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-books/internal/platform/db"
)

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	GetItemForUpdate(ctx context.Context, orgID, itemID uuid.UUID) (Item, error)
	ListOpenBatchesForUpdate(ctx context.Context, orgID, itemID, warehouseID uuid.UUID) ([]Batch, error)
	SumRemaining(ctx context.Context, orgID, itemID uuid.UUID) (decimal.Decimal, error)
	LatestPurchasePrice(ctx context.Context, orgID, itemID uuid.UUID) (decimal.Decimal, error)
	InsertBatch(ctx context.Context, batch Batch) error
	UpdateBatchRemaining(ctx context.Context, orgID, batchID uuid.UUID, remaining decimal.Decimal) error
	ApplyStockDelta(ctx context.Context, orgID, itemID uuid.UUID, delta decimal.Decimal) (decimal.Decimal, error)
	InsertTransaction(ctx context.Context, tx StockTransaction) error
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx runs fn in a read-committed transaction. Row locks taken with
// FOR UPDATE serialize movements of the same item.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, pgx.ReadCommitted, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const itemColumns = `id, org_id, name, COALESCE(sku, ''), COALESCE(unit, ''), stock_quantity, low_stock_threshold, default_warehouse_id`

func scanItem(row pgx.Row) (Item, error) {
	var (
		item      Item
		warehouse pgtype.UUID
	)
	if err := row.Scan(&item.ID, &item.OrgID, &item.Name, &item.SKU, &item.Unit,
		&item.StockQuantity, &item.LowStockThreshold, &warehouse); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrItemNotFound
		}
		return Item{}, err
	}
	if warehouse.Valid {
		item.DefaultWarehouseID = uuid.UUID(warehouse.Bytes)
	}
	return item, nil
}

// GetItem loads an item without locking it.
func (r *Repository) GetItem(ctx context.Context, orgID, itemID uuid.UUID) (Item, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE org_id=$1 AND id=$2`, orgID, itemID)
	return scanItem(row)
}

func (t *txRepository) GetItemForUpdate(ctx context.Context, orgID, itemID uuid.UUID) (Item, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE org_id=$1 AND id=$2 FOR UPDATE`, orgID, itemID)
	return scanItem(row)
}

const batchSelect = `SELECT id, org_id, item_id, warehouse_id, batch_number, purchase_price,
	quantity_received, quantity_remaining, purchase_date, COALESCE(reference_id, ''), COALESCE(reference_type, ''), created_at
FROM inventory_batches
WHERE org_id=$1 AND item_id=$2 AND quantity_remaining > 0 AND ($3::uuid IS NULL OR warehouse_id=$3)
ORDER BY purchase_date, created_at, id`

func scanBatches(rows pgx.Rows) ([]Batch, error) {
	defer rows.Close()
	var batches []Batch
	for rows.Next() {
		var b Batch
		if err := rows.Scan(&b.ID, &b.OrgID, &b.ItemID, &b.WarehouseID, &b.BatchNumber, &b.PurchasePrice,
			&b.QuantityReceived, &b.QuantityRemaining, &b.PurchaseDate, &b.ReferenceID, &b.ReferenceType, &b.CreatedAt); err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

// ListOpenBatches returns lots with stock left, oldest first. A nil
// warehouseID spans every warehouse.
func (r *Repository) ListOpenBatches(ctx context.Context, orgID, itemID, warehouseID uuid.UUID) ([]Batch, error) {
	rows, err := r.pool.Query(ctx, batchSelect, orgID, itemID, nullUUID(warehouseID))
	if err != nil {
		return nil, err
	}
	return scanBatches(rows)
}

func (t *txRepository) ListOpenBatchesForUpdate(ctx context.Context, orgID, itemID, warehouseID uuid.UUID) ([]Batch, error) {
	rows, err := t.tx.Query(ctx, batchSelect+` FOR UPDATE`, orgID, itemID, nullUUID(warehouseID))
	if err != nil {
		return nil, err
	}
	return scanBatches(rows)
}

func (t *txRepository) SumRemaining(ctx context.Context, orgID, itemID uuid.UUID) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := t.tx.QueryRow(ctx, `SELECT COALESCE(SUM(quantity_remaining), 0) FROM inventory_batches
WHERE org_id=$1 AND item_id=$2`, orgID, itemID).Scan(&total)
	return total, err
}

func (t *txRepository) LatestPurchasePrice(ctx context.Context, orgID, itemID uuid.UUID) (decimal.Decimal, error) {
	var price decimal.Decimal
	err := t.tx.QueryRow(ctx, `SELECT purchase_price FROM inventory_batches
WHERE org_id=$1 AND item_id=$2
ORDER BY purchase_date DESC, created_at DESC, id DESC
LIMIT 1`, orgID, itemID).Scan(&price)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, nil
	}
	return price, err
}

func (t *txRepository) InsertBatch(ctx context.Context, b Batch) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO inventory_batches
(id, org_id, item_id, warehouse_id, batch_number, purchase_price, quantity_received, quantity_remaining,
 purchase_date, reference_id, reference_type, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NULLIF($10,''),NULLIF($11,''),$12)`,
		b.ID, b.OrgID, b.ItemID, b.WarehouseID, b.BatchNumber, b.PurchasePrice, b.QuantityReceived,
		b.QuantityRemaining, b.PurchaseDate, b.ReferenceID, b.ReferenceType, b.CreatedAt)
	return err
}

func (t *txRepository) UpdateBatchRemaining(ctx context.Context, orgID, batchID uuid.UUID, remaining decimal.Decimal) error {
	tag, err := t.tx.Exec(ctx, `UPDATE inventory_batches SET quantity_remaining=$3
WHERE org_id=$1 AND id=$2 AND quantity_received >= $3`, orgID, batchID, remaining)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInconsistentLedger
	}
	return nil
}

// ApplyStockDelta moves the cached quantity and refuses to go below zero.
func (t *txRepository) ApplyStockDelta(ctx context.Context, orgID, itemID uuid.UUID, delta decimal.Decimal) (decimal.Decimal, error) {
	var qty decimal.Decimal
	err := t.tx.QueryRow(ctx, `UPDATE items SET stock_quantity = stock_quantity + $3, updated_at = NOW()
WHERE org_id=$1 AND id=$2 AND stock_quantity + $3 >= 0
RETURNING stock_quantity`, orgID, itemID, delta).Scan(&qty)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, ErrInsufficientStock
	}
	return qty, err
}

func (t *txRepository) InsertTransaction(ctx context.Context, st StockTransaction) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO stock_transactions
(id, org_id, item_id, warehouse_id, transaction_type, quantity, reference_id, reference_type, notes, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,NULLIF($7,''),NULLIF($8,''),NULLIF($9,''),$10,$11)`,
		st.ID, st.OrgID, st.ItemID, st.WarehouseID, string(st.Type), st.Quantity,
		st.ReferenceID, st.ReferenceType, st.Notes, nullUUID(st.CreatedBy), st.CreatedAt)
	return err
}

// ListTransactions returns ledger rows of one item, newest first.
func (r *Repository) ListTransactions(ctx context.Context, filter TransactionFilter) ([]StockTransaction, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, org_id, item_id, warehouse_id, transaction_type, quantity,
	COALESCE(reference_id, ''), COALESCE(reference_type, ''), COALESCE(notes, ''), created_by, created_at
FROM stock_transactions
WHERE org_id=$1 AND item_id=$2 AND ($3::uuid IS NULL OR warehouse_id=$3)
ORDER BY created_at DESC, id DESC
LIMIT $4`, filter.OrgID, filter.ItemID, nullUUID(filter.WarehouseID), filter.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StockTransaction
	for rows.Next() {
		var (
			st        StockTransaction
			txType    string
			createdBy pgtype.UUID
		)
		if err := rows.Scan(&st.ID, &st.OrgID, &st.ItemID, &st.WarehouseID, &txType, &st.Quantity,
			&st.ReferenceID, &st.ReferenceType, &st.Notes, &createdBy, &st.CreatedAt); err != nil {
			return nil, err
		}
		st.Type = TransactionType(txType)
		if createdBy.Valid {
			st.CreatedBy = uuid.UUID(createdBy.Bytes)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// ListLedgerDrift compares cached quantities with lot sums across tenants.
func (r *Repository) ListLedgerDrift(ctx context.Context) ([]LedgerDrift, error) {
	rows, err := r.pool.Query(ctx, `SELECT i.org_id, i.id, i.name, i.stock_quantity, COALESCE(b.total, 0)
FROM items i
LEFT JOIN (
	SELECT org_id, item_id, SUM(quantity_remaining) AS total
	FROM inventory_batches
	GROUP BY org_id, item_id
) b ON b.org_id = i.org_id AND b.item_id = i.id
WHERE i.stock_quantity <> COALESCE(b.total, 0)
ORDER BY i.org_id, i.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LedgerDrift
	for rows.Next() {
		var d LedgerDrift
		if err := rows.Scan(&d.OrgID, &d.ItemID, &d.ItemName, &d.StockQuantity, &d.BatchQuantity); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

const alertColumns = `id, org_id, item_id, alert_type, current_quantity, threshold, is_resolved, resolved_at, created_at`

func scanAlert(row pgx.Row) (StockAlert, error) {
	var (
		a         StockAlert
		alertType string
	)
	if err := row.Scan(&a.ID, &a.OrgID, &a.ItemID, &alertType, &a.CurrentQuantity, &a.Threshold,
		&a.IsResolved, &a.ResolvedAt, &a.CreatedAt); err != nil {
		return StockAlert{}, err
	}
	a.AlertType = AlertType(alertType)
	return a, nil
}

// ListAlerts lists alerts for an organization.
func (r *Repository) ListAlerts(ctx context.Context, filter AlertFilter) ([]StockAlert, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+alertColumns+` FROM stock_alerts
WHERE org_id=$1 AND ($2::uuid IS NULL OR item_id=$2) AND (NOT $3::boolean OR NOT is_resolved)
ORDER BY created_at DESC, id DESC
LIMIT $4`, filter.OrgID, nullUUID(filter.ItemID), filter.OpenOnly, filter.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StockAlert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// FindOpenAlert returns the unresolved alert of an item, if any.
func (r *Repository) FindOpenAlert(ctx context.Context, orgID, itemID uuid.UUID) (StockAlert, bool, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+alertColumns+` FROM stock_alerts
WHERE org_id=$1 AND item_id=$2 AND NOT is_resolved`, orgID, itemID)
	a, err := scanAlert(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return StockAlert{}, false, nil
	}
	if err != nil {
		return StockAlert{}, false, err
	}
	return a, true, nil
}

// InsertAlert relies on the partial unique index over unresolved alerts so
// concurrent evaluations open at most one. The row is only written while the
// item's committed stock is still at or below its threshold; FOR SHARE waits
// out an in-flight movement on the item and rechecks against its result.
func (r *Repository) InsertAlert(ctx context.Context, a StockAlert) (bool, error) {
	tag, err := r.pool.Exec(ctx, `INSERT INTO stock_alerts
(id, org_id, item_id, alert_type, current_quantity, threshold, is_resolved, created_at)
SELECT $1::uuid, i.org_id, i.id, $4::text, $5::numeric, $6::numeric, FALSE, $7::timestamptz
FROM items i
WHERE i.org_id=$2 AND i.id=$3 AND i.stock_quantity <= i.low_stock_threshold
FOR SHARE
ON CONFLICT (org_id, item_id) WHERE NOT is_resolved DO NOTHING`,
		a.ID, a.OrgID, a.ItemID, string(a.AlertType), a.CurrentQuantity, a.Threshold, a.CreatedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ResolveOpenAlerts closes every unresolved alert of the item provided its
// committed stock is above threshold.
func (r *Repository) ResolveOpenAlerts(ctx context.Context, orgID, itemID uuid.UUID, at time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE stock_alerts a SET is_resolved=TRUE, resolved_at=$3
FROM items i
WHERE a.org_id=$1 AND a.item_id=$2 AND NOT a.is_resolved
  AND i.org_id=a.org_id AND i.id=a.item_id AND i.stock_quantity > i.low_stock_threshold`, orgID, itemID, at)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func nullUUID(id uuid.UUID) any {
	if id == uuid.Nil {
		return nil
	}
	return id
}
