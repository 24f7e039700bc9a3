package inventory

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-books/internal/shared"
)

type memoryRepo struct {
	mu           sync.Mutex
	items        map[uuid.UUID]Item
	batches      []Batch
	transactions []StockTransaction
	alerts       []StockAlert
	failInsertTx error
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{items: make(map[uuid.UUID]Item)}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	items := make(map[uuid.UUID]Item, len(r.items))
	for k, v := range r.items {
		items[k] = v
	}
	batches := append([]Batch(nil), r.batches...)
	txs := append([]StockTransaction(nil), r.transactions...)
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.items, r.batches, r.transactions = items, batches, txs
		return err
	}
	return nil
}

func (r *memoryRepo) GetItem(ctx context.Context, orgID, itemID uuid.UUID) (Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[itemID]
	if !ok || item.OrgID != orgID {
		return Item{}, ErrItemNotFound
	}
	return item, nil
}

func (r *memoryRepo) openBatches(orgID, itemID, warehouseID uuid.UUID) []Batch {
	var out []Batch
	for _, b := range r.batches {
		if b.OrgID != orgID || b.ItemID != itemID || b.Exhausted() {
			continue
		}
		if warehouseID != uuid.Nil && b.WarehouseID != warehouseID {
			continue
		}
		out = append(out, b)
	}
	return out
}

func (r *memoryRepo) ListOpenBatches(ctx context.Context, orgID, itemID, warehouseID uuid.UUID) ([]Batch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.openBatches(orgID, itemID, warehouseID), nil
}

func (r *memoryRepo) ListTransactions(ctx context.Context, filter TransactionFilter) ([]StockTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []StockTransaction
	for i := len(r.transactions) - 1; i >= 0; i-- {
		st := r.transactions[i]
		if st.OrgID == filter.OrgID && st.ItemID == filter.ItemID {
			out = append(out, st)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListAlerts(ctx context.Context, filter AlertFilter) ([]StockAlert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []StockAlert
	for _, a := range r.alerts {
		if a.OrgID != filter.OrgID || (filter.OpenOnly && a.IsResolved) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (r *memoryRepo) ListLedgerDrift(ctx context.Context) ([]LedgerDrift, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []LedgerDrift
	for _, item := range r.items {
		total := decimal.Zero
		for _, b := range r.batches {
			if b.ItemID == item.ID {
				total = total.Add(b.QuantityRemaining)
			}
		}
		if !total.Equal(item.StockQuantity) {
			out = append(out, LedgerDrift{OrgID: item.OrgID, ItemID: item.ID, ItemName: item.Name, StockQuantity: item.StockQuantity, BatchQuantity: total})
		}
	}
	return out, nil
}

func (r *memoryRepo) FindOpenAlert(ctx context.Context, orgID, itemID uuid.UUID) (StockAlert, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.alerts {
		if a.OrgID == orgID && a.ItemID == itemID && !a.IsResolved {
			return a, true, nil
		}
	}
	return StockAlert{}, false, nil
}

func (r *memoryRepo) InsertAlert(ctx context.Context, alert StockAlert) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[alert.ItemID]
	if !ok || item.OrgID != alert.OrgID || item.StockQuantity.GreaterThan(item.LowStockThreshold) {
		return false, nil
	}
	for _, a := range r.alerts {
		if a.OrgID == alert.OrgID && a.ItemID == alert.ItemID && !a.IsResolved {
			return false, nil
		}
	}
	r.alerts = append(r.alerts, alert)
	return true, nil
}

func (r *memoryRepo) ResolveOpenAlerts(ctx context.Context, orgID, itemID uuid.UUID, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if item, ok := r.items[itemID]; !ok || !item.StockQuantity.GreaterThan(item.LowStockThreshold) {
		return 0, nil
	}
	var n int64
	for i := range r.alerts {
		a := &r.alerts[i]
		if a.OrgID == orgID && a.ItemID == itemID && !a.IsResolved {
			resolvedAt := at
			a.IsResolved = true
			a.ResolvedAt = &resolvedAt
			n++
		}
	}
	return n, nil
}

func (tx *memoryTx) GetItemForUpdate(ctx context.Context, orgID, itemID uuid.UUID) (Item, error) {
	item, ok := tx.repo.items[itemID]
	if !ok || item.OrgID != orgID {
		return Item{}, ErrItemNotFound
	}
	return item, nil
}

func (tx *memoryTx) ListOpenBatchesForUpdate(ctx context.Context, orgID, itemID, warehouseID uuid.UUID) ([]Batch, error) {
	return tx.repo.openBatches(orgID, itemID, warehouseID), nil
}

func (tx *memoryTx) SumRemaining(ctx context.Context, orgID, itemID uuid.UUID) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, b := range tx.repo.batches {
		if b.OrgID == orgID && b.ItemID == itemID {
			total = total.Add(b.QuantityRemaining)
		}
	}
	return total, nil
}

func (tx *memoryTx) LatestPurchasePrice(ctx context.Context, orgID, itemID uuid.UUID) (decimal.Decimal, error) {
	var latest *Batch
	for i := range tx.repo.batches {
		b := &tx.repo.batches[i]
		if b.OrgID != orgID || b.ItemID != itemID {
			continue
		}
		if latest == nil || !b.PurchaseDate.Before(latest.PurchaseDate) {
			latest = b
		}
	}
	if latest == nil {
		return decimal.Zero, nil
	}
	return latest.PurchasePrice, nil
}

func (tx *memoryTx) InsertBatch(ctx context.Context, batch Batch) error {
	tx.repo.batches = append(tx.repo.batches, batch)
	return nil
}

func (tx *memoryTx) UpdateBatchRemaining(ctx context.Context, orgID, batchID uuid.UUID, remaining decimal.Decimal) error {
	for i := range tx.repo.batches {
		if tx.repo.batches[i].ID == batchID && tx.repo.batches[i].OrgID == orgID {
			tx.repo.batches[i].QuantityRemaining = remaining
			return nil
		}
	}
	return ErrInconsistentLedger
}

func (tx *memoryTx) ApplyStockDelta(ctx context.Context, orgID, itemID uuid.UUID, delta decimal.Decimal) (decimal.Decimal, error) {
	item := tx.repo.items[itemID]
	next := item.StockQuantity.Add(delta)
	if next.IsNegative() {
		return decimal.Zero, ErrInsufficientStock
	}
	item.StockQuantity = next
	tx.repo.items[itemID] = item
	return next, nil
}

func (tx *memoryTx) InsertTransaction(ctx context.Context, st StockTransaction) error {
	if tx.repo.failInsertTx != nil {
		return tx.repo.failInsertTx
	}
	// mirrors CHECK (quantity <> 0) on stock_transactions
	if st.Quantity.IsZero() {
		return errors.New("stock_transactions: quantity must be non-zero")
	}
	tx.repo.transactions = append(tx.repo.transactions, st)
	return nil
}

type memoryIdempotency struct {
	keys map[string]bool
}

func (m *memoryIdempotency) CheckAndInsert(ctx context.Context, key, module string) error {
	if m.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = true
	return nil
}

func (m *memoryIdempotency) Delete(ctx context.Context, key string) error {
	delete(m.keys, key)
	return nil
}

type fixture struct {
	repo      *memoryRepo
	svc       *Service
	notifier  *recordingNotifier
	orgID     uuid.UUID
	item      Item
	warehouse uuid.UUID
}

func newFixture(t *testing.T, threshold int64) *fixture {
	t.Helper()
	repo := newMemoryRepo()
	notifier := &recordingNotifier{}
	orgID := uuid.New()
	item := Item{
		ID:                uuid.New(),
		OrgID:             orgID,
		Name:              "Basmati Rice 5kg",
		SKU:               "RICE-5",
		StockQuantity:     decimal.Zero,
		LowStockThreshold: decimal.NewFromInt(threshold),
	}
	repo.items[item.ID] = item
	now := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		now = now.Add(time.Second)
		return now
	}
	alerts := NewAlertManager(repo, notifier, nil, nil)
	svc := NewService(repo, alerts, nil, ServiceConfig{Clock: clock})
	return &fixture{repo: repo, svc: svc, notifier: notifier, orgID: orgID, item: item, warehouse: uuid.New()}
}

func (f *fixture) add(t *testing.T, qty, price int64, purchased time.Time) Batch {
	t.Helper()
	batch, err := f.svc.AddStock(context.Background(), AddStockInput{
		OrgID:         f.orgID,
		ItemID:        f.item.ID,
		WarehouseID:   f.warehouse,
		Quantity:      decimal.NewFromInt(qty),
		PurchasePrice: decimal.NewFromInt(price),
		PurchaseDate:  purchased,
	})
	require.NoError(t, err)
	return batch
}

func (f *fixture) deduct(qty int64) (DeductResult, error) {
	return f.svc.DeductStock(context.Background(), DeductStockInput{
		OrgID:       f.orgID,
		ItemID:      f.item.ID,
		WarehouseID: f.warehouse,
		Quantity:    decimal.NewFromInt(qty),
		ReferenceID: "INV-24-25-00001",
	})
}

func (f *fixture) stock() decimal.Decimal {
	return f.repo.items[f.item.ID].StockQuantity
}

func (f *fixture) requireConsistent(t *testing.T) {
	t.Helper()
	batches := decimal.Zero
	for _, b := range f.repo.batches {
		require.False(t, b.QuantityRemaining.IsNegative())
		batches = batches.Add(b.QuantityRemaining)
	}
	ledger := decimal.Zero
	for _, st := range f.repo.transactions {
		ledger = ledger.Add(st.Quantity)
	}
	requireDecimal(t, f.stock().String(), batches)
	requireDecimal(t, f.stock().String(), ledger)
}

func requireDecimal(t *testing.T, expected string, actual decimal.Decimal) {
	t.Helper()
	want, err := decimal.NewFromString(expected)
	require.NoError(t, err)
	require.Truef(t, want.Equal(actual), "expected %s, got %s", want, actual)
}

var (
	jan1 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	feb1 = time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
)

func TestAddStockCreatesBatchAndLedgerRow(t *testing.T) {
	f := newFixture(t, 0)
	batch := f.add(t, 10, 50, jan1)

	require.Regexp(t, regexp.MustCompile(`^B-\d{14}-[0-9a-f]{6}$`), batch.BatchNumber)
	requireDecimal(t, "10", batch.QuantityReceived)
	requireDecimal(t, "10", batch.QuantityRemaining)
	requireDecimal(t, "10", f.stock())
	require.Len(t, f.repo.transactions, 1)
	require.Equal(t, TransactionTypePurchase, f.repo.transactions[0].Type)
	requireDecimal(t, "10", f.repo.transactions[0].Quantity)
	f.requireConsistent(t)
}

func TestAddStockDefaultsPurchaseDateToNow(t *testing.T) {
	f := newFixture(t, 0)
	batch := f.add(t, 1, 5, time.Time{})
	require.False(t, batch.PurchaseDate.IsZero())
	require.Equal(t, batch.CreatedAt, batch.PurchaseDate)
}

func TestDeductStockConsumesOldestBatchesFirst(t *testing.T) {
	f := newFixture(t, 0)
	// received out of order to prove ordering is by purchase date
	late := f.add(t, 5, 20, feb1)
	early := f.add(t, 5, 10, jan1)

	res, err := f.deduct(7)
	require.NoError(t, err)
	require.Len(t, res.Consumptions, 2)
	require.Equal(t, early.ID, res.Consumptions[0].Batch.ID)
	requireDecimal(t, "5", res.Consumptions[0].Quantity)
	requireDecimal(t, "0", res.Consumptions[0].Batch.QuantityRemaining)
	require.Equal(t, late.ID, res.Consumptions[1].Batch.ID)
	requireDecimal(t, "2", res.Consumptions[1].Quantity)
	requireDecimal(t, "3", res.Consumptions[1].Batch.QuantityRemaining)
	requireDecimal(t, "90", res.CostOfGoods)
	requireDecimal(t, "3", res.StockAfter)
	requireDecimal(t, "3", f.stock())

	last := f.repo.transactions[len(f.repo.transactions)-1]
	require.Equal(t, TransactionTypeSale, last.Type)
	requireDecimal(t, "-7", last.Quantity)
	require.Equal(t, "INV-24-25-00001", last.ReferenceID)
	f.requireConsistent(t)
}

func TestDeductStockInsufficientLeavesStateUntouched(t *testing.T) {
	f := newFixture(t, 0)
	f.add(t, 10, 10, jan1)
	before := append([]Batch(nil), f.repo.batches...)

	_, err := f.deduct(100)
	require.ErrorIs(t, err, ErrInsufficientStock)
	var short *InsufficientStockError
	require.True(t, errors.As(err, &short))
	requireDecimal(t, "10", short.Available)
	requireDecimal(t, "100", short.Required)
	require.Equal(t, uuid.Nil, short.WarehouseID)
	require.Contains(t, err.Error(), "Basmati Rice 5kg")

	require.Equal(t, before, f.repo.batches)
	requireDecimal(t, "10", f.stock())
	require.Len(t, f.repo.transactions, 1)
}

func TestDeductStockWarehouseShortfallRollsBack(t *testing.T) {
	f := newFixture(t, 0)
	f.add(t, 5, 10, jan1)
	other := uuid.New()
	_, err := f.svc.AddStock(context.Background(), AddStockInput{
		OrgID: f.orgID, ItemID: f.item.ID, WarehouseID: other,
		Quantity: decimal.NewFromInt(5), PurchasePrice: decimal.NewFromInt(10), PurchaseDate: jan1,
	})
	require.NoError(t, err)

	_, err = f.deduct(8)
	var short *InsufficientStockError
	require.True(t, errors.As(err, &short))
	require.Equal(t, f.warehouse, short.WarehouseID)
	requireDecimal(t, "5", short.Available)
	requireDecimal(t, "8", short.Required)

	requireDecimal(t, "10", f.stock())
	for _, b := range f.repo.batches {
		requireDecimal(t, "5", b.QuantityRemaining)
	}
	f.requireConsistent(t)
}

func TestDeductStockReportsLedgerDrift(t *testing.T) {
	f := newFixture(t, 0)
	f.add(t, 5, 10, jan1)
	item := f.repo.items[f.item.ID]
	item.StockQuantity = decimal.NewFromInt(9)
	f.repo.items[f.item.ID] = item

	_, err := f.deduct(7)
	require.ErrorIs(t, err, ErrInconsistentLedger)
	require.NotErrorIs(t, err, ErrInsufficientStock)
	requireDecimal(t, "9", f.stock())
	requireDecimal(t, "5", f.repo.batches[0].QuantityRemaining)

	drift, err := f.svc.CheckLedgerIntegrity(context.Background())
	require.NoError(t, err)
	require.Len(t, drift, 1)
	requireDecimal(t, "5", drift[0].BatchQuantity)
}

func TestDeductStockRollsBackWhenLedgerAppendFails(t *testing.T) {
	f := newFixture(t, 0)
	f.add(t, 5, 10, jan1)
	f.repo.failInsertTx = errors.New("disk full")

	_, err := f.deduct(2)
	require.EqualError(t, err, "disk full")
	requireDecimal(t, "5", f.stock())
	requireDecimal(t, "5", f.repo.batches[0].QuantityRemaining)
}

func TestStockNeverNegativeAcrossSequence(t *testing.T) {
	f := newFixture(t, 0)
	steps := []struct {
		add bool
		qty int64
	}{
		{true, 4}, {false, 3}, {false, 2}, {true, 6}, {false, 7}, {false, 1}, {true, 2}, {false, 3},
	}
	for i, step := range steps {
		if step.add {
			f.add(t, step.qty, 10+int64(i), jan1.AddDate(0, 0, i))
		} else {
			before := f.stock()
			_, err := f.deduct(step.qty)
			if before.LessThan(decimal.NewFromInt(step.qty)) {
				require.ErrorIs(t, err, ErrInsufficientStock)
				requireDecimal(t, before.String(), f.stock())
			} else {
				require.NoError(t, err)
			}
		}
		require.False(t, f.stock().IsNegative())
		f.requireConsistent(t)
	}
}

func TestStockValidation(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	cases := []struct {
		name string
		run  func() error
		want error
	}{
		{"zero add", func() error {
			_, err := f.svc.AddStock(ctx, AddStockInput{OrgID: f.orgID, ItemID: f.item.ID, WarehouseID: f.warehouse})
			return err
		}, ErrInvalidQuantity},
		{"negative price", func() error {
			_, err := f.svc.AddStock(ctx, AddStockInput{OrgID: f.orgID, ItemID: f.item.ID, WarehouseID: f.warehouse,
				Quantity: decimal.NewFromInt(1), PurchasePrice: decimal.NewFromInt(-1)})
			return err
		}, ErrInvalidUnitCost},
		{"missing warehouse", func() error {
			_, err := f.svc.DeductStock(ctx, DeductStockInput{OrgID: f.orgID, ItemID: f.item.ID, Quantity: decimal.NewFromInt(1)})
			return err
		}, ErrMissingIdentifiers},
		{"sale on add", func() error {
			_, err := f.svc.AddStock(ctx, AddStockInput{OrgID: f.orgID, ItemID: f.item.ID, WarehouseID: f.warehouse,
				Quantity: decimal.NewFromInt(1), Type: TransactionTypeSale})
			return err
		}, ErrInvalidTransactionType},
		{"negative deduct", func() error {
			_, err := f.svc.DeductStock(ctx, DeductStockInput{OrgID: f.orgID, ItemID: f.item.ID, WarehouseID: f.warehouse,
				Quantity: decimal.NewFromInt(-2)})
			return err
		}, ErrInvalidQuantity},
		{"unknown item", func() error {
			_, err := f.svc.AddStock(ctx, AddStockInput{OrgID: f.orgID, ItemID: uuid.New(), WarehouseID: f.warehouse,
				Quantity: decimal.NewFromInt(1)})
			return err
		}, ErrItemNotFound},
		{"other tenant", func() error {
			_, err := f.svc.AddStock(ctx, AddStockInput{OrgID: uuid.New(), ItemID: f.item.ID, WarehouseID: f.warehouse,
				Quantity: decimal.NewFromInt(1)})
			return err
		}, ErrItemNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.ErrorIs(t, tc.run(), tc.want)
		})
	}
	require.Empty(t, f.repo.transactions)
	require.Empty(t, f.repo.batches)
}

func TestAdjustStockIncreaseReusesLatestPrice(t *testing.T) {
	f := newFixture(t, 0)
	f.add(t, 10, 30, jan1)
	f.add(t, 10, 40, feb1)
	userID := uuid.New()

	res, err := f.svc.AdjustStock(context.Background(), AdjustStockInput{
		OrgID: f.orgID, ItemID: f.item.ID, WarehouseID: f.warehouse,
		Quantity: decimal.NewFromInt(5), Type: TransactionTypeAdjustmentIncrease,
		Reason: "  found during cycle count ", UserID: userID,
	})
	require.NoError(t, err)
	require.NotNil(t, res.Batch)
	require.Nil(t, res.Deduction)
	requireDecimal(t, "40", res.Batch.PurchasePrice)
	requireDecimal(t, "25", f.stock())

	require.Len(t, f.repo.transactions, 3)
	last := f.repo.transactions[2]
	require.Equal(t, TransactionTypeAdjustmentIncrease, last.Type)
	require.Equal(t, "found during cycle count", last.Notes)
	require.Equal(t, userID, last.CreatedBy)
	requireDecimal(t, "5", last.Quantity)
	f.requireConsistent(t)
}

func TestAdjustStockIncreaseWithoutHistoryCostsZero(t *testing.T) {
	f := newFixture(t, 0)
	res, err := f.svc.AdjustStock(context.Background(), AdjustStockInput{
		OrgID: f.orgID, ItemID: f.item.ID, WarehouseID: f.warehouse,
		Quantity: decimal.NewFromInt(2), Type: TransactionTypeReturn, Reason: "customer return",
	})
	require.NoError(t, err)
	requireDecimal(t, "0", res.Batch.PurchasePrice)

	res, err = f.svc.AdjustStock(context.Background(), AdjustStockInput{
		OrgID: f.orgID, ItemID: f.item.ID, WarehouseID: f.warehouse,
		Quantity: decimal.NewFromInt(1), Type: TransactionTypeReturn, Reason: "customer return",
		PurchasePrice: decimal.NewNullDecimal(decimal.RequireFromString("12.50")),
	})
	require.NoError(t, err)
	requireDecimal(t, "12.5", res.Batch.PurchasePrice)
}

func TestAdjustStockDecreaseWritesSingleRow(t *testing.T) {
	f := newFixture(t, 0)
	f.add(t, 4, 10, jan1)
	f.add(t, 4, 15, feb1)

	res, err := f.svc.AdjustStock(context.Background(), AdjustStockInput{
		OrgID: f.orgID, ItemID: f.item.ID, WarehouseID: f.warehouse,
		Quantity: decimal.NewFromInt(5), Type: TransactionTypeDamage, Reason: "water damage",
	})
	require.NoError(t, err)
	require.NotNil(t, res.Deduction)
	requireDecimal(t, "55", res.Deduction.CostOfGoods)
	requireDecimal(t, "3", f.stock())

	require.Len(t, f.repo.transactions, 3)
	last := f.repo.transactions[2]
	require.Equal(t, TransactionTypeDamage, last.Type)
	require.Equal(t, "water damage", last.Notes)
	require.Equal(t, "adjustment", last.ReferenceType)
	requireDecimal(t, "-5", last.Quantity)
	f.requireConsistent(t)
}

func TestAdjustStockValidation(t *testing.T) {
	f := newFixture(t, 0)
	base := AdjustStockInput{OrgID: f.orgID, ItemID: f.item.ID, WarehouseID: f.warehouse, Quantity: decimal.NewFromInt(1)}

	in := base
	in.Type = TransactionTypeSale
	in.Reason = "x"
	_, err := f.svc.AdjustStock(context.Background(), in)
	require.ErrorIs(t, err, ErrInvalidAdjustmentType)

	in = base
	in.Type = TransactionTypeExpired
	in.Reason = "   "
	_, err = f.svc.AdjustStock(context.Background(), in)
	require.ErrorIs(t, err, ErrReasonRequired)

	in = base
	in.Type = TransactionTypeExpired
	in.Reason = "past shelf life"
	_, err = f.svc.AdjustStock(context.Background(), in)
	require.ErrorIs(t, err, ErrInsufficientStock)
}

func TestIdempotencyKeyRejectsReplay(t *testing.T) {
	f := newFixture(t, 0)
	idem := &memoryIdempotency{keys: map[string]bool{}}
	f.svc.idempotency = idem
	f.add(t, 10, 10, jan1)

	in := DeductStockInput{OrgID: f.orgID, ItemID: f.item.ID, WarehouseID: f.warehouse,
		Quantity: decimal.NewFromInt(2), IdempotencyKey: "req-1"}
	_, err := f.svc.DeductStock(context.Background(), in)
	require.NoError(t, err)
	_, err = f.svc.DeductStock(context.Background(), in)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	requireDecimal(t, "8", f.stock())

	in.IdempotencyKey = "req-2"
	in.Quantity = decimal.NewFromInt(50)
	_, err = f.svc.DeductStock(context.Background(), in)
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.Len(t, idem.keys, 1, "failed request must release its key")
}

func TestListTransactionsNewestFirst(t *testing.T) {
	f := newFixture(t, 0)
	f.add(t, 3, 10, jan1)
	_, err := f.deduct(1)
	require.NoError(t, err)

	rows, err := f.svc.ListTransactions(context.Background(), TransactionFilter{OrgID: f.orgID, ItemID: f.item.ID})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, TransactionTypeSale, rows[0].Type)

	_, err = f.svc.ListTransactions(context.Background(), TransactionFilter{OrgID: f.orgID})
	require.ErrorIs(t, err, ErrMissingIdentifiers)
}
