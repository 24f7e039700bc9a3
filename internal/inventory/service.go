package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-books/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetItem(ctx context.Context, orgID, itemID uuid.UUID) (Item, error)
	ListOpenBatches(ctx context.Context, orgID, itemID, warehouseID uuid.UUID) ([]Batch, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]StockTransaction, error)
	ListAlerts(ctx context.Context, filter AlertFilter) ([]StockAlert, error)
	ListLedgerDrift(ctx context.Context) ([]LedgerDrift, error)
}

// IdempotencyPort guards against replayed requests.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Service coordinates inventory operations.
type Service struct {
	repo        RepositoryPort
	alerts      *AlertManager
	idempotency IdempotencyPort
	metrics     MetricsRecorder
	logger      *slog.Logger
	clock       func() time.Time
	valuations  singleflight.Group
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	Logger  *slog.Logger
	Metrics MetricsRecorder
	Clock   func() time.Time
}

// NewService builds Service. alerts and idem may be nil.
func NewService(repo RepositoryPort, alerts *AlertManager, idem IdempotencyPort, cfg ServiceConfig) *Service {
	svc := &Service{
		repo:        repo,
		alerts:      alerts,
		idempotency: idem,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
		clock:       cfg.Clock,
	}
	if svc.metrics == nil {
		svc.metrics = noopMetrics{}
	}
	if svc.logger == nil {
		svc.logger = slog.Default()
	}
	if svc.clock == nil {
		svc.clock = func() time.Time { return time.Now().UTC() }
	}
	return svc
}

// AddStock receives a new lot and raises the item's cached quantity.
func (s *Service) AddStock(ctx context.Context, input AddStockInput) (Batch, error) {
	if err := requireIdentifiers(input.OrgID, input.ItemID, input.WarehouseID); err != nil {
		return Batch{}, err
	}
	if !input.Quantity.IsPositive() {
		return Batch{}, ErrInvalidQuantity
	}
	if input.PurchasePrice.IsNegative() {
		return Batch{}, ErrInvalidUnitCost
	}
	txType := input.Type
	if txType == "" {
		txType = TransactionTypePurchase
	}
	if !txType.Receivable() {
		return Batch{}, ErrInvalidTransactionType
	}
	return s.receive(ctx, receiveParams{
		OrgID:          input.OrgID,
		ItemID:         input.ItemID,
		WarehouseID:    input.WarehouseID,
		Quantity:       input.Quantity,
		UnitCost:       decimal.NewNullDecimal(input.PurchasePrice),
		PurchaseDate:   input.PurchaseDate,
		TxType:         txType,
		Notes:          input.Notes,
		ReferenceID:    input.ReferenceID,
		ReferenceType:  input.ReferenceType,
		ActorID:        input.ActorID,
		IdempotencyKey: input.IdempotencyKey,
	})
}

// DeductStock consumes the oldest lots of a warehouse first.
func (s *Service) DeductStock(ctx context.Context, input DeductStockInput) (DeductResult, error) {
	if err := requireIdentifiers(input.OrgID, input.ItemID, input.WarehouseID); err != nil {
		return DeductResult{}, err
	}
	if !input.Quantity.IsPositive() {
		return DeductResult{}, ErrInvalidQuantity
	}
	txType := input.Type
	if txType == "" {
		txType = TransactionTypeSale
	}
	if !txType.Issuable() {
		return DeductResult{}, ErrInvalidTransactionType
	}
	return s.issue(ctx, issueParams{
		OrgID:          input.OrgID,
		ItemID:         input.ItemID,
		WarehouseID:    input.WarehouseID,
		Quantity:       input.Quantity,
		TxType:         txType,
		Notes:          input.Notes,
		ReferenceID:    input.ReferenceID,
		ReferenceType:  input.ReferenceType,
		ActorID:        input.ActorID,
		IdempotencyKey: input.IdempotencyKey,
	})
}

// AdjustStock routes an adjustment to a receive or a FIFO issue depending on
// its type. A single ledger row records the sub-type and reason.
func (s *Service) AdjustStock(ctx context.Context, input AdjustStockInput) (AdjustResult, error) {
	if err := requireIdentifiers(input.OrgID, input.ItemID, input.WarehouseID); err != nil {
		return AdjustResult{}, err
	}
	if !input.Quantity.IsPositive() {
		return AdjustResult{}, ErrInvalidQuantity
	}
	if !input.Type.IsAdjustment() {
		return AdjustResult{}, ErrInvalidAdjustmentType
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return AdjustResult{}, ErrReasonRequired
	}
	if input.PurchasePrice.Valid && input.PurchasePrice.Decimal.IsNegative() {
		return AdjustResult{}, ErrInvalidUnitCost
	}

	if input.Type.Increases() {
		batch, err := s.receive(ctx, receiveParams{
			OrgID:          input.OrgID,
			ItemID:         input.ItemID,
			WarehouseID:    input.WarehouseID,
			Quantity:       input.Quantity,
			UnitCost:       input.PurchasePrice,
			TxType:         input.Type,
			Notes:          reason,
			ReferenceType:  "adjustment",
			ActorID:        input.UserID,
			IdempotencyKey: input.IdempotencyKey,
		})
		if err != nil {
			return AdjustResult{}, err
		}
		return AdjustResult{Type: input.Type, Batch: &batch}, nil
	}

	res, err := s.issue(ctx, issueParams{
		OrgID:          input.OrgID,
		ItemID:         input.ItemID,
		WarehouseID:    input.WarehouseID,
		Quantity:       input.Quantity,
		TxType:         input.Type,
		Notes:          reason,
		ReferenceType:  "adjustment",
		ActorID:        input.UserID,
		IdempotencyKey: input.IdempotencyKey,
	})
	if err != nil {
		return AdjustResult{}, err
	}
	return AdjustResult{Type: input.Type, Deduction: &res}, nil
}

// GetItem loads one item of the organization.
func (s *Service) GetItem(ctx context.Context, orgID, itemID uuid.UUID) (Item, error) {
	if orgID == uuid.Nil || itemID == uuid.Nil {
		return Item{}, ErrMissingIdentifiers
	}
	return s.repo.GetItem(ctx, orgID, itemID)
}

// ListTransactions returns ledger rows newest first.
func (s *Service) ListTransactions(ctx context.Context, filter TransactionFilter) ([]StockTransaction, error) {
	if filter.OrgID == uuid.Nil || filter.ItemID == uuid.Nil {
		return nil, ErrMissingIdentifiers
	}
	filter.Limit = clampLimit(filter.Limit)
	return s.repo.ListTransactions(ctx, filter)
}

// ListAlerts returns alerts of the organization newest first.
func (s *Service) ListAlerts(ctx context.Context, filter AlertFilter) ([]StockAlert, error) {
	if filter.OrgID == uuid.Nil {
		return nil, ErrMissingIdentifiers
	}
	filter.Limit = clampLimit(filter.Limit)
	return s.repo.ListAlerts(ctx, filter)
}

// CheckLedgerIntegrity lists items whose cached quantity drifted from the
// sum of their lots.
func (s *Service) CheckLedgerIntegrity(ctx context.Context) ([]LedgerDrift, error) {
	drift, err := s.repo.ListLedgerDrift(ctx)
	if err != nil {
		return nil, err
	}
	for _, d := range drift {
		s.logger.Error("stock ledger drift",
			slog.String("org_id", d.OrgID.String()),
			slog.String("item_id", d.ItemID.String()),
			slog.String("item_name", d.ItemName),
			slog.String("stock_quantity", d.StockQuantity.String()),
			slog.String("batch_quantity", d.BatchQuantity.String()))
	}
	return drift, nil
}

type receiveParams struct {
	OrgID          uuid.UUID
	ItemID         uuid.UUID
	WarehouseID    uuid.UUID
	Quantity       decimal.Decimal
	UnitCost       decimal.NullDecimal
	PurchaseDate   time.Time
	TxType         TransactionType
	Notes          string
	ReferenceID    string
	ReferenceType  string
	ActorID        uuid.UUID
	IdempotencyKey string
}

func (s *Service) receive(ctx context.Context, params receiveParams) (Batch, error) {
	key, err := s.claimKey(ctx, params.OrgID, "receive", params.IdempotencyKey)
	if err != nil {
		return Batch{}, err
	}
	now := s.clock()
	purchaseDate := params.PurchaseDate
	if purchaseDate.IsZero() {
		purchaseDate = now
	}

	var (
		batch Batch
		item  Item
	)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		item, err = tx.GetItemForUpdate(ctx, params.OrgID, params.ItemID)
		if err != nil {
			return err
		}
		price := params.UnitCost.Decimal
		if !params.UnitCost.Valid {
			if price, err = tx.LatestPurchasePrice(ctx, params.OrgID, params.ItemID); err != nil {
				return err
			}
		}
		batch = Batch{
			ID:                uuid.New(),
			OrgID:             params.OrgID,
			ItemID:            params.ItemID,
			WarehouseID:       params.WarehouseID,
			BatchNumber:       newBatchNumber(now),
			PurchasePrice:     price,
			QuantityReceived:  params.Quantity,
			QuantityRemaining: params.Quantity,
			PurchaseDate:      purchaseDate,
			ReferenceID:       params.ReferenceID,
			ReferenceType:     params.ReferenceType,
			CreatedAt:         now,
		}
		if err := tx.InsertBatch(ctx, batch); err != nil {
			return err
		}
		if item.StockQuantity, err = tx.ApplyStockDelta(ctx, params.OrgID, params.ItemID, params.Quantity); err != nil {
			return err
		}
		return tx.InsertTransaction(ctx, StockTransaction{
			ID:            uuid.New(),
			OrgID:         params.OrgID,
			ItemID:        params.ItemID,
			WarehouseID:   params.WarehouseID,
			Type:          params.TxType,
			Quantity:      params.Quantity,
			ReferenceID:   params.ReferenceID,
			ReferenceType: params.ReferenceType,
			Notes:         params.Notes,
			CreatedBy:     params.ActorID,
			CreatedAt:     now,
		})
	})
	if err != nil {
		s.releaseKey(ctx, key)
		s.metrics.StockRejected(rejectReason(err))
		return Batch{}, err
	}
	s.metrics.StockMovement(string(params.TxType))
	if err := s.alerts.AfterIncrease(ctx, item); err != nil {
		s.logger.Warn("stock alert resolution failed", slog.String("item_id", item.ID.String()), slog.Any("error", err))
	}
	return batch, nil
}

type issueParams struct {
	OrgID          uuid.UUID
	ItemID         uuid.UUID
	WarehouseID    uuid.UUID
	Quantity       decimal.Decimal
	TxType         TransactionType
	Notes          string
	ReferenceID    string
	ReferenceType  string
	ActorID        uuid.UUID
	IdempotencyKey string
}

func (s *Service) issue(ctx context.Context, params issueParams) (DeductResult, error) {
	key, err := s.claimKey(ctx, params.OrgID, "issue", params.IdempotencyKey)
	if err != nil {
		return DeductResult{}, err
	}
	now := s.clock()

	var (
		result DeductResult
		item   Item
	)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		item, err = tx.GetItemForUpdate(ctx, params.OrgID, params.ItemID)
		if err != nil {
			return err
		}
		if item.StockQuantity.LessThan(params.Quantity) {
			return &InsufficientStockError{
				ItemID:    item.ID,
				ItemName:  item.Name,
				Available: item.StockQuantity,
				Required:  params.Quantity,
			}
		}
		batches, err := tx.ListOpenBatchesForUpdate(ctx, params.OrgID, params.ItemID, params.WarehouseID)
		if err != nil {
			return err
		}
		sortFIFO(batches)
		consumptions, shortfall := consumeFIFO(batches, params.Quantity)
		if shortfall.IsPositive() {
			return s.shortfallError(ctx, tx, item, params, shortfall)
		}
		for _, c := range consumptions {
			if err := tx.UpdateBatchRemaining(ctx, params.OrgID, c.Batch.ID, c.Batch.QuantityRemaining); err != nil {
				return err
			}
		}
		if item.StockQuantity, err = tx.ApplyStockDelta(ctx, params.OrgID, params.ItemID, params.Quantity.Neg()); err != nil {
			return err
		}
		if err := tx.InsertTransaction(ctx, StockTransaction{
			ID:            uuid.New(),
			OrgID:         params.OrgID,
			ItemID:        params.ItemID,
			WarehouseID:   params.WarehouseID,
			Type:          params.TxType,
			Quantity:      params.Quantity.Neg(),
			ReferenceID:   params.ReferenceID,
			ReferenceType: params.ReferenceType,
			Notes:         params.Notes,
			CreatedBy:     params.ActorID,
			CreatedAt:     now,
		}); err != nil {
			return err
		}
		result = DeductResult{
			Consumptions: consumptions,
			CostOfGoods:  costOfGoods(consumptions),
			StockAfter:   item.StockQuantity,
		}
		return nil
	})
	if err != nil {
		s.releaseKey(ctx, key)
		s.metrics.StockRejected(rejectReason(err))
		return DeductResult{}, err
	}
	s.metrics.StockMovement(string(params.TxType))
	if err := s.alerts.AfterDecrease(ctx, item); err != nil {
		s.logger.Warn("stock alert evaluation failed", slog.String("item_id", item.ID.String()), slog.Any("error", err))
	}
	return result, nil
}

// shortfallError classifies a FIFO walk that ran out of lots after the item
// level check passed. When lots and cache agree the warehouse simply lacks
// stock; otherwise the ledger has drifted.
func (s *Service) shortfallError(ctx context.Context, tx TxRepository, item Item, params issueParams, shortfall decimal.Decimal) error {
	total, err := tx.SumRemaining(ctx, params.OrgID, params.ItemID)
	if err != nil {
		return err
	}
	if total.Equal(item.StockQuantity) {
		return &InsufficientStockError{
			ItemID:      item.ID,
			ItemName:    item.Name,
			WarehouseID: params.WarehouseID,
			Available:   params.Quantity.Sub(shortfall),
			Required:    params.Quantity,
		}
	}
	s.logger.Error("stock ledger inconsistent with batches",
		slog.String("org_id", params.OrgID.String()),
		slog.String("item_id", item.ID.String()),
		slog.String("stock_quantity", item.StockQuantity.String()),
		slog.String("batch_quantity", total.String()),
		slog.String("shortfall", shortfall.String()))
	return fmt.Errorf("%w: item %s caches %s but lots hold %s", ErrInconsistentLedger, item.ID, item.StockQuantity, total)
}

func (s *Service) claimKey(ctx context.Context, orgID uuid.UUID, op, key string) (string, error) {
	if key == "" || s.idempotency == nil {
		return "", nil
	}
	full := fmt.Sprintf("%s:%s:%s", orgID, op, key)
	if err := s.idempotency.CheckAndInsert(ctx, full, "inventory"); err != nil {
		return "", err
	}
	return full, nil
}

func (s *Service) releaseKey(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.idempotency.Delete(ctx, key); err != nil {
		s.logger.Warn("release idempotency key", slog.String("key", key), slog.Any("error", err))
	}
}

func requireIdentifiers(orgID, itemID, warehouseID uuid.UUID) error {
	if orgID == uuid.Nil || itemID == uuid.Nil || warehouseID == uuid.Nil {
		return ErrMissingIdentifiers
	}
	return nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 200
	}
	if limit > 1000 {
		return 1000
	}
	return limit
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrInconsistentLedger):
		return "inconsistent_ledger"
	case errors.Is(err, ErrItemNotFound):
		return "item_not_found"
	case errors.Is(err, shared.ErrIdempotencyConflict):
		return "duplicate"
	default:
		return "error"
	}
}
