package inventory

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType enumerates supported stock movements.
type TransactionType string

const (
	// TransactionTypePurchase records stock received against a purchase.
	TransactionTypePurchase TransactionType = "purchase"
	// TransactionTypeSale records stock issued against a sale.
	TransactionTypeSale TransactionType = "sale"
	// TransactionTypeGRN records a goods received note.
	TransactionTypeGRN TransactionType = "grn"
	// TransactionTypeAdjustment is a generic manual correction.
	TransactionTypeAdjustment TransactionType = "adjustment"
	// TransactionTypeAdjustmentIncrease adds stock found during a count.
	TransactionTypeAdjustmentIncrease TransactionType = "adjustment_increase"
	// TransactionTypeAdjustmentDecrease removes stock missing during a count.
	TransactionTypeAdjustmentDecrease TransactionType = "adjustment_decrease"
	// TransactionTypeReturn brings customer returns back as a new lot.
	TransactionTypeReturn TransactionType = "return"
	// TransactionTypeDamage writes off damaged stock.
	TransactionTypeDamage TransactionType = "damage"
	// TransactionTypeExpired writes off expired stock.
	TransactionTypeExpired TransactionType = "expired"
)

// IsAdjustment reports whether t is accepted by AdjustStock.
func (t TransactionType) IsAdjustment() bool {
	switch t {
	case TransactionTypeAdjustmentIncrease, TransactionTypeReturn,
		TransactionTypeAdjustmentDecrease, TransactionTypeDamage, TransactionTypeExpired:
		return true
	}
	return false
}

// Increases reports whether an adjustment of type t adds stock.
func (t TransactionType) Increases() bool {
	return t == TransactionTypeAdjustmentIncrease || t == TransactionTypeReturn
}

// Receivable reports whether t may be used by AddStock.
func (t TransactionType) Receivable() bool {
	switch t {
	case TransactionTypePurchase, TransactionTypeGRN, TransactionTypeReturn,
		TransactionTypeAdjustment, TransactionTypeAdjustmentIncrease:
		return true
	}
	return false
}

// Issuable reports whether t may be used by DeductStock.
func (t TransactionType) Issuable() bool {
	switch t {
	case TransactionTypeSale, TransactionTypeAdjustment, TransactionTypeAdjustmentDecrease,
		TransactionTypeDamage, TransactionTypeExpired:
		return true
	}
	return false
}

// AlertType distinguishes low stock from depleted stock.
type AlertType string

const (
	AlertTypeLowStock   AlertType = "low_stock"
	AlertTypeOutOfStock AlertType = "out_of_stock"
)

// Item is the stockable product. StockQuantity caches the sum of the
// remaining quantity of the item's batches.
type Item struct {
	ID                 uuid.UUID
	OrgID              uuid.UUID
	Name               string
	SKU                string
	Unit               string
	StockQuantity      decimal.Decimal
	LowStockThreshold  decimal.Decimal
	DefaultWarehouseID uuid.UUID
}

// Batch is a FIFO lot created by a single receiving event.
type Batch struct {
	ID                uuid.UUID       `json:"id"`
	OrgID             uuid.UUID       `json:"org_id"`
	ItemID            uuid.UUID       `json:"item_id"`
	WarehouseID       uuid.UUID       `json:"warehouse_id"`
	BatchNumber       string          `json:"batch_number"`
	PurchasePrice     decimal.Decimal `json:"purchase_price"`
	QuantityReceived  decimal.Decimal `json:"quantity_received"`
	QuantityRemaining decimal.Decimal `json:"quantity_remaining"`
	PurchaseDate      time.Time       `json:"purchase_date"`
	ReferenceID       string          `json:"reference_id,omitempty"`
	ReferenceType     string          `json:"reference_type,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

// Exhausted reports whether nothing remains in the lot.
func (b Batch) Exhausted() bool {
	return !b.QuantityRemaining.IsPositive()
}

// StockTransaction is an append-only movement row with a signed quantity.
type StockTransaction struct {
	ID            uuid.UUID       `json:"id"`
	OrgID         uuid.UUID       `json:"org_id"`
	ItemID        uuid.UUID       `json:"item_id"`
	WarehouseID   uuid.UUID       `json:"warehouse_id"`
	Type          TransactionType `json:"type"`
	Quantity      decimal.Decimal `json:"quantity"`
	ReferenceID   string          `json:"reference_id,omitempty"`
	ReferenceType string          `json:"reference_type,omitempty"`
	Notes         string          `json:"notes,omitempty"`
	CreatedBy     uuid.UUID       `json:"created_by"`
	CreatedAt     time.Time       `json:"created_at"`
}

// StockAlert tracks a threshold crossing. IsResolved discriminates open from
// closed alerts.
type StockAlert struct {
	ID              uuid.UUID       `json:"id"`
	OrgID           uuid.UUID       `json:"org_id"`
	ItemID          uuid.UUID       `json:"item_id"`
	AlertType       AlertType       `json:"alert_type"`
	CurrentQuantity decimal.Decimal `json:"current_quantity"`
	Threshold       decimal.Decimal `json:"threshold"`
	IsResolved      bool            `json:"is_resolved"`
	ResolvedAt      *time.Time      `json:"resolved_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Consumption is the quantity taken from one batch by a deduction. Batch
// holds the lot as persisted after the deduction.
type Consumption struct {
	Batch    Batch           `json:"batch"`
	Quantity decimal.Decimal `json:"quantity"`
}

// Cost returns the cost basis of the consumed quantity.
func (c Consumption) Cost() decimal.Decimal {
	return c.Quantity.Mul(c.Batch.PurchasePrice)
}

// DeductResult lists consumed batches in FIFO order.
type DeductResult struct {
	Consumptions []Consumption   `json:"consumptions"`
	CostOfGoods  decimal.Decimal `json:"cost_of_goods"`
	StockAfter   decimal.Decimal `json:"stock_after"`
}

// AddStockInput describes a stock-increasing movement.
type AddStockInput struct {
	OrgID          uuid.UUID
	ItemID         uuid.UUID
	WarehouseID    uuid.UUID
	Quantity       decimal.Decimal
	PurchasePrice  decimal.Decimal
	PurchaseDate   time.Time
	Type           TransactionType
	ReferenceID    string
	ReferenceType  string
	Notes          string
	ActorID        uuid.UUID
	IdempotencyKey string
}

// DeductStockInput describes a FIFO deduction.
type DeductStockInput struct {
	OrgID          uuid.UUID
	ItemID         uuid.UUID
	WarehouseID    uuid.UUID
	Quantity       decimal.Decimal
	Type           TransactionType
	ReferenceID    string
	ReferenceType  string
	Notes          string
	ActorID        uuid.UUID
	IdempotencyKey string
}

// AdjustStockInput describes a manual adjustment. PurchasePrice is only used
// by increasing adjustments; when invalid the latest batch price is reused.
type AdjustStockInput struct {
	OrgID          uuid.UUID
	ItemID         uuid.UUID
	WarehouseID    uuid.UUID
	Quantity       decimal.Decimal
	Type           TransactionType
	Reason         string
	UserID         uuid.UUID
	PurchasePrice  decimal.NullDecimal
	IdempotencyKey string
}

// AdjustResult reports what an adjustment did. Exactly one of Batch and
// Deduction is set.
type AdjustResult struct {
	Type      TransactionType `json:"type"`
	Batch     *Batch          `json:"batch,omitempty"`
	Deduction *DeductResult   `json:"deduction,omitempty"`
}

// Valuation is the FIFO value of the remaining lots of an item.
type Valuation struct {
	ItemID        uuid.UUID       `json:"item_id"`
	WarehouseID   *uuid.UUID      `json:"warehouse_id,omitempty"`
	TotalQuantity decimal.Decimal `json:"total_quantity"`
	TotalValue    decimal.Decimal `json:"total_value"`
	AverageCost   decimal.Decimal `json:"average_cost"`
	Batches       []Batch         `json:"batches"`
}

// TransactionFilter narrows the stock ledger listing.
type TransactionFilter struct {
	OrgID       uuid.UUID
	ItemID      uuid.UUID
	WarehouseID uuid.UUID
	Limit       int
}

// AlertFilter narrows alert listing.
type AlertFilter struct {
	OrgID    uuid.UUID
	ItemID   uuid.UUID
	OpenOnly bool
	Limit    int
}

// LedgerDrift is an item whose cached quantity disagrees with its batches.
type LedgerDrift struct {
	OrgID         uuid.UUID
	ItemID        uuid.UUID
	ItemName      string
	StockQuantity decimal.Decimal
	BatchQuantity decimal.Decimal
}

var (
	// ErrInvalidQuantity indicates a non-positive quantity.
	ErrInvalidQuantity = errors.New("inventory: quantity must be greater than zero")
	// ErrInvalidUnitCost indicates invalid cost value.
	ErrInvalidUnitCost = errors.New("inventory: unit cost must be >= 0")
	// ErrMissingIdentifiers indicates a missing org, item or warehouse id.
	ErrMissingIdentifiers = errors.New("inventory: organization, item and warehouse required")
	// ErrInvalidTransactionType rejects a movement type that does not match
	// the direction of the operation.
	ErrInvalidTransactionType = errors.New("inventory: transaction type not allowed for this movement")
	// ErrInvalidAdjustmentType rejects unknown adjustment kinds.
	ErrInvalidAdjustmentType = errors.New("inventory: unsupported adjustment type")
	// ErrReasonRequired rejects adjustments without a reason.
	ErrReasonRequired = errors.New("inventory: adjustment reason required")
	// ErrItemNotFound indicates the item does not exist in the organization.
	ErrItemNotFound = errors.New("inventory: item not found")
	// ErrInsufficientStock matches every *InsufficientStockError.
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
	// ErrInconsistentLedger signals that cached stock and batches disagree.
	ErrInconsistentLedger = errors.New("inventory: stock ledger inconsistent with batches")
)

// InsufficientStockError reports a refused deduction. WarehouseID is set when
// the shortfall is local to one warehouse.
type InsufficientStockError struct {
	ItemID      uuid.UUID
	ItemName    string
	WarehouseID uuid.UUID
	Available   decimal.Decimal
	Required    decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	if e.WarehouseID != uuid.Nil {
		return fmt.Sprintf("inventory: insufficient stock for %s in warehouse %s: available %s, required %s",
			e.ItemName, e.WarehouseID, e.Available, e.Required)
	}
	return fmt.Sprintf("inventory: insufficient stock for %s: available %s, required %s",
		e.ItemName, e.Available, e.Required)
}

// Is lets errors.Is(err, ErrInsufficientStock) match.
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}
