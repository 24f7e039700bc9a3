package inventory

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LowStockEvent is emitted once when an item opens a stock alert.
type LowStockEvent struct {
	OrgID        uuid.UUID       `json:"org_id"`
	ItemID       uuid.UUID       `json:"item_id"`
	ItemName     string          `json:"item_name"`
	SKU          string          `json:"sku"`
	CurrentStock decimal.Decimal `json:"current_stock"`
	Threshold    decimal.Decimal `json:"threshold"`
	IsOutOfStock bool            `json:"is_out_of_stock"`
}

// Notifier delivers low stock events to users.
type Notifier interface {
	NotifyLowStock(ctx context.Context, evt LowStockEvent) error
}

// MetricsRecorder receives counters for stock movements and alert changes.
type MetricsRecorder interface {
	StockMovement(txType string)
	StockRejected(reason string)
	AlertOpened(alertType string)
	AlertResolved(count int)
}

type noopMetrics struct{}

func (noopMetrics) StockMovement(string) {}
func (noopMetrics) StockRejected(string) {}
func (noopMetrics) AlertOpened(string)   {}
func (noopMetrics) AlertResolved(int)    {}
