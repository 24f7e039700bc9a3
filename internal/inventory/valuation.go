package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CalculateFIFOValuation values the remaining lots of an item, optionally
// limited to one warehouse. It never mutates state. Concurrent identical
// requests share a single read.
func (s *Service) CalculateFIFOValuation(ctx context.Context, orgID, itemID uuid.UUID, warehouseID *uuid.UUID) (Valuation, error) {
	if orgID == uuid.Nil || itemID == uuid.Nil {
		return Valuation{}, ErrMissingIdentifiers
	}
	scope := uuid.Nil
	if warehouseID != nil {
		scope = *warehouseID
	}
	key := fmt.Sprintf("%s:%s:%s", orgID, itemID, scope)
	// The shared read must outlive any single caller's cancellation.
	readCtx := context.WithoutCancel(ctx)
	v, err, _ := s.valuations.Do(key, func() (any, error) {
		ctx := readCtx
		if _, err := s.repo.GetItem(ctx, orgID, itemID); err != nil {
			return Valuation{}, err
		}
		batches, err := s.repo.ListOpenBatches(ctx, orgID, itemID, scope)
		if err != nil {
			return Valuation{}, err
		}
		sortFIFO(batches)
		return buildValuation(itemID, warehouseID, batches), nil
	})
	if err != nil {
		return Valuation{}, err
	}
	val := v.(Valuation)
	val.Batches = append(make([]Batch, 0, len(val.Batches)), val.Batches...)
	if val.WarehouseID != nil {
		wh := *val.WarehouseID
		val.WarehouseID = &wh
	}
	return val, nil
}

func buildValuation(itemID uuid.UUID, warehouseID *uuid.UUID, batches []Batch) Valuation {
	val := Valuation{
		ItemID:        itemID,
		WarehouseID:   warehouseID,
		TotalQuantity: decimal.Zero,
		TotalValue:    decimal.Zero,
		AverageCost:   decimal.Zero,
		Batches:       make([]Batch, 0, len(batches)),
	}
	for _, b := range batches {
		if b.Exhausted() {
			continue
		}
		val.TotalQuantity = val.TotalQuantity.Add(b.QuantityRemaining)
		val.TotalValue = val.TotalValue.Add(b.QuantityRemaining.Mul(b.PurchasePrice))
		val.Batches = append(val.Batches, b)
	}
	if val.TotalQuantity.IsPositive() {
		val.AverageCost = val.TotalValue.Div(val.TotalQuantity)
	}
	return val
}
