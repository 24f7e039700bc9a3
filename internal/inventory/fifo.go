package inventory

import (
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// sortFIFO orders lots oldest first. Ties on purchase date fall back to
// insertion time, then id, so the order is total.
func sortFIFO(batches []Batch) {
	sort.SliceStable(batches, func(i, j int) bool {
		a, b := batches[i], batches[j]
		if !a.PurchaseDate.Equal(b.PurchaseDate) {
			return a.PurchaseDate.Before(b.PurchaseDate)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})
}

// consumeFIFO takes qty from the ordered lots and returns the consumptions
// with each batch's post-deduction remainder, plus whatever could not be
// covered.
func consumeFIFO(batches []Batch, qty decimal.Decimal) ([]Consumption, decimal.Decimal) {
	remaining := qty
	var out []Consumption
	for _, b := range batches {
		if !remaining.IsPositive() {
			break
		}
		if b.Exhausted() {
			continue
		}
		take := decimal.Min(b.QuantityRemaining, remaining)
		b.QuantityRemaining = b.QuantityRemaining.Sub(take)
		out = append(out, Consumption{Batch: b, Quantity: take})
		remaining = remaining.Sub(take)
	}
	return out, remaining
}

func costOfGoods(consumptions []Consumption) decimal.Decimal {
	total := decimal.Zero
	for _, c := range consumptions {
		total = total.Add(c.Cost())
	}
	return total
}

// newBatchNumber yields B-<yyyymmddhhmmss>-<6 hex>.
func newBatchNumber(now time.Time) string {
	id := uuid.New()
	return fmt.Sprintf("B-%s-%s", now.UTC().Format("20060102150405"), hex.EncodeToString(id[:3]))
}
