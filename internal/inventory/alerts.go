package inventory

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// AlertStore persists stock alerts. InsertAlert reports false when an
// unresolved alert for the item already exists or the item's live stock is
// above its threshold; ResolveOpenAlerts only closes alerts of items whose
// live stock is above threshold.
type AlertStore interface {
	GetItem(ctx context.Context, orgID, itemID uuid.UUID) (Item, error)
	FindOpenAlert(ctx context.Context, orgID, itemID uuid.UUID) (StockAlert, bool, error)
	InsertAlert(ctx context.Context, alert StockAlert) (bool, error)
	ResolveOpenAlerts(ctx context.Context, orgID, itemID uuid.UUID, at time.Time) (int64, error)
}

// AlertManager opens and resolves low stock alerts after committed movements.
type AlertManager struct {
	store    AlertStore
	notifier Notifier
	metrics  MetricsRecorder
	logger   *slog.Logger
	clock    func() time.Time
}

// NewAlertManager constructs the manager. notifier may be nil.
func NewAlertManager(store AlertStore, notifier Notifier, metrics MetricsRecorder, logger *slog.Logger) *AlertManager {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &AlertManager{
		store:    store,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger,
		clock:    func() time.Time { return time.Now().UTC() },
	}
}

// AfterDecrease opens an alert when the item is at or below its threshold and
// none is open yet. The item is re-read because movements committed after the
// caller's snapshot may already have moved it back above threshold. The
// notifier fires only for the alert this call created.
func (m *AlertManager) AfterDecrease(ctx context.Context, item Item) error {
	if m == nil {
		return nil
	}
	item, err := m.store.GetItem(ctx, item.OrgID, item.ID)
	if err != nil {
		return err
	}
	if item.StockQuantity.GreaterThan(item.LowStockThreshold) {
		return nil
	}
	if _, open, err := m.store.FindOpenAlert(ctx, item.OrgID, item.ID); err != nil {
		return err
	} else if open {
		return nil
	}
	alertType := AlertTypeLowStock
	if item.StockQuantity.IsZero() {
		alertType = AlertTypeOutOfStock
	}
	alert := StockAlert{
		ID:              uuid.New(),
		OrgID:           item.OrgID,
		ItemID:          item.ID,
		AlertType:       alertType,
		CurrentQuantity: item.StockQuantity,
		Threshold:       item.LowStockThreshold,
		CreatedAt:       m.clock(),
	}
	created, err := m.store.InsertAlert(ctx, alert)
	if err != nil || !created {
		return err
	}
	m.metrics.AlertOpened(string(alertType))
	m.notify(ctx, item, alert)
	return nil
}

// AfterIncrease resolves open alerts once the item is back above threshold.
func (m *AlertManager) AfterIncrease(ctx context.Context, item Item) error {
	if m == nil {
		return nil
	}
	item, err := m.store.GetItem(ctx, item.OrgID, item.ID)
	if err != nil {
		return err
	}
	if !item.StockQuantity.GreaterThan(item.LowStockThreshold) {
		return nil
	}
	n, err := m.store.ResolveOpenAlerts(ctx, item.OrgID, item.ID, m.clock())
	if err != nil {
		return err
	}
	if n > 0 {
		m.metrics.AlertResolved(int(n))
	}
	return nil
}

func (m *AlertManager) notify(ctx context.Context, item Item, alert StockAlert) {
	if m.notifier == nil {
		return
	}
	evt := LowStockEvent{
		OrgID:        item.OrgID,
		ItemID:       item.ID,
		ItemName:     item.Name,
		SKU:          item.SKU,
		CurrentStock: item.StockQuantity,
		Threshold:    item.LowStockThreshold,
		IsOutOfStock: alert.AlertType == AlertTypeOutOfStock,
	}
	if err := m.notifier.NotifyLowStock(ctx, evt); err != nil {
		m.logger.Warn("low stock notification failed",
			slog.String("item_id", item.ID.String()),
			slog.String("alert_type", string(alert.AlertType)),
			slog.Any("error", err))
	}
}
