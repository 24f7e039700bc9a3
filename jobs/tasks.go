package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/odyssey-erp/odyssey-books/internal/inventory"
	jobmetrics "github.com/odyssey-erp/odyssey-books/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLowStockNotify delivers a low stock notification for one item.
	TaskLowStockNotify = "inventory:low_stock_notify"
)

// NewLowStockNotifyTask constructs an Asynq task carrying the alert event.
func NewLowStockNotifyTask(evt inventory.LowStockEvent) (*asynq.Task, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLowStockNotify, data, asynq.Queue(QueueDefault), asynq.MaxRetry(5)), nil
}

// Deliverer pushes a notification to an outside channel such as email.
type Deliverer interface {
	DeliverLowStock(ctx context.Context, evt inventory.LowStockEvent) error
}

// LowStockNotifyJob handles TaskLowStockNotify. Without a Deliverer the
// notification is written to the log only.
type LowStockNotifyJob struct {
	Deliverer Deliverer
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// Handle processes a single notification task.
func (j *LowStockNotifyJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("low stock notify: handler not configured")
	}
	var evt inventory.LowStockEvent
	if err := json.Unmarshal(t.Payload(), &evt); err != nil {
		return asynq.SkipRetry
	}
	alertType := string(inventory.AlertTypeLowStock)
	if evt.IsOutOfStock {
		alertType = string(inventory.AlertTypeOutOfStock)
	}
	logger := j.logger().With(
		slog.String("org_id", evt.OrgID.String()),
		slog.String("item_id", evt.ItemID.String()),
		slog.String("alert_type", alertType),
	)
	if j.Deliverer != nil {
		if err := j.Deliverer.DeliverLowStock(ctx, evt); err != nil {
			logger.Warn("deliver low stock notification", slog.Any("error", err))
			return err
		}
	}
	logger.Info(LowStockSummary(evt),
		slog.String("item_name", evt.ItemName),
		slog.String("sku", evt.SKU),
		slog.String("current_stock", evt.CurrentStock.String()),
		slog.String("threshold", evt.Threshold.String()),
	)
	j.Metrics.AddNotifications(alertType, 1)
	return nil
}

var summaryPrinter = message.NewPrinter(language.English)

// LowStockSummary renders the one-line notification text.
func LowStockSummary(evt inventory.LowStockEvent) string {
	name := evt.ItemName
	if evt.SKU != "" {
		name += " (" + evt.SKU + ")"
	}
	threshold := number.Decimal(evt.Threshold.InexactFloat64(), number.MaxFractionDigits(4))
	if evt.IsOutOfStock {
		return summaryPrinter.Sprintf("%s is out of stock, threshold %v", name, threshold)
	}
	current := number.Decimal(evt.CurrentStock.InexactFloat64(), number.MaxFractionDigits(4))
	return summaryPrinter.Sprintf("%s is running low: %v left, threshold %v", name, current, threshold)
}

func (j *LowStockNotifyJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLowStockNotify))
	}
	return slog.Default().With(slog.String("job", TaskLowStockNotify))
}
