package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/pasalhub/pasalmart-backend/internal/notifications"
	"github.com/pasalhub/pasalmart-backend/pkg/db/models"
	"github.com/pasalhub/pasalmart-backend/pkg/enums"
	"github.com/pasalhub/pasalmart-backend/pkg/logger"
)

const (
	abandonedCheckoutAge   = 24 * time.Hour
	abandonedCheckoutLimit = 200
)

// AbandonedCheckoutJobParams configure the stale pending order nudge.
type AbandonedCheckoutJobParams struct {
	Logger        *logger.Logger
	Orders        staleOrderReader
	Notifications notificationRecorder
	Age           time.Duration
	Limit         int
}

type staleOrderReader interface {
	ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]models.Order, error)
}

type notificationRecorder interface {
	Record(ctx context.Context, input notifications.RecordInput) (*models.Notification, bool, error)
}

// NewAbandonedCheckoutJob builds the job that nudges customers whose orders
// never settled. The notification row dedupes on (order, type), so repeat
// sweeps never nag twice.
func NewAbandonedCheckoutJob(params AbandonedCheckoutJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders reader required")
	}
	if params.Notifications == nil {
		return nil, fmt.Errorf("notifications service required")
	}
	age := params.Age
	if age <= 0 {
		age = abandonedCheckoutAge
	}
	limit := params.Limit
	if limit <= 0 {
		limit = abandonedCheckoutLimit
	}
	return &abandonedCheckoutJob{
		logg:          params.Logger,
		orders:        params.Orders,
		notifications: params.Notifications,
		age:           age,
		limit:         limit,
		now:           time.Now,
	}, nil
}

type abandonedCheckoutJob struct {
	logg          *logger.Logger
	orders        staleOrderReader
	notifications notificationRecorder
	age           time.Duration
	limit         int
	now           func() time.Time
}

func (j *abandonedCheckoutJob) Name() string { return "abandoned-checkout" }

func (j *abandonedCheckoutJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.age)
	orders, err := j.orders.ListStalePending(ctx, cutoff, j.limit)
	if err != nil {
		return fmt.Errorf("list stale pending orders: %w", err)
	}

	var errs []error
	nudged := 0
	for i := range orders {
		order := &orders[i]
		orderID := order.ID
		_, created, err := j.notifications.Record(ctx, notifications.RecordInput{
			UserID:  order.UserID,
			OrderID: &orderID,
			Type:    enums.NotificationTypeAbandonedCheckout,
			Title:   "Complete your order",
			Message: fmt.Sprintf("Order #%d is waiting for payment.", order.OrderNumber),
		})
		if err != nil {
			logCtx := j.logg.WithField(ctx, "order_id", order.ID.String())
			j.logg.Error(logCtx, "abandoned checkout nudge failed", err)
			errs = append(errs, err)
			continue
		}
		if created {
			nudged++
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"scanned": len(orders),
		"nudged":  nudged,
		"failed":  len(errs),
	})
	j.logg.Info(logCtx, "abandoned checkout sweep complete")
	return multierr.Combine(errs...)
}
