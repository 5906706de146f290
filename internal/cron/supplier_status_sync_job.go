package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/pasalhub/pasalmart-backend/internal/orders"
	"github.com/pasalhub/pasalmart-backend/internal/suppliers"
	"github.com/pasalhub/pasalmart-backend/pkg/db/models"
	"github.com/pasalhub/pasalmart-backend/pkg/enums"
	"github.com/pasalhub/pasalmart-backend/pkg/logger"
)

const supplierStatusSyncLimit = 200

// supplier status words that map onto our order lifecycle. Anything else
// means the supplier is still working on it.
var (
	supplierShippedStates = map[string]struct{}{
		"shipped":    {},
		"dispatched": {},
		"in_transit": {},
	}
	supplierDeliveredStates = map[string]struct{}{
		"delivered": {},
		"completed": {},
	}
)

var statusRank = map[enums.OrderStatus]int{
	enums.OrderStatusPaid:       1,
	enums.OrderStatusProcessing: 2,
	enums.OrderStatusShipped:    3,
	enums.OrderStatusDelivered:  4,
}

// SupplierStatusSyncJobParams configure the supplier order polling sweep.
type SupplierStatusSyncJobParams struct {
	Logger    *logger.Logger
	DB        txRunner
	Orders    orders.Repository
	Suppliers suppliers.Repository
	Adapters  supplierAdapterResolver
	Limit     int
}

type supplierAdapterResolver interface {
	Resolve(key string) (suppliers.Adapter, error)
}

// NewSupplierStatusSyncJob builds the job that polls suppliers for forwarded
// orders and advances order status when every supplier has moved on.
func NewSupplierStatusSyncJob(params SupplierStatusSyncJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Suppliers == nil {
		return nil, fmt.Errorf("suppliers repository required")
	}
	if params.Adapters == nil {
		return nil, fmt.Errorf("adapter registry required")
	}
	limit := params.Limit
	if limit <= 0 {
		limit = supplierStatusSyncLimit
	}
	return &supplierStatusSyncJob{
		logg:      params.Logger,
		db:        params.DB,
		orders:    params.Orders,
		suppliers: params.Suppliers,
		adapters:  params.Adapters,
		limit:     limit,
		now:       time.Now,
	}, nil
}

type supplierStatusSyncJob struct {
	logg      *logger.Logger
	db        txRunner
	orders    orders.Repository
	suppliers suppliers.Repository
	adapters  supplierAdapterResolver
	limit     int
	now       func() time.Time
}

func (j *supplierStatusSyncJob) Name() string { return "supplier-status-sync" }

func (j *supplierStatusSyncJob) Run(ctx context.Context) error {
	rows, err := j.orders.ListForwarded(ctx, j.limit)
	if err != nil {
		return fmt.Errorf("list forwarded orders: %w", err)
	}

	var advanced, failed int
	for i := range rows {
		order := &rows[i]
		logCtx := j.logg.WithField(ctx, "order_id", order.ID.String())
		changed, err := j.syncOrder(ctx, order)
		if err != nil {
			j.logg.Error(logCtx, "supplier status sync failed for order", err)
			failed++
			continue
		}
		if changed {
			advanced++
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"scanned":  len(rows),
		"advanced": advanced,
		"failed":   failed,
	})
	j.logg.Info(logCtx, "supplier status sync complete")
	return nil
}

func (j *supplierStatusSyncJob) syncOrder(ctx context.Context, order *models.Order) (bool, error) {
	if len(order.SupplierOrderIDs) == 0 {
		return false, nil
	}

	allShipped := true
	allDelivered := true
	for slug, externalID := range order.SupplierOrderIDs {
		state, err := j.fetchSupplierState(ctx, slug, externalID)
		if err != nil {
			return false, err
		}
		_, delivered := supplierDeliveredStates[state]
		_, shipped := supplierShippedStates[state]
		if !delivered {
			allDelivered = false
		}
		if !delivered && !shipped {
			allShipped = false
		}
	}

	target := order.Status
	switch {
	case allDelivered:
		target = enums.OrderStatusDelivered
	case allShipped:
		target = enums.OrderStatusShipped
	}
	if statusRank[target] <= statusRank[order.Status] {
		return false, nil
	}

	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := j.orders.WithTx(tx)
		if err := repo.UpdateFields(ctx, order.ID, map[string]any{"status": target}); err != nil {
			return err
		}
		return repo.CreateStatusEvent(ctx, &models.OrderStatusEvent{
			OrderID: order.ID,
			Status:  target,
			Note:    "supplier status sync",
		})
	})
	if err != nil {
		return false, err
	}
	order.Status = target
	return true, nil
}

func (j *supplierStatusSyncJob) fetchSupplierState(ctx context.Context, slug, externalID string) (string, error) {
	supplier, err := j.suppliers.FindBySlug(ctx, slug)
	if err != nil {
		return "", fmt.Errorf("load supplier %s: %w", slug, err)
	}
	adapter, err := j.adapters.Resolve(supplier.AdapterKey)
	if err != nil {
		return "", err
	}
	status, err := adapter.GetOrderStatus(ctx, supplier, externalID)
	if err != nil {
		return "", err
	}
	return status.Status, nil
}
