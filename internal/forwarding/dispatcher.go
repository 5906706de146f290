package forwarding

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/pasalhub/pasalmart-backend/internal/orders"
	"github.com/pasalhub/pasalmart-backend/internal/suppliers"
	"github.com/pasalhub/pasalmart-backend/pkg/db/models"
	"github.com/pasalhub/pasalmart-backend/pkg/enums"
	pkgerrors "github.com/pasalhub/pasalmart-backend/pkg/errors"
	"github.com/pasalhub/pasalmart-backend/pkg/logger"
	"github.com/pasalhub/pasalmart-backend/pkg/metrics"
	"github.com/pasalhub/pasalmart-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type adapterResolver interface {
	Resolve(key string) (suppliers.Adapter, error)
}

// Dispatcher forwards paid orders to their suppliers. Safe under message
// redelivery and concurrent retries: the order row is locked while the
// supplier_order_ids map is read and written, and suppliers already present
// in the map are skipped.
type Dispatcher interface {
	Forward(ctx context.Context, orderID uuid.UUID) error
}

type dispatcher struct {
	tx        txRunner
	orders    orders.Repository
	suppliers suppliers.Repository
	adapters  adapterResolver
	metrics   *metrics.PaymentMetrics
	logg      *logger.Logger
}

// NewDispatcher builds the forwarding dispatcher.
func NewDispatcher(
	tx txRunner,
	ordersRepo orders.Repository,
	suppliersRepo suppliers.Repository,
	adapters adapterResolver,
	paymentMetrics *metrics.PaymentMetrics,
	logg *logger.Logger,
) (Dispatcher, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if suppliersRepo == nil {
		return nil, fmt.Errorf("suppliers repository required")
	}
	if adapters == nil {
		return nil, fmt.Errorf("adapter registry required")
	}
	return &dispatcher{
		tx:        tx,
		orders:    ordersRepo,
		suppliers: suppliersRepo,
		adapters:  adapters,
		metrics:   paymentMetrics,
		logg:      logg,
	}, nil
}

// Forward places one supplier order per supplier represented in the order's
// items. Suppliers that already have an external id recorded are skipped;
// per-supplier failures are collected so the caller can retry the remainder.
func (d *dispatcher) Forward(ctx context.Context, orderID uuid.UUID) error {
	// Collected outside the tx closure: partial failures must not roll back
	// the external ids already recorded for the suppliers that succeeded.
	var failures error

	err := d.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ordersRepo := d.orders.WithTx(tx)

		order, err := ordersRepo.LockByID(ctx, orderID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock order")
		}

		// Only paid orders leave the building. COD orders reach here once
		// delivery settles them; everything else waits for settlement.
		if order.Status != enums.OrderStatusPaid && order.Status != enums.OrderStatusProcessing {
			if d.logg != nil {
				d.logg.Info(ctx, "skipping forwarding for order not ready")
			}
			return nil
		}

		grouped := groupBySupplier(order.Items)
		if len(grouped) == 0 {
			return nil
		}

		supplierIDs := make([]uuid.UUID, 0, len(grouped))
		for id := range grouped {
			supplierIDs = append(supplierIDs, id)
		}
		supplierRows, err := d.suppliers.WithTx(tx).FindByIDs(ctx, supplierIDs)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load suppliers")
		}

		recorded := order.SupplierOrderIDs
		if recorded == nil {
			recorded = types.StringMap{}
		}

		changed := false
		for supplierID, items := range grouped {
			supplier, ok := supplierRows[supplierID]
			if !ok {
				failures = multierr.Append(failures, fmt.Errorf("supplier %s not found", supplierID))
				continue
			}
			if _, done := recorded[supplier.Slug]; done {
				continue
			}

			adapter, err := d.adapters.Resolve(supplier.AdapterKey)
			if err != nil {
				failures = multierr.Append(failures, err)
				continue
			}

			result, err := adapter.PlaceOrder(ctx, supplier, buildRequest(order, supplierID, items))
			if err != nil {
				if d.logg != nil {
					d.logg.Error(ctx, "forward order to supplier", err)
				}
				failures = multierr.Append(failures, err)
				continue
			}

			recorded[supplier.Slug] = result.ExternalID
			changed = true
			if d.metrics != nil {
				d.metrics.IncForwarded(supplier.Slug)
			}
		}

		if changed {
			if err := ordersRepo.SetSupplierOrderIDs(ctx, order.ID, recorded); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record supplier order ids")
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if failures != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, failures, "forward order")
	}
	return nil
}

func groupBySupplier(items []models.OrderItem) map[uuid.UUID][]models.OrderItem {
	grouped := map[uuid.UUID][]models.OrderItem{}
	for _, item := range items {
		grouped[item.SupplierID] = append(grouped[item.SupplierID], item)
	}
	return grouped
}

func buildRequest(order *models.Order, supplierID uuid.UUID, items []models.OrderItem) suppliers.PlaceOrderRequest {
	lines := make([]suppliers.OrderLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, suppliers.OrderLine{
			SKU:       item.SKU,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	return suppliers.PlaceOrderRequest{
		IdempotencyKey:    fmt.Sprintf("%s-%s", order.ID, supplierID),
		OrderNumber:       order.OrderNumber,
		ShippingAddressID: order.ShippingAddressID,
		Lines:             lines,
	}
}
