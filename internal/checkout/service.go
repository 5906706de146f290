package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/pasalhub/pasalmart-backend/internal/address"
	"github.com/pasalhub/pasalmart-backend/internal/cart"
	"github.com/pasalhub/pasalmart-backend/internal/inventory"
	"github.com/pasalhub/pasalmart-backend/internal/orders"
	"github.com/pasalhub/pasalmart-backend/internal/pricing"
	"github.com/pasalhub/pasalmart-backend/pkg/db/models"
	"github.com/pasalhub/pasalmart-backend/pkg/enums"
	pkgerrors "github.com/pasalhub/pasalmart-backend/pkg/errors"
	"github.com/pasalhub/pasalmart-backend/pkg/gateway"
	"github.com/pasalhub/pasalmart-backend/pkg/logger"
	"github.com/pasalhub/pasalmart-backend/pkg/outbox"
	"github.com/pasalhub/pasalmart-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type inventoryReserver interface {
	Reserve(ctx context.Context, tx *gorm.DB, lines []inventory.Line) error
}

type pricingResolver interface {
	Resolve(ctx context.Context, q pricing.Quote) (*pricing.Pricing, error)
}

type gatewayResolver interface {
	Get(provider enums.PaymentProvider) (gateway.Gateway, error)
}

// Service executes checkout: one transaction that turns the persisted cart
// into an order with reserved stock, resolved pricing and a payment path.
type Service interface {
	Execute(ctx context.Context, input Input) (*Result, error)
}

type service struct {
	tx        txRunner
	cartRepo  cart.Repository
	orders    orders.Repository
	addresses address.Repository
	inventory inventoryReserver
	pricing   pricingResolver
	gateways  gatewayResolver
	outbox    outboxPublisher
	logg      *logger.Logger
	now       func() time.Time
}

// NewService builds the checkout service.
func NewService(
	tx txRunner,
	cartRepo cart.Repository,
	ordersRepo orders.Repository,
	addresses address.Repository,
	inventorySvc inventoryReserver,
	pricingSvc pricingResolver,
	gateways gatewayResolver,
	publisher outboxPublisher,
	logg *logger.Logger,
) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if cartRepo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if addresses == nil {
		return nil, fmt.Errorf("address repository required")
	}
	if inventorySvc == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	if pricingSvc == nil {
		return nil, fmt.Errorf("pricing service required")
	}
	if gateways == nil {
		return nil, fmt.Errorf("gateway registry required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		tx:        tx,
		cartRepo:  cartRepo,
		orders:    ordersRepo,
		addresses: addresses,
		inventory: inventorySvc,
		pricing:   pricingSvc,
		gateways:  gateways,
		outbox:    publisher,
		logg:      logg,
		now:       time.Now,
	}, nil
}

func (s *service) Execute(ctx context.Context, input Input) (*Result, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	// Resolve the gateway before any mutation so unknown providers fail clean.
	gw, err := s.gateways.Get(input.Provider)
	if err != nil {
		return nil, err
	}
	if input.ShippingAddressID == nil && input.ShippingAddress == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping address required")
	}

	var result *Result
	txErr := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		cartRepo := s.cartRepo.WithTx(tx)
		ordersRepo := s.orders.WithTx(tx)

		items, err := cartRepo.ListByUser(ctx, input.UserID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}
		if len(items) == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "cart contains no items")
		}

		shippingAddr, err := s.resolveAddress(ctx, tx, input)
		if err != nil {
			return err
		}
		if input.BillingAddressID != nil {
			if _, err := s.addresses.WithTx(tx).FindForUser(ctx, *input.BillingAddressID, input.UserID); err != nil {
				return pkgerrors.New(pkgerrors.CodeValidation, "billing address not found")
			}
		}

		quote := pricing.Quote{
			UserID:       input.UserID,
			CouponCode:   input.CouponCode,
			ReferralCode: input.ReferralCode,
		}
		reservations := make([]inventory.Line, 0, len(items))
		maxShippingDays := 0
		for _, item := range items {
			if item.Product == nil || !item.Product.IsActive {
				return pkgerrors.New(pkgerrors.CodeValidation, "cart contains an unavailable product").
					WithDetails(map[string]any{"product_id": item.ProductID})
			}
			quote.Items = append(quote.Items, pricing.Item{
				ProductID: item.ProductID,
				UnitPrice: item.Product.Price,
				Quantity:  item.Quantity,
			})
			reservations = append(reservations, inventory.Line{
				ProductID: item.ProductID,
				Quantity:  item.Quantity,
			})
			if item.Product.ShippingDays > maxShippingDays {
				maxShippingDays = item.Product.ShippingDays
			}
		}

		priced, err := s.pricing.Resolve(ctx, quote)
		if err != nil {
			return err
		}
		if err := s.inventory.Reserve(ctx, tx, reservations); err != nil {
			return err
		}

		orderNumber, err := ordersRepo.NextOrderNumber(ctx)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "allocate order number")
		}

		order := s.buildOrder(input, items, priced, shippingAddr, orderNumber, maxShippingDays)
		if _, err := ordersRepo.Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}

		intent, err := s.dispatchPayment(ctx, tx, ordersRepo, gw, order, input)
		if err != nil {
			return err
		}

		if err := cartRepo.Clear(ctx, input.UserID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
		}

		s.emitPostCheckout(ctx, tx, order, len(items))

		result = &Result{Order: order, Intent: intent}
		return nil
	})
	if txErr != nil {
		s.pruneShortStockLines(ctx, input.UserID, txErr)
		return nil, txErr
	}
	return result, nil
}

func (s *service) resolveAddress(ctx context.Context, tx *gorm.DB, input Input) (*models.Address, error) {
	repo := s.addresses.WithTx(tx)

	if input.ShippingAddressID != nil {
		addr, err := repo.FindForUser(ctx, *input.ShippingAddressID, input.UserID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping address not found")
		}
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load shipping address")
		}
		return addr, nil
	}

	payload := input.ShippingAddress
	country := strings.TrimSpace(payload.Country)
	if country == "" {
		country = "NP"
	}
	addr := &models.Address{
		ID:         uuid.New(),
		UserID:     input.UserID,
		FullName:   payload.FullName,
		Line1:      payload.Line1,
		Line2:      payload.Line2,
		City:       payload.City,
		Region:     payload.Region,
		PostalCode: payload.PostalCode,
		Country:    country,
		Phone:      payload.Phone,
	}
	if err := repo.Create(ctx, addr); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save shipping address")
	}
	return addr, nil
}

func (s *service) buildOrder(
	input Input,
	items []models.CartItem,
	priced *pricing.Pricing,
	shippingAddr *models.Address,
	orderNumber int64,
	maxShippingDays int,
) *models.Order {
	shippingMethod := strings.TrimSpace(input.ShippingMethod)
	if shippingMethod == "" {
		shippingMethod = "standard"
	}
	estimated := s.now().AddDate(0, 0, maxShippingDays)

	order := &models.Order{
		ID:                  uuid.New(),
		OrderNumber:         orderNumber,
		UserID:              input.UserID,
		Status:              enums.OrderStatusPending,
		PaymentStatus:       enums.PaymentStatusPending,
		PaymentProvider:     input.Provider,
		Subtotal:            priced.Subtotal,
		DiscountTotal:       priced.DiscountTotal,
		Total:               priced.Total,
		ShippingMethod:      shippingMethod,
		ShippingAddressID:   shippingAddr.ID,
		BillingAddressID:    input.BillingAddressID,
		EstimatedDeliveryAt: &estimated,
	}
	if priced.Coupon != nil {
		order.CouponID = &priced.Coupon.ID
	}
	if priced.ReferralCoupon != nil {
		order.ReferralCouponID = &priced.ReferralCoupon.ID
	}
	for _, item := range items {
		lineTotal := item.Product.Price.Mul(decimal.NewFromInt(int64(item.Quantity))).Round(2)
		order.Items = append(order.Items, models.OrderItem{
			ID:         uuid.New(),
			ProductID:  item.ProductID,
			SupplierID: item.Product.SupplierID,
			SKU:        item.Product.SKU,
			Title:      item.Product.Title,
			Quantity:   item.Quantity,
			UnitPrice:  item.Product.Price,
			LineTotal:  lineTotal,
		})
	}
	order.StatusEvents = append(order.StatusEvents, models.OrderStatusEvent{
		ID:     uuid.New(),
		Status: enums.OrderStatusPending,
		Note:   "order created",
	})
	return order
}

// dispatchPayment runs the provider-specific leg inside the checkout
// transaction. A gateway failure rolls the whole checkout back.
func (s *service) dispatchPayment(
	ctx context.Context,
	tx *gorm.DB,
	ordersRepo orders.Repository,
	gw gateway.Gateway,
	order *models.Order,
	input Input,
) (*gateway.Intent, error) {
	if order.Total.IsZero() {
		now := s.now()
		updates := map[string]any{
			"status":         enums.OrderStatusPaid,
			"payment_status": enums.PaymentStatusPaid,
		}
		if err := ordersRepo.UpdateFields(ctx, order.ID, updates); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark zero-balance order paid")
		}
		if err := ordersRepo.CreateStatusEvent(ctx, &models.OrderStatusEvent{
			OrderID: order.ID,
			Status:  enums.OrderStatusPaid,
			Note:    "zero-balance order",
		}); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record status event")
		}
		order.Status = enums.OrderStatusPaid
		order.PaymentStatus = enums.PaymentStatusPaid

		if err := s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data: payloads.OrderPaidEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				UserID:      order.UserID,
				Provider:    order.PaymentProvider,
				Amount:      order.Total,
				SettledAt:   now,
			},
		}); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order paid event")
		}
		return nil, nil
	}

	intent, err := gw.CreateIntent(ctx, order, gateway.IntentOptions{
		FrontendOrigin: input.FrontendOrigin,
		Email:          input.Email,
	})
	if err != nil {
		if appErr := pkgerrors.As(err); appErr != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "create payment intent")
	}

	payment := &models.Payment{
		ID:       uuid.New(),
		OrderID:  order.ID,
		Provider: order.PaymentProvider,
		Amount:   intent.Amount,
		Currency: intent.Currency,
		Status:   enums.PaymentRecordPending,
	}
	if intent.ProviderPaymentID != "" {
		ppid := intent.ProviderPaymentID
		payment.ProviderPaymentID = &ppid
	}
	if order.PaymentProvider == enums.ProviderCOD {
		payment.RawResponse = map[string]any{"method": "cod"}
	} else if len(intent.Raw) > 0 {
		payment.RawResponse = intent.Raw
	}
	if _, err := ordersRepo.CreatePayment(ctx, payment); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment record")
	}

	if order.PaymentProvider == enums.ProviderCOD {
		if err := ordersRepo.UpdateFields(ctx, order.ID, map[string]any{
			"status": enums.OrderStatusProcessing,
		}); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark cod order processing")
		}
		if err := ordersRepo.CreateStatusEvent(ctx, &models.OrderStatusEvent{
			OrderID: order.ID,
			Status:  enums.OrderStatusProcessing,
			Note:    "awaiting cod delivery",
		}); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record status event")
		}
		order.Status = enums.OrderStatusProcessing
	}

	order.Payments = append(order.Payments, *payment)
	return intent, nil
}

// emitPostCheckout publishes the order-created event and requests the
// confirmation notification. Both are best effort: a failed emit is logged
// and never aborts a checkout that already holds stock and a payment path.
func (s *service) emitPostCheckout(ctx context.Context, tx *gorm.DB, order *models.Order, itemCount int) {
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Data: payloads.OrderCreatedEvent{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			UserID:      order.UserID,
			Provider:    order.PaymentProvider,
			Total:       order.Total,
			ItemCount:   itemCount,
		},
	}); err != nil && s.logg != nil {
		s.logg.Error(ctx, "emit order created event", err)
	}

	orderID := order.ID
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventNotificationRequested,
		AggregateType: enums.AggregateNotification,
		AggregateID:   order.ID,
		Data: payloads.NotificationRequestedEvent{
			UserID:  order.UserID,
			OrderID: &orderID,
			Type:    enums.NotificationTypeOrderConfirmation,
			Title:   "Order confirmed",
			Message: fmt.Sprintf("Your order #%d has been placed.", order.OrderNumber),
		},
	}); err != nil && s.logg != nil {
		s.logg.Error(ctx, "emit order confirmation notification", err)
	}
}

// pruneShortStockLines drops the cart lines that caused an insufficient
// stock rejection, so the next checkout attempt starts from a cart that can
// succeed. Runs outside the rolled-back transaction, best effort.
func (s *service) pruneShortStockLines(ctx context.Context, userID uuid.UUID, err error) {
	appErr := pkgerrors.As(err)
	if appErr == nil || appErr.Code() != pkgerrors.CodeInsufficientStock {
		return
	}
	details, ok := appErr.Details().(map[string]any)
	if !ok {
		return
	}
	shortages, ok := details["shortages"].([]inventory.Shortage)
	if !ok {
		return
	}
	for _, shortage := range shortages {
		if pruneErr := s.cartRepo.RemoveByProduct(ctx, userID, shortage.ProductID); pruneErr != nil && s.logg != nil {
			s.logg.Error(ctx, "prune short-stock cart line", pruneErr)
		}
	}
}
