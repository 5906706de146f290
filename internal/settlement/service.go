package settlement

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/pasalhub/pasalmart-backend/internal/coupons"
	"github.com/pasalhub/pasalmart-backend/internal/orders"
	"github.com/pasalhub/pasalmart-backend/pkg/db/models"
	"github.com/pasalhub/pasalmart-backend/pkg/enums"
	pkgerrors "github.com/pasalhub/pasalmart-backend/pkg/errors"
	"github.com/pasalhub/pasalmart-backend/pkg/gateway"
	"github.com/pasalhub/pasalmart-backend/pkg/logger"
	"github.com/pasalhub/pasalmart-backend/pkg/metrics"
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

type gatewayResolver interface {
	Get(provider enums.PaymentProvider) (gateway.Gateway, error)
}

type inventoryReleaser interface {
	Release(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error
}

// SettleInput is the provider-agnostic settlement request shared by webhook
// push, verify pull and the reconcile sweep.
type SettleInput struct {
	OrderID           uuid.UUID
	Provider          enums.PaymentProvider
	Succeeded         bool
	Status            string
	ProviderPaymentID string
	Raw               map[string]any
}

// Outcome reports what one settlement call actually changed.
type Outcome struct {
	Order        *models.Order
	Payment      *models.Payment
	Transitioned bool
}

// Service settles payments exactly once regardless of how many webhook
// retries, verify calls and reconcile sweeps observe the same payment.
type Service interface {
	Settle(ctx context.Context, input SettleInput) (*Outcome, error)
	HandleWebhook(ctx context.Context, provider enums.PaymentProvider, orderID uuid.UUID, payload map[string]any, headers http.Header, rawBody []byte) (*Outcome, error)
	VerifyPayment(ctx context.Context, provider enums.PaymentProvider, orderID uuid.UUID, payload map[string]any) (*Outcome, error)
	Refund(ctx context.Context, orderID uuid.UUID, amount decimal.Decimal) (*Outcome, error)
}

type service struct {
	tx        txRunner
	orders    orders.Repository
	coupons   coupons.Repository
	gateways  gatewayResolver
	outbox    outboxPublisher
	inventory inventoryReleaser
	metrics   *metrics.PaymentMetrics
	logg      *logger.Logger
	now       func() time.Time
}

// NewService builds the settlement service.
func NewService(
	tx txRunner,
	ordersRepo orders.Repository,
	couponsRepo coupons.Repository,
	gateways gatewayResolver,
	publisher outboxPublisher,
	inventorySvc inventoryReleaser,
	paymentMetrics *metrics.PaymentMetrics,
	logg *logger.Logger,
) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if couponsRepo == nil {
		return nil, fmt.Errorf("coupons repository required")
	}
	if gateways == nil {
		return nil, fmt.Errorf("gateway registry required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if inventorySvc == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	return &service{
		tx:        tx,
		orders:    ordersRepo,
		coupons:   couponsRepo,
		gateways:  gateways,
		outbox:    publisher,
		inventory: inventorySvc,
		metrics:   paymentMetrics,
		logg:      logg,
		now:       time.Now,
	}, nil
}

// HandleWebhook is the push boundary. Unknown providers and invalid
// signatures are rejected before any state changes.
func (s *service) HandleWebhook(ctx context.Context, provider enums.PaymentProvider, orderID uuid.UUID, payload map[string]any, headers http.Header, rawBody []byte) (*Outcome, error) {
	gw, err := s.gateways.Get(provider)
	if err != nil {
		s.incRejected(provider, "unknown_provider")
		return nil, err
	}

	ok, normalized, err := gw.VerifyWebhook(ctx, payload, headers, rawBody)
	if err != nil {
		s.incRejected(provider, "verify_error")
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "verify webhook")
	}
	if normalized != nil && normalized.Status == "invalid_signature" {
		s.incRejected(provider, "signature_invalid")
		return nil, pkgerrors.New(pkgerrors.CodeSignatureInvalid, "webhook signature verification failed")
	}
	if normalized == nil {
		s.incRejected(provider, "empty_payload")
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "webhook payload could not be read")
	}

	return s.Settle(ctx, SettleInput{
		OrderID:           orderID,
		Provider:          provider,
		Succeeded:         ok,
		Status:            normalized.Status,
		ProviderPaymentID: normalized.ProviderPaymentID,
		Raw:               normalized.Raw,
	})
}

// VerifyPayment is the pull boundary used by payment return URLs: ask the
// provider about the payload, then settle on its answer.
func (s *service) VerifyPayment(ctx context.Context, provider enums.PaymentProvider, orderID uuid.UUID, payload map[string]any) (*Outcome, error) {
	gw, err := s.gateways.Get(provider)
	if err != nil {
		return nil, err
	}

	ok, normalized, err := gw.VerifyWebhook(ctx, payload, http.Header{}, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "verify payment")
	}
	if normalized == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment verification returned no data")
	}

	return s.Settle(ctx, SettleInput{
		OrderID:           orderID,
		Provider:          provider,
		Succeeded:         ok,
		Status:            normalized.Status,
		ProviderPaymentID: normalized.ProviderPaymentID,
		Raw:               normalized.Raw,
	})
}

// Settle applies one observed provider outcome. Raw responses merge, the
// paid transition happens at most once, and redemption rows are keyed so
// retries collapse onto the first write.
func (s *service) Settle(ctx context.Context, input SettleInput) (*Outcome, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	var outcome *Outcome
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ordersRepo := s.orders.WithTx(tx)

		order, err := ordersRepo.FindByID(ctx, input.OrderID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}

		payment, err := s.resolvePayment(ctx, ordersRepo, order, input)
		if err != nil {
			return err
		}

		merged := payment.RawResponse.Merge(input.Raw)
		updates := map[string]any{"raw_response": merged}
		if payment.ProviderPaymentID == nil && input.ProviderPaymentID != "" {
			ppid := input.ProviderPaymentID
			updates["provider_payment_id"] = ppid
			payment.ProviderPaymentID = &ppid
		}
		payment.RawResponse = merged

		if input.Succeeded {
			return s.settleSuccess(ctx, tx, ordersRepo, order, payment, updates, &outcome)
		}
		return s.settleFailure(ctx, tx, ordersRepo, order, payment, updates, input, &outcome)
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// resolvePayment finds the payment row for this observation, falling back to
// the provider payment id for payloads that arrive without provider match,
// and creates a pending row when checkout never wrote one.
func (s *service) resolvePayment(ctx context.Context, ordersRepo orders.Repository, order *models.Order, input SettleInput) (*models.Payment, error) {
	payment, err := ordersRepo.FindPaymentByOrderAndProvider(ctx, order.ID, input.Provider)
	if err == nil {
		return payment, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}

	if input.ProviderPaymentID != "" {
		payment, err = ordersRepo.FindPaymentByProviderPaymentID(ctx, input.Provider, input.ProviderPaymentID)
		if err == nil {
			return payment, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
		}
	}

	created := &models.Payment{
		ID:       uuid.New(),
		OrderID:  order.ID,
		Provider: input.Provider,
		Amount:   order.Total,
		Status:   enums.PaymentRecordPending,
	}
	if input.ProviderPaymentID != "" {
		ppid := input.ProviderPaymentID
		created.ProviderPaymentID = &ppid
	}
	if _, err := ordersRepo.CreatePayment(ctx, created); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment")
	}
	return created, nil
}

func (s *service) settleSuccess(
	ctx context.Context,
	tx *gorm.DB,
	ordersRepo orders.Repository,
	order *models.Order,
	payment *models.Payment,
	updates map[string]any,
	outcome **Outcome,
) error {
	updates["status"] = enums.PaymentRecordSucceeded
	if err := ordersRepo.UpdatePayment(ctx, payment.ID, updates); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment")
	}
	payment.Status = enums.PaymentRecordSucceeded

	transitioned := order.Status != enums.OrderStatusPaid && order.PaymentStatus != enums.PaymentStatusPaid
	if transitioned {
		if err := ordersRepo.UpdateFields(ctx, order.ID, map[string]any{
			"status":         enums.OrderStatusPaid,
			"payment_status": enums.PaymentStatusPaid,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order paid")
		}
		if err := ordersRepo.CreateStatusEvent(ctx, &models.OrderStatusEvent{
			OrderID: order.ID,
			Status:  enums.OrderStatusPaid,
			Note:    "payment settled",
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record status event")
		}
		order.Status = enums.OrderStatusPaid
		order.PaymentStatus = enums.PaymentStatusPaid
	}

	if err := s.recordRedemptions(ctx, tx, order); err != nil {
		return err
	}

	ppid := ""
	if payment.ProviderPaymentID != nil {
		ppid = *payment.ProviderPaymentID
	}
	if err := s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Data: payloads.OrderPaidEvent{
			OrderID:           order.ID,
			OrderNumber:       order.OrderNumber,
			UserID:            order.UserID,
			Provider:          payment.Provider,
			ProviderPaymentID: ppid,
			Amount:            payment.Amount,
			SettledAt:         s.now(),
		},
	}); err != nil && s.logg != nil {
		s.logg.Error(ctx, "emit order paid event", err)
	}

	if transitioned {
		orderID := order.ID
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventNotificationRequested,
			AggregateType: enums.AggregateNotification,
			AggregateID:   order.ID,
			Data: payloads.NotificationRequestedEvent{
				UserID:  order.UserID,
				OrderID: &orderID,
				Type:    enums.NotificationTypePaymentReceipt,
				Title:   "Payment received",
				Message: fmt.Sprintf("Payment for order #%d was received.", order.OrderNumber),
			},
		}); err != nil && s.logg != nil {
			s.logg.Error(ctx, "emit payment receipt notification", err)
		}
		if s.metrics != nil {
			s.metrics.IncSettled(payment.Provider.String())
		}
	}

	*outcome = &Outcome{Order: order, Payment: payment, Transitioned: transitioned}
	return nil
}

func (s *service) settleFailure(
	ctx context.Context,
	tx *gorm.DB,
	ordersRepo orders.Repository,
	order *models.Order,
	payment *models.Payment,
	updates map[string]any,
	input SettleInput,
	outcome **Outcome,
) error {
	// A failed observation never claws back a settled payment.
	if payment.Status == enums.PaymentRecordSucceeded || payment.Status == enums.PaymentRecordRefunded {
		*outcome = &Outcome{Order: order, Payment: payment, Transitioned: false}
		return nil
	}

	updates["status"] = enums.PaymentRecordFailed
	if err := ordersRepo.UpdatePayment(ctx, payment.ID, updates); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment")
	}
	payment.Status = enums.PaymentRecordFailed

	if order.PaymentStatus != enums.PaymentStatusPaid {
		if err := ordersRepo.UpdateFields(ctx, order.ID, map[string]any{
			"payment_status": enums.PaymentStatusFailed,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payment failed")
		}
		order.PaymentStatus = enums.PaymentStatusFailed
	}

	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPaymentFailed,
		AggregateType: enums.AggregatePayment,
		AggregateID:   payment.ID,
		Data: payloads.PaymentFailedEvent{
			OrderID:  order.ID,
			UserID:   order.UserID,
			Provider: payment.Provider,
			Reason:   input.Status,
		},
	}); err != nil && s.logg != nil {
		s.logg.Error(ctx, "emit payment failed event", err)
	}
	if s.metrics != nil {
		s.metrics.IncFailed(payment.Provider.String())
	}

	*outcome = &Outcome{Order: order, Payment: payment, Transitioned: false}
	return nil
}

// recordRedemptions writes the idempotent redemption rows for whichever
// coupons the order carries.
func (s *service) recordRedemptions(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	repo := s.coupons.WithTx(tx)
	for _, couponID := range []*uuid.UUID{order.CouponID, order.ReferralCouponID} {
		if couponID == nil {
			continue
		}
		if _, err := repo.GetOrCreateRedemption(ctx, *couponID, order.ID, order.UserID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record coupon redemption")
		}
	}
	return nil
}

// Refund processes an admin refund through the provider, returns reserved
// stock, and moves both payment and order to refunded.
func (s *service) Refund(ctx context.Context, orderID uuid.UUID, amount decimal.Decimal) (*Outcome, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.PaymentStatus != enums.PaymentStatusPaid {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only paid orders can be refunded")
	}
	if amount.IsZero() {
		amount = order.Total
	}

	gw, err := s.gateways.Get(order.PaymentProvider)
	if err != nil {
		return nil, err
	}
	result, err := gw.Refund(ctx, order, amount)
	if errors.Is(err, gateway.ErrNotSupported) {
		return nil, pkgerrors.New(pkgerrors.CodeNotSupported, "provider does not support refunds").
			WithDetails(map[string]any{"provider": order.PaymentProvider.String()})
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "refund payment")
	}

	var outcome *Outcome
	txErr := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ordersRepo := s.orders.WithTx(tx)

		payment, err := ordersRepo.FindPaymentByOrderAndProvider(ctx, order.ID, order.PaymentProvider)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
		}

		refundRaw := map[string]any{
			"status":    result.Status,
			"reference": result.Reference,
		}
		if len(result.Raw) > 0 {
			refundRaw["response"] = result.Raw
		}
		merged := payment.RawResponse.Merge(map[string]any{"refund": refundRaw})
		if err := ordersRepo.UpdatePayment(ctx, payment.ID, map[string]any{
			"status":       enums.PaymentRecordRefunded,
			"raw_response": merged,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment")
		}
		payment.Status = enums.PaymentRecordRefunded
		payment.RawResponse = merged

		if err := ordersRepo.UpdateFields(ctx, order.ID, map[string]any{
			"status":         enums.OrderStatusRefunded,
			"payment_status": enums.PaymentStatusRefunded,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order refunded")
		}
		if err := ordersRepo.CreateStatusEvent(ctx, &models.OrderStatusEvent{
			OrderID: order.ID,
			Status:  enums.OrderStatusRefunded,
			Note:    "refund issued",
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record status event")
		}
		order.Status = enums.OrderStatusRefunded
		order.PaymentStatus = enums.PaymentStatusRefunded

		for _, item := range order.Items {
			if err := s.inventory.Release(ctx, tx, item.ProductID, item.Quantity); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release inventory")
			}
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentRefunded,
			AggregateType: enums.AggregatePayment,
			AggregateID:   payment.ID,
			Data: payloads.PaymentRefundedEvent{
				OrderID:   order.ID,
				UserID:    order.UserID,
				Provider:  payment.Provider,
				Amount:    amount,
				Reference: result.Reference,
			},
		}); err != nil && s.logg != nil {
			s.logg.Error(ctx, "emit payment refunded event", err)
		}

		outcome = &Outcome{Order: order, Payment: payment, Transitioned: true}
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}
	if s.metrics != nil {
		s.metrics.IncRefunded(order.PaymentProvider.String())
	}
	return outcome, nil
}

func (s *service) incRejected(provider enums.PaymentProvider, reason string) {
	if s.metrics != nil {
		s.metrics.IncRejected(provider.String(), reason)
	}
}
