package checkout

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/pasalhub/pasalmart-backend/internal/address"
	"github.com/pasalhub/pasalmart-backend/internal/cart"
	"github.com/pasalhub/pasalmart-backend/internal/coupons"
	"github.com/pasalhub/pasalmart-backend/internal/inventory"
	"github.com/pasalhub/pasalmart-backend/internal/orders"
	"github.com/pasalhub/pasalmart-backend/internal/pricing"
	"github.com/pasalhub/pasalmart-backend/pkg/db/models"
	"github.com/pasalhub/pasalmart-backend/pkg/enums"
	pkgerrors "github.com/pasalhub/pasalmart-backend/pkg/errors"
	"github.com/pasalhub/pasalmart-backend/pkg/gateway"
	"github.com/pasalhub/pasalmart-backend/pkg/outbox"
)

func newCheckoutTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	statements := []string{`
CREATE TABLE IF NOT EXISTS products (
  id TEXT PRIMARY KEY,
  supplier_id TEXT NOT NULL,
  sku TEXT NOT NULL UNIQUE,
  title TEXT NOT NULL,
  description TEXT,
  price NUMERIC NOT NULL,
  shipping_days INTEGER NOT NULL DEFAULT 7,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS inventory_items (
  product_id TEXT PRIMARY KEY,
  quantity INTEGER NOT NULL DEFAULT 0,
  safety_stock INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS cart_items (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  quantity INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME,
  UNIQUE (user_id, product_id)
);`, `
CREATE TABLE IF NOT EXISTS saved_cart_items (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  quantity INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  UNIQUE (user_id, product_id)
);`, `
CREATE TABLE IF NOT EXISTS addresses (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  full_name TEXT NOT NULL,
  line1 TEXT NOT NULL,
  line2 TEXT,
  city TEXT NOT NULL,
  region TEXT,
  postal_code TEXT,
  country TEXT NOT NULL DEFAULT 'NP',
  phone TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS coupons (
  id TEXT PRIMARY KEY,
  code TEXT NOT NULL UNIQUE,
  discount_type TEXT NOT NULL,
  value NUMERIC NOT NULL,
  min_order_total NUMERIC,
  usage_limit INTEGER,
  per_user_limit INTEGER,
  is_referral INTEGER NOT NULL DEFAULT 0,
  is_active INTEGER NOT NULL DEFAULT 1,
  expires_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS coupon_redemptions (
  id TEXT PRIMARY KEY,
  coupon_id TEXT NOT NULL,
  order_id TEXT NOT NULL,
  user_id TEXT NOT NULL,
  created_at DATETIME,
  UNIQUE (coupon_id, order_id, user_id)
);`, `
CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  order_number INTEGER NOT NULL UNIQUE,
  user_id TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  payment_status TEXT NOT NULL DEFAULT 'pending',
  payment_provider TEXT NOT NULL,
  subtotal NUMERIC NOT NULL,
  discount_total NUMERIC NOT NULL DEFAULT 0,
  total NUMERIC NOT NULL,
  coupon_id TEXT,
  referral_coupon_id TEXT,
  shipping_method TEXT NOT NULL DEFAULT 'standard',
  shipping_address_id TEXT NOT NULL,
  billing_address_id TEXT,
  estimated_delivery_at DATETIME,
  supplier_order_ids TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS order_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  supplier_id TEXT NOT NULL,
  sku TEXT NOT NULL,
  title TEXT NOT NULL,
  quantity INTEGER NOT NULL,
  unit_price NUMERIC NOT NULL,
  line_total NUMERIC NOT NULL,
  created_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS order_status_events (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  status TEXT NOT NULL,
  note TEXT NOT NULL DEFAULT '',
  created_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS payments (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  provider TEXT NOT NULL,
  provider_payment_id TEXT,
  amount NUMERIC NOT NULL,
  currency TEXT NOT NULL DEFAULT 'NPR',
  status TEXT NOT NULL DEFAULT 'pending',
  raw_response TEXT,
  created_at DATETIME,
  updated_at DATETIME,
  UNIQUE (order_id, provider)
);`}
	for _, stmt := range statements {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

type sqliteTx struct {
	db *gorm.DB
}

func (r *sqliteTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type recordedEvent struct {
	event      outbox.DomainEvent
	ifNotExist bool
}

type fakePublisher struct {
	events  []recordedEvent
	failAll bool
}

func (p *fakePublisher) Emit(_ context.Context, _ *gorm.DB, event outbox.DomainEvent) error {
	if p.failAll {
		return assert.AnError
	}
	p.events = append(p.events, recordedEvent{event: event})
	return nil
}

func (p *fakePublisher) EmitIfNotExists(_ context.Context, _ *gorm.DB, event outbox.DomainEvent) error {
	if p.failAll {
		return assert.AnError
	}
	p.events = append(p.events, recordedEvent{event: event, ifNotExist: true})
	return nil
}

func (p *fakePublisher) byType(eventType enums.OutboxEventType) []recordedEvent {
	var out []recordedEvent
	for _, e := range p.events {
		if e.event.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

// stubGateway scripts CreateIntent for one provider.
type stubGateway struct {
	key    enums.PaymentProvider
	intent *gateway.Intent
	err    error
	calls  int
}

func (g *stubGateway) Key() enums.PaymentProvider { return g.key }

func (g *stubGateway) CreateIntent(_ context.Context, order *models.Order, _ gateway.IntentOptions) (*gateway.Intent, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	intent := *g.intent
	intent.Provider = g.key
	if intent.Amount.IsZero() {
		intent.Amount = order.Total
	}
	return &intent, nil
}

func (g *stubGateway) VerifyWebhook(context.Context, map[string]any, http.Header, []byte) (bool, *gateway.Normalized, error) {
	return false, nil, gateway.ErrNotSupported
}

func (g *stubGateway) Refund(context.Context, *models.Order, decimal.Decimal) (*gateway.RefundResult, error) {
	return nil, gateway.ErrNotSupported
}

func (g *stubGateway) FetchStatus(context.Context, string) (*gateway.StatusResult, error) {
	return nil, gateway.ErrNotSupported
}

type checkoutFixture struct {
	db        *gorm.DB
	svc       Service
	publisher *fakePublisher
	esewa     *stubGateway
	userID    uuid.UUID
	addressID uuid.UUID
}

func newCheckoutFixture(t *testing.T) *checkoutFixture {
	t.Helper()
	db := newCheckoutTestDB(t)

	esewa := &stubGateway{
		key: enums.ProviderEsewa,
		intent: &gateway.Intent{
			ProviderPaymentID: "txn-esewa-1",
			Currency:          "NPR",
			Raw:               map[string]any{"transaction_uuid": "txn-esewa-1"},
		},
	}
	cod := &stubGateway{
		key: enums.ProviderCOD,
		intent: &gateway.Intent{
			ProviderPaymentID: "cod_ref",
			Currency:          "NPR",
		},
	}
	registry := gateway.NewRegistryFromGateways(esewa, cod)

	inventorySvc, err := inventory.NewService(inventory.NewRepository(db))
	require.NoError(t, err)
	pricingSvc, err := pricing.NewService(coupons.NewRepository(db))
	require.NoError(t, err)

	publisher := &fakePublisher{}
	svc, err := NewService(
		&sqliteTx{db: db},
		cart.NewRepository(db),
		orders.NewRepository(db),
		address.NewRepository(db),
		inventorySvc,
		pricingSvc,
		registry,
		publisher,
		nil,
	)
	require.NoError(t, err)

	userID := uuid.New()
	addr := &models.Address{
		ID:       uuid.New(),
		UserID:   userID,
		FullName: "Maya Gurung",
		Line1:    "Lakeside 7",
		City:     "Pokhara",
		Country:  "NP",
	}
	require.NoError(t, db.Create(addr).Error)

	return &checkoutFixture{
		db:        db,
		svc:       svc,
		publisher: publisher,
		esewa:     esewa,
		userID:    userID,
		addressID: addr.ID,
	}
}

func (f *checkoutFixture) seedCartLine(t *testing.T, price string, stock, qty, shippingDays int) *models.Product {
	t.Helper()
	product := &models.Product{
		ID:           uuid.New(),
		SupplierID:   uuid.New(),
		SKU:          "SKU-" + uuid.NewString()[:8],
		Title:        "Himalayan Tea",
		Price:        decimal.RequireFromString(price),
		ShippingDays: shippingDays,
		IsActive:     true,
	}
	require.NoError(t, f.db.Create(product).Error)
	require.NoError(t, f.db.Create(&models.InventoryItem{ProductID: product.ID, Quantity: stock}).Error)
	require.NoError(t, f.db.Create(&models.CartItem{
		ID:        uuid.New(),
		UserID:    f.userID,
		ProductID: product.ID,
		Quantity:  qty,
	}).Error)
	return product
}

func (f *checkoutFixture) input(provider enums.PaymentProvider) Input {
	addrID := f.addressID
	return Input{
		UserID:            f.userID,
		Provider:          provider,
		ShippingAddressID: &addrID,
	}
}

func checkoutCode(t *testing.T, err error, want pkgerrors.Code) {
	t.Helper()
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr, "expected coded error, got %v", err)
	assert.Equal(t, want, appErr.Code())
}

func TestExecuteOnlineProvider(t *testing.T) {
	f := newCheckoutFixture(t)
	product := f.seedCartLine(t, "40.00", 10, 2, 5)

	result, err := f.svc.Execute(context.Background(), f.input(enums.ProviderEsewa))
	require.NoError(t, err)
	require.NotNil(t, result.Intent)
	assert.Equal(t, "txn-esewa-1", result.Intent.ProviderPaymentID)

	order := result.Order
	assert.Equal(t, int64(1), order.OrderNumber)
	assert.Equal(t, enums.OrderStatusPending, order.Status)
	assert.Equal(t, "80.00", order.Total.StringFixed(2))
	require.Len(t, order.Items, 1)
	assert.Equal(t, product.SKU, order.Items[0].SKU)
	require.NotNil(t, order.EstimatedDeliveryAt)

	// Stock decremented and cart cleared.
	var stock models.InventoryItem
	require.NoError(t, f.db.Where("product_id = ?", product.ID).First(&stock).Error)
	assert.Equal(t, 8, stock.Quantity)
	var cartCount int64
	require.NoError(t, f.db.Model(&models.CartItem{}).Count(&cartCount).Error)
	assert.Equal(t, int64(0), cartCount)

	// Pending payment row with the provider payment id.
	var payment models.Payment
	require.NoError(t, f.db.Where("order_id = ?", order.ID).First(&payment).Error)
	assert.Equal(t, enums.PaymentRecordPending, payment.Status)
	require.NotNil(t, payment.ProviderPaymentID)
	assert.Equal(t, "txn-esewa-1", *payment.ProviderPaymentID)

	require.Len(t, f.publisher.byType(enums.EventOrderCreated), 1)
	require.Len(t, f.publisher.byType(enums.EventNotificationRequested), 1)
	assert.Empty(t, f.publisher.byType(enums.EventOrderPaid))
}

func TestExecuteZeroBalanceBypassesGateway(t *testing.T) {
	f := newCheckoutFixture(t)
	f.seedCartLine(t, "50.00", 5, 1, 3)
	require.NoError(t, f.db.Create(&models.Coupon{
		ID:           uuid.New(),
		Code:         "free100",
		DiscountType: enums.DiscountPercent,
		Value:        decimal.NewFromInt(100),
		IsActive:     true,
	}).Error)

	input := f.input(enums.ProviderEsewa)
	input.CouponCode = "FREE100"

	result, err := f.svc.Execute(context.Background(), input)
	require.NoError(t, err)
	assert.Nil(t, result.Intent)
	assert.Equal(t, enums.OrderStatusPaid, result.Order.Status)
	assert.Equal(t, enums.PaymentStatusPaid, result.Order.PaymentStatus)
	assert.True(t, result.Order.Total.IsZero())

	assert.Equal(t, 0, f.esewa.calls)
	paid := f.publisher.byType(enums.EventOrderPaid)
	require.Len(t, paid, 1)
	assert.True(t, paid[0].ifNotExist)

	var events []models.OrderStatusEvent
	require.NoError(t, f.db.Where("order_id = ?", result.Order.ID).Find(&events).Error)
	notes := make([]string, 0, len(events))
	for _, e := range events {
		notes = append(notes, e.Note)
	}
	assert.Contains(t, notes, "zero-balance order")
}

func TestExecuteCODMarksProcessing(t *testing.T) {
	f := newCheckoutFixture(t)
	f.seedCartLine(t, "30.00", 5, 1, 3)

	result, err := f.svc.Execute(context.Background(), f.input(enums.ProviderCOD))
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusProcessing, result.Order.Status)
	assert.Equal(t, enums.PaymentStatusPending, result.Order.PaymentStatus)

	var payment models.Payment
	require.NoError(t, f.db.Where("order_id = ?", result.Order.ID).First(&payment).Error)
	assert.Equal(t, enums.PaymentRecordPending, payment.Status)
	assert.Equal(t, "cod", payment.RawResponse["method"])

	var events []models.OrderStatusEvent
	require.NoError(t, f.db.Where("order_id = ?", result.Order.ID).Find(&events).Error)
	notes := make([]string, 0, len(events))
	for _, e := range events {
		notes = append(notes, e.Note)
	}
	assert.Contains(t, notes, "awaiting cod delivery")
}

func TestExecuteInsufficientStockPrunesCartLine(t *testing.T) {
	f := newCheckoutFixture(t)
	short := f.seedCartLine(t, "10.00", 1, 3, 3)
	keep := f.seedCartLine(t, "20.00", 10, 1, 3)

	_, err := f.svc.Execute(context.Background(), f.input(enums.ProviderEsewa))
	checkoutCode(t, err, pkgerrors.CodeInsufficientStock)

	// Nothing committed.
	var orderCount int64
	require.NoError(t, f.db.Model(&models.Order{}).Count(&orderCount).Error)
	assert.Equal(t, int64(0), orderCount)
	var stock models.InventoryItem
	require.NoError(t, f.db.Where("product_id = ?", keep.ID).First(&stock).Error)
	assert.Equal(t, 10, stock.Quantity)

	// The offending line is pruned, the rest of the cart survives.
	var remaining []models.CartItem
	require.NoError(t, f.db.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	assert.Equal(t, keep.ID, remaining[0].ProductID)
	_ = short
}

func TestExecuteEmptyCart(t *testing.T) {
	f := newCheckoutFixture(t)

	_, err := f.svc.Execute(context.Background(), f.input(enums.ProviderEsewa))
	checkoutCode(t, err, pkgerrors.CodeValidation)
}

func TestExecuteUnknownProviderBeforeMutation(t *testing.T) {
	f := newCheckoutFixture(t)
	product := f.seedCartLine(t, "10.00", 5, 1, 3)

	_, err := f.svc.Execute(context.Background(), f.input(enums.PaymentProvider("wire")))
	checkoutCode(t, err, pkgerrors.CodeValidation)

	var stock models.InventoryItem
	require.NoError(t, f.db.Where("product_id = ?", product.ID).First(&stock).Error)
	assert.Equal(t, 5, stock.Quantity)
	var cartCount int64
	require.NoError(t, f.db.Model(&models.CartItem{}).Count(&cartCount).Error)
	assert.Equal(t, int64(1), cartCount)
}

func TestExecuteGatewayFailureRollsBack(t *testing.T) {
	f := newCheckoutFixture(t)
	product := f.seedCartLine(t, "10.00", 5, 2, 3)
	f.esewa.err = assert.AnError

	_, err := f.svc.Execute(context.Background(), f.input(enums.ProviderEsewa))
	checkoutCode(t, err, pkgerrors.CodeGateway)

	var orderCount int64
	require.NoError(t, f.db.Model(&models.Order{}).Count(&orderCount).Error)
	assert.Equal(t, int64(0), orderCount)
	var stock models.InventoryItem
	require.NoError(t, f.db.Where("product_id = ?", product.ID).First(&stock).Error)
	assert.Equal(t, 5, stock.Quantity)
	var cartCount int64
	require.NoError(t, f.db.Model(&models.CartItem{}).Count(&cartCount).Error)
	assert.Equal(t, int64(1), cartCount)
}

func TestExecuteInlineAddressCreatesRow(t *testing.T) {
	f := newCheckoutFixture(t)
	f.seedCartLine(t, "10.00", 5, 1, 3)

	input := f.input(enums.ProviderCOD)
	input.ShippingAddressID = nil
	input.ShippingAddress = &AddressInput{
		FullName: "Binod Rai",
		Line1:    "Thamel Marg 4",
		City:     "Kathmandu",
	}

	result, err := f.svc.Execute(context.Background(), input)
	require.NoError(t, err)

	var addr models.Address
	require.NoError(t, f.db.Where("id = ?", result.Order.ShippingAddressID).First(&addr).Error)
	assert.Equal(t, "Binod Rai", addr.FullName)
	assert.Equal(t, "NP", addr.Country)
}
