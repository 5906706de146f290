package routes

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/pasalhub/pasalmart-backend/internal/address"
	"github.com/pasalhub/pasalmart-backend/internal/cart"
	"github.com/pasalhub/pasalmart-backend/internal/checkout"
	"github.com/pasalhub/pasalmart-backend/internal/notifications"
	internalorders "github.com/pasalhub/pasalmart-backend/internal/orders"
	"github.com/pasalhub/pasalmart-backend/internal/products"
	"github.com/pasalhub/pasalmart-backend/internal/settlement"
	"github.com/pasalhub/pasalmart-backend/pkg/config"
	"github.com/pasalhub/pasalmart-backend/pkg/db/models"
	"github.com/pasalhub/pasalmart-backend/pkg/enums"
	"github.com/pasalhub/pasalmart-backend/pkg/gateway"
	"github.com/pasalhub/pasalmart-backend/pkg/logger"
)

type stubProductsService struct {
	product *models.Product
}

func (s stubProductsService) Get(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	return s.product, nil
}

func (s stubProductsService) List(ctx context.Context, params products.ListParams) (*products.ListResult, error) {
	return &products.ListResult{Items: []models.Product{*s.product}}, nil
}

type stubCartService struct {
	added      []uuid.UUID
	lastUserID uuid.UUID
}

func (s *stubCartService) List(ctx context.Context, userID uuid.UUID) (*cart.View, error) {
	s.lastUserID = userID
	return &cart.View{Subtotal: decimal.Zero}, nil
}

func (s *stubCartService) Add(ctx context.Context, userID, productID uuid.UUID, quantity int) error {
	s.lastUserID = userID
	s.added = append(s.added, productID)
	return nil
}

func (s *stubCartService) SetQuantity(ctx context.Context, userID, productID uuid.UUID, quantity int) error {
	return nil
}

func (s *stubCartService) Remove(ctx context.Context, userID, productID uuid.UUID) error {
	return nil
}

func (s *stubCartService) Clear(ctx context.Context, userID uuid.UUID) error {
	return nil
}

func (s *stubCartService) SaveForLater(ctx context.Context, userID, productID uuid.UUID) error {
	return nil
}

func (s *stubCartService) MoveToCart(ctx context.Context, userID, productID uuid.UUID) error {
	return nil
}

type stubCheckoutService struct {
	lastInput checkout.Input
}

func (s *stubCheckoutService) Execute(ctx context.Context, input checkout.Input) (*checkout.Result, error) {
	s.lastInput = input
	return &checkout.Result{
		Order:  &models.Order{ID: uuid.New(), OrderNumber: 1001},
		Intent: &gateway.Intent{Provider: input.Provider},
	}, nil
}

type stubSettlementService struct {
	refunded    []uuid.UUID
	webhooked   bool
	lastHeaders http.Header
	lastRawBody []byte
}

func (s *stubSettlementService) Settle(ctx context.Context, input settlement.SettleInput) (*settlement.Outcome, error) {
	return &settlement.Outcome{Order: &models.Order{}}, nil
}

func (s *stubSettlementService) HandleWebhook(ctx context.Context, provider enums.PaymentProvider, orderID uuid.UUID, payload map[string]any, headers http.Header, rawBody []byte) (*settlement.Outcome, error) {
	s.webhooked = true
	s.lastHeaders = headers
	s.lastRawBody = rawBody
	return &settlement.Outcome{Order: &models.Order{ID: orderID}}, nil
}

func (s *stubSettlementService) VerifyPayment(ctx context.Context, provider enums.PaymentProvider, orderID uuid.UUID, payload map[string]any) (*settlement.Outcome, error) {
	return &settlement.Outcome{Order: &models.Order{ID: orderID, PaymentStatus: enums.PaymentStatusPaid}}, nil
}

func (s *stubSettlementService) Refund(ctx context.Context, orderID uuid.UUID, amount decimal.Decimal) (*settlement.Outcome, error) {
	s.refunded = append(s.refunded, orderID)
	return &settlement.Outcome{Order: &models.Order{ID: orderID}, Payment: &models.Payment{}}, nil
}

type stubOrdersService struct{}

func (stubOrdersService) Get(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error) {
	return &models.Order{ID: orderID, UserID: userID}, nil
}

func (stubOrdersService) GetByNumber(ctx context.Context, userID uuid.UUID, number int64) (*models.Order, error) {
	return &models.Order{OrderNumber: number}, nil
}

func (stubOrdersService) List(ctx context.Context, userID uuid.UUID, filters internalorders.Filters) ([]models.Order, error) {
	return []models.Order{}, nil
}

func (stubOrdersService) UpdateStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus, note string) (*models.Order, error) {
	return &models.Order{ID: orderID, Status: status}, nil
}

type stubAddressRepo struct {
	created []models.Address
}

func (s *stubAddressRepo) WithTx(tx *gorm.DB) address.Repository { return s }

func (s *stubAddressRepo) FindForUser(ctx context.Context, id, userID uuid.UUID) (*models.Address, error) {
	return &models.Address{ID: id, UserID: userID}, nil
}

func (s *stubAddressRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Address, error) {
	return []models.Address{}, nil
}

func (s *stubAddressRepo) Create(ctx context.Context, addr *models.Address) error {
	addr.ID = uuid.New()
	s.created = append(s.created, *addr)
	return nil
}

func (s *stubAddressRepo) Delete(ctx context.Context, id, userID uuid.UUID) error { return nil }

type stubNotificationsService struct{}

func (stubNotificationsService) Record(ctx context.Context, input notifications.RecordInput) (*models.Notification, bool, error) {
	return &models.Notification{}, true, nil
}

func (stubNotificationsService) List(ctx context.Context, params notifications.ListParams) (*notifications.ListResult, error) {
	return &notifications.ListResult{Items: []models.Notification{}}, nil
}

type routerFixture struct {
	handler    http.Handler
	cart       *stubCartService
	checkout   *stubCheckoutService
	settlement *stubSettlementService
	addresses  *stubAddressRepo
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()

	logg := logger.New(logger.Options{ServiceName: "router-test", Output: io.Discard})
	cfg := &config.Config{}
	cfg.App.Env = "test"

	fixture := &routerFixture{
		cart:       &stubCartService{},
		checkout:   &stubCheckoutService{},
		settlement: &stubSettlementService{},
		addresses:  &stubAddressRepo{},
	}
	fixture.handler = NewRouter(Deps{
		Config: cfg,
		Logger: logg,
		Products: stubProductsService{product: &models.Product{
			ID:    uuid.New(),
			SKU:   "SKU-1",
			Title: "USB Cable",
			Price: decimal.NewFromInt(450),
		}},
		Cart:          fixture.cart,
		Checkout:      fixture.checkout,
		Settlement:    fixture.settlement,
		Orders:        stubOrdersService{},
		Addresses:     fixture.addresses,
		Notifications: stubNotificationsService{},
	})
	return fixture
}

func doRequest(t *testing.T, handler http.Handler, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func identityHeaders(userID uuid.UUID) map[string]string {
	return map[string]string{"X-User-ID": userID.String()}
}

func TestHealthLive(t *testing.T) {
	fixture := newRouterFixture(t)

	rec := doRequest(t, fixture.handler, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "test", rec.Header().Get("X-PasalMart-Env"))
}

func TestCatalogIsPublic(t *testing.T) {
	fixture := newRouterFixture(t)

	rec := doRequest(t, fixture.handler, http.MethodGet, "/api/v1/products", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIdentityRequired(t *testing.T) {
	fixture := newRouterFixture(t)

	rec := doRequest(t, fixture.handler, http.MethodGet, "/api/v1/cart", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(t, fixture.handler, http.MethodGet, "/api/v1/cart", "", map[string]string{"X-User-ID": "not-a-uuid"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCartRoutes(t *testing.T) {
	fixture := newRouterFixture(t)
	userID := uuid.New()

	rec := doRequest(t, fixture.handler, http.MethodGet, "/api/v1/cart", "", identityHeaders(userID))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, userID, fixture.cart.lastUserID)

	productID := uuid.New()
	body := `{"product_id":"` + productID.String() + `","quantity":2}`
	rec = doRequest(t, fixture.handler, http.MethodPost, "/api/v1/cart/items", body, identityHeaders(userID))
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, fixture.cart.added, 1)
	assert.Equal(t, productID, fixture.cart.added[0])
}

func TestCheckoutRoute(t *testing.T) {
	fixture := newRouterFixture(t)
	userID := uuid.New()
	addressID := uuid.New()

	body := `{"provider":"esewa","shipping_address_id":"` + addressID.String() + `"}`
	rec := doRequest(t, fixture.handler, http.MethodPost, "/api/v1/checkout", body, identityHeaders(userID))
	require.Equal(t, http.StatusCreated, rec.Code)

	assert.Equal(t, userID, fixture.checkout.lastInput.UserID)
	assert.Equal(t, enums.ProviderEsewa, fixture.checkout.lastInput.Provider)
	require.NotNil(t, fixture.checkout.lastInput.ShippingAddressID)
	assert.Equal(t, addressID, *fixture.checkout.lastInput.ShippingAddressID)

	var envelope struct {
		Data struct {
			Intent json.RawMessage `json:"payment_intent"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.NotEmpty(t, envelope.Data.Intent)
}

func TestWebhookBypassesIdentity(t *testing.T) {
	fixture := newRouterFixture(t)
	orderID := uuid.New()

	target := "/api/v1/payments/webhook?provider=khalti&order_id=" + orderID.String()
	rec := doRequest(t, fixture.handler, http.MethodPost, target, `{"status":"Completed"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, fixture.settlement.webhooked)
	assert.JSONEq(t, `{"status":"Completed"}`, string(fixture.settlement.lastRawBody))
}

func TestVerifyPaymentRoute(t *testing.T) {
	fixture := newRouterFixture(t)
	orderID := uuid.New()

	target := "/api/v1/payments/verify?provider=esewa&order_id=" + orderID.String() + "&ref_id=REF-1"
	rec := doRequest(t, fixture.handler, http.MethodGet, target, "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRefundRequiresStaffRole(t *testing.T) {
	fixture := newRouterFixture(t)
	userID := uuid.New()
	orderID := uuid.New()
	target := "/api/v1/admin/payments/" + orderID.String() + "/refund"

	rec := doRequest(t, fixture.handler, http.MethodPost, target, `{"amount":"100"}`, identityHeaders(userID))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, fixture.settlement.refunded)

	headers := identityHeaders(userID)
	headers["X-User-Role"] = "staff"
	rec = doRequest(t, fixture.handler, http.MethodPost, target, `{"amount":"100"}`, headers)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, fixture.settlement.refunded, 1)
	assert.Equal(t, orderID, fixture.settlement.refunded[0])
}

func TestCreateAddressRoute(t *testing.T) {
	fixture := newRouterFixture(t)
	userID := uuid.New()

	body := `{"full_name":"Sita Sharma","line1":"Baneshwor","city":"Kathmandu"}`
	rec := doRequest(t, fixture.handler, http.MethodPost, "/api/v1/addresses", body, identityHeaders(userID))
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, fixture.addresses.created, 1)
	assert.Equal(t, userID, fixture.addresses.created[0].UserID)
	assert.Equal(t, "NP", fixture.addresses.created[0].Country)
}
