package cron

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pasalhub/pasalmart-backend/internal/settlement"
	"github.com/pasalhub/pasalmart-backend/pkg/db/models"
	"github.com/pasalhub/pasalmart-backend/pkg/enums"
	"github.com/pasalhub/pasalmart-backend/pkg/gateway"
	"github.com/pasalhub/pasalmart-backend/pkg/logger"
)

type fakePaymentReader struct {
	payments   []models.Payment
	err        error
	lastCutoff time.Time
}

func (f *fakePaymentReader) ListPendingPayments(_ context.Context, olderThan time.Time, _ int) ([]models.Payment, error) {
	f.lastCutoff = olderThan
	return f.payments, f.err
}

type statusGateway struct {
	key    enums.PaymentProvider
	status *gateway.StatusResult
	err    error
}

func (g *statusGateway) Key() enums.PaymentProvider { return g.key }

func (g *statusGateway) CreateIntent(context.Context, *models.Order, gateway.IntentOptions) (*gateway.Intent, error) {
	return nil, errors.New("not used")
}

func (g *statusGateway) VerifyWebhook(context.Context, map[string]any, http.Header, []byte) (bool, *gateway.Normalized, error) {
	return false, nil, errors.New("not used")
}

func (g *statusGateway) Refund(context.Context, *models.Order, decimal.Decimal) (*gateway.RefundResult, error) {
	return nil, errors.New("not used")
}

func (g *statusGateway) FetchStatus(context.Context, string) (*gateway.StatusResult, error) {
	return g.status, g.err
}

type fakeSettler struct {
	inputs []settlement.SettleInput
	err    error
}

func (f *fakeSettler) Settle(_ context.Context, input settlement.SettleInput) (*settlement.Outcome, error) {
	f.inputs = append(f.inputs, input)
	if f.err != nil {
		return nil, f.err
	}
	return &settlement.Outcome{Transitioned: input.Succeeded}, nil
}

func pendingPayment(provider enums.PaymentProvider, ppid string) models.Payment {
	payment := models.Payment{
		ID:       uuid.New(),
		OrderID:  uuid.New(),
		Provider: provider,
		Status:   enums.PaymentRecordPending,
	}
	if ppid != "" {
		payment.ProviderPaymentID = &ppid
	}
	return payment
}

func newReconcileJob(t *testing.T, reader *fakePaymentReader, gateways gatewayResolver, settler *fakeSettler) *reconcilePaymentsJob {
	t.Helper()
	jobIface, err := NewReconcilePaymentsJob(ReconcilePaymentsJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "cron-test"}),
		Payments:   reader,
		Gateways:   gateways,
		Settlement: settler,
	})
	require.NoError(t, err)
	job, ok := jobIface.(*reconcilePaymentsJob)
	require.True(t, ok)
	job.now = func() time.Time { return time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC) }
	return job
}

type fixedResolver struct {
	gateways map[enums.PaymentProvider]gateway.Gateway
}

func (r fixedResolver) Get(provider enums.PaymentProvider) (gateway.Gateway, error) {
	gw, ok := r.gateways[provider]
	if !ok {
		return nil, errors.New("unknown provider")
	}
	return gw, nil
}

func TestReconcileSettlesRemoteSuccess(t *testing.T) {
	reader := &fakePaymentReader{payments: []models.Payment{pendingPayment(enums.ProviderEsewa, "txn-1")}}
	settler := &fakeSettler{}
	resolver := fixedResolver{gateways: map[enums.PaymentProvider]gateway.Gateway{
		enums.ProviderEsewa: &statusGateway{
			key:    enums.ProviderEsewa,
			status: &gateway.StatusResult{Status: "complete", Raw: map[string]any{"ref_id": "R1"}},
		},
	}}
	job := newReconcileJob(t, reader, resolver, settler)

	require.NoError(t, job.Run(context.Background()))
	require.Len(t, settler.inputs, 1)
	input := settler.inputs[0]
	assert.True(t, input.Succeeded)
	assert.Equal(t, "complete", input.Status)
	assert.Equal(t, "txn-1", input.ProviderPaymentID)
	assert.Equal(t, "R1", input.Raw["ref_id"])
	assert.Equal(t, time.Date(2026, 6, 1, 11, 45, 0, 0, time.UTC), reader.lastCutoff)
}

func TestReconcileSettlesTerminalFailure(t *testing.T) {
	reader := &fakePaymentReader{payments: []models.Payment{pendingPayment(enums.ProviderKhalti, "txn-2")}}
	settler := &fakeSettler{}
	resolver := fixedResolver{gateways: map[enums.PaymentProvider]gateway.Gateway{
		enums.ProviderKhalti: &statusGateway{
			key:    enums.ProviderKhalti,
			status: &gateway.StatusResult{Status: "expired"},
		},
	}}
	job := newReconcileJob(t, reader, resolver, settler)

	require.NoError(t, job.Run(context.Background()))
	require.Len(t, settler.inputs, 1)
	assert.False(t, settler.inputs[0].Succeeded)
	assert.Equal(t, "expired", settler.inputs[0].Status)
}

func TestReconcileLeavesAmbiguousStatusAlone(t *testing.T) {
	reader := &fakePaymentReader{payments: []models.Payment{pendingPayment(enums.ProviderKhalti, "txn-3")}}
	settler := &fakeSettler{}
	resolver := fixedResolver{gateways: map[enums.PaymentProvider]gateway.Gateway{
		enums.ProviderKhalti: &statusGateway{
			key:    enums.ProviderKhalti,
			status: &gateway.StatusResult{Status: "initiated"},
		},
	}}
	job := newReconcileJob(t, reader, resolver, settler)

	require.NoError(t, job.Run(context.Background()))
	assert.Empty(t, settler.inputs, "still-pending reading must not settle")
}

func TestReconcileSkipsUnsupportedProviders(t *testing.T) {
	reader := &fakePaymentReader{payments: []models.Payment{pendingPayment(enums.ProviderCOD, "cod-1")}}
	settler := &fakeSettler{}
	resolver := fixedResolver{gateways: map[enums.PaymentProvider]gateway.Gateway{
		enums.ProviderCOD: &statusGateway{key: enums.ProviderCOD, err: gateway.ErrNotSupported},
	}}
	job := newReconcileJob(t, reader, resolver, settler)

	require.NoError(t, job.Run(context.Background()))
	assert.Empty(t, settler.inputs)
}

func TestReconcileContinuesPastFailures(t *testing.T) {
	reader := &fakePaymentReader{payments: []models.Payment{
		pendingPayment(enums.ProviderEsewa, "txn-bad"),
		pendingPayment(enums.ProviderKhalti, "txn-good"),
	}}
	settler := &fakeSettler{}
	resolver := fixedResolver{gateways: map[enums.PaymentProvider]gateway.Gateway{
		enums.ProviderEsewa:  &statusGateway{key: enums.ProviderEsewa, err: errors.New("provider timeout")},
		enums.ProviderKhalti: &statusGateway{key: enums.ProviderKhalti, status: &gateway.StatusResult{Status: "completed"}},
	}}
	job := newReconcileJob(t, reader, resolver, settler)

	err := job.Run(context.Background())
	require.Error(t, err, "failures surface after the sweep finishes")
	require.Len(t, settler.inputs, 1)
	assert.Equal(t, "txn-good", settler.inputs[0].ProviderPaymentID)
}

func TestReconcileSkipsPaymentsWithoutProviderID(t *testing.T) {
	reader := &fakePaymentReader{payments: []models.Payment{pendingPayment(enums.ProviderEsewa, "")}}
	settler := &fakeSettler{}
	resolver := fixedResolver{gateways: map[enums.PaymentProvider]gateway.Gateway{
		enums.ProviderEsewa: &statusGateway{key: enums.ProviderEsewa},
	}}
	job := newReconcileJob(t, reader, resolver, settler)

	require.NoError(t, job.Run(context.Background()))
	assert.Empty(t, settler.inputs)
}
