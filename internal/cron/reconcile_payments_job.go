package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/pasalhub/pasalmart-backend/internal/settlement"
	"github.com/pasalhub/pasalmart-backend/pkg/db/models"
	"github.com/pasalhub/pasalmart-backend/pkg/enums"
	"github.com/pasalhub/pasalmart-backend/pkg/gateway"
	"github.com/pasalhub/pasalmart-backend/pkg/logger"
)

const (
	reconcileOlderThan = 15 * time.Minute
	reconcileBatchSize = 100
)

// statuses where the provider has given a final negative answer. Anything
// else that is not a success reading stays pending for the next sweep.
var terminalFailureStatuses = map[string]struct{}{
	"failed":    {},
	"canceled":  {},
	"cancelled": {},
	"expired":   {},
	"not_found": {},
}

// ReconcilePaymentsJobParams configure the pending payment sweep.
type ReconcilePaymentsJobParams struct {
	Logger     *logger.Logger
	Payments   pendingPaymentReader
	Gateways   gatewayResolver
	Settlement paymentSettler
	OlderThan  time.Duration
	Limit      int
}

type pendingPaymentReader interface {
	ListPendingPayments(ctx context.Context, olderThan time.Time, limit int) ([]models.Payment, error)
}

type gatewayResolver interface {
	Get(provider enums.PaymentProvider) (gateway.Gateway, error)
}

type paymentSettler interface {
	Settle(ctx context.Context, input settlement.SettleInput) (*settlement.Outcome, error)
}

// NewReconcilePaymentsJob builds the job that pulls provider state for
// payments stuck in pending and settles them through the shared routine.
func NewReconcilePaymentsJob(params ReconcilePaymentsJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payments reader required")
	}
	if params.Gateways == nil {
		return nil, fmt.Errorf("gateway registry required")
	}
	if params.Settlement == nil {
		return nil, fmt.Errorf("settlement service required")
	}
	olderThan := params.OlderThan
	if olderThan <= 0 {
		olderThan = reconcileOlderThan
	}
	limit := params.Limit
	if limit <= 0 {
		limit = reconcileBatchSize
	}
	return &reconcilePaymentsJob{
		logg:       params.Logger,
		payments:   params.Payments,
		gateways:   params.Gateways,
		settlement: params.Settlement,
		olderThan:  olderThan,
		limit:      limit,
		now:        time.Now,
	}, nil
}

type reconcilePaymentsJob struct {
	logg       *logger.Logger
	payments   pendingPaymentReader
	gateways   gatewayResolver
	settlement paymentSettler
	olderThan  time.Duration
	limit      int
	now        func() time.Time
}

func (j *reconcilePaymentsJob) Name() string { return "reconcile-payments" }

func (j *reconcilePaymentsJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.olderThan)
	payments, err := j.payments.ListPendingPayments(ctx, cutoff, j.limit)
	if err != nil {
		return fmt.Errorf("list pending payments: %w", err)
	}

	var (
		errs    []error
		settled int
		skipped int
	)
	for i := range payments {
		outcome, err := j.reconcile(ctx, &payments[i])
		if err != nil {
			logCtx := j.logg.WithField(ctx, "payment_id", payments[i].ID.String())
			j.logg.Error(logCtx, "payment reconcile failed", err)
			errs = append(errs, err)
			continue
		}
		if outcome {
			settled++
		} else {
			skipped++
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"scanned": len(payments),
		"settled": settled,
		"skipped": skipped,
		"failed":  len(errs),
	})
	j.logg.Info(logCtx, "payment reconcile sweep complete")
	return multierr.Combine(errs...)
}

// reconcile returns true when the payment reached a terminal state.
func (j *reconcilePaymentsJob) reconcile(ctx context.Context, payment *models.Payment) (bool, error) {
	gw, err := j.gateways.Get(payment.Provider)
	if err != nil {
		return false, err
	}
	if payment.ProviderPaymentID == nil || *payment.ProviderPaymentID == "" {
		return false, nil
	}

	status, err := gw.FetchStatus(ctx, *payment.ProviderPaymentID)
	if errors.Is(err, gateway.ErrNotSupported) {
		// COD and similar providers settle out of band.
		return false, nil
	}
	if err != nil {
		return false, err
	}

	succeeded := gateway.IsSuccessStatus(status.Status)
	if !succeeded {
		if _, terminal := terminalFailureStatuses[status.Status]; !terminal {
			return false, nil
		}
	}

	_, err = j.settlement.Settle(ctx, settlement.SettleInput{
		OrderID:           payment.OrderID,
		Provider:          payment.Provider,
		Succeeded:         succeeded,
		Status:            status.Status,
		ProviderPaymentID: *payment.ProviderPaymentID,
		Raw:               status.Raw,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}
