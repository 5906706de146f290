package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pasalhub/pasalmart-backend/internal/notifications"
	"github.com/pasalhub/pasalmart-backend/pkg/db/models"
	"github.com/pasalhub/pasalmart-backend/pkg/enums"
	"github.com/pasalhub/pasalmart-backend/pkg/logger"
)

type fakeStaleOrderReader struct {
	orders     []models.Order
	err        error
	lastCutoff time.Time
}

func (f *fakeStaleOrderReader) ListStalePending(_ context.Context, olderThan time.Time, _ int) ([]models.Order, error) {
	f.lastCutoff = olderThan
	return f.orders, f.err
}

type fakeNotificationRecorder struct {
	inputs  []notifications.RecordInput
	created map[string]bool
	err     error
}

func (f *fakeNotificationRecorder) Record(_ context.Context, input notifications.RecordInput) (*models.Notification, bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}
	f.inputs = append(f.inputs, input)
	key := input.OrderID.String() + "/" + string(input.Type)
	if f.created == nil {
		f.created = map[string]bool{}
	}
	if f.created[key] {
		return &models.Notification{}, false, nil
	}
	f.created[key] = true
	return &models.Notification{ID: uuid.New()}, true, nil
}

func newAbandonedJob(t *testing.T, reader *fakeStaleOrderReader, recorder *fakeNotificationRecorder) *abandonedCheckoutJob {
	t.Helper()
	jobIface, err := NewAbandonedCheckoutJob(AbandonedCheckoutJobParams{
		Logger:        logger.New(logger.Options{ServiceName: "cron-test"}),
		Orders:        reader,
		Notifications: recorder,
	})
	require.NoError(t, err)
	job, ok := jobIface.(*abandonedCheckoutJob)
	require.True(t, ok)
	job.now = func() time.Time { return time.Date(2026, 6, 2, 9, 0, 0, 0, time.UTC) }
	return job
}

func TestAbandonedCheckoutNudgesStaleOrders(t *testing.T) {
	order := models.Order{ID: uuid.New(), OrderNumber: 1001, UserID: uuid.New()}
	reader := &fakeStaleOrderReader{orders: []models.Order{order}}
	recorder := &fakeNotificationRecorder{}
	job := newAbandonedJob(t, reader, recorder)

	require.NoError(t, job.Run(context.Background()))

	assert.Equal(t, time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC), reader.lastCutoff)
	require.Len(t, recorder.inputs, 1)
	input := recorder.inputs[0]
	assert.Equal(t, order.UserID, input.UserID)
	require.NotNil(t, input.OrderID)
	assert.Equal(t, order.ID, *input.OrderID)
	assert.Equal(t, enums.NotificationTypeAbandonedCheckout, input.Type)
	assert.Contains(t, input.Message, "#1001")
}

func TestAbandonedCheckoutRepeatSweepIsIdempotent(t *testing.T) {
	order := models.Order{ID: uuid.New(), OrderNumber: 1002, UserID: uuid.New()}
	reader := &fakeStaleOrderReader{orders: []models.Order{order}}
	recorder := &fakeNotificationRecorder{}
	job := newAbandonedJob(t, reader, recorder)

	require.NoError(t, job.Run(context.Background()))
	require.NoError(t, job.Run(context.Background()))

	// Record dedupes on (order, type); a second sweep records nothing new.
	assert.Len(t, recorder.created, 1)
}

func TestAbandonedCheckoutSurfacesRecordFailures(t *testing.T) {
	reader := &fakeStaleOrderReader{orders: []models.Order{{ID: uuid.New(), UserID: uuid.New()}}}
	recorder := &fakeNotificationRecorder{err: errors.New("db down")}
	job := newAbandonedJob(t, reader, recorder)

	require.Error(t, job.Run(context.Background()))
}
