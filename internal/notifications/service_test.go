package notifications

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/pasalhub/pasalmart-backend/pkg/db/models"
	"github.com/pasalhub/pasalmart-backend/pkg/enums"
	pkgerrors "github.com/pasalhub/pasalmart-backend/pkg/errors"
)

func newNotificationsTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.Exec(`CREATE TABLE notifications (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		order_id TEXT,
		type TEXT NOT NULL,
		title TEXT NOT NULL,
		message TEXT NOT NULL,
		sent_at DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`).Error)
	return db
}

type recordingSender struct {
	sent []uuid.UUID
	err  error
}

func (s *recordingSender) Send(_ context.Context, notification *models.Notification) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, notification.ID)
	return nil
}

func newNotificationsService(t *testing.T, sender Sender) (Service, *gorm.DB) {
	t.Helper()
	db := newNotificationsTestDB(t)
	svc, err := NewService(NewRepository(db), sender, nil)
	require.NoError(t, err)
	return svc, db
}

func TestRecordStoresAndSends(t *testing.T) {
	sender := &recordingSender{}
	svc, db := newNotificationsService(t, sender)
	orderID := uuid.New()

	notification, created, err := svc.Record(context.Background(), RecordInput{
		UserID:  uuid.New(),
		OrderID: &orderID,
		Type:    enums.NotificationTypeOrderConfirmation,
		Title:   "Order confirmed",
		Message: "Order #1001 has been placed.",
	})
	require.NoError(t, err)
	assert.True(t, created)
	require.NotNil(t, notification.SentAt)
	assert.Equal(t, []uuid.UUID{notification.ID}, sender.sent)

	var stored models.Notification
	require.NoError(t, db.First(&stored, "id = ?", notification.ID).Error)
	assert.NotNil(t, stored.SentAt)
}

func TestRecordDedupesOnOrderAndType(t *testing.T) {
	sender := &recordingSender{}
	svc, db := newNotificationsService(t, sender)
	orderID := uuid.New()
	input := RecordInput{
		UserID:  uuid.New(),
		OrderID: &orderID,
		Type:    enums.NotificationTypePaymentReceipt,
		Title:   "Payment received",
		Message: "Thanks for your payment.",
	}

	_, created, err := svc.Record(context.Background(), input)
	require.NoError(t, err)
	assert.True(t, created)

	_, created, err = svc.Record(context.Background(), input)
	require.NoError(t, err)
	assert.False(t, created, "second record for the same order and type is a no-op")

	var count int64
	require.NoError(t, db.Model(&models.Notification{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
	assert.Len(t, sender.sent, 1)
}

func TestRecordDeliveryFailureKeepsRow(t *testing.T) {
	sender := &recordingSender{err: errors.New("smtp down")}
	svc, db := newNotificationsService(t, sender)

	notification, created, err := svc.Record(context.Background(), RecordInput{
		UserID:  uuid.New(),
		Type:    enums.NotificationTypeShippingUpdate,
		Title:   "Order shipped",
		Message: "Your order is on the way.",
	})
	require.NoError(t, err, "delivery failures never bubble up")
	assert.True(t, created)
	assert.Nil(t, notification.SentAt)

	var stored models.Notification
	require.NoError(t, db.First(&stored, "id = ?", notification.ID).Error)
	assert.Nil(t, stored.SentAt)
}

func TestRecordValidation(t *testing.T) {
	svc, _ := newNotificationsService(t, &recordingSender{})

	_, _, err := svc.Record(context.Background(), RecordInput{
		UserID:  uuid.New(),
		Type:    enums.NotificationType("carrier_pigeon"),
		Title:   "x",
		Message: "y",
	})
	require.Error(t, err)
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.CodeValidation, appErr.Code())

	_, _, err = svc.Record(context.Background(), RecordInput{
		UserID: uuid.New(),
		Type:   enums.NotificationTypeShippingUpdate,
	})
	require.Error(t, err)
	appErr = pkgerrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.CodeValidation, appErr.Code())
}

func TestListPaginates(t *testing.T) {
	svc, db := newNotificationsService(t, &recordingSender{})
	userID := uuid.New()
	base := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, db.Create(&models.Notification{
			ID:        uuid.New(),
			UserID:    userID,
			Type:      enums.NotificationTypeShippingUpdate,
			Title:     "Order shipped",
			Message:   "Your order is on the way.",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}).Error)
	}

	page, err := svc.List(context.Background(), ListParams{UserID: userID, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	require.NotEmpty(t, page.Cursor)
	assert.True(t, page.Items[0].CreatedAt.After(page.Items[1].CreatedAt))

	rest, err := svc.List(context.Background(), ListParams{UserID: userID, Limit: 2, Cursor: page.Cursor})
	require.NoError(t, err)
	require.Len(t, rest.Items, 1)
	assert.Empty(t, rest.Cursor)

	other, err := svc.List(context.Background(), ListParams{UserID: uuid.New(), Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, other.Items)
}
