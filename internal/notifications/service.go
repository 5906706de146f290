package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/pasalhub/pasalmart-backend/pkg/db/models"
	"github.com/pasalhub/pasalmart-backend/pkg/enums"
	pkgerrors "github.com/pasalhub/pasalmart-backend/pkg/errors"
	"github.com/pasalhub/pasalmart-backend/pkg/logger"
	"github.com/pasalhub/pasalmart-backend/pkg/pagination"
)

// Sender delivers a recorded notification to the customer. Delivery is best
// effort; failures leave sent_at empty and never surface to the caller.
type Sender interface {
	Send(ctx context.Context, notification *models.Notification) error
}

// LogSender is the default delivery backend: it only logs. Swapped for a real
// email integration via configuration.
type LogSender struct {
	Logg *logger.Logger
}

func (s LogSender) Send(ctx context.Context, notification *models.Notification) error {
	if s.Logg != nil {
		logCtx := s.Logg.WithFields(ctx, map[string]any{
			"notification_id": notification.ID.String(),
			"type":            string(notification.Type),
		})
		s.Logg.Info(logCtx, "notification delivered (log backend)")
	}
	return nil
}

// Service records and lists customer notifications.
type Service interface {
	// Record stores the notification and attempts delivery. Order-scoped
	// notifications dedupe on (order, type); Record reports whether a new
	// row was created.
	Record(ctx context.Context, input RecordInput) (*models.Notification, bool, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
}

// RecordInput describes one notification to record.
type RecordInput struct {
	UserID  uuid.UUID
	OrderID *uuid.UUID
	Type    enums.NotificationType
	Title   string
	Message string
}

// ListParams configures pagination for notifications.
type ListParams struct {
	UserID uuid.UUID
	Limit  int
	Cursor string
}

// ListResult wraps returned notifications and the cursor for the next page.
type ListResult struct {
	Items  []models.Notification `json:"items"`
	Cursor string                `json:"cursor"`
}

type service struct {
	repo   Repository
	sender Sender
	logg   *logger.Logger
	now    func() time.Time
}

// NewService wires notifications dependencies.
func NewService(repo Repository, sender Sender, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications repository required")
	}
	if sender == nil {
		sender = LogSender{Logg: logg}
	}
	return &service{
		repo:   repo,
		sender: sender,
		logg:   logg,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Record(ctx context.Context, input RecordInput) (*models.Notification, bool, error) {
	if input.UserID == uuid.Nil {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if !input.Type.IsValid() {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "unknown notification type")
	}
	if input.Title == "" || input.Message == "" {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "title and message required")
	}

	notification := &models.Notification{
		UserID:  input.UserID,
		OrderID: input.OrderID,
		Type:    input.Type,
		Title:   input.Title,
		Message: input.Message,
	}
	created, err := s.repo.GetOrCreate(ctx, notification)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record notification")
	}
	if !created {
		return notification, false, nil
	}

	if err := s.sender.Send(ctx, notification); err != nil {
		if s.logg != nil {
			s.logg.Error(ctx, "notification delivery failed", err)
		}
		return notification, true, nil
	}
	sentAt := s.now()
	if err := s.repo.MarkSent(ctx, notification.ID, sentAt); err != nil {
		if s.logg != nil {
			s.logg.Error(ctx, "failed to mark notification sent", err)
		}
		return notification, true, nil
	}
	notification.SentAt = &sentAt
	return notification, true, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}

	query := listNotificationsParams{
		UserID: params.UserID,
		Limit:  params.Limit,
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list notifications")
	}

	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}

	return &ListResult{
		Items:  rows,
		Cursor: cursor,
	}, nil
}
