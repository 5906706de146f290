package enums

import "fmt"

// NotificationType maps to the notification_type enum in Postgres.
type NotificationType string

const (
	NotificationTypeOrderConfirmation  NotificationType = "order_confirmation"
	NotificationTypePaymentReceipt     NotificationType = "payment_receipt"
	NotificationTypeAbandonedCheckout  NotificationType = "abandoned_checkout"
	NotificationTypeShippingUpdate     NotificationType = "shipping_update"
	NotificationTypeRefundConfirmation NotificationType = "refund_confirmation"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeOrderConfirmation,
	NotificationTypePaymentReceipt,
	NotificationTypeAbandonedCheckout,
	NotificationTypeShippingUpdate,
	NotificationTypeRefundConfirmation,
}

// IsValid checks whether the given type matches the canonical enum.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw strings into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}
