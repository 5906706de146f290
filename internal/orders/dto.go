package orders

import (
	"time"

	"github.com/pasalhub/pasalmart-backend/pkg/enums"
)

// Filters narrow the user order list.
type Filters struct {
	Status        *enums.OrderStatus
	PaymentStatus *enums.PaymentStatus
	Since         *time.Time
}
