package models

import (
	"time"

	"github.com/google/uuid"
)

// InventoryItem tracks on-hand stock per product. Quantity never goes
// negative; SafetyStock only feeds low-stock reporting.
type InventoryItem struct {
	ProductID   uuid.UUID `gorm:"column:product_id;type:uuid;primaryKey"`
	Quantity    int       `gorm:"column:quantity;not null;default:0"`
	SafetyStock int       `gorm:"column:safety_stock;not null;default:0"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
