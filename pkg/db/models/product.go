package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product represents a sellable listing sourced from a supplier.
type Product struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SupplierID   uuid.UUID       `gorm:"column:supplier_id;type:uuid;not null;index"`
	SKU          string          `gorm:"column:sku;not null;uniqueIndex"`
	Title        string          `gorm:"column:title;not null"`
	Description  *string         `gorm:"column:description"`
	Price        decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
	ShippingDays int             `gorm:"column:shipping_days;not null;default:7"`
	IsActive     bool            `gorm:"column:is_active;not null;default:true"`
	Supplier     *Supplier       `gorm:"foreignKey:SupplierID"`
	Inventory    *InventoryItem  `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
