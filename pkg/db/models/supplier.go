package models

import (
	"time"

	"github.com/google/uuid"
)

// Supplier is a dropship source orders are forwarded to.
type Supplier struct {
	ID         uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Name       string    `gorm:"column:name;not null"`
	Slug       string    `gorm:"column:slug;not null;uniqueIndex"`
	AdapterKey string    `gorm:"column:adapter_key;not null;default:'http'"`
	APIBaseURL string    `gorm:"column:api_base_url;not null"`
	APIKey     *string   `gorm:"column:api_key"`
	IsActive   bool      `gorm:"column:is_active;not null;default:true"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
