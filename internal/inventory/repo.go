package inventory

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pasalhub/pasalmart-backend/pkg/db/models"
)

// Repository gives the checkout transaction guarded access to stock rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	LockByProductIDs(ctx context.Context, productIDs []uuid.UUID) ([]models.InventoryItem, error)
	Decrement(ctx context.Context, productID uuid.UUID, qty int) (bool, error)
	Increment(ctx context.Context, productID uuid.UUID, qty int) error
	LowStock(ctx context.Context, limit int) ([]models.InventoryItem, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an inventory repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// LockByProductIDs loads stock rows ordered by product id so concurrent
// checkouts acquire row locks in the same order. SQLite serializes writers
// itself, so the locking clause is only added on Postgres.
func (r *repository) LockByProductIDs(ctx context.Context, productIDs []uuid.UUID) ([]models.InventoryItem, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}
	query := r.db.WithContext(ctx)
	if r.db.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var rows []models.InventoryItem
	err := query.
		Where("product_id IN ?", productIDs).
		Order("product_id ASC").
		Find(&rows).Error
	return rows, err
}

// Decrement subtracts stock with a guard so quantity never drops below zero.
// It reports false when the row was missing or had too little stock.
func (r *repository) Decrement(ctx context.Context, productID uuid.UUID, qty int) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.InventoryItem{}).
		Where("product_id = ? AND quantity >= ?", productID, qty).
		Update("quantity", gorm.Expr("quantity - ?", qty))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) Increment(ctx context.Context, productID uuid.UUID, qty int) error {
	return r.db.WithContext(ctx).
		Model(&models.InventoryItem{}).
		Where("product_id = ?", productID).
		Update("quantity", gorm.Expr("quantity + ?", qty)).Error
}

// LowStock lists rows at or under their safety stock.
func (r *repository) LowStock(ctx context.Context, limit int) ([]models.InventoryItem, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []models.InventoryItem
	err := r.db.WithContext(ctx).
		Where("quantity <= safety_stock").
		Order("quantity ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
