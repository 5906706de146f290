package cart

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pasalhub/pasalmart-backend/pkg/db/models"
)

// Repository persists active cart lines and the saved-for-later list.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.CartItem, error)
	FindItem(ctx context.Context, userID, productID uuid.UUID) (*models.CartItem, error)
	Upsert(ctx context.Context, userID, productID uuid.UUID, quantity int) (*models.CartItem, error)
	UpdateQuantity(ctx context.Context, itemID uuid.UUID, quantity int) error
	Remove(ctx context.Context, userID, productID uuid.UUID) error
	RemoveByProduct(ctx context.Context, userID, productID uuid.UUID) error
	Clear(ctx context.Context, userID uuid.UUID) error

	ListSaved(ctx context.Context, userID uuid.UUID) ([]models.SavedCartItem, error)
	SaveForLater(ctx context.Context, userID, productID uuid.UUID, quantity int) error
	RemoveSaved(ctx context.Context, userID, productID uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a cart repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.CartItem, error) {
	var items []models.CartItem
	err := r.db.WithContext(ctx).
		Preload("Product").
		Preload("Product.Inventory").
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) FindItem(ctx context.Context, userID, productID uuid.UUID) (*models.CartItem, error) {
	var item models.CartItem
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND product_id = ?", userID, productID).
		First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// Upsert adds the quantity onto an existing line or creates one. The unique
// (user, product) index keeps concurrent adds on one row.
func (r *repository) Upsert(ctx context.Context, userID, productID uuid.UUID, quantity int) (*models.CartItem, error) {
	db := r.db.WithContext(ctx)

	existing, err := r.FindItem(ctx, userID, productID)
	if err == nil {
		newQty := existing.Quantity + quantity
		if err := db.Model(&models.CartItem{}).
			Where("id = ?", existing.ID).
			Update("quantity", newQty).Error; err != nil {
			return nil, err
		}
		existing.Quantity = newQty
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	item := &models.CartItem{
		ID:        uuid.New(),
		UserID:    userID,
		ProductID: productID,
		Quantity:  quantity,
	}
	if err := db.Create(item).Error; err != nil {
		return nil, err
	}
	return item, nil
}

func (r *repository) UpdateQuantity(ctx context.Context, itemID uuid.UUID, quantity int) error {
	return r.db.WithContext(ctx).
		Model(&models.CartItem{}).
		Where("id = ?", itemID).
		Update("quantity", quantity).Error
}

func (r *repository) Remove(ctx context.Context, userID, productID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("user_id = ? AND product_id = ?", userID, productID).
		Delete(&models.CartItem{}).Error
}

// RemoveByProduct exists for checkout's prune path, which drops the
// offending line without touching the rest of the cart.
func (r *repository) RemoveByProduct(ctx context.Context, userID, productID uuid.UUID) error {
	return r.Remove(ctx, userID, productID)
}

// Clear wipes both the active cart and the saved-for-later list.
func (r *repository) Clear(ctx context.Context, userID uuid.UUID) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("user_id = ?", userID).Delete(&models.CartItem{}).Error; err != nil {
		return err
	}
	return db.Where("user_id = ?", userID).Delete(&models.SavedCartItem{}).Error
}

func (r *repository) ListSaved(ctx context.Context, userID uuid.UUID) ([]models.SavedCartItem, error) {
	var items []models.SavedCartItem
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) SaveForLater(ctx context.Context, userID, productID uuid.UUID, quantity int) error {
	db := r.db.WithContext(ctx)

	var existing models.SavedCartItem
	err := db.Where("user_id = ? AND product_id = ?", userID, productID).First(&existing).Error
	if err == nil {
		return db.Model(&models.SavedCartItem{}).
			Where("id = ?", existing.ID).
			Update("quantity", quantity).Error
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return db.Create(&models.SavedCartItem{
		ID:        uuid.New(),
		UserID:    userID,
		ProductID: productID,
		Quantity:  quantity,
	}).Error
}

func (r *repository) RemoveSaved(ctx context.Context, userID, productID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("user_id = ? AND product_id = ?", userID, productID).
		Delete(&models.SavedCartItem{}).Error
}
