package coupons

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pasalhub/pasalmart-backend/pkg/db/models"
)

// Repository reads coupons and records redemptions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByCode(ctx context.Context, code string) (*models.Coupon, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Coupon, error)
	CountRedemptions(ctx context.Context, couponID uuid.UUID) (int64, error)
	CountUserRedemptions(ctx context.Context, couponID, userID uuid.UUID) (int64, error)
	GetOrCreateRedemption(ctx context.Context, couponID, orderID, userID uuid.UUID) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a coupons repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// FindByCode matches case-insensitively; codes are stored as entered.
func (r *repository) FindByCode(ctx context.Context, code string) (*models.Coupon, error) {
	var coupon models.Coupon
	err := r.db.WithContext(ctx).
		Where("LOWER(code) = ?", strings.ToLower(strings.TrimSpace(code))).
		First(&coupon).Error
	if err != nil {
		return nil, err
	}
	return &coupon, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Coupon, error) {
	var coupon models.Coupon
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&coupon).Error
	if err != nil {
		return nil, err
	}
	return &coupon, nil
}

func (r *repository) CountRedemptions(ctx context.Context, couponID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.CouponRedemption{}).
		Where("coupon_id = ?", couponID).
		Count(&count).Error
	return count, err
}

func (r *repository) CountUserRedemptions(ctx context.Context, couponID, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.CouponRedemption{}).
		Where("coupon_id = ? AND user_id = ?", couponID, userID).
		Count(&count).Error
	return count, err
}

// GetOrCreateRedemption records the (coupon, order, user) identity exactly
// once. Settlement retries land on the existing row; the boolean reports
// whether this call created it.
func (r *repository) GetOrCreateRedemption(ctx context.Context, couponID, orderID, userID uuid.UUID) (bool, error) {
	db := r.db.WithContext(ctx)
	identity := "coupon_id = ? AND order_id = ? AND user_id = ?"

	var existing models.CouponRedemption
	err := db.Where(identity, couponID, orderID, userID).First(&existing).Error
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}

	createErr := db.Create(&models.CouponRedemption{
		ID:       uuid.New(),
		CouponID: couponID,
		OrderID:  orderID,
		UserID:   userID,
	}).Error
	if createErr == nil {
		return true, nil
	}

	// A concurrent settle may have inserted the row between the lookup and
	// the create; the unique index makes that race resolve to one winner.
	if lookupErr := db.Where(identity, couponID, orderID, userID).First(&existing).Error; lookupErr == nil {
		return false, nil
	}
	return false, createErr
}
