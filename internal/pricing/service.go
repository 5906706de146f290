package pricing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/pasalhub/pasalmart-backend/internal/coupons"
	"github.com/pasalhub/pasalmart-backend/pkg/db/models"
	"github.com/pasalhub/pasalmart-backend/pkg/enums"
	pkgerrors "github.com/pasalhub/pasalmart-backend/pkg/errors"
)

// Item is one priced cart line. UnitPrice is the snapshotted product price
// at quote time, not a live catalog read.
type Item struct {
	ProductID uuid.UUID
	UnitPrice decimal.Decimal
	Quantity  int
}

// Quote is a pricing request for a user's cart plus optional coupon codes.
type Quote struct {
	UserID       uuid.UUID
	Items        []Item
	CouponCode   string
	ReferralCode string
}

// Pricing is the resolved money breakdown for an order. Both discounts are
// computed against the original subtotal and summed; the sum never exceeds
// the subtotal.
type Pricing struct {
	Subtotal         decimal.Decimal
	CouponDiscount   decimal.Decimal
	ReferralDiscount decimal.Decimal
	DiscountTotal    decimal.Decimal
	Total            decimal.Decimal
	Coupon           *models.Coupon
	ReferralCoupon   *models.Coupon
}

// Service resolves quotes into final order amounts. It only reads coupon
// state; redemption rows are written at settlement.
type Service interface {
	Resolve(ctx context.Context, q Quote) (*Pricing, error)
}

type couponsRepo interface {
	FindByCode(ctx context.Context, code string) (*models.Coupon, error)
	CountRedemptions(ctx context.Context, couponID uuid.UUID) (int64, error)
	CountUserRedemptions(ctx context.Context, couponID, userID uuid.UUID) (int64, error)
}

type service struct {
	coupons couponsRepo
	now     func() time.Time
}

var _ couponsRepo = (coupons.Repository)(nil)

// NewService builds the pricing service.
func NewService(couponsRepo couponsRepo) (Service, error) {
	if couponsRepo == nil {
		return nil, fmt.Errorf("coupons repository required")
	}
	return &service{coupons: couponsRepo, now: time.Now}, nil
}

// Resolve computes subtotal, applies at most one regular and one referral
// coupon, and returns the payable total rounded half-up to 2dp.
func (s *service) Resolve(ctx context.Context, q Quote) (*Pricing, error) {
	subtotal := decimal.Zero
	for _, item := range q.Items {
		if item.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item quantity must be positive").
				WithDetails(map[string]any{"product_id": item.ProductID})
		}
		subtotal = subtotal.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	subtotal = subtotal.Round(2)

	couponCode := normalizeCode(q.CouponCode)
	referralCode := normalizeCode(q.ReferralCode)
	if couponCode != "" && couponCode == referralCode {
		return nil, pkgerrors.New(pkgerrors.CodeCouponConflict, "coupon and referral code must differ").
			WithDetails(map[string]any{"code": couponCode})
	}

	result := &Pricing{
		Subtotal:         subtotal,
		CouponDiscount:   decimal.Zero,
		ReferralDiscount: decimal.Zero,
	}

	if couponCode != "" {
		coupon, err := s.validate(ctx, couponCode, q.UserID, subtotal, false)
		if err != nil {
			return nil, err
		}
		result.Coupon = coupon
		result.CouponDiscount = discountAmount(coupon, subtotal)
	}
	if referralCode != "" {
		coupon, err := s.validate(ctx, referralCode, q.UserID, subtotal, true)
		if err != nil {
			return nil, err
		}
		result.ReferralCoupon = coupon
		result.ReferralDiscount = discountAmount(coupon, subtotal)
	}

	discount := result.CouponDiscount.Add(result.ReferralDiscount)
	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}
	result.DiscountTotal = discount.Round(2)
	result.Total = subtotal.Sub(result.DiscountTotal).Round(2)
	if result.Total.IsNegative() {
		result.Total = decimal.Zero
	}
	return result, nil
}

// validate walks the rejection ladder in a fixed order so the user always
// sees the most actionable failure: invalid, expired, minimum, global limit,
// per-user limit.
func (s *service) validate(ctx context.Context, code string, userID uuid.UUID, subtotal decimal.Decimal, referral bool) (*models.Coupon, error) {
	coupon, err := s.coupons.FindByCode(ctx, code)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, invalidCoupon(code)
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "look up coupon")
	}
	if !coupon.IsActive || coupon.IsReferral != referral {
		return nil, invalidCoupon(code)
	}
	if coupon.ExpiresAt != nil && !coupon.ExpiresAt.After(s.now()) {
		return nil, pkgerrors.New(pkgerrors.CodeCouponExpired, "coupon has expired").
			WithDetails(map[string]any{"code": code})
	}
	if coupon.MinOrderTotal != nil && subtotal.LessThan(*coupon.MinOrderTotal) {
		return nil, pkgerrors.New(pkgerrors.CodeCouponMinOrder, "order total below coupon minimum").
			WithDetails(map[string]any{
				"code":            code,
				"min_order_total": coupon.MinOrderTotal.StringFixed(2),
			})
	}
	if coupon.UsageLimit != nil {
		used, err := s.coupons.CountRedemptions(ctx, coupon.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count coupon redemptions")
		}
		if used >= int64(*coupon.UsageLimit) {
			return nil, pkgerrors.New(pkgerrors.CodeCouponLimit, "coupon usage limit reached").
				WithDetails(map[string]any{"code": code})
		}
	}
	if coupon.PerUserLimit != nil {
		used, err := s.coupons.CountUserRedemptions(ctx, coupon.ID, userID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count user redemptions")
		}
		if used >= int64(*coupon.PerUserLimit) {
			return nil, pkgerrors.New(pkgerrors.CodeCouponLimit, "coupon usage limit reached for user").
				WithDetails(map[string]any{"code": code})
		}
	}
	return coupon, nil
}

// discountAmount computes a single coupon's discount against the original
// subtotal, clamped so no coupon alone discounts more than the subtotal.
func discountAmount(coupon *models.Coupon, subtotal decimal.Decimal) decimal.Decimal {
	var amount decimal.Decimal
	switch coupon.DiscountType {
	case enums.DiscountPercent:
		amount = subtotal.Mul(coupon.Value).Div(decimal.NewFromInt(100))
	case enums.DiscountFixed:
		amount = coupon.Value
	default:
		return decimal.Zero
	}
	if amount.GreaterThan(subtotal) {
		amount = subtotal
	}
	if amount.IsNegative() {
		return decimal.Zero
	}
	return amount.Round(2)
}

func invalidCoupon(code string) error {
	return pkgerrors.New(pkgerrors.CodeCouponInvalid, "coupon code is not valid").
		WithDetails(map[string]any{"code": code})
}

func normalizeCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}
