package pricing

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/pasalhub/pasalmart-backend/pkg/db/models"
	"github.com/pasalhub/pasalmart-backend/pkg/enums"
	pkgerrors "github.com/pasalhub/pasalmart-backend/pkg/errors"
)

type fakeCouponsRepo struct {
	coupons    map[string]*models.Coupon
	totalUsed  map[uuid.UUID]int64
	userUsed   map[uuid.UUID]int64
	lookupErrs map[string]error
}

func newFakeCouponsRepo() *fakeCouponsRepo {
	return &fakeCouponsRepo{
		coupons:    map[string]*models.Coupon{},
		totalUsed:  map[uuid.UUID]int64{},
		userUsed:   map[uuid.UUID]int64{},
		lookupErrs: map[string]error{},
	}
}

func (f *fakeCouponsRepo) add(coupon *models.Coupon) *models.Coupon {
	if coupon.ID == uuid.Nil {
		coupon.ID = uuid.New()
	}
	f.coupons[strings.ToLower(coupon.Code)] = coupon
	return coupon
}

func (f *fakeCouponsRepo) FindByCode(_ context.Context, code string) (*models.Coupon, error) {
	key := strings.ToLower(strings.TrimSpace(code))
	if err, ok := f.lookupErrs[key]; ok {
		return nil, err
	}
	coupon, ok := f.coupons[key]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return coupon, nil
}

func (f *fakeCouponsRepo) CountRedemptions(_ context.Context, couponID uuid.UUID) (int64, error) {
	return f.totalUsed[couponID], nil
}

func (f *fakeCouponsRepo) CountUserRedemptions(_ context.Context, couponID, _ uuid.UUID) (int64, error) {
	return f.userUsed[couponID], nil
}

func newTestService(t *testing.T, repo *fakeCouponsRepo) *service {
	t.Helper()
	svc, err := NewService(repo)
	require.NoError(t, err)
	impl := svc.(*service)
	impl.now = func() time.Time {
		return time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	}
	return impl
}

func percentCoupon(code string, value int64, referral bool) *models.Coupon {
	return &models.Coupon{
		Code:         code,
		DiscountType: enums.DiscountPercent,
		Value:        decimal.NewFromInt(value),
		IsReferral:   referral,
		IsActive:     true,
	}
}

func fixedCoupon(code string, value string, referral bool) *models.Coupon {
	return &models.Coupon{
		Code:         code,
		DiscountType: enums.DiscountFixed,
		Value:        decimal.RequireFromString(value),
		IsReferral:   referral,
		IsActive:     true,
	}
}

func quoteItems(prices ...string) []Item {
	items := make([]Item, 0, len(prices))
	for _, price := range prices {
		items = append(items, Item{
			ProductID: uuid.New(),
			UnitPrice: decimal.RequireFromString(price),
			Quantity:  1,
		})
	}
	return items
}

func assertCode(t *testing.T, err error, want pkgerrors.Code) {
	t.Helper()
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr, "expected coded error, got %v", err)
	assert.Equal(t, want, appErr.Code())
}

func TestResolveNoCoupons(t *testing.T) {
	svc := newTestService(t, newFakeCouponsRepo())

	pricing, err := svc.Resolve(context.Background(), Quote{
		UserID: uuid.New(),
		Items: []Item{
			{ProductID: uuid.New(), UnitPrice: decimal.RequireFromString("19.99"), Quantity: 3},
			{ProductID: uuid.New(), UnitPrice: decimal.RequireFromString("5.50"), Quantity: 2},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "70.97", pricing.Subtotal.StringFixed(2))
	assert.True(t, pricing.DiscountTotal.IsZero())
	assert.Equal(t, "70.97", pricing.Total.StringFixed(2))
}

func TestResolveBothCouponsAdditiveAgainstSubtotal(t *testing.T) {
	repo := newFakeCouponsRepo()
	repo.add(percentCoupon("SAVE10", 10, false))
	repo.add(fixedCoupon("REF-5", "5.00", true))
	svc := newTestService(t, repo)

	pricing, err := svc.Resolve(context.Background(), Quote{
		UserID:       uuid.New(),
		Items:        quoteItems("100.00"),
		CouponCode:   "save10",
		ReferralCode: "REF-5",
	})
	require.NoError(t, err)
	// Both discounts computed against the original 100.00, not sequentially.
	assert.Equal(t, "10.00", pricing.CouponDiscount.StringFixed(2))
	assert.Equal(t, "5.00", pricing.ReferralDiscount.StringFixed(2))
	assert.Equal(t, "15.00", pricing.DiscountTotal.StringFixed(2))
	assert.Equal(t, "85.00", pricing.Total.StringFixed(2))
	require.NotNil(t, pricing.Coupon)
	require.NotNil(t, pricing.ReferralCoupon)
}

func TestResolvePercentRoundsHalfUp(t *testing.T) {
	repo := newFakeCouponsRepo()
	repo.add(percentCoupon("ODD", 15, false))
	svc := newTestService(t, repo)

	pricing, err := svc.Resolve(context.Background(), Quote{
		UserID:     uuid.New(),
		Items:      quoteItems("10.03"),
		CouponCode: "ODD",
	})
	require.NoError(t, err)
	// 15% of 10.03 = 1.5045 -> 1.50; 10.03 - 1.50 = 8.53.
	assert.Equal(t, "1.50", pricing.CouponDiscount.StringFixed(2))
	assert.Equal(t, "8.53", pricing.Total.StringFixed(2))
}

func TestResolveDiscountClampedToSubtotal(t *testing.T) {
	repo := newFakeCouponsRepo()
	repo.add(fixedCoupon("BIG", "80.00", false))
	repo.add(fixedCoupon("REF-BIG", "80.00", true))
	svc := newTestService(t, repo)

	pricing, err := svc.Resolve(context.Background(), Quote{
		UserID:       uuid.New(),
		Items:        quoteItems("100.00"),
		CouponCode:   "BIG",
		ReferralCode: "REF-BIG",
	})
	require.NoError(t, err)
	assert.Equal(t, "100.00", pricing.DiscountTotal.StringFixed(2))
	assert.True(t, pricing.Total.IsZero())
}

func TestResolveSameCodeTwiceConflicts(t *testing.T) {
	repo := newFakeCouponsRepo()
	repo.add(percentCoupon("SHARED", 10, false))
	svc := newTestService(t, repo)

	_, err := svc.Resolve(context.Background(), Quote{
		UserID:       uuid.New(),
		Items:        quoteItems("50.00"),
		CouponCode:   "SHARED",
		ReferralCode: " shared ",
	})
	assertCode(t, err, pkgerrors.CodeCouponConflict)
}

func TestResolveRejectionLadder(t *testing.T) {
	userID := uuid.New()
	minTotal := decimal.RequireFromString("200.00")
	usageLimit := 5
	perUserLimit := 1

	expired := percentCoupon("EXPIRED", 10, false)
	expiredAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	expired.ExpiresAt = &expiredAt

	belowMin := percentCoupon("MIN200", 10, false)
	belowMin.MinOrderTotal = &minTotal

	exhausted := percentCoupon("GLOBAL", 10, false)
	exhausted.UsageLimit = &usageLimit

	userExhausted := percentCoupon("ONCE", 10, false)
	userExhausted.PerUserLimit = &perUserLimit

	inactive := percentCoupon("PAUSED", 10, false)
	inactive.IsActive = false

	repo := newFakeCouponsRepo()
	for _, coupon := range []*models.Coupon{expired, belowMin, exhausted, userExhausted, inactive} {
		repo.add(coupon)
	}
	repo.totalUsed[exhausted.ID] = 5
	repo.userUsed[userExhausted.ID] = 1
	svc := newTestService(t, repo)

	cases := []struct {
		name string
		code string
		want pkgerrors.Code
	}{
		{name: "unknown code", code: "NOPE", want: pkgerrors.CodeCouponInvalid},
		{name: "inactive", code: "PAUSED", want: pkgerrors.CodeCouponInvalid},
		{name: "expired", code: "EXPIRED", want: pkgerrors.CodeCouponExpired},
		{name: "below minimum", code: "MIN200", want: pkgerrors.CodeCouponMinOrder},
		{name: "global limit", code: "GLOBAL", want: pkgerrors.CodeCouponLimit},
		{name: "per-user limit", code: "ONCE", want: pkgerrors.CodeCouponLimit},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Resolve(context.Background(), Quote{
				UserID:     userID,
				Items:      quoteItems("50.00"),
				CouponCode: tc.code,
			})
			assertCode(t, err, tc.want)
		})
	}
}

func TestResolveReferralSlotRejectsRegularCoupon(t *testing.T) {
	repo := newFakeCouponsRepo()
	repo.add(percentCoupon("NOTREF", 10, false))
	svc := newTestService(t, repo)

	_, err := svc.Resolve(context.Background(), Quote{
		UserID:       uuid.New(),
		Items:        quoteItems("50.00"),
		ReferralCode: "NOTREF",
	})
	assertCode(t, err, pkgerrors.CodeCouponInvalid)
}

func TestResolveRejectsNonPositiveQuantity(t *testing.T) {
	svc := newTestService(t, newFakeCouponsRepo())

	_, err := svc.Resolve(context.Background(), Quote{
		UserID: uuid.New(),
		Items:  []Item{{ProductID: uuid.New(), UnitPrice: decimal.NewFromInt(10), Quantity: 0}},
	})
	assertCode(t, err, pkgerrors.CodeValidation)
}
