package services

import (
	"context"
	"strings"
	"time"

	"booking-system/internal/status"
	"booking-system/models"

	"github.com/shopspring/decimal"
)

// CatalogStore is the persistence surface for services and coupons.
type CatalogStore interface {
	GetService(ctx context.Context, serviceID string) (*models.Service, error)
	ListServices(ctx context.Context) ([]*models.Service, error)
	FindCouponByCode(ctx context.Context, code string) (*models.Coupon, error)
}

// CatalogService answers price questions for the rest of the system. All
// money arithmetic happens in decimal; floats only appear at the storage
// boundary.
type CatalogService struct {
	store CatalogStore
	now   func() time.Time
}

func NewCatalogService(store CatalogStore) *CatalogService {
	return &CatalogService{store: store, now: time.Now}
}

// ListServices returns the bookable catalog.
func (s *CatalogService) ListServices(ctx context.Context) ([]*models.Service, error) {
	return s.store.ListServices(ctx)
}

// GetService returns one active service.
func (s *CatalogService) GetService(ctx context.Context, serviceID string) (*models.Service, error) {
	svc, err := s.store.GetService(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	if !svc.Active {
		return nil, status.ErrServiceNotFound
	}
	return svc, nil
}

// CurrentPrice returns the price a booking created right now would carry.
func (s *CatalogService) CurrentPrice(ctx context.Context, serviceID string) (decimal.Decimal, error) {
	svc, err := s.store.GetService(ctx, serviceID)
	if err != nil {
		return decimal.Zero, err
	}
	if !svc.Active {
		return decimal.Zero, status.ErrServiceNotFound
	}
	return decimal.NewFromFloat(svc.Price), nil
}

// ApplyCoupon discounts price by the named coupon. Percent coupons take a
// percentage off, fixed coupons a flat amount; the result never goes below
// zero. Unknown, inactive and expired codes all map to ErrCouponInvalid.
func (s *CatalogService) ApplyCoupon(ctx context.Context, price decimal.Decimal, code string) (decimal.Decimal, error) {
	coupon, err := s.store.FindCouponByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return decimal.Zero, err
	}
	if coupon == nil || !coupon.Active {
		return decimal.Zero, status.ErrCouponInvalid
	}
	if coupon.ExpiresAt != nil && coupon.ExpiresAt.Before(s.now()) {
		return decimal.Zero, status.ErrCouponInvalid
	}

	value := decimal.NewFromFloat(coupon.Value)
	var discounted decimal.Decimal
	switch coupon.Kind {
	case models.CouponKindPercent:
		factor := decimal.NewFromInt(100).Sub(value).Div(decimal.NewFromInt(100))
		discounted = price.Mul(factor)
	case models.CouponKindFixed:
		discounted = price.Sub(value)
	default:
		return decimal.Zero, status.ErrCouponInvalid
	}

	if discounted.IsNegative() {
		return decimal.Zero, nil
	}
	return discounted.Round(2), nil
}
