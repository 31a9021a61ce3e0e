// internal/service/discount/resolver.go
package discount

import (
	"context"

	"isp-billing-service/internal/domain/customer"
	"isp-billing-service/internal/domain/discount"
	xerrors "isp-billing-service/internal/pkg/errors"
	"isp-billing-service/internal/pkg/money"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// CalculateDiscount returns what d takes off amount. Percentages are capped by
// MaxDiscountAmount; fixed amounts are returned as configured. The result is rounded and never
// negative.
func CalculateDiscount(d *discount.Discount, amount decimal.Decimal) decimal.Decimal {
	var v decimal.Decimal
	switch d.DiscountType {
	case discount.DiscountTypePercentage:
		v = money.Percentage(amount, d.DiscountValue)
		if d.MaxDiscountAmount.Valid && v.GreaterThan(d.MaxDiscountAmount.Decimal) {
			v = d.MaxDiscountAmount.Decimal
		}
	case discount.DiscountTypeFixed:
		v = d.DiscountValue
	}
	return money.NonNegative(money.Round(v))
}

// Matches reports whether the targeting rule of d selects c.
func Matches(d *discount.Discount, c *customer.Customer) bool {
	switch d.TargetType {
	case discount.TargetAll:
		return true
	case discount.TargetCustomer:
		return c.Is(d.TargetIDs)
	case discount.TargetArea:
		return c.InArea(d.TargetIDs)
	case discount.TargetPackage:
		return c.OnPackage(d.TargetIDs)
	}
	return false
}

// GetApplicableDiscounts returns the active discounts matching the customer today, newest
// first, each with the amount it would take off invoiceAmount.
func (s *DiscountService) GetApplicableDiscounts(ctx context.Context, customerID int64, invoiceAmount decimal.Decimal) ([]discount.Applicable, error) {
	if invoiceAmount.IsNegative() {
		return nil, xerrors.NewValidation("amount", "must not be negative")
	}

	c, err := s.customers.FindByID(ctx, customerID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	active, err := s.discounts.FindActiveAt(ctx, now)
	if err != nil {
		return nil, err
	}

	matching := lo.Filter(active, func(d discount.Discount, _ int) bool {
		return d.IsActive() && d.InWindow(now) && Matches(&d, c)
	})

	return lo.Map(matching, func(d discount.Discount, _ int) discount.Applicable {
		return discount.Applicable{
			Discount:           d,
			CalculatedDiscount: CalculateDiscount(&d, invoiceAmount),
		}
	}), nil
}

// BestDiscount returns the applicable discount with the largest amount. Ties go to the newest,
// which is first in the list.
func BestDiscount(applicable []discount.Applicable) (discount.Applicable, bool) {
	if len(applicable) == 0 {
		return discount.Applicable{}, false
	}
	best := lo.Reduce(applicable, func(acc discount.Applicable, d discount.Applicable, _ int) discount.Applicable {
		if d.CalculatedDiscount.GreaterThan(acc.CalculatedDiscount) {
			return d
		}
		return acc
	}, applicable[0])
	return best, true
}
