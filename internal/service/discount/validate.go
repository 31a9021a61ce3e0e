// internal/service/discount/validate.go
package discount

import (
	"isp-billing-service/internal/domain/discount"
	xerrors "isp-billing-service/internal/pkg/errors"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Validate checks a discount definition. It is run on create and on the merged result of
// every update.
func Validate(d *discount.Discount) error {
	if d.Name == "" {
		return xerrors.NewValidation("name", "is required")
	}
	if len(d.Name) > 255 {
		return xerrors.NewValidation("name", "must be at most 255 characters")
	}

	switch d.DiscountType {
	case discount.DiscountTypePercentage:
		if !d.DiscountValue.IsPositive() || d.DiscountValue.GreaterThan(hundred) {
			return xerrors.NewValidation("discount_value", "percentage must be greater than 0 and at most 100")
		}
	case discount.DiscountTypeFixed:
		if !d.DiscountValue.IsPositive() {
			return xerrors.NewValidation("discount_value", "fixed amount must be greater than 0")
		}
	default:
		return xerrors.NewValidation("discount_type", "must be percentage or fixed")
	}

	if !d.TargetType.Valid() {
		return xerrors.NewValidation("target_type", "must be one of all, area, package, customer")
	}
	if d.TargetType.RequiresIDs() && len(d.TargetIDs) == 0 {
		return xerrors.NewValidation("target_ids", "required for target type "+string(d.TargetType))
	}

	if d.StartDate.IsZero() || d.EndDate.IsZero() {
		return xerrors.NewValidation("start_date", "start and end dates are required")
	}
	if d.StartDate.After(d.EndDate) {
		return xerrors.NewValidation("end_date", "must not be before start_date")
	}

	if d.MaxDiscountAmount.Valid && d.MaxDiscountAmount.Decimal.IsNegative() {
		return xerrors.NewValidation("max_discount_amount", "must not be negative")
	}
	return nil
}
