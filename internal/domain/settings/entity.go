// internal/domain/settings/entity.go
package settings

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Setting is one key/value row of the settings table.
type Setting struct {
	Key       string    `json:"key" db:"key"`
	Value     string    `json:"value" db:"value"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Keys owned by the referral engine.
const (
	KeyReferrerCashAmount           = "referrer_cash_amount"
	KeyReferrerDiscountFixed        = "referrer_discount_fixed"
	KeyReferredInstallationDiscount = "referred_installation_discount"
	KeyReferralDefaultMaxUses       = "referral_default_max_uses"
	KeyReferralDefaultExpiryDays    = "referral_default_expiry_days"
)

// ReferralKeys lists every key ReferralSettings is built from.
var ReferralKeys = []string{
	KeyReferrerCashAmount,
	KeyReferrerDiscountFixed,
	KeyReferredInstallationDiscount,
	KeyReferralDefaultMaxUses,
	KeyReferralDefaultExpiryDays,
}

// ReferralSettings is the typed view of the referral key/value rows.
type ReferralSettings struct {
	ReferrerCashAmount           decimal.Decimal `json:"referrer_cash_amount"`
	ReferrerDiscountFixed        decimal.Decimal `json:"referrer_discount_fixed"`
	ReferredInstallationDiscount decimal.Decimal `json:"referred_installation_discount"`
	DefaultMaxUses               int             `json:"default_max_uses"`
	DefaultExpiryDays            int             `json:"default_expiry_days"`
}

// DefaultReferralSettings is used for keys missing from the table.
func DefaultReferralSettings() ReferralSettings {
	return ReferralSettings{
		ReferrerCashAmount:           decimal.NewFromInt(50000),
		ReferrerDiscountFixed:        decimal.NewFromInt(25000),
		ReferredInstallationDiscount: decimal.NewFromInt(100000),
		DefaultMaxUses:               50,
		DefaultExpiryDays:            365,
	}
}

// ParseReferralSettings overlays rows onto the defaults. Unknown keys are ignored; a malformed
// value for a known key is an error.
func ParseReferralSettings(rows []Setting) (ReferralSettings, error) {
	s := DefaultReferralSettings()
	for _, row := range rows {
		var err error
		switch row.Key {
		case KeyReferrerCashAmount:
			s.ReferrerCashAmount, err = parseAmount(row)
		case KeyReferrerDiscountFixed:
			s.ReferrerDiscountFixed, err = parseAmount(row)
		case KeyReferredInstallationDiscount:
			s.ReferredInstallationDiscount, err = parseAmount(row)
		case KeyReferralDefaultMaxUses:
			s.DefaultMaxUses, err = parsePositiveInt(row)
		case KeyReferralDefaultExpiryDays:
			s.DefaultExpiryDays, err = parsePositiveInt(row)
		}
		if err != nil {
			return ReferralSettings{}, err
		}
	}
	return s, nil
}

// Rows renders the settings back into key/value rows.
func (s ReferralSettings) Rows() []Setting {
	return []Setting{
		{Key: KeyReferrerCashAmount, Value: s.ReferrerCashAmount.String()},
		{Key: KeyReferrerDiscountFixed, Value: s.ReferrerDiscountFixed.String()},
		{Key: KeyReferredInstallationDiscount, Value: s.ReferredInstallationDiscount.String()},
		{Key: KeyReferralDefaultMaxUses, Value: strconv.Itoa(s.DefaultMaxUses)},
		{Key: KeyReferralDefaultExpiryDays, Value: strconv.Itoa(s.DefaultExpiryDays)},
	}
}

func parseAmount(row Setting) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(row.Value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("setting %s: invalid amount %q: %w", row.Key, row.Value, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("setting %s: amount cannot be negative", row.Key)
	}
	return d, nil
}

func parsePositiveInt(row Setting) (int, error) {
	n, err := strconv.Atoi(row.Value)
	if err != nil {
		return 0, fmt.Errorf("setting %s: invalid integer %q: %w", row.Key, row.Value, err)
	}
	if n < 1 {
		return 0, fmt.Errorf("setting %s: must be at least 1", row.Key)
	}
	return n, nil
}

type UpdateReferralSettingsRequest struct {
	ReferrerCashAmount           *decimal.Decimal `json:"referrer_cash_amount"`
	ReferrerDiscountFixed        *decimal.Decimal `json:"referrer_discount_fixed"`
	ReferredInstallationDiscount *decimal.Decimal `json:"referred_installation_discount"`
	DefaultMaxUses               *int             `json:"default_max_uses" binding:"omitempty,min=1"`
	DefaultExpiryDays            *int             `json:"default_expiry_days" binding:"omitempty,min=1"`
}
