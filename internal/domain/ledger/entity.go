// internal/domain/ledger/entity.go
package ledger

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

type EntryType string

const (
	EntryIncome  EntryType = "income"
	EntryExpense EntryType = "expense"
)

// Categories written by the discount engine.
const (
	CategoryReferralBenefit      = "referral_benefit"
	CategoryInstallationDiscount = "installation_discount"
	CategoryMarketingFee         = "marketing_fee"
	CategoryCompensationDiscount = "compensation_discount"
)

// Entry is one accounting ledger row.
type Entry struct {
	ID          int64           `json:"id" db:"id"`
	Category    string          `json:"category" db:"category"`
	EntryType   EntryType       `json:"entry_type" db:"entry_type"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
	Description string          `json:"description" db:"description"`
	Reference   string          `json:"reference" db:"reference"`
	CustomerID  sql.NullInt64   `json:"customer_id,omitempty" db:"customer_id"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}
