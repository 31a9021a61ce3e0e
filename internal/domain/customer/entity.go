// internal/domain/customer/entity.go
package customer

import (
	"database/sql"
	"strconv"
	"strings"
	"time"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusPending   Status = "pending"
	StatusSuspended Status = "suspended"
	StatusInactive  Status = "inactive"
)

// Customer is the subscriber record as seen by the discount engine. The engine only ever
// writes the referral attribution columns.
type Customer struct {
	ID               int64          `json:"id" db:"id"`
	Name             string         `json:"name" db:"name"`
	Phone            sql.NullString `json:"phone,omitempty" db:"phone"`
	Status           Status         `json:"status" db:"status"`
	Address          sql.NullString `json:"address,omitempty" db:"address"`
	PackageID        sql.NullInt64  `json:"package_id,omitempty" db:"package_id"`
	ReferredBy       sql.NullInt64  `json:"referred_by,omitempty" db:"referred_by"`
	ReferralCodeUsed sql.NullString `json:"referral_code_used,omitempty" db:"referral_code_used"`
	CreatedAt        time.Time      `json:"created_at" db:"created_at"`
}

func (c *Customer) IsActive() bool {
	return c.Status == StatusActive
}

// WasReferred reports whether the customer already redeemed a referral code.
func (c *Customer) WasReferred() bool {
	return c.ReferredBy.Valid || c.ReferralCodeUsed.Valid
}

// InArea reports whether the address contains any of the area names, case-insensitively.
func (c *Customer) InArea(areas []string) bool {
	if !c.Address.Valid {
		return false
	}
	addr := strings.ToLower(c.Address.String)
	for _, a := range areas {
		a = strings.ToLower(strings.TrimSpace(a))
		if a != "" && strings.Contains(addr, a) {
			return true
		}
	}
	return false
}

// OnPackage reports whether the current package id is in ids.
func (c *Customer) OnPackage(ids []string) bool {
	if !c.PackageID.Valid {
		return false
	}
	return containsID(ids, c.PackageID.Int64)
}

// Is reports whether the customer's id is in ids.
func (c *Customer) Is(ids []string) bool {
	return containsID(ids, c.ID)
}

func containsID(ids []string, id int64) bool {
	want := strconv.FormatInt(id, 10)
	for _, s := range ids {
		if strings.TrimSpace(s) == want {
			return true
		}
	}
	return false
}
