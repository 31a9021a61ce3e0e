package discount

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusDraft, StatusActive, true},
		{StatusActive, StatusDraft, true},
		{StatusDraft, StatusRetired, true},
		{StatusActive, StatusRetired, true},
		{StatusRetired, StatusActive, false},
		{StatusRetired, StatusDraft, false},
		{StatusActive, StatusActive, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"_to_"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestInWindowIsInclusiveByDay(t *testing.T) {
	d := Discount{
		StartDate: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
	}

	assert.True(t, d.InWindow(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, d.InWindow(time.Date(2024, 3, 31, 23, 59, 0, 0, time.UTC)))
	assert.False(t, d.InWindow(time.Date(2024, 2, 29, 23, 59, 0, 0, time.UTC)))
	assert.False(t, d.InWindow(time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)))
}

func TestInWindowUsesUTCDay(t *testing.T) {
	d := Discount{
		StartDate: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
	}
	eat := time.FixedZone("EAT", 3*60*60)

	// 2024-03-31 22:30 UTC, already April 1st in Nairobi.
	assert.True(t, d.InWindow(time.Date(2024, 4, 1, 1, 30, 0, 0, eat)))
	// 2024-02-29 21:30 UTC.
	assert.False(t, d.InWindow(time.Date(2024, 3, 1, 0, 30, 0, 0, eat)))
}

func TestTargetTypeRequiresIDs(t *testing.T) {
	assert.False(t, TargetAll.RequiresIDs())
	for _, tt := range []TargetType{TargetArea, TargetPackage, TargetCustomer} {
		assert.True(t, tt.RequiresIDs(), tt)
		assert.True(t, tt.Valid(), tt)
	}
	assert.False(t, TargetType("region").Valid())
}
