package postgres

import (
	"testing"

	"isp-billing-service/internal/domain/discount"

	"github.com/stretchr/testify/assert"
)

func TestUnpaidForTargetQueries(t *testing.T) {
	for _, target := range []discount.TargetType{
		discount.TargetAll, discount.TargetCustomer, discount.TargetPackage, discount.TargetArea,
	} {
		query, ok := unpaidForTargetQueries[target]
		if assert.True(t, ok, target) {
			assert.Contains(t, query, "FOR UPDATE OF i", target)
		}
	}

	// Area names are matched as literal substrings, like Customer.InArea.
	area := unpaidForTargetQueries[discount.TargetArea]
	assert.NotContains(t, area, "LIKE")
	assert.Contains(t, area, "strpos(lower(c.address), lower(btrim(area))) > 0")
}
