package discount

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"testing"
	"time"

	"isp-billing-service/internal/domain/customer"
	"isp-billing-service/internal/domain/discount"
	"isp-billing-service/internal/domain/invoice"
	"isp-billing-service/internal/domain/ledger"
	"isp-billing-service/internal/events"
	xerrors "isp-billing-service/internal/pkg/errors"
	"isp-billing-service/internal/testutil"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var today = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

func newService(t *testing.T) (*DiscountService, *testutil.Store, *testutil.Recorder) {
	t.Helper()
	store := testutil.NewStore()
	rec := &testutil.Recorder{}
	svc := NewDiscountService(
		store.Discounts, store.Applications, store.Invoices, store.Customers, store.Ledger,
		store, rec, zap.NewNop(),
	)
	svc.now = func() time.Time { return today }
	return svc, store, rec
}

func amount(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func createRequest(name string, typ discount.DiscountType, value string, target discount.TargetType, ids ...string) *discount.CreateDiscountRequest {
	return &discount.CreateDiscountRequest{
		Name:          name,
		DiscountType:  typ,
		DiscountValue: amount(value),
		TargetType:    target,
		TargetIDs:     ids,
		StartDate:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:       time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
	}
}

func TestCalculateDiscount(t *testing.T) {
	tests := []struct {
		name   string
		typ    discount.DiscountType
		value  string
		cap    string
		amount string
		want   string
	}{
		{"percentage_uncapped", discount.DiscountTypePercentage, "10", "", "100000", "10000.00"},
		{"percentage_capped", discount.DiscountTypePercentage, "50", "5000", "100000", "5000.00"},
		{"percentage_below_cap", discount.DiscountTypePercentage, "5", "10000", "100000", "5000.00"},
		{"percentage_rounded", discount.DiscountTypePercentage, "7.25", "", "123.45", "8.95"},
		{"full_percentage_equals_amount", discount.DiscountTypePercentage, "100", "", "4500.50", "4500.50"},
		{"fixed_verbatim", discount.DiscountTypeFixed, "20000", "", "100000", "20000.00"},
		{"fixed_ignores_cap", discount.DiscountTypeFixed, "20000", "100", "100000", "20000.00"},
		{"fixed_larger_than_amount", discount.DiscountTypeFixed, "20000", "", "5000", "20000.00"},
		{"zero_amount", discount.DiscountTypePercentage, "10", "", "0", "0.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &discount.Discount{DiscountType: tt.typ, DiscountValue: amount(tt.value)}
			if tt.cap != "" {
				d.MaxDiscountAmount = decimal.NewNullDecimal(amount(tt.cap))
			}
			got := CalculateDiscount(d, amount(tt.amount))
			assert.Equal(t, tt.want, got.StringFixed(2))
			assert.False(t, got.IsNegative())
		})
	}
}

func TestPercentageNeverExceedsAmount(t *testing.T) {
	for _, v := range []string{"0.01", "1", "33.333", "99.99", "100"} {
		for _, a := range []string{"0", "0.01", "1", "999.99", "100000"} {
			d := &discount.Discount{DiscountType: discount.DiscountTypePercentage, DiscountValue: amount(v)}
			got := CalculateDiscount(d, amount(a))
			assert.True(t, got.LessThanOrEqual(amount(a)), "value=%s amount=%s got=%s", v, a, got)
		}
	}
}

func TestValidate(t *testing.T) {
	base := func() *discount.Discount {
		return &discount.Discount{
			Name:          "Outage credit",
			DiscountType:  discount.DiscountTypePercentage,
			DiscountValue: amount("10"),
			TargetType:    discount.TargetAll,
			StartDate:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			EndDate:       time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
		}
	}

	tests := []struct {
		name   string
		mutate func(d *discount.Discount)
		field  string
	}{
		{"valid", func(d *discount.Discount) {}, ""},
		{"zero_percentage", func(d *discount.Discount) { d.DiscountValue = decimal.Zero }, "discount_value"},
		{"above_hundred", func(d *discount.Discount) { d.DiscountValue = amount("100.01") }, "discount_value"},
		{"exactly_hundred", func(d *discount.Discount) { d.DiscountValue = amount("100") }, ""},
		{"negative_fixed", func(d *discount.Discount) {
			d.DiscountType = discount.DiscountTypeFixed
			d.DiscountValue = amount("-1")
		}, "discount_value"},
		{"unknown_type", func(d *discount.Discount) { d.DiscountType = "bogo" }, "discount_type"},
		{"area_without_ids", func(d *discount.Discount) { d.TargetType = discount.TargetArea }, "target_ids"},
		{"customer_with_ids", func(d *discount.Discount) {
			d.TargetType = discount.TargetCustomer
			d.TargetIDs = pq.StringArray{"7"}
		}, ""},
		{"start_after_end", func(d *discount.Discount) { d.StartDate = d.EndDate.AddDate(0, 0, 1) }, "end_date"},
		{"same_day_window", func(d *discount.Discount) { d.EndDate = d.StartDate }, ""},
		{"negative_cap", func(d *discount.Discount) { d.MaxDiscountAmount = decimal.NewNullDecimal(amount("-5")) }, "max_discount_amount"},
		{"missing_name", func(d *discount.Discount) { d.Name = "" }, "name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := base()
			tt.mutate(d)
			err := Validate(d)
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var ve *xerrors.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
			assert.ErrorIs(t, err, xerrors.ErrInvalidInput)
		})
	}
}

func TestCreateDiscount(t *testing.T) {
	ctx := context.Background()

	t.Run("active_by_default", func(t *testing.T) {
		svc, _, rec := newService(t)
		resp, err := svc.CreateDiscount(ctx, createRequest("Outage", discount.DiscountTypeFixed, "500", discount.TargetAll))
		require.NoError(t, err)
		assert.Equal(t, discount.StatusActive, resp.Discount.Status)
		assert.NotZero(t, resp.Discount.ID)
		assert.Len(t, rec.Of(events.KindDiscountCreated), 1)
	})

	t.Run("draft", func(t *testing.T) {
		svc, _, _ := newService(t)
		req := createRequest("Later", discount.DiscountTypeFixed, "500", discount.TargetAll)
		req.Draft = true
		resp, err := svc.CreateDiscount(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, discount.StatusDraft, resp.Discount.Status)
	})

	t.Run("blank_target_ids_rejected", func(t *testing.T) {
		svc, _, _ := newService(t)
		_, err := svc.CreateDiscount(ctx, createRequest("Area", discount.DiscountTypeFixed, "500", discount.TargetArea, " ", ""))
		assert.ErrorIs(t, err, xerrors.ErrInvalidInput)
	})

	t.Run("applies_to_existing_invoices_once", func(t *testing.T) {
		svc, store, _ := newService(t)
		c := store.AddCustomer(customer.Customer{Name: "Amina"})
		inv := store.AddInvoice(invoice.Invoice{CustomerID: c, Amount: amount("10000")})

		req := createRequest("Outage", discount.DiscountTypePercentage, "10", discount.TargetAll)
		req.ApplyToExistingInvoices = true
		resp, err := svc.CreateDiscount(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, 1, resp.AppliedInvoices)
		assert.Empty(t, resp.ApplyError)
		assert.Equal(t, "9000.00", store.Invoice(inv).FinalAmount.StringFixed(2))
	})
}

func TestGetApplicableDiscounts(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newService(t)

	c := store.AddCustomer(customer.Customer{
		Name:      "Brian",
		Address:   sql.NullString{String: "Westlands, Nairobi", Valid: true},
		PackageID: sql.NullInt64{Int64: 2, Valid: true},
	})
	other := store.AddCustomer(customer.Customer{Name: "Other"})

	mk := func(req *discount.CreateDiscountRequest) int64 {
		resp, err := svc.CreateDiscount(ctx, req)
		require.NoError(t, err)
		return resp.Discount.ID
	}
	all := mk(createRequest("All", discount.DiscountTypeFixed, "100", discount.TargetAll))
	area := mk(createRequest("Area", discount.DiscountTypePercentage, "10", discount.TargetArea, "WESTLANDS"))
	pkg := mk(createRequest("Package", discount.DiscountTypeFixed, "300", discount.TargetPackage, "2"))
	mine := mk(createRequest("Customer", discount.DiscountTypeFixed, "400", discount.TargetCustomer, itoa(c)))
	mk(createRequest("Someone else", discount.DiscountTypeFixed, "999", discount.TargetCustomer, itoa(other)))
	mk(createRequest("Wrong area", discount.DiscountTypeFixed, "999", discount.TargetArea, "mombasa"))

	expired := createRequest("Expired", discount.DiscountTypeFixed, "999", discount.TargetAll)
	expired.StartDate = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	expired.EndDate = time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)
	mk(expired)

	draft := createRequest("Draft", discount.DiscountTypeFixed, "999", discount.TargetAll)
	draft.Draft = true
	mk(draft)

	got, err := svc.GetApplicableDiscounts(ctx, c, amount("5000"))
	require.NoError(t, err)

	ids := make([]int64, 0, len(got))
	for _, d := range got {
		ids = append(ids, d.ID)
	}
	assert.Equal(t, []int64{mine, pkg, area, all}, ids, "newest first")
	assert.Equal(t, "500.00", got[2].CalculatedDiscount.StringFixed(2))

	_, err = svc.GetApplicableDiscounts(ctx, 9999, amount("5000"))
	assert.ErrorIs(t, err, xerrors.ErrNotFound)

	_, err = svc.GetApplicableDiscounts(ctx, c, amount("-1"))
	assert.ErrorIs(t, err, xerrors.ErrInvalidInput)
}

func TestBestDiscount(t *testing.T) {
	ten := discount.Applicable{Discount: discount.Discount{ID: 1}, CalculatedDiscount: amount("10000")}
	fifteen := discount.Applicable{Discount: discount.Discount{ID: 2}, CalculatedDiscount: amount("15000")}

	best, ok := BestDiscount([]discount.Applicable{ten, fifteen})
	require.True(t, ok)
	assert.Equal(t, int64(2), best.ID)

	tie := discount.Applicable{Discount: discount.Discount{ID: 3}, CalculatedDiscount: amount("15000")}
	best, _ = BestDiscount([]discount.Applicable{tie, fifteen})
	assert.Equal(t, int64(3), best.ID, "first of equals wins")

	_, ok = BestDiscount(nil)
	assert.False(t, ok)
}

func TestUpdateDiscount(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)

	resp, err := svc.CreateDiscount(ctx, createRequest("Outage", discount.DiscountTypePercentage, "10", discount.TargetAll))
	require.NoError(t, err)
	id := resp.Discount.ID

	value := amount("150")
	_, err = svc.UpdateDiscount(ctx, id, &discount.UpdateDiscountRequest{DiscountValue: &value})
	assert.ErrorIs(t, err, xerrors.ErrInvalidInput, "merged entity is re-validated")

	name := "Outage March"
	capAmount := amount("2500")
	d, err := svc.UpdateDiscount(ctx, id, &discount.UpdateDiscountRequest{Name: &name, MaxDiscountAmount: &capAmount})
	require.NoError(t, err)
	assert.Equal(t, name, d.Name)
	assert.True(t, d.MaxDiscountAmount.Valid)

	d, err = svc.UpdateDiscount(ctx, id, &discount.UpdateDiscountRequest{ClearMaxDiscount: true})
	require.NoError(t, err)
	assert.False(t, d.MaxDiscountAmount.Valid)

	_, err = svc.UpdateDiscount(ctx, 404, &discount.UpdateDiscountRequest{Name: &name})
	assert.ErrorIs(t, err, xerrors.ErrNotFound)
}

func TestLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newService(t)

	resp, err := svc.CreateDiscount(ctx, createRequest("Outage", discount.DiscountTypeFixed, "100", discount.TargetAll))
	require.NoError(t, err)
	id := resp.Discount.ID

	d, err := svc.DeactivateDiscount(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, discount.StatusDraft, d.Status)

	d, err = svc.ActivateDiscount(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, discount.StatusActive, d.Status)

	t.Run("delete_without_applications_is_hard", func(t *testing.T) {
		res, err := svc.DeleteDiscount(ctx, id)
		require.NoError(t, err)
		assert.True(t, res.Deleted)
		_, err = svc.GetDiscount(ctx, id)
		assert.ErrorIs(t, err, xerrors.ErrNotFound)
	})

	t.Run("delete_with_applications_retires", func(t *testing.T) {
		c := store.AddCustomer(customer.Customer{Name: "Amina"})
		store.AddInvoice(invoice.Invoice{CustomerID: c, Amount: amount("1000")})

		req := createRequest("Applied", discount.DiscountTypeFixed, "100", discount.TargetAll)
		req.ApplyToExistingInvoices = true
		resp, err := svc.CreateDiscount(ctx, req)
		require.NoError(t, err)
		require.Equal(t, 1, resp.AppliedInvoices)

		res, err := svc.DeleteDiscount(ctx, resp.Discount.ID)
		require.NoError(t, err)
		assert.True(t, res.Retired)

		d, err := svc.GetDiscount(ctx, resp.Discount.ID)
		require.NoError(t, err)
		assert.Equal(t, discount.StatusRetired, d.Status)

		apps, err := svc.GetDiscountApplications(ctx, d.ID)
		require.NoError(t, err)
		assert.Len(t, apps, 1)

		_, err = svc.ActivateDiscount(ctx, d.ID)
		assert.ErrorIs(t, err, xerrors.ErrConflict, "retired is terminal")

		name := "again"
		_, err = svc.UpdateDiscount(ctx, d.ID, &discount.UpdateDiscountRequest{Name: &name})
		assert.ErrorIs(t, err, xerrors.ErrConflict)
	})
}

func TestApplyDiscountToExistingInvoices(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*DiscountService, *testutil.Store, int64, []int64) {
		svc, store, _ := newService(t)
		nairobi := store.AddCustomer(customer.Customer{Name: "A", Address: sql.NullString{String: "Nairobi CBD", Valid: true}})
		mombasa := store.AddCustomer(customer.Customer{Name: "B", Address: sql.NullString{String: "Nyali, Mombasa", Valid: true}})

		invs := []int64{
			store.AddInvoice(invoice.Invoice{CustomerID: nairobi, Amount: amount("10000")}),
			store.AddInvoice(invoice.Invoice{CustomerID: nairobi, Amount: amount("400"), FinalAmount: amount("300"), DiscountAmount: amount("100")}),
			store.AddInvoice(invoice.Invoice{CustomerID: nairobi, Amount: amount("8000"), Status: invoice.StatusPaid}),
			store.AddInvoice(invoice.Invoice{CustomerID: mombasa, Amount: amount("10000")}),
			store.AddInvoice(invoice.Invoice{CustomerID: nairobi, Amount: amount("10000"), CreatedAt: time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC)}),
		}

		resp, err := svc.CreateDiscount(ctx, createRequest("Nairobi outage", discount.DiscountTypeFixed, "500", discount.TargetArea, "nairobi"))
		require.NoError(t, err)
		return svc, store, resp.Discount.ID, invs
	}

	t.Run("matches_target_window_and_status", func(t *testing.T) {
		svc, store, id, invs := setup(t)

		n, err := svc.ApplyDiscountToExistingInvoices(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		first := store.Invoice(invs[0])
		assert.Equal(t, "500.00", first.DiscountAmount.StringFixed(2))
		assert.Equal(t, "9500.00", first.FinalAmount.StringFixed(2))

		// Final amount never goes negative and the recorded discount is what was left to pay.
		second := store.Invoice(invs[1])
		assert.True(t, second.FinalAmount.IsZero())
		assert.Equal(t, "400.00", second.DiscountAmount.StringFixed(2))
		apps := store.ApplicationsFor(invs[1])
		require.Len(t, apps, 1)
		assert.Equal(t, "300.00", apps[0].DiscountAmount.StringFixed(2))

		assert.Empty(t, store.ApplicationsFor(invs[2]), "paid")
		assert.Empty(t, store.ApplicationsFor(invs[3]), "other area")
		assert.Empty(t, store.ApplicationsFor(invs[4]), "outside window")

		assert.Len(t, store.LedgerByCategory(ledger.CategoryCompensationDiscount), 2)
	})

	t.Run("idempotent", func(t *testing.T) {
		svc, store, id, invs := setup(t)

		_, err := svc.ApplyDiscountToExistingInvoices(ctx, id)
		require.NoError(t, err)
		n, err := svc.ApplyDiscountToExistingInvoices(ctx, id)
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.Len(t, store.ApplicationsFor(invs[0]), 1)
		assert.Equal(t, "9500.00", store.Invoice(invs[0]).FinalAmount.StringFixed(2))
	})

	t.Run("failure_rolls_back_whole_batch", func(t *testing.T) {
		svc, store, id, invs := setup(t)
		store.Fail("ledger.create", errors.New("disk full"))

		_, err := svc.ApplyDiscountToExistingInvoices(ctx, id)
		require.Error(t, err)

		for _, inv := range invs {
			assert.Empty(t, store.ApplicationsFor(inv))
		}
		assert.Equal(t, "10000.00", store.Invoice(invs[0]).FinalAmount.StringFixed(2))
		assert.True(t, store.Invoice(invs[0]).DiscountAmount.IsZero())
	})

	t.Run("draft_is_rejected", func(t *testing.T) {
		svc, _, id, _ := setup(t)
		_, err := svc.DeactivateDiscount(ctx, id)
		require.NoError(t, err)

		_, err = svc.ApplyDiscountToExistingInvoices(ctx, id)
		assert.ErrorIs(t, err, xerrors.ErrConflict)
	})
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
