package referral

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"isp-billing-service/internal/domain/customer"
	"isp-billing-service/internal/domain/ledger"
	"isp-billing-service/internal/domain/referral"
	"isp-billing-service/internal/events"
	xerrors "isp-billing-service/internal/pkg/errors"
	"isp-billing-service/internal/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newService(t *testing.T) (*ReferralService, *testutil.Store, *testutil.Recorder) {
	t.Helper()
	store := testutil.NewStore()
	rec := &testutil.Recorder{}
	svc := NewReferralService(
		store.Codes, store.Transactions, store.Marketing, store.Customers, store.Ledger,
		store, testutil.DefaultSettings(), rec, zap.NewNop(),
	)
	svc.now = func() time.Time { return now }
	return svc, store, rec
}

func personalCode(owner int64, code string, maxUses, used int) referral.ReferralCode {
	return referral.ReferralCode{
		CustomerID: sql.NullInt64{Int64: owner, Valid: true},
		Code:       code,
		MaxUses:    maxUses,
		UsageCount: used,
		ExpiresAt:  now.AddDate(1, 0, 0),
		IsActive:   true,
	}
}

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}

func TestGenerateReferralCode(t *testing.T) {
	ctx := context.Background()

	t.Run("format", func(t *testing.T) {
		svc, _, _ := newService(t)
		pattern := regexp.MustCompile(`^REF[A-Z0-9]{5}$`)
		for i := 0; i < 20; i++ {
			code, err := svc.GenerateReferralCode(ctx)
			require.NoError(t, err)
			assert.Regexp(t, pattern, code)
		}
	})

	t.Run("exhausted_retries", func(t *testing.T) {
		svc, store, _ := newService(t)
		svc.random = zeroReader{}
		store.AddCode(referral.ReferralCode{Code: "REFAAAAA", MaxUses: 1, ExpiresAt: now, IsActive: true})

		_, err := svc.GenerateReferralCode(ctx)
		assert.ErrorIs(t, err, xerrors.ErrExhaustedRetries)
	})
}

func TestCreateReferralCode(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newService(t)
	owner := store.AddCustomer(customer.Customer{Name: "Wanjiru"})

	c, err := svc.CreateReferralCode(ctx, owner, referral.CodeOptions{})
	require.NoError(t, err)
	assert.Equal(t, 50, c.MaxUses)
	assert.Equal(t, now.AddDate(0, 0, 365), c.ExpiresAt)
	assert.True(t, c.IsActive)
	assert.Zero(t, c.UsageCount)

	_, err = svc.CreateReferralCode(ctx, owner, referral.CodeOptions{MaxUses: 5})
	assert.ErrorIs(t, err, xerrors.ErrConflict, "one active code per customer")

	require.NoError(t, svc.DeactivateReferralCode(ctx, c.ID))
	again, err := svc.CreateReferralCode(ctx, owner, referral.CodeOptions{MaxUses: 5, ExpiryDays: 30})
	require.NoError(t, err)
	assert.Equal(t, 5, again.MaxUses)
	assert.Equal(t, now.AddDate(0, 0, 30), again.ExpiresAt)

	got, err := svc.GetCustomerReferralCode(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, again.Code, got.Code)

	_, err = svc.CreateReferralCode(ctx, 9999, referral.CodeOptions{})
	assert.ErrorIs(t, err, xerrors.ErrNotFound)
}

func TestValidateReferralCode(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newService(t)
	owner := store.AddCustomer(customer.Customer{Name: "Otieno"})

	store.AddCode(personalCode(owner, "REFAB123", 1, 1))
	store.AddCode(personalCode(owner, "REFOK001", 10, 0))

	expired := personalCode(owner, "REFOLD01", 10, 0)
	expired.ExpiresAt = now.Add(-time.Hour)
	expired.IsActive = true
	store.AddCode(expired)

	inactive := personalCode(owner, "REFOFF01", 10, 0)
	inactive.IsActive = false
	store.AddCode(inactive)

	newCustomer := int64(12345)
	tests := []struct {
		name     string
		code     string
		customer *int64
		valid    bool
		reason   string
	}{
		{"exhausted", "REFAB123", nil, false, referral.ReasonExpiredOrExhausted},
		{"expired", "REFOLD01", nil, false, referral.ReasonExpiredOrExhausted},
		{"inactive", "REFOFF01", nil, false, referral.ReasonInactive},
		{"unknown", "REFNOPE1", nil, false, referral.ReasonNotFound},
		{"self", "REFOK001", &owner, false, referral.ReasonSelfReferral},
		{"valid_lowercase", "refok001", &newCustomer, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := svc.ValidateReferralCode(ctx, tt.code, tt.customer)
			require.NoError(t, err)
			assert.Equal(t, tt.valid, res.Valid)
			assert.Equal(t, tt.reason, res.Reason)
			if tt.valid {
				assert.Equal(t, "Otieno", res.ReferrerName)
			}
		})
	}
}

func TestApplyReferralBenefitRule(t *testing.T) {
	ctx := context.Background()

	t.Run("fixed_code_pays_cash_regardless_of_hint", func(t *testing.T) {
		svc, store, rec := newService(t)
		referred := store.AddCustomer(customer.Customer{Name: "New", Status: customer.StatusPending})
		store.AddCode(referral.ReferralCode{Code: "REFMKT01", MaxUses: 100, ExpiresAt: now.AddDate(0, 1, 0), IsActive: true})
		store.AddMarketing(referral.MarketingReferral{MarketerName: "Field Team", ReferralCode: "REFMKT01", Status: referral.MarketingUnpaid})

		resp, err := svc.ApplyReferral(ctx, &referral.ApplyReferralRequest{
			Code:               "REFMKT01",
			ReferredCustomerID: referred,
			BenefitTypeHint:    referral.BenefitDiscount,
		})
		require.NoError(t, err)
		assert.Equal(t, referral.BenefitCash, resp.Benefit.Type)
		assert.Equal(t, "50000", resp.Benefit.Amount.String())
		assert.Equal(t, "Field Team", resp.ReferrerName)
		assert.False(t, resp.Transaction.ReferrerID.Valid)
		assert.Len(t, rec.Of(events.KindReferralRedeemed), 1)
	})

	t.Run("active_owner_earns_billing_credit", func(t *testing.T) {
		svc, store, _ := newService(t)
		owner := store.AddCustomer(customer.Customer{Name: "Owner", Status: customer.StatusActive})
		referred := store.AddCustomer(customer.Customer{Name: "New", Status: customer.StatusPending})
		codeID := store.AddCode(personalCode(owner, "REFPER01", 5, 0))

		resp, err := svc.ApplyReferral(ctx, &referral.ApplyReferralRequest{
			Code:               "REFPER01",
			ReferredCustomerID: referred,
			BenefitTypeHint:    referral.BenefitCash,
		})
		require.NoError(t, err)
		assert.Equal(t, referral.BenefitDiscount, resp.Benefit.Type)
		assert.Equal(t, "25000", resp.Benefit.Amount.String())
		assert.Equal(t, "100000", resp.InstallationCredit.String())

		assert.Equal(t, 1, store.Code(codeID).UsageCount)

		stamped := store.Customer(referred)
		assert.Equal(t, owner, stamped.ReferredBy.Int64)
		assert.Equal(t, "REFPER01", stamped.ReferralCodeUsed.String)

		txns := store.TransactionsFor(referred)
		require.Len(t, txns, 1)
		assert.Equal(t, referral.TransactionPending, txns[0].Status)
		assert.Equal(t, owner, txns[0].ReferrerID.Int64)

		install := store.LedgerByCategory(ledger.CategoryInstallationDiscount)
		require.Len(t, install, 1)
		assert.Equal(t, referred, install[0].CustomerID.Int64)
		assert.Equal(t, "100000", install[0].Amount.String())
	})

	t.Run("inactive_owner_pays_cash", func(t *testing.T) {
		svc, store, _ := newService(t)
		owner := store.AddCustomer(customer.Customer{Name: "Lead", Status: customer.StatusPending})
		referred := store.AddCustomer(customer.Customer{Name: "New"})
		store.AddCode(personalCode(owner, "REFPER02", 5, 0))

		resp, err := svc.ApplyReferral(ctx, &referral.ApplyReferralRequest{Code: "REFPER02", ReferredCustomerID: referred})
		require.NoError(t, err)
		assert.Equal(t, referral.BenefitCash, resp.Benefit.Type)
		assert.Equal(t, "50000", resp.Benefit.Amount.String())
	})
}

func TestApplyReferralRejections(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newService(t)
	owner := store.AddCustomer(customer.Customer{Name: "Owner"})
	codeID := store.AddCode(personalCode(owner, "REFPER01", 5, 0))
	store.AddCode(personalCode(owner, "REFFULL1", 1, 1))

	t.Run("self_referral", func(t *testing.T) {
		_, err := svc.ApplyReferral(ctx, &referral.ApplyReferralRequest{Code: "REFPER01", ReferredCustomerID: owner})
		assert.ErrorIs(t, err, xerrors.ErrConflict)
		assert.Zero(t, store.Code(codeID).UsageCount)
	})

	t.Run("unknown_code", func(t *testing.T) {
		referred := store.AddCustomer(customer.Customer{Name: "X"})
		_, err := svc.ApplyReferral(ctx, &referral.ApplyReferralRequest{Code: "REFNONE1", ReferredCustomerID: referred})
		assert.ErrorIs(t, err, xerrors.ErrNotFound)
	})

	t.Run("exhausted_code", func(t *testing.T) {
		referred := store.AddCustomer(customer.Customer{Name: "Y"})
		_, err := svc.ApplyReferral(ctx, &referral.ApplyReferralRequest{Code: "REFFULL1", ReferredCustomerID: referred})
		var ve *xerrors.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, referral.ReasonExpiredOrExhausted, ve.Reason)
	})

	t.Run("already_referred", func(t *testing.T) {
		referred := store.AddCustomer(customer.Customer{
			Name:             "Z",
			ReferralCodeUsed: sql.NullString{String: "REFOTHER", Valid: true},
		})
		_, err := svc.ApplyReferral(ctx, &referral.ApplyReferralRequest{Code: "REFPER01", ReferredCustomerID: referred})
		assert.ErrorIs(t, err, xerrors.ErrConflict)
		assert.Zero(t, store.Code(codeID).UsageCount)
	})
}

func TestApplyReferralIsAtomic(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newService(t)
	owner := store.AddCustomer(customer.Customer{Name: "Owner"})
	referred := store.AddCustomer(customer.Customer{Name: "New"})
	codeID := store.AddCode(personalCode(owner, "REFPER01", 5, 0))

	store.Fail("ledger.create", errors.New("ledger unavailable"))
	_, err := svc.ApplyReferral(ctx, &referral.ApplyReferralRequest{Code: "REFPER01", ReferredCustomerID: referred})
	require.Error(t, err)

	assert.Zero(t, store.Code(codeID).UsageCount, "usage increment rolled back")
	unstamped := store.Customer(referred)
	assert.False(t, unstamped.WasReferred(), "customer stamp rolled back")
	assert.Empty(t, store.TransactionsFor(referred), "transaction rolled back")

	store.Fail("ledger.create", nil)
	_, err = svc.ApplyReferral(ctx, &referral.ApplyReferralRequest{Code: "REFPER01", ReferredCustomerID: referred})
	require.NoError(t, err)
	assert.Equal(t, 1, store.Code(codeID).UsageCount)
}

func TestConcurrentRedemptionsRespectMaxUses(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newService(t)
	owner := store.AddCustomer(customer.Customer{Name: "Owner"})
	codeID := store.AddCode(personalCode(owner, "REFHOT01", 3, 0))

	const attempts = 10
	referred := make([]int64, attempts)
	for i := range referred {
		referred[i] = store.AddCustomer(customer.Customer{Name: "New"})
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, err := svc.ApplyReferral(ctx, &referral.ApplyReferralRequest{Code: "REFHOT01", ReferredCustomerID: id})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, xerrors.ErrInvalidInput)
		}(referred[i])
	}
	wg.Wait()

	assert.Equal(t, 3, succeeded)
	assert.Equal(t, 3, store.Code(codeID).UsageCount)

	stamped := 0
	for _, id := range referred {
		if c := store.Customer(id); c.WasReferred() {
			stamped++
		}
	}
	assert.Equal(t, 3, stamped)
}

func TestApplyReferralBenefits(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newService(t)
	referred := store.AddCustomer(customer.Customer{Name: "New"})
	other := store.AddCustomer(customer.Customer{Name: "Other"})

	first := store.AddTransaction(referral.Transaction{
		ReferredID: referred, BenefitType: referral.BenefitDiscount,
		BenefitAmount: decimal.NewFromInt(25000), Status: referral.TransactionPending,
	})
	second := store.AddTransaction(referral.Transaction{
		ReferredID: referred, BenefitType: referral.BenefitCash,
		BenefitAmount: decimal.NewFromInt(5000), Status: referral.TransactionPending,
	})
	store.AddTransaction(referral.Transaction{
		ReferredID: other, BenefitType: referral.BenefitDiscount,
		BenefitAmount: decimal.NewFromInt(99999), Status: referral.TransactionPending,
	})

	got, err := svc.ApplyReferralBenefits(ctx, referred, decimal.NewFromInt(100000))
	require.NoError(t, err)
	assert.Equal(t, "30000", got.Amount.String())
	assert.Equal(t, []int64{first, second}, got.TransactionIDs)

	assert.Equal(t, referral.TransactionApplied, store.Transaction(first).Status)
	assert.True(t, store.Transaction(first).AppliedDate.Valid)
	assert.Len(t, store.LedgerByCategory(ledger.CategoryReferralBenefit), 2)

	again, err := svc.ApplyReferralBenefits(ctx, referred, decimal.NewFromInt(100000))
	require.NoError(t, err)
	assert.True(t, again.Amount.IsZero(), "second call is a no-op")
	assert.Empty(t, again.TransactionIDs)
	assert.Len(t, store.LedgerByCategory(ledger.CategoryReferralBenefit), 2)

	t.Run("ledger_failure_leaves_transactions_pending", func(t *testing.T) {
		store.Fail("ledger.create", errors.New("boom"))
		defer store.Fail("ledger.create", nil)

		_, err := svc.ApplyReferralBenefits(ctx, other, decimal.NewFromInt(1000))
		require.Error(t, err)
		assert.Equal(t, referral.TransactionPending, store.TransactionsFor(other)[0].Status)
	})
}

func TestMarketingReferral(t *testing.T) {
	ctx := context.Background()
	svc, store, rec := newService(t)

	resp, err := svc.CreateMarketingReferral(ctx, &referral.CreateMarketingReferralRequest{
		MarketerName:  "Field Team",
		MarketerPhone: "+254700000000",
	})
	require.NoError(t, err)
	assert.True(t, resp.Code.IsFixed())
	assert.Equal(t, resp.Code.Code, resp.Marketing.ReferralCode)
	assert.Equal(t, "50000", resp.Marketing.FeeAmount.String(), "fee defaults to the cash amount")
	assert.Equal(t, referral.MarketingUnpaid, resp.Marketing.Status)

	paid, err := svc.MarkMarketingReferralPaid(ctx, resp.Marketing.ID)
	require.NoError(t, err)
	assert.Equal(t, referral.MarketingPaid, paid.Status)
	assert.True(t, paid.PaidAt.Valid)

	fees := store.LedgerByCategory(ledger.CategoryMarketingFee)
	require.Len(t, fees, 1)
	assert.Equal(t, ledger.EntryExpense, fees[0].EntryType)
	assert.Len(t, rec.Of(events.KindMarketingReferralPaid), 1)

	_, err = svc.MarkMarketingReferralPaid(ctx, resp.Marketing.ID)
	assert.ErrorIs(t, err, xerrors.ErrConflict, "paid is terminal")
	assert.Len(t, store.LedgerByCategory(ledger.CategoryMarketingFee), 1)

	negative := decimal.NewFromInt(-1)
	_, err = svc.CreateMarketingReferral(ctx, &referral.CreateMarketingReferralRequest{MarketerName: "X", FeeAmount: &negative})
	assert.ErrorIs(t, err, xerrors.ErrInvalidInput)

	_, err = svc.MarkMarketingReferralPaid(ctx, 9999)
	assert.ErrorIs(t, err, xerrors.ErrNotFound)
}

func TestHistoryAndStats(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newService(t)
	owner := store.AddCustomer(customer.Customer{Name: "Owner"})
	store.AddCode(personalCode(owner, "REFPER01", 10, 0))

	for i := 0; i < 3; i++ {
		referred := store.AddCustomer(customer.Customer{Name: "New"})
		_, err := svc.ApplyReferral(ctx, &referral.ApplyReferralRequest{Code: "REFPER01", ReferredCustomerID: referred})
		require.NoError(t, err)
	}

	hist, err := svc.GetReferralHistory(ctx, &referral.HistoryFilters{ReferrerID: &owner, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), hist.Total)
	assert.Len(t, hist.Transactions, 2)
	assert.Equal(t, 2, hist.TotalPages)

	stats, err := svc.GetReferralStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalRedemptions)
	assert.Equal(t, int64(3), stats.PendingTransactions)
	assert.Equal(t, "75000", stats.TotalDiscountBenefit.String())
}
