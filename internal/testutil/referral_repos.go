package testutil

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"isp-billing-service/internal/domain/referral"
	xerrors "isp-billing-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// ========== Codes ==========

type CodeRepo struct{ s *Store }

func (r *CodeRepo) CreateWithTx(ctx context.Context, tx pgx.Tx, c *referral.ReferralCode) error {
	if err := r.s.lock("codes.create"); err != nil {
		return err
	}
	defer r.s.mu.Unlock()
	for _, existing := range r.s.data.codes {
		if existing.Code == c.Code {
			return xerrors.NewConflict("code", "referral code already exists")
		}
		if c.CustomerID.Valid && c.IsActive && existing.IsActive &&
			existing.CustomerID.Valid && existing.CustomerID.Int64 == c.CustomerID.Int64 {
			return xerrors.NewConflict("code", "referral code already exists")
		}
	}
	c.ID, c.CreatedAt = r.s.next()
	r.s.data.codes[c.ID] = *c
	return nil
}

func (r *CodeRepo) find(op string, keep func(referral.ReferralCode) bool, id any) (*referral.ReferralCode, error) {
	if err := r.s.lock(op); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	for _, k := range sortedKeys(r.s.data.codes) {
		if c := r.s.data.codes[k]; keep(c) {
			return &c, nil
		}
	}
	return nil, xerrors.NewNotFound("referral code", id)
}

func (r *CodeRepo) FindByID(ctx context.Context, id int64) (*referral.ReferralCode, error) {
	return r.find("codes.find", func(c referral.ReferralCode) bool { return c.ID == id }, id)
}

func (r *CodeRepo) FindByCode(ctx context.Context, code string) (*referral.ReferralCode, error) {
	return r.find("codes.find", func(c referral.ReferralCode) bool { return c.Code == code }, code)
}

func (r *CodeRepo) FindActiveByCustomer(ctx context.Context, customerID int64) (*referral.ReferralCode, error) {
	return r.find("codes.find", func(c referral.ReferralCode) bool {
		return c.IsActive && c.CustomerID.Valid && c.CustomerID.Int64 == customerID
	}, customerID)
}

func (r *CodeRepo) ExistsByCode(ctx context.Context, code string) (bool, error) {
	_, err := r.FindByCode(ctx, code)
	if xerrors.Is(err, xerrors.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (r *CodeRepo) Deactivate(ctx context.Context, id int64) error {
	if err := r.s.lock("codes.deactivate"); err != nil {
		return err
	}
	defer r.s.mu.Unlock()
	c, ok := r.s.data.codes[id]
	if !ok {
		return xerrors.NewNotFound("referral code", id)
	}
	c.IsActive = false
	r.s.data.codes[id] = c
	return nil
}

func (r *CodeRepo) IncrementUsageWithTx(ctx context.Context, tx pgx.Tx, id int64, now time.Time) (bool, error) {
	if err := r.s.lock("codes.increment"); err != nil {
		return false, err
	}
	defer r.s.mu.Unlock()
	c, ok := r.s.data.codes[id]
	if !ok || !c.IsActive || c.UsageCount >= c.MaxUses || c.ExpiresAt.Before(now) {
		return false, nil
	}
	c.UsageCount++
	r.s.data.codes[id] = c
	return true, nil
}

// ========== Transactions ==========

type TransactionRepo struct{ s *Store }

func (r *TransactionRepo) CreateWithTx(ctx context.Context, tx pgx.Tx, t *referral.Transaction) error {
	if err := r.s.lock("transactions.create"); err != nil {
		return err
	}
	defer r.s.mu.Unlock()
	t.ID, t.CreatedAt = r.s.next()
	r.s.data.transactions[t.ID] = *t
	return nil
}

func (r *TransactionRepo) ListPendingByReferredWithTx(ctx context.Context, tx pgx.Tx, referredID int64) ([]referral.Transaction, error) {
	if err := r.s.lock("transactions.list_pending"); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	var out []referral.Transaction
	for _, id := range sortedKeys(r.s.data.transactions) {
		if t := r.s.data.transactions[id]; t.ReferredID == referredID && t.Status == referral.TransactionPending {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *TransactionRepo) MarkAppliedWithTx(ctx context.Context, tx pgx.Tx, id int64, at time.Time) (bool, error) {
	if err := r.s.lock("transactions.mark_applied"); err != nil {
		return false, err
	}
	defer r.s.mu.Unlock()
	t, ok := r.s.data.transactions[id]
	if !ok || t.Status != referral.TransactionPending {
		return false, nil
	}
	t.Status = referral.TransactionApplied
	t.AppliedDate = sql.NullTime{Time: at, Valid: true}
	r.s.data.transactions[id] = t
	return true, nil
}

func (r *TransactionRepo) LinkInvoiceWithTx(ctx context.Context, tx pgx.Tx, ids []int64, invoiceID int64) error {
	if err := r.s.lock("transactions.link"); err != nil {
		return err
	}
	defer r.s.mu.Unlock()
	for _, id := range ids {
		if t, ok := r.s.data.transactions[id]; ok && !t.InvoiceID.Valid {
			t.InvoiceID = sql.NullInt64{Int64: invoiceID, Valid: true}
			r.s.data.transactions[id] = t
		}
	}
	return nil
}

func (r *TransactionRepo) SumAppliedForInvoice(ctx context.Context, invoiceID int64) (decimal.Decimal, []int64, error) {
	if err := r.s.lock("transactions.sum"); err != nil {
		return decimal.Zero, nil, err
	}
	defer r.s.mu.Unlock()
	total := decimal.Zero
	ids := []int64{}
	for _, id := range sortedKeys(r.s.data.transactions) {
		t := r.s.data.transactions[id]
		if t.Status == referral.TransactionApplied && t.InvoiceID.Valid && t.InvoiceID.Int64 == invoiceID {
			total = total.Add(t.BenefitAmount)
			ids = append(ids, id)
		}
	}
	return total, ids, nil
}

func (r *TransactionRepo) List(ctx context.Context, f *referral.HistoryFilters) ([]referral.Transaction, int64, error) {
	if err := r.s.lock("transactions.list"); err != nil {
		return nil, 0, err
	}
	defer r.s.mu.Unlock()
	var all []referral.Transaction
	for _, id := range sortedKeys(r.s.data.transactions) {
		t := r.s.data.transactions[id]
		if f.ReferrerID != nil && (!t.ReferrerID.Valid || t.ReferrerID.Int64 != *f.ReferrerID) {
			continue
		}
		if f.ReferredID != nil && t.ReferredID != *f.ReferredID {
			continue
		}
		if f.Status != nil && t.Status != *f.Status {
			continue
		}
		all = append(all, t)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	return page(all, f.Page, f.PageSize), int64(len(all)), nil
}

func (r *TransactionRepo) GetStats(ctx context.Context) (*referral.ReferralStats, error) {
	if err := r.s.lock("transactions.stats"); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	st := &referral.ReferralStats{
		TotalCashBenefit:     decimal.Zero,
		TotalDiscountBenefit: decimal.Zero,
		UnpaidMarketingFees:  decimal.Zero,
	}
	for _, c := range r.s.data.codes {
		st.TotalCodes++
		if c.IsActive {
			st.ActiveCodes++
		}
	}
	for _, t := range r.s.data.transactions {
		st.TotalRedemptions++
		if t.Status == referral.TransactionPending {
			st.PendingTransactions++
		} else {
			st.AppliedTransactions++
		}
		if t.BenefitType == referral.BenefitCash {
			st.TotalCashBenefit = st.TotalCashBenefit.Add(t.BenefitAmount)
		} else {
			st.TotalDiscountBenefit = st.TotalDiscountBenefit.Add(t.BenefitAmount)
		}
	}
	for _, m := range r.s.data.marketing {
		if m.Status == referral.MarketingUnpaid {
			st.UnpaidMarketingFees = st.UnpaidMarketingFees.Add(m.FeeAmount)
		}
	}
	return st, nil
}

// ========== Marketing ==========

type MarketingRepo struct{ s *Store }

func (r *MarketingRepo) CreateWithTx(ctx context.Context, tx pgx.Tx, m *referral.MarketingReferral) error {
	if err := r.s.lock("marketing.create"); err != nil {
		return err
	}
	defer r.s.mu.Unlock()
	m.ID, m.CreatedAt = r.s.next()
	r.s.data.marketing[m.ID] = *m
	return nil
}

func (r *MarketingRepo) FindByID(ctx context.Context, id int64) (*referral.MarketingReferral, error) {
	if err := r.s.lock("marketing.find"); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	m, ok := r.s.data.marketing[id]
	if !ok {
		return nil, xerrors.NewNotFound("marketing referral", id)
	}
	return &m, nil
}

func (r *MarketingRepo) FindByCode(ctx context.Context, code string) (*referral.MarketingReferral, error) {
	if err := r.s.lock("marketing.find"); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	for _, id := range sortedKeys(r.s.data.marketing) {
		if m := r.s.data.marketing[id]; m.ReferralCode == code {
			return &m, nil
		}
	}
	return nil, xerrors.NewNotFound("marketing referral", code)
}

func (r *MarketingRepo) MarkPaidWithTx(ctx context.Context, tx pgx.Tx, id int64, at time.Time) (bool, error) {
	if err := r.s.lock("marketing.mark_paid"); err != nil {
		return false, err
	}
	defer r.s.mu.Unlock()
	m, ok := r.s.data.marketing[id]
	if !ok || m.Status != referral.MarketingUnpaid {
		return false, nil
	}
	m.Status = referral.MarketingPaid
	m.PaidAt = sql.NullTime{Time: at, Valid: true}
	r.s.data.marketing[id] = m
	return true, nil
}
