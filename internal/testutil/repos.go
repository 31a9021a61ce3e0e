package testutil

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"isp-billing-service/internal/domain/customer"
	"isp-billing-service/internal/domain/discount"
	"isp-billing-service/internal/domain/invoice"
	"isp-billing-service/internal/domain/ledger"
	"isp-billing-service/internal/domain/settings"
	xerrors "isp-billing-service/internal/pkg/errors"
	"isp-billing-service/internal/pkg/pagination"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func page[T any](items []T, p, size int) []T {
	p, size = pagination.Normalize(p, size)
	start := pagination.Offset(p, size)
	if start >= len(items) {
		return []T{}
	}
	end := start + size
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

// ========== Discounts ==========

type DiscountRepo struct{ s *Store }

func (r *DiscountRepo) Create(ctx context.Context, d *discount.Discount) error {
	if err := r.s.lock("discounts.create"); err != nil {
		return err
	}
	defer r.s.mu.Unlock()
	d.ID, d.CreatedAt = r.s.next()
	d.UpdatedAt = d.CreatedAt
	r.s.data.discounts[d.ID] = *d
	return nil
}

func (r *DiscountRepo) FindByID(ctx context.Context, id int64) (*discount.Discount, error) {
	if err := r.s.lock("discounts.find"); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	d, ok := r.s.data.discounts[id]
	if !ok {
		return nil, xerrors.NewNotFound("discount", id)
	}
	return &d, nil
}

func (r *DiscountRepo) Update(ctx context.Context, d *discount.Discount) error {
	if err := r.s.lock("discounts.update"); err != nil {
		return err
	}
	defer r.s.mu.Unlock()
	if _, ok := r.s.data.discounts[d.ID]; !ok {
		return xerrors.NewNotFound("discount", d.ID)
	}
	r.s.data.discounts[d.ID] = *d
	return nil
}

func (r *DiscountRepo) UpdateStatus(ctx context.Context, id int64, status discount.Status) error {
	if err := r.s.lock("discounts.update_status"); err != nil {
		return err
	}
	defer r.s.mu.Unlock()
	d, ok := r.s.data.discounts[id]
	if !ok {
		return xerrors.NewNotFound("discount", id)
	}
	d.Status = status
	r.s.data.discounts[id] = d
	return nil
}

func (r *DiscountRepo) Delete(ctx context.Context, id int64) error {
	if err := r.s.lock("discounts.delete"); err != nil {
		return err
	}
	defer r.s.mu.Unlock()
	if _, ok := r.s.data.discounts[id]; !ok {
		return xerrors.NewNotFound("discount", id)
	}
	delete(r.s.data.discounts, id)
	return nil
}

func (r *DiscountRepo) newestFirst(keep func(d discount.Discount) bool) []discount.Discount {
	var out []discount.Discount
	for _, id := range sortedKeys(r.s.data.discounts) {
		if d := r.s.data.discounts[id]; keep(d) {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (r *DiscountRepo) List(ctx context.Context, f *discount.DiscountListFilters) ([]discount.Discount, int64, error) {
	if err := r.s.lock("discounts.list"); err != nil {
		return nil, 0, err
	}
	defer r.s.mu.Unlock()
	search := strings.ToLower(f.Search)
	all := r.newestFirst(func(d discount.Discount) bool {
		if f.Status != nil && d.Status != *f.Status {
			return false
		}
		if f.TargetType != nil && d.TargetType != *f.TargetType {
			return false
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(d.Name), search) &&
			!strings.Contains(strings.ToLower(d.Description.String), search) &&
			!strings.Contains(strings.ToLower(d.CompensationReason.String), search) {
			return false
		}
		return true
	})
	return page(all, f.Page, f.PageSize), int64(len(all)), nil
}

func (r *DiscountRepo) FindActiveAt(ctx context.Context, at time.Time) ([]discount.Discount, error) {
	if err := r.s.lock("discounts.find_active"); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	return r.newestFirst(func(d discount.Discount) bool {
		return d.Status == discount.StatusActive && d.InWindow(at)
	}), nil
}

func (r *DiscountRepo) GetStats(ctx context.Context) (*discount.DiscountStats, error) {
	if err := r.s.lock("discounts.stats"); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	st := &discount.DiscountStats{TotalDiscountGiven: decimal.Zero}
	for _, d := range r.s.data.discounts {
		st.TotalDiscounts++
		switch d.Status {
		case discount.StatusActive:
			st.ActiveDiscounts++
		case discount.StatusRetired:
			st.RetiredDiscounts++
		}
	}
	for _, a := range r.s.data.applications {
		st.TotalApplications++
		st.TotalDiscountGiven = st.TotalDiscountGiven.Add(a.DiscountAmount)
	}
	return st, nil
}

// ========== Applications ==========

type ApplicationRepo struct{ s *Store }

func (r *ApplicationRepo) CreateWithTx(ctx context.Context, tx pgx.Tx, a *discount.Application) error {
	if err := r.s.lock("applications.create"); err != nil {
		return err
	}
	defer r.s.mu.Unlock()
	for _, existing := range r.s.data.applications {
		if existing.DiscountID == a.DiscountID && existing.InvoiceID == a.InvoiceID {
			return xerrors.NewConflict("discount_id", fmt.Sprintf("discount %d already applied to invoice %d", a.DiscountID, a.InvoiceID))
		}
	}
	a.ID, a.AppliedAt = r.s.next()
	r.s.data.applications[a.ID] = *a
	return nil
}

func (r *ApplicationRepo) DeleteByInvoiceWithTx(ctx context.Context, tx pgx.Tx, invoiceID int64) (int64, error) {
	if err := r.s.lock("applications.delete_by_invoice"); err != nil {
		return 0, err
	}
	defer r.s.mu.Unlock()
	var n int64
	for id, a := range r.s.data.applications {
		if a.InvoiceID == invoiceID {
			delete(r.s.data.applications, id)
			n++
		}
	}
	return n, nil
}

func (r *ApplicationRepo) ListByInvoice(ctx context.Context, invoiceID int64) ([]discount.Application, error) {
	if err := r.s.lock("applications.list"); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	return r.s.applicationsWhere(func(a discount.Application) bool { return a.InvoiceID == invoiceID }), nil
}

func (r *ApplicationRepo) ListByInvoiceWithTx(ctx context.Context, tx pgx.Tx, invoiceID int64) ([]discount.Application, error) {
	return r.ListByInvoice(ctx, invoiceID)
}

func (r *ApplicationRepo) ListByDiscount(ctx context.Context, discountID int64) ([]discount.Application, error) {
	if err := r.s.lock("applications.list"); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	return r.s.applicationsWhere(func(a discount.Application) bool { return a.DiscountID == discountID }), nil
}

func (r *ApplicationRepo) CountByDiscount(ctx context.Context, discountID int64) (int64, error) {
	if err := r.s.lock("applications.count"); err != nil {
		return 0, err
	}
	defer r.s.mu.Unlock()
	return int64(len(r.s.applicationsWhere(func(a discount.Application) bool { return a.DiscountID == discountID }))), nil
}

// ========== Invoices ==========

type InvoiceRepo struct{ s *Store }

func (r *InvoiceRepo) CreateWithTx(ctx context.Context, tx pgx.Tx, inv *invoice.Invoice) error {
	if err := r.s.lock("invoices.create"); err != nil {
		return err
	}
	defer r.s.mu.Unlock()
	for _, existing := range r.s.data.invoices {
		if existing.InvoiceNumber == inv.InvoiceNumber {
			return xerrors.NewConflict("invoice_number", "invoice number already exists")
		}
	}
	inv.ID, inv.CreatedAt = r.s.next()
	inv.UpdatedAt = inv.CreatedAt
	r.s.data.invoices[inv.ID] = *inv
	return nil
}

func (r *InvoiceRepo) FindByID(ctx context.Context, id int64) (*invoice.Invoice, error) {
	if err := r.s.lock("invoices.find"); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	inv, ok := r.s.data.invoices[id]
	if !ok {
		return nil, xerrors.NewNotFound("invoice", id)
	}
	return &inv, nil
}

func (r *InvoiceRepo) FindByIDForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*invoice.Invoice, error) {
	return r.FindByID(ctx, id)
}

func (r *InvoiceRepo) ListUnpaid(ctx context.Context, customerID *int64) ([]invoice.Invoice, error) {
	if err := r.s.lock("invoices.list_unpaid"); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	var out []invoice.Invoice
	for _, id := range sortedKeys(r.s.data.invoices) {
		inv := r.s.data.invoices[id]
		if inv.Status == invoice.StatusUnpaid && (customerID == nil || inv.CustomerID == *customerID) {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (r *InvoiceRepo) FindUnpaidForTargetWithTx(ctx context.Context, tx pgx.Tx, q invoice.TargetQuery) ([]invoice.Invoice, error) {
	if err := r.s.lock("invoices.find_target"); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()

	from, to := day(q.From), day(q.To)
	var out []invoice.Invoice
	for _, id := range sortedKeys(r.s.data.invoices) {
		inv := r.s.data.invoices[id]
		created := day(inv.CreatedAt)
		if inv.Status != invoice.StatusUnpaid || created.Before(from) || created.After(to) {
			continue
		}
		applied := r.s.applicationsWhere(func(a discount.Application) bool {
			return a.InvoiceID == inv.ID && a.DiscountID == q.DiscountID
		})
		if len(applied) > 0 {
			continue
		}
		c := r.s.data.customers[inv.CustomerID]
		match := false
		switch discount.TargetType(q.TargetType) {
		case discount.TargetAll:
			match = true
		case discount.TargetCustomer:
			match = c.Is(q.TargetIDs)
		case discount.TargetPackage:
			match = c.OnPackage(q.TargetIDs)
		case discount.TargetArea:
			match = c.InArea(q.TargetIDs)
		default:
			return nil, xerrors.NewValidation("target_type", "unsupported target type")
		}
		if match {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (r *InvoiceRepo) SetDiscountsWithTx(ctx context.Context, tx pgx.Tx, id int64, discountAmount, finalAmount decimal.Decimal, notes string) error {
	if err := r.s.lock("invoices.set_discounts"); err != nil {
		return err
	}
	defer r.s.mu.Unlock()
	inv, ok := r.s.data.invoices[id]
	if !ok {
		return xerrors.NewNotFound("invoice", id)
	}
	inv.DiscountAmount = discountAmount
	inv.FinalAmount = finalAmount
	inv.DiscountNotes.String, inv.DiscountNotes.Valid = notes, notes != ""
	r.s.data.invoices[id] = inv
	return nil
}

func (r *InvoiceRepo) AddDiscountWithTx(ctx context.Context, tx pgx.Tx, id int64, amount decimal.Decimal, note string) error {
	if err := r.s.lock("invoices.add_discount"); err != nil {
		return err
	}
	defer r.s.mu.Unlock()
	inv, ok := r.s.data.invoices[id]
	if !ok {
		return xerrors.NewNotFound("invoice", id)
	}
	inv.DiscountAmount = inv.DiscountAmount.Add(decimal.Min(amount, inv.FinalAmount))
	inv.FinalAmount = decimal.Max(inv.FinalAmount.Sub(amount), decimal.Zero)
	if note != "" {
		if inv.DiscountNotes.Valid && inv.DiscountNotes.String != "" {
			inv.DiscountNotes.String += "; " + note
		} else {
			inv.DiscountNotes.String = note
		}
		inv.DiscountNotes.Valid = true
	}
	r.s.data.invoices[id] = inv
	return nil
}

// ========== Customers ==========

type CustomerRepo struct{ s *Store }

func (r *CustomerRepo) FindByID(ctx context.Context, id int64) (*customer.Customer, error) {
	if err := r.s.lock("customers.find"); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	c, ok := r.s.data.customers[id]
	if !ok {
		return nil, xerrors.NewNotFound("customer", id)
	}
	return &c, nil
}

func (r *CustomerRepo) SetReferralWithTx(ctx context.Context, tx pgx.Tx, id int64, referrerID *int64, code string) (bool, error) {
	if err := r.s.lock("customers.set_referral"); err != nil {
		return false, err
	}
	defer r.s.mu.Unlock()
	c, ok := r.s.data.customers[id]
	if !ok || c.WasReferred() {
		return false, nil
	}
	if referrerID != nil {
		c.ReferredBy.Int64, c.ReferredBy.Valid = *referrerID, true
	}
	c.ReferralCodeUsed.String, c.ReferralCodeUsed.Valid = code, true
	r.s.data.customers[id] = c
	return true, nil
}

// ========== Ledger ==========

type LedgerRepo struct{ s *Store }

func (r *LedgerRepo) CreateWithTx(ctx context.Context, tx pgx.Tx, e *ledger.Entry) error {
	if err := r.s.lock("ledger.create"); err != nil {
		return err
	}
	defer r.s.mu.Unlock()
	e.ID, e.CreatedAt = r.s.next()
	r.s.data.ledger = append(r.s.data.ledger, *e)
	return nil
}

// ========== Settings ==========

type SettingsRepo struct{ s *Store }

func (r *SettingsRepo) GetByKeys(ctx context.Context, keys []string) ([]settings.Setting, error) {
	if err := r.s.lock("settings.get"); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	var out []settings.Setting
	for _, k := range keys {
		if row, ok := r.s.data.settings[k]; ok {
			out = append(out, row)
		}
	}
	return out, nil
}

func (r *SettingsRepo) UpsertWithTx(ctx context.Context, tx pgx.Tx, rows []settings.Setting) error {
	if err := r.s.lock("settings.upsert"); err != nil {
		return err
	}
	defer r.s.mu.Unlock()
	for _, row := range rows {
		row.UpdatedAt = r.s.base
		r.s.data.settings[row.Key] = row
	}
	return nil
}
