// Package testutil provides an in-memory implementation of every repository the services use.
// Transactions are serialized and roll back by restoring a snapshot, so tests can observe
// atomicity and run concurrent callers against it.
package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"isp-billing-service/internal/domain/customer"
	"isp-billing-service/internal/domain/discount"
	"isp-billing-service/internal/domain/invoice"
	"isp-billing-service/internal/domain/ledger"
	"isp-billing-service/internal/domain/referral"
	"isp-billing-service/internal/domain/settings"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"
)

type state struct {
	seq          int64
	discounts    map[int64]discount.Discount
	applications map[int64]discount.Application
	invoices     map[int64]invoice.Invoice
	customers    map[int64]customer.Customer
	codes        map[int64]referral.ReferralCode
	transactions map[int64]referral.Transaction
	marketing    map[int64]referral.MarketingReferral
	ledger       []ledger.Entry
	settings     map[string]settings.Setting
}

func newState() *state {
	return &state{
		discounts:    map[int64]discount.Discount{},
		applications: map[int64]discount.Application{},
		invoices:     map[int64]invoice.Invoice{},
		customers:    map[int64]customer.Customer{},
		codes:        map[int64]referral.ReferralCode{},
		transactions: map[int64]referral.Transaction{},
		marketing:    map[int64]referral.MarketingReferral{},
		settings:     map[string]settings.Setting{},
	}
}

func (s *state) clone() *state {
	c := newState()
	c.seq = s.seq
	for k, v := range s.discounts {
		v.TargetIDs = append(pq.StringArray{}, v.TargetIDs...)
		c.discounts[k] = v
	}
	for k, v := range s.applications {
		c.applications[k] = v
	}
	for k, v := range s.invoices {
		c.invoices[k] = v
	}
	for k, v := range s.customers {
		c.customers[k] = v
	}
	for k, v := range s.codes {
		c.codes[k] = v
	}
	for k, v := range s.transactions {
		c.transactions[k] = v
	}
	for k, v := range s.marketing {
		c.marketing[k] = v
	}
	c.ledger = append([]ledger.Entry{}, s.ledger...)
	for k, v := range s.settings {
		c.settings[k] = v
	}
	return c
}

// Store holds the shared state behind every fake repository.
type Store struct {
	mu   sync.Mutex
	txMu sync.Mutex
	data *state
	fail map[string]error
	base time.Time

	Discounts    *DiscountRepo
	Applications *ApplicationRepo
	Invoices     *InvoiceRepo
	Customers    *CustomerRepo
	Codes        *CodeRepo
	Transactions *TransactionRepo
	Marketing    *MarketingRepo
	Ledger       *LedgerRepo
	Settings     *SettingsRepo
}

func NewStore() *Store {
	s := &Store{
		data: newState(),
		fail: map[string]error{},
		base: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	s.Discounts = &DiscountRepo{s}
	s.Applications = &ApplicationRepo{s}
	s.Invoices = &InvoiceRepo{s}
	s.Customers = &CustomerRepo{s}
	s.Codes = &CodeRepo{s}
	s.Transactions = &TransactionRepo{s}
	s.Marketing = &MarketingRepo{s}
	s.Ledger = &LedgerRepo{s}
	s.Settings = &SettingsRepo{s}
	return s
}

// Fail makes every call of op return err until cleared with Fail(op, nil). Ops are named
// "<repo>.<method>", e.g. "ledger.create".
func (s *Store) Fail(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fail, op)
		return
	}
	s.fail[op] = err
}

// lock takes the data lock and reports the injected failure for op, if any.
func (s *Store) lock(op string) error {
	s.mu.Lock()
	if err := s.fail[op]; err != nil {
		s.mu.Unlock()
		return err
	}
	return nil
}

// next returns a fresh id and a creation time that grows with it.
func (s *Store) next() (int64, time.Time) {
	s.data.seq++
	return s.data.seq, s.base.Add(time.Duration(s.data.seq) * time.Minute)
}

func (s *Store) snapshot() *state {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.clone()
}

func (s *Store) restore(st *state) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = st
}

// WithTx serializes transactions and restores the pre-transaction state when fn fails.
func (s *Store) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	tx := &Tx{store: s, snapshot: s.snapshot()}
	if err := fn(tx); err != nil {
		s.restore(tx.snapshot)
		return err
	}
	return nil
}

// Tx satisfies pgx.Tx for the calls the services make. Begin opens a savepoint whose Rollback
// restores the state seen when it was opened.
type Tx struct {
	pgx.Tx
	store    *Store
	snapshot *state
}

func (t *Tx) Begin(ctx context.Context) (pgx.Tx, error) {
	return &Tx{store: t.store, snapshot: t.store.snapshot()}, nil
}

func (t *Tx) Commit(ctx context.Context) error {
	return nil
}

func (t *Tx) Rollback(ctx context.Context) error {
	t.store.restore(t.snapshot)
	return nil
}

// ========== Seeding and inspection ==========

// AddCustomer stores c and returns its id.
func (s *Store) AddCustomer(c customer.Customer) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == 0 {
		c.ID, c.CreatedAt = s.next()
	}
	if c.Status == "" {
		c.Status = customer.StatusActive
	}
	s.data.customers[c.ID] = c
	return c.ID
}

// AddInvoice stores inv and returns its id. Final amount defaults to the amount.
func (s *Store) AddInvoice(inv invoice.Invoice) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, created := s.next()
	if inv.ID == 0 {
		inv.ID = id
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = created
	}
	if inv.Status == "" {
		inv.Status = invoice.StatusUnpaid
	}
	if inv.FinalAmount.IsZero() && inv.DiscountAmount.IsZero() {
		inv.FinalAmount = inv.Amount
	}
	if inv.InvoiceNumber == "" {
		inv.InvoiceNumber = "INV-TEST-" + itoa(inv.ID)
	}
	s.data.invoices[inv.ID] = inv
	return inv.ID
}

// AddCode stores c and returns its id.
func (s *Store) AddCode(c referral.ReferralCode) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID, c.CreatedAt = s.next()
	s.data.codes[c.ID] = c
	return c.ID
}

// AddTransaction stores t and returns its id.
func (s *Store) AddTransaction(t referral.Transaction) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.ID, t.CreatedAt = s.next()
	s.data.transactions[t.ID] = t
	return t.ID
}

// AddMarketing stores m and returns its id.
func (s *Store) AddMarketing(m referral.MarketingReferral) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.ID, m.CreatedAt = s.next()
	s.data.marketing[m.ID] = m
	return m.ID
}

func (s *Store) SetSetting(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.settings[key] = settings.Setting{Key: key, Value: value, UpdatedAt: s.base}
}

func (s *Store) Customer(id int64) customer.Customer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.customers[id]
}

func (s *Store) Invoice(id int64) invoice.Invoice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.invoices[id]
}

func (s *Store) Code(id int64) referral.ReferralCode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.codes[id]
}

func (s *Store) Transaction(id int64) referral.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.transactions[id]
}

func (s *Store) TransactionsFor(referredID int64) []referral.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []referral.Transaction
	for _, id := range sortedKeys(s.data.transactions) {
		if t := s.data.transactions[id]; t.ReferredID == referredID {
			out = append(out, t)
		}
	}
	return out
}

func (s *Store) ApplicationsFor(invoiceID int64) []discount.Application {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applicationsWhere(func(a discount.Application) bool { return a.InvoiceID == invoiceID })
}

func (s *Store) LedgerEntries() []ledger.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ledger.Entry{}, s.data.ledger...)
}

// LedgerEntries filtered by category.
func (s *Store) LedgerByCategory(category string) []ledger.Entry {
	var out []ledger.Entry
	for _, e := range s.LedgerEntries() {
		if e.Category == category {
			out = append(out, e)
		}
	}
	return out
}

func (s *Store) applicationsWhere(keep func(discount.Application) bool) []discount.Application {
	var out []discount.Application
	for _, id := range sortedKeys(s.data.applications) {
		if a := s.data.applications[id]; keep(a) {
			out = append(out, a)
		}
	}
	return out
}

func sortedKeys[V any](m map[int64]V) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

