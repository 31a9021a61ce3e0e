// internal/events/bus.go
package events

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

type Kind string

const (
	KindSettingsUpdated       Kind = "settings.updated"
	KindDiscountCreated       Kind = "discount.created"
	KindDiscountApplied       Kind = "discount.applied"
	KindInvoiceCreated        Kind = "invoice.created"
	KindInvoiceRecalculated   Kind = "invoice.recalculated"
	KindReferralRedeemed      Kind = "referral.redeemed"
	KindMarketingReferralPaid Kind = "marketing_referral.paid"
)

type Event struct {
	ID         string      `json:"id"`
	Kind       Kind        `json:"kind"`
	Payload    interface{} `json:"payload"`
	OccurredAt time.Time   `json:"occurred_at"`
}

type Handler func(ctx context.Context, e Event)

// Publisher is what services depend on.
type Publisher interface {
	Publish(ctx context.Context, kind Kind, payload interface{})
}

// Bus dispatches events synchronously to the handlers subscribed to their kind. Handlers run
// after the publishing transaction has committed and must not block.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Kind][]Handler
	all      []Handler
	logger   *zap.Logger
}

func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		handlers: make(map[Kind][]Handler),
		logger:   logger,
	}
}

func (b *Bus) Subscribe(kind Kind, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[kind] = append(b.handlers[kind], h)
}

// SubscribeAll registers h for every kind.
func (b *Bus) SubscribeAll(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, h)
}

func (b *Bus) Publish(ctx context.Context, kind Kind, payload interface{}) {
	e := Event{
		ID:         ulid.Make().String(),
		Kind:       kind,
		Payload:    payload,
		OccurredAt: time.Now(),
	}

	b.mu.RLock()
	targets := make([]Handler, 0, len(b.handlers[kind])+len(b.all))
	targets = append(targets, b.handlers[kind]...)
	targets = append(targets, b.all...)
	b.mu.RUnlock()

	for _, h := range targets {
		b.dispatch(ctx, h, e)
	}
}

func (b *Bus) dispatch(ctx context.Context, h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				zap.String("event_id", e.ID),
				zap.String("kind", string(e.Kind)),
				zap.Any("panic", r),
			)
		}
	}()
	h(ctx, e)
}

// Payloads

type SettingsUpdated struct {
	Keys []string `json:"keys"`
}

type DiscountCreated struct {
	DiscountID      int64 `json:"discount_id"`
	AppliedInvoices int   `json:"applied_invoices"`
}

type DiscountApplied struct {
	DiscountID int64   `json:"discount_id"`
	InvoiceIDs []int64 `json:"invoice_ids"`
}

// InvoiceDiscounts is published for invoice.created and invoice.recalculated.
type InvoiceDiscounts struct {
	InvoiceID     int64  `json:"invoice_id"`
	CustomerID    int64  `json:"customer_id"`
	TotalDiscount string `json:"total_discount"`
	FinalAmount   string `json:"final_amount"`
}

type ReferralRedeemed struct {
	ReferralCodeID int64  `json:"referral_code_id"`
	TransactionID  int64  `json:"transaction_id"`
	ReferredID     int64  `json:"referred_id"`
	BenefitType    string `json:"benefit_type"`
	BenefitAmount  string `json:"benefit_amount"`
}

type MarketingReferralPaid struct {
	MarketingReferralID int64  `json:"marketing_referral_id"`
	FeeAmount           string `json:"fee_amount"`
}
