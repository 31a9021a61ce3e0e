package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBusDispatch(t *testing.T) {
	bus := NewBus(zap.NewNop())

	var kinds []Kind
	var all []Event
	bus.Subscribe(KindDiscountCreated, func(_ context.Context, e Event) {
		kinds = append(kinds, e.Kind)
	})
	bus.SubscribeAll(func(_ context.Context, e Event) {
		all = append(all, e)
	})

	bus.Publish(context.Background(), KindDiscountCreated, DiscountCreated{DiscountID: 1})
	bus.Publish(context.Background(), KindReferralRedeemed, ReferralRedeemed{TransactionID: 2})

	assert.Equal(t, []Kind{KindDiscountCreated}, kinds)
	require.Len(t, all, 2)
	assert.NotEmpty(t, all[0].ID)
	assert.NotEqual(t, all[0].ID, all[1].ID)
	assert.False(t, all[0].OccurredAt.IsZero())
	assert.Equal(t, ReferralRedeemed{TransactionID: 2}, all[1].Payload)
}

func TestBusRecoversFromPanics(t *testing.T) {
	bus := NewBus(zap.NewNop())

	called := false
	bus.Subscribe(KindSettingsUpdated, func(context.Context, Event) { panic("boom") })
	bus.Subscribe(KindSettingsUpdated, func(context.Context, Event) { called = true })

	assert.NotPanics(t, func() {
		bus.Publish(context.Background(), KindSettingsUpdated, SettingsUpdated{Keys: []string{"k"}})
	})
	assert.True(t, called, "later handlers still run")
}
