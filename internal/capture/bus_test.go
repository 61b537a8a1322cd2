package capture

import (
	"sync"
	"testing"

	"github.com/fverao/powercapd/internal/errors"
	"github.com/fverao/powercapd/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusDeliversInRegistrationOrder(t *testing.T) {
	bus := NewBus(logger.Default())

	var mu sync.Mutex
	var order []string
	record := func(id string) Subscriber {
		return SubscriberFunc(func(_ Window) {
			mu.Lock()
			order = append(order, id)
			mu.Unlock()
		})
	}

	require.NoError(t, bus.Subscribe("first", record("first")))
	require.NoError(t, bus.Subscribe("second", record("second")))
	require.NoError(t, bus.Subscribe("third", record("third")))

	bus.Publish(Window{Sequence: 1})

	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestBusRejectsDuplicateSubscriber(t *testing.T) {
	bus := NewBus(logger.Default())

	require.NoError(t, bus.Subscribe("dup", SubscriberFunc(func(_ Window) {})))

	err := bus.Subscribe("dup", SubscriberFunc(func(_ Window) {}))
	require.Error(t, err)
	assert.Equal(t, ErrSubscriberExists, errors.CodeOf(err))
}

func TestBusUnsubscribeUnknownIsNoop(t *testing.T) {
	bus := NewBus(logger.Default())

	assert.NotPanics(t, func() {
		bus.Unsubscribe("never-registered")
	})
}

func TestBusResubscribeAfterUnsubscribe(t *testing.T) {
	bus := NewBus(logger.Default())

	require.NoError(t, bus.Subscribe("a", SubscriberFunc(func(_ Window) {})))
	bus.Unsubscribe("a")

	assert.NoError(t, bus.Subscribe("a", SubscriberFunc(func(_ Window) {})))
}

func TestBusPanickingSubscriberDoesNotHaltDelivery(t *testing.T) {
	bus := NewBus(logger.Default())

	var mu sync.Mutex
	var delivered []string

	require.NoError(t, bus.Subscribe("panicky", SubscriberFunc(func(_ Window) {
		panic("subscriber bug")
	})))
	require.NoError(t, bus.Subscribe("healthy", SubscriberFunc(func(_ Window) {
		mu.Lock()
		delivered = append(delivered, "healthy")
		mu.Unlock()
	})))

	assert.NotPanics(t, func() {
		bus.Publish(Window{Sequence: 7})
	})
	assert.Equal(t, []string{"healthy"}, delivered)
}

func TestBusSubscriberSeesWindowPayload(t *testing.T) {
	bus := NewBus(logger.Default())

	var got Window
	require.NoError(t, bus.Subscribe("collector", SubscriberFunc(func(w Window) {
		got = w
	})))

	bus.Publish(Window{Sequence: 42, EnergyJoules: 1.5, Gap: true})

	assert.Equal(t, 42, got.Sequence)
	assert.Equal(t, 1.5, got.EnergyJoules)
	assert.True(t, got.Gap)
}
