package events_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brindlenet/l2fabric/pkg/events"
)

func TestSubscribeAllReceivesEveryKind(t *testing.T) {
	bus := events.NewBus()
	var seen []events.Kind
	bus.Subscribe(nil, func(e events.Event) {
		seen = append(seen, e.Kind)
	})

	bus.Publish(events.Event{Kind: events.MacLearned})
	bus.Publish(events.Event{Kind: events.VlanCreated})

	assert.Equal(t, []events.Kind{events.MacLearned, events.VlanCreated}, seen)
}

func TestSubscribeFiltersKinds(t *testing.T) {
	bus := events.NewBus()
	var seen []events.Kind
	bus.Subscribe([]events.Kind{events.MacMoved}, func(e events.Event) {
		seen = append(seen, e.Kind)
	})

	bus.Publish(events.Event{Kind: events.MacLearned})
	bus.Publish(events.Event{Kind: events.MacMoved})

	require.Len(t, seen, 1)
	assert.Equal(t, events.MacMoved, seen[0])
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := events.NewBus()
	count := 0
	h := bus.Subscribe(nil, func(events.Event) { count++ })

	bus.Publish(events.Event{Kind: events.MacLearned})
	bus.Unsubscribe(h)
	bus.Publish(events.Event{Kind: events.MacLearned})

	assert.Equal(t, 1, count)
}

func TestPanickingSubscriberDoesNotAffectOthers(t *testing.T) {
	bus := events.NewBus()
	bus.Subscribe(nil, func(events.Event) { panic("boom") })

	called := false
	bus.Subscribe(nil, func(events.Event) { called = true })

	assert.NotPanics(t, func() {
		bus.Publish(events.Event{Kind: events.MacLearned})
	})
	assert.True(t, called)
}

func TestUnsubscribeUnknownHandleIsNoOp(t *testing.T) {
	bus := events.NewBus()
	h := bus.Subscribe(nil, func(events.Event) {})
	bus.Unsubscribe(h)
	assert.NotPanics(t, func() { bus.Unsubscribe(h) })
}
