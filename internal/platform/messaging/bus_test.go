package messaging

import (
	"context"
	"testing"
	"time"

	"d21vote/internal/shared/events"

	"github.com/stretchr/testify/require"
)

func TestBusDeliversToTopicSubscribers(t *testing.T) {
	bus := NewBus(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan events.Envelope, 1)
	require.NoError(t, bus.Subscribe(ctx, events.TopicVoteCasted, "test-cg", func(_ context.Context, event events.Envelope) error {
		received <- event
		return nil
	}))

	require.NoError(t, bus.Publish(ctx, events.TopicElectionFinalized, events.Envelope{EventID: "other"}))
	require.NoError(t, bus.Publish(ctx, events.TopicVoteCasted, events.Envelope{EventID: "evt-1", PartitionKey: "e-1"}))

	select {
	case event := <-received:
		require.Equal(t, "evt-1", event.EventID)
	case <-time.After(2 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestBusDropsSubscriberOnCancel(t *testing.T) {
	bus := NewBus(nil)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, bus.Subscribe(ctx, events.TopicVoteCasted, "test-cg", func(context.Context, events.Envelope) error {
		return nil
	}))
	cancel()

	require.Eventually(t, func() bool {
		bus.mu.RLock()
		defer bus.mu.RUnlock()
		return len(bus.subscribers[events.TopicVoteCasted]) == 0
	}, 2*time.Second, 10*time.Millisecond)
}
