package stream_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adpilot-ai/adpilot/internal/domain"
	"github.com/adpilot-ai/adpilot/internal/stream"
)

func TestPublishReachesAllSessionSubscribers(t *testing.T) {
	b := stream.NewBroker()

	sub1 := b.Subscribe("s1")
	sub2 := b.Subscribe("s1")
	other := b.Subscribe("s2")
	defer b.Unsubscribe(sub1)
	defer b.Unsubscribe(sub2)
	defer b.Unsubscribe(other)

	b.Publish("s1", stream.Event(domain.StreamEventContent, "t1", domain.ContentPayload{Text: "hello"}))

	for _, sub := range []*stream.Subscription{sub1, sub2} {
		select {
		case event := <-sub.C:
			assert.Equal(t, domain.StreamEventContent, event.Type)
			assert.Equal(t, "t1", event.TurnID)
			var payload domain.ContentPayload
			require.NoError(t, json.Unmarshal(event.Payload, &payload))
			assert.Equal(t, "hello", payload.Text)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}

	select {
	case <-other.C:
		t.Fatal("event leaked to another session")
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := stream.NewBroker()
	sub := b.Subscribe("s1")
	b.Unsubscribe(sub)

	_, open := <-sub.C
	assert.False(t, open)

	// Double unsubscribe must not panic.
	b.Unsubscribe(sub)

	// Publishing to a session with no subscribers is a no-op.
	b.Publish("s1", stream.Event(domain.StreamEventDone, "t1", domain.DonePayload{Status: domain.TurnStatusDone}))
}

func TestPublishNeverBlocks(t *testing.T) {
	b := stream.NewBroker()
	sub := b.Subscribe("s1")
	defer b.Unsubscribe(sub)

	// Overfill the subscriber buffer; Publish must drop, not block.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			b.Publish("s1", stream.Event(domain.StreamEventContent, "t1", domain.ContentPayload{Text: "x"}))
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
}
