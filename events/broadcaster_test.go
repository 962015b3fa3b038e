package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *capturePublisher) Publish(ctx context.Context, event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *capturePublisher) captured() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event(nil), p.events...)
}

func TestNewEventEnvelope(t *testing.T) {
	event, err := New(TypeAtomCreated, AtomCreatedPayload{AtomID: "a1", Caption: "done"})
	require.NoError(t, err)
	assert.NotEmpty(t, event.ID)
	assert.Equal(t, TypeAtomCreated, event.Type)
	assert.False(t, event.OccurredAt.IsZero())

	var payload AtomCreatedPayload
	require.NoError(t, json.Unmarshal(event.Payload, &payload))
	assert.Equal(t, "a1", payload.AtomID)
}

func TestBroadcastPublishesSnapshot(t *testing.T) {
	publisher := &capturePublisher{}
	b := NewBroadcaster(publisher, func(ctx context.Context) (interface{}, error) {
		return []string{"first", "second"}, nil
	})

	b.broadcast()

	captured := publisher.captured()
	require.Len(t, captured, 1)
	assert.Equal(t, TypeLeaderboardChanged, captured[0].Type)

	var payload LeaderboardChangedPayload
	require.NoError(t, json.Unmarshal(captured[0].Payload, &payload))
	assert.Equal(t, "periodic", payload.Reason)
	assert.NotNil(t, payload.TopSlice)
}

func TestBroadcastSnapshotFailureDropsEvent(t *testing.T) {
	publisher := &capturePublisher{}
	b := NewBroadcaster(publisher, func(ctx context.Context) (interface{}, error) {
		return nil, errors.New("storage unavailable")
	})

	b.broadcast()
	assert.Empty(t, publisher.captured())
}

func TestBroadcasterRejectsNonPositiveInterval(t *testing.T) {
	b := NewBroadcaster(&capturePublisher{}, func(ctx context.Context) (interface{}, error) {
		return nil, nil
	})
	assert.Error(t, b.Start(0))
}
