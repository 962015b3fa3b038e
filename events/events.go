// Package events carries the engine's real-time fan-out. The engine's
// responsibility ends at producing the event payload; delivery belongs to
// whatever consumes the queue.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the engine.
const (
	TypeCompletionRecorded = "completion.recorded"
	TypeAtomCreated        = "atom.created"
	TypeVoteUpdated        = "atom.vote.updated"
	TypeLeaderboardChanged = "leaderboard.changed"
)

// Event is the envelope published to the fan-out queue.
type Event struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurredAt"`
	Payload    json.RawMessage `json:"payload"`
}

// New builds an event envelope around the given payload.
func New(eventType string, payload interface{}) (Event, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		Payload:    body,
	}, nil
}

// Publisher is implemented by the AMQP producer and by test stubs.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// NopPublisher discards every event. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, event Event) error { return nil }

// VoteUpdatedPayload is the aggregate snapshot broadcast after a vote
// mutation.
type VoteUpdatedPayload struct {
	AtomID      string `json:"atomId"`
	VoterID     string `json:"voterId"`
	Action      string `json:"action"`   // added, updated, removed
	VoteType    string `json:"voteType"` // empty when removed
	Upvotes     int    `json:"upvotes"`
	Downvotes   int    `json:"downvotes"`
	NetVotes    int    `json:"netVotes"`
	IsCompleted bool   `json:"isCompleted"`
}

// CompletionRecordedPayload announces a successful completion.
type CompletionRecordedPayload struct {
	CompletionID string `json:"completionId"`
	HabitID      string `json:"habitId"`
	UserID       string `json:"userId"`
	HabitTitle   string `json:"habitTitle"`
	WasPublished bool   `json:"wasPublished"`
}

// AtomCreatedPayload announces a new shareable post for follower feeds.
type AtomCreatedPayload struct {
	AtomID     string `json:"atomId"`
	UserID     string `json:"userId"`
	HabitTitle string `json:"habitTitle"`
	Caption    string `json:"caption"`
}

// LeaderboardChangedPayload carries either a nudge after a scoring mutation
// or a periodic top-N snapshot.
type LeaderboardChangedPayload struct {
	Reason   string      `json:"reason"` // habit_completed, vote_changed, periodic
	UserID   string      `json:"userId,omitempty"`
	TopSlice interface{} `json:"top,omitempty"`
}
