// Package engine implements the habit engagement and scoring core: the
// completion ledger, the atom & vote ledger, and the karma, streak and
// leaderboard calculators. Persistence, caching, caption generation and
// event fan-out are collaborators injected at construction.
package engine

import (
	"context"
	"log"
	"time"

	"github.com/atomly/atomly/caption"
	"github.com/atomly/atomly/events"
	"github.com/atomly/atomly/storage/cache"
	storage "github.com/atomly/atomly/storage/persistent"
)

// KarmaPerCompletion is the fixed increment added to a user's stored total
// karma for every successful completion. The stored total only ever grows;
// it is independent of the computed daily karma.
const KarmaPerCompletion = 10

// Engine is the single entry point for all scoring mutations and queries.
// Both the request-handler path and the real-time channel path must go
// through it so vote handling cannot diverge between transports.
type Engine struct {
	store     storage.StorageInterface
	cache     cache.CacheInterface // nil disables leaderboard caching
	captions  caption.Generator    // nil means fallback captions only
	publisher events.Publisher
	loc       *time.Location
	now       func() time.Time
}

type Option func(*Engine)

// WithCache enables read-side caching of leaderboard snapshots.
func WithCache(c cache.CacheInterface) Option {
	return func(e *Engine) { e.cache = c }
}

// WithCaptionGenerator sets the external caption collaborator.
func WithCaptionGenerator(g caption.Generator) Option {
	return func(e *Engine) { e.captions = g }
}

// WithPublisher sets the fan-out publisher for engine events.
func WithPublisher(p events.Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithLocation sets the calendar the window and karma math uses. Defaults
// to the deployment's local time zone.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) { e.loc = loc }
}

// WithClock overrides the engine's clock. Tests pin it to fixed instants.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func New(store storage.StorageInterface, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		publisher: events.NopPublisher{},
		loc:       time.Local,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// localNow is the instant every eligibility and karma decision is made at.
func (e *Engine) localNow() time.Time {
	return e.now().In(e.loc)
}

func (e *Engine) startOfDay(t time.Time) time.Time {
	t = t.In(e.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, e.loc)
}

// emit publishes an engine event. Fan-out is best-effort: failures are
// logged and never abort the mutation that produced the event.
func (e *Engine) emit(ctx context.Context, eventType string, payload interface{}) {
	event, err := events.New(eventType, payload)
	if err != nil {
		log.Printf("event %s: marshal failed: %v", eventType, err)
		return
	}
	if err := e.publisher.Publish(ctx, event); err != nil {
		log.Printf("event %s: publish failed: %v", eventType, err)
	}
}
