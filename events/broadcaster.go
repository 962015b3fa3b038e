package events

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// SnapshotFunc produces the current leaderboard top slice.
type SnapshotFunc func(ctx context.Context) (interface{}, error)

// Broadcaster periodically publishes a leaderboard snapshot so connected
// clients keep a fresh ranking even between scoring mutations.
type Broadcaster struct {
	cron      *cron.Cron
	publisher Publisher
	snapshot  SnapshotFunc
}

func NewBroadcaster(publisher Publisher, snapshot SnapshotFunc) *Broadcaster {
	return &Broadcaster{
		cron:      cron.New(cron.WithSeconds()),
		publisher: publisher,
		snapshot:  snapshot,
	}
}

// Start registers the broadcast job on the given interval and starts the
// scheduler. A broadcast failure is logged and the schedule keeps running.
func (b *Broadcaster) Start(interval time.Duration) error {
	seconds := int(interval.Seconds())
	if seconds <= 0 {
		return fmt.Errorf("interval must be positive")
	}
	spec := fmt.Sprintf("@every %ds", seconds)
	_, err := b.cron.AddFunc(spec, b.broadcast)
	if err != nil {
		return err
	}
	b.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for a running broadcast to finish.
func (b *Broadcaster) Stop() {
	ctx := b.cron.Stop()
	<-ctx.Done()
}

func (b *Broadcaster) broadcast() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	top, err := b.snapshot(ctx)
	if err != nil {
		log.Printf("leaderboard broadcast: snapshot failed: %v", err)
		return
	}

	event, err := New(TypeLeaderboardChanged, LeaderboardChangedPayload{
		Reason:   "periodic",
		TopSlice: top,
	})
	if err != nil {
		log.Printf("leaderboard broadcast: marshal failed: %v", err)
		return
	}
	if err := b.publisher.Publish(ctx, event); err != nil {
		log.Printf("leaderboard broadcast: publish failed: %v", err)
	}
}
