package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/atomly/atomly/models"
	"github.com/atomly/atomly/storage/memory"
)

var testCtx = context.Background()

// fixture wires an engine over the in-memory store with a pinned clock.
// Tests move time by assigning to now.
type fixture struct {
	store  *memory.Store
	engine *Engine
	now    time.Time
	user   *models.User
	cat    *models.Category
}

func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()
	f := &fixture{store: memory.NewStore(), now: now}
	f.engine = New(f.store,
		WithLocation(time.UTC),
		WithClock(func() time.Time { return f.now }),
	)

	user, err := f.store.AddUser(testCtx, &models.User{Username: "casey", CreatedAt: now})
	require.NoError(t, err)
	f.user = user

	cat, err := f.store.AddCategory(testCtx, &models.Category{Name: "Learning", IsDefault: true})
	require.NoError(t, err)
	f.cat = cat
	return f
}

func (f *fixture) addUser(t *testing.T, username string, karma int) *models.User {
	t.Helper()
	user, err := f.store.AddUser(testCtx, &models.User{
		Username:   username,
		TotalKarma: karma,
		CreatedAt:  f.now,
	})
	require.NoError(t, err)
	return user
}

func (f *fixture) addHabit(t *testing.T, userID primitive.ObjectID, title string, habitType models.HabitType, occ string) *models.Habit {
	t.Helper()
	habit, err := f.store.AddHabit(testCtx, &models.Habit{
		UserID:     userID,
		CategoryID: f.cat.ID,
		Title:      title,
		Type:       habitType,
		Occurrence: occ,
		Slot:       models.SlotMorning,
		StartDate:  f.now,
		IsActive:   true,
		CreatedAt:  f.now,
	})
	require.NoError(t, err)
	return habit
}

// addCompletion stores a completion directly, bypassing window checks, so
// tests can build arbitrary ledgers.
func (f *fixture) addCompletion(t *testing.T, habitID, userID primitive.ObjectID, at time.Time) *models.Completion {
	t.Helper()
	completion, err := f.store.AddCompletionInWindow(testCtx, &models.Completion{
		HabitID:     habitID,
		UserID:      userID,
		CompletedAt: at,
	}, at, at.Add(time.Second), 1<<30)
	require.NoError(t, err)
	return completion
}

func (f *fixture) addAtom(t *testing.T, authorID primitive.ObjectID) *models.Atom {
	t.Helper()
	atom, err := f.store.AddAtom(testCtx, &models.Atom{
		CompletionID:   primitive.NewObjectID(),
		HabitID:        primitive.NewObjectID(),
		UserID:         authorID,
		Image:          "img.png",
		Caption:        "done",
		HabitTitle:     "Read",
		HabitType:      models.HabitTypeShareable,
		Occurrence:     "daily",
		CompletionTime: f.now,
		CreatedAt:      f.now,
	})
	require.NoError(t, err)
	return atom
}

// midweek is a Wednesday afternoon; tests that depend on the day of week
// build on it.
var midweek = time.Date(2024, time.June, 12, 15, 0, 0, 0, time.UTC)
