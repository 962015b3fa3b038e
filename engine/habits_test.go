package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/atomly/atomly/models"
	"github.com/atomly/atomly/occurrence"
)

func validHabitRequest(f *fixture) HabitRequest {
	return HabitRequest{
		Title:      "Read",
		Type:       models.HabitTypePersonal,
		CategoryID: f.cat.ID,
		Occurrence: occurrence.Daily,
		Slot:       models.SlotEvening,
	}
}

func TestCreateHabit(t *testing.T) {
	f := newFixture(t, midweek)

	habit, err := f.engine.CreateHabit(testCtx, f.user.ID, validHabitRequest(f))
	require.NoError(t, err)
	assert.Equal(t, "Read", habit.Title)
	assert.True(t, habit.IsActive)
	assert.Equal(t, f.engine.startOfDay(midweek), habit.StartDate)

	_, err = f.engine.CreateHabit(testCtx, f.user.ID, validHabitRequest(f))
	assert.ErrorIs(t, err, ErrHabitTitleExists)
}

func TestCreateHabitValidation(t *testing.T) {
	f := newFixture(t, midweek)

	tests := []struct {
		name   string
		mutate func(*HabitRequest)
		code   string
	}{
		{"empty title", func(r *HabitRequest) { r.Title = "  " }, "HABIT_TITLE_REQUIRED"},
		{"bad type", func(r *HabitRequest) { r.Type = "Secret" }, "INVALID_HABIT_TYPE"},
		{"bad occurrence", func(r *HabitRequest) { r.Occurrence = "hourly" }, "INVALID_OCCURRENCE"},
		{"bad slot", func(r *HabitRequest) { r.Slot = "Midnight" }, "INVALID_SLOT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validHabitRequest(f)
			tt.mutate(&req)
			_, err := f.engine.CreateHabit(testCtx, f.user.ID, req)
			require.Error(t, err)
			assert.Equal(t, tt.code, CodeOf(err))
		})
	}
}

func TestCreateHabitUnknownCategory(t *testing.T) {
	f := newFixture(t, midweek)
	req := validHabitRequest(f)
	req.CategoryID = primitive.NewObjectID()

	_, err := f.engine.CreateHabit(testCtx, f.user.ID, req)
	assert.ErrorIs(t, err, ErrCategoryNotFound)
}

func TestUpdateHabit(t *testing.T) {
	f := newFixture(t, midweek)
	habit, err := f.engine.CreateHabit(testCtx, f.user.ID, validHabitRequest(f))
	require.NoError(t, err)

	req := validHabitRequest(f)
	req.Title = "Read more"
	req.Occurrence = occurrence.Weekly
	req.Description = "a chapter a week"

	updated, err := f.engine.UpdateHabit(testCtx, f.user.ID, habit.ID, req)
	require.NoError(t, err)
	assert.Equal(t, "Read more", updated.Title)
	assert.Equal(t, occurrence.Weekly, updated.Occurrence)
	assert.Equal(t, "a chapter a week", updated.Description)

	stored, err := f.store.FindHabit(testCtx, habit.ID)
	require.NoError(t, err)
	assert.Equal(t, "Read more", stored.Title)
}

func TestUpdateHabitTitleConflict(t *testing.T) {
	f := newFixture(t, midweek)
	_, err := f.engine.CreateHabit(testCtx, f.user.ID, validHabitRequest(f))
	require.NoError(t, err)

	second := validHabitRequest(f)
	second.Title = "Run"
	habit, err := f.engine.CreateHabit(testCtx, f.user.ID, second)
	require.NoError(t, err)

	second.Title = "Read"
	_, err = f.engine.UpdateHabit(testCtx, f.user.ID, habit.ID, second)
	assert.ErrorIs(t, err, ErrHabitTitleExists)
}

func TestUpdateHabitWrongOwner(t *testing.T) {
	f := newFixture(t, midweek)
	other := f.addUser(t, "rory", 0)
	habit, err := f.engine.CreateHabit(testCtx, other.ID, validHabitRequest(f))
	require.NoError(t, err)

	_, err = f.engine.UpdateHabit(testCtx, f.user.ID, habit.ID, validHabitRequest(f))
	assert.ErrorIs(t, err, ErrHabitNotFound)
}

func TestDeactivateHabit(t *testing.T) {
	f := newFixture(t, midweek)
	habit, err := f.engine.CreateHabit(testCtx, f.user.ID, validHabitRequest(f))
	require.NoError(t, err)

	_, err = f.engine.CompleteHabit(testCtx, habit.ID, f.user.ID, CompleteRequest{})
	require.NoError(t, err)

	deactivated, err := f.engine.DeactivateHabit(testCtx, f.user.ID, habit.ID)
	require.NoError(t, err)
	assert.False(t, deactivated.IsActive)

	// Inactive habits reject completions but keep their history.
	f.now = midweek.AddDate(0, 0, 1)
	_, err = f.engine.CompleteHabit(testCtx, habit.ID, f.user.ID, CompleteRequest{})
	assert.ErrorIs(t, err, ErrHabitNotFound)

	count, err := f.store.CountCompletionsBetween(testCtx, f.user.ID, midweek.AddDate(0, 0, -1), midweek.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestDeleteHabitCascades(t *testing.T) {
	f := newFixture(t, midweek)
	habit, err := f.engine.CreateHabit(testCtx, f.user.ID, validHabitRequest(f))
	require.NoError(t, err)

	_, err = f.engine.CompleteHabit(testCtx, habit.ID, f.user.ID, CompleteRequest{})
	require.NoError(t, err)

	require.NoError(t, f.engine.DeleteHabit(testCtx, f.user.ID, habit.ID))

	habits, err := f.engine.ListHabits(testCtx, f.user.ID)
	require.NoError(t, err)
	assert.Empty(t, habits)

	count, err := f.store.CountCompletionsBetween(testCtx, f.user.ID, midweek.AddDate(0, 0, -1), midweek.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Zero(t, count)

	// Karma granted before the delete is not revoked.
	user, err := f.store.FindUser(testCtx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, KarmaPerCompletion, user.TotalKarma)
}

func TestDeleteHabitWrongOwner(t *testing.T) {
	f := newFixture(t, midweek)
	other := f.addUser(t, "rory", 0)
	habit, err := f.engine.CreateHabit(testCtx, other.ID, validHabitRequest(f))
	require.NoError(t, err)

	err = f.engine.DeleteHabit(testCtx, f.user.ID, habit.ID)
	assert.ErrorIs(t, err, ErrHabitNotFound)
}
