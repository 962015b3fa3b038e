package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/atomly/atomly/models"
	"github.com/atomly/atomly/occurrence"
)

// karmaFixture anchors the pinned clock at noon of the current wall-clock
// day so that votes, which the store stamps with wall time, land inside
// "today", and hour offsets around the anchor stay within the day.
func karmaFixture(t *testing.T) *fixture {
	t.Helper()
	now := time.Now().UTC()
	noon := time.Date(now.Year(), now.Month(), now.Day(), 12, 0, 0, 0, time.UTC)
	return newFixture(t, noon)
}

func TestUserKarmaStreak(t *testing.T) {
	f := karmaFixture(t)
	habit := f.addHabit(t, f.user.ID, "Read", models.HabitTypePersonal, occurrence.Daily)
	for i := 0; i < 3; i++ {
		f.addCompletion(t, habit.ID, f.user.ID, f.now.AddDate(0, 0, -i))
	}

	karma, err := f.engine.UserKarma(testCtx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, karma.Streak)
	assert.Equal(t, 1, karma.StarsEarned)
	assert.Equal(t, 10, karma.Daily)
}

func TestUserKarmaStreakBrokenByGap(t *testing.T) {
	f := karmaFixture(t)
	habit := f.addHabit(t, f.user.ID, "Read", models.HabitTypePersonal, occurrence.Daily)
	f.addCompletion(t, habit.ID, f.user.ID, f.now)
	f.addCompletion(t, habit.ID, f.user.ID, f.now.AddDate(0, 0, -2))

	karma, err := f.engine.UserKarma(testCtx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, karma.Streak)
}

func TestUserKarmaDailyFormula(t *testing.T) {
	f := karmaFixture(t)
	habit := f.addHabit(t, f.user.ID, "Read", models.HabitTypePersonal, occurrence.Daily)

	// Three stars today and six prior consecutive days: streak 7 earns one
	// full weekly bonus.
	for i := 0; i < 3; i++ {
		f.addCompletion(t, habit.ID, f.user.ID, f.now.Add(time.Duration(i)*time.Minute))
	}
	for i := 1; i <= 6; i++ {
		f.addCompletion(t, habit.ID, f.user.ID, f.now.AddDate(0, 0, -i))
	}

	karma, err := f.engine.UserKarma(testCtx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, karma.StarsEarned)
	assert.Equal(t, 7, karma.Streak)
	assert.Equal(t, 10, karma.StreakBonus)
	assert.Equal(t, 0, karma.SocialEngagement)
	assert.Equal(t, 40, karma.Daily)

	// Two votes cast today add two points each.
	author := f.addUser(t, "rory", 0)
	for i := 0; i < 2; i++ {
		atom := f.addAtom(t, author.ID)
		_, err := f.engine.VoteOnAtom(testCtx, atom.ID, f.user.ID, models.VoteUp)
		require.NoError(t, err)
	}

	karma, err = f.engine.UserKarma(testCtx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, karma.SocialEngagement)
	assert.Equal(t, 44, karma.Daily)
}

func TestUserKarmaNotFound(t *testing.T) {
	f := karmaFixture(t)

	_, err := f.engine.UserKarma(testCtx, primitive.NewObjectID())
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestTotalLeaderboard(t *testing.T) {
	f := karmaFixture(t)
	f.addUser(t, "ash", 30)
	caller := f.addUser(t, "rory", 20)
	f.addUser(t, "jamie", 20)
	f.addUser(t, "kit", 10)

	board, err := f.engine.TotalLeaderboard(testCtx, caller.ID, 3)
	require.NoError(t, err)
	require.Len(t, board.Entries, 3)
	assert.Equal(t, 1, board.Entries[0].Rank)
	assert.Equal(t, "ash", board.Entries[0].User.Username)
	assert.Equal(t, 30, board.Entries[0].User.TotalKarma)

	// Equal totals share a rank: only one user strictly above 20.
	assert.Equal(t, 2, board.CurrentUserRank)
	assert.Equal(t, 20, board.CurrentUserKarma)
}

func TestTotalLeaderboardUnknownCaller(t *testing.T) {
	f := karmaFixture(t)

	_, err := f.engine.TotalLeaderboard(testCtx, primitive.NewObjectID(), 10)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestDailyLeaderboard(t *testing.T) {
	f := karmaFixture(t)
	rival := f.addUser(t, "rory", 0)
	habitA := f.addHabit(t, f.user.ID, "Read", models.HabitTypePersonal, occurrence.Daily)
	habitB := f.addHabit(t, rival.ID, "Run", models.HabitTypePersonal, occurrence.Daily)

	f.addCompletion(t, habitA.ID, f.user.ID, f.now)
	f.addCompletion(t, habitA.ID, f.user.ID, f.now.Add(time.Minute))
	f.addCompletion(t, habitB.ID, rival.ID, f.now)

	board, err := f.engine.DailyLeaderboard(testCtx, 10)
	require.NoError(t, err)
	require.Len(t, board, 2)
	assert.Equal(t, 1, board[0].Rank)
	assert.Equal(t, f.user.Username, board[0].User.Username)
	assert.Equal(t, 20, board[0].DailyKarma)
	assert.Equal(t, 2, board[1].Rank)
	assert.Equal(t, 10, board[1].DailyKarma)

	top, err := f.engine.DailyLeaderboard(testCtx, 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, f.user.Username, top[0].User.Username)
}

func TestCategoryLeaderboard(t *testing.T) {
	f := karmaFixture(t)
	rival := f.addUser(t, "rory", 0)
	f.addUser(t, "kit", 0) // no habits in the category

	habitA := f.addHabit(t, f.user.ID, "Read", models.HabitTypePersonal, occurrence.Daily)
	habitB := f.addHabit(t, rival.ID, "Study", models.HabitTypePersonal, occurrence.Daily)

	for i := 0; i < 3; i++ {
		f.addCompletion(t, habitA.ID, f.user.ID, f.now.AddDate(0, 0, -i))
	}
	f.addCompletion(t, habitB.ID, rival.ID, f.now)

	board, err := f.engine.CategoryLeaderboard(testCtx, f.cat.ID, 10)
	require.NoError(t, err)
	require.Len(t, board, 2) // users without habits in the category are absent
	assert.Equal(t, 1, board[0].Rank)
	assert.Equal(t, f.user.Username, board[0].User.Username)
	assert.Equal(t, 30, board[0].CategoryKarma)
	assert.Equal(t, 3, board[0].CategoryCompletions)
	assert.Equal(t, 10, board[1].CategoryKarma)
}

func TestCategoryLeaderboardUnknownCategory(t *testing.T) {
	f := karmaFixture(t)

	_, err := f.engine.CategoryLeaderboard(testCtx, primitive.NewObjectID(), 10)
	assert.ErrorIs(t, err, ErrCategoryNotFound)
}

func TestUserHistoryExcludesVotes(t *testing.T) {
	f := karmaFixture(t)
	habit := f.addHabit(t, f.user.ID, "Read", models.HabitTypePersonal, occurrence.Daily)

	f.addCompletion(t, habit.ID, f.user.ID, f.now.AddDate(0, 0, -1))
	f.addCompletion(t, habit.ID, f.user.ID, f.now.AddDate(0, 0, -1).Add(time.Hour))
	f.addCompletion(t, habit.ID, f.user.ID, f.now.AddDate(0, 0, -3))

	// A vote cast today must not produce a history point.
	author := f.addUser(t, "rory", 0)
	atom := f.addAtom(t, author.ID)
	_, err := f.engine.VoteOnAtom(testCtx, atom.ID, f.user.ID, models.VoteUp)
	require.NoError(t, err)

	history, err := f.engine.UserHistory(testCtx, f.user.ID, 7)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 10, history[0].Karma) // three days back
	assert.Equal(t, 20, history[1].Karma) // yesterday, two completions
	assert.Less(t, history[0].Date, history[1].Date)
}

func TestUserHistoryUnknownUser(t *testing.T) {
	f := karmaFixture(t)

	_, err := f.engine.UserHistory(testCtx, primitive.NewObjectID(), 7)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestTrendingAtoms(t *testing.T) {
	f := karmaFixture(t)
	author := f.addUser(t, "rory", 0)

	hot := f.addAtom(t, author.ID)
	warm := f.addAtom(t, author.ID)
	cold := f.addAtom(t, author.ID)

	voterA := f.addUser(t, "jamie", 0)
	voterB := f.addUser(t, "kit", 0)
	_, err := f.engine.VoteOnAtom(testCtx, hot.ID, voterA.ID, models.VoteUp)
	require.NoError(t, err)
	_, err = f.engine.VoteOnAtom(testCtx, hot.ID, voterB.ID, models.VoteUp)
	require.NoError(t, err)
	_, err = f.engine.VoteOnAtom(testCtx, warm.ID, voterA.ID, models.VoteUp)
	require.NoError(t, err)
	_, err = f.engine.VoteOnAtom(testCtx, cold.ID, voterA.ID, models.VoteDown)
	require.NoError(t, err)

	trending, err := f.engine.TrendingAtoms(testCtx, 10)
	require.NoError(t, err)
	require.Len(t, trending, 2)
	assert.Equal(t, hot.ID, trending[0].ID)
	assert.Equal(t, warm.ID, trending[1].ID)
}
