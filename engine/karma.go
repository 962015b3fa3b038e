package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/atomly/atomly/models"
	"github.com/atomly/atomly/storage/cache"
	storage "github.com/atomly/atomly/storage/persistent"
)

const (
	karmaPerStar           = 10
	streakBonusUnit        = 10 // per full week of streak
	socialEngagementWeight = 2  // per vote cast that day
	maxStreakLookbackDays  = 365
	trendingLookbackDays   = 7
	leaderboardCacheTTL    = 30 * time.Second
)

// KarmaBreakdown is the computed daily karma for one user at one day:
// stars*10 + floor(streak/7)*10 + votesCast*2. It is derived on demand and
// never stored.
type KarmaBreakdown struct {
	Daily            int `json:"daily"`
	Streak           int `json:"streak"`
	StarsEarned      int `json:"starsEarned"`
	StreakBonus      int `json:"streakBonus"`
	SocialEngagement int `json:"socialEngagement"` // weighted vote contribution
}

// UserKarma combines the stored total with today's computed breakdown.
type UserKarma struct {
	UserID string `json:"userId"`
	Total  int    `json:"totalKarma"`
	KarmaBreakdown
}

type DailyLeaderboardEntry struct {
	Rank          int         `json:"rank"`
	User          models.User `json:"user"`
	DailyKarma    int         `json:"dailyKarma"`
	StarsEarned   int         `json:"starsEarned"`
	CurrentStreak int         `json:"currentStreak"`
	VotesCast     int         `json:"socialEngagement"`
}

type TotalLeaderboardEntry struct {
	Rank int         `json:"rank"`
	User models.User `json:"user"`
}

// TotalLeaderboard carries the top slice plus the caller's own standing,
// which is counted against the whole table, not the slice.
type TotalLeaderboard struct {
	Entries          []TotalLeaderboardEntry `json:"leaderboard"`
	CurrentUserRank  int                     `json:"currentUserRank"`
	CurrentUserKarma int                     `json:"currentUserKarma"`
}

type CategoryLeaderboardEntry struct {
	Rank                int         `json:"rank"`
	User                models.User `json:"user"`
	CategoryKarma       int         `json:"categoryKarma"`
	CategoryHabits      int         `json:"categoryHabits"`
	CategoryCompletions int         `json:"categoryCompletions"`
}

// HistoryPoint is one day of a user's ranking history: completions on that
// date times ten. Votes do not contribute here, unlike the daily
// leaderboard formula.
type HistoryPoint struct {
	Date  string `json:"date"` // YYYY-MM-DD
	Karma int    `json:"karma"`
}

// UserKarma returns the stored total and today's computed breakdown.
func (e *Engine) UserKarma(ctx context.Context, userID primitive.ObjectID) (*UserKarma, error) {
	user, err := e.store.FindUser(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	breakdown, err := e.dailyKarmaAt(ctx, userID, e.localNow())
	if err != nil {
		return nil, err
	}
	return &UserKarma{
		UserID:         user.ID.Hex(),
		Total:          user.TotalKarma,
		KarmaBreakdown: breakdown,
	}, nil
}

// dailyKarmaAt computes the daily karma formula for the calendar day
// containing the given instant.
func (e *Engine) dailyKarmaAt(ctx context.Context, userID primitive.ObjectID, at time.Time) (KarmaBreakdown, error) {
	dayStart := e.startOfDay(at)
	dayEnd := dayStart.AddDate(0, 0, 1)

	stars, err := e.store.CountCompletionsBetween(ctx, userID, dayStart, dayEnd)
	if err != nil {
		return KarmaBreakdown{}, err
	}
	streak, err := e.streakAt(ctx, userID, dayStart)
	if err != nil {
		return KarmaBreakdown{}, err
	}
	votes, err := e.store.CountVotesCastBetween(ctx, userID, dayStart, dayEnd)
	if err != nil {
		return KarmaBreakdown{}, err
	}

	bonus := streak / 7 * streakBonusUnit
	social := int(votes) * socialEngagementWeight
	return KarmaBreakdown{
		Daily:            int(stars)*karmaPerStar + bonus + social,
		Streak:           streak,
		StarsEarned:      int(stars),
		StreakBonus:      bonus,
		SocialEngagement: social,
	}, nil
}

// streakAt counts consecutive hit days ending at the day starting at
// dayStart, walking backward until the first miss, bounded to a year.
func (e *Engine) streakAt(ctx context.Context, userID primitive.ObjectID, dayStart time.Time) (int, error) {
	lookbackStart := dayStart.AddDate(0, 0, -maxStreakLookbackDays)
	completions, err := e.store.ListCompletionsBetween(ctx, userID, lookbackStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		return 0, err
	}

	hits := make(map[string]bool, len(completions))
	for _, c := range completions {
		hits[e.startOfDay(c.CompletedAt).Format("2006-01-02")] = true
	}

	streak := 0
	for i := 0; i < maxStreakLookbackDays; i++ {
		day := dayStart.AddDate(0, 0, -i)
		if !hits[day.Format("2006-01-02")] {
			break
		}
		streak++
	}
	return streak, nil
}

// DailyLeaderboard ranks every user by today's computed karma. Ties keep
// the first-seen order; ranks are positional.
func (e *Engine) DailyLeaderboard(ctx context.Context, limit int) ([]DailyLeaderboardEntry, error) {
	now := e.localNow()
	cacheKey := fmt.Sprintf("leaderboard:daily:%s:%d", e.startOfDay(now).Format("2006-01-02"), limit)
	var cached []DailyLeaderboardEntry
	if e.cacheGet(ctx, cacheKey, &cached) {
		return cached, nil
	}

	users, err := e.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]DailyLeaderboardEntry, 0, len(users))
	for _, user := range users {
		breakdown, err := e.dailyKarmaAt(ctx, user.ID, now)
		if err != nil {
			return nil, err
		}
		entries = append(entries, DailyLeaderboardEntry{
			User:          user,
			DailyKarma:    breakdown.Daily,
			StarsEarned:   breakdown.StarsEarned,
			CurrentStreak: breakdown.Streak,
			VotesCast:     breakdown.SocialEngagement / socialEngagementWeight,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].DailyKarma > entries[j].DailyKarma
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}

	e.cacheSet(ctx, cacheKey, entries)
	return entries, nil
}

// TopByTotalKarma returns the total-karma top slice with positional ranks.
// The periodic broadcast uses it directly; TotalLeaderboard wraps it with
// the caller's own standing.
func (e *Engine) TopByTotalKarma(ctx context.Context, limit int) ([]TotalLeaderboardEntry, error) {
	cacheKey := fmt.Sprintf("leaderboard:total:%d", limit)
	var entries []TotalLeaderboardEntry
	if e.cacheGet(ctx, cacheKey, &entries) {
		return entries, nil
	}

	users, err := e.store.ListUsersByKarma(ctx, int64(limit))
	if err != nil {
		return nil, err
	}
	entries = make([]TotalLeaderboardEntry, len(users))
	for i, user := range users {
		entries[i] = TotalLeaderboardEntry{Rank: i + 1, User: user}
	}
	e.cacheSet(ctx, cacheKey, entries)
	return entries, nil
}

// TotalLeaderboard ranks users by stored total karma. The caller's rank is
// one plus the number of users with strictly greater karma, so equal totals
// share a rank.
func (e *Engine) TotalLeaderboard(ctx context.Context, userID primitive.ObjectID, limit int) (*TotalLeaderboard, error) {
	entries, err := e.TopByTotalKarma(ctx, limit)
	if err != nil {
		return nil, err
	}

	user, err := e.store.FindUser(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	greater, err := e.store.CountUsersWithKarmaAbove(ctx, user.TotalKarma)
	if err != nil {
		return nil, err
	}

	return &TotalLeaderboard{
		Entries:          entries,
		CurrentUserRank:  int(greater) + 1,
		CurrentUserKarma: user.TotalKarma,
	}, nil
}

// CategoryLeaderboard ranks users by completions of habits in one category,
// ten points each.
func (e *Engine) CategoryLeaderboard(ctx context.Context, categoryID primitive.ObjectID, limit int) ([]CategoryLeaderboardEntry, error) {
	if _, err := e.store.FindCategory(ctx, categoryID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrCategoryNotFound
		}
		return nil, err
	}

	habits, err := e.store.ListHabitsByCategory(ctx, categoryID)
	if err != nil {
		return nil, err
	}

	habitIDs := make([]primitive.ObjectID, len(habits))
	habitsByUser := make(map[primitive.ObjectID]int)
	for i, h := range habits {
		habitIDs[i] = h.ID
		habitsByUser[h.UserID]++
	}

	completions, err := e.store.ListCompletionsForHabits(ctx, habitIDs)
	if err != nil {
		return nil, err
	}
	completionsByUser := make(map[primitive.ObjectID]int)
	for _, c := range completions {
		completionsByUser[c.UserID]++
	}

	users, err := e.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]CategoryLeaderboardEntry, 0, len(habitsByUser))
	for _, user := range users {
		habitCount, ok := habitsByUser[user.ID]
		if !ok {
			continue
		}
		count := completionsByUser[user.ID]
		entries = append(entries, CategoryLeaderboardEntry{
			User:                user,
			CategoryKarma:       count * karmaPerStar,
			CategoryHabits:      habitCount,
			CategoryCompletions: count,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CategoryKarma > entries[j].CategoryKarma
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries, nil
}

// UserHistory returns per-day karma over the last days calendar days:
// completions grouped by date, ten points each. Votes are deliberately not
// part of this figure.
func (e *Engine) UserHistory(ctx context.Context, userID primitive.ObjectID, days int) ([]HistoryPoint, error) {
	if _, err := e.store.FindUser(ctx, userID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	now := e.localNow()
	start := e.startOfDay(now).AddDate(0, 0, -days)
	completions, err := e.store.ListCompletionsBetween(ctx, userID, start, e.startOfDay(now).AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}

	byDate := make(map[string]int)
	for _, c := range completions {
		byDate[e.startOfDay(c.CompletedAt).Format("2006-01-02")] += karmaPerStar
	}

	history := make([]HistoryPoint, 0, len(byDate))
	for date, karma := range byDate {
		history = append(history, HistoryPoint{Date: date, Karma: karma})
	}
	sort.Slice(history, func(i, j int) bool { return history[i].Date < history[j].Date })
	return history, nil
}

// TrendingAtoms lists atoms from the last seven days with positive net
// votes, best first.
func (e *Engine) TrendingAtoms(ctx context.Context, limit int) ([]models.Atom, error) {
	since := e.localNow().AddDate(0, 0, -trendingLookbackDays)
	return e.store.ListTrendingAtoms(ctx, since, int64(limit))
}

// cacheGet reads a cached snapshot into dest; any cache failure other than
// a miss is logged and treated as a miss.
func (e *Engine) cacheGet(ctx context.Context, key string, dest interface{}) bool {
	if e.cache == nil {
		return false
	}
	err := e.cache.Get(ctx, key, dest)
	if err == nil {
		return true
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		log.Printf("cache get %s: %v", key, err)
	}
	return false
}

func (e *Engine) cacheSet(ctx context.Context, key string, value interface{}) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Set(ctx, key, value, leaderboardCacheTTL); err != nil {
		log.Printf("cache set %s: %v", key, err)
	}
}
