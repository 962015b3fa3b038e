package occurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// 2024-06-12 is a Wednesday; 2024-06-15 a Saturday; 2024-06-16 a Sunday.
var (
	wednesday = time.Date(2024, 6, 12, 15, 30, 0, 0, time.UTC)
	saturday  = time.Date(2024, 6, 15, 9, 0, 0, 0, time.UTC)
	sunday    = time.Date(2024, 6, 16, 23, 59, 0, 0, time.UTC)
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestResolveDaily(t *testing.T) {
	w, ok := Resolve(Daily, wednesday)
	assert.True(t, ok)
	assert.Equal(t, day(2024, 6, 12), w.Start)
	assert.Equal(t, day(2024, 6, 13), w.End)
	assert.Equal(t, 1, w.Max)
}

func TestResolveWeeklyStartsMonday(t *testing.T) {
	for _, occ := range []string{Weekly, OnceWeekly} {
		w, ok := Resolve(occ, wednesday)
		assert.True(t, ok)
		assert.Equal(t, day(2024, 6, 10), w.Start, occ) // Monday
		assert.Equal(t, day(2024, 6, 17), w.End, occ)
		assert.Equal(t, 1, w.Max, occ)
	}
}

func TestResolveWeeklyOnSunday(t *testing.T) {
	// Sunday belongs to the week that started six days earlier.
	w, ok := Resolve(Weekly, sunday)
	assert.True(t, ok)
	assert.Equal(t, day(2024, 6, 10), w.Start)
	assert.Equal(t, day(2024, 6, 17), w.End)
}

func TestResolveWeekdays(t *testing.T) {
	w, ok := Resolve(Weekdays, wednesday)
	assert.True(t, ok)
	assert.Equal(t, day(2024, 6, 12), w.Start)

	_, ok = Resolve(Weekdays, saturday)
	assert.False(t, ok, "weekdays habit must not apply on Saturday")
	_, ok = Resolve(Weekdays, sunday)
	assert.False(t, ok, "weekdays habit must not apply on Sunday")
}

func TestResolveWeekends(t *testing.T) {
	_, ok := Resolve(Weekends, wednesday)
	assert.False(t, ok, "weekends habit must not apply on Wednesday")

	w, ok := Resolve(Weekends, saturday)
	assert.True(t, ok)
	assert.Equal(t, day(2024, 6, 15), w.Start)
	assert.Equal(t, day(2024, 6, 16), w.End)
}

func TestResolveBiweeklySlidingLookback(t *testing.T) {
	w, ok := Resolve(Biweekly, wednesday)
	assert.True(t, ok)
	assert.Equal(t, day(2024, 5, 29), w.Start)
	// The current instant is inside the window.
	assert.True(t, wednesday.After(w.Start) && wednesday.Before(w.End))

	// A completion 10 days ago falls inside the lookback; 15 days ago does not.
	assert.True(t, !wednesday.AddDate(0, 0, -10).Before(w.Start))
	assert.True(t, wednesday.AddDate(0, 0, -15).Before(w.Start))
}

func TestResolveTwiceWeekly(t *testing.T) {
	w, ok := Resolve(TwiceWeekly, wednesday)
	assert.True(t, ok)
	assert.Equal(t, day(2024, 6, 10), w.Start)
	assert.Equal(t, day(2024, 6, 17), w.End)
	assert.Equal(t, 2, w.Max)
}

func TestResolveUnrecognizedFallsBackToDaily(t *testing.T) {
	w, ok := Resolve("fortnightly", wednesday)
	assert.True(t, ok)
	assert.Equal(t, day(2024, 6, 12), w.Start)
	assert.Equal(t, day(2024, 6, 13), w.End)
	assert.Equal(t, 1, w.Max)
}

func TestKnown(t *testing.T) {
	for _, occ := range []string{Daily, Weekly, Weekdays, Weekends, OnceWeekly, Biweekly, TwiceWeekly} {
		assert.True(t, Known(occ), occ)
	}
	assert.False(t, Known("fortnightly"))
	assert.False(t, Known(""))
}

func TestResolveHonorsLocation(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*60*60)
	// 23:30 local on Wednesday is already Thursday in UTC; the window must
	// follow the local calendar day.
	local := time.Date(2024, 6, 12, 23, 30, 0, 0, loc)
	w, ok := Resolve(Daily, local)
	assert.True(t, ok)
	assert.Equal(t, time.Date(2024, 6, 12, 0, 0, 0, 0, loc), w.Start)
	assert.Equal(t, time.Date(2024, 6, 13, 0, 0, 0, 0, loc), w.End)
}
