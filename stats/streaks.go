package stats

import (
	"sort"
	"time"

	"medquest/models"
)

// civilDay numbers calendar days in loc so day arithmetic ignores DST shifts.
func civilDay(t time.Time, loc *time.Location) int64 {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400
}

// UntilNextDay is how long the calendar day containing now lasts in loc.
// Streaks computed at now are only valid for that long.
func UntilNextDay(now time.Time, loc *time.Location) time.Duration {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := now.In(loc).Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, loc).Sub(now)
}

func activeDays(records []models.ActivityRecord, loc *time.Location) map[int64]struct{} {
	days := make(map[int64]struct{}, len(records))
	for _, r := range records {
		days[civilDay(r.CreatedAt, loc)] = struct{}{}
	}
	return days
}

// CurrentStreak counts consecutive calendar days with activity ending today.
// Today is offset 0; the first offset without activity ends the streak, so a
// user who has not been active today has a streak of 0.
func CurrentStreak(records []models.ActivityRecord, now time.Time, loc *time.Location) int {
	days := activeDays(records, loc)
	today := civilDay(now, loc)
	streak := 0
	for {
		if _, ok := days[today-int64(streak)]; !ok {
			return streak
		}
		streak++
	}
}

// BestStreak is the longest run of consecutive active days in the log.
func BestStreak(records []models.ActivityRecord, loc *time.Location) int {
	set := activeDays(records, loc)
	if len(set) == 0 {
		return 0
	}
	days := make([]int64, 0, len(set))
	for d := range set {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })

	best, run := 1, 1
	for i := 1; i < len(days); i++ {
		if days[i]-days[i-1] <= 1 {
			run++
		} else {
			run = 1
		}
		if run > best {
			best = run
		}
	}
	return best
}
