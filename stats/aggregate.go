package stats

import (
	"time"

	"medquest/models"
)

// Aggregate derives the full statistics view of a user.
func Aggregate(userID string, levels map[models.Track]models.TrackLevel, overall models.OverallLevel, records []models.ActivityRecord, now time.Time, loc *time.Location) models.UserStats {
	out := models.UserStats{
		UserID:      userID,
		Available:   true,
		Tracks:      make(map[models.Track]models.TrackStats, len(models.AllTracks())),
		GeneratedAt: now,
	}

	for _, track := range models.AllTracks() {
		trackRecords := FilterTrack(records, track)
		lvl := levels[track]
		out.Tracks[track] = models.TrackStats{
			Track:              track,
			Level:              lvl.CurrentLevel,
			TotalXP:            lvl.TotalXP,
			CurrentXP:          lvl.CurrentXP,
			XPToNextLevel:      lvl.XPToNextLevel,
			CurrentStreak:      CurrentStreak(trackRecords, now, loc),
			BestStreak:         BestStreak(trackRecords, loc),
			AveragePerformance: AveragePerformance(track, trackRecords),
			TimeSpent:          TimeSpent(trackRecords),
			ActivitiesCount:    len(trackRecords),
		}
	}

	out.Overall = models.OverallStats{
		OverallLevel:        overall.OverallLevel,
		TotalXP:             overall.TotalXP,
		FavoriteMethodology: FavoriteMethodology(levels),
		CurrentStreak:       CurrentStreak(records, now, loc),
		BestStreak:          BestStreak(records, loc),
		TotalTimeSpent:      TimeSpent(records),
		TotalActivities:     len(records),
	}
	return out
}
