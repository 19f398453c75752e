package models

import "time"

// TrackStats are the derived statistics of a single track.
type TrackStats struct {
	Track              Track   `json:"track"`
	Level              int     `json:"level"`
	TotalXP            int     `json:"totalXP"`
	CurrentXP          int     `json:"currentXP"`
	XPToNextLevel      int     `json:"xpToNextLevel"`
	CurrentStreak      int     `json:"currentStreak"`
	BestStreak         int     `json:"bestStreak"`
	AveragePerformance float64 `json:"averagePerformance"`
	TimeSpent          int     `json:"timeSpent"`
	ActivitiesCount    int     `json:"activitiesCount"`
}

type OverallStats struct {
	OverallLevel        int   `json:"overallLevel"`
	TotalXP             int   `json:"totalXP"`
	FavoriteMethodology Track `json:"favoriteMethodology,omitempty"`
	CurrentStreak       int   `json:"currentStreak"`
	BestStreak          int   `json:"bestStreak"`
	TotalTimeSpent      int   `json:"totalTimeSpent"`
	TotalActivities     int   `json:"totalActivities"`
}

// UserStats is rebuilt on demand from the activity log. Available is false
// when the underlying reads failed and only defaults could be returned.
type UserStats struct {
	UserID      string               `json:"userId"`
	Available   bool                 `json:"available"`
	Overall     OverallStats         `json:"overall"`
	Tracks      map[Track]TrackStats `json:"tracks"`
	GeneratedAt time.Time            `json:"generatedAt"`
}
