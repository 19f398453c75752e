package structs

import "medquest/models"

type RecordActivityRequest struct {
	Track        models.Track            `json:"track" binding:"required"`
	ActivityType models.ActivityType     `json:"activityType" binding:"required"`
	Metadata     models.ActivityMetadata `json:"metadata"`
}

type CurveResponse struct {
	Track      models.Track `json:"track"`
	Level      int          `json:"level"`
	XPRequired int          `json:"xpRequired"`
	TotalXP    int          `json:"totalXP"`
	MaxLevel   int          `json:"maxLevel"`
}

type LeaderboardEntry struct {
	Rank         int                  `json:"rank"`
	UserID       string               `json:"userId"`
	OverallLevel int                  `json:"overallLevel"`
	TotalXP      int                  `json:"totalXP"`
	TrackLevels  map[models.Track]int `json:"trackLevels"`
	CurrentUser  bool                 `json:"currentUser"`
}

type ResetTrackResponse struct {
	Message      string               `json:"message"`
	OverallLevel *models.OverallLevel `json:"overallLevel"`
}
