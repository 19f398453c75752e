package models

import "time"

const (
	EventXPGained       = "xp_gained"
	EventLevelUp        = "level_up"
	EventOverallLevelUp = "overall_level_up"
)

// GamificationEvent is pushed to the user's connected clients after an activity commits.
type GamificationEvent struct {
	Type         string       `json:"type"`
	UserID       string       `json:"userId"`
	Track        Track        `json:"track,omitempty"`
	ActivityType ActivityType `json:"activityType,omitempty"`
	XPGained     int          `json:"xpGained,omitempty"`
	NewLevel     int          `json:"newLevel,omitempty"`
	OverallLevel int          `json:"overallLevel,omitempty"`
	Timestamp    time.Time    `json:"timestamp"`
}
