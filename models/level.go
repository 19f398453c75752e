package models

import "time"

// TrackLevel is the per (user, track) progression record.
type TrackLevel struct {
	ID            string     `bson:"_id,omitempty" json:"id,omitempty"`
	UserID        string     `bson:"userId" json:"userId"`
	Track         Track      `bson:"track" json:"track"`
	CurrentLevel  int        `bson:"currentLevel" json:"currentLevel"`
	CurrentXP     int        `bson:"currentXP" json:"currentXP"`
	TotalXP       int        `bson:"totalXP" json:"totalXP"`
	XPToNextLevel int        `bson:"xpToNextLevel" json:"xpToNextLevel"`
	LastLevelUp   *time.Time `bson:"lastLevelUp,omitempty" json:"lastLevelUp,omitempty"`
	CreatedAt     time.Time  `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time  `bson:"updatedAt" json:"updatedAt"`
}

// TrackLevelID is the document id of a user's track record.
func TrackLevelID(userID string, track Track) string {
	return userID + "_" + string(track)
}

// OverallLevel aggregates the three track levels of a user.
type OverallLevel struct {
	ID           string        `bson:"_id,omitempty" json:"id,omitempty"`
	UserID       string        `bson:"userId" json:"userId"`
	OverallLevel int           `bson:"overallLevel" json:"overallLevel"`
	TotalXP      int           `bson:"totalXP" json:"totalXP"`
	TrackLevels  map[Track]int `bson:"trackLevels" json:"trackLevels"`
	CreatedAt    time.Time     `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time     `bson:"updatedAt" json:"updatedAt"`
}

// MeanLevel returns floor(mean) of the snapshot over all tracks. Tracks missing
// from the snapshot count as level 1.
func (o *OverallLevel) MeanLevel() int {
	sum := 0
	for _, t := range allTracks {
		lvl, ok := o.TrackLevels[t]
		if !ok || lvl < 1 {
			lvl = 1
		}
		sum += lvl
	}
	return sum / len(allTracks)
}
