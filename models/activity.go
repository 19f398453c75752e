package models

import "time"

// ActivityMetadata carries the optional context of an activity. Fields a
// multiplier rule needs but that are absent simply mean "no multiplier".
type ActivityMetadata struct {
	Difficulty     Difficulty `bson:"difficulty,omitempty" json:"difficulty,omitempty" validate:"omitempty,oneof=easy medium hard"`
	TimeSpent      int        `bson:"timeSpent,omitempty" json:"timeSpent,omitempty" validate:"min=0"` // seconds
	Accuracy       *float64   `bson:"accuracy,omitempty" json:"accuracy,omitempty" validate:"omitempty,min=0,max=100"`
	StreakCount    int        `bson:"streakCount,omitempty" json:"streakCount,omitempty" validate:"min=0"`
	ReviewQuality  int        `bson:"reviewQuality,omitempty" json:"reviewQuality,omitempty" validate:"omitempty,min=1,max=5"`
	CorrectAnswers int        `bson:"correctAnswers,omitempty" json:"correctAnswers,omitempty" validate:"min=0"`
	TotalQuestions int        `bson:"totalQuestions,omitempty" json:"totalQuestions,omitempty" validate:"min=0,gtefield=CorrectAnswers"`
	CaseID         string     `bson:"caseId,omitempty" json:"caseId,omitempty" validate:"max=128"`
	QuestionID     string     `bson:"questionId,omitempty" json:"questionId,omitempty" validate:"max=128"`
	CardID         string     `bson:"cardId,omitempty" json:"cardId,omitempty" validate:"max=128"`
	DeckID         string     `bson:"deckId,omitempty" json:"deckId,omitempty" validate:"max=128"`
}

// ActivityRecord is an immutable entry of the activity log.
type ActivityRecord struct {
	ID           string           `bson:"_id,omitempty" json:"id,omitempty"`
	UserID       string           `bson:"userId" json:"userId"`
	Track        Track            `bson:"track" json:"track"`
	ActivityType ActivityType     `bson:"activityType" json:"activityType"`
	XPGained     int              `bson:"xpGained" json:"xpGained"`
	Description  string           `bson:"description" json:"description"`
	Metadata     ActivityMetadata `bson:"metadata" json:"metadata"`
	CreatedAt    time.Time        `bson:"createdAt" json:"createdAt"`
}

// ActivityResult is what RecordActivity reports back to the caller.
type ActivityResult struct {
	XPGained       int           `json:"xpGained"`
	LeveledUp      bool          `json:"leveledUp"`
	NewLevel       *int          `json:"newLevel,omitempty"`
	OverallLevelUp bool          `json:"overallLevelUp"`
	TrackLevel     *TrackLevel   `json:"trackLevel,omitempty"`
	OverallLevel   *OverallLevel `json:"overallLevel,omitempty"`
}
