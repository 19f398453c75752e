package leveling

import (
	"errors"
	"fmt"

	"medquest/models"
)

// ErrUnknownActivity is returned for an activity type outside the track's enum.
var ErrUnknownActivity = errors.New("unknown activity for track")

type rewardRule struct {
	base        float64
	difficulty  map[models.Difficulty]float64
	streak      map[int]float64
	quality     map[int]float64
	description string
}

var (
	standardDifficulty = map[models.Difficulty]float64{
		models.DifficultyEasy:   1,
		models.DifficultyMedium: 1.5,
		models.DifficultyHard:   2,
	}
	bonusDifficulty = map[models.Difficulty]float64{
		models.DifficultyEasy:   1,
		models.DifficultyMedium: 1.5,
		models.DifficultyHard:   2.5,
	}
)

var rewardTable = map[models.Track]map[models.ActivityType]rewardRule{
	models.TrackClinicalCases: {
		models.ActivityCaseStarted:         {base: 5, description: "Started a clinical case"},
		models.ActivityCaseCompleted:       {base: 25, difficulty: standardDifficulty, description: "Completed a clinical case"},
		models.ActivityCasePerfectScore:    {base: 50, description: "Perfect score on a clinical case"},
		models.ActivityCaseTimeBonus:       {base: 10, description: "Clinical case time bonus"},
		models.ActivityCaseDifficultyBonus: {base: 15, difficulty: bonusDifficulty, description: "Clinical case difficulty bonus"},
	},
	models.TrackQuestions: {
		models.ActivityQuestionCorrect:   {base: 10, difficulty: standardDifficulty, description: "Answered a question correctly"},
		models.ActivityQuestionIncorrect: {base: 2, description: "Attempted a question"},
		models.ActivityQuestionStreak: {
			base:        5,
			streak:      map[int]float64{5: 1.2, 10: 1.5, 20: 2, 50: 3},
			description: "Correct answer streak",
		},
		models.ActivityQuizCompleted: {base: 30, description: "Completed a quiz"},
		models.ActivityPerfectQuiz:   {base: 75, description: "Perfect quiz"},
		models.ActivitySpeedBonus:    {base: 15, description: "Speed bonus"},
	},
	models.TrackFlashcards: {
		models.ActivityCardReviewed: {base: 3, description: "Reviewed a flashcard"},
		models.ActivityCardMastered: {
			base:        15,
			quality:     map[int]float64{1: 0.8, 2: 0.9, 3: 1, 4: 1.2, 5: 1.5},
			description: "Mastered a flashcard",
		},
		models.ActivityDeckCompleted: {base: 40, description: "Completed a deck"},
		models.ActivityReviewStreak: {
			base:        8,
			streak:      map[int]float64{7: 1.2, 14: 1.5, 30: 2},
			description: "Review streak",
		},
		models.ActivitySpacedRepetitionBonus: {base: 20, description: "Spaced repetition bonus"},
	},
}

func lookupRule(track models.Track, activity models.ActivityType) (rewardRule, error) {
	rule, ok := rewardTable[track][activity]
	if !ok {
		return rewardRule{}, fmt.Errorf("%w: %s/%s", ErrUnknownActivity, track, activity)
	}
	return rule, nil
}

// BaseXP returns the unmultiplied reward of an activity.
func BaseXP(track models.Track, activity models.ActivityType) (int, error) {
	rule, err := lookupRule(track, activity)
	if err != nil {
		return 0, err
	}
	return int(rule.base), nil
}

// CalculateAward computes the XP granted for one activity.
//
// The clinical_cases accuracy multiplier applies to every activity of that
// track carrying an accuracy, so it stacks with the difficulty multiplier of
// case_completed. Pending product sign-off.
func (c *Calculator) CalculateAward(track models.Track, activity models.ActivityType, meta models.ActivityMetadata) (int, error) {
	rule, err := lookupRule(track, activity)
	if err != nil {
		return 0, err
	}

	var factors []float64
	if rule.difficulty != nil && meta.Difficulty != "" {
		if m, ok := rule.difficulty[meta.Difficulty]; ok {
			factors = append(factors, m)
		}
	}
	if rule.streak != nil && meta.StreakCount > 0 {
		if m, ok := rule.streak[meta.StreakCount]; ok {
			factors = append(factors, m)
		}
	}
	if rule.quality != nil && meta.ReviewQuality > 0 {
		if m, ok := rule.quality[meta.ReviewQuality]; ok {
			factors = append(factors, m)
		}
	}
	if track == models.TrackClinicalCases && meta.Accuracy != nil {
		switch acc := *meta.Accuracy; {
		case acc >= 90:
			factors = append(factors, 1.5)
		case acc >= 80:
			factors = append(factors, 1.2)
		}
	}

	return floorProduct(rule.base, factors...), nil
}

// Describe returns the human-readable description stored on the activity log.
func Describe(track models.Track, activity models.ActivityType, meta models.ActivityMetadata) string {
	rule, err := lookupRule(track, activity)
	if err != nil {
		return string(activity)
	}
	desc := rule.description
	if meta.Difficulty != "" && rule.difficulty != nil {
		desc = fmt.Sprintf("%s (%s)", desc, meta.Difficulty)
	}
	if rule.streak != nil && meta.StreakCount > 0 {
		desc = fmt.Sprintf("%s: %d in a row", desc, meta.StreakCount)
	}
	return desc
}
