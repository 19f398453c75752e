package models

import "fmt"

// Track is one of the fixed study methodologies.
type Track string

const (
	TrackClinicalCases Track = "clinical_cases"
	TrackQuestions     Track = "questions"
	TrackFlashcards    Track = "flashcards"
)

var allTracks = []Track{TrackClinicalCases, TrackQuestions, TrackFlashcards}

// AllTracks returns the tracks in their canonical order.
func AllTracks() []Track {
	out := make([]Track, len(allTracks))
	copy(out, allTracks)
	return out
}

func (t Track) Valid() bool {
	switch t {
	case TrackClinicalCases, TrackQuestions, TrackFlashcards:
		return true
	}
	return false
}

// ParseTrack converts a raw string into a Track.
func ParseTrack(s string) (Track, error) {
	t := Track(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown track %q", s)
	}
	return t, nil
}

// ActivityType identifies what the user did. Each type belongs to exactly one track.
type ActivityType string

const (
	// clinical_cases
	ActivityCaseStarted         ActivityType = "case_started"
	ActivityCaseCompleted       ActivityType = "case_completed"
	ActivityCasePerfectScore    ActivityType = "case_perfect_score"
	ActivityCaseTimeBonus       ActivityType = "case_time_bonus"
	ActivityCaseDifficultyBonus ActivityType = "case_difficulty_bonus"

	// questions
	ActivityQuestionCorrect   ActivityType = "question_correct"
	ActivityQuestionIncorrect ActivityType = "question_incorrect"
	ActivityQuestionStreak    ActivityType = "question_streak"
	ActivityQuizCompleted     ActivityType = "quiz_completed"
	ActivityPerfectQuiz       ActivityType = "perfect_quiz"
	ActivitySpeedBonus        ActivityType = "speed_bonus"

	// flashcards
	ActivityCardReviewed          ActivityType = "card_reviewed"
	ActivityCardMastered          ActivityType = "card_mastered"
	ActivityDeckCompleted         ActivityType = "deck_completed"
	ActivityReviewStreak          ActivityType = "review_streak"
	ActivitySpacedRepetitionBonus ActivityType = "spaced_repetition_bonus"
)

var activitiesByTrack = map[Track][]ActivityType{
	TrackClinicalCases: {
		ActivityCaseStarted,
		ActivityCaseCompleted,
		ActivityCasePerfectScore,
		ActivityCaseTimeBonus,
		ActivityCaseDifficultyBonus,
	},
	TrackQuestions: {
		ActivityQuestionCorrect,
		ActivityQuestionIncorrect,
		ActivityQuestionStreak,
		ActivityQuizCompleted,
		ActivityPerfectQuiz,
		ActivitySpeedBonus,
	},
	TrackFlashcards: {
		ActivityCardReviewed,
		ActivityCardMastered,
		ActivityDeckCompleted,
		ActivityReviewStreak,
		ActivitySpacedRepetitionBonus,
	},
}

// ActivityTypesFor lists the activity types accepted on a track.
func ActivityTypesFor(track Track) []ActivityType {
	types := activitiesByTrack[track]
	out := make([]ActivityType, len(types))
	copy(out, types)
	return out
}

// BelongsTo reports whether the activity type is part of the track's enum.
func (a ActivityType) BelongsTo(track Track) bool {
	for _, t := range activitiesByTrack[track] {
		if t == a {
			return true
		}
	}
	return false
}

// Difficulty of a case or question.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)
