package stats

import "medquest/models"

// FilterTrack keeps the records of one track, preserving order.
func FilterTrack(records []models.ActivityRecord, track models.Track) []models.ActivityRecord {
	out := make([]models.ActivityRecord, 0, len(records))
	for _, r := range records {
		if r.Track == track {
			out = append(out, r)
		}
	}
	return out
}

// AveragePerformance is track specific: mean accuracy for clinical cases,
// correct/attempted*100 for questions and mean reviewQuality*20 for flashcards.
// It is 0 when the track has no samples.
func AveragePerformance(track models.Track, records []models.ActivityRecord) float64 {
	switch track {
	case models.TrackClinicalCases:
		sum, n := 0.0, 0
		for _, r := range records {
			if r.Track == track && r.Metadata.Accuracy != nil {
				sum += *r.Metadata.Accuracy
				n++
			}
		}
		if n == 0 {
			return 0
		}
		return sum / float64(n)

	case models.TrackQuestions:
		correct, attempted := 0, 0
		for _, r := range records {
			if r.Track != track {
				continue
			}
			switch r.ActivityType {
			case models.ActivityQuestionCorrect:
				correct++
				attempted++
			case models.ActivityQuestionIncorrect:
				attempted++
			}
		}
		if attempted == 0 {
			return 0
		}
		return float64(correct) / float64(attempted) * 100

	case models.TrackFlashcards:
		sum, n := 0, 0
		for _, r := range records {
			if r.Track == track && r.Metadata.ReviewQuality > 0 {
				sum += r.Metadata.ReviewQuality * 20
				n++
			}
		}
		if n == 0 {
			return 0
		}
		return float64(sum) / float64(n)
	}
	return 0
}

// TimeSpent sums metadata.timeSpent in seconds.
func TimeSpent(records []models.ActivityRecord) int {
	total := 0
	for _, r := range records {
		total += r.Metadata.TimeSpent
	}
	return total
}

// FavoriteMethodology returns the track with the most XP. Ties go to the
// earlier track; no XP at all yields "".
func FavoriteMethodology(levels map[models.Track]models.TrackLevel) models.Track {
	var fav models.Track
	best := 0
	for _, t := range models.AllTracks() {
		if lvl, ok := levels[t]; ok && lvl.TotalXP > best {
			best = lvl.TotalXP
			fav = t
		}
	}
	return fav
}
