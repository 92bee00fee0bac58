package game

import (
	"sort"

	"quiz-live/internal/models"
)

const (
	// CorrectPoints is the base award for a correct answer.
	CorrectPoints = 100
	// SpeedBonus is added when the answer arrives within the first 30%
	// of the allotted window. Binary threshold, no interpolation.
	SpeedBonus = 50

	speedBonusRatio = 0.7
)

// Score maps one submission to points. Pure function.
func Score(correct bool, timeRemaining, timePerQuestion float64) int {
	if !correct {
		return 0
	}

	points := CorrectPoints
	if timePerQuestion > 0 && timeRemaining/timePerQuestion > speedBonusRatio {
		points += SpeedBonus
	}
	return points
}

// Rank projects players into leaderboard entries: stable sort by score
// descending, rank = 1 + position. Equal scores keep their incoming relative
// order and are NOT collapsed onto a shared rank.
func Rank(players []models.Player) []models.LeaderboardEntry {
	sorted := make([]models.Player, len(players))
	copy(sorted, players)

	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	entries := make([]models.LeaderboardEntry, len(sorted))
	for i, p := range sorted {
		entries[i] = models.LeaderboardEntry{
			PlayerID: p.ID,
			Name:     p.Name,
			Score:    p.Score,
			Rank:     i + 1,
		}
	}
	return entries
}
