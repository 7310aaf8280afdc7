package proposalrepo

import "math"

// DefaultKFactor is the K-factor used when the caller does not configure one
// (config.Config.KFactor), spec.md §4.4.
const DefaultKFactor = 32.0

// Expected returns the expected score for a player rated ra against an
// opponent rated rb, per the standard Elo formula (spec.md §4.4):
// Eₐ = 1 / (1 + 10^((R_b - Rₐ)/400)).
func Expected(ra, rb float64) float64 {
	return 1.0 / (1.0 + math.Pow(10, (rb-ra)/400))
}

// Update computes the new (winnerElo, loserElo) after a decisive comparison,
// conserving total rating change (spec.md §8: "sum of Elo changes in a
// non-inconclusive comparison is zero").
func Update(winnerElo, loserElo, kFactor float64) (newWinnerElo, newLoserElo float64) {
	expectedWinner := Expected(winnerElo, loserElo)
	delta := kFactor * (1 - expectedWinner)
	return winnerElo + delta, loserElo - delta
}
