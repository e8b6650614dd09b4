// Package settlement awards points to predictions once a match result is
// final, using quota scoring: the rarer a correct tendency pick was among
// the field, the more it pays.
package settlement

import (
	"math"

	"github.com/khchop/kickscore/internal/domain"
)

const (
	quotaMin    = 2
	quotaMax    = 6
	diffBonus   = 1
	exactBonus  = 3
	pointsCeil  = 10
	wrongPoints = 0
)

// TendencyQuotas computes the per-tendency payout for one match from the
// distribution of all its predictions. A tendency picked by every model pays
// the minimum; one picked by almost nobody pays the maximum. Tendencies
// nobody picked keep the maximum so the table is total.
func TendencyQuotas(predictions []*domain.Prediction) map[string]int {
	counts := map[string]int{"home": 0, "draw": 0, "away": 0}
	for _, p := range predictions {
		counts[domain.Tendency(p.HomeScore, p.AwayScore)]++
	}

	quotas := make(map[string]int, 3)
	total := len(predictions)
	for tendency, n := range counts {
		if n == 0 || total == 0 {
			quotas[tendency] = quotaMax
			continue
		}
		share := float64(n) / float64(total)
		q := int(math.Round(2 / share))
		if q < quotaMin {
			q = quotaMin
		}
		if q > quotaMax {
			q = quotaMax
		}
		quotas[tendency] = q
	}
	return quotas
}

// Score awards the points for one prediction against the final result. A
// wrong tendency scores zero regardless of goal difference. Bonuses stack on
// the tendency quota: +1 for the exact goal difference, +3 for the exact
// score, capped at the overall ceiling.
func Score(p *domain.Prediction, finalHome, finalAway int, quotas map[string]int) int {
	predicted := domain.Tendency(p.HomeScore, p.AwayScore)
	actual := domain.Tendency(finalHome, finalAway)
	if predicted != actual {
		return wrongPoints
	}

	points := quotas[predicted]
	if p.HomeScore-p.AwayScore == finalHome-finalAway {
		points += diffBonus
	}
	if p.HomeScore == finalHome && p.AwayScore == finalAway {
		points += exactBonus
	}
	if points > pointsCeil {
		points = pointsCeil
	}
	return points
}
