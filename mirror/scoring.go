package mirror

import (
	"math"
	"math/big"
)

// minScoringHistory is the number of earlier department claims needed before a claim
// can be scored at all.
const minScoringHistory = 3

// AnomalyScore rates amount against the department's earlier claim amounts on a 0-100
// scale: fifty points per standard deviation above the mean, clamped. Claims at or below
// the mean score 0, as do claims of departments with too little or uniform history.
func AnomalyScore(amount *big.Int, history []*big.Int) float64 {
	if amount == nil || len(history) < minScoringHistory {
		return 0
	}
	values := make([]float64, 0, len(history))
	var sum float64
	for _, h := range history {
		if h == nil {
			continue
		}
		v := weiFloat(h)
		values = append(values, v)
		sum += v
	}
	if len(values) < minScoringHistory {
		return 0
	}
	mean := sum / float64(len(values))

	var sq float64
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}
	stddev := math.Sqrt(sq / float64(len(values)))
	if stddev == 0 || math.IsNaN(stddev) {
		return 0
	}

	z := (weiFloat(amount) - mean) / stddev
	return math.Max(0, math.Min(100, 50*z))
}

func weiFloat(v *big.Int) float64 {
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
