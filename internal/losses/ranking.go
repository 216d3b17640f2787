package losses

import (
	"fmt"
	"math"
)

// rankingMargin is the hinge margin applied to mis-ordered depth pairs.
const rankingMargin = 1e-4

// DepthRankingLoss compares the depth ordering of consecutive ray pairs
// against ground truth, as in SparseNeRF. Rays are consumed two at a time; a
// trailing unpaired ray is dropped. Pairs whose rendered ordering already
// agrees with ground truth contribute nothing; disagreeing pairs contribute
// the magnitude of the rendered difference plus the margin. The result is the
// mean over disagreeing pairs, or zero when every pair agrees.
//
// The loss depends only on rendered and ground truth depth; supervision sigma
// plays no part.
func DepthRankingLoss(rendered, groundTruth []float64) (float64, error) {
	if len(rendered) != len(groundTruth) {
		return 0, fmt.Errorf("rendered depth has %d rays, ground truth has %d", len(rendered), len(groundTruth))
	}
	n := len(rendered)
	if n%2 != 0 {
		n--
	}

	var sum float64
	var count int
	for i := 0; i+1 < n; i += 2 {
		gtDiff := groundTruth[i] - groundTruth[i+1]
		outDiff := rendered[i] - rendered[i+1]
		if sign(gtDiff) == sign(outDiff) {
			continue
		}
		sum += math.Abs(outDiff) + rankingMargin
		count++
	}
	if count == 0 {
		return 0, nil
	}
	return sum / float64(count), nil
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
