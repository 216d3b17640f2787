// Package losses implements the depth supervision loss family used to train
// radiance field models against sensor or pseudo depth maps.
//
// Regression losses operate per importance-sampling round on the round's ray
// sample weights and positions; the ranking loss compares rendered depth
// ordering against ground truth and needs neither rounds nor sigma.
package losses

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// DepthLossType selects one formulation from the closed loss family.
type DepthLossType string

const (
	// DSNerf is the depth-supervised NeRF line-of-sight loss over ray weights.
	DSNerf DepthLossType = "ds-nerf"
	// URF is the Urban Radiance Fields loss: expected-depth regression plus
	// near-surface and free-space terms over the weight distribution.
	URF DepthLossType = "urf"
	// Simple is a masked L2 regression on expected termination depth.
	Simple DepthLossType = "simple"
	// UncertaintyWeighted scales the expected-depth error by inverse ground
	// truth uncertainty.
	UncertaintyWeighted DepthLossType = "uncertainty-weighted"
	// DenseDepthPriors is a Gaussian negative log-likelihood against the
	// model's own predicted depth uncertainty.
	DenseDepthPriors DepthLossType = "dense-depth-priors"
	// SparseNerfRanking is the SparseNeRF pairwise depth ranking loss.
	SparseNerfRanking DepthLossType = "sparsenerf-ranking"
)

// eps guards logarithms and divisions against zero weights and uncertainties.
const eps = 1e-7

// urfSigmaScale narrows the URF target distribution relative to the supervision
// sigma, matching the published formulation.
const urfSigmaScale = 3.0

// ForcePseudodepthLoss, when set, declares that all depth supervision in the
// process comes from a monocular estimator rather than a sensor. Only loss
// types tolerant of pseudo-depth noise may then be configured.
var ForcePseudodepthLoss = false

// PseudodepthCompatible lists the loss types that remain valid under
// ForcePseudodepthLoss.
var PseudodepthCompatible = []DepthLossType{SparseNerfRanking}

// IsPseudodepthCompatible reports whether t may be used while
// ForcePseudodepthLoss is set.
func IsPseudodepthCompatible(t DepthLossType) bool {
	for _, c := range PseudodepthCompatible {
		if t == c {
			return true
		}
	}
	return false
}

// RaySamples holds the frustum bounds of one importance-sampling round.
// Both matrices are rays x samples; distances are measured along the ray.
type RaySamples struct {
	Starts *mat.Dense
	Ends   *mat.Dense
}

// midpoint returns the centre of sample j on ray i.
func (rs RaySamples) midpoint(i, j int) float64 {
	return 0.5 * (rs.Starts.At(i, j) + rs.Ends.At(i, j))
}

// delta returns the length of sample j on ray i.
func (rs RaySamples) delta(i, j int) float64 {
	return rs.Ends.At(i, j) - rs.Starts.At(i, j)
}

// DepthLossParams carries the inputs of one regression-family evaluation for a
// single importance-sampling round.
type DepthLossParams struct {
	// Weights holds per-sample rendering weights, rays x samples.
	Weights *mat.Dense
	// Samples holds the round's ray sample positions.
	Samples RaySamples
	// TerminationDepth is the ground truth depth per ray. Zero or negative
	// entries mark rays without supervision and are excluded.
	TerminationDepth []float64
	// PredictedDepth is the model's expected termination depth per ray.
	PredictedDepth []float64
	// Sigma is the assumed standard deviation of the supervision depth.
	Sigma float64
	// DirectionsNorm converts z-depth to along-ray distance per ray. Required
	// when IsEuclidean is false.
	DirectionsNorm []float64
	// IsEuclidean indicates TerminationDepth is already an along-ray distance.
	IsEuclidean bool
	// TerminationUncertainty is the ground truth depth uncertainty per ray.
	// Consulted only by the uncertainty-aware loss types.
	TerminationUncertainty []float64
	// PredictedUncertainty is the model's depth uncertainty per ray.
	PredictedUncertainty []float64
	// UncertaintyWeight scales the uncertainty-aware formulations.
	UncertaintyWeight float64
	// Type selects the loss formulation.
	Type DepthLossType
}

// DepthLoss computes one regression-family depth loss for a single
// importance-sampling round. SparseNerfRanking and unknown types return a
// not-implemented error; ranking is computed by DepthRankingLoss instead.
func DepthLoss(p DepthLossParams) (float64, error) {
	if err := p.validate(); err != nil {
		return 0, err
	}

	// Supervision depths arrive as z-depth unless flagged Euclidean; ray
	// sample positions and predicted depth are along-ray distances.
	termination := make([]float64, len(p.TerminationDepth))
	copy(termination, p.TerminationDepth)
	if !p.IsEuclidean {
		for i := range termination {
			termination[i] *= p.DirectionsNorm[i]
		}
	}

	switch p.Type {
	case Simple:
		return simpleDepthLoss(termination, p.PredictedDepth), nil
	case DSNerf:
		return dsNerfDepthLoss(p.Weights, p.Samples, termination, p.Sigma), nil
	case URF:
		return urfDepthLoss(p.Weights, p.Samples, termination, p.PredictedDepth, p.Sigma), nil
	case UncertaintyWeighted:
		return uncertaintyWeightedDepthLoss(termination, p.PredictedDepth, p.TerminationUncertainty, p.UncertaintyWeight), nil
	case DenseDepthPriors:
		return denseDepthPriorsLoss(termination, p.PredictedDepth, p.PredictedUncertainty, p.UncertaintyWeight), nil
	case SparseNerfRanking:
		return 0, fmt.Errorf("depth loss type %q is a ranking loss; use DepthRankingLoss", p.Type)
	default:
		return 0, fmt.Errorf("depth loss type %q not implemented", p.Type)
	}
}

func (p DepthLossParams) validate() error {
	n := len(p.TerminationDepth)
	if n == 0 {
		return fmt.Errorf("termination depth is empty")
	}
	if len(p.PredictedDepth) != n {
		return fmt.Errorf("predicted depth has %d rays, want %d", len(p.PredictedDepth), n)
	}
	if !p.IsEuclidean && len(p.DirectionsNorm) != n {
		return fmt.Errorf("directions norm has %d rays, want %d for z-depth input", len(p.DirectionsNorm), n)
	}
	switch p.Type {
	case DSNerf, URF:
		if p.Weights == nil || p.Samples.Starts == nil || p.Samples.Ends == nil {
			return fmt.Errorf("depth loss type %q requires ray weights and samples", p.Type)
		}
		rows, _ := p.Weights.Dims()
		if rows != n {
			return fmt.Errorf("weights have %d rays, want %d", rows, n)
		}
	case UncertaintyWeighted:
		if len(p.TerminationUncertainty) != n {
			return fmt.Errorf("depth loss type %q requires ground truth uncertainty for every ray", p.Type)
		}
	case DenseDepthPriors:
		if len(p.PredictedUncertainty) != n {
			return fmt.Errorf("depth loss type %q requires predicted uncertainty for every ray", p.Type)
		}
	}
	return nil
}

// simpleDepthLoss is a masked mean squared error on expected termination depth.
func simpleDepthLoss(termination, predicted []float64) float64 {
	var sum float64
	for i, d := range termination {
		if d <= 0 {
			continue
		}
		diff := d - predicted[i]
		sum += diff * diff
	}
	// Masked-out rays contribute zero but still count toward the mean, the
	// same reduction the weight-based losses use.
	return sum / float64(len(termination))
}

// dsNerfDepthLoss penalises rendering weight mass that falls away from the
// supervised termination depth, following the depth-supervised NeRF loss.
func dsNerfDepthLoss(weights *mat.Dense, samples RaySamples, termination []float64, sigma float64) float64 {
	rays, cols := weights.Dims()
	twoSigma := 2 * sigma
	var sum float64
	for i := 0; i < rays; i++ {
		if termination[i] <= 0 {
			continue
		}
		var ray float64
		for j := 0; j < cols; j++ {
			w := weights.At(i, j)
			m := samples.midpoint(i, j) - termination[i]
			ray += -math.Log(w+eps) * math.Exp(-m*m/twoSigma) * samples.delta(i, j)
		}
		sum += ray
	}
	return sum / float64(rays)
}

// urfDepthLoss combines expected-depth regression with the Urban Radiance
// Fields line-of-sight terms: weights near the surface should follow a narrow
// Gaussian around the supervised depth, and weights in free space should
// vanish.
func urfDepthLoss(weights *mat.Dense, samples RaySamples, termination, predicted []float64, sigma float64) float64 {
	rays, cols := weights.Dims()
	target := distuv.Normal{Mu: 0, Sigma: sigma / urfSigmaScale}
	var sum float64
	for i := 0; i < rays; i++ {
		d := termination[i]
		if d <= 0 {
			continue
		}
		diff := d - predicted[i]
		ray := diff * diff

		for j := 0; j < cols; j++ {
			w := weights.At(i, j)
			s := samples.midpoint(i, j)
			switch {
			case s >= d-sigma && s <= d+sigma:
				near := w - target.Prob(s-d)
				ray += near * near
			case s < d-sigma:
				ray += w * w
			}
		}
		sum += ray
	}
	return sum / float64(rays)
}

// uncertaintyWeightedDepthLoss regresses expected depth with each ray's error
// scaled by the inverse variance of its ground truth depth.
func uncertaintyWeightedDepthLoss(termination, predicted, gtUncertainty []float64, weight float64) float64 {
	var sum float64
	for i, d := range termination {
		if d <= 0 {
			continue
		}
		diff := d - predicted[i]
		variance := gtUncertainty[i]*gtUncertainty[i] + eps
		sum += weight * diff * diff / (2 * variance)
	}
	return sum / float64(len(termination))
}

// denseDepthPriorsLoss is the Gaussian negative log-likelihood of the
// supervised depth under the model's predicted depth distribution, which
// trains the predicted uncertainty head alongside depth.
func denseDepthPriorsLoss(termination, predicted, predictedUncertainty []float64, weight float64) float64 {
	var sum float64
	for i, d := range termination {
		if d <= 0 {
			continue
		}
		diff := d - predicted[i]
		variance := predictedUncertainty[i]*predictedUncertainty[i] + eps
		sum += weight * (diff*diff/(2*variance) + 0.5*math.Log(variance))
	}
	return sum / float64(len(termination))
}
