package depthsup

import (
	"fmt"

	"github.com/radiantlabs/depthsup/internal/losses"
	"github.com/radiantlabs/depthsup/internal/monitoring"
	"github.com/radiantlabs/depthsup/internal/schedule"
)

// rankingRamp eases the ranking loss in over the first 2000 steps; its weight
// then holds at 0.2 for the rest of training.
var rankingRamp = schedule.MustPiecewiseLinear([]schedule.Point{
	{Step: 0, Value: 0},
	{Step: 2000, Value: 0.2},
})

// regressionLossTypes is the family handled by per-round averaging of
// losses.DepthLoss.
var regressionLossTypes = map[losses.DepthLossType]bool{
	losses.DSNerf:              true,
	losses.URF:                 true,
	losses.Simple:              true,
	losses.UncertaintyWeighted: true,
	losses.DenseDepthPriors:    true,
}

// Model wraps a base SceneModel with depth supervision.
type Model struct {
	cfg  *Config
	base SceneModel

	sigma *sigmaSchedule

	// step is advanced by the training loop via SetStep and drives the
	// ranking loss ramp.
	step int
	// training toggles the depth metric/loss computation; evaluation passes
	// skip it entirely.
	training bool
}

// New builds a depth-supervised model around base. The config is validated
// and then treated as immutable.
func New(cfg *Config, base SceneModel) (*Model, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("depth supervision config: %w", err)
	}
	if base == nil {
		return nil, fmt.Errorf("depth supervision requires a base scene model")
	}
	return &Model{
		cfg:      cfg,
		base:     base,
		sigma:    newSigmaSchedule(cfg),
		training: true,
	}, nil
}

// Config returns the model's configuration.
func (m *Model) Config() *Config { return m.cfg }

// SetStep records the current training step for step-dependent loss weights.
func (m *Model) SetStep(step int) { m.step = step }

// SetTraining switches between training and evaluation behaviour.
func (m *Model) SetTraining(training bool) { m.training = training }

// Outputs runs the base forward pass and copies the ray bundle's
// directions-norm metadata through for the loss stage.
func (m *Model) Outputs(rays *RayBundle) (*Outputs, error) {
	outputs, err := m.base.Outputs(rays)
	if err != nil {
		return nil, err
	}
	if rays != nil && rays.DirectionsNorm != nil {
		outputs.DirectionsNorm = rays.DirectionsNorm
	}
	return outputs, nil
}

// Metrics extends the base metrics with the selected depth loss. In training
// mode exactly one of depth_loss or depth_ranking is added; unknown or
// pseudo-depth-incompatible loss types are fatal configuration errors.
func (m *Model) Metrics(outputs *Outputs, batch *Batch) (Metrics, error) {
	base, err := m.base.Metrics(outputs, batch)
	if err != nil {
		return nil, err
	}
	metrics := make(Metrics, len(base)+1)
	for k, v := range base {
		metrics[k] = v
	}
	if !m.training {
		return metrics, nil
	}

	lossType := m.cfg.GetDepthLossType()
	if losses.ForcePseudodepthLoss && !losses.IsPseudodepthCompatible(lossType) {
		return nil, &IncompatibleLossTypeError{Type: lossType, Allowed: losses.PseudodepthCompatible}
	}

	switch {
	case regressionLossTypes[lossType]:
		value, err := m.regressionDepthLoss(lossType, outputs, batch)
		if err != nil {
			return nil, err
		}
		metrics["depth_loss"] = value
	case lossType == losses.SparseNerfRanking:
		value, err := losses.DepthRankingLoss(outputs.ExpectedDepth, batch.DepthImage)
		if err != nil {
			return nil, err
		}
		metrics["depth_ranking"] = value
	default:
		return nil, fmt.Errorf("depth loss type %q not implemented", lossType)
	}
	return metrics, nil
}

// regressionDepthLoss averages the configured loss across every
// importance-sampling round.
func (m *Model) regressionDepthLoss(lossType losses.DepthLossType, outputs *Outputs, batch *Batch) (float64, error) {
	rounds := len(outputs.WeightsList)
	if rounds == 0 {
		return 0, fmt.Errorf("depth loss type %q requires at least one importance-sampling round", lossType)
	}
	if rounds != len(outputs.RaySamplesList) {
		return 0, fmt.Errorf("got %d weight rounds but %d sample rounds", rounds, len(outputs.RaySamplesList))
	}

	sigma := m.sigma.Current()
	monitoring.Debugf("depth loss step=%d sigma=%g rounds=%d", m.step, sigma, rounds)

	var uncertaintyGT []float64
	if lossType == losses.UncertaintyWeighted || lossType == losses.DenseDepthPriors {
		uncertaintyGT = batch.DepthUncertainty
	}

	var total float64
	for i := 0; i < rounds; i++ {
		value, err := losses.DepthLoss(losses.DepthLossParams{
			Weights:                outputs.WeightsList[i],
			Samples:                outputs.RaySamplesList[i],
			TerminationDepth:       batch.DepthImage,
			PredictedDepth:         outputs.ExpectedDepth,
			Sigma:                  sigma,
			DirectionsNorm:         outputs.DirectionsNorm,
			IsEuclidean:            m.cfg.GetIsEuclideanDepth(),
			TerminationUncertainty: uncertaintyGT,
			PredictedUncertainty:   outputs.DepthUncertainty,
			UncertaintyWeight:      m.cfg.GetUncertaintyWeight(),
			Type:                   lossType,
		})
		if err != nil {
			return 0, fmt.Errorf("round %d: %w", i, err)
		}
		total += value
	}
	return total / float64(rounds), nil
}

// Losses extends the base loss map with the scaled depth term. The ranking
// term additionally follows the step ramp; the regression term is a plain
// multiple of the metric.
func (m *Model) Losses(outputs *Outputs, batch *Batch, metrics Metrics) (LossDict, error) {
	base, err := m.base.Losses(outputs, batch, metrics)
	if err != nil {
		return nil, err
	}
	lossDict := make(LossDict, len(base)+1)
	for k, v := range base {
		lossDict[k] = v
	}
	if !m.training {
		return lossDict, nil
	}

	ranking, hasRanking := metrics["depth_ranking"]
	depth, hasDepth := metrics["depth_loss"]
	if !hasRanking && !hasDepth {
		return nil, ErrMissingDepthMetric
	}
	mult := m.cfg.GetDepthLossMult()
	if hasRanking {
		lossDict["depth_ranking"] = mult * rankingRamp.At(float64(m.step)) * ranking
	}
	if hasDepth {
		lossDict["depth_loss"] = mult * depth
	}
	return lossDict, nil
}
