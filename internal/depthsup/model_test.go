package depthsup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/radiantlabs/depthsup/internal/losses"
)

// stubModel is a controllable base scene model.
type stubModel struct {
	outputs *Outputs
	metrics Metrics
	losses  LossDict
}

func (s *stubModel) Outputs(rays *RayBundle) (*Outputs, error) {
	if s.outputs != nil {
		return s.outputs, nil
	}
	return &Outputs{}, nil
}

func (s *stubModel) Metrics(outputs *Outputs, batch *Batch) (Metrics, error) {
	m := Metrics{}
	for k, v := range s.metrics {
		m[k] = v
	}
	return m, nil
}

func (s *stubModel) Losses(outputs *Outputs, batch *Batch, metrics Metrics) (LossDict, error) {
	l := LossDict{}
	for k, v := range s.losses {
		l[k] = v
	}
	return l, nil
}

// uniformRound builds uniform weights over evenly spaced bins on [lo, hi].
func uniformRound(rays, samples int, lo, hi float64) (*mat.Dense, losses.RaySamples) {
	weights := mat.NewDense(rays, samples, nil)
	starts := mat.NewDense(rays, samples, nil)
	ends := mat.NewDense(rays, samples, nil)
	width := (hi - lo) / float64(samples)
	for i := 0; i < rays; i++ {
		for j := 0; j < samples; j++ {
			weights.Set(i, j, 1/float64(samples))
			starts.Set(i, j, lo+float64(j)*width)
			ends.Set(i, j, lo+float64(j+1)*width)
		}
	}
	return weights, losses.RaySamples{Starts: starts, Ends: ends}
}

// fixtureOutputs returns outputs with the given number of identical
// importance-sampling rounds.
func fixtureOutputs(rounds int, expected []float64) *Outputs {
	n := len(expected)
	out := &Outputs{
		ExpectedDepth:    expected,
		DepthUncertainty: make([]float64, n),
		Accumulation:     make([]float64, n),
		DirectionsNorm:   make([]float64, n),
	}
	for i := range out.DirectionsNorm {
		out.DirectionsNorm[i] = 1
		out.DepthUncertainty[i] = 0.05
		out.Accumulation[i] = 1
	}
	for r := 0; r < rounds; r++ {
		w, rs := uniformRound(n, 16, 0.5, 5.0)
		out.WeightsList = append(out.WeightsList, w)
		out.RaySamplesList = append(out.RaySamplesList, rs)
	}
	return out
}

func newTestModel(t *testing.T, cfg *Config) *Model {
	t.Helper()
	m, err := New(cfg, &stubModel{metrics: Metrics{"rgb_mse": 0.1}, losses: LossDict{"rgb_loss": 0.1}})
	require.NoError(t, err)
	return m
}

func TestMetricsAveragesAcrossRounds(t *testing.T) {
	t.Parallel()

	cfg := &Config{DepthLossType: strPtr(string(losses.Simple))}
	batch := &Batch{DepthImage: []float64{2.0, 3.0}}
	expected := []float64{2.5, 3.5}

	// Each round is identical, so the arithmetic mean over any number of
	// rounds must equal the single-round value. A sum would scale with the
	// round count.
	var reference float64
	for _, rounds := range []int{1, 2, 5} {
		m := newTestModel(t, cfg)
		metrics, err := m.Metrics(fixtureOutputs(rounds, expected), batch)
		require.NoError(t, err)
		require.Contains(t, metrics, "depth_loss")
		require.NotContains(t, metrics, "depth_ranking")
		if rounds == 1 {
			reference = metrics["depth_loss"]
			require.Greater(t, reference, 0.0)
			continue
		}
		assert.InDelta(t, reference, metrics["depth_loss"], 1e-12, "rounds=%d", rounds)
	}
}

func TestRankingMetricIgnoresSigma(t *testing.T) {
	t.Parallel()

	batch := &Batch{DepthImage: []float64{1.0, 2.0, 4.0, 3.0}}
	outputs := fixtureOutputs(1, []float64{1.0, 2.0, 2.0, 3.0})

	var values []float64
	for _, sigma := range []float64{0.001, 0.5, 10} {
		cfg := &Config{
			DepthLossType: strPtr(string(losses.SparseNerfRanking)),
			DepthSigma:    floatPtr(sigma),
		}
		m := newTestModel(t, cfg)
		metrics, err := m.Metrics(outputs, batch)
		require.NoError(t, err)
		require.Contains(t, metrics, "depth_ranking")
		require.NotContains(t, metrics, "depth_loss")
		values = append(values, metrics["depth_ranking"])
	}
	assert.Equal(t, values[0], values[1])
	assert.Equal(t, values[0], values[2])
	assert.Greater(t, values[0], 0.0)
}

func TestRankingLossRamp(t *testing.T) {
	t.Parallel()

	const mult = 0.5
	const ranking = 2.0
	cfg := &Config{
		DepthLossType: strPtr(string(losses.SparseNerfRanking)),
		DepthLossMult: floatPtr(mult),
	}

	cases := []struct {
		step int
		want float64
	}{
		{step: 0, want: 0},
		{step: 1000, want: mult * 0.1 * ranking},
		{step: 2000, want: mult * 0.2 * ranking},
		{step: 5000, want: mult * 0.2 * ranking}, // clamped, not extrapolated
	}
	for _, tc := range cases {
		m := newTestModel(t, cfg)
		m.SetStep(tc.step)
		lossDict, err := m.Losses(&Outputs{}, &Batch{}, Metrics{"depth_ranking": ranking})
		require.NoError(t, err)
		assert.InDelta(t, tc.want, lossDict["depth_ranking"], 1e-12, "step=%d", tc.step)
	}
}

func TestDepthLossBlending(t *testing.T) {
	t.Parallel()

	cfg := &Config{DepthLossMult: floatPtr(0.02)}
	m := newTestModel(t, cfg)
	lossDict, err := m.Losses(&Outputs{}, &Batch{}, Metrics{"depth_loss": 3.0})
	require.NoError(t, err)
	assert.InDelta(t, 0.06, lossDict["depth_loss"], 1e-12)
	// Base terms pass through untouched.
	assert.InDelta(t, 0.1, lossDict["rgb_loss"], 1e-12)
}

func TestPseudodepthGuard(t *testing.T) {
	// Mutates package-global state; must not run in parallel.
	losses.ForcePseudodepthLoss = true
	defer func() { losses.ForcePseudodepthLoss = false }()

	batch := &Batch{DepthImage: []float64{2.0}, DepthUncertainty: []float64{0.1}}
	outputs := fixtureOutputs(1, []float64{2.0})

	incompatible := []losses.DepthLossType{
		losses.DSNerf, losses.URF, losses.Simple,
		losses.UncertaintyWeighted, losses.DenseDepthPriors,
	}
	for _, lt := range incompatible {
		m := newTestModel(t, &Config{DepthLossType: strPtr(string(lt))})
		_, err := m.Metrics(outputs, batch)
		require.Error(t, err, "type %s", lt)
		var incompatErr *IncompatibleLossTypeError
		require.ErrorAs(t, err, &incompatErr, "type %s", lt)
		assert.Equal(t, lt, incompatErr.Type)
		assert.Equal(t, losses.PseudodepthCompatible, incompatErr.Allowed)
	}

	// Compatible type still works under the forced mode.
	m := newTestModel(t, &Config{DepthLossType: strPtr(string(losses.SparseNerfRanking))})
	metrics, err := m.Metrics(outputs, &Batch{DepthImage: []float64{2.0}})
	require.NoError(t, err)
	assert.Contains(t, metrics, "depth_ranking")
}

func TestUnknownLossTypeIsFatal(t *testing.T) {
	t.Parallel()

	m := newTestModel(t, &Config{DepthLossType: strPtr("zoe-depth")})
	_, err := m.Metrics(fixtureOutputs(1, []float64{2.0}), &Batch{DepthImage: []float64{2.0}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not implemented")
	assert.Contains(t, err.Error(), "zoe-depth")
}

func TestEvaluationModeSkipsDepthMetrics(t *testing.T) {
	t.Parallel()

	m := newTestModel(t, &Config{})
	m.SetTraining(false)

	metrics, err := m.Metrics(fixtureOutputs(1, []float64{2.0}), &Batch{DepthImage: []float64{2.0}})
	require.NoError(t, err)
	assert.NotContains(t, metrics, "depth_loss")
	assert.NotContains(t, metrics, "depth_ranking")

	lossDict, err := m.Losses(&Outputs{}, &Batch{}, metrics)
	require.NoError(t, err)
	assert.NotContains(t, lossDict, "depth_loss")
	assert.NotContains(t, lossDict, "depth_ranking")
}

func TestMissingDepthMetricIsInvariantViolation(t *testing.T) {
	t.Parallel()

	m := newTestModel(t, &Config{})
	_, err := m.Losses(&Outputs{}, &Batch{}, Metrics{"rgb_mse": 0.1})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingDepthMetric)
}

func TestUncertaintyTypesConsumeBatchUncertainty(t *testing.T) {
	t.Parallel()

	cfg := &Config{DepthLossType: strPtr(string(losses.UncertaintyWeighted))}
	outputs := fixtureOutputs(1, []float64{2.5})

	t.Run("with uncertainty", func(t *testing.T) {
		t.Parallel()
		m := newTestModel(t, cfg)
		metrics, err := m.Metrics(outputs, &Batch{
			DepthImage:       []float64{2.0},
			DepthUncertainty: []float64{0.1},
		})
		require.NoError(t, err)
		assert.Greater(t, metrics["depth_loss"], 0.0)
	})

	t.Run("without uncertainty", func(t *testing.T) {
		t.Parallel()
		m := newTestModel(t, cfg)
		_, err := m.Metrics(outputs, &Batch{DepthImage: []float64{2.0}})
		require.Error(t, err)
	})
}

func TestOutputsDirectionsNormPassthrough(t *testing.T) {
	t.Parallel()

	norms := []float64{1.0, 1.1, 1.2}
	m := newTestModel(t, &Config{})
	outputs, err := m.Outputs(&RayBundle{DirectionsNorm: norms})
	require.NoError(t, err)
	assert.Equal(t, norms, outputs.DirectionsNorm)

	// Bundles without the metadata leave the field alone.
	outputs, err = m.Outputs(&RayBundle{})
	require.NoError(t, err)
	assert.Nil(t, outputs.DirectionsNorm)
}

func TestZeroErrorScenarioCollapsesToZeroLoss(t *testing.T) {
	t.Parallel()

	// Loss type simple, multiplier 0.02, sigma 0.01, decay disabled, one
	// round of uniform weights, predictions equal to ground truth.
	cfg := &Config{
		DepthLossType: strPtr(string(losses.Simple)),
		DepthLossMult: floatPtr(0.02),
		DepthSigma:    floatPtr(0.01),
	}
	depth := []float64{1.5, 2.5, 3.5, 4.5}
	m := newTestModel(t, cfg)

	outputs := fixtureOutputs(1, depth)
	batch := &Batch{DepthImage: depth}

	metrics, err := m.Metrics(outputs, batch)
	require.NoError(t, err)
	require.InDelta(t, 0, metrics["depth_loss"], 1e-12)

	lossDict, err := m.Losses(outputs, batch, metrics)
	require.NoError(t, err)
	assert.InDelta(t, 0, lossDict["depth_loss"], 1e-12)
}

func TestNewValidatesInputs(t *testing.T) {
	t.Parallel()

	_, err := New(&Config{}, nil)
	require.Error(t, err)

	_, err = New(&Config{DepthSigma: floatPtr(-1)}, &stubModel{})
	require.Error(t, err)
}
