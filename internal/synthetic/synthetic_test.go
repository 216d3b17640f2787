package synthetic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiantlabs/depthsup/internal/depthsup"
)

func TestSceneShapes(t *testing.T) {
	t.Parallel()

	scene := NewScene(7)
	rays := scene.RayBundle()
	rows, cols := rays.Directions.Dims()
	assert.Equal(t, scene.RayCount, rows)
	assert.Equal(t, 3, cols)
	assert.Len(t, rays.DirectionsNorm, scene.RayCount)

	batch := scene.Batch(rays)
	assert.Len(t, batch.DepthImage, scene.RayCount)
	assert.Len(t, batch.DepthUncertainty, scene.RayCount)

	outputs, err := scene.Model().Outputs(rays)
	require.NoError(t, err)
	assert.Len(t, outputs.ExpectedDepth, scene.RayCount)
	assert.Len(t, outputs.WeightsList, scene.Rounds)
	assert.Len(t, outputs.RaySamplesList, scene.Rounds)
}

func TestSceneIsDeterministic(t *testing.T) {
	t.Parallel()

	a := NewScene(99)
	b := NewScene(99)
	raysA, raysB := a.RayBundle(), b.RayBundle()
	assert.Equal(t, raysA.DirectionsNorm, raysB.DirectionsNorm)
	assert.Equal(t, a.Batch(raysA).DepthImage, b.Batch(raysB).DepthImage)
}

func TestWeightsAreNormalised(t *testing.T) {
	t.Parallel()

	scene := NewScene(3)
	scene.RayCount = 8
	rays := scene.RayBundle()
	outputs, err := scene.Model().Outputs(rays)
	require.NoError(t, err)

	for round, weights := range outputs.WeightsList {
		rows, cols := weights.Dims()
		for i := 0; i < rows; i++ {
			var sum float64
			for j := 0; j < cols; j++ {
				sum += weights.At(i, j)
			}
			assert.InDelta(t, 1.0, sum, 1e-9, "round %d ray %d", round, i)
		}
	}
}

func TestModelRunsThroughDepthSupervision(t *testing.T) {
	t.Parallel()

	scene := NewScene(11)
	scene.RayCount = 32
	model, err := depthsup.New(&depthsup.Config{}, scene.Model())
	require.NoError(t, err)

	rays := scene.RayBundle()
	batch := scene.Batch(rays)
	outputs, err := model.Outputs(rays)
	require.NoError(t, err)
	require.Equal(t, rays.DirectionsNorm, outputs.DirectionsNorm)

	metrics, err := model.Metrics(outputs, batch)
	require.NoError(t, err)
	require.Contains(t, metrics, "depth_loss")

	lossDict, err := model.Losses(outputs, batch, metrics)
	require.NoError(t, err)
	assert.Contains(t, lossDict, "depth_loss")
	assert.Contains(t, lossDict, "rgb_loss")
}

func TestDepthImageMask(t *testing.T) {
	t.Parallel()

	scene := NewScene(5)
	img := scene.DepthImage(40, 60)
	rows, cols := img.Dims()
	assert.Equal(t, 40, rows)
	assert.Equal(t, 60, cols)

	// The bottom border is unobserved and must stay zero.
	for c := 0; c < cols; c++ {
		assert.Zero(t, img.At(rows-1, c))
	}
	// Observed cells fall inside the scene's depth range.
	v := img.At(0, 0)
	assert.Greater(t, v, 0.0)
}
