// Package synthetic generates deterministic radiance field fixtures for tests
// and the depthreport CLI: ray bundles, supervision batches and a minimal base
// scene model with a known ground truth surface.
package synthetic

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/radiantlabs/depthsup/internal/depthsup"
	"github.com/radiantlabs/depthsup/internal/losses"
)

// Scene produces rays and supervision against a smooth analytic surface.
// All randomness flows from the seed, so a given configuration replays
// identically.
type Scene struct {
	// Configuration
	RayCount        int     // rays per frame
	Rounds          int     // importance-sampling rounds per forward pass
	SamplesPerRound int     // samples per ray per round
	NearPlane       float64 // metres
	FarPlane        float64 // metres
	DepthNoise      float64 // std of supervision depth noise, metres
	PredictionError float64 // std of the base model's depth error, metres

	rng *rand.Rand
}

// NewScene creates a scene with workable defaults.
func NewScene(seed int64) *Scene {
	return &Scene{
		RayCount:        256,
		Rounds:          2,
		SamplesPerRound: 48,
		NearPlane:       1.0,
		FarPlane:        6.0,
		DepthNoise:      0.02,
		PredictionError: 0.05,
		rng:             rand.New(rand.NewSource(seed)),
	}
}

// surfaceDepth is the ground truth Euclidean distance along a unit direction.
// A gentle sinusoidal bowl between the near and far planes.
func (s *Scene) surfaceDepth(dx, dy, dz float64) float64 {
	mid := (s.NearPlane + s.FarPlane) / 2
	amp := (s.FarPlane - s.NearPlane) / 4
	return mid + amp*math.Sin(3*dx)*math.Cos(2*dy) + amp/2*dz
}

// RayBundle generates one frame of rays. Directions are deliberately not unit
// length; DirectionsNorm carries their norms as metadata, mirroring a camera
// whose pixel rays are scaled by focal geometry.
func (s *Scene) RayBundle() *depthsup.RayBundle {
	origins := mat.NewDense(s.RayCount, 3, nil)
	directions := mat.NewDense(s.RayCount, 3, nil)
	norms := make([]float64, s.RayCount)
	for i := 0; i < s.RayCount; i++ {
		theta := s.rng.Float64() * 2 * math.Pi
		phi := (s.rng.Float64() - 0.5) * math.Pi / 3
		scale := 1 + 0.2*s.rng.Float64()

		dx := math.Cos(phi) * math.Cos(theta)
		dy := math.Cos(phi) * math.Sin(theta)
		dz := math.Sin(phi)
		directions.SetRow(i, []float64{dx * scale, dy * scale, dz * scale})
		norms[i] = scale
	}
	return &depthsup.RayBundle{
		Origins:        origins,
		Directions:     directions,
		DirectionsNorm: norms,
	}
}

// Batch builds the supervision batch for a bundle: noisy z-depth against the
// analytic surface, per-ray uncertainty, and ground truth colour.
func (s *Scene) Batch(rays *depthsup.RayBundle) *depthsup.Batch {
	n, _ := rays.Directions.Dims()
	depth := make([]float64, n)
	uncertainty := make([]float64, n)
	rgb := mat.NewDense(n, 3, nil)
	for i := 0; i < n; i++ {
		dx, dy, dz, norm := unitDirection(rays.Directions, i)
		euclidean := s.surfaceDepth(dx, dy, dz) + s.rng.NormFloat64()*s.DepthNoise
		// Supervision arrives as z-depth; the directions norm converts back.
		depth[i] = euclidean / norm
		uncertainty[i] = s.DepthNoise * (1 + 0.5*s.rng.Float64())
		rgb.SetRow(i, []float64{0.5 + 0.5*dx, 0.5 + 0.5*dy, 0.5 + 0.5*dz})
	}
	return &depthsup.Batch{RGB: rgb, DepthImage: depth, DepthUncertainty: uncertainty}
}

// DepthImage renders the analytic surface as a full z-depth image for
// evaluation fixtures. A band of zero rows at the bottom exercises the
// masked MSE path.
func (s *Scene) DepthImage(rows, cols int) *mat.Dense {
	img := mat.NewDense(rows, cols, nil)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if r >= rows-rows/8 {
				continue // unobserved border, stays zero
			}
			u := float64(c)/float64(cols)*2 - 1
			v := float64(r)/float64(rows)*2 - 1
			img.Set(r, c, s.surfaceDepth(u, v, 0.1))
		}
	}
	return img
}

// RenderedViews produces a noisy rendering of a ground truth depth image.
func (s *Scene) RenderedViews(groundTruth *mat.Dense) *depthsup.RenderedViews {
	rows, cols := groundTruth.Dims()
	depth := mat.NewDense(rows, cols, nil)
	accumulation := mat.NewDense(rows, cols, nil)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			gt := groundTruth.At(r, c)
			if gt <= 0 {
				gt = s.FarPlane
			}
			depth.Set(r, c, gt+s.rng.NormFloat64()*s.PredictionError)
			accumulation.Set(r, c, 0.9+0.1*s.rng.Float64())
		}
	}
	return &depthsup.RenderedViews{Depth: depth, Accumulation: accumulation}
}

// BaseModel is a stand-in radiance field model over the scene's analytic
// surface: expected depth is the truth plus configured error, and rendering
// weights form a discretised Gaussian around it.
type BaseModel struct {
	scene *Scene
}

// Model returns the scene's base model.
func (s *Scene) Model() *BaseModel {
	return &BaseModel{scene: s}
}

// Outputs simulates a forward pass for the bundle.
func (b *BaseModel) Outputs(rays *depthsup.RayBundle) (*depthsup.Outputs, error) {
	if rays == nil || rays.Directions == nil {
		return nil, fmt.Errorf("synthetic model needs ray directions")
	}
	s := b.scene
	n, _ := rays.Directions.Dims()

	expected := make([]float64, n)
	uncertainty := make([]float64, n)
	accumulation := make([]float64, n)
	rgb := mat.NewDense(n, 3, nil)
	for i := 0; i < n; i++ {
		dx, dy, dz, _ := unitDirection(rays.Directions, i)
		expected[i] = s.surfaceDepth(dx, dy, dz) + s.rng.NormFloat64()*s.PredictionError
		uncertainty[i] = 0.01 + math.Abs(s.rng.NormFloat64())*0.05
		accumulation[i] = 0.9 + 0.1*s.rng.Float64()
		rgb.SetRow(i, []float64{0.5 + 0.5*dx, 0.5 + 0.5*dy, 0.5 + 0.5*dz})
	}

	outputs := &depthsup.Outputs{
		RGB:              rgb,
		ExpectedDepth:    expected,
		DepthUncertainty: uncertainty,
		Accumulation:     accumulation,
	}
	for round := 0; round < s.Rounds; round++ {
		// Earlier rounds are coarser: wider weight spread.
		spread := s.PredictionError * float64(s.Rounds-round)
		weights, samples := b.weightsRound(expected, spread)
		outputs.WeightsList = append(outputs.WeightsList, weights)
		outputs.RaySamplesList = append(outputs.RaySamplesList, samples)
	}
	return outputs, nil
}

// weightsRound builds uniform sample bins spanning the scene range and a
// normalised Gaussian weight profile around each ray's expected depth.
func (b *BaseModel) weightsRound(expected []float64, spread float64) (*mat.Dense, losses.RaySamples) {
	s := b.scene
	n := len(expected)
	cols := s.SamplesPerRound
	starts := mat.NewDense(n, cols, nil)
	ends := mat.NewDense(n, cols, nil)
	weights := mat.NewDense(n, cols, nil)

	lo := s.NearPlane * 0.8
	hi := s.FarPlane * 1.2
	binWidth := (hi - lo) / float64(cols)
	if spread <= 0 {
		spread = binWidth
	}
	for i := 0; i < n; i++ {
		var sum float64
		for j := 0; j < cols; j++ {
			start := lo + float64(j)*binWidth
			starts.Set(i, j, start)
			ends.Set(i, j, start+binWidth)
			mid := start + binWidth/2
			d := mid - expected[i]
			w := math.Exp(-d * d / (2 * spread * spread))
			weights.Set(i, j, w)
			sum += w
		}
		if sum > 0 {
			for j := 0; j < cols; j++ {
				weights.Set(i, j, weights.At(i, j)/sum)
			}
		}
	}
	return weights, losses.RaySamples{Starts: starts, Ends: ends}
}

// Metrics reports the photometric error of the pass.
func (b *BaseModel) Metrics(outputs *depthsup.Outputs, batch *depthsup.Batch) (depthsup.Metrics, error) {
	return depthsup.Metrics{"rgb_mse": rgbMSE(outputs.RGB, batch.RGB)}, nil
}

// Losses reports the photometric loss term.
func (b *BaseModel) Losses(outputs *depthsup.Outputs, batch *depthsup.Batch, metrics depthsup.Metrics) (depthsup.LossDict, error) {
	return depthsup.LossDict{"rgb_loss": rgbMSE(outputs.RGB, batch.RGB)}, nil
}

func rgbMSE(predicted, groundTruth *mat.Dense) float64 {
	if predicted == nil || groundTruth == nil {
		return 0
	}
	rows, cols := predicted.Dims()
	var sum float64
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			d := predicted.At(r, c) - groundTruth.At(r, c)
			sum += d * d
		}
	}
	return sum / float64(rows*cols)
}

func unitDirection(directions *mat.Dense, i int) (dx, dy, dz, norm float64) {
	dx = directions.At(i, 0)
	dy = directions.At(i, 1)
	dz = directions.At(i, 2)
	norm = math.Sqrt(dx*dx + dy*dy + dz*dz)
	if norm > 0 {
		dx, dy, dz = dx/norm, dy/norm, dz/norm
	}
	return dx, dy, dz, norm
}
