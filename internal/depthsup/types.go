package depthsup

import (
	"gonum.org/v1/gonum/mat"

	"github.com/radiantlabs/depthsup/internal/losses"
)

// Metrics is a per-step scalar metrics map keyed by metric name.
type Metrics map[string]float64

// LossDict is a per-step loss map keyed by loss term name. The training loop
// sums its values to form the total loss.
type LossDict map[string]float64

// RayBundle is one batch of camera rays handed to the model.
type RayBundle struct {
	// Origins and Directions are rays x 3. Directions are not necessarily
	// unit length.
	Origins    *mat.Dense
	Directions *mat.Dense
	// DirectionsNorm is optional per-ray metadata: the norm of the
	// unnormalised ray direction, which converts z-depth to along-ray
	// distance.
	DirectionsNorm []float64
}

// Outputs holds the per-ray results of one forward pass. The base model fills
// its fields; the depth model copies DirectionsNorm through from the ray
// bundle metadata.
type Outputs struct {
	// RGB is rays x 3 predicted colour.
	RGB *mat.Dense
	// ExpectedDepth is the weighted expected termination depth per ray.
	ExpectedDepth []float64
	// DepthUncertainty is the model's predicted depth uncertainty per ray.
	DepthUncertainty []float64
	// Accumulation is the per-ray opacity accumulation in [0, 1].
	Accumulation []float64
	// WeightsList holds one rays x samples weight matrix per
	// importance-sampling round.
	WeightsList []*mat.Dense
	// RaySamplesList holds the matching sample positions per round.
	RaySamplesList []losses.RaySamples
	// DirectionsNorm is the ray bundle metadata passthrough; nil when the
	// bundle carried none.
	DirectionsNorm []float64
}

// Batch is the externally supplied supervision data for one training step.
// All fields are per ray and read-only to this package.
type Batch struct {
	// RGB is rays x 3 ground truth colour for the photometric loss.
	RGB *mat.Dense
	// DepthImage is the ground truth termination depth per ray.
	DepthImage []float64
	// DepthUncertainty is the ground truth depth uncertainty per ray,
	// required by the uncertainty-weighted loss type.
	DepthUncertainty []float64
}

// RenderedViews holds full-image render results for evaluation.
type RenderedViews struct {
	// Depth is the rendered depth image.
	Depth *mat.Dense
	// Accumulation is the rendered opacity accumulation image.
	Accumulation *mat.Dense
}

// ImageBatch is the evaluation-time counterpart of Batch: full ground truth
// images rather than per-ray samples.
type ImageBatch struct {
	// DepthImage is the supervision depth used during training.
	DepthImage *mat.Dense
	// GTDepthImage and GTObjectDepthImage are optional additional ground
	// truth depth sources; when both are present the evaluation reports a
	// masked MSE against each.
	GTDepthImage       *mat.Dense
	GTObjectDepthImage *mat.Dense
}

// SceneModel is the base radiance field model this package extends. The
// surrounding framework owns its implementation; tests and the depthreport
// CLI use a synthetic one.
type SceneModel interface {
	// Outputs runs a forward pass over one ray bundle.
	Outputs(rays *RayBundle) (*Outputs, error)
	// Metrics computes the base model's per-step metrics.
	Metrics(outputs *Outputs, batch *Batch) (Metrics, error)
	// Losses computes the base model's loss terms.
	Losses(outputs *Outputs, batch *Batch, metrics Metrics) (LossDict, error)
}
