package depthsup

import (
	"fmt"
	"image"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/radiantlabs/depthsup/internal/colormaps"
)

// ImageEvaluator is implemented by base models that produce their own
// full-image evaluation metrics and renderings. When the base model supports
// it, EvalImages extends its results instead of starting from empty maps.
type ImageEvaluator interface {
	EvalImages(views *RenderedViews, batch *ImageBatch) (map[string]float64, map[string]image.Image, error)
}

// EvalImages produces the evaluation-time depth report: a side-by-side
// colormapped image (ground truth left, prediction right) and masked MSE
// metrics against the supervision depth and, when present, the additional
// ground truth depth sources.
func (m *Model) EvalImages(views *RenderedViews, batch *ImageBatch) (map[string]float64, map[string]image.Image, error) {
	if views == nil || views.Depth == nil {
		return nil, nil, fmt.Errorf("evaluation requires a rendered depth image")
	}
	if batch == nil || batch.DepthImage == nil {
		return nil, nil, fmt.Errorf("evaluation requires a supervision depth image")
	}

	metrics := map[string]float64{}
	images := map[string]image.Image{}
	if ie, ok := m.base.(ImageEvaluator); ok {
		var err error
		metrics, images, err = ie.EvalImages(views, batch)
		if err != nil {
			return nil, nil, err
		}
		// A base evaluator may return nil maps; the depth entries still go in.
		if metrics == nil {
			metrics = map[string]float64{}
		}
		if images == nil {
			images = map[string]image.Image{}
		}
	}

	// Both depths are divided by the calibration constant so the report is in
	// the supervision sensor's metric scale.
	scale := m.cfg.GetDepthRescale()
	supervised := scaleMat(batch.DepthImage, 1/scale)
	predicted := scaleMat(views.Depth, 1/scale)

	gtColormap, err := colormaps.ApplyDepth(supervised, colormaps.Options{})
	if err != nil {
		return nil, nil, fmt.Errorf("ground truth colormap: %w", err)
	}
	near, far := matMin(supervised), matMax(supervised)
	predColormap, err := colormaps.ApplyDepth(predicted, colormaps.Options{
		NearPlane:    near,
		FarPlane:     far,
		Accumulation: views.Accumulation,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("predicted colormap: %w", err)
	}
	images["depth"] = colormaps.SideBySide(gtColormap, predColormap)

	// Some datasets pad supervision depth with an invalid border; the
	// configured crop rules trim it before scoring.
	_, cols := supervised.Dims()
	if rule, ok := m.cfg.cropFor(cols); ok {
		supervised = cropMat(supervised, rule.Rows, rule.Cols)
	}

	norm := m.cfg.GetMSENormalization()
	metrics["supervised_depth_mse"] = maskedMSE(predicted, supervised) / norm

	if batch.GTDepthImage != nil && batch.GTObjectDepthImage != nil {
		metrics["gt_depth_mse"] = maskedMSE(predicted, batch.GTDepthImage) / norm
		metrics["gt_object_depth_mse"] = maskedMSE(predicted, batch.GTObjectDepthImage) / norm
	}
	return metrics, images, nil
}

// maskedMSE is the mean squared error between predicted and ground truth over
// positions where ground truth depth is positive. Comparison covers the
// overlap of the two matrices, which differ only when a crop rule applied.
func maskedMSE(predicted, groundTruth *mat.Dense) float64 {
	pr, pc := predicted.Dims()
	gr, gc := groundTruth.Dims()
	rows, cols := pr, pc
	if gr < rows {
		rows = gr
	}
	if gc < cols {
		cols = gc
	}

	var sum float64
	var count int
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			gt := groundTruth.At(r, c)
			if gt <= 0 {
				continue
			}
			diff := predicted.At(r, c) - gt
			sum += diff * diff
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

func scaleMat(m *mat.Dense, factor float64) *mat.Dense {
	var out mat.Dense
	out.Scale(factor, m)
	return &out
}

func cropMat(m *mat.Dense, rows, cols int) *mat.Dense {
	mr, mc := m.Dims()
	if rows > mr {
		rows = mr
	}
	if cols > mc {
		cols = mc
	}
	return mat.DenseCopyOf(m.Slice(0, rows, 0, cols))
}

func matMin(m *mat.Dense) float64 {
	rows, cols := m.Dims()
	min := math.Inf(1)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if v := m.At(r, c); v < min {
				min = v
			}
		}
	}
	return min
}

func matMax(m *mat.Dense) float64 {
	rows, cols := m.Dims()
	max := math.Inf(-1)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if v := m.At(r, c); v > max {
				max = v
			}
		}
	}
	return max
}
