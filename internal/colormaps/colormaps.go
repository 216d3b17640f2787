// Package colormaps renders depth matrices as colour images for evaluation
// reports.
package colormaps

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/palette/moreland"
)

// Options configure ApplyDepth.
type Options struct {
	// NearPlane and FarPlane fix the colormap range. When both are zero the
	// range is taken from the data.
	NearPlane float64
	FarPlane  float64
	// Accumulation optionally modulates the output: low-opacity pixels fade
	// toward white so holes in the reconstruction are visible.
	Accumulation *mat.Dense
	// Map overrides the colour map; nil selects the default.
	Map palette.ColorMap
}

// ApplyDepth maps a depth matrix to a colormapped RGBA image.
func ApplyDepth(depth *mat.Dense, o Options) (*image.RGBA, error) {
	if depth == nil {
		return nil, fmt.Errorf("depth matrix is nil")
	}
	rows, cols := depth.Dims()

	near, far := o.NearPlane, o.FarPlane
	if near == 0 && far == 0 {
		near, far = matRange(depth)
	}
	if far <= near {
		// Degenerate range (constant image); widen so the map is usable.
		far = near + 1e-6
	}

	cm := o.Map
	if cm == nil {
		cm = moreland.ExtendedBlackBody()
	}
	cm.SetMin(near)
	cm.SetMax(far)

	if o.Accumulation != nil {
		ar, ac := o.Accumulation.Dims()
		if ar != rows || ac != cols {
			return nil, fmt.Errorf("accumulation is %dx%d, depth is %dx%d", ar, ac, rows, cols)
		}
	}

	img := image.NewRGBA(image.Rect(0, 0, cols, rows))
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			v := math.Min(math.Max(depth.At(r, c), near), far)
			col, err := cm.At(v)
			if err != nil {
				return nil, fmt.Errorf("colormap at %g: %w", v, err)
			}
			out := color.RGBAModel.Convert(col).(color.RGBA)
			if o.Accumulation != nil {
				out = fadeToWhite(out, o.Accumulation.At(r, c))
			}
			img.SetRGBA(c, r, out)
		}
	}
	return img, nil
}

// SideBySide places two images next to each other on a shared baseline,
// ground truth conventionally on the left.
func SideBySide(left, right image.Image) *image.RGBA {
	lb, rb := left.Bounds(), right.Bounds()
	h := lb.Dy()
	if rb.Dy() > h {
		h = rb.Dy()
	}
	out := image.NewRGBA(image.Rect(0, 0, lb.Dx()+rb.Dx(), h))
	for y := 0; y < lb.Dy(); y++ {
		for x := 0; x < lb.Dx(); x++ {
			out.Set(x, y, left.At(lb.Min.X+x, lb.Min.Y+y))
		}
	}
	for y := 0; y < rb.Dy(); y++ {
		for x := 0; x < rb.Dx(); x++ {
			out.Set(lb.Dx()+x, y, right.At(rb.Min.X+x, rb.Min.Y+y))
		}
	}
	return out
}

// fadeToWhite blends c toward white as accumulation drops below one.
func fadeToWhite(c color.RGBA, accumulation float64) color.RGBA {
	a := math.Min(math.Max(accumulation, 0), 1)
	blend := func(v uint8) uint8 {
		return uint8(float64(v)*a + 255*(1-a))
	}
	return color.RGBA{R: blend(c.R), G: blend(c.G), B: blend(c.B), A: 255}
}

// matRange returns the minimum and maximum of a matrix.
func matRange(m *mat.Dense) (min, max float64) {
	rows, cols := m.Dims()
	min, max = math.Inf(1), math.Inf(-1)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			v := m.At(r, c)
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
		}
	}
	return min, max
}
