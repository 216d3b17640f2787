package schedule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPiecewiseLinear(t *testing.T) {
	t.Parallel()

	ramp := MustPiecewiseLinear([]Point{
		{Step: 0, Value: 0},
		{Step: 2000, Value: 0.2},
	})

	t.Run("endpoints", func(t *testing.T) {
		t.Parallel()
		assert.InDelta(t, 0, ramp.At(0), 1e-12)
		assert.InDelta(t, 0.2, ramp.At(2000), 1e-12)
	})

	t.Run("interpolates the midpoint", func(t *testing.T) {
		t.Parallel()
		assert.InDelta(t, 0.1, ramp.At(1000), 1e-12)
	})

	t.Run("clamps beyond the table", func(t *testing.T) {
		t.Parallel()
		assert.InDelta(t, 0.2, ramp.At(5000), 1e-12)
		assert.InDelta(t, 0, ramp.At(-100), 1e-12)
	})

	t.Run("accepts unsorted control points", func(t *testing.T) {
		t.Parallel()
		s, err := NewPiecewiseLinear([]Point{
			{Step: 100, Value: 1},
			{Step: 0, Value: 0},
			{Step: 50, Value: 0.25},
		})
		require.NoError(t, err)
		assert.InDelta(t, 0.25, s.At(50), 1e-12)
		assert.InDelta(t, 0.125, s.At(25), 1e-12)
	})

	t.Run("rejects fewer than two points", func(t *testing.T) {
		t.Parallel()
		_, err := NewPiecewiseLinear([]Point{{Step: 0, Value: 1}})
		require.Error(t, err)
	})

	t.Run("rejects duplicate steps", func(t *testing.T) {
		t.Parallel()
		_, err := NewPiecewiseLinear([]Point{
			{Step: 0, Value: 0},
			{Step: 0, Value: 1},
		})
		require.Error(t, err)
	})
}
