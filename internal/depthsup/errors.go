package depthsup

import (
	"errors"
	"fmt"

	"github.com/radiantlabs/depthsup/internal/losses"
)

// IncompatibleLossTypeError reports a configuration that requests a loss type
// ruled out by the process-wide pseudo-depth mode.
type IncompatibleLossTypeError struct {
	Type    losses.DepthLossType
	Allowed []losses.DepthLossType
}

func (e *IncompatibleLossTypeError) Error() string {
	return fmt.Sprintf("forcing pseudodepth loss, but depth loss type %q must be one of %v", e.Type, e.Allowed)
}

// ErrMissingDepthMetric signals that the loss blender ran in training mode
// without a depth_loss or depth_ranking metric. The selector always produces
// exactly one of them or fails first, so hitting this is an internal bug.
var ErrMissingDepthMetric = errors.New("metrics contain neither depth_loss nor depth_ranking in training mode")
