package depthsup

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/radiantlabs/depthsup/internal/losses"
)

// Config holds the depth supervision knobs. Fields use pointers so a JSON
// config can set only the values it cares about; the Get* accessors supply
// defaults for the rest. A Config is fixed at model construction and never
// mutated afterwards.
type Config struct {
	// Loss weighting
	DepthLossMult     *float64 `json:"depth_loss_mult,omitempty"`
	UncertaintyWeight *float64 `json:"uncertainty_weight,omitempty"`

	// Depth interpretation
	IsEuclideanDepth *bool `json:"is_euclidean_depth,omitempty"`

	// Sigma schedule
	DepthSigma         *float64 `json:"depth_sigma,omitempty"`
	ShouldDecaySigma   *bool    `json:"should_decay_sigma,omitempty"`
	StartingDepthSigma *float64 `json:"starting_depth_sigma,omitempty"`
	SigmaDecayRate     *float64 `json:"sigma_decay_rate,omitempty"`

	// Loss selection
	DepthLossType *string `json:"depth_loss_type,omitempty"`

	// Evaluation reporting
	DepthRescale     *float64   `json:"depth_rescale,omitempty"`
	MSENormalization *float64   `json:"mse_normalization,omitempty"`
	CropRules        []CropRule `json:"crop_rules,omitempty"`
}

// CropRule crops supervision depth images whose width matches a dataset's
// sentinel value before the masked MSE is computed. Rules exist because some
// capture rigs pad their depth maps with an invalid border.
type CropRule struct {
	WidthSentinel int `json:"width_sentinel"`
	Rows          int `json:"rows"`
	Cols          int `json:"cols"`
}

// LoadConfig reads and validates a Config from a JSON file. Omitted fields
// keep their defaults, so partial configs are safe.
func LoadConfig(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configured values are usable.
func (c *Config) Validate() error {
	if c.DepthSigma != nil && *c.DepthSigma <= 0 {
		return fmt.Errorf("depth_sigma must be positive, got %g", *c.DepthSigma)
	}
	if c.StartingDepthSigma != nil && *c.StartingDepthSigma <= 0 {
		return fmt.Errorf("starting_depth_sigma must be positive, got %g", *c.StartingDepthSigma)
	}
	if c.SigmaDecayRate != nil {
		if *c.SigmaDecayRate <= 0 || *c.SigmaDecayRate >= 1 {
			return fmt.Errorf("sigma_decay_rate must be in (0, 1), got %g", *c.SigmaDecayRate)
		}
	}
	if c.DepthRescale != nil && *c.DepthRescale <= 0 {
		return fmt.Errorf("depth_rescale must be positive, got %g", *c.DepthRescale)
	}
	if c.MSENormalization != nil && *c.MSENormalization <= 0 {
		return fmt.Errorf("mse_normalization must be positive, got %g", *c.MSENormalization)
	}
	for _, r := range c.CropRules {
		if r.WidthSentinel <= 0 || r.Rows <= 0 || r.Cols <= 0 {
			return fmt.Errorf("crop rule must have positive sentinel and extent, got %+v", r)
		}
	}
	return nil
}

// GetDepthLossMult returns the depth loss multiplier or the default.
func (c *Config) GetDepthLossMult() float64 {
	if c.DepthLossMult == nil {
		return 0.02
	}
	return *c.DepthLossMult
}

// GetUncertaintyWeight returns the uncertainty weight or the default.
func (c *Config) GetUncertaintyWeight() float64 {
	if c.UncertaintyWeight == nil {
		return 1.0
	}
	return *c.UncertaintyWeight
}

// GetIsEuclideanDepth reports whether supervision depths are Euclidean
// distances rather than z-depths. Defaults to false.
func (c *Config) GetIsEuclideanDepth() bool {
	if c.IsEuclideanDepth == nil {
		return false
	}
	return *c.IsEuclideanDepth
}

// GetDepthSigma returns the steady-state depth sigma in metres or the default
// of 1cm.
func (c *Config) GetDepthSigma() float64 {
	if c.DepthSigma == nil {
		return 0.01
	}
	return *c.DepthSigma
}

// GetShouldDecaySigma reports whether sigma decays over training. Defaults to
// false.
func (c *Config) GetShouldDecaySigma() bool {
	if c.ShouldDecaySigma == nil {
		return false
	}
	return *c.ShouldDecaySigma
}

// GetStartingDepthSigma returns the decay schedule's starting sigma or the
// default of 0.2m.
func (c *Config) GetStartingDepthSigma() float64 {
	if c.StartingDepthSigma == nil {
		return 0.2
	}
	return *c.StartingDepthSigma
}

// GetSigmaDecayRate returns the per-query geometric decay rate or the default.
func (c *Config) GetSigmaDecayRate() float64 {
	if c.SigmaDecayRate == nil {
		return 0.99985
	}
	return *c.SigmaDecayRate
}

// GetDepthLossType returns the configured loss type or the default.
func (c *Config) GetDepthLossType() losses.DepthLossType {
	if c.DepthLossType == nil {
		return losses.Simple
	}
	return losses.DepthLossType(*c.DepthLossType)
}

// GetDepthRescale returns the calibration divisor applied to depth images at
// evaluation time. The default matches the capture rig the model was tuned on.
func (c *Config) GetDepthRescale() float64 {
	if c.DepthRescale == nil {
		return 0.25623789273
	}
	return *c.DepthRescale
}

// GetMSENormalization returns the divisor applied to evaluation MSE metrics.
func (c *Config) GetMSENormalization() float64 {
	if c.MSENormalization == nil {
		return 7.27
	}
	return *c.MSENormalization
}

// cropFor returns the crop rule matching an image width, if any.
func (c *Config) cropFor(width int) (CropRule, bool) {
	for _, r := range c.CropRules {
		if r.WidthSentinel == width {
			return r, true
		}
	}
	return CropRule{}, false
}
