package depthsup

import "math"

// sigmaSchedule owns the assumed supervision depth uncertainty. With decay
// disabled it is a constant; with decay enabled each query shrinks the value
// geometrically toward the configured floor. The starting sigma only seeds the
// first iteration; the floor is the steady state and keeps downstream
// divisions by sigma away from zero.
type sigmaSchedule struct {
	current float64
	floor   float64
	rate    float64
	decay   bool
}

func newSigmaSchedule(cfg *Config) *sigmaSchedule {
	s := &sigmaSchedule{
		floor: cfg.GetDepthSigma(),
		rate:  cfg.GetSigmaDecayRate(),
		decay: cfg.GetShouldDecaySigma(),
	}
	if s.decay {
		s.current = cfg.GetStartingDepthSigma()
	} else {
		s.current = s.floor
	}
	return s
}

// Current returns the sigma for this query, advancing the decay when enabled.
func (s *sigmaSchedule) Current() float64 {
	if !s.decay {
		return s.floor
	}
	s.current = decaySigma(s.current, s.rate, s.floor)
	return s.current
}

// decaySigma is the pure sigma transition: one geometric decay step clamped
// from below at the floor.
func decaySigma(current, rate, floor float64) float64 {
	return math.Max(rate*current, floor)
}
