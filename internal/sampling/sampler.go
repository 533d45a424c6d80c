// Package sampling holds the sampling primitives shared by the trace-level
// and span-level samplers: a Bernoulli sampler, a fixed-window rate limiter,
// a glob matcher and the sampling rules built on top of them.
package sampling

import (
	"math"
	"math/rand/v2"
)

// Sampler keeps a fraction of the items it is asked about.
type Sampler struct {
	rate float64
}

// NewSampler creates a sampler keeping the given fraction. Rates are
// clamped to [0, 1]; NaN keeps everything.
func NewSampler(rate float64) *Sampler {
	switch {
	case math.IsNaN(rate) || rate > 1:
		rate = 1
	case rate < 0:
		rate = 0
	}
	return &Sampler{rate: rate}
}

// Rate returns the configured rate.
func (s *Sampler) Rate() float64 {
	return s.rate
}

// IsSampled draws a Bernoulli trial. A rate of 1 always keeps without
// consuming randomness.
func (s *Sampler) IsSampled() bool {
	if s.rate == 1 {
		return true
	}
	return rand.Float64() < s.rate
}
