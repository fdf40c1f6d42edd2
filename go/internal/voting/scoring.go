package voting

import (
	"math"
	"sort"

	"github.com/tmarsh12/livestage/go/internal/models"
)

// WeightSumTolerance is the floating-point slack allowed when checking
// that a weight vector sums to 1.0.
const WeightSumTolerance = 1e-6

// WeightVector is the per-event scoring configuration: one weight per
// vote component, summing to exactly 1.0.
type WeightVector struct {
	Viability  float64 `json:"viability" yaml:"viability"`
	Innovation float64 `json:"innovation" yaml:"innovation"`
	Pitch      float64 `json:"pitch" yaml:"pitch"`
	Demo       float64 `json:"demo" yaml:"demo"`
}

// Validate rejects vectors with negative weights or a sum off 1.0.
func (w WeightVector) Validate() error {
	for _, v := range []float64{w.Viability, w.Innovation, w.Pitch, w.Demo} {
		if v < 0 {
			return ErrInvalidWeights
		}
	}
	sum := w.Viability + w.Innovation + w.Pitch + w.Demo
	if math.Abs(sum-1.0) > WeightSumTolerance {
		return ErrInvalidWeights
	}
	return nil
}

// Score combines raw components into one scalar via dot product. The
// weights-sum-to-one precondition is enforced by the configuration
// writer, not here.
func (w WeightVector) Score(c models.VoteComponents) float64 {
	return float64(c.Viability)*w.Viability +
		float64(c.Innovation)*w.Innovation +
		float64(c.Pitch)*w.Pitch +
		float64(c.Demo)*w.Demo
}

// Named weight presets an operator can select instead of hand-tuning.
const (
	PresetBalanced          = "balanced"
	PresetViabilityFocused  = "viability-focused"
	PresetInnovationFocused = "innovation-focused"
	PresetHybrid            = "hybrid"
)

var presets = map[string]WeightVector{
	PresetBalanced:          {Viability: 0.25, Innovation: 0.25, Pitch: 0.25, Demo: 0.25},
	PresetViabilityFocused:  {Viability: 0.40, Innovation: 0.20, Pitch: 0.25, Demo: 0.15},
	PresetInnovationFocused: {Viability: 0.20, Innovation: 0.40, Pitch: 0.25, Demo: 0.15},
	PresetHybrid:            {Viability: 0.35, Innovation: 0.20, Pitch: 0.30, Demo: 0.15},
}

// RegisterPreset installs or overrides a named preset, typically from a
// deployment config file. The vector must validate.
func RegisterPreset(name string, w WeightVector) error {
	if err := w.Validate(); err != nil {
		return err
	}
	presets[name] = w
	return nil
}

// PresetFor returns the weight vector for a named preset.
func PresetFor(name string) (WeightVector, bool) {
	w, ok := presets[name]
	return w, ok
}

// PresetNames lists the available preset names in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// vectorOf extracts the weight vector from a stored weights row.
func vectorOf(w *models.VotingWeights) WeightVector {
	return WeightVector{
		Viability:  w.Viability,
		Innovation: w.Innovation,
		Pitch:      w.Pitch,
		Demo:       w.Demo,
	}
}
