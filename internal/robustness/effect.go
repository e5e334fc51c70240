package robustness

import (
	"fmt"

	"gonum.org/v1/gonum/stat"

	"hoopval/domain/core"
	"hoopval/domain/stats"
)

// EffectKind selects how observations reduce to one effect
type EffectKind string

const (
	// EffectLevel is the basis-normalised level across all observations
	EffectLevel EffectKind = "level"
	// EffectContrast is level(treatment group) - level(control group)
	EffectContrast EffectKind = "contrast"
)

// EffectSpec describes the effect a conclusion rests on
type EffectSpec struct {
	Kind      EffectKind  `json:"kind" yaml:"kind"`
	Basis     stats.Basis `json:"basis" yaml:"basis"`
	Treatment string      `json:"treatment,omitempty" yaml:"treatment"`
	Control   string      `json:"control,omitempty" yaml:"control"`
}

// WithBasis returns a copy normalised on a different basis
func (s EffectSpec) WithBasis(b stats.Basis) EffectSpec {
	s.Basis = b
	return s
}

// Validate checks the spec is complete
func (s EffectSpec) Validate() error {
	switch s.Kind {
	case EffectLevel:
	case EffectContrast:
		if s.Treatment == "" || s.Control == "" {
			return core.NewConfigurationError("effect", "contrast needs treatment and control groups")
		}
		if s.Treatment == s.Control {
			return core.NewConfigurationError("effect", "treatment and control must differ")
		}
	default:
		return core.NewConfigurationError("effect.kind", fmt.Sprintf("unknown kind %q", s.Kind))
	}
	switch s.Basis {
	case stats.BasisPerGame, stats.BasisRate, stats.BasisMinuteWeighted:
		return nil
	default:
		return core.NewConfigurationError("effect.basis", fmt.Sprintf("unknown basis %q", s.Basis))
	}
}

// Compute reduces observations to the effect. Missing groups, zero exposure
// or zero minutes yield ErrInsufficientData.
func (s EffectSpec) Compute(obs []stats.Observation) (float64, error) {
	if s.Kind == EffectLevel {
		return level(obs, s.Basis)
	}

	treatment, control := s.Split(obs)
	t, err := level(treatment, s.Basis)
	if err != nil {
		return 0, fmt.Errorf("treatment group %q: %w", s.Treatment, err)
	}
	c, err := level(control, s.Basis)
	if err != nil {
		return 0, fmt.Errorf("control group %q: %w", s.Control, err)
	}
	return t - c, nil
}

// Split partitions observations into the treatment and control groups
func (s EffectSpec) Split(obs []stats.Observation) (treatment, control []stats.Observation) {
	for _, o := range obs {
		switch o.Group {
		case s.Treatment:
			treatment = append(treatment, o)
		case s.Control:
			control = append(control, o)
		}
	}
	return treatment, control
}

// Supports reports whether every observation carries the fields basis needs
func Supports(obs []stats.Observation, basis stats.Basis) bool {
	if len(obs) == 0 {
		return false
	}
	for _, o := range obs {
		switch basis {
		case stats.BasisRate:
			if o.Exposure <= 0 {
				return false
			}
		case stats.BasisMinuteWeighted:
			if o.Minutes <= 0 {
				return false
			}
		}
	}
	return true
}

func level(obs []stats.Observation, basis stats.Basis) (float64, error) {
	if len(obs) == 0 {
		return 0, core.NewInsufficientDataError("effect group", 0, 1)
	}

	values := make([]float64, len(obs))
	for i, o := range obs {
		values[i] = o.Value
	}

	switch basis {
	case stats.BasisRate:
		var exposure float64
		for _, o := range obs {
			exposure += o.Exposure
		}
		if exposure <= 0 {
			return 0, fmt.Errorf("%w: rate basis needs positive exposure", core.ErrInsufficientData)
		}
		var total float64
		for _, v := range values {
			total += v
		}
		return total / exposure, nil

	case stats.BasisMinuteWeighted:
		weights := make([]float64, len(obs))
		var minutes float64
		for i, o := range obs {
			weights[i] = o.Minutes
			minutes += o.Minutes
		}
		if minutes <= 0 {
			return 0, fmt.Errorf("%w: minute-weighted basis needs positive minutes", core.ErrInsufficientData)
		}
		return stat.Mean(values, weights), nil

	default:
		return stat.Mean(values, nil), nil
	}
}
