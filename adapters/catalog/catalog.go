// Package catalog loads the YAML metric catalog that maps spreadsheet
// columns onto validation inputs.
package catalog

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"hoopval/domain/core"
	"hoopval/internal/resample"
	"hoopval/internal/robustness"
)

// DefaultTagSeparator splits multi-valued tag cells ("opp_top25;b2b")
const DefaultTagSeparator = ";"

// Direction values for DesiredDirection
const (
	DirectionIncrease = "increase"
	DirectionDecrease = "decrease"
)

// Scope values. Team scope sums every row of a game before the metric is
// computed, so ratios like team TO% use game totals.
const (
	ScopeEntity = "entity"
	ScopeTeam   = "team"
)

// TeamEntity is the entity of team-scope inputs
const TeamEntity = "team"

// Catalog describes one input table and the metrics to validate in it
type Catalog struct {
	EntityColumn   string   `yaml:"entity_column"`
	SequenceColumn string   `yaml:"sequence_column"`
	GameColumn     string   `yaml:"game_column"`
	Sheet          string   `yaml:"sheet"`
	TagSeparator   string   `yaml:"tag_separator"`
	Metrics        []Metric `yaml:"metrics" validate:"required,min=1,dive"`
}

// Metric maps one value column, or an expression over several columns,
// plus optional context columns to a validation input per entity
type Metric struct {
	Name       string            `yaml:"name" validate:"required"`
	Column     string            `yaml:"column" validate:"required_without=Expression,excluded_with=Expression"`
	Expression string            `yaml:"expression"`
	Variables  map[string]string `yaml:"variables"`
	Aggregator string            `yaml:"aggregator"`
	Scope      string            `yaml:"scope" validate:"omitempty,oneof=entity team"`

	Phase       *Phase       `yaml:"phase" validate:"omitempty"`
	Alternative *Alternative `yaml:"alternative" validate:"omitempty"`

	ExposureColumn string `yaml:"exposure_column"`
	MinutesColumn  string `yaml:"minutes_column"`
	TagsColumn     string `yaml:"tags_column"`
	VolumeColumn   string `yaml:"volume_column"`

	MinimumEffect    *float64 `yaml:"minimum_effect" validate:"omitempty,gte=0"`
	DesiredDirection string   `yaml:"desired_direction" validate:"omitempty,oneof=increase decrease"`
	SkipRobustness   bool     `yaml:"skip_robustness"`

	Effect   *robustness.EffectSpec `yaml:"effect"`
	Fairness *Fairness              `yaml:"fairness" validate:"omitempty"`

	formula *Formula
}

// Team reports whether the metric is computed on per-game team totals
func (m Metric) Team() bool { return m.Scope == ScopeTeam }

// Formula returns the compiled expression, nil for single-column metrics.
// It is set by Validate.
func (m Metric) Formula() *Formula { return m.formula }

// Source names the metric's value for messages: the column or the expression
func (m Metric) Source() string {
	if m.Expression != "" {
		return m.Expression
	}
	return m.Column
}

// ValueColumns lists the columns the metric value is computed from
func (m Metric) ValueColumns() []string {
	if m.formula != nil {
		return m.formula.Columns()
	}
	return []string{m.Column}
}

// Fairness splits a team metric's per-game volume by a group column and
// flags groups whose share moved after the phase change
type Fairness struct {
	GroupColumn string  `yaml:"group_column" validate:"required"`
	ThresholdPP float64 `yaml:"threshold_pp" validate:"gte=0,lte=100"`
	Window      int     `yaml:"window" validate:"gte=0"`
}

// Phase splits rows into the pre and post periods of a change
type Phase struct {
	Column string `yaml:"column" validate:"required"`
	Pre    string `yaml:"pre" validate:"required"`
	Post   string `yaml:"post" validate:"required,nefield=Pre"`
}

// Alternative splits rows into two competing strategies
type Alternative struct {
	Column     string `yaml:"column" validate:"required"`
	LabelA     string `yaml:"label_a" validate:"required"`
	LabelB     string `yaml:"label_b" validate:"required,nefield=LabelA"`
	FoldMetric string `yaml:"fold_metric" validate:"omitempty,oneof=mean rate"`
	FoldCount  int    `yaml:"fold_count" validate:"gte=0"`
}

// Load reads and validates a catalog file
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read catalog %s: %v", core.ErrConfiguration, path, err)
	}
	return Parse(data)
}

// Parse decodes and validates catalog YAML
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: parse catalog: %v", core.ErrConfiguration, err)
	}
	if c.TagSeparator == "" {
		c.TagSeparator = DefaultTagSeparator
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field rules and the combinations BuildInputs relies on
func (c *Catalog) Validate() error {
	if err := validate.Struct(c); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return core.NewConfigurationError("catalog."+fe.Namespace(), fmt.Sprintf("failed %q rule", fe.Tag()))
		}
		return core.NewConfigurationError("catalog", err.Error())
	}

	seen := make(map[string]struct{}, len(c.Metrics))
	for i := range c.Metrics {
		m := &c.Metrics[i]
		if _, dup := seen[m.Name]; dup {
			return core.NewConfigurationError("catalog.metrics", fmt.Sprintf("duplicate metric %q", m.Name))
		}
		seen[m.Name] = struct{}{}

		if m.Aggregator != "" {
			if _, err := resample.AggregatorByName(m.Aggregator); err != nil {
				return fmt.Errorf("metric %s: %w", m.Name, err)
			}
		}
		if m.Phase != nil && m.Alternative != nil {
			return core.NewConfigurationError("catalog.metrics."+m.Name, "phase and alternative are mutually exclusive")
		}
		if m.VolumeColumn != "" && (m.Phase != nil || m.Alternative != nil) {
			return core.NewConfigurationError("catalog.metrics."+m.Name, "volume_column applies to season metrics only")
		}
		if m.Effect != nil {
			if err := m.Effect.Validate(); err != nil {
				return fmt.Errorf("metric %s: %w", m.Name, err)
			}
		}
		if err := c.validateDerived(m); err != nil {
			return err
		}
	}
	return nil
}

// validateDerived compiles expressions and checks team scope and fairness
// combinations
func (c *Catalog) validateDerived(m *Metric) error {
	field := "catalog.metrics." + m.Name
	switch {
	case m.Expression != "":
		f, err := NewFormula(m.Expression, m.Variables)
		if err != nil {
			return fmt.Errorf("metric %s: %w", m.Name, err)
		}
		m.formula = f
	case len(m.Variables) > 0:
		return core.NewConfigurationError(field, "variables need an expression")
	}

	if m.Team() {
		if c.GameColumn == "" {
			return core.NewConfigurationError(field, "team scope needs game_column")
		}
		if m.Alternative != nil {
			return core.NewConfigurationError(field, "team scope does not support alternatives")
		}
	}
	if m.Fairness != nil && (!m.Team() || m.Phase == nil) {
		return core.NewConfigurationError(field, "fairness needs team scope and a phase")
	}
	return nil
}

// Columns lists every column the catalog reads, for header checks
func (c *Catalog) Columns() []string {
	var cols []string
	add := func(names ...string) {
		for _, n := range names {
			if n != "" {
				cols = append(cols, n)
			}
		}
	}
	add(c.EntityColumn, c.SequenceColumn, c.GameColumn)
	for _, m := range c.Metrics {
		add(m.ValueColumns()...)
		add(m.ExposureColumn, m.MinutesColumn, m.TagsColumn, m.VolumeColumn)
		if m.Phase != nil {
			add(m.Phase.Column)
		}
		if m.Alternative != nil {
			add(m.Alternative.Column)
		}
		if m.Fairness != nil {
			add(m.Fairness.GroupColumn)
		}
	}
	return cols
}
