package catalog

import (
	"fmt"
	"math"
	"sort"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"hoopval/domain/core"
)

// Formula is a compiled derived-metric expression such as
// "tov / (fga - oreb + tov + 0.44 * fta)". Every identifier must be declared
// in the variables map, which binds it to a table column.
type Formula struct {
	source    string
	program   *vm.Program
	variables map[string]string
	names     []string
}

// NewFormula compiles expression against the declared variables
func NewFormula(expression string, variables map[string]string) (*Formula, error) {
	if len(variables) == 0 {
		return nil, core.NewConfigurationError("expression", fmt.Sprintf("%q declares no variables", expression))
	}
	env := make(map[string]float64, len(variables))
	names := make([]string, 0, len(variables))
	for name, column := range variables {
		if column == "" {
			return nil, core.NewConfigurationError("variables", fmt.Sprintf("variable %q has no column", name))
		}
		env[name] = 0
		names = append(names, name)
	}
	sort.Strings(names)

	program, err := expr.Compile(expression, expr.Env(env), expr.AsFloat64())
	if err != nil {
		return nil, core.NewConfigurationError("expression", err.Error())
	}
	return &Formula{source: expression, program: program, variables: variables, names: names}, nil
}

// String returns the source expression
func (f *Formula) String() string { return f.source }

// Columns lists the columns the formula reads, ordered by variable name
func (f *Formula) Columns() []string {
	cols := make([]string, len(f.names))
	for i, name := range f.names {
		cols[i] = f.variables[name]
	}
	return cols
}

// Eval evaluates the formula with each variable read through value. A
// missing input or a non-finite result (e.g. division by zero) yields NaN.
func (f *Formula) Eval(value func(column string) (float64, error)) (float64, error) {
	env := make(map[string]float64, len(f.names))
	for _, name := range f.names {
		v, err := value(f.variables[name])
		if err != nil {
			return 0, err
		}
		if math.IsNaN(v) {
			return math.NaN(), nil
		}
		env[name] = v
	}

	out, err := expr.Run(f.program, env)
	if err != nil {
		return 0, fmt.Errorf("evaluate %q: %w", f.source, err)
	}
	result, ok := out.(float64)
	if !ok || math.IsInf(result, 0) || math.IsNaN(result) {
		return math.NaN(), nil
	}
	return result, nil
}
