package tabular

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"hoopval/adapters/catalog"
	"hoopval/domain/core"
	"hoopval/domain/stats"
	"hoopval/internal/validation"
)

// missingMarkers are cell values read as a missing game
var missingMarkers = map[string]struct{}{
	"": {}, "na": {}, "n/a": {}, "nan": {}, "null": {}, "-": {}, "dnp": {},
}

// BuildInputs turns a table into one pipeline input per (metric, entity).
// Rows are ordered by the sequence column within each entity. Phase metrics
// pair pre and post games in that order; the shorter phase is padded with
// missing games. Entities without any row for a metric are skipped.
// Team-scope metrics yield a single input built from per-game totals.
func BuildInputs(table *Table, cat *catalog.Catalog) ([]validation.MetricInput, error) {
	for _, col := range cat.Columns() {
		if !table.HasColumn(col) {
			return nil, core.NewConfigurationError("table", fmt.Sprintf("missing column %q", col))
		}
	}

	entities, byEntity, err := groupRows(table, cat)
	if err != nil {
		return nil, err
	}

	var inputs []validation.MetricInput
	for _, m := range cat.Metrics {
		if m.Team() {
			in, ok, err := buildTeamInput(table, cat, m)
			if err != nil {
				return nil, fmt.Errorf("metric %s, team: %w", m.Name, err)
			}
			if ok {
				inputs = append(inputs, in)
			}
			continue
		}
		for _, entity := range entities {
			in, ok, err := buildInput(m, cat, entity, byEntity[entity])
			if err != nil {
				return nil, fmt.Errorf("metric %s, entity %q: %w", m.Name, entity, err)
			}
			if ok {
				inputs = append(inputs, in)
			}
		}
	}
	return inputs, nil
}

// groupRows splits rows by entity in order of first appearance, each group
// sorted by the sequence column
func groupRows(table *Table, cat *catalog.Catalog) ([]string, map[string][]Row, error) {
	var entities []string
	byEntity := make(map[string][]Row)
	for _, row := range table.Rows {
		entity := ""
		if cat.EntityColumn != "" {
			entity = row[cat.EntityColumn]
		}
		if _, seen := byEntity[entity]; !seen {
			entities = append(entities, entity)
		}
		byEntity[entity] = append(byEntity[entity], row)
	}

	if cat.SequenceColumn == "" {
		return entities, byEntity, nil
	}
	for _, entity := range entities {
		rows := byEntity[entity]
		seq := make([]float64, len(rows))
		for i, row := range rows {
			v, err := strconv.ParseFloat(strings.TrimSpace(row[cat.SequenceColumn]), 64)
			if err != nil {
				return nil, nil, core.NewConfigurationError(cat.SequenceColumn,
					fmt.Sprintf("entity %q: %q is not a sequence number", entity, row[cat.SequenceColumn]))
			}
			seq[i] = v
		}
		idx := make([]int, len(rows))
		for i := range idx {
			idx[i] = i
		}
		sort.SliceStable(idx, func(a, b int) bool { return seq[idx[a]] < seq[idx[b]] })
		sorted := make([]Row, len(rows))
		for i, j := range idx {
			sorted[i] = rows[j]
		}
		byEntity[entity] = sorted
	}
	return entities, byEntity, nil
}

func buildInput(m catalog.Metric, cat *catalog.Catalog, entity string, rows []Row) (validation.MetricInput, bool, error) {
	in := validation.MetricInput{
		Metric:          core.MetricKey(m.Name),
		Entity:          core.EntityID(entity),
		Aggregator:      m.Aggregator,
		MinimumEffect:   m.MinimumEffect,
		DesiredDecrease: m.DesiredDirection == catalog.DirectionDecrease,
		SkipRobustness:  m.SkipRobustness,
		Effect:          m.Effect,
	}
	p := rowParser{metric: m, entity: entity, separator: cat.TagSeparator}

	switch {
	case m.Phase != nil:
		pre, post := splitBy(rows, m.Phase.Column, m.Phase.Pre, m.Phase.Post)
		if len(pre) == 0 && len(post) == 0 {
			return in, false, nil
		}
		preValues, preObs, err := p.parse(pre, validation.GroupPre)
		if err != nil {
			return in, false, err
		}
		postValues, postObs, err := p.parse(post, validation.GroupPost)
		if err != nil {
			return in, false, err
		}
		in.Pre, in.Post = pad(preValues, postValues)
		in.Observations = append(preObs, postObs...)

	case m.Alternative != nil:
		a, b := splitBy(rows, m.Alternative.Column, m.Alternative.LabelA, m.Alternative.LabelB)
		if len(a) == 0 && len(b) == 0 {
			return in, false, nil
		}
		_, aObs, err := p.parse(a, m.Alternative.LabelA)
		if err != nil {
			return in, false, err
		}
		_, bObs, err := p.parse(b, m.Alternative.LabelB)
		if err != nil {
			return in, false, err
		}
		in.Alternatives = &validation.AlternativesInput{
			LabelA:     m.Alternative.LabelA,
			LabelB:     m.Alternative.LabelB,
			A:          aObs,
			B:          bObs,
			FoldMetric: m.Alternative.FoldMetric,
			FoldCount:  m.Alternative.FoldCount,
		}

	default:
		if len(rows) == 0 {
			return in, false, nil
		}
		values, obs, err := p.parse(rows, validation.GroupSeason)
		if err != nil {
			return in, false, err
		}
		in.Values = values
		in.Observations = obs
		if m.VolumeColumn != "" {
			in.Volume = make(stats.Series, len(rows))
			for i, row := range rows {
				if in.Volume[i], err = parseCell(row[m.VolumeColumn]); err != nil {
					return in, false, cellError(m.VolumeColumn, entity, i, err)
				}
			}
		}
	}
	return in, true, nil
}

// splitBy returns the rows whose column equals first, and those equal to second
func splitBy(rows []Row, column, first, second string) (a, b []Row) {
	for _, row := range rows {
		switch row[column] {
		case first:
			a = append(a, row)
		case second:
			b = append(b, row)
		}
	}
	return a, b
}

// pad extends the shorter series with missing games
func pad(a, b stats.Series) (stats.Series, stats.Series) {
	for len(a) < len(b) {
		a = append(a, math.NaN())
	}
	for len(b) < len(a) {
		b = append(b, math.NaN())
	}
	return a, b
}

type rowParser struct {
	metric    catalog.Metric
	entity    string
	separator string
}

// parse reads the value column of rows as a series (NaN for missing games)
// and builds one observation per valid game
func (p rowParser) parse(rows []Row, group string) (stats.Series, []stats.Observation, error) {
	m := p.metric
	values := make(stats.Series, len(rows))
	var obs []stats.Observation
	for i, row := range rows {
		v, err := p.value(row)
		if err != nil {
			return nil, nil, cellError(m.Source(), p.entity, i, err)
		}
		values[i] = v
		if !stats.IsFinite(v) {
			continue
		}

		o := stats.Observation{Entity: p.entity, Seq: i, Group: group, Value: v}
		if m.ExposureColumn != "" {
			if o.Exposure, err = parseOptional(row[m.ExposureColumn]); err != nil {
				return nil, nil, cellError(m.ExposureColumn, p.entity, i, err)
			}
		}
		if m.MinutesColumn != "" {
			if o.Minutes, err = parseOptional(row[m.MinutesColumn]); err != nil {
				return nil, nil, cellError(m.MinutesColumn, p.entity, i, err)
			}
		}
		if m.TagsColumn != "" {
			o.Tags = splitTags(row[m.TagsColumn], p.separator)
		}
		obs = append(obs, o)
	}
	return values, obs, nil
}

// value reads the metric of one row, evaluating its expression if any
func (p rowParser) value(row Row) (float64, error) {
	if f := p.metric.Formula(); f != nil {
		return f.Eval(func(column string) (float64, error) { return parseCell(row[column]) })
	}
	return parseCell(row[p.metric.Column])
}

// parseCell reads a numeric cell; missing markers become NaN
func parseCell(cell string) (float64, error) {
	cell = strings.TrimSpace(cell)
	if _, missing := missingMarkers[strings.ToLower(cell)]; missing {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(cell, 64)
}

// parseOptional reads an exposure or minutes cell; missing is zero
func parseOptional(cell string) (float64, error) {
	v, err := parseCell(cell)
	if err != nil || math.IsNaN(v) {
		return 0, err
	}
	return v, nil
}

func splitTags(cell, separator string) []string {
	var tags []string
	for _, t := range strings.Split(cell, separator) {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

func cellError(column, entity string, row int, err error) error {
	return core.NewConfigurationError(column, fmt.Sprintf("entity %q row %d: %v", entity, row+1, err))
}
