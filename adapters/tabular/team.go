package tabular

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"hoopval/adapters/catalog"
	"hoopval/domain/core"
	"hoopval/domain/stats"
	"hoopval/internal/fairness"
	"hoopval/internal/validation"
)

// game holds one game's rows in table order
type game struct {
	id   string
	rows []Row
}

// buildTeamInput sums every row of a game into one team row and builds the
// input from those rows. A game's phase and sequence come from its rows:
// the phase of the first row and the lowest sequence number.
func buildTeamInput(table *Table, cat *catalog.Catalog, m catalog.Metric) (validation.MetricInput, bool, error) {
	games, err := groupGames(table, cat)
	if err != nil {
		return validation.MetricInput{}, false, err
	}
	rows := make([]Row, len(games))
	for i, g := range games {
		if rows[i], err = teamRow(g, m, cat); err != nil {
			return validation.MetricInput{}, false, err
		}
	}

	in, ok, err := buildInput(m, cat, catalog.TeamEntity, rows)
	if err != nil || !ok || m.Fairness == nil {
		return in, ok, err
	}
	shares, err := buildShares(games, m)
	if err != nil {
		return in, false, err
	}
	in.Shares = &shares
	return in, true, nil
}

// groupGames splits rows by the game column, ordered by sequence number or
// by first appearance without a sequence column
func groupGames(table *Table, cat *catalog.Catalog) ([]game, error) {
	index := make(map[string]int)
	var games []game
	var first []float64
	for i, row := range table.Rows {
		id := strings.TrimSpace(row[cat.GameColumn])
		if id == "" {
			return nil, core.NewConfigurationError(cat.GameColumn, fmt.Sprintf("row %d has no game", i+1))
		}
		seq := float64(len(games))
		if cat.SequenceColumn != "" {
			v, err := strconv.ParseFloat(strings.TrimSpace(row[cat.SequenceColumn]), 64)
			if err != nil {
				return nil, core.NewConfigurationError(cat.SequenceColumn,
					fmt.Sprintf("game %q: %q is not a sequence number", id, row[cat.SequenceColumn]))
			}
			seq = v
		}

		j, seen := index[id]
		if !seen {
			j = len(games)
			index[id] = j
			games = append(games, game{id: id})
			first = append(first, seq)
		}
		games[j].rows = append(games[j].rows, row)
		first[j] = min(first[j], seq)
	}

	order := make([]int, len(games))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return first[order[a]] < first[order[b]] })
	sorted := make([]game, len(games))
	for i, j := range order {
		sorted[i] = games[j]
	}
	return sorted, nil
}

// teamRow sums the numeric columns a metric reads over one game's rows.
// Missing cells are skipped; a column missing in every row stays missing.
func teamRow(g game, m catalog.Metric, cat *catalog.Catalog) (Row, error) {
	out := Row{cat.GameColumn: g.id}
	if m.Phase != nil {
		out[m.Phase.Column] = g.rows[0][m.Phase.Column]
	}
	if m.TagsColumn != "" {
		var tags []string
		seen := make(map[string]struct{})
		for _, row := range g.rows {
			for _, t := range splitTags(row[m.TagsColumn], cat.TagSeparator) {
				if _, dup := seen[t]; !dup {
					seen[t] = struct{}{}
					tags = append(tags, t)
				}
			}
		}
		out[m.TagsColumn] = strings.Join(tags, cat.TagSeparator)
	}

	for _, col := range summedColumns(m) {
		total, found := 0.0, false
		for i, row := range g.rows {
			v, err := parseCell(row[col])
			if err != nil {
				return nil, cellError(col, "game "+g.id, i, err)
			}
			if stats.IsFinite(v) {
				total += v
				found = true
			}
		}
		out[col] = ""
		if found {
			out[col] = strconv.FormatFloat(total, 'g', -1, 64)
		}
	}
	return out, nil
}

func summedColumns(m catalog.Metric) []string {
	var cols []string
	seen := make(map[string]struct{})
	for _, c := range append(m.ValueColumns(), m.ExposureColumn, m.MinutesColumn, m.VolumeColumn) {
		if _, dup := seen[c]; c != "" && !dup {
			seen[c] = struct{}{}
			cols = append(cols, c)
		}
	}
	return cols
}

// buildShares splits the metric's per-row value by the fairness group
// column for every pre and post game
func buildShares(games []game, m catalog.Metric) (fairness.Shares, error) {
	var pre, post []game
	for _, g := range games {
		switch g.rows[0][m.Phase.Column] {
		case m.Phase.Pre:
			pre = append(pre, g)
		case m.Phase.Post:
			post = append(post, g)
		}
	}

	column := m.Fairness.GroupColumn
	var groups []string
	seen := make(map[string]struct{})
	for _, g := range append(append([]game(nil), pre...), post...) {
		for _, row := range g.rows {
			if name := strings.TrimSpace(row[column]); name != "" {
				if _, dup := seen[name]; !dup {
					seen[name] = struct{}{}
					groups = append(groups, name)
				}
			}
		}
	}
	if len(groups) == 0 {
		return fairness.Shares{}, core.NewConfigurationError(column, "no group values in pre or post games")
	}

	p := rowParser{metric: m, entity: catalog.TeamEntity}
	split := func(phase []game) (map[string]stats.Series, error) {
		out := make(map[string]stats.Series, len(groups))
		for _, name := range groups {
			out[name] = make(stats.Series, len(phase))
		}
		for i, g := range phase {
			for j, row := range g.rows {
				name := strings.TrimSpace(row[column])
				if name == "" {
					continue
				}
				v, err := p.value(row)
				if err != nil {
					return nil, cellError(m.Source(), "game "+g.id, j, err)
				}
				if stats.IsFinite(v) {
					out[name][i] += v
				}
			}
		}
		return out, nil
	}

	s := fairness.Shares{ThresholdPP: m.Fairness.ThresholdPP, Window: m.Fairness.Window}
	var err error
	if s.Pre, err = split(pre); err != nil {
		return s, err
	}
	if s.Post, err = split(post); err != nil {
		return s, err
	}
	return s, nil
}
