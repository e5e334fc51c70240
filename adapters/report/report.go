// Package report renders validation runs as markdown, HTML or JSON.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"hoopval/domain/core"
	"hoopval/domain/stats"
	"hoopval/domain/verdict"
)

// Format selects the output rendering
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
	FormatJSON     Format = "json"
)

// Write renders run to w in the requested format
func Write(w io.Writer, run verdict.Run, format Format) error {
	switch format {
	case FormatMarkdown, "":
		_, err := io.WriteString(w, Markdown(run))
		return err
	case FormatHTML:
		_, err := w.Write(HTML(run))
		return err
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	default:
		return core.NewConfigurationError("format", fmt.Sprintf("unknown report format %q", format))
	}
}

// HTML renders the markdown report as a standalone HTML page
func HTML(run verdict.Run) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	doc := p.Parse([]byte(Markdown(run)))

	renderer := html.NewRenderer(html.RendererOptions{
		Flags: html.CommonFlags | html.CompletePage,
		Title: "Validation run " + run.ID.String(),
	})
	return markdown.Render(doc, renderer)
}

// Markdown renders a summary table followed by one section per record
func Markdown(run verdict.Run) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Validation run %s\n\n", run.ID)
	fmt.Fprintf(&b, "Seed %d, %d records", run.Seed, len(run.Records))
	if !run.StartedAt.IsZero() && !run.FinishedAt.IsZero() {
		fmt.Fprintf(&b, ", %v", run.FinishedAt.Time().Sub(run.StartedAt.Time()).Round(time.Millisecond))
	}
	b.WriteString(".\n\n")

	b.WriteString("| Metric | Level | Delta | p-value | Robust | Statistical | Practical | Issues |\n")
	b.WriteString("|---|---|---|---|---|---|---|---|\n")
	for _, rec := range run.Records {
		delta := rec.Delta
		if delta == nil {
			delta = rec.Difference
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s | %s | %d |\n",
			rec.Key, interval(&rec.Level), interval(delta), pValue(rec.Test),
			robust(rec.Robustness), gate(rec.Gates.Statistical), gate(rec.Gates.Practical), len(rec.Issues))
	}

	for _, rec := range run.Records {
		writeRecord(&b, rec)
	}
	return b.String()
}

func writeRecord(b *strings.Builder, rec verdict.ValidationRecord) {
	fmt.Fprintf(b, "\n## %s\n\n", rec.Key)
	fmt.Fprintf(b, "- Level (%s): %s\n", rec.Aggregator, interval(&rec.Level))
	if rec.Delta != nil {
		fmt.Fprintf(b, "- Paired delta: %s\n", interval(rec.Delta))
	}
	if rec.Difference != nil {
		fmt.Fprintf(b, "- Difference: %s\n", interval(rec.Difference))
	}
	if t := rec.Test; t != nil && t.Defined {
		fmt.Fprintf(b, "- Permutation test: p = %.4f over %d shuffles, direction %s", t.PValue, t.Shuffles, t.Direction)
		if t.EffectDefined {
			fmt.Fprintf(b, ", d = %.3f", t.EffectSize)
		}
		if t.WelchDefined {
			fmt.Fprintf(b, " (Welch p = %.4f)", t.WelchPValue)
		}
		b.WriteString("\n")
	}
	if alt := rec.Alternative; alt != nil {
		fmt.Fprintf(b, "- Folds (%d): %s mean %.3f [%.3f, %.3f], %s mean %.3f [%.3f, %.3f]; stable %t, leader %q\n",
			alt.FoldCount,
			alt.LabelA, alt.ReportA.Mean, alt.ReportA.Min, alt.ReportA.Max,
			alt.LabelB, alt.ReportB.Mean, alt.ReportB.Min, alt.ReportB.Max,
			alt.Judgment.Stable, alt.Judgment.Leader)
	}
	if c := rec.Correlation; c != nil && c.Defined {
		fmt.Fprintf(b, "- Volume correlation: rho = %.3f, %s\n", c.Rho, interval(&c.Interval))
	}
	if s := rec.Sanity; s.Total > 0 {
		fmt.Fprintf(b, "- Sanity: %d of %d games missing", s.Missing, s.Total)
		if len(s.OutlierIndices) > 0 {
			fmt.Fprintf(b, ", outliers at %v", s.OutlierIndices)
		}
		b.WriteString("\n")
	}

	if v := rec.Robustness; v != nil {
		fmt.Fprintf(b, "\n**Robustness**: %d of %d applicable checks passed (needed %d)\n\n",
			v.PassCount, v.ApplicableCount, v.RequiredPassCount)
		b.WriteString("| Check | Result | Ratio | Detail |\n|---|---|---|---|\n")
		for _, c := range v.Checks {
			result := "n/a"
			if c.Applicable {
				result = gate(&c.Passed)
			}
			fmt.Fprintf(b, "| %s | %s | %.3f | %s |\n", c.Name, result, c.Ratio, escape(c.Detail))
		}
	}

	if f := rec.Fairness; f != nil {
		fmt.Fprintf(b, "\n**Group shares** (flag at %.1f pp, last %d games)\n\n", f.ThresholdPP, f.RecentGames)
		b.WriteString("| Group | Pre | Post | Delta (pp) | Recent delta (pp) | Flagged |\n|---|---|---|---|---|---|\n")
		for _, g := range f.Groups {
			flagged := ""
			if g.Flagged {
				flagged = "yes"
			}
			fmt.Fprintf(b, "| %s | %.1f%% | %.1f%% | %+.1f | %+.1f | %s |\n",
				escape(g.Group), 100*g.PreShare, 100*g.PostShare, g.DeltaPP, g.RecentDeltaPP, flagged)
		}
	}

	if len(rec.Issues) > 0 {
		b.WriteString("\n**Issues**\n\n")
		for _, issue := range rec.Issues {
			fmt.Fprintf(b, "- `%s` %s: %s\n", issue.Code, issue.Stage, issue.Message)
		}
	}
}

func interval(ci *stats.ConfidenceInterval) string {
	if ci == nil {
		return "-"
	}
	if !ci.Defined {
		return "undefined"
	}
	return fmt.Sprintf("%.3f [%.3f, %.3f]", ci.PointEstimate, ci.LowerBound, ci.UpperBound)
}

func pValue(t *stats.TestResult) string {
	if t == nil || !t.Defined {
		return "-"
	}
	return fmt.Sprintf("%.4f", t.PValue)
}

func robust(v *verdict.RobustnessVerdict) string {
	if v == nil {
		return "-"
	}
	if v.Insufficient {
		return fmt.Sprintf("insufficient (%d applicable/%d)", v.ApplicableCount, v.RequiredPassCount)
	}
	return fmt.Sprintf("%s (%d/%d)", gate(&v.Verdict), v.PassCount, v.RequiredPassCount)
}

func gate(g *bool) string {
	switch {
	case g == nil:
		return "-"
	case *g:
		return "pass"
	default:
		return "fail"
	}
}

// escape keeps a detail string inside one table cell
func escape(s string) string {
	return strings.NewReplacer("|", "\\|", "\n", " ").Replace(s)
}
