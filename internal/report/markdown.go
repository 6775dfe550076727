// Package report renders analysis reports for people: Markdown for terminals and
// pull requests, HTML for the browser.
package report

import (
	"fmt"
	"strings"

	"abtrust/domain/verdict"
	"abtrust/models"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

var confidenceBadge = map[verdict.Confidence]string{
	verdict.ConfidenceHigh:   "🟢",
	verdict.ConfidenceMedium: "🟡",
	verdict.ConfidenceLow:    "🔴",
}

// Markdown renders the report as a Markdown document
func Markdown(r *models.AnalysisReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Experiment report: %s / %s\n\n", r.Experiment, r.Layer)
	fmt.Fprintf(&b, "Run `%s` at %s\n\n", r.RunID, r.CreatedAt.Format("2006-01-02 15:04 MST"))

	confidence := r.Confidence()
	fmt.Fprintf(&b, "## Verdict\n\n%s **%s confidence**, trust score **%d/100**: %s.\n\n",
		confidenceBadge[confidence], confidence, r.Score(), confidence.Action())
	if r.AuditError != "" {
		fmt.Fprintf(&b, "> Audit unavailable: %s\n\n", r.AuditError)
	}

	b.WriteString("## Counts\n\n")
	b.WriteString("| Variant | Exposed | Converted | Rate |\n|---|---:|---:|---:|\n")
	writeCountsRow(&b, "A", r.Counts.A.N, r.Counts.A.Successes)
	writeCountsRow(&b, "B", r.Counts.B.N, r.Counts.B.Successes)
	b.WriteString("\n")

	if r.Audit != nil {
		b.WriteString("## Checks\n\n| Check | Result | Weight | Detail |\n|---|---|---:|---|\n")
		for _, c := range r.Audit.Checks {
			result := "❌ fail"
			if c.Passed {
				result = "✅ pass"
			}
			fmt.Fprintf(&b, "| %s | %s | %d | %s |\n", c.Name, result, c.Weight, escapeCell(c.Explanation))
		}
		b.WriteString("\n")
	}

	b.WriteString("## Plan\n\n")
	if p := r.Plan; p != nil {
		fmt.Fprintf(&b, "- Baseline %.2f%%, target lift %+.1f%% (target rate %.2f%%)\n",
			p.BaselineRate*100, p.MDETarget*100, p.TargetRate*100)
		fmt.Fprintf(&b, "- Cohen's h %.4f at alpha %.2f and power %.0f%%\n", p.EffectSize, p.Alpha, p.PowerTarget*100)
		fmt.Fprintf(&b, "- Required sample **%d** (%.0f per group), about **%d days** at %d per day\n",
			p.RequiredN, p.RequiredPerGroup, p.RequiredDays, p.DailyVolume)
		if r.PowerAtLiveN != nil {
			fmt.Fprintf(&b, "- Power at the current %d subjects: %.1f%%\n", r.Counts.Total(), *r.PowerAtLiveN*100)
		}
	} else {
		fmt.Fprintf(&b, "Unavailable: %s\n", r.PlanError)
	}
	b.WriteString("\n")

	b.WriteString("## Frequentist test\n\n")
	if t := r.Test; t != nil {
		fmt.Fprintf(&b, "- z = %.4f, p = %.4f\n", t.ZStatistic, t.PValue)
		if t.LiftDefined {
			fmt.Fprintf(&b, "- Observed lift %+.2f%%\n", t.ObservedLift*100)
		} else {
			b.WriteString("- Observed lift undefined (control rate is zero)\n")
		}
	} else {
		fmt.Fprintf(&b, "Unavailable: %s\n", r.TestError)
	}
	b.WriteString("\n")

	b.WriteString("## Bayesian comparison\n\n")
	if by := r.Bayes; by != nil {
		fmt.Fprintf(&b, "- P(B > A) = %.1f%% over %d draws\n", by.ProbBBetter*100, by.Samples)
		if by.Decision != "" {
			fmt.Fprintf(&b, "- Decision at %.0f%%: **%s**\n", by.DecisionThreshold*100, by.Decision.Summary())
		}
		fmt.Fprintf(&b, "- Expected loss choosing B %.5f, choosing A %.5f\n", by.ExpectedLossChoosingB, by.ExpectedLossChoosingA)
		fmt.Fprintf(&b, "- 95%% credible interval for lift [%+.2f%%, %+.2f%%]\n", by.LiftInterval.Lower*100, by.LiftInterval.Upper*100)
	} else {
		fmt.Fprintf(&b, "Unavailable: %s\n", r.BayesError)
	}

	return b.String()
}

// HTML renders the report's Markdown as an HTML fragment
func HTML(r *models.AnalysisReport) []byte {
	return MarkdownToHTML([]byte(Markdown(r)))
}

// MarkdownToHTML converts Markdown with tables to HTML
func MarkdownToHTML(md []byte) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	doc := p.Parse(md)

	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags | html.HrefTargetBlank})
	return markdown.Render(doc, renderer)
}

func writeCountsRow(b *strings.Builder, variant string, n, successes int) {
	rate := "n/a"
	if n > 0 {
		rate = fmt.Sprintf("%.2f%%", float64(successes)/float64(n)*100)
	}
	fmt.Fprintf(b, "| %s | %d | %d | %s |\n", variant, n, successes, rate)
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
