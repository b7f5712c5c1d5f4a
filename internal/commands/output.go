package edgeprompt

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/fatih/color"
	"github.com/mwiater/edgeprompt/internal/constraint"
	"github.com/mwiater/edgeprompt/internal/evaluation"
	"github.com/mwiater/edgeprompt/internal/results"
	"github.com/mwiater/edgeprompt/internal/util"
)

const feedbackWidth = 88

var (
	headerColor = color.New(color.FgCyan, color.Bold).SprintFunc()
	passColor   = color.New(color.FgGreen).SprintFunc()
	failColor   = color.New(color.FgRed).SprintFunc()
	dimColor    = color.New(color.Faint).SprintFunc()
)

var runNames = map[int]string{
	results.RunCloudDirect:     "cloud direct",
	results.RunCloudStructured: "cloud structured",
	results.RunEdgeDirect:      "edge direct",
	results.RunEdgeStructured:  "edge structured",
}

func verdict(ok bool) string {
	if ok {
		return passColor("PASS")
	}
	return failColor("FAIL")
}

func optionalScore(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *v)
}

// printSummary renders a suite summary as a per-run table followed by the
// pairwise comparison counts.
func printSummary(out io.Writer, s results.Summary) {
	fmt.Fprintf(out, "%s %s\n", headerColor("Suite:"), s.SuiteID)
	fmt.Fprintf(out, "Records: %d  Combinations: %d\n\n", s.TotalRecords, s.TotalCombinations)

	fmt.Fprintf(out, "%-22s %9s %6s %6s %11s %8s %8s %10s %8s\n",
		"Run", "Completed", "Failed", "Valid", "Constraints", "Score", "Quality", "Mean ms", "Words")
	for id := results.RunCloudDirect; id <= results.RunEdgeStructured; id++ {
		st, ok := s.Runs[results.RunKey(id)]
		if !ok {
			continue
		}
		label := fmt.Sprintf("%s (%s)", results.RunKey(id), runNames[id])
		fmt.Fprintf(out, "%-22s %9d %6d %6d %11d %8s %8s %10.0f %8.1f\n",
			label, st.Completed, st.Failed, st.Valid, st.ConstraintsPassed,
			optionalScore(st.MeanScore), optionalScore(st.MeanQuality), st.MeanDurationMs, st.MeanWordCount)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, headerColor("Both runs completed:"))
	fmt.Fprintf(out, "  run 4 vs run 3: %d\n", s.Comparison.Run4VsRun3Completed)
	fmt.Fprintf(out, "  run 3 vs run 1: %d\n", s.Comparison.Run3VsRun1Completed)
	fmt.Fprintf(out, "  run 4 vs run 1: %d\n", s.Comparison.Run4VsRun1Completed)

	if len(s.TopicViolations) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, failColor("Runs that did not share one teacher request:"))
		for _, v := range s.TopicViolations {
			fmt.Fprintf(out, "  - %s\n", v)
		}
	}
}

// printFailures lists failed runs with their errors.
func printFailures(out io.Writer, records []results.RunRecord) {
	var failed []results.RunRecord
	for _, r := range records {
		if !r.Completed() {
			failed = append(failed, r)
		}
	}
	if len(failed) == 0 {
		return
	}
	slices.SortFunc(failed, func(a, b results.RunRecord) int { return strings.Compare(a.Key(), b.Key()) })
	fmt.Fprintln(out)
	fmt.Fprintln(out, failColor(fmt.Sprintf("Failed runs (%d):", len(failed))))
	for _, r := range failed {
		fmt.Fprintf(out, "  %s: %s\n", r.Key(), util.TruncateRunes(r.Error, 160))
	}
}

// printValidation renders one validation verdict with its stage breakdown.
func printValidation(out io.Writer, res evaluation.ValidationResult) {
	fmt.Fprintf(out, "%s %s  score %.2f\n", headerColor("Validation:"), verdict(res.IsValid), res.Score)
	for _, st := range res.StageResults {
		fmt.Fprintf(out, "  %-20s %s  %.2f  %s\n", st.StageID, verdict(st.Passed), st.Score, dimColor(st.Strategy))
		if st.Feedback != "" {
			fmt.Fprintln(out, util.Indent(util.WrapToWidth(st.Feedback, feedbackWidth), "      "))
		}
	}
	if res.Aborted {
		fmt.Fprintln(out, failColor("  sequence aborted"))
	}
}

// printConstraints renders a constraint check.
func printConstraints(out io.Writer, res constraint.Result) {
	fmt.Fprintf(out, "%s %s  (%d words)\n", headerColor("Constraints:"), verdict(res.Passed), res.WordCount)
	for _, v := range res.Violations {
		fmt.Fprintf(out, "  - [%s] %s\n", v.Rule, v.Message)
	}
}
