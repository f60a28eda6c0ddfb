package judge

import (
	"fmt"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════════
// COMPARISON REPORT
// ═══════════════════════════════════════════════════════════════════════════════

// CompareReport renders a human-readable comparison of several evaluations:
// average, best and worst overall, and a per-trace aspect breakdown. Purely
// presentational.
func CompareReport(evals []*Evaluation) string {
	if len(evals) == 0 {
		return "No evaluations to compare."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Evaluation comparison (%d traces)\n\n", len(evals))

	sum := 0.0
	best, worst := evals[0], evals[0]
	for _, e := range evals {
		sum += e.Overall
		if e.Overall > best.Overall {
			best = e
		}
		if e.Overall < worst.Overall {
			worst = e
		}
	}
	fmt.Fprintf(&b, "Average overall: %.2f\n", sum/float64(len(evals)))
	fmt.Fprintf(&b, "Best:  %.2f (trace %s)\n", best.Overall, best.TraceID)
	fmt.Fprintf(&b, "Worst: %.2f (trace %s)\n\n", worst.Overall, worst.TraceID)

	for i, e := range evals {
		fmt.Fprintf(&b, "Trace %d (%s): overall %.2f\n", i+1, e.TraceID, e.Overall)
		for _, aspect := range aspectOrder {
			if s, ok := e.Aspects[aspect]; ok {
				fmt.Fprintf(&b, "  %-20s %.1f  %s\n", aspect, s.Score, s.Explanation)
			}
		}
		if e.GeneralFeedback != "" {
			fmt.Fprintf(&b, "  feedback: %s\n", e.GeneralFeedback)
		}
		b.WriteString("\n")
	}

	return strings.TrimRight(b.String(), "\n")
}
