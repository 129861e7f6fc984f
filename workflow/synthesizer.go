package workflow

import (
	"fmt"
	"strings"

	"github.com/bayonhq/coagent/types"
)

// Synthesize builds the immutable Result for a run whose steps are all
// terminal: succeeded outputs keyed by step id, the issues of every other
// step, and a summary walking steps in definition order. It is deterministic
// for a given step-run set and performs no external calls.
func Synthesize(def *Definition, run *Run) *Result {
	result := &Result{
		Outputs: make(map[string]types.Payload),
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Workflow %s (%s): ", run.Name, run.Type)

	var produced, issues []string
	for _, tpl := range def.Steps {
		step, ok := run.Step(tpl.ID)
		if !ok {
			continue
		}
		switch step.Status {
		case StepSucceeded:
			result.Outputs[step.ID] = step.Output.Clone()
			produced = append(produced, describeSuccess(step))
		case StepFailed:
			reason := "unknown error"
			if step.LastError != nil {
				reason = fmt.Sprintf("%s: %s", step.LastError.Kind, step.LastError.Message)
			}
			result.Incomplete = append(result.Incomplete, StepIssue{ID: step.ID, Status: step.Status, Reason: reason})
			issues = append(issues, fmt.Sprintf("%s failed after %d attempt(s) (%s)", step.ID, step.Attempts, reason))
		case StepSkipped:
			result.Incomplete = append(result.Incomplete, StepIssue{ID: step.ID, Status: step.Status, Reason: step.SkipReason})
			issues = append(issues, fmt.Sprintf("%s skipped (%s)", step.ID, step.SkipReason))
		}
	}

	switch {
	case len(issues) == 0:
		fmt.Fprintf(&b, "all %d steps completed. ", len(produced))
	case len(produced) == 0:
		fmt.Fprintf(&b, "no steps completed. ")
	default:
		fmt.Fprintf(&b, "%d of %d steps completed. ", len(produced), len(def.Steps))
	}

	if len(produced) > 0 {
		fmt.Fprintf(&b, "Produced: %s.", strings.Join(produced, "; "))
	}
	if len(issues) > 0 {
		if len(produced) > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "Issues: %s.", strings.Join(issues, "; "))
	}

	result.Summary = b.String()
	return result
}

// describeSuccess renders one succeeded step for the summary line.
func describeSuccess(step *StepRun) string {
	if step.Attempts > 1 {
		return fmt.Sprintf("%s (via %s, %d attempts)", step.ID, step.Agent, step.Attempts)
	}
	return fmt.Sprintf("%s (via %s)", step.ID, step.Agent)
}
