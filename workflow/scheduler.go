package workflow

import "fmt"

// Skip pairs a step id with the reason it can no longer run.
type Skip struct {
	StepID string
	Reason string
}

// Eligible returns the ids of every pending step whose dependencies have all
// succeeded — the next wavefront. All eligible steps are returned together
// with no ordering preference; the caller runs them concurrently.
//
// Eligible is a pure function over the status snapshot and performs no I/O.
func Eligible(def *Definition, statuses map[string]StepStatus) []string {
	var out []string
	for _, tpl := range def.Steps {
		if statuses[tpl.ID] != StepPending {
			continue
		}
		ready := true
		for _, dep := range tpl.DependsOn {
			if statuses[dep] != StepSucceeded {
				ready = false
				break
			}
		}
		if ready {
			out = append(out, tpl.ID)
		}
	}
	return out
}

// Skippable returns every pending step with at least one failed or skipped
// dependency, paired with the reason. Applying the skips and re-evaluating
// propagates failure through the graph deterministically instead of leaving
// dependents perpetually pending.
func Skippable(def *Definition, statuses map[string]StepStatus) []Skip {
	var out []Skip
	for _, tpl := range def.Steps {
		if statuses[tpl.ID] != StepPending {
			continue
		}
		for _, dep := range tpl.DependsOn {
			switch statuses[dep] {
			case StepFailed:
				out = append(out, Skip{StepID: tpl.ID, Reason: fmt.Sprintf("dependency failed: %s", dep)})
			case StepSkipped:
				out = append(out, Skip{StepID: tpl.ID, Reason: fmt.Sprintf("dependency skipped: %s", dep)})
			default:
				continue
			}
			break
		}
	}
	return out
}
