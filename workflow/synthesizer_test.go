package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bayonhq/coagent/types"
)

func terminalRun(def *Definition) *Run {
	run := NewRun("run-1", def, "user-1", "Austin brand push", types.Payload{"market": "austin"})
	now := time.Now()
	for _, s := range run.Steps {
		s.Status = StepSucceeded
		s.Attempts = 1
		s.StartedAt = &now
		s.EndedAt = &now
		s.Output = types.Payload{"step": s.ID}
	}
	return run
}

func TestSynthesize_AllSucceeded(t *testing.T) {
	def := brandBuilding()
	run := terminalRun(def)

	result := Synthesize(def, run)

	require.Len(t, result.Outputs, 3)
	assert.Equal(t, types.Payload{"step": "brand-audit"}, result.Outputs["brand-audit"])
	assert.Empty(t, result.Incomplete)
	assert.Contains(t, result.Summary, "all 3 steps completed")
	assert.Contains(t, result.Summary, "brand-audit (via research)")
}

func TestSynthesize_FailedAndSkipped(t *testing.T) {
	def := contentCampaign()
	run := terminalRun(def)

	research, _ := run.Step("research")
	research.Status = StepFailed
	research.Attempts = 3
	research.Output = nil
	research.LastError = &StepError{Kind: types.ErrKindTimeout, Message: "news service unreachable"}

	for _, id := range []string{"blog-post", "social-media", "email-campaign"} {
		step, _ := run.Step(id)
		step.Status = StepSkipped
		step.Output = nil
		step.SkipReason = "dependency failed: research"
	}

	result := Synthesize(def, run)

	assert.Empty(t, result.Outputs)
	require.Len(t, result.Incomplete, 4)
	assert.Equal(t, StepIssue{ID: "research", Status: StepFailed, Reason: "timeout: news service unreachable"}, result.Incomplete[0])
	assert.Contains(t, result.Summary, "no steps completed")
	assert.Contains(t, result.Summary, "research failed after 3 attempt(s)")
	assert.Contains(t, result.Summary, `social-media skipped (dependency failed: research)`)
}

func TestSynthesize_Deterministic(t *testing.T) {
	def := listingOptimization()
	run := terminalRun(def)
	photo, _ := run.Step("photo-analysis")
	photo.Status = StepFailed
	photo.Output = nil
	photo.LastError = &StepError{Kind: types.ErrKindAgentFailure, Message: "vision model error"}

	a := Synthesize(def, run)
	b := Synthesize(def, run)
	assert.Equal(t, a, b)

	// Outputs are keyed by step id and detached from the step records.
	a.Outputs["comparables"]["step"] = "mutated"
	comparables, _ := run.Step("comparables")
	assert.Equal(t, "comparables", comparables.Output["step"])
}

func TestSynthesize_MultiAttemptNoted(t *testing.T) {
	def := investmentAnalysis()
	run := terminalRun(def)
	market, _ := run.Step("market-update")
	market.Attempts = 3

	result := Synthesize(def, run)
	assert.Contains(t, result.Summary, "market-update (via market-analysis, 3 attempts)")
}

func TestRunCloneIsolation(t *testing.T) {
	def := brandBuilding()
	run := terminalRun(def)
	run.Result = Synthesize(def, run)

	snap := run.Clone()
	snap.Steps[0].Status = StepFailed
	snap.Params["market"] = "dallas"
	snap.Result.Outputs["brand-audit"]["step"] = "mutated"

	assert.Equal(t, StepSucceeded, run.Steps[0].Status)
	assert.Equal(t, "austin", run.Params["market"])
	assert.Equal(t, "brand-audit", run.Result.Outputs["brand-audit"]["step"])
}

func TestRunHelpers(t *testing.T) {
	def := brandBuilding()
	run := NewRun("run-2", def, "user-1", "n", nil)

	assert.Equal(t, RunPending, run.Status)
	assert.False(t, run.AllStepsTerminal())

	statuses := run.StepStatuses()
	assert.Len(t, statuses, 3)
	assert.Equal(t, StepPending, statuses["brand-audit"])

	for _, s := range run.Steps {
		s.Status = StepSkipped
	}
	assert.True(t, run.AllStepsTerminal())

	_, ok := run.Step("nope")
	assert.False(t, ok)
}
