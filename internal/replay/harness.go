package replay

import (
	"github.com/danielpatrickdp/taste-genome/internal/signals"
	"github.com/danielpatrickdp/taste-genome/internal/state"
	"github.com/danielpatrickdp/taste-genome/internal/update"
)

// #region types
// Actions a single signal can have on the genome.
const (
	ActionShift     = "shift"     // primary archetype changed
	ActionReinforce = "reinforce" // same primary, confidence held or rose
	ActionWeaken    = "weaken"    // same primary, confidence fell
	ActionNoOp      = "no_op"     // nothing in the signal applied
)

// StepResult is the genome after folding one more signal of the log.
type StepResult struct {
	SignalID        string
	Seq             int64
	Type            signals.Type
	Action          string
	Reason          string
	Primary         string
	Secondary       string
	Confidence      float64
	ConfidentStreak int
	Distribution    map[string]float64
	Metrics         update.Metrics
}

// Summary provides aggregate stats from a replay run.
type Summary struct {
	TotalSignals   int
	Shifts         int
	Reinforcements int
	Weakenings     int
	NoOps          int
	ByType         map[signals.Type]int
	Final          state.Genome
}
// #endregion types

// #region replay
// Replay folds the log one signal at a time, exactly as the orchestrator
// recomputes after every append, and reports what each signal did. It runs
// entirely in memory; the returned genome is the one the last recompute would
// commit.
func Replay(archetypes update.Archetypes, profileID string, history []signals.Signal, config update.Config) ([]StepResult, state.Genome) {
	results := make([]StepResult, 0, len(history))
	current := update.Uniform(archetypes, profileID)
	var parent *state.Genome

	for i, sig := range history {
		res := update.Replay(archetypes, history[:i+1], config)
		next := update.NextVersion(parent, profileID, res, config, sig.CreatedAt)

		action, reason := classify(current, next, sig, res.Metrics, prevMetrics(results))
		results = append(results, StepResult{
			SignalID:        sig.ID,
			Seq:             sig.Seq,
			Type:            sig.Type,
			Action:          action,
			Reason:          reason,
			Primary:         next.Primary,
			Secondary:       next.Secondary,
			Confidence:      next.Confidence,
			ConfidentStreak: next.ConfidentStreak,
			Distribution:    next.Distribution,
			Metrics:         res.Metrics,
		})
		current = next
		parent = &next
	}
	return results, current
}

func prevMetrics(results []StepResult) update.Metrics {
	if len(results) == 0 {
		return update.Metrics{}
	}
	return results[len(results)-1].Metrics
}

func classify(before, after state.Genome, sig signals.Signal, now, prev update.Metrics) (string, string) {
	applied := now.HintsApplied > prev.HintsApplied || now.KeywordUpdates > prev.KeywordUpdates
	switch {
	case sig.Weight == 0 || !applied:
		return ActionNoOp, "no hint or keyword applied"
	case after.Primary != before.Primary:
		return ActionShift, before.Primary + " -> " + after.Primary
	case after.Confidence >= before.Confidence:
		return ActionReinforce, "primary " + after.Primary + " held"
	default:
		return ActionWeaken, "primary " + after.Primary + " contested by " + after.Secondary
	}
}

// Summarize computes aggregate stats from replay results.
func Summarize(results []StepResult, final state.Genome) Summary {
	s := Summary{
		TotalSignals: len(results),
		ByType:       map[signals.Type]int{},
		Final:        final,
	}
	for _, r := range results {
		s.ByType[r.Type]++
		switch r.Action {
		case ActionShift:
			s.Shifts++
		case ActionReinforce:
			s.Reinforcements++
		case ActionWeaken:
			s.Weakenings++
		case ActionNoOp:
			s.NoOps++
		}
	}
	return s
}

// Equal reports whether two replays of the same log produced bit-identical
// distributions at every step.
func Equal(a, b []StepResult) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Primary != b[i].Primary || a[i].Confidence != b[i].Confidence || len(a[i].Distribution) != len(b[i].Distribution) {
			return false
		}
		for d, p := range a[i].Distribution {
			if b[i].Distribution[d] != p {
				return false
			}
		}
	}
	return true
}
// #endregion replay
