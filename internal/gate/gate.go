package gate

import (
	"fmt"

	"github.com/danielpatrickdp/taste-genome/internal/state"
)

// #region gate
// Gate turns a conviction score into a publish decision.
type Gate struct {
	config GateConfig
}

// NewGate creates a gate with the given configuration.
func NewGate(config GateConfig) *Gate {
	return &Gate{config: config}
}

// Config returns the thresholds this gate applies.
func (g *Gate) Config() GateConfig {
	return g.config
}

// Evaluate maps a 0-100 score onto blocked, warning or approved.
func (g *Gate) Evaluate(score int) GateDecision {
	switch {
	case score < g.config.BlockThreshold:
		return GateDecision{
			Status: state.GatingBlocked,
			Reason: fmt.Sprintf("score %d below block threshold %d", score, g.config.BlockThreshold),
			Score:  score,
		}
	case score < g.config.WarnThreshold:
		return GateDecision{
			Status: state.GatingWarning,
			Reason: fmt.Sprintf("score %d below approval threshold %d", score, g.config.WarnThreshold),
			Score:  score,
		}
	default:
		return GateDecision{
			Status: state.GatingApproved,
			Reason: fmt.Sprintf("score %d meets approval threshold %d", score, g.config.WarnThreshold),
			Score:  score,
		}
	}
}

// #endregion gate

// #region override
// Override records a creator force-publishing a blocked or warned item.
// The original status is kept so the outcome can be validated later.
func (g *Gate) Override(current state.Gating, reason string) (state.Gating, error) {
	if current.Status != state.GatingBlocked && current.Status != state.GatingWarning {
		return current, fmt.Errorf("override %s: %w", current.Status, ErrNotOverridable)
	}
	if reason == "" {
		reason = "creator override"
	}
	return state.Gating{
		Status:         state.GatingOverride,
		Reason:         reason,
		OriginalStatus: current.Status,
	}, nil
}

// OverrideSucceeded reports whether an overridden post earned an approvable audience score.
func (g *Gate) OverrideSucceeded(actual float64) bool {
	return actual >= float64(g.config.WarnThreshold)
}

// #endregion override
