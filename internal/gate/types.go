package gate

import (
	"errors"
	"fmt"

	"github.com/danielpatrickdp/taste-genome/internal/state"
)

// ErrNotOverridable is returned when an override targets an approved or already overridden report.
var ErrNotOverridable = errors.New("gating status cannot be overridden")

// #region gate-config
// GateConfig holds the score thresholds for gate decisions.
type GateConfig struct {
	BlockThreshold int // scores below this are blocked
	WarnThreshold  int // scores below this are warned; at or above are approved
}

// DefaultGateConfig returns the documented thresholds.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		BlockThreshold: 40,
		WarnThreshold:  60,
	}
}

// Validate rejects thresholds that would make gating bands overlap.
func (c GateConfig) Validate() error {
	if c.BlockThreshold < 0 || c.WarnThreshold > 100 {
		return fmt.Errorf("gate thresholds must lie in [0,100], got block=%d warn=%d", c.BlockThreshold, c.WarnThreshold)
	}
	if c.BlockThreshold > c.WarnThreshold {
		return fmt.Errorf("block threshold %d above warn threshold %d", c.BlockThreshold, c.WarnThreshold)
	}
	return nil
}

// #endregion gate-config

// #region gate-decision
// GateDecision is the output of the gate evaluation.
type GateDecision struct {
	Status state.GatingStatus
	Reason string
	Score  int
}

// Gating converts the decision to the form stored on a report.
func (d GateDecision) Gating() state.Gating {
	return state.Gating{Status: d.Status, Reason: d.Reason}
}

// #endregion gate-decision
