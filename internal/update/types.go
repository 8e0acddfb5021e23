package update

import (
	"time"

	"github.com/danielpatrickdp/taste-genome/internal/state"
)

// #region archetypes
// Archetypes is the catalog view the replay needs. Designations must be in
// catalog order; ties are broken by that order.
type Archetypes interface {
	Designations() []string
}
// #endregion archetypes

// #region update-config
// Config holds prior, recency decay and keyword smoothing parameters.
type Config struct {
	Prior              float64       // starting score for every archetype (default 1.0)
	HalfLife           time.Duration // recency half-life (default 21 days)
	DecayFloor         float64       // decay never drops below this (default 0.05)
	KeywordAlpha       float64       // EMA smoothing for keyword weights (default 0.3)
	ConfidentThreshold float64       // confidence that counts toward the quiz streak (default 0.8)
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Prior:              1.0,
		HalfLife:           21 * 24 * time.Hour,
		DecayFloor:         0.05,
		KeywordAlpha:       0.3,
		ConfidentThreshold: 0.8,
	}
}
// #endregion update-config

// #region metrics
// Metrics captures telemetry from a replay.
type Metrics struct {
	SignalsReplayed int
	HintsApplied    int
	KeywordUpdates  int
	Uniform         bool // every score was non-positive and the uniform fallback was used
}
// #endregion metrics

// #region update-result
// Result bundles everything returned by Replay.
type Result struct {
	Scores       map[string]float64 // raw scores before normalization
	Distribution map[string]float64
	Primary      string
	Secondary    string
	Confidence   float64
	Keywords     state.KeywordWeights
	SignalSeq    int64
	SignalCount  int
	Metrics      Metrics
}
// #endregion update-result
