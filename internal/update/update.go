package update

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/danielpatrickdp/taste-genome/internal/signals"
	"github.com/danielpatrickdp/taste-genome/internal/state"
)

// #region replay
// Replay folds a profile's full signal history into a distribution. It is a
// pure function: the same archetype order and signal sequence always produce
// bit-identical output. Recency is measured from the last signal's timestamp,
// never from the wall clock.
func Replay(archetypes Archetypes, history []signals.Signal, config Config) Result {
	order := archetypes.Designations()
	scores := make(map[string]float64, len(order))
	for _, d := range order {
		scores[d] = config.Prior
	}
	keywords := state.KeywordWeights{Tone: map[string]float64{}, Hooks: map[string]float64{}}

	var metrics Metrics
	var asOf time.Time
	var lastSeq int64
	if n := len(history); n > 0 {
		asOf = history[n-1].CreatedAt
		lastSeq = history[n-1].Seq
	}

	for _, sig := range history {
		metrics.SignalsReplayed++
		decay := Decay(asOf.Sub(sig.CreatedAt), config)
		contribution := sig.Weight * decay

		for _, h := range sig.Hints {
			if _, ok := scores[h]; !ok {
				continue
			}
			scores[h] += contribution
			metrics.HintsApplied++
		}

		switch p := sig.Payload.(type) {
		case signals.PreferenceListPayload:
			if ema(keywords.Tone, p.ToneTokens(), contribution, config.KeywordAlpha) {
				metrics.KeywordUpdates++
			}
			if ema(keywords.Hooks, p.HookTokens(), contribution, config.KeywordAlpha) {
				metrics.KeywordUpdates++
			}
		case signals.CalibrationPayload:
			nudge(keywords.Tone, signals.NormalizeTags(p.ToneTags), config.KeywordAlpha*contribution)
			nudge(keywords.Hooks, signals.NormalizeTags(p.HookTags), config.KeywordAlpha*contribution)
		}
	}

	dist, uniform := Normalize(order, scores)
	metrics.Uniform = uniform
	primary, secondary := topTwo(order, dist)

	return Result{
		Scores:       scores,
		Distribution: dist,
		Primary:      primary,
		Secondary:    secondary,
		Confidence:   Confidence(dist[primary], dist[secondary]),
		Keywords:     keywords,
		SignalSeq:    lastSeq,
		SignalCount:  len(history),
		Metrics:      metrics,
	}
}
// #endregion replay

// #region decay
// Decay is the recency multiplier for a signal of the given age.
// Negative ages count as fresh.
func Decay(age time.Duration, config Config) float64 {
	if age <= 0 || config.HalfLife <= 0 {
		return 1
	}
	d := math.Pow(0.5, float64(age)/float64(config.HalfLife))
	if d < config.DecayFloor {
		return config.DecayFloor
	}
	return d
}
// #endregion decay

// #region normalize
// Normalize clips scores at zero and scales them to sum to 1, iterating in
// catalog order. Falls back to uniform when no score is positive.
func Normalize(order []string, scores map[string]float64) (map[string]float64, bool) {
	dist := make(map[string]float64, len(order))
	var sum float64
	for _, d := range order {
		sum += math.Max(0, scores[d])
	}
	if sum <= 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		u := 1 / float64(len(order))
		for _, d := range order {
			dist[d] = u
		}
		return dist, true
	}
	for _, d := range order {
		dist[d] = math.Max(0, scores[d]) / sum
	}
	return dist, false
}

// topTwo returns argmax and runner-up; the earlier catalog entry wins ties.
func topTwo(order []string, dist map[string]float64) (string, string) {
	primary, secondary := "", ""
	for _, d := range order {
		switch {
		case primary == "" || dist[d] > dist[primary]:
			secondary = primary
			primary = d
		case secondary == "" || dist[d] > dist[secondary]:
			secondary = d
		}
	}
	return primary, secondary
}

// Confidence is the relative margin between the top two probabilities, clamped to [0,1].
func Confidence(p1, p2 float64) float64 {
	if p1 <= 0 {
		return 0
	}
	c := (p1 - p2) / p1
	return math.Max(0, math.Min(1, c))
}
// #endregion normalize

// #region keywords
// ema moves every weight in m toward its observation: 1 scaled by x for the
// given tokens, 0 for every other key. Returns false when there were no tokens.
func ema(m map[string]float64, tokens []string, x, alpha float64) bool {
	if len(tokens) == 0 {
		return false
	}
	hit := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		hit[t] = true
		if _, ok := m[t]; !ok {
			m[t] = 0
		}
	}
	for k, w := range m {
		obs := 0.0
		if hit[k] {
			obs = x
		}
		m[k] = (1-alpha)*w + alpha*obs
	}
	return true
}

func nudge(m map[string]float64, tokens []string, delta float64) {
	for _, t := range tokens {
		m[t] += delta
	}
}
// #endregion keywords

// #region next-version
// NextVersion wraps a replay result as a new genome version on top of parent.
// parent is nil for a profile's first version. The confident streak only
// advances when new signals were folded in, so re-running an unchanged
// replay is idempotent.
func NextVersion(parent *state.Genome, profileID string, res Result, config Config, now time.Time) state.Genome {
	g := state.Genome{
		VersionID:    uuid.New().String(),
		ProfileID:    profileID,
		Distribution: res.Distribution,
		Primary:      res.Primary,
		Secondary:    res.Secondary,
		Confidence:   res.Confidence,
		Keywords:     res.Keywords,
		SignalSeq:    res.SignalSeq,
		SignalCount:  res.SignalCount,
		RecomputedAt: now.UTC(),
	}
	confident := res.Confidence >= config.ConfidentThreshold
	switch {
	case parent == nil:
		if confident && res.SignalCount > 0 {
			g.ConfidentStreak = 1
		}
	case parent.SignalSeq == res.SignalSeq:
		g.ParentID = parent.VersionID
		g.ConfidentStreak = parent.ConfidentStreak
	default:
		g.ParentID = parent.VersionID
		if confident {
			g.ConfidentStreak = parent.ConfidentStreak + 1
		}
	}
	return g
}
// #endregion next-version

// #region uniform
// Uniform is the genome a profile has before anything was recomputed.
func Uniform(archetypes Archetypes, profileID string) state.Genome {
	order := archetypes.Designations()
	scores := make(map[string]float64, len(order))
	dist, _ := Normalize(order, scores)
	primary, secondary := topTwo(order, dist)
	return state.Genome{
		ProfileID:    profileID,
		Distribution: dist,
		Primary:      primary,
		Secondary:    secondary,
		Keywords:     state.KeywordWeights{Tone: map[string]float64{}, Hooks: map[string]float64{}},
	}
}
// #endregion uniform
