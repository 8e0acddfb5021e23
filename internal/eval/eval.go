package eval

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/danielpatrickdp/taste-genome/internal/gate"
	"github.com/danielpatrickdp/taste-genome/internal/signals"
	"github.com/danielpatrickdp/taste-genome/internal/state"
)

// ErrNoData is returned when a fetch carries no usable raw value on any platform.
var ErrNoData = errors.New("no engagement data")

// #region eval-harness
// EvalHarness scores audience depth and validates predictions against it.
type EvalHarness struct {
	config EvalConfig
}

// NewEvalHarness creates a harness with the given configuration.
func NewEvalHarness(config EvalConfig) *EvalHarness {
	return &EvalHarness{config: config}
}

// Config returns the harness configuration.
func (h *EvalHarness) Config() EvalConfig {
	return h.config
}

// Validate checks that every platform's weights are positive and sum to 1.
func (c EvalConfig) Validate() error {
	if _, ok := c.Platforms[DefaultPlatform]; !ok {
		return fmt.Errorf("eval config: missing %q platform", DefaultPlatform)
	}
	for name, p := range c.Platforms {
		var sum float64
		for signal, spec := range p {
			if spec.Weight < 0 || spec.Baseline <= 0 {
				return fmt.Errorf("eval config: %s.%s needs positive baseline and non-negative weight", name, signal)
			}
			if spec.Scale != ScaleLinear && spec.Scale != ScaleLog {
				return fmt.Errorf("eval config: %s.%s unknown scale %q", name, signal, spec.Scale)
			}
			sum += spec.Weight
		}
		if math.Abs(sum-1) > 1e-6 {
			return fmt.Errorf("eval config: %s weights sum to %.4f, want 1", name, sum)
		}
	}
	if c.CollectingWindow < 0 || c.MinFetchesForCalibration < 1 {
		return fmt.Errorf("eval config: collecting window and minimum fetches must be positive")
	}
	return nil
}

// Normalize maps a raw value onto 0-100 with the baseline at 50.
func Normalize(spec SignalSpec, raw float64) float64 {
	f := func(x float64) float64 { return x }
	if spec.Scale == ScaleLog {
		f = math.Log1p
	}
	base := f(spec.Baseline)
	if base <= 0 || math.IsNaN(raw) || raw < 0 {
		return 0
	}
	return clamp(50 * f(raw) / base)
}

// ScorePlatform scores one platform. Signals without a raw value are dropped and
// the remaining weights renormalized. ok is false when nothing was usable.
func (h *EvalHarness) ScorePlatform(platform string, raw RawMetrics) (score float64, metrics []EvalMetric, ok bool) {
	cfg, known := h.config.Platforms[platform]
	if !known {
		cfg = h.config.Platforms[DefaultPlatform]
	}
	var weighted, weights float64
	for _, name := range SignalNames {
		spec, configured := cfg[name]
		if !configured {
			continue
		}
		value, present := raw[name]
		if !present || math.IsNaN(value) {
			metrics = append(metrics, EvalMetric{Platform: platform, Name: name})
			continue
		}
		n := Normalize(spec, value)
		metrics = append(metrics, EvalMetric{Platform: platform, Name: name, Value: n, Pass: true})
		weighted += spec.Weight * n
		weights += spec.Weight
	}
	if weights == 0 {
		return 0, metrics, false
	}
	return clamp(weighted / weights), metrics, true
}

// Run scores one fetch across platforms. The overall score is the mean of the
// platforms that produced a score.
func (h *EvalHarness) Run(raw map[string]RawMetrics) (EvalResult, error) {
	platforms := make([]string, 0, len(raw))
	for p := range raw {
		platforms = append(platforms, p)
	}
	sort.Strings(platforms)

	result := EvalResult{PlatformBreakdown: map[string]float64{}}
	var total float64
	for _, p := range platforms {
		score, metrics, ok := h.ScorePlatform(p, raw[p])
		result.Metrics = append(result.Metrics, metrics...)
		if !ok {
			continue
		}
		result.PlatformBreakdown[p] = score
		total += score
	}
	if len(result.PlatformBreakdown) == 0 {
		result.Reason = "no platform reported a usable signal"
		return result, ErrNoData
	}
	result.Passed = true
	result.Score = total / float64(len(result.PlatformBreakdown))
	result.Reason = fmt.Sprintf("%d platform(s) scored", len(result.PlatformBreakdown))
	return result, nil
}

// Apply folds a successful fetch into the record and returns the history entry
// to append. The caller's record is not modified.
func (h *EvalHarness) Apply(rec state.AudienceDepthRecord, postID string, res EvalResult, at time.Time) (state.AudienceDepthRecord, state.FetchEntry) {
	out := rec
	out.PostID = postID
	out.Score = res.Score
	out.PlatformBreakdown = res.PlatformBreakdown
	out.Signals = averageSignals(res.Metrics)
	out.UpdatedAt = at.UTC()
	entry := state.FetchEntry{Score: res.Score, FetchedAt: at.UTC()}
	out.FetchHistory = append(append([]state.FetchEntry{}, rec.FetchHistory...), entry)
	return out, entry
}

// Status reports collecting until the post has enough fetches or has aged past
// the collecting window with at least one fetch.
func (h *EvalHarness) Status(publishedAt, now time.Time, rec state.AudienceDepthRecord) Status {
	fetches := len(rec.FetchHistory)
	if fetches == 0 {
		return StatusCollecting
	}
	if fetches >= h.config.MinFetchesForCalibration || now.Sub(publishedAt) >= h.config.CollectingWindow {
		return StatusReady
	}
	return StatusCollecting
}

// InWindow reports whether now falls inside the collecting window after publish.
func (h *EvalHarness) InWindow(publishedAt, now time.Time) bool {
	return now.Sub(publishedAt) < h.config.CollectingWindow
}
// #endregion eval-harness

// #region validation
// Accuracy is 100 minus the error relative to the larger of the two scores
// (never less than 100), so equal scores give 100.
func Accuracy(predicted, actual float64) float64 {
	denom := math.Max(100, math.Max(predicted, actual))
	return clamp(100 - 100*math.Abs(predicted-actual)/denom)
}

// Validate compares a frozen report with the measured score. Overridden reports
// also record whether the override paid off.
func (h *EvalHarness) Validate(report state.ConvictionReport, actual float64, g *gate.Gate, now time.Time) state.ValidationResult {
	v := state.ValidationResult{
		PostID:    report.PostID,
		ProfileID: report.ProfileID,
		Predicted: float64(report.Score),
		Actual:    actual,
		Accuracy:  Accuracy(float64(report.Score), actual),
		CreatedAt: now.UTC(),
	}
	if report.Gating.Status == state.GatingOverride {
		ok := g.OverrideSucceeded(actual)
		v.OverrideWasSuccessful = &ok
	}
	return v
}
// #endregion validation

// #region calibration
// CalibrationWeight is the signed nudge for a prediction error. Errors inside
// the dead band yield ok == false.
func (h *EvalHarness) CalibrationWeight(predicted, actual float64) (float64, bool) {
	diff := actual - predicted
	if math.Abs(diff) < h.config.CalibrationDeadBand {
		return 0, false
	}
	w := h.config.CalibrationGain * diff / 100
	limit := math.Min(h.config.MaxCalibrationWeight, signals.MaxAbsWeight)
	return math.Max(-limit, math.Min(limit, w)), true
}

// CalibrationSignal builds the feedback signal for a validated post, targeting
// the archetype the content was attributed to.
func (h *EvalHarness) CalibrationSignal(report state.ConvictionReport, v state.ValidationResult, at time.Time) (signals.Signal, bool) {
	if report.ContentArchetype == "" {
		return signals.Signal{}, false
	}
	w, ok := h.CalibrationWeight(v.Predicted, v.Actual)
	if !ok {
		return signals.Signal{}, false
	}
	return signals.Signal{
		ProfileID: report.ProfileID,
		Type:      signals.TypeCalibration,
		Topic:     "calibration",
		Payload: signals.CalibrationPayload{
			PostID:       report.PostID,
			ValidationID: v.ID,
			Predicted:    v.Predicted,
			Actual:       v.Actual,
			ToneTags:     report.ToneTags,
			HookTags:     report.HookTags,
		},
		Weight:    w,
		Hints:     []string{report.ContentArchetype},
		CreatedAt: at.UTC(),
	}, true
}
// #endregion calibration

// #region helpers
// averageSignals averages each present signal across platforms.
func averageSignals(metrics []EvalMetric) state.AudienceSignals {
	sums := map[string]float64{}
	counts := map[string]int{}
	for _, m := range metrics {
		if !m.Pass {
			continue
		}
		sums[m.Name] += m.Value
		counts[m.Name]++
	}
	avg := func(name string) float64 {
		if counts[name] == 0 {
			return 0
		}
		return sums[name] / float64(counts[name])
	}
	return state.AudienceSignals{
		SaveRate:     avg(SignalSaveRate),
		ShareRate:    avg(SignalShareRate),
		Conversion:   avg(SignalConversion),
		WatchDepth:   avg(SignalWatchDepth),
		CommentDepth: avg(SignalCommentDepth),
		CardCTR:      avg(SignalCardCTR),
	}
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
// #endregion helpers
