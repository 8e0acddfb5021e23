package eval

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/danielpatrickdp/taste-genome/internal/gate"
	"github.com/danielpatrickdp/taste-genome/internal/signals"
	"github.com/danielpatrickdp/taste-genome/internal/state"
)

var published = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultEvalConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	bad := DefaultEvalConfig()
	bad.Platforms["instagram"][SignalSaveRate] = SignalSpec{Baseline: 2, Scale: ScaleLinear, Weight: 0.9}
	if err := bad.Validate(); err == nil {
		t.Fatal("expected weight sum error")
	}
}

func TestNormalizeBaselineIsFifty(t *testing.T) {
	for _, scale := range []Scale{ScaleLinear, ScaleLog} {
		spec := SignalSpec{Baseline: 2, Scale: scale, Weight: 1}
		if got := Normalize(spec, 2); math.Abs(got-50) > 1e-9 {
			t.Errorf("%s: baseline should map to 50, got %v", scale, got)
		}
		if got := Normalize(spec, 100); got != 100 {
			t.Errorf("%s: large values should clamp to 100, got %v", scale, got)
		}
		if got := Normalize(spec, 0); got != 0 {
			t.Errorf("%s: zero should map to 0, got %v", scale, got)
		}
	}
}

func TestMissingValuesRenormalize(t *testing.T) {
	h := NewEvalHarness(DefaultEvalConfig())
	cfg := DefaultEvalConfig().Platforms["instagram"]

	// only save rate at twice its baseline: the score is that signal alone
	score, metrics, ok := h.ScorePlatform("instagram", RawMetrics{SignalSaveRate: 2 * cfg[SignalSaveRate].Baseline})
	if !ok {
		t.Fatal("expected a score")
	}
	if math.Abs(score-100) > 1e-9 {
		t.Errorf("expected 100, got %v", score)
	}
	missing := 0
	for _, m := range metrics {
		if !m.Pass {
			missing++
		}
	}
	if missing != 5 {
		t.Errorf("expected 5 missing metrics, got %d", missing)
	}

	if _, _, ok := h.ScorePlatform("instagram", RawMetrics{}); ok {
		t.Error("a platform without values must not score")
	}
}

func TestRunAveragesPlatforms(t *testing.T) {
	h := NewEvalHarness(DefaultEvalConfig())
	cfg := DefaultEvalConfig().Platforms
	res, err := h.Run(map[string]RawMetrics{
		"instagram": {SignalSaveRate: cfg["instagram"][SignalSaveRate].Baseline},
		"tiktok":    {SignalWatchDepth: 2 * cfg["tiktok"][SignalWatchDepth].Baseline},
		"threads":   {},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if math.Abs(res.Score-75) > 1e-9 {
		t.Errorf("expected mean of 50 and 100, got %v", res.Score)
	}
	if len(res.PlatformBreakdown) != 2 {
		t.Errorf("empty platforms must be excluded: %v", res.PlatformBreakdown)
	}

	if _, err := h.Run(map[string]RawMetrics{"instagram": {}}); !errors.Is(err, ErrNoData) {
		t.Errorf("expected ErrNoData, got %v", err)
	}
}

func TestApplyAppendsHistory(t *testing.T) {
	h := NewEvalHarness(DefaultEvalConfig())
	res, _ := h.Run(map[string]RawMetrics{"youtube": {SignalWatchDepth: 45}})

	rec, entry := h.Apply(state.AudienceDepthRecord{}, "post-1", res, published.Add(time.Hour))
	rec, _ = h.Apply(rec, "post-1", res, published.Add(2*time.Hour))
	if len(rec.FetchHistory) != 2 || entry.Score != res.Score {
		t.Fatalf("expected two history entries, got %+v", rec.FetchHistory)
	}
	if rec.Signals.WatchDepth != 50 || rec.PostID != "post-1" {
		t.Errorf("record not updated: %+v", rec)
	}
}

func TestStatus(t *testing.T) {
	h := NewEvalHarness(DefaultEvalConfig())
	one := state.AudienceDepthRecord{FetchHistory: []state.FetchEntry{{Score: 40}}}
	two := state.AudienceDepthRecord{FetchHistory: []state.FetchEntry{{Score: 40}, {Score: 45}}}

	if h.Status(published, published.Add(time.Hour), state.AudienceDepthRecord{}) != StatusCollecting {
		t.Error("no fetches should be collecting")
	}
	if h.Status(published, published.Add(time.Hour), one) != StatusCollecting {
		t.Error("one early fetch should be collecting")
	}
	if h.Status(published, published.Add(time.Hour), two) != StatusReady {
		t.Error("two fetches should be ready")
	}
	if h.Status(published, published.Add(7*time.Hour), one) != StatusReady {
		t.Error("past the window with a fetch should be ready")
	}
}

func TestAccuracy(t *testing.T) {
	if got := Accuracy(64, 64); got != 100 {
		t.Errorf("equal scores should be 100, got %v", got)
	}
	if got := Accuracy(30, 75); math.Abs(got-55) > 1e-9 {
		t.Errorf("expected 55, got %v", got)
	}
	if got := Accuracy(0, 100); got != 0 {
		t.Errorf("expected 0, got %v", got)
	}
}

func TestOverrideAtThirtyWithSeventyFiveSucceeds(t *testing.T) {
	h := NewEvalHarness(DefaultEvalConfig())
	g := gate.NewGate(gate.DefaultGateConfig())
	blocked := g.Evaluate(30).Gating()
	overridden, err := g.Override(blocked, "")
	if err != nil {
		t.Fatalf("Override: %v", err)
	}
	report := state.ConvictionReport{PostID: "post-1", ProfileID: "p1", Score: 30, Gating: overridden}

	v := h.Validate(report, 75, g, published)
	if v.OverrideWasSuccessful == nil || !*v.OverrideWasSuccessful {
		t.Fatalf("override should have succeeded: %+v", v)
	}
	if v.Predicted != 30 || v.Actual != 75 {
		t.Errorf("prediction not carried: %+v", v)
	}

	approved := state.ConvictionReport{PostID: "post-2", Score: 70, Gating: g.Evaluate(70).Gating()}
	if v := h.Validate(approved, 20, g, published); v.OverrideWasSuccessful != nil {
		t.Error("non-overridden reports carry no override outcome")
	}
}

func TestCalibrationWeight(t *testing.T) {
	h := NewEvalHarness(DefaultEvalConfig())
	if _, ok := h.CalibrationWeight(60, 63); ok {
		t.Error("errors inside the dead band must not calibrate")
	}
	if w, ok := h.CalibrationWeight(30, 75); !ok || math.Abs(w-1.8) > 1e-9 {
		t.Errorf("expected +1.8, got %v %v", w, ok)
	}
	if w, _ := h.CalibrationWeight(90, 10); math.Abs(w+3.2) > 1e-9 {
		t.Errorf("expected -3.2, got %v", w)
	}

	big := DefaultEvalConfig()
	big.CalibrationGain = 40
	if w, _ := NewEvalHarness(big).CalibrationWeight(0, 100); w != signals.MaxAbsWeight {
		t.Errorf("weight must be bounded, got %v", w)
	}
}

func TestCalibrationSignal(t *testing.T) {
	h := NewEvalHarness(DefaultEvalConfig())
	report := state.ConvictionReport{PostID: "post-1", ProfileID: "p1", Score: 80, ContentArchetype: "T-3", ToneTags: []string{"bold"}}
	v := state.ValidationResult{ID: "val-1", Predicted: 80, Actual: 40}

	sig, ok := h.CalibrationSignal(report, v, published)
	if !ok {
		t.Fatal("expected a calibration signal")
	}
	if sig.Type != signals.TypeCalibration || sig.Hints[0] != "T-3" || sig.Weight >= 0 {
		t.Errorf("unexpected signal %+v", sig)
	}
	if p, _ := sig.Payload.(signals.CalibrationPayload); p.ValidationID != "val-1" || p.PostID != "post-1" {
		t.Errorf("payload not linked: %+v", sig.Payload)
	}
}
