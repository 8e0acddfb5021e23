package analysis

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"
)

type fakeAnalyzer struct {
	result Analysis
	err    error
	delay  time.Duration
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, _ Content) (Analysis, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return Analysis{}, ctx.Err()
		}
	}
	return f.result, f.err
}

var sample = Content{
	PostID:    "post-1",
	Caption:   "Three ways to light a small studio with one lamp. Which one would you try? Save this for later.",
	Hashtags:  []string{"#Lighting", "studio", "diy"},
	MediaType: "video",
	ToneTags:  []string{"Warm"},
}

// #region heuristic-tests
func TestHeuristicDeterministicAndBounded(t *testing.T) {
	h := NewHeuristic(DefaultHeuristicConfig())
	a1, err := h.Analyze(context.Background(), sample)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	a2, _ := h.Analyze(context.Background(), sample)
	if a1.PerformanceEstimate != a2.PerformanceEstimate {
		t.Fatalf("heuristic is not deterministic: %v vs %v", a1.PerformanceEstimate, a2.PerformanceEstimate)
	}
	if a1.PerformanceEstimate < 0 || a1.PerformanceEstimate > 100 {
		t.Fatalf("estimate out of range: %v", a1.PerformanceEstimate)
	}
	if a1.Source != SourceHeuristic {
		t.Errorf("expected heuristic source, got %q", a1.Source)
	}
	hooks := map[string]bool{}
	for _, h := range a1.HookTags {
		hooks[h] = true
	}
	if !hooks["question"] || !hooks["cta"] {
		t.Errorf("expected question and cta hooks, got %v", a1.HookTags)
	}
	tones := map[string]bool{}
	for _, tag := range a1.ToneTags {
		tones[tag] = true
	}
	if !tones["warm"] || !tones["lighting"] {
		t.Errorf("expected normalized tone tags, got %v", a1.ToneTags)
	}
}

func TestHeuristicRewardsRicherContent(t *testing.T) {
	h := NewHeuristic(DefaultHeuristicConfig())
	bare, _ := h.Analyze(context.Background(), Content{PostID: "p"})
	rich, _ := h.Analyze(context.Background(), sample)
	if bare.PerformanceEstimate != DefaultHeuristicConfig().Base {
		t.Errorf("empty content should score the base, got %v", bare.PerformanceEstimate)
	}
	if rich.PerformanceEstimate <= bare.PerformanceEstimate {
		t.Errorf("rich content %v should beat empty content %v", rich.PerformanceEstimate, bare.PerformanceEstimate)
	}
}

func TestCosineSimilarity(t *testing.T) {
	a := map[string]float64{"warm": 1, "bold": 1}
	if got := CosineSimilarity(a, a); math.Abs(got-1) > 1e-9 {
		t.Errorf("identical vectors should score 1, got %v", got)
	}
	if got := CosineSimilarity(a, map[string]float64{"calm": 1}); got != 0 {
		t.Errorf("disjoint vectors should score 0, got %v", got)
	}
	if got := CosineSimilarity(a, nil); got != 0 {
		t.Errorf("empty vector should score 0, got %v", got)
	}
}
// #endregion heuristic-tests

// #region guarded-tests
func TestGuardedUsesAnalyzer(t *testing.T) {
	remote := &fakeAnalyzer{result: Analysis{PerformanceEstimate: 72, ToneTags: []string{"bold"}}}
	g := NewGuarded(remote, NewHeuristic(DefaultHeuristicConfig()), time.Second, nil)
	a, err := g.Analyze(context.Background(), sample)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if a.Source != SourceAnalyzer || a.PerformanceEstimate != 72 {
		t.Fatalf("expected analyzer result, got %+v", a)
	}
}

func TestGuardedFallsBack(t *testing.T) {
	cases := map[string]ContentAnalyzer{
		"error":     &fakeAnalyzer{err: errors.New("sidecar down")},
		"timeout":   &fakeAnalyzer{delay: time.Second, result: Analysis{PerformanceEstimate: 90}},
		"nan":       &fakeAnalyzer{result: Analysis{PerformanceEstimate: math.NaN()}},
		"too large": &fakeAnalyzer{result: Analysis{PerformanceEstimate: 140}},
		"nil":       nil,
	}
	want, _ := NewHeuristic(DefaultHeuristicConfig()).Analyze(context.Background(), sample)

	for name, remote := range cases {
		var reasons []string
		g := NewGuarded(remote, NewHeuristic(DefaultHeuristicConfig()), 20*time.Millisecond, nil)
		g.OnFallback = func(reason string) { reasons = append(reasons, reason) }

		a, err := g.Analyze(context.Background(), sample)
		if err != nil {
			t.Errorf("%s: fallback must not fail, got %v", name, err)
			continue
		}
		if a.Source != SourceHeuristic || a.PerformanceEstimate != want.PerformanceEstimate {
			t.Errorf("%s: expected heuristic result, got %+v", name, a)
		}
		if len(reasons) != 1 {
			t.Errorf("%s: expected one fallback notification, got %v", name, reasons)
		}
	}
}

func TestGuardedFillsMissingTags(t *testing.T) {
	remote := &fakeAnalyzer{result: Analysis{PerformanceEstimate: 55}}
	g := NewGuarded(remote, NewHeuristic(DefaultHeuristicConfig()), time.Second, nil)
	a, _ := g.Analyze(context.Background(), sample)
	if a.Source != SourceAnalyzer {
		t.Fatalf("expected analyzer source, got %q", a.Source)
	}
	if len(a.ToneTags) == 0 {
		t.Error("tone tags should be derived from the content when the analyzer returns none")
	}
}
// #endregion guarded-tests
