package logging

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/danielpatrickdp/taste-genome/internal/catalog"
	"github.com/danielpatrickdp/taste-genome/internal/state"
)

// #region helpers
func setupRecorder(t *testing.T) *Recorder {
	t.Helper()
	cat, err := catalog.Default()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	s, err := state.NewStore("sqlite", filepath.Join(t.TempDir(), "test.db"), cat)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return NewRecorder(s)
}

func genome(dist map[string]float64, primary string, confidence float64) state.Genome {
	return state.Genome{
		Distribution: dist,
		Primary:      primary,
		Confidence:   confidence,
		Keywords:     state.KeywordWeights{Tone: map[string]float64{}, Hooks: map[string]float64{}},
	}
}
// #endregion helpers

// #region recorder-tests
func TestRecordAndList(t *testing.T) {
	r := setupRecorder(t)
	ctx := context.Background()

	entry := EvolutionEntry{
		ProfileID:        "p1",
		VersionID:        "v2",
		ValidationID:     "val-1",
		Event:            EventCalibration,
		ArchetypeChanges: []ArchetypeChange{{Archetype: "T-1", ConfidenceChange: 0.04}},
		KeyChanges:       []KeyChange{{Label: "tone:bold", Delta: 0.1}},
		Adjustments:      []Adjustment{{Component: "primary", Before: "T-2", After: "T-1"}},
		Reason:           "post outperformed prediction",
		Timestamp:        time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	saved, err := r.Record(ctx, entry)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if saved.ID == "" {
		t.Fatal("expected generated entry ID")
	}

	if _, err := r.Record(ctx, EvolutionEntry{ProfileID: "p2", Event: EventCalibration}); err != nil {
		t.Fatalf("Record p2: %v", err)
	}

	list, err := r.List(ctx, "p1", 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 entry for p1, got %d", len(list))
	}
	got := list[0]
	if got.ValidationID != "val-1" || got.VersionID != "v2" {
		t.Errorf("ids not round-tripped: %+v", got)
	}
	if len(got.ArchetypeChanges) != 1 || got.ArchetypeChanges[0].Archetype != "T-1" {
		t.Errorf("archetype changes not round-tripped: %+v", got.ArchetypeChanges)
	}
	if len(got.Adjustments) != 1 || got.Adjustments[0].After != "T-1" {
		t.Errorf("adjustments not round-tripped: %+v", got.Adjustments)
	}
	if !got.Timestamp.Equal(entry.Timestamp) {
		t.Errorf("timestamp: got %v want %v", got.Timestamp, entry.Timestamp)
	}
}

func TestRecord_ZeroTimestamp(t *testing.T) {
	r := setupRecorder(t)
	before := time.Now().UTC()
	saved, err := r.Record(context.Background(), EvolutionEntry{ProfileID: "p1", Event: EventOverride})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if saved.Timestamp.Before(before) {
		t.Error("expected auto-filled timestamp to be >= test start time")
	}
}
func TestRecordedByValidation(t *testing.T) {
	r := setupRecorder(t)
	ctx := context.Background()
	if done, err := r.Recorded(ctx, "val-1"); err != nil || done {
		t.Fatalf("Recorded before any entry = %v, %v", done, err)
	}
	if _, err := r.Record(ctx, EvolutionEntry{ProfileID: "p1", ValidationID: "val-1", Event: EventOverrideRefuted}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if done, err := r.Recorded(ctx, "val-1"); err != nil || !done {
		t.Fatalf("Recorded after entry = %v, %v", done, err)
	}
	if done, _ := r.Recorded(ctx, "val-2"); done {
		t.Error("another validation must not count")
	}
}
// #endregion recorder-tests

// #region diff-tests
func TestDiff(t *testing.T) {
	before := genome(map[string]float64{"T-1": 0.5, "T-2": 0.5}, "T-1", 0)
	after := genome(map[string]float64{"T-1": 0.6, "T-2": 0.4}, "T-1", 1.0/3)
	after.Keywords.Tone["bold"] = 0.2

	archetypes, keys, adjustments := Diff(before, after, []string{"T-1", "T-2", "T-3"})
	if len(archetypes) != 2 {
		t.Fatalf("expected 2 archetype changes, got %d", len(archetypes))
	}
	if archetypes[0].Archetype != "T-1" || archetypes[0].ConfidenceChange <= 0 {
		t.Errorf("T-1 should rise: %+v", archetypes[0])
	}
	if archetypes[1].Archetype != "T-2" || archetypes[1].ConfidenceChange >= 0 {
		t.Errorf("T-2 should fall: %+v", archetypes[1])
	}
	if len(keys) != 1 || keys[0].Label != "tone:bold" {
		t.Errorf("unexpected key changes: %+v", keys)
	}

	var sawConfidence, sawPrimary bool
	for _, a := range adjustments {
		switch a.Component {
		case "confidence":
			sawConfidence = true
		case "primary":
			sawPrimary = true
		}
	}
	if !sawConfidence {
		t.Error("expected confidence adjustment")
	}
	if sawPrimary {
		t.Error("primary did not change and should not be listed")
	}
}

func TestDiff_NoChange(t *testing.T) {
	g := genome(map[string]float64{"T-1": 1}, "T-1", 1)
	a, k, adj := Diff(g, g, []string{"T-1"})
	if len(a)+len(k)+len(adj) != 0 {
		t.Errorf("expected no changes, got %v %v %v", a, k, adj)
	}
}
// #endregion diff-tests

// #region null-if-empty-tests
func TestNullIfEmpty_Empty(t *testing.T) {
	result := nullIfEmpty("")
	if result != nil {
		t.Errorf("expected nil for empty string, got %v", result)
	}
}

func TestNullIfEmpty_NonEmpty(t *testing.T) {
	result := nullIfEmpty("hello")
	if result != "hello" {
		t.Errorf("expected 'hello', got %v", result)
	}
}
// #endregion null-if-empty-tests
