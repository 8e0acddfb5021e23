package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/danielpatrickdp/taste-genome/internal/analysis"
	"github.com/danielpatrickdp/taste-genome/internal/catalog"
	"github.com/danielpatrickdp/taste-genome/internal/conviction"
	"github.com/danielpatrickdp/taste-genome/internal/eval"
	"github.com/danielpatrickdp/taste-genome/internal/gate"
	"github.com/danielpatrickdp/taste-genome/internal/logging"
	"github.com/danielpatrickdp/taste-genome/internal/quiz"
	"github.com/danielpatrickdp/taste-genome/internal/signals"
	"github.com/danielpatrickdp/taste-genome/internal/state"
)

// #region fakes
type fixedAnalyzer struct{ estimate float64 }

func (f fixedAnalyzer) Analyze(_ context.Context, c analysis.Content) (analysis.Analysis, error) {
	return analysis.Analysis{PerformanceEstimate: f.estimate, ToneTags: c.ToneTags, Source: analysis.SourceAnalyzer}, nil
}

type fakeFetcher struct {
	mu    sync.Mutex
	raw   map[string]eval.RawMetrics
	err   error
	calls int
}

func (f *fakeFetcher) FetchEngagement(context.Context, string, []string) (map[string]eval.RawMetrics, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.raw, f.err
}

func (f *fakeFetcher) set(raw map[string]eval.RawMetrics, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.raw, f.err, f.calls = raw, err, 0
}

type clock struct {
	mu   sync.Mutex
	t    time.Time
	next func()
}

// Now runs the hook set by onNextNow once, outside the clock's lock.
func (c *clock) Now() time.Time {
	c.mu.Lock()
	t, hook := c.t, c.next
	c.next = nil
	c.mu.Unlock()
	if hook != nil {
		hook()
	}
	return t
}

func (c *clock) onNextNow(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next = fn
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
// #endregion fakes

type fixture struct {
	o       *Orchestrator
	store   *state.Store
	fetcher *fakeFetcher
	clock   *clock
}

func setup(t *testing.T, estimate float64) fixture {
	t.Helper()
	cat, err := catalog.Default()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	store, err := state.NewStore("sqlite", filepath.Join(t.TempDir(), "taste.db"), cat)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	g := gate.NewGate(gate.DefaultGateConfig())
	config := DefaultConfig()
	config.Retry = RetryConfig{MaxRetries: 2, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
	fetcher := &fakeFetcher{}
	clk := &clock{t: time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)}

	o, err := NewOrchestrator(Deps{
		Store:     store,
		Catalog:   cat,
		Predictor: conviction.NewPredictor(fixedAnalyzer{estimate}, g, cat, conviction.DefaultConfig()),
		Harness:   eval.NewEvalHarness(eval.DefaultEvalConfig()),
		Fetcher:   fetcher,
		Clock:     clk.Now,
	}, config)
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	return fixture{o: o, store: store, fetcher: fetcher, clock: clk}
}

func choice(profile, setID, optionID string) signals.Signal {
	return signals.Signal{
		ProfileID: profile,
		Type:      signals.TypeChoice,
		Payload:   signals.ChoicePayload{SetID: setID, OptionID: optionID},
	}
}

// freeChoice names an option outside the catalog, so it carries its own hint.
func freeChoice(profile, optionID, hint string) signals.Signal {
	return signals.Signal{
		ProfileID: profile,
		Type:      signals.TypeChoice,
		Payload:   signals.ChoicePayload{SetID: "custom", OptionID: optionID},
		Hints:     []string{hint},
	}
}

func validationField(t *testing.T, err error) string {
	t.Helper()
	var verr *signals.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	return verr.Field
}

// #region genome-tests
func TestGetGenomeUniformBeforeSignals(t *testing.T) {
	f := setup(t, 50)
	g, err := f.o.GetGenome(context.Background(), "p1")
	if err != nil {
		t.Fatalf("GetGenome: %v", err)
	}
	if g.VersionID != "" || g.Confidence != 0 || len(g.Distribution) != 12 {
		t.Fatalf("expected uniform genome, got %+v", g)
	}
}

func TestSubmitSignalDerivesHintAndRecomputes(t *testing.T) {
	f := setup(t, 50)
	stored, g, err := f.o.SubmitSignal(context.Background(), choice("p1", "set-hook-1", "opt-hook-1c"))
	if err != nil {
		t.Fatalf("SubmitSignal: %v", err)
	}
	if stored.Seq == 0 || stored.Weight != 1 || len(stored.Hints) != 1 || stored.Hints[0] != "T-1" {
		t.Fatalf("signal not completed: %+v", stored)
	}
	if g.VersionID == "" || g.Primary != "T-1" || g.SignalCount != 1 {
		t.Fatalf("genome not recomputed: %+v", g)
	}
	current, _ := f.o.GetGenome(context.Background(), "p1")
	if current.VersionID != g.VersionID {
		t.Errorf("active version not moved")
	}
}

func TestSubmitSignalRejectsInvalid(t *testing.T) {
	f := setup(t, 50)
	ctx := context.Background()
	cases := map[string]signals.Signal{
		"calibration": {ProfileID: "p1", Type: signals.TypeCalibration, Payload: signals.CalibrationPayload{PostID: "x"}, Hints: []string{"T-1"}, Weight: 1},
		"no profile":  choice("", "set-hook-1", "opt-hook-1a"),
		"bad hint":    {ProfileID: "p1", Type: signals.TypeChoice, Payload: signals.ChoicePayload{OptionID: "nope"}, Hints: []string{"T-99"}},
		"too heavy":   {ProfileID: "p1", Type: signals.TypeLikert, Payload: signals.LikertPayload{StatementID: "s", Score: 5}, Weight: 9},
	}
	for name, sig := range cases {
		if _, _, err := f.o.SubmitSignal(ctx, sig); !signals.IsValidation(err) {
			t.Errorf("%s: expected validation error, got %v", name, err)
		}
	}
	n, err := f.store.CountSignals(ctx, "p1")
	if err != nil || n != 0 {
		t.Fatalf("rejected signals must not be stored: n=%d err=%v", n, err)
	}
}

func TestSubmitSignalUnknownOptionNeedsHints(t *testing.T) {
	f := setup(t, 50)
	ctx := context.Background()

	_, _, err := f.o.SubmitSignal(ctx, choice("p1", "custom", "nope"))
	if got := validationField(t, err); got != "payload.optionId" {
		t.Errorf("unknown option field = %q", got)
	}
	likert := signals.Signal{ProfileID: "p1", Type: signals.TypeLikert, Payload: signals.LikertPayload{StatementID: "mood", Score: 4}}
	_, _, err = f.o.SubmitSignal(ctx, likert)
	if got := validationField(t, err); got != "payload.statementId" {
		t.Errorf("unknown statement field = %q", got)
	}
	_, _, err = f.o.SubmitSignal(ctx, choice("p1", "set-color-1", "opt-hook-1a"))
	if got := validationField(t, err); got != "payload.optionId" {
		t.Errorf("option from another set field = %q", got)
	}
	if n, _ := f.store.CountSignals(ctx, "p1"); n != 0 {
		t.Fatalf("rejected signals were stored: %d", n)
	}

	likert.Hints = []string{"T-2"}
	if _, _, err := f.o.SubmitSignal(ctx, likert); err != nil {
		t.Fatalf("hinted statement: %v", err)
	}
	if _, _, err := f.o.SubmitSignal(ctx, freeChoice("p1", "nope", "T-3")); err != nil {
		t.Fatalf("hinted option: %v", err)
	}
}

func TestSubmitSignalMarksCatalogSetAsked(t *testing.T) {
	f := setup(t, 50)
	ctx := context.Background()

	stored, _, err := f.o.SubmitSignal(ctx, choice("p1", "", "opt-color-1b"))
	if err != nil {
		t.Fatalf("SubmitSignal: %v", err)
	}
	if p, ok := stored.Payload.(signals.ChoicePayload); !ok || p.SetID != "set-color-1" {
		t.Errorf("set id not filled from the catalog: %+v", stored.Payload)
	}
	progress, err := f.store.QuizProgress(ctx, "p1")
	if err != nil {
		t.Fatalf("QuizProgress: %v", err)
	}
	if !progress.AskedSets["set-color-1"] || !progress.AskedOptions["opt-color-1a"] {
		t.Fatalf("set-color-1 not marked asked: %+v", progress)
	}
	batch, err := f.o.GetQuizBatch(ctx, "p1")
	if err != nil {
		t.Fatalf("GetQuizBatch: %v", err)
	}
	for _, q := range batch.Questions {
		if q.ID == "set-color-1" {
			t.Fatal("answered set offered again")
		}
	}

	_, _, err = f.o.SubmitSignal(ctx, choice("p1", "set-color-1", "opt-color-1a"))
	if got := validationField(t, err); got != "payload.setId" {
		t.Errorf("repeat set field = %q", got)
	}
	pass := signals.Signal{ProfileID: "p1", Type: signals.TypePass, Payload: signals.PassPayload{SetID: "set-color-1"}}
	if _, _, err := f.o.SubmitSignal(ctx, pass); !signals.IsValidation(err) {
		t.Errorf("pass on an answered set must be rejected, got %v", err)
	}
	_, _, err = f.o.SubmitQuizAnswers(ctx, "p1", []quiz.Response{{SetID: "set-color-1", OptionID: "opt-color-1a"}})
	if !signals.IsValidation(err) {
		t.Errorf("quiz answer on an answered set must be rejected, got %v", err)
	}

	set, ok := f.o.catalog.Set("set-hook-1")
	if !ok || len(set.Options) < 3 {
		t.Fatalf("catalog set-hook-1: %+v", set)
	}
	pick := func(optionID string, pole signals.Pole) signals.Signal {
		return signals.Signal{
			ProfileID: "p1",
			Type:      signals.TypeBestWorst,
			Payload:   signals.BestWorstPayload{SetID: set.ID, OptionID: optionID, Pole: pole},
		}
	}
	if _, _, err := f.o.SubmitSignal(ctx, pick(set.Options[0].ID, signals.PoleBest)); err != nil {
		t.Fatalf("best pick: %v", err)
	}
	if _, _, err := f.o.SubmitSignal(ctx, pick(set.Options[0].ID, signals.PoleWorst)); !signals.IsValidation(err) {
		t.Errorf("worst on the best option must be rejected, got %v", err)
	}
	if _, _, err := f.o.SubmitSignal(ctx, pick(set.Options[1].ID, signals.PoleWorst)); err != nil {
		t.Fatalf("worst pick completing the pair: %v", err)
	}
	if _, _, err := f.o.SubmitSignal(ctx, pick(set.Options[2].ID, signals.PoleBest)); !signals.IsValidation(err) {
		t.Errorf("third pick on a completed pair must be rejected, got %v", err)
	}

	if n, _ := f.store.CountSignals(ctx, "p1"); n != 3 {
		t.Fatalf("expected the choice and one best-worst pair, got %d signals", n)
	}
}

func TestRecomputeIsIdempotent(t *testing.T) {
	f := setup(t, 50)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, _, err := f.o.SubmitSignal(ctx, freeChoice("p1", fmt.Sprintf("own-%d", i), "T-1")); err != nil {
			t.Fatalf("SubmitSignal: %v", err)
		}
	}
	a, err := f.o.Recompute(ctx, "p1")
	if err != nil {
		t.Fatalf("Recompute: %v", err)
	}
	b, err := f.o.Recompute(ctx, "p1")
	if err != nil {
		t.Fatalf("Recompute: %v", err)
	}
	if a.VersionID == b.VersionID || b.ParentID != a.VersionID {
		t.Errorf("each recompute commits a new version")
	}
	for d, p := range a.Distribution {
		if b.Distribution[d] != p {
			t.Fatalf("distribution changed without new signals at %s", d)
		}
	}
	if a.ConfidentStreak != b.ConfidentStreak {
		t.Errorf("streak must not advance without new signals: %d -> %d", a.ConfidentStreak, b.ConfidentStreak)
	}
}

func TestConcurrentWritersStaySerialized(t *testing.T) {
	f := setup(t, 50)
	ctx := context.Background()
	const perProfile = 8
	profiles := []string{"p1", "p2"}

	var wg sync.WaitGroup
	errs := make(chan error, perProfile*len(profiles)+len(profiles))
	for _, p := range profiles {
		for i := 0; i < perProfile; i++ {
			wg.Add(1)
			go func(profile string, i int) {
				defer wg.Done()
				if _, _, err := f.o.SubmitSignal(ctx, freeChoice(profile, fmt.Sprintf("own-%d", i), "T-4")); err != nil {
					errs <- err
				}
			}(p, i)
		}
		wg.Add(1)
		go func(profile string) {
			defer wg.Done()
			if _, err := f.o.Recompute(ctx, profile); err != nil {
				errs <- err
			}
		}(p)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent write failed: %v", err)
	}

	for _, p := range profiles {
		g, err := f.o.GetGenome(ctx, p)
		if err != nil {
			t.Fatalf("GetGenome: %v", err)
		}
		if g.SignalCount != perProfile {
			t.Errorf("%s: expected %d signals folded, got %d", p, perProfile, g.SignalCount)
		}
		sum := 0.0
		for _, v := range g.Distribution {
			sum += v
		}
		if math.Abs(sum-1) > 1e-6 {
			t.Errorf("%s: distribution sums to %v", p, sum)
		}
	}
}
// #endregion genome-tests

// #region quiz-tests
func TestQuizFlow(t *testing.T) {
	f := setup(t, 50)
	ctx := context.Background()

	batch, err := f.o.GetQuizBatch(ctx, "p1")
	if err != nil {
		t.Fatalf("GetQuizBatch: %v", err)
	}
	if batch.Mode != quiz.ModeLoading || len(batch.Questions) != 3 {
		t.Fatalf("unexpected first batch %+v", batch)
	}

	var responses []quiz.Response
	for _, set := range batch.Questions {
		responses = append(responses, quiz.Response{SetID: set.ID, OptionID: set.Options[0].ID})
	}
	next, g, err := f.o.SubmitQuizAnswers(ctx, "p1", responses)
	if err != nil {
		t.Fatalf("SubmitQuizAnswers: %v", err)
	}
	if g.SignalCount != 3 || next.AnsweredCount != 3 || next.Mode != quiz.ModeStandard {
		t.Fatalf("unexpected state after answers: genome %d signals, batch %+v", g.SignalCount, next)
	}
	for _, set := range next.Questions {
		for _, prev := range batch.Questions {
			if set.ID == prev.ID {
				t.Fatalf("set %s offered again", set.ID)
			}
		}
	}

	if _, _, err := f.o.SubmitQuizAnswers(ctx, "p1", responses); !signals.IsValidation(err) {
		t.Fatalf("re-answering must be rejected, got %v", err)
	}
	n, _ := f.store.CountSignals(ctx, "p1")
	if n != 3 {
		t.Fatalf("rejected batch wrote signals: %d", n)
	}
}
// #endregion quiz-tests

// #region conviction-tests
func TestConvictionOverridePublishCalibrate(t *testing.T) {
	f := setup(t, 10)
	ctx := context.Background()
	if _, _, err := f.o.SubmitSignal(ctx, choice("p1", "set-hook-1", "opt-hook-1c")); err != nil {
		t.Fatalf("SubmitSignal: %v", err)
	}

	content := analysis.Content{PostID: "post-1", ToneTags: []string{"cinematic"}, Platforms: []string{"instagram"}}
	report, err := f.o.GetConvictionReport(ctx, "p1", content)
	if err != nil {
		t.Fatalf("GetConvictionReport: %v", err)
	}
	if report.ContentArchetype != "T-6" || report.Gating.Status != state.GatingBlocked {
		t.Fatalf("expected blocked T-6 report, got %s %s (score %d)", report.ContentArchetype, report.Gating.Status, report.Score)
	}

	if _, err := f.o.Publish(ctx, "post-1"); !signals.IsValidation(err) {
		t.Fatalf("publishing a blocked report must fail, got %v", err)
	}
	overridden, err := f.o.Override(ctx, "post-1", "I believe in it")
	if err != nil {
		t.Fatalf("Override: %v", err)
	}
	if overridden.Gating.Status != state.GatingOverride || overridden.Gating.OriginalStatus != state.GatingBlocked {
		t.Fatalf("override not recorded: %+v", overridden.Gating)
	}
	if _, err := f.o.RefreshAudienceDepth(ctx, "post-1"); !errors.Is(err, ErrNotPublished) {
		t.Fatalf("expected ErrNotPublished, got %v", err)
	}
	published, err := f.o.Publish(ctx, "post-1")
	if err != nil || !published.Published {
		t.Fatalf("Publish: %v", err)
	}

	again, err := f.o.GetConvictionReport(ctx, "p1", analysis.Content{PostID: "post-1", ToneTags: []string{"warm"}})
	if err != nil || again.Score != report.Score || again.ContentArchetype != "T-6" {
		t.Fatalf("published report must be frozen: %+v %v", again, err)
	}
	if _, err := f.o.Override(ctx, "post-1", ""); !errors.Is(err, ErrFrozen) {
		t.Fatalf("expected ErrFrozen, got %v", err)
	}

	// save rate 3 against a baseline of 2 normalizes to 75
	f.fetcher.set(map[string]eval.RawMetrics{"instagram": {eval.SignalSaveRate: 3}}, nil)
	f.clock.Advance(time.Hour)
	view, err := f.o.RefreshAudienceDepth(ctx, "post-1")
	if err != nil {
		t.Fatalf("RefreshAudienceDepth: %v", err)
	}
	if view.Status != eval.StatusCollecting || view.Record.Score != 75 {
		t.Fatalf("first fetch should be collecting at 75: %+v", view)
	}
	if view.Validation == nil || view.Validation.OverrideWasSuccessful == nil || !*view.Validation.OverrideWasSuccessful {
		t.Fatalf("override should validate as successful: %+v", view.Validation)
	}
	if view.Validation.Calibrated {
		t.Fatal("must not calibrate while collecting")
	}

	before, _ := f.o.GetGenome(ctx, "p1")
	f.clock.Advance(time.Hour)
	view, err = f.o.RefreshAudienceDepth(ctx, "post-1")
	if err != nil {
		t.Fatalf("RefreshAudienceDepth: %v", err)
	}
	if view.Status != eval.StatusReady || !view.Validation.Calibrated || len(view.Record.FetchHistory) != 2 {
		t.Fatalf("second fetch should calibrate: %+v", view)
	}
	after, _ := f.o.GetGenome(ctx, "p1")
	if after.Distribution["T-6"] <= before.Distribution["T-6"] {
		t.Errorf("under-prediction should raise T-6: %v -> %v", before.Distribution["T-6"], after.Distribution["T-6"])
	}

	f.clock.Advance(time.Hour)
	if _, err := f.o.RefreshAudienceDepth(ctx, "post-1"); err != nil {
		t.Fatalf("RefreshAudienceDepth: %v", err)
	}
	entries, err := f.o.Evolution(ctx, "p1", 0)
	if err != nil {
		t.Fatalf("Evolution: %v", err)
	}
	if len(entries) != 1 || entries[0].Event != logging.EventOverride || entries[0].ValidationID != view.Validation.ID {
		t.Fatalf("expected exactly one override evolution entry, got %+v", entries)
	}
	if !strings.HasPrefix(entries[0].Reason, "override succeeded, raising confidence in T-6") {
		t.Errorf("reason should name the outcome: %q", entries[0].Reason)
	}
	if n, _ := f.store.CountSignals(ctx, "p1"); n != 2 {
		t.Fatalf("expected one calibration signal beside the choice, got %d signals", n)
	}

	stored, err := f.o.GetAudienceDepth(ctx, "post-1")
	if err != nil || len(stored.Record.FetchHistory) != 3 || stored.Status != eval.StatusReady {
		t.Fatalf("GetAudienceDepth: %+v %v", stored, err)
	}
}

// overriddenPost publishes a blocked T-6 report through an override.
func overriddenPost(t *testing.T, f fixture) {
	t.Helper()
	ctx := context.Background()
	if _, _, err := f.o.SubmitSignal(ctx, choice("p1", "set-hook-1", "opt-hook-1c")); err != nil {
		t.Fatalf("SubmitSignal: %v", err)
	}
	content := analysis.Content{PostID: "post-1", ToneTags: []string{"cinematic"}, Platforms: []string{"instagram"}}
	if _, err := f.o.GetConvictionReport(ctx, "p1", content); err != nil {
		t.Fatalf("GetConvictionReport: %v", err)
	}
	if _, err := f.o.Override(ctx, "post-1", "trust me"); err != nil {
		t.Fatalf("Override: %v", err)
	}
	if _, err := f.o.Publish(ctx, "post-1"); err != nil {
		t.Fatalf("Publish: %v", err)
	}
}

func TestFailedOverrideIsRecordedAsRefuted(t *testing.T) {
	f := setup(t, 10)
	ctx := context.Background()
	overriddenPost(t, f)

	f.fetcher.set(map[string]eval.RawMetrics{"instagram": {eval.SignalSaveRate: 0.2}}, nil)
	f.clock.Advance(7 * time.Hour)
	view, err := f.o.RefreshAudienceDepth(ctx, "post-1")
	if err != nil {
		t.Fatalf("RefreshAudienceDepth: %v", err)
	}
	if view.Validation == nil || view.Validation.OverrideWasSuccessful == nil || *view.Validation.OverrideWasSuccessful {
		t.Fatalf("override should validate as failed: %+v", view.Validation)
	}
	entries, err := f.o.Evolution(ctx, "p1", 0)
	if err != nil {
		t.Fatalf("Evolution: %v", err)
	}
	if len(entries) != 1 || entries[0].Event != logging.EventOverrideRefuted {
		t.Fatalf("expected one refuted override entry, got %+v", entries)
	}
	if !strings.HasPrefix(entries[0].Reason, "override failed, lowering confidence in T-6") {
		t.Errorf("reason should name the outcome: %q", entries[0].Reason)
	}
}

func TestCalibrationResumesAfterFailedRecord(t *testing.T) {
	f := setup(t, 10)
	ctx := context.Background()
	overriddenPost(t, f)
	db := f.store.DB()

	f.fetcher.set(map[string]eval.RawMetrics{"instagram": {eval.SignalSaveRate: 3}}, nil)
	f.clock.Advance(7 * time.Hour)
	if _, err := db.ExecContext(ctx, "ALTER TABLE genome_evolution RENAME TO genome_evolution_away"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if _, err := f.o.RefreshAudienceDepth(ctx, "post-1"); err == nil {
		t.Fatal("refresh must surface the failed evolution record")
	}
	v, err := f.o.GetValidation(ctx, "post-1")
	if err != nil || !v.Calibrated {
		t.Fatalf("calibration signal should be committed: %+v %v", v, err)
	}
	if _, err := db.ExecContext(ctx, "ALTER TABLE genome_evolution_away RENAME TO genome_evolution"); err != nil {
		t.Fatalf("rename back: %v", err)
	}

	for i := 0; i < 2; i++ {
		f.clock.Advance(time.Hour)
		if _, err := f.o.RefreshAudienceDepth(ctx, "post-1"); err != nil {
			t.Fatalf("RefreshAudienceDepth: %v", err)
		}
	}
	entries, err := f.o.Evolution(ctx, "p1", 0)
	if err != nil {
		t.Fatalf("Evolution: %v", err)
	}
	if len(entries) != 1 || entries[0].ValidationID != v.ID || entries[0].Event != logging.EventOverride {
		t.Fatalf("expected one resumed entry, got %+v", entries)
	}
	raised := false
	for _, c := range entries[0].ArchetypeChanges {
		if c.Archetype == "T-6" && c.ConfidenceChange > 0 {
			raised = true
		}
	}
	if !raised {
		t.Errorf("resumed entry should diff against the pre-calibration version: %+v", entries[0].ArchetypeChanges)
	}
	if n, _ := f.store.CountSignals(ctx, "p1"); n != 2 {
		t.Fatalf("resuming must not write another calibration signal, got %d signals", n)
	}
}

func TestOverrideRacingPublishIsNotLost(t *testing.T) {
	f := setup(t, 10)
	ctx := context.Background()
	content := analysis.Content{PostID: "post-1", ToneTags: []string{"cinematic"}, Platforms: []string{"instagram"}}
	report, err := f.o.GetConvictionReport(ctx, "p1", content)
	if err != nil {
		t.Fatalf("GetConvictionReport: %v", err)
	}
	if report.Gating.Status != state.GatingWarning {
		t.Fatalf("expected a warning report, got %s (score %d)", report.Gating.Status, report.Score)
	}

	// Publish reads the clock after loading the report; the override starts there.
	overrideErr := make(chan error, 1)
	f.clock.onNextNow(func() {
		go func() {
			_, err := f.o.Override(ctx, "post-1", "late call")
			overrideErr <- err
		}()
		time.Sleep(50 * time.Millisecond)
	})
	if _, err := f.o.Publish(ctx, "post-1"); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	err = <-overrideErr

	final, rerr := f.o.Report(ctx, "post-1")
	if rerr != nil {
		t.Fatalf("Report: %v", rerr)
	}
	if !final.Published {
		t.Fatal("report must stay published")
	}
	switch {
	case err == nil && final.Gating.Status != state.GatingOverride:
		t.Fatalf("acknowledged override was lost: %+v", final.Gating)
	case err != nil && !errors.Is(err, ErrFrozen):
		t.Fatalf("override after publish should be frozen, got %v", err)
	}
}

func TestConvictionReportValidation(t *testing.T) {
	f := setup(t, 50)
	ctx := context.Background()
	if _, err := f.o.GetConvictionReport(ctx, "p1", analysis.Content{}); !signals.IsValidation(err) {
		t.Errorf("missing post id must be rejected, got %v", err)
	}
	if _, err := f.o.GetConvictionReport(ctx, "p1", analysis.Content{PostID: "post-1"}); err != nil {
		t.Fatalf("GetConvictionReport: %v", err)
	}
	if _, err := f.o.GetConvictionReport(ctx, "p2", analysis.Content{PostID: "post-1"}); !signals.IsValidation(err) {
		t.Errorf("another profile's post must be rejected, got %v", err)
	}
	if _, err := f.o.Report(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
// #endregion conviction-tests

// #region refresh-failure-tests
func publishApproved(t *testing.T, f fixture, postID string) {
	t.Helper()
	ctx := context.Background()
	if _, err := f.o.GetConvictionReport(ctx, "p1", analysis.Content{PostID: postID, Platforms: []string{"tiktok"}}); err != nil {
		t.Fatalf("GetConvictionReport: %v", err)
	}
	if _, err := f.o.Publish(ctx, postID); err != nil {
		t.Fatalf("Publish: %v", err)
	}
}

func TestRefreshFailureInsideWindowIsCollecting(t *testing.T) {
	f := setup(t, 90)
	ctx := context.Background()
	publishApproved(t, f, "post-1")

	f.fetcher.set(nil, status.Error(codes.Unavailable, "platform down"))
	view, err := f.o.RefreshAudienceDepth(ctx, "post-1")
	if err != nil {
		t.Fatalf("failure inside the window should not error: %v", err)
	}
	if view.Status != eval.StatusCollecting || len(view.Record.FetchHistory) != 0 {
		t.Fatalf("record must be untouched and collecting: %+v", view)
	}
	if f.fetcher.calls != 3 {
		t.Errorf("expected 3 attempts for a transient error, got %d", f.fetcher.calls)
	}

	f.fetcher.set(nil, status.Error(codes.Unavailable, "platform down"))
	f.clock.Advance(7 * time.Hour)
	if _, err := f.o.RefreshAudienceDepth(ctx, "post-1"); err == nil {
		t.Fatal("failure past the window must surface")
	}
	if _, err := f.store.GetAudience(ctx, "post-1"); !errors.Is(err, state.ErrNotFound) {
		t.Errorf("failed refresh wrote a record: %v", err)
	}
}

func TestRefreshPermanentErrorIsNotRetried(t *testing.T) {
	f := setup(t, 90)
	publishApproved(t, f, "post-1")
	f.fetcher.set(nil, fmt.Errorf("fetch: %w", status.Error(codes.NotFound, "unknown post")))
	f.clock.Advance(7 * time.Hour)

	if _, err := f.o.RefreshAudienceDepth(context.Background(), "post-1"); err == nil {
		t.Fatal("expected error")
	}
	if f.fetcher.calls != 1 {
		t.Errorf("permanent errors must not be retried, got %d calls", f.fetcher.calls)
	}
}

func TestRefreshWithoutDataIsAFailedFetch(t *testing.T) {
	f := setup(t, 90)
	publishApproved(t, f, "post-1")
	f.fetcher.set(map[string]eval.RawMetrics{"tiktok": {}}, nil)

	view, err := f.o.RefreshAudienceDepth(context.Background(), "post-1")
	if err != nil {
		t.Fatalf("RefreshAudienceDepth: %v", err)
	}
	if view.Status != eval.StatusCollecting || view.Validation != nil {
		t.Fatalf("empty fetch should leave nothing behind: %+v", view)
	}
}
// #endregion refresh-failure-tests
