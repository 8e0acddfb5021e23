package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/danielpatrickdp/taste-genome/internal/eval"
	"github.com/danielpatrickdp/taste-genome/internal/orchestrator"
	"github.com/danielpatrickdp/taste-genome/internal/state"
)

type fakeRefresher struct {
	posts    []state.ConvictionReport
	listErr  error
	fail     map[string]bool
	ready    map[string]bool
	since    time.Time
	delay    time.Duration
	mu       sync.Mutex
	inFlight int
	maxSeen  int
	calls    int
}

func (f *fakeRefresher) PublishedSince(_ context.Context, since time.Time) ([]state.ConvictionReport, error) {
	f.since = since
	return f.posts, f.listErr
}

func (f *fakeRefresher) RefreshAudienceDepth(_ context.Context, postID string) (orchestrator.AudienceView, error) {
	f.mu.Lock()
	f.calls++
	f.inFlight++
	if f.inFlight > f.maxSeen {
		f.maxSeen = f.inFlight
	}
	f.mu.Unlock()

	time.Sleep(f.delay)

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()
	if f.fail[postID] {
		return orchestrator.AudienceView{}, errors.New("platform down")
	}
	status := eval.StatusCollecting
	if f.ready[postID] {
		status = eval.StatusReady
	}
	return orchestrator.AudienceView{Status: status}, nil
}

func posts(ids ...string) []state.ConvictionReport {
	out := make([]state.ConvictionReport, len(ids))
	for i, id := range ids {
		out[i] = state.ConvictionReport{PostID: id, Published: true}
	}
	return out
}

func newScheduler(t *testing.T, r Refresher, parallelism int) *Scheduler {
	t.Helper()
	s, err := New(r, Config{Spec: "*/15 * * * *", Lookback: 72 * time.Hour, Parallelism: parallelism}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestRunOnce_CountsOutcomes(t *testing.T) {
	r := &fakeRefresher{
		posts: posts("a", "b", "c", "d"),
		fail:  map[string]bool{"b": true},
		ready: map[string]bool{"c": true, "d": true},
	}
	s := newScheduler(t, r, 2)
	now := time.Date(2026, 7, 4, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	report, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	want := Report{Posts: 4, Refreshed: 3, Ready: 2, Failed: 1}
	if report != want {
		t.Errorf("expected %+v, got %+v", want, report)
	}
	if !r.since.Equal(now.Add(-72 * time.Hour)) {
		t.Errorf("lookback not applied: %v", r.since)
	}
}

func TestRunOnce_BoundsParallelism(t *testing.T) {
	r := &fakeRefresher{posts: posts("a", "b", "c", "d", "e", "f", "g", "h"), delay: 10 * time.Millisecond}
	s := newScheduler(t, r, 3)

	if _, err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if r.calls != 8 {
		t.Errorf("expected every post refreshed, got %d", r.calls)
	}
	if r.maxSeen > 3 {
		t.Errorf("expected at most 3 refreshes in flight, saw %d", r.maxSeen)
	}
}

func TestRunOnce_ListError(t *testing.T) {
	r := &fakeRefresher{listErr: errors.New("db closed")}
	s := newScheduler(t, r, 1)
	if _, err := s.RunOnce(context.Background()); err == nil {
		t.Fatal("expected error when listing fails")
	}
	if r.calls != 0 {
		t.Errorf("nothing should be refreshed, got %d calls", r.calls)
	}
}

func TestNew_RejectsBadSpec(t *testing.T) {
	if _, err := New(&fakeRefresher{}, Config{Spec: "whenever"}, nil); err == nil {
		t.Fatal("expected error for invalid cron spec")
	}
}

func TestStartStop(t *testing.T) {
	s := newScheduler(t, &fakeRefresher{}, 1)
	s.Start()
	select {
	case <-s.Stop().Done():
	case <-time.After(time.Second):
		t.Fatal("stop did not complete")
	}
}
