package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/taste-genome/internal/eval"
	"github.com/danielpatrickdp/taste-genome/internal/orchestrator"
	"github.com/danielpatrickdp/taste-genome/internal/state"
)

// Refresher is the part of the orchestrator the scheduler drives.
type Refresher interface {
	PublishedSince(ctx context.Context, since time.Time) ([]state.ConvictionReport, error)
	RefreshAudienceDepth(ctx context.Context, postID string) (orchestrator.AudienceView, error)
}

// Config holds the cron spec and fan-out bounds.
type Config struct {
	Spec        string        // standard 5-field cron spec
	Lookback    time.Duration // posts published within this window are refreshed
	Parallelism int
	RunTimeout  time.Duration // 0 means no per-run deadline
}

// Report summarizes one refresh run.
type Report struct {
	Posts     int
	Refreshed int
	Ready     int
	Failed    int
}

// Scheduler periodically refreshes audience depth for recently published posts.
type Scheduler struct {
	cron      *cron.Cron
	refresher Refresher
	config    Config
	logger    *slog.Logger
	now       func() time.Time
}

// New parses the cron expression and registers the refresh job. Runs never overlap;
// a tick that arrives while a run is in progress is skipped.
func New(r Refresher, config Config, logger *slog.Logger) (*Scheduler, error) {
	if config.Parallelism < 1 {
		config.Parallelism = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		refresher: r,
		config:    config,
		logger:    logger.With("component", "scheduler"),
		now:       time.Now,
	}
	s.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := s.cron.AddFunc(config.Spec, s.tick); err != nil {
		return nil, fmt.Errorf("schedule %q: %w", config.Spec, err)
	}
	return s, nil
}

// Start begins running the job in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("audience refresh scheduled", "spec", s.config.Spec, "lookback", s.config.Lookback)
}

// Stop prevents new runs and returns a context done when the current run finishes.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) tick() {
	ctx := context.Background()
	if s.config.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.RunTimeout)
		defer cancel()
	}
	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Error("audience refresh run failed", "error", err)
	}
}

// RunOnce refreshes every post published within the lookback window with at
// most Parallelism refreshes in flight. A failing post is logged and counted;
// it never stops the others.
func (s *Scheduler) RunOnce(ctx context.Context) (Report, error) {
	posts, err := s.refresher.PublishedSince(ctx, s.now().Add(-s.config.Lookback))
	if err != nil {
		return Report{}, fmt.Errorf("list published: %w", err)
	}

	var (
		mu     sync.Mutex
		report = Report{Posts: len(posts)}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Parallelism)
	for _, p := range posts {
		postID := p.PostID
		g.Go(func() error {
			view, err := s.refresher.RefreshAudienceDepth(gctx, postID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed++
				s.logger.Warn("audience refresh failed", "post_id", postID, "error", err)
				return nil
			}
			report.Refreshed++
			if view.Status == eval.StatusReady {
				report.Ready++
			}
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Info("audience refresh run",
		"posts", report.Posts, "refreshed", report.Refreshed, "ready", report.Ready, "failed", report.Failed)
	return report, ctx.Err()
}
