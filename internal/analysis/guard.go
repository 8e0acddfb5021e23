package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"
)

// DefaultTimeout bounds a single call to the content-analysis collaborator.
const DefaultTimeout = 3 * time.Second

// #region guarded
// Guarded calls a remote analyzer under a timeout and falls back to the
// heuristic on any error, timeout or malformed answer. It never returns an error
// from the remote side, so a gating decision is always possible.
type Guarded struct {
	remote   ContentAnalyzer
	fallback *Heuristic
	timeout  time.Duration
	logger   *slog.Logger

	// OnFallback, when set, is called with a short reason each time the heuristic is used.
	OnFallback func(reason string)
}

// NewGuarded wraps remote. remote may be nil, in which case the heuristic is always used.
func NewGuarded(remote ContentAnalyzer, fallback *Heuristic, timeout time.Duration, logger *slog.Logger) *Guarded {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Guarded{
		remote:   remote,
		fallback: fallback,
		timeout:  timeout,
		logger:   logger.With("component", "analysis"),
	}
}

// Analyze implements ContentAnalyzer.
func (g *Guarded) Analyze(ctx context.Context, content Content) (Analysis, error) {
	if g.remote == nil {
		return g.fall(ctx, content, "no analyzer configured")
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	type result struct {
		a   Analysis
		err error
	}
	done := make(chan result, 1)
	go func() {
		a, err := g.remote.Analyze(callCtx, content)
		done <- result{a, err}
	}()

	var res result
	select {
	case res = <-done:
	case <-callCtx.Done():
		res = result{err: callCtx.Err()}
	}

	if res.err != nil {
		reason := "analyzer error"
		if errors.Is(res.err, context.DeadlineExceeded) {
			reason = "analyzer timeout"
		}
		g.logger.Warn("content analysis failed, using heuristic", "post_id", content.PostID, "reason", reason, "error", res.err)
		return g.fall(ctx, content, reason)
	}
	if err := check(res.a); err != nil {
		g.logger.Warn("content analysis malformed, using heuristic", "post_id", content.PostID, "error", err)
		return g.fall(ctx, content, "analyzer malformed")
	}

	a := res.a
	a.Source = SourceAnalyzer
	if len(a.ToneTags) == 0 && len(a.HookTags) == 0 {
		h, _ := g.fallback.Analyze(ctx, content)
		a.ToneTags, a.HookTags = h.ToneTags, h.HookTags
	}
	return a, nil
}

func (g *Guarded) fall(ctx context.Context, content Content, reason string) (Analysis, error) {
	if g.OnFallback != nil {
		g.OnFallback(reason)
	}
	// detached so a cancelled caller still gets a decision
	return g.fallback.Analyze(context.WithoutCancel(ctx), content)
}

func check(a Analysis) error {
	if math.IsNaN(a.PerformanceEstimate) || a.PerformanceEstimate < 0 || a.PerformanceEstimate > 100 {
		return fmt.Errorf("performance estimate %v outside [0,100]", a.PerformanceEstimate)
	}
	return nil
}
// #endregion guarded
