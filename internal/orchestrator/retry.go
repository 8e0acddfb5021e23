package orchestrator

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/danielpatrickdp/taste-genome/internal/codec"
	"github.com/danielpatrickdp/taste-genome/internal/eval"
)

// #region config

// RetryConfig bounds the exponential backoff around engagement fetches.
type RetryConfig struct {
	MaxRetries      int           // retries after the first attempt (default 2 = 3 attempts)
	InitialInterval time.Duration // default 200ms
	MaxInterval     time.Duration // default 2s
}

// DefaultRetryConfig returns the documented defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      2,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     2 * time.Second,
	}
}

// #endregion

// #region fetch

// fetchWithRetry retries transient fetch errors with jittered exponential
// backoff. Permanent errors and context cancellation stop immediately.
func (o *Orchestrator) fetchWithRetry(ctx context.Context, postID string, platforms []string) (map[string]eval.RawMetrics, error) {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = o.config.Retry.InitialInterval
	exp.MaxInterval = o.config.Retry.MaxInterval
	exp.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(o.config.Retry.MaxRetries)), ctx)

	attempt := 0
	op := func() (map[string]eval.RawMetrics, error) {
		attempt++
		raw, err := o.fetcher.FetchEngagement(ctx, postID, platforms)
		if err != nil && !codec.IsTransient(err) {
			return nil, backoff.Permanent(err)
		}
		return raw, err
	}
	notify := func(err error, wait time.Duration) {
		o.logger.Warn("engagement fetch failed, retrying", "post_id", postID, "attempt", attempt, "wait", wait, "error", err)
	}
	return backoff.RetryNotifyWithData(op, policy, notify)
}

// #endregion
