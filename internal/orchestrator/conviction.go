package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/danielpatrickdp/taste-genome/internal/analysis"
	"github.com/danielpatrickdp/taste-genome/internal/logging"
	"github.com/danielpatrickdp/taste-genome/internal/signals"
	"github.com/danielpatrickdp/taste-genome/internal/state"
)

// #region get-conviction-report

// GetConvictionReport scores content against the profile's current genome and
// stores the report. A published report is returned unchanged; re-scoring an
// unpublished post replaces its report, dropping any earlier override.
func (o *Orchestrator) GetConvictionReport(ctx context.Context, profileID string, content analysis.Content) (state.ConvictionReport, error) {
	if strings.TrimSpace(profileID) == "" {
		return state.ConvictionReport{}, &signals.ValidationError{Field: "profileId", Message: "required"}
	}
	if strings.TrimSpace(content.PostID) == "" {
		return state.ConvictionReport{}, &signals.ValidationError{Field: "postId", Message: "required"}
	}

	if existing, frozen, err := o.existingReport(ctx, profileID, content.PostID); err != nil || frozen {
		return existing, err
	}

	genome, _, err := o.current(ctx, profileID)
	if err != nil {
		return state.ConvictionReport{}, err
	}
	report, err := o.predictor.Predict(ctx, genome, content, o.now())
	if err != nil {
		return state.ConvictionReport{}, fmt.Errorf("conviction %s: %w", content.PostID, err)
	}
	report.ProfileID = profileID

	unlock := o.lock(profileID)
	defer unlock()
	if existing, frozen, err := o.existingReport(ctx, profileID, content.PostID); err != nil || frozen {
		return existing, err
	}
	if err := o.store.SaveReport(ctx, report); err != nil {
		return state.ConvictionReport{}, fmt.Errorf("conviction %s: %w", content.PostID, err)
	}

	o.observer.GatingDecided(string(report.Gating.Status))
	o.publishGating(ctx, report)
	o.logger.Info("conviction scored",
		"post_id", report.PostID, "profile_id", profileID, "score", report.Score,
		"tier", report.Tier, "gating", report.Gating.Status, "source", report.AnalysisSource)
	return report, nil
}

// existingReport reports whether postID already has a published report,
// which is returned as is. A report owned by another profile is rejected.
func (o *Orchestrator) existingReport(ctx context.Context, profileID, postID string) (state.ConvictionReport, bool, error) {
	existing, err := o.store.GetReport(ctx, postID)
	switch {
	case errors.Is(err, state.ErrNotFound):
		return state.ConvictionReport{}, false, nil
	case err != nil:
		return state.ConvictionReport{}, false, fmt.Errorf("conviction %s: %w", postID, err)
	case existing.ProfileID != profileID:
		return state.ConvictionReport{}, false, &signals.ValidationError{Field: "postId", Message: "post belongs to another profile"}
	}
	return existing, existing.Published, nil
}

// Report loads a stored report without re-scoring it.
func (o *Orchestrator) Report(ctx context.Context, postID string) (state.ConvictionReport, error) {
	r, err := o.store.GetReport(ctx, postID)
	if err != nil {
		return state.ConvictionReport{}, fmt.Errorf("report %s: %w", postID, err)
	}
	return r, nil
}

// #endregion

// #region override-publish

// Override force-approves a blocked or warned report before it is published.
func (o *Orchestrator) Override(ctx context.Context, postID, reason string) (state.ConvictionReport, error) {
	r, unlock, err := o.lockedReport(ctx, postID)
	if err != nil {
		return state.ConvictionReport{}, err
	}
	defer unlock()
	if r.Published {
		return state.ConvictionReport{}, fmt.Errorf("override %s: %w", postID, ErrFrozen)
	}
	gating, err := o.predictor.Gate().Override(r.Gating, reason)
	if err != nil {
		return state.ConvictionReport{}, err
	}
	r.Gating = gating
	if err := o.store.SaveReport(ctx, r); err != nil {
		return state.ConvictionReport{}, fmt.Errorf("override %s: %w", postID, err)
	}
	o.observer.GatingDecided(string(gating.Status))
	o.publishGating(ctx, r)
	o.logger.Info("gating overridden", "post_id", postID, "original", gating.OriginalStatus, "score", r.Score)
	return r, nil
}

// Publish freezes the report. Blocked reports must be overridden first.
// Publishing an already published post returns it unchanged.
func (o *Orchestrator) Publish(ctx context.Context, postID string) (state.ConvictionReport, error) {
	r, unlock, err := o.lockedReport(ctx, postID)
	if err != nil {
		return state.ConvictionReport{}, err
	}
	defer unlock()
	if r.Published {
		return r, nil
	}
	if r.Gating.Status == state.GatingBlocked {
		return state.ConvictionReport{}, &signals.ValidationError{Field: "gating", Message: "blocked report must be overridden before publishing"}
	}
	r.Published = true
	r.PublishedAt = o.now().UTC()
	if err := o.store.SaveReport(ctx, r); err != nil {
		return state.ConvictionReport{}, fmt.Errorf("publish %s: %w", postID, err)
	}
	o.logger.Info("report published", "post_id", postID, "profile_id", r.ProfileID)
	return r, nil
}

// lockedReport loads a report under its profile's lock. The report is read
// again once the lock is held so the caller updates the latest stored copy.
func (o *Orchestrator) lockedReport(ctx context.Context, postID string) (state.ConvictionReport, func(), error) {
	r, err := o.Report(ctx, postID)
	if err != nil {
		return state.ConvictionReport{}, nil, err
	}
	unlock := o.lock(r.ProfileID)
	r, err = o.Report(ctx, postID)
	if err != nil {
		unlock()
		return state.ConvictionReport{}, nil, err
	}
	return r, unlock, nil
}

func (o *Orchestrator) publishGating(ctx context.Context, r state.ConvictionReport) {
	cfg := o.predictor.Gate().Config()
	rec := logging.NewGatingRecord(r, cfg.BlockThreshold, cfg.WarnThreshold, o.now())
	if err := o.events.PublishGating(ctx, rec); err != nil {
		o.logger.Warn("publish gating event", "post_id", r.PostID, "error", err)
	}
}

// #endregion
