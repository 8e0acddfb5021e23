package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/danielpatrickdp/taste-genome/internal/eval"
	"github.com/danielpatrickdp/taste-genome/internal/logging"
	"github.com/danielpatrickdp/taste-genome/internal/signals"
	"github.com/danielpatrickdp/taste-genome/internal/state"
	"github.com/danielpatrickdp/taste-genome/internal/update"
)

// #region get-audience

// GetAudienceDepth returns the stored audience record of a published post
// with its status and validation, without fetching.
func (o *Orchestrator) GetAudienceDepth(ctx context.Context, postID string) (AudienceView, error) {
	report, err := o.publishedReport(ctx, postID)
	if err != nil {
		return AudienceView{}, err
	}
	rec, err := o.store.GetAudience(ctx, postID)
	switch {
	case errors.Is(err, state.ErrNotFound):
		rec = state.AudienceDepthRecord{PostID: postID}
	case err != nil:
		return AudienceView{}, fmt.Errorf("audience %s: %w", postID, err)
	}
	view := AudienceView{Record: rec, Status: o.harness.Status(report.PublishedAt, o.now(), rec)}
	if v, err := o.store.GetValidation(ctx, postID); err == nil {
		view.Validation = &v
	} else if !errors.Is(err, state.ErrNotFound) {
		return AudienceView{}, fmt.Errorf("audience %s: %w", postID, err)
	}
	return view, nil
}

// GetValidation returns the validation result of a post.
func (o *Orchestrator) GetValidation(ctx context.Context, postID string) (state.ValidationResult, error) {
	v, err := o.store.GetValidation(ctx, postID)
	if err != nil {
		return state.ValidationResult{}, fmt.Errorf("validation %s: %w", postID, err)
	}
	return v, nil
}

// Evolution returns a profile's validation-driven genome changes, oldest first.
func (o *Orchestrator) Evolution(ctx context.Context, profileID string, limit int) ([]logging.EvolutionEntry, error) {
	return o.recorder.List(ctx, profileID, limit)
}

// PublishedSince lists reports published at or after since.
func (o *Orchestrator) PublishedSince(ctx context.Context, since time.Time) ([]state.ConvictionReport, error) {
	return o.store.ListPublished(ctx, since)
}

// #endregion

// #region refresh

// RefreshAudienceDepth fetches engagement, appends a history point, updates the
// validation and, once the post is ready, calibrates the genome at most once.
// A failed fetch leaves the record untouched; inside the collecting window it
// is reported as collecting rather than as an error.
func (o *Orchestrator) RefreshAudienceDepth(ctx context.Context, postID string) (AudienceView, error) {
	report, err := o.publishedReport(ctx, postID)
	if err != nil {
		return AudienceView{}, err
	}
	if o.fetcher == nil {
		return AudienceView{}, fmt.Errorf("refresh %s: no metrics fetcher configured", postID)
	}

	res, err := o.measure(ctx, report)
	if err != nil {
		o.observer.FetchFailed()
		now := o.now()
		if o.harness.InWindow(report.PublishedAt, now) {
			o.logger.Info("audience still collecting", "post_id", postID, "error", err)
			view, verr := o.GetAudienceDepth(ctx, postID)
			if verr != nil {
				return AudienceView{}, verr
			}
			view.Status = eval.StatusCollecting
			return view, nil
		}
		return AudienceView{}, fmt.Errorf("refresh %s: %w", postID, err)
	}

	now := o.now()
	prev, err := o.store.GetAudience(ctx, postID)
	if err != nil && !errors.Is(err, state.ErrNotFound) {
		return AudienceView{}, fmt.Errorf("refresh %s: %w", postID, err)
	}
	rec, entry := o.harness.Apply(prev, postID, res, now)
	if err := o.store.SaveAudienceFetch(ctx, rec, entry); err != nil {
		return AudienceView{}, fmt.Errorf("refresh %s: %w", postID, err)
	}

	v := o.harness.Validate(report, rec.Score, o.predictor.Gate(), now)
	saved, err := o.store.SaveValidation(ctx, v)
	if err != nil {
		return AudienceView{}, fmt.Errorf("refresh %s: %w", postID, err)
	}
	o.observer.ValidationAccuracy(saved.Accuracy)

	status := o.harness.Status(report.PublishedAt, now, rec)
	if status == eval.StatusReady {
		calibrated, err := o.calibrate(ctx, report, saved)
		if err != nil {
			return AudienceView{}, err
		}
		saved.Calibrated = saved.Calibrated || calibrated
	}

	o.logger.Info("audience refreshed",
		"post_id", postID, "score", rec.Score, "fetches", len(rec.FetchHistory),
		"status", status, "accuracy", saved.Accuracy)
	return AudienceView{Record: rec, Status: status, Validation: &saved}, nil
}

func (o *Orchestrator) measure(ctx context.Context, report state.ConvictionReport) (eval.EvalResult, error) {
	raw, err := o.fetchWithRetry(ctx, report.PostID, report.Platforms)
	if err != nil {
		return eval.EvalResult{}, err
	}
	return o.harness.Run(raw)
}

func (o *Orchestrator) publishedReport(ctx context.Context, postID string) (state.ConvictionReport, error) {
	report, err := o.Report(ctx, postID)
	if err != nil {
		return state.ConvictionReport{}, err
	}
	if !report.Published {
		return state.ConvictionReport{}, fmt.Errorf("audience %s: %w", postID, ErrNotPublished)
	}
	return report, nil
}

// #endregion

// #region calibrate

// calibrate writes the calibration signal and flips the validation's flag in
// one transaction, recomputes and records the evolution entry. Errors inside
// the dead band write nothing and leave the post eligible for a later fetch.
// A validation already calibrated is only checked for its evolution entry.
func (o *Orchestrator) calibrate(ctx context.Context, report state.ConvictionReport, v state.ValidationResult) (bool, error) {
	if v.Calibrated {
		return true, o.resumeCalibration(ctx, report, v)
	}
	sig, ok := o.harness.CalibrationSignal(report, v, o.now())
	if !ok {
		return false, nil
	}

	unlock := o.lock(report.ProfileID)
	defer unlock()

	before, _, err := o.current(ctx, report.ProfileID)
	if err != nil {
		return false, err
	}
	written, ok, err := o.store.CalibrateOnce(ctx, v.ID, sig)
	if err != nil {
		return false, fmt.Errorf("calibrate %s: %w", report.PostID, err)
	}
	if !ok {
		return true, nil
	}
	o.observer.Calibrated()
	return true, o.recordCalibration(ctx, report, v, written, before)
}

// resumeCalibration records the entry of a calibration whose signal was
// committed by an attempt that failed before recording. The diff starts from
// the last version built before the calibration signal.
func (o *Orchestrator) resumeCalibration(ctx context.Context, report state.ConvictionReport, v state.ValidationResult) error {
	done, err := o.recorder.Recorded(ctx, v.ID)
	if err != nil || done {
		return err
	}

	unlock := o.lock(report.ProfileID)
	defer unlock()

	if done, err := o.recorder.Recorded(ctx, v.ID); err != nil || done {
		return err
	}
	written, err := o.calibrationSignal(ctx, report.ProfileID, v.ID)
	if err != nil {
		return fmt.Errorf("resume calibration %s: %w", report.PostID, err)
	}
	before := update.Uniform(o.catalog, report.ProfileID)
	versions, err := o.store.ListVersions(ctx, report.ProfileID, 0)
	if err != nil {
		return fmt.Errorf("resume calibration %s: %w", report.PostID, err)
	}
	for _, g := range versions {
		if g.SignalSeq < written.Seq {
			before = g
			break
		}
	}
	o.logger.Warn("resuming calibration", "post_id", report.PostID, "validation_id", v.ID)
	return o.recordCalibration(ctx, report, v, written, before)
}

func (o *Orchestrator) calibrationSignal(ctx context.Context, profileID, validationID string) (signals.Signal, error) {
	history, err := o.store.ListSignals(ctx, profileID, 0)
	if err != nil {
		return signals.Signal{}, err
	}
	for i := len(history) - 1; i >= 0; i-- {
		if p, ok := history[i].Payload.(signals.CalibrationPayload); ok && p.ValidationID == validationID {
			return history[i], nil
		}
	}
	return signals.Signal{}, fmt.Errorf("calibration signal for %s: %w", validationID, state.ErrNotFound)
}

// recordCalibration recomputes after a calibration signal and appends the
// evolution entry. Callers hold the profile lock.
func (o *Orchestrator) recordCalibration(ctx context.Context, report state.ConvictionReport, v state.ValidationResult, written signals.Signal, before state.Genome) error {
	after, err := o.recomputeLocked(ctx, report.ProfileID)
	if err != nil {
		return err
	}

	archetypes, keys, adjustments := logging.Diff(before, after, o.catalog.Designations())
	event, reason := calibrationReason(report, v, written.Weight)
	entry, err := o.recorder.Record(ctx, logging.EvolutionEntry{
		ProfileID:        report.ProfileID,
		VersionID:        after.VersionID,
		ValidationID:     v.ID,
		Event:            event,
		KeyChanges:       keys,
		ArchetypeChanges: archetypes,
		Adjustments:      adjustments,
		Reason:           reason,
		Timestamp:        o.now(),
	})
	if err != nil {
		return fmt.Errorf("calibrate %s: %w", report.PostID, err)
	}
	if err := o.events.PublishEvolution(ctx, entry); err != nil {
		o.logger.Warn("publish evolution event", "profile_id", report.ProfileID, "error", err)
	}
	o.logger.Info("genome calibrated", "post_id", report.PostID, "profile_id", report.ProfileID,
		"version_id", after.VersionID, "event", event, "weight", written.Weight)
	return nil
}

// calibrationReason names the event and explains it: the override outcome
// when the post was overridden, then the direction of the archetype change
// and the measurement behind it.
func calibrationReason(report state.ConvictionReport, v state.ValidationResult, weight float64) (string, string) {
	direction := "raising"
	if weight < 0 {
		direction = "lowering"
	}
	event, cause := logging.EventCalibration, "post outperformed its prediction"
	if weight < 0 {
		cause = "post underperformed its prediction"
	}
	if v.OverrideWasSuccessful != nil {
		if *v.OverrideWasSuccessful {
			event, cause = logging.EventOverride, "override succeeded"
		} else {
			event, cause = logging.EventOverrideRefuted, "override failed"
		}
	}
	return event, fmt.Sprintf("%s, %s confidence in %s archetype (post %s predicted %.0f, measured %.1f, accuracy %.1f, weight %+.2f)",
		cause, direction, report.ContentArchetype, report.PostID, v.Predicted, v.Actual, v.Accuracy, weight)
}

// #endregion
