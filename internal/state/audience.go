package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/danielpatrickdp/taste-genome/internal/signals"
)

// #region audience-record
// GetAudience loads a post's audience record with its full fetch history.
func (s *Store) GetAudience(ctx context.Context, postID string) (AudienceDepthRecord, error) {
	query, args, err := s.sb.Select("record_json").From("audience_records").Where("post_id = ?", postID).ToSql()
	if err != nil {
		return AudienceDepthRecord{}, fmt.Errorf("build get audience: %w", err)
	}
	var raw string
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return AudienceDepthRecord{}, fmt.Errorf("audience %s: %w", postID, ErrNotFound)
	}
	if err != nil {
		return AudienceDepthRecord{}, fmt.Errorf("get audience: %w", err)
	}
	var rec AudienceDepthRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return AudienceDepthRecord{}, fmt.Errorf("unmarshal audience %s: %w", postID, err)
	}

	history, args, err := s.sb.Select("score", "fetched_at").From("audience_fetches").
		Where("post_id = ?", postID).OrderBy("id ASC").ToSql()
	if err != nil {
		return AudienceDepthRecord{}, fmt.Errorf("build fetch history: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, history, args...)
	if err != nil {
		return AudienceDepthRecord{}, fmt.Errorf("fetch history: %w", err)
	}
	defer rows.Close()
	rec.FetchHistory = nil
	for rows.Next() {
		var (
			entry     FetchEntry
			fetchedAt string
		)
		if err := rows.Scan(&entry.Score, &fetchedAt); err != nil {
			return AudienceDepthRecord{}, fmt.Errorf("scan fetch: %w", err)
		}
		entry.FetchedAt = parseTime(fetchedAt)
		rec.FetchHistory = append(rec.FetchHistory, entry)
	}
	return rec, rows.Err()
}

// SaveAudienceFetch replaces the current audience snapshot and appends one
// history entry in the same transaction. Prior history is never rewritten.
func (s *Store) SaveAudienceFetch(ctx context.Context, rec AudienceDepthRecord, entry FetchEntry) error {
	snapshot := rec
	snapshot.FetchHistory = nil
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal audience: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	upsert, args, err := s.sb.Insert("audience_records").
		Columns("post_id", "record_json", "score", "updated_at").
		Values(rec.PostID, string(raw), rec.Score, formatTime(rec.UpdatedAt)).
		Suffix(`ON CONFLICT (post_id) DO UPDATE SET
			record_json = excluded.record_json,
			score = excluded.score,
			updated_at = excluded.updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build save audience: %w", err)
	}
	if _, err := tx.ExecContext(ctx, upsert, args...); err != nil {
		return fmt.Errorf("save audience: %w", err)
	}

	insert, args, err := s.sb.Insert("audience_fetches").
		Columns("post_id", "score", "fetched_at").
		Values(rec.PostID, entry.Score, formatTime(entry.FetchedAt)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build append fetch: %w", err)
	}
	if _, err := tx.ExecContext(ctx, insert, args...); err != nil {
		return fmt.Errorf("append fetch: %w", err)
	}
	return tx.Commit()
}
// #endregion audience-record

// #region validation
var validationColumns = []string{
	"validation_id", "post_id", "profile_id", "predicted", "actual", "accuracy",
	"override_successful", "calibrated", "created_at",
}

// SaveValidation upserts the validation for a post. The first validation's ID,
// creation time and calibration flag are kept on later updates.
func (s *Store) SaveValidation(ctx context.Context, v ValidationResult) (ValidationResult, error) {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if v.CreatedAt.IsZero() {
		v.CreatedAt = now
	}
	var override any
	if v.OverrideWasSuccessful != nil {
		override = boolInt(*v.OverrideWasSuccessful)
	}
	query, args, err := s.sb.Insert("validations").
		Columns("validation_id", "post_id", "profile_id", "predicted", "actual", "accuracy",
			"override_successful", "calibrated", "created_at", "updated_at").
		Values(v.ID, v.PostID, v.ProfileID, v.Predicted, v.Actual, v.Accuracy,
			override, 0, formatTime(v.CreatedAt), formatTime(now)).
		Suffix(`ON CONFLICT (post_id) DO UPDATE SET
			predicted = excluded.predicted,
			actual = excluded.actual,
			accuracy = excluded.accuracy,
			override_successful = excluded.override_successful,
			updated_at = excluded.updated_at`).
		ToSql()
	if err != nil {
		return ValidationResult{}, fmt.Errorf("build save validation: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return ValidationResult{}, fmt.Errorf("save validation: %w", err)
	}
	return s.GetValidation(ctx, v.PostID)
}

// GetValidation loads the validation for a post.
func (s *Store) GetValidation(ctx context.Context, postID string) (ValidationResult, error) {
	query, args, err := s.sb.Select(validationColumns...).From("validations").Where("post_id = ?", postID).ToSql()
	if err != nil {
		return ValidationResult{}, fmt.Errorf("build get validation: %w", err)
	}
	v, err := scanValidation(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return ValidationResult{}, fmt.Errorf("validation for %s: %w", postID, ErrNotFound)
	}
	if err != nil {
		return ValidationResult{}, fmt.Errorf("get validation: %w", err)
	}
	return v, nil
}

// ListValidations returns a profile's validations, oldest first.
func (s *Store) ListValidations(ctx context.Context, profileID string) ([]ValidationResult, error) {
	query, args, err := s.sb.Select(validationColumns...).From("validations").
		Where("profile_id = ?", profileID).OrderBy("created_at ASC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list validations: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list validations: %w", err)
	}
	defer rows.Close()
	var out []ValidationResult
	for rows.Next() {
		v, err := scanValidation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan validation: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// CalibrateOnce flips the validation's calibrated flag and appends the
// calibration signal in one transaction. It reports false, writing nothing,
// when the validation was already calibrated.
func (s *Store) CalibrateOnce(ctx context.Context, validationID string, sig signals.Signal) (signals.Signal, bool, error) {
	sig, err := s.prepareSignal(sig)
	if err != nil {
		return signals.Signal{}, false, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return signals.Signal{}, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	query, args, err := s.sb.Update("validations").
		Set("calibrated", 1).
		Where("validation_id = ? AND calibrated = 0", validationID).
		ToSql()
	if err != nil {
		return signals.Signal{}, false, fmt.Errorf("build mark calibrated: %w", err)
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return signals.Signal{}, false, fmt.Errorf("mark calibrated: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return signals.Signal{}, false, fmt.Errorf("mark calibrated: %w", err)
	}
	if n == 0 {
		return signals.Signal{}, false, nil
	}
	if err := s.insertSignal(ctx, tx, &sig); err != nil {
		return signals.Signal{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return signals.Signal{}, false, fmt.Errorf("commit calibration: %w", err)
	}
	return sig, true, nil
}

func scanValidation(row rowScanner) (ValidationResult, error) {
	var (
		v          ValidationResult
		override   sql.NullInt64
		calibrated int
		createdAt  string
	)
	if err := row.Scan(&v.ID, &v.PostID, &v.ProfileID, &v.Predicted, &v.Actual, &v.Accuracy,
		&override, &calibrated, &createdAt); err != nil {
		return ValidationResult{}, err
	}
	if override.Valid {
		ok := override.Int64 != 0
		v.OverrideWasSuccessful = &ok
	}
	v.Calibrated = calibrated != 0
	v.CreatedAt = parseTime(createdAt)
	return v, nil
}
// #endregion validation
