package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrFrozen is returned when a write targets a published conviction report.
var ErrFrozen = errors.New("conviction report is frozen")

// #region save-report
// SaveReport inserts or replaces the report for a post. Once a stored report is
// published it can no longer be replaced.
func (s *Store) SaveReport(ctx context.Context, r ConvictionReport) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	check, args, err := s.sb.Select("published").From("conviction_reports").Where("post_id = ?", r.PostID).ToSql()
	if err != nil {
		return fmt.Errorf("build check report: %w", err)
	}
	var published int
	err = tx.QueryRowContext(ctx, check, args...).Scan(&published)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("check report: %w", err)
	case published != 0:
		return fmt.Errorf("save report %s: %w", r.PostID, ErrFrozen)
	}

	var publishedAt any
	if r.Published {
		publishedAt = formatTime(r.PublishedAt)
	}
	upsert, args, err := s.sb.Insert("conviction_reports").
		Columns("post_id", "profile_id", "report_json", "score", "gating_status", "published", "published_at", "updated_at").
		Values(r.PostID, r.ProfileID, string(raw), r.Score, string(r.Gating.Status), boolInt(r.Published), publishedAt, formatTime(time.Now())).
		Suffix(`ON CONFLICT (post_id) DO UPDATE SET
			profile_id = excluded.profile_id,
			report_json = excluded.report_json,
			score = excluded.score,
			gating_status = excluded.gating_status,
			published = excluded.published,
			published_at = excluded.published_at,
			updated_at = excluded.updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build save report: %w", err)
	}
	if _, err := tx.ExecContext(ctx, upsert, args...); err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	return tx.Commit()
}
// #endregion save-report

// #region get-report
// GetReport loads the stored conviction report for a post.
func (s *Store) GetReport(ctx context.Context, postID string) (ConvictionReport, error) {
	query, args, err := s.sb.Select("report_json").From("conviction_reports").Where("post_id = ?", postID).ToSql()
	if err != nil {
		return ConvictionReport{}, fmt.Errorf("build get report: %w", err)
	}
	var raw string
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return ConvictionReport{}, fmt.Errorf("report %s: %w", postID, ErrNotFound)
	}
	if err != nil {
		return ConvictionReport{}, fmt.Errorf("get report: %w", err)
	}
	var r ConvictionReport
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return ConvictionReport{}, fmt.Errorf("unmarshal report %s: %w", postID, err)
	}
	return r, nil
}

// ListPublished returns reports published at or after since, oldest first.
func (s *Store) ListPublished(ctx context.Context, since time.Time) ([]ConvictionReport, error) {
	query, args, err := s.sb.Select("report_json").From("conviction_reports").
		Where("published = 1 AND published_at >= ?", formatTime(since)).
		OrderBy("published_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list published: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list published: %w", err)
	}
	defer rows.Close()

	var out []ConvictionReport
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		var r ConvictionReport
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("unmarshal report: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
// #endregion get-report
