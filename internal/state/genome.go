package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

// ErrStaleParent means another version became active after the caller read its parent.
var ErrStaleParent = errors.New("genome parent is no longer active")

var genomeColumns = []string{
	"version_id", "parent_id", "profile_id", "distribution_json", "primary_archetype",
	"secondary_archetype", "confidence", "keywords_json", "signal_seq", "signal_count",
	"confident_streak", "created_at",
}

// #region get-current
// GetCurrent reads the active genome version for a profile.
// Returns ErrNotFound when the profile has never been recomputed.
func (s *Store) GetCurrent(ctx context.Context, profileID string) (Genome, error) {
	query, args, err := s.sb.Select("version_id").From("active_genome").Where("profile_id = ?", profileID).ToSql()
	if err != nil {
		return Genome{}, fmt.Errorf("build get active: %w", err)
	}
	var versionID string
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&versionID)
	if errors.Is(err, sql.ErrNoRows) {
		return Genome{}, fmt.Errorf("genome for %s: %w", profileID, ErrNotFound)
	}
	if err != nil {
		return Genome{}, fmt.Errorf("get active: %w", err)
	}
	return s.GetVersion(ctx, versionID)
}
// #endregion get-current

// #region get-version
// GetVersion retrieves a specific genome version by ID.
func (s *Store) GetVersion(ctx context.Context, id string) (Genome, error) {
	query, args, err := s.sb.Select(genomeColumns...).From("genome_versions").Where("version_id = ?", id).ToSql()
	if err != nil {
		return Genome{}, fmt.Errorf("build get version: %w", err)
	}
	g, err := scanGenome(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return Genome{}, fmt.Errorf("get version %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Genome{}, fmt.Errorf("get version %s: %w", id, err)
	}
	return g, nil
}
// #endregion get-version

// #region commit-genome
// CommitGenome inserts a new version and moves the profile's active pointer in one
// transaction. The version's ParentID must be the currently active version.
func (s *Store) CommitGenome(ctx context.Context, g Genome) error {
	dist, err := json.Marshal(g.Distribution)
	if err != nil {
		return fmt.Errorf("marshal distribution: %w", err)
	}
	kw, err := json.Marshal(g.Keywords)
	if err != nil {
		return fmt.Errorf("marshal keywords: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	activeQuery, activeArgs, err := s.sb.Select("version_id").From("active_genome").Where("profile_id = ?", g.ProfileID).ToSql()
	if err != nil {
		return fmt.Errorf("build get active: %w", err)
	}
	var active string
	err = tx.QueryRowContext(ctx, activeQuery, activeArgs...).Scan(&active)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("get active: %w", err)
	}
	if active != g.ParentID {
		return fmt.Errorf("commit %s on %s (active %s): %w", g.VersionID, g.ParentID, active, ErrStaleParent)
	}

	insert, args, err := s.sb.Insert("genome_versions").
		Columns(genomeColumns...).
		Values(g.VersionID, nullIfEmpty(g.ParentID), g.ProfileID, string(dist), g.Primary, g.Secondary,
			g.Confidence, string(kw), g.SignalSeq, g.SignalCount, g.ConfidentStreak, formatTime(g.RecomputedAt)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert version: %w", err)
	}
	if _, err := tx.ExecContext(ctx, insert, args...); err != nil {
		return fmt.Errorf("insert version: %w", err)
	}

	if err := s.setActive(ctx, tx, g.ProfileID, g.VersionID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) setActive(ctx context.Context, ex execer, profileID, versionID string) error {
	query, args, err := s.sb.Insert("active_genome").
		Columns("profile_id", "version_id").
		Values(profileID, versionID).
		Suffix("ON CONFLICT (profile_id) DO UPDATE SET version_id = excluded.version_id").
		ToSql()
	if err != nil {
		return fmt.Errorf("build set active: %w", err)
	}
	if _, err := ex.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("set active: %w", err)
	}
	return nil
}
// #endregion commit-genome

// #region rollback
// Rollback points a profile's active genome at one of its previous versions.
func (s *Store) Rollback(ctx context.Context, profileID, targetVersionID string) error {
	target, err := s.GetVersion(ctx, targetVersionID)
	if err != nil {
		return err
	}
	if target.ProfileID != profileID {
		return fmt.Errorf("version %s belongs to %s, not %s", targetVersionID, target.ProfileID, profileID)
	}
	if err := s.setActive(ctx, s.db, profileID, targetVersionID); err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}
// #endregion rollback

// #region list-versions
// ListVersions returns a profile's most recent genome versions, newest first.
func (s *Store) ListVersions(ctx context.Context, profileID string, limit int) ([]Genome, error) {
	b := s.sb.Select(genomeColumns...).From("genome_versions").
		Where(sq.Eq{"profile_id": profileID}).
		OrderBy("signal_seq DESC", "created_at DESC")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list versions: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var out []Genome
	for rows.Next() {
		g, err := scanGenome(rows)
		if err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}
// #endregion list-versions

// #region scan
type rowScanner interface {
	Scan(dest ...any) error
}

func scanGenome(row rowScanner) (Genome, error) {
	var (
		g         Genome
		parentID  sql.NullString
		dist      string
		kw        string
		createdAt string
	)
	if err := row.Scan(&g.VersionID, &parentID, &g.ProfileID, &dist, &g.Primary, &g.Secondary,
		&g.Confidence, &kw, &g.SignalSeq, &g.SignalCount, &g.ConfidentStreak, &createdAt); err != nil {
		return Genome{}, err
	}
	if parentID.Valid {
		g.ParentID = parentID.String
	}
	if err := json.Unmarshal([]byte(dist), &g.Distribution); err != nil {
		return Genome{}, fmt.Errorf("unmarshal distribution: %w", err)
	}
	if err := json.Unmarshal([]byte(kw), &g.Keywords); err != nil {
		return Genome{}, fmt.Errorf("unmarshal keywords: %w", err)
	}
	if g.Keywords.Tone == nil {
		g.Keywords.Tone = map[string]float64{}
	}
	if g.Keywords.Hooks == nil {
		g.Keywords.Hooks = map[string]float64{}
	}
	g.RecomputedAt = parseTime(createdAt)
	return g, nil
}
// #endregion scan
