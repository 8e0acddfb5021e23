package logging

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/danielpatrickdp/taste-genome/internal/state"
)

// changeEpsilon hides float noise in archetype and keyword deltas.
const changeEpsilon = 1e-9

// #region recorder
// Recorder appends and reads the genome_evolution table.
type Recorder struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

// NewRecorder writes through the store's connection and placeholder style.
func NewRecorder(store *state.Store) *Recorder {
	return &Recorder{db: store.DB(), sb: store.Builder()}
}

// Record appends an evolution entry. Entries are never updated.
func (r *Recorder) Record(ctx context.Context, entry EvolutionEntry) (EvolutionEntry, error) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	raw, err := json.Marshal(changes{
		KeyChanges:       entry.KeyChanges,
		ArchetypeChanges: entry.ArchetypeChanges,
		Adjustments:      entry.Adjustments,
	})
	if err != nil {
		return EvolutionEntry{}, fmt.Errorf("marshal changes: %w", err)
	}

	query, args, err := r.sb.Insert("genome_evolution").
		Columns("entry_id", "profile_id", "version_id", "validation_id", "event", "changes_json", "reason", "created_at").
		Values(entry.ID, entry.ProfileID, nullIfEmpty(entry.VersionID), nullIfEmpty(entry.ValidationID),
			entry.Event, string(raw), nullIfEmpty(entry.Reason), entry.Timestamp.UTC().Format(state.TimeLayout)).
		ToSql()
	if err != nil {
		return EvolutionEntry{}, fmt.Errorf("build record evolution: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return EvolutionEntry{}, fmt.Errorf("record evolution: %w", err)
	}
	return entry, nil
}

// List returns a profile's timeline in the order it was written.
func (r *Recorder) List(ctx context.Context, profileID string, limit int) ([]EvolutionEntry, error) {
	b := r.sb.Select("entry_id", "profile_id", "version_id", "validation_id", "event", "changes_json", "reason", "created_at").
		From("genome_evolution").
		Where("profile_id = ?", profileID).
		OrderBy("id ASC")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list evolution: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list evolution: %w", err)
	}
	defer rows.Close()

	var out []EvolutionEntry
	for rows.Next() {
		var (
			e                           EvolutionEntry
			versionID, validationID, rs sql.NullString
			raw, createdAt              string
		)
		if err := rows.Scan(&e.ID, &e.ProfileID, &versionID, &validationID, &e.Event, &raw, &rs, &createdAt); err != nil {
			return nil, fmt.Errorf("scan evolution: %w", err)
		}
		e.VersionID = versionID.String
		e.ValidationID = validationID.String
		e.Reason = rs.String
		var c changes
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			return nil, fmt.Errorf("unmarshal changes %s: %w", e.ID, err)
		}
		e.KeyChanges, e.ArchetypeChanges, e.Adjustments = c.KeyChanges, c.ArchetypeChanges, c.Adjustments
		e.Timestamp, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Recorded reports whether validationID already has an entry.
func (r *Recorder) Recorded(ctx context.Context, validationID string) (bool, error) {
	query, args, err := r.sb.Select("COUNT(*)").
		From("genome_evolution").
		Where("validation_id = ?", validationID).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build count evolution: %w", err)
	}
	var n int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return false, fmt.Errorf("count evolution: %w", err)
	}
	return n > 0, nil
}
// #endregion recorder

// #region diff
// Diff fills the change lists of an entry from two genome versions.
// order is the catalog order, which fixes the archetype listing.
func Diff(before, after state.Genome, order []string) ([]ArchetypeChange, []KeyChange, []Adjustment) {
	var archetypes []ArchetypeChange
	var adjustments []Adjustment
	for _, d := range order {
		delta := after.Distribution[d] - before.Distribution[d]
		if math.Abs(delta) <= changeEpsilon {
			continue
		}
		archetypes = append(archetypes, ArchetypeChange{Archetype: d, ConfidenceChange: delta})
		adjustments = append(adjustments, Adjustment{
			Component: "probability:" + d,
			Before:    formatFloat(before.Distribution[d]),
			After:     formatFloat(after.Distribution[d]),
		})
	}

	if before.Confidence != after.Confidence {
		adjustments = append(adjustments, Adjustment{
			Component: "confidence",
			Before:    formatFloat(before.Confidence),
			After:     formatFloat(after.Confidence),
		})
	}
	if before.Primary != after.Primary {
		adjustments = append(adjustments, Adjustment{Component: "primary", Before: before.Primary, After: after.Primary})
	}

	keys := keywordDeltas("tone:", before.Keywords.Tone, after.Keywords.Tone)
	keys = append(keys, keywordDeltas("hook:", before.Keywords.Hooks, after.Keywords.Hooks)...)
	return archetypes, keys, adjustments
}

func keywordDeltas(prefix string, before, after map[string]float64) []KeyChange {
	seen := make(map[string]bool, len(before)+len(after))
	var labels []string
	for k := range before {
		if !seen[k] {
			seen[k] = true
			labels = append(labels, k)
		}
	}
	for k := range after {
		if !seen[k] {
			seen[k] = true
			labels = append(labels, k)
		}
	}
	sort.Strings(labels)

	var out []KeyChange
	for _, k := range labels {
		delta := after[k] - before[k]
		if math.Abs(delta) <= changeEpsilon {
			continue
		}
		out = append(out, KeyChange{Label: prefix + k, Delta: delta})
	}
	return out
}

func formatFloat(v float64) string {
	return fmt.Sprintf("%.4f", v)
}
// #endregion diff

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
// #endregion helpers
