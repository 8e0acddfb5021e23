package state

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/danielpatrickdp/taste-genome/internal/signals"
)

// #region append-signal
// AppendSignal validates sig and appends it to the profile's log.
// Invalid signals return a *signals.ValidationError and are not written.
// The returned signal carries its assigned ID, Seq and CreatedAt.
func (s *Store) AppendSignal(ctx context.Context, sig signals.Signal) (signals.Signal, error) {
	sig, err := s.prepareSignal(sig)
	if err != nil {
		return signals.Signal{}, err
	}
	if err := s.insertSignal(ctx, s.db, &sig); err != nil {
		return signals.Signal{}, err
	}
	return sig, nil
}

// AskedSet marks every option of a set as asked for a profile.
type AskedSet struct {
	SetID     string
	Topic     string
	OptionIDs []string
}

// AppendBatch validates every signal first, then writes them and the asked
// markers in one transaction. Either all rows land or none do.
func (s *Store) AppendBatch(ctx context.Context, sigs []signals.Signal, asked []AskedSet) ([]signals.Signal, error) {
	prepared := make([]signals.Signal, len(sigs))
	for i, sig := range sigs {
		p, err := s.prepareSignal(sig)
		if err != nil {
			return nil, err
		}
		prepared[i] = p
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for i := range prepared {
		if err := s.insertSignal(ctx, tx, &prepared[i]); err != nil {
			return nil, err
		}
	}
	if len(asked) > 0 {
		profileID := ""
		at := time.Now().UTC()
		if len(prepared) > 0 {
			profileID = prepared[0].ProfileID
			at = prepared[0].CreatedAt
		}
		if profileID == "" {
			return nil, fmt.Errorf("append batch: asked sets without a profile")
		}
		if err := s.markAsked(ctx, tx, profileID, asked, at); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit batch: %w", err)
	}
	return prepared, nil
}

func (s *Store) prepareSignal(sig signals.Signal) (signals.Signal, error) {
	if sig.CreatedAt.IsZero() {
		sig.CreatedAt = time.Now().UTC()
	}
	if err := signals.Validate(sig, s.archetypes); err != nil {
		return signals.Signal{}, err
	}
	if sig.ID == "" {
		sig.ID = uuid.New().String()
	}
	if sig.Hints == nil {
		sig.Hints = []string{}
	}
	return sig, nil
}

func (s *Store) insertSignal(ctx context.Context, q queryRower, sig *signals.Signal) error {
	payload, err := signals.EncodePayload(sig.Payload)
	if err != nil {
		return err
	}
	hints, err := json.Marshal(sig.Hints)
	if err != nil {
		return fmt.Errorf("marshal hints: %w", err)
	}

	query, args, err := s.sb.Insert("signals").
		Columns("signal_id", "profile_id", "signal_type", "topic", "payload_json", "weight", "hints_json", "created_at").
		Values(sig.ID, sig.ProfileID, string(sig.Type), nullIfEmpty(sig.Topic), string(payload), sig.Weight, string(hints), formatTime(sig.CreatedAt)).
		Suffix("RETURNING seq").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert signal: %w", err)
	}
	if err := q.QueryRowContext(ctx, query, args...).Scan(&sig.Seq); err != nil {
		return fmt.Errorf("insert signal: %w", err)
	}
	return nil
}
// #endregion append-signal

// #region list-signals
// ListSignals returns a profile's signals with seq > sinceSeq in insertion order.
func (s *Store) ListSignals(ctx context.Context, profileID string, sinceSeq int64) ([]signals.Signal, error) {
	query, args, err := s.sb.Select("seq", "signal_id", "profile_id", "signal_type", "topic", "payload_json", "weight", "hints_json", "created_at").
		From("signals").
		Where("profile_id = ? AND seq > ?", profileID, sinceSeq).
		OrderBy("seq ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list signals: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list signals: %w", err)
	}
	defer rows.Close()

	var out []signals.Signal
	for rows.Next() {
		var (
			sig       signals.Signal
			sigType   string
			topic     *string
			payload   string
			hints     string
			createdAt string
		)
		if err := rows.Scan(&sig.Seq, &sig.ID, &sig.ProfileID, &sigType, &topic, &payload, &sig.Weight, &hints, &createdAt); err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		sig.Type = signals.Type(sigType)
		if topic != nil {
			sig.Topic = *topic
		}
		sig.Payload, err = signals.DecodePayload(sig.Type, []byte(payload))
		if err != nil {
			return nil, fmt.Errorf("signal %s: %w", sig.ID, err)
		}
		if err := json.Unmarshal([]byte(hints), &sig.Hints); err != nil {
			return nil, fmt.Errorf("unmarshal hints for %s: %w", sig.ID, err)
		}
		sig.CreatedAt = parseTime(createdAt)
		out = append(out, sig)
	}
	return out, rows.Err()
}
// #endregion list-signals

// #region count-signals
// CountSignals returns the number of signals logged for a profile.
func (s *Store) CountSignals(ctx context.Context, profileID string) (int, error) {
	query, args, err := s.sb.Select("COUNT(*)").From("signals").Where("profile_id = ?", profileID).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count signals: %w", err)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count signals: %w", err)
	}
	return n, nil
}

// ListProfiles returns every profile that has logged at least one signal.
func (s *Store) ListProfiles(ctx context.Context) ([]string, error) {
	query, args, err := s.sb.Select("DISTINCT profile_id").From("signals").OrderBy("profile_id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list profiles: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// LastSeq returns the highest log position for a profile, or 0 when it has none.
func (s *Store) LastSeq(ctx context.Context, profileID string) (int64, error) {
	query, args, err := s.sb.Select("COALESCE(MAX(seq), 0)").From("signals").Where("profile_id = ?", profileID).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build last seq: %w", err)
	}
	var seq int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&seq); err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq, nil
}
// #endregion count-signals
