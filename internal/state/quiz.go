package state

import (
	"context"
	"fmt"
	"time"
)

// QuizProgress is what a profile has already been shown.
type QuizProgress struct {
	AskedOptions map[string]bool
	AskedSets    map[string]bool
	AskedTopics  map[string]bool
}

// AnsweredCount is the number of sets the profile has responded to, passes included.
func (p QuizProgress) AnsweredCount() int {
	return len(p.AskedSets)
}

// #region mark-asked
// MarkAsked records every option of the given sets as asked. Re-marking is a no-op.
func (s *Store) MarkAsked(ctx context.Context, profileID string, sets []AskedSet, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()
	if err := s.markAsked(ctx, tx, profileID, sets, at); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) markAsked(ctx context.Context, ex execer, profileID string, sets []AskedSet, at time.Time) error {
	for _, set := range sets {
		for _, optionID := range set.OptionIDs {
			query, args, err := s.sb.Insert("quiz_asked").
				Columns("profile_id", "option_id", "set_id", "topic", "asked_at").
				Values(profileID, optionID, set.SetID, set.Topic, formatTime(at)).
				Suffix("ON CONFLICT (profile_id, option_id) DO NOTHING").
				ToSql()
			if err != nil {
				return fmt.Errorf("build mark asked: %w", err)
			}
			if _, err := ex.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("mark asked %s: %w", optionID, err)
			}
		}
	}
	return nil
}
// #endregion mark-asked

// #region quiz-progress
// QuizProgress loads the asked options, sets and topics for a profile.
func (s *Store) QuizProgress(ctx context.Context, profileID string) (QuizProgress, error) {
	progress := QuizProgress{
		AskedOptions: map[string]bool{},
		AskedSets:    map[string]bool{},
		AskedTopics:  map[string]bool{},
	}
	query, args, err := s.sb.Select("option_id", "set_id", "topic").From("quiz_asked").Where("profile_id = ?", profileID).ToSql()
	if err != nil {
		return progress, fmt.Errorf("build quiz progress: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return progress, fmt.Errorf("quiz progress: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var optionID, setID, topic string
		if err := rows.Scan(&optionID, &setID, &topic); err != nil {
			return progress, fmt.Errorf("scan asked: %w", err)
		}
		progress.AskedOptions[optionID] = true
		progress.AskedSets[setID] = true
		progress.AskedTopics[topic] = true
	}
	return progress, rows.Err()
}
// #endregion quiz-progress
