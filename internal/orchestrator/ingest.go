package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/danielpatrickdp/taste-genome/internal/catalog"
	"github.com/danielpatrickdp/taste-genome/internal/quiz"
	"github.com/danielpatrickdp/taste-genome/internal/signals"
	"github.com/danielpatrickdp/taste-genome/internal/state"
)

// #region submit-signal

// SubmitSignal validates and appends one signal, then recomputes the genome.
// Calibration signals are internal and rejected here. A zero weight on a
// weighted type takes the type's default; option-based payloads without hints
// get the option's archetype hint. A signal naming a catalog set marks the set
// asked, and a set already asked is rejected unless the signal completes a
// best-worst pair.
func (o *Orchestrator) SubmitSignal(ctx context.Context, sig signals.Signal) (signals.Signal, state.Genome, error) {
	if _, err := signals.ParseType(string(sig.Type)); err != nil {
		o.rejected(err)
		return signals.Signal{}, state.Genome{}, err
	}
	if sig.Weight == 0 && sig.Payload != nil {
		sig.Weight = signals.DefaultWeight(sig.Payload)
	}
	if sig.CreatedAt.IsZero() {
		sig.CreatedAt = o.now()
	}
	if err := signals.Validate(sig, o.catalog); err != nil {
		o.rejected(err)
		return signals.Signal{}, state.Genome{}, err
	}
	set, inCatalog, err := o.resolve(&sig)
	if err != nil {
		o.rejected(err)
		return signals.Signal{}, state.Genome{}, err
	}

	unlock := o.lock(sig.ProfileID)
	defer unlock()

	var marks []state.AskedSet
	if inCatalog {
		fresh, err := o.unasked(ctx, sig, set)
		if err != nil {
			o.rejected(err)
			return signals.Signal{}, state.Genome{}, err
		}
		if fresh {
			marks = []state.AskedSet{quiz.Asked(set)}
		}
	}
	stored, err := o.store.AppendBatch(ctx, []signals.Signal{sig}, marks)
	if err != nil {
		o.rejected(err)
		return signals.Signal{}, state.Genome{}, fmt.Errorf("submit signal: %w", err)
	}
	o.observer.SignalIngested(string(stored[0].Type))

	g, err := o.recomputeLocked(ctx, sig.ProfileID)
	if err != nil {
		return stored[0], state.Genome{}, err
	}
	return stored[0], g, nil
}

// resolve looks up the catalog option or set a payload names. It fills
// missing hints and set ids from the catalog and reports whether the signal
// belongs to a catalog set. An option the catalog does not know is only
// accepted with explicit hints.
func (o *Orchestrator) resolve(sig *signals.Signal) (catalog.QuestionSet, bool, error) {
	var setID, optionID, field string
	switch v := sig.Payload.(type) {
	case signals.QuizAnswerPayload:
		setID, optionID, field = v.SetID, v.OptionID, "payload.optionId"
	case signals.ChoicePayload:
		setID, optionID, field = v.SetID, v.OptionID, "payload.optionId"
	case signals.BestWorstPayload:
		setID, optionID, field = v.SetID, v.OptionID, "payload.optionId"
	case signals.LikertPayload:
		optionID, field = v.StatementID, "payload.statementId"
	case signals.PassPayload:
		set, ok := o.catalog.Set(v.SetID)
		return set, ok, nil
	default:
		return catalog.QuestionSet{}, false, nil
	}

	opt, ok := o.catalog.Option(optionID)
	if !ok {
		if len(sig.Hints) > 0 {
			return catalog.QuestionSet{}, false, nil
		}
		return catalog.QuestionSet{}, false, &signals.ValidationError{
			Field:   field,
			Message: fmt.Sprintf("unknown option %q and no archetype hints given", optionID),
		}
	}
	set, _ := o.catalog.SetOf(opt.ID)
	if setID != "" && setID != set.ID {
		return catalog.QuestionSet{}, false, &signals.ValidationError{
			Field:   field,
			Message: fmt.Sprintf("option %q is not in set %s", optionID, setID),
		}
	}
	if len(sig.Hints) == 0 {
		sig.Hints = []string{opt.ArchetypeHint}
	}
	switch v := sig.Payload.(type) {
	case signals.QuizAnswerPayload:
		v.SetID = set.ID
		sig.Payload = v
	case signals.ChoicePayload:
		v.SetID = set.ID
		sig.Payload = v
	case signals.BestWorstPayload:
		v.SetID = set.ID
		sig.Payload = v
	}
	return set, true, nil
}

// unasked reports whether set still needs its asked marker. A set already
// asked rejects the signal, except for the second half of a best-worst pair:
// the opposite pole on a different option, with no other pick of this pole.
// Callers hold the profile lock.
func (o *Orchestrator) unasked(ctx context.Context, sig signals.Signal, set catalog.QuestionSet) (bool, error) {
	progress, err := o.store.QuizProgress(ctx, sig.ProfileID)
	if err != nil {
		return false, fmt.Errorf("submit signal: %w", err)
	}
	if !progress.AskedSets[set.ID] {
		return true, nil
	}
	answered := &signals.ValidationError{
		Field:   "payload.setId",
		Message: fmt.Sprintf("set %s was already answered", set.ID),
	}
	pick, ok := sig.Payload.(signals.BestWorstPayload)
	if !ok {
		return false, answered
	}
	history, err := o.store.ListSignals(ctx, sig.ProfileID, 0)
	if err != nil {
		return false, fmt.Errorf("submit signal: %w", err)
	}
	paired := false
	for _, h := range history {
		prior, ok := h.Payload.(signals.BestWorstPayload)
		if !ok || prior.SetID != set.ID {
			continue
		}
		if prior.Pole == pick.Pole || prior.OptionID == pick.OptionID {
			return false, answered
		}
		paired = true
	}
	if !paired {
		return false, answered
	}
	return false, nil
}

func (o *Orchestrator) rejected(err error) {
	var verr *signals.ValidationError
	if errors.As(err, &verr) {
		o.observer.SignalRejected(verr.Field)
	}
}

// #endregion

// #region quiz

// GetQuizBatch picks the next question sets from the last committed genome.
func (o *Orchestrator) GetQuizBatch(ctx context.Context, profileID string) (quiz.Batch, error) {
	g, found, err := o.current(ctx, profileID)
	if err != nil {
		return quiz.Batch{}, err
	}
	progress, err := o.store.QuizProgress(ctx, profileID)
	if err != nil {
		return quiz.Batch{}, fmt.Errorf("quiz batch %s: %w", profileID, err)
	}
	return o.selector.Next(g, found, progress), nil
}

// SubmitQuizAnswers stores every response of a batch atomically, recomputes
// and returns the next batch with the new genome. Invalid responses write nothing.
func (o *Orchestrator) SubmitQuizAnswers(ctx context.Context, profileID string, responses []quiz.Response) (quiz.Batch, state.Genome, error) {
	unlock := o.lock(profileID)
	defer unlock()

	progress, err := o.store.QuizProgress(ctx, profileID)
	if err != nil {
		return quiz.Batch{}, state.Genome{}, fmt.Errorf("quiz answers %s: %w", profileID, err)
	}
	sigs, marks, err := quiz.Translate(o.catalog, profileID, responses, progress, o.now())
	if err != nil {
		o.rejected(err)
		return quiz.Batch{}, state.Genome{}, err
	}
	stored, err := o.store.AppendBatch(ctx, sigs, marks)
	if err != nil {
		o.rejected(err)
		return quiz.Batch{}, state.Genome{}, fmt.Errorf("quiz answers %s: %w", profileID, err)
	}
	for _, s := range stored {
		o.observer.SignalIngested(string(s.Type))
	}

	g, err := o.recomputeLocked(ctx, profileID)
	if err != nil {
		return quiz.Batch{}, state.Genome{}, err
	}
	progress, err = o.store.QuizProgress(ctx, profileID)
	if err != nil {
		return quiz.Batch{}, state.Genome{}, fmt.Errorf("quiz answers %s: %w", profileID, err)
	}
	return o.selector.Next(g, true, progress), g, nil
}

// #endregion
