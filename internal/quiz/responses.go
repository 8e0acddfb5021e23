package quiz

import (
	"fmt"
	"time"

	"github.com/danielpatrickdp/taste-genome/internal/catalog"
	"github.com/danielpatrickdp/taste-genome/internal/signals"
	"github.com/danielpatrickdp/taste-genome/internal/state"
)

// #region response
// Response is one answered question set. Which fields apply depends on Type:
// quiz-answer and choice use OptionID, likert uses OptionID and Score,
// best-worst uses Best and Worst, pass uses only SetID.
// An empty Type is inferred from the set size.
type Response struct {
	SetID    string       `json:"setId"`
	Type     signals.Type `json:"type,omitempty"`
	OptionID string       `json:"optionId,omitempty"`
	Score    int          `json:"score,omitempty"`
	Best     string       `json:"best,omitempty"`
	Worst    string       `json:"worst,omitempty"`
}

// SetLookup resolves question sets by id.
type SetLookup interface {
	Set(id string) (catalog.QuestionSet, bool)
}
// #endregion response

// #region translate
// Translate turns responses into signals plus the sets to mark as asked.
// Nothing is returned unless every response is valid. A best/worst response
// yields two independent signals of opposite sign.
func Translate(pool SetLookup, profileID string, responses []Response, progress state.QuizProgress, at time.Time) ([]signals.Signal, []state.AskedSet, error) {
	if len(responses) == 0 {
		return nil, nil, &signals.ValidationError{Field: "responses", Message: "at least one response required"}
	}
	var (
		out   []signals.Signal
		marks []state.AskedSet
		seen  = map[string]bool{}
	)
	for i, r := range responses {
		set, ok := pool.Set(r.SetID)
		if !ok {
			return nil, nil, invalidf(i, "setId", "unknown question set %q", r.SetID)
		}
		if seen[set.ID] {
			return nil, nil, invalidf(i, "setId", "set %s answered twice", set.ID)
		}
		if asked(set, progress) {
			return nil, nil, invalidf(i, "setId", "set %s was already answered", set.ID)
		}
		seen[set.ID] = true

		sigs, err := translateOne(set, profileID, r, i, at)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, sigs...)
		marks = append(marks, Asked(set))
	}
	return out, marks, nil
}

func translateOne(set catalog.QuestionSet, profileID string, r Response, i int, at time.Time) ([]signals.Signal, error) {
	kind := r.Type
	if kind == "" {
		kind = signals.TypeQuizAnswer
		if len(set.Options) == 4 {
			kind = signals.TypeChoice
		}
	}
	base := signals.Signal{ProfileID: profileID, Type: kind, Topic: set.Topic, CreatedAt: at}

	switch kind {
	case signals.TypeQuizAnswer, signals.TypeChoice:
		opt, err := optionOf(set, r.OptionID, i, "optionId")
		if err != nil {
			return nil, err
		}
		base.Hints = []string{opt.ArchetypeHint}
		if kind == signals.TypeQuizAnswer {
			base.Payload = signals.QuizAnswerPayload{SetID: set.ID, OptionID: opt.ID}
		} else {
			base.Payload = signals.ChoicePayload{SetID: set.ID, OptionID: opt.ID}
		}
		base.Weight = signals.DefaultWeight(base.Payload)
		return []signals.Signal{base}, nil

	case signals.TypeLikert:
		opt, err := optionOf(set, r.OptionID, i, "optionId")
		if err != nil {
			return nil, err
		}
		base.Hints = []string{opt.ArchetypeHint}
		base.Payload = signals.LikertPayload{StatementID: opt.ID, Score: r.Score}
		if err := base.Payload.Validate(); err != nil {
			return nil, err
		}
		base.Weight = signals.DefaultWeight(base.Payload)
		return []signals.Signal{base}, nil

	case signals.TypeBestWorst:
		best, err := optionOf(set, r.Best, i, "best")
		if err != nil {
			return nil, err
		}
		worst, err := optionOf(set, r.Worst, i, "worst")
		if err != nil {
			return nil, err
		}
		if best.ID == worst.ID {
			return nil, invalidf(i, "worst", "best and worst must differ")
		}
		hi, lo := base, base
		hi.Hints, lo.Hints = []string{best.ArchetypeHint}, []string{worst.ArchetypeHint}
		hi.Payload = signals.BestWorstPayload{SetID: set.ID, OptionID: best.ID, Pole: signals.PoleBest}
		lo.Payload = signals.BestWorstPayload{SetID: set.ID, OptionID: worst.ID, Pole: signals.PoleWorst}
		hi.Weight = signals.DefaultWeight(hi.Payload)
		lo.Weight = signals.DefaultWeight(lo.Payload)
		return []signals.Signal{hi, lo}, nil

	case signals.TypePass:
		base.Payload = signals.PassPayload{SetID: set.ID}
		return []signals.Signal{base}, nil

	default:
		return nil, invalidf(i, "type", "%q is not a quiz response type", kind)
	}
}
// #endregion translate

// #region helpers
func optionOf(set catalog.QuestionSet, id string, i int, field string) (catalog.QuestionOption, error) {
	if id == "" {
		return catalog.QuestionOption{}, invalidf(i, field, "required")
	}
	for _, opt := range set.Options {
		if opt.ID == id {
			return opt, nil
		}
	}
	return catalog.QuestionOption{}, invalidf(i, field, "option %q is not in set %s", id, set.ID)
}

// Asked is the marker that records set as shown to a profile.
func Asked(set catalog.QuestionSet) state.AskedSet {
	ids := make([]string, len(set.Options))
	for i, opt := range set.Options {
		ids[i] = opt.ID
	}
	return state.AskedSet{SetID: set.ID, Topic: set.Topic, OptionIDs: ids}
}

func invalidf(i int, field, format string, args ...any) error {
	return &signals.ValidationError{
		Field:   fmt.Sprintf("responses[%d].%s", i, field),
		Message: fmt.Sprintf(format, args...),
	}
}
// #endregion helpers
