package signals

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// #region validation-error

// ValidationError reports why a signal was refused at ingestion.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid signal: %s: %s", e.Field, e.Message)
}

// IsValidation reports whether err is, or wraps, a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// #endregion validation-error

// #region catalog-interface

// ArchetypeSet is the subset of the catalog validation needs.
type ArchetypeSet interface {
	Has(designation string) bool
}

// #endregion catalog-interface

// #region validate

// Validate checks a signal before it is written. Nothing is persisted on failure.
func Validate(sig Signal, archetypes ArchetypeSet) error {
	if strings.TrimSpace(sig.ProfileID) == "" {
		return invalid("profileId", "required")
	}
	if !sig.Type.Known() {
		return invalid("type", "unknown signal type %q", sig.Type)
	}
	if sig.Payload == nil {
		return invalid("payload", "required for %s", sig.Type)
	}
	if sig.Payload.Kind() != sig.Type {
		return invalid("payload", "%s payload on %s signal", sig.Payload.Kind(), sig.Type)
	}
	if math.IsNaN(sig.Weight) || math.IsInf(sig.Weight, 0) {
		return invalid("weight", "not a finite number")
	}
	if math.Abs(sig.Weight) > MaxAbsWeight {
		return invalid("weight", "%.3f outside [-%.0f, %.0f]", sig.Weight, MaxAbsWeight, MaxAbsWeight)
	}
	for _, h := range sig.Hints {
		if !archetypes.Has(h) {
			return invalid("archetypeHint", "unknown archetype %q", h)
		}
	}
	if err := sig.Payload.Validate(); err != nil {
		return err
	}

	switch p := sig.Payload.(type) {
	case PassPayload:
		if sig.Weight != 0 {
			return invalid("weight", "pass signals carry no weight")
		}
	case BestWorstPayload:
		if p.Pole == PoleBest && sig.Weight < 0 {
			return invalid("weight", "best pick must not be negative")
		}
		if p.Pole == PoleWorst && sig.Weight > 0 {
			return invalid("weight", "worst pick must not be positive")
		}
	case CalibrationPayload:
		if len(sig.Hints) == 0 {
			return invalid("archetypeHint", "calibration requires a target archetype")
		}
	}
	return nil
}

// #endregion validate

// #region payload-validate

func (p QuizAnswerPayload) Validate() error {
	if p.OptionID == "" {
		return invalid("payload.optionId", "required")
	}
	return nil
}

func (p ChoicePayload) Validate() error {
	if p.OptionID == "" {
		return invalid("payload.optionId", "required")
	}
	return nil
}

func (p LikertPayload) Validate() error {
	if p.Score < 1 || p.Score > 5 {
		return invalid("payload.score", "%d outside 1..5", p.Score)
	}
	return nil
}

func (p BestWorstPayload) Validate() error {
	if p.OptionID == "" {
		return invalid("payload.optionId", "required")
	}
	if p.Pole != PoleBest && p.Pole != PoleWorst {
		return invalid("payload.pole", "must be best or worst, got %q", p.Pole)
	}
	return nil
}

func (p PassPayload) Validate() error {
	return nil
}

func (p PreferenceListPayload) Validate() error {
	if len(p.Tone) == 0 && len(p.Hooks) == 0 && strings.TrimSpace(p.Text) == "" {
		return invalid("payload", "preference list is empty")
	}
	return nil
}

func (p CalibrationPayload) Validate() error {
	if p.PostID == "" {
		return invalid("payload.postId", "required")
	}
	return nil
}

// #endregion payload-validate
