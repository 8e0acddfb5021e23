package signals

import (
	"encoding/json"
	"fmt"
	"time"
)

// #region signal-type

// Type enumerates the kinds of preference signal the store accepts.
type Type string

const (
	TypeQuizAnswer     Type = "quiz-answer"
	TypeChoice         Type = "choice"
	TypeLikert         Type = "likert"
	TypeBestWorst      Type = "best-worst"
	TypePass           Type = "pass"
	TypePreferenceList Type = "preference-list"

	// TypeCalibration is written only by the audience validator.
	TypeCalibration Type = "calibration"
)

var externalTypes = map[Type]bool{
	TypeQuizAnswer:     true,
	TypeChoice:         true,
	TypeLikert:         true,
	TypeBestWorst:      true,
	TypePass:           true,
	TypePreferenceList: true,
}

// ParseType accepts only the types a caller outside the engine may submit.
func ParseType(s string) (Type, error) {
	t := Type(s)
	if !externalTypes[t] {
		return "", &ValidationError{Field: "type", Message: fmt.Sprintf("unknown signal type %q", s)}
	}
	return t, nil
}

// Known reports whether t is any recognised type, internal ones included.
func (t Type) Known() bool {
	return externalTypes[t] || t == TypeCalibration
}

// #endregion signal-type

// #region weights

const (
	// MaxAbsWeight bounds |Signal.Weight|.
	MaxAbsWeight = 5.0

	ChoiceWeight     = 1.0
	BestWorstWeight  = 2.0
	PreferenceWeight = 1.0
	likertCenter     = 3
)

// #endregion weights

// #region signal

// Signal is one immutable entry in a profile's preference log.
type Signal struct {
	ID        string
	ProfileID string
	Seq       int64 // log position assigned by the store
	Type      Type
	Topic     string
	Payload   Payload
	Weight    float64
	Hints     []string
	CreatedAt time.Time
}

// #endregion signal

// #region payloads

// Payload is the per-type body of a signal.
type Payload interface {
	Kind() Type
	Validate() error
}

// Pole marks which end of a best/worst pick a signal records.
type Pole string

const (
	PoleBest  Pole = "best"
	PoleWorst Pole = "worst"
)

// QuizAnswerPayload records the option picked in a 2-card set.
type QuizAnswerPayload struct {
	SetID    string `json:"setId"`
	OptionID string `json:"optionId"`
}

// ChoicePayload records the option picked in a 4-card set.
type ChoicePayload struct {
	SetID    string `json:"setId"`
	OptionID string `json:"optionId"`
}

// LikertPayload records a 1..5 agreement rating for a statement or option.
type LikertPayload struct {
	StatementID string `json:"statementId"`
	Score       int    `json:"score"`
}

// BestWorstPayload records one end of a best/worst pick.
type BestWorstPayload struct {
	SetID    string `json:"setId"`
	OptionID string `json:"optionId"`
	Pole     Pole   `json:"pole"`
}

// PassPayload records a skipped set.
type PassPayload struct {
	SetID string `json:"setId"`
}

// PreferenceListPayload carries free-text preferences and explicit tags.
type PreferenceListPayload struct {
	Tone  []string `json:"tone,omitempty"`
	Hooks []string `json:"hooks,omitempty"`
	Text  string   `json:"text,omitempty"`
}

// CalibrationPayload ties a model nudge to a validated post.
type CalibrationPayload struct {
	PostID       string   `json:"postId"`
	ValidationID string   `json:"validationId"`
	Predicted    float64  `json:"predicted"`
	Actual       float64  `json:"actual"`
	ToneTags     []string `json:"toneTags,omitempty"`
	HookTags     []string `json:"hookTags,omitempty"`
}

func (QuizAnswerPayload) Kind() Type     { return TypeQuizAnswer }
func (ChoicePayload) Kind() Type         { return TypeChoice }
func (LikertPayload) Kind() Type         { return TypeLikert }
func (BestWorstPayload) Kind() Type      { return TypeBestWorst }
func (PassPayload) Kind() Type           { return TypePass }
func (PreferenceListPayload) Kind() Type { return TypePreferenceList }
func (CalibrationPayload) Kind() Type    { return TypeCalibration }

// #endregion payloads

// #region encoding

// EncodePayload serializes a payload for storage.
func EncodePayload(p Payload) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("encode payload: nil payload")
	}
	return json.Marshal(p)
}

// DecodePayload rebuilds the typed payload for t from raw JSON.
func DecodePayload(t Type, raw []byte) (Payload, error) {
	var (
		p   Payload
		err error
	)
	switch t {
	case TypeQuizAnswer:
		var v QuizAnswerPayload
		err = json.Unmarshal(raw, &v)
		p = v
	case TypeChoice:
		var v ChoicePayload
		err = json.Unmarshal(raw, &v)
		p = v
	case TypeLikert:
		var v LikertPayload
		err = json.Unmarshal(raw, &v)
		p = v
	case TypeBestWorst:
		var v BestWorstPayload
		err = json.Unmarshal(raw, &v)
		p = v
	case TypePass:
		var v PassPayload
		err = json.Unmarshal(raw, &v)
		p = v
	case TypePreferenceList:
		var v PreferenceListPayload
		err = json.Unmarshal(raw, &v)
		p = v
	case TypeCalibration:
		var v CalibrationPayload
		err = json.Unmarshal(raw, &v)
		p = v
	default:
		return nil, &ValidationError{Field: "type", Message: fmt.Sprintf("unknown signal type %q", t)}
	}
	if err != nil {
		return nil, &ValidationError{Field: "payload", Message: fmt.Sprintf("decode %s payload: %v", t, err)}
	}
	return p, nil
}

// #endregion encoding

// #region default-weight

// DefaultWeight is the signed weight a payload carries when the caller supplies none.
func DefaultWeight(p Payload) float64 {
	switch v := p.(type) {
	case QuizAnswerPayload, ChoicePayload:
		return ChoiceWeight
	case LikertPayload:
		return float64(v.Score - likertCenter)
	case BestWorstPayload:
		if v.Pole == PoleWorst {
			return -BestWorstWeight
		}
		return BestWorstWeight
	case PreferenceListPayload:
		return PreferenceWeight
	default:
		return 0
	}
}

// #endregion default-weight
