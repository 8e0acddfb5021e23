package api

import (
	"encoding/json"
	"time"

	"github.com/danielpatrickdp/taste-genome/internal/quiz"
	"github.com/danielpatrickdp/taste-genome/internal/signals"
	"github.com/danielpatrickdp/taste-genome/internal/state"
)

// #region requests

type signalRequest struct {
	Type    string          `json:"type" binding:"required"`
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload" binding:"required"`
	Weight  float64         `json:"weight"`
	Hints   []string        `json:"hints"`
}

func (r signalRequest) toSignal(profileID string) (signals.Signal, error) {
	t := signals.Type(r.Type)
	p, err := signals.DecodePayload(t, r.Payload)
	if err != nil {
		return signals.Signal{}, err
	}
	return signals.Signal{
		ProfileID: profileID,
		Type:      t,
		Topic:     r.Topic,
		Payload:   p,
		Weight:    r.Weight,
		Hints:     r.Hints,
	}, nil
}

type quizAnswersRequest struct {
	Responses []quiz.Response `json:"responses" binding:"required"`
}

type overrideRequest struct {
	Reason string `json:"reason"`
}

type rollbackRequest struct {
	VersionID string `json:"versionId" binding:"required"`
}

// #endregion requests

// #region responses

type genomeResponse struct {
	VersionID       string               `json:"versionId,omitempty"`
	ParentID        string               `json:"parentId,omitempty"`
	ProfileID       string               `json:"profileId"`
	Distribution    map[string]float64   `json:"distribution"`
	Primary         string               `json:"primary"`
	Secondary       string               `json:"secondary"`
	Confidence      float64              `json:"confidence"`
	Keywords        state.KeywordWeights `json:"keywords"`
	SignalCount     int                  `json:"signalCount"`
	ConfidentStreak int                  `json:"confidentStreak"`
	RecomputedAt    *time.Time           `json:"recomputedAt,omitempty"`
}

func toGenome(g state.Genome) genomeResponse {
	r := genomeResponse{
		VersionID:       g.VersionID,
		ParentID:        g.ParentID,
		ProfileID:       g.ProfileID,
		Distribution:    g.Distribution,
		Primary:         g.Primary,
		Secondary:       g.Secondary,
		Confidence:      g.Confidence,
		Keywords:        g.Keywords,
		SignalCount:     g.SignalCount,
		ConfidentStreak: g.ConfidentStreak,
	}
	if !g.RecomputedAt.IsZero() {
		t := g.RecomputedAt
		r.RecomputedAt = &t
	}
	return r
}

type signalResponse struct {
	ID        string          `json:"id"`
	Seq       int64           `json:"seq"`
	Type      signals.Type    `json:"type"`
	Topic     string          `json:"topic,omitempty"`
	Payload   signals.Payload `json:"payload"`
	Weight    float64         `json:"weight"`
	Hints     []string        `json:"hints"`
	CreatedAt time.Time       `json:"createdAt"`
}

func toSignal(s signals.Signal) signalResponse {
	return signalResponse{
		ID:        s.ID,
		Seq:       s.Seq,
		Type:      s.Type,
		Topic:     s.Topic,
		Payload:   s.Payload,
		Weight:    s.Weight,
		Hints:     s.Hints,
		CreatedAt: s.CreatedAt,
	}
}

type submitSignalResponse struct {
	Signal signalResponse `json:"signal"`
	Genome genomeResponse `json:"genome"`
}

type quizAnswersResponse struct {
	Next   quiz.Batch     `json:"next"`
	Genome genomeResponse `json:"genome"`
}

// #endregion responses
