package logging

import (
	"time"

	"github.com/danielpatrickdp/taste-genome/internal/state"
)

// #region evolution-entry
// Event names for evolution entries.
const (
	EventCalibration     = "calibration"
	EventOverride        = "override-validated"
	EventOverrideRefuted = "override-refuted"
)

// KeyChange is a labelled delta, e.g. a keyword weight shift.
type KeyChange struct {
	Label string  `json:"label"`
	Delta float64 `json:"delta"`
}

// ArchetypeChange is the probability shift of one archetype.
type ArchetypeChange struct {
	Archetype        string  `json:"archetype"`
	ConfidenceChange float64 `json:"confidenceChange"`
}

// Adjustment records one model component before and after an update.
type Adjustment struct {
	Component string `json:"component"`
	Before    string `json:"before"`
	After     string `json:"after"`
}

// EvolutionEntry is one immutable row of a profile's genome timeline.
// Only validation-triggered updates are recorded.
type EvolutionEntry struct {
	ID               string            `json:"id"`
	ProfileID        string            `json:"profileId"`
	VersionID        string            `json:"versionId"`
	ValidationID     string            `json:"validationId"`
	Event            string            `json:"event"`
	KeyChanges       []KeyChange       `json:"keyChanges"`
	ArchetypeChanges []ArchetypeChange `json:"archetypeChanges"`
	Adjustments      []Adjustment      `json:"adjustments"`
	Reason           string            `json:"reason"`
	Timestamp        time.Time         `json:"timestamp"`
}

type changes struct {
	KeyChanges       []KeyChange       `json:"keyChanges"`
	ArchetypeChanges []ArchetypeChange `json:"archetypeChanges"`
	Adjustments      []Adjustment      `json:"adjustments"`
}
// #endregion evolution-entry

// #region gating-record
// GatingRecord captures a gate decision with the thresholds active at the time.
// Published on the gating subject and logged for audit.
type GatingRecord struct {
	PostID          string    `json:"post_id"`
	ProfileID       string    `json:"profile_id"`
	Score           int       `json:"score"`
	Performance     float64   `json:"performance"`
	Brand           float64   `json:"brand"`
	Status          string    `json:"status"`
	OriginalStatus  string    `json:"original_status,omitempty"`
	Reason          string    `json:"reason"`
	AnalysisSource  string    `json:"analysis_source"`
	GenomeVersionID string    `json:"genome_version_id"`
	BlockThreshold  int       `json:"block_threshold"`
	WarnThreshold   int       `json:"warn_threshold"`
	DecidedAt       time.Time `json:"decided_at"`
}
// #endregion gating-record

// NewGatingRecord snapshots a report's gating with the thresholds that produced it.
func NewGatingRecord(r state.ConvictionReport, blockThreshold, warnThreshold int, at time.Time) GatingRecord {
	return GatingRecord{
		PostID:          r.PostID,
		ProfileID:       r.ProfileID,
		Score:           r.Score,
		Performance:     r.Breakdown.Performance,
		Brand:           r.Breakdown.Brand,
		Status:          string(r.Gating.Status),
		OriginalStatus:  string(r.Gating.OriginalStatus),
		Reason:          r.Gating.Reason,
		AnalysisSource:  r.AnalysisSource,
		GenomeVersionID: r.GenomeVersionID,
		BlockThreshold:  blockThreshold,
		WarnThreshold:   warnThreshold,
		DecidedAt:       at.UTC(),
	}
}
