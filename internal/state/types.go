package state

import "time"

// #region genome
// Genome is a versioned snapshot of a profile's taste distribution.
type Genome struct {
	VersionID       string
	ParentID        string
	ProfileID       string
	Distribution    map[string]float64
	Primary         string
	Secondary       string
	Confidence      float64
	Keywords        KeywordWeights
	SignalSeq       int64 // last log position folded in
	SignalCount     int
	ConfidentStreak int // consecutive recomputes above the quiz completion threshold
	RecomputedAt    time.Time
}

// KeywordWeights are the auxiliary tone and hook weights kept beside the distribution.
type KeywordWeights struct {
	Tone  map[string]float64 `json:"tone"`
	Hooks map[string]float64 `json:"hooks"`
}

// Clone returns a deep copy so callers can hold a snapshot by value.
func (g Genome) Clone() Genome {
	out := g
	out.Distribution = cloneMap(g.Distribution)
	out.Keywords = KeywordWeights{
		Tone:  cloneMap(g.Keywords.Tone),
		Hooks: cloneMap(g.Keywords.Hooks),
	}
	return out
}

func cloneMap(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
// #endregion genome

// #region conviction
// GatingStatus is the publish decision attached to a conviction report.
type GatingStatus string

const (
	GatingApproved GatingStatus = "approved"
	GatingWarning  GatingStatus = "warning"
	GatingBlocked  GatingStatus = "blocked"
	GatingOverride GatingStatus = "override"
)

// Tier buckets a conviction score.
type Tier string

const (
	TierLow         Tier = "low"
	TierMedium      Tier = "medium"
	TierHigh        Tier = "high"
	TierExceptional Tier = "exceptional"
)

// Breakdown holds the two 0-100 sub-scores behind a conviction score.
type Breakdown struct {
	Performance float64 `json:"performance"`
	Brand       float64 `json:"brand"`
}

// Gating is the gate outcome. OriginalStatus survives an override.
type Gating struct {
	Status         GatingStatus `json:"status"`
	Reason         string       `json:"reason"`
	OriginalStatus GatingStatus `json:"originalStatus,omitempty"`
}

// Recommendation names the weakest sub-score and what to do about it.
type Recommendation struct {
	Component string   `json:"component"`
	Actions   []string `json:"actions"`
}

// ConvictionReport is the pre-publish prediction for one content item.
type ConvictionReport struct {
	PostID           string           `json:"postId"`
	ProfileID        string           `json:"profileId"`
	Breakdown        Breakdown        `json:"breakdown"`
	Score            int              `json:"score"`
	Tier             Tier             `json:"tier"`
	Gating           Gating           `json:"gating"`
	Recommendations  []Recommendation `json:"recommendations"`
	ContentArchetype string           `json:"contentArchetype"`
	ToneTags         []string         `json:"toneTags"`
	HookTags         []string         `json:"hookTags"`
	Platforms        []string         `json:"platforms"`
	AnalysisSource   string           `json:"analysisSource"`
	GenomeVersionID  string           `json:"genomeVersionId"`
	Published        bool             `json:"published"`
	PublishedAt      time.Time        `json:"publishedAt,omitempty"`
	CreatedAt        time.Time        `json:"createdAt"`
}
// #endregion conviction

// #region audience
// AudienceSignals are the normalized 0-100 engagement signals for a post.
type AudienceSignals struct {
	SaveRate     float64 `json:"saveRate"`
	ShareRate    float64 `json:"shareRate"`
	Conversion   float64 `json:"conversion"`
	WatchDepth   float64 `json:"watchDepth"`
	CommentDepth float64 `json:"commentDepth"`
	CardCTR      float64 `json:"cardCTR"`
}

// FetchEntry is one point of a post's audience-depth trend.
type FetchEntry struct {
	Score     float64   `json:"score"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// AudienceDepthRecord is the post-publish engagement measurement.
type AudienceDepthRecord struct {
	PostID            string             `json:"postId"`
	Signals           AudienceSignals    `json:"signals"`
	PlatformBreakdown map[string]float64 `json:"platformBreakdown"`
	Score             float64            `json:"score"`
	FetchHistory      []FetchEntry       `json:"fetchHistory"`
	UpdatedAt         time.Time          `json:"updatedAt"`
}

// ValidationResult compares a frozen prediction with measured audience depth.
type ValidationResult struct {
	ID                    string    `json:"id"`
	PostID                string    `json:"postId"`
	ProfileID             string    `json:"profileId"`
	Predicted             float64   `json:"predicted"`
	Actual                float64   `json:"actual"`
	Accuracy              float64   `json:"accuracy"`
	OverrideWasSuccessful *bool     `json:"overrideWasSuccessful,omitempty"`
	Calibrated            bool      `json:"calibrated"`
	CreatedAt             time.Time `json:"createdAt"`
}
// #endregion audience
