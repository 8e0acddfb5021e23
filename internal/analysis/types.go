package analysis

import "context"

// #region content
// Content is the pre-publish item a conviction report is computed for.
type Content struct {
	PostID    string   `json:"postId"`
	Caption   string   `json:"caption"`
	Hashtags  []string `json:"hashtags,omitempty"`
	MediaType string   `json:"mediaType,omitempty"` // image | video | carousel
	Platforms []string `json:"platforms,omitempty"`
	ToneTags  []string `json:"toneTags,omitempty"` // creator-supplied, merged into the analysis
	HookTags  []string `json:"hookTags,omitempty"`

	// Brief is the creator's taste context, filled in by the predictor.
	Brief string `json:"brief,omitempty"`
}
// #endregion content

// #region analysis
// Where an Analysis came from.
const (
	SourceAnalyzer  = "analyzer"
	SourceHeuristic = "heuristic"
)

// Analysis is the content-analysis collaborator's answer.
type Analysis struct {
	PerformanceEstimate float64  `json:"performanceEstimate"` // 0-100
	ToneTags            []string `json:"toneTags"`
	HookTags            []string `json:"hookTags"`
	Source              string   `json:"source"`
}

// ContentAnalyzer estimates raw engagement potential and extracts tone and hook tags.
type ContentAnalyzer interface {
	Analyze(ctx context.Context, content Content) (Analysis, error)
}
// #endregion analysis
