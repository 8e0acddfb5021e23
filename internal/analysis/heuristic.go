package analysis

import (
	"context"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/danielpatrickdp/taste-genome/internal/signals"
)

// #region heuristic-config
// HeuristicConfig tunes the deterministic fallback estimate.
type HeuristicConfig struct {
	Base             float64 // starting estimate before any feature (default 35)
	IdealCaptionMin  int     // characters (default 80)
	IdealCaptionMax  int     // characters (default 300)
	IdealHashtagsMin int     // default 3
	IdealHashtagsMax int     // default 8
}

// DefaultHeuristicConfig returns the documented defaults.
func DefaultHeuristicConfig() HeuristicConfig {
	return HeuristicConfig{
		Base:             35,
		IdealCaptionMin:  80,
		IdealCaptionMax:  300,
		IdealHashtagsMin: 3,
		IdealHashtagsMax: 8,
	}
}
// #endregion heuristic-config

// #region heuristic
// Heuristic scores content from caption length, hashtag count, question and
// call-to-action hooks, and lexical diversity. It never fails.
type Heuristic struct {
	config HeuristicConfig
}

// NewHeuristic creates the fallback analyzer.
func NewHeuristic(config HeuristicConfig) *Heuristic {
	return &Heuristic{config: config}
}

var ctaPhrases = []string{"link in bio", "comment", "save this", "share", "tag a", "follow for", "dm me", "let me know"}

// Analyze implements ContentAnalyzer.
func (h *Heuristic) Analyze(_ context.Context, content Content) (Analysis, error) {
	caption := strings.TrimSpace(content.Caption)
	lower := strings.ToLower(caption)

	score := h.config.Base
	score += h.captionScore(len([]rune(caption)))
	score += h.hashtagScore(len(content.Hashtags))
	score += 15 * lexicalDiversity(caption)

	hooks := append([]string{}, content.HookTags...)
	if strings.Contains(caption, "?") {
		score += 7.5
		hooks = append(hooks, "question")
	}
	for _, p := range ctaPhrases {
		if strings.Contains(lower, p) {
			score += 7.5
			hooks = append(hooks, "cta")
			break
		}
	}
	if startsWithNumber(caption) {
		hooks = append(hooks, "list")
	}
	if content.MediaType == "video" {
		score += 5
	}

	tone := append([]string{}, content.ToneTags...)
	tone = append(tone, content.Hashtags...)

	return Analysis{
		PerformanceEstimate: clamp100(score),
		ToneTags:            signals.NormalizeTags(tone),
		HookTags:            signals.NormalizeTags(hooks),
		Source:              SourceHeuristic,
	}, nil
}

// captionScore peaks at 20 inside the ideal band and falls off linearly outside it.
func (h *Heuristic) captionScore(n int) float64 {
	switch {
	case n == 0:
		return 0
	case n < h.config.IdealCaptionMin:
		return 20 * float64(n) / float64(h.config.IdealCaptionMin)
	case n <= h.config.IdealCaptionMax:
		return 20
	default:
		over := float64(n-h.config.IdealCaptionMax) / float64(h.config.IdealCaptionMax)
		return math.Max(0, 20*(1-over))
	}
}

// hashtagScore peaks at 10 inside the ideal band; over-tagging costs points.
func (h *Heuristic) hashtagScore(n int) float64 {
	switch {
	case n == 0:
		return 0
	case n < h.config.IdealHashtagsMin:
		return 10 * float64(n) / float64(h.config.IdealHashtagsMin)
	case n <= h.config.IdealHashtagsMax:
		return 10
	default:
		return math.Max(-10, 10-2*float64(n-h.config.IdealHashtagsMax))
	}
}
// #endregion heuristic

// #region helpers
// lexicalDiversity is unique words over total words, 0 for empty text.
func lexicalDiversity(text string) float64 {
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		return 0
	}
	unique := make(map[string]struct{}, len(words))
	for _, w := range words {
		unique[w] = struct{}{}
	}
	return float64(len(unique)) / float64(len(words))
}

func startsWithNumber(s string) bool {
	for _, r := range s {
		return unicode.IsDigit(r)
	}
	return false
}

// CosineSimilarity compares two sparse vectors. Returns 0 when either is empty.
// Keys are visited in sorted order so the result is reproducible bit for bit.
func CosineSimilarity(a, b map[string]float64) float64 {
	var dot, normA, normB float64
	for _, k := range sortedKeys(a) {
		v := a[k]
		normA += v * v
		if w, ok := b[k]; ok {
			dot += v * w
		}
	}
	for _, k := range sortedKeys(b) {
		normB += b[k] * b[k]
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return dot / denom
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// clamp100 restricts v to [0, 100]; NaN becomes 0.
func clamp100(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
// #endregion helpers
