package projection

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/danielpatrickdp/taste-genome/internal/catalog"
	"github.com/danielpatrickdp/taste-genome/internal/state"
)

// #region types

// Share is one archetype's slice of a genome, with display fields from the catalog.
type Share struct {
	Designation string  `json:"designation"`
	Title       string  `json:"title"`
	Glyph       string  `json:"glyph,omitempty"`
	Probability float64 `json:"probability"`
	Percent     int     `json:"percent"`
}

// Keyword is a named keyword weight.
type Keyword struct {
	Token  string  `json:"token"`
	Weight float64 `json:"weight"`
}

// Summary is the read-only view of a genome shown to creators and tools.
type Summary struct {
	ProfileID   string    `json:"profileId"`
	VersionID   string    `json:"versionId,omitempty"`
	Primary     Share     `json:"primary"`
	Secondary   Share     `json:"secondary"`
	Confidence  float64   `json:"confidence"`
	Clarity     string    `json:"clarity"`
	SignalCount int       `json:"signalCount"`
	Ranking     []Share   `json:"ranking"`
	Tone        []Keyword `json:"tone,omitempty"`
	Hooks       []Keyword `json:"hooks,omitempty"`
}

// Clarity labels.
const (
	ClarityForming  = "forming"
	ClarityEmerging = "emerging"
	ClarityClear    = "clear"
	ClarityDefined  = "defined"
)

// #endregion types

// #region summarize

// Summarize projects a genome onto the archetypes, given in catalog order.
// Ranking is by probability, ties in catalog order. topKeywords caps the tone
// and hook lists; 0 means 5.
func Summarize(g state.Genome, archetypes []catalog.Archetype, topKeywords int) Summary {
	if topKeywords <= 0 {
		topKeywords = 5
	}
	ranking := make([]Share, 0, len(archetypes))
	for _, a := range archetypes {
		ranking = append(ranking, share(archetypes, a.Designation, g.Distribution[a.Designation]))
	}
	sort.SliceStable(ranking, func(i, j int) bool {
		return ranking[i].Probability > ranking[j].Probability
	})

	return Summary{
		ProfileID:   g.ProfileID,
		VersionID:   g.VersionID,
		Primary:     share(archetypes, g.Primary, g.Distribution[g.Primary]),
		Secondary:   share(archetypes, g.Secondary, g.Distribution[g.Secondary]),
		Confidence:  g.Confidence,
		Clarity:     ClarityOf(g),
		SignalCount: g.SignalCount,
		Ranking:     ranking,
		Tone:        top(g.Keywords.Tone, topKeywords),
		Hooks:       top(g.Keywords.Hooks, topKeywords),
	}
}

// ClarityOf buckets confidence. A genome without signals is always forming.
func ClarityOf(g state.Genome) string {
	switch {
	case g.SignalCount == 0 || g.Confidence < 0.2:
		return ClarityForming
	case g.Confidence < 0.5:
		return ClarityEmerging
	case g.Confidence < 0.8:
		return ClarityClear
	default:
		return ClarityDefined
	}
}

func share(archetypes []catalog.Archetype, d string, p float64) Share {
	s := Share{Designation: d, Probability: p, Percent: int(math.Round(p * 100))}
	for _, a := range archetypes {
		if a.Designation == d {
			s.Title = a.Title
			s.Glyph = a.Glyph
			break
		}
	}
	return s
}

// top returns the n highest positive weights, ties by token.
func top(m map[string]float64, n int) []Keyword {
	var out []Keyword
	for k, w := range m {
		if w > 0 {
			out = append(out, Keyword{Token: k, Weight: w})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		return out[i].Token < out[j].Token
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// #endregion summarize

// #region brief

// Brief renders the [TASTE GENOME] block the predictor sends to the analyzer
// with the content. Forming genomes return "".
func Brief(s Summary) string {
	if s.Clarity == ClarityForming {
		return ""
	}
	var b strings.Builder
	b.WriteString("[TASTE GENOME]\n")
	fmt.Fprintf(&b, "- primary: %s %s (%d%%)\n", s.Primary.Designation, s.Primary.Title, s.Primary.Percent)
	fmt.Fprintf(&b, "- secondary: %s %s (%d%%)\n", s.Secondary.Designation, s.Secondary.Title, s.Secondary.Percent)
	if len(s.Tone) > 0 {
		fmt.Fprintf(&b, "- tone: %s\n", tokens(s.Tone))
	}
	if len(s.Hooks) > 0 {
		fmt.Fprintf(&b, "- hooks: %s\n", tokens(s.Hooks))
	}
	fmt.Fprintf(&b, "(clarity: %s, confidence: %.0f%%)\n", s.Clarity, math.Round(s.Confidence*100))
	return b.String()
}

func tokens(ks []Keyword) string {
	parts := make([]string, len(ks))
	for i, k := range ks {
		parts[i] = k.Token
	}
	return strings.Join(parts, ", ")
}

// #endregion brief
