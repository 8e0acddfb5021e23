package signals

import (
	"strings"
	"unicode"
)

// #region stopwords
// stopwords contains common English words excluded from keyword extraction.
var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true,
	"was": true, "were": true, "do": true, "does": true, "did": true,
	"have": true, "has": true, "had": true, "be": true, "been": true,
	"being": true, "will": true, "would": true, "could": true, "should": true,
	"may": true, "might": true, "can": true, "shall": true, "not": true,
	"no": true, "and": true, "or": true, "but": true, "if": true,
	"then": true, "than": true, "so": true, "as": true, "at": true,
	"by": true, "for": true, "from": true, "in": true, "into": true,
	"of": true, "on": true, "to": true, "with": true, "about": true,
	"up": true, "out": true, "it": true, "its": true, "this": true,
	"that": true, "what": true, "which": true, "who": true, "how": true,
	"when": true, "where": true, "why": true, "you": true, "me": true,
	"i": true, "my": true, "your": true, "we": true, "they": true,
	"he": true, "she": true, "her": true, "him": true, "us": true,
	"them": true, "like": true, "really": true, "very": true, "just": true,
	"more": true, "most": true, "some": true, "our": true, "want": true,
}

// Tokenize splits text into unique lowercase non-stopword tokens in order of appearance.
// Hyphenated words such as "behind-the-scenes" stay whole.
func Tokenize(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
	seen := make(map[string]bool)
	var tokens []string
	for _, w := range words {
		w = strings.Trim(w, "-")
		if len(w) < 2 || stopwords[w] || seen[w] {
			continue
		}
		seen[w] = true
		tokens = append(tokens, w)
	}
	return tokens
}

// NormalizeTags lowercases, trims and de-duplicates explicit tags.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	var out []string
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(t), "#")))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
// #endregion stopwords

// #region preference-tokens
// ToneTokens are the explicit tone tags followed by the free-text tokens.
func (p PreferenceListPayload) ToneTokens() []string {
	return NormalizeTags(append(append([]string{}, p.Tone...), Tokenize(p.Text)...))
}

// HookTokens are the explicit hook tags.
func (p PreferenceListPayload) HookTokens() []string {
	return NormalizeTags(p.Hooks)
}
// #endregion preference-tokens
