package conviction

import (
	"math"
	"sort"

	"github.com/danielpatrickdp/taste-genome/internal/state"
)

// keywordVector keeps only positively weighted keywords, namespaced by kind.
func keywordVector(k state.KeywordWeights) map[string]float64 {
	out := map[string]float64{}
	for tag, w := range k.Tone {
		if w > 0 {
			out["tone:"+tag] = w
		}
	}
	for tag, w := range k.Hooks {
		if w > 0 {
			out["hook:"+tag] = w
		}
	}
	return out
}

func tagVector(tone, hooks []string) map[string]float64 {
	out := make(map[string]float64, len(tone)+len(hooks))
	for _, t := range tone {
		out["tone:"+t] = 1
	}
	for _, h := range hooks {
		out["hook:"+h] = 1
	}
	return out
}

// topKeywords returns up to n positive keywords, heaviest first, ties by name.
func topKeywords(weights map[string]float64, n int) []string {
	var keys []string
	for k, w := range weights {
		if w > 0 {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if weights[keys[i]] != weights[keys[j]] {
			return weights[keys[i]] > weights[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) > n {
		keys = keys[:n]
	}
	return keys
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
