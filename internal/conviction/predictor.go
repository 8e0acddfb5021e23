package conviction

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/danielpatrickdp/taste-genome/internal/analysis"
	"github.com/danielpatrickdp/taste-genome/internal/catalog"
	"github.com/danielpatrickdp/taste-genome/internal/gate"
	"github.com/danielpatrickdp/taste-genome/internal/projection"
	"github.com/danielpatrickdp/taste-genome/internal/signals"
	"github.com/danielpatrickdp/taste-genome/internal/state"
)

// #region predictor
// Predictor scores a content item against a genome snapshot and gates it.
type Predictor struct {
	analyzer   analysis.ContentAnalyzer
	gate       *gate.Gate
	archetypes []catalog.Archetype
	config     Config
}

// NewPredictor wires the analyzer (normally an *analysis.Guarded) and the gate.
func NewPredictor(analyzer analysis.ContentAnalyzer, g *gate.Gate, archetypes Archetypes, config Config) *Predictor {
	return &Predictor{
		analyzer:   analyzer,
		gate:       g,
		archetypes: archetypes.Archetypes(),
		config:     config,
	}
}

// Gate exposes the gate so callers can apply overrides with the same thresholds.
func (p *Predictor) Gate() *gate.Gate {
	return p.gate
}

// Predict builds an unpublished conviction report. genome is read, never modified.
func (p *Predictor) Predict(ctx context.Context, genome state.Genome, content analysis.Content, now time.Time) (state.ConvictionReport, error) {
	if content.Brief == "" {
		content.Brief = projection.Brief(projection.Summarize(genome, p.archetypes, 0))
	}
	a, err := p.analyzer.Analyze(ctx, content)
	if err != nil {
		return state.ConvictionReport{}, fmt.Errorf("analyze %s: %w", content.PostID, err)
	}

	tone := signals.NormalizeTags(append(append([]string{}, content.ToneTags...), a.ToneTags...))
	hooks := signals.NormalizeTags(append(append([]string{}, content.HookTags...), a.HookTags...))

	contentArchetype := p.Attribute(genome, tone, hooks)
	performance := clamp(a.PerformanceEstimate)
	brand := p.Brand(genome, contentArchetype, tone, hooks)
	score := p.Score(performance, brand)
	decision := p.gate.Evaluate(score)

	return state.ConvictionReport{
		PostID:           content.PostID,
		ProfileID:        genome.ProfileID,
		Breakdown:        state.Breakdown{Performance: performance, Brand: brand},
		Score:            score,
		Tier:             p.Tier(score),
		Gating:           decision.Gating(),
		Recommendations:  p.recommend(score, performance, brand, genome),
		ContentArchetype: contentArchetype,
		ToneTags:         tone,
		HookTags:         hooks,
		Platforms:        append([]string{}, content.Platforms...),
		AnalysisSource:   a.Source,
		GenomeVersionID:  genome.VersionID,
		CreatedAt:        now.UTC(),
	}, nil
}
// #endregion predictor

// #region scoring
// Score combines the sub-scores, rounded half away from zero and clamped.
func (p *Predictor) Score(performance, brand float64) int {
	return int(math.Round(clamp(p.config.PerformanceWeight*performance + p.config.BrandWeight*brand)))
}

// Tier buckets a score. Higher scores never map to a lower tier.
func (p *Predictor) Tier(score int) state.Tier {
	switch {
	case score >= p.config.ExceptionalAt:
		return state.TierExceptional
	case score >= p.config.HighAt:
		return state.TierHigh
	case score >= p.config.MediumAt:
		return state.TierMedium
	default:
		return state.TierLow
	}
}

// Brand measures how well content fits the genome: archetype alignment blended
// with keyword similarity, or alignment alone when no keyword has positive weight.
func (p *Predictor) Brand(genome state.Genome, contentArchetype string, tone, hooks []string) float64 {
	alignment := 0.0
	if top := genome.Distribution[genome.Primary]; top > 0 {
		alignment = math.Min(1, genome.Distribution[contentArchetype]/top)
	}

	preferred := keywordVector(genome.Keywords)
	if len(preferred) == 0 {
		return clamp(100 * alignment)
	}
	similarity := analysis.CosineSimilarity(tagVector(tone, hooks), preferred)
	share := p.config.AlignmentShare
	return clamp(100 * (share*alignment + (1-share)*similarity))
}

// Attribute picks the archetype whose keywords best match the content tags.
// Ties go to the higher genome probability, then catalog order. With no match
// the content is attributed to the genome's primary.
func (p *Predictor) Attribute(genome state.Genome, tone, hooks []string) string {
	tags := make(map[string]bool, len(tone)+len(hooks))
	for _, t := range tone {
		tags[t] = true
	}
	for _, h := range hooks {
		tags[h] = true
	}

	best, bestHits := "", 0
	for _, arch := range p.archetypes {
		hits := 0
		for _, k := range arch.Keywords {
			if tags[strings.ToLower(k)] {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		if hits > bestHits || (hits == bestHits && genome.Distribution[arch.Designation] > genome.Distribution[best]) {
			best, bestHits = arch.Designation, hits
		}
	}
	if best == "" {
		return genome.Primary
	}
	return best
}
// #endregion scoring

// #region recommendations
var performanceActions = []string{
	"Open with a question or a bold first line",
	"Keep the caption between 80 and 300 characters",
	"Use 3 to 8 focused hashtags",
	"End with a clear call to action",
}

// recommend returns advice for the weaker sub-score when the score sits below
// the approval threshold. Performance wins a tie.
func (p *Predictor) recommend(score int, performance, brand float64, genome state.Genome) []state.Recommendation {
	if score >= p.gate.Config().WarnThreshold {
		return []state.Recommendation{}
	}
	if performance <= brand {
		return []state.Recommendation{{Component: ComponentPerformance, Actions: append([]string{}, performanceActions...)}}
	}

	actions := []string{}
	for _, arch := range p.archetypes {
		if arch.Designation != genome.Primary {
			continue
		}
		actions = append(actions, fmt.Sprintf("Lean into your %s style (%s)", arch.Title, arch.Designation))
		if len(arch.Keywords) > 0 {
			n := min(3, len(arch.Keywords))
			actions = append(actions, "Work in tones like "+strings.Join(arch.Keywords[:n], ", "))
		}
	}
	if top := topKeywords(genome.Keywords.Tone, 3); len(top) > 0 {
		actions = append(actions, "Echo tones your audience responded to: "+strings.Join(top, ", "))
	}
	if len(actions) == 0 {
		actions = append(actions, "Answer a few more quiz questions to sharpen your taste profile")
	}
	return []state.Recommendation{{Component: ComponentBrand, Actions: actions}}
}
// #endregion recommendations
