package conviction

import "github.com/danielpatrickdp/taste-genome/internal/catalog"

// #region config
// Config weights the conviction formula and sets the tier cutoffs.
type Config struct {
	PerformanceWeight float64 // share of performance in the score (default 0.6)
	BrandWeight       float64 // share of brand alignment (default 0.4)
	AlignmentShare    float64 // share of archetype alignment inside brand; keywords take the rest (default 0.5)

	ExceptionalAt int // default 80
	HighAt        int // default 60
	MediumAt      int // default 40
}

// DefaultConfig returns the documented weights and tiers.
func DefaultConfig() Config {
	return Config{
		PerformanceWeight: 0.6,
		BrandWeight:       0.4,
		AlignmentShare:    0.5,
		ExceptionalAt:     80,
		HighAt:            60,
		MediumAt:          40,
	}
}
// #endregion config

// Archetypes is the read-only catalog view the predictor needs.
type Archetypes interface {
	Archetypes() []catalog.Archetype
}

// Component names used in recommendations.
const (
	ComponentPerformance = "performance"
	ComponentBrand       = "brand"
)
