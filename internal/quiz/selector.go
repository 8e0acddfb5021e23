package quiz

import (
	"sort"

	"github.com/danielpatrickdp/taste-genome/internal/catalog"
	"github.com/danielpatrickdp/taste-genome/internal/state"
)

// #region mode
// Mode is the selector's phase for a profile.
type Mode string

const (
	ModeLoading  Mode = "loading"
	ModeStandard Mode = "standard"
	ModeHoning   Mode = "honing"
	ModeComplete Mode = "complete"
)
// #endregion mode

// #region config
// Config holds batch size and the thresholds between modes.
type Config struct {
	BatchSize          int     // sets per batch (default 3)
	MinStandardAnswers int     // answered sets before honing may start (default 4)
	HoningMargin       float64 // relative gap to primary that still counts as a contender (default 0.35)
	MinContenderPairs  int     // close pairs needed to enter honing (default 2)
	CompleteStreak     int     // consecutive confident recomputes that finish the quiz (default 2)
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:          3,
		MinStandardAnswers: 4,
		HoningMargin:       0.35,
		MinContenderPairs:  2,
		CompleteStreak:     2,
	}
}
// #endregion config

// #region batch
// Batch is the next group of question sets to show a profile.
type Batch struct {
	Mode          Mode                  `json:"mode"`
	Questions     []catalog.QuestionSet `json:"questions"`
	AnsweredCount int                   `json:"answeredCount"`
	TotalPool     int                   `json:"totalPool"`
	Contenders    []string              `json:"contenders,omitempty"`
}
// #endregion batch

// #region selector
// Pool is the read-only quiz pool.
type Pool interface {
	Sets() []catalog.QuestionSet
	Designations() []string
}

// Selector picks question sets. It holds no per-profile state; callers pass
// a genome snapshot and the profile's quiz progress on every call.
type Selector struct {
	pool   Pool
	config Config
}

// NewSelector creates a selector over the given pool.
func NewSelector(pool Pool, config Config) *Selector {
	return &Selector{pool: pool, config: config}
}

// Next chooses the next batch. hasGenome is false when nothing has been
// recomputed for the profile yet; genome is then expected to be uniform.
func (s *Selector) Next(genome state.Genome, hasGenome bool, progress state.QuizProgress) Batch {
	sets := s.pool.Sets()
	batch := Batch{
		AnsweredCount: progress.AnsweredCount(),
		TotalPool:     len(sets),
		Questions:     []catalog.QuestionSet{},
	}

	var open []catalog.QuestionSet
	for _, set := range sets {
		if !asked(set, progress) {
			open = append(open, set)
		}
	}

	if len(open) == 0 || genome.ConfidentStreak >= s.config.CompleteStreak {
		batch.Mode = ModeComplete
		return batch
	}

	contenders := Contenders(s.pool.Designations(), genome.Distribution, s.config.HoningMargin)
	if batch.AnsweredCount >= s.config.MinStandardAnswers && closePairs(len(contenders)) >= s.config.MinContenderPairs {
		if picked := s.honing(open, contenders, genome.Distribution); len(picked) > 0 {
			batch.Mode = ModeHoning
			batch.Contenders = contenders
			batch.Questions = fill(picked, s.standard(open, progress), s.config.BatchSize)
			return batch
		}
	}

	batch.Mode = ModeStandard
	if !hasGenome && batch.AnsweredCount == 0 {
		batch.Mode = ModeLoading
	}
	batch.Questions = fill(nil, s.standard(open, progress), s.config.BatchSize)
	return batch
}
// #endregion selector

// #region standard
// standard orders open sets for topic diversity: one set per unseen topic in
// pool order, then every remaining open set in pool order.
func (s *Selector) standard(open []catalog.QuestionSet, progress state.QuizProgress) []catalog.QuestionSet {
	used := make(map[string]bool, len(progress.AskedTopics))
	for topic := range progress.AskedTopics {
		used[topic] = true
	}
	var fresh, rest []catalog.QuestionSet
	for _, set := range open {
		if !used[set.Topic] {
			used[set.Topic] = true
			fresh = append(fresh, set)
			continue
		}
		rest = append(rest, set)
	}
	return append(fresh, rest...)
}
// #endregion standard

// #region honing
// honing ranks open sets by how many distinct contenders their options hint,
// then by the contenders' summed probability, then by pool order.
func (s *Selector) honing(open []catalog.QuestionSet, contenders []string, dist map[string]float64) []catalog.QuestionSet {
	isContender := make(map[string]bool, len(contenders))
	for _, c := range contenders {
		isContender[c] = true
	}

	type ranked struct {
		set  catalog.QuestionSet
		hits int
		mass float64
		pos  int
	}
	var candidates []ranked
	for i, set := range open {
		seen := map[string]bool{}
		r := ranked{set: set, pos: i}
		for _, opt := range set.Options {
			if isContender[opt.ArchetypeHint] && !seen[opt.ArchetypeHint] {
				seen[opt.ArchetypeHint] = true
				r.hits++
				r.mass += dist[opt.ArchetypeHint]
			}
		}
		if r.hits > 0 {
			candidates = append(candidates, r)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.hits != b.hits {
			return a.hits > b.hits
		}
		if a.mass != b.mass {
			return a.mass > b.mass
		}
		return a.pos < b.pos
	})

	out := make([]catalog.QuestionSet, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.set)
	}
	return out
}

// Contenders lists archetypes whose probability is within margin of the
// primary's, relative to the primary, in descending probability with catalog
// order breaking ties. The primary itself is always first.
func Contenders(order []string, dist map[string]float64, margin float64) []string {
	ranked := make([]string, len(order))
	copy(ranked, order)
	sort.SliceStable(ranked, func(i, j int) bool {
		return dist[ranked[i]] > dist[ranked[j]]
	})
	if len(ranked) == 0 {
		return nil
	}
	p1 := dist[ranked[0]]
	if p1 <= 0 {
		return nil
	}
	out := []string{ranked[0]}
	for _, d := range ranked[1:] {
		if (p1-dist[d])/p1 > margin {
			break
		}
		out = append(out, d)
	}
	return out
}

func closePairs(n int) int {
	return n * (n - 1) / 2
}
// #endregion honing

// #region helpers
func asked(set catalog.QuestionSet, progress state.QuizProgress) bool {
	if progress.AskedSets[set.ID] {
		return true
	}
	for _, opt := range set.Options {
		if progress.AskedOptions[opt.ID] {
			return true
		}
	}
	return false
}

// fill appends from backup to first until n distinct sets are chosen.
func fill(first, backup []catalog.QuestionSet, n int) []catalog.QuestionSet {
	out := make([]catalog.QuestionSet, 0, n)
	seen := map[string]bool{}
	for _, group := range [][]catalog.QuestionSet{first, backup} {
		for _, set := range group {
			if len(out) == n {
				return out
			}
			if seen[set.ID] {
				continue
			}
			seen[set.ID] = true
			out = append(out, set)
		}
	}
	return out
}
// #endregion helpers
