package orchestrator

// #region imports
import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/danielpatrickdp/taste-genome/internal/catalog"
	"github.com/danielpatrickdp/taste-genome/internal/conviction"
	"github.com/danielpatrickdp/taste-genome/internal/eval"
	"github.com/danielpatrickdp/taste-genome/internal/events"
	"github.com/danielpatrickdp/taste-genome/internal/logging"
	"github.com/danielpatrickdp/taste-genome/internal/quiz"
	"github.com/danielpatrickdp/taste-genome/internal/state"
	"github.com/danielpatrickdp/taste-genome/internal/update"
)

// #endregion

// #region orchestrator-struct

// Orchestrator coordinates the signal log, genome recomputes, quiz selection,
// conviction reports and audience validation. Writes for one profile are
// serialized; different profiles proceed in parallel. Reads take no lock.
type Orchestrator struct {
	store     *state.Store
	catalog   *catalog.Catalog
	selector  *quiz.Selector
	predictor *conviction.Predictor
	harness   *eval.EvalHarness
	recorder  *logging.Recorder
	fetcher   MetricsFetcher
	events    events.Publisher
	observer  Observer
	logger    *slog.Logger
	now       func() time.Time
	config    Config

	mu     sync.Mutex
	locks  map[string]*sync.Mutex
	flight singleflight.Group
}

// #endregion

// #region constructor

// NewOrchestrator wires the components. Missing optional collaborators become no-ops.
func NewOrchestrator(deps Deps, config Config) (*Orchestrator, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("orchestrator: store required")
	case deps.Catalog == nil:
		return nil, errors.New("orchestrator: catalog required")
	case deps.Predictor == nil:
		return nil, errors.New("orchestrator: predictor required")
	case deps.Harness == nil:
		return nil, errors.New("orchestrator: eval harness required")
	}
	o := &Orchestrator{
		store:     deps.Store,
		catalog:   deps.Catalog,
		selector:  quiz.NewSelector(deps.Catalog, config.Quiz),
		predictor: deps.Predictor,
		harness:   deps.Harness,
		recorder:  deps.Recorder,
		fetcher:   deps.Fetcher,
		events:    deps.Events,
		observer:  deps.Observer,
		logger:    deps.Logger,
		now:       deps.Clock,
		config:    config,
		locks:     map[string]*sync.Mutex{},
	}
	if o.recorder == nil {
		o.recorder = logging.NewRecorder(deps.Store)
	}
	if o.events == nil {
		o.events = events.Nop{}
	}
	if o.observer == nil {
		o.observer = nopObserver{}
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	o.logger = o.logger.With("component", "orchestrator")
	if o.now == nil {
		o.now = time.Now
	}
	return o, nil
}

// #endregion

// #region locking

// lock serializes writers of one profile and returns the unlock function.
func (o *Orchestrator) lock(profileID string) func() {
	o.mu.Lock()
	l, ok := o.locks[profileID]
	if !ok {
		l = &sync.Mutex{}
		o.locks[profileID] = l
	}
	o.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// #endregion

// #region genome

// GetGenome returns the active genome, or the uniform genome when the profile
// has never been recomputed. Uniform genomes have an empty VersionID.
func (o *Orchestrator) GetGenome(ctx context.Context, profileID string) (state.Genome, error) {
	g, _, err := o.current(ctx, profileID)
	return g, err
}

// Recompute replays the profile's log and commits a new version. Concurrent
// calls for the same profile share one replay.
func (o *Orchestrator) Recompute(ctx context.Context, profileID string) (state.Genome, error) {
	v, err, _ := o.flight.Do(profileID, func() (any, error) {
		unlock := o.lock(profileID)
		defer unlock()
		return o.recomputeLocked(ctx, profileID)
	})
	if err != nil {
		return state.Genome{}, err
	}
	return v.(state.Genome).Clone(), nil
}

// recomputeLocked must be called with the profile lock held. On failure the
// previous active version stays in place.
func (o *Orchestrator) recomputeLocked(ctx context.Context, profileID string) (state.Genome, error) {
	start := time.Now()
	parent, found, err := o.current(ctx, profileID)
	if err != nil {
		return state.Genome{}, err
	}
	history, err := o.store.ListSignals(ctx, profileID, 0)
	if err != nil {
		return state.Genome{}, fmt.Errorf("recompute %s: %w", profileID, err)
	}

	res := update.Replay(o.catalog, history, o.config.Update)
	var prev *state.Genome
	if found {
		prev = &parent
	}
	next := update.NextVersion(prev, profileID, res, o.config.Update, o.now())
	if err := o.store.CommitGenome(ctx, next); err != nil {
		return state.Genome{}, fmt.Errorf("recompute %s: %w", profileID, err)
	}

	o.observer.RecomputeDuration(time.Since(start))
	o.logger.Debug("genome recomputed",
		"profile_id", profileID, "version_id", next.VersionID,
		"signals", res.SignalCount, "primary", next.Primary, "confidence", next.Confidence)
	return next, nil
}

// current returns the active genome, or the uniform genome with found == false.
func (o *Orchestrator) current(ctx context.Context, profileID string) (state.Genome, bool, error) {
	g, err := o.store.GetCurrent(ctx, profileID)
	if errors.Is(err, state.ErrNotFound) {
		return update.Uniform(o.catalog, profileID), false, nil
	}
	if err != nil {
		return state.Genome{}, false, fmt.Errorf("load genome %s: %w", profileID, err)
	}
	return g, true, nil
}

// Versions lists a profile's committed genome versions, newest first.
func (o *Orchestrator) Versions(ctx context.Context, profileID string, limit int) ([]state.Genome, error) {
	return o.store.ListVersions(ctx, profileID, limit)
}

// Rollback re-points the profile at an earlier version. The log is untouched,
// so the next recompute folds every signal again.
func (o *Orchestrator) Rollback(ctx context.Context, profileID, versionID string) error {
	unlock := o.lock(profileID)
	defer unlock()
	return o.store.Rollback(ctx, profileID, versionID)
}

// #endregion
