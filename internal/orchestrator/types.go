package orchestrator

// #region imports
import (
	"context"
	"errors"
	"log/slog"
	"time"

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

// #region errors

var (
	// ErrNotFound is returned for unknown posts, versions and validations.
	ErrNotFound = state.ErrNotFound
	// ErrFrozen is returned when a published report would be changed.
	ErrFrozen = state.ErrFrozen
	// ErrNotPublished is returned when audience depth is requested for an unpublished post.
	ErrNotPublished = errors.New("post not published")
)

// #endregion

// #region collaborators

// MetricsFetcher reads raw engagement for a published post from the platforms.
type MetricsFetcher interface {
	FetchEngagement(ctx context.Context, postID string, platforms []string) (map[string]eval.RawMetrics, error)
}

// Observer receives operational counters. *metrics.Metrics implements it.
type Observer interface {
	SignalIngested(kind string)
	SignalRejected(field string)
	GatingDecided(status string)
	FetchFailed()
	RecomputeDuration(d time.Duration)
	ValidationAccuracy(accuracy float64)
	Calibrated()
}

type nopObserver struct{}

func (nopObserver) SignalIngested(string)           {}
func (nopObserver) SignalRejected(string)           {}
func (nopObserver) GatingDecided(string)            {}
func (nopObserver) FetchFailed()                    {}
func (nopObserver) RecomputeDuration(time.Duration) {}
func (nopObserver) ValidationAccuracy(float64)      {}
func (nopObserver) Calibrated()                     {}

// #endregion

// #region config

// Config collects the tunables the orchestrator passes to its components.
type Config struct {
	Update update.Config
	Quiz   quiz.Config
	Retry  RetryConfig
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Update: update.DefaultConfig(),
		Quiz:   quiz.DefaultConfig(),
		Retry:  DefaultRetryConfig(),
	}
}

// Deps are the orchestrator's collaborators. Store, Catalog, Predictor and
// Harness are required; the rest default to no-ops.
type Deps struct {
	Store     *state.Store
	Catalog   *catalog.Catalog
	Predictor *conviction.Predictor
	Harness   *eval.EvalHarness
	Recorder  *logging.Recorder
	Fetcher   MetricsFetcher
	Events    events.Publisher
	Observer  Observer
	Logger    *slog.Logger
	Clock     func() time.Time
}

// #endregion

// #region views

// AudienceView is what callers see for a published post.
type AudienceView struct {
	Record     state.AudienceDepthRecord `json:"record"`
	Status     eval.Status               `json:"status"`
	Validation *state.ValidationResult   `json:"validation,omitempty"`
}

// #endregion
