package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/taste-genome/internal/conviction"
	"github.com/danielpatrickdp/taste-genome/internal/eval"
	"github.com/danielpatrickdp/taste-genome/internal/gate"
	"github.com/danielpatrickdp/taste-genome/internal/orchestrator"
	"github.com/danielpatrickdp/taste-genome/internal/quiz"
	"github.com/danielpatrickdp/taste-genome/internal/update"
)

// Environment variables read by Load.
const (
	EnvConfig      = "TASTE_CONFIG"
	EnvDBDriver    = "TASTE_DB_DRIVER"
	EnvDBDSN       = "TASTE_DB_DSN"
	EnvHTTPAddr    = "TASTE_HTTP_ADDR"
	EnvSidecarAddr = "TASTE_SIDECAR_ADDR"
	EnvNATSURL     = "TASTE_NATS_URL"
	EnvLogLevel    = "TASTE_LOG_LEVEL"
)

// #region types

// Config is everything the daemon and the tools need to start.
type Config struct {
	Database    DatabaseConfig  `yaml:"database"`
	HTTP        HTTPConfig      `yaml:"http"`
	Sidecar     SidecarConfig   `yaml:"sidecar"`
	NATS        NATSConfig      `yaml:"nats"`
	Log         LogConfig       `yaml:"log"`
	Scheduler   SchedulerConfig `yaml:"scheduler"`
	CatalogPath string          `yaml:"catalogPath"` // empty uses the embedded catalog
	Engine      EngineConfig    `yaml:"engine"`
	Eval        eval.EvalConfig `yaml:"eval"`
}

// DatabaseConfig selects the store. Driver is "sqlite" or "postgres".
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// SidecarConfig points at the analysis and platform-metrics service. An empty
// address runs with the heuristic analyzer and no metrics fetcher.
type SidecarConfig struct {
	Addr           string        `yaml:"addr"`
	AnalyzeTimeout time.Duration `yaml:"analyzeTimeout"`
}

// NATSConfig enables event fan-out when URL is set.
type NATSConfig struct {
	URL string `yaml:"url"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // json | text
}

// SchedulerConfig drives the background audience refresh.
type SchedulerConfig struct {
	Cron        string        `yaml:"cron"`        // standard 5-field spec
	Lookback    time.Duration `yaml:"lookback"`    // refresh posts published within this window
	Parallelism int           `yaml:"parallelism"` // concurrent refreshes per run
}

// EngineConfig holds the tunables of the inference engine.
type EngineConfig struct {
	Update     UpdateConfig     `yaml:"update"`
	Quiz       QuizConfig       `yaml:"quiz"`
	Gate       GateConfig       `yaml:"gate"`
	Conviction ConvictionConfig `yaml:"conviction"`
	Retry      RetryConfig      `yaml:"retry"`
}

type UpdateConfig struct {
	Prior              float64       `yaml:"prior"`
	HalfLife           time.Duration `yaml:"halfLife"`
	DecayFloor         float64       `yaml:"decayFloor"`
	KeywordAlpha       float64       `yaml:"keywordAlpha"`
	ConfidentThreshold float64       `yaml:"confidentThreshold"`
}

type QuizConfig struct {
	BatchSize          int     `yaml:"batchSize"`
	MinStandardAnswers int     `yaml:"minStandardAnswers"`
	HoningMargin       float64 `yaml:"honingMargin"`
	MinContenderPairs  int     `yaml:"minContenderPairs"`
	CompleteStreak     int     `yaml:"completeStreak"`
}

type GateConfig struct {
	BlockThreshold int `yaml:"blockThreshold"`
	WarnThreshold  int `yaml:"warnThreshold"`
}

type ConvictionConfig struct {
	PerformanceWeight float64 `yaml:"performanceWeight"`
	BrandWeight       float64 `yaml:"brandWeight"`
	AlignmentShare    float64 `yaml:"alignmentShare"`
	ExceptionalAt     int     `yaml:"exceptionalAt"`
	HighAt            int     `yaml:"highAt"`
	MediumAt          int     `yaml:"mediumAt"`
}

type RetryConfig struct {
	MaxRetries      int           `yaml:"maxRetries"`
	InitialInterval time.Duration `yaml:"initialInterval"`
	MaxInterval     time.Duration `yaml:"maxInterval"`
}

// #endregion types

// #region defaults

// Default returns the configuration used when no file or env var overrides it.
func Default() Config {
	u := update.DefaultConfig()
	q := quiz.DefaultConfig()
	g := gate.DefaultGateConfig()
	c := conviction.DefaultConfig()
	r := orchestrator.DefaultRetryConfig()
	return Config{
		Database:  DatabaseConfig{Driver: "sqlite", DSN: "taste_genome.db"},
		HTTP:      HTTPConfig{Addr: ":8080"},
		Sidecar:   SidecarConfig{AnalyzeTimeout: 3 * time.Second},
		Log:       LogConfig{Level: "info", Format: "json"},
		Scheduler: SchedulerConfig{Cron: "*/15 * * * *", Lookback: 72 * time.Hour, Parallelism: 4},
		Engine: EngineConfig{
			Update: UpdateConfig{
				Prior: u.Prior, HalfLife: u.HalfLife, DecayFloor: u.DecayFloor,
				KeywordAlpha: u.KeywordAlpha, ConfidentThreshold: u.ConfidentThreshold,
			},
			Quiz: QuizConfig{
				BatchSize: q.BatchSize, MinStandardAnswers: q.MinStandardAnswers, HoningMargin: q.HoningMargin,
				MinContenderPairs: q.MinContenderPairs, CompleteStreak: q.CompleteStreak,
			},
			Gate: GateConfig{BlockThreshold: g.BlockThreshold, WarnThreshold: g.WarnThreshold},
			Conviction: ConvictionConfig{
				PerformanceWeight: c.PerformanceWeight, BrandWeight: c.BrandWeight, AlignmentShare: c.AlignmentShare,
				ExceptionalAt: c.ExceptionalAt, HighAt: c.HighAt, MediumAt: c.MediumAt,
			},
			Retry: RetryConfig{MaxRetries: r.MaxRetries, InitialInterval: r.InitialInterval, MaxInterval: r.MaxInterval},
		},
		Eval: eval.DefaultEvalConfig(),
	}
}

// #endregion defaults

// #region load

// Load builds the configuration: defaults, then the YAML file at path (or at
// $TASTE_CONFIG when path is empty), then env overrides, then validation.
// Keys missing from the file keep their defaults; a platform listed under
// eval.platforms replaces that platform's whole table.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Database.Driver = envOr(EnvDBDriver, c.Database.Driver)
	c.Database.DSN = envOr(EnvDBDSN, c.Database.DSN)
	c.HTTP.Addr = envOr(EnvHTTPAddr, c.HTTP.Addr)
	c.Sidecar.Addr = envOr(EnvSidecarAddr, c.Sidecar.Addr)
	c.NATS.URL = envOr(EnvNATSURL, c.NATS.URL)
	c.Log.Level = envOr(EnvLogLevel, c.Log.Level)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion load

// #region validate

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		add("database.driver: unsupported %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		add("database.dsn: required")
	}
	if c.HTTP.Addr == "" {
		add("http.addr: required")
	}
	if c.Sidecar.AnalyzeTimeout <= 0 {
		add("sidecar.analyzeTimeout: must be positive")
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		add("log.level: %v", err)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		add("log.format: unsupported %q", c.Log.Format)
	}
	if _, err := cron.ParseStandard(c.Scheduler.Cron); err != nil {
		add("scheduler.cron: %v", err)
	}
	if c.Scheduler.Lookback <= 0 || c.Scheduler.Parallelism < 1 {
		add("scheduler: lookback and parallelism must be positive")
	}

	u := c.Engine.Update
	if u.Prior <= 0 || u.HalfLife <= 0 || u.DecayFloor < 0 || u.DecayFloor > 1 {
		add("engine.update: prior and halfLife must be positive, decayFloor in [0,1]")
	}
	if u.KeywordAlpha <= 0 || u.KeywordAlpha > 1 || u.ConfidentThreshold <= 0 || u.ConfidentThreshold > 1 {
		add("engine.update: keywordAlpha and confidentThreshold must be in (0,1]")
	}
	q := c.Engine.Quiz
	if q.BatchSize < 1 || q.MinStandardAnswers < 0 || q.MinContenderPairs < 1 || q.CompleteStreak < 1 || q.HoningMargin <= 0 {
		add("engine.quiz: sizes, streak and margin must be positive")
	}
	if err := c.Engine.Gate.ToGate().Validate(); err != nil {
		add("engine.gate: %v", err)
	}
	cv := c.Engine.Conviction
	if math.Abs(cv.PerformanceWeight+cv.BrandWeight-1) > 1e-6 || cv.PerformanceWeight < 0 || cv.BrandWeight < 0 {
		add("engine.conviction: performance and brand weights must be non-negative and sum to 1")
	}
	if cv.AlignmentShare < 0 || cv.AlignmentShare > 1 {
		add("engine.conviction: alignmentShare must be in [0,1]")
	}
	if !(cv.MediumAt < cv.HighAt && cv.HighAt < cv.ExceptionalAt && cv.ExceptionalAt <= 100 && cv.MediumAt >= 0) {
		add("engine.conviction: tiers must satisfy 0 <= medium < high < exceptional <= 100")
	}
	r := c.Engine.Retry
	if r.MaxRetries < 0 || r.InitialInterval <= 0 || r.MaxInterval < r.InitialInterval {
		add("engine.retry: invalid backoff bounds")
	}
	if err := c.Eval.Validate(); err != nil {
		add("%v", err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// #endregion validate

// #region conversions

func (u UpdateConfig) ToUpdate() update.Config {
	return update.Config{
		Prior: u.Prior, HalfLife: u.HalfLife, DecayFloor: u.DecayFloor,
		KeywordAlpha: u.KeywordAlpha, ConfidentThreshold: u.ConfidentThreshold,
	}
}

func (q QuizConfig) ToQuiz() quiz.Config {
	return quiz.Config{
		BatchSize: q.BatchSize, MinStandardAnswers: q.MinStandardAnswers, HoningMargin: q.HoningMargin,
		MinContenderPairs: q.MinContenderPairs, CompleteStreak: q.CompleteStreak,
	}
}

func (g GateConfig) ToGate() gate.GateConfig {
	return gate.GateConfig{BlockThreshold: g.BlockThreshold, WarnThreshold: g.WarnThreshold}
}

func (c ConvictionConfig) ToConviction() conviction.Config {
	return conviction.Config{
		PerformanceWeight: c.PerformanceWeight, BrandWeight: c.BrandWeight, AlignmentShare: c.AlignmentShare,
		ExceptionalAt: c.ExceptionalAt, HighAt: c.HighAt, MediumAt: c.MediumAt,
	}
}

// Orchestrator returns the coordinator's config.
func (e EngineConfig) Orchestrator() orchestrator.Config {
	return orchestrator.Config{
		Update: e.Update.ToUpdate(),
		Quiz:   e.Quiz.ToQuiz(),
		Retry: orchestrator.RetryConfig{
			MaxRetries: e.Retry.MaxRetries, InitialInterval: e.Retry.InitialInterval, MaxInterval: e.Retry.MaxInterval,
		},
	}
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	err := lvl.UnmarshalText([]byte(strings.TrimSpace(l.Level)))
	return lvl, err
}

// Logger builds a slog logger writing to w in the configured format.
func (l LogConfig) Logger(w io.Writer) *slog.Logger {
	lvl, err := l.SlogLevel()
	if err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if l.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// #endregion conversions
