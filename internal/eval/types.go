package eval

import "time"

// #region signal-names
// Raw engagement signal names, as reported by the platform-metrics service.
const (
	SignalSaveRate     = "save_rate"
	SignalShareRate    = "share_rate"
	SignalConversion   = "conversion"
	SignalWatchDepth   = "watch_depth"
	SignalCommentDepth = "comment_depth"
	SignalCardCTR      = "card_ctr"
)

// SignalNames lists every signal in a fixed order.
var SignalNames = []string{
	SignalSaveRate, SignalShareRate, SignalConversion,
	SignalWatchDepth, SignalCommentDepth, SignalCardCTR,
}

// DefaultPlatform is used for any platform without its own config.
const DefaultPlatform = "default"
// #endregion signal-names

// #region platform-config
// Scale is how a raw value is compared with its baseline.
type Scale string

const (
	ScaleLinear Scale = "linear"
	ScaleLog    Scale = "log"
)

// SignalSpec normalizes one raw signal on one platform. A raw value equal to
// Baseline maps to 50.
type SignalSpec struct {
	Baseline float64 `yaml:"baseline"`
	Scale    Scale   `yaml:"scale"`
	Weight   float64 `yaml:"weight"`
}

// PlatformConfig holds the per-signal specs of one platform. Weights sum to 1.
type PlatformConfig map[string]SignalSpec

// RawMetrics are one platform's raw readings. A missing key is a missing value.
type RawMetrics map[string]float64
// #endregion platform-config

// #region eval-config
// EvalConfig holds normalization tables and the calibration policy.
type EvalConfig struct {
	Platforms                map[string]PlatformConfig `yaml:"platforms"`
	CollectingWindow         time.Duration             `yaml:"collectingWindow"`         // default 6h
	MinFetchesForCalibration int                       `yaml:"minFetchesForCalibration"` // default 2
	CalibrationGain          float64                   `yaml:"calibrationGain"`          // default 4
	CalibrationDeadBand      float64                   `yaml:"calibrationDeadBand"`      // points of error ignored (default 5)
	MaxCalibrationWeight     float64                   `yaml:"maxCalibrationWeight"`     // default 5
}

// DefaultEvalConfig returns the built-in platform tables. Baselines are
// typical per-post rates in percent (watch depth in percent of duration).
func DefaultEvalConfig() EvalConfig {
	return EvalConfig{
		Platforms: map[string]PlatformConfig{
			"instagram": {
				SignalSaveRate:     {Baseline: 2.0, Scale: ScaleLinear, Weight: 0.30},
				SignalShareRate:    {Baseline: 1.0, Scale: ScaleLinear, Weight: 0.20},
				SignalConversion:   {Baseline: 0.5, Scale: ScaleLog, Weight: 0.15},
				SignalWatchDepth:   {Baseline: 40, Scale: ScaleLinear, Weight: 0.10},
				SignalCommentDepth: {Baseline: 3, Scale: ScaleLog, Weight: 0.15},
				SignalCardCTR:      {Baseline: 1.0, Scale: ScaleLinear, Weight: 0.10},
			},
			"tiktok": {
				SignalSaveRate:     {Baseline: 1.5, Scale: ScaleLinear, Weight: 0.15},
				SignalShareRate:    {Baseline: 1.5, Scale: ScaleLinear, Weight: 0.25},
				SignalConversion:   {Baseline: 0.3, Scale: ScaleLog, Weight: 0.10},
				SignalWatchDepth:   {Baseline: 55, Scale: ScaleLinear, Weight: 0.35},
				SignalCommentDepth: {Baseline: 2, Scale: ScaleLog, Weight: 0.10},
				SignalCardCTR:      {Baseline: 0.5, Scale: ScaleLinear, Weight: 0.05},
			},
			"youtube": {
				SignalSaveRate:     {Baseline: 0.8, Scale: ScaleLinear, Weight: 0.10},
				SignalShareRate:    {Baseline: 0.5, Scale: ScaleLinear, Weight: 0.15},
				SignalConversion:   {Baseline: 0.5, Scale: ScaleLog, Weight: 0.15},
				SignalWatchDepth:   {Baseline: 45, Scale: ScaleLinear, Weight: 0.35},
				SignalCommentDepth: {Baseline: 5, Scale: ScaleLog, Weight: 0.15},
				SignalCardCTR:      {Baseline: 2.0, Scale: ScaleLinear, Weight: 0.10},
			},
			DefaultPlatform: {
				SignalSaveRate:     {Baseline: 1.5, Scale: ScaleLinear, Weight: 0.20},
				SignalShareRate:    {Baseline: 1.0, Scale: ScaleLinear, Weight: 0.20},
				SignalConversion:   {Baseline: 0.5, Scale: ScaleLog, Weight: 0.15},
				SignalWatchDepth:   {Baseline: 45, Scale: ScaleLinear, Weight: 0.20},
				SignalCommentDepth: {Baseline: 3, Scale: ScaleLog, Weight: 0.15},
				SignalCardCTR:      {Baseline: 1.0, Scale: ScaleLinear, Weight: 0.10},
			},
		},
		CollectingWindow:         6 * time.Hour,
		MinFetchesForCalibration: 2,
		CalibrationGain:          4,
		CalibrationDeadBand:      5,
		MaxCalibrationWeight:     5,
	}
}
// #endregion eval-config

// #region eval-metric
// EvalMetric captures one normalized signal reading.
type EvalMetric struct {
	Platform string
	Name     string
	Value    float64 // 0-100
	Pass     bool    // false when the raw value was missing
}
// #endregion eval-metric

// #region eval-result
// EvalResult is the output of scoring one fetch.
type EvalResult struct {
	Passed            bool
	Score             float64
	PlatformBreakdown map[string]float64
	Metrics           []EvalMetric
	Reason            string
}

// Status is what a caller sees for a published post's audience depth.
type Status string

const (
	StatusCollecting Status = "collecting"
	StatusReady      Status = "ready"
)
// #endregion eval-result
