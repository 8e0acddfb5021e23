package replay

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/danielpatrickdp/taste-genome/internal/signals"
	"github.com/danielpatrickdp/taste-genome/internal/update"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture.
type Fixture struct {
	Description     string                  `json:"description"`
	ProfileID       string                  `json:"profile_id"`
	Config          FixtureConfig           `json:"config"`
	Signals         []FixtureSignal         `json:"signals"`
	ExpectedResults []FixtureExpectedResult `json:"expected_results"`
}

// FixtureSignal mirrors signals.Signal with JSON tags. Payload is decoded
// according to Type.
type FixtureSignal struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Topic     string          `json:"topic,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	Weight    *float64        `json:"weight,omitempty"`
	Hints     []string        `json:"hints,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// FixtureExpectedResult captures the expected outcome per signal.
type FixtureExpectedResult struct {
	SignalID string `json:"signal_id"`
	Action   string `json:"action"`
	Primary  string `json:"primary"`
}

// FixtureConfig bundles the sub-configs for a replay run.
type FixtureConfig struct {
	UpdateConfig FixtureUpdateConfig `json:"update_config"`
}

// FixtureUpdateConfig mirrors update.Config with JSON tags. Zero fields take
// the defaults.
type FixtureUpdateConfig struct {
	Prior              float64 `json:"prior,omitempty"`
	HalfLifeHours      float64 `json:"half_life_hours,omitempty"`
	DecayFloor         float64 `json:"decay_floor,omitempty"`
	KeywordAlpha       float64 `json:"keyword_alpha,omitempty"`
	ConfidentThreshold float64 `json:"confident_threshold,omitempty"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// WriteFixture writes f as indented JSON.
func WriteFixture(path string, f *Fixture) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encode fixture: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write fixture %s: %w", path, err)
	}
	return nil
}

// ToSignals converts the fixture log to domain signals with Seq assigned in
// file order. A missing weight takes the payload's default.
func (f *Fixture) ToSignals() ([]signals.Signal, error) {
	out := make([]signals.Signal, 0, len(f.Signals))
	for i, fs := range f.Signals {
		t := signals.Type(fs.Type)
		p, err := signals.DecodePayload(t, fs.Payload)
		if err != nil {
			return nil, fmt.Errorf("fixture signal %d (%s): %w", i, fs.ID, err)
		}
		w := signals.DefaultWeight(p)
		if fs.Weight != nil {
			w = *fs.Weight
		}
		out = append(out, signals.Signal{
			ID:        fs.ID,
			ProfileID: f.ProfileID,
			Seq:       int64(i + 1),
			Type:      t,
			Topic:     fs.Topic,
			Payload:   p,
			Weight:    w,
			Hints:     fs.Hints,
			CreatedAt: fs.CreatedAt,
		})
	}
	return out, nil
}

// FromSignal converts a stored signal into its fixture form.
func FromSignal(sig signals.Signal) (FixtureSignal, error) {
	raw, err := signals.EncodePayload(sig.Payload)
	if err != nil {
		return FixtureSignal{}, fmt.Errorf("fixture signal %s: %w", sig.ID, err)
	}
	w := sig.Weight
	return FixtureSignal{
		ID:        sig.ID,
		Type:      string(sig.Type),
		Topic:     sig.Topic,
		Payload:   raw,
		Weight:    &w,
		Hints:     sig.Hints,
		CreatedAt: sig.CreatedAt.UTC(),
	}, nil
}

// ToUpdateConfig converts a FixtureConfig to update.Config.
func (fc *FixtureConfig) ToUpdateConfig() update.Config {
	c := update.DefaultConfig()
	u := fc.UpdateConfig
	if u.Prior != 0 {
		c.Prior = u.Prior
	}
	if u.HalfLifeHours != 0 {
		c.HalfLife = time.Duration(u.HalfLifeHours * float64(time.Hour))
	}
	if u.DecayFloor != 0 {
		c.DecayFloor = u.DecayFloor
	}
	if u.KeywordAlpha != 0 {
		c.KeywordAlpha = u.KeywordAlpha
	}
	if u.ConfidentThreshold != 0 {
		c.ConfidentThreshold = u.ConfidentThreshold
	}
	return c
}

// FromUpdateConfig is the inverse of ToUpdateConfig.
func FromUpdateConfig(c update.Config) FixtureConfig {
	return FixtureConfig{UpdateConfig: FixtureUpdateConfig{
		Prior:              c.Prior,
		HalfLifeHours:      c.HalfLife.Hours(),
		DecayFloor:         c.DecayFloor,
		KeywordAlpha:       c.KeywordAlpha,
		ConfidentThreshold: c.ConfidentThreshold,
	}}
}

// Check compares replay results with the expected results and returns one
// line per mismatch.
func (f *Fixture) Check(results []StepResult) []string {
	var diffs []string
	if len(results) != len(f.ExpectedResults) {
		diffs = append(diffs, fmt.Sprintf("expected %d results, got %d", len(f.ExpectedResults), len(results)))
	}
	for i, want := range f.ExpectedResults {
		if i >= len(results) {
			break
		}
		got := results[i]
		if got.SignalID != want.SignalID {
			diffs = append(diffs, fmt.Sprintf("step %d: expected signal %s, got %s", i, want.SignalID, got.SignalID))
		}
		if want.Action != "" && got.Action != want.Action {
			diffs = append(diffs, fmt.Sprintf("step %d (%s): expected action=%s, got %s (%s)", i, want.SignalID, want.Action, got.Action, got.Reason))
		}
		if want.Primary != "" && got.Primary != want.Primary {
			diffs = append(diffs, fmt.Sprintf("step %d (%s): expected primary=%s, got %s", i, want.SignalID, want.Primary, got.Primary))
		}
	}
	return diffs
}

// #endregion fixture-loader
