package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/danielpatrickdp/taste-genome/internal/catalog"
	"github.com/danielpatrickdp/taste-genome/internal/replay"
	"github.com/danielpatrickdp/taste-genome/internal/signals"
	"github.com/danielpatrickdp/taste-genome/internal/state"
	"github.com/danielpatrickdp/taste-genome/internal/update"
)

// #region main

func main() {
	driver := flag.String("driver", "sqlite", "database driver (sqlite or postgres)")
	dsn := flag.String("db", "", "database DSN, e.g. path/to/taste_genome.db")
	profileID := flag.String("profile", "", "profile whose signal log is exported")
	last := flag.Int("last", 0, "export only the N most recent signals (0 = all)")
	outPath := flag.String("out", "", "output fixture JSON path")
	flag.Parse()

	if *dsn == "" || *profileID == "" || *outPath == "" {
		fmt.Fprintln(os.Stderr, "usage: fixture-export --db path/to/db --profile id --out path/to/fixture.json [--last N]")
		os.Exit(2)
	}

	if err := run(*driver, *dsn, *profileID, *last, *outPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region extract

func run(driver, dsn, profileID string, last int, outPath string) error {
	cat, err := catalog.Default()
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	store, err := state.NewStore(driver, dsn, cat)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer store.Close()

	history, err := store.ListSignals(context.Background(), profileID, 0)
	if err != nil {
		return fmt.Errorf("list signals: %w", err)
	}
	if len(history) == 0 {
		return fmt.Errorf("no signals stored for %s", profileID)
	}
	if last > 0 && len(history) > last {
		history = history[len(history)-last:]
	}
	fmt.Printf("Found %d signals\n", len(history))

	fixture, err := buildFixture(cat, profileID, history)
	if err != nil {
		return err
	}
	if err := replay.WriteFixture(outPath, fixture); err != nil {
		return err
	}
	fmt.Printf("Wrote fixture to %s (%d signals)\n", outPath, len(fixture.Signals))
	return nil
}

// #endregion extract

// #region output

// buildFixture records the current replay outcome of each signal as the
// expected result, so later changes to the update rule show up as diffs.
func buildFixture(cat *catalog.Catalog, profileID string, history []signals.Signal) (*replay.Fixture, error) {
	config := update.DefaultConfig()
	fixture := &replay.Fixture{
		Description: fmt.Sprintf("Session export: %d signals for profile %s", len(history), profileID),
		ProfileID:   profileID,
		Config:      replay.FromUpdateConfig(config),
	}

	for _, sig := range history {
		fs, err := replay.FromSignal(sig)
		if err != nil {
			return nil, err
		}
		fixture.Signals = append(fixture.Signals, fs)
	}

	// Replay the fixture's own view of the log so Seq numbering matches ToSignals.
	replayed, err := fixture.ToSignals()
	if err != nil {
		return nil, err
	}
	results, _ := replay.Replay(cat, profileID, replayed, config)
	for _, r := range results {
		fixture.ExpectedResults = append(fixture.ExpectedResults, replay.FixtureExpectedResult{
			SignalID: r.SignalID,
			Action:   r.Action,
			Primary:  r.Primary,
		})
	}
	return fixture, nil
}

// #endregion output
