package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/danielpatrickdp/taste-genome/internal/catalog"
	"github.com/danielpatrickdp/taste-genome/internal/replay"
	"github.com/danielpatrickdp/taste-genome/internal/state"
	"github.com/danielpatrickdp/taste-genome/internal/update"
)

// #region main

func main() {
	driver := flag.String("driver", "sqlite", "database driver (sqlite or postgres) for DB mode")
	dsn := flag.String("db", "", "database DSN (DB mode)")
	profileID := flag.String("profile", "", "profile whose signal log is replayed (DB mode)")
	fixturePath := flag.String("fixture", "", "path to fixture JSON (fixture mode)")
	catalogPath := flag.String("catalog", "", "catalog document (defaults to the embedded one)")
	flag.Parse()

	dbMode := *dsn != "" && *profileID != ""
	if dbMode == (*fixturePath != "") {
		fmt.Fprintln(os.Stderr, "usage: replay --db path/to/taste_genome.db --profile id")
		fmt.Fprintln(os.Stderr, "       replay --fixture path/to/fixture.json")
		os.Exit(2)
	}

	cat, err := catalog.Load(*catalogPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load catalog: %v\n", err)
		os.Exit(2)
	}

	var exitCode int
	if *fixturePath != "" {
		exitCode = runFixtureMode(cat, *fixturePath)
	} else {
		exitCode = runDBMode(cat, *driver, *dsn, *profileID)
	}
	os.Exit(exitCode)
}

// #endregion main

// #region db-mode

// runDBMode replays a stored log and compares the final fold with the
// profile's active genome. A mismatch means the stored genome was produced
// under a different config or has been rolled back.
func runDBMode(cat *catalog.Catalog, driver, dsn, profileID string) int {
	store, err := state.NewStore(driver, dsn, cat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		return 2
	}
	defer store.Close()

	ctx := context.Background()
	history, err := store.ListSignals(ctx, profileID, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "list signals: %v\n", err)
		return 2
	}
	if len(history) == 0 {
		fmt.Fprintf(os.Stderr, "no signals stored for %s\n", profileID)
		return 2
	}
	current, err := store.GetCurrent(ctx, profileID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "get current genome: %v\n", err)
		return 2
	}

	results, final := replay.Replay(cat, profileID, history, update.DefaultConfig())
	printSteps(results, nil)
	printSummary(replay.Summarize(results, final))

	fmt.Printf("\nStored genome: primary=%s confidence=%.4f signals=%d\n", current.Primary, current.Confidence, current.SignalCount)
	if current.Primary != final.Primary || current.SignalCount != final.SignalCount {
		fmt.Println("DIFF: replayed genome does not match the stored one")
		return 1
	}
	fmt.Println("OK: replayed genome matches the stored one")
	return 0
}

// #endregion db-mode

// #region fixture-mode

func runFixtureMode(cat *catalog.Catalog, path string) int {
	f, err := replay.LoadFixture(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load fixture: %v\n", err)
		return 2
	}
	history, err := f.ToSignals()
	if err != nil {
		fmt.Fprintf(os.Stderr, "decode fixture: %v\n", err)
		return 2
	}

	results, final := replay.Replay(cat, f.ProfileID, history, f.Config.ToUpdateConfig())

	expected := make(map[string]replay.FixtureExpectedResult, len(f.ExpectedResults))
	for _, e := range f.ExpectedResults {
		expected[e.SignalID] = e
	}
	printSteps(results, expected)
	printSummary(replay.Summarize(results, final))

	diffs := f.Check(results)
	for _, d := range diffs {
		fmt.Printf("DIFF %s\n", d)
	}
	fmt.Printf("\n%d steps, %d diverge\n", len(results), len(diffs))
	if len(diffs) > 0 {
		return 1
	}
	return 0
}

// #endregion fixture-mode

// #region output

func printSteps(results []replay.StepResult, expected map[string]replay.FixtureExpectedResult) {
	fmt.Printf("%-10s| %-12s| %-10s| %-10s| %-8s| %-10s| %s\n",
		"Signal", "Type", "Expected", "Replayed", "Primary", "Confidence", "Reason")
	fmt.Printf("%-10s+%-12s+%-10s+%-10s+%-8s+%-10s+%s\n",
		"----------", "-------------", "-----------", "-----------", "---------", "-----------", "--------")
	for _, r := range results {
		exp := "-"
		if e, ok := expected[r.SignalID]; ok && e.Action != "" {
			exp = e.Action
		}
		fmt.Printf("%-10s| %-12s| %-10s| %-10s| %-8s| %10.4f| %s\n",
			shortID(r.SignalID), r.Type, exp, r.Action, r.Primary, r.Confidence, r.Reason)
	}
}

func printSummary(s replay.Summary) {
	fmt.Printf("\nSummary: %d signals, %d shift, %d reinforce, %d weaken, %d no_op\n",
		s.TotalSignals, s.Shifts, s.Reinforcements, s.Weakenings, s.NoOps)
	fmt.Printf("Final:   primary=%s secondary=%s confidence=%.4f streak=%d\n",
		s.Final.Primary, s.Final.Secondary, s.Final.Confidence, s.Final.ConfidentStreak)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion output
