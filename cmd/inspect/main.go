package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/danielpatrickdp/taste-genome/internal/catalog"
	"github.com/danielpatrickdp/taste-genome/internal/logging"
	"github.com/danielpatrickdp/taste-genome/internal/projection"
	"github.com/danielpatrickdp/taste-genome/internal/state"
)

// #region main

func main() {
	driver := flag.String("driver", "sqlite", "database driver (sqlite or postgres)")
	dsn := flag.String("db", "", "database DSN, e.g. path/to/taste_genome.db")
	profileID := flag.String("profile", "", "profile to inspect")
	last := flag.Int("last", 20, "show N most recent versions")
	version := flag.String("version", "", "show single version detail")
	evolution := flag.Bool("evolution", false, "show the evolution timeline instead of versions")
	catalogPath := flag.String("catalog", "", "catalog document (defaults to the embedded one)")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *dsn == "" || (*profileID == "" && *version == "") {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/taste_genome.db --profile id [--last N] [--evolution] [--json]")
		fmt.Fprintln(os.Stderr, "       inspect --db path/to/taste_genome.db --version id [--json]")
		os.Exit(2)
	}

	cat, err := catalog.Load(*catalogPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load catalog: %v\n", err)
		os.Exit(1)
	}
	store, err := state.NewStore(*driver, *dsn, cat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()
	switch {
	case *version != "":
		err = runDetailMode(ctx, store, cat, *version, *jsonOut)
	case *evolution:
		err = runEvolutionMode(ctx, store, *profileID, *last, *jsonOut)
	default:
		err = runListMode(ctx, store, cat, *profileID, *last, *jsonOut)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region list-mode

type listRow struct {
	VersionID  string  `json:"version_id"`
	Primary    string  `json:"primary"`
	Secondary  string  `json:"secondary"`
	Confidence float64 `json:"confidence"`
	Signals    int     `json:"signals"`
	Streak     int     `json:"confident_streak"`
	Clarity    string  `json:"clarity"`
	CreatedAt  string  `json:"created_at"`
}

func runListMode(ctx context.Context, store *state.Store, cat *catalog.Catalog, profileID string, last int, jsonOut bool) error {
	versions, err := store.ListVersions(ctx, profileID, last)
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		fmt.Fprintln(os.Stderr, "no versions found")
		return nil
	}

	// Store returns newest first; print chronologically.
	rows := make([]listRow, len(versions))
	for i, g := range versions {
		rows[len(versions)-1-i] = listRow{
			VersionID:  g.VersionID,
			Primary:    g.Primary,
			Secondary:  g.Secondary,
			Confidence: g.Confidence,
			Signals:    g.SignalCount,
			Streak:     g.ConfidentStreak,
			Clarity:    projection.ClarityOf(g),
			CreatedAt:  g.RecomputedAt.Format("2006-01-02T15:04:05Z"),
		}
	}

	if jsonOut {
		return printJSON(rows)
	}

	fmt.Printf("%-12s  %-7s  %-9s  %10s  %7s  %6s  %-8s  %s\n",
		"Version", "Primary", "Secondary", "Confidence", "Signals", "Streak", "Clarity", "Time")
	fmt.Printf("%-12s+-%-7s+-%-9s+-%10s+-%7s+-%6s+-%-8s+-%s\n",
		"------------", "-------", "---------", "----------", "-------", "------", "--------", "--------------------")
	for _, r := range rows {
		fmt.Printf("%-12s  %-7s  %-9s  %10.4f  %7d  %6d  %-8s  %s\n",
			shortID(r.VersionID), r.Primary, r.Secondary, r.Confidence, r.Signals, r.Streak, r.Clarity, r.CreatedAt)
	}

	current, err := store.GetCurrent(ctx, profileID)
	if err != nil {
		return err
	}
	brief := projection.Brief(projection.Summarize(current, cat.Archetypes(), 0))
	if brief != "" {
		fmt.Printf("\n%s\n", brief)
	}
	return nil
}

// #endregion list-mode

// #region detail-mode

func runDetailMode(ctx context.Context, store *state.Store, cat *catalog.Catalog, versionID string, jsonOut bool) error {
	g, err := store.GetVersion(ctx, versionID)
	if err != nil {
		return err
	}
	s := projection.Summarize(g, cat.Archetypes(), 0)
	if jsonOut {
		return printJSON(s)
	}

	fmt.Printf("Version:    %s\n", g.VersionID)
	fmt.Printf("Parent:     %s\n", orDash(g.ParentID))
	fmt.Printf("Profile:    %s\n", g.ProfileID)
	fmt.Printf("Created:    %s\n", g.RecomputedAt.Format("2006-01-02T15:04:05Z"))
	fmt.Printf("Signals:    %d (through seq %d)\n", g.SignalCount, g.SignalSeq)
	fmt.Printf("Confidence: %.4f (%s)\n", g.Confidence, s.Clarity)

	fmt.Printf("\nDistribution:\n")
	for _, sh := range s.Ranking {
		fmt.Printf("  %-5s %-28s %6.4f  %s\n", sh.Designation, sh.Title, sh.Probability, strings.Repeat("#", sh.Percent/2))
	}
	printKeywords("Tone", s.Tone)
	printKeywords("Hooks", s.Hooks)
	return nil
}

func printKeywords(label string, kws []projection.Keyword) {
	if len(kws) == 0 {
		return
	}
	fmt.Printf("\n%s:\n", label)
	for _, k := range kws {
		fmt.Printf("  %-20s %+.3f\n", k.Token, k.Weight)
	}
}

// #endregion detail-mode

// #region evolution-mode

func runEvolutionMode(ctx context.Context, store *state.Store, profileID string, last int, jsonOut bool) error {
	entries, err := logging.NewRecorder(store).List(ctx, profileID, last)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(os.Stderr, "no evolution entries")
		return nil
	}
	for _, e := range entries {
		fmt.Printf("%s  %-18s  version=%s  %s\n", e.Timestamp.Format("2006-01-02T15:04:05Z"), e.Event, shortID(e.VersionID), e.Reason)
		for _, c := range e.ArchetypeChanges {
			fmt.Printf("    %-5s %+.4f\n", c.Archetype, c.ConfidenceChange)
		}
		for _, k := range e.KeyChanges {
			fmt.Printf("    %-20s %+.3f\n", k.Label, k.Delta)
		}
	}
	return nil
}

// #endregion evolution-mode

// #region output

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// #endregion output
