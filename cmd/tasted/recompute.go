package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/taste-genome/internal/config"
	"github.com/danielpatrickdp/taste-genome/internal/projection"
)

// #region recompute

func recomputeCmd(configPath *string) *cobra.Command {
	var (
		jsonOut bool
		all     bool
	)
	cmd := &cobra.Command{
		Use:   "recompute [profile-id...]",
		Short: "Refold each profile's genome from its stored signals",
		Args: func(_ *cobra.Command, args []string) error {
			if all == (len(args) > 0) {
				return errors.New("pass profile ids or --all, not both")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			logCfg := cfg.Log
			logCfg.Format = "text"
			e, err := buildEngine(cfg, logCfg.Logger(os.Stderr))
			if err != nil {
				return err
			}
			defer e.Close()

			if all {
				if args, err = e.store.ListProfiles(cmd.Context()); err != nil {
					return fmt.Errorf("list profiles: %w", err)
				}
			}

			out := cmd.OutOrStdout()
			for _, profileID := range args {
				g, err := e.orch.Recompute(cmd.Context(), profileID)
				if err != nil {
					return fmt.Errorf("recompute %s: %w", profileID, err)
				}
				if jsonOut {
					data, err := json.Marshal(g)
					if err != nil {
						return fmt.Errorf("marshal genome: %w", err)
					}
					fmt.Fprintln(out, string(data))
					continue
				}
				s := projection.Summarize(g, e.catalog.Archetypes(), 0)
				fmt.Fprintf(out, "%s  version=%s primary=%s secondary=%s confidence=%.3f signals=%d clarity=%s\n",
					profileID, g.VersionID, g.Primary, g.Secondary, g.Confidence, g.SignalCount, s.Clarity)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print each genome as a JSON line")
	cmd.Flags().BoolVar(&all, "all", false, "recompute every profile with stored signals")
	return cmd
}

// #endregion recompute
