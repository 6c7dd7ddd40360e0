package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mediaengine/engine/internal/config"
	"github.com/mediaengine/engine/internal/lifecycle"
	"github.com/mediaengine/engine/internal/logging"
	"github.com/mediaengine/engine/internal/store"
)

// newRepairCmd runs one offline consistency-repair pass and prints
// the report, for recovering a data root without starting the full
// engine.
func newRepairCmd() *cobra.Command {
	var dataRoot string

	cmd := &cobra.Command{
		Use:   "repair",
		Short: "Run a consistency repair pass against a data root and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.DefaultEngineConfig()
			if dataRoot != "" {
				cfg.DataRoot = dataRoot
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := cfg.EnsureLayout(); err != nil {
				return err
			}

			log, closeLogs, err := logging.Setup(logging.DefaultConfig(cfg.DataRoot))
			if err != nil {
				return err
			}
			defer closeLogs()

			ctx := cmd.Context()
			st, err := store.Open(ctx, cfg.DBPath())
			if err != nil {
				return err
			}
			defer st.Close()

			report, err := lifecycle.Repair(ctx, st, cfg, log)
			if err != nil {
				return err
			}
			fmt.Println(report.String())
			return nil
		},
	}

	cmd.Flags().StringVar(&dataRoot, "data-root", "", "engine data root (default: ~/.media-engine)")
	return cmd
}
