package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kpm34/college-football-fantasy-app-sub000/internal/orchestrator"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Probe the store and every configured feed",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := buildPipeline(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		rep := env.Orchestrator.HealthCheck(ctx)
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			return err
		}
		if rep.Status == orchestrator.Unhealthy {
			return fmt.Errorf("system unhealthy: %d issues", len(rep.Issues))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
