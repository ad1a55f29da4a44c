package main

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kpm34/college-football-fantasy-app-sub000/internal/adapter"
	"github.com/kpm34/college-football-fantasy-app-sub000/internal/config"
	"github.com/kpm34/college-football-fantasy-app-sub000/internal/model"
)

// newRunFlags returns a command carrying run's flag set, parsed from args.
func newRunFlags(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	c := &cobra.Command{Use: "run"}
	addRunFlags(c)
	require.NoError(t, c.ParseFlags(args))
	return c
}

func withConfig(t *testing.T, c *config.Config) {
	t.Helper()
	prev := cfg
	cfg = c
	t.Cleanup(func() { cfg = prev })
}

func TestIngestionConfigFromFlags_Defaults(t *testing.T) {
	withConfig(t, &config.Config{Adapters: config.AdaptersConfig{Feeds: []adapter.FeedConfig{{Name: "team_notes"}, {Name: "espn"}}}})
	def := config.IngestConfig{ParallelAdapters: true, MaxRetries: 3, CreateSnapshot: true}

	ic, err := ingestionConfigFromFlags(newRunFlags(t, "--season", "2025", "--week", "3"), def)
	require.NoError(t, err)

	assert.Equal(t, 2025, ic.Season)
	assert.Equal(t, 3, ic.Week)
	assert.Equal(t, []string{"team_notes", "espn"}, ic.Adapters)
	assert.Equal(t, model.IngestionOptions{ParallelAdapters: true, MaxRetries: 3, CreateSnapshot: true}, ic.Options)
}

func TestIngestionConfigFromFlags_Overrides(t *testing.T) {
	withConfig(t, &config.Config{})
	def := config.IngestConfig{Adapters: []string{"espn"}, ParallelAdapters: true, CreateSnapshot: true, MaxRetries: 3}

	ic, err := ingestionConfigFromFlags(newRunFlags(t,
		"--season", "2025", "--week", "0",
		"--adapters", "team_notes,on3",
		"--parallel=false", "--snapshot=false", "--dry-run", "--skip-resolution", "--max-retries", "1",
	), def)
	require.NoError(t, err)

	assert.Equal(t, []string{"team_notes", "on3"}, ic.Adapters)
	assert.False(t, ic.Options.ParallelAdapters)
	assert.False(t, ic.Options.CreateSnapshot)
	assert.True(t, ic.Options.DryRun)
	assert.True(t, ic.Options.SkipResolution)
	assert.Equal(t, 1, ic.Options.MaxRetries)
}

func TestIngestionConfigFromFlags_Invalid(t *testing.T) {
	withConfig(t, &config.Config{})
	_, err := ingestionConfigFromFlags(newRunFlags(t, "--season", "1999", "--week", "3"), config.IngestConfig{})
	assert.ErrorContains(t, err, "invalid season")

	_, err = ingestionConfigFromFlags(newRunFlags(t, "--season", "2025", "--week", "21"), config.IngestConfig{})
	assert.ErrorContains(t, err, "invalid week")
}

func TestFormatIngestionResult(t *testing.T) {
	res := &model.IngestionResult{
		ExecutionID: "2025W3_abc_def012",
		Season:      2025,
		Week:        3,
		DryRun:      true,
		Errors: []model.IngestionError{
			{Stage: model.StageAdapters, Component: "espn", Severity: model.ErrorError, Message: "network: timeout"},
		},
		Warnings: []string{"a", "b"},
	}
	res.Stages.Adapters = model.AdapterStage{Status: model.StatusPartial, RecordsFetched: 40, AdaptersFailed: []string{"espn"}}
	res.Stages.Publication = model.PublicationStage{Status: model.StatusSuccess, RecordsCreated: 30, SnapshotPath: "snapshots/2025/week-3/x.json"}

	var buf bytes.Buffer
	formatIngestionResult(&buf, res)
	out := buf.String()

	assert.Contains(t, out, "2025W3_abc_def012")
	assert.Contains(t, out, "2025W3")
	assert.Contains(t, out, "Dry run")
	assert.Contains(t, out, "40 fetched, failed [espn]")
	assert.Contains(t, out, "30 created")
	assert.Contains(t, out, "snapshots/2025/week-3/x.json")
	assert.Contains(t, out, "[error] adapters/espn: network: timeout")
	assert.Contains(t, out, "2 warnings")
}
