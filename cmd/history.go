package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/kpm34/college-football-fantasy-app-sub000/internal/model"
	"github.com/kpm34/college-football-fantasy-app-sub000/internal/store"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent ingestion runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		season, _ := cmd.Flags().GetInt("season")
		week, _ := cmd.Flags().GetInt("week")
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		execs, err := st.ListExecutions(ctx, store.ExecutionFilter{
			Season: season,
			Week:   week,
			Status: model.ExecutionStatus(status),
			Limit:  limit,
		})
		if err != nil {
			return eris.Wrap(err, "history")
		}

		if len(execs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(execs)
		}
		formatExecutions(os.Stdout, execs)
		return nil
	},
}

func init() {
	historyCmd.Flags().Int("season", 0, "filter by season")
	historyCmd.Flags().Int("week", 0, "filter by week")
	historyCmd.Flags().String("status", "", "filter by status (running, succeeded, failed)")
	historyCmd.Flags().Int("limit", 20, "max number of runs to display")
	historyCmd.Flags().Bool("json", false, "print full records as JSON")
	rootCmd.AddCommand(historyCmd)
}

// formatExecutions writes a tabular list of runs to w.
func formatExecutions(out io.Writer, execs []model.ExecutionRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tWEEK\tSTATUS\tFETCHED\tPUBLISHED\tSTARTED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t----\t------\t-------\t---------\t-------\t--------")

	for _, e := range execs {
		fetched, published, dur := "-", "-", "-"
		if e.Result != nil {
			fetched = fmt.Sprint(e.Result.Stages.Adapters.RecordsFetched)
			published = fmt.Sprint(e.Result.Stages.Publication.RecordsPublished)
		}
		if e.CompletedAt != nil {
			dur = e.CompletedAt.Sub(e.StartedAt).Round(time.Millisecond).String()
		}
		_, _ = fmt.Fprintf(w, "%s\t%dW%d\t%s\t%s\t%s\t%s\t%s\n",
			e.ExecutionID,
			e.Season, e.Week,
			e.Status,
			fetched,
			published,
			e.StartedAt.Format("2006-01-02 15:04"),
			dur,
		)
	}
	_ = w.Flush()
}
