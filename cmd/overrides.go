package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/kpm34/college-football-fantasy-app-sub000/internal/model"
	"github.com/kpm34/college-football-fantasy-app-sub000/internal/override"
	"github.com/kpm34/college-football-fantasy-app-sub000/internal/store"
)

var overridesCmd = &cobra.Command{
	Use:   "overrides",
	Short: "Manage manual field overrides",
	Long:  "Create, approve, list and deactivate operator overrides applied on top of resolved depth charts.",
}

func withManager(cmd *cobra.Command, fn func(m *override.Manager) error) error {
	st, err := initStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck
	return fn(override.NewManager(st))
}

// -- overrides create --

var overridesCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an override",
	RunE: func(cmd *cobra.Command, _ []string) error {
		req, err := createRequestFromFlags(cmd)
		if err != nil {
			return err
		}
		return withManager(cmd, func(m *override.Manager) error {
			res, err := m.Create(cmd.Context(), req)
			var invalid *override.InvalidError
			if errors.As(err, &invalid) {
				for _, e := range invalid.Errors {
					fmt.Fprintln(os.Stderr, "error:", e)
				}
				return eris.New("override rejected")
			}
			if err != nil {
				return err
			}
			for _, w := range res.Warnings {
				fmt.Fprintln(os.Stderr, "warning:", w)
			}
			state := "active"
			if res.NeedsApproval {
				state = "pending approval"
			}
			fmt.Printf("Created override %s (%s).\n", res.Override.ID, state)
			if res.Replaced != "" {
				fmt.Printf("Replaced override %s.\n", res.Replaced)
			}
			return nil
		})
	},
}

func createRequestFromFlags(cmd *cobra.Command) (override.CreateRequest, error) {
	f := cmd.Flags()
	player, _ := f.GetString("player")
	field, _ := f.GetString("field")
	raw, _ := f.GetString("value")
	season, _ := f.GetInt("season")
	week, _ := f.GetInt("week")
	reason, _ := f.GetString("reason")
	by, _ := f.GetString("by")
	approval, _ := f.GetBool("require-approval")

	req := override.CreateRequest{
		PlayerID:        player,
		FieldName:       field,
		Value:           parseOverrideValue(raw),
		Season:          season,
		Week:            week,
		Reason:          reason,
		CreatedBy:       by,
		RequireApproval: approval,
	}
	if s, _ := f.GetString("from"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return req, eris.Wrap(err, "parse --from")
		}
		req.EffectiveFrom = &t
	}
	if s, _ := f.GetString("expires"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return req, eris.Wrap(err, "parse --expires")
		}
		req.ExpiresAt = &t
	}
	return req, nil
}

// parseOverrideValue reads a flag value as JSON, falling back to the raw
// string so --value OUT works without quoting.
func parseOverrideValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v
	}
	return raw
}

// -- overrides list --

var overridesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List overrides",
	RunE: func(cmd *cobra.Command, _ []string) error {
		f := cmd.Flags()
		filter := store.OverrideFilter{}
		filter.PlayerID, _ = f.GetString("player")
		filter.FieldName, _ = f.GetString("field")
		filter.Season, _ = f.GetInt("season")
		filter.ActiveOnly, _ = f.GetBool("active")
		filter.PendingOnly, _ = f.GetBool("pending")
		filter.Limit, _ = f.GetInt("limit")
		if f.Changed("week") {
			w, _ := f.GetInt("week")
			filter.Week = &w
		}

		return withManager(cmd, func(m *override.Manager) error {
			list, err := m.Search(cmd.Context(), filter)
			if err != nil {
				return eris.Wrap(err, "overrides list")
			}
			if len(list) == 0 {
				fmt.Fprintln(os.Stderr, "No overrides found.")
				return nil
			}
			formatOverrides(os.Stdout, list)
			return nil
		})
	},
}

// -- overrides approve / reject / deactivate --

var overridesApproveCmd = &cobra.Command{
	Use:   "approve <override-id>",
	Short: "Approve a pending override",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		by, _ := cmd.Flags().GetString("by")
		return withManager(cmd, func(m *override.Manager) error {
			o, err := m.Approve(cmd.Context(), args[0], by)
			if err != nil {
				return err
			}
			fmt.Printf("Approved override %s for %s %s.\n", o.ID, o.PlayerID, o.FieldName)
			return nil
		})
	},
}

var overridesRejectCmd = &cobra.Command{
	Use:   "reject <override-id>",
	Short: "Reject a pending override",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		by, _ := cmd.Flags().GetString("by")
		reason, _ := cmd.Flags().GetString("reason")
		return withManager(cmd, func(m *override.Manager) error {
			if err := m.Reject(cmd.Context(), args[0], by, reason); err != nil {
				return err
			}
			fmt.Printf("Rejected override %s.\n", args[0])
			return nil
		})
	},
}

var overridesDeactivateCmd = &cobra.Command{
	Use:   "deactivate <override-id>",
	Short: "Deactivate an override",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		by, _ := cmd.Flags().GetString("by")
		reason, _ := cmd.Flags().GetString("reason")
		return withManager(cmd, func(m *override.Manager) error {
			if err := m.Deactivate(cmd.Context(), args[0], by, reason); err != nil {
				return err
			}
			fmt.Printf("Deactivated override %s.\n", args[0])
			return nil
		})
	},
}

// -- overrides stats --

var overridesStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize a season's overrides",
	RunE: func(cmd *cobra.Command, _ []string) error {
		season, _ := cmd.Flags().GetInt("season")
		return withManager(cmd, func(m *override.Manager) error {
			s, err := m.Stats(cmd.Context(), season)
			if err != nil {
				return eris.Wrap(err, "overrides stats")
			}
			formatOverrideStats(os.Stdout, s)
			return nil
		})
	},
}

// -- overrides import --

var overridesImportCmd = &cobra.Command{
	Use:   "import <requests.json>",
	Short: "Create overrides from a JSON array of requests",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrapf(err, "read %s", args[0])
		}
		var reqs []override.CreateRequest
		if err := json.Unmarshal(data, &reqs); err != nil {
			return eris.Wrapf(err, "parse %s", args[0])
		}
		reason, _ := cmd.Flags().GetString("reason")
		return withManager(cmd, func(m *override.Manager) error {
			res := m.CreateBatch(cmd.Context(), reqs, reason)
			fmt.Printf("Created %d, pending approval %d, failed %d.\n", len(res.Created), len(res.Pending), len(res.Failed))
			for _, f := range res.Failed {
				fmt.Fprintf(os.Stderr, "request %d: %s\n", f.Index, strings.Join(f.Errors, "; "))
			}
			if !res.Success {
				return eris.New("no overrides created")
			}
			return nil
		})
	},
}

// -- overrides fields --

var overridesFieldsCmd = &cobra.Command{
	Use:   "fields",
	Short: "List fields that accept overrides",
	RunE: func(_ *cobra.Command, _ []string) error {
		fmt.Println(strings.Join(override.SupportedFields(), "\n"))
		return nil
	},
}

func init() {
	cf := overridesCreateCmd.Flags()
	cf.String("player", "", "canonical player id (required)")
	cf.String("field", "", "field name (required)")
	cf.String("value", "", "override value, JSON or bare string (required)")
	cf.Int("season", 0, "season (required)")
	cf.Int("week", 0, "week, 0 for the whole season")
	cf.String("from", "", "effective from, RFC 3339 (default now)")
	cf.String("expires", "", "expiry, RFC 3339")
	cf.String("reason", "", "why the override exists")
	cf.String("by", os.Getenv("USER"), "operator name")
	cf.Bool("require-approval", false, "hold for approval even if the field does not need it")
	for _, name := range []string{"player", "field", "value", "season"} {
		_ = overridesCreateCmd.MarkFlagRequired(name)
	}

	lf := overridesListCmd.Flags()
	lf.String("player", "", "filter by player id")
	lf.String("field", "", "filter by field")
	lf.Int("season", 0, "filter by season")
	lf.Int("week", 0, "filter by week")
	lf.Bool("active", false, "only active overrides")
	lf.Bool("pending", false, "only overrides awaiting approval")
	lf.Int("limit", 50, "max number of overrides to display")

	for _, c := range []*cobra.Command{overridesApproveCmd, overridesRejectCmd, overridesDeactivateCmd} {
		c.Flags().String("by", os.Getenv("USER"), "operator name")
	}
	overridesRejectCmd.Flags().String("reason", "", "why the override is rejected")
	overridesDeactivateCmd.Flags().String("reason", "", "why the override is removed")

	overridesStatsCmd.Flags().Int("season", time.Now().Year(), "season")
	overridesImportCmd.Flags().String("reason", "", "reason recorded for the batch")

	overridesCmd.AddCommand(overridesCreateCmd, overridesListCmd, overridesApproveCmd,
		overridesRejectCmd, overridesDeactivateCmd, overridesStatsCmd, overridesImportCmd, overridesFieldsCmd)
	rootCmd.AddCommand(overridesCmd)
}

// formatOverrides writes a tabular list of overrides to w.
func formatOverrides(out io.Writer, list []model.ManualOverride) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tPLAYER\tFIELD\tVALUE\tWEEK\tSTATE\tEXPIRES\tREASON")
	_, _ = fmt.Fprintln(w, "--\t------\t-----\t-----\t----\t-----\t-------\t------")
	for _, o := range list {
		state := "inactive"
		switch {
		case o.NeedsApproval:
			state = "pending"
		case o.IsActive:
			state = "active"
		}
		week := "all"
		if o.Week > 0 {
			week = fmt.Sprint(o.Week)
		}
		expires := "-"
		if o.ExpiresAt != nil {
			expires = o.ExpiresAt.Format("2006-01-02 15:04")
		}
		reason := o.Reason
		if len(reason) > 40 {
			reason = reason[:37] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(o.ID), o.PlayerID, o.FieldName, o.OverrideValue, week, state, expires, reason)
	}
	_ = w.Flush()
}

// formatOverrideStats writes aggregate override stats to w.
func formatOverrideStats(out io.Writer, s override.Stats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total:\t%d\n", s.Total)
	_, _ = fmt.Fprintf(w, "Active:\t%d\n", s.Active)
	_, _ = fmt.Fprintf(w, "Pending approval:\t%d\n", s.PendingApproval)
	_, _ = fmt.Fprintf(w, "Last 24h:\t%d\n", s.RecentActivity)

	fields := make([]string, 0, len(s.ByField))
	for f := range s.ByField {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		_, _ = fmt.Fprintf(w, "  %s:\t%d\n", f, s.ByField[f])
	}

	weeks := make([]int, 0, len(s.ByWeek))
	for wk := range s.ByWeek {
		weeks = append(weeks, wk)
	}
	sort.Ints(weeks)
	for _, wk := range weeks {
		_, _ = fmt.Fprintf(w, "  week %d:\t%d\n", wk, s.ByWeek[wk])
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
