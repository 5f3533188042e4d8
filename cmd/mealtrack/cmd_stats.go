package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"mealtrack/internal/core"
)

func newStatsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize intake and compare it with national averages",
		Long: `Nutrient statistics.

Available subcommands:
  day     - Totals for one day
  week    - Daily totals, averages and macro ratios for the week holding a date
  compare - A day's intake against the survey averages for an age group`,
	}
	cmd.AddCommand(newStatsDayCmd(opts), newStatsWeekCmd(opts), newStatsCompareCmd(opts))
	return cmd
}

func newStatsDayCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "day [date]",
		Short: "Totals for one day (default today)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			day, err := parseDay(a.cal, args)
			if err != nil {
				return err
			}
			ctx, cancel := opts.commandContext(cmd)
			defer cancel()

			sum, err := a.stats.DaySummary(ctx, day)
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return printJSON(cmd.OutOrStdout(), sum)
			}
			if err := printSummaries(cmd.OutOrStdout(), []core.DaySummary{sum}); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, p := range []core.Period{core.Breakfast, core.Lunch, core.Dinner, core.Snack} {
				if n := sum.MealsByPeriod[p]; n > 0 {
					fmt.Fprintf(out, "%s: %d\n", p, n)
				}
			}
			return nil
		},
	}
}

func newStatsWeekCmd(opts *rootOptions) *cobra.Command {
	var weekStart string
	cmd := &cobra.Command{
		Use:   "week [date]",
		Short: "Totals, averages and macro ratios for the week holding date (default today)",
		Long: `Summarize the week holding a date.

Averages are per day with calories logged; macro ratios are the shares of
protein, carbs and fat by weight.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			day, err := parseDay(a.cal, args)
			if err != nil {
				return err
			}
			first, err := core.ParseWeekday(weekStart)
			if err != nil {
				return err
			}
			ctx, cancel := opts.commandContext(cmd)
			defer cancel()

			// Fill the ledger first so the summaries are computed locally.
			days := a.cal.Week(day, first)
			if err := a.ledger.FetchRange(ctx, days[0], days[len(days)-1]); err != nil {
				return err
			}
			week, err := a.stats.Week(ctx, day, first)
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return printJSON(cmd.OutOrStdout(), week)
			}
			return printWeek(cmd.OutOrStdout(), week)
		},
	}
	addWeekStartFlag(cmd, &weekStart)
	return cmd
}

func addWeekStartFlag(cmd *cobra.Command, v *string) {
	cmd.Flags().StringVar(v, "week-start", "sunday", "First day of the week (sunday, monday, ... or 0-6)")
}

func newStatsCompareCmd(opts *rootOptions) *cobra.Command {
	var (
		age       int
		useRemote bool
	)
	cmd := &cobra.Command{
		Use:   "compare [date]",
		Short: "Compare a day's intake with the averages for an age group",
		Long: `Compare a day's intake with the national survey averages.

The age group comes from --age, else from the saved session. With --remote the
meal service performs the comparison using the profile it holds.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			day, err := parseDay(a.cal, args)
			if err != nil {
				return err
			}
			ctx, cancel := opts.commandContext(cmd)
			defer cancel()

			var cmp core.Comparison
			if useRemote {
				cmp, err = a.stats.RemoteCompare(ctx, day)
			} else {
				if !cmd.Flags().Changed("age") {
					sess, ok, lerr := a.repo.LoadSession(ctx)
					if lerr != nil {
						return lerr
					}
					if !ok {
						return errors.New("no age given: pass --age or save one with `mealtrack session set`")
					}
					age = sess.Age
				}
				cmp, err = a.stats.Compare(ctx, day, age)
			}
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return printJSON(cmd.OutOrStdout(), cmp)
			}
			return printComparison(cmd.OutOrStdout(), cmp)
		},
	}
	cmd.Flags().IntVar(&age, "age", 0, "Age used to pick the survey group")
	cmd.Flags().BoolVar(&useRemote, "remote", false, "Let the meal service compare")
	return cmd
}
