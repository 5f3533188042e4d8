package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mealtrack/internal/core"
)

// mealFlags are the editable fields of a meal, bound to flags.
type mealFlags struct {
	name      string
	amount    float64
	nutrients core.Nutrients
	label     string
}

func (f *mealFlags) bind(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.name, "name", "", "Food name")
	fl.Float64Var(&f.amount, "amount", 0, "Amount in grams")
	fl.Float64Var(&f.nutrients.Calories, "calories", 0, "Energy (kcal)")
	fl.Float64Var(&f.nutrients.Protein, "protein", 0, "Protein (g)")
	fl.Float64Var(&f.nutrients.Carbs, "carbs", 0, "Carbohydrate (g)")
	fl.Float64Var(&f.nutrients.Fat, "fat", 0, "Fat (g)")
	fl.Float64Var(&f.nutrients.Sodium, "sodium", 0, "Sodium (mg)")
	fl.Float64Var(&f.nutrients.Sugar, "sugar", 0, "Sugar (g)")
	fl.Float64Var(&f.nutrients.Cholesterol, "cholesterol", 0, "Cholesterol (mg)")
	fl.Float64Var(&f.nutrients.SaturatedFat, "saturated-fat", 0, "Saturated fat (g)")
	fl.Float64Var(&f.nutrients.TransFat, "trans-fat", 0, "Trans fat (g)")
	fl.StringVar(&f.label, "from-label", "", "Scan this nutrition label photo and use its values")
}

// apply overwrites rec with every flag the user set. Label values are applied
// first so explicit nutrient flags win over them.
func (f *mealFlags) apply(ctx context.Context, cmd *cobra.Command, a *app, rec core.MealRecord) (core.MealRecord, error) {
	fl := cmd.Flags()
	if f.label != "" {
		scan, err := scanFile(ctx, a, f.label)
		if err != nil {
			return rec, err
		}
		rec.Nutrients = scan.Apply(rec.Nutrients)
	}
	if fl.Changed("name") {
		rec.Name = strings.TrimSpace(f.name)
	}
	if fl.Changed("amount") {
		rec.Amount = f.amount
	}
	n := f.nutrients
	for _, field := range []struct {
		flag string
		dst  *float64
		v    float64
	}{
		{"calories", &rec.Calories, n.Calories},
		{"protein", &rec.Protein, n.Protein},
		{"carbs", &rec.Carbs, n.Carbs},
		{"fat", &rec.Fat, n.Fat},
		{"sodium", &rec.Sodium, n.Sodium},
		{"sugar", &rec.Sugar, n.Sugar},
		{"cholesterol", &rec.Cholesterol, n.Cholesterol},
		{"saturated-fat", &rec.SaturatedFat, n.SaturatedFat},
		{"trans-fat", &rec.TransFat, n.TransFat},
	} {
		if fl.Changed(field.flag) {
			*field.dst = field.v
		}
	}
	return rec, nil
}

func newMealsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "meals",
		Short: "List, add, update and delete meals",
		Long: `Manage the meals of a day.

Available subcommands:
  list     - Show the meals of a day in the order they were eaten
  add      - Log a new meal
  update   - Change a logged meal
  delete   - Remove a logged meal
  calendar - Meal counts for every day of a month`,
	}
	cmd.AddCommand(
		newMealsListCmd(opts),
		newMealsAddCmd(opts),
		newMealsUpdateCmd(opts),
		newMealsDeleteCmd(opts),
		newMealsCalendarCmd(opts),
	)
	return cmd
}

// parseDay resolves an optional date argument: empty or "today" is the
// calendar's current day.
func parseDay(cal core.Calendar, args []string) (time.Time, error) {
	if len(args) == 0 || strings.EqualFold(args[0], "today") {
		return cal.Today(), nil
	}
	return cal.Parse(args[0])
}

func newMealsListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list [date]",
		Short: "Show the meals of a day (default today)",
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

			if err := a.ledger.FetchMealsForDate(ctx, day); err != nil {
				return err
			}
			meals := a.ledger.MealsForDate(day)
			if opts.jsonOut {
				return printJSON(cmd.OutOrStdout(), meals)
			}
			return printMeals(cmd.OutOrStdout(), a.cal.Key(day), meals, a.cal.Loc())
		},
	}
}

func newMealsAddCmd(opts *rootOptions) *cobra.Command {
	var (
		flags mealFlags
		date  string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Log a new meal",
		Example: `  mealtrack meals add --name 비빔밥 --amount 350 --calories 560 --sodium 1200
  mealtrack meals add --date 2024-03-05 --name "Protein bar" --from-label label.jpg`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			day, err := parseDay(a.cal, optionalArg(date))
			if err != nil {
				return err
			}
			ctx, cancel := opts.commandContext(cmd)
			defer cancel()

			rec, err := flags.apply(ctx, cmd, a, core.MealRecord{})
			if err != nil {
				return err
			}
			created, err := a.ledger.CreateMeal(ctx, day, rec)
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return printJSON(cmd.OutOrStdout(), created)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added meal %s (%s) on %s\n", created.ID, created.Name, a.cal.Key(day))
			return nil
		},
	}
	flags.bind(cmd)
	cmd.Flags().StringVar(&date, "date", "", "Day of the meal, YYYY-MM-DD (default today)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newMealsUpdateCmd(opts *rootOptions) *cobra.Command {
	var (
		flags mealFlags
		date  string
	)
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change a logged meal; unset flags keep their current value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			day, err := parseDay(a.cal, optionalArg(date))
			if err != nil {
				return err
			}
			ctx, cancel := opts.commandContext(cmd)
			defer cancel()

			if err := a.ledger.FetchMealsForDate(ctx, day); err != nil {
				return err
			}
			current, ok := findMeal(a.ledger.MealsForDate(day), args[0])
			if !ok {
				return fmt.Errorf("meal %s not found on %s", args[0], a.cal.Key(day))
			}
			rec, err := flags.apply(ctx, cmd, a, current)
			if err != nil {
				return err
			}
			if err := a.ledger.UpdateMeal(ctx, day, args[0], rec); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated meal %s\n", args[0])
			return nil
		},
	}
	flags.bind(cmd)
	cmd.Flags().StringVar(&date, "date", "", "Day the meal is filed under (default today)")
	return cmd
}

func newMealsDeleteCmd(opts *rootOptions) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Remove a logged meal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			day, err := parseDay(a.cal, optionalArg(date))
			if err != nil {
				return err
			}
			ctx, cancel := opts.commandContext(cmd)
			defer cancel()

			if err := a.ledger.DeleteMeal(ctx, day, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted meal %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Day the meal is filed under (default today)")
	return cmd
}

func newMealsCalendarCmd(opts *rootOptions) *cobra.Command {
	var weekStart string
	cmd := &cobra.Command{
		Use:   "calendar [YYYY-MM]",
		Short: "Show how many meals were logged on each day of a month (default this month)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			month, _ := a.cal.MonthBounds(a.cal.Today())
			if len(args) == 1 && !strings.EqualFold(args[0], "current") {
				if month, err = a.cal.ParseMonth(args[0]); err != nil {
					return err
				}
			}
			first, err := core.ParseWeekday(weekStart)
			if err != nil {
				return err
			}
			ctx, cancel := opts.commandContext(cmd)
			defer cancel()

			from, to := a.cal.MonthBounds(month)
			if err := a.ledger.FetchRange(ctx, from, to); err != nil {
				return err
			}
			m, err := a.stats.Month(ctx, month, first)
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return printJSON(cmd.OutOrStdout(), m)
			}
			return printMonth(cmd.OutOrStdout(), m)
		},
	}
	addWeekStartFlag(cmd, &weekStart)
	return cmd
}

func findMeal(meals []core.MealRecord, id string) (core.MealRecord, bool) {
	for _, m := range meals {
		if m.ID == id {
			return m, true
		}
	}
	return core.MealRecord{}, false
}

func optionalArg(v string) []string {
	if v == "" {
		return nil
	}
	return []string{v}
}

// scanFile uploads a label photo to the scanner.
func scanFile(ctx context.Context, a *app, path string) (core.LabelScan, error) {
	f, err := os.Open(path)
	if err != nil {
		return core.LabelScan{}, fmt.Errorf("open label image: %w", err)
	}
	defer f.Close()

	scan, err := a.backend.ScanLabel(ctx, f, filepath.Base(path))
	if err != nil {
		return core.LabelScan{}, err
	}
	if len(scan.Values) == 0 {
		return scan, errors.New("no nutrient values could be read from the label")
	}
	return scan, nil
}
