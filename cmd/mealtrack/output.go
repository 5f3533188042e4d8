package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"mealtrack/internal/core"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

// num renders a quantity with thousands separators and at most one decimal.
func num(v float64) string {
	return humanize.FormatFloat("#,###.#", v)
}

// clock renders a record's creation time in loc, or "-" when it has none.
func clock(rec core.MealRecord, loc *time.Location) string {
	t, ok := rec.CreatedTime(loc)
	if !ok {
		return "-"
	}
	return t.In(loc).Format("15:04")
}

func printMeals(w io.Writer, date string, meals []core.MealRecord, loc *time.Location) error {
	if len(meals) == 0 {
		_, err := fmt.Fprintf(w, "No meals on %s\n", date)
		return err
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tTIME\tNAME\tAMOUNT (g)\tKCAL\tPROTEIN\tCARBS\tFAT\tSODIUM (mg)")
	var total core.Nutrients
	for _, m := range meals {
		total = total.Add(m.Nutrients)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			m.ID, clock(m, loc), m.Name, num(m.Amount),
			num(m.Calories), num(m.Protein), num(m.Carbs), num(m.Fat), num(m.Sodium))
	}
	fmt.Fprintf(tw, "\t\tTOTAL (%d)\t\t%s\t%s\t%s\t%s\t%s\n", len(meals),
		num(total.Calories), num(total.Protein), num(total.Carbs), num(total.Fat), num(total.Sodium))
	return tw.Flush()
}

func printSummaries(w io.Writer, days []core.DaySummary) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "DATE\tMEALS\tKCAL\tPROTEIN\tCARBS\tFAT\tSODIUM (mg)\tSUGAR")
	for _, d := range days {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			d.Date, d.TotalMeals, num(d.Totals.Calories), num(d.Totals.Protein),
			num(d.Totals.Carbs), num(d.Totals.Fat), num(d.Totals.Sodium), num(d.Totals.Sugar))
	}
	return tw.Flush()
}

func printWeek(w io.Writer, week core.WeekSummary) error {
	if err := printSummaries(w, week.Days); err != nil {
		return err
	}
	fmt.Fprintf(w, "%s to %s: %d meals on %d days\n", week.Start, week.End, week.TotalMeals, week.LoggedDays)
	a := week.Averages
	fmt.Fprintf(w, "daily average: %s kcal, protein %sg, carbs %sg, fat %sg\n",
		num(a.Calories), num(a.Protein), num(a.Carbs), num(a.Fat))
	r := week.MacroRatios
	_, err := fmt.Fprintf(w, "macro ratio: protein %d%%, carbs %d%%, fat %d%%\n", r.Protein, r.Carbs, r.Fat)
	return err
}

// printMonth draws the month as a week grid. Days with meals show the count
// in parentheses; days outside the month are dots.
func printMonth(w io.Writer, m core.MonthCalendar) error {
	fmt.Fprintf(w, "%s: %d meals on %d days\n", m.Month, m.TotalMeals, m.LoggedDays)
	tw := newTable(w)
	for i := 0; i < 7 && i < len(m.Days); i++ {
		if t, err := time.Parse(core.DateKeyLayout, m.Days[i].Date); err == nil {
			fmt.Fprint(tw, t.Weekday().String()[:3])
		}
		fmt.Fprint(tw, "\t")
	}
	fmt.Fprintln(tw)
	for i, d := range m.Days {
		cell := "."
		if d.InMonth {
			cell = strings.TrimPrefix(d.Date[len(d.Date)-2:], "0")
			if d.Meals > 0 {
				cell = fmt.Sprintf("%s (%d)", cell, d.Meals)
			}
		}
		fmt.Fprint(tw, cell, "\t")
		if i%7 == 6 {
			fmt.Fprintln(tw)
		}
	}
	return tw.Flush()
}

func printComparison(w io.Writer, cmp core.Comparison) error {
	fmt.Fprintf(w, "%s compared with %s averages\n", cmp.Date, cmp.AgeGroup)
	tw := newTable(w)
	fmt.Fprintln(tw, "NUTRIENT\tINTAKE\tAVERAGE\tDIFF %\tSTATUS")
	for _, it := range cmp.Items {
		fmt.Fprintf(tw, "%s\t%s %s\t%s %s\t%+.1f\t%s\n",
			it.NutrientName, num(it.UserIntake), it.Unit, num(it.AverageIntake), it.Unit,
			it.PercentageDiff, it.Status)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "deficient %d, adequate %d, excessive %d\n", cmp.Deficient, cmp.Adequate, cmp.Excessive)
	return err
}

func printScan(w io.Writer, scan core.LabelScan) error {
	tw := newTable(w)
	for _, name := range core.LabelNutrients {
		if v, ok := scan.Values[name]; ok {
			fmt.Fprintf(tw, "%s\t%s\n", name, num(v))
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(scan.Missing) > 0 {
		_, err := fmt.Fprintf(w, "missing: %s\n", strings.Join(scan.Missing, ", "))
		return err
	}
	return nil
}

// ago renders t relative to now, e.g. "3 minutes ago".
func ago(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return humanize.Time(t)
}
