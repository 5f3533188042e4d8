package core

import (
	"math"
	"strings"
)

// Status classifies an intake against the age-group average.
type Status string

const (
	Deficient Status = "deficient"
	Adequate  Status = "adequate"
	Excessive Status = "excessive"
)

// AdequateBand is the relative deviation, in percent, still considered adequate.
const AdequateBand = 20.0

// DefaultAgeGroup is used when a profile carries no age.
const DefaultAgeGroup = "30-49세"

type (
	// AverageNutrient is one row of the national intake survey for an age group.
	AverageNutrient struct {
		NutrientName  string   `json:"nutrient_name" yaml:"nutrient_name"`
		Unit          string   `json:"unit" yaml:"unit"`
		AverageValue  float64  `json:"average_value" yaml:"average_value"`
		StandardError *float64 `json:"standard_error,omitempty" yaml:"standard_error,omitempty"`
	}

	NutrientComparison struct {
		NutrientName   string  `json:"nutrientName"`
		Unit           string  `json:"unit"`
		UserIntake     float64 `json:"userIntake"`
		AverageIntake  float64 `json:"averageIntake"`
		Difference     float64 `json:"difference"`
		PercentageDiff float64 `json:"percentageDiff"`
		Status         Status  `json:"status"`
	}

	// Comparison is a day's intake measured against an age group.
	Comparison struct {
		Date      string               `json:"date"`
		AgeGroup  string               `json:"ageGroup"`
		Items     []NutrientComparison `json:"items"`
		Deficient int                  `json:"deficient"`
		Adequate  int                  `json:"adequate"`
		Excessive int                  `json:"excessive"`
	}
)

// surveyNames maps substrings of survey nutrient names to the nutrient they
// measure. Order matters: the first match wins.
var surveyNames = []struct {
	fragment string
	pick     func(Nutrients) float64
}{
	{"에너지 섭취량", func(n Nutrients) float64 { return n.Calories }},
	{"단백질", func(n Nutrients) float64 { return n.Protein }},
	{"탄수화물", func(n Nutrients) float64 { return n.Carbs }},
	{"지방", func(n Nutrients) float64 { return n.Fat }},
	{"나트륨", func(n Nutrients) float64 { return n.Sodium }},
	{"당 섭취량", func(n Nutrients) float64 { return n.Sugar }},
}

var ageGroups = []struct {
	maxAge int
	name   string
}{
	{2, "1-2세"},
	{5, "3-5세"},
	{11, "6-11세"},
	{18, "12-18세"},
	{29, "19-29세"},
	{49, "30-49세"},
	{64, "50-64세"},
}

// AgeGroupFor returns the survey age group for an age in years. Non-positive
// ages map to DefaultAgeGroup.
func AgeGroupFor(age int) string {
	if age <= 0 {
		return DefaultAgeGroup
	}
	for _, g := range ageGroups {
		if age <= g.maxAge {
			return g.name
		}
	}
	return "65세 이상"
}

// Classify maps a percentage deviation to a Status.
func Classify(percentageDiff float64) Status {
	switch {
	case percentageDiff < -AdequateBand:
		return Deficient
	case percentageDiff > AdequateBand:
		return Excessive
	default:
		return Adequate
	}
}

// Compare measures totals against averages. Survey rows whose nutrient is not
// tracked per meal are skipped.
func Compare(date, ageGroup string, totals Nutrients, averages []AverageNutrient) Comparison {
	c := Comparison{Date: date, AgeGroup: ageGroup, Items: []NutrientComparison{}}
	for _, avg := range averages {
		pick := lookupSurveyName(avg.NutrientName)
		if pick == nil {
			continue
		}
		user := pick(totals)
		diff := user - avg.AverageValue
		var pct float64
		if avg.AverageValue > 0 {
			pct = diff / avg.AverageValue * 100
		}
		item := NutrientComparison{
			NutrientName:   avg.NutrientName,
			Unit:           avg.Unit,
			UserIntake:     user,
			AverageIntake:  avg.AverageValue,
			Difference:     diff,
			PercentageDiff: math.Round(pct*100) / 100,
			Status:         Classify(pct),
		}
		switch item.Status {
		case Deficient:
			c.Deficient++
		case Excessive:
			c.Excessive++
		default:
			c.Adequate++
		}
		c.Items = append(c.Items, item)
	}
	return c
}

func lookupSurveyName(name string) func(Nutrients) float64 {
	for _, s := range surveyNames {
		if strings.Contains(name, s.fragment) {
			return s.pick
		}
	}
	return nil
}
