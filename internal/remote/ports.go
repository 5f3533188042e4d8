// Package remote describes the meal backend the ledger talks to: its ports,
// its wire schemas and the conversion between wire and domain records.
package remote

import (
	"context"
	"io"

	"mealtrack/internal/core"
)

// Ports for outbound adapters. A zero userID means "no user scope" and is
// omitted from requests.
type (
	MealReader interface {
		ListMeals(ctx context.Context, date string, userID int64) ([]WireMeal, error)
		GetMeal(ctx context.Context, id int64) (WireMeal, error)
	}

	MealWriter interface {
		CreateMeal(ctx context.Context, userID int64, req CreateMealRequest) (WireMeal, error)
		UpdateMeal(ctx context.Context, id int64, req UpdateMealRequest) (WireMeal, error)
		DeleteMeal(ctx context.Context, id int64) error
	}

	// SummaryReader exposes the aggregates the backend computes per day.
	SummaryReader interface {
		MealSummary(ctx context.Context, date string, userID int64) (core.DaySummary, error)
		CompareNutrition(ctx context.Context, userID int64, date string) (core.Comparison, error)
	}

	AverageReader interface {
		AverageNutrition(ctx context.Context, ageGroup string) ([]core.AverageNutrient, error)
	}

	// LabelScanner uploads a nutrition label photo and returns what was read.
	LabelScanner interface {
		ScanLabel(ctx context.Context, image io.Reader, filename string) (core.LabelScan, error)
	}

	MealService interface {
		MealReader
		MealWriter
	}

	// Backend is everything a complete remote implementation provides.
	Backend interface {
		MealService
		SummaryReader
		AverageReader
		LabelScanner
	}
)
