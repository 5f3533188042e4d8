package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const maxNameLength = 200

type (
	// Nutrients holds per-meal nutrient quantities. Units are implied by the
	// field: kcal for calories, mg for sodium and cholesterol, grams otherwise.
	Nutrients struct {
		Calories     float64 `json:"calories"`
		Protein      float64 `json:"protein"`
		Carbs        float64 `json:"carbs"`
		Fat          float64 `json:"fat"`
		Sodium       float64 `json:"sodium"`
		Sugar        float64 `json:"sugar"`
		Cholesterol  float64 `json:"cholesterol"`
		SaturatedFat float64 `json:"saturatedFat"`
		TransFat     float64 `json:"transFat"`
	}

	// MealRecord is a single logged meal as seen by the presentation layer.
	MealRecord struct {
		ID     string  `json:"id"`
		Name   string  `json:"name"`
		Amount float64 `json:"amount"` // grams
		Nutrients
		CreatedAt string `json:"createdAt,omitempty"` // ISO-8601, immutable once set
	}
)

var (
	ErrEmptyName        = errors.New("empty meal name")
	ErrNameTooLong      = fmt.Errorf("meal name too long (max %d characters)", maxNameLength)
	ErrNegativeAmount   = errors.New("negative amount")
	ErrNegativeNutrient = errors.New("negative nutrient value")
)

// createdLayouts are tried in order; the offset-less ones are what the
// backend emits for naive timestamps.
var createdLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func (n Nutrients) Validate() error {
	for _, f := range n.fields() {
		if f.value < 0 {
			return fmt.Errorf("%w: %s=%v", ErrNegativeNutrient, f.name, f.value)
		}
	}
	return nil
}

// Add returns the element-wise sum of n and o.
func (n Nutrients) Add(o Nutrients) Nutrients {
	return Nutrients{
		Calories:     n.Calories + o.Calories,
		Protein:      n.Protein + o.Protein,
		Carbs:        n.Carbs + o.Carbs,
		Fat:          n.Fat + o.Fat,
		Sodium:       n.Sodium + o.Sodium,
		Sugar:        n.Sugar + o.Sugar,
		Cholesterol:  n.Cholesterol + o.Cholesterol,
		SaturatedFat: n.SaturatedFat + o.SaturatedFat,
		TransFat:     n.TransFat + o.TransFat,
	}
}

type nutrientField struct {
	name  string
	value float64
}

func (n Nutrients) fields() []nutrientField {
	return []nutrientField{
		{"calories", n.Calories},
		{"protein", n.Protein},
		{"carbs", n.Carbs},
		{"fat", n.Fat},
		{"sodium", n.Sodium},
		{"sugar", n.Sugar},
		{"cholesterol", n.Cholesterol},
		{"saturatedFat", n.SaturatedFat},
		{"transFat", n.TransFat},
	}
}

func (m MealRecord) Validate() error {
	name := strings.TrimSpace(m.Name)
	if name == "" {
		return ErrEmptyName
	}
	if len([]rune(name)) > maxNameLength {
		return ErrNameTooLong
	}
	if m.Amount < 0 {
		return ErrNegativeAmount
	}
	return m.Nutrients.Validate()
}

// CreatedTime parses CreatedAt. Timestamps without an offset are read in loc.
// The second result is false when CreatedAt is empty or unparseable.
func (m MealRecord) CreatedTime(loc *time.Location) (time.Time, bool) {
	s := strings.TrimSpace(m.CreatedAt)
	if s == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.UTC
	}
	if t, err := time.Parse(createdLayouts[0], s); err == nil {
		return t, true
	}
	for _, layout := range createdLayouts[1:] {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
