package remote

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"mealtrack/internal/core"
)

type (
	// NutritionData is the nested nutrient object of a wire record. JSON null
	// leaves a field at zero.
	NutritionData struct {
		Amount       float64 `json:"amount"`
		Calories     float64 `json:"calories"`
		Protein      float64 `json:"protein"`
		Carbs        float64 `json:"carbs"`
		Fat          float64 `json:"fat"`
		Sodium       float64 `json:"sodium"`
		Sugar        float64 `json:"sugar"`
		Cholesterol  float64 `json:"cholesterol"`
		SaturatedFat float64 `json:"saturated_fat"`
		TransFat     float64 `json:"trans_fat"`
	}

	// WireMeal is a meal as the backend serializes it.
	WireMeal struct {
		ID            int64         `json:"id"`
		UserID        *int64        `json:"user_id,omitempty"`
		FoodName      string        `json:"food_name"`
		NutritionData NutritionData `json:"nutrition_data"`
		IntakeDate    string        `json:"intake_date,omitempty"`
		CreatedAt     string        `json:"created_at,omitempty"`
	}

	UpdateMealRequest struct {
		FoodName      string        `json:"food_name"`
		NutritionData NutritionData `json:"nutrition_data"`
	}

	CreateMealRequest struct {
		FoodName      string        `json:"food_name"`
		NutritionData NutritionData `json:"nutrition_data"`
		IntakeDate    string        `json:"intake_date"`
	}

	// Envelope wraps every backend response body. Success is a pointer so an
	// absent flag is not mistaken for a rejection.
	Envelope struct {
		Success *bool           `json:"success"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}

	// MealsByDate is the data of a list-by-date response.
	MealsByDate struct {
		Date    string       `json:"date"`
		Meals   []WireMeal   `json:"meals"`
		Summary *WireSummary `json:"summary,omitempty"`
	}

	WireSummary struct {
		Date              string         `json:"date"`
		TotalMeals        int            `json:"total_meals"`
		TotalCalories     float64        `json:"total_calories"`
		TotalProtein      float64        `json:"total_protein"`
		TotalCarbs        float64        `json:"total_carbs"`
		TotalFat          float64        `json:"total_fat"`
		TotalSodium       float64        `json:"total_sodium"`
		TotalSugar        float64        `json:"total_sugar"`
		TotalCholesterol  float64        `json:"total_cholesterol"`
		TotalSaturatedFat float64        `json:"total_saturated_fat"`
		TotalTransFat     float64        `json:"total_trans_fat"`
		MealsByPeriod     map[string]int `json:"meals_by_period"`
	}

	WireComparison struct {
		UserProfile struct {
			UserID   int64  `json:"user_id"`
			Age      int    `json:"age"`
			AgeGroup string `json:"age_group"`
		} `json:"user_profile"`
		ComparisonDate     string `json:"comparison_date"`
		TotalNutrients     int    `json:"total_nutrients"`
		DeficientNutrients int    `json:"deficient_nutrients"`
		AdequateNutrients  int    `json:"adequate_nutrients"`
		ExcessiveNutrients int    `json:"excessive_nutrients"`
		Comparisons        []struct {
			NutrientName   string  `json:"nutrient_name"`
			Unit           string  `json:"unit"`
			UserIntake     float64 `json:"user_intake"`
			AverageIntake  float64 `json:"average_intake"`
			Difference     float64 `json:"difference"`
			PercentageDiff float64 `json:"percentage_diff"`
			Status         string  `json:"status"`
		} `json:"comparisons"`
	}

	WireAverages struct {
		AgeGroup      string                 `json:"age_group"`
		NutritionData []core.AverageNutrient `json:"nutrition_data"`
	}

	// WireLabelScan is the OCR upload response. It is not wrapped in an Envelope.
	WireLabelScan struct {
		Success       bool                       `json:"success"`
		FullText      string                     `json:"full_text"`
		NutritionInfo map[string]json.RawMessage `json:"nutrition_info"`
		Error         string                     `json:"error"`
	}
)

// Rejected reports whether the backend explicitly answered success=false.
func (e Envelope) Rejected() bool {
	return e.Success != nil && !*e.Success
}

// labelMissing is what the scanner reports for a nutrient it could not read.
const labelMissing = "정보없음"

var (
	periodNames = map[string]core.Period{
		"아침": core.Breakfast,
		"점심": core.Lunch,
		"저녁": core.Dinner,
		"간식": core.Snack,
	}
	statusNames = map[string]core.Status{
		"부족": core.Deficient,
		"적정": core.Adequate,
		"과다": core.Excessive,
	}
)

// ToRecord converts a wire meal into the record the ledger stores.
func ToRecord(w WireMeal) core.MealRecord {
	n := w.NutritionData
	return core.MealRecord{
		ID:     strconv.FormatInt(w.ID, 10),
		Name:   w.FoodName,
		Amount: n.Amount,
		Nutrients: core.Nutrients{
			Calories:     n.Calories,
			Protein:      n.Protein,
			Carbs:        n.Carbs,
			Fat:          n.Fat,
			Sodium:       n.Sodium,
			Sugar:        n.Sugar,
			Cholesterol:  n.Cholesterol,
			SaturatedFat: n.SaturatedFat,
			TransFat:     n.TransFat,
		},
		CreatedAt: w.CreatedAt,
	}
}

func toNutritionData(r core.MealRecord) NutritionData {
	return NutritionData{
		Amount:       r.Amount,
		Calories:     r.Calories,
		Protein:      r.Protein,
		Carbs:        r.Carbs,
		Fat:          r.Fat,
		Sodium:       r.Sodium,
		Sugar:        r.Sugar,
		Cholesterol:  r.Cholesterol,
		SaturatedFat: r.SaturatedFat,
		TransFat:     r.TransFat,
	}
}

// FromRecord builds the update payload for r.
func FromRecord(r core.MealRecord) UpdateMealRequest {
	return UpdateMealRequest{
		FoodName:      strings.TrimSpace(r.Name),
		NutritionData: toNutritionData(r),
	}
}

// NewCreateRequest builds the create payload filing r under dateKey.
func NewCreateRequest(r core.MealRecord, dateKey string) CreateMealRequest {
	return CreateMealRequest{
		FoodName:      strings.TrimSpace(r.Name),
		NutritionData: toNutritionData(r),
		IntakeDate:    dateKey,
	}
}

// ParseID converts a record ID back into the backend's numeric id.
func ParseID(id string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return n, nil
}

// ToSummary converts the backend's day summary. Period names the backend
// does not know are dropped.
func ToSummary(w WireSummary) core.DaySummary {
	s := core.DaySummary{
		Date:       w.Date,
		TotalMeals: w.TotalMeals,
		Totals: core.Nutrients{
			Calories:     w.TotalCalories,
			Protein:      w.TotalProtein,
			Carbs:        w.TotalCarbs,
			Fat:          w.TotalFat,
			Sodium:       w.TotalSodium,
			Sugar:        w.TotalSugar,
			Cholesterol:  w.TotalCholesterol,
			SaturatedFat: w.TotalSaturatedFat,
			TransFat:     w.TotalTransFat,
		},
		MealsByPeriod: map[core.Period]int{},
	}
	for name, n := range w.MealsByPeriod {
		if p, ok := periodNames[name]; ok {
			s.MealsByPeriod[p] += n
		} else if p, ok := englishPeriod(name); ok {
			s.MealsByPeriod[p] += n
		}
	}
	return s
}

func englishPeriod(name string) (core.Period, bool) {
	switch p := core.Period(name); p {
	case core.Breakfast, core.Lunch, core.Dinner, core.Snack:
		return p, true
	}
	return "", false
}

// ToComparison converts the backend's comparison result.
func ToComparison(w WireComparison) core.Comparison {
	c := core.Comparison{
		Date:      w.ComparisonDate,
		AgeGroup:  w.UserProfile.AgeGroup,
		Items:     make([]core.NutrientComparison, 0, len(w.Comparisons)),
		Deficient: w.DeficientNutrients,
		Adequate:  w.AdequateNutrients,
		Excessive: w.ExcessiveNutrients,
	}
	for _, it := range w.Comparisons {
		status, ok := statusNames[it.Status]
		if !ok {
			status = core.Classify(it.PercentageDiff)
		}
		c.Items = append(c.Items, core.NutrientComparison{
			NutrientName:   it.NutrientName,
			Unit:           it.Unit,
			UserIntake:     it.UserIntake,
			AverageIntake:  it.AverageIntake,
			Difference:     it.Difference,
			PercentageDiff: it.PercentageDiff,
			Status:         status,
		})
	}
	return c
}

// ToLabelScan converts an OCR response. Values that are null, unparseable or
// reported as missing end up in Missing.
func ToLabelScan(w WireLabelScan) (core.LabelScan, error) {
	if !w.Success {
		msg := strings.TrimSpace(w.Error)
		if msg == "" {
			return core.LabelScan{}, ErrScanFailed
		}
		return core.LabelScan{}, fmt.Errorf("%w: %s", ErrScanFailed, msg)
	}
	scan := core.LabelScan{
		FullText: w.FullText,
		Values:   map[string]float64{},
		Missing:  []string{},
	}
	for _, name := range core.LabelNutrients {
		if v, ok := labelValue(w.NutritionInfo[name]); ok {
			scan.Values[name] = v
		} else {
			scan.Missing = append(scan.Missing, name)
		}
	}
	return scan, nil
}

func labelValue(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}
	var num float64
	if err := json.Unmarshal(raw, &num); err == nil {
		return num, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	s = strings.TrimSpace(s)
	if s == "" || s == labelMissing {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
