package remote

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mealtrack/internal/core"
)

const riceJSON = `{
	"id": 7,
	"food_name": "Rice",
	"nutrition_data": {"amount": 200, "calories": 300, "protein": 5, "carbs": 65, "fat": 1,
		"sodium": 10, "sugar": 0, "cholesterol": 0, "saturated_fat": 0, "trans_fat": 0},
	"created_at": "2024-03-10T12:00:00"
}`

func TestToRecord(t *testing.T) {
	var w WireMeal
	require.NoError(t, json.Unmarshal([]byte(riceJSON), &w))

	got := ToRecord(w)
	assert.Equal(t, "7", got.ID)
	assert.Equal(t, "Rice", got.Name)
	assert.Equal(t, 200.0, got.Amount)
	assert.Equal(t, 300.0, got.Calories)
	assert.Equal(t, 65.0, got.Carbs)
	assert.Equal(t, "2024-03-10T12:00:00", got.CreatedAt)
}

func TestToRecordNullNutrients(t *testing.T) {
	raw := `{"id": 3, "food_name": "Tea", "nutrition_data": {"calories": 2, "sodium": null, "trans_fat": null}}`
	var w WireMeal
	require.NoError(t, json.Unmarshal([]byte(raw), &w))

	got := ToRecord(w)
	assert.Equal(t, 0.0, got.Amount)
	assert.Equal(t, 0.0, got.Sodium)
	assert.Equal(t, 2.0, got.Calories)
	assert.Empty(t, got.CreatedAt)
}

func TestRoundTripPreservesSaturatedFat(t *testing.T) {
	raw := `{"id": 11, "food_name": "Cheese", "nutrition_data": {"amount": 30, "saturated_fat": 3.2, "trans_fat": 0.1}}`
	var w WireMeal
	require.NoError(t, json.Unmarshal([]byte(raw), &w))

	body, err := json.Marshal(FromRecord(ToRecord(w)))
	require.NoError(t, err)

	var decoded struct {
		FoodName      string             `json:"food_name"`
		NutritionData map[string]float64 `json:"nutrition_data"`
	}
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, "Cheese", decoded.FoodName)
	assert.Equal(t, 3.2, decoded.NutritionData["saturated_fat"])
	assert.Equal(t, 0.1, decoded.NutritionData["trans_fat"])
	assert.Equal(t, 30.0, decoded.NutritionData["amount"])
	assert.NotContains(t, string(body), "saturatedFat")
}

func TestNewCreateRequest(t *testing.T) {
	req := NewCreateRequest(core.MealRecord{Name: " Kimchi ", Amount: 50, Nutrients: core.Nutrients{Sodium: 600}}, "2024-03-10")
	assert.Equal(t, "Kimchi", req.FoodName)
	assert.Equal(t, "2024-03-10", req.IntakeDate)
	assert.Equal(t, 600.0, req.NutritionData.Sodium)
	assert.Equal(t, 50.0, req.NutritionData.Amount)
}

func TestParseID(t *testing.T) {
	id, err := ParseID("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	for _, bad := range []string{"", "abc", "-1", "0", "4.2"} {
		_, err := ParseID(bad)
		assert.ErrorIs(t, err, ErrInvalidID, "id %q", bad)
	}
}

func TestToSummary(t *testing.T) {
	raw := `{"date": "2024-03-10", "total_meals": 3, "total_calories": 900, "total_sodium": null,
		"meals_by_period": {"아침": 1, "점심": 1, "간식": 1, "야식": 4}}`
	var w WireSummary
	require.NoError(t, json.Unmarshal([]byte(raw), &w))

	s := ToSummary(w)
	assert.Equal(t, 3, s.TotalMeals)
	assert.Equal(t, 900.0, s.Totals.Calories)
	assert.Equal(t, 0.0, s.Totals.Sodium)
	assert.Equal(t, map[core.Period]int{core.Breakfast: 1, core.Lunch: 1, core.Snack: 1}, s.MealsByPeriod)
}

func TestToComparison(t *testing.T) {
	raw := `{"user_profile": {"user_id": 1, "age": 30, "age_group": "30-49세"},
		"comparison_date": "2024-03-10", "deficient_nutrients": 1, "excessive_nutrients": 1,
		"comparisons": [
			{"nutrient_name": "에너지 섭취량", "unit": "kcal", "percentage_diff": -40, "status": "부족"},
			{"nutrient_name": "나트륨", "unit": "mg", "percentage_diff": 55, "status": "unknown"}
		]}`
	var w WireComparison
	require.NoError(t, json.Unmarshal([]byte(raw), &w))

	c := ToComparison(w)
	assert.Equal(t, "30-49세", c.AgeGroup)
	require.Len(t, c.Items, 2)
	assert.Equal(t, core.Deficient, c.Items[0].Status)
	assert.Equal(t, core.Excessive, c.Items[1].Status)
}

func TestToLabelScan(t *testing.T) {
	raw := `{"success": true, "full_text": "칼로리 120 나트륨 정보없음",
		"nutrition_info": {"칼로리": 120, "단백질": "4", "나트륨": "정보없음", "당류": null, "지방": "n/a"}}`
	var w WireLabelScan
	require.NoError(t, json.Unmarshal([]byte(raw), &w))

	scan, err := ToLabelScan(w)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{core.LabelCalories: 120, core.LabelProtein: 4}, scan.Values)
	assert.Contains(t, scan.Missing, core.LabelSodium)
	assert.Contains(t, scan.Missing, core.LabelSugar)
	assert.Contains(t, scan.Missing, core.LabelFat)
	assert.Contains(t, scan.Missing, core.LabelTransFat)
	assert.Len(t, scan.Missing, len(core.LabelNutrients)-2)
}

func TestToLabelScanFailure(t *testing.T) {
	_, err := ToLabelScan(WireLabelScan{Success: false, Error: "blurry image"})
	assert.ErrorIs(t, err, ErrScanFailed)
	assert.Contains(t, err.Error(), "blurry image")

	_, err = ToLabelScan(WireLabelScan{})
	assert.ErrorIs(t, err, ErrScanFailed)
}

func TestMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"bare status", &StatusError{Code: 500}, "HTTP error! status: 500"},
		{"status with detail", fmt.Errorf("list meals: %w", &StatusError{Code: 422, Detail: "bad date"}), "bad date"},
		{"transport", &TransportError{Op: "GET /meals/2024-03-10", Err: errors.New("connection refused")}, "GET /meals/2024-03-10: connection refused"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Message(tt.err))
		})
	}
}

func TestErrorPredicates(t *testing.T) {
	notFound := fmt.Errorf("delete: %w", &StatusError{Code: 404})
	assert.True(t, IsNotFound(notFound))
	assert.False(t, IsNotFound(&StatusError{Code: 500}))

	transport := &TransportError{Op: "DELETE /meals/1", Err: errors.New("timeout")}
	assert.True(t, IsTransport(transport))
	assert.False(t, IsTransport(notFound))
}
