package core

// LabelScan is the nutrition data read off a label photo. Values holds the
// nutrients the scanner could read; Missing lists the ones that need manual
// input.
type LabelScan struct {
	FullText string             `json:"fullText"`
	Values   map[string]float64 `json:"values"`
	Missing  []string           `json:"missing"`
}

// Label nutrient names, as printed on Korean nutrition labels.
const (
	LabelCalories     = "칼로리"
	LabelProtein      = "단백질"
	LabelCarbs        = "탄수화물"
	LabelFat          = "지방"
	LabelSodium       = "나트륨"
	LabelSugar        = "당류"
	LabelCholesterol  = "콜레스테롤"
	LabelSaturatedFat = "포화지방"
	LabelTransFat     = "트랜스지방"
)

// LabelNutrients lists every label name in display order.
var LabelNutrients = []string{
	LabelCalories, LabelProtein, LabelCarbs, LabelFat, LabelSodium,
	LabelSugar, LabelCholesterol, LabelSaturatedFat, LabelTransFat,
}

// Apply copies every scanned value onto n, leaving missing nutrients as they are.
func (s LabelScan) Apply(n Nutrients) Nutrients {
	targets := map[string]*float64{
		LabelCalories:     &n.Calories,
		LabelProtein:      &n.Protein,
		LabelCarbs:        &n.Carbs,
		LabelFat:          &n.Fat,
		LabelSodium:       &n.Sodium,
		LabelSugar:        &n.Sugar,
		LabelCholesterol:  &n.Cholesterol,
		LabelSaturatedFat: &n.SaturatedFat,
		LabelTransFat:     &n.TransFat,
	}
	for name, v := range s.Values {
		if dst, ok := targets[name]; ok {
			*dst = v
		}
	}
	return n
}
