package plan

import "strings"

// TimestampFormat is the creation-instant format stored in plan records,
// local clock, second precision.
const TimestampFormat = "2006-01-02 15:04:05"

// Preferences captures one submission of the meal planner form.
type Preferences struct {
	GlutenFree     bool   `json:"gluten_free"`
	DairyFree      bool   `json:"dairy_free"`
	AdditionalInfo string `json:"additional_info"`
}

// RestrictionsLabel returns the human-readable restriction list for display,
// e.g. "Gluten-Free, Dairy-Free", or "None" when no flag is set.
func (p Preferences) RestrictionsLabel() string {
	var restrictions []string
	if p.GlutenFree {
		restrictions = append(restrictions, "Gluten-Free")
	}
	if p.DairyFree {
		restrictions = append(restrictions, "Dairy-Free")
	}
	if len(restrictions) == 0 {
		return "None"
	}
	return strings.Join(restrictions, ", ")
}

// Record is one saved meal-plan generation with its originating preferences.
// Records are written once at save time and never mutated.
type Record struct {
	Timestamp   string      `json:"timestamp"`
	Preferences Preferences `json:"preferences"`
	MealPlan    string      `json:"meal_plan"`
}
