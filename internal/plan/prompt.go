package plan

import (
	"fmt"
	"strings"
)

const noRestrictions = "No specific dietary restrictions"

const promptTemplate = `Act as a professional nutritionist. Create a personalized meal plan with the following considerations:

Dietary Restrictions: %s
Additional Information: %s

Please provide a structured meal plan that includes:
1. Breakfast options (3 suggestions)
2. Lunch options (3 suggestions)
3. Dinner options (3 suggestions)
4. Snack options (3 suggestions)
5. Nutritional insights about this plan
6. Customized recommendations based on the provided information

Format the response in markdown.`

// BuildPrompt renders the nutritionist instruction block sent to the model.
// The additional info is embedded verbatim; the caller owns any injection
// concerns against the downstream model.
func BuildPrompt(glutenFree, dairyFree bool, additionalInfo string) string {
	var restrictions []string
	if glutenFree {
		restrictions = append(restrictions, "gluten-free")
	}
	if dairyFree {
		restrictions = append(restrictions, "dairy-free")
	}

	constraints := noRestrictions
	if len(restrictions) > 0 {
		constraints = strings.Join(restrictions, ", ")
	}

	return fmt.Sprintf(promptTemplate, constraints, additionalInfo)
}
