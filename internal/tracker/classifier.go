package tracker

import (
	"strings"

	"github.com/haslamdb/asp-bacteremia-alerts-sub001/internal/models"
)

// classifierRule maps free-text location codes to pathway states.
// Rules are evaluated in order, first match wins; the order encodes the
// priority OR > pre-op > recovery > discharge > inpatient.
type classifierRule struct {
	state models.LocationState
	match func(code string) bool
}

var classifierRules = []classifierRule{
	{models.LocationORSuite, func(c string) bool {
		return hasCodePrefix(c, "OR") || strings.Contains(c, "OPERATING") ||
			strings.Contains(c, "THEATRE") || strings.Contains(c, "SURGERY")
	}},
	{models.LocationPreOpHolding, func(c string) bool {
		return strings.Contains(c, "PREOP") || strings.Contains(c, "PRE-OP") ||
			strings.Contains(c, "PRE OP") || strings.Contains(c, "HOLDING")
	}},
	{models.LocationPACU, func(c string) bool {
		return strings.Contains(c, "PACU") || strings.Contains(c, "RECOVERY") ||
			strings.Contains(c, "POST ANES") || strings.Contains(c, "POST-ANES")
	}},
	{models.LocationDischarged, func(c string) bool {
		return strings.Contains(c, "DISCH") || c == "HOME"
	}},
	{models.LocationInpatient, func(c string) bool {
		if c == "" {
			return false
		}
		if c[0] >= '0' && c[0] <= '9' {
			// Ward-style codes: "4A", "3 WEST", "7100".
			return true
		}
		return strings.Contains(c, "WARD") || strings.Contains(c, "ICU") ||
			strings.Contains(c, "MED") || strings.Contains(c, "UNIT") ||
			strings.Contains(c, "FLOOR") || strings.Contains(c, "BED")
	}},
}

// Classify resolves a free-text location code to a pathway state.
// Unmatched codes resolve to UNKNOWN rather than an error.
func Classify(code string) models.LocationState {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if normalized == "" {
		return models.LocationUnknown
	}
	for _, rule := range classifierRules {
		if rule.match(normalized) {
			return rule.state
		}
	}
	return models.LocationUnknown
}

// hasCodePrefix matches codes that start with the prefix as a unit
// designator: "OR", "OR3", "OR-2", "OR 12" — but not "ORANGE".
func hasCodePrefix(code, prefix string) bool {
	if !strings.HasPrefix(code, prefix) {
		return false
	}
	if len(code) == len(prefix) {
		return true
	}
	next := code[len(prefix)]
	return (next >= '0' && next <= '9') || next == '-' || next == ' ' || next == '.'
}
