package registry

import (
	"github.com/haslamdb/asp-bacteremia-alerts-sub001/internal/models"
)

// Trigger windows in minutes-until-surgery. Mutually exclusive by
// construction and wide enough to tolerate irregular sweep arrival
// without missing or double-firing a bucket.
const (
	t24Lower = 1380 // exclusive
	t24Upper = 1500 // inclusive
	t2Lower  = 90
	t2Upper  = 150
	t60Lower = 45
	t60Upper = 75
	t0Lower  = -15 // inclusive
	t0Upper  = 15  // inclusive
)

// TriggerFor places minutes-until-surgery into its window:
// T24 (1380,1500], T2 (90,150], T60 (45,75], T0 [-15,15].
// Returns false when the time falls in no window.
func TriggerFor(minutesUntil float64) (models.Trigger, bool) {
	switch {
	case minutesUntil > t24Lower && minutesUntil <= t24Upper:
		return models.TriggerT24, true
	case minutesUntil > t2Lower && minutesUntil <= t2Upper:
		return models.TriggerT2, true
	case minutesUntil > t60Lower && minutesUntil <= t60Upper:
		return models.TriggerT60, true
	case minutesUntil >= t0Lower && minutesUntil <= t0Upper:
		return models.TriggerT0, true
	}
	return "", false
}
