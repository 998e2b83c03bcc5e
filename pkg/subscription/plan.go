package subscription

import (
	"fmt"
	"strings"
)

var frequencyNames = map[int]string{
	1: "daily",
	2: "weekly",
	3: "monthly",
	4: "quarterly",
	5: "biannual",
	6: "annual",
}

// FrequencyName maps a provider billing frequency code to its plan name.
// Unknown codes fall back to the numeric code so labels stay derivable.
func FrequencyName(code int) string {
	if name, ok := frequencyNames[code]; ok {
		return name
	}
	return fmt.Sprintf("every-%d", code)
}

// PlanLabel derives the display label stored alongside a subscription,
// e.g. monthly-99 for 9900 cents billed monthly.
func PlanLabel(frequency int, amountCents int64) string {
	return fmt.Sprintf("%s-%d", FrequencyName(frequency), amountCents/100)
}

// NormalizeAmountCents converts provider amounts to minor units. The
// provider reports rand values below 1000 as major units.
func NormalizeAmountCents(amount int64) int64 {
	if amount > 0 && amount < 1000 {
		return amount * 100
	}
	return amount
}

// NormalizeStatus folds provider status spellings onto the local state set.
func NormalizeStatus(raw string) Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "active", "1":
		return StatusActive
	case "paused", "pause":
		return StatusPaused
	case "cancelled", "canceled", "cancel":
		return StatusCancelled
	default:
		return Status(strings.ToLower(strings.TrimSpace(raw)))
	}
}
