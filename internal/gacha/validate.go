package gacha

import (
	"fmt"
	"math"
)

// SumTolerance is how far an active pool's probability total may drift from
// 100 before validation flags it. Draws still resolve either way.
const SumTolerance = 0.01

// ValidatePool returns admin-facing warnings for a machine's active pool.
// It never errors: a misconfigured pool is a configuration smell, not a draw
// failure, since Pick has a deterministic catch-all.
func ValidatePool(entries []Entry) []string {
	var warnings []string
	if len(entries) == 0 {
		return []string{"pool has no active rewards; every draw will fail"}
	}
	total := 0.0
	for _, e := range entries {
		if e.Probability < 0 {
			warnings = append(warnings, fmt.Sprintf("reward %d has negative probability %.2f", e.RewardID, e.Probability))
			continue
		}
		if e.Probability == 0 {
			warnings = append(warnings, fmt.Sprintf("reward %d has zero probability and can only win as catch-all", e.RewardID))
		}
		total += e.Probability
	}
	if math.Abs(total-100) > SumTolerance {
		warnings = append(warnings, fmt.Sprintf("pool probabilities sum to %.2f, expected 100", total))
	}
	return warnings
}
