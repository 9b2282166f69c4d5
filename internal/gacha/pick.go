package gacha

import "sort"

// Entry is one pool slot: a reward id with its machine-scoped probability
// weight on a 0–100 scale.
type Entry struct {
	RewardID     uint64
	Probability  float64
	DisplayOrder int
}

// Sort orders entries deterministically: display order first, reward id as
// the tie-break. Every walk over a pool uses this order so the catch-all
// winner for misconfigured pools is well defined.
func Sort(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].DisplayOrder != entries[j].DisplayOrder {
			return entries[i].DisplayOrder < entries[j].DisplayOrder
		}
		return entries[i].RewardID < entries[j].RewardID
	})
}

// Pick samples one reward id from the pool. r is drawn uniformly from
// [0, 100); the walk accumulates probabilities in the fixed order and the
// first entry whose cumulative sum exceeds r wins. If the pool's total is
// under 100, the last entry is the catch-all so a draw never fails to
// resolve. Entries whose reward id is in exclude are skipped (stock
// exhaustion re-sampling).
//
// Returns false only when no entry remains after exclusion.
func Pick(entries []Entry, exclude map[uint64]bool, rng RandomSource) (uint64, bool) {
	pool := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if exclude != nil && exclude[e.RewardID] {
			continue
		}
		pool = append(pool, e)
	}
	if len(pool) == 0 {
		return 0, false
	}
	Sort(pool)

	if rng == nil {
		rng = DefaultRNG()
	}
	r := rng.Float64() * 100

	acc := 0.0
	for _, e := range pool {
		if e.Probability > 0 {
			acc += e.Probability
		}
		if r < acc {
			return e.RewardID, true
		}
	}
	// r beyond the accumulated total: catch-all.
	return pool[len(pool)-1].RewardID, true
}
