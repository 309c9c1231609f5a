package seedsched

import (
	"math/rand"
	"time"
)

// newRNG returns a per-instance random source seeded from seed, touching no
// process-wide state. None of the three backends calls it: their selection
// is deterministic without randomness, so Config.RNGSeed has no effect on
// them. Cryptographic unpredictability is
// explicitly not a goal here (spec Non-goals).
func newRNG(seed *int64) *rand.Rand {
	var s int64
	if seed != nil {
		s = *seed
	} else {
		s = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(s))
}
