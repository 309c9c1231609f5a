// Package scoring turns a worker's lease summary into a scalar
// interestingness score for priority-based scheduling backends.
package scoring

import "github.com/fluxcore/fluxcore/internal/seedsched"

// Score maps a RunResult to a value in [0.0, 1.0]. It is a pure function:
// the same RunResult always yields the same score, and it never touches
// scheduler state.
//
// Contributions are additive with a saturating clamp at 1.0:
//
//	new coverage     +0.4
//	new bug          +0.4
//	crash or timeout +0.2
//	bug seen before  +0.1 (status == bug, new_bug not set)
func Score(r seedsched.RunResult) float64 {
	var score float64

	if r.NewCoverage {
		score += 0.4
	}
	if r.NewBug {
		score += 0.4
	}
	if r.Crash || r.Timeout {
		score += 0.2
	}
	if r.Status == seedsched.StatusBug && !r.NewBug {
		score += 0.1
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}
