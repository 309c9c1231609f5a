package seedsched

import "fmt"

// ConfigurationError is raised eagerly at construction time: unknown
// scheduler kind, unknown priority mode, or an invalid bound. Fatal.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("seedsched: configuration error: %s", e.Reason)
}

// StaleLeaseError means Update was called with an item whose sequence does
// not match current bookkeeping, or whose seed is no longer tracked. It is
// recovered locally by the scheduler (logged and ignored by the caller);
// Update still returns it so the owner loop can count/log occurrences.
type StaleLeaseError struct {
	ItemID int64
}

func (e *StaleLeaseError) Error() string {
	return fmt.Sprintf("seedsched: stale lease for item %d", e.ItemID)
}

// OverflowError is surfaced when a batch sampling operation by ratio
// requests more seeds than are available.
type OverflowError struct {
	Requested int
	Available int
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("seedsched: requested %d seeds but only %d available", e.Requested, e.Available)
}
