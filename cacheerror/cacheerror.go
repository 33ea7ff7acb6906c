// Package cacheerror collects the sentinel errors returned across the
// cache core. Invariant violations are not errors: those use
// github.com/negrel/assert and panic, matching the "abort or debug-assert"
// handling the core requires for programmer error.
package cacheerror

import "errors"

var (
	// ErrEmptyEvictionCandidate is returned when both S3-FIFO lists are
	// empty and the caller asked for an eviction candidate.
	ErrEmptyEvictionCandidate = errors.New("cachecore: no eviction candidate, lists are empty")

	// ErrNotInContainer is returned by remove when the item is not
	// currently tracked by the MMContainer.
	ErrNotInContainer = errors.New("cachecore: item is not in the MM container")

	// ErrAlreadyInContainer is returned by add when the item is already
	// tracked by the MMContainer.
	ErrAlreadyInContainer = errors.New("cachecore: item is already in the MM container")

	// ErrReplaceUnsupported is returned by every Replace call: replace is
	// not supported, and callers remove the old item and add the new one.
	ErrReplaceUnsupported = errors.New("cachecore: replace is not supported, remove and add instead")

	// ErrUnknownStrategy is a configuration error: an unrecognized
	// rebalance_strategy name was requested.
	ErrUnknownStrategy = errors.New("cachecore: unknown rebalance strategy")

	// ErrInvalidMinSlabs is a configuration error: rebalance_min_slabs
	// must be positive.
	ErrInvalidMinSlabs = errors.New("cachecore: rebalance_min_slabs must be > 0")

	// ErrInvalidPool is returned when a pool id is not known to the
	// allocator the core was constructed with.
	ErrInvalidPool = errors.New("cachecore: unknown pool id")

	// ErrNoDefaultStrategy is a configuration error: PoolRebalancer
	// requires a default strategy.
	ErrNoDefaultStrategy = errors.New("cachecore: default rebalance strategy is not set")

	// ErrReleaseSlabFailed wraps an allocator-reported failure to
	// release a slab (capacity or locked slab); the rebalancer logs and
	// continues with the next pool.
	ErrReleaseSlabFailed = errors.New("cachecore: release_slab failed")
)
