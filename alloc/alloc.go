// Package alloc defines the allocator contract the cache core consumes:
// pool/class statistics and the release_slab mutation path. The allocator
// itself — slab carving, per-class free lists, NVM tiering — is out of
// scope; this package only names the shape PoolRebalancer and the
// rebalance strategies read and call.
package alloc

import "github.com/pkg/errors"

// PoolID identifies a pool: a collection of classes under one memory
// budget.
type PoolID int32

// ClassID identifies a size class within a pool. InvalidClassID marks a
// RebalanceContext field as unset ("no receiver", "no victim").
type ClassID int32

// InvalidClassID is the sentinel used where a strategy or the allocator
// has no applicable class (e.g. release_slab with no receiver returns
// memory to the free pool).
const InvalidClassID ClassID = -1

// ReleaseMode tells the allocator why a slab is moving, mirroring the
// allocator's own release reasons (rebalance being the only one this
// core ever issues).
type ReleaseMode int

const (
	// ReleaseRebalance is the only release reason the core issues: a
	// rebalance strategy picked this (victim, receiver) pair.
	ReleaseRebalance ReleaseMode = iota
)

// ACStats is one class's allocation-class statistics as reported by the
// allocator's pool.
type ACStats struct {
	TotalSlabs    uint32
	FreeAllocs    uint64
	AllocsPerSlab uint32
}

// MPStats is a pool's memory-pool-level snapshot: the set of classes it
// carries and their allocation-class stats.
type MPStats struct {
	ClassIDs []ClassID
	AC       map[ClassID]ACStats
}

// ContainerStat is the MMContainer-reported access breakdown for one
// class, read by the tail-age and marginal-hits strategies.
type ContainerStat struct {
	NumTailAccesses           uint64
	NumSecondLastTailAccesses uint64
	NumColdAccesses           uint64
	NumWarmAccesses           uint64
	NumHotAccesses            uint64
}

// ClassStats is one class's cache-level statistics: evictions, hits, and
// the container access breakdown.
type ClassStats struct {
	NumEvictions  uint64
	AllocAttempts uint64
	AllocFailures uint64
	NumHits       uint64
	NumHitsToggle uint64
	Container     ContainerStat
}

// PoolStats bundles a pool's memory-pool stats with its per-class cache
// stats, matching get_pool_stats's combined return value.
type PoolStats struct {
	MP         MPStats
	CacheStats map[ClassID]ClassStats
}

// Allocator is the contract PoolRebalancer and the rebalance strategies
// consume. release_slab is the only mutation path on slab layout; every
// other method is a read-only snapshot.
type Allocator interface {
	// GetRegularPoolIDs lists the pools the rebalancer should iterate.
	GetRegularPoolIDs() []PoolID

	// GetPoolStats returns pid's combined memory-pool and cache stats.
	// Returns a non-nil error for an unknown pool (MockAllocator builds
	// it with ErrPoolNotFound).
	GetPoolStats(pid PoolID) (PoolStats, error)

	// ReleaseSlab moves one slab from victim to receiver within pid.
	// receiver == InvalidClassID returns the slab to pid's free pool.
	// A non-nil error means the move did not happen (capacity, locked
	// slab); the rebalancer logs and continues with the next pool.
	ReleaseSlab(pid PoolID, victim, receiver ClassID, mode ReleaseMode) error

	// GetRebalanceStrategy returns the per-pool strategy override name,
	// if one is configured for pid. ok is false when pid has no
	// override and the rebalancer's default strategy applies.
	GetRebalanceStrategy(pid PoolID) (name string, ok bool)
}

// ErrPoolNotFound is a convenience constructor for an allocator
// implementation to report an unknown pool id.
func ErrPoolNotFound(pid PoolID) error {
	return errors.Errorf("alloc: pool %d not found", pid)
}
