package alloc

import (
	"sync"

	"github.com/Zaire404/cachecore/item"
	"github.com/Zaire404/cachecore/util"
	"github.com/pkg/errors"
)

// classState is one class's mutable bookkeeping inside MockAllocator:
// the slab/eviction counters a rebalance strategy reads.
type classState struct {
	ac        ACStats
	stats     ClassStats
	strategyF func() // reserved for future per-class hooks; unused today
}

// MockAllocator is a minimal in-memory Allocator + item.Store, used to
// drive MMContainer, the rebalance strategies and PoolRebalancer in
// tests without a real slab allocator behind them. Item keys are stored
// in a util.Arena, the way a real allocator embeds key bytes next to the
// item header inside a slab.
type MockAllocator struct {
	mu sync.Mutex

	arena *util.Arena
	items []*item.Item // index 0 reserved for item.NullHandle

	pools     map[PoolID][]ClassID
	classes   map[PoolID]map[ClassID]*classState
	overrides map[PoolID]string

	releaseErr map[PoolID]error // optional: force ReleaseSlab to fail for a pool
}

// NewMockAllocator constructs an empty mock with the given arena size
// for key storage.
func NewMockAllocator(arenaSize uint32) *MockAllocator {
	return &MockAllocator{
		arena:      util.NewArena(arenaSize),
		items:      make([]*item.Item, 1, 64),
		pools:      make(map[PoolID][]ClassID),
		classes:    make(map[PoolID]map[ClassID]*classState),
		overrides:  make(map[PoolID]string),
		releaseErr: make(map[PoolID]error),
	}
}

// AddPool registers pid with the given classes, each starting with
// totalSlabs slabs and allocsPerSlab capacity.
func (m *MockAllocator) AddPool(pid PoolID, classes map[ClassID]ACStats) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]ClassID, 0, len(classes))
	cs := make(map[ClassID]*classState, len(classes))
	for cid, ac := range classes {
		ids = append(ids, cid)
		cs[cid] = &classState{ac: ac}
	}
	m.pools[pid] = ids
	m.classes[pid] = cs
}

// SetStrategyOverride configures GetRebalanceStrategy's per-pool
// return value.
func (m *MockAllocator) SetStrategyOverride(pid PoolID, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[pid] = name
}

// FailReleaseSlab makes ReleaseSlab(pid, ...) return err unconditionally,
// simulating a capacity or locked-slab failure.
func (m *MockAllocator) FailReleaseSlab(pid PoolID, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseErr[pid] = err
}

// Put allocates a new item with the given key/size in class cid of pool
// pid and returns its handle. Bumps AllocAttempts the way a real
// allocator does on every allocation request.
func (m *MockAllocator) Put(pid PoolID, cid ClassID, key []byte, size uint32) item.Handle {
	m.mu.Lock()
	defer m.mu.Unlock()

	off := m.arena.Allocate(uint32(len(key)))
	copy(m.arena.Get(off, uint32(len(key))), key)

	it := item.NewItem(off, uint32(len(key)), m.arena.Get, size, int32(cid))
	m.items = append(m.items, it)
	h := item.Handle(len(m.items) - 1)

	if cs, ok := m.classes[pid][cid]; ok {
		cs.stats.AllocAttempts++
	}
	return h
}

// Get implements item.Store.
func (m *MockAllocator) Get(h item.Handle) *item.Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	if int(h) <= 0 || int(h) >= len(m.items) {
		return nil
	}
	return m.items[h]
}

// GetRegularPoolIDs implements Allocator.
func (m *MockAllocator) GetRegularPoolIDs() []PoolID {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]PoolID, 0, len(m.pools))
	for pid := range m.pools {
		ids = append(ids, pid)
	}
	return ids
}

// GetPoolStats implements Allocator.
func (m *MockAllocator) GetPoolStats(pid PoolID) (PoolStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	classIDs, ok := m.pools[pid]
	if !ok {
		return PoolStats{}, errors.Wrapf(ErrPoolNotFound(pid), "GetPoolStats")
	}

	mp := MPStats{ClassIDs: append([]ClassID(nil), classIDs...), AC: make(map[ClassID]ACStats, len(classIDs))}
	cacheStats := make(map[ClassID]ClassStats, len(classIDs))
	for cid, cs := range m.classes[pid] {
		mp.AC[cid] = cs.ac
		cacheStats[cid] = cs.stats
	}
	return PoolStats{MP: mp, CacheStats: cacheStats}, nil
}

// ReleaseSlab implements Allocator: moves one slab's worth of capacity
// from victim to receiver (or to the free pool if receiver is invalid).
func (m *MockAllocator) ReleaseSlab(pid PoolID, victim, receiver ClassID, mode ReleaseMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err, ok := m.releaseErr[pid]; ok && err != nil {
		return err
	}
	classes, ok := m.classes[pid]
	if !ok {
		return errors.Wrapf(ErrPoolNotFound(pid), "ReleaseSlab")
	}
	vc, ok := classes[victim]
	if !ok || vc.ac.TotalSlabs == 0 {
		return errors.Errorf("alloc: victim class %d has no slab to release", victim)
	}
	vc.ac.TotalSlabs--

	if receiver != InvalidClassID {
		if rc, ok := classes[receiver]; ok {
			rc.ac.TotalSlabs++
		}
	}
	return nil
}

// GetRebalanceStrategy implements Allocator.
func (m *MockAllocator) GetRebalanceStrategy(pid PoolID) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name, ok := m.overrides[pid]
	return name, ok
}

// RecordHit bumps cid's hit counters the way MMContainer.record_access
// would report them back to the allocator's stats, so rebalance
// strategy tests can drive hits-per-slab scenarios directly.
func (m *MockAllocator) RecordHit(pid PoolID, cid ClassID, tail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cs, ok := m.classes[pid][cid]
	if !ok {
		return
	}
	cs.stats.NumHits++
	cs.stats.NumHitsToggle++
	if tail {
		cs.stats.Container.NumTailAccesses++
	}
}

// RecordEviction bumps cid's eviction counter.
func (m *MockAllocator) RecordEviction(pid PoolID, cid ClassID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cs, ok := m.classes[pid][cid]; ok {
		cs.stats.NumEvictions++
	}
}

// SetFreeAllocs overrides cid's free-allocation count, used to drive
// the free-alloc-threshold and free-mem strategy scenarios.
func (m *MockAllocator) SetFreeAllocs(pid PoolID, cid ClassID, free uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cs, ok := m.classes[pid][cid]; ok {
		cs.ac.FreeAllocs = free
	}
}
