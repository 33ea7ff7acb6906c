// Package cachecore wires the S3-FIFO admission/eviction engine and the
// slab-pool rebalancer into one cache core: one mm.Container per
// (pool, class), a shared footprint.MRC fed from every access, and the
// rebalance.PoolRebalancer that periodically moves slabs between
// classes. It does not provide a general key-value API — that is an
// explicit non-goal; callers own request routing and the allocator.
package cachecore

import (
	"sync"

	"github.com/Zaire404/cachecore/alloc"
	"github.com/Zaire404/cachecore/cacheerror"
	"github.com/Zaire404/cachecore/config"
	"github.com/Zaire404/cachecore/footprint"
	"github.com/Zaire404/cachecore/item"
	"github.com/Zaire404/cachecore/log"
	"github.com/Zaire404/cachecore/mm"
	"github.com/Zaire404/cachecore/rebalance"
	"github.com/Zaire404/cachecore/util"
)

// Config bundles every cache.* knob recognized by the core: MMContainer
// defaults for newly registered classes, plus the rebalancer's tuning.
type Config struct {
	MM mm.Config

	RebalanceStrategy    string
	RebalanceMinSlabs    uint32
	RebalanceDiffRatio   float64
	FreeAllocThreshold   float64
	TailSlabs            uint32
	MovingAverageParam   float64
	HoldOffEnabled       bool
	DecayThreshold       float64
	LAMAMinThreshold     float64
	FootprintBufferSize  int
	RebalanceWorkers     int
}

// LoadConfig reads cache.* keys from the config package (already
// populated with defaults in config.setDefaults).
func LoadConfig() Config {
	return Config{
		MM: mm.Config{
			UpdateOnRead:                config.GetBool("cache.update_on_read"),
			UpdateOnWrite:               config.GetBool("cache.update_on_write"),
			MMReconfigureIntervalSecs:   config.GetInt("cache.mm_reconfigure_interval_secs"),
			TryLockUpdate:               config.GetBool("cache.try_lock_update"),
			UseCombinedLockForIterators: config.GetBool("cache.use_combined_lock_for_iterators"),
		},
		RebalanceStrategy:   config.GetString("cache.rebalance_strategy"),
		RebalanceMinSlabs:   uint32(config.GetInt("cache.rebalance_min_slabs")),
		RebalanceDiffRatio:  config.GetFloat64("cache.rebalance_diff_ratio"),
		FreeAllocThreshold:  config.GetFloat64("cache.free_alloc_threshold"),
		TailSlabs:           uint32(config.GetInt("cache.tail_slabs")),
		MovingAverageParam:  config.GetFloat64("cache.moving_average_param"),
		HoldOffEnabled:      config.GetBool("cache.hold_off_enabled"),
		DecayThreshold:      config.GetFloat64("cache.decay_threshold"),
		LAMAMinThreshold:    config.GetFloat64("cache.lama_min_threshold"),
		FootprintBufferSize: config.GetInt("cache.footprint_buffer_size"),
		RebalanceWorkers:    4,
	}
}

// DefaultRegistry builds the standard strategy family, tuned from cfg,
// with "default", "disabled" and "random" always present alongside the
// configured default so rebalance_strategy overrides resolve cleanly.
func DefaultRegistry(cfg Config, mrc *footprint.MRC) *rebalance.Registry {
	return rebalance.NewRegistry(
		rebalance.NewTailAgeStrategy(cfg.RebalanceMinSlabs, 0, cfg.RebalanceDiffRatio),
		rebalance.NewHitsPerSlabStrategy(cfg.RebalanceMinSlabs, 0, cfg.RebalanceDiffRatio),
		rebalance.NewHitsPerTailSlabStrategy(cfg.RebalanceMinSlabs, 0, cfg.RebalanceDiffRatio, cfg.TailSlabs),
		rebalance.NewHitsToggleStrategy(cfg.RebalanceMinSlabs, 0, cfg.RebalanceDiffRatio),
		rebalance.NewEvictionRateStrategy(cfg.RebalanceMinSlabs, 0, cfg.RebalanceDiffRatio),
		rebalance.NewMarginalHitsStrategy(rebalance.MarginalHitsDefault, cfg.RebalanceMinSlabs, 0, cfg.RebalanceDiffRatio, cfg.MovingAverageParam, cfg.TailSlabs),
		rebalance.NewMarginalHitsStrategy(rebalance.MarginalHitsNew, cfg.RebalanceMinSlabs, 0, cfg.RebalanceDiffRatio, cfg.MovingAverageParam, cfg.TailSlabs),
		rebalance.NewMarginalHitsStrategy(rebalance.MarginalHitsOld, cfg.RebalanceMinSlabs, 0, cfg.RebalanceDiffRatio, cfg.MovingAverageParam, cfg.TailSlabs),
		rebalance.NewFreeMemStrategy(1),
		rebalance.NewLAMAStrategy(mrc, cfg.LAMAMinThreshold),
		rebalance.NewDefaultStrategy(),
		rebalance.NewDisabledStrategy(),
		rebalance.NewRandomStrategy(cfg.RebalanceMinSlabs, 1),
	)
}

// Cache is the wired-together cache core.
type Cache struct {
	mu sync.RWMutex

	store      item.Store
	allocator  alloc.Allocator
	containers map[alloc.PoolID]map[alloc.ClassID]*mm.Container
	footprint  *footprint.MRC
	rebalancer *rebalance.PoolRebalancer

	cfg Config
}

// New wires an mm.Container-per-class cache core over store/allocator,
// using cfg's defaults and the given strategy registry.
func New(store item.Store, allocator alloc.Allocator, registry *rebalance.Registry, cfg Config) (*Cache, error) {
	if cfg.RebalanceMinSlabs == 0 {
		return nil, cacheerror.ErrInvalidMinSlabs
	}
	if _, ok := registry.Get(cfg.RebalanceStrategy); !ok {
		return nil, cacheerror.ErrUnknownStrategy
	}

	fp := footprint.New(cfg.FootprintBufferSize)
	rebalancer, err := rebalance.NewPoolRebalancer(allocator, registry, cfg.RebalanceStrategy, cfg.FreeAllocThreshold, cfg.RebalanceWorkers)
	if err != nil {
		return nil, err
	}

	return &Cache{
		store:      store,
		allocator:  allocator,
		containers: make(map[alloc.PoolID]map[alloc.ClassID]*mm.Container),
		footprint:  fp,
		rebalancer: rebalancer,
		cfg:        cfg,
	}, nil
}

// RegisterClass creates the mm.Container for (pid, cid), using the
// core's configured MM defaults plus the tail-size hint for its ghost
// history. Calling it twice for the same (pid, cid) replaces the
// container.
func (c *Cache) RegisterClass(pid alloc.PoolID, cid alloc.ClassID) *mm.Container {
	c.mu.Lock()
	defer c.mu.Unlock()

	byClass, ok := c.containers[pid]
	if !ok {
		byClass = make(map[alloc.ClassID]*mm.Container)
		c.containers[pid] = byClass
	}
	container := mm.New(c.store, c.cfg.TailSlabs, nil, c.cfg.MM)
	byClass[cid] = container
	return container
}

// Container returns the registered mm.Container for (pid, cid), or nil
// if RegisterClass hasn't been called for it yet.
func (c *Cache) Container(pid alloc.PoolID, cid alloc.ClassID) *mm.Container {
	c.mu.RLock()
	defer c.mu.RUnlock()
	byClass, ok := c.containers[pid]
	if !ok {
		return nil
	}
	return byClass[cid]
}

// Add links h into (pid, cid)'s container.
func (c *Cache) Add(pid alloc.PoolID, cid alloc.ClassID, h item.Handle) error {
	container := c.Container(pid, cid)
	if container == nil {
		return cacheerror.ErrInvalidPool
	}
	return container.Add(h)
}

// RecordAccess records a touch on h in (pid, cid)'s container and feeds
// the shared footprint estimator, so FootprintMRC's window always
// reflects the same traffic the eviction policy sees.
func (c *Cache) RecordAccess(pid alloc.PoolID, cid alloc.ClassID, h item.Handle, mode mm.AccessMode) bool {
	container := c.Container(pid, cid)
	if container == nil {
		return false
	}
	it := c.store.Get(h)
	if it != nil {
		c.footprint.Feed(int64(keyInt(it.Key())), cid)
	}
	return container.RecordAccess(h, mode)
}

// keyInt interprets key as a big-endian integer when it is 8 bytes or
// fewer, matching spec's allowance to treat keys as integers where
// possible; longer keys fall back to their checksum.
func keyInt(key []byte) uint64 {
	if len(key) > 8 {
		return uint64(util.Checksum(key))
	}
	var v uint64
	for _, b := range key {
		v = v<<8 | uint64(b)
	}
	return v
}

// Evict pops the next eviction candidate from (pid, cid)'s container,
// removing it from the container and recording it in the ghost history
// if it came from the probationary queue. The caller is responsible for
// actually freeing the item through the allocator.
func (c *Cache) Evict(pid alloc.PoolID, cid alloc.ClassID) (item.Handle, bool, error) {
	container := c.Container(pid, cid)
	if container == nil {
		return item.NullHandle, false, cacheerror.ErrInvalidPool
	}
	it := container.GetEvictionIterator()
	defer it.Close()
	if !it.Valid() {
		return item.NullHandle, false, cacheerror.ErrEmptyEvictionCandidate
	}
	h := it.Handle()
	it.RemoveCurrent()
	return h, true, nil
}

// RunRebalanceOnce runs one rebalancer round across every regular pool.
func (c *Cache) RunRebalanceOnce() {
	c.rebalancer.Work()
}

// ProcessAllocFailure forwards an allocation failure to the rebalancer.
func (c *Cache) ProcessAllocFailure(pid alloc.PoolID, cid alloc.ClassID) {
	c.rebalancer.ProcessAllocFailure(pid, cid)
}

// Stop shuts down the rebalancer's worker pool.
func (c *Cache) Stop() {
	c.rebalancer.Stop()
}

// HandleError logs a non-fatal error through the shared logger, for
// callers that want the core's own log formatting for their own errors.
func HandleError(err error) {
	log.HandleError(err)
}
