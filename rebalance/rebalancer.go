package rebalance

import (
	"sync"
	"time"

	"github.com/Zaire404/cachecore/alloc"
	"github.com/Zaire404/cachecore/cacheerror"
	"github.com/Zaire404/cachecore/log"
	"github.com/Zaire404/cachecore/util"
	"github.com/VictoriaMetrics/metrics"
	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"
)

// Stats is PoolRebalancer's running counters, also exported through a
// VictoriaMetrics metrics.Set so an external scraper can read them.
type Stats struct {
	NumLoops        uint64
	ReleaseNumLoops uint64
}

// PoolRebalancer is the driver loop/entry point: for each regular pool
// it releases excess-free-capacity slabs, invokes the configured
// strategy, and applies the resulting release_slab moves. Failures from
// one pool never stop the others.
type PoolRebalancer struct {
	allocator          alloc.Allocator
	registry           *Registry
	defaultStrategy    string
	freeAllocThreshold float64

	closer *util.Closer
	pool   *ants.Pool

	metrics            *metrics.Set
	loopsTotal         *metrics.Counter
	releaseLoopsTotal  *metrics.Counter
	releaseSeconds     *metrics.Histogram
	pickDurationSeconds *metrics.Histogram
}

// NewPoolRebalancer constructs a rebalancer over allocator, resolving
// per-pool strategy overrides (alloc.Allocator.GetRebalanceStrategy)
// against registry, falling back to defaultStrategy. workers bounds the
// ants.Pool used to dispatch pools concurrently within one round.
func NewPoolRebalancer(allocator alloc.Allocator, registry *Registry, defaultStrategy string, freeAllocThreshold float64, workers int) (*PoolRebalancer, error) {
	if _, ok := registry.Get(defaultStrategy); !ok {
		return nil, cacheerror.ErrNoDefaultStrategy
	}
	// releaseSlab and log.HandleError write through log.Logger, which
	// log.Init creates.
	log.Init()
	p, err := ants.NewPool(workers)
	if err != nil {
		return nil, errors.Wrap(err, "rebalance: construct worker pool")
	}

	set := metrics.NewSet()
	return &PoolRebalancer{
		allocator:           allocator,
		registry:            registry,
		defaultStrategy:     defaultStrategy,
		freeAllocThreshold:  freeAllocThreshold,
		closer:              util.NewCloser(0),
		pool:                p,
		metrics:             set,
		loopsTotal:          set.NewCounter("rebalance_loops_total"),
		releaseLoopsTotal:   set.NewCounter("release_loops_total"),
		releaseSeconds:      set.NewHistogram("release_slab_seconds"),
		pickDurationSeconds: set.NewHistogram("rebalance_pick_seconds"),
	}, nil
}

// Metrics exposes the rebalancer's VictoriaMetrics set, for a caller to
// fold into its own /metrics endpoint.
func (r *PoolRebalancer) Metrics() *metrics.Set { return r.metrics }

// Stats returns the rebalancer's running counters: pool passes run and
// successful slab releases.
func (r *PoolRebalancer) Stats() Stats {
	return Stats{NumLoops: r.loopsTotal.Get(), ReleaseNumLoops: r.releaseLoopsTotal.Get()}
}

// Stop signals the rebalancer's loop to end at the next pool boundary
// and releases the worker pool. It does not wait for a round that is
// already running.
func (r *PoolRebalancer) Stop() {
	r.closer.Close()
	r.pool.Release()
}

func (r *PoolRebalancer) strategyFor(pid alloc.PoolID) Strategy {
	if name, ok := r.allocator.GetRebalanceStrategy(pid); ok {
		if s, ok := r.registry.Get(name); ok {
			return s
		}
	}
	s, _ := r.registry.Get(r.defaultStrategy)
	return s
}

// Work runs one round: every regular pool's rebalance pass is dispatched
// onto the worker pool (no ordering is guaranteed across pools), and
// Work waits for all of them to finish. It stops submitting new pools
// once Stop has been called, but lets in-flight pools complete.
func (r *PoolRebalancer) Work() {
	var wg sync.WaitGroup
	for _, pid := range r.allocator.GetRegularPoolIDs() {
		select {
		case <-r.closer.HasBeenClosed():
			wg.Wait()
			return
		default:
		}

		pid := pid
		wg.Add(1)
		err := r.pool.Submit(func() {
			defer wg.Done()
			r.workPool(pid)
		})
		if err != nil {
			wg.Done()
			log.HandleError(errors.Wrapf(err, "rebalance: submit pool %d", pid))
		}
	}
	wg.Wait()
}

func (r *PoolRebalancer) workPool(pid alloc.PoolID) {
	r.loopsTotal.Inc()

	if r.freeAllocThreshold > 0 {
		if victim, ok := r.pickFreeAllocVictim(pid); ok {
			r.releaseSlab(pid, victim, alloc.InvalidClassID)
		}
	}

	strategy := r.strategyFor(pid)
	if strategy == nil {
		return
	}

	start := time.Now()
	ctx, err := strategy.PickVictimAndReceiver(r.allocator, pid)
	r.pickDurationSeconds.Update(time.Since(start).Seconds())
	if err != nil {
		log.HandleError(errors.Wrapf(err, "rebalance: pick victim/receiver for pool %d", pid))
		return
	}
	if !ctx.Valid() {
		return
	}

	if len(ctx.Pairs) > 0 {
		for _, pair := range ctx.Pairs {
			r.releaseSlab(pid, pair.Victim, pair.Receiver)
		}
		return
	}
	r.releaseSlab(pid, ctx.VictimClassID, ctx.ReceiverClassID)
}

// pickFreeAllocVictim scans pid's classes for one whose free
// allocations exceed freeAllocThreshold times its allocs-per-slab,
// returning the class with the largest excess.
func (r *PoolRebalancer) pickFreeAllocVictim(pid alloc.PoolID) (alloc.ClassID, bool) {
	ps, err := r.allocator.GetPoolStats(pid)
	if err != nil {
		log.HandleError(errors.Wrapf(err, "rebalance: get pool stats for pool %d", pid))
		return alloc.InvalidClassID, false
	}

	best := alloc.InvalidClassID
	bestRatio := r.freeAllocThreshold
	for _, cid := range ps.MP.ClassIDs {
		ac := ps.MP.AC[cid]
		if ac.AllocsPerSlab == 0 {
			continue
		}
		ratio := float64(ac.FreeAllocs) / float64(ac.AllocsPerSlab)
		if ratio > bestRatio {
			best, bestRatio = cid, ratio
		}
	}
	return best, best != alloc.InvalidClassID
}

// SlabReleaseEvent is logged on every successful release_slab call, the
// post-move snapshot the source's releaseSlab reports as a structured
// log line.
type SlabReleaseEvent struct {
	PoolID         alloc.PoolID
	VictimClassID  alloc.ClassID
	ReceiverClassID alloc.ClassID
}

func (r *PoolRebalancer) releaseSlab(pid alloc.PoolID, victim, receiver alloc.ClassID) {
	if victim == alloc.InvalidClassID {
		return
	}
	start := time.Now()
	err := r.allocator.ReleaseSlab(pid, victim, receiver, alloc.ReleaseRebalance)
	r.releaseSeconds.Update(time.Since(start).Seconds())
	if err != nil {
		log.HandleError(errors.Wrapf(err, "%v: release_slab pool=%d victim=%d receiver=%d", cacheerror.ErrReleaseSlabFailed, pid, victim, receiver))
		return
	}
	r.releaseLoopsTotal.Inc()
	log.Logger.Debugf("slab released: %s", log.StructToString(SlabReleaseEvent{PoolID: pid, VictimClassID: victim, ReceiverClassID: receiver}))
}

// ProcessAllocFailure forwards an allocation failure in pid/cid to the
// pool's strategy, which may force cid as next round's victim.
func (r *PoolRebalancer) ProcessAllocFailure(pid alloc.PoolID, cid alloc.ClassID) {
	r.strategyFor(pid).UponAllocFailure(pid, cid)
}
