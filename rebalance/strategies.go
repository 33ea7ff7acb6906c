package rebalance

import (
	"math/rand"

	"github.com/Zaire404/cachecore/alloc"
)

// staleness approximates "tail age": classes whose tail slots are
// receiving few accesses per slab look old/cold, the way an LRU tail
// growing long in the tooth would. S3-FIFO has no wall-clock item age to
// read directly, so every age-flavored strategy below is built on this
// proxy instead.
func staleness(snap Snapshot, info *Info) float64 {
	perSlab := info.DeltaHitsPerSlab(snap)
	return 1 / (1 + perSlab)
}

// TailAgeStrategy moves a slab from the class with the stalest tail to
// the class with the freshest one.
type TailAgeStrategy struct {
	infos        *infoTable
	minSlabs     uint32
	minAgeDiff   float64
	ageDiffRatio float64
}

// NewTailAgeStrategy constructs a tail-age strategy gated by minSlabs
// (both classes need at least this many slabs to participate),
// minAgeDiff (absolute staleness gap) and ageDiffRatio (relative gap).
func NewTailAgeStrategy(minSlabs uint32, minAgeDiff, ageDiffRatio float64) *TailAgeStrategy {
	return &TailAgeStrategy{infos: newInfoTable(), minSlabs: minSlabs, minAgeDiff: minAgeDiff, ageDiffRatio: ageDiffRatio}
}

func (s *TailAgeStrategy) Name() string { return "tail-age" }

func (s *TailAgeStrategy) UponAllocFailure(pid alloc.PoolID, cid alloc.ClassID) {
	s.infos.get(pid, cid).StartVictimHoldOff()
}

func (s *TailAgeStrategy) PickVictimAndReceiver(a alloc.Allocator, pid alloc.PoolID) (Context, error) {
	ps, snaps, infos, err := snapshotPool(a, s.infos, pid)
	if err != nil {
		return Context{}, err
	}
	defer commitRecords(snaps, infos, 0)

	value := func(cid alloc.ClassID) float64 { return -staleness(snaps[cid], infos[cid]) }
	victim, receiver, vVal, rVal, ok := pickExtremes(ps.MP.ClassIDs, snaps, infos, s.minSlabs, value, value)
	if !ok || !gate(vVal, rVal, s.minAgeDiff, s.ageDiffRatio) {
		return Context{VictimClassID: alloc.InvalidClassID, ReceiverClassID: alloc.InvalidClassID}, nil
	}
	return Context{VictimClassID: victim, ReceiverClassID: receiver}, nil
}

// hitsPerSlabKind selects which per-slab value hitsPerSlabStrategy reads,
// so hits-per-slab / hits-per-tail-slab / hits-toggle / eviction-rate can
// share one implementation.
type hitsPerSlabKind int

const (
	kindHitsPerSlab hitsPerSlabKind = iota
	kindHitsPerTailSlab
	kindHitsToggle
	kindEvictionRate
)

// hitsPerSlabStrategy is the shared shape of the spec's "victim = lowest
// per-slab value, receiver = highest projected per-slab value" family.
type hitsPerSlabStrategy struct {
	kind      hitsPerSlabKind
	name      string
	infos     *infoTable
	minSlabs  uint32
	minDiff   float64
	diffRatio float64
	tailSlabs uint32
}

func newHitsPerSlabStrategy(kind hitsPerSlabKind, name string, minSlabs uint32, minDiff, diffRatio float64, tailSlabs uint32) *hitsPerSlabStrategy {
	return &hitsPerSlabStrategy{kind: kind, name: name, infos: newInfoTable(), minSlabs: minSlabs, minDiff: minDiff, diffRatio: diffRatio, tailSlabs: tailSlabs}
}

func (s *hitsPerSlabStrategy) Name() string { return s.name }

func (s *hitsPerSlabStrategy) UponAllocFailure(pid alloc.PoolID, cid alloc.ClassID) {
	s.infos.get(pid, cid).StartVictimHoldOff()
}

func (s *hitsPerSlabStrategy) value(snap Snapshot, info *Info) float64 {
	switch s.kind {
	case kindHitsPerTailSlab:
		return info.MarginalHits(snap, s.tailSlabs)
	case kindHitsToggle:
		if snap.Slabs == 0 {
			return 0
		}
		return float64(snap.HitsToggle) / float64(snap.Slabs)
	case kindEvictionRate:
		return float64(info.DeltaEvictions(snap))
	default:
		return info.DeltaHitsPerSlab(snap)
	}
}

func (s *hitsPerSlabStrategy) projected(snap Snapshot, info *Info) float64 {
	if s.kind == kindHitsPerSlab {
		return info.ProjectedDeltaHitsPerSlab(snap)
	}
	return s.value(snap, info)
}

func (s *hitsPerSlabStrategy) PickVictimAndReceiver(a alloc.Allocator, pid alloc.PoolID) (Context, error) {
	ps, snaps, infos, err := snapshotPool(a, s.infos, pid)
	if err != nil {
		return Context{}, err
	}
	defer commitRecords(snaps, infos, 0)

	victimValue := func(cid alloc.ClassID) float64 { return s.value(snaps[cid], infos[cid]) }
	receiverValue := func(cid alloc.ClassID) float64 { return s.projected(snaps[cid], infos[cid]) }
	victim, receiver, vVal, rVal, ok := pickExtremes(ps.MP.ClassIDs, snaps, infos, s.minSlabs, victimValue, receiverValue)
	if !ok || !gate(vVal, rVal, s.minDiff, s.diffRatio) {
		return Context{VictimClassID: alloc.InvalidClassID, ReceiverClassID: alloc.InvalidClassID}, nil
	}
	return Context{VictimClassID: victim, ReceiverClassID: receiver}, nil
}

// NewHitsPerSlabStrategy picks the victim with the lowest recent
// hits-per-slab and the receiver with the highest projected
// hits-per-slab (delta hits spread over one slab fewer, see
// Info.ProjectedDeltaHitsPerSlab).
func NewHitsPerSlabStrategy(minSlabs uint32, minDiff, diffRatio float64) *hitsPerSlabStrategy {
	return newHitsPerSlabStrategy(kindHitsPerSlab, "hits", minSlabs, minDiff, diffRatio, 0)
}

// NewHitsPerTailSlabStrategy is hits-per-slab scoped to the tail slabs
// only, via RebalanceInfo.MarginalHits.
func NewHitsPerTailSlabStrategy(minSlabs uint32, minDiff, diffRatio float64, tailSlabs uint32) *hitsPerSlabStrategy {
	return newHitsPerSlabStrategy(kindHitsPerTailSlab, "hits-per-tail-slab", minSlabs, minDiff, diffRatio, tailSlabs)
}

// NewHitsToggleStrategy compares classes by their hits-toggle counter
// per slab instead of raw hits per slab.
func NewHitsToggleStrategy(minSlabs uint32, minDiff, diffRatio float64) *hitsPerSlabStrategy {
	return newHitsPerSlabStrategy(kindHitsToggle, "hits-toggle", minSlabs, minDiff, diffRatio, 0)
}

// NewEvictionRateStrategy is the hits-per-slab shape run on delta
// evictions instead of delta hits: the class evicting fastest (i.e.
// suffering the most) becomes the receiver, not the victim.
func NewEvictionRateStrategy(minSlabs uint32, minDiff, diffRatio float64) *hitsPerSlabStrategy {
	s := newHitsPerSlabStrategy(kindEvictionRate, "eviction-rate", minSlabs, minDiff, diffRatio, 0)
	return s
}

// MarginalHitsVariant distinguishes marginal-hits from its "new" and
// "old" receiver-filtering variants.
type MarginalHitsVariant int

const (
	MarginalHitsDefault MarginalHitsVariant = iota
	MarginalHitsNew
	MarginalHitsOld
)

// MarginalHitsStrategy moves a slab from the class with the lowest
// decayed marginal tail-hit rate to the class with the highest one,
// optionally filtered by eviction rate per variant.
type MarginalHitsStrategy struct {
	infos        *infoTable
	variant      MarginalHitsVariant
	minSlabs     uint32
	minDiff      float64
	diffRatio    float64
	tailSlabs    uint32
	decayFactor  float64
}

// NewMarginalHitsStrategy constructs the marginal-hits strategy. variant
// selects the optional eviction filter, applied to victim and receiver
// candidates alike: MarginalHitsNew only considers classes that had
// evictions since the last round, MarginalHitsOld only classes that had
// none.
func NewMarginalHitsStrategy(variant MarginalHitsVariant, minSlabs uint32, minDiff, diffRatio, decayFactor float64, tailSlabs uint32) *MarginalHitsStrategy {
	return &MarginalHitsStrategy{infos: newInfoTable(), variant: variant, minSlabs: minSlabs, minDiff: minDiff, diffRatio: diffRatio, tailSlabs: tailSlabs, decayFactor: decayFactor}
}

func (s *MarginalHitsStrategy) Name() string {
	switch s.variant {
	case MarginalHitsNew:
		return "marginal-hits-new"
	case MarginalHitsOld:
		return "marginal-hits-old"
	default:
		return "marginal-hits"
	}
}

func (s *MarginalHitsStrategy) UponAllocFailure(pid alloc.PoolID, cid alloc.ClassID) {
	s.infos.get(pid, cid).StartVictimHoldOff()
}

func (s *MarginalHitsStrategy) PickVictimAndReceiver(a alloc.Allocator, pid alloc.PoolID) (Context, error) {
	ps, snaps, infos, err := snapshotPool(a, s.infos, pid)
	if err != nil {
		return Context{}, err
	}
	defer commitRecords(snaps, infos, s.decayFactor)

	value := func(cid alloc.ClassID) float64 {
		return infos[cid].DecayedMarginalHits(snaps[cid], s.tailSlabs, s.decayFactor)
	}

	classIDs := ps.MP.ClassIDs
	if s.variant != MarginalHitsDefault {
		filtered := make([]alloc.ClassID, 0, len(classIDs))
		for _, cid := range classIDs {
			rate := float64(infos[cid].DeltaEvictions(snaps[cid]))
			if s.variant == MarginalHitsNew && rate > 0 {
				filtered = append(filtered, cid)
			} else if s.variant == MarginalHitsOld && rate <= 0 {
				filtered = append(filtered, cid)
			}
		}
		classIDs = filtered
	}

	victim, receiver, vVal, rVal, ok := pickExtremes(classIDs, snaps, infos, s.minSlabs, value, value)
	if !ok || !gate(vVal, rVal, s.minDiff, s.diffRatio) {
		return Context{VictimClassID: alloc.InvalidClassID, ReceiverClassID: alloc.InvalidClassID}, nil
	}
	infos[victim].StartVictimHoldOff()
	infos[receiver].StartReceiverHoldOff()
	return Context{VictimClassID: victim, ReceiverClassID: receiver}, nil
}

// FreeMemStrategy releases slabs unconditionally from any class with at
// least numFreeSlabs worth of free allocations; it never names a
// receiver, returning memory to the pool's free list instead.
type FreeMemStrategy struct {
	numFreeSlabs uint32
}

// NewFreeMemStrategy constructs a free-mem strategy triggering once a
// class has numFreeSlabs slabs' worth of unused capacity.
func NewFreeMemStrategy(numFreeSlabs uint32) *FreeMemStrategy {
	return &FreeMemStrategy{numFreeSlabs: numFreeSlabs}
}

func (s *FreeMemStrategy) Name() string                                       { return "free-mem" }
func (s *FreeMemStrategy) UponAllocFailure(alloc.PoolID, alloc.ClassID)       {}

func (s *FreeMemStrategy) PickVictimAndReceiver(a alloc.Allocator, pid alloc.PoolID) (Context, error) {
	ps, err := a.GetPoolStats(pid)
	if err != nil {
		return Context{}, err
	}
	for _, cid := range ps.MP.ClassIDs {
		ac := ps.MP.AC[cid]
		if ac.AllocsPerSlab == 0 {
			continue
		}
		freeSlabs := ac.FreeAllocs / uint64(ac.AllocsPerSlab)
		if uint32(freeSlabs) >= s.numFreeSlabs {
			return Context{VictimClassID: cid, ReceiverClassID: alloc.InvalidClassID}, nil
		}
	}
	return Context{VictimClassID: alloc.InvalidClassID, ReceiverClassID: alloc.InvalidClassID}, nil
}

// DefaultStrategy never picks a move on its own; it only forces a
// victim through UponAllocFailure, signaling the class that just failed
// an allocation as next round's victim.
type DefaultStrategy struct {
	forced map[alloc.PoolID]alloc.ClassID
}

// NewDefaultStrategy constructs the no-op-unless-forced default
// strategy.
func NewDefaultStrategy() *DefaultStrategy {
	return &DefaultStrategy{forced: make(map[alloc.PoolID]alloc.ClassID)}
}

func (s *DefaultStrategy) Name() string { return "default" }

func (s *DefaultStrategy) UponAllocFailure(pid alloc.PoolID, cid alloc.ClassID) {
	s.forced[pid] = cid
}

func (s *DefaultStrategy) PickVictimAndReceiver(a alloc.Allocator, pid alloc.PoolID) (Context, error) {
	cid, ok := s.forced[pid]
	if !ok {
		return Context{VictimClassID: alloc.InvalidClassID, ReceiverClassID: alloc.InvalidClassID}, nil
	}
	delete(s.forced, pid)
	return Context{VictimClassID: cid, ReceiverClassID: alloc.InvalidClassID}, nil
}

// DisabledStrategy never picks a move and ignores allocation failures;
// it is rebalance_strategy's "disabled" setting.
type DisabledStrategy struct{}

func NewDisabledStrategy() *DisabledStrategy                                    { return &DisabledStrategy{} }
func (s *DisabledStrategy) Name() string                                        { return "disabled" }
func (s *DisabledStrategy) UponAllocFailure(alloc.PoolID, alloc.ClassID)        {}
func (s *DisabledStrategy) PickVictimAndReceiver(alloc.Allocator, alloc.PoolID) (Context, error) {
	return Context{VictimClassID: alloc.InvalidClassID, ReceiverClassID: alloc.InvalidClassID}, nil
}

// RandomStrategy uniformly chooses a class with at least minSlabs+1
// slabs as victim and any other class as receiver, used for chaos
// testing a rebalancer's move-application path.
type RandomStrategy struct {
	minSlabs uint32
	rng      *rand.Rand
}

// NewRandomStrategy constructs a random strategy seeded with seed (tests
// should pass a fixed seed for determinism).
func NewRandomStrategy(minSlabs uint32, seed int64) *RandomStrategy {
	return &RandomStrategy{minSlabs: minSlabs, rng: rand.New(rand.NewSource(seed))}
}

func (s *RandomStrategy) Name() string                                  { return "random" }
func (s *RandomStrategy) UponAllocFailure(alloc.PoolID, alloc.ClassID) {}

func (s *RandomStrategy) PickVictimAndReceiver(a alloc.Allocator, pid alloc.PoolID) (Context, error) {
	ps, err := a.GetPoolStats(pid)
	if err != nil {
		return Context{}, err
	}
	candidates := make([]alloc.ClassID, 0, len(ps.MP.ClassIDs))
	for _, cid := range ps.MP.ClassIDs {
		if ps.MP.AC[cid].TotalSlabs >= s.minSlabs+1 {
			candidates = append(candidates, cid)
		}
	}
	if len(candidates) == 0 {
		return Context{VictimClassID: alloc.InvalidClassID, ReceiverClassID: alloc.InvalidClassID}, nil
	}
	victim := candidates[s.rng.Intn(len(candidates))]

	others := make([]alloc.ClassID, 0, len(ps.MP.ClassIDs)-1)
	for _, cid := range ps.MP.ClassIDs {
		if cid != victim {
			others = append(others, cid)
		}
	}
	if len(others) == 0 {
		return Context{VictimClassID: alloc.InvalidClassID, ReceiverClassID: alloc.InvalidClassID}, nil
	}
	receiver := others[s.rng.Intn(len(others))]
	return Context{VictimClassID: victim, ReceiverClassID: receiver}, nil
}
