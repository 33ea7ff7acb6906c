// Package rebalance implements the slab-pool rebalancer: per-class
// delta tracking (Info), the pluggable strategy family, and the
// PoolRebalancer driver loop that applies strategy decisions through an
// alloc.Allocator.
package rebalance

import (
	"math"

	"github.com/Zaire404/cachecore/alloc"
)

// NumHoldOffRounds is how many rebalancer rounds a class stays excluded
// from victim/receiver selection after start-hold-off is invoked.
const NumHoldOffRounds = 10

// Snapshot is one class's stats pulled from alloc.PoolStats, the raw
// input Info computes deltas against.
type Snapshot struct {
	Slabs         uint32
	FreeAllocs    uint64
	AllocsPerSlab uint32

	Evictions     uint64
	AllocAttempts uint64
	AllocFailures uint64
	Hits          uint64
	HitsToggle    uint64

	TailAccesses           uint64
	SecondLastTailAccesses uint64
	ColdAccesses           uint64
	WarmAccesses           uint64
	HotAccesses            uint64
}

// SnapshotFromPoolStats extracts cid's Snapshot out of ps, or the zero
// Snapshot if cid isn't present.
func SnapshotFromPoolStats(ps alloc.PoolStats, cid alloc.ClassID) Snapshot {
	ac := ps.MP.AC[cid]
	cs := ps.CacheStats[cid]
	return Snapshot{
		Slabs:                  ac.TotalSlabs,
		FreeAllocs:             ac.FreeAllocs,
		AllocsPerSlab:          ac.AllocsPerSlab,
		Evictions:              cs.NumEvictions,
		AllocAttempts:          cs.AllocAttempts,
		AllocFailures:          cs.AllocFailures,
		Hits:                   cs.NumHits,
		HitsToggle:             cs.NumHitsToggle,
		TailAccesses:           cs.Container.NumTailAccesses,
		SecondLastTailAccesses: cs.Container.NumSecondLastTailAccesses,
		ColdAccesses:           cs.Container.NumColdAccesses,
		WarmAccesses:           cs.Container.NumWarmAccesses,
		HotAccesses:            cs.Container.NumHotAccesses,
	}
}

// Info is a per-class snapshot-with-deltas: every Delta* method compares
// a freshly read Snapshot against the values captured by the last
// UpdateRecord, without mutating state; UpdateRecord is what advances
// the baseline.
type Info struct {
	ClassID alloc.ClassID

	prev Snapshot

	accuTailHits    float64
	decayedTailHits float64

	requestsAtLastDecay uint64
	prevRequests        uint64
	totalRequests       uint64

	holdOffRemaining int
	victimHoldOff    int
	receiverHoldOff  int
}

// NewInfo constructs a zeroed Info for cid.
func NewInfo(cid alloc.ClassID) *Info {
	return &Info{ClassID: cid}
}

// DeltaSlabs returns cur's slab count minus the last recorded one.
func (i *Info) DeltaSlabs(cur Snapshot) int64 {
	return int64(cur.Slabs) - int64(i.prev.Slabs)
}

// DeltaEvictions returns cur's eviction count minus the last recorded one.
func (i *Info) DeltaEvictions(cur Snapshot) uint64 {
	return cur.Evictions - i.prev.Evictions
}

// DeltaAllocations returns cur's allocation-attempt count minus the last
// recorded one.
func (i *Info) DeltaAllocations(cur Snapshot) uint64 {
	return cur.AllocAttempts - i.prev.AllocAttempts
}

// DeltaHits returns cur's hit count minus the last recorded one.
func (i *Info) DeltaHits(cur Snapshot) uint64 {
	return cur.Hits - i.prev.Hits
}

// DeltaHitsToggle returns cur's hit-toggle count minus the last recorded
// one.
func (i *Info) DeltaHitsToggle(cur Snapshot) uint64 {
	return cur.HitsToggle - i.prev.HitsToggle
}

// DeltaAllocFailures returns cur's allocation-failure count minus the
// last recorded one.
func (i *Info) DeltaAllocFailures(cur Snapshot) uint64 {
	return cur.AllocFailures - i.prev.AllocFailures
}

// DeltaRequests returns the total requests recorded against this class
// since the last UpdateRecord.
func (i *Info) DeltaRequests() uint64 {
	return i.totalRequests - i.prevRequests
}

// DeltaRequestsSinceLastDecay returns the requests recorded since the
// last call to MarkDecay.
func (i *Info) DeltaRequestsSinceLastDecay() uint64 {
	return i.totalRequests - i.requestsAtLastDecay
}

// MarkDecay resets the since-last-decay request counter, called by a
// strategy after folding requests into a decayed accumulator.
func (i *Info) MarkDecay() {
	i.requestsAtLastDecay = i.totalRequests
}

// RecordRequest bumps the running request counter DeltaRequests and
// DeltaRequestsSinceLastDecay read from. Strategies that care about
// per-class request volume call this once per observed access.
func (i *Info) RecordRequest() {
	i.totalRequests++
}

// DeltaHitsPerSlab returns delta hits divided by cur's current slab
// count (0 if there are no slabs).
func (i *Info) DeltaHitsPerSlab(cur Snapshot) float64 {
	if cur.Slabs == 0 {
		return 0
	}
	return float64(i.DeltaHits(cur)) / float64(cur.Slabs)
}

// ProjectedDeltaHitsPerSlab returns the hits-per-slab value this class
// would have if it lost one slab, or +Inf (the UINT64_MAX analog) if it
// only has one slab to begin with — a receiver candidate comparison
// against +Inf is never the minimum, so the sentinel behaves correctly
// wherever this value is compared.
func (i *Info) ProjectedDeltaHitsPerSlab(cur Snapshot) float64 {
	if cur.Slabs <= 1 {
		return math.Inf(1)
	}
	return float64(i.DeltaHits(cur)) / float64(cur.Slabs-1)
}

// MarginalHits computes the per-slab hit rate attributable to the tail
// slabs: (current tail accesses − accumulated tail hits since the last
// UpdateTailHits) divided by the smaller of tailSlabCount and the class's
// total slabs.
func (i *Info) MarginalHits(cur Snapshot, tailSlabCount uint32) float64 {
	denom := tailSlabCount
	if cur.Slabs < denom {
		denom = cur.Slabs
	}
	if denom == 0 {
		return 0
	}
	return (float64(cur.TailAccesses) - i.accuTailHits) / float64(denom)
}

// DecayedMarginalHits reads the decayed marginal tail-hit rate: the
// decayed-past accumulator plus this round's marginal hits weighted by
// (1-decayFactor). It does not mutate any state; UpdateTailHits is what
// rolls the accumulator forward.
func (i *Info) DecayedMarginalHits(cur Snapshot, tailSlabCount uint32, decayFactor float64) float64 {
	return i.decayedTailHits + i.MarginalHits(cur, tailSlabCount)*(1-decayFactor)
}

// UpdateTailHits folds this round's single-slab marginal hits into the
// decayed accumulator and rolls the tail-access baseline forward. Called
// once per round, after DecayedMarginalHits has read the pre-update value.
func (i *Info) UpdateTailHits(cur Snapshot, decayFactor float64) {
	i.decayedTailHits = (i.decayedTailHits + i.MarginalHits(cur, 1)) * decayFactor
	i.accuTailHits = float64(cur.TailAccesses)
}

// UpdateRecord snapshots cur as the new baseline for subsequent Delta*
// calls.
func (i *Info) UpdateRecord(cur Snapshot) {
	i.prev = cur
	i.prevRequests = i.totalRequests
}

// StartHoldOff puts this class in a k-round cooldown during which it
// may not be (re)selected as victim or receiver.
func (i *Info) StartHoldOff() { i.holdOffRemaining = NumHoldOffRounds }

// ReduceHoldOff decrements the cooldown counter, floored at zero. Called
// once per rebalancer round.
func (i *Info) ReduceHoldOff() {
	if i.holdOffRemaining > 0 {
		i.holdOffRemaining--
	}
}

// InHoldOff reports whether this class is still in its cooldown window.
func (i *Info) InHoldOff() bool { return i.holdOffRemaining > 0 }

// StartVictimHoldOff is StartHoldOff scoped to victim selection only.
func (i *Info) StartVictimHoldOff() { i.victimHoldOff = NumHoldOffRounds }

// ReduceVictimHoldOff decrements the victim cooldown counter.
func (i *Info) ReduceVictimHoldOff() {
	if i.victimHoldOff > 0 {
		i.victimHoldOff--
	}
}

// InVictimHoldOff reports whether this class may not currently be
// selected as a victim.
func (i *Info) InVictimHoldOff() bool { return i.victimHoldOff > 0 }

// StartReceiverHoldOff is StartHoldOff scoped to receiver selection only.
func (i *Info) StartReceiverHoldOff() { i.receiverHoldOff = NumHoldOffRounds }

// ReduceReceiverHoldOff decrements the receiver cooldown counter.
func (i *Info) ReduceReceiverHoldOff() {
	if i.receiverHoldOff > 0 {
		i.receiverHoldOff--
	}
}

// InReceiverHoldOff reports whether this class may not currently be
// selected as a receiver.
func (i *Info) InReceiverHoldOff() bool { return i.receiverHoldOff > 0 }
