package rebalance

import (
	"sync"

	"github.com/Zaire404/cachecore/alloc"
)

// infoTable is the per-(pool, class) Info storage shared by every
// stateful strategy: each strategy owns one, keyed by the pool/class
// pair it last saw.
type infoTable struct {
	mu    sync.Mutex
	infos map[alloc.PoolID]map[alloc.ClassID]*Info
}

func newInfoTable() *infoTable {
	return &infoTable{infos: make(map[alloc.PoolID]map[alloc.ClassID]*Info)}
}

func (t *infoTable) get(pid alloc.PoolID, cid alloc.ClassID) *Info {
	t.mu.Lock()
	defer t.mu.Unlock()
	byClass, ok := t.infos[pid]
	if !ok {
		byClass = make(map[alloc.ClassID]*Info)
		t.infos[pid] = byClass
	}
	info, ok := byClass[cid]
	if !ok {
		info = NewInfo(cid)
		byClass[cid] = info
	}
	return info
}

// snapshotPool reads pid's stats and returns them alongside a
// Snapshot-per-class view and this strategy's Info-per-class view,
// advancing hold-off counters for every class it sees.
func snapshotPool(a alloc.Allocator, t *infoTable, pid alloc.PoolID) (alloc.PoolStats, map[alloc.ClassID]Snapshot, map[alloc.ClassID]*Info, error) {
	ps, err := a.GetPoolStats(pid)
	if err != nil {
		return alloc.PoolStats{}, nil, nil, err
	}
	snaps := make(map[alloc.ClassID]Snapshot, len(ps.MP.ClassIDs))
	infos := make(map[alloc.ClassID]*Info, len(ps.MP.ClassIDs))
	for _, cid := range ps.MP.ClassIDs {
		snaps[cid] = SnapshotFromPoolStats(ps, cid)
		info := t.get(pid, cid)
		info.ReduceHoldOff()
		info.ReduceVictimHoldOff()
		info.ReduceReceiverHoldOff()
		infos[cid] = info
	}
	return ps, snaps, infos, nil
}

// commitRecords advances every seen class's Info baseline, called exactly
// once per round after PickVictimAndReceiver has finished reading deltas.
// decayFactor feeds UpdateTailHits; strategies that don't read
// DecayedMarginalHits pass 0.
func commitRecords(snaps map[alloc.ClassID]Snapshot, infos map[alloc.ClassID]*Info, decayFactor float64) {
	for cid, snap := range snaps {
		infos[cid].UpdateRecord(snap)
		infos[cid].UpdateTailHits(snap, decayFactor)
	}
}

// gate reports whether a (victim, receiver) value difference clears the
// strategy's absolute and relative thresholds.
func gate(victimValue, receiverValue, minDiff, diffRatio float64) bool {
	diff := receiverValue - victimValue
	if diff <= minDiff {
		return false
	}
	max := receiverValue
	if victimValue > max {
		max = victimValue
	}
	if max == 0 {
		return false
	}
	return diff/max > diffRatio
}

// pickExtremes finds the class with the lowest victimValue (eligible as
// victim: at least minSlabs+1 slabs, not in victim hold-off) and the class
// with the highest receiverValue (eligible as receiver: at least minSlabs
// slabs, not in receiver hold-off), excluding the same class from being
// both.
func pickExtremes(
	classIDs []alloc.ClassID,
	snaps map[alloc.ClassID]Snapshot,
	infos map[alloc.ClassID]*Info,
	minSlabs uint32,
	victimValue func(alloc.ClassID) float64,
	receiverValue func(alloc.ClassID) float64,
) (victim, receiver alloc.ClassID, victimVal, receiverVal float64, ok bool) {
	victim, receiver = alloc.InvalidClassID, alloc.InvalidClassID
	haveVictim, haveReceiver := false, false

	for _, cid := range classIDs {
		snap := snaps[cid]
		info := infos[cid]
		if snap.Slabs >= minSlabs+1 && !info.InVictimHoldOff() {
			v := victimValue(cid)
			if !haveVictim || v < victimVal {
				victim, victimVal, haveVictim = cid, v, true
			}
		}
	}
	for _, cid := range classIDs {
		if cid == victim {
			continue
		}
		snap := snaps[cid]
		info := infos[cid]
		if snap.Slabs < minSlabs || info.InReceiverHoldOff() {
			continue
		}
		v := receiverValue(cid)
		if !haveReceiver || v > receiverVal {
			receiver, receiverVal, haveReceiver = cid, v, true
		}
	}
	return victim, receiver, victimVal, receiverVal, haveVictim && haveReceiver
}
