package rebalance

import (
	"github.com/Zaire404/cachecore/alloc"
	"github.com/Zaire404/cachecore/footprint"
)

// LAMAStrategy delegates entirely to FootprintMRC's dynamic-programming
// solver: it returns every move needed to reach the footprint-optimal
// slab allocation in one round, rather than a single (victim, receiver)
// pair.
type LAMAStrategy struct {
	mrc          *footprint.MRC
	minThreshold float64
}

// NewLAMAStrategy constructs a LAMA strategy reading from mrc.
// minThreshold gates the move: a solved plan whose miss-rate improvement
// (MissRateOld-MissRateNew) doesn't clear minThreshold is discarded.
func NewLAMAStrategy(mrc *footprint.MRC, minThreshold float64) *LAMAStrategy {
	return &LAMAStrategy{mrc: mrc, minThreshold: minThreshold}
}

func (s *LAMAStrategy) Name() string { return "lama" }

func (s *LAMAStrategy) UponAllocFailure(alloc.PoolID, alloc.ClassID) {}

func (s *LAMAStrategy) PickVictimAndReceiver(a alloc.Allocator, pid alloc.PoolID) (Context, error) {
	ps, err := a.GetPoolStats(pid)
	if err != nil {
		return Context{}, err
	}

	allocsPerSlab := make(map[alloc.ClassID]uint32, len(ps.MP.ClassIDs))
	current := make(map[alloc.ClassID]uint32, len(ps.MP.ClassIDs))
	for _, cid := range ps.MP.ClassIDs {
		ac := ps.MP.AC[cid]
		allocsPerSlab[cid] = ac.AllocsPerSlab
		current[cid] = ac.TotalSlabs
	}

	plan := s.mrc.SolveSlabReallocation(allocsPerSlab, current)
	if plan.MissRateOld-plan.MissRateNew < s.minThreshold || len(plan.Moves) == 0 {
		return Context{VictimClassID: alloc.InvalidClassID, ReceiverClassID: alloc.InvalidClassID}, nil
	}

	pairs := make([]Pair, len(plan.Moves))
	for i, m := range plan.Moves {
		pairs[i] = Pair{Victim: m.Victim, Receiver: m.Receiver}
	}
	return Context{VictimClassID: alloc.InvalidClassID, ReceiverClassID: alloc.InvalidClassID, Pairs: pairs}, nil
}
