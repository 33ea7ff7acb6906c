package rebalance

import "github.com/Zaire404/cachecore/alloc"

// Pair is one (victim, receiver) slab move.
type Pair struct {
	Victim   alloc.ClassID
	Receiver alloc.ClassID
}

// Context is a strategy's decision for one pool: either a single
// (victim, receiver) pair or, for multi-move strategies like LAMA, a
// list of pairs. VictimClassID/ReceiverClassID are alloc.InvalidClassID
// when the strategy has nothing to do.
type Context struct {
	VictimClassID   alloc.ClassID
	ReceiverClassID alloc.ClassID
	Pairs           []Pair
}

// Valid reports whether the context names at least one actionable move.
func (c Context) Valid() bool {
	return c.VictimClassID != alloc.InvalidClassID || len(c.Pairs) > 0
}

// Strategy picks which class loses a slab and which gains it.
type Strategy interface {
	// Name identifies the strategy for config's rebalance_strategy
	// lookup and for logging.
	Name() string

	// PickVictimAndReceiver inspects a's current stats for pid and
	// returns the move (if any) this round should make.
	PickVictimAndReceiver(a alloc.Allocator, pid alloc.PoolID) (Context, error)

	// UponAllocFailure is invoked when an allocation attempt for cid in
	// pid fails. DefaultStrategy forces cid as the next round's victim;
	// the tail-age, hits-per-slab family and marginal-hits strategies
	// instead keep cid out of victim selection for NumHoldOffRounds
	// rounds; the remaining strategies ignore it.
	UponAllocFailure(pid alloc.PoolID, cid alloc.ClassID)
}

// Registry resolves a strategy by the name used in
// cache.rebalance_strategy / get_rebalance_strategy overrides.
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry builds a Registry over the given strategies, keyed by
// their own Name().
func NewRegistry(strategies ...Strategy) *Registry {
	r := &Registry{strategies: make(map[string]Strategy, len(strategies))}
	for _, s := range strategies {
		r.strategies[s.Name()] = s
	}
	return r
}

// Get looks up a strategy by name.
func (r *Registry) Get(name string) (Strategy, bool) {
	s, ok := r.strategies[name]
	return s, ok
}
