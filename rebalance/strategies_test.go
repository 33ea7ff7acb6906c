package rebalance

import (
	"fmt"
	"testing"

	"github.com/Zaire404/cachecore/alloc"
	"github.com/stretchr/testify/assert"
)

func newTwoClassPool(t *testing.T) *alloc.MockAllocator {
	t.Helper()
	m := alloc.NewMockAllocator(1 << 12)
	m.AddPool(0, map[alloc.ClassID]alloc.ACStats{
		1: {TotalSlabs: 10, AllocsPerSlab: 100},
		2: {TotalSlabs: 10, AllocsPerSlab: 100},
	})
	return m
}

func TestHitsPerSlabPicksColdestVictim(t *testing.T) {
	m := newTwoClassPool(t)
	s := NewHitsPerSlabStrategy(1, 0, 0)

	// First round just establishes the baseline; deltas are zero.
	_, err := s.PickVictimAndReceiver(m, 0)
	assert.NoError(t, err)

	for i := 0; i < 50; i++ {
		m.RecordHit(0, 2, false)
	}
	ctx, err := s.PickVictimAndReceiver(m, 0)
	assert.NoError(t, err)
	fmt.Printf("hits-per-slab picked victim=%d receiver=%d\n", ctx.VictimClassID, ctx.ReceiverClassID)
	assert.Equal(t, alloc.ClassID(1), ctx.VictimClassID)
	assert.Equal(t, alloc.ClassID(2), ctx.ReceiverClassID)
}

func TestDefaultStrategyOnlyActsOnForcedFailure(t *testing.T) {
	m := newTwoClassPool(t)
	s := NewDefaultStrategy()

	ctx, err := s.PickVictimAndReceiver(m, 0)
	assert.NoError(t, err)
	assert.False(t, ctx.Valid())

	s.UponAllocFailure(0, alloc.ClassID(2))
	ctx, err = s.PickVictimAndReceiver(m, 0)
	assert.NoError(t, err)
	assert.Equal(t, alloc.ClassID(2), ctx.VictimClassID)

	// Forced victim is consumed after one round.
	ctx, err = s.PickVictimAndReceiver(m, 0)
	assert.NoError(t, err)
	assert.False(t, ctx.Valid())
}

func TestDisabledStrategyNeverActs(t *testing.T) {
	m := newTwoClassPool(t)
	s := NewDisabledStrategy()
	s.UponAllocFailure(0, alloc.ClassID(1))
	ctx, err := s.PickVictimAndReceiver(m, 0)
	assert.NoError(t, err)
	assert.False(t, ctx.Valid())
}

func TestFreeMemStrategyTriggersOnExcessFreeAllocs(t *testing.T) {
	m := newTwoClassPool(t)
	m.SetFreeAllocs(0, 1, 150) // 1.5 slabs worth free
	s := NewFreeMemStrategy(1)

	ctx, err := s.PickVictimAndReceiver(m, 0)
	assert.NoError(t, err)
	assert.Equal(t, alloc.ClassID(1), ctx.VictimClassID)
	assert.Equal(t, alloc.InvalidClassID, ctx.ReceiverClassID)
}

func TestRandomStrategyIsDeterministicForFixedSeed(t *testing.T) {
	m := newTwoClassPool(t)
	s1 := NewRandomStrategy(1, 42)
	s2 := NewRandomStrategy(1, 42)

	c1, err := s1.PickVictimAndReceiver(m, 0)
	assert.NoError(t, err)
	c2, err := s2.PickVictimAndReceiver(m, 0)
	assert.NoError(t, err)
	assert.Equal(t, c1, c2)
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry(NewDefaultStrategy(), NewDisabledStrategy())
	s, ok := r.Get("default")
	assert.True(t, ok)
	assert.Equal(t, "default", s.Name())

	_, ok = r.Get("nonexistent")
	assert.False(t, ok)
}
