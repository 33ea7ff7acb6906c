package alloc

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMockAllocatorPutGetRoundTrip(t *testing.T) {
	m := NewMockAllocator(1 << 12)
	m.AddPool(0, map[ClassID]ACStats{1: {TotalSlabs: 4, AllocsPerSlab: 10}})

	h := m.Put(0, 1, []byte("hello"), 32)
	it := m.Get(h)
	fmt.Printf("stored item key=%q size=%d\n", it.Key(), it.Size)
	assert.Equal(t, []byte("hello"), it.Key())
	assert.Equal(t, uint32(32), it.Size)
}

func TestGetRegularPoolIDsAndPoolStats(t *testing.T) {
	m := NewMockAllocator(1 << 12)
	m.AddPool(7, map[ClassID]ACStats{1: {TotalSlabs: 4, AllocsPerSlab: 10}, 2: {TotalSlabs: 2, AllocsPerSlab: 5}})

	ids := m.GetRegularPoolIDs()
	assert.Equal(t, []PoolID{7}, ids)

	ps, err := m.GetPoolStats(7)
	assert.NoError(t, err)
	assert.Len(t, ps.MP.ClassIDs, 2)

	_, err = m.GetPoolStats(99)
	assert.Error(t, err)
}

func TestReleaseSlabMovesCapacityBetweenClasses(t *testing.T) {
	m := NewMockAllocator(1 << 12)
	m.AddPool(0, map[ClassID]ACStats{1: {TotalSlabs: 4}, 2: {TotalSlabs: 2}})

	assert.NoError(t, m.ReleaseSlab(0, 1, 2, ReleaseRebalance))
	ps, _ := m.GetPoolStats(0)
	assert.Equal(t, uint32(3), ps.MP.AC[1].TotalSlabs)
	assert.Equal(t, uint32(3), ps.MP.AC[2].TotalSlabs)

	assert.NoError(t, m.ReleaseSlab(0, 1, InvalidClassID, ReleaseRebalance))
	ps, _ = m.GetPoolStats(0)
	assert.Equal(t, uint32(2), ps.MP.AC[1].TotalSlabs)
}

func TestReleaseSlabFailsOnExhaustedVictim(t *testing.T) {
	m := NewMockAllocator(1 << 12)
	m.AddPool(0, map[ClassID]ACStats{1: {TotalSlabs: 0}, 2: {TotalSlabs: 2}})
	assert.Error(t, m.ReleaseSlab(0, 1, 2, ReleaseRebalance))
}

func TestFailReleaseSlabOverride(t *testing.T) {
	m := NewMockAllocator(1 << 12)
	m.AddPool(0, map[ClassID]ACStats{1: {TotalSlabs: 4}, 2: {TotalSlabs: 2}})
	sentinel := ErrPoolNotFound(0)
	m.FailReleaseSlab(0, sentinel)
	assert.ErrorIs(t, m.ReleaseSlab(0, 1, 2, ReleaseRebalance), sentinel)
}

func TestRebalanceStrategyOverride(t *testing.T) {
	m := NewMockAllocator(1 << 12)
	_, ok := m.GetRebalanceStrategy(0)
	assert.False(t, ok)

	m.SetStrategyOverride(0, "hits")
	name, ok := m.GetRebalanceStrategy(0)
	assert.True(t, ok)
	assert.Equal(t, "hits", name)
}
