package rebalance

import (
	"fmt"
	"testing"

	"github.com/Zaire404/cachecore/alloc"
	"github.com/stretchr/testify/assert"
)

// TestRebalancerNoOpWithDisabledStrategy covers the "Rebalancer no-op"
// scenario: with the disabled strategy configured and no free-alloc
// pressure, a round must not move any slab.
func TestRebalancerNoOpWithDisabledStrategy(t *testing.T) {
	m := alloc.NewMockAllocator(1 << 12)
	m.AddPool(0, map[alloc.ClassID]alloc.ACStats{
		1: {TotalSlabs: 10, AllocsPerSlab: 100},
		2: {TotalSlabs: 10, AllocsPerSlab: 100},
	})

	registry := NewRegistry(NewDisabledStrategy())
	r, err := NewPoolRebalancer(m, registry, "disabled", 0, 2)
	assert.NoError(t, err)
	defer r.Stop()

	r.Work()

	ps, err := m.GetPoolStats(0)
	assert.NoError(t, err)
	fmt.Printf("pool stats after no-op round: %+v\n", ps.MP.AC)
	assert.Equal(t, uint32(10), ps.MP.AC[1].TotalSlabs)
	assert.Equal(t, uint32(10), ps.MP.AC[2].TotalSlabs)
}

func TestRebalancerAppliesHitsPerSlabMove(t *testing.T) {
	m := alloc.NewMockAllocator(1 << 12)
	m.AddPool(0, map[alloc.ClassID]alloc.ACStats{
		1: {TotalSlabs: 10, AllocsPerSlab: 100},
		2: {TotalSlabs: 10, AllocsPerSlab: 100},
	})

	registry := NewRegistry(NewHitsPerSlabStrategy(1, 0, 0), NewDisabledStrategy())
	r, err := NewPoolRebalancer(m, registry, "hits", 0, 2)
	assert.NoError(t, err)
	defer r.Stop()

	r.Work() // establishes baseline
	for i := 0; i < 200; i++ {
		m.RecordHit(0, 2, false)
	}
	r.Work()

	ps, err := m.GetPoolStats(0)
	assert.NoError(t, err)
	fmt.Printf("pool stats after hits-per-slab round: %+v\n", ps.MP.AC)
	assert.True(t, ps.MP.AC[2].TotalSlabs > 10)
	assert.True(t, ps.MP.AC[1].TotalSlabs < 10)
}

func TestRebalancerReleasesOnFreeAllocThreshold(t *testing.T) {
	m := alloc.NewMockAllocator(1 << 12)
	m.AddPool(0, map[alloc.ClassID]alloc.ACStats{
		1: {TotalSlabs: 10, AllocsPerSlab: 100},
		2: {TotalSlabs: 10, AllocsPerSlab: 100},
	})
	m.SetFreeAllocs(0, 1, 500) // 5 slabs worth free, well above a 0.1 threshold

	registry := NewRegistry(NewDisabledStrategy())
	r, err := NewPoolRebalancer(m, registry, "disabled", 0.1, 2)
	assert.NoError(t, err)
	defer r.Stop()

	r.Work()

	ps, err := m.GetPoolStats(0)
	assert.NoError(t, err)
	assert.True(t, ps.MP.AC[1].TotalSlabs < 10, "excess free allocs should have released a slab")
}

func TestProcessAllocFailureForcesDefaultStrategyVictim(t *testing.T) {
	m := alloc.NewMockAllocator(1 << 12)
	m.AddPool(0, map[alloc.ClassID]alloc.ACStats{
		1: {TotalSlabs: 10, AllocsPerSlab: 100},
		2: {TotalSlabs: 10, AllocsPerSlab: 100},
	})

	registry := NewRegistry(NewDefaultStrategy())
	r, err := NewPoolRebalancer(m, registry, "default", 0, 2)
	assert.NoError(t, err)
	defer r.Stop()

	r.ProcessAllocFailure(0, alloc.ClassID(2))
	r.Work()

	ps, err := m.GetPoolStats(0)
	assert.NoError(t, err)
	assert.True(t, ps.MP.AC[2].TotalSlabs < 10)
}
