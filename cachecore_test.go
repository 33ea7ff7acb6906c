package cachecore

import (
	"fmt"
	"testing"

	"github.com/Zaire404/cachecore/alloc"
	"github.com/Zaire404/cachecore/config"
	"github.com/Zaire404/cachecore/footprint"
	"github.com/Zaire404/cachecore/item"
	"github.com/Zaire404/cachecore/mm"
	"github.com/Zaire404/cachecore/rebalance"
	"github.com/stretchr/testify/assert"
)

func newTestCache(t *testing.T) (*Cache, *alloc.MockAllocator) {
	t.Helper()
	m := alloc.NewMockAllocator(1 << 16)
	m.AddPool(0, map[alloc.ClassID]alloc.ACStats{
		1: {TotalSlabs: 10, AllocsPerSlab: 100},
		2: {TotalSlabs: 10, AllocsPerSlab: 100},
	})

	cfg := Config{
		MM:                  mm.DefaultConfig(),
		RebalanceStrategy:   "disabled",
		RebalanceMinSlabs:   1,
		FootprintBufferSize: 1024,
		RebalanceWorkers:    2,
	}
	registry := rebalance.NewRegistry(rebalance.NewDisabledStrategy(), rebalance.NewDefaultStrategy())
	c, err := New(m, m, registry, cfg)
	assert.NoError(t, err)
	c.RegisterClass(0, 1)
	c.RegisterClass(0, 2)
	return c, m
}

func TestCacheAddRecordAccessEvict(t *testing.T) {
	c, m := newTestCache(t)
	defer c.Stop()

	var handles []item.Handle
	for i := 0; i < 20; i++ {
		key := fmt.Sprintf("key%d", i)
		h := m.Put(0, 1, []byte(key), 64)
		assert.NoError(t, c.Add(0, 1, h))
		handles = append(handles, h)
	}

	assert.True(t, c.RecordAccess(0, 1, handles[0], mm.Read))

	h, ok, err := c.Evict(0, 1)
	assert.NoError(t, err)
	assert.True(t, ok)
	fmt.Printf("evicted handle=%d\n", h)
}

func TestCacheRejectsUnknownStrategy(t *testing.T) {
	m := alloc.NewMockAllocator(1 << 12)
	m.AddPool(0, map[alloc.ClassID]alloc.ACStats{1: {TotalSlabs: 4, AllocsPerSlab: 10}})
	cfg := Config{RebalanceStrategy: "does-not-exist", RebalanceMinSlabs: 1, FootprintBufferSize: 16, RebalanceWorkers: 1}
	registry := rebalance.NewRegistry(rebalance.NewDisabledStrategy())
	_, err := New(m, m, registry, cfg)
	assert.Error(t, err)
}

func TestCacheRejectsZeroMinSlabs(t *testing.T) {
	m := alloc.NewMockAllocator(1 << 12)
	cfg := Config{RebalanceStrategy: "disabled", RebalanceMinSlabs: 0, FootprintBufferSize: 16, RebalanceWorkers: 1}
	registry := rebalance.NewRegistry(rebalance.NewDisabledStrategy())
	_, err := New(m, m, registry, cfg)
	assert.Error(t, err)
}

func TestDefaultRegistryBuildsEveryStrategy(t *testing.T) {
	config.Init()
	cfg := LoadConfig()
	cfg.RebalanceMinSlabs = 1
	mrc := footprint.New(64)
	registry := DefaultRegistry(cfg, mrc)

	for _, name := range []string{"tail-age", "hits", "hits-per-tail-slab", "hits-toggle", "eviction-rate", "marginal-hits", "marginal-hits-new", "marginal-hits-old", "free-mem", "lama", "default", "disabled", "random"} {
		_, ok := registry.Get(name)
		assert.True(t, ok, "expected strategy %q to be registered", name)
	}
}
