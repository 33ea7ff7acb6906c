package mm

import (
	"fmt"
	"testing"

	"github.com/Zaire404/cachecore/alloc"
	"github.com/Zaire404/cachecore/cacheerror"
	"github.com/stretchr/testify/assert"
)

func TestAddRemoveRoundTrip(t *testing.T) {
	store := alloc.NewMockAllocator(1 << 16)
	c := New(store, 4, nil, DefaultConfig())

	h := store.Put(0, 0, []byte("key0"), 64)
	assert.NoError(t, c.Add(h))
	assert.ErrorIs(t, c.Add(h), cacheerror.ErrAlreadyInContainer)

	stats := c.GetStats()
	fmt.Printf("container stats after add: %+v\n", stats)
	assert.Equal(t, 1, stats.Size)

	assert.NoError(t, c.Remove(h))
	assert.ErrorIs(t, c.Remove(h), cacheerror.ErrNotInContainer)
}

func TestReplaceIsUnsupported(t *testing.T) {
	store := alloc.NewMockAllocator(1 << 16)
	c := New(store, 4, nil, DefaultConfig())
	h1 := store.Put(0, 0, []byte("key1"), 64)
	h2 := store.Put(0, 0, []byte("key2"), 64)
	assert.ErrorIs(t, c.Replace(h1, h2), cacheerror.ErrReplaceUnsupported)
}

func TestRecordAccessRespectsUpdateOnReadToggle(t *testing.T) {
	store := alloc.NewMockAllocator(1 << 16)
	cfg := DefaultConfig()
	cfg.UpdateOnRead = false
	c := New(store, 4, nil, cfg)

	h := store.Put(0, 0, []byte("key0"), 64)
	assert.NoError(t, c.Add(h))
	assert.False(t, c.RecordAccess(h, Read))

	cfg.UpdateOnRead = true
	c.SetConfig(cfg)
	assert.True(t, c.RecordAccess(h, Read))
	assert.False(t, c.RecordAccess(h, Read), "toggle counter only counts 0->1 transitions")
}

func TestEvictionIteratorWalksAndRemoves(t *testing.T) {
	store := alloc.NewMockAllocator(1 << 16)
	c := New(store, 4, nil, DefaultConfig())

	var handles []int
	for i := 0; i < 10; i++ {
		h := store.Put(0, 0, []byte(fmt.Sprintf("key%d", i)), 64)
		assert.NoError(t, c.Add(h))
		handles = append(handles, int(h))
	}

	it := c.GetEvictionIterator()
	assert.True(t, it.Valid())
	first := it.Handle()
	fmt.Printf("first eviction candidate handle=%d fromProbationary=%v\n", first, it.FromProbationary())
	it.RemoveCurrent()
	assert.True(t, it.Valid())
	// The iterator holds the container's mutex until Close; GetStats takes
	// the same mutex.
	it.Close()

	stats := c.GetStats()
	assert.Equal(t, 9, stats.Size)
}

func TestGetStatsReflectsQueueSizes(t *testing.T) {
	store := alloc.NewMockAllocator(1 << 16)
	c := New(store, 4, nil, DefaultConfig())
	for i := 0; i < 3; i++ {
		h := store.Put(0, 0, []byte(fmt.Sprintf("key%d", i)), 64)
		assert.NoError(t, c.Add(h))
	}
	stats := c.GetStats()
	assert.Equal(t, 3, stats.SizeProbationary)
	assert.Equal(t, 0, stats.SizeMain)
}

func TestSaveLoadState(t *testing.T) {
	store := alloc.NewMockAllocator(1 << 16)
	c := New(store, 4, nil, DefaultConfig())
	h := store.Put(0, 0, []byte("key0"), 64)
	assert.NoError(t, c.Add(h))

	saved := c.SaveState()
	c2 := New(store, 4, nil, DefaultConfig())
	c2.LoadState(saved)
	assert.Equal(t, c.GetStats().Size, c2.GetStats().Size)
}
