package s3fifo

import (
	"fmt"
	"testing"

	"github.com/Zaire404/cachecore/alloc"
	"github.com/Zaire404/cachecore/item"
	"github.com/Zaire404/cachecore/util"
	"github.com/stretchr/testify/assert"
)

func keyHash(k []byte) uint32 { return util.Hash32(k) }

// TestAdmissionGoesToProbationary covers the "Admission" scenario: a
// freshly added item with no ghost-history entry lands in P, not M.
func TestAdmissionGoesToProbationary(t *testing.T) {
	store := alloc.NewMockAllocator(1 << 16)
	l := New(store, 4, keyHash)

	h := store.Put(0, 0, []byte("key0"), 64)
	l.Add(h)

	fmt.Printf("after add: |P|=%d |M|=%d\n", l.SizeProbationary(), l.SizeMain())
	assert.Equal(t, 1, l.SizeProbationary())
	assert.Equal(t, 0, l.SizeMain())
	assert.True(t, store.Get(h).IsProbationary())
}

// TestPromotionOnAccessedEvictionScan covers the "Promotion" scenario: an
// accessed item at the tail of P is promoted to M instead of evicted.
func TestPromotionOnAccessedEvictionScan(t *testing.T) {
	store := alloc.NewMockAllocator(1 << 16)
	l := New(store, 4, keyHash)

	var handles []item.Handle
	for i := 0; i < 20; i++ {
		h := store.Put(0, 0, []byte(fmt.Sprintf("key%d", i)), 64)
		l.Add(h)
		handles = append(handles, h)
	}

	tail := l.GetCandidateForTest()
	l.RecordAccess(tail)
	fmt.Printf("marked tail handle %d accessed before eviction scan\n", tail)

	cand, ok := l.GetEvictionCandidate()
	assert.True(t, ok)
	assert.NotEqual(t, tail, cand.Handle, "accessed tail item must be promoted, not evicted")
	assert.True(t, store.Get(tail).IsMain())
}

// TestHistoryAdmitsReaddedKeyToMain covers the "History admit" scenario:
// once a probationary item is evicted its key hash lands in the ghost
// history, so re-adding the same key admits straight to M.
func TestHistoryAdmitsReaddedKeyToMain(t *testing.T) {
	store := alloc.NewMockAllocator(1 << 16)
	l := New(store, 4, keyHash)

	key := []byte("hot-key")
	h1 := store.Put(0, 0, key, 64)
	l.Add(h1)

	cand, ok := l.GetEvictionCandidate()
	assert.True(t, ok)
	assert.Equal(t, h1, cand.Handle)
	assert.True(t, cand.FromProb)
	l.Remove(h1)

	h2 := store.Put(0, 0, key, 64)
	l.Add(h2)
	fmt.Printf("re-added key %q as handle %d: probationary=%v main=%v\n", key, h2, store.Get(h2).IsProbationary(), store.Get(h2).IsMain())
	assert.True(t, store.Get(h2).IsMain())
	assert.False(t, store.Get(h2).IsProbationary())
}

func TestClassifyTailPositions(t *testing.T) {
	store := alloc.NewMockAllocator(1 << 16)
	l := New(store, 4, keyHash)

	h1 := store.Put(0, 0, []byte("a"), 8)
	h2 := store.Put(0, 0, []byte("b"), 8)
	h3 := store.Put(0, 0, []byte("c"), 8)
	l.Add(h1)
	l.Add(h2)
	l.Add(h3)

	pos, fromProb := l.Classify(h1)
	assert.Equal(t, Tail, pos)
	assert.True(t, fromProb)

	pos, _ = l.Classify(h2)
	assert.Equal(t, SecondLastTail, pos)

	pos, _ = l.Classify(h3)
	assert.Equal(t, NotTail, pos)
}

func TestSaveLoadState(t *testing.T) {
	store := alloc.NewMockAllocator(1 << 16)
	l := New(store, 4, keyHash)
	for i := 0; i < 5; i++ {
		h := store.Put(0, 0, []byte(fmt.Sprintf("key%d", i)), 8)
		l.Add(h)
	}
	s := l.SaveState()

	l2 := New(store, 4, keyHash)
	l2.LoadState(s)
	assert.Equal(t, l.Size(), l2.Size())
}

// GetCandidateForTest exposes the current tail of whichever queue
// GetEvictionCandidate would inspect first, without consuming it, so
// tests can set up the Accessed bit before triggering a real scan.
func (l *List) GetCandidateForTest() item.Handle {
	if float64(l.p.Size()) > float64(l.Size())*pRatio {
		return l.p.GetTail()
	}
	return l.m.GetTail()
}
