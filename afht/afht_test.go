package afht

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInsertThenContainsHits(t *testing.T) {
	table := New(8)
	for i := uint32(1); i <= 4; i++ {
		ts := table.Insert(i)
		fmt.Printf("insert key=%d at logical time=%d\n", i, ts)
	}
	for i := uint32(1); i <= 4; i++ {
		assert.True(t, table.Contains(i), "key %d should still be within the fifo window", i)
	}
	assert.Equal(t, uint32(4), table.NumInserts())
}

func TestContainsConsumesSlotOnHit(t *testing.T) {
	table := New(8)
	table.Insert(42)
	assert.True(t, table.Contains(42))
	// Second lookup misses: the slot was freed by the first hit.
	assert.False(t, table.Contains(42))
}

func TestEntriesExpireOutsideFifoWindow(t *testing.T) {
	table := New(8)
	rounded := table.FifoSize()
	fmt.Printf("history fifo_size rounded to %d\n", rounded)

	table.Insert(1)
	// Insert enough distinct keys to push the logical clock well past the
	// window without colliding into key 1's own bucket slot.
	for i := uint32(2); i < rounded+10; i++ {
		table.Insert(i)
	}
	assert.False(t, table.Contains(1), "key 1 should have expired out of the fifo window")
}

func TestResizeRehashesLiveEntries(t *testing.T) {
	table := New(8)
	table.Insert(100)
	table.Insert(200)

	table.Resize(32)
	assert.Equal(t, roundFifoSize(32), table.FifoSize())
	assert.True(t, table.Contains(100))
	assert.True(t, table.Contains(200))
}

func TestForcedOverwriteCountsAsEviction(t *testing.T) {
	table := New(8)
	numElem := roundFifoSize(8) * loadFactorInv
	// All keys sharing one bucket home index overflow its 8 slots and
	// force an overwrite, bumping NumEvicts. Keys start at numElem, not 0:
	// key 0 inserted at logical time 0 packs to the empty slot value.
	for i := uint32(1); i <= nItemPerBucket+1; i++ {
		table.Insert(i * numElem)
	}
	assert.True(t, table.NumEvicts() > 0)
}
