// Package afht implements the atomic FIFO hash table: S3-FIFO's ghost
// history of recently evicted keys. Inserts and lookups are wait-free on
// the fast path; only Resize takes a mutex.
package afht

import (
	"sync"
	"sync/atomic"

	uatomic "go.uber.org/atomic"
)

const (
	nItemPerBucket  = 8
	loadFactorInv   = 2
	bucketAlignMask = ^uint32(nItemPerBucket - 1)
)

// roundFifoSize rounds up to the next multiple of 8, matching the
// source's ((n>>3)+1)<<3 rounding (always rounds up, even on an exact
// multiple, preserving at least one spare bucket row).
func roundFifoSize(n uint32) uint32 {
	return ((n >> 3) + 1) << 3
}

// table is the swappable backing store for a Table: the slot array plus
// the sizing it was built for. Resize builds a new one and swaps the
// pointer; readers in flight keep using the table they loaded.
type table struct {
	fifoSize uint32
	numElem  uint32
	slots    []uatomic.Uint64
}

// Table is the atomic FIFO hash table. Slots pack a 32-bit key
// fingerprint in the low bits and a 32-bit logical insertion time in the
// high bits; a zero slot is empty.
type Table struct {
	mu  sync.Mutex // guards Resize only; Insert/Contains never take it
	cur atomic.Pointer[table]

	numInserts uatomic.Uint32
	numEvicts  uatomic.Uint32
}

// New constructs a table sized for fifoSize logical insertion slots.
func New(fifoSize uint32) *Table {
	t := &Table{}
	t.cur.Store(buildTable(fifoSize, nil, 0))
	return t
}

// FifoSize returns the table's current logical expiry window.
func (t *Table) FifoSize() uint32 {
	return t.cur.Load().fifoSize
}

func packSlot(key uint32, insertTime uint32) uint64 {
	return uint64(key) | uint64(insertTime)<<32
}

func unpackSlot(slot uint64) (key uint32, insertTime uint32) {
	return uint32(slot), uint32(slot >> 32)
}

func bucketIndex(key, numElem uint32) uint32 {
	return (key % numElem) & bucketAlignMask
}

// Insert records key as evicted at the current logical time, returning
// that time. It scans the key's 8-slot bucket for an empty slot; if none
// is free it forcibly overwrites the bucket's home slot and counts an
// internal eviction from the history itself.
func (t *Table) Insert(key uint32) uint32 {
	now := t.numInserts.Inc() - 1
	if now == ^uint32(0) {
		// The counter is one increment from overflowing UINT32_MAX;
		// reset it to 0 and use 0 as "now" for this insert, matching
		// the source's wraparound behavior.
		t.numInserts.Store(0)
		now = 0
	}

	tb := t.cur.Load()
	base := bucketIndex(key, tb.numElem)

	for i := uint32(0); i < nItemPerBucket; i++ {
		idx := base + i
		if tb.slots[idx].Load() != 0 {
			continue
		}
		if tb.slots[idx].CAS(0, packSlot(key, now)) {
			return now
		}
	}

	// No empty slot: force-overwrite the key's own home slot.
	homeIdx := key % tb.numElem
	tb.slots[homeIdx].Store(packSlot(key, now))
	t.numEvicts.Inc()
	return now
}

// Contains reports whether key was inserted within the last fifoSize
// logical ticks, consuming the slot on a hit (S3-FIFO only needs to
// know about the *next* admission, so a one-shot hit is sufficient and
// frees the slot immediately). Expired slots encountered along the way
// are best-effort zeroed.
func (t *Table) Contains(key uint32) bool {
	now := t.numInserts.Load()
	tb := t.cur.Load()
	base := bucketIndex(key, tb.numElem)

	found := false
	for i := uint32(0); i < nItemPerBucket; i++ {
		idx := base + i
		slot := tb.slots[idx].Load()
		if slot == 0 {
			continue
		}
		k, insertTime := unpackSlot(slot)
		age := now - insertTime // unsigned subtraction, matches the source's wraparound semantics
		if age > tb.fifoSize {
			tb.slots[idx].CAS(slot, 0)
			continue
		}
		if k == key {
			tb.slots[idx].CAS(slot, 0)
			found = true
		}
	}
	return found
}

// Resize reallocates the table for a new logical window, rehashing only
// still-live entries from the old table.
func (t *Table) Resize(newFifoSize uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()

	old := t.cur.Load()
	now := t.numInserts.Load()
	t.cur.Store(buildTable(newFifoSize, old, now))
}

// buildTable allocates a fresh table sized for fifoSize and, if old is
// non-nil, rehashes its still-live entries (as of logical time now) into
// the first available slot of their new bucket.
func buildTable(fifoSize uint32, old *table, now uint32) *table {
	rounded := roundFifoSize(fifoSize)
	numElem := rounded * loadFactorInv
	nb := &table{
		fifoSize: rounded,
		numElem:  numElem,
		slots:    make([]uatomic.Uint64, numElem+nItemPerBucket), // padded so the last bucket never overruns
	}

	if old != nil {
		for i := range old.slots {
			slot := old.slots[i].Load()
			if slot == 0 {
				continue
			}
			k, insertTime := unpackSlot(slot)
			if now-insertTime > old.fifoSize {
				continue
			}
			base := bucketIndex(k, numElem)
			for j := uint32(0); j < nItemPerBucket; j++ {
				if nb.slots[base+j].CAS(0, slot) {
					break
				}
			}
		}
	}
	return nb
}

// NumInserts returns the monotonic (wrapping) insert counter.
func (t *Table) NumInserts() uint32 { return t.numInserts.Load() }

// NumEvicts returns the count of forced bucket overwrites.
func (t *Table) NumEvicts() uint32 { return t.numEvicts.Load() }
