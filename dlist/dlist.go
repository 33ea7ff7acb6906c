// Package dlist implements the intrusive doubly-linked list S3FifoList
// builds its probationary and main queues from. The list itself holds no
// item storage: it links item.Handle values whose hook fields live on
// the item, resolved through an item.Store, the way the teacher's
// skiplist threads nodes through offsets into a shared arena instead of
// owning pointers directly.
package dlist

import (
	"github.com/Zaire404/cachecore/item"
	"github.com/negrel/assert"
)

// DList is an intrusive doubly-linked list of items: head, tail, and
// size, with O(1) link-at-head, remove and tail access. Callers must
// hold whatever lock protects the owning container; DList does no
// locking of its own.
type DList struct {
	store item.Store
	head  item.Handle
	tail  item.Handle
	size  int
}

// New constructs an empty DList backed by store for handle resolution.
func New(store item.Store) *DList {
	return &DList{store: store}
}

func (l *DList) checkInvariant() {
	assert.Truef((l.head == item.NullHandle) == (l.size == 0), "dlist: head/size mismatch")
	assert.Truef((l.tail == item.NullHandle) == (l.size == 0), "dlist: tail/size mismatch")
}

// Size returns the number of linked items.
func (l *DList) Size() int { return l.size }

// GetTail returns the handle at the tail of the list, or item.NullHandle
// if the list is empty.
func (l *DList) GetTail() item.Handle { return l.tail }

// GetHead returns the handle at the head of the list, or item.NullHandle
// if the list is empty.
func (l *DList) GetHead() item.Handle { return l.head }

// GetPrev returns the handle linked before h, or item.NullHandle if h is
// the head.
func (l *DList) GetPrev(h item.Handle) item.Handle {
	it := l.store.Get(h)
	assert.Truef(it != nil, "dlist: GetPrev on unresolved handle")
	return it.PrevHandle()
}

// GetNext returns the handle linked after h, or item.NullHandle if h is
// the tail.
func (l *DList) GetNext(h item.Handle) item.Handle {
	it := l.store.Get(h)
	assert.Truef(it != nil, "dlist: GetNext on unresolved handle")
	return it.NextHandle()
}

// LinkAtHead splices h in at the head of the list. h must not already be
// linked into this or any other list.
func (l *DList) LinkAtHead(h item.Handle) {
	assert.Truef(h != item.NullHandle, "dlist: LinkAtHead of null handle")
	it := l.store.Get(h)
	assert.Truef(it != nil, "dlist: LinkAtHead on unresolved handle")

	it.SetPrevHandle(item.NullHandle)
	it.SetNextHandle(l.head)
	if l.head != item.NullHandle {
		head := l.store.Get(l.head)
		head.SetPrevHandle(h)
	}
	l.head = h
	if l.tail == item.NullHandle {
		l.tail = h
	}
	l.size++
	l.checkInvariant()
}

// Remove unlinks h from the list. h must currently be linked here.
func (l *DList) Remove(h item.Handle) {
	assert.Truef(h != item.NullHandle, "dlist: Remove of null handle")
	it := l.store.Get(h)
	assert.Truef(it != nil, "dlist: Remove on unresolved handle")

	prev, next := it.PrevHandle(), it.NextHandle()
	if prev != item.NullHandle {
		l.store.Get(prev).SetNextHandle(next)
	} else {
		assert.Truef(l.head == h, "dlist: Remove of non-head item with no prev")
		l.head = next
	}
	if next != item.NullHandle {
		l.store.Get(next).SetPrevHandle(prev)
	} else {
		assert.Truef(l.tail == h, "dlist: Remove of non-tail item with no next")
		l.tail = prev
	}
	it.SetPrevHandle(item.NullHandle)
	it.SetNextHandle(item.NullHandle)
	l.size--
	l.checkInvariant()
}

// Replace splices newH into the position occupied by oldH. oldH must
// currently be linked here; newH must not be linked anywhere.
func (l *DList) Replace(oldH, newH item.Handle) {
	assert.Truef(oldH != item.NullHandle && newH != item.NullHandle, "dlist: Replace with a null handle")
	oldIt := l.store.Get(oldH)
	newIt := l.store.Get(newH)
	assert.Truef(oldIt != nil, "dlist: Replace on unresolved old handle")
	assert.Truef(newIt != nil, "dlist: Replace on unresolved new handle")

	prev, next := oldIt.PrevHandle(), oldIt.NextHandle()
	newIt.SetPrevHandle(prev)
	newIt.SetNextHandle(next)

	if prev != item.NullHandle {
		l.store.Get(prev).SetNextHandle(newH)
	} else {
		l.head = newH
	}
	if next != item.NullHandle {
		l.store.Get(next).SetPrevHandle(newH)
	} else {
		l.tail = newH
	}
	oldIt.SetPrevHandle(item.NullHandle)
	oldIt.SetNextHandle(item.NullHandle)
}

// MoveToHead relinks an already-linked h to the head of the list by
// removing it and linking it at the head, used by the eviction scan to
// recycle an accessed main-queue item. It does nothing if h is already
// the head.
func (l *DList) MoveToHead(h item.Handle) {
	if l.head == h {
		return
	}
	l.Remove(h)
	l.LinkAtHead(h)
}

// State is DList's serializable shape: head/tail handles and size, the
// wire-format subset spec.md §6 leaves to the implementer.
type State struct {
	Head item.Handle
	Tail item.Handle
	Size int
}

// SaveState snapshots the list's linkage for persistence.
func (l *DList) SaveState() State {
	return State{Head: l.head, Tail: l.tail, Size: l.size}
}

// LoadState restores a previously saved linkage. The caller is
// responsible for having already restored the items' hook fields
// through the same Store.
func (l *DList) LoadState(s State) {
	l.head, l.tail, l.size = s.Head, s.Tail, s.Size
	l.checkInvariant()
}
