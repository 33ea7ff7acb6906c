// Package item defines the handle-addressed item type that dlist, afht,
// s3fifo and mm operate on. Items are owned and allocated by the allocator
// (out of scope here); this package only defines the shape the core needs
// to reference and flag them, plus a minimal in-memory Store used by tests
// and the mock allocator.
package item

import "sync/atomic"

// Handle is a non-owning reference to an item, valid only through the
// Store that produced it. The zero Handle is reserved as "no item".
type Handle uint32

// NullHandle is the reserved "no item" handle, returned by DList.GetTail
// and S3FifoList eviction candidates when a list is empty.
const NullHandle Handle = 0

// Flags are the MM bits packed into a single atomic word per item, so
// Accessed can be set by a reader holding no lock while Probationary/Main/
// InContainer stay consistent under the container's mutex.
type Flags uint32

const (
	// FlagAccessed marks the item as touched since it was last considered
	// for promotion or eviction. Set by record_access without the
	// container mutex; cleared by the MM logic under the mutex.
	FlagAccessed Flags = 1 << iota
	// FlagProbationary marks the item as currently linked into the
	// probationary (small) FIFO.
	FlagProbationary
	// FlagMain marks the item as currently linked into the main FIFO.
	FlagMain
	// FlagInContainer marks the item as currently tracked by an
	// MMContainer at all (neither flag nor neither-of-P/M is ambiguous
	// without this: ghost entries in the history table are not "in
	// container").
	FlagInContainer
	// FlagTail marks the item as currently at (or adjacent to) the tail
	// of whichever list holds it, for tail-hit accounting.
	FlagTail
)

// hook is the intrusive doubly-linked-list linkage, spliced in place by
// whichever DList currently owns the item. An item is linked into at most
// one DList at a time (probationary xor main), so one hook suffices.
type hook struct {
	prev Handle
	next Handle
}

// Item is a cache entry as seen by the eviction/admission core. The key
// bytes live in an arena owned by the allocator; Item only stores the
// offset/size pair, mirroring how a real slab allocator embeds keys next
// to the item header instead of boxing them separately.
type Item struct {
	keyOffset uint32
	keySize   uint32
	keyBytes  func(offset, size uint32) []byte

	// Size is the allocation size in bytes.
	Size uint32
	// ClassID identifies the allocation class / pool this item lives in.
	ClassID int32

	flags atomic.Uint32
	hook  hook
}

// NewItem constructs an Item whose Key() resolves through keyBytes, the
// allocator's arena-lookup function. Passing a plain slice-backed lookup
// (as the mock allocator does) makes this usable without a real arena too.
func NewItem(keyOffset, keySize uint32, keyBytes func(offset, size uint32) []byte, size uint32, classID int32) *Item {
	return &Item{
		keyOffset: keyOffset,
		keySize:   keySize,
		keyBytes:  keyBytes,
		Size:      size,
		ClassID:   classID,
	}
}

// Key returns the item's key bytes, resolved lazily through the
// allocator-supplied lookup rather than stored directly on the item.
func (it *Item) Key() []byte {
	return it.keyBytes(it.keyOffset, it.keySize)
}

func (it *Item) setFlag(f Flags)   { it.flags.Or(uint32(f)) }
func (it *Item) clearFlag(f Flags) { it.flags.And(^uint32(f)) }
func (it *Item) hasFlag(f Flags) bool {
	return it.flags.Load()&uint32(f) != 0
}

// MarkAccessed sets the accessed bit; safe to call without the container
// mutex since record_access is the hot, lock-free-ish path.
func (it *Item) MarkAccessed() { it.setFlag(FlagAccessed) }

// UnmarkAccessed clears the accessed bit, done by the MM logic once the
// bit has been observed and acted on.
func (it *Item) UnmarkAccessed() { it.clearFlag(FlagAccessed) }

// IsAccessed reports whether the accessed bit is set.
func (it *Item) IsAccessed() bool { return it.hasFlag(FlagAccessed) }

// MarkProbationary marks the item as linked into the probationary FIFO.
func (it *Item) MarkProbationary() { it.setFlag(FlagProbationary) }

// UnmarkProbationary clears the probationary bit, done when the item
// leaves the probationary FIFO (promotion, removal, or eviction).
func (it *Item) UnmarkProbationary() { it.clearFlag(FlagProbationary) }

// IsProbationary reports whether the item is linked into the
// probationary FIFO.
func (it *Item) IsProbationary() bool { return it.hasFlag(FlagProbationary) }

// MarkMain marks the item as linked into the main FIFO.
func (it *Item) MarkMain() { it.setFlag(FlagMain) }

// UnmarkMain clears the main bit, done when the item leaves the main
// FIFO (removal or eviction).
func (it *Item) UnmarkMain() { it.clearFlag(FlagMain) }

// IsMain reports whether the item is linked into the main FIFO.
func (it *Item) IsMain() bool { return it.hasFlag(FlagMain) }

// MarkInContainer marks the item as tracked by an MMContainer, as opposed
// to merely appearing as a ghost entry in the admission history.
func (it *Item) MarkInContainer() { it.setFlag(FlagInContainer) }

// UnmarkInContainer clears the in-container bit.
func (it *Item) UnmarkInContainer() { it.clearFlag(FlagInContainer) }

// IsInContainer reports whether the item is tracked by an MMContainer.
func (it *Item) IsInContainer() bool { return it.hasFlag(FlagInContainer) }

// MarkTail marks the item as tail-adjacent, for tail-hit accounting.
func (it *Item) MarkTail() { it.setFlag(FlagTail) }

// UnmarkTail clears the tail-adjacent bit.
func (it *Item) UnmarkTail() { it.clearFlag(FlagTail) }

// IsTail reports whether the item is currently tail-adjacent.
func (it *Item) IsTail() bool { return it.hasFlag(FlagTail) }

// PrevHandle returns the handle linked before this item in whichever
// DList currently owns it.
func (it *Item) PrevHandle() Handle { return it.hook.prev }

// NextHandle returns the handle linked after this item in whichever
// DList currently owns it.
func (it *Item) NextHandle() Handle { return it.hook.next }

// SetPrevHandle splices in a new previous-link; used only by dlist.
func (it *Item) SetPrevHandle(h Handle) { it.hook.prev = h }

// SetNextHandle splices in a new next-link; used only by dlist.
func (it *Item) SetNextHandle(h Handle) { it.hook.next = h }

// Store resolves handles to items, the minimal contract the core needs
// from whatever owns item storage (normally the allocator).
type Store interface {
	Get(h Handle) *Item
}
