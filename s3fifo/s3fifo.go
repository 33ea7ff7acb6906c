// Package s3fifo implements the S3-FIFO admission and eviction policy:
// two DLists (probationary and main) plus a ghost-history table that
// lets a re-admitted key skip straight to main.
package s3fifo

import (
	"github.com/Zaire404/cachecore/afht"
	"github.com/Zaire404/cachecore/dlist"
	"github.com/Zaire404/cachecore/item"
	"github.com/Zaire404/cachecore/util"
	"github.com/negrel/assert"
)

// pRatio is the fixed probationary/total ratio: P is kept small so the
// main queue, populated only by items proven worth keeping, dominates.
const pRatio = 0.05

// maxRecycles bounds the eviction-candidate scan's clock-style recycle
// loop. Exceeding it means size()>0 but both tails resolve to nothing
// useful repeatedly, an invariant violation rather than a slow cache.
const maxRecycles = 1 << 20

// List is S3-FIFO's two-queue admission/eviction engine. It holds no
// mutex of its own: the owning MMContainer serializes all calls.
type List struct {
	store item.Store

	p *dlist.DList
	m *dlist.DList

	history     *afht.Table
	doorkeeper  *afht.BloomFilter
	tailSize    uint32
	keyHash     func([]byte) uint32
}

// New constructs an empty S3-FIFO list. tailSize is the hysteresis band
// used to decide when the ghost history needs resizing; keyHash fingers
// item keys into the 32-bit space the history table operates on.
func New(store item.Store, tailSize uint32, keyHash func([]byte) uint32) *List {
	if keyHash == nil {
		keyHash = util.Hash32
	}
	return &List{
		store:    store,
		p:        dlist.New(store),
		m:        dlist.New(store),
		tailSize: tailSize,
		keyHash:  keyHash,
	}
}

// Store returns the item.Store this list resolves handles through.
func (l *List) Store() item.Store { return l.store }

// SizeProbationary returns |P|.
func (l *List) SizeProbationary() int { return l.p.Size() }

// SizeMain returns |M|.
func (l *List) SizeMain() int { return l.m.Size() }

// Size returns |P| + |M|.
func (l *List) Size() int { return l.p.Size() + l.m.Size() }

func (l *List) get(h item.Handle) *item.Item {
	it := l.store.Get(h)
	assert.Truef(it != nil, "s3fifo: unresolved handle")
	return it
}

// Add links a newly-admitted item. If the ghost history remembers this
// key (it was evicted from P before), the item is admitted straight to
// M; otherwise it starts in P. The item's Accessed bit is left unset.
func (l *List) Add(h item.Handle) {
	it := l.get(h)
	hash := l.keyHash(it.Key())

	admitToMain := false
	if l.history != nil {
		// A doorkeeper miss means this key has never been seen, so it
		// cannot possibly be in the ghost history: skip the table probe.
		if l.doorkeeper == nil || l.doorkeeper.Allow(hash) {
			admitToMain = l.history.Contains(hash)
		}
	}

	if admitToMain {
		it.MarkMain()
		it.UnmarkProbationary()
		l.m.LinkAtHead(h)
	} else {
		it.MarkProbationary()
		it.UnmarkMain()
		l.p.LinkAtHead(h)
	}
	it.MarkInContainer()
}

// RecordAccess sets the item's Accessed bit. Promotion out of P happens
// lazily the next time the eviction scan passes over the item.
func (l *List) RecordAccess(h item.Handle) {
	l.get(h).MarkAccessed()
}

// Remove unlinks an item that is leaving the container for a reason
// other than eviction (e.g. an explicit delete). If it was in P, its key
// is recorded in the ghost history so a later re-add can admit straight
// to M, matching what an actual eviction from P would have done.
func (l *List) Remove(h item.Handle) {
	it := l.get(h)
	if it.IsMain() {
		l.m.Remove(h)
		it.UnmarkMain()
	} else {
		if l.history != nil {
			hash := l.keyHash(it.Key())
			l.history.Insert(hash)
			if l.doorkeeper != nil {
				// Record the key so Add's doorkeeper check lets a re-add
				// through to the history probe.
				l.doorkeeper.Allow(hash)
			}
		}
		l.p.Remove(h)
		it.UnmarkProbationary()
	}
	it.UnmarkInContainer()
}

// Candidate is the result of a GetEvictionCandidate scan.
type Candidate struct {
	Handle     item.Handle
	FromProb   bool
}

// ensureHistory lazily sizes the ghost history to half the list's
// current total size the first time an eviction candidate is needed,
// and keeps it resized within tailSize of that target thereafter.
func (l *List) ensureHistory() {
	target := uint32(l.Size() / 2)
	if target == 0 {
		target = 1
	}
	if l.history == nil {
		l.history = afht.New(target)
		l.doorkeeper = afht.NewBloomFilter(int(target)*2, 0.01)
		return
	}
	cur := l.history.FifoSize()
	var diff uint32
	if target > cur {
		diff = target - cur
	} else {
		diff = cur - target
	}
	if diff >= l.tailSize {
		l.history.Resize(target)
	}
}

// GetEvictionCandidate returns the next item S3-FIFO would evict,
// without removing it: the tail of P if P holds more than pRatio of the
// combined size, else the tail of M. Accessed items encountered along
// the way are promoted (from P) or recycled to the head (in M) instead
// of being evicted, per S3-FIFO's lazy-promotion rule. Returns ok=false
// if both lists are empty.
//
// The caller is responsible for calling Remove once it actually evicts
// the item; Remove records a probationary item's key hash in the ghost
// history. GetEvictionCandidate itself inserts nothing into history.
func (l *List) GetEvictionCandidate() (Candidate, bool) {
	if l.Size() == 0 {
		return Candidate{}, false
	}
	l.ensureHistory()

	for recycles := 0; recycles < maxRecycles; recycles++ {
		useP := float64(l.p.Size()) > float64(l.Size())*pRatio

		var curr item.Handle
		if useP {
			curr = l.p.GetTail()
		} else {
			curr = l.m.GetTail()
		}
		assert.Truef(curr != item.NullHandle, "s3fifo: non-empty list with null tail")

		it := l.get(curr)
		if useP {
			if it.IsAccessed() {
				it.UnmarkAccessed()
				it.UnmarkProbationary()
				it.MarkMain()
				l.p.Remove(curr)
				l.m.LinkAtHead(curr)
				continue
			}
			return Candidate{Handle: curr, FromProb: true}, true
		}

		if it.IsAccessed() {
			it.UnmarkAccessed()
			l.m.MoveToHead(curr)
			continue
		}
		return Candidate{Handle: curr, FromProb: false}, true
	}
	assert.Truef(false, "s3fifo: eviction candidate scan exceeded recycle bound")
	return Candidate{}, false
}

// TailPosition classifies h's distance from the tail of whichever list
// currently holds it, for MMContainer's tail-hit accounting.
type TailPosition int

const (
	// NotTail means h is neither the tail nor the item just before it.
	NotTail TailPosition = iota
	// Tail means h is the tail of its list.
	Tail
	// SecondLastTail means h is linked immediately before the tail.
	SecondLastTail
)

// Classify reports h's tail position and whether it is currently linked
// into the probationary queue (as opposed to main).
func (l *List) Classify(h item.Handle) (TailPosition, bool) {
	it := l.get(h)
	listTail := l.m.GetTail()
	dl := l.m
	if it.IsProbationary() {
		listTail = l.p.GetTail()
		dl = l.p
	}
	switch {
	case h == listTail:
		return Tail, it.IsProbationary()
	case listTail != item.NullHandle && dl.GetPrev(listTail) == h:
		return SecondLastTail, it.IsProbationary()
	default:
		return NotTail, it.IsProbationary()
	}
}

// State is List's serializable shape.
type State struct {
	P dlist.State
	M dlist.State
}

// SaveState snapshots the two queues' linkage.
func (l *List) SaveState() State {
	return State{P: l.p.SaveState(), M: l.m.SaveState()}
}

// LoadState restores the two queues' linkage. Items' hook fields must
// already be restored through the same Store.
func (l *List) LoadState(s State) {
	l.p.LoadState(s.P)
	l.m.LoadState(s.M)
}
