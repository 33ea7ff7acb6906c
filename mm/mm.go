// Package mm implements MMContainer: the mutex-guarded wrapper around an
// s3fifo.List that request threads call into for add/remove/replace and
// access recording, and the rebalancer/eviction path calls into for
// candidate selection.
package mm

import (
	"sync"
	"time"

	"github.com/Zaire404/cachecore/cacheerror"
	"github.com/Zaire404/cachecore/item"
	"github.com/Zaire404/cachecore/s3fifo"
)

// AccessMode distinguishes a read touch from a write touch, since
// update_on_read and update_on_write are configured independently.
type AccessMode int

const (
	Read AccessMode = iota
	Write
)

// Config holds MMContainer's reconfigurable knobs.
type Config struct {
	UpdateOnRead                 bool
	UpdateOnWrite                bool
	MMReconfigureIntervalSecs    int
	TryLockUpdate                bool
	UseCombinedLockForIterators  bool
}

// DefaultConfig matches the defaults set in config.setDefaults.
func DefaultConfig() Config {
	return Config{
		UpdateOnRead:                true,
		UpdateOnWrite:               true,
		MMReconfigureIntervalSecs:   0,
		TryLockUpdate:               false,
		UseCombinedLockForIterators: false,
	}
}

// Stats is a point-in-time snapshot of this container's access
// breakdown, shaped to fold into alloc.ContainerStat for the class this
// container belongs to.
type Stats struct {
	NumHitsToggle             uint64
	NumTailAccesses           uint64
	NumSecondLastTailAccesses uint64
	NumColdAccesses           uint64
	NumWarmAccesses           uint64
	NumHotAccesses            uint64
	Size                      int
	SizeProbationary          int
	SizeMain                  int
}

// Container wraps an s3fifo.List under a single mutex, the stand-in for
// the distributed/combined mutex region the source uses: the contract
// only requires serialization, and spec.md explicitly allows a plain
// mutex or reader lock here.
type Container struct {
	mu sync.Mutex

	list *s3fifo.List

	cfg               Config
	nextReconfigureAt time.Time

	stats Stats
}

// New constructs a container over store, sized with the given history
// tail-size hint and key-hash function (nil picks util.Hash32 inside
// s3fifo.New).
func New(store item.Store, tailSize uint32, keyHash func([]byte) uint32, cfg Config) *Container {
	return &Container{
		list: s3fifo.New(store, tailSize, keyHash),
		cfg:  cfg,
	}
}

// Add links h into the container. Returns ErrAlreadyInContainer if h is
// already tracked.
func (c *Container) Add(h item.Handle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addLocked(h)
}

func (c *Container) addLocked(h item.Handle) error {
	it := c.list.Store().Get(h)
	if it.IsInContainer() {
		return cacheerror.ErrAlreadyInContainer
	}
	c.list.Add(h)
	return nil
}

// Remove unlinks h from the container. Returns ErrNotInContainer if h is
// not currently tracked.
func (c *Container) Remove(h item.Handle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeLocked(h)
}

func (c *Container) removeLocked(h item.Handle) error {
	it := c.list.Store().Get(h)
	if !it.IsInContainer() {
		return cacheerror.ErrNotInContainer
	}
	c.list.Remove(h)
	return nil
}

// Replace is defensively disabled, matching the source's abort-on-replace
// path: callers must remove the old handle and add the new one instead.
func (c *Container) Replace(oldH, newH item.Handle) error {
	return cacheerror.ErrReplaceUnsupported
}

// RecordAccess records a touch on h under mode. Returns false without
// effect if the relevant update_on_read/write knob is disabled, or if h
// is not currently tracked, or if the item was already marked Accessed
// since the last scan (the toggle counter only counts 0→1 transitions).
func (c *Container) RecordAccess(h item.Handle, mode AccessMode) bool {
	if mode == Read && !c.cfg.UpdateOnRead {
		return false
	}
	if mode == Write && !c.cfg.UpdateOnWrite {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	it := c.list.Store().Get(h)
	if !it.IsInContainer() {
		return false
	}
	if it.IsAccessed() {
		return false
	}

	c.list.RecordAccess(h)
	c.stats.NumHitsToggle++

	pos, fromProb := c.list.Classify(h)
	switch {
	case fromProb:
		c.stats.NumColdAccesses++
	case pos == s3fifo.Tail:
		c.stats.NumHotAccesses++
	case pos == s3fifo.SecondLastTail:
		c.stats.NumWarmAccesses++
	default:
		c.stats.NumWarmAccesses++
	}
	switch pos {
	case s3fifo.Tail:
		c.stats.NumTailAccesses++
		it.MarkTail()
	case s3fifo.SecondLastTail:
		c.stats.NumSecondLastTailAccesses++
		it.MarkTail()
	default:
		it.UnmarkTail()
	}
	return true
}

// EvictionIterator walks eviction candidates while holding the
// container's mutex for its entire lifetime, matching
// use_combined_lock_for_iterators' intent even though this
// implementation always takes a plain mutex.
type EvictionIterator struct {
	c   *Container
	cur s3fifo.Candidate
	ok  bool
}

// GetEvictionIterator acquires the container's mutex and positions the
// iterator on the first eviction candidate, if any.
func (c *Container) GetEvictionIterator() *EvictionIterator {
	c.mu.Lock()
	it := &EvictionIterator{c: c}
	it.cur, it.ok = c.list.GetEvictionCandidate()
	return it
}

// Valid reports whether the iterator is positioned on a candidate.
func (it *EvictionIterator) Valid() bool { return it.ok }

// Handle returns the current candidate's handle. Only valid when Valid()
// is true.
func (it *EvictionIterator) Handle() item.Handle { return it.cur.Handle }

// FromProbationary reports whether the current candidate came from the
// probationary queue.
func (it *EvictionIterator) FromProbationary() bool { return it.cur.FromProb }

// RemoveCurrent removes the current candidate from the container (and,
// if it came from probationary, records it in the ghost history) and
// advances to the next candidate.
func (it *EvictionIterator) RemoveCurrent() {
	it.c.list.Remove(it.cur.Handle)
	it.cur, it.ok = it.c.list.GetEvictionCandidate()
}

// Close releases the container's mutex. Callers must always Close an
// iterator they obtained from GetEvictionIterator.
func (it *EvictionIterator) Close() {
	it.c.mu.Unlock()
}

// GetStats returns a snapshot of the container's access breakdown.
func (c *Container) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Size = c.list.Size()
	s.SizeProbationary = c.list.SizeProbationary()
	s.SizeMain = c.list.SizeMain()
	return s
}

// GetConfig returns the container's current configuration.
func (c *Container) GetConfig() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// SetConfig updates the container's configuration and schedules the next
// reconfigure deadline; no list restructuring happens as a result.
func (c *Container) SetConfig(cfg Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = cfg
	if cfg.MMReconfigureIntervalSecs > 0 {
		c.nextReconfigureAt = time.Now().Add(time.Duration(cfg.MMReconfigureIntervalSecs) * time.Second)
	}
}

// DueForReconfigure reports whether the configured reconfigure interval
// has elapsed since the last SetConfig call.
func (c *Container) DueForReconfigure() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cfg.MMReconfigureIntervalSecs == 0 {
		return false
	}
	return !c.nextReconfigureAt.IsZero() && time.Now().After(c.nextReconfigureAt)
}

// State is Container's serializable shape: config plus the s3fifo
// list's two-queue linkage.
type State struct {
	Config    Config
	S3FifoState s3fifo.State
}

// SaveState snapshots the container for persistence.
func (c *Container) SaveState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{Config: c.cfg, S3FifoState: c.list.SaveState()}
}

// LoadState restores a previously saved container. Items' hook and flag
// fields must already be restored through the same Store.
func (c *Container) LoadState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = s.Config
	c.list.LoadState(s.S3FifoState)
}
