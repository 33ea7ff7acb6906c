// Package footprint implements footprint-based miss-ratio-curve
// estimation: a thread-safe circular buffer of (key, class) access
// records, the footprint fp(w) computation, derived per-class
// miss-ratio curves, and the dynamic-programming slab reallocation used
// by the LAMA rebalance strategy.
package footprint

import (
	"sort"
	"sync"

	"github.com/Zaire404/cachecore/alloc"
)

type entry struct {
	key   int64
	class alloc.ClassID
}

// MRC is the footprint-based miss-ratio-curve estimator. Feed is called
// from request threads; analysis runs over a snapshot copy taken under
// the buffer's mutex, never holding it during the O(n) sweep.
type MRC struct {
	mu       sync.Mutex
	buf      []entry
	head     int
	size     int
	capacity int
}

// New constructs an MRC with a circular buffer of the given capacity
// (cache.footprint_buffer_size).
func New(capacity int) *MRC {
	return &MRC{buf: make([]entry, capacity), capacity: capacity}
}

// Feed records one access to key in class cid.
func (f *MRC) Feed(key int64, cid alloc.ClassID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buf[f.head] = entry{key: key, class: cid}
	f.head = (f.head + 1) % f.capacity
	if f.size < f.capacity {
		f.size++
	}
}

// ResetWindowAnalysis clears the buffer without reallocating it.
func (f *MRC) ResetWindowAnalysis() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.size = 0
	f.head = 0
}

// snapshot copies the buffer's live entries in chronological order
// (oldest first) under the lock, then releases it.
func (f *MRC) snapshot() []entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]entry, f.size)
	start := (f.head - f.size + f.capacity) % f.capacity
	for i := 0; i < f.size; i++ {
		out[i] = f.buf[(start+i)%f.capacity]
	}
	return out
}

// classWindow is one class's analyzed window: its own 1..n access-count
// time axis, the footprint curve over that axis (fp[0]==0 by
// definition, fp[w] for w in [1,n]), and the reuse-time histogram used
// to derive it.
type classWindow struct {
	n    int
	fp   []float64 // length n+1
	hist []int     // length n
}

// calculateWindowStats analyzes a chronological snapshot into one
// classWindow per class, computing fp(w) for every w via an O(n) suffix
// sum sweep instead of the O(n^2) direct sum the formula implies.
func calculateWindowStats(snap []entry) map[alloc.ClassID]*classWindow {
	byClass := make(map[alloc.ClassID][]int64) // ordered keys per class, chronological
	for _, e := range snap {
		byClass[e.class] = append(byClass[e.class], e.key)
	}

	out := make(map[alloc.ClassID]*classWindow, len(byClass))
	for cid, keys := range byClass {
		out[cid] = calculateFpValues(keys)
	}
	return out
}

// calculateFpValues computes fp(w) for w in [1,n] for a single class's
// chronologically ordered access sequence, n = len(keys).
func calculateFpValues(keys []int64) *classWindow {
	n := len(keys)
	cw := &classWindow{n: n, fp: make([]float64, n+1), hist: make([]int, n)}
	if n == 0 {
		return cw
	}

	first := make(map[int64]int, n)
	last := make(map[int64]int, n)
	order := make([]int64, 0, n) // distinct keys in first-seen order

	for pos, k := range keys {
		t := pos + 1 // 1-indexed position
		if _, ok := first[k]; !ok {
			first[k] = t
			order = append(order, k)
		} else if prev, ok := last[k]; ok {
			gap := t - prev
			if gap >= 0 && gap < n {
				cw.hist[gap]++
			}
		}
		last[k] = t
	}
	m := len(order)

	firsts := make([]int, 0, m)
	revLasts := make([]int, 0, m)
	for _, k := range order {
		firsts = append(firsts, first[k])
		revLasts = append(revLasts, n+1-last[k])
	}
	sort.Ints(firsts)
	sort.Ints(revLasts)

	suffixSumFirsts := suffixSums(firsts)
	suffixSumRevLasts := suffixSums(revLasts)

	histCountSuffix := make([]int, n+1)   // histCountSuffix[w] = sum_{t=w}^{n-1} hist[t]
	histWeightedSuffix := make([]int, n+1) // sum_{t=w}^{n-1} t*hist[t]
	for t := n - 1; t >= 0; t-- {
		histCountSuffix[t] = histCountSuffix[t+1] + cw.hist[t]
		histWeightedSuffix[t] = histWeightedSuffix[t+1] + t*cw.hist[t]
	}

	idxF, idxL := 0, 0
	for w := 1; w <= n; w++ {
		for idxF < m && firsts[idxF] <= w {
			idxF++
		}
		fw := float64(suffixSumFirsts[idxF]-(m-idxF)*w)

		for idxL < m && revLasts[idxL] <= w {
			idxL++
		}
		lw := float64(suffixSumRevLasts[idxL] - (m-idxL)*w)

		var rw float64
		if w+1 <= n-1 {
			rw = float64(histWeightedSuffix[w+1] - w*histCountSuffix[w+1])
		}

		denom := float64(n - w + 1)
		cw.fp[w] = float64(m) - (fw+lw+rw)/denom
	}
	return cw
}

// suffixSums returns, for sorted ascending vals, suffix[i] = sum(vals[i:]).
func suffixSums(vals []int) []int {
	out := make([]int, len(vals)+1)
	for i := len(vals) - 1; i >= 0; i-- {
		out[i] = out[i+1] + vals[i]
	}
	return out
}

// missRatioCurve returns mrc[s] for s in [0, maxSlabCount], where mrc[0]
// is defined as 1 (zero capacity, everything misses).
func (cw *classWindow) missRatioCurve(allocsPerSlab uint32, maxSlabCount uint32) []float64 {
	mrc := make([]float64, maxSlabCount+1)
	mrc[0] = 1
	if cw.n == 0 {
		for s := uint32(1); s <= maxSlabCount; s++ {
			mrc[s] = 1
		}
		return mrc
	}
	for s := uint32(1); s <= maxSlabCount; s++ {
		threshold := float64(s) * float64(allocsPerSlab)
		var hits int
		for t := 0; t < cw.n; t++ {
			if cw.hist[t] == 0 {
				continue
			}
			fpt := 0.0
			if t >= 1 && t <= cw.n {
				fpt = cw.fp[t]
			}
			if fpt < threshold {
				hits += cw.hist[t]
			}
		}
		mr := 1 - float64(hits)/float64(cw.n)
		if mr < 0 {
			mr = 0
		}
		if mr > 1 {
			mr = 1
		}
		mrc[s] = mr
	}
	return mrc
}

// QueryResult is one class's miss-ratio curve up to maxSlabCount slabs,
// given its allocs-per-slab, plus the slab-to-slab improvement delta.
type QueryResult struct {
	MissRatio []float64 // index 0..maxSlabCount
	Delta     []float64 // Delta[s] = MissRatio[s-1]-MissRatio[s], Delta[0]==0
}

// QueryMRC analyzes the current buffer snapshot and returns a
// QueryResult per class present in allocsPerSlab.
func (f *MRC) QueryMRC(allocsPerSlab map[alloc.ClassID]uint32, maxSlabCount uint32) map[alloc.ClassID]QueryResult {
	windows := calculateWindowStats(f.snapshot())
	out := make(map[alloc.ClassID]QueryResult, len(allocsPerSlab))
	for cid, aps := range allocsPerSlab {
		cw, ok := windows[cid]
		if !ok {
			cw = &classWindow{}
		}
		mrc := cw.missRatioCurve(aps, maxSlabCount)
		delta := make([]float64, maxSlabCount+1)
		for s := uint32(1); s <= maxSlabCount; s++ {
			delta[s] = mrc[s-1] - mrc[s]
		}
		out[cid] = QueryResult{MissRatio: mrc, Delta: delta}
	}
	return out
}

// Move is one unit of slab reallocation from Victim to Receiver.
type Move struct {
	Victim   alloc.ClassID
	Receiver alloc.ClassID
}

// Plan is SolveSlabReallocation's result: the optimal per-class
// allocation, the moves needed to get there, and the old/new weighted
// miss rates.
type Plan struct {
	Optimal     map[alloc.ClassID]uint32
	Moves       []Move
	MissRateOld float64
	MissRateNew float64
}

// SolveSlabReallocation finds the slab assignment across classes that
// minimizes total (frequency-weighted) misses, holding the total slab
// count fixed, via the DP described for LAMA: F[i][j] = min over k of
// F[i-1][j-k] + cost[i][k].
func (f *MRC) SolveSlabReallocation(allocsPerSlab map[alloc.ClassID]uint32, current map[alloc.ClassID]uint32) Plan {
	classIDs := make([]alloc.ClassID, 0, len(current))
	for cid := range current {
		classIDs = append(classIDs, cid)
	}
	sort.Slice(classIDs, func(i, j int) bool { return classIDs[i] < classIDs[j] })

	var total uint32
	for _, cid := range classIDs {
		total += current[cid]
	}

	windows := calculateWindowStats(f.snapshot())
	freq := make([]float64, len(classIDs))
	cost := make([][]float64, len(classIDs))
	for i, cid := range classIDs {
		cw, ok := windows[cid]
		if !ok {
			cw = &classWindow{}
		}
		freq[i] = float64(cw.n)
		mrc := cw.missRatioCurve(allocsPerSlab[cid], total)
		cost[i] = make([]float64, total+1)
		for j := uint32(0); j <= total; j++ {
			cost[i][j] = freq[i] * mrc[j]
		}
	}

	numClasses := len(classIDs)
	const inf = 1e18
	F := make([][]float64, numClasses+1)
	B := make([][]int, numClasses+1)
	for i := range F {
		F[i] = make([]float64, total+1)
		B[i] = make([]int, total+1)
		for j := range F[i] {
			F[i][j] = inf
		}
	}
	F[0][0] = 0

	for i := 1; i <= numClasses; i++ {
		for j := uint32(0); j <= total; j++ {
			best := inf
			bestK := 0
			for k := uint32(0); k <= j; k++ {
				v := F[i-1][j-k] + cost[i-1][k]
				if v < best {
					best = v
					bestK = int(k)
				}
			}
			F[i][j] = best
			B[i][j] = bestK
		}
	}

	optimal := make(map[alloc.ClassID]uint32, numClasses)
	remaining := total
	for i := numClasses; i >= 1; i-- {
		k := B[i][remaining]
		optimal[classIDs[i-1]] = uint32(k)
		remaining -= uint32(k)
	}

	var sumFreq, oldMiss, newMiss float64
	for i, cid := range classIDs {
		sumFreq += freq[i]
		oldMiss += cost[i][current[cid]]
	}
	newMiss = F[numClasses][total]
	var mrOld, mrNew float64
	if sumFreq > 0 {
		mrOld = oldMiss / sumFreq
		mrNew = newMiss / sumFreq
	}

	return Plan{
		Optimal:     optimal,
		Moves:       buildMoves(classIDs, current, optimal, freq),
		MissRateOld: mrOld,
		MissRateNew: mrNew,
	}
}

// buildMoves turns a current->optimal allocation delta into a sequence
// of single-slab moves, pairing victims (losing slabs) with receivers
// (gaining slabs) by ascending frequency-per-current-slab so the
// lowest-value slab moves first.
func buildMoves(classIDs []alloc.ClassID, current, optimal map[alloc.ClassID]uint32, freq []float64) []Move {
	type victimEntry struct {
		cid   alloc.ClassID
		value float64
	}
	var victims []victimEntry
	var receivers []alloc.ClassID

	for i, cid := range classIDs {
		cur, opt := current[cid], optimal[cid]
		if opt < cur {
			value := 0.0
			if cur > 0 {
				value = freq[i] / float64(cur)
			}
			for n := uint32(0); n < cur-opt; n++ {
				victims = append(victims, victimEntry{cid: cid, value: value})
			}
		} else if opt > cur {
			for n := uint32(0); n < opt-cur; n++ {
				receivers = append(receivers, cid)
			}
		}
	}
	sort.Slice(victims, func(i, j int) bool { return victims[i].value < victims[j].value })

	n := len(victims)
	if len(receivers) < n {
		n = len(receivers)
	}
	moves := make([]Move, n)
	for i := 0; i < n; i++ {
		moves[i] = Move{Victim: victims[i].cid, Receiver: receivers[i]}
	}
	return moves
}
