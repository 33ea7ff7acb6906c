package afht

import "math"

const (
	log2          float64 = 0.6931471805599453
	minNumBits    uint32  = 64
	minNumHash    uint32  = 1
	maxNumHash    uint32  = 30
	minBitsPerKey         = 1
)

// BloomFilter is a doorkeeper in front of the ghost history: a key that
// has never been seen cannot possibly be in history, so a miss here lets
// List.Add skip the afht.Table probe entirely. False positives just cost
// a redundant Contains call; there are no false negatives.
type BloomFilter struct {
	bitmap  []byte
	numHash uint32
}

// NewBloomFilter builds a filter sized for size keys at the given false
// positive rate.
func NewBloomFilter(size int, fp float64) *BloomFilter {
	bitsPerKey := bitsPerKey(uint32(size), fp)
	numBytes := calNumBytes(uint32(size), bitsPerKey)
	numHash := calNumHash(bitsPerKey)
	return &BloomFilter{
		bitmap:  make([]byte, numBytes),
		numHash: numHash,
	}
}

func bitsPerKey(numKeys uint32, fp float64) uint32 {
	size := -1 * float64(numKeys) * math.Log(fp) / math.Pow(log2, 2)
	locs := math.Ceil(size / float64(numKeys))
	if locs < minBitsPerKey {
		locs = minBitsPerKey
	}
	return uint32(locs)
}

func calNumHash(bitsPerKey uint32) uint32 {
	res := uint32(float64(bitsPerKey) * log2)
	if res < minNumHash {
		res = minNumHash
	}
	if res > maxNumHash {
		res = maxNumHash
	}
	return res
}

func calNumBytes(numKeys uint32, bitsPerKey uint32) uint32 {
	numBits := numKeys * bitsPerKey
	if numBits < minNumBits {
		numBits = minNumBits
	}
	return (numBits + 7) / 8
}

func (bf *BloomFilter) MayContain(key uint32) bool {
	numBits := uint32(len(bf.bitmap)) * 8
	delta := key>>17 | key<<15
	for i := uint32(0); i < bf.numHash; i++ {
		pos := key % numBits
		if bf.bitmap[pos/8]&(1<<(pos%8)) == 0 {
			return false
		}
		key += delta
	}
	return true
}

func (bf *BloomFilter) insert(key uint32) {
	numBits := uint32(len(bf.bitmap)) * 8
	delta := key>>17 | key<<15
	for i := uint32(0); i < bf.numHash; i++ {
		pos := key % numBits
		bf.bitmap[pos/8] |= 1 << (pos % 8)
		key += delta
	}
}

// Allow reports whether key may already have been recorded, recording it
// if not. The first call for any key returns false.
func (bf *BloomFilter) Allow(key uint32) bool {
	if bf.MayContain(key) {
		return true
	}
	bf.insert(key)
	return false
}

// Reset clears every bit, used when the filter's false-positive rate has
// grown too high for its sizing to keep up with.
func (bf *BloomFilter) Reset() {
	for i := range bf.bitmap {
		bf.bitmap[i] = 0
	}
}
