package util

import (
	"hash/crc32"

	. "github.com/rryqszq4/go-murmurhash"
)

var (
	CastagnoliTable = crc32.MakeTable(crc32.Castagnoli)
)

// Hash32 returns a 32-bit murmur3 fingerprint of data, used for AFHT slot
// keys and S3FIFO's history lookups.
func Hash32(data []byte) uint32 {
	var seed uint32 = 0xdeadbeef
	return MurmurHash3_x86_32(data, seed)
}

// Checksum returns the CRC32C (Castagnoli) checksum of data, used by the
// cache core to derive the footprint estimator's integer key from a key
// longer than 8 bytes.
func Checksum(data []byte) uint32 {
	return crc32.Checksum(data, CastagnoliTable)
}
