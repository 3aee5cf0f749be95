// Package utils carries small helpers shared across the serving path.
package utils

import (
	"encoding/binary"
	"time"

	"github.com/spaolacci/murmur3"
)

// MurmurHash32 hashes data with 32-bit murmur3.
func MurmurHash32(data []byte) uint32 {
	h := murmur3.New32()
	h.Write(data)
	return h.Sum32()
}

// CacheKey derives a fixed-width cache key from a canonical payload via
// 128-bit murmur3, prefixed with the cache namespace.
func CacheKey(prefix string, payload []byte) []byte {
	h1, h2 := murmur3.Sum128(payload)
	key := make([]byte, 0, len(prefix)+17)
	key = append(key, prefix...)
	key = append(key, ':')
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], h1)
	binary.BigEndian.PutUint64(buf[8:], h2)
	return append(key, buf[:]...)
}

// SampledForToday reports whether id falls into today's sample of the
// given percentage. The date folds into the hash, so the sampled set
// rotates daily.
func SampledForToday(id string, percentage int) bool {
	if percentage <= 0 {
		return false
	}
	if percentage >= 100 {
		return true
	}
	day := time.Now().Format("02012006")
	return int(MurmurHash32([]byte(id+day)))%100 < percentage
}
