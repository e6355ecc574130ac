package revocation

import (
	"math"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

// BloomFilter is a fixed-size, read-mostly bloom filter: the pipeline's
// tier-2 check. It is a superset of the truth by construction
// (contains(x) = false ⇒ x is not in the set), per spec.md §3's invariant;
// false positives are expected and escalate to tier 3/4.
//
// Add and Contains are both safe for concurrent use: bits are set with
// atomic.OrUint64 so a Revoke on one goroutine can race an
// authentication-path Contains on another without a lock.
type BloomFilter struct {
	bits []uint64
	m    uint64
	k    int
}

// NewBloomFilter sizes a filter for expectedItems entries at the given
// target false-positive rate, using the standard optimal-m/k formulas.
func NewBloomFilter(expectedItems uint, falsePositiveRate float64) *BloomFilter {
	if expectedItems == 0 {
		expectedItems = 1
	}
	if falsePositiveRate <= 0 || falsePositiveRate >= 1 {
		falsePositiveRate = 0.01
	}
	m := optimalBits(expectedItems, falsePositiveRate)
	k := optimalHashes(m, expectedItems)
	words := (m + 63) / 64
	return &BloomFilter{bits: make([]uint64, words), m: m, k: k}
}

func optimalBits(n uint, p float64) uint64 {
	m := -float64(n) * math.Log(p) / (math.Ln2 * math.Ln2)
	if m < 64 {
		m = 64
	}
	return uint64(math.Ceil(m))
}

func optimalHashes(m uint64, n uint) int {
	k := int(math.Round(float64(m) / float64(n) * math.Ln2))
	if k < 1 {
		k = 1
	}
	if k > 16 {
		k = 16
	}
	return k
}

// Add inserts key into the filter.
func (f *BloomFilter) Add(key string) {
	h1, h2 := splitHash(key)
	for i := 0; i < f.k; i++ {
		idx := (h1 + uint64(i)*h2) % f.m
		word, bit := idx/64, idx%64
		atomic.OrUint64(&f.bits[word], uint64(1)<<bit)
	}
}

// Contains reports whether key may be in the set. A false result is a
// definitive "not a member"; a true result may be a false positive.
func (f *BloomFilter) Contains(key string) bool {
	h1, h2 := splitHash(key)
	for i := 0; i < f.k; i++ {
		idx := (h1 + uint64(i)*h2) % f.m
		word, bit := idx/64, idx%64
		if atomic.LoadUint64(&f.bits[word])&(uint64(1)<<bit) == 0 {
			return false
		}
	}
	return true
}

// splitHash derives two independent 64-bit hashes from two xxhash
// passes (over key and key-with-suffix), combined via the Kirsch-Mitzenmacher
// technique to synthesize k hash functions without k hash passes.
func splitHash(key string) (uint64, uint64) {
	h1 := xxhash.Sum64String(key)
	h2 := xxhash.Sum64String(key + "\x00bloom2")
	if h2 == 0 {
		h2 = 1
	}
	return h1, h2
}
