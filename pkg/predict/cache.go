package predict

import (
	"encoding/binary"
	"math"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// DefaultFitCacheSize is the entry limit used when NewFitCache gets size <= 0.
const DefaultFitCacheSize = 256

// FitCache memoizes FitSeries results keyed by a digest of the series
// contents. A series whose samples change hashes to a different key, and
// every hit is re-checked against the stored length and end points, so a
// stale fit is never returned.
//
// FitCache is safe for concurrent use.
type FitCache struct {
	mu      sync.Mutex
	size    int
	entries map[uint64]fitEntry
	order   []uint64 // insertion order, oldest first

	hits, misses uint64
}

type fitEntry struct {
	n           int
	first, last Sample
	fit         Fit
	err         error
}

// NewFitCache returns a cache holding at most size fits.
func NewFitCache(size int) *FitCache {
	if size <= 0 {
		size = DefaultFitCacheSize
	}
	return &FitCache{
		size:    size,
		entries: make(map[uint64]fitEntry, size),
	}
}

// Fit returns FitSeries(s), reusing a previous result for identical input.
func (c *FitCache) Fit(s Series) (Fit, error) {
	if len(s) < 2 {
		return FitSeries(s)
	}
	key := digest(s)

	c.mu.Lock()
	if e, ok := c.entries[key]; ok && e.n == len(s) && e.first == s[0] && e.last == s.Last() {
		c.hits++
		c.mu.Unlock()
		return e.fit, e.err
	}
	c.misses++
	c.mu.Unlock()

	fit, err := FitSeries(s)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; !ok {
		if len(c.order) >= c.size {
			delete(c.entries, c.order[0])
			c.order = c.order[1:]
		}
		c.order = append(c.order, key)
	}
	c.entries[key] = fitEntry{n: len(s), first: s[0], last: s.Last(), fit: fit, err: err}
	return fit, err
}

// Stats returns the number of cache hits and misses so far.
func (c *FitCache) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Len returns the number of memoized fits.
func (c *FitCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func digest(s Series) uint64 {
	d := xxhash.New()
	var buf [16]byte
	for _, p := range s {
		binary.LittleEndian.PutUint64(buf[:8], math.Float64bits(p.X))
		binary.LittleEndian.PutUint64(buf[8:], math.Float64bits(p.Y))
		_, _ = d.Write(buf[:])
	}
	return d.Sum64()
}
