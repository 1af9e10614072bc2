package interpreter

import "sync"

type synthesisCacheKey struct {
	text string
	lang Language
}

// SynthesisCache is the (text, language) -> audio_bytes cache of
// spec.md §4.6: lock-free-feeling reads via RWMutex, FIFO eviction at
// capacity via an auxiliary insertion-order slice — the same bounded-ring
// technique the teacher's EchoSuppressor used to cap its played-audio
// buffer, applied here to a keyed map instead of a byte ring.
type SynthesisCache struct {
	mu       sync.RWMutex
	entries  map[synthesisCacheKey][]byte
	order    []synthesisCacheKey
	capacity int
}

func NewSynthesisCache(capacity int) *SynthesisCache {
	return &SynthesisCache{
		entries:  make(map[synthesisCacheKey][]byte),
		capacity: capacity,
	}
}

// Get returns the cached audio for (text, lang), if present.
func (c *SynthesisCache) Get(text string, lang Language) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.entries[synthesisCacheKey{text: text, lang: lang}]
	return b, ok
}

// Put inserts audio for (text, lang), evicting the oldest entry if the
// cache is at capacity. A Put for a key already present is a no-op write
// (P8 cache idempotence: repeated reads return identical bytes without
// churn).
func (c *SynthesisCache) Put(text string, lang Language, audio []byte) {
	key := synthesisCacheKey{text: text, lang: lang}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; exists {
		return
	}
	if len(c.entries) >= c.capacity && c.capacity > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[key] = audio
	c.order = append(c.order, key)
}

// Len reports the current entry count; used for metrics and tests.
func (c *SynthesisCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
