// Package matcher evaluates a query's Logic against a Record, producing
// a boolean verdict and the match spans that justify it.
package matcher

import (
	"container/list"
	"regexp"
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// DefaultRegexCacheSize is the default LRU capacity.
const DefaultRegexCacheSize = 512

// regexCache is a bounded, thread-safe LRU of compiled patterns keyed
// on an xxhash of the pattern text plus its flags (container/list +
// map, move-to-front on hit, evict-back on overflow).
type regexCache struct {
	maxSize int
	mu      sync.Mutex
	items   map[uint64]*list.Element
	order   *list.List
}

type regexCacheEntry struct {
	key   uint64
	value *regexp.Regexp
}

func newRegexCache(maxSize int) *regexCache {
	if maxSize <= 0 {
		maxSize = DefaultRegexCacheSize
	}
	return &regexCache{
		maxSize: maxSize,
		items:   make(map[uint64]*list.Element),
		order:   list.New(),
	}
}

func regexCacheKey(pattern string, caseSensitive, wholeWord bool) uint64 {
	key := pattern + "|" + strconv.FormatBool(caseSensitive) + "|" + strconv.FormatBool(wholeWord)
	return xxhash.Sum64String(key)
}

func (c *regexCache) get(key uint64) (*regexp.Regexp, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[key]; ok {
		c.order.MoveToFront(elem)
		return elem.Value.(*regexCacheEntry).value, true
	}
	return nil, false
}

func (c *regexCache) set(key uint64, re *regexp.Regexp) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[key]; ok {
		c.order.MoveToFront(elem)
		elem.Value.(*regexCacheEntry).value = re
		return
	}
	entry := &regexCacheEntry{key: key, value: re}
	elem := c.order.PushFront(entry)
	c.items[key] = elem

	if c.order.Len() > c.maxSize {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.items, oldest.Value.(*regexCacheEntry).key)
		}
	}
}

func (c *regexCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
