package policy

import (
	"fmt"

	"github.com/dgraph-io/ristretto"
)

type (
	Matcher interface {
		Match(key string) (Rule, bool)
	}

	// CachedTable memoizes the rule matched by each key. The cache may evict
	// or drop entries at will, in which case the table is walked again.
	CachedTable struct {
		table *Table
		cache *ristretto.Cache
	}
)

const bufferItems = 64

var (
	_ Matcher = (*Table)(nil)
	_ Matcher = (*CachedTable)(nil)
)

// NewCachedTable caches up to maxRules matches of table.
func NewCachedTable(table *Table, maxRules int64) (*CachedTable, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxRules * 10,
		MaxCost:     maxRules,
		BufferItems: bufferItems,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize rule cache: %w", err)
	}

	return &CachedTable{table: table, cache: c}, nil
}

func (c *CachedTable) Match(key string) (Rule, bool) {
	if v, ok := c.cache.Get(key); ok {
		if r, ok := v.(Rule); ok {
			return r, true
		}
	}

	r, ok := c.table.Match(key)
	if ok {
		_ = c.cache.Set(key, r, 1)
	}

	return r, ok
}

// Wait blocks until buffered cache writes are applied.
func (c *CachedTable) Wait() {
	c.cache.Wait()
}

func (c *CachedTable) Close() {
	c.cache.Close()
}
