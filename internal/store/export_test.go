package store

import "time"

// SetCacheClock replaces the cache clock in tests.
func SetCacheClock(c *MemorySearchCache, now func() time.Time) { c.now = now }
