package store_test

import (
	"testing"
	"time"

	"github.com/flemzord/filebot/internal/store"
	"github.com/flemzord/filebot/internal/store/storetest"
)

func TestMemoryRegistry(t *testing.T) {
	t.Parallel()
	storetest.RunRegistry(t, func(*testing.T) store.Registry { return store.NewMemoryRegistry() })
}

func TestMemoryIndex(t *testing.T) {
	t.Parallel()
	storetest.RunIndex(t, func(*testing.T) store.Index { return store.NewMemoryIndex() })
}

func TestMemorySearchCache(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := store.NewMemorySearchCache()
	store.SetCacheClock(c, func() time.Time { return now })
	storetest.RunSearchCache(t, c, func(d time.Duration) { now = now.Add(d) })
}

func TestMemorySearchCache_Prune(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := store.NewMemorySearchCache()
	store.SetCacheClock(c, func() time.Time { return now })

	_ = c.Put(t.Context(), 1, nil, time.Minute)
	_ = c.Put(t.Context(), 2, nil, time.Hour)

	if n := c.Prune(now.Add(10 * time.Minute)); n != 1 {
		t.Errorf("Prune = %d, want 1", n)
	}
}
