package store

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"
)

type channelKey struct {
	id   int64
	kind ChannelKind
}

// MemoryRegistry is a Registry kept in process memory.
type MemoryRegistry struct {
	mu       sync.RWMutex
	channels map[channelKey]Channel
	admins   map[int64]struct{}
	users    map[int64]User
	covers   map[string]string
	batches  map[string]Batch
	now      func() time.Time
}

var _ Registry = (*MemoryRegistry)(nil)

// NewMemoryRegistry creates an empty MemoryRegistry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		channels: make(map[channelKey]Channel),
		admins:   make(map[int64]struct{}),
		users:    make(map[int64]User),
		covers:   make(map[string]string),
		batches:  make(map[string]Batch),
		now:      time.Now,
	}
}

// AddChannel implements Registry. Re-adding a channel of the same kind
// updates its title and username and keeps AddedAt.
func (r *MemoryRegistry) AddChannel(_ context.Context, ch Channel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := channelKey{ch.ID, ch.Kind}
	if prev, ok := r.channels[key]; ok {
		ch.AddedAt = prev.AddedAt
	} else if ch.AddedAt.IsZero() {
		ch.AddedAt = r.now()
	}
	r.channels[key] = ch
	return nil
}

// RemoveChannel implements Registry. Only the row of the given kind goes.
func (r *MemoryRegistry) RemoveChannel(_ context.Context, id int64, kind ChannelKind) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := channelKey{id, kind}
	if _, ok := r.channels[key]; !ok {
		return ErrNotFound
	}
	delete(r.channels, key)
	return nil
}

// Channels implements Registry. Channels are returned in registration order.
func (r *MemoryRegistry) Channels(_ context.Context, kind ChannelKind) ([]Channel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Channel
	for _, ch := range r.channels {
		if kind == "" || ch.Kind == kind {
			out = append(out, ch)
		}
	}
	slices.SortFunc(out, func(a, b Channel) int {
		if c := a.AddedAt.Compare(b.AddedAt); c != 0 {
			return c
		}
		if c := cmp.Compare(a.ID, b.ID); c != 0 {
			return c
		}
		return cmp.Compare(a.Kind, b.Kind)
	})
	return out, nil
}

// AddAdmin implements Registry.
func (r *MemoryRegistry) AddAdmin(_ context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.admins[userID] = struct{}{}
	return nil
}

// RemoveAdmin implements Registry.
func (r *MemoryRegistry) RemoveAdmin(_ context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.admins[userID]; !ok {
		return ErrNotFound
	}
	delete(r.admins, userID)
	return nil
}

// Admins implements Registry.
func (r *MemoryRegistry) Admins(_ context.Context) ([]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]int64, 0, len(r.admins))
	for id := range r.admins {
		out = append(out, id)
	}
	slices.Sort(out)
	return out, nil
}

// UpsertUser implements Registry. FirstSeen is kept from the first call.
func (r *MemoryRegistry) UpsertUser(_ context.Context, u User) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.users[u.ID]
	if ok {
		u.FirstSeen = prev.FirstSeen
	} else if u.FirstSeen.IsZero() {
		u.FirstSeen = r.now()
	}
	r.users[u.ID] = u
	return !ok, nil
}

// RemoveUser implements Registry.
func (r *MemoryRegistry) RemoveUser(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.users, id)
	return nil
}

// Users implements Registry.
func (r *MemoryRegistry) Users(_ context.Context) ([]User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u)
	}
	slices.SortFunc(out, func(a, b User) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

// CountUsers implements Registry.
func (r *MemoryRegistry) CountUsers(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users), nil
}

// SetCover implements Registry. File names match case-insensitively.
func (r *MemoryRegistry) SetCover(_ context.Context, fileName, photoFileID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.covers[coverKey(fileName)] = photoFileID
	return nil
}

// Cover implements Registry.
func (r *MemoryRegistry) Cover(_ context.Context, fileName string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.covers[coverKey(fileName)]
	if !ok {
		return "", ErrNotFound
	}
	return id, nil
}

// CountCovers implements Registry.
func (r *MemoryRegistry) CountCovers(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.covers), nil
}

// SaveBatch implements Registry.
func (r *MemoryRegistry) SaveBatch(_ context.Context, b Batch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = r.now()
	}
	b.MessageIDs = slices.Clone(b.MessageIDs)
	r.batches[b.ID] = b
	return nil
}

// Batch implements Registry.
func (r *MemoryRegistry) Batch(_ context.Context, id string) (Batch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.batches[id]
	if !ok {
		return Batch{}, ErrNotFound
	}
	b.MessageIDs = slices.Clone(b.MessageIDs)
	return b, nil
}

// BatchByKeyword implements Registry. The most recent batch wins.
func (r *MemoryRegistry) BatchByKeyword(_ context.Context, keyword string) (Batch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var (
		found Batch
		ok    bool
	)
	for _, b := range r.batches {
		if !strings.EqualFold(b.Keyword, strings.TrimSpace(keyword)) {
			continue
		}
		if !ok || b.CreatedAt.After(found.CreatedAt) {
			found, ok = b, true
		}
	}
	if !ok {
		return Batch{}, ErrNotFound
	}
	found.MessageIDs = slices.Clone(found.MessageIDs)
	return found, nil
}

// CountBatches implements Registry.
func (r *MemoryRegistry) CountBatches(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.batches), nil
}

func coverKey(fileName string) string {
	return strings.ToLower(strings.TrimSpace(fileName))
}

type docKey struct {
	channelID int64
	messageID int
}

// MemoryIndex is an Index kept in process memory. A document matches when
// every query word appears in its file name or caption.
type MemoryIndex struct {
	mu   sync.RWMutex
	docs map[docKey]Document
	now  func() time.Time
}

var _ Index = (*MemoryIndex)(nil)

// NewMemoryIndex creates an empty MemoryIndex.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		docs: make(map[docKey]Document),
		now:  time.Now,
	}
}

// Add implements Index. Adding the same message again replaces it.
func (x *MemoryIndex) Add(_ context.Context, doc Document) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if doc.IndexedAt.IsZero() {
		doc.IndexedAt = x.now()
	}
	x.docs[docKey{doc.ChannelID, doc.MessageID}] = doc
	return nil
}

// Search implements Index. Newest messages come first.
func (x *MemoryIndex) Search(ctx context.Context, channelID int64, query string, limit int) ([]Document, error) {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return nil, nil
	}

	x.mu.RLock()
	var out []Document
	for k, doc := range x.docs {
		if k.channelID != channelID {
			continue
		}
		haystack := strings.ToLower(doc.FileName + " " + doc.Caption)
		if containsAll(haystack, terms) {
			out = append(out, doc)
		}
	}
	x.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	slices.SortFunc(out, func(a, b Document) int { return cmp.Compare(b.MessageID, a.MessageID) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func containsAll(haystack string, terms []string) bool {
	for _, t := range terms {
		if !strings.Contains(haystack, t) {
			return false
		}
	}
	return true
}

// DeleteChannel implements Index.
func (x *MemoryIndex) DeleteChannel(_ context.Context, channelID int64) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	n := 0
	for k := range x.docs {
		if k.channelID == channelID {
			delete(x.docs, k)
			n++
		}
	}
	return n, nil
}

// Count implements Index.
func (x *MemoryIndex) Count(_ context.Context) (int, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.docs), nil
}

type cacheEntry struct {
	docs    []Document
	expires time.Time
}

// MemorySearchCache is a SearchCache kept in process memory.
type MemorySearchCache struct {
	mu      sync.Mutex
	entries map[int64]cacheEntry
	now     func() time.Time
}

var (
	_ SearchCache = (*MemorySearchCache)(nil)
	_ Pruner      = (*MemorySearchCache)(nil)
)

// NewMemorySearchCache creates an empty MemorySearchCache.
func NewMemorySearchCache() *MemorySearchCache {
	return &MemorySearchCache{
		entries: make(map[int64]cacheEntry),
		now:     time.Now,
	}
}

// Put implements SearchCache.
func (c *MemorySearchCache) Put(_ context.Context, chatID int64, docs []Document, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[chatID] = cacheEntry{docs: slices.Clone(docs), expires: c.now().Add(ttl)}
	return nil
}

// Get implements SearchCache. Expired entries report ErrNotFound.
func (c *MemorySearchCache) Get(_ context.Context, chatID int64) ([]Document, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[chatID]
	if !ok || !c.now().Before(e.expires) {
		return nil, ErrNotFound
	}
	return slices.Clone(e.docs), nil
}

// Prune implements Pruner.
func (c *MemorySearchCache) Prune(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for id, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, id)
			n++
		}
	}
	return n
}
