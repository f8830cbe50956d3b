package core

import (
	"cmp"
	"fmt"
	"regexp"
	"slices"
	"sync"
)

// moduleIDPattern accepts "<namespace>.<name>", e.g. "store.sqlite".
var moduleIDPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*\.[a-z0-9][a-z0-9_-]*$`)

// catalog holds the modules compiled into the binary.
type catalog struct {
	mu   sync.RWMutex
	byID map[ModuleID]ModuleInfo
}

var modules = &catalog{byID: make(map[ModuleID]ModuleInfo)}

// RegisterModule adds a module to the catalog. It panics on a malformed or
// duplicate ID, or a nil constructor. Call it from init().
func RegisterModule(instance Module) {
	info := instance.ModuleInfo()
	if err := info.ID.Validate(); err != nil {
		panic(err.Error())
	}
	if info.New == nil {
		panic(fmt.Sprintf("module %s: New function must not be nil", info.ID))
	}

	modules.mu.Lock()
	defer modules.mu.Unlock()
	if _, exists := modules.byID[info.ID]; exists {
		panic(fmt.Sprintf("module %s registered twice", info.ID))
	}
	modules.byID[info.ID] = info
}

// Validate checks that id has the "<namespace>.<name>" form.
func (id ModuleID) Validate() error {
	if !moduleIDPattern.MatchString(string(id)) {
		return fmt.Errorf("module ID %q: want <namespace>.<name>, e.g. bot.filebot", id)
	}
	return nil
}

// GetModule returns the ModuleInfo for the given ID, or false if not found.
func GetModule(id string) (ModuleInfo, bool) {
	modules.mu.RLock()
	defer modules.mu.RUnlock()
	info, ok := modules.byID[ModuleID(id)]
	return info, ok
}

// GetModules returns all registered modules sorted by ID.
func GetModules() []ModuleInfo {
	modules.mu.RLock()
	defer modules.mu.RUnlock()

	out := make([]ModuleInfo, 0, len(modules.byID))
	for _, info := range modules.byID {
		out = append(out, info)
	}
	slices.SortFunc(out, func(a, b ModuleInfo) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// UnknownModuleError describes a configured module that is not compiled in,
// naming the closest registered ID when one is close enough.
func UnknownModuleError(id string) error {
	if s, ok := suggestModule(id); ok {
		return fmt.Errorf("unknown module %q (did you mean %q?)", id, s)
	}
	return fmt.Errorf("unknown module %q", id)
}

// suggestModule finds a registered ID one or two edits away from id, or one
// with the same name under another namespace ("filebot" for "bot.filebot").
func suggestModule(id string) (ModuleID, bool) {
	modules.mu.RLock()
	defer modules.mu.RUnlock()

	var (
		best     ModuleID
		bestDist = 3
	)
	for known := range modules.byID {
		d := editDistance(id, string(known))
		if known.Name() == id || known.Name() == ModuleID(id).Name() {
			d = min(d, 1)
		}
		if d < bestDist || (d == bestDist && known < best) {
			best, bestDist = known, d
		}
	}
	return best, best != ""
}

// editDistance is the Levenshtein distance between a and b.
func editDistance(a, b string) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

// resetRegistry clears the catalog. Only for testing.
func resetRegistry() {
	modules.mu.Lock()
	defer modules.mu.Unlock()
	modules.byID = make(map[ModuleID]ModuleInfo)
}
