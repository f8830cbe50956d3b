package core

import (
	"slices"
	"sync"
)

// services is a process-wide service registry shared by every AppContext
// derived from the same root.
type services struct {
	mu      sync.RWMutex
	entries map[string]any
}

func newServices() *services {
	return &services{entries: make(map[string]any)}
}

// RegisterService makes a value discoverable by other modules under name.
// A later registration under the same name replaces the earlier one.
func (ctx *AppContext) RegisterService(name string, svc any) {
	ctx.services.mu.Lock()
	defer ctx.services.mu.Unlock()
	ctx.services.entries[name] = svc
}

// Service returns the value registered under name.
func (ctx *AppContext) Service(name string) (any, bool) {
	ctx.services.mu.RLock()
	defer ctx.services.mu.RUnlock()
	svc, ok := ctx.services.entries[name]
	return svc, ok
}

// ServiceNames returns the sorted names of all registered services.
func (ctx *AppContext) ServiceNames() []string {
	ctx.services.mu.RLock()
	defer ctx.services.mu.RUnlock()
	names := make([]string, 0, len(ctx.services.entries))
	for name := range ctx.services.entries {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// LookupService returns the service registered under name if it has type T.
func LookupService[T any](ctx *AppContext, name string) (T, bool) {
	var zero T
	svc, ok := ctx.Service(name)
	if !ok {
		return zero, false
	}
	typed, ok := svc.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}
