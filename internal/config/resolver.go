package config

import (
	"cmp"
	"slices"

	"github.com/flemzord/filebot/internal/core"
)

// namespaceOrder ranks module namespaces so infrastructure modules load
// and start before the bots that use them, and stop after them.
var namespaceOrder = map[string]int{
	"store":   0,
	"cache":   1,
	"gateway": 2,
}

// Resolve returns the module IDs from the configuration in load order:
// infrastructure namespaces first, then everything else, each group sorted
// by ID. The deterministic order ensures consistent module loading.
func Resolve(cfg *Config) []string {
	ids := make([]string, 0, len(cfg.Modules))
	for id := range cfg.Modules {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b string) int {
		if c := cmp.Compare(rank(a), rank(b)); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	return ids
}

func rank(id string) int {
	if r, ok := namespaceOrder[core.ModuleID(id).Namespace()]; ok {
		return r
	}
	return len(namespaceOrder)
}
