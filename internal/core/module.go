// Package core provides the module system foundation for filebot.
//
// A module is any type that returns a ModuleInfo. Modules register
// themselves from init() and are instantiated by ID from the configuration.
// Optional lifecycle interfaces (Configurable, Provisioner, Validator,
// Starter, Stopper, Reloader) are detected with type assertions.
package core

import "strings"

// ModuleID is a dotted module identifier such as "bot.filebot".
type ModuleID string

// Namespace returns the part of the ID before the first dot.
func (id ModuleID) Namespace() string {
	ns, _, _ := strings.Cut(string(id), ".")
	return ns
}

// Name returns the part of the ID after the first dot.
func (id ModuleID) Name() string {
	_, name, found := strings.Cut(string(id), ".")
	if !found {
		return string(id)
	}
	return name
}

// ModuleInfo describes a registered module.
type ModuleInfo struct {
	// ID uniquely identifies the module.
	ID ModuleID

	// New returns a fresh, unconfigured instance.
	New func() Module
}

// Module is implemented by every module.
type Module interface {
	ModuleInfo() ModuleInfo
}
