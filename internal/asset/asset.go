// Package asset resolves the local: locator scheme used by callers to point
// pipelines at fixture files instead of network URLs.
package asset

import (
	"strings"
)

// Scope selects which base directory a local: locator resolves against.
type Scope int

// Pipelines with their own asset roots
const (
	ScopeGeneration Scope = iota
	ScopeMerge
)

const localPrefix = "local:"

// Resolver maps local:<relative/path> to a file:// locator.
type Resolver struct {
	generationBase string
	mergeBase      string
}

// NewResolver creates a Resolver with a base directory per scope.
func NewResolver(generationBase, mergeBase string) *Resolver {
	return &Resolver{
		generationBase: generationBase,
		mergeBase:      mergeBase,
	}
}

// Resolve returns value unchanged (trimmed) unless it uses the local: scheme,
// in which case it becomes file://<base>/<path> for the scope's base.
func (r *Resolver) Resolve(value string, scope Scope) string {
	value = strings.TrimSpace(value)
	if len(value) < len(localPrefix) || !strings.EqualFold(value[:len(localPrefix)], localPrefix) {
		return value
	}

	rel := strings.TrimLeft(value[len(localPrefix):], "/")
	base := strings.TrimRight(strings.ReplaceAll(r.base(scope), `\`, "/"), "/")

	if strings.HasPrefix(base, "/") {
		return "file://" + base + "/" + rel
	}
	// Relative or drive-letter bases
	return "file:///" + base + "/" + rel
}

// ResolveAll resolves every value in scope.
func (r *Resolver) ResolveAll(values []string, scope Scope) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = r.Resolve(v, scope)
	}
	return out
}

// Base returns the directory local: locators resolve against in scope.
func (r *Resolver) Base(scope Scope) string {
	return r.base(scope)
}

func (r *Resolver) base(scope Scope) string {
	if scope == ScopeMerge {
		return r.mergeBase
	}
	return r.generationBase
}
