// Package ref implements the Reference Proxy (spec §4.4, C3): references
// between entities are persisted as {id,label,isRef:true} records and
// materialize in memory as lazy proxies that resolve their target through
// the cache's id-keyed lookup on first access, then cache the result.
package ref

import (
	"sync"

	"github.com/worldgs/gameserver/pkg/coreerr"
)

// Resolver loads an entity of type T by id. The cache (C4) satisfies this
// for live objects; tests can supply a stub.
type Resolver[T any] func(id string) (T, error)

// Ref is a generic, lazily-resolved pointer to another entity. It is safe
// for concurrent use: resolution happens at most once, subsequent Get
// calls return the cached target (or cached error).
type Ref[T any] struct {
	mu       sync.Mutex
	id       string
	label    string
	resolver Resolver[T]

	resolved bool
	target   T
	err      error
}

// NewRef constructs an unresolved reference to id with the given label and
// resolver.
func NewRef[T any](id, label string, resolver Resolver[T]) *Ref[T] {
	return &Ref[T]{id: id, label: label, resolver: resolver}
}

// ID returns the referenced entity's id without triggering resolution.
func (r *Ref[T]) ID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.id
}

// Label returns the reference's label without triggering resolution.
func (r *Ref[T]) Label() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.label
}

// SetLabel updates the reference's label in place. The label lives on the
// reference stub itself, not on the resolved target, so this never touches
// cached resolution state.
func (r *Ref[T]) SetLabel(label string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.label = label
}

// Get resolves the reference, memoizing the outcome (success or failure)
// after the first call.
func (r *Ref[T]) Get() (T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.resolved {
		return r.target, r.err
	}
	if r.resolver == nil {
		var zero T
		r.err = coreerr.ReferenceMissing(r.id)
		r.resolved = true
		return zero, r.err
	}

	target, err := r.resolver(r.id)
	r.resolved = true
	if err != nil {
		r.err = coreerr.ReferenceMissing(r.id)
		var zero T
		r.target = zero
		return zero, r.err
	}
	r.target = target
	return target, nil
}

// IsResolved reports whether Get has already been called successfully or
// unsuccessfully.
func (r *Ref[T]) IsResolved() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolved
}
