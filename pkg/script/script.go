// Package script defines the lifecycle interface a worker runtime uses to
// obtain entity behavior from an external script layer (spec §4.13). The
// script layer itself is an external collaborator specified only by this
// interface; no concrete script engine is implemented here.
package script

import "context"

// Prototype is an opaque handle to a loaded class's behavior, returned by
// Host.Load and passed to request handlers that need to invoke scripted
// methods.
type Prototype interface {
	// Class returns the entity class this prototype implements behavior
	// for.
	Class() string
}

// Host is the lifecycle a worker runtime drives: Start once at worker
// boot, Load on demand per entity class, Stop once at worker shutdown.
type Host interface {
	Start(ctx context.Context) error
	Load(ctx context.Context, class string) (Prototype, error)
	Stop(ctx context.Context) error
}

// NopHost is a no-op Host satisfying the interface for tests and for
// linking a runnable binary without a real script layer.
type NopHost struct{}

func (NopHost) Start(ctx context.Context) error { return nil }

func (NopHost) Load(ctx context.Context, class string) (Prototype, error) {
	return nopPrototype{class: class}, nil
}

func (NopHost) Stop(ctx context.Context) error { return nil }

type nopPrototype struct{ class string }

func (p nopPrototype) Class() string { return p.class }
