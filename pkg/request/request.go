// Package request implements the Request Context (spec §4.6, C5): the
// per-handler-invocation bookkeeping that tracks which entities a handler
// touched, so the outcome can be written back (or discarded on error)
// through the persistence cache in one pass.
package request

import (
	"context"

	"github.com/worldgs/gameserver/pkg/cache"
	"github.com/worldgs/gameserver/pkg/log"
	"github.com/worldgs/gameserver/pkg/types"
)

// Context carries the ambient state of one in-flight request: the owning
// entity id, an optional tag for metrics/logging, the set of entity ids the
// handler has mutated (dirty) and the set scheduled for eviction after
// writeback (unload).
type Context struct {
	ctx     context.Context
	cache   *cache.Cache
	owner   string
	tag     string
	session string

	dirty   map[string]bool
	unload  map[string]bool
}

// New constructs a request Context for owner, scoped to the given
// background context and cache.
func New(ctx context.Context, c *cache.Cache, owner, tag string) *Context {
	return &Context{
		ctx:    ctx,
		cache:  c,
		owner:  owner,
		tag:    tag,
		dirty:  make(map[string]bool),
		unload: make(map[string]bool),
	}
}

// WithSession attaches the originating session id, for handlers that need
// to reply to the caller.
func (c *Context) WithSession(sessionID string) *Context {
	c.session = sessionID
	return c
}

// Owner returns the id of the entity this request is scoped to.
func (c *Context) Owner() string { return c.owner }

// Tag returns the request's handler tag, used for metrics and logging.
func (c *Context) Tag() string { return c.tag }

// SessionID returns the originating session id, or "" if this request did
// not originate from a client session.
func (c *Context) SessionID() string { return c.session }

// Get resolves id through the process-wide cache. Because the cache holds
// the single live *types.Entity per id, every caller within (and outside)
// this request sees the same object — a handler's own writes are visible
// to its own subsequent reads (and to concurrent requests) without any
// extra bookkeeping here; SetDirty is what marks the object for writeback.
func (c *Context) Get(id string) (*types.Entity, error) {
	return c.cache.Get(c.ctx, id)
}

// SetDirty idempotently marks id as touched, so it is written back by the
// post-request writeback pass.
func (c *Context) SetDirty(id string) {
	c.dirty[id] = true
}

// SetUnload idempotently schedules id for eviction from the live cache once
// writeback completes. Scheduling an unload does not imply dirty; callers
// that mutated the entity must call SetDirty separately.
func (c *Context) SetUnload(id string) {
	c.unload[id] = true
}

// DirtyIDs returns the request's current dirty set.
func (c *Context) DirtyIDs() []string {
	return keys(c.dirty)
}

// UnloadIDs returns the request's current unload set.
func (c *Context) UnloadIDs() []string {
	return keys(c.unload)
}

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// Handler is the request body a Run invocation executes under a Context.
type Handler func(rc *Context) error

// Run executes fn under ctx. On success, the dirty/unload sets accumulated
// by fn are handed to the cache's writeback pass — synchronously when
// waitPers is true (the caller blocks until storage acknowledges), or
// fire-and-forget otherwise. On error or panic, the dirty/unload sets are
// discarded: nothing touched by the failed handler is persisted.
func Run(rc *Context, fn Handler, waitPers bool) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.WithComponent("request").Error().
				Interface("panic", r).
				Str("owner", rc.owner).
				Str("tag", rc.tag).
				Msg("request handler panicked")
			err = &panicError{value: r}
		}
	}()

	if err = fn(rc); err != nil {
		return err
	}

	dirty := rc.DirtyIDs()
	unload := rc.UnloadIDs()
	if len(dirty) == 0 && len(unload) == 0 {
		return nil
	}

	if waitPers {
		done := make(chan error, 1)
		rc.cache.PostRequestProc(rc.ctx, dirty, unload, rc.tag, func(perr error) {
			done <- perr
		})
		return <-done
	}

	go rc.cache.PostRequestProc(rc.ctx, dirty, unload, rc.tag, func(perr error) {
		if perr != nil {
			log.WithComponent("request").Error().Err(perr).
				Str("owner", rc.owner).
				Msg("fire-and-forget writeback failed")
		}
	})
	return nil
}

type panicError struct{ value any }

func (e *panicError) Error() string {
	return "request handler panic"
}
