// Package cache implements the Persistence Cache (spec §4.5, C4): the
// process-wide table of live, in-memory entity objects. Loads from storage
// are coalesced so at most one load is ever in flight per id at a time,
// grounded on the golang.org/x/sync/singleflight pattern used for
// coalesced cache fills.
package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/worldgs/gameserver/pkg/coreerr"
	"github.com/worldgs/gameserver/pkg/log"
	"github.com/worldgs/gameserver/pkg/metrics"
	"github.com/worldgs/gameserver/pkg/storage"
	"github.com/worldgs/gameserver/pkg/types"
	"golang.org/x/sync/singleflight"
)

// Cache is the process-wide live-object table for locally owned entities.
type Cache struct {
	store storage.Store

	mu      sync.RWMutex
	objects map[string]*types.Entity

	loadGroup singleflight.Group
}

// New constructs a Cache backed by store.
func New(store storage.Store) *Cache {
	return &Cache{
		store:   store,
		objects: make(map[string]*types.Entity),
	}
}

// Create inserts a newly minted entity directly into the live table,
// bypassing storage (it has no persisted record yet).
func (c *Cache) Create(e *types.Entity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.objects[e.ID] = e
}

// Get returns the live object for id, loading it from storage (with
// load-coalescing across concurrent callers) on a cache miss.
func (c *Cache) Get(ctx context.Context, id string) (*types.Entity, error) {
	c.mu.RLock()
	e, ok := c.objects[id]
	c.mu.RUnlock()
	if ok {
		metrics.CacheHits.Inc()
		return e, nil
	}
	metrics.CacheMisses.Inc()

	v, err, _ := c.loadGroup.Do(id, func() (any, error) {
		metrics.CacheInFlightLoads.Inc()
		defer metrics.CacheInFlightLoads.Dec()
		return c.load(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return v.(*types.Entity), nil
}

func (c *Cache) load(ctx context.Context, id string) (*types.Entity, error) {
	c.mu.RLock()
	if e, ok := c.objects[id]; ok {
		c.mu.RUnlock()
		return e, nil
	}
	c.mu.RUnlock()

	data, err := c.store.Read(ctx, id)
	if err != nil {
		return nil, err
	}

	var rec map[string]any
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, coreerr.StorageFatal("corrupt record for "+id, err)
	}

	e := types.NewEntity(id, stringField(rec, "class"), time.Time{})
	e.Label = stringField(rec, "label")
	delete(rec, "id")
	delete(rec, "class")
	delete(rec, "label")
	delete(rec, "tsid")
	e.Fields = rec

	c.mu.Lock()
	if existing, ok := c.objects[id]; ok {
		c.mu.Unlock()
		return existing, nil
	}
	c.objects[id] = e
	c.mu.Unlock()

	log.WithEntityID(id).Debug().Msg("loaded entity from storage")
	return e, nil
}

// PostRequestProc writes back every dirty, non-deleted entity, deletes
// every dirty entity flagged Deleted, and then evicts every unload id —
// eviction only happens after all writes have ack'd, so a concurrent Get
// during the write phase still observes the pre-eviction live object.
// done is invoked with the first error encountered, or nil on success.
func (c *Cache) PostRequestProc(ctx context.Context, dirty, unload []string, tag string, done func(error)) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.PostRequestWriteDuration)

	var firstErr error
	for _, id := range dirty {
		e, ok := c.Peek(id)
		if !ok {
			continue
		}
		if e.Deleted {
			if err := c.store.Delete(ctx, id); err != nil && firstErr == nil {
				firstErr = err
			}
			continue
		}
		data, err := json.Marshal(e.ToRecord())
		if err != nil {
			if firstErr == nil {
				firstErr = coreerr.HandlerError(err)
			}
			continue
		}
		if err := c.store.Write(ctx, id, data); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	for _, id := range unload {
		c.Evict(id)
	}

	if done != nil {
		done(firstErr)
	}
}

// Evict removes id from the live table without persisting it, for use
// after a confirmed delete.
func (c *Cache) Evict(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.objects, id)
}

// Len reports the number of live objects currently held.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.objects)
}

// Peek returns the live object for id without touching storage.
func (c *Cache) Peek(id string) (*types.Entity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.objects[id]
	return e, ok
}

func stringField(rec map[string]any, key string) string {
	v, _ := rec[key].(string)
	return v
}
