package session

import (
	"encoding/json"

	"github.com/worldgs/gameserver/pkg/queue"
	"github.com/worldgs/gameserver/pkg/rpc"
	"github.com/worldgs/gameserver/pkg/shard"
	"github.com/worldgs/gameserver/pkg/types"
)

// ClientMessage is the shape of an inbound message from a session's
// transport: a call against a target entity.
type ClientMessage struct {
	EntityID string          `json:"entityId"`
	Method   string          `json:"method"`
	Args     json.RawMessage `json:"args"`
}

// EntityLocator resolves a loaded entity by id, regardless of whether it
// is locally owned — reads are not ownership-restricted (only writes are,
// via the owning RQ), so the dispatcher can use it to resolve the
// relationship indirections of spec §3 (a player's current location, an
// item's top container, ...) before routing.
type EntityLocator func(id string) (*types.Entity, error)

// Dispatcher routes inbound client messages: locally owned targets are
// pushed onto the owning RQ, remote targets are forwarded over pkg/rpc.
// Locations and groups route directly on their own id (spec §4.2); every
// other kind is resolved through locate first, per spec §3's ownership
// rules.
type Dispatcher struct {
	router *shard.Router
	queues *queue.Directory
	remote *rpc.RemoteProxy
	locate EntityLocator
	local  func(rq *queue.RQ, msg ClientMessage, s *Session)
}

// NewDispatcher constructs a Dispatcher wired to the given shard router,
// RQ directory, and remote proxy. localHandler is invoked for
// locally-owned targets with the target's RQ already resolved. locate
// resolves entities for kinds that route through a relationship rather
// than their own id; it may be nil if the dispatcher is only ever asked
// to route location/group ids.
func NewDispatcher(router *shard.Router, queues *queue.Directory, remote *rpc.RemoteProxy,
	locate EntityLocator, localHandler func(rq *queue.RQ, msg ClientMessage, s *Session)) *Dispatcher {
	return &Dispatcher{router: router, queues: queues, remote: remote, locate: locate, local: localHandler}
}

// Dispatch routes msg, originating from session s, to its owning entity.
func (d *Dispatcher) Dispatch(s *Session, msg ClientMessage) error {
	owner, routeID, err := d.ownerOf(msg.EntityID)
	if err != nil {
		return err
	}

	if owner == d.router.SelfID() {
		rq := d.queues.Get(routeID)
		d.local(rq, msg, s)
		return nil
	}

	_, err = d.remote.Call(owner, msg.EntityID, msg.Method, msg.Args)
	return err
}

// ownerOf resolves msg.EntityID's owning peer and the id whose RQ the
// work item belongs on (the routing target: itself for locations/groups,
// the related location/top-container/owner id otherwise).
func (d *Dispatcher) ownerOf(id string) (owner, routeID string, err error) {
	kind, ok := types.KindOf(id)
	if !ok {
		_, err = d.router.OwnerOf(id) // surfaces the classification error
		return "", "", err
	}
	if kind == types.KindLocation || kind == types.KindGroup || d.locate == nil {
		owner, err = d.router.OwnerOf(id)
		return owner, id, err
	}

	e, err := d.locate(id)
	if err != nil {
		return "", "", err
	}
	routeID, err = shard.RoutingTarget(e)
	if err != nil {
		return "", "", err
	}
	owner, err = d.router.OwnerOf(routeID)
	return owner, routeID, err
}
