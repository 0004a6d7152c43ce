package session

import (
	"testing"
	"time"

	"github.com/worldgs/gameserver/pkg/queue"
	"github.com/worldgs/gameserver/pkg/rpc"
	"github.com/worldgs/gameserver/pkg/shard"
	"github.com/worldgs/gameserver/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchLocationRoutesOnOwnID(t *testing.T) {
	router := shard.NewRouter("peer-a", nil)
	queues := queue.NewDirectory()

	var gotOwner string
	local := func(rq *queue.RQ, msg ClientMessage, s *Session) {
		gotOwner = rq.Owner()
	}
	d := NewDispatcher(router, queues, rpc.NewRemoteProxy(), nil, local)

	s := &Session{ID: "s1"}
	err := d.Dispatch(s, ClientMessage{EntityID: "Lhome", Method: "look"})
	require.NoError(t, err)
	assert.Equal(t, "Lhome", gotOwner)
}

func TestDispatchPlayerRoutesThroughCurrentLocation(t *testing.T) {
	router := shard.NewRouter("peer-a", nil)
	queues := queue.NewDirectory()

	player := types.NewEntity("Pxyz", "avatar", time.Time{})
	player.SetField("locationId", "Lhome")
	locate := func(id string) (*types.Entity, error) {
		if id == "Pxyz" {
			return player, nil
		}
		return nil, assertMissing(id)
	}

	var gotOwner string
	local := func(rq *queue.RQ, msg ClientMessage, s *Session) {
		gotOwner = rq.Owner()
	}
	d := NewDispatcher(router, queues, rpc.NewRemoteProxy(), locate, local)

	s := &Session{ID: "s1"}
	err := d.Dispatch(s, ClientMessage{EntityID: "Pxyz", Method: "say"})
	require.NoError(t, err)
	assert.Equal(t, "Lhome", gotOwner, "a player message should be queued on its current location's RQ")
}

func TestDispatchItemRoutesThroughTopContainer(t *testing.T) {
	router := shard.NewRouter("peer-a", nil)
	queues := queue.NewDirectory()

	item := types.NewEntity("Iabc", "sword", time.Time{})
	item.Path = "Pxyz/Bdef/Iabc"
	locate := func(id string) (*types.Entity, error) {
		if id == "Iabc" {
			return item, nil
		}
		return nil, assertMissing(id)
	}

	var gotOwner string
	local := func(rq *queue.RQ, msg ClientMessage, s *Session) {
		gotOwner = rq.Owner()
	}
	d := NewDispatcher(router, queues, rpc.NewRemoteProxy(), locate, local)

	err := d.Dispatch(&Session{ID: "s1"}, ClientMessage{EntityID: "Iabc", Method: "inspect"})
	require.NoError(t, err)
	assert.Equal(t, "Pxyz", gotOwner, "an item message should be queued on its top container's RQ")
}

func TestDispatchRemoteOwnerCallsRPC(t *testing.T) {
	router := shard.NewRouter("peer-a", []string{"peer-b"})
	queues := queue.NewDirectory()

	local := func(rq *queue.RQ, msg ClientMessage, s *Session) {
		t.Fatal("remote-owned target must not run the local handler")
	}
	d := NewDispatcher(router, queues, rpc.NewRemoteProxy(), nil, local)

	// "Rabd" hashes to peer-b ('a'+'b'+'d' = 295, odd, over two peers).
	// With no connection registered for peer-b, the call must fail with
	// ErrNoConnection rather than silently falling back to local dispatch.
	owner, err := router.OwnerOf("Rabd")
	require.NoError(t, err)
	if owner == router.SelfID() {
		t.Skip("hash routed Rabd locally")
	}

	err = d.Dispatch(&Session{ID: "s1"}, ClientMessage{EntityID: "Rabd", Method: "roster"})
	assert.Error(t, err)
}

type missingEntityError struct{ id string }

func (e missingEntityError) Error() string { return "no such entity: " + e.id }

func assertMissing(id string) error { return missingEntityError{id: id} }
