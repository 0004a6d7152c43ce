package shard

import (
	"testing"
	"time"

	"github.com/worldgs/gameserver/pkg/coreerr"
	"github.com/worldgs/gameserver/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouterOwnerOfIsDeterministic(t *testing.T) {
	r := NewRouter("peer-a", []string{"peer-b", "peer-c"})

	owner1, err := r.OwnerOf("P1abc")
	require.NoError(t, err)
	owner2, err := r.OwnerOf("P1abc")
	require.NoError(t, err)
	assert.Equal(t, owner1, owner2)
}

func TestRouterSetPeersDedupesAndSortsIncludingSelf(t *testing.T) {
	r := NewRouter("peer-c", []string{"peer-a", "peer-b", "peer-a"})
	assert.Equal(t, []string{"peer-a", "peer-b", "peer-c"}, r.Peers())
}

func TestRouterIsLocalConsistentWithOwnerOf(t *testing.T) {
	r := NewRouter("self", []string{"other1", "other2"})
	owner, err := r.OwnerOf("P999")
	require.NoError(t, err)

	local, err := r.IsLocal("P999")
	require.NoError(t, err)
	assert.Equal(t, owner == "self", local)
}

func TestRouterOwnerOfNoPeersErrors(t *testing.T) {
	r := &Router{selfID: "self"}
	_, err := r.OwnerOf("P1")
	assert.True(t, coreerr.IsKind(err, coreerr.KindRouting))
}

func TestRouterOwnershipStableAcrossPeerOrderSubmission(t *testing.T) {
	r1 := NewRouter("a", []string{"b", "c"})
	r2 := NewRouter("a", []string{"c", "b"})

	for _, id := range []string{"P1", "P2", "B3", "I4"} {
		o1, err := r1.OwnerOf(id)
		require.NoError(t, err)
		o2, err := r2.OwnerOf(id)
		require.NoError(t, err)
		assert.Equal(t, o1, o2, "ownership of %s should not depend on submission order", id)
	}
}

func TestRoutingTargetLocationAndGroupRouteOnOwnID(t *testing.T) {
	loc := types.NewEntity("Lxyz", "town", time.Time{})
	target, err := RoutingTarget(loc)
	require.NoError(t, err)
	assert.Equal(t, "Lxyz", target)

	group := types.NewEntity("Rxyz", "party", time.Time{})
	target, err = RoutingTarget(group)
	require.NoError(t, err)
	assert.Equal(t, "Rxyz", target)
}

func TestRoutingTargetPlayerAndGeometryRouteThroughLocation(t *testing.T) {
	player := types.NewEntity("Pxyz", "avatar", time.Time{})
	player.SetField("locationId", "Lhome")
	target, err := RoutingTarget(player)
	require.NoError(t, err)
	assert.Equal(t, "Lhome", target)

	geo := types.NewEntity("Gxyz", "wall", time.Time{})
	geo.SetField("locationId", "Lhome")
	target, err = RoutingTarget(geo)
	require.NoError(t, err)
	assert.Equal(t, "Lhome", target)
}

func TestRoutingTargetItemRoutesThroughTopContainer(t *testing.T) {
	item := types.NewEntity("Ixyz", "sword", time.Time{})
	item.Path = "Pabc/Bdef/Ixyz"
	target, err := RoutingTarget(item)
	require.NoError(t, err)
	assert.Equal(t, "Pabc", target)
}

func TestRoutingTargetQuestAndDataContainerRouteThroughOwner(t *testing.T) {
	quest := types.NewEntity("Qxyz", "fetch", time.Time{})
	quest.SetField("ownerId", "Pabc")
	target, err := RoutingTarget(quest)
	require.NoError(t, err)
	assert.Equal(t, "Pabc", target)

	dc := types.NewEntity("Dxyz", "state", time.Time{})
	dc.SetField("ownerId", "Lhome")
	target, err = RoutingTarget(dc)
	require.NoError(t, err)
	assert.Equal(t, "Lhome", target)
}

func TestRoutingTargetMissingRelationFieldErrors(t *testing.T) {
	player := types.NewEntity("Pxyz", "avatar", time.Time{})
	_, err := RoutingTarget(player)
	assert.True(t, coreerr.IsKind(err, coreerr.KindRouting))
}

func TestOwnerOfEntityAppliesIndirectionThenHashes(t *testing.T) {
	r := NewRouter("peer-a", []string{"peer-b", "peer-c"})

	player := types.NewEntity("Pxyz", "avatar", time.Time{})
	player.SetField("locationId", "Lhome")

	ownerByEntity, err := r.OwnerOfEntity(player)
	require.NoError(t, err)
	ownerByLocation, err := r.OwnerOf("Lhome")
	require.NoError(t, err)
	assert.Equal(t, ownerByLocation, ownerByEntity)
}
