// Package shard implements the Shard Router (spec §4.3, C2): deterministic,
// hash-based ownership assignment across the peer table. Routing is
// computed locally from the sorted peer list and an id's character codes —
// there is no consensus or voted log behind it, matching the Non-goal that
// this cluster does not attempt strong cross-shard transactions.
package shard

import (
	"sort"
	"strings"
	"sync"

	"github.com/worldgs/gameserver/pkg/coreerr"
	"github.com/worldgs/gameserver/pkg/types"
)

// Router assigns an owning peer to every entity id, given the current
// sorted peer table.
type Router struct {
	mu       sync.RWMutex
	selfID   string
	peers    []string // sorted peer ids, including selfID
}

// NewRouter constructs a Router for selfID with the initial peer set.
// peers need not include selfID; it is added if missing.
func NewRouter(selfID string, peers []string) *Router {
	r := &Router{selfID: selfID}
	r.SetPeers(peers)
	return r
}

// SetPeers replaces the peer table wholesale, normalizing to a sorted,
// deduplicated list that always includes selfID.
func (r *Router) SetPeers(peers []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]bool, len(peers)+1)
	seen[r.selfID] = true
	merged := []string{r.selfID}
	for _, p := range peers {
		if seen[p] {
			continue
		}
		seen[p] = true
		merged = append(merged, p)
	}
	sort.Strings(merged)
	r.peers = merged
}

// Peers returns a snapshot of the current sorted peer table.
func (r *Router) Peers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.peers))
	copy(out, r.peers)
	return out
}

// hashID sums the character codes of id from index 1 onward (skipping the
// type-prefix letter, which carries no routing entropy of its own) and
// returns that sum modulo the peer count.
func hashID(id string, peerCount int) int {
	if peerCount <= 0 {
		return 0
	}
	var sum int
	for i := 1; i < len(id); i++ {
		sum += int(id[i])
	}
	return sum % peerCount
}

// OwnerOf returns the peer id that owns id under the current peer table.
// Ids whose type prefix cannot be classified fail with a RoutingError.
func (r *Router) OwnerOf(id string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := types.KindOf(id); !ok || len(r.peers) == 0 {
		return "", coreerr.RoutingError(id)
	}
	idx := hashID(id, len(r.peers))
	return r.peers[idx], nil
}

// IsLocal reports whether id is owned by this peer under the current table.
func (r *Router) IsLocal(id string) (bool, error) {
	owner, err := r.OwnerOf(id)
	if err != nil {
		return false, err
	}
	return owner == r.selfID, nil
}

// OwnerOfEntity returns the owning peer for a loaded entity, resolving the
// relationship indirections of spec §3 (geometry/players route through
// their location, items/bags through their top container, quests/
// data-containers through their owner) before hashing.
func (r *Router) OwnerOfEntity(e *types.Entity) (string, error) {
	target, err := RoutingTarget(e)
	if err != nil {
		return "", err
	}
	return r.OwnerOf(target)
}

// RoutingTarget resolves the id whose hash determines e's owning peer,
// applying the entity-relationship rules of spec §3:
//
//   - locations and groups route on their own id
//   - geometry and players route through their (current) location
//   - items and bags route through their top container (the first
//     segment of their containment Path)
//   - quests and data-containers route through their owner
//
// Ids that cannot be classified, or whose required relationship field is
// absent, fail with a RoutingError.
func RoutingTarget(e *types.Entity) (string, error) {
	kind, ok := types.KindOf(e.ID)
	if !ok {
		return "", coreerr.RoutingError(e.ID)
	}
	switch kind {
	case types.KindLocation, types.KindGroup:
		return e.ID, nil
	case types.KindGeometry, types.KindPlayer:
		return relatedField(e, "locationId")
	case types.KindItem, types.KindBag:
		return topContainerID(e)
	case types.KindQuest, types.KindDataContainer:
		return relatedField(e, "ownerId")
	default:
		return "", coreerr.RoutingError(e.ID)
	}
}

func relatedField(e *types.Entity, key string) (string, error) {
	v, ok := e.Fields[key]
	if !ok {
		return "", coreerr.RoutingError(e.ID)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", coreerr.RoutingError(e.ID)
	}
	return s, nil
}

// topContainerID returns the outermost container id from e's containment
// Path. An item with no recorded Path has no top container yet (it was
// never slotted), which is a routing error.
func topContainerID(e *types.Entity) (string, error) {
	if e.Path == "" {
		return "", coreerr.RoutingError(e.ID)
	}
	top, _, _ := strings.Cut(e.Path, "/")
	if top == "" {
		return "", coreerr.RoutingError(e.ID)
	}
	return top, nil
}

// SelfID returns this peer's own id.
func (r *Router) SelfID() string {
	return r.selfID
}
