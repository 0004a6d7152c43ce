// Package storage implements the Storage Port (spec §4.2, C1): a thin,
// swappable persistence boundary keyed by entity id, with table selection
// by id prefix so distinct entity kinds can live in distinct buckets.
package storage

import (
	"context"
	"errors"

	"github.com/worldgs/gameserver/pkg/coreerr"
	"github.com/worldgs/gameserver/pkg/types"
)

// ErrNotFound is returned by Read when no record exists for the given id.
var ErrNotFound = errors.New("storage: record not found")

// Store is the persistence boundary every entity load/save goes through.
// Implementations must be safe for concurrent use.
type Store interface {
	// Open prepares the store for use (opening files, creating buckets).
	Open(ctx context.Context) error
	// Close releases any held resources.
	Close() error

	// Read loads the raw record bytes for id. Returns ErrNotFound if absent.
	Read(ctx context.Context, id string) ([]byte, error)
	// Write upserts the raw record bytes for id.
	Write(ctx context.Context, id string, data []byte) error
	// Delete removes the record for id. Deleting an absent id is not an
	// error.
	Delete(ctx context.Context, id string) error
}

// TableSelector maps an entity id to the name of the table (bucket) that
// should hold it. The default selector groups entities by their type-prefix
// kind (spec §3), giving each Kind ('L','R','I','B','P','Q','D','G') its own
// table.
type TableSelector func(id string) string

// DefaultTableSelector groups records by entity kind, falling back to a
// shared "misc" table for unclassifiable ids.
func DefaultTableSelector(id string) string {
	kind, ok := types.KindOf(id)
	if !ok {
		return "misc"
	}
	switch kind {
	case types.KindLocation:
		return "locations"
	case types.KindGroup:
		return "groups"
	case types.KindItem:
		return "items"
	case types.KindBag:
		return "bags"
	case types.KindPlayer:
		return "players"
	case types.KindQuest:
		return "quests"
	case types.KindDataContainer:
		return "datacontainers"
	case types.KindGeometry:
		return "geometry"
	default:
		return "misc"
	}
}

// wrapNotFound maps a backend-specific not-found signal to ErrNotFound,
// and any other I/O failure to a coreerr transient-storage error.
func wrapNotFound(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) {
		return err
	}
	return coreerr.StorageTransient("storage read/write failed", err)
}
