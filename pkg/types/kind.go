package types

import "strings"

// Kind is the entity type prefix encoded in the first character of every
// entity id (spec §3).
type Kind byte

const (
	KindLocation      Kind = 'L'
	KindGroup         Kind = 'R'
	KindItem          Kind = 'I'
	KindBag           Kind = 'B'
	KindPlayer        Kind = 'P'
	KindQuest         Kind = 'Q'
	KindDataContainer Kind = 'D'
	KindGeometry      Kind = 'G'
)

// String renders the kind as its single-letter canonical prefix.
func (k Kind) String() string { return string(rune(k)) }

// KindOf classifies an entity id by its first character. The id prefix is
// immutable after creation and determines the ownership class used by the
// shard router (C2).
func KindOf(id string) (Kind, bool) {
	if id == "" {
		return 0, false
	}
	c := strings.ToUpper(id)[0]
	switch Kind(c) {
	case KindLocation, KindGroup, KindItem, KindBag, KindPlayer, KindQuest, KindDataContainer, KindGeometry:
		return Kind(c), true
	default:
		return 0, false
	}
}
