package types

import (
	"fmt"
	"time"
)

// Item is a stackable entity held in a slot of a Bag, or hidden (unslotted)
// within one (spec §3 container hierarchy).
type Item struct {
	*Entity

	ClassTSID   string
	Count       int
	StackMax    int
	Slot        int
	Hidden      bool
	ContainerID string
}

// NewItem constructs an Item entity with the given stacking parameters.
func NewItem(id, class, classTSID string, count, stackMax int) *Item {
	return &Item{
		Entity:    NewEntity(id, class, time.Time{}),
		ClassTSID: classTSID,
		Count:     count,
		StackMax:  stackMax,
		Slot:      -1,
	}
}

// Bag is a container entity holding slotted and hidden items (spec §3).
type Bag struct {
	*Entity

	ContainerID string

	slots  map[int]*Item
	hidden []*Item
}

// NewBag constructs an empty Bag entity.
func NewBag(id, class string) *Bag {
	return &Bag{
		Entity: NewEntity(id, class, time.Time{}),
		slots:  make(map[int]*Item),
	}
}

// Slot returns the item occupying slot, if any.
func (b *Bag) Slot(slot int) (*Item, bool) {
	it, ok := b.slots[slot]
	return it, ok
}

// Hidden returns the bag's unslotted items.
func (b *Bag) Hidden() []*Item {
	return b.hidden
}

// AddToSlot places newItem into slot, merging it into whatever stack
// already occupies that slot when the item classes match (spec §3/§8):
//
//   - empty slot: newItem occupies it outright, its Count unchanged.
//   - occupied by an incompatible class: an error, nothing moves.
//   - occupied by a compatible, full stack: no-op, zero moved.
//   - occupied by a compatible, partial stack: moves
//     min(existing.StackMax-existing.Count, newItem.Count) units from
//     newItem into the existing stack.
//
// It returns newItem.Count when newItem took an empty slot, otherwise the
// quantity actually merged into the existing stack (0 when nothing fit).
func (b *Bag) AddToSlot(newItem *Item, slot int) (int, error) {
	existing, occupied := b.slots[slot]
	if !occupied {
		newItem.Slot = slot
		newItem.ContainerID = b.ID
		b.slots[slot] = newItem
		return newItem.Count, nil
	}

	if existing.ClassTSID != newItem.ClassTSID {
		return 0, fmt.Errorf("slot %d occupied by incompatible item class", slot)
	}

	space := existing.StackMax - existing.Count
	if space <= 0 {
		return 0, nil
	}

	move := space
	if newItem.Count < move {
		move = newItem.Count
	}
	existing.Count += move
	newItem.Count -= move
	return move, nil
}

// AddHidden appends an item to the bag's hidden (unslotted) set.
func (b *Bag) AddHidden(item *Item) {
	item.Hidden = true
	item.Slot = -1
	item.ContainerID = b.ID
	b.hidden = append(b.hidden, item)
}

// RemoveSlot empties slot, returning whatever item occupied it.
func (b *Bag) RemoveSlot(slot int) (*Item, bool) {
	it, ok := b.slots[slot]
	if ok {
		delete(b.slots, slot)
	}
	return it, ok
}
