package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClockNextMonotonic(t *testing.T) {
	fixed := time.Unix(0, 1000)
	clock := NewClockWithSource(func() time.Time { return fixed })

	first := clock.Next(KindPlayer)
	second := clock.Next(KindPlayer)
	require.NotEqual(t, first, second)
	assert.True(t, first[0] == 'P' && second[0] == 'P')
	assert.Less(t, first, second)
}

func TestKindOf(t *testing.T) {
	k, ok := KindOf("p1a2b3")
	require.True(t, ok)
	assert.Equal(t, KindPlayer, k)

	_, ok = KindOf("")
	assert.False(t, ok)

	_, ok = KindOf("Z123")
	assert.False(t, ok)
}

func TestPropertySetClamps(t *testing.T) {
	p := NewProperty(0, 100, 50)
	assert.Equal(t, int64(100), p.Set(250))
	assert.Equal(t, int64(0), p.Set(-50))
	assert.True(t, p.Changed())
	assert.True(t, p.ConsumeChanged())
	assert.False(t, p.Changed())
}

func TestPropertyIncSaturates(t *testing.T) {
	p := NewProperty(0, 10, 8)
	applied := p.Inc(5)
	assert.Equal(t, int64(2), applied)
	assert.Equal(t, int64(10), p.Value())
}

func TestPropertyDecSaturates(t *testing.T) {
	p := NewProperty(0, 10, 2)
	applied := p.Dec(5)
	assert.Equal(t, int64(-2), applied)
	assert.Equal(t, int64(0), p.Value())
}

func TestPropertyMultRoundsAndClamps(t *testing.T) {
	p := NewProperty(0, 10, 4)
	assert.Equal(t, int64(6), p.Mult(1.5))
	p2 := NewProperty(0, 10, 4)
	assert.Equal(t, int64(10), p2.Mult(10))
}

func TestOrderedHashIterationOrder(t *testing.T) {
	h := NewOrderedHash()
	h.Set("b", 2)
	h.Set("a", 1)
	h.Set("c", 3)

	var seen []string
	h.Each(func(key string, value any) bool {
		seen = append(seen, key)
		return true
	})
	assert.Equal(t, []string{"a", "b", "c"}, seen)
}

func TestOrderedHashEachStopsEarly(t *testing.T) {
	h := NewOrderedHash()
	h.Set("a", 1)
	h.Set("b", 2)
	h.Set("c", 3)

	var seen []string
	h.Each(func(key string, value any) bool {
		seen = append(seen, key)
		return key != "b"
	})
	assert.Equal(t, []string{"a", "b"}, seen)
}

func TestRecordMarshalFiltersInternalAndFuncFields(t *testing.T) {
	rec := Record{
		"name":     "sword",
		"!cache":   "internal-only",
		"onEquip":  func() {},
		"quantity": 3,
	}
	raw, err := json.Marshal(rec)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "sword", decoded["name"])
	assert.Equal(t, float64(3), decoded["quantity"])
	_, hasInternal := decoded["!cache"]
	assert.False(t, hasInternal)
	_, hasFunc := decoded["onEquip"]
	assert.False(t, hasFunc)
}

func TestRefRecordRoundTrip(t *testing.T) {
	ref := NewRefRecord("P123", "owner")
	m := ref.AsMap()
	got, ok := RefRecordFromMap(m)
	require.True(t, ok)
	assert.Equal(t, ref, got)

	_, ok = RefRecordFromMap(map[string]any{"foo": "bar"})
	assert.False(t, ok)
}

func TestBagAddToSlotEmptySlot(t *testing.T) {
	bag := NewBag("B1", "bag")
	item := NewItem("I1", "item", "sword", 1, 5)

	moved, err := bag.AddToSlot(item, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, moved)
	got, ok := bag.Slot(0)
	require.True(t, ok)
	assert.Same(t, item, got)
}

func TestBagAddToSlotMergesCompatibleStack(t *testing.T) {
	bag := NewBag("B1", "bag")
	existing := NewItem("I2", "item", "potion", 3, 5)
	_, err := bag.AddToSlot(existing, 0)
	require.NoError(t, err)
	_, err = bag.AddToSlot(NewItem("I3", "item", "other", 1, 5), 1)
	require.NoError(t, err)

	incoming := NewItem("I4", "item", "potion", 4, 5)
	moved, err := bag.AddToSlot(incoming, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, moved)
	assert.Equal(t, 5, existing.Count)
	assert.Equal(t, 2, incoming.Count)
}

func TestBagAddToSlotRejectsIncompatibleClass(t *testing.T) {
	bag := NewBag("B1", "bag")
	_, err := bag.AddToSlot(NewItem("I1", "item", "sword", 1, 5), 0)
	require.NoError(t, err)

	_, err = bag.AddToSlot(NewItem("I2", "item", "shield", 1, 5), 0)
	assert.Error(t, err)
}

func TestBagAddToSlotFullStackIsNoop(t *testing.T) {
	bag := NewBag("B1", "bag")
	existing := NewItem("I1", "item", "potion", 5, 5)
	_, err := bag.AddToSlot(existing, 0)
	require.NoError(t, err)

	incoming := NewItem("I2", "item", "potion", 3, 5)
	moved, err := bag.AddToSlot(incoming, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, moved)
	assert.Equal(t, 3, incoming.Count)
}

func TestComputePath(t *testing.T) {
	assert.Equal(t, "P1/B2/I3", ComputePath([]string{"P1", "B2"}, "I3"))
	assert.Equal(t, "P1", ComputePath(nil, "P1"))
}
