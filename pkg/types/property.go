package types

import "math"

// Property is a bounded integer cell with inclusive bottom <= value <= top,
// supporting atomic set/inc/dec/mult operations that saturate at the
// bounds and round deterministically (spec §3, §8).
type Property struct {
	bottom, top int64
	value       int64
	changed     bool
}

// NewProperty constructs a Property, clamping the initial value to bounds.
func NewProperty(bottom, top, value int64) *Property {
	if value > top {
		value = top
	}
	if value < bottom {
		value = bottom
	}
	return &Property{bottom: bottom, top: top, value: value}
}

// Value returns the current value.
func (p *Property) Value() int64 { return p.value }

// Bounds returns the inclusive [bottom, top] range.
func (p *Property) Bounds() (int64, int64) { return p.bottom, p.top }

// Set assigns v, rounding half away from zero, clamped to bounds. Returns
// the resulting value.
func (p *Property) Set(v float64) int64 {
	rv := int64(math.Round(v))
	rv = clamp(rv, p.bottom, p.top)
	p.value = rv
	p.changed = true
	return rv
}

// Inc increases the value by floor(delta), saturating at top. Returns the
// delta actually applied: min(top-value, floor(delta)).
func (p *Property) Inc(delta float64) int64 {
	d := int64(math.Floor(delta))
	room := p.top - p.value
	applied := d
	if applied > room {
		applied = room
	}
	p.value += applied
	p.changed = true
	return applied
}

// Dec decreases the value by floor(delta), saturating at bottom. Returns
// the (negative) delta actually applied: -min(value-bottom, floor(delta)).
func (p *Property) Dec(delta float64) int64 {
	d := int64(math.Floor(delta))
	room := p.value - p.bottom
	applied := d
	if applied > room {
		applied = room
	}
	p.value -= applied
	p.changed = true
	return -applied
}

// Mult multiplies the value by factor, rounds half away from zero, then
// clamps to bounds. Returns the resulting value.
func (p *Property) Mult(factor float64) int64 {
	product := float64(p.value) * factor
	rv := int64(math.Round(product))
	rv = clamp(rv, p.bottom, p.top)
	p.value = rv
	p.changed = true
	return rv
}

// Changed reports whether the value has mutated since the last
// ConsumeChanged call.
func (p *Property) Changed() bool { return p.changed }

// ConsumeChanged reads and clears the changed flag, for the outgoing
// change-message builder.
func (p *Property) ConsumeChanged() bool {
	c := p.changed
	p.changed = false
	return c
}

func clamp(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
