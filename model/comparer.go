package model

import (
	"bytes"
	"reflect"
	"time"
)

// Comparer defines value equality and snapshotting for a property.
// The change detector uses Equal to diff current values against the
// snapshot, and Snapshot to capture a baseline that later mutation of
// the current value cannot alias.
type Comparer interface {
	// Equal reports whether two property values are equal.
	Equal(a, b any) bool

	// Snapshot returns a copy of v safe to retain as a diff baseline.
	Snapshot(v any) any
}

// DefaultComparer compares values with deep equality and snapshots by
// identity. Suitable for immutable scalar types.
type DefaultComparer struct{}

// Equal reports deep equality of a and b.
func (DefaultComparer) Equal(a, b any) bool {
	return reflect.DeepEqual(a, b)
}

// Snapshot returns v unchanged.
func (DefaultComparer) Snapshot(v any) any {
	return v
}

// BytesComparer compares byte slices by content and snapshots by copy,
// so in-place mutation of the tracked slice is detectable.
type BytesComparer struct{}

// Equal reports whether a and b hold equal byte content.
func (BytesComparer) Equal(a, b any) bool {
	ab, _ := a.([]byte)
	bb, _ := b.([]byte)
	return bytes.Equal(ab, bb)
}

// Snapshot returns an independent copy of the byte slice.
func (BytesComparer) Snapshot(v any) any {
	b, ok := v.([]byte)
	if !ok || b == nil {
		return v
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// TimeComparer compares time.Time values with time.Time.Equal, which
// ignores monotonic clock and location differences.
type TimeComparer struct{}

// Equal reports whether a and b represent the same instant.
func (TimeComparer) Equal(a, b any) bool {
	at, aok := a.(time.Time)
	bt, bok := b.(time.Time)
	if !aok || !bok {
		return reflect.DeepEqual(a, b)
	}
	return at.Equal(bt)
}

// Snapshot returns v unchanged; time.Time is immutable.
func (TimeComparer) Snapshot(v any) any {
	return v
}
