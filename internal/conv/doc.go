// Package conv provides checked integer conversions.
//
// Slot indices and capacities are stored as uint32 inside handles while the
// public API accepts int. These helpers reject values that would silently
// wrap instead of truncating them.
package conv
