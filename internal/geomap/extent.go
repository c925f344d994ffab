// Viewcache - Viewport-Driven Spatial Item Cache for Map Platforms
// Copyright 2026 MapCanvas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mapcanvas/viewcache

package geomap

// Extent is an axis-aligned bounding box [minX, minY, maxX, maxY] in the
// active map's coordinate system. It is a value type; copies are free and
// nothing owns an Extent.
type Extent [4]float64

// NewExtent builds an extent from its four corners.
func NewExtent(minX, minY, maxX, maxY float64) Extent {
	return Extent{minX, minY, maxX, maxY}
}

// MinX returns the western edge.
func (e Extent) MinX() float64 { return e[0] }

// MinY returns the southern edge.
func (e Extent) MinY() float64 { return e[1] }

// MaxX returns the eastern edge.
func (e Extent) MaxX() float64 { return e[2] }

// MaxY returns the northern edge.
func (e Extent) MaxY() float64 { return e[3] }

// Valid reports whether minX <= maxX and minY <= maxY.
func (e Extent) Valid() bool {
	return e[0] <= e[2] && e[1] <= e[3]
}

// Contains reports whether other lies fully inside e (edges included).
func (e Extent) Contains(other Extent) bool {
	return e[0] <= other[0] && e[1] <= other[1] &&
		e[2] >= other[2] && e[3] >= other[3]
}

// Intersects reports whether the two extents share any area or edge.
//
// The ledger deliberately does not use this for invalidation decisions; see
// Containment. It exists to make the containment-only precision gap
// observable in tests and to callers that want to reason about it.
func Intersects(a, b Extent) bool {
	return a[0] <= b[2] && b[0] <= a[2] && a[1] <= b[3] && b[1] <= a[3]
}

// ContainmentResult is the three-way outcome of the Containment test.
type ContainmentResult int

const (
	// ContainsNeither means neither extent fully contains the other.
	// Partial overlap is not distinguished from disjointness.
	ContainsNeither ContainmentResult = iota

	// AInsideB means the first extent lies fully inside the second.
	AInsideB

	// BInsideA means the second extent lies fully inside the first.
	// Equal extents resolve here by convention.
	BInsideA
)

// String returns a short name for the result.
func (r ContainmentResult) String() string {
	switch r {
	case AInsideB:
		return "a-inside-b"
	case BInsideA:
		return "b-inside-a"
	default:
		return "neither"
	}
}

// Containment reports which of the two extents fully contains the other.
// Equal extents contain each other; that case resolves to BInsideA. Extents
// that intersect without containment report ContainsNeither, exactly like
// disjoint extents; the ledger's invalidation semantics depend on this
// all-or-nothing behavior.
func Containment(a, b Extent) ContainmentResult {
	if a.Contains(b) {
		return BInsideA
	}
	if b.Contains(a) {
		return AInsideB
	}
	return ContainsNeither
}
