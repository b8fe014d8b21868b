package expr

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// Feature is a single vector-tile feature presented for evaluation. Its
// geometry is in tile-local coordinates spanning [0, Extent).
type Feature struct {
	Geometry orb.Geometry
	Extent   uint32
}

// Projector converts tile-local geometry into geographic coordinates.
type Projector interface {
	ToGeographic(g orb.Geometry, tile maptile.Tile, extent uint32) (orb.Geometry, error)
}

// EvalContext carries the per-feature inputs an expression may read. All
// fields must be set for expressions that inspect feature geometry.
type EvalContext struct {
	Feature   *Feature
	Tile      *maptile.Tile
	Projector Projector
}
