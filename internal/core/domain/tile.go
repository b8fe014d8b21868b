package domain

import (
	"fmt"

	"github.com/paulmach/orb/maptile"
)

// TileRef identifies a tile in the web-mercator pyramid.
type TileRef struct {
	Z uint32 `json:"z"`
	X uint32 `json:"x"`
	Y uint32 `json:"y"`
}

// RefFromTile converts an orb tile into a TileRef.
func RefFromTile(t maptile.Tile) TileRef {
	return TileRef{Z: uint32(t.Z), X: t.X, Y: t.Y}
}

// Maptile converts the reference into an orb tile.
func (t TileRef) Maptile() maptile.Tile {
	return maptile.New(t.X, t.Y, maptile.Zoom(t.Z))
}

// Valid reports whether the coordinates fit the pyramid at zoom Z.
func (t TileRef) Valid() bool {
	n := uint32(1) << t.Z
	return t.X < n && t.Y < n
}

// String renders the conventional z/x/y form.
func (t TileRef) String() string {
	return fmt.Sprintf("%d/%d/%d", t.Z, t.X, t.Y)
}
