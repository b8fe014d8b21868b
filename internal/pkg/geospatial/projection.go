package geospatial

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// DefaultExtent is the coordinate span of a vector tile when the layer
// does not declare one.
const DefaultExtent = 4096

// maxMercatorLat bounds the web-mercator projection; latitudes beyond it
// are clamped before projecting.
const maxMercatorLat = 85.05112878

var errEmptyGeometry = errors.New("cannot locate a tile for empty geometry")

// TileProjector converts geometry between tile-local and geographic
// coordinates using the web-mercator tiling scheme. The zero value is
// ready to use.
type TileProjector struct{}

// ToGeographic maps tile-local coordinates in [0, extent) onto
// longitude/latitude. Coordinates outside the extent are projected as-is,
// so buffered tile features keep their overhang.
func (TileProjector) ToGeographic(g orb.Geometry, tile maptile.Tile, extent uint32) (orb.Geometry, error) {
	if extent == 0 {
		extent = DefaultExtent
	}
	switch g := g.(type) {
	case orb.Point:
		return unprojectPoint(g, tile, extent), nil
	case orb.MultiPoint:
		out := make(orb.MultiPoint, len(g))
		for i, p := range g {
			out[i] = unprojectPoint(p, tile, extent)
		}
		return out, nil
	case orb.LineString:
		out := make(orb.LineString, len(g))
		for i, p := range g {
			out[i] = unprojectPoint(p, tile, extent)
		}
		return out, nil
	case orb.MultiLineString:
		out := make(orb.MultiLineString, len(g))
		for i, ls := range g {
			out[i] = make(orb.LineString, len(ls))
			for j, p := range ls {
				out[i][j] = unprojectPoint(p, tile, extent)
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported geometry type %s", g.GeoJSONType())
}

// ToTileLocal is the inverse of ToGeographic.
func (TileProjector) ToTileLocal(g orb.Geometry, tile maptile.Tile, extent uint32) (orb.Geometry, error) {
	if extent == 0 {
		extent = DefaultExtent
	}
	switch g := g.(type) {
	case orb.Point:
		return projectPoint(g, tile, extent), nil
	case orb.MultiPoint:
		out := make(orb.MultiPoint, len(g))
		for i, p := range g {
			out[i] = projectPoint(p, tile, extent)
		}
		return out, nil
	case orb.LineString:
		out := make(orb.LineString, len(g))
		for i, p := range g {
			out[i] = projectPoint(p, tile, extent)
		}
		return out, nil
	case orb.MultiLineString:
		out := make(orb.MultiLineString, len(g))
		for i, ls := range g {
			out[i] = make(orb.LineString, len(ls))
			for j, p := range ls {
				out[i][j] = projectPoint(p, tile, extent)
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported geometry type %s", g.GeoJSONType())
}

// TileFor returns the tile containing the geometry's anchor vertex, which
// is the point itself or the first vertex of the first member.
func TileFor(g orb.Geometry, zoom maptile.Zoom) (maptile.Tile, error) {
	switch g := g.(type) {
	case orb.Point:
		return maptile.At(g, zoom), nil
	case orb.MultiPoint:
		if len(g) == 0 {
			return maptile.Tile{}, errEmptyGeometry
		}
		return maptile.At(g[0], zoom), nil
	case orb.LineString:
		if len(g) == 0 {
			return maptile.Tile{}, errEmptyGeometry
		}
		return maptile.At(g[0], zoom), nil
	case orb.MultiLineString:
		if len(g) == 0 || len(g[0]) == 0 {
			return maptile.Tile{}, errEmptyGeometry
		}
		return maptile.At(g[0][0], zoom), nil
	}
	return maptile.Tile{}, fmt.Errorf("unsupported geometry type %s", g.GeoJSONType())
}

func unprojectPoint(p orb.Point, tile maptile.Tile, extent uint32) orb.Point {
	n := math.Exp2(float64(tile.Z))
	x := (float64(tile.X) + p[0]/float64(extent)) / n
	y := (float64(tile.Y) + p[1]/float64(extent)) / n

	lon := x*360 - 180
	lat := 180 / math.Pi * math.Atan(math.Sinh(math.Pi*(1-2*y)))
	return orb.Point{lon, lat}
}

func projectPoint(p orb.Point, tile maptile.Tile, extent uint32) orb.Point {
	lat := math.Max(-maxMercatorLat, math.Min(maxMercatorLat, p[1]))
	latRad := lat * math.Pi / 180

	n := math.Exp2(float64(tile.Z))
	x := (p[0] + 180) / 360
	y := (1 - math.Log(math.Tan(latRad)+1/math.Cos(latRad))/math.Pi) / 2

	px := (x*n - float64(tile.X)) * float64(extent)
	py := (y*n - float64(tile.Y)) * float64(extent)
	return orb.Point{px, py}
}
