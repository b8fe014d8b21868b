package geom

import (
	"math"

	"github.com/paulmach/orb"
)

// Unit selects the measurement unit a Ruler reports distances in.
type Unit int

const (
	UnitMeters Unit = iota
	UnitKilometers
	UnitMiles
	UnitInches
)

// String returns the canonical spelling used in expression source.
func (u Unit) String() string {
	switch u {
	case UnitKilometers:
		return "Kilometers"
	case UnitMiles:
		return "Miles"
	case UnitInches:
		return "Inches"
	default:
		return "Meters"
	}
}

// factor converts kilometers into the unit.
func (u Unit) factor() float64 {
	switch u {
	case UnitKilometers:
		return 1
	case UnitMiles:
		return 1000.0 / 1609.344
	case UnitInches:
		return 1000.0 * 39.37
	default:
		return 1000
	}
}

// earthRadiusKm is the mean Earth radius used by the flat projection.
const earthRadiusKm = 6371.0

const rad = math.Pi / 180

// Ruler is a flat-earth approximation of geographic distance, valid near the
// anchor latitude it was built for. Longitude degrees shrink with the cosine
// of the anchor latitude; latitude degrees keep a constant scale. Rulers are
// cheap to construct, so callers build a fresh one per measured geometry
// rather than sharing an anchor across calls.
type Ruler struct {
	kx float64 // distance per degree of longitude
	ky float64 // distance per degree of latitude
}

// NewRuler builds a ruler anchored at the given latitude, reporting distances
// in the given unit.
func NewRuler(latitude float64, unit Unit) Ruler {
	mul := rad * earthRadiusKm * unit.factor()
	return Ruler{
		kx: mul * math.Cos(latitude*rad),
		ky: mul,
	}
}

// Distance returns the approximate distance between two points.
func (r Ruler) Distance(a, b orb.Point) float64 {
	dx := longDiff(a[0], b[0]) * r.kx
	dy := (a[1] - b[1]) * r.ky
	return math.Sqrt(dx*dx + dy*dy)
}

// PointOnLine returns the closest point on the line to p, the index of the
// segment it falls on, and the position along that segment in [0, 1].
func (r Ruler) PointOnLine(line orb.LineString, p orb.Point) (orb.Point, int, float64) {
	if len(line) == 0 {
		return orb.Point{}, 0, 0
	}
	if len(line) == 1 {
		return line[0], 0, 0
	}

	minDist := math.Inf(1)
	var minX, minY, minT float64
	minI := 0

	for i := 0; i < len(line)-1; i++ {
		t := 0.0
		x := line[i][0]
		y := line[i][1]
		dx := longDiff(line[i+1][0], x) * r.kx
		dy := (line[i+1][1] - y) * r.ky

		if dx != 0 || dy != 0 {
			t = (longDiff(p[0], x)*r.kx*dx + (p[1]-y)*r.ky*dy) / (dx*dx + dy*dy)
			if t > 1 {
				x = line[i+1][0]
				y = line[i+1][1]
			} else if t > 0 {
				x += (dx / r.kx) * t
				y += (dy / r.ky) * t
			}
		}

		dx = longDiff(p[0], x) * r.kx
		dy = (p[1] - y) * r.ky
		sqDist := dx*dx + dy*dy

		if sqDist < minDist {
			minDist = sqDist
			minX = x
			minY = y
			minI = i
			minT = t
		}
	}

	return orb.Point{minX, minY}, minI, math.Min(1, math.Max(0, minT))
}

// longDiff wraps a longitude difference across the antimeridian.
func longDiff(a, b float64) float64 {
	return math.Remainder(a-b, 360)
}
