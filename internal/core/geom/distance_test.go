package geom

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
)

func TestSegmentsCross(t *testing.T) {
	tests := []struct {
		name       string
		a, b, c, d orb.Point
		want       bool
	}{
		{"crossing diagonals", orb.Point{0, 0}, orb.Point{1, 1}, orb.Point{0, 1}, orb.Point{1, 0}, true},
		{"off-center crossing", orb.Point{0, 0}, orb.Point{4, 4}, orb.Point{0, 3}, orb.Point{3, 0}, true},
		{"parallel", orb.Point{0, 0}, orb.Point{1, 0}, orb.Point{0, 1}, orb.Point{1, 1}, false},
		{"collinear overlap", orb.Point{0, 0}, orb.Point{2, 0}, orb.Point{1, 0}, orb.Point{3, 0}, false},
		{"endpoint touch", orb.Point{0, 0}, orb.Point{0, 2}, orb.Point{0, 1}, orb.Point{5, 1}, false},
		{"shared endpoint", orb.Point{0, 0}, orb.Point{1, 1}, orb.Point{1, 1}, orb.Point{2, 0}, false},
		{"disjoint", orb.Point{0, 0}, orb.Point{1, 0}, orb.Point{3, 2}, orb.Point{4, 3}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := segmentsCross(tt.a, tt.b, tt.c, tt.d); got != tt.want {
				t.Errorf("segmentsCross(%v, %v, %v, %v) = %v, want %v", tt.a, tt.b, tt.c, tt.d, got, tt.want)
			}
		})
	}
}

func TestCalculateDistance_SameGeometryIsZero(t *testing.T) {
	geoms := []orb.Geometry{
		orb.Point{2, 3},
		orb.MultiPoint{{1, 1}, {2, 2}},
		orb.LineString{{0, 0}, {1, 1}, {2, 0}},
		orb.MultiLineString{{{0, 0}, {1, 0}}, {{0, 1}, {1, 1}}},
	}

	for _, g := range geoms {
		if d := CalculateDistance(g, g, UnitMeters); d != 0 {
			t.Errorf("CalculateDistance(%s, itself) = %v, want 0", g.GeoJSONType(), d)
		}
	}
}

func TestCalculateDistance_OneDegreeNorth(t *testing.T) {
	d := CalculateDistance(orb.Point{0, 0}, orb.Point{0, 1}, UnitMeters)
	if relErr(d, 111195) > 0.005 {
		t.Fatalf("one degree north measured %.2f m, want ~111195 m", d)
	}
}

func TestCalculateDistance_CrossingDiagonals(t *testing.T) {
	feature := orb.LineString{{0, 0}, {1, 1}}
	ref := orb.LineString{{0, 1}, {1, 0}}
	if d := CalculateDistance(feature, ref, UnitMeters); d != 0 {
		t.Fatalf("crossing diagonals measured %v, want 0", d)
	}
}

func TestCalculateDistance_VertexTouchMeasuresZero(t *testing.T) {
	// No proper crossing here, but a vertex of the reference lies on the
	// feature segment, so the endpoint distance bottoms out at zero.
	feature := orb.LineString{{0, 0}, {0, 2}}
	ref := orb.LineString{{0, 1}, {5, 1}}
	if d := CalculateDistance(feature, ref, UnitMeters); d != 0 {
		t.Fatalf("vertex touch measured %v, want 0", d)
	}
}

func TestDistanceLineToLine_EndpointMinimum(t *testing.T) {
	r := NewRuler(0, UnitMeters)
	line1 := orb.LineString{{0, 0}, {1, 0}}
	line2 := orb.LineString{{0, 1}, {1, 2}}

	got := distanceLineToLine(line1, line2, r)

	p1d := distanceToLine(orb.Point{0, 0}, line2, r)
	p2d := distanceToLine(orb.Point{1, 0}, line2, r)
	q1d := distanceToLine(orb.Point{0, 1}, line1, r)
	q2d := distanceToLine(orb.Point{1, 2}, line1, r)

	want := math.Min(math.Min(p1d, p2d), math.Min(q1d, q2d))
	if got != want {
		t.Fatalf("distanceLineToLine = %v, want endpoint minimum %v", got, want)
	}
}

func TestDistanceLineToLine_SkipsFarEndpoint(t *testing.T) {
	// The segment-pair scan measures q1 against (p1,p2) twice and never q2.
	// Here q2 is the closest endpoint, so the reported distance overshoots
	// the true minimum; this pins that behavior.
	r := NewRuler(0, UnitMeters)
	line1 := orb.LineString{{0, 0}, {10, 0}}
	line2 := orb.LineString{{5, 9}, {5, 1}}

	got := distanceLineToLine(line1, line2, r)

	q2d := distanceToLine(orb.Point{5, 1}, line1, r)
	if got <= q2d {
		t.Fatalf("distanceLineToLine = %v, expected it to overshoot the q2 distance %v", got, q2d)
	}

	p1d := distanceToLine(orb.Point{0, 0}, line2, r)
	p2d := distanceToLine(orb.Point{10, 0}, line2, r)
	q1d := distanceToLine(orb.Point{5, 9}, line1, r)
	want := math.Min(math.Min(p1d, p2d), q1d)
	if got != want {
		t.Fatalf("distanceLineToLine = %v, want %v (minimum without q2)", got, want)
	}
}

func TestCalculateDistance_UnitsProportional(t *testing.T) {
	feature := orb.Point{-2.935, 43.263}
	ref := orb.LineString{{-2.634, 43.171}, {-2.640, 43.180}}

	meters := CalculateDistance(feature, ref, UnitMeters)
	km := CalculateDistance(feature, ref, UnitKilometers)

	if relErr(meters/km, 1000) > 1e-9 {
		t.Fatalf("meters/kilometers = %v, want 1000", meters/km)
	}
}

func TestCalculateDistance_MultiPointFeature(t *testing.T) {
	feature := orb.MultiPoint{{0, 5}, {0, 1}}
	ref := orb.Point{0, 0}

	d := CalculateDistance(feature, ref, UnitMeters)
	if relErr(d, 111195) > 0.005 {
		t.Fatalf("nearest member measured %.2f m, want ~111195 m", d)
	}
}

func TestCalculateDistance_MultiLineFeatureCrossing(t *testing.T) {
	feature := orb.MultiLineString{
		{{0, 5}, {1, 5}},
		{{0, 0}, {1, 1}},
	}
	ref := orb.LineString{{0, 1}, {1, 0}}

	if d := CalculateDistance(feature, ref, UnitMeters); d != 0 {
		t.Fatalf("multi-line with crossing member measured %v, want 0", d)
	}
}

func TestLineDistanceToGeometry_MultiPointReference(t *testing.T) {
	line := orb.LineString{{0, 0}, {10, 0}}

	d := LineDistanceToGeometry(line, orb.MultiPoint{{5, 2}, {5, 1}}, UnitMeters)
	if relErr(d, 111195) > 0.005 {
		t.Errorf("nearest reference point measured %.2f m, want ~111195 m", d)
	}

	if d := LineDistanceToGeometry(line, orb.MultiPoint{{5, 0}, {9, 3}}, UnitMeters); d != 0 {
		t.Errorf("reference point on the line measured %v, want 0", d)
	}
}

func TestDistance_UnsupportedShapes(t *testing.T) {
	polygon := orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}
	line := orb.LineString{{0, 0}, {1, 0}}

	if d := PointDistanceToGeometry(orb.Point{0, 0}, polygon, UnitMeters); !math.IsInf(d, 1) {
		t.Errorf("point vs polygon = %v, want +Inf", d)
	}
	if d := LineDistanceToGeometry(line, polygon, UnitMeters); d != NotComputable {
		t.Errorf("line vs polygon = %v, want %v", d, NotComputable)
	}
	if d := CalculateDistance(polygon, orb.Point{0, 0}, UnitMeters); d != NotComputable {
		t.Errorf("polygon feature = %v, want %v", d, NotComputable)
	}
	if d := LineDistanceToGeometry(orb.LineString{}, orb.Point{0, 0}, UnitMeters); d != NotComputable {
		t.Errorf("empty line = %v, want %v", d, NotComputable)
	}
}
