package expr

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/tilepass/tilepass/internal/core/geom"
)

var (
	errNotObjectArgument  = errors.New("'distance' expression needs to be an array with one/two arguments.")
	errNoUsableGeometry   = errors.New("'distance' expression requires valid geojson source that contains Point/LineString geometry type.")
	errMissingContext     = errors.New("distance expression requirs valid feature and canonical information.")
	errUnsupportedFeature = errors.New("distance expression currently only supports feature with Point geometry.")
)

// Distance measures how far an evaluated feature lies from a reference
// geometry fixed at parse time. It holds the raw reference document for
// serialization alongside the geometry derived from it for evaluation.
type Distance struct {
	source   map[string]any
	geometry orb.Geometry
	unit     geom.Unit
}

func parseDistance(args []any) (Expression, error) {
	if len(args) != 2 && len(args) != 3 {
		return nil, fmt.Errorf("'distance' expression requires exactly one argument, but found %d instead.", len(args)-1)
	}

	unit := geom.UnitMeters
	if len(args) == 3 {
		// A non-string third argument and an unrecognized unit name both
		// fall back to meters without complaint.
		if name, ok := args[2].(string); ok {
			switch name {
			case "Meters", "Metres":
				unit = geom.UnitMeters
			case "Kilometers":
				unit = geom.UnitKilometers
			case "Miles":
				unit = geom.UnitMiles
			case "Inches":
				unit = geom.UnitInches
			}
		}
	}

	source, ok := args[1].(map[string]any)
	if !ok {
		return nil, errNotObjectArgument
	}
	geometry, err := referenceGeometry(source)
	if err != nil {
		return nil, err
	}
	return &Distance{source: source, geometry: geometry, unit: unit}, nil
}

// referenceGeometry decodes the reference document and extracts the first
// Point or LineString it contains. The document may be a bare geometry, a
// feature, or a feature collection; collection members with other geometry
// types are skipped.
func referenceGeometry(source map[string]any) (orb.Geometry, error) {
	data, err := json.Marshal(source)
	if err != nil {
		return nil, err
	}
	docType, _ := source["type"].(string)
	switch docType {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, err
		}
		for _, f := range fc.Features {
			if g, ok := usableGeometry(f.Geometry); ok {
				return g, nil
			}
		}
		return nil, errNoUsableGeometry
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, err
		}
		if g, ok := usableGeometry(f.Geometry); ok {
			return g, nil
		}
		return nil, errNoUsableGeometry
	default:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, err
		}
		if gg, ok := usableGeometry(g.Geometry()); ok {
			return gg, nil
		}
		return nil, errNoUsableGeometry
	}
}

func usableGeometry(g orb.Geometry) (orb.Geometry, bool) {
	switch g.(type) {
	case orb.Point, orb.LineString:
		return g, true
	}
	return nil, false
}

func (d *Distance) Operator() string { return "distance" }

// Unit returns the unit the expression reports distances in.
func (d *Distance) Unit() geom.Unit { return d.unit }

// Reference returns the geometry features are measured against.
func (d *Distance) Reference() orb.Geometry { return d.geometry }

// Evaluate projects the feature's tile-local geometry into geographic
// coordinates and measures its shortest distance to the reference
// geometry. Only Point and LineString features are supported.
func (d *Distance) Evaluate(ectx *EvalContext) (Value, error) {
	if ectx == nil || ectx.Feature == nil || ectx.Tile == nil || ectx.Projector == nil {
		return nil, errMissingContext
	}
	switch ectx.Feature.Geometry.(type) {
	case orb.Point, orb.LineString:
	default:
		return nil, errUnsupportedFeature
	}
	geographic, err := ectx.Projector.ToGeographic(ectx.Feature.Geometry, *ectx.Tile, ectx.Feature.Extent)
	if err != nil {
		return nil, err
	}
	return geom.CalculateDistance(geographic, d.geometry, d.unit), nil
}

// Serialize reproduces the raw array form from the retained reference
// document. The unit is not re-emitted, so a round-tripped expression
// always parses back with the default unit.
func (d *Distance) Serialize() Value {
	source := d.source
	if source == nil {
		slog.Error("failed to serialize 'distance' expression: reference document is not an object")
		source = map[string]any{}
	}
	encoded := make(map[string]any, len(source))
	for k, v := range source {
		encoded[k] = convertValue(v)
	}
	return []any{d.Operator(), encoded}
}

func (d *Distance) Equal(other Expression) bool {
	o, ok := other.(*Distance)
	if !ok {
		return false
	}
	return reflect.DeepEqual(d.source, o.source) && orb.Equal(d.geometry, o.geometry) && d.unit == o.unit
}

// PossibleOutputs returns nil: the distance depends on the evaluated
// feature, so the output set is not statically known.
func (d *Distance) PossibleOutputs() []Value { return nil }
