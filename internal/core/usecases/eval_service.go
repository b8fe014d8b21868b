package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"

	"github.com/tilepass/tilepass/internal/core/domain"
	"github.com/tilepass/tilepass/internal/core/expr"
	"github.com/tilepass/tilepass/internal/core/ports"
	"github.com/tilepass/tilepass/internal/pkg/geospatial"
)

const (
	defaultEvalZoom = 14
	maxEvalZoom     = 22
)

// EvalService evaluates styles against tile features.
type EvalService struct {
	styles  *StyleService
	sources ports.TileSourceRepository
	tiles   ports.TileFetcher
	styled  ports.StyledTileRepository
	cache   ports.CacheService
	events  ports.EventPublisher

	projector geospatial.TileProjector
}

// NewEvalService creates a new EvalService.
func NewEvalService(
	styles *StyleService,
	sources ports.TileSourceRepository,
	tiles ports.TileFetcher,
	styled ports.StyledTileRepository,
	cache ports.CacheService,
	events ports.EventPublisher,
) *EvalService {
	return &EvalService{
		styles:  styles,
		sources: sources,
		tiles:   tiles,
		styled:  styled,
		cache:   cache,
		events:  events,
	}
}

// EvaluateFeature styles a single ad-hoc feature supplied as a GeoJSON
// geometry. The feature is pinned to its containing tile at the given
// zoom so it is evaluated exactly like a tile feature would be.
func (s *EvalService) EvaluateFeature(ctx context.Context, styleID string, geometry []byte, zoom int) (*domain.Evaluation, error) {
	style, err := s.styles.Resolve(ctx, styleID)
	if err != nil {
		return nil, err
	}
	node, err := s.styles.Compile(style)
	if err != nil {
		return nil, err
	}

	ref, value, err := s.evaluateAdHoc(node, geometry, zoom)
	if err != nil {
		return nil, err
	}
	return &domain.Evaluation{
		StyleID: style.ID,
		Tile:    ref,
		Value:   value,
		Unit:    style.Unit,
	}, nil
}

// EvaluateExpression styles an ad-hoc feature with an inline expression
// that is not stored in the registry.
func (s *EvalService) EvaluateExpression(ctx context.Context, expression, geometry []byte, zoom int) (*domain.Evaluation, error) {
	node, err := expr.ParseJSON(expression)
	if err != nil {
		return nil, err
	}
	unit := ""
	if d, ok := node.(*expr.Distance); ok {
		unit = d.Unit().String()
	}

	ref, value, err := s.evaluateAdHoc(node, geometry, zoom)
	if err != nil {
		return nil, err
	}
	return &domain.Evaluation{
		Tile:  ref,
		Value: value,
		Unit:  unit,
	}, nil
}

// evaluateAdHoc pins a geographic geometry to its containing tile at the
// given zoom and styles it in tile-local space.
func (s *EvalService) evaluateAdHoc(node expr.Expression, geometry []byte, zoom int) (domain.TileRef, float64, error) {
	g, err := geojson.UnmarshalGeometry(geometry)
	if err != nil {
		return domain.TileRef{}, 0, fmt.Errorf("decoding feature geometry: %w", err)
	}

	if zoom <= 0 {
		zoom = defaultEvalZoom
	}
	if zoom > maxEvalZoom {
		zoom = maxEvalZoom
	}
	tile, err := geospatial.TileFor(g.Geometry(), maptile.Zoom(zoom))
	if err != nil {
		return domain.TileRef{}, 0, err
	}
	local, err := s.projector.ToTileLocal(g.Geometry(), tile, geospatial.DefaultExtent)
	if err != nil {
		return domain.TileRef{}, 0, err
	}

	value, err := s.evaluate(node, local, tile, geospatial.DefaultExtent)
	if err != nil {
		return domain.TileRef{}, 0, err
	}
	return domain.RefFromTile(tile), value, nil
}

// EvaluateTile styles every supported feature in a tile. Results are
// cached keyed by the style version, so an updated style is never served
// stale values. Per-feature evaluation failures are counted, not fatal.
func (s *EvalService) EvaluateTile(ctx context.Context, styleID, sourceSlug string, ref domain.TileRef) (*domain.StyledTile, error) {
	if !ref.Valid() {
		return nil, fmt.Errorf("invalid tile %s", ref)
	}
	style, err := s.styles.Resolve(ctx, styleID)
	if err != nil {
		return nil, err
	}
	source, err := s.sources.GetBySlug(ctx, sourceSlug)
	if err != nil {
		return nil, err
	}
	if int(ref.Z) < source.MinZoom || int(ref.Z) > source.MaxZoom {
		return nil, fmt.Errorf("zoom %d outside source range %d-%d", ref.Z, source.MinZoom, source.MaxZoom)
	}

	// Try cache
	cacheKey := fmt.Sprintf("styled:%s:%d:%s:%s", style.ID, style.UpdatedAt.UnixNano(), source.Slug, ref)
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var st domain.StyledTile
			if err := json.Unmarshal(data, &st); err == nil {
				return &st, nil
			}
		}
	}

	node, err := s.styles.Compile(style)
	if err != nil {
		return nil, err
	}

	raw, err := s.tiles.Fetch(ctx, source, ref)
	if err != nil {
		return nil, fmt.Errorf("fetching tile %s from %s: %w", ref, source.Slug, err)
	}
	layers, err := decodeTile(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding tile %s: %w", ref, err)
	}

	tile := ref.Maptile()
	st := &domain.StyledTile{
		StyleID:  style.ID,
		Source:   source.Slug,
		Tile:     ref,
		Unit:     style.Unit,
		StyledAt: time.Now().UTC(),
	}
	for _, layer := range layers {
		if style.SourceLayer != "" && layer.Name != style.SourceLayer {
			continue
		}
		for _, feature := range layer.Features {
			switch feature.Geometry.(type) {
			case orb.Point, orb.LineString:
			default:
				st.Skipped++
				continue
			}
			value, err := s.evaluate(node, feature.Geometry, tile, layer.Extent)
			if err != nil {
				st.Errors++
				continue
			}
			st.Features = append(st.Features, domain.StyledFeature{
				FeatureID: featureID(feature.ID),
				Layer:     layer.Name,
				Value:     value,
			})
		}
	}

	if s.styled != nil {
		_ = s.styled.Record(ctx, &domain.StyledTileRecord{
			StyleID:      st.StyleID,
			Source:       st.Source,
			Tile:         st.Tile,
			FeatureCount: len(st.Features),
			Skipped:      st.Skipped,
			Errors:       st.Errors,
			StyledAt:     st.StyledAt,
		})
	}
	if s.cache != nil {
		if data, err := json.Marshal(st); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, 300)
		}
	}
	return st, nil
}

// RestyleTile re-evaluates a tile and broadcasts the result.
func (s *EvalService) RestyleTile(ctx context.Context, styleID, sourceSlug string, ref domain.TileRef) (*domain.StyledTile, error) {
	st, err := s.EvaluateTile(ctx, styleID, sourceSlug, ref)
	if err != nil {
		return nil, err
	}
	if s.events != nil {
		_ = s.events.PublishStyledTile(ctx, st)
	}
	return st, nil
}

// RestyleRecent re-evaluates every tile styled with the style inside the
// lookback window and broadcasts the fresh results. Tiles that fail are
// skipped; the count of restyled tiles is returned.
func (s *EvalService) RestyleRecent(ctx context.Context, styleID string, lookback time.Duration, limit int) (int, error) {
	if s.styled == nil {
		return 0, nil
	}
	records, err := s.styled.RecentForStyle(ctx, styleID, time.Now().Add(-lookback), limit)
	if err != nil {
		return 0, fmt.Errorf("listing styled tiles: %w", err)
	}

	restyled := 0
	for _, rec := range records {
		if _, err := s.RestyleTile(ctx, rec.StyleID, rec.Source, rec.Tile); err != nil {
			continue
		}
		restyled++
	}
	return restyled, nil
}

// ForgetStyle drops the styled-tile bookkeeping for a deleted style.
func (s *EvalService) ForgetStyle(ctx context.Context, styleID string) (int64, error) {
	if s.styled == nil {
		return 0, nil
	}
	return s.styled.DeleteForStyle(ctx, styleID)
}

func (s *EvalService) evaluate(node expr.Expression, g orb.Geometry, tile maptile.Tile, extent uint32) (float64, error) {
	ectx := &expr.EvalContext{
		Feature:   &expr.Feature{Geometry: g, Extent: extent},
		Tile:      &tile,
		Projector: s.projector,
	}
	v, err := node.Evaluate(ectx)
	if err != nil {
		return 0, err
	}
	value, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("expression produced %T, want a number", v)
	}
	return value, nil
}

// decodeTile handles both gzipped and plain MVT payloads.
func decodeTile(raw []byte) (mvt.Layers, error) {
	if len(raw) > 1 && raw[0] == 0x1f && raw[1] == 0x8b {
		return mvt.UnmarshalGzipped(raw)
	}
	return mvt.Unmarshal(raw)
}

// featureID extracts a numeric feature id from the decoded tile, which
// stores it as an untyped value.
func featureID(id any) uint64 {
	switch id := id.(type) {
	case uint64:
		return id
	case int64:
		return uint64(id)
	case float64:
		return uint64(id)
	}
	return 0
}
