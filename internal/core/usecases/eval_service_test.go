package usecases_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"

	"github.com/tilepass/tilepass/internal/core/domain"
	"github.com/tilepass/tilepass/internal/core/usecases"
)

// --- Mock TileSourceRepository ---

type mockSourceRepo struct {
	createFn    func(ctx context.Context, source *domain.TileSource) error
	getBySlugFn func(ctx context.Context, slug string) (*domain.TileSource, error)
	listFn      func(ctx context.Context, activeOnly bool) ([]domain.TileSource, error)
}

func (m *mockSourceRepo) Create(ctx context.Context, source *domain.TileSource) error {
	if m.createFn != nil {
		return m.createFn(ctx, source)
	}
	return nil
}

func (m *mockSourceRepo) GetBySlug(ctx context.Context, slug string) (*domain.TileSource, error) {
	if m.getBySlugFn != nil {
		return m.getBySlugFn(ctx, slug)
	}
	return nil, errors.New("not found")
}

func (m *mockSourceRepo) List(ctx context.Context, activeOnly bool) ([]domain.TileSource, error) {
	if m.listFn != nil {
		return m.listFn(ctx, activeOnly)
	}
	return nil, nil
}

// --- Mock TileFetcher ---

type mockFetcher struct {
	fetchFn func(ctx context.Context, source *domain.TileSource, tile domain.TileRef) ([]byte, error)
	calls   int
}

func (m *mockFetcher) Fetch(ctx context.Context, source *domain.TileSource, tile domain.TileRef) ([]byte, error) {
	m.calls++
	if m.fetchFn != nil {
		return m.fetchFn(ctx, source, tile)
	}
	return nil, errors.New("no tile")
}

// --- Mock StyledTileRepository ---

type mockStyledRepo struct {
	recordFn         func(ctx context.Context, rec *domain.StyledTileRecord) error
	recentForStyleFn func(ctx context.Context, styleID string, since time.Time, limit int) ([]domain.StyledTileRecord, error)
	deleteForStyleFn func(ctx context.Context, styleID string) (int64, error)
	purgeOlderThanFn func(ctx context.Context, cutoff time.Time) (int64, error)
}

func (m *mockStyledRepo) Record(ctx context.Context, rec *domain.StyledTileRecord) error {
	if m.recordFn != nil {
		return m.recordFn(ctx, rec)
	}
	return nil
}

func (m *mockStyledRepo) RecentForStyle(ctx context.Context, styleID string, since time.Time, limit int) ([]domain.StyledTileRecord, error) {
	if m.recentForStyleFn != nil {
		return m.recentForStyleFn(ctx, styleID, since, limit)
	}
	return nil, nil
}

func (m *mockStyledRepo) DeleteForStyle(ctx context.Context, styleID string) (int64, error) {
	if m.deleteForStyleFn != nil {
		return m.deleteForStyleFn(ctx, styleID)
	}
	return 0, nil
}

func (m *mockStyledRepo) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if m.purgeOlderThanFn != nil {
		return m.purgeOlderThanFn(ctx, cutoff)
	}
	return 0, nil
}

// --- Helpers ---

const testStyleID = "11111111-1111-1111-1111-111111111111"

func testSource() *domain.TileSource {
	return &domain.TileSource{
		ID:          "22222222-2222-2222-2222-222222222222",
		Slug:        "transit",
		Name:        "Transit tiles",
		URLTemplate: "https://tiles.example.com/{z}/{x}/{y}.mvt",
		MinZoom:     0,
		MaxZoom:     14,
		Active:      true,
	}
}

func marshalTile(t *testing.T, layers ...*mvt.Layer) []byte {
	t.Helper()
	data, err := mvt.Marshal(mvt.Layers(layers))
	if err != nil {
		t.Fatalf("marshal tile: %v", err)
	}
	return data
}

func tileLayer(name string, geoms ...orb.Geometry) *mvt.Layer {
	features := make([]*geojson.Feature, 0, len(geoms))
	for _, g := range geoms {
		features = append(features, geojson.NewFeature(g))
	}
	return &mvt.Layer{Name: name, Version: 2, Extent: 4096, Features: features}
}

func styleServiceFor(style *domain.Style) *usecases.StyleService {
	repo := &mockStyleRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.Style, error) {
			return style, nil
		},
		getBySlugFn: func(ctx context.Context, slug string) (*domain.Style, error) {
			return style, nil
		},
	}
	return usecases.NewStyleService(repo, nil, nil)
}

// --- Tests ---

func TestEvalService_EvaluateFeature(t *testing.T) {
	style := testStyle(testStyleID)
	style.Expression = distanceExpr(0, 1)
	svc := usecases.NewEvalService(styleServiceFor(style), nil, nil, nil, nil, nil)

	eval, err := svc.EvaluateFeature(context.Background(), testStyleID, []byte(`{"type": "Point", "coordinates": [0, 0]}`), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// One degree of latitude at the equator.
	want := 111195.0
	if rel := (eval.Value - want) / want; rel > 0.005 || rel < -0.005 {
		t.Errorf("expected roughly %f meters, got %f", want, eval.Value)
	}
	if eval.Unit != "Meters" {
		t.Errorf("expected Meters, got %s", eval.Unit)
	}
	if eval.Tile != (domain.TileRef{Z: 14, X: 8192, Y: 8192}) {
		t.Errorf("unexpected tile %s", eval.Tile)
	}
	if eval.StyleID != testStyleID {
		t.Errorf("unexpected style id %s", eval.StyleID)
	}
}

func TestEvalService_EvaluateFeature_BadGeometry(t *testing.T) {
	style := testStyle(testStyleID)
	svc := usecases.NewEvalService(styleServiceFor(style), nil, nil, nil, nil, nil)

	_, err := svc.EvaluateFeature(context.Background(), testStyleID, []byte(`{"bogus"`), 14)
	if err == nil || !strings.Contains(err.Error(), "decoding feature geometry") {
		t.Errorf("expected decode error, got %v", err)
	}
}

func TestEvalService_EvaluateTile(t *testing.T) {
	style := testStyle(testStyleID)
	style.Expression = distanceExpr(0, 0)

	// A point on the tile center, a line through it, and a polygon the
	// styler does not handle. The world tile center unprojects to (0, 0).
	data := marshalTile(t, tileLayer("roads",
		orb.Point{2048, 2048},
		orb.LineString{{1048, 1048}, {3048, 3048}},
		orb.Polygon{{{100, 100}, {200, 100}, {200, 200}, {100, 100}}},
	))
	fetcher := &mockFetcher{
		fetchFn: func(ctx context.Context, source *domain.TileSource, tile domain.TileRef) ([]byte, error) {
			return data, nil
		},
	}
	sources := &mockSourceRepo{
		getBySlugFn: func(ctx context.Context, slug string) (*domain.TileSource, error) {
			return testSource(), nil
		},
	}
	var recorded *domain.StyledTileRecord
	styled := &mockStyledRepo{
		recordFn: func(ctx context.Context, rec *domain.StyledTileRecord) error {
			recorded = rec
			return nil
		},
	}
	svc := usecases.NewEvalService(styleServiceFor(style), sources, fetcher, styled, nil, nil)

	st, err := svc.EvaluateTile(context.Background(), testStyleID, "transit", domain.TileRef{Z: 0, X: 0, Y: 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(st.Features) != 2 {
		t.Fatalf("expected 2 styled features, got %d", len(st.Features))
	}
	if st.Features[0].Value != 0 {
		t.Errorf("expected the center point to measure 0, got %f", st.Features[0].Value)
	}
	if st.Features[0].Layer != "roads" {
		t.Errorf("expected layer roads, got %s", st.Features[0].Layer)
	}
	if st.Features[1].Value > 1.0 {
		t.Errorf("expected the crossing line to measure near 0, got %f", st.Features[1].Value)
	}
	if st.Skipped != 1 {
		t.Errorf("expected the polygon to be skipped, got %d", st.Skipped)
	}
	if st.Errors != 0 {
		t.Errorf("expected no evaluation errors, got %d", st.Errors)
	}
	if st.Unit != "Meters" {
		t.Errorf("expected Meters, got %s", st.Unit)
	}
	if recorded == nil || recorded.FeatureCount != 2 {
		t.Errorf("expected a bookkeeping record with 2 features, got %+v", recorded)
	}
}

func TestEvalService_EvaluateTile_Gzipped(t *testing.T) {
	style := testStyle(testStyleID)
	style.Expression = distanceExpr(0, 0)

	data, err := mvt.MarshalGzipped(mvt.Layers{tileLayer("roads", orb.Point{2048, 2048})})
	if err != nil {
		t.Fatalf("marshal tile: %v", err)
	}
	fetcher := &mockFetcher{
		fetchFn: func(ctx context.Context, source *domain.TileSource, tile domain.TileRef) ([]byte, error) {
			return data, nil
		},
	}
	sources := &mockSourceRepo{
		getBySlugFn: func(ctx context.Context, slug string) (*domain.TileSource, error) {
			return testSource(), nil
		},
	}
	svc := usecases.NewEvalService(styleServiceFor(style), sources, fetcher, nil, nil, nil)

	st, err := svc.EvaluateTile(context.Background(), testStyleID, "transit", domain.TileRef{Z: 0, X: 0, Y: 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(st.Features) != 1 {
		t.Errorf("expected 1 styled feature, got %d", len(st.Features))
	}
}

func TestEvalService_EvaluateTile_SourceLayerFilter(t *testing.T) {
	style := testStyle(testStyleID)
	style.Expression = distanceExpr(0, 0)
	style.SourceLayer = "roads"

	data := marshalTile(t,
		tileLayer("roads", orb.Point{2048, 2048}),
		tileLayer("buildings", orb.Point{1000, 1000}),
	)
	fetcher := &mockFetcher{
		fetchFn: func(ctx context.Context, source *domain.TileSource, tile domain.TileRef) ([]byte, error) {
			return data, nil
		},
	}
	sources := &mockSourceRepo{
		getBySlugFn: func(ctx context.Context, slug string) (*domain.TileSource, error) {
			return testSource(), nil
		},
	}
	svc := usecases.NewEvalService(styleServiceFor(style), sources, fetcher, nil, nil, nil)

	st, err := svc.EvaluateTile(context.Background(), testStyleID, "transit", domain.TileRef{Z: 0, X: 0, Y: 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(st.Features) != 1 || st.Features[0].Layer != "roads" {
		t.Errorf("expected only the roads layer to be styled, got %+v", st.Features)
	}
}

func TestEvalService_EvaluateTile_ZoomRange(t *testing.T) {
	style := testStyle(testStyleID)
	source := testSource()
	source.MinZoom = 5
	sources := &mockSourceRepo{
		getBySlugFn: func(ctx context.Context, slug string) (*domain.TileSource, error) {
			return source, nil
		},
	}
	fetcher := &mockFetcher{}
	svc := usecases.NewEvalService(styleServiceFor(style), sources, fetcher, nil, nil, nil)

	_, err := svc.EvaluateTile(context.Background(), testStyleID, "transit", domain.TileRef{Z: 2, X: 1, Y: 1})
	if err == nil || !strings.Contains(err.Error(), "outside source range") {
		t.Errorf("expected zoom range error, got %v", err)
	}
	if fetcher.calls != 0 {
		t.Error("fetcher should not be called for an out of range tile")
	}
}

func TestEvalService_EvaluateTile_InvalidRef(t *testing.T) {
	style := testStyle(testStyleID)
	svc := usecases.NewEvalService(styleServiceFor(style), &mockSourceRepo{}, &mockFetcher{}, nil, nil, nil)

	_, err := svc.EvaluateTile(context.Background(), testStyleID, "transit", domain.TileRef{Z: 2, X: 9, Y: 0})
	if err == nil || !strings.Contains(err.Error(), "invalid tile") {
		t.Errorf("expected invalid tile error, got %v", err)
	}
}

func TestEvalService_EvaluateTile_FetchError(t *testing.T) {
	style := testStyle(testStyleID)
	fetcher := &mockFetcher{
		fetchFn: func(ctx context.Context, source *domain.TileSource, tile domain.TileRef) ([]byte, error) {
			return nil, errors.New("upstream 503")
		},
	}
	sources := &mockSourceRepo{
		getBySlugFn: func(ctx context.Context, slug string) (*domain.TileSource, error) {
			return testSource(), nil
		},
	}
	svc := usecases.NewEvalService(styleServiceFor(style), sources, fetcher, nil, nil, nil)

	_, err := svc.EvaluateTile(context.Background(), testStyleID, "transit", domain.TileRef{Z: 0, X: 0, Y: 0})
	if err == nil || !strings.Contains(err.Error(), "fetching tile") {
		t.Errorf("expected fetch error, got %v", err)
	}
}

func TestEvalService_EvaluateTile_Cache(t *testing.T) {
	style := testStyle(testStyleID)
	style.Expression = distanceExpr(0, 0)

	data := marshalTile(t, tileLayer("roads", orb.Point{2048, 2048}))
	fetcher := &mockFetcher{
		fetchFn: func(ctx context.Context, source *domain.TileSource, tile domain.TileRef) ([]byte, error) {
			return data, nil
		},
	}
	sources := &mockSourceRepo{
		getBySlugFn: func(ctx context.Context, slug string) (*domain.TileSource, error) {
			return testSource(), nil
		},
	}
	svc := usecases.NewEvalService(styleServiceFor(style), sources, fetcher, nil, newMockCache(), nil)

	for i := 0; i < 2; i++ {
		st, err := svc.EvaluateTile(context.Background(), testStyleID, "transit", domain.TileRef{Z: 0, X: 0, Y: 0})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(st.Features) != 1 {
			t.Errorf("expected 1 styled feature, got %d", len(st.Features))
		}
	}
	if fetcher.calls != 1 {
		t.Errorf("expected 1 fetch, got %d", fetcher.calls)
	}
}

func TestEvalService_RestyleTile_Publishes(t *testing.T) {
	style := testStyle(testStyleID)
	style.Expression = distanceExpr(0, 0)

	data := marshalTile(t, tileLayer("roads", orb.Point{2048, 2048}))
	fetcher := &mockFetcher{
		fetchFn: func(ctx context.Context, source *domain.TileSource, tile domain.TileRef) ([]byte, error) {
			return data, nil
		},
	}
	sources := &mockSourceRepo{
		getBySlugFn: func(ctx context.Context, slug string) (*domain.TileSource, error) {
			return testSource(), nil
		},
	}
	pub := &mockPublisher{}
	svc := usecases.NewEvalService(styleServiceFor(style), sources, fetcher, nil, nil, pub)

	if _, err := svc.RestyleTile(context.Background(), testStyleID, "transit", domain.TileRef{Z: 0, X: 0, Y: 0}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pub.styledTiles) != 1 {
		t.Fatalf("expected 1 published tile, got %d", len(pub.styledTiles))
	}
	if pub.styledTiles[0].StyleID != testStyleID {
		t.Errorf("unexpected style id %s", pub.styledTiles[0].StyleID)
	}
}

func TestEvalService_RestyleRecent(t *testing.T) {
	style := testStyle(testStyleID)
	style.Expression = distanceExpr(0, 0)

	data := marshalTile(t, tileLayer("roads", orb.Point{1024, 1024}))
	fetcher := &mockFetcher{
		fetchFn: func(ctx context.Context, source *domain.TileSource, tile domain.TileRef) ([]byte, error) {
			if tile.X == 1 {
				return nil, errors.New("upstream 503")
			}
			return data, nil
		},
	}
	sources := &mockSourceRepo{
		getBySlugFn: func(ctx context.Context, slug string) (*domain.TileSource, error) {
			return testSource(), nil
		},
	}
	styled := &mockStyledRepo{
		recentForStyleFn: func(ctx context.Context, styleID string, since time.Time, limit int) ([]domain.StyledTileRecord, error) {
			return []domain.StyledTileRecord{
				{StyleID: styleID, Source: "transit", Tile: domain.TileRef{Z: 1, X: 0, Y: 0}},
				{StyleID: styleID, Source: "transit", Tile: domain.TileRef{Z: 1, X: 1, Y: 0}},
			}, nil
		},
	}
	svc := usecases.NewEvalService(styleServiceFor(style), sources, fetcher, styled, nil, &mockPublisher{})

	restyled, err := svc.RestyleRecent(context.Background(), testStyleID, time.Hour, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if restyled != 1 {
		t.Errorf("expected 1 restyled tile after one fetch failure, got %d", restyled)
	}
}

func TestEvalService_ForgetStyle(t *testing.T) {
	styled := &mockStyledRepo{
		deleteForStyleFn: func(ctx context.Context, styleID string) (int64, error) {
			return 3, nil
		},
	}
	svc := usecases.NewEvalService(styleServiceFor(testStyle(testStyleID)), nil, nil, styled, nil, nil)

	n, err := svc.ForgetStyle(context.Background(), testStyleID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 deleted records, got %d", n)
	}
}
