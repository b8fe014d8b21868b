//go:build integration
// +build integration

package http_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tilepass/tilepass/internal/adapters/http"
	"github.com/tilepass/tilepass/internal/adapters/postgres"
	"github.com/tilepass/tilepass/internal/core/domain"
	"github.com/tilepass/tilepass/internal/core/usecases"
	"github.com/tilepass/tilepass/internal/pkg/config"
)

// setupTestDB connects to the test database and returns a clean DB instance.
func setupTestDB(t *testing.T) *postgres.DB {
	cfg, err := config.Load("tilepass-test")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	dsn := cfg.Database.DSN()
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}

	db := &postgres.DB{Pool: pool}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("ping db: %v", err)
	}

	return db
}

// setupTestDeps creates dependencies with real DB and repos, no cache.
func setupTestDeps(t *testing.T, db *postgres.DB) *http.Dependencies {
	styleRepo := postgres.NewStyleRepo(db)
	sourceRepo := postgres.NewTileSourceRepo(db)
	styledRepo := postgres.NewStyledTileRepo(db)

	styles := usecases.NewStyleService(styleRepo, nil, nil)
	return &http.Dependencies{
		Styles:  styles,
		Sources: usecases.NewSourceService(sourceRepo),
		Eval:    usecases.NewEvalService(styles, sourceRepo, nil, styledRepo, nil, nil),
		DB:      db,
	}
}

// seedTestStyle inserts a test style anchored at Bilbao and returns its UUID.
func seedTestStyle(t *testing.T, db *postgres.DB, slug string) string {
	ctx := context.Background()
	expression := `["distance", {"type": "Point", "coordinates": [-2.935, 43.263]}]`
	reference := `{"type": "Point", "coordinates": [-2.935, 43.263]}`
	var id string
	if err := db.Pool.QueryRow(ctx, `
		INSERT INTO styles (slug, name, expression, unit, reference, reference_geom, active)
		VALUES ($1, $2, $3, 'Meters', $4, ST_GeomFromGeoJSON($4)::geography, true)
		ON CONFLICT (slug) DO UPDATE SET name = EXCLUDED.name
		RETURNING id
	`, slug, "Test Style "+slug, expression, reference).Scan(&id); err != nil {
		t.Fatalf("seed style: %v", err)
	}
	return id
}

// seedTestSource inserts a test tile source and returns its UUID.
func seedTestSource(t *testing.T, db *postgres.DB, slug string) string {
	ctx := context.Background()
	var id string
	if err := db.Pool.QueryRow(ctx, `
		INSERT INTO tile_sources (slug, name, url_template, min_zoom, max_zoom, active)
		VALUES ($1, $2, 'https://tiles.example.com/{z}/{x}/{y}.mvt', 0, 14, true)
		ON CONFLICT (slug) DO UPDATE SET name = EXCLUDED.name
		RETURNING id
	`, slug, "Test Source "+slug).Scan(&id); err != nil {
		t.Fatalf("seed source: %v", err)
	}
	return id
}

// TestListStyles_Integration_WithRealDB tests style listing against real database.
func TestListStyles_Integration_WithRealDB(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db := setupTestDB(t)
	defer db.Pool.Close()

	// Seed test data
	seedTestStyle(t, db, "test_coastline")
	seedTestStyle(t, db, "test_rivers")

	// Create app with real repos
	deps := setupTestDeps(t, db)
	app := setupApp(deps)

	req := httptest.NewRequest("GET", "/v1/styles", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("test request: %v", err)
	}

	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result struct {
		Data       []domain.Style      `json:"data"`
		Pagination struct{ Total int } `json:"pagination"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if result.Pagination.Total < 2 {
		t.Errorf("expected at least 2 styles, got %d", result.Pagination.Total)
	}
}

// TestGetStyle_Integration tests style lookup against real database.
func TestGetStyle_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db := setupTestDB(t)
	defer db.Pool.Close()

	slug := "test_integ_" + time.Now().Format("20060102150405")
	seedTestStyle(t, db, slug)

	deps := setupTestDeps(t, db)
	app := setupApp(deps)

	req := httptest.NewRequest("GET", "/v1/styles/"+slug, nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("test request: %v", err)
	}

	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var style domain.Style
	if err := json.NewDecoder(resp.Body).Decode(&style); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if style.Slug != slug {
		t.Errorf("expected slug %s, got %s", slug, style.Slug)
	}
}

// TestNearbyStyles_Integration tests the geospatial query against real database.
func TestNearbyStyles_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db := setupTestDB(t)
	defer db.Pool.Close()

	// Bilbao coordinates: 43.263, -2.935
	seedTestStyle(t, db, "test_spatial")

	deps := setupTestDeps(t, db)
	app := setupApp(deps)

	// Search near Bilbao
	req := httptest.NewRequest("GET", "/v1/styles/near?lat=43.263&lon=-2.935&radius=5000", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("test request: %v", err)
	}

	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var styles []domain.Style
	if err := json.NewDecoder(resp.Body).Decode(&styles); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if len(styles) == 0 {
		t.Error("expected at least 1 nearby style, got 0")
	}
}

// TestGetSource_Integration tests tile source lookup against real database.
func TestGetSource_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db := setupTestDB(t)
	defer db.Pool.Close()

	slug := "test_src_" + time.Now().Format("20060102150405")
	seedTestSource(t, db, slug)

	deps := setupTestDeps(t, db)
	app := setupApp(deps)

	req := httptest.NewRequest("GET", "/v1/sources/"+slug, nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("test request: %v", err)
	}

	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var source domain.TileSource
	if err := json.NewDecoder(resp.Body).Decode(&source); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if source.MaxZoom != 14 {
		t.Errorf("expected max_zoom 14, got %d", source.MaxZoom)
	}
}

// TestEvaluateStyle_Integration styles an ad-hoc feature against a stored style.
func TestEvaluateStyle_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db := setupTestDB(t)
	defer db.Pool.Close()

	slug := "test_eval_" + time.Now().Format("20060102150405")
	seedTestStyle(t, db, slug)

	deps := setupTestDeps(t, db)
	app := setupApp(deps)

	// A point roughly 1km east of the reference
	body := `{"geometry": {"type": "Point", "coordinates": [-2.9227, 43.263]}, "zoom": 14}`
	req := httptest.NewRequest("POST", "/v1/styles/"+slug+"/evaluate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("test request: %v", err)
	}

	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var eval domain.Evaluation
	if err := json.NewDecoder(resp.Body).Decode(&eval); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if eval.Value < 500 || eval.Value > 1500 {
		t.Errorf("expected roughly 1km, got %f meters", eval.Value)
	}
	if eval.Unit != "Meters" {
		t.Errorf("expected Meters, got %s", eval.Unit)
	}
}
