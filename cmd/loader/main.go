package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/twpayne/go-polyline"

	"github.com/tilepass/tilepass/internal/adapters/postgres"
	"github.com/tilepass/tilepass/internal/core/domain"
	"github.com/tilepass/tilepass/internal/core/usecases"
	"github.com/tilepass/tilepass/internal/pkg/config"
)

// ---------------------------------------------------------------------------
// Manifest types
// ---------------------------------------------------------------------------

type Manifest struct {
	Source  string        `json:"source"`
	Sources []SourceEntry `json:"sources"`
	Styles  []StyleEntry  `json:"styles"`
}

type SourceEntry struct {
	Slug        string `json:"slug"`
	Name        string `json:"name"`
	URLTemplate string `json:"url_template"`
	MinZoom     int    `json:"min_zoom,omitempty"`
	MaxZoom     int    `json:"max_zoom,omitempty"`
	Attribution string `json:"attribution,omitempty"`
}

// StyleEntry describes one style to import. Exactly one of expression,
// reference and polyline must be set: expression is a ready-made raw
// document, reference is a GeoJSON geometry to wrap, polyline is an
// encoded line to decode and wrap.
type StyleEntry struct {
	Slug        string          `json:"slug"`
	Name        string          `json:"name"`
	SourceLayer string          `json:"source_layer,omitempty"`
	Unit        string          `json:"unit,omitempty"`
	Active      *bool           `json:"active,omitempty"`
	Expression  json.RawMessage `json:"expression,omitempty"`
	Reference   json.RawMessage `json:"reference,omitempty"`
	Polyline    string          `json:"polyline,omitempty"`
}

// ---------------------------------------------------------------------------
// Main
// ---------------------------------------------------------------------------

func main() {
	cfg, err := config.Load("tilepass-loader")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()

	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	// Load manifest
	manifestPath := "manifest.json"
	if len(os.Args) > 1 {
		manifestPath = os.Args[1]
	}

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		log.Fatalf("read manifest: %v", err)
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		log.Fatalf("parse manifest: %v", err)
	}

	log.Printf("TilePass Style Loader — %d sources, %d styles from %s",
		len(manifest.Sources), len(manifest.Styles), manifest.Source)

	// Filter styles (optional CLI arg: slug list)
	slugFilter := map[string]bool{}
	if len(os.Args) > 2 {
		for _, s := range strings.Split(os.Args[2], ",") {
			slugFilter[strings.TrimSpace(s)] = true
		}
	}

	styles := usecases.NewStyleService(postgres.NewStyleRepo(db), nil, nil)
	sources := usecases.NewSourceService(postgres.NewTileSourceRepo(db))

	// Sources first so styles land against a known tile catalogue.
	for _, entry := range manifest.Sources {
		if err := loadSource(ctx, sources, entry); err != nil {
			log.Printf("ERROR [%s]: %v", entry.Slug, err)
		}
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, 4) // max 4 concurrent imports

	for _, style := range manifest.Styles {
		if len(slugFilter) > 0 && !slugFilter[style.Slug] {
			continue
		}

		wg.Add(1)
		go func(e StyleEntry) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if err := loadStyle(ctx, styles, e); err != nil {
				log.Printf("ERROR [%s]: %v", e.Slug, err)
			}
		}(style)
	}

	wg.Wait()
	log.Println("load complete")
}

// ---------------------------------------------------------------------------
// Source import
// ---------------------------------------------------------------------------

func loadSource(ctx context.Context, svc *usecases.SourceService, e SourceEntry) error {
	src := &domain.TileSource{
		Slug:        e.Slug,
		Name:        e.Name,
		URLTemplate: e.URLTemplate,
		MinZoom:     e.MinZoom,
		MaxZoom:     e.MaxZoom,
		Attribution: e.Attribution,
		Active:      true,
	}
	if err := svc.Create(ctx, src); err != nil {
		return fmt.Errorf("upsert source: %w", err)
	}
	log.Printf("[%s] source id=%s zoom %d-%d", src.Slug, src.ID, src.MinZoom, src.MaxZoom)
	return nil
}

// ---------------------------------------------------------------------------
// Style import
// ---------------------------------------------------------------------------

func loadStyle(ctx context.Context, svc *usecases.StyleService, e StyleEntry) error {
	expression, err := buildExpression(e)
	if err != nil {
		return err
	}

	active := true
	if e.Active != nil {
		active = *e.Active
	}

	style := &domain.Style{
		Slug:        e.Slug,
		Name:        e.Name,
		SourceLayer: e.SourceLayer,
		Expression:  expression,
		Active:      active,
	}

	// Re-runs update in place rather than erroring on the slug.
	if existing, err := svc.GetBySlug(ctx, style.Slug); err == nil {
		style.ID = existing.ID
		if err := svc.Update(ctx, style); err != nil {
			return fmt.Errorf("update style: %w", err)
		}
		log.Printf("[%s] style updated id=%s unit=%s", style.Slug, style.ID, style.Unit)
		return nil
	}

	if err := svc.Create(ctx, style); err != nil {
		return fmt.Errorf("create style: %w", err)
	}
	log.Printf("[%s] style created id=%s unit=%s", style.Slug, style.ID, style.Unit)
	return nil
}

// ---------------------------------------------------------------------------
// Expression assembly
// ---------------------------------------------------------------------------

// buildExpression returns the raw distance document for a manifest entry.
// Ready-made expressions pass through untouched; reference and polyline
// entries are wrapped into one, carrying the entry's unit when set.
func buildExpression(e StyleEntry) (json.RawMessage, error) {
	set := 0
	if len(e.Expression) > 0 {
		set++
	}
	if len(e.Reference) > 0 {
		set++
	}
	if e.Polyline != "" {
		set++
	}
	if set != 1 {
		return nil, fmt.Errorf("want exactly one of expression, reference, polyline; got %d", set)
	}

	if len(e.Expression) > 0 {
		return e.Expression, nil
	}

	reference := e.Reference
	if e.Polyline != "" {
		decoded, err := decodePolyline(e.Polyline)
		if err != nil {
			return nil, err
		}
		reference = decoded
	}

	args := []any{"distance", json.RawMessage(reference)}
	if e.Unit != "" {
		args = append(args, e.Unit)
	}
	return json.Marshal(args)
}

// decodePolyline turns an encoded polyline into a GeoJSON LineString
// document. Decoded pairs are lat/lon; GeoJSON wants lon/lat.
func decodePolyline(encoded string) (json.RawMessage, error) {
	coords, _, err := polyline.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, fmt.Errorf("decode polyline: %w", err)
	}
	if len(coords) < 2 {
		return nil, fmt.Errorf("polyline has %d points, want at least 2", len(coords))
	}

	line := make(orb.LineString, len(coords))
	for i, c := range coords {
		line[i] = orb.Point{c[1], c[0]}
	}
	return geojson.NewGeometry(line).MarshalJSON()
}
