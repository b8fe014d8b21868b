package postgres

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/tilepass/tilepass/internal/core/domain"
)

// TileSourceRepo implements ports.TileSourceRepository.
type TileSourceRepo struct {
	db *DB
}

func NewTileSourceRepo(db *DB) *TileSourceRepo {
	return &TileSourceRepo{db: db}
}

func (r *TileSourceRepo) Create(ctx context.Context, source *domain.TileSource) error {
	bounds, err := boundsJSON(source.Bounds)
	if err != nil {
		return err
	}
	return r.db.Pool.QueryRow(ctx, `
		INSERT INTO tile_sources (id, slug, name, url_template, min_zoom, max_zoom, bounds, attribution, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (slug) DO UPDATE SET
			name = EXCLUDED.name, url_template = EXCLUDED.url_template,
			min_zoom = EXCLUDED.min_zoom, max_zoom = EXCLUDED.max_zoom,
			bounds = EXCLUDED.bounds, attribution = EXCLUDED.attribution,
			active = EXCLUDED.active
		RETURNING id, created_at
	`, source.ID, source.Slug, source.Name, source.URLTemplate,
		source.MinZoom, source.MaxZoom, bounds, source.Attribution, source.Active,
	).Scan(&source.ID, &source.CreatedAt)
}

func (r *TileSourceRepo) GetBySlug(ctx context.Context, slug string) (*domain.TileSource, error) {
	return r.scanOne(r.db.Pool.QueryRow(ctx, `
		SELECT id, slug, name, url_template, min_zoom, max_zoom, bounds, COALESCE(attribution, ''), active, created_at
		FROM tile_sources WHERE slug = $1
	`, slug))
}

func (r *TileSourceRepo) List(ctx context.Context, activeOnly bool) ([]domain.TileSource, error) {
	query := `
		SELECT id, slug, name, url_template, min_zoom, max_zoom, bounds, COALESCE(attribution, ''), active, created_at
		FROM tile_sources`
	if activeOnly {
		query += ` WHERE active`
	}
	query += ` ORDER BY name`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []domain.TileSource
	for rows.Next() {
		var s domain.TileSource
		var bounds []byte
		if err := rows.Scan(
			&s.ID, &s.Slug, &s.Name, &s.URLTemplate, &s.MinZoom, &s.MaxZoom,
			&bounds, &s.Attribution, &s.Active, &s.CreatedAt,
		); err != nil {
			return nil, err
		}
		if err := scanBounds(bounds, &s); err != nil {
			return nil, err
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

func (r *TileSourceRepo) scanOne(row pgx.Row) (*domain.TileSource, error) {
	s := &domain.TileSource{}
	var bounds []byte
	err := row.Scan(
		&s.ID, &s.Slug, &s.Name, &s.URLTemplate, &s.MinZoom, &s.MaxZoom,
		&bounds, &s.Attribution, &s.Active, &s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := scanBounds(bounds, s); err != nil {
		return nil, err
	}
	return s, nil
}

func boundsJSON(b *domain.Bounds) (interface{}, error) {
	if b == nil {
		return nil, nil
	}
	return json.Marshal(b)
}

func scanBounds(raw []byte, s *domain.TileSource) error {
	if len(raw) == 0 {
		return nil
	}
	s.Bounds = &domain.Bounds{}
	return json.Unmarshal(raw, s.Bounds)
}
