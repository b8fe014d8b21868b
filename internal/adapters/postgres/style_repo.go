package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/tilepass/tilepass/internal/core/domain"
)

// StyleRepo implements ports.StyleRepository.
type StyleRepo struct {
	db *DB
}

func NewStyleRepo(db *DB) *StyleRepo {
	return &StyleRepo{db: db}
}

func (r *StyleRepo) Create(ctx context.Context, style *domain.Style) error {
	return r.db.Pool.QueryRow(ctx, `
		INSERT INTO styles (id, slug, name, source_layer, expression, unit, reference, reference_geom, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, ST_GeomFromGeoJSON($8)::geography, $9)
		RETURNING created_at, updated_at
	`, style.ID, style.Slug, style.Name, style.SourceLayer, style.Expression,
		style.Unit, nilIfEmptyJSON(style.Reference), nilIfEmptyJSON(style.Reference), style.Active,
	).Scan(&style.CreatedAt, &style.UpdatedAt)
}

func (r *StyleRepo) Update(ctx context.Context, style *domain.Style) error {
	return r.db.Pool.QueryRow(ctx, `
		UPDATE styles
		SET slug = $2, name = $3, source_layer = $4, expression = $5, unit = $6,
		    reference = $7, reference_geom = ST_GeomFromGeoJSON($8)::geography,
		    active = $9, updated_at = now()
		WHERE id = $1
		RETURNING created_at, updated_at
	`, style.ID, style.Slug, style.Name, style.SourceLayer, style.Expression,
		style.Unit, nilIfEmptyJSON(style.Reference), nilIfEmptyJSON(style.Reference), style.Active,
	).Scan(&style.CreatedAt, &style.UpdatedAt)
}

func (r *StyleRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM styles WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *StyleRepo) GetByID(ctx context.Context, id string) (*domain.Style, error) {
	return r.scanOne(r.db.Pool.QueryRow(ctx, `
		SELECT id, slug, name, source_layer, expression, unit, reference, active, created_at, updated_at
		FROM styles WHERE id = $1
	`, id))
}

func (r *StyleRepo) GetBySlug(ctx context.Context, slug string) (*domain.Style, error) {
	return r.scanOne(r.db.Pool.QueryRow(ctx, `
		SELECT id, slug, name, source_layer, expression, unit, reference, active, created_at, updated_at
		FROM styles WHERE slug = $1
	`, slug))
}

func (r *StyleRepo) List(ctx context.Context, activeOnly bool) ([]domain.Style, error) {
	query := `
		SELECT id, slug, name, source_layer, expression, unit, reference, active, created_at, updated_at
		FROM styles`
	if activeOnly {
		query += ` WHERE active`
	}
	query += ` ORDER BY name`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var styles []domain.Style
	for rows.Next() {
		var s domain.Style
		if err := rows.Scan(
			&s.ID, &s.Slug, &s.Name, &s.SourceLayer, &s.Expression, &s.Unit,
			&s.Reference, &s.Active, &s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, err
		}
		styles = append(styles, s)
	}
	return styles, rows.Err()
}

// FindNear returns active styles whose reference geometry lies within
// radiusMeters of the given point, nearest first.
func (r *StyleRepo) FindNear(ctx context.Context, lon, lat, radiusMeters float64, limit int) ([]domain.Style, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, slug, name, source_layer, expression, unit, reference, active, created_at, updated_at,
		       ST_Distance(reference_geom, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography) as distance
		FROM styles
		WHERE active
		  AND reference_geom IS NOT NULL
		  AND ST_DWithin(reference_geom, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography, $3)
		ORDER BY distance
		LIMIT $4
	`, lon, lat, radiusMeters, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var styles []domain.Style
	for rows.Next() {
		var s domain.Style
		var dist float64
		if err := rows.Scan(
			&s.ID, &s.Slug, &s.Name, &s.SourceLayer, &s.Expression, &s.Unit,
			&s.Reference, &s.Active, &s.CreatedAt, &s.UpdatedAt, &dist,
		); err != nil {
			return nil, err
		}
		s.Distance = &dist
		styles = append(styles, s)
	}
	return styles, rows.Err()
}

func (r *StyleRepo) scanOne(row pgx.Row) (*domain.Style, error) {
	s := &domain.Style{}
	err := row.Scan(
		&s.ID, &s.Slug, &s.Name, &s.SourceLayer, &s.Expression, &s.Unit,
		&s.Reference, &s.Active, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func nilIfEmptyJSON(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
