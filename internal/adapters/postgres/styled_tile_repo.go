package postgres

import (
	"context"
	"time"

	"github.com/tilepass/tilepass/internal/core/domain"
)

// StyledTileRepo implements ports.StyledTileRepository.
type StyledTileRepo struct {
	db *DB
}

func NewStyledTileRepo(db *DB) *StyledTileRepo {
	return &StyledTileRepo{db: db}
}

func (r *StyledTileRepo) Record(ctx context.Context, rec *domain.StyledTileRecord) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO styled_tiles (style_id, source, z, x, y, feature_count, skipped, errors, styled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (style_id, source, z, x, y) DO UPDATE SET
			feature_count = EXCLUDED.feature_count, skipped = EXCLUDED.skipped,
			errors = EXCLUDED.errors, styled_at = EXCLUDED.styled_at
	`, rec.StyleID, rec.Source, rec.Tile.Z, rec.Tile.X, rec.Tile.Y,
		rec.FeatureCount, rec.Skipped, rec.Errors, rec.StyledAt)
	return err
}

func (r *StyledTileRepo) RecentForStyle(ctx context.Context, styleID string, since time.Time, limit int) ([]domain.StyledTileRecord, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT style_id, source, z, x, y, feature_count, skipped, errors, styled_at
		FROM styled_tiles
		WHERE style_id = $1 AND styled_at >= $2
		ORDER BY styled_at DESC
		LIMIT $3
	`, styleID, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.StyledTileRecord
	for rows.Next() {
		var rec domain.StyledTileRecord
		if err := rows.Scan(
			&rec.StyleID, &rec.Source, &rec.Tile.Z, &rec.Tile.X, &rec.Tile.Y,
			&rec.FeatureCount, &rec.Skipped, &rec.Errors, &rec.StyledAt,
		); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *StyledTileRepo) DeleteForStyle(ctx context.Context, styleID string) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM styled_tiles WHERE style_id = $1`, styleID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *StyledTileRepo) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM styled_tiles WHERE styled_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
