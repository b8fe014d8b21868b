package ports

import (
	"context"
	"time"

	"github.com/tilepass/tilepass/internal/core/domain"
)

// StyleRepository persists styles.
type StyleRepository interface {
	Create(ctx context.Context, style *domain.Style) error
	Update(ctx context.Context, style *domain.Style) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*domain.Style, error)
	GetBySlug(ctx context.Context, slug string) (*domain.Style, error)
	List(ctx context.Context, activeOnly bool) ([]domain.Style, error)
	// FindNear returns styles whose reference geometry lies within
	// radiusMeters of the given point.
	FindNear(ctx context.Context, lon, lat, radiusMeters float64, limit int) ([]domain.Style, error)
}

// TileSourceRepository persists tile sources.
type TileSourceRepository interface {
	Create(ctx context.Context, source *domain.TileSource) error
	GetBySlug(ctx context.Context, slug string) (*domain.TileSource, error)
	List(ctx context.Context, activeOnly bool) ([]domain.TileSource, error)
}

// StyledTileRepository tracks which tiles have been styled with which
// style version.
type StyledTileRepository interface {
	Record(ctx context.Context, rec *domain.StyledTileRecord) error
	RecentForStyle(ctx context.Context, styleID string, since time.Time, limit int) ([]domain.StyledTileRecord, error)
	DeleteForStyle(ctx context.Context, styleID string) (int64, error)
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
