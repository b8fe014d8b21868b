package ports

import (
	"context"

	"github.com/tilepass/tilepass/internal/core/domain"
)

// EventPublisher publishes styling events to a message broker.
type EventPublisher interface {
	PublishStyleEvent(ctx context.Context, event *domain.StyleEvent) error
	PublishStyledTile(ctx context.Context, tile *domain.StyledTile) error
}

// EventSubscriber subscribes to styling events from a message broker.
type EventSubscriber interface {
	SubscribeStyleEvents(ctx context.Context, handler func(ctx context.Context, event *domain.StyleEvent) error) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}

// TileFetcher retrieves raw vector-tile bytes from a tile source.
type TileFetcher interface {
	Fetch(ctx context.Context, source *domain.TileSource, tile domain.TileRef) ([]byte, error)
}
