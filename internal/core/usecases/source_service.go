package usecases

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/tilepass/tilepass/internal/core/domain"
	"github.com/tilepass/tilepass/internal/core/ports"
)

// SourceService manages tile sources.
type SourceService struct {
	sources ports.TileSourceRepository
}

// NewSourceService creates a new SourceService.
func NewSourceService(sources ports.TileSourceRepository) *SourceService {
	return &SourceService{sources: sources}
}

// Create validates and stores a new tile source.
func (s *SourceService) Create(ctx context.Context, source *domain.TileSource) error {
	source.Slug = strings.TrimSpace(strings.ToLower(source.Slug))
	if source.Slug == "" {
		return fmt.Errorf("source slug is required")
	}
	if source.Name == "" {
		return fmt.Errorf("source name is required")
	}
	for _, ph := range []string{"{z}", "{x}", "{y}"} {
		if !strings.Contains(source.URLTemplate, ph) {
			return fmt.Errorf("url template must contain the %s placeholder", ph)
		}
	}
	if source.MaxZoom == 0 {
		source.MaxZoom = 14
	}
	if source.MinZoom < 0 || source.MaxZoom > 22 || source.MinZoom > source.MaxZoom {
		return fmt.Errorf("zoom range %d-%d is invalid", source.MinZoom, source.MaxZoom)
	}
	if source.ID == "" {
		source.ID = uuid.NewString()
	}
	return s.sources.Create(ctx, source)
}

// GetBySlug returns a single tile source.
func (s *SourceService) GetBySlug(ctx context.Context, slug string) (*domain.TileSource, error) {
	return s.sources.GetBySlug(ctx, slug)
}

// List returns tile sources, optionally only active ones.
func (s *SourceService) List(ctx context.Context, activeOnly bool) ([]domain.TileSource, error) {
	return s.sources.List(ctx, activeOnly)
}
