package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb/geojson"

	"github.com/tilepass/tilepass/internal/core/domain"
	"github.com/tilepass/tilepass/internal/core/expr"
	"github.com/tilepass/tilepass/internal/core/ports"
)

// StyleService handles style management and expression compilation.
type StyleService struct {
	styles ports.StyleRepository
	cache  ports.CacheService
	events ports.EventPublisher

	mu       sync.RWMutex
	compiled map[string]compiledStyle
}

type compiledStyle struct {
	updatedAt time.Time
	node      expr.Expression
}

// NewStyleService creates a new StyleService.
func NewStyleService(styles ports.StyleRepository, cache ports.CacheService, events ports.EventPublisher) *StyleService {
	return &StyleService{
		styles:   styles,
		cache:    cache,
		events:   events,
		compiled: make(map[string]compiledStyle),
	}
}

// Create validates a new style, fills its derived fields and stores it.
func (s *StyleService) Create(ctx context.Context, style *domain.Style) error {
	if err := s.prepare(style); err != nil {
		return err
	}
	if style.ID == "" {
		style.ID = uuid.NewString()
	}
	if err := s.styles.Create(ctx, style); err != nil {
		return fmt.Errorf("create style: %w", err)
	}
	s.notify(ctx, domain.StyleEventUpdated, style)
	return nil
}

// Update revalidates and stores an existing style.
func (s *StyleService) Update(ctx context.Context, style *domain.Style) error {
	if style.ID == "" {
		return fmt.Errorf("style id is required")
	}
	if err := s.prepare(style); err != nil {
		return err
	}
	if err := s.styles.Update(ctx, style); err != nil {
		return fmt.Errorf("update style: %w", err)
	}
	s.invalidate(ctx, style)
	s.notify(ctx, domain.StyleEventUpdated, style)
	return nil
}

// Delete removes a style.
func (s *StyleService) Delete(ctx context.Context, id string) error {
	style, err := s.styles.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.styles.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete style: %w", err)
	}

	s.mu.Lock()
	delete(s.compiled, id)
	s.mu.Unlock()

	s.invalidate(ctx, style)
	s.notify(ctx, domain.StyleEventDeleted, style)
	return nil
}

// GetByID returns a single style.
func (s *StyleService) GetByID(ctx context.Context, id string) (*domain.Style, error) {
	cacheKey := "styles:id:" + id
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var style domain.Style
			if err := json.Unmarshal(data, &style); err == nil {
				return &style, nil
			}
		}
	}

	style, err := s.styles.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(style); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, 600)
		}
	}
	return style, nil
}

// GetBySlug returns a single style by slug.
func (s *StyleService) GetBySlug(ctx context.Context, slug string) (*domain.Style, error) {
	cacheKey := "styles:slug:" + slug
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var style domain.Style
			if err := json.Unmarshal(data, &style); err == nil {
				return &style, nil
			}
		}
	}

	style, err := s.styles.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(style); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, 600)
		}
	}
	return style, nil
}

// Resolve returns a style by UUID or slug.
func (s *StyleService) Resolve(ctx context.Context, idOrSlug string) (*domain.Style, error) {
	if _, err := uuid.Parse(idOrSlug); err == nil {
		return s.GetByID(ctx, idOrSlug)
	}
	return s.GetBySlug(ctx, idOrSlug)
}

// List returns styles, optionally only active ones.
func (s *StyleService) List(ctx context.Context, activeOnly bool) ([]domain.Style, error) {
	return s.styles.List(ctx, activeOnly)
}

// FindNear returns styles whose reference geometry lies within
// radiusMeters of the given point.
func (s *StyleService) FindNear(ctx context.Context, lon, lat, radiusMeters float64, limit int) ([]domain.Style, error) {
	if limit <= 0 || limit > 50 {
		limit = 50
	}
	if radiusMeters <= 0 {
		radiusMeters = 1000
	}

	// Try cache
	cacheKey := fmt.Sprintf("styles:near:%.4f:%.4f:%.0f:%d", lon, lat, radiusMeters, limit)
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var styles []domain.Style
			if err := json.Unmarshal(data, &styles); err == nil {
				return styles, nil
			}
		}
	}

	styles, err := s.styles.FindNear(ctx, lon, lat, radiusMeters, limit)
	if err != nil {
		return nil, err
	}

	// Reference geometries change rarely
	if s.cache != nil {
		if data, err := json.Marshal(styles); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, 300)
		}
	}
	return styles, nil
}

// Compile returns the style's executable expression node. Nodes are
// immutable, so one node is shared across calls and goroutines; cached
// entries are refreshed when the style's UpdatedAt moves.
func (s *StyleService) Compile(style *domain.Style) (expr.Expression, error) {
	if style.ID != "" {
		s.mu.RLock()
		entry, ok := s.compiled[style.ID]
		s.mu.RUnlock()
		if ok && entry.updatedAt.Equal(style.UpdatedAt) {
			return entry.node, nil
		}
	}

	node, err := expr.ParseJSON(style.Expression)
	if err != nil {
		return nil, fmt.Errorf("compiling style %s: %w", style.Slug, err)
	}

	if style.ID != "" {
		s.mu.Lock()
		s.compiled[style.ID] = compiledStyle{updatedAt: style.UpdatedAt, node: node}
		s.mu.Unlock()
	}
	return node, nil
}

// Validate compiles a raw expression without storing anything and
// returns its canonical serialized form plus the unit it reports
// distances in.
func (s *StyleService) Validate(expression json.RawMessage) (any, string, error) {
	node, err := expr.ParseJSON(expression)
	if err != nil {
		return nil, "", err
	}
	unit := ""
	if d, ok := node.(*expr.Distance); ok {
		unit = d.Unit().String()
	}
	return node.Serialize(), unit, nil
}

// Serialized returns the canonical array form of a stored style's
// expression. The unit is not part of the serialized form, so feeding
// the result back through Create yields a style in the default unit.
func (s *StyleService) Serialized(style *domain.Style) (any, error) {
	node, err := s.Compile(style)
	if err != nil {
		return nil, err
	}
	return node.Serialize(), nil
}

// prepare validates the style and fills the fields derived from its
// expression. Expression errors surface to the caller unchanged so the
// style author sees the parser's own message.
func (s *StyleService) prepare(style *domain.Style) error {
	style.Slug = strings.TrimSpace(strings.ToLower(style.Slug))
	if style.Slug == "" {
		return fmt.Errorf("style slug is required")
	}
	if style.Name == "" {
		return fmt.Errorf("style name is required")
	}
	if len(style.Expression) == 0 {
		return fmt.Errorf("style expression is required")
	}

	node, err := expr.ParseJSON(style.Expression)
	if err != nil {
		return err
	}
	if d, ok := node.(*expr.Distance); ok {
		style.Unit = d.Unit().String()
		ref, err := geojson.NewGeometry(d.Reference()).MarshalJSON()
		if err != nil {
			return fmt.Errorf("encoding reference geometry: %w", err)
		}
		style.Reference = ref
	}
	return nil
}

func (s *StyleService) invalidate(ctx context.Context, style *domain.Style) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Delete(ctx, "styles:id:"+style.ID)
	_ = s.cache.Delete(ctx, "styles:slug:"+style.Slug)
}

func (s *StyleService) notify(ctx context.Context, eventType string, style *domain.Style) {
	if s.events == nil {
		return
	}
	_ = s.events.PublishStyleEvent(ctx, &domain.StyleEvent{
		Type:    eventType,
		StyleID: style.ID,
		Slug:    style.Slug,
		At:      time.Now().UTC(),
	})
}
