package tiles

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tilepass/tilepass/internal/core/domain"
	"github.com/tilepass/tilepass/internal/core/ports"
	"github.com/tilepass/tilepass/internal/pkg/metrics"
)

// Fetcher implements ports.TileFetcher over HTTP. Raw tile bytes are
// cached so restyles of the same tile do not hit the upstream again.
type Fetcher struct {
	client   *http.Client
	cache    ports.CacheService
	cacheTTL int
}

// NewFetcher creates a tile fetcher. cache may be nil.
func NewFetcher(timeout time.Duration, cache ports.CacheService, cacheTTLSeconds int) *Fetcher {
	if cacheTTLSeconds <= 0 {
		cacheTTLSeconds = 300
	}
	return &Fetcher{
		client:   &http.Client{Timeout: timeout},
		cache:    cache,
		cacheTTL: cacheTTLSeconds,
	}
}

func (f *Fetcher) Fetch(ctx context.Context, source *domain.TileSource, tile domain.TileRef) ([]byte, error) {
	key := "tile:" + source.Slug + ":" + tile.String()
	if f.cache != nil {
		if data, err := f.cache.Get(ctx, key); err == nil {
			return data, nil
		}
	}

	url := TileURL(source.URLTemplate, tile)
	start := time.Now()
	data, err := f.get(ctx, url)
	metrics.TileFetchDuration.WithLabelValues(source.Slug).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.TileFetchErrors.WithLabelValues(source.Slug).Inc()
		return nil, err
	}

	if f.cache != nil {
		_ = f.cache.Set(ctx, key, data, f.cacheTTL)
	}
	return data, nil
}

func (f *Fetcher) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("tile not found at %s", url)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d for %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// TileURL fills the z, x and y placeholders in a source URL template.
func TileURL(template string, tile domain.TileRef) string {
	r := strings.NewReplacer(
		"{z}", strconv.FormatUint(uint64(tile.Z), 10),
		"{x}", strconv.FormatUint(uint64(tile.X), 10),
		"{y}", strconv.FormatUint(uint64(tile.Y), 10),
	)
	return r.Replace(template)
}
