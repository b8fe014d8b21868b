package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	natsadapter "github.com/tilepass/tilepass/internal/adapters/nats"
	"github.com/tilepass/tilepass/internal/adapters/postgres"
	"github.com/tilepass/tilepass/internal/adapters/tiles"
	"github.com/tilepass/tilepass/internal/adapters/valkey"
	"github.com/tilepass/tilepass/internal/core/domain"
	"github.com/tilepass/tilepass/internal/core/usecases"
	"github.com/tilepass/tilepass/internal/pkg/config"
	"github.com/tilepass/tilepass/internal/pkg/logging"
	"github.com/tilepass/tilepass/internal/pkg/metrics"
)

// ---------------------------------------------------------------------------
// Main
// ---------------------------------------------------------------------------

func main() {
	cfg, err := config.Load("tilepass-restyler")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logging.Setup(logLevel, "json")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	// Cache
	cache, err := valkey.New(cfg.Valkey.Addr)
	if err != nil {
		log.Fatalf("valkey: %v", err)
	}
	defer cache.Close()

	// NATS: one connection publishes fresh tiles, one consumes style events.
	nc, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("nats publisher: %v", err)
	}
	defer nc.Close()

	sub, err := natsadapter.NewSubscriber(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("nats subscriber: %v", err)
	}
	defer sub.Close()

	// Repos + services
	styleRepo := postgres.NewStyleRepo(db)
	sourceRepo := postgres.NewTileSourceRepo(db)
	styledRepo := postgres.NewStyledTileRepo(db)

	fetcher := tiles.NewFetcher(time.Duration(cfg.Tiles.FetchTimeout)*time.Second, cache, cfg.Tiles.CacheTTL)

	styleSvc := usecases.NewStyleService(styleRepo, cache, nil)
	evalSvc := usecases.NewEvalService(styleSvc, sourceRepo, fetcher, styledRepo, cache, nc)

	lookback := time.Duration(cfg.Restyler.LookbackMinutes) * time.Minute

	if err := sub.SubscribeStyleEvents(ctx, func(ctx context.Context, event *domain.StyleEvent) error {
		return handleStyleEvent(ctx, evalSvc, styledRepo, event, lookback, cfg.Restyler.BatchLimit)
	}); err != nil {
		log.Fatalf("subscribe: %v", err)
	}

	// Worker metrics
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(fmt.Sprintf(":%d", cfg.Server.Port), mux); err != nil {
			slog.Warn("metrics listener stopped", "error", err)
		}
	}()

	purgeEvery := time.Duration(cfg.Restyler.PurgeMinutes) * time.Minute
	ticker := time.NewTicker(purgeEvery)
	defer ticker.Stop()

	slog.Info("restyler running",
		"lookback", lookback.String(),
		"batch_limit", cfg.Restyler.BatchLimit,
		"purge_every", purgeEvery.String(),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Run once immediately
	purgeOld(ctx, styledRepo, cfg.Restyler.PurgeAfterDays)

	for {
		select {
		case <-ticker.C:
			purgeOld(ctx, styledRepo, cfg.Restyler.PurgeAfterDays)
		case <-ctx.Done():
			return
		case sig := <-quit:
			slog.Info("shutdown signal received, stopping restyler", "signal", sig.String())
			cancel()
			// Give in-flight restyles time to finish
			time.Sleep(2 * time.Second)
			return
		}
	}
}

// ---------------------------------------------------------------------------
// Style events
// ---------------------------------------------------------------------------

// handleStyleEvent reacts to one style change. A returned error naks the
// message for redelivery; per-tile failures only skip that tile.
func handleStyleEvent(ctx context.Context, evalSvc *usecases.EvalService, styled *postgres.StyledTileRepo, event *domain.StyleEvent, lookback time.Duration, limit int) error {
	switch event.Type {
	case domain.StyleEventDeleted:
		dropped, err := evalSvc.ForgetStyle(ctx, event.StyleID)
		if err != nil {
			return err
		}
		slog.Info("style deleted, bookkeeping dropped", "style", event.Slug, "tiles", dropped)

	case domain.StyleEventUpdated:
		records, err := styled.RecentForStyle(ctx, event.StyleID, time.Now().Add(-lookback), limit)
		if err != nil {
			return err
		}

		restyled := 0
		for _, rec := range records {
			st, err := evalSvc.RestyleTile(ctx, rec.StyleID, rec.Source, rec.Tile)
			if err != nil {
				slog.Warn("restyle failed", "style", event.Slug, "tile", rec.Tile.String(), "error", err)
				continue
			}
			restyled++

			metrics.TilesStyled.WithLabelValues(st.Source).Inc()
			metrics.FeaturesStyled.WithLabelValues("styled").Add(float64(len(st.Features)))
			metrics.FeaturesStyled.WithLabelValues("skipped").Add(float64(st.Skipped))
			metrics.FeaturesStyled.WithLabelValues("error").Add(float64(st.Errors))
		}
		slog.Info("style restyled", "style", event.Slug, "restyled", restyled, "candidates", len(records))
	}
	return nil
}

// ---------------------------------------------------------------------------
// Bookkeeping purge
// ---------------------------------------------------------------------------

func purgeOld(ctx context.Context, styled *postgres.StyledTileRepo, days int) {
	cutoff := time.Now().AddDate(0, 0, -days)
	purged, err := styled.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		slog.Error("purge failed", "error", err)
		return
	}
	if purged > 0 {
		slog.Info("purged stale bookkeeping", "tiles", purged, "older_than", cutoff.Format(time.RFC3339))
	}
}
