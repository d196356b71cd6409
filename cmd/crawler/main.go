package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/viper"

	"github.com/yourorg/invest-api/internal/config"
	"github.com/yourorg/invest-api/internal/crawler"
	"github.com/yourorg/invest-api/internal/events"
	"github.com/yourorg/invest-api/internal/logger"
	"github.com/yourorg/invest-api/internal/store"
	"github.com/yourorg/invest-api/listing"
	"github.com/yourorg/invest-api/provider"
	"github.com/yourorg/invest-api/provider/rightmove"
)

// Standalone bulk crawler: walks CRAWL_LOCATIONS on an interval and keeps the
// listings table warm so database-mode searches have something to return.
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := logger.New(cfg.Env)

	if cfg.PostgresDSN == "" {
		log.Fatal().Msg("PG_DSN must be set")
	}
	if len(cfg.CrawlLocations) == 0 {
		log.Fatal().Msg("CRAWL_LOCATIONS must be set")
	}

	st, err := store.Open(cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("open postgres")
	}
	defer st.Close()

	pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := st.Ping(pingCtx); err != nil {
		cancel()
		log.Fatal().Err(err).Msg("postgres ping")
	}
	if err := st.Migrate(pingCtx); err != nil {
		cancel()
		log.Fatal().Err(err).Msg("migrate")
	}
	cancel()

	pub := events.NewInMemory(256)
	mgr := crawler.NewManager([]provider.Provider{rightmove.New()}, st, pub, log, cfg.CrawlWorkers)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runOnce := viper.GetBool("CRAWL_RUN_ONCE")

	pass := func() {
		for _, loc := range cfg.CrawlLocations {
			if ctx.Err() != nil {
				return
			}
			job, err := mgr.Start(listing.SearchFilters{Location: loc})
			if err != nil {
				log.Error().Err(err).Str("location", loc).Msg("start crawl")
				continue
			}
			done, err := mgr.Wait(ctx, job.ID)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					log.Error().Err(err).Str("location", loc).Msg("crawl wait")
				}
				return
			}
			log.Info().Str("location", loc).Str("state", done.State).Int("found", done.Found).Msg("crawl pass")
		}
	}

	pass()
	if runOnce {
		return
	}

	ticker := time.NewTicker(cfg.CrawlInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("crawler stopping")
			return
		case <-ticker.C:
			pass()
		}
	}
}
