package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/yourorg/invest-api/internal/config"
	"github.com/yourorg/invest-api/internal/crawler"
	"github.com/yourorg/invest-api/internal/events"
	"github.com/yourorg/invest-api/internal/geo"
	"github.com/yourorg/invest-api/internal/logger"
	"github.com/yourorg/invest-api/internal/redisx"
	"github.com/yourorg/invest-api/internal/search"
	"github.com/yourorg/invest-api/internal/store"
	"github.com/yourorg/invest-api/provider"
	"github.com/yourorg/invest-api/provider/patma"
	"github.com/yourorg/invest-api/provider/rightmove"
	"github.com/yourorg/invest-api/provider/ukrealty"
	"github.com/yourorg/invest-api/provider/zoopla"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := logger.New(cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cache *redisx.Client
	if cfg.RedisAddr != "" {
		cache = redisx.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := cache.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("redis unreachable, continuing without cache")
			cache = nil
		}
	}

	var st *store.Store
	if cfg.PostgresDSN != "" {
		st, err = store.Open(cfg.PostgresDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("open postgres")
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			log.Fatal().Err(err).Msg("migrate")
		}
	} else {
		log.Warn().Msg("PG_DSN not set, database mode disabled")
	}

	var providers []provider.Provider
	if cfg.ZooplaAPIKey != "" {
		providers = append(providers, zoopla.NewClient(cfg.ZooplaAPIKey))
	}
	if cfg.PaTMaAPIKey != "" {
		providers = append(providers, patma.NewClient(cfg.PaTMaAPIKey))
	}
	if cfg.RapidAPIKey != "" {
		providers = append(providers, ukrealty.NewClient(cfg.RapidAPIKey))
	}
	if len(providers) == 0 {
		log.Warn().Msg("no provider API keys set, api mode disabled")
	}

	pub := events.NewInMemory(256)

	var crawls *crawler.Manager
	if st != nil {
		crawls = crawler.NewManager([]provider.Provider{rightmove.New()}, st, pub, log, cfg.CrawlWorkers)
	}

	geocoder := geo.New(cfg.NominatimBaseURL, cfg.PostcodesBaseURL, cache, cfg.GeoCacheTTL, cfg.GeoNegativeTTL)

	orch := search.New(search.Options{
		Providers: providers,
		Store:     st,
		Crawls:    crawls,
		Geocoder:  geocoder,
		Cache:     cache,
		CacheTTL:  cfg.SearchCacheTTL,
		Log:       log,
	})
	go orch.RunCacheInvalidator(ctx, pub)

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           logger.Middleware(log)(BuildRouter(routerDeps{Orchestrator: orch, Store: st, Crawls: crawls, Geocoder: geocoder})),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.Port).Msg("invest-api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown")
		os.Exit(1)
	}
}

