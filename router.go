package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-chi/render"

	httpapi "github.com/yourorg/invest-api/http"
	"github.com/yourorg/invest-api/internal/crawler"
	"github.com/yourorg/invest-api/internal/geo"
	"github.com/yourorg/invest-api/internal/search"
	"github.com/yourorg/invest-api/internal/store"
)

type routerDeps struct {
	Orchestrator *search.Orchestrator
	Store        *store.Store
	Crawls       *crawler.Manager
	Geocoder     *geo.Geocoder
}

func BuildRouter(deps routerDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(httprate.LimitByIP(100, 1*time.Minute)) // protect upstream quota
	r.Use(render.SetContentType(render.ContentTypeJSON))
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`{"ok":true}`)) })

	httpapi.RegisterSearch(r, httpapi.SearchDeps{Orchestrator: deps.Orchestrator})
	httpapi.RegisterListings(r, httpapi.ListingsDeps{Store: deps.Store})
	httpapi.RegisterCrawl(r, httpapi.CrawlDeps{Manager: deps.Crawls})
	httpapi.RegisterGeocode(r, httpapi.GeocodeDeps{Geocoder: deps.Geocoder})

	return r
}
