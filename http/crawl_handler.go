package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/yourorg/invest-api/internal/crawler"
	"github.com/yourorg/invest-api/listing"
)

type CrawlDeps struct {
	Manager *crawler.Manager
}

// RegisterCrawl exposes the async scraping surface: POST starts a job, GET
// polls its progress. The UI polls until state is done, then re-queries
// /listings for the new rows.
func RegisterCrawl(r chi.Router, d CrawlDeps) {
	r.Post("/crawl", func(w http.ResponseWriter, req *http.Request) {
		if d.Manager == nil {
			render.Status(req, http.StatusServiceUnavailable)
			render.JSON(w, req, map[string]any{"error": "crawler_unavailable"})
			return
		}
		var f listing.SearchFilters
		if err := json.NewDecoder(req.Body).Decode(&f); err != nil {
			render.Status(req, http.StatusBadRequest)
			render.JSON(w, req, map[string]any{"error": "invalid_json", "detail": err.Error()})
			return
		}
		if f.Location == "" && f.Postcode == "" {
			render.Status(req, http.StatusBadRequest)
			render.JSON(w, req, map[string]any{"error": "location_required"})
			return
		}
		job, err := d.Manager.Start(f)
		if err != nil {
			render.Status(req, http.StatusServiceUnavailable)
			render.JSON(w, req, map[string]any{"error": "crawl_start_failed", "detail": err.Error()})
			return
		}
		render.Status(req, http.StatusAccepted)
		render.JSON(w, req, map[string]any{"ok": true, "job_id": job.ID, "job": job})
	})

	r.Get("/crawl/{jobID}", func(w http.ResponseWriter, req *http.Request) {
		if d.Manager == nil {
			render.Status(req, http.StatusServiceUnavailable)
			render.JSON(w, req, map[string]any{"error": "crawler_unavailable"})
			return
		}
		job, err := d.Manager.Get(chi.URLParam(req, "jobID"))
		if err != nil {
			if errors.Is(err, crawler.ErrJobNotFound) {
				render.Status(req, http.StatusNotFound)
				render.JSON(w, req, map[string]any{"error": "job_not_found"})
				return
			}
			render.Status(req, http.StatusInternalServerError)
			render.JSON(w, req, map[string]any{"error": "job_error", "detail": err.Error()})
			return
		}
		render.JSON(w, req, map[string]any{"ok": true, "job": job})
	})
}
