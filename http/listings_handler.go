package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/yourorg/invest-api/internal/store"
	"github.com/yourorg/invest-api/listing"
)

type ListingsDeps struct {
	Store *store.Store
}

// RegisterListings exposes the database-backed browse endpoint: stored
// (crawled) listings only, filtered server-side, normalized on the way out.
func RegisterListings(r chi.Router, d ListingsDeps) {
	r.Get("/listings", func(w http.ResponseWriter, req *http.Request) {
		if d.Store == nil {
			render.Status(req, http.StatusServiceUnavailable)
			render.JSON(w, req, map[string]any{"error": "database_unavailable"})
			return
		}
		q := req.URL.Query()
		f := listing.SearchFilters{
			Location:     q.Get("location"),
			Postcode:     q.Get("postcode"),
			PropertyType: q.Get("property_type"),
		}
		if v := q.Get("min_price"); v != "" {
			if x, err := strconv.ParseFloat(v, 64); err == nil {
				f.MinPrice = x
			}
		}
		if v := q.Get("max_price"); v != "" {
			if x, err := strconv.ParseFloat(v, 64); err == nil {
				f.MaxPrice = x
			}
		}
		if v := q.Get("min_bedrooms"); v != "" {
			if x, err := strconv.Atoi(v); err == nil {
				f.MinBedrooms = x
			}
		}
		if v := q.Get("max_bedrooms"); v != "" {
			if x, err := strconv.Atoi(v); err == nil {
				f.MaxBedrooms = x
			}
		}
		if v := q.Get("limit"); v != "" {
			if x, err := strconv.Atoi(v); err == nil {
				f.Limit = x
			}
		}
		if v := q.Get("page"); v != "" {
			if x, err := strconv.Atoi(v); err == nil {
				f.Page = x
			}
		}

		records, err := d.Store.QueryListings(req.Context(), f)
		if err != nil {
			render.Status(req, http.StatusInternalServerError)
			render.JSON(w, req, map[string]any{"error": "query_error", "detail": err.Error()})
			return
		}
		out := make([]listing.Listing, 0, len(records))
		for _, rec := range records {
			l, ok := listing.Normalize(rec.Raw(), rec.Source)
			if !ok {
				continue
			}
			out = append(out, *l)
		}
		render.JSON(w, req, map[string]any{"ok": true, "count": len(out), "properties": out})
	})
}
