package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/yourorg/invest-api/internal/geo"
	"github.com/yourorg/invest-api/internal/search"
	"github.com/yourorg/invest-api/listing"
)

type SearchDeps struct {
	Orchestrator *search.Orchestrator
}

type SearchRequest struct {
	Mode string `json:"mode,omitempty"` // database | api | crawler

	Location     string   `json:"location,omitempty"`
	Postcode     string   `json:"postcode,omitempty"`
	Radius       *float64 `json:"radius,omitempty"` // miles
	PropertyType string   `json:"property_type,omitempty"`
	MinPrice     *float64 `json:"min_price,omitempty"`
	MaxPrice     *float64 `json:"max_price,omitempty"`
	MinBedrooms  *int     `json:"min_bedrooms,omitempty"`
	MaxBedrooms  *int     `json:"max_bedrooms,omitempty"`
	Limit        *int     `json:"limit,omitempty"`
	Page         *int     `json:"page,omitempty"`
}

func defFloat(v *float64, d float64) float64 {
	if v == nil {
		return d
	}
	return *v
}

func defInt(v *int, d int) int {
	if v == nil {
		return d
	}
	return *v
}

func (r SearchRequest) filters() listing.SearchFilters {
	return listing.SearchFilters{
		Location:     r.Location,
		Postcode:     r.Postcode,
		RadiusMiles:  defFloat(r.Radius, 0),
		PropertyType: r.PropertyType,
		MinPrice:     defFloat(r.MinPrice, 0),
		MaxPrice:     defFloat(r.MaxPrice, 0),
		MinBedrooms:  defInt(r.MinBedrooms, 0),
		MaxBedrooms:  defInt(r.MaxBedrooms, 0),
		Limit:        defInt(r.Limit, 0),
		Page:         defInt(r.Page, 0),
	}
}

func RegisterSearch(r chi.Router, d SearchDeps) {
	// POST: JSON body
	r.Post("/search", func(w http.ResponseWriter, req *http.Request) {
		var body SearchRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			render.Status(req, http.StatusBadRequest)
			render.JSON(w, req, map[string]any{"error": "invalid_json", "detail": err.Error()})
			return
		}
		handleSearchRequest(w, req, d, body)
	})

	// GET: query params (compatibility)
	r.Get("/search", func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		var body SearchRequest
		body.Mode = q.Get("mode")
		body.Location = q.Get("location")
		body.Postcode = q.Get("postcode")
		body.PropertyType = q.Get("property_type")
		if v := q.Get("radius"); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				body.Radius = &f
			}
		}
		if v := q.Get("min_price"); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				body.MinPrice = &f
			}
		}
		if v := q.Get("max_price"); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				body.MaxPrice = &f
			}
		}
		if v := q.Get("min_bedrooms"); v != "" {
			if i, err := strconv.Atoi(v); err == nil {
				body.MinBedrooms = &i
			}
		}
		if v := q.Get("max_bedrooms"); v != "" {
			if i, err := strconv.Atoi(v); err == nil {
				body.MaxBedrooms = &i
			}
		}
		if v := q.Get("limit"); v != "" {
			if i, err := strconv.Atoi(v); err == nil {
				body.Limit = &i
			}
		}
		if v := q.Get("page"); v != "" {
			if i, err := strconv.Atoi(v); err == nil {
				body.Page = &i
			}
		}
		handleSearchRequest(w, req, d, body)
	})
}

func handleSearchRequest(w http.ResponseWriter, req *http.Request, d SearchDeps, body SearchRequest) {
	if body.Location == "" && body.Postcode == "" {
		render.Status(req, http.StatusBadRequest)
		render.JSON(w, req, map[string]any{"error": "location_required", "detail": "location or postcode is required"})
		return
	}
	mode := search.Mode(body.Mode)
	if body.Mode == "" {
		mode = search.ModeAPI
	}

	res, err := d.Orchestrator.Search(req.Context(), mode, body.filters())
	if err != nil {
		writeSearchError(w, req, err)
		return
	}
	render.JSON(w, req, map[string]any{
		"ok":         true,
		"count":      len(res.Listings),
		"from_cache": res.FromCache,
		"warnings":   res.Warnings,
		"properties": res.Listings,
	})
}

func writeSearchError(w http.ResponseWriter, req *http.Request, err error) {
	switch {
	case errors.Is(err, search.ErrSuperseded):
		render.Status(req, http.StatusConflict)
		render.JSON(w, req, map[string]any{"error": "superseded", "detail": "a newer search replaced this one"})
	case errors.Is(err, search.ErrUnknownMode):
		render.Status(req, http.StatusBadRequest)
		render.JSON(w, req, map[string]any{"error": "unknown_mode", "detail": err.Error()})
	case errors.Is(err, geo.ErrNotFound):
		render.Status(req, http.StatusNotFound)
		render.JSON(w, req, map[string]any{"error": "location_not_found"})
	case errors.Is(err, search.ErrNoDatabase), errors.Is(err, search.ErrNoProviders):
		render.Status(req, http.StatusServiceUnavailable)
		render.JSON(w, req, map[string]any{"error": "source_unavailable", "detail": err.Error()})
	default:
		render.Status(req, http.StatusBadGateway)
		render.JSON(w, req, map[string]any{"error": "upstream_error", "detail": err.Error()})
	}
}
