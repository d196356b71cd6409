package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/yourorg/invest-api/internal/geo"
)

type GeocodeDeps struct {
	Geocoder *geo.Geocoder
}

func RegisterGeocode(r chi.Router, d GeocodeDeps) {
	r.Get("/geocode", func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query().Get("q")
		if q == "" {
			render.Status(req, http.StatusBadRequest)
			render.JSON(w, req, map[string]any{"error": "query_required"})
			return
		}
		loc, err := d.Geocoder.Lookup(req.Context(), q)
		if err != nil {
			if errors.Is(err, geo.ErrNotFound) {
				render.Status(req, http.StatusNotFound)
				render.JSON(w, req, map[string]any{"error": "location_not_found"})
				return
			}
			render.Status(req, http.StatusBadGateway)
			render.JSON(w, req, map[string]any{"error": "geocode_error", "detail": err.Error()})
			return
		}
		render.JSON(w, req, map[string]any{"ok": true, "location": loc})
	})
}
