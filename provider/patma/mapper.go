package patma

import (
	"encoding/json"

	"github.com/yourorg/invest-api/listing"
)

// MapPayload maps a PaTMa prospector payload into normalized listings.
// PaTMa records carry sale-history pricing, so the price preference chain
// (sale -> asking -> last sold) does real work here.
func MapPayload(raw []byte) ([]listing.Listing, error) {
	type pProperty struct {
		UPRN          string   `json:"uprn"`
		Address       string   `json:"address"`
		Postcode      string   `json:"postcode"`
		SalePrice     float64  `json:"sale_price"`
		AskingPrice   float64  `json:"asking_price"`
		LastSoldPrice float64  `json:"last_sold_price"`
		Bedrooms      *int     `json:"bedrooms"`
		Bathrooms     *int     `json:"bathrooms"`
		FloorAreaSqft *float64 `json:"floor_area_sqft"`
		PropertyType  string   `json:"property_type"`
		Tenure        string   `json:"tenure"`
		EPCRating     string   `json:"epc_rating"`
		ListingURL    string   `json:"listing_url"`
		ImageURL      string   `json:"image_url"`
		RentEstimate  *float64 `json:"rent_estimate"`
		GrossYield    *float64 `json:"gross_yield"`
		Latitude      float64  `json:"latitude"`
		Longitude     float64  `json:"longitude"`
	}
	var root struct {
		Results []pProperty `json:"results"`
	}
	if err := json.Unmarshal(raw, &root); err != nil {
		return nil, err
	}

	out := make([]listing.Listing, 0, len(root.Results))
	for _, p := range root.Results {
		r := listing.Raw{
			ID:            p.UPRN,
			Address:       p.Address,
			Postcode:      p.Postcode,
			SalePrice:     p.SalePrice,
			AskingPrice:   p.AskingPrice,
			LastSoldPrice: p.LastSoldPrice,
			Bedrooms:      p.Bedrooms,
			Bathrooms:     p.Bathrooms,
			SquareFeet:    p.FloorAreaSqft,
			PropertyType:  p.PropertyType,
			URL:           p.ListingURL,
			Rental:        p.RentEstimate,
			ROI:           p.GrossYield,
			Latitude:      p.Latitude,
			Longitude:     p.Longitude,
		}
		if p.ImageURL != "" {
			r.Images = []string{p.ImageURL}
		}
		if p.Tenure != "" || p.EPCRating != "" {
			r.Details = &listing.PropertyDetails{Tenure: p.Tenure, EPCRating: p.EPCRating}
		}
		l, ok := listing.Normalize(r, listing.SourcePaTMa)
		if !ok {
			continue
		}
		out = append(out, *l)
	}
	return out, nil
}
