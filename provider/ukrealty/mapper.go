package ukrealty

import (
	"encoding/json"

	"github.com/yourorg/invest-api/listing"
)

// MapPayload maps the RapidAPI UK realty payload into normalized listings.
// The payload shape differs slightly across plan tiers; map defensively.
func MapPayload(raw []byte) ([]listing.Listing, error) {
	type uPrice struct {
		Amount float64 `json:"amount"`
	}
	type uProperty struct {
		ID             json.Number `json:"id"`
		DisplayAddress string      `json:"displayAddress"`
		Postcode       string      `json:"postcode"`
		Price          uPrice      `json:"price"`
		Bedrooms       *int        `json:"bedrooms"`
		Bathrooms      *int        `json:"bathrooms"`
		FloorArea      *float64    `json:"floorAreaSqFt"`
		PropertyType   string      `json:"propertySubType"`
		Summary        string      `json:"summary"`
		PropertyImages struct {
			Images []struct {
				URL string `json:"srcUrl"`
			} `json:"images"`
		} `json:"propertyImages"`
		Features []string `json:"keyFeatures"`
		Customer struct {
			BranchDisplayName string `json:"branchDisplayName"`
			ContactTelephone  string `json:"contactTelephone"`
		} `json:"customer"`
		PropertyURL string `json:"propertyUrl"`
		Location    struct {
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
		} `json:"location"`
	}
	var root struct {
		Data []uProperty `json:"data"`
	}
	if err := json.Unmarshal(raw, &root); err != nil {
		return nil, err
	}

	out := make([]listing.Listing, 0, len(root.Data))
	for _, p := range root.Data {
		r := listing.Raw{
			ID:           p.ID.String(),
			Address:      p.DisplayAddress,
			Postcode:     p.Postcode,
			AskingPrice:  p.Price.Amount,
			Bedrooms:     p.Bedrooms,
			Bathrooms:    p.Bathrooms,
			SquareFeet:   p.FloorArea,
			PropertyType: p.PropertyType,
			Description:  p.Summary,
			Features:     p.Features,
			URL:          p.PropertyURL,
			Latitude:     p.Location.Latitude,
			Longitude:    p.Location.Longitude,
		}
		if r.ID == "0" {
			r.ID = ""
		}
		for _, img := range p.PropertyImages.Images {
			if img.URL != "" {
				r.Images = append(r.Images, img.URL)
			}
		}
		if p.Customer.BranchDisplayName != "" {
			r.Agent = &listing.Agent{
				Name:  p.Customer.BranchDisplayName,
				Phone: p.Customer.ContactTelephone,
			}
		}
		l, ok := listing.Normalize(r, listing.SourceUKAPI)
		if !ok {
			continue
		}
		out = append(out, *l)
	}
	return out, nil
}
