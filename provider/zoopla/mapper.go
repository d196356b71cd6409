package zoopla

import (
	"encoding/json"
	"strconv"

	"github.com/yourorg/invest-api/listing"
)

// stringNumber accepts string or number JSON and stores the textual form.
// Zoopla serves prices and bedroom counts as strings on some plans.
type stringNumber string

func (s *stringNumber) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*s = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*s = stringNumber(str)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(b, &num); err != nil {
		return err
	}
	*s = stringNumber(num.String())
	return nil
}

func (s stringNumber) float() float64 {
	v, _ := strconv.ParseFloat(string(s), 64)
	return v
}

func (s stringNumber) intPtr() *int {
	v, err := strconv.Atoi(string(s))
	if err != nil || v <= 0 {
		return nil
	}
	return &v
}

// MapPayload maps a Zoopla property_listings payload into normalized
// listings. Unsalvageable records are dropped, not surfaced as errors.
func MapPayload(raw []byte) ([]listing.Listing, error) {
	type zListing struct {
		ListingID          stringNumber `json:"listing_id"`
		DisplayableAddress string       `json:"displayable_address"`
		Outcode            string       `json:"outcode"`
		Price              stringNumber `json:"price"`
		NumBedrooms        stringNumber `json:"num_bedrooms"`
		NumBathrooms       stringNumber `json:"num_bathrooms"`
		FloorArea          struct {
			MaxFloorArea struct {
				Value float64 `json:"value"`
				Units string  `json:"units"`
			} `json:"max_floor_area"`
		} `json:"floor_area"`
		PropertyType   string       `json:"property_type"`
		Description    string       `json:"short_description"`
		ImageURL       string       `json:"image_url"`
		DetailsURL     string       `json:"details_url"`
		AgentName      string       `json:"agent_name"`
		AgentPhone     string       `json:"agent_phone"`
		Latitude       float64      `json:"latitude"`
		Longitude      float64      `json:"longitude"`
		RentalEstimate stringNumber `json:"rental_estimate"`
	}
	var root struct {
		Listing []zListing `json:"listing"`
	}
	if err := json.Unmarshal(raw, &root); err != nil {
		return nil, err
	}

	out := make([]listing.Listing, 0, len(root.Listing))
	for _, z := range root.Listing {
		r := listing.Raw{
			ID:           string(z.ListingID),
			Address:      z.DisplayableAddress,
			Postcode:     z.Outcode,
			SalePrice:    z.Price.float(),
			Bedrooms:     z.NumBedrooms.intPtr(),
			Bathrooms:    z.NumBathrooms.intPtr(),
			PropertyType: z.PropertyType,
			Description:  z.Description,
			URL:          z.DetailsURL,
			Latitude:     z.Latitude,
			Longitude:    z.Longitude,
		}
		if z.ImageURL != "" {
			r.Images = []string{z.ImageURL}
		}
		if sqft := z.FloorArea.MaxFloorArea.Value; sqft > 0 && z.FloorArea.MaxFloorArea.Units == "sq_feet" {
			r.SquareFeet = &sqft
		}
		if z.AgentName != "" {
			r.Agent = &listing.Agent{Name: z.AgentName, Phone: z.AgentPhone}
		}
		if rent := z.RentalEstimate.float(); rent > 0 {
			r.Rental = &rent
		}
		l, ok := listing.Normalize(r, listing.SourceZoopla)
		if !ok {
			continue
		}
		out = append(out, *l)
	}
	return out, nil
}
