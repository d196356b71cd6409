package listing

import (
	"math"
	"regexp"
)

// Financials are the derived rental and ROI figures for one listing.
type Financials struct {
	RentalEstimate float64 `json:"rental_estimate"`
	ROIEstimate    float64 `json:"roi_estimate"`
}

var (
	reFlat     = regexp.MustCompile(`(?i)flat|apartment`)
	reDetached = regexp.MustCompile(`(?i)detached`)
)

// Estimate computes a monthly rental estimate and annualized ROI percentage
// from asking price, bedroom count, and property type. Pure; same inputs
// always yield identical outputs.
//
// The base rate is 0.8% of price per year, adjusted +-10% per bedroom of
// deviation from 2, then +-10% by property type. The flat/apartment
// adjustment takes precedence when both patterns match.
func Estimate(price float64, bedrooms *int, propertyType string) Financials {
	if price <= 0 {
		return Financials{}
	}
	beds := 2
	if bedrooms != nil {
		beds = *bedrooms
	}

	base := (price * 0.008) / 12
	base *= 1 + float64(beds-2)*0.1

	switch {
	case reFlat.MatchString(propertyType):
		base *= 1.1
	case reDetached.MatchString(propertyType):
		base *= 0.9
	}

	rental := math.Round(base)
	if rental == 0 {
		return Financials{}
	}
	return Financials{
		RentalEstimate: rental,
		ROIEstimate:    (rental * 12 / price) * 100,
	}
}
