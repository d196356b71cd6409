package listing

// Known source tags. Providers outside this set are accepted; the tag is
// carried through verbatim.
const (
	SourceZoopla    = "zoopla"
	SourceRightmove = "rightmove"
	SourcePaTMa     = "patma"
	SourceUKAPI     = "uk-api"
	SourceDatabase  = "database"
)

// Listing is the canonical, provider-agnostic property record served to
// clients. It is constructed once per search and never mutated afterwards.
type Listing struct {
	ID              string           `json:"id"`
	Address         string           `json:"address"`
	Postcode        string           `json:"postcode,omitempty"`
	Price           float64          `json:"price"` // 0 means unknown
	Bedrooms        int              `json:"bedrooms"`
	Bathrooms       int              `json:"bathrooms,omitempty"`
	SquareFeet      float64          `json:"square_feet,omitempty"`
	PropertyType    string           `json:"property_type"`
	Description     string           `json:"description,omitempty"`
	ImageURL        string           `json:"image_url,omitempty"`
	Images          []string         `json:"images,omitempty"`
	Features        []string         `json:"features,omitempty"`
	RentalEstimate  float64          `json:"rental_estimate"`
	ROIEstimate     float64          `json:"roi_estimate"`
	InvestmentScore int              `json:"investment_score"`
	Source          string           `json:"source"`
	URL             string           `json:"url,omitempty"`
	Latitude        float64          `json:"latitude,omitempty"`
	Longitude       float64          `json:"longitude,omitempty"`
	Agent           *Agent           `json:"agent,omitempty"`
	PropertyDetails *PropertyDetails `json:"property_details,omitempty"`
	MarketTrends    *MarketTrends    `json:"market_trends,omitempty"`

	// BedroomsEstimated marks a bedroom count filled in by the bucket
	// heuristic rather than supplied by the source.
	BedroomsEstimated bool `json:"bedrooms_estimated,omitempty"`
}

// Agent is the listing agent contact, when the source provides one.
type Agent struct {
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
}

// PropertyDetails is a weakly-typed bag of supplementary area data.
// Sources rarely populate all of it; defaults fill the gaps.
type PropertyDetails struct {
	CrimeRate     string  `json:"crime_rate,omitempty"`
	SchoolsNearby int     `json:"schools_nearby,omitempty"`
	TransportLink string  `json:"transport_link,omitempty"`
	EPCRating     string  `json:"epc_rating,omitempty"`
	Tenure        string  `json:"tenure,omitempty"`
	YearBuilt     int     `json:"year_built,omitempty"`
	CouncilTax    string  `json:"council_tax,omitempty"`
	ServiceCharge float64 `json:"service_charge,omitempty"`
}

// MarketTrends is supplementary market context for the listing's area.
type MarketTrends struct {
	AppreciationRate float64 `json:"appreciation_rate,omitempty"`
	AvgAreaPrice     float64 `json:"avg_area_price,omitempty"`
	DemandLevel      string  `json:"demand_level,omitempty"`
	AvgDaysOnMarket  int     `json:"avg_days_on_market,omitempty"`
}

// Raw is the provider-agnostic intermediate a vendor adapter produces.
// Pointer fields distinguish "source did not provide" from zero values;
// Normalize fills the gaps.
type Raw struct {
	ID            string
	Address       string
	Postcode      string
	SalePrice     float64
	AskingPrice   float64
	LastSoldPrice float64
	Bedrooms      *int
	Bathrooms     *int
	SquareFeet    *float64
	PropertyType  string
	Description   string
	Images        []string
	Features      []string
	Rental        *float64
	ROI           *float64
	URL           string
	Latitude      float64
	Longitude     float64
	Agent         *Agent
	Details       *PropertyDetails
	Trends        *MarketTrends
}

// SearchFilters is the filter set accepted by every data source. Providers
// that cannot honor a dimension server-side rely on client-side
// post-filtering (see Matches).
type SearchFilters struct {
	Location     string  `json:"location,omitempty"`
	Postcode     string  `json:"postcode,omitempty"`
	RadiusMiles  float64 `json:"radius,omitempty"`
	PropertyType string  `json:"property_type,omitempty"`
	MinPrice     float64 `json:"min_price,omitempty"`
	MaxPrice     float64 `json:"max_price,omitempty"`
	MinBedrooms  int     `json:"min_bedrooms,omitempty"`
	MaxBedrooms  int     `json:"max_bedrooms,omitempty"`
	Limit        int     `json:"limit,omitempty"`
	Page         int     `json:"page,omitempty"`
}

// Matches reports whether a normalized listing passes the filter set.
// Price 0 (unknown) only passes when no price bounds are set.
func (f SearchFilters) Matches(l *Listing) bool {
	if f.MinPrice > 0 {
		if l.Price == 0 || l.Price < f.MinPrice {
			return false
		}
	}
	if f.MaxPrice > 0 {
		if l.Price == 0 || l.Price > f.MaxPrice {
			return false
		}
	}
	if f.MinBedrooms > 0 && l.Bedrooms < f.MinBedrooms {
		return false
	}
	if f.MaxBedrooms > 0 && l.Bedrooms > f.MaxBedrooms {
		return false
	}
	if f.PropertyType != "" && !typeMatches(l.PropertyType, f.PropertyType) {
		return false
	}
	return true
}
