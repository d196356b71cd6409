package listing

import (
	"fmt"
	"hash/fnv"
	"regexp"
	"strconv"
	"strings"
)

// maxParsedBedrooms caps address-derived counts; anything larger is a house
// number that happened to precede a bedroom keyword.
const maxParsedBedrooms = 10

var (
	// word boundary keeps street names like "Bedford Road" from parsing
	// as a bedroom count
	reBedPattern = regexp.MustCompile(`(?i)\b(\d+)\s*-?\s*bed(?:room)?s?\b`)
	rePostcode   = regexp.MustCompile(`(?i)\b([A-Z]{1,2}\d[A-Z\d]?)\s*(\d[A-Z]{2})?\b`)

	typeKeywords = []struct {
		keyword string
		label   string
	}{
		{"flat", "Flat"},
		{"apartment", "Apartment"},
		{"maisonette", "Maisonette"},
		{"bungalow", "Bungalow"},
		{"cottage", "Cottage"},
		{"terraced", "Terraced"},
		{"terrace", "Terraced"},
		{"semi-detached", "Semi-Detached"},
		{"semi detached", "Semi-Detached"},
		{"detached", "Detached"},
		{"house", "House"},
		{"studio", "Studio"},
		{"condo", "Condo"},
		{"townhouse", "Townhouse"},
	}

	placeholderImages = map[string][]string{
		"flat": {
			"https://images.unsplash.com/photo-1460317442991-0ec209397118?w=800",
			"https://images.unsplash.com/photo-1502672260266-1c1ef2d93688?w=800",
			"https://images.unsplash.com/photo-1522708323590-d24dbb6b0267?w=800",
		},
		"house": {
			"https://images.unsplash.com/photo-1568605114967-8130f3a36994?w=800",
			"https://images.unsplash.com/photo-1570129477492-45c003edd2be?w=800",
			"https://images.unsplash.com/photo-1564013799919-ab600027ffc6?w=800",
		},
	}
)

// Normalize maps one adapter-produced raw record into a finished Listing,
// filling missing fields with deterministic heuristics and attaching the
// derived financials and investment score. A record that cannot be salvaged
// returns (nil, false) so the caller drops it without aborting the batch.
func Normalize(r Raw, source string) (*Listing, bool) {
	address := strings.TrimSpace(r.Address)
	id := strings.TrimSpace(r.ID)
	if id == "" && address == "" {
		return nil, false
	}
	if id == "" {
		id = stableID(address, source)
	}

	price := extractPrice(r)

	propType := strings.TrimSpace(r.PropertyType)
	if propType == "" {
		propType = inferPropertyType(address, r.Description)
	}

	beds, bedsEstimated := extractBedrooms(r, address, price, propType)

	l := &Listing{
		ID:                id,
		Address:           address,
		Postcode:          normalizePostcode(r.Postcode, address),
		Price:             price,
		Bedrooms:          beds,
		PropertyType:      propType,
		Description:       strings.TrimSpace(r.Description),
		Features:          r.Features,
		Source:            source,
		URL:               r.URL,
		Latitude:          r.Latitude,
		Longitude:         r.Longitude,
		Agent:             r.Agent,
		PropertyDetails:   r.Details,
		MarketTrends:      r.Trends,
		BedroomsEstimated: bedsEstimated,
	}
	if r.Bathrooms != nil && *r.Bathrooms > 0 {
		l.Bathrooms = *r.Bathrooms
	}
	if r.SquareFeet != nil && *r.SquareFeet > 0 {
		l.SquareFeet = *r.SquareFeet
	}

	for _, img := range r.Images {
		if img == "" {
			continue
		}
		l.Images = append(l.Images, img)
	}
	if len(l.Images) > 0 {
		l.ImageURL = l.Images[0]
	} else {
		l.ImageURL = placeholderImage(address, propType)
	}

	if l.Description == "" {
		l.Description = synthesizeDescription(beds, propType, address)
	}

	attachFinancials(l, r)
	l.InvestmentScore = Score(l)
	applyDetailDefaults(l)
	return l, true
}

// extractPrice prefers the explicit sale price, then asking price, then last
// sold price. 0 means unknown.
func extractPrice(r Raw) float64 {
	for _, p := range []float64{r.SalePrice, r.AskingPrice, r.LastSoldPrice} {
		if p > 0 {
			return p
		}
	}
	return 0
}

func extractBedrooms(r Raw, address string, price float64, propType string) (beds int, estimated bool) {
	if r.Bedrooms != nil && *r.Bedrooms > 0 {
		return *r.Bedrooms, false
	}
	if m := reBedPattern.FindStringSubmatch(address); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 && n <= maxParsedBedrooms {
			return n, false
		}
	}
	return estimateBedrooms(price, propType), true
}

// estimateBedrooms buckets price by property-type class. Deterministic:
// the same price and type always land in the same bucket.
func estimateBedrooms(price float64, propType string) int {
	switch {
	case reFlat.MatchString(propType):
		switch {
		case price > 0 && price < 120000:
			return 1
		case price > 0 && price < 250000:
			return 2
		default:
			return 3
		}
	case reDetached.MatchString(propType):
		if price > 0 && price < 300000 {
			return 3
		}
		return 4
	default:
		switch {
		case price > 0 && price < 180000:
			return 2
		case price > 0 && price < 350000:
			return 3
		default:
			if price == 0 {
				return 2
			}
			return 4
		}
	}
}

func inferPropertyType(address, description string) string {
	haystack := strings.ToLower(address + " " + description)
	for _, tk := range typeKeywords {
		if strings.Contains(haystack, tk.keyword) {
			return tk.label
		}
	}
	return "Residential"
}

// placeholderImage picks a category-appropriate stock image using a stable
// hash of the address, so repeated renders of the same listing always show
// the same picture.
func placeholderImage(address, propType string) string {
	pool := placeholderImages["house"]
	if reFlat.MatchString(propType) {
		pool = placeholderImages["flat"]
	}
	h := fnv.New32a()
	h.Write([]byte(strings.ToLower(address)))
	return pool[int(h.Sum32())%len(pool)]
}

func stableID(address, source string) string {
	h := fnv.New64a()
	h.Write([]byte(source))
	h.Write([]byte{0})
	h.Write([]byte(strings.ToLower(address)))
	return fmt.Sprintf("%s-%x", source, h.Sum64())
}

func synthesizeDescription(beds int, propType, address string) string {
	locality := localityFrom(address)
	label := strings.ToLower(propType)
	if label == "" || label == "residential" {
		label = "property"
	}
	if locality != "" {
		return fmt.Sprintf("A %d bedroom %s located in %s.", beds, label, locality)
	}
	return fmt.Sprintf("A %d bedroom %s.", beds, label)
}

// localityFrom pulls a display-friendly fragment from a free-text address:
// the second comma-separated part when present, else the whole trimmed
// string minus any trailing postcode.
func localityFrom(address string) string {
	parts := strings.Split(address, ",")
	var frag string
	if len(parts) >= 2 {
		frag = strings.TrimSpace(parts[1])
	} else {
		frag = strings.TrimSpace(address)
	}
	frag = rePostcode.ReplaceAllString(frag, "")
	return strings.TrimSpace(strings.Trim(frag, " ,"))
}

func normalizePostcode(postcode, address string) string {
	pc := strings.ToUpper(strings.TrimSpace(postcode))
	if pc != "" {
		return pc
	}
	if m := rePostcode.FindString(strings.ToUpper(address)); m != "" {
		return strings.TrimSpace(m)
	}
	return ""
}

// attachFinancials keeps source-supplied rental/ROI figures when present and
// derives the rest. When both are derived they satisfy the ROI identity
// roi = rental*12/price*100 exactly.
func attachFinancials(l *Listing, r Raw) {
	if r.Rental != nil && *r.Rental > 0 {
		l.RentalEstimate = *r.Rental
		if r.ROI != nil && *r.ROI > 0 {
			l.ROIEstimate = *r.ROI
		} else if l.Price > 0 {
			l.ROIEstimate = (l.RentalEstimate * 12 / l.Price) * 100
		}
		return
	}
	beds := l.Bedrooms
	fin := Estimate(l.Price, &beds, l.PropertyType)
	l.RentalEstimate = fin.RentalEstimate
	l.ROIEstimate = fin.ROIEstimate
}

// applyDetailDefaults fills the supplementary bags with fixed defaults when
// the source provided nothing, matching what the UI expects to render.
func applyDetailDefaults(l *Listing) {
	if l.PropertyDetails == nil {
		l.PropertyDetails = &PropertyDetails{
			CrimeRate:     "average",
			SchoolsNearby: 3,
		}
	}
	if l.MarketTrends == nil {
		l.MarketTrends = &MarketTrends{
			AppreciationRate: 3.5,
			DemandLevel:      "moderate",
			AvgDaysOnMarket:  45,
		}
	}
}

func typeMatches(have, want string) bool {
	return strings.Contains(strings.ToLower(have), strings.ToLower(strings.TrimSpace(want)))
}
