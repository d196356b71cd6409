package rightmove

import (
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/yourorg/invest-api/listing"
)

var (
	rePrice    = regexp.MustCompile(`[\d,]+`)
	reBedTitle = regexp.MustCompile(`(?i)^(\d+)\s+bedroom\s+(.+?)\s+for sale`)
	rePropID   = regexp.MustCompile(`/properties/(\d+)`)
)

// ParseSearchPage extracts raw listing records from one Rightmove search
// result page. Cards missing an address are skipped; everything else is left
// for the normalizer to salvage.
func ParseSearchPage(r io.Reader, baseURL string) ([]listing.Raw, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	var out []listing.Raw

	doc.Find(".propertyCard").Each(func(_ int, card *goquery.Selection) {
		href, _ := card.Find("a.propertyCard-link").First().Attr("href")
		id := extractPropertyID(href)
		if id != "" && seen[id] {
			return
		}
		if id != "" {
			seen[id] = true
		}

		address := cleanText(card.Find(".propertyCard-address").First().Text())
		if address == "" {
			return
		}

		raw := listing.Raw{
			ID:      id,
			Address: address,
		}
		if href != "" {
			abs := href
			if strings.HasPrefix(href, "/") {
				abs = baseURL + href
			}
			raw.URL = abs
		}

		raw.AskingPrice = parsePrice(card.Find(".propertyCard-priceValue").First().Text())

		title := cleanText(card.Find("h2.propertyCard-title").First().Text())
		if m := reBedTitle.FindStringSubmatch(title); m != nil {
			if beds, err := strconv.Atoi(m[1]); err == nil && beds > 0 {
				raw.Bedrooms = &beds
			}
			raw.PropertyType = titleCase(m[2])
		} else if title != "" {
			raw.PropertyType = title
		}

		raw.Description = cleanText(card.Find(".propertyCard-description").First().Text())

		if img, ok := card.Find(".propertyCard-img img").First().Attr("src"); ok && img != "" {
			raw.Images = append(raw.Images, img)
		}

		if branch := cleanText(card.Find(".propertyCard-branchLogo-link").First().AttrOr("title", "")); branch != "" {
			raw.Agent = &listing.Agent{Name: strings.TrimSuffix(branch, " (agent logo)")}
		}

		out = append(out, raw)
	})

	return out, nil
}

func extractPropertyID(href string) string {
	if m := rePropID.FindStringSubmatch(href); m != nil {
		return m[1]
	}
	return ""
}

func parsePrice(text string) float64 {
	m := rePrice.FindString(text)
	if m == "" {
		return 0
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", ""), 64)
	if err != nil {
		return 0
	}
	return v
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
