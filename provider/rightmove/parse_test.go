package rightmove

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/invest-api/listing"
)

const samplePage = `<!DOCTYPE html>
<html><body>
<div class="l-searchResults">
  <div class="propertyCard">
    <a class="propertyCard-link" href="/properties/131500000#/"></a>
    <div class="propertyCard-priceValue">&pound;325,000</div>
    <h2 class="propertyCard-title">3 bedroom terraced house for sale</h2>
    <address class="propertyCard-address">Mill Road, Cambridge, CB1</address>
    <div class="propertyCard-description"><span>A well presented Victorian terrace close to the station.</span></div>
    <div class="propertyCard-img"><img src="https://media.rightmove.co.uk/1.jpg"/></div>
    <a class="propertyCard-branchLogo-link" title="Fenland Estates (agent logo)"></a>
  </div>
  <div class="propertyCard">
    <a class="propertyCard-link" href="/properties/131500000#/"></a>
    <h2 class="propertyCard-title">duplicate card</h2>
    <address class="propertyCard-address">Mill Road, Cambridge, CB1</address>
  </div>
  <div class="propertyCard">
    <a class="propertyCard-link" href="/properties/131600000#/"></a>
    <div class="propertyCard-priceValue">&pound;110,000</div>
    <h2 class="propertyCard-title">Flat for sale</h2>
    <address class="propertyCard-address">Victoria Court, Manchester, M1</address>
  </div>
  <div class="propertyCard">
    <h2 class="propertyCard-title">card without address</h2>
    <address class="propertyCard-address"></address>
  </div>
</div>
</body></html>`

func TestParseSearchPage(t *testing.T) {
	raws, err := ParseSearchPage(strings.NewReader(samplePage), "https://www.rightmove.co.uk")
	require.NoError(t, err)
	require.Len(t, raws, 2) // duplicate and address-less cards skipped

	first := raws[0]
	assert.Equal(t, "131500000", first.ID)
	assert.Equal(t, "Mill Road, Cambridge, CB1", first.Address)
	assert.Equal(t, float64(325000), first.AskingPrice)
	require.NotNil(t, first.Bedrooms)
	assert.Equal(t, 3, *first.Bedrooms)
	assert.Equal(t, "Terraced House", first.PropertyType)
	assert.Equal(t, "https://www.rightmove.co.uk/properties/131500000#/", first.URL)
	require.NotNil(t, first.Agent)
	assert.Equal(t, "Fenland Estates", first.Agent.Name)

	second := raws[1]
	assert.Equal(t, "131600000", second.ID)
	assert.Nil(t, second.Bedrooms)
}

func TestScraper_Search(t *testing.T) {
	var pages int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pages++
		if r.URL.Query().Get("index") != "" {
			// second page empty -> stop pagination
			_, _ = w.Write([]byte(`<html><body></body></html>`))
			return
		}
		_, _ = w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	s := New().WithBaseURL(srv.URL).WithMaxPages(2)
	got, err := s.Search(context.Background(), listing.SearchFilters{Location: "cambridge"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, listing.SourceRightmove, got[0].Source)
	assert.Equal(t, 3, got[0].Bedrooms)
	// flat card has no bedroom count; bucket rule fills it deterministically
	assert.Equal(t, 1, got[1].Bedrooms)
	assert.Equal(t, 2, pages)
}

func TestParsePrice(t *testing.T) {
	assert.Equal(t, float64(325000), parsePrice("£325,000"))
	assert.Equal(t, float64(0), parsePrice("POA"))
}
