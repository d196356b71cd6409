package patma

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/invest-api/listing"
	"github.com/yourorg/invest-api/provider"
)

const samplePayload = `{
  "results": [
    {
      "uprn": "100023336956",
      "address": "14 Mill Road, Cambridge",
      "postcode": "CB1 2AD",
      "asking_price": 425000,
      "last_sold_price": 310000,
      "bedrooms": 3,
      "bathrooms": 2,
      "floor_area_sqft": 1150,
      "property_type": "Terraced",
      "tenure": "freehold",
      "epc_rating": "C",
      "listing_url": "https://www.patma.co.uk/prospector/property/100023336956/",
      "rent_estimate": 1650,
      "latitude": 52.198,
      "longitude": 0.137
    },
    {
      "uprn": "100023336957",
      "address": "Flat 2, 9 Station Road, Cambridge",
      "postcode": "CB1 2JB",
      "last_sold_price": 195000,
      "property_type": "Flat"
    },
    {
      "uprn": "",
      "address": ""
    }
  ]
}`

func TestMapPayload(t *testing.T) {
	cards, err := MapPayload([]byte(samplePayload))
	require.NoError(t, err)
	require.Len(t, cards, 2) // empty record dropped

	first := cards[0]
	assert.Equal(t, "100023336956", first.ID)
	assert.Equal(t, listing.SourcePaTMa, first.Source)
	assert.Equal(t, float64(425000), first.Price) // asking beats last sold
	assert.Equal(t, 3, first.Bedrooms)
	assert.Equal(t, 2, first.Bathrooms)
	assert.Equal(t, float64(1150), first.SquareFeet)
	assert.Equal(t, float64(1650), first.RentalEstimate) // source figure kept
	require.NotNil(t, first.PropertyDetails)
	assert.Equal(t, "freehold", first.PropertyDetails.Tenure)
	assert.Equal(t, "C", first.PropertyDetails.EPCRating)

	// sale-history record falls back to last sold price and estimates beds
	second := cards[1]
	assert.Equal(t, float64(195000), second.Price)
	assert.True(t, second.BedroomsEstimated)
	assert.Equal(t, 2, second.Bedrooms)
}

func TestMapPayload_Garbage(t *testing.T) {
	_, err := MapPayload([]byte("not json"))
	assert.Error(t, err)
}

func TestClient_Search(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/prospector/v1/properties/", r.URL.Path)
		assert.Equal(t, "CB1", r.URL.Query().Get("postcode"))
		assert.Equal(t, "Token test-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(samplePayload))
	}))
	defer srv.Close()

	c := NewClient("test-key").WithBaseURL(srv.URL)
	got, err := c.Search(context.Background(), listing.SearchFilters{Postcode: "CB1", MinPrice: 400000})
	require.NoError(t, err)
	// the cheap flat is filtered client-side
	require.Len(t, got, 1)
	assert.Equal(t, "100023336956", got[0].ID)
}

func TestClient_QuotaError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient("test-key").WithBaseURL(srv.URL)
	_, err := c.Search(context.Background(), listing.SearchFilters{Location: "leeds"})
	assert.ErrorIs(t, err, provider.ErrQuotaExceeded)
}
