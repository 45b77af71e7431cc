package carriers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/iradwatkins/uvcoatedclubflyers-sub002/internal/domain"
)

func airServer(t *testing.T, captured *airQuoteRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/quotes", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(captured))
		_, _ = w.Write([]byte(`{"quotes":[
			{"service":"nfo","description":"Next Flight Out","priceCents":15400,"transitDays":1,"estimatedDelivery":"2024-05-07T18:00:00-05:00"},
			{"service":"STANDARD_AIR","description":"Standard Air","priceCents":8900,"transitDays":2}
		]}`))
	}))
}

func TestAirCargoProviderUsesCarrierHintAirport(t *testing.T) {
	var captured airQuoteRequest
	srv := airServer(t, &captured)
	defer srv.Close()

	req := testRateRequest()
	for i := range req.Packages {
		req.Packages[i].Metadata[domain.MetadataCarrierHint] = "atl"
	}
	p := NewAirCargoProvider(AirCargoConfig{BaseURL: srv.URL, DefaultAirport: "ORD"}, WithClock(func() time.Time { return fixedNow }))
	rates, err := p.GetRates(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "ATL", captured.PickupAirport)
	assert.Equal(t, 40.0, captured.TotalWeightLbs)
	assert.Len(t, captured.Pieces, 2)
	require.Len(t, rates, 2)
	assert.Equal(t, AirCargoName, rates[0].Carrier)
	assert.Equal(t, int64(15400), rates[0].CostCents)
	require.NotNil(t, rates[0].EstimatedDelivery)
	assert.Equal(t, time.Date(2024, time.May, 7, 23, 0, 0, 0, time.UTC), *rates[0].EstimatedDelivery)
	require.NotNil(t, rates[1].EstimatedDelivery)
	assert.Equal(t, fixedNow.AddDate(0, 0, 2), *rates[1].EstimatedDelivery)
}

func TestAirCargoProviderFallsBackToDefaultAirport(t *testing.T) {
	var captured airQuoteRequest
	srv := airServer(t, &captured)
	defer srv.Close()

	req := testRateRequest()
	req.Packages[0].Metadata[domain.MetadataCarrierHint] = "not-an-airport"
	p := NewAirCargoProvider(AirCargoConfig{BaseURL: srv.URL, DefaultAirport: "ord"})
	_, err := p.GetRates(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "ORD", captured.PickupAirport)
}

func TestAirCargoProviderInvalidDestination(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"code":"NO_SERVICE_AREA","message":"no airport serves 99999"}`))
	}))
	defer srv.Close()

	p := NewAirCargoProvider(AirCargoConfig{BaseURL: srv.URL})
	_, err := p.GetRates(context.Background(), testRateRequest())
	require.ErrorIs(t, err, domain.ErrInvalidAddress)
}

func TestNormalizeAirport(t *testing.T) {
	assert.Equal(t, "MDW", normalizeAirport(" mdw "))
	assert.Empty(t, normalizeAirport("MDWX"))
	assert.Empty(t, normalizeAirport("M1W"))
	assert.Empty(t, normalizeAirport(""))
}
