package places

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var cherating = LatLng{Lat: 4.1383924, Lng: 103.4079572}

func TestHaversine(t *testing.T) {
	assert.InDelta(t, 0, Haversine(cherating, cherating), 1e-9)

	// Kuala Lumpur to Singapore is roughly 316km great-circle.
	kl := LatLng{Lat: 3.1390, Lng: 101.6869}
	sg := LatLng{Lat: 1.3521, Lng: 103.8198}
	assert.InDelta(t, 316, Haversine(kl, sg), 3)
}

func TestFormatDistance(t *testing.T) {
	assert.Equal(t, "2.35 km", FormatDistance(2.346))
	assert.Equal(t, "1.00 km", FormatDistance(1))
	assert.Equal(t, "420 m", FormatDistance(0.42))
}

func TestFormatNearby(t *testing.T) {
	rating := 4.5
	open := true
	closed := false

	got := FormatNearby([]Place{
		{Name: "Farmasi Cherating", Address: "Jalan Kampung", DistanceKm: 0.8, Rating: &rating, OpenNow: &open},
		{Name: "Kuantan Pharmacy", Address: "Kuantan", DistanceKm: 12.5, OpenNow: &closed},
	}, "pharmacy", "Club Med Cherating")

	want := "### Nearest Pharmacys from Club Med Cherating\n\n" +
		"**1. Farmasi Cherating**\n- Distance: 800 m\n- Address: Jalan Kampung\n- Rating: 4.5/5.0\n- Status: Open now\n\n" +
		"**2. Kuantan Pharmacy**\n- Distance: 12.50 km\n- Address: Kuantan\n- Status: Closed now\n\n"
	assert.Equal(t, want, got)
}

func TestFormatNearby_Empty(t *testing.T) {
	assert.Equal(t, "No shopping malls found within the search radius.", FormatNearby(nil, "shopping_mall", "X"))
	assert.Contains(t, FormatNearby([]Place{{Name: "A"}}, "shopping_mall", "X"), "### Nearest Shopping Malls from X")
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *GoogleClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewGoogleClient(GoogleConfig{APIKey: "maps-key", BaseURL: srv.URL}, zap.NewNop())
	require.NoError(t, err)
	return c
}

func TestGoogleClient_Search(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "4.1383924,103.4079572", q.Get("location"))
		assert.Equal(t, "10000", q.Get("radius"))
		assert.Equal(t, "pharmacy", q.Get("type"))
		assert.Equal(t, "maps-key", q.Get("key"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status": "OK", "results": [
			{"name": "Far", "vicinity": "Kuantan", "geometry": {"location": {"lat": 3.8077, "lng": 103.3260}}},
			{"name": "Near", "vicinity": "Cherating", "geometry": {"location": {"lat": 4.1300, "lng": 103.4000}},
			 "rating": 4.2, "opening_hours": {"open_now": true}},
			{"name": "Middle", "vicinity": "Balok", "geometry": {"location": {"lat": 3.9400, "lng": 103.3700}}}
		]}`))
	})

	results, err := c.Search(context.Background(), Query{
		Origin: cherating, PlaceType: "pharmacy", RadiusMeters: 10000, MaxResults: 2,
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "Near", results[0].Name)
	assert.Equal(t, "Middle", results[1].Name)
	require.NotNil(t, results[0].Rating)
	assert.Equal(t, 4.2, *results[0].Rating)
	require.NotNil(t, results[0].OpenNow)
	assert.True(t, *results[0].OpenNow)
	assert.Nil(t, results[1].Rating)
	assert.Less(t, results[0].DistanceKm, results[1].DistanceKm)
}

func TestGoogleClient_ZeroResults(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status": "ZERO_RESULTS", "results": []}`))
	})

	results, err := c.Search(context.Background(), Query{Origin: cherating, PlaceType: "casino"})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestGoogleClient_DeniedIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"status": "REQUEST_DENIED", "error_message": "The provided API key is invalid."}`))
	})

	_, err := c.Search(context.Background(), Query{Origin: cherating, PlaceType: "atm"})
	require.Error(t, err)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, "REQUEST_DENIED", statusErr.Status)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGoogleClient_RetriesServerError(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"status": "OK", "results": [{"name": "ATM", "vicinity": "x", "geometry": {"location": {"lat": 4.1, "lng": 103.4}}}]}`))
	})

	results, err := c.Search(context.Background(), Query{Origin: cherating, PlaceType: "atm"})
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestNewGoogleClient_RequiresKey(t *testing.T) {
	_, err := NewGoogleClient(GoogleConfig{BaseURL: "http://x"}, zap.NewNop())
	assert.Error(t, err)
}
