package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNominatimReverseGeocode(t *testing.T) {
	var gotQuery, gotAgent, gotLang string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/reverse", r.URL.Path)
		gotQuery = r.URL.RawQuery
		gotAgent = r.Header.Get("User-Agent")
		gotLang = r.Header.Get("Accept-Language")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"display_name": "Shivajinagar, Pune, Maharashtra, 411005, India",
			"address": {
				"house_number": "12",
				"road": "FC Road",
				"suburb": "Shivajinagar",
				"city": "Pune",
				"state_district": "Pune District",
				"state": "Maharashtra",
				"postcode": "411 005",
				"country": "India"
			}
		}`)
	}))
	defer server.Close()

	geocoder := &NominatimGeocoder{UserAgent: "grievance-test/1.0", BaseURL: server.URL + "/", MinInterval: time.Millisecond, Client: server.Client()}
	result, err := geocoder.ReverseGeocode(context.Background(), 18.5308, 73.8475, "mr")
	require.NoError(t, err)

	assert.Equal(t, &GeocodeResult{
		Label:    "Shivajinagar, Pune, Maharashtra, 411005, India",
		Address:  "12, FC Road",
		City:     "Pune",
		District: "Pune District",
		State:    "Maharashtra",
		Pincode:  "411005",
	}, result)
	assert.Equal(t, "grievance-test/1.0", gotAgent)
	assert.Equal(t, "mr", gotLang)
	assert.Contains(t, gotQuery, "lat=18.5308")
	assert.Contains(t, gotQuery, "lon=73.8475")
	assert.Contains(t, gotQuery, "format=jsonv2")
}

func TestNominatimThrottlesCalls(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{}`)
	}))
	defer server.Close()

	geocoder := &NominatimGeocoder{UserAgent: "test", BaseURL: server.URL, MinInterval: 40 * time.Millisecond, Client: server.Client()}
	start := time.Now()
	for i := 0; i < 2; i++ {
		result, err := geocoder.ReverseGeocode(context.Background(), 1, 1, "en")
		require.NoError(t, err)
		assert.Nil(t, result, "an empty answer means nothing found")
	}
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestMapboxReverseGeocode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search/geocode/v6/reverse", r.URL.Path)
		assert.Equal(t, "token-1", r.URL.Query().Get("access_token"))
		assert.Equal(t, "hi", r.URL.Query().Get("language"))
		_, _ = io.WriteString(w, `{"features":[{"properties":{
			"name": "MG Road",
			"full_address": "MG Road, Bengaluru, Karnataka 560001, India",
			"context": {
				"locality": {"name": "Ashok Nagar"},
				"district": {"name": "Bangalore Urban"},
				"region": {"name": "karnataka"},
				"postcode": {"name": "560001"}
			}
		}}]}`)
	}))
	defer server.Close()

	geocoder := &MapboxGeocoder{AccessToken: "token-1", BaseURL: server.URL, Client: server.Client()}
	result, err := geocoder.ReverseGeocode(context.Background(), 12.9757, 77.6065, "hi")
	require.NoError(t, err)
	assert.Equal(t, "MG Road, Bengaluru, Karnataka 560001, India", result.Label)
	assert.Equal(t, "Ashok Nagar", result.City)
	assert.Equal(t, "Bangalore Urban", result.District)
	assert.Equal(t, "Karnataka", result.State)
	assert.Equal(t, "560001", result.Pincode)

	_, err = (&MapboxGeocoder{}).ReverseGeocode(context.Background(), 1, 1, "en")
	assert.Error(t, err)
}

func TestNominatimResultFallbacks(t *testing.T) {
	result := nominatimResult("Some village, Atlantis", map[string]string{
		"village":  "Kothrud Khurd",
		"county":   "Haveli",
		"state":    "Atlantis",
		"postcode": "41103",
	})
	assert.Equal(t, "Some village, Atlantis", result.Address)
	assert.Equal(t, "Kothrud Khurd", result.City)
	assert.Equal(t, "Haveli", result.District)
	assert.Equal(t, "Atlantis", result.State, "unknown states are kept as received")
	assert.Empty(t, result.Pincode)
}

func TestFallbackGeocoder(t *testing.T) {
	secondary := &stubGeocoder{result: &GeocodeResult{Label: "secondary"}}

	g := &FallbackGeocoder{Primary: &stubGeocoder{err: errors.New("quota exceeded")}, Secondary: secondary}
	result, err := g.ReverseGeocode(context.Background(), 1, 1, "en")
	require.NoError(t, err)
	assert.Equal(t, "secondary", result.Label)

	g = &FallbackGeocoder{Primary: &stubGeocoder{}, Secondary: secondary}
	result, err = g.ReverseGeocode(context.Background(), 1, 1, "en")
	require.NoError(t, err)
	assert.Equal(t, "secondary", result.Label)

	g = &FallbackGeocoder{Primary: &stubGeocoder{result: &GeocodeResult{Label: "primary"}}, Secondary: secondary}
	result, err = g.ReverseGeocode(context.Background(), 1, 1, "en")
	require.NoError(t, err)
	assert.Equal(t, "primary", result.Label)
}

func TestReverseGeocodeHandler(t *testing.T) {
	app, router, _ := newPortalTestServer(t)

	res := serve(router, httptest.NewRequest(http.MethodGet, "/api/v1/geocode/reverse?lat=95&lng=10", nil))
	assert.Equal(t, http.StatusBadRequest, res.Code)

	app.geocoder = &stubGeocoder{err: errors.New("timeout")}
	res = serve(router, httptest.NewRequest(http.MethodGet, "/api/v1/geocode/reverse?lat=18.52&lng=73.8567", nil))
	require.Equal(t, http.StatusOK, res.Code)
	var fallback GeocodeResult
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &fallback))
	assert.Equal(t, GeocodeResult{Label: "18.520000, 73.856700", Fallback: true}, fallback)

	app.geocoder = &stubGeocoder{result: &GeocodeResult{City: "Pune", State: "Maharashtra"}}
	res = serve(router, httptest.NewRequest(http.MethodGet, "/api/v1/geocode/reverse?lat=18.52&lng=73.8567", nil))
	require.Equal(t, http.StatusOK, res.Code)
	var found GeocodeResult
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &found))
	assert.Equal(t, "Pune", found.City)
	assert.Equal(t, "18.520000, 73.856700", found.Label)
	assert.False(t, found.Fallback)
}

func TestParseCoordinates(t *testing.T) {
	tests := []struct {
		lat, lng string
		ok       bool
	}{
		{"18.52", "73.85", true},
		{" -90 ", "180", true},
		{"90.1", "0", false},
		{"0", "-180.5", false},
		{"north", "73", false},
		{"", "", false},
		{"NaN", "73.85", false},
		{"18.52", "nan", false},
		{"+Inf", "0", false},
	}
	for _, tt := range tests {
		_, _, ok := parseCoordinates(tt.lat, tt.lng)
		assert.Equal(t, tt.ok, ok, "%q,%q", tt.lat, tt.lng)
	}
}
