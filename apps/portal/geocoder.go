package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	nominatimDefaultBaseURL = "https://nominatim.openstreetmap.org"
	mapboxDefaultBaseURL    = "https://api.mapbox.com"
	nominatimMinInterval    = time.Second
)

var pincodeDigitsPattern = regexp.MustCompile(`^[0-9]{6}$`)

// GeocodeResult is the structured location found for a map point.
type GeocodeResult struct {
	Label    string `json:"label"`
	Address  string `json:"address"`
	City     string `json:"city"`
	District string `json:"district"`
	State    string `json:"state"`
	Pincode  string `json:"pincode"`
	Fallback bool   `json:"fallback"`
}

// Geocoder abstraction for reverse lookup. A nil result with a nil error
// means nothing was found.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lng float64, lang string) (*GeocodeResult, error)
}

// MapboxGeocoder implements Geocoder using Mapbox API v6
type MapboxGeocoder struct {
	AccessToken string
	BaseURL     string
	Client      *http.Client
}

func (g *MapboxGeocoder) ReverseGeocode(ctx context.Context, lat, lng float64, lang string) (*GeocodeResult, error) {
	if g.AccessToken == "" {
		return nil, errors.New("mapbox access token missing")
	}

	query := url.Values{}
	query.Set("longitude", strconv.FormatFloat(lng, 'f', -1, 64))
	query.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	query.Set("access_token", g.AccessToken)
	query.Set("language", lang)
	query.Set("limit", "1")
	u := valueOrFallback(g.BaseURL, mapboxDefaultBaseURL) + "/search/geocode/v6/reverse?" + query.Encode()

	var data struct {
		Features []struct {
			Properties struct {
				Name        string `json:"name"`
				FullAddress string `json:"full_address"`
				Context     struct {
					Place    struct{ Name string } `json:"place"`
					Locality struct{ Name string } `json:"locality"`
					District struct{ Name string } `json:"district"`
					Region   struct{ Name string } `json:"region"`
					Postcode struct{ Name string } `json:"postcode"`
				} `json:"context"`
			} `json:"properties"`
		} `json:"features"`
	}
	if err := getJSON(ctx, g.Client, u, nil, &data); err != nil {
		return nil, fmt.Errorf("mapbox: %w", err)
	}
	if len(data.Features) == 0 {
		return nil, nil
	}

	props := data.Features[0].Properties
	city := firstNonBlank(props.Context.Place.Name, props.Context.Locality.Name)
	result := &GeocodeResult{
		Label:    firstNonBlank(props.FullAddress, props.Name),
		Address:  firstNonBlank(props.FullAddress, props.Name),
		City:     city,
		District: props.Context.District.Name,
		State:    stateOrRaw(props.Context.Region.Name),
		Pincode:  sixDigitPincode(props.Context.Postcode.Name),
	}
	return result, nil
}

// NominatimGeocoder implements Geocoder using OSM Nominatim.
// Nominatim requires a User-Agent and allows one request per second.
type NominatimGeocoder struct {
	UserAgent   string
	BaseURL     string
	MinInterval time.Duration
	Client      *http.Client

	mu       sync.Mutex
	lastCall time.Time
}

func (g *NominatimGeocoder) ReverseGeocode(ctx context.Context, lat, lng float64, lang string) (*GeocodeResult, error) {
	if err := g.throttle(ctx); err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("format", "jsonv2")
	query.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	query.Set("lon", strconv.FormatFloat(lng, 'f', -1, 64))
	query.Set("addressdetails", "1")
	u := valueOrFallback(g.BaseURL, nominatimDefaultBaseURL) + "/reverse?" + query.Encode()

	headers := http.Header{}
	headers.Set("User-Agent", g.UserAgent)
	if lang != "" {
		headers.Set("Accept-Language", lang)
	}

	var data struct {
		DisplayName string            `json:"display_name"`
		Address     map[string]string `json:"address"`
	}
	if err := getJSON(ctx, g.Client, u, headers, &data); err != nil {
		return nil, fmt.Errorf("nominatim: %w", err)
	}
	if data.DisplayName == "" && len(data.Address) == 0 {
		return nil, nil
	}
	return nominatimResult(data.DisplayName, data.Address), nil
}

// throttle spaces calls at least MinInterval apart across goroutines.
func (g *NominatimGeocoder) throttle(ctx context.Context) error {
	interval := g.MinInterval
	if interval == 0 {
		interval = nominatimMinInterval
	}

	g.mu.Lock()
	wait := interval - time.Since(g.lastCall)
	if wait < 0 {
		wait = 0
	}
	g.lastCall = time.Now().Add(wait)
	g.mu.Unlock()

	if wait == 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nominatimResult(displayName string, address map[string]string) *GeocodeResult {
	pick := func(keys ...string) string {
		for _, key := range keys {
			if value := strings.TrimSpace(address[key]); value != "" {
				return value
			}
		}
		return ""
	}

	street := pick("road", "pedestrian", "neighbourhood")
	if number := pick("house_number"); number != "" && street != "" {
		street = number + ", " + street
	}

	return &GeocodeResult{
		Label:    strings.TrimSpace(displayName),
		Address:  firstNonBlank(street, strings.TrimSpace(displayName)),
		City:     pick("city", "town", "village", "suburb"),
		District: pick("state_district", "county", "city_district"),
		State:    stateOrRaw(pick("state")),
		Pincode:  sixDigitPincode(pick("postcode")),
	}
}

// FallbackGeocoder prioritizes first, falls back to second
type FallbackGeocoder struct {
	Primary   Geocoder
	Secondary Geocoder
}

func (g *FallbackGeocoder) ReverseGeocode(ctx context.Context, lat, lng float64, lang string) (*GeocodeResult, error) {
	res, err := g.Primary.ReverseGeocode(ctx, lat, lng, lang)
	if err != nil || res == nil {
		return g.Secondary.ReverseGeocode(ctx, lat, lng, lang)
	}
	return res, nil
}

func getJSON(ctx context.Context, client *http.Client, rawURL string, headers http.Header, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	for key, values := range headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func sixDigitPincode(raw string) string {
	value := strings.ReplaceAll(strings.TrimSpace(raw), " ", "")
	if pincodeDigitsPattern.MatchString(value) {
		return value
	}
	return ""
}

func stateOrRaw(raw string) string {
	if canonical := canonicalStateName(raw); canonical != "" {
		return canonical
	}
	return strings.TrimSpace(raw)
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func valueOrFallback(value, fallback string) string {
	if value = strings.TrimRight(strings.TrimSpace(value), "/"); value != "" {
		return value
	}
	return fallback
}

func coordinateLabel(lat, lng float64) string {
	return fmt.Sprintf("%.6f, %.6f", lat, lng)
}

func parseCoordinates(rawLat, rawLng string) (float64, float64, bool) {
	lat, err := strconv.ParseFloat(strings.TrimSpace(rawLat), 64)
	if err != nil || math.IsNaN(lat) || lat < -90 || lat > 90 {
		return 0, 0, false
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(rawLng), 64)
	if err != nil || math.IsNaN(lng) || lng < -180 || lng > 180 {
		return 0, 0, false
	}
	return lat, lng, true
}

// reverseGeocodeHandler never fails on a geocoding error; the map still needs
// a label, so it answers with the raw coordinates instead.
func (a *App) reverseGeocodeHandler(c *gin.Context) {
	lang := a.languageFromRequest(c)
	lat, lng, ok := parseCoordinates(c.Query("lat"), c.Query("lng"))
	if !ok {
		writeAPIError(c, &apiError{Status: http.StatusBadRequest, Code: "invalid_coordinates", Message: t(lang, "error_invalid_coordinates")})
		return
	}

	result, err := a.geocoder.ReverseGeocode(c.Request.Context(), lat, lng, lang)
	if err != nil || result == nil {
		if err != nil {
			a.log.Warn("reverse geocoding failed", "lat", lat, "lng", lng, "err", err)
		}
		c.JSON(http.StatusOK, GeocodeResult{Label: coordinateLabel(lat, lng), Fallback: true})
		return
	}
	if result.Label == "" {
		result.Label = coordinateLabel(lat, lng)
	}
	c.JSON(http.StatusOK, result)
}
