// Package geocode resolves free-text place names to coordinates through a
// Mapbox-compatible forward-geocoding API.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"time"
)

// DefaultBaseURL is the Mapbox places endpoint.
const DefaultBaseURL = "https://api.mapbox.com/geocoding/v5/mapbox.places"

// Result is a resolved location. BoundingBox is [minLon, minLat, maxLon,
// maxLat] when the provider supplies one, nil otherwise.
type Result struct {
	Longitude   float64   `json:"longitude"`
	Latitude    float64   `json:"latitude"`
	FullName    string    `json:"full_name"`
	BoundingBox []float64 `json:"bbox"`
}

// Error kinds a Forward call can report. The service layer maps these onto
// its public error taxonomy.
type ErrorKind int

// Forward failure classifications.
const (
	// KindNotFound: the provider returned zero features.
	KindNotFound ErrorKind = iota
	// KindInvalidResponse: a feature was returned but its coordinates are unusable.
	KindInvalidResponse
	// KindNoResponse: the request never got an HTTP response.
	KindNoResponse
	// KindBadStatus: the provider answered with a non-2xx status.
	KindBadStatus
)

// Error carries the failure classification alongside the cause.
type Error struct {
	Kind ErrorKind
	err  error
}

func (e *Error) Error() string { return e.err.Error() }
func (e *Error) Unwrap() error { return e.err }

// Client queries a Mapbox-compatible geocoding API.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a geocoding client. baseURL "" selects the Mapbox API;
// timeout bounds every request so a hung upstream cannot stall callers.
func NewClient(token, baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		token:      token,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// response mirrors the provider's wire format.
type response struct {
	Features []feature `json:"features"`
}

type feature struct {
	Center    []float64 `json:"center"` // [lon, lat]
	PlaceName string    `json:"place_name"`
	BBox      []float64 `json:"bbox"`
}

// Forward resolves a place name to coordinates, requesting at most one match.
func (c *Client) Forward(ctx context.Context, name string) (*Result, error) {
	params := url.Values{
		"access_token": {c.token},
		"limit":        {"1"},
	}
	u := fmt.Sprintf("%s/%s.json?%s", c.baseURL, url.PathEscape(name), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &Error{Kind: KindNoResponse, err: fmt.Errorf("create request: %w", err)}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("geocoding request got no response", "query", name, "error", err)
		return nil, &Error{Kind: KindNoResponse, err: fmt.Errorf("no response from geocoding service: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		c.logger.Error("geocoding API error", "query", name, "status", resp.StatusCode, "body", string(body))
		return nil, &Error{Kind: KindBadStatus, err: fmt.Errorf("geocoding API error %d", resp.StatusCode)}
	}

	var wire response
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, &Error{Kind: KindInvalidResponse, err: fmt.Errorf("decode geocoding response: %w", err)}
	}

	if len(wire.Features) == 0 {
		return nil, &Error{Kind: KindNotFound, err: fmt.Errorf("no match for %q", name)}
	}

	f := wire.Features[0]
	if len(f.Center) < 2 || !isFinite(f.Center[0]) || !isFinite(f.Center[1]) {
		return nil, &Error{Kind: KindInvalidResponse, err: fmt.Errorf("invalid coordinates in geocoding response for %q", name)}
	}

	result := &Result{
		Longitude: f.Center[0],
		Latitude:  f.Center[1],
		FullName:  f.PlaceName,
	}
	if len(f.BBox) == 4 {
		result.BoundingBox = f.BBox
	}
	return result, nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
