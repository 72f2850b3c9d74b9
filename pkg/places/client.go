// Package places is a client for the listings source's Nearby Search API.
package places

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/shiok-scout/gems-cli/internal/resilience"
)

const defaultBaseURL = "https://places.googleapis.com/v1"

// Client performs listings source API operations.
type Client interface {
	// SearchNearby returns restaurant listings within radiusMeters of the
	// given point. The source caps results per query, which is why the
	// sweep tiles the region with overlapping circles.
	SearchNearby(ctx context.Context, lat, lon float64, radiusMeters int) ([]Place, error)
}

// Place represents a listing returned by the API.
type Place struct {
	ID              string      `json:"id"`
	DisplayName     DisplayName `json:"displayName"`
	PrimaryType     string      `json:"primaryType"`
	Rating          *float64    `json:"rating"`
	UserRatingCount int         `json:"userRatingCount"`
	Location        Location    `json:"location"`
}

// DisplayName holds the listing's display name.
type DisplayName struct {
	Text string `json:"text"`
}

// Location holds the listing's coordinates.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a listings source API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type searchNearbyRequest struct {
	IncludedTypes       []string            `json:"includedTypes"`
	MaxResultCount      int                 `json:"maxResultCount"`
	LocationRestriction locationRestriction `json:"locationRestriction"`
}

type locationRestriction struct {
	Circle circle `json:"circle"`
}

type circle struct {
	Center Location `json:"center"`
	Radius float64  `json:"radius"`
}

type searchNearbyResponse struct {
	Places []Place `json:"places"`
}

func (c *httpClient) SearchNearby(ctx context.Context, lat, lon float64, radiusMeters int) ([]Place, error) {
	body, err := json.Marshal(searchNearbyRequest{
		IncludedTypes:  []string{"restaurant"},
		MaxResultCount: 20,
		LocationRestriction: locationRestriction{
			Circle: circle{
				Center: Location{Latitude: lat, Longitude: lon},
				Radius: float64(radiusMeters),
			},
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "places: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/places:searchNearby", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "places: create request")
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	req.Header.Set("X-Goog-FieldMask",
		"places.id,places.displayName,places.primaryType,places.rating,places.userRatingCount,places.location")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "places: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "places: read response")
	}

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("places: unexpected status %d: %s", resp.StatusCode, string(respBody))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	var result searchNearbyResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "places: unmarshal response")
	}

	return result.Places, nil
}
