// Package geocode resolves GPS coordinates to place names through a
// Nominatim-style reverse lookup service.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

const DefaultBaseURL = "https://nominatim.openstreetmap.org"

// Place is a best-effort descriptor of a coordinate pair.
type Place struct {
	DisplayName string `json:"displayName"`
	City        string `json:"city"`
	State       string `json:"state"`
	Country     string `json:"country"`
	CountryCode string `json:"countryCode"`
}

type Client struct {
	BaseURL    string
	UserAgent  string
	HTTPClient *http.Client
	Log        *zap.Logger
}

func New(userAgent string, log *zap.Logger) *Client {
	return &Client{
		BaseURL:    DefaultBaseURL,
		UserAgent:  userAgent,
		HTTPClient: http.DefaultClient,
		Log:        log,
	}
}

type reverseResponse struct {
	DisplayName string `json:"display_name"`
	Address     struct {
		City        string `json:"city"`
		Town        string `json:"town"`
		Village     string `json:"village"`
		State       string `json:"state"`
		Country     string `json:"country"`
		CountryCode string `json:"country_code"`
	} `json:"address"`
}

// Reverse looks up a human-readable place for the coordinates. Any failure
// returns nil: location enrichment is optional and never surfaces an error
// to the caller.
func (c *Client) Reverse(ctx context.Context, lat, lon float64) *Place {
	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("lat", fmt.Sprintf("%f", lat))
	q.Set("lon", fmt.Sprintf("%f", lon))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/reverse?"+q.Encode(), nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", c.UserAgent)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		c.Log.Warn("reverse geocode failed", zap.Float64("lat", lat), zap.Float64("lon", lon), zap.Error(err))
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.Log.Warn("reverse geocode unexpected status", zap.Int("status", resp.StatusCode))
		return nil
	}

	var rr reverseResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		c.Log.Warn("reverse geocode bad response", zap.Error(err))
		return nil
	}

	return placeFromResponse(rr)
}

func placeFromResponse(rr reverseResponse) *Place {
	p := &Place{
		City:        firstNonEmpty(rr.Address.City, rr.Address.Town, rr.Address.Village),
		State:       rr.Address.State,
		Country:     rr.Address.Country,
		CountryCode: rr.Address.CountryCode,
	}

	// Prefer a synthesized "City, State, Country" over the service's own
	// display name, which tends to include house numbers and postcodes.
	var parts []string
	for _, s := range []string{p.City, p.State, p.Country} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) > 0 {
		p.DisplayName = strings.Join(parts, ", ")
	} else {
		p.DisplayName = rr.DisplayName
	}

	if p.DisplayName == "" {
		return nil
	}
	return p
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
