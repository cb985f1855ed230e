// Package meural is a client for the Meural frame vendor REST API.
package meural

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "https://api.meural.com/v0"

	// tokenTTL is the fallback lifetime when the vendor token carries no
	// readable expiry.
	tokenTTL = time.Hour

	maxRetryElapsed = 20 * time.Second
)

type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Log        *zap.Logger

	username string
	password string

	mu       sync.Mutex
	token    string
	tokenExp time.Time
}

func New(username, password string, log *zap.Logger) *Client {
	return &Client{
		BaseURL:    DefaultBaseURL,
		HTTPClient: http.DefaultClient,
		Log:        log,
		username:   username,
		password:   password,
	}
}

// APIError is a non-2xx vendor response.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("meural api: status %d: %s", e.Status, e.Body)
}

// authToken returns the cached token, fetching a fresh one from the identity
// provider when missing or expired.
func (c *Client) authToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExp) {
		return c.token, nil
	}

	if c.username == "" || c.password == "" {
		return "", fmt.Errorf("meural credentials not configured")
	}

	form := url.Values{}
	form.Set("username", c.username)
	form.Set("password", c.password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.BaseURL+"/authenticate", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("authenticate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &APIError{Status: resp.StatusCode, Body: string(body)}
	}

	var tr struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("authenticate: decode: %w", err)
	}
	if tr.Token == "" {
		return "", fmt.Errorf("authenticate: empty token")
	}

	c.token = tr.Token
	c.tokenExp = tokenExpiry(tr.Token)
	c.Log.Info("fetched vendor auth token", zap.Time("expires", c.tokenExp))
	return c.token, nil
}

// tokenExpiry reads the exp claim when the token happens to be a JWT, and
// otherwise assumes the fixed TTL.
func tokenExpiry(token string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}
	return time.Now().Add(tokenTTL)
}

// invalidateToken drops the cached token so the next call re-authenticates.
func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

// do performs an authenticated request and decodes the vendor's {"data": ...}
// envelope into out. 429 responses are retried with exponential backoff; a
// 401 invalidates the cached token once and retries.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte, contentType string, out any) error {
	retriedAuth := false

	op := func() error {
		token, err := c.authToken(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}

		u := c.BaseURL + path
		if len(query) > 0 {
			u += "?" + query.Encode()
		}

		var rdr io.Reader
		if body != nil {
			rdr = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, u, rdr)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Token "+token)
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("%s %s: %w", method, path, err))
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("%s %s: read body: %w", method, path, err))
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			c.Log.Warn("vendor rate limited, backing off", zap.String("path", path))
			return &APIError{Status: resp.StatusCode, Body: string(respBody)}
		case resp.StatusCode == http.StatusUnauthorized && !retriedAuth:
			retriedAuth = true
			c.invalidateToken()
			return &APIError{Status: resp.StatusCode, Body: string(respBody)}
		case resp.StatusCode < 200 || resp.StatusCode > 299:
			return backoff.Permanent(&APIError{Status: resp.StatusCode, Body: string(respBody)})
		}

		if out == nil {
			return nil
		}
		if err := decodeEnvelope(respBody, out); err != nil {
			return backoff.Permanent(fmt.Errorf("%s %s: decode: %w", method, path, err))
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = maxRetryElapsed
	return backoff.Retry(op, backoff.WithContext(bo, ctx))
}

func decodeEnvelope(body []byte, out any) error {
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err == nil && env.Data != nil {
		return json.Unmarshal(env.Data, out)
	}
	return json.Unmarshal(body, out)
}
