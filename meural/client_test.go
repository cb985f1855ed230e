package meural

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeVendor struct {
	t         *testing.T
	authCalls int32
	mux       *http.ServeMux
}

func newFakeVendor(t *testing.T) (*fakeVendor, *httptest.Server) {
	fv := &fakeVendor{t: t, mux: http.NewServeMux()}
	fv.mux.HandleFunc("POST /authenticate", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&fv.authCalls, 1)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "dave", r.FormValue("username"))
		assert.Equal(t, "p@ss word!", r.FormValue("password"))
		json.NewEncoder(w).Encode(map[string]string{"token": "opaque-token"})
	})
	srv := httptest.NewServer(fv.mux)
	t.Cleanup(srv.Close)
	return fv, srv
}

func testVendorClient(srv *httptest.Server) *Client {
	c := New("dave", "p@ss word!", zap.NewNop())
	c.BaseURL = srv.URL
	return c
}

func TestAuthTokenCached(t *testing.T) {
	fv, srv := newFakeVendor(t)
	fv.mux.HandleFunc("GET /user", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Token opaque-token", r.Header.Get("Authorization"))
		w.Write([]byte(`{"data": {"id": 7, "name": "Dave"}}`))
	})

	c := testVendorClient(srv)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		raw, err := c.GetUser(ctx)
		require.NoError(t, err)
		assert.JSONEq(t, `{"id": 7, "name": "Dave"}`, string(raw))
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&fv.authCalls))
}

func TestTokenExpiryFallsBackToFixedTTL(t *testing.T) {
	exp := tokenExpiry("opaque-token")
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)
}

func TestExpiredTokenRefetched(t *testing.T) {
	fv, srv := newFakeVendor(t)
	fv.mux.HandleFunc("GET /user", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": {}}`))
	})

	c := testVendorClient(srv)
	ctx := context.Background()

	_, err := c.GetUser(ctx)
	require.NoError(t, err)

	c.mu.Lock()
	c.tokenExp = time.Now().Add(-time.Minute)
	c.mu.Unlock()

	_, err = c.GetUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&fv.authCalls))
}

func TestRateLimitRetried(t *testing.T) {
	fv, srv := newFakeVendor(t)
	var calls int32
	fv.mux.HandleFunc("GET /user/items", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"data": [{"id": 1}]}`))
	})

	c := testVendorClient(srv)
	raw, err := c.ListItems(context.Background(), 1, 20)

	require.NoError(t, err)
	assert.JSONEq(t, `[{"id": 1}]`, string(raw))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestUnauthorizedReauthenticatesOnce(t *testing.T) {
	fv, srv := newFakeVendor(t)
	var calls int32
	fv.mux.HandleFunc("GET /user", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"data": {}}`))
	})

	c := testVendorClient(srv)
	_, err := c.GetUser(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&fv.authCalls))
}

func TestServerErrorIsPermanent(t *testing.T) {
	fv, srv := newFakeVendor(t)
	var calls int32
	fv.mux.HandleFunc("GET /user", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	})

	c := testVendorClient(srv)
	_, err := c.GetUser(context.Background())

	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestUploadItemMultipart(t *testing.T) {
	fv, srv := newFakeVendor(t)
	fv.mux.HandleFunc("POST /items", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(32<<20))
		file, header, err := r.FormFile("image")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "sunset.jpg", header.Filename)
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"id": 42, "name": "sunset"}})
	})

	c := testVendorClient(srv)
	item, err := c.UploadItem(context.Background(), "sunset.jpg", []byte{0xff, 0xd8, 0xff})

	require.NoError(t, err)
	assert.Equal(t, 42, item.ID)
	assert.Equal(t, "sunset", item.Name)
}

func TestUploadItemWithoutIDFails(t *testing.T) {
	fv, srv := newFakeVendor(t)
	fv.mux.HandleFunc("POST /items", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": {}}`))
	})

	c := testVendorClient(srv)
	_, err := c.UploadItem(context.Background(), "x.jpg", []byte{1})
	assert.Error(t, err)
}

func TestUpdateItem(t *testing.T) {
	fv, srv := newFakeVendor(t)
	fv.mux.HandleFunc("PUT /items/42", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "sunset.jpg", body["name"])
		assert.Equal(t, "Paris · Summer", body["description"])
		w.Write([]byte(`{"data": {"id": 42, "name": "sunset.jpg", "description": "Paris · Summer"}}`))
	})

	c := testVendorClient(srv)
	item, err := c.UpdateItem(context.Background(), 42, "sunset.jpg", "Paris · Summer")

	require.NoError(t, err)
	assert.Equal(t, "Paris · Summer", item.Description)
}

func TestDecodeEnvelopeWithoutWrapper(t *testing.T) {
	var out struct {
		ID int `json:"id"`
	}
	require.NoError(t, decodeEnvelope([]byte(`{"id": 3}`), &out))
	assert.Equal(t, 3, out.ID)

	require.NoError(t, decodeEnvelope([]byte(`{"data": {"id": 4}}`), &out))
	assert.Equal(t, 4, out.ID)
}
