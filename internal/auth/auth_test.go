package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddleware(t *testing.T) {
	ring := NewStatic("X-API-Key", map[string]string{"s3cret": "tenant-a"})

	var seenID string
	h := ring.Middleware(map[string]struct{}{"/health": {}})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seenID, _ = KeyIDFrom(r.Context())
			w.WriteHeader(http.StatusOK)
		}))

	// valid key
	r := httptest.NewRequest(http.MethodGet, "/api", nil)
	r.Header.Set("X-API-Key", "s3cret")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "tenant-a", seenID)

	// missing key
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// unknown key
	r = httptest.NewRequest(http.MethodGet, "/api", nil)
	r.Header.Set("X-API-Key", "wrong")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// skip path passes through without a key
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestNewStatic_DefaultHeader(t *testing.T) {
	ring := NewStatic("", map[string]string{"s": "id"})
	assert.Equal(t, "X-API-Key", ring.Header())
}

func TestKeyring_Lookup(t *testing.T) {
	ring := NewStatic("X-API-Key", map[string]string{"s3cret": "tenant-a"})

	id, ok := ring.Lookup("s3cret")
	require.True(t, ok)
	assert.Equal(t, "tenant-a", id)

	_, ok = ring.Lookup("nope")
	assert.False(t, ok)
}
