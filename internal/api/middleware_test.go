package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func callWithAuth(t *testing.T, setup func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	handler := APIKeyAuth("service-key")(next)

	req := httptest.NewRequest("GET", "/v1/users/credits", nil)
	setup(req)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestAPIKeyAuthAcceptsHeaderKey(t *testing.T) {
	rec := callWithAuth(t, func(r *http.Request) {
		r.Header.Set("X-API-Key", "service-key")
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestAPIKeyAuthAcceptsBearerToken(t *testing.T) {
	rec := callWithAuth(t, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer service-key")
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestAPIKeyAuthRejectsMissingKey(t *testing.T) {
	rec := callWithAuth(t, func(*http.Request) {})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPIKeyAuthRejectsWrongKey(t *testing.T) {
	rec := callWithAuth(t, func(r *http.Request) {
		r.Header.Set("X-API-Key", "guess")
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAPIKeyAuthUserHeaderIsNotAKey(t *testing.T) {
	// X-User-ID identifies the acting user; it must never satisfy auth
	rec := callWithAuth(t, func(r *http.Request) {
		r.Header.Set("X-User-ID", "2f0c8a9e-67a5-4cb1-9f40-d2f3f58f2f55")
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
