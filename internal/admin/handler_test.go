package admin_test

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meldid/internal/admin"
	"meldid/pkg/secrets"
)

func newRouter(t *testing.T, apiKeyHash string) (chi.Router, *admin.JWTService) {
	t.Helper()
	jwtService := admin.NewJWTService("test-signing-key", "meld-registry")
	router := chi.NewRouter()
	admin.NewHandler(jwtService, apiKeyHash, slog.New(slog.DiscardHandler)).Register(router)
	return router, jwtService
}

func TestTokenExchange(t *testing.T) {
	hash, err := secrets.Hash("correct-api-key")
	require.NoError(t, err)
	router, jwtService := newRouter(t, hash)

	req := httptest.NewRequest(http.MethodPost, "/admin/token", strings.NewReader(`{"apiKey":"correct-api-key"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NoError(t, jwtService.Validate(resp.Token))
}

func TestTokenExchangeRejectsBadKey(t *testing.T) {
	hash, err := secrets.Hash("correct-api-key")
	require.NoError(t, err)
	router, _ := newRouter(t, hash)

	req := httptest.NewRequest(http.MethodPost, "/admin/token", strings.NewReader(`{"apiKey":"wrong"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"unauthorized"}`, rec.Body.String())
}

func TestTokenExchangeRejectsWhenNoKeyConfigured(t *testing.T) {
	// An unset hash disables the endpoint entirely rather than accepting
	// anything.
	router, _ := newRouter(t, "")

	req := httptest.NewRequest(http.MethodPost, "/admin/token", strings.NewReader(`{"apiKey":"anything"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTokenExchangeRequiresAPIKey(t *testing.T) {
	router, _ := newRouter(t, "irrelevant")

	for _, body := range []string{`{}`, `{"apiKey":""}`, `not json`} {
		req := httptest.NewRequest(http.MethodPost, "/admin/token", strings.NewReader(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %s", body)
	}
}
