package middleware

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meldid/pkg/requestcontext"
)

func serve(mw func(http.Handler) http.Handler, req *http.Request, inner http.HandlerFunc) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	mw(inner).ServeHTTP(rec, req)
	return rec
}

func TestRequestIDHonorsInbound(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "upstream-id")

	var seen string
	rec := serve(RequestID, req, func(_ http.ResponseWriter, r *http.Request) {
		seen = requestcontext.RequestID(r.Context())
	})

	assert.Equal(t, "upstream-id", seen)
	assert.Equal(t, "upstream-id", rec.Header().Get("X-Request-ID"))
}

func TestRequestIDGeneratesWhenAbsent(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	var seen string
	rec := serve(RequestID, req, func(_ http.ResponseWriter, r *http.Request) {
		seen = requestcontext.RequestID(r.Context())
	})

	require.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))
}

func TestRequestTimePinsOneClock(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	serve(RequestTime, req, func(_ http.ResponseWriter, r *http.Request) {
		first := requestcontext.Now(r.Context())
		second := requestcontext.Now(r.Context())
		assert.Equal(t, first, second)
	})
}

func TestClientMetadata(t *testing.T) {
	cases := []struct {
		name  string
		setup func(*http.Request)
		want  string
	}{
		{
			name:  "x-forwarded-for single",
			setup: func(r *http.Request) { r.Header.Set("X-Forwarded-For", "203.0.113.7") },
			want:  "203.0.113.7",
		},
		{
			name:  "x-forwarded-for chain keeps first hop",
			setup: func(r *http.Request) { r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1") },
			want:  "203.0.113.7",
		},
		{
			name:  "x-real-ip fallback",
			setup: func(r *http.Request) { r.Header.Set("X-Real-IP", "203.0.113.8") },
			want:  "203.0.113.8",
		},
		{
			name:  "remote addr strips port",
			setup: func(r *http.Request) { r.RemoteAddr = "192.0.2.1:8443" },
			want:  "192.0.2.1",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("User-Agent", "MeldReader/1.0")
			tc.setup(req)

			serve(ClientMetadata, req, func(_ http.ResponseWriter, r *http.Request) {
				assert.Equal(t, tc.want, requestcontext.ClientIP(r.Context()))
				assert.Equal(t, "MeldReader/1.0", requestcontext.UserAgent(r.Context()))
			})
		})
	}
}

func TestRecoveryTurnsPanicInto500(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := serve(Recovery(slog.New(slog.DiscardHandler)), req, func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal"}`, rec.Body.String())
}
