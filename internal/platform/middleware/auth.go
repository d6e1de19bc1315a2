package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"meldid/pkg/requestcontext"
)

// AdminValidator validates an admin bearer token. The concrete implementation
// lives in internal/admin; the interface keeps this package free of JWT
// details and lets tests stub authentication.
type AdminValidator interface {
	Validate(token string) error
}

// RequireAdmin gates administrative routes behind a bearer token.
func RequireAdmin(validator AdminValidator, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				unauthorized(w)
				return
			}
			if err := validator.Validate(token); err != nil {
				log.WarnContext(r.Context(), "admin token rejected",
					"error", err,
					"request_id", requestcontext.RequestID(r.Context()),
				)
				unauthorized(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
}
