package admin

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"meldid/pkg/domainerrors"
	"meldid/pkg/requestcontext"
	"meldid/pkg/secrets"
)

// Handler exchanges a configured API key for an admin JWT.
type Handler struct {
	jwt        *JWTService
	apiKeyHash string
	log        *slog.Logger
}

func NewHandler(jwtService *JWTService, apiKeyHash string, log *slog.Logger) *Handler {
	return &Handler{jwt: jwtService, apiKeyHash: apiKeyHash, log: log}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/admin/token", h.handleToken)
}

type tokenRequest struct {
	APIKey string `json:"apiKey"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

func (h *Handler) handleToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.APIKey == "" {
		writeError(w, domainerrors.New(domainerrors.CodeInvalidInput, "apiKey is required"))
		return
	}
	if h.apiKeyHash == "" || !secrets.Verify(req.APIKey, h.apiKeyHash) {
		h.log.WarnContext(r.Context(), "admin api key rejected",
			"client_ip", requestcontext.ClientIP(r.Context()),
			"request_id", requestcontext.RequestID(r.Context()),
		)
		writeError(w, domainerrors.New(domainerrors.CodeUnauthorized, "invalid api key"))
		return
	}

	token, err := h.jwt.Generate()
	if err != nil {
		writeError(w, domainerrors.Wrap(domainerrors.CodeInternal, "mint admin token", err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(tokenResponse{Token: token})
}

func writeError(w http.ResponseWriter, err error) {
	code := domainerrors.CodeOf(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(domainerrors.ToHTTPStatus(code))
	_ = json.NewEncoder(w).Encode(map[string]string{"error": string(code)})
}
