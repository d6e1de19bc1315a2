// Package handler is the thin HTTP layer over the registry service. It
// validates shapes and delegates; registry rules live in the service.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/asaskevich/govalidator"
	"github.com/go-chi/chi/v5"
	"github.com/mssola/useragent"

	"meldid/internal/identity"
	"meldid/internal/registry"
	"meldid/pkg/domainerrors"
	"meldid/pkg/requestcontext"
)

// Service is what the handler needs from the registry.
type Service interface {
	Register(ctx context.Context, input registry.RegisterInput, platform string) (registry.RegisterResult, error)
	Lookup(ctx context.Context, chipID string) (registry.Entry, error)
	BatchLookup(ctx context.Context, chipIDs []string, lastSync int64) (registry.BatchResult, error)
	List(ctx context.Context) ([]registry.ListEntry, error)
}

type Handler struct {
	service Service
	log     *slog.Logger
}

func New(service Service, log *slog.Logger) *Handler {
	return &Handler{service: service, log: log}
}

// Register mounts the registry routes. adminOnly wraps the administrative
// enumeration endpoint.
func (h *Handler) Register(r chi.Router, adminOnly func(http.Handler) http.Handler) {
	r.Post("/registry/register", h.handleRegister)
	r.Get("/registry/lookup/{chipID}", h.handleLookup)
	r.Post("/registry/batchLookup", h.handleBatchLookup)
	r.With(adminOnly).Get("/registry/list", h.handleList)
}

type registerRequest struct {
	ChipID    string                  `json:"chipID"`
	PublicKey registry.PublicKeyBytes `json:"publicKey"`
	DeviceID  string                  `json:"deviceID"`
	DID       string                  `json:"did"`
	KeySource string                  `json:"keySource"`
}

type registerResponse struct {
	Success bool   `json:"success"`
	DID     string `json:"did"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(r.Context(), w, domainerrors.Wrap(domainerrors.CodeInvalidInput, "invalid request body", err))
		return
	}
	if err := validateRegisterRequest(req); err != nil {
		h.writeError(r.Context(), w, err)
		return
	}

	res, err := h.service.Register(r.Context(), registry.RegisterInput{
		ChipID:    req.ChipID,
		PublicKey: req.PublicKey,
		DeviceID:  req.DeviceID,
		DID:       req.DID,
		KeySource: identity.KeySource(req.KeySource),
	}, platformFromContext(r.Context()))
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}

	writeJSON(w, http.StatusOK, registerResponse{Success: true, DID: res.DID})
}

func (h *Handler) handleLookup(w http.ResponseWriter, r *http.Request) {
	chipID := chi.URLParam(r, "chipID")
	entry, err := h.service.Lookup(r.Context(), chipID)
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

type batchLookupRequest struct {
	// Pointer distinguishes "absent" from "empty list": the contract demands
	// a 400 when chipIDs is not an array.
	ChipIDs  *[]string `json:"chipIDs"`
	LastSync *int64    `json:"lastSync"`
}

type batchLookupResponse struct {
	Updated       int              `json:"updated"`
	Total         int              `json:"total"`
	SyncTimestamp int64            `json:"syncTimestamp"`
	Entries       []registry.Entry `json:"entries"`
}

func (h *Handler) handleBatchLookup(w http.ResponseWriter, r *http.Request) {
	var req batchLookupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(r.Context(), w, domainerrors.Wrap(domainerrors.CodeInvalidInput, "invalid request body", err))
		return
	}
	if req.ChipIDs == nil {
		h.writeError(r.Context(), w, domainerrors.New(domainerrors.CodeInvalidInput, "chipIDs must be an array"))
		return
	}

	var lastSync int64
	if req.LastSync != nil {
		lastSync = *req.LastSync
	}

	res, err := h.service.BatchLookup(r.Context(), *req.ChipIDs, lastSync)
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}

	writeJSON(w, http.StatusOK, batchLookupResponse{
		Updated:       len(res.Entries),
		Total:         res.Total,
		SyncTimestamp: res.SyncTimestamp,
		Entries:       append([]registry.Entry{}, res.Entries...),
	})
}

type listResponse struct {
	Count   int                  `json:"count"`
	Entries []registry.ListEntry `json:"entries"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.List(r.Context())
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Count: len(entries), Entries: entries})
}

func validateRegisterRequest(req registerRequest) error {
	if !govalidator.StringLength(req.ChipID, "1", "128") {
		return domainerrors.New(domainerrors.CodeInvalidInput, "chipID is required")
	}
	if !govalidator.StringLength(req.DeviceID, "1", "128") {
		return domainerrors.New(domainerrors.CodeInvalidInput, "deviceID is required")
	}
	if len(req.DID) > 256 {
		return domainerrors.New(domainerrors.CodeInvalidInput, "did too long")
	}
	switch identity.KeySource(req.KeySource) {
	case "", identity.SourceProvisioned, identity.SourcePinDerived:
	default:
		return domainerrors.New(domainerrors.CodeInvalidInput, "unknown keySource")
	}
	return nil
}

// platformFromContext condenses the User-Agent into a coarse platform label
// for audit events.
func platformFromContext(ctx context.Context) string {
	ua := requestcontext.UserAgent(ctx)
	if ua == "" {
		return ""
	}
	parsed := useragent.New(ua)
	if os := parsed.OS(); os != "" {
		return os
	}
	return parsed.Platform()
}

// writeError translates domain errors into the JSON envelope. Clients see
// only the code; the precise cause stays in the logs.
func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	code := domainerrors.CodeOf(err)
	var de *domainerrors.Error
	if !errors.As(err, &de) || code == domainerrors.CodeInternal {
		h.log.ErrorContext(ctx, "request failed",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	writeJSON(w, domainerrors.ToHTTPStatus(code), map[string]string{"error": string(code)})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
