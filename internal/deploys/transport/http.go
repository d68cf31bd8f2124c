package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ectoplasm/dexclient/internal/casper/keys"
	"github.com/ectoplasm/dexclient/internal/deploys/domain"
	"github.com/ectoplasm/dexclient/internal/storage"
)

// Service defines the deploy history service interface for HTTP transport.
type Service interface {
	Get(ctx context.Context, hash string) (*domain.Deploy, error)
	List(ctx context.Context, filter domain.ListFilter, pagination domain.PaginationParams) (*domain.ListResult, error)
}

// Handler handles HTTP requests for deploy history.
type Handler struct {
	svc Service
}

// NewHandler creates a new deploy history HTTP handler.
func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers read-only history routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Get("/{hash}", h.handleGet)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	account := r.URL.Query().Get("account")
	if account != "" {
		pub, err := keys.ParsePublicKey(account)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "account must be a public key")
			return
		}
		account = pub.Hex()
	}

	result, err := h.svc.List(r.Context(), domain.ListFilter{
		Account:   account,
		Operation: r.URL.Query().Get("operation"),
		Status:    r.URL.Query().Get("status"),
	}, domain.PaginationParams{
		Limit:  limit,
		Cursor: r.URL.Query().Get("cursor"),
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidStatus), errors.Is(err, storage.ErrInvalidCursor):
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list deploys")
		}
		return
	}

	data := result.Deploys
	if data == nil {
		data = []domain.Deploy{}
	}
	writeJSON(w, http.StatusOK, DeployListResponse{
		Data: data,
		Pagination: Pagination{
			Limit:      limit,
			HasMore:    result.HasMore,
			NextCursor: result.NextCursor,
		},
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	hash := strings.ToLower(chi.URLParam(r, "hash"))

	d, err := h.svc.Get(r.Context(), hash)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Deploy not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get deploy")
		return
	}

	writeJSON(w, http.StatusOK, d)
}

// Helper functions

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
}
