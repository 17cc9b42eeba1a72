package preferences

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/conformapro/conformapro/internal/platform/httpx"
	"github.com/conformapro/conformapro/internal/shared"
)

// Handler exposes the caller's preferences.
type Handler struct {
	logger    *slog.Logger
	store     *Store
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, store *Store) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, store: store, validator: validator.New()}
}

// MountRoutes registers preference routes; callers must be authenticated.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/me/preferences", func(r chi.Router) {
		r.Get("/", h.get)
		r.Patch("/", h.patch)
		r.Get("/search-history", h.history)
		r.Post("/search-history", h.addSearch)
		r.Delete("/search-history", h.clearSearch)
	})
}

func (h *Handler) userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := shared.ActorID(r.Context())
	if id == "" {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return "", false
	}
	return id, true
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	prefs, err := h.store.Get(r.Context(), userID)
	if err != nil {
		h.fail(w, "get preferences", err)
		return
	}
	httpx.JSON(w, http.StatusOK, prefs)
}

func (h *Handler) patch(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var p Patch
	if err := httpx.DecodeJSON(r, &p); err != nil {
		httpx.RespondValidation(w, err)
		return
	}
	if err := h.validator.Struct(p); err != nil {
		httpx.RespondValidation(w, err)
		return
	}
	prefs, err := h.store.Update(r.Context(), userID, p)
	if err != nil {
		h.fail(w, "update preferences", err)
		return
	}
	httpx.JSON(w, http.StatusOK, prefs)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	terms, err := h.store.SearchHistory(r.Context(), userID)
	if err != nil {
		h.fail(w, "search history", err)
		return
	}
	httpx.JSON(w, http.StatusOK, terms)
}

type searchRequest struct {
	Term string `json:"term" validate:"required,max=200"`
}

func (h *Handler) addSearch(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req searchRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondValidation(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondValidation(w, err)
		return
	}
	terms, err := h.store.AddSearch(r.Context(), userID, req.Term)
	if err != nil {
		h.fail(w, "add search", err)
		return
	}
	httpx.JSON(w, http.StatusOK, terms)
}

func (h *Handler) clearSearch(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	if err := h.store.ClearSearch(r.Context(), userID); err != nil {
		h.fail(w, "clear search", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Error(op, slog.Any("error", err))
	httpx.RespondError(w, err)
}
