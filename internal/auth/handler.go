package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/conformapro/conformapro/internal/platform/httpx"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	validator   *validator.Validate
	loginPerMin int
}

// NewHandler constructs a Handler instance. loginPerMinute bounds login
// attempts per client IP; zero selects 10.
func NewHandler(logger *slog.Logger, service *Service, loginPerMinute int) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if loginPerMinute <= 0 {
		loginPerMinute = 10
	}
	return &Handler{logger: logger, service: service, validator: validator.New(), loginPerMin: loginPerMinute}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(httprate.Limit(h.loginPerMin, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP))).
		Post("/login", h.handleLogin)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondValidation(w, err)
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondValidation(w, err)
		return
	}
	res, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			h.logger.Info("login rejected", slog.String("email", req.Email))
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "Email ou mot de passe invalide")
			return
		}
		h.logger.Error("login", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}
