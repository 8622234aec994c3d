// Package handler exposes notification preference endpoints.
package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"immigo/internal/impact"
	"immigo/internal/notify"
	id "immigo/pkg/domain"
	dErrors "immigo/pkg/domainerrors"
	"immigo/pkg/platform/httputil"
	"immigo/pkg/requestcontext"
)

// Handler wires preference endpoints to the preference store.
type Handler struct {
	store  notify.PreferenceStore
	logger *slog.Logger
}

// New constructs a preference handler with its dependencies.
func New(store notify.PreferenceStore, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// Register mounts preference endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/users/{userID}/preferences", h.HandleGet)
	r.Put("/users/{userID}/preferences", h.HandlePut)
}

// PreferenceRequest is the wire form of a saved preference.
type PreferenceRequest struct {
	MinSeverity string   `json:"min_severity"`
	Categories  []string `json:"categories"`
}

// HandleGet handles GET /users/{userID}/preferences. Users can only read
// their own preferences; a never-saved preference reads as the default.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := h.requireSelf(w, r)
	if !ok {
		return
	}

	pref, err := h.store.Get(ctx, userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, pref)
}

// HandlePut handles PUT /users/{userID}/preferences.
func (h *Handler) HandlePut(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := h.requireSelf(w, r)
	if !ok {
		return
	}

	var req PreferenceRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	severity := impact.Severity(req.MinSeverity)
	if !severity.IsValid() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "unknown min_severity"))
		return
	}
	categories := make([]id.Category, 0, len(req.Categories))
	for _, raw := range req.Categories {
		category, err := id.ParseCategory(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid category"))
			return
		}
		categories = append(categories, category)
	}

	pref := notify.Preference{
		UserID:      userID,
		MinSeverity: severity,
		Categories:  categories,
		UpdatedAt:   requestcontext.Now(ctx),
	}
	if err := h.store.Put(ctx, pref); err != nil {
		h.logger.ErrorContext(ctx, "preference save failed",
			"request_id", requestcontext.RequestID(ctx),
			"user_id", userID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "notification preference saved",
		"request_id", requestcontext.RequestID(ctx),
		"user_id", userID,
		"min_severity", severity,
		"categories", len(categories),
	)
	httputil.WriteJSON(w, http.StatusOK, pref)
}

// requireSelf enforces that the path user matches the authenticated user.
func (h *Handler) requireSelf(w http.ResponseWriter, r *http.Request) (id.UserID, bool) {
	authed := requestcontext.UserID(r.Context())
	if authed.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return "", false
	}
	if id.UserID(chi.URLParam(r, "userID")) != authed {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "user not found"))
		return "", false
	}
	return authed, true
}
