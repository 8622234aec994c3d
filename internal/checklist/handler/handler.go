// Package handler exposes the checklist API. User edits made here race the
// background reconciler; both sides go through the store's optimistic
// versioning, so neither silently clobbers the other.
package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"immigo/internal/checklist"
	id "immigo/pkg/domain"
	dErrors "immigo/pkg/domainerrors"
	"immigo/pkg/platform/httputil"
	"immigo/pkg/platform/sentinel"
	"immigo/pkg/requestcontext"
)

// Handler wires checklist endpoints to the checklist store.
type Handler struct {
	store  checklist.Store
	logger *slog.Logger
}

// New constructs a checklist handler with its dependencies.
func New(store checklist.Store, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// Register mounts checklist endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/checklists", h.HandleCreate)
	r.Get("/checklists", h.HandleList)
	r.Get("/checklists/{checklistID}", h.HandleGet)
	r.Patch("/checklists/{checklistID}/items/{category}/{slug}/completion", h.HandleCompletion)
}

// CreateRequest describes a new checklist. Items are optional; the reconciler
// adds generated items as tracked policies change.
type CreateRequest struct {
	Title       string    `json:"title"`
	Origin      string    `json:"origin_country"`
	Destination string    `json:"destination_country"`
	Items       []NewItem `json:"items,omitempty"`
}

// NewItem is a caller-provided checklist item.
type NewItem struct {
	Category    string `json:"category"`
	TaskSlug    string `json:"task_slug"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// CompletionRequest toggles an item's completion state.
type CompletionRequest struct {
	Completed bool `json:"completed"`
}

// HandleCreate handles POST /checklists.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := requestcontext.UserID(ctx)
	if userID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	var req CreateRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.Title == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "title is required"))
		return
	}
	origin, err := id.ParseCountryID(req.Origin)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid origin country"))
		return
	}
	destination, err := id.ParseCountryID(req.Destination)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid destination country"))
		return
	}

	items := make([]checklist.Item, 0, len(req.Items))
	for _, in := range req.Items {
		category, err := id.ParseCategory(in.Category)
		if err != nil {
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid item category"))
			return
		}
		if in.TaskSlug == "" || in.Title == "" {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "item task_slug and title are required"))
			return
		}
		items = append(items, checklist.Item{
			Category:    category,
			TaskSlug:    in.TaskSlug,
			Title:       in.Title,
			Description: in.Description,
		})
	}

	cl := checklist.Checklist{
		ID:          id.ChecklistID(uuid.NewString()),
		UserID:      userID,
		Origin:      origin,
		Destination: destination,
		Title:       req.Title,
		Items:       items,
		UpdatedAt:   requestcontext.Now(ctx),
	}
	created, err := h.store.Create(ctx, cl)
	if err != nil {
		h.logger.ErrorContext(ctx, "checklist create failed",
			"request_id", requestcontext.RequestID(ctx),
			"user_id", userID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "checklist created",
		"request_id", requestcontext.RequestID(ctx),
		"user_id", userID,
		"checklist_id", created.ID,
	)
	httputil.WriteJSON(w, http.StatusCreated, created)
}

// HandleList handles GET /checklists, scoped to the authenticated user.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := requestcontext.UserID(ctx)
	if userID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	lists, err := h.store.ListByUser(ctx, userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"checklists": lists})
}

// HandleGet handles GET /checklists/{checklistID}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	cl, ok := h.ownedChecklist(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, cl)
}

// HandleCompletion handles PATCH /checklists/{checklistID}/items/{category}/{slug}/completion.
// A concurrent reconciler write surfaces as a conflict; callers re-read and retry.
func (h *Handler) HandleCompletion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	cl, ok := h.ownedChecklist(w, r)
	if !ok {
		return
	}
	category, err := id.ParseCategory(chi.URLParam(r, "category"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid item category"))
		return
	}
	slug := chi.URLParam(r, "slug")

	var req CompletionRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	if cl.Item(category, slug) == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "no such checklist item"))
		return
	}

	now := requestcontext.Now(ctx)
	if req.Completed {
		cl.Complete(category, slug, now)
	} else {
		cl.Uncomplete(category, slug)
	}
	cl.UpdatedAt = now

	saved, err := h.store.Save(ctx, cl, cl.Version)
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeConflict, "checklist changed concurrently, retry"))
			return
		}
		h.logger.ErrorContext(ctx, "checklist completion save failed",
			"request_id", requestcontext.RequestID(ctx),
			"checklist_id", cl.ID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, saved)
}

// ownedChecklist loads the checklist from the URL and enforces ownership.
// Unknown and foreign checklists are indistinguishable to the caller.
func (h *Handler) ownedChecklist(w http.ResponseWriter, r *http.Request) (checklist.Checklist, bool) {
	ctx := r.Context()
	userID := requestcontext.UserID(ctx)
	if userID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return checklist.Checklist{}, false
	}

	clID := id.ChecklistID(chi.URLParam(r, "checklistID"))
	cl, err := h.store.Get(ctx, clID)
	if err != nil {
		httputil.WriteError(w, err)
		return checklist.Checklist{}, false
	}
	if cl.UserID != userID {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "checklist not found"))
		return checklist.Checklist{}, false
	}
	return cl, true
}
