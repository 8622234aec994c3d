// Package handler exposes the policy snapshot API: ingest from crawlers and
// versioned reads.
package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"immigo/internal/policy"
	"immigo/internal/policy/store"
	id "immigo/pkg/domain"
	dErrors "immigo/pkg/domainerrors"
	"immigo/pkg/platform/httputil"
	"immigo/pkg/requestcontext"
)

// Handler wires policy snapshot endpoints to the snapshot store.
type Handler struct {
	store  store.SnapshotStore
	logger *slog.Logger
}

// New constructs a policy handler with its dependencies.
func New(store store.SnapshotStore, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// Register mounts policy endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/policies/{country}/{type}/snapshots", h.HandleIngest)
	r.Get("/policies/{country}/{type}/snapshots/latest", h.HandleLatest)
	r.Get("/policies/{country}/{type}/snapshots/{version}", h.HandleAt)
}

// IngestRequest carries the full field set observed for a policy key.
type IngestRequest struct {
	Fields map[string]string `json:"fields"`
}

// SnapshotResponse is the wire form of a stored snapshot.
type SnapshotResponse struct {
	Country    string            `json:"country"`
	PolicyType string            `json:"policy_type"`
	Version    int64             `json:"version"`
	CapturedAt time.Time         `json:"captured_at"`
	Fields     map[string]string `json:"fields"`
	Created    bool              `json:"created,omitempty"`
}

func fromSnapshot(snap policy.Snapshot, created bool) SnapshotResponse {
	return SnapshotResponse{
		Country:    snap.Key.Country.String(),
		PolicyType: snap.Key.Type.String(),
		Version:    snap.Version,
		CapturedAt: snap.CapturedAt,
		Fields:     snap.Fields,
		Created:    created,
	}
}

// HandleIngest handles POST /policies/{country}/{type}/snapshots. Identical
// re-submissions return the existing latest version unchanged.
func (h *Handler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	key, err := keyFromRequest(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var req IngestRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if len(req.Fields) == 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "fields must not be empty"))
		return
	}

	snap, created, err := h.store.Append(ctx, key, req.Fields)
	if err != nil {
		h.logger.ErrorContext(ctx, "snapshot ingest failed",
			"request_id", requestcontext.RequestID(ctx),
			"policy_key", key.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "snapshot ingested",
		"request_id", requestcontext.RequestID(ctx),
		"policy_key", key.String(),
		"version", snap.Version,
		"created", created,
	)

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	httputil.WriteJSON(w, status, fromSnapshot(snap, created))
}

// HandleLatest handles GET /policies/{country}/{type}/snapshots/latest.
func (h *Handler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	key, err := keyFromRequest(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	snap, err := h.store.Latest(ctx, key)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromSnapshot(snap, false))
}

// HandleAt handles GET /policies/{country}/{type}/snapshots/{version}.
func (h *Handler) HandleAt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	key, err := keyFromRequest(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	version, err := strconv.ParseInt(chi.URLParam(r, "version"), 10, 64)
	if err != nil || version < 1 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "version must be a positive integer"))
		return
	}

	snap, err := h.store.At(ctx, key, version)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromSnapshot(snap, false))
}

func keyFromRequest(r *http.Request) (policy.Key, error) {
	country, err := id.ParseCountryID(chi.URLParam(r, "country"))
	if err != nil {
		return policy.Key{}, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid country")
	}
	policyType, err := id.ParsePolicyType(chi.URLParam(r, "type"))
	if err != nil {
		return policy.Key{}, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid policy type")
	}
	return policy.Key{Country: country, Type: policyType}, nil
}
