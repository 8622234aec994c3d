// Package handler exposes manual change detection triggers. A trigger that
// races the scheduler simply loses the per-key lease and reports skipped.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"immigo/internal/policy"
	id "immigo/pkg/domain"
	dErrors "immigo/pkg/domainerrors"
	"immigo/pkg/platform/httputil"
	"immigo/pkg/requestcontext"
)

// Runner is the pipeline surface the trigger endpoints need.
type Runner interface {
	Sweep(ctx context.Context) error
	ProcessKey(ctx context.Context, key policy.Key) error
}

// Handler wires detection trigger endpoints to the orchestrator.
type Handler struct {
	runner Runner
	logger *slog.Logger
}

// New constructs a detection handler with its dependencies.
func New(runner Runner, logger *slog.Logger) *Handler {
	return &Handler{runner: runner, logger: logger}
}

// Register mounts detection endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/detect/run", h.HandleRunAll)
	r.Post("/detect/run/{country}/{type}", h.HandleRunKey)
}

// HandleRunAll handles POST /detect/run. The sweep runs synchronously so the
// caller learns about per-key failures.
func (h *Handler) HandleRunAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.runner.Sweep(ctx); err != nil {
		h.logger.WarnContext(ctx, "manual sweep finished with failures",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "sweep finished with failures"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}

// HandleRunKey handles POST /detect/run/{country}/{type}.
func (h *Handler) HandleRunKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	country, err := id.ParseCountryID(chi.URLParam(r, "country"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid country"))
		return
	}
	policyType, err := id.ParsePolicyType(chi.URLParam(r, "type"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid policy type"))
		return
	}
	key := policy.Key{Country: country, Type: policyType}

	if err := h.runner.ProcessKey(ctx, key); err != nil {
		h.logger.WarnContext(ctx, "manual key run failed",
			"request_id", requestcontext.RequestID(ctx),
			"policy_key", key.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "completed", "policy_key": key.String()})
}
