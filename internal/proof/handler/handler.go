// Package handler exposes proof sessions to the host UI over JSON.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"attest/internal/proof/domain/session"
	"attest/internal/proof/service"
	dErrors "attest/pkg/domain-errors"
	"attest/pkg/platform/httputil"
	"attest/pkg/requestcontext"
)

// Service is the proof session surface used by the handler.
type Service interface {
	Start(ctx context.Context, req service.StartRequest) (*session.Session, error)
	Get(ctx context.Context, id string) (*session.Session, error)
	Select(ctx context.Context, id string, group int, credentialID string) (*session.Session, error)
	Continue(ctx context.Context, id string) (*session.Session, error)
	Back(ctx context.Context, id string) (*session.Session, error)
	Approve(ctx context.Context, id string) (*session.Session, error)
	Reject(ctx context.Context, id, reason string) (*session.Session, error)
	Dispose(ctx context.Context, id string) error
}

// Handler serves /v1/proof-sessions.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the proof session routes. Callers put the wallet
// authentication middleware in front of r.
func (h *Handler) Register(r chi.Router) {
	r.Route("/v1/proof-sessions", func(r chi.Router) {
		r.Post("/", h.handleStart)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.handleGet)
			r.Delete("/", h.handleDispose)
			r.Put("/groups/{group}/selection", h.handleSelect)
			r.Post("/continue", h.handleContinue)
			r.Post("/back", h.handleBack)
			r.Post("/approve", h.handleApprove)
			r.Post("/reject", h.handleReject)
		})
	})
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[StartSessionRequest](ctx, w, r, h.logger)
	if !ok {
		return
	}
	sess, err := h.service.Start(ctx, req.toService())
	if err != nil {
		h.fail(ctx, w, "failed to start proof session", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, FromSession(sess))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, "failed to load proof session", h.service.Get)
}

func (h *Handler) handleContinue(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, "failed to continue proof session", h.service.Continue)
}

func (h *Handler) handleBack(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, "failed to go back in proof session", h.service.Back)
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, "failed to approve proof session", h.service.Approve)
}

func (h *Handler) handleSelect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	group, err := strconv.Atoi(chi.URLParam(r, "group"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "group must be a number"))
		return
	}
	req, ok := httputil.DecodeAndPrepare[SelectRequest](ctx, w, r, h.logger)
	if !ok {
		return
	}
	sess, err := h.service.Select(ctx, chi.URLParam(r, "id"), group, req.ID)
	if err != nil {
		h.fail(ctx, w, "failed to select credential", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromSession(sess))
}

// handleReject accepts an empty body.
func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req := &RejectRequest{}
	if r.ContentLength != 0 {
		var ok bool
		if req, ok = httputil.DecodeAndPrepare[RejectRequest](ctx, w, r, h.logger); !ok {
			return
		}
	}
	sess, err := h.service.Reject(ctx, chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		h.fail(ctx, w, "failed to reject proof session", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromSession(sess))
}

func (h *Handler) handleDispose(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.service.Dispose(ctx, chi.URLParam(r, "id")); err != nil {
		h.fail(ctx, w, "failed to dispose proof session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, msg string, action func(context.Context, string) (*session.Session, error)) {
	ctx := r.Context()
	sess, err := action(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(ctx, w, msg, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromSession(sess))
}

// fail logs at error level only for failures the caller could not cause.
func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	attrs := []any{
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	}
	if httputil.StatusFor(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, msg, attrs...)
	} else {
		h.logger.WarnContext(ctx, msg, attrs...)
	}
	httputil.WriteError(w, err)
}
