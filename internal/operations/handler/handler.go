package handler

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"amlcore/internal/operations/models"
	id "amlcore/pkg/domain"
	dErrors "amlcore/pkg/domain-errors"
	"amlcore/pkg/platform/audit"
	"amlcore/pkg/platform/httputil"
	"amlcore/pkg/requestcontext"
)

// Service defines the operations the HTTP layer exposes.
type Service interface {
	Create(ctx context.Context, ownerID id.OwnerID, fields models.Fields) (*models.Operation, error)
	Edit(ctx context.Context, ownerID id.OwnerID, opID id.OperationID, fields models.Fields, reason string) (*models.Operation, error)
	SoftDelete(ctx context.Context, ownerID id.OwnerID, opID id.OperationID, reason string) (*models.DeletionConfirmation, error)
	List(ctx context.Context, ownerID id.OwnerID, clientID id.ClientID) ([]*models.Operation, error)
	Get(ctx context.Context, ownerID id.OwnerID, opID id.OperationID) (*models.Operation, error)
	AuditTrail(ctx context.Context, ownerID id.OwnerID, opID id.OperationID) ([]audit.Entry, error)
}

// Handler wires operation endpoints to the operations service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs an operations handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts the operation endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/operations", func(r chi.Router) {
		r.Post("/", h.HandleCreate)
		r.Get("/", h.HandleList)
		r.Get("/{id}", h.HandleGet)
		r.Put("/{id}", h.HandleEdit)
		r.Delete("/{id}", h.HandleDelete)
		r.Get("/{id}/audit", h.HandleAuditTrail)
	})
}

// HandleCreate handles POST /operations.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	ownerID, ok := h.requireOwner(w, ctx)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[OperationRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	op, err := h.service.Create(ctx, ownerID, req.Fields())
	if err != nil {
		h.logFailure(ctx, "operation create failed", requestID, err)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "operation create handled",
		"request_id", requestID,
		"operation_id", op.ID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusCreated, FromOperation(op))
}

// HandleList handles GET /operations?client_id=.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	ownerID, ok := h.requireOwner(w, ctx)
	if !ok {
		return
	}
	clientID, err := id.ParseClientID(r.URL.Query().Get("client_id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	ops, err := h.service.List(ctx, ownerID, clientID)
	if err != nil {
		h.logFailure(ctx, "operation list failed", requestID, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromOperations(ops))
}

// HandleGet handles GET /operations/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	ownerID, ok := h.requireOwner(w, ctx)
	if !ok {
		return
	}
	opID, ok := operationID(w, r)
	if !ok {
		return
	}

	op, err := h.service.Get(ctx, ownerID, opID)
	if err != nil {
		h.logFailure(ctx, "operation lookup failed", requestID, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromOperation(op))
}

// HandleEdit handles PUT /operations/{id}.
func (h *Handler) HandleEdit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	ownerID, ok := h.requireOwner(w, ctx)
	if !ok {
		return
	}
	opID, ok := operationID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[EditRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	op, err := h.service.Edit(ctx, ownerID, opID, req.Fields(), req.Reason)
	if err != nil {
		h.logFailure(ctx, "operation edit failed", requestID, err)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "operation edit handled",
		"request_id", requestID,
		"operation_id", op.ID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, FromOperation(op))
}

// HandleDelete handles DELETE /operations/{id}. The body carries the reason.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	ownerID, ok := h.requireOwner(w, ctx)
	if !ok {
		return
	}
	opID, ok := operationID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[DeleteRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	confirmation, err := h.service.SoftDelete(ctx, ownerID, opID, req.Reason)
	if err != nil {
		h.logFailure(ctx, "operation delete failed", requestID, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromConfirmation(confirmation))
}

// HandleAuditTrail handles GET /operations/{id}/audit.
func (h *Handler) HandleAuditTrail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	ownerID, ok := h.requireOwner(w, ctx)
	if !ok {
		return
	}
	opID, ok := operationID(w, r)
	if !ok {
		return
	}

	entries, err := h.service.AuditTrail(ctx, ownerID, opID)
	if err != nil {
		h.logFailure(ctx, "audit trail lookup failed", requestID, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromAuditTrail(opID, entries))
}

func (h *Handler) requireOwner(w http.ResponseWriter, ctx context.Context) (id.OwnerID, bool) {
	ownerID := requestcontext.OwnerID(ctx)
	if ownerID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return id.OwnerID{}, false
	}
	return ownerID, true
}

func operationID(w http.ResponseWriter, r *http.Request) (id.OperationID, bool) {
	opID, err := id.ParseOperationID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.OperationID{}, false
	}
	return opID, true
}

// logFailure logs client errors at INFO and everything else at ERROR.
func (h *Handler) logFailure(ctx context.Context, msg, requestID string, err error) {
	level := slog.LevelError
	if httputil.StatusFor(dErrors.CodeOf(err)) < http.StatusInternalServerError {
		level = slog.LevelInfo
	}
	h.logger.Log(ctx, level, msg,
		"request_id", requestID,
		"error", err,
	)
}
