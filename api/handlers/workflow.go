package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/bayonhq/coagent"
	"github.com/bayonhq/coagent/types"
	"github.com/bayonhq/coagent/workflow"
)

// WorkflowService is the engine surface the workflow handlers need.
// *coagent.Engine satisfies it.
type WorkflowService interface {
	Submit(ctx context.Context, req coagent.SubmitRequest) (*workflow.Run, error)
	Status(ctx context.Context, runID string) (*workflow.Run, error)
	Cancel(ctx context.Context, runID string) error
	ListByOwner(ctx context.Context, ownerID string) ([]*workflow.Run, error)
}

// WorkflowHandler serves workflow run submission and lifecycle endpoints.
type WorkflowHandler struct {
	engine WorkflowService
	logger *zap.Logger
}

// NewWorkflowHandler creates a workflow handler.
func NewWorkflowHandler(engine WorkflowService, logger *zap.Logger) *WorkflowHandler {
	return &WorkflowHandler{engine: engine, logger: logger}
}

// SubmitWorkflowRequest is the body of POST /api/v1/workflows.
type SubmitWorkflowRequest struct {
	Type    string        `json:"type"`
	OwnerID string        `json:"owner_id"`
	Name    string        `json:"name"`
	Params  types.Payload `json:"params,omitempty"`
}

// HandleSubmit submits a workflow run.
// POST /api/v1/workflows
func (h *WorkflowHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var req SubmitWorkflowRequest
	if err := DecodeJSONBody(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if req.Type == "" {
		WriteError(w, types.NewError(types.ErrKindValidation, "type is required"))
		return
	}
	if req.OwnerID == "" {
		WriteError(w, types.NewError(types.ErrKindValidation, "owner_id is required"))
		return
	}

	run, err := h.engine.Submit(r.Context(), coagent.SubmitRequest{
		Type:    req.Type,
		OwnerID: req.OwnerID,
		Name:    req.Name,
		Params:  req.Params,
	})
	if err != nil {
		h.logger.Warn("workflow submission rejected",
			zap.String("type", req.Type),
			zap.Error(err))
		WriteError(w, err)
		return
	}

	h.logger.Info("workflow submitted",
		zap.String("run_id", run.ID),
		zap.String("type", run.Type),
		zap.String("owner_id", run.OwnerID))
	WriteSuccess(w, http.StatusAccepted, run)
}

// HandleStatus returns the current snapshot of a run.
// GET /api/v1/workflows/{id}
func (h *WorkflowHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	if runID == "" {
		WriteError(w, types.NewError(types.ErrKindValidation, "run id is required"))
		return
	}

	run, err := h.engine.Status(r.Context(), runID)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteSuccess(w, http.StatusOK, run)
}

// HandleCancel requests cancellation of a run.
// POST /api/v1/workflows/{id}/cancel
func (h *WorkflowHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	if runID == "" {
		WriteError(w, types.NewError(types.ErrKindValidation, "run id is required"))
		return
	}

	if err := h.engine.Cancel(r.Context(), runID); err != nil {
		WriteError(w, err)
		return
	}

	h.logger.Info("workflow cancellation requested", zap.String("run_id", runID))
	WriteSuccess(w, http.StatusOK, map[string]string{"run_id": runID, "status": "cancelling"})
}

// HandleList returns all runs submitted by an owner.
// GET /api/v1/workflows?owner_id=...
func (h *WorkflowHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("owner_id")
	if ownerID == "" {
		WriteError(w, types.NewError(types.ErrKindValidation, "owner_id query parameter is required"))
		return
	}

	runs, err := h.engine.ListByOwner(r.Context(), ownerID)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteSuccess(w, http.StatusOK, map[string]any{
		"runs":  runs,
		"total": len(runs),
	})
}
