package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bayonhq/coagent"
	"github.com/bayonhq/coagent/store"
	"github.com/bayonhq/coagent/types"
	"github.com/bayonhq/coagent/workflow"
)

// stubService implements WorkflowService with canned responses.
type stubService struct {
	submit func(context.Context, coagent.SubmitRequest) (*workflow.Run, error)
	status func(context.Context, string) (*workflow.Run, error)
	cancel func(context.Context, string) error
	list   func(context.Context, string) ([]*workflow.Run, error)
}

func (s *stubService) Submit(ctx context.Context, req coagent.SubmitRequest) (*workflow.Run, error) {
	return s.submit(ctx, req)
}

func (s *stubService) Status(ctx context.Context, runID string) (*workflow.Run, error) {
	return s.status(ctx, runID)
}

func (s *stubService) Cancel(ctx context.Context, runID string) error {
	return s.cancel(ctx, runID)
}

func (s *stubService) ListByOwner(ctx context.Context, ownerID string) ([]*workflow.Run, error) {
	return s.list(ctx, ownerID)
}

func newTestMux(svc *stubService) *http.ServeMux {
	h := NewWorkflowHandler(svc, zap.NewNop())
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/workflows", h.HandleSubmit)
	mux.HandleFunc("GET /api/v1/workflows", h.HandleList)
	mux.HandleFunc("GET /api/v1/workflows/{id}", h.HandleStatus)
	mux.HandleFunc("POST /api/v1/workflows/{id}/cancel", h.HandleCancel)
	return mux
}

func doRequest(t *testing.T, mux *http.ServeMux, method, path, body string) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec, resp
}

func TestHandleSubmit(t *testing.T) {
	svc := &stubService{
		submit: func(ctx context.Context, req coagent.SubmitRequest) (*workflow.Run, error) {
			if req.Type == "no-such-workflow" {
				return nil, types.NewError(types.ErrKindDefinition, "unknown workflow type")
			}
			return &workflow.Run{ID: "run-1", Type: req.Type, OwnerID: req.OwnerID, Status: workflow.RunPending}, nil
		},
	}
	mux := newTestMux(svc)

	t.Run("accepted", func(t *testing.T) {
		rec, resp := doRequest(t, mux, http.MethodPost, "/api/v1/workflows",
			`{"type":"brand-building","owner_id":"owner-a","name":"Push","params":{"market":"austin"}}`)

		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.True(t, resp.Success)

		data := resp.Data.(map[string]any)
		assert.Equal(t, "run-1", data["id"])
		assert.Equal(t, string(workflow.RunPending), data["status"])
	})

	t.Run("missing type", func(t *testing.T) {
		rec, resp := doRequest(t, mux, http.MethodPost, "/api/v1/workflows", `{"owner_id":"owner-a"}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		require.NotNil(t, resp.Error)
		assert.Equal(t, string(types.ErrKindValidation), resp.Error.Kind)
	})

	t.Run("unknown workflow type", func(t *testing.T) {
		rec, resp := doRequest(t, mux, http.MethodPost, "/api/v1/workflows",
			`{"type":"no-such-workflow","owner_id":"owner-a"}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		require.NotNil(t, resp.Error)
		assert.Equal(t, string(types.ErrKindDefinition), resp.Error.Kind)
	})

	t.Run("malformed body", func(t *testing.T) {
		rec, resp := doRequest(t, mux, http.MethodPost, "/api/v1/workflows", `{"type":`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		require.NotNil(t, resp.Error)
		assert.Equal(t, string(types.ErrKindValidation), resp.Error.Kind)
	})
}

func TestHandleStatus(t *testing.T) {
	svc := &stubService{
		status: func(ctx context.Context, runID string) (*workflow.Run, error) {
			if runID != "run-1" {
				return nil, store.ErrNotFound
			}
			return &workflow.Run{ID: "run-1", Status: workflow.RunCompleted}, nil
		},
	}
	mux := newTestMux(svc)

	t.Run("found", func(t *testing.T) {
		rec, resp := doRequest(t, mux, http.MethodGet, "/api/v1/workflows/run-1", "")

		assert.Equal(t, http.StatusOK, rec.Code)
		data := resp.Data.(map[string]any)
		assert.Equal(t, string(workflow.RunCompleted), data["status"])
	})

	t.Run("not found", func(t *testing.T) {
		rec, resp := doRequest(t, mux, http.MethodGet, "/api/v1/workflows/run-9", "")

		assert.Equal(t, http.StatusNotFound, rec.Code)
		require.NotNil(t, resp.Error)
	})
}

func TestHandleCancel(t *testing.T) {
	svc := &stubService{
		cancel: func(ctx context.Context, runID string) error {
			if runID != "run-1" {
				return store.ErrNotFound
			}
			return nil
		},
	}
	mux := newTestMux(svc)

	t.Run("active run", func(t *testing.T) {
		rec, resp := doRequest(t, mux, http.MethodPost, "/api/v1/workflows/run-1/cancel", "")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, resp.Success)
	})

	t.Run("unknown run", func(t *testing.T) {
		rec, _ := doRequest(t, mux, http.MethodPost, "/api/v1/workflows/run-9/cancel", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHandleList(t *testing.T) {
	svc := &stubService{
		list: func(ctx context.Context, ownerID string) ([]*workflow.Run, error) {
			return []*workflow.Run{
				{ID: "run-1", OwnerID: ownerID},
				{ID: "run-2", OwnerID: ownerID},
			}, nil
		},
	}
	mux := newTestMux(svc)

	t.Run("by owner", func(t *testing.T) {
		rec, resp := doRequest(t, mux, http.MethodGet, "/api/v1/workflows?owner_id=owner-a", "")

		assert.Equal(t, http.StatusOK, rec.Code)
		data := resp.Data.(map[string]any)
		assert.Equal(t, float64(2), data["total"])
	})

	t.Run("missing owner", func(t *testing.T) {
		rec, resp := doRequest(t, mux, http.MethodGet, "/api/v1/workflows", "")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		require.NotNil(t, resp.Error)
		assert.Equal(t, string(types.ErrKindValidation), resp.Error.Kind)
	})
}

func TestHealthEndpoints(t *testing.T) {
	h := NewHealthHandler("1.2.3")
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.HandleHealth)
	mux.HandleFunc("GET /version", h.HandleVersion)

	rec, resp := doRequest(t, mux, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)

	rec, resp = doRequest(t, mux, http.MethodGet, "/version", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	data := resp.Data.(map[string]any)
	assert.Equal(t, "1.2.3", data["version"])
}
