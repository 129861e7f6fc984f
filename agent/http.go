package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/bayonhq/coagent/types"
)

// HTTPInvoker calls an agent capability exposed as a JSON-over-HTTP endpoint.
// The request body is the input payload; a 200 response body is decoded as
// the output payload. Response codes and transport failures map onto the
// standard error kinds:
//
//	timeout        -> timeout
//	transport      -> network
//	400            -> validation
//	404            -> agent-unavailable
//	other non-2xx  -> agent-failure
type HTTPInvoker struct {
	name     string
	endpoint string
	client   *http.Client
	logger   *zap.Logger
}

// NewHTTPInvoker creates an invoker for the capability served at endpoint.
// A nil client falls back to a client with a 60s timeout.
func NewHTTPInvoker(name, endpoint string, client *http.Client, logger *zap.Logger) *HTTPInvoker {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPInvoker{
		name:     name,
		endpoint: endpoint,
		client:   client,
		logger:   logger.With(zap.String("component", "http_invoker"), zap.String("agent", name)),
	}
}

// Invoke implements Invoker.
func (h *HTTPInvoker) Invoke(ctx context.Context, input types.Payload) (types.Payload, error) {
	body, err := json.Marshal(input)
	if err != nil {
		return nil, types.Errorf(types.ErrKindValidation, "agent %s: encode input", h.name).WithCause(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, types.Errorf(types.ErrKindValidation, "agent %s: build request", h.name).WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, h.classifyTransport(err)
	}
	defer resp.Body.Close()

	h.logger.Debug("agent responded",
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode != http.StatusOK {
		return nil, h.classifyStatus(resp)
	}

	var output types.Payload
	if err := json.NewDecoder(resp.Body).Decode(&output); err != nil {
		return nil, types.Errorf(types.ErrKindAgentFailure, "agent %s: malformed response", h.name).WithCause(err)
	}
	return output, nil
}

// classifyTransport maps client errors onto timeout/network/cancelled kinds.
func (h *HTTPInvoker) classifyTransport(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return types.Errorf(types.ErrKindCancelled, "agent %s: invocation cancelled", h.name).WithCause(err)
	case errors.Is(err, context.DeadlineExceeded):
		return types.Errorf(types.ErrKindTimeout, "agent %s: invocation timed out", h.name).WithCause(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return types.Errorf(types.ErrKindTimeout, "agent %s: invocation timed out", h.name).WithCause(err)
	}
	return types.Errorf(types.ErrKindNetwork, "agent %s: transport failure", h.name).WithCause(err)
}

// classifyStatus maps non-200 responses onto error kinds, carrying a snippet
// of the response body in the message.
func (h *HTTPInvoker) classifyStatus(resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := fmt.Sprintf("agent %s: status %d: %s", h.name, resp.StatusCode, bytes.TrimSpace(snippet))

	switch {
	case resp.StatusCode == http.StatusBadRequest:
		return types.NewError(types.ErrKindValidation, msg)
	case resp.StatusCode == http.StatusNotFound:
		return types.NewError(types.ErrKindAgentUnavailable, msg)
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusGatewayTimeout:
		return types.NewError(types.ErrKindTimeout, msg)
	default:
		return types.NewError(types.ErrKindAgentFailure, msg)
	}
}
