package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// HTTPRunner forwards authorized tool calls to the executor service. Tool
// implementations live there; the gateway only decides whether the call may
// happen.
type HTTPRunner struct {
	baseURL string
	client  *http.Client
}

// NewHTTPRunner creates a runner forwarding to baseURL.
func NewHTTPRunner(baseURL string, timeout time.Duration) *HTTPRunner {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &HTTPRunner{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (r *HTTPRunner) Run(ctx context.Context, toolName string, input map[string]any) (any, error) {
	body, err := json.Marshal(map[string]any{
		"tool":  toolName,
		"input": input,
	})
	if err != nil {
		return nil, fmt.Errorf("Run: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/execute", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("Run: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("Run: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
	if err != nil {
		return nil, fmt.Errorf("Run: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Run: executor returned %d", resp.StatusCode)
	}

	var result any
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("Run: %w", err)
	}
	return result, nil
}

// EchoRunner is the local-development fallback when no executor URL is
// configured: it logs the call and returns the sanitized input.
type EchoRunner struct {
	Logger *zap.Logger
}

func (r *EchoRunner) Run(_ context.Context, toolName string, input map[string]any) (any, error) {
	r.Logger.Info("echo runner invoked", zap.String("tool", toolName))
	return map[string]any{"tool": toolName, "input": input}, nil
}
