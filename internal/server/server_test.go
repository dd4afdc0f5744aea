package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/veritest-ai/toolgate/internal/audit"
	"github.com/veritest-ai/toolgate/internal/confirm"
	"github.com/veritest-ai/toolgate/internal/gateway"
	"github.com/veritest-ai/toolgate/internal/ownership"
	"github.com/veritest-ai/toolgate/internal/schema"
)

const testToolset = `[
	{
		"name": "get_project",
		"description": "Fetch a project",
		"inputSchema": {
			"type": "object",
			"properties": {"id": {"type": "string", "required": true}}
		}
	},
	{
		"name": "delete_project",
		"requiresConfirmation": true,
		"confirmationType": "destructive",
		"confirmationMessage": "This permanently deletes the project"
	}
]`

type skipOwnership struct{}

func (skipOwnership) VerifyToolOwnership(context.Context, string, map[string]any, string) ownership.Result {
	return ownership.Result{IsOwner: true, Skipped: true}
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o600)
}

func newTestServer(t *testing.T) (*httptest.Server, *confirm.Manager) {
	t.Helper()

	path := t.TempDir() + "/tools.json"
	if err := writeFile(path, testToolset); err != nil {
		t.Fatalf("write toolset: %v", err)
	}
	tools, err := LoadToolset(path)
	if err != nil {
		t.Fatalf("LoadToolset: %v", err)
	}

	confirms := confirm.NewManager(confirm.Config{SweepInterval: time.Hour})
	t.Cleanup(confirms.Close)

	gw := gateway.New(gateway.Config{
		Validator:     schema.NewValidator(schema.Limits{}),
		Ownership:     skipOwnership{},
		Confirmations: confirms,
		Audit:         audit.NewLogger(audit.Config{}),
		Permissions:   AllowAllPermissions{},
		RateLimiter:   AllowAllLimiter{},
		Tools:         tools,
		Runner:        &EchoRunner{Logger: zap.NewNop()},
	})

	srv := httptest.NewServer(NewGatewayServer(gw, confirms, zap.NewNop()).Handler())
	t.Cleanup(srv.Close)
	return srv, confirms
}

func postExecute(t *testing.T, srv *httptest.Server, userID string, body map[string]any) (int, map[string]any) {
	t.Helper()

	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/v1/execute", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-Id", userID)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp.StatusCode, payload
}

func TestExecuteEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	status, payload := postExecute(t, srv, "user-1", map[string]any{
		"tool":  "get_project",
		"input": map[string]any{"id": "p-1"},
	})
	if status != http.StatusOK {
		t.Fatalf("status = %d, payload %v", status, payload)
	}
	if payload["requestId"] == "" {
		t.Fatalf("payload = %v", payload)
	}
}

func TestExecuteEndpointValidationDenial(t *testing.T) {
	srv, _ := newTestServer(t)

	status, payload := postExecute(t, srv, "user-1", map[string]any{
		"tool":  "get_project",
		"input": map[string]any{}, // missing required id
	})
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d", status)
	}
	if payload["errorType"] != "validation" {
		t.Fatalf("payload = %v", payload)
	}
}

func TestExecuteEndpointUnknownTool(t *testing.T) {
	srv, _ := newTestServer(t)

	status, payload := postExecute(t, srv, "user-1", map[string]any{"tool": "nope"})
	if status != http.StatusBadRequest || payload["error"] != "unknown tool" {
		t.Fatalf("status = %d, payload %v", status, payload)
	}
}

func TestExecuteEndpointBadBody(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/v1/execute", "application/json", strings.NewReader("{not json"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestConfirmationRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t)

	// Gated call parks with 428 and a token.
	status, payload := postExecute(t, srv, "user-1", map[string]any{
		"tool":  "delete_project",
		"input": map[string]any{"id": "p-1"},
	})
	if status != http.StatusPreconditionRequired {
		t.Fatalf("status = %d, payload %v", status, payload)
	}
	if payload["requiresConfirmation"] != true {
		t.Fatalf("payload = %v", payload)
	}
	token, _ := payload["confirmationToken"].(string)
	if token == "" {
		t.Fatalf("payload = %v", payload)
	}
	if expiresIn, _ := payload["expiresIn"].(float64); expiresIn <= 0 || expiresIn > 300 {
		t.Fatalf("expiresIn = %v", payload["expiresIn"])
	}

	// The pending confirmation is listed for its owner.
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/v1/confirmations", nil)
	req.Header.Set("X-User-Id", "user-1")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var list map[string][]map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	if len(list["pending"]) != 1 || list["pending"][0]["toolName"] != "delete_project" {
		t.Fatalf("pending = %v", list["pending"])
	}

	// Resubmission with the token executes.
	status, payload = postExecute(t, srv, "user-1", map[string]any{
		"tool":              "delete_project",
		"input":             map[string]any{"id": "p-1"},
		"confirmationToken": token,
	})
	if status != http.StatusOK {
		t.Fatalf("status = %d, payload %v", status, payload)
	}

	// The token cannot unlock a second execution.
	status, _ = postExecute(t, srv, "user-1", map[string]any{
		"tool":              "delete_project",
		"input":             map[string]any{"id": "p-1"},
		"confirmationToken": token,
	})
	if status != http.StatusPreconditionRequired {
		t.Fatalf("replay status = %d", status)
	}
}

func TestDenyEndpoint(t *testing.T) {
	srv, confirms := newTestServer(t)

	_, payload := postExecute(t, srv, "user-1", map[string]any{
		"tool":  "delete_project",
		"input": map[string]any{"id": "p-1"},
	})
	token, _ := payload["confirmationToken"].(string)
	if token == "" {
		t.Fatalf("payload = %v", payload)
	}

	raw, _ := json.Marshal(map[string]string{"token": token})
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/v1/confirmations/deny", bytes.NewReader(raw))
	req.Header.Set("X-User-Id", "user-1")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("deny: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if confirms.PendingCount("user-1") != 0 {
		t.Fatal("confirmation still pending after deny")
	}

	// Denying again is a 404, not an error.
	req, _ = http.NewRequest(http.MethodPost, srv.URL+"/v1/confirmations/deny", bytes.NewReader(raw))
	req.Header.Set("X-User-Id", "user-1")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("deny: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("repeat deny status = %d", resp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

type denyLimiter struct{}

func (denyLimiter) CheckRateLimit(context.Context, string, string) gateway.RateDecision {
	return gateway.RateDecision{Allowed: false, Reason: "rate limit exceeded", RetryAfter: 45 * time.Second}
}

func TestRateLimitDenialSetsRetryAfter(t *testing.T) {
	path := t.TempDir() + "/tools.json"
	if err := writeFile(path, testToolset); err != nil {
		t.Fatalf("write toolset: %v", err)
	}
	tools, err := LoadToolset(path)
	if err != nil {
		t.Fatalf("LoadToolset: %v", err)
	}

	confirms := confirm.NewManager(confirm.Config{SweepInterval: time.Hour})
	t.Cleanup(confirms.Close)

	gw := gateway.New(gateway.Config{
		Validator:     schema.NewValidator(schema.Limits{}),
		Ownership:     skipOwnership{},
		Confirmations: confirms,
		Audit:         audit.NewLogger(audit.Config{}),
		Permissions:   AllowAllPermissions{},
		RateLimiter:   denyLimiter{},
		Tools:         tools,
		Runner:        &EchoRunner{Logger: zap.NewNop()},
	})
	srv := httptest.NewServer(NewGatewayServer(gw, confirms, zap.NewNop()).Handler())
	t.Cleanup(srv.Close)

	raw, _ := json.Marshal(map[string]any{"tool": "get_project", "input": map[string]any{"id": "p-1"}})
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/v1/execute", bytes.NewReader(raw))
	req.Header.Set("X-User-Id", "user-1")
	resp, doErr := http.DefaultClient.Do(req)
	if doErr != nil {
		t.Fatalf("do: %v", doErr)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Retry-After"); got != "45" {
		t.Fatalf("Retry-After = %q", got)
	}
	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["retryAfter"] != float64(45) {
		t.Fatalf("payload = %v", payload)
	}
}

func TestLoadToolsetRejectsBadSchema(t *testing.T) {
	path := t.TempDir() + "/tools.json"
	bad := `[{"name": "x", "inputSchema": {"type": "blob"}}]`
	if err := writeFile(path, bad); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadToolset(path); err == nil {
		t.Fatal("toolset with invalid schema accepted")
	}
}
