// Package server exposes the gateway execute surface and the confirmation
// endpoints over a minimal JSON shim. Routing, sessions, and UI belong to the
// host application; this is only the consumer-facing edge of the pipeline.
package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/veritest-ai/toolgate/internal/confirm"
	"github.com/veritest-ai/toolgate/internal/gateway"
)

// GatewayServer handles gateway and confirmation requests.
type GatewayServer struct {
	gw       *gateway.Gateway
	confirms *confirm.Manager
	logger   *zap.Logger
}

// NewGatewayServer creates a GatewayServer.
func NewGatewayServer(gw *gateway.Gateway, confirms *confirm.Manager, logger *zap.Logger) *GatewayServer {
	return &GatewayServer{gw: gw, confirms: confirms, logger: logger}
}

// Handler returns the route mux.
func (s *GatewayServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/execute", s.handleExecute)
	mux.HandleFunc("GET /v1/confirmations", s.handleListConfirmations)
	mux.HandleFunc("POST /v1/confirmations/deny", s.handleDeny)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

type executeRequest struct {
	Tool              string         `json:"tool"`
	Input             map[string]any `json:"input"`
	ConfirmationToken string         `json:"confirmationToken,omitempty"`
}

func (s *GatewayServer) handleExecute(w http.ResponseWriter, r *http.Request) {
	var body executeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": "invalid request body", "errorType": gateway.ErrorTypeValidation,
		})
		return
	}

	req := gateway.Request{
		Tool:              body.Tool,
		Input:             body.Input,
		ConfirmationToken: body.ConfirmationToken,
		Context: gateway.RequestContext{
			UserID:    r.Header.Get("X-User-Id"),
			SessionID: r.Header.Get("X-Session-Id"),
			IPAddress: clientIP(r),
			UserAgent: r.UserAgent(),
		},
	}

	resp, denial := s.gw.Execute(r.Context(), req)
	if denial != nil {
		s.writeDenial(w, denial)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"requestId":  resp.RequestID,
		"result":     resp.Result,
		"durationMs": resp.Duration.Milliseconds(),
	})
}

func (s *GatewayServer) writeDenial(w http.ResponseWriter, d *gateway.Denial) {
	payload := map[string]any{
		"error":     d.Error,
		"errorType": d.ErrorType,
	}
	switch d.ErrorType {
	case gateway.ErrorTypePermission:
		payload["requiredLevel"] = d.RequiredLevel
		payload["userLevel"] = d.UserLevel
	case gateway.ErrorTypeRateLimit:
		retry := int(d.RetryAfter.Seconds())
		payload["retryAfter"] = retry
		w.Header().Set("Retry-After", strconv.Itoa(retry))
	case gateway.ErrorTypeConfirmationRequired:
		if d.RequiresConfirmation {
			payload["requiresConfirmation"] = true
			payload["confirmationType"] = d.ConfirmationType
			payload["confirmationMessage"] = d.ConfirmationMessage
			payload["confirmationToken"] = d.ConfirmationToken
			payload["expiresIn"] = d.ConfirmationExpires
		}
	}
	writeJSON(w, d.StatusCode, payload)
}

func (s *GatewayServer) handleListConfirmations(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-Id")
	views := s.confirms.UserPending(userID)

	out := make([]map[string]any, 0, len(views))
	for _, v := range views {
		out = append(out, map[string]any{
			"id":        v.ID,
			"token":     v.Token,
			"toolName":  v.ToolName,
			"type":      string(v.Type),
			"message":   v.Message,
			"expiresIn": v.ExpiresIn,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"pending": out})
}

type denyRequest struct {
	Token string `json:"token"`
}

func (s *GatewayServer) handleDeny(w http.ResponseWriter, r *http.Request) {
	var body denyRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid request body"})
		return
	}

	outcome := s.confirms.Deny(r.Context(), body.Token, r.Header.Get("X-User-Id"))
	if !outcome.Success {
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "error": outcome.Error})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i > 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host := r.RemoteAddr
	if i := strings.LastIndexByte(host, ':'); i > 0 {
		host = host[:i]
	}
	return host
}
