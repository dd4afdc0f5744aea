package confirm

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultTTL               = 5 * time.Minute
	defaultMaxPendingPerUser = 5
	defaultSweepInterval     = 60 * time.Second
	defaultTokenBytes        = 24
)

// Config configures the Manager. Zero values take defaults.
type Config struct {
	TTL               time.Duration
	MaxPendingPerUser int
	SweepInterval     time.Duration
	TokenBytes        int
	// RequireSession demands a matching session id on every token use.
	// When false, the session check only runs if both the request and the
	// caller supplied one.
	RequireSession bool
	Store          Store
	Persister      Persister
	Logger         *zap.Logger
}

// Manager owns the confirmation state machine. All map access is serialized
// by a single mutex; the periodic sweep goroutine is the only autonomous
// activity in this package.
type Manager struct {
	cfg Config

	mu    sync.Mutex
	store Store
	seq   uint64

	done    chan struct{}
	stopped chan struct{}
}

// NewManager creates a Manager and starts its background sweep.
func NewManager(cfg Config) *Manager {
	if cfg.TTL == 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.MaxPendingPerUser == 0 {
		cfg.MaxPendingPerUser = defaultMaxPendingPerUser
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = defaultSweepInterval
	}
	if cfg.TokenBytes == 0 {
		cfg.TokenBytes = defaultTokenBytes
	}
	if cfg.Store == nil {
		cfg.Store = NewMemoryStore()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	m := &Manager{
		cfg:     cfg,
		store:   cfg.Store,
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go m.sweepLoop()
	return m
}

// Close stops the background sweep.
func (m *Manager) Close() {
	close(m.done)
	<-m.stopped
}

// CreateParams carries everything needed to open a confirmation.
type CreateParams struct {
	ToolName  string
	Input     map[string]any
	UserID    string
	SessionID string
	Type      Type
	Message   string
	Metadata  map[string]string
}

// Create opens a pending confirmation and returns it. Expired entries are
// swept first; when the user already has the maximum pending requests, the
// oldest pending one (by CreatedAt, insertion-order on ties) is evicted.
func (m *Manager) Create(ctx context.Context, p CreateParams) (*Request, error) {
	token, err := generateToken(m.cfg.TokenBytes)
	if err != nil {
		return nil, fmt.Errorf("Create: %w", err)
	}

	now := time.Now()

	m.mu.Lock()
	m.sweepExpiredLocked(now)

	if evicted := m.evictIfOverLimitLocked(p.UserID); evicted != nil {
		m.cfg.Logger.Warn("pending confirmation limit reached, evicting oldest",
			zap.String("user_id", p.UserID),
			zap.String("evicted_tool", evicted.ToolName),
		)
	}

	m.seq++
	req := &Request{
		ID:        uuid.New().String(),
		Token:     token,
		UserID:    p.UserID,
		SessionID: p.SessionID,
		ToolName:  p.ToolName,
		Input:     redactSensitive(p.Input),
		Type:      p.Type,
		Message:   p.Message,
		CreatedAt: now,
		ExpiresAt: now.Add(m.cfg.TTL),
		Status:    StatusPending,
		Metadata:  p.Metadata,
		seq:       m.seq,
	}
	m.store.Put(req)
	m.mu.Unlock()

	m.persist(ctx, func(p Persister) error { return p.Created(ctx, req) })
	return req, nil
}

// Verification is the outcome of a token check. Verify never returns a Go
// error; every failure mode has a distinct human-readable message.
type Verification struct {
	Valid   bool
	Request *Request
	Error   string
}

// Verify checks a token without advancing its state. An expired entry is
// cancelled as a side effect of being observed.
func (m *Manager) Verify(token, userID, sessionID string) Verification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.verifyLocked(token, userID, sessionID)
}

func (m *Manager) verifyLocked(token, userID, sessionID string) Verification {
	req, ok := m.store.Get(token)
	if !ok {
		return Verification{Error: "Confirmation not found"}
	}

	if req.expired(time.Now()) {
		m.store.Delete(token)
		m.persistAsync(func(ctx context.Context, p Persister) error {
			return p.Removed(ctx, req.ID, "expired")
		})
		return Verification{Error: "Confirmation has expired"}
	}

	if req.UserID != userID {
		return Verification{Error: "Confirmation does not belong to this user"}
	}

	sessionRequired := m.cfg.RequireSession || (req.SessionID != "" && sessionID != "")
	if sessionRequired && req.SessionID != sessionID {
		return Verification{Error: "Confirmation does not belong to this session"}
	}

	if req.Status != StatusPending {
		return Verification{Error: "Confirmation already " + string(req.Status)}
	}

	return Verification{Valid: true, Request: req}
}

// ConfirmOutcome reports a confirm attempt. On success the caller receives
// the tool name and stored input to execute; the entry stays in the store
// until MarkExecuted.
type ConfirmOutcome struct {
	Success  bool
	ToolName string
	Input    map[string]any
	Error    string
}

// Confirm transitions pending → confirmed.
func (m *Manager) Confirm(ctx context.Context, token, userID, sessionID string) ConfirmOutcome {
	m.mu.Lock()
	v := m.verifyLocked(token, userID, sessionID)
	if !v.Valid {
		m.mu.Unlock()
		return ConfirmOutcome{Error: v.Error}
	}

	req := v.Request
	req.Status = StatusConfirmed
	req.ConfirmedAt = time.Now()
	m.mu.Unlock()

	m.persist(ctx, func(p Persister) error { return p.Transitioned(ctx, req.ID, StatusConfirmed, req.ConfirmedAt) })
	return ConfirmOutcome{Success: true, ToolName: req.ToolName, Input: req.Input}
}

// DenyOutcome reports a deny attempt. Denying an unknown token is an
// idempotent failure, not a panic or error.
type DenyOutcome struct {
	Success bool
	Error   string
}

// Deny transitions pending → denied and removes the entry. Terminal.
func (m *Manager) Deny(ctx context.Context, token, userID string) DenyOutcome {
	m.mu.Lock()
	req, ok := m.store.Get(token)
	if !ok {
		m.mu.Unlock()
		return DenyOutcome{Error: "Confirmation not found"}
	}
	if req.UserID != userID {
		m.mu.Unlock()
		return DenyOutcome{Error: "Confirmation does not belong to this user"}
	}
	if req.Status != StatusPending {
		m.mu.Unlock()
		return DenyOutcome{Error: "Confirmation already " + string(req.Status)}
	}

	req.Status = StatusDenied
	req.DeniedAt = time.Now()
	m.store.Delete(token)
	m.mu.Unlock()

	m.persist(ctx, func(p Persister) error { return p.Transitioned(ctx, req.ID, StatusDenied, req.DeniedAt) })
	return DenyOutcome{Success: true}
}

// MarkExecuted transitions confirmed → executed and removes the entry from
// both maps. This is the replay-protection step: after it runs, the token
// cannot unlock a second execution.
func (m *Manager) MarkExecuted(ctx context.Context, token string) error {
	m.mu.Lock()
	req, ok := m.store.Get(token)
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("MarkExecuted: confirmation not found")
	}
	if req.Status != StatusConfirmed {
		m.mu.Unlock()
		return fmt.Errorf("MarkExecuted: confirmation is %s, not confirmed", req.Status)
	}

	req.Status = StatusExecuted
	req.ExecutedAt = time.Now()
	m.store.Delete(token)
	m.mu.Unlock()

	m.persist(ctx, func(p Persister) error { return p.Transitioned(ctx, req.ID, StatusExecuted, req.ExecutedAt) })
	return nil
}

// UserPending returns the client-safe views of the user's live pending
// confirmations, skipping anything already past its deadline.
func (m *Manager) UserPending(userID string) []PendingView {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	views := make([]PendingView, 0)
	for _, token := range m.store.UserTokens(userID) {
		req, ok := m.store.Get(token)
		if !ok || req.Status != StatusPending || req.expired(now) {
			continue
		}
		views = append(views, PendingView{
			ID:        req.ID,
			Token:     req.Token,
			ToolName:  req.ToolName,
			Type:      req.Type,
			Message:   req.Message,
			ExpiresIn: int(req.ExpiresAt.Sub(now).Seconds()),
		})
	}
	return views
}

// PendingCount reports the user's live pending confirmations.
func (m *Manager) PendingCount(userID string) int {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, token := range m.store.UserTokens(userID) {
		if req, ok := m.store.Get(token); ok && req.Status == StatusPending && !req.expired(now) {
			n++
		}
	}
	return n
}

func (m *Manager) evictIfOverLimitLocked(userID string) *Request {
	var pending []*Request
	for _, token := range m.store.UserTokens(userID) {
		if req, ok := m.store.Get(token); ok && req.Status == StatusPending {
			pending = append(pending, req)
		}
	}
	if len(pending) < m.cfg.MaxPendingPerUser {
		return nil
	}

	oldest := pending[0]
	for _, req := range pending[1:] {
		if req.CreatedAt.Before(oldest.CreatedAt) ||
			(req.CreatedAt.Equal(oldest.CreatedAt) && req.seq < oldest.seq) {
			oldest = req
		}
	}
	m.store.Delete(oldest.Token)
	m.persistAsync(func(ctx context.Context, p Persister) error {
		return p.Removed(ctx, oldest.ID, "evicted")
	})
	return oldest
}

func (m *Manager) sweepExpiredLocked(now time.Time) {
	for _, token := range m.store.AllTokens() {
		req, ok := m.store.Get(token)
		if !ok || !req.expired(now) {
			continue
		}
		m.store.Delete(token)
		m.persistAsync(func(ctx context.Context, p Persister) error {
			return p.Removed(ctx, req.ID, "expired")
		})
	}
}

func (m *Manager) sweepLoop() {
	defer close(m.stopped)

	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.mu.Lock()
			m.sweepExpiredLocked(time.Now())
			m.mu.Unlock()
		case <-m.done:
			return
		}
	}
}

// persist mirrors a state change to the optional durable hook. Failures are
// logged and swallowed: persistence is best-effort, in-memory state is the
// source of truth.
func (m *Manager) persist(ctx context.Context, fn func(Persister) error) {
	if m.cfg.Persister == nil {
		return
	}
	if err := fn(m.cfg.Persister); err != nil {
		m.cfg.Logger.Warn("confirmation persistence failed", zap.Error(err))
	}
}

func (m *Manager) persistAsync(fn func(context.Context, Persister) error) {
	if m.cfg.Persister == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := fn(ctx, m.cfg.Persister); err != nil {
			m.cfg.Logger.Warn("confirmation persistence failed", zap.Error(err))
		}
	}()
}

func generateToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
