// Package session keeps one in-memory page session per browser.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/age-gender-ui/internal/chrome"
	"github.com/example/age-gender-ui/internal/upload"
)

// ControllerFactory builds the upload controller of a new page session.
type ControllerFactory func(sessionID string) *upload.Controller

// Session is everything one page holds. Its parts do not share state.
type Session struct {
	ID      string
	Upload  *upload.Controller
	Theme   *chrome.Theme
	About   *chrome.Dropdown
	Effects *chrome.Effects

	lastSeen time.Time
}

// Registry maps session ids to sessions and evicts idle ones.
type Registry struct {
	newController ControllerFactory
	logger        *zap.Logger
	now           func() time.Time
	maxSessions   int

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry constructs an empty registry.
func NewRegistry(factory ControllerFactory, logger *zap.Logger) *Registry {
	return &Registry{
		newController: factory,
		logger:        logger.Named("session_registry"),
		now:           time.Now,
		sessions:      make(map[string]*Session),
	}
}

// WithMaxSessions caps the number of live sessions. Creating a session at the
// cap evicts the least recently seen one. Non-positive n means no cap.
func (r *Registry) WithMaxSessions(n int) *Registry {
	r.mu.Lock()
	r.maxSessions = n
	r.mu.Unlock()
	return r
}

// Resolve returns the session for id, creating a new one under a fresh id
// when id is unknown. created reports whether the caller must hand the new
// id back to the browser.
func (r *Registry) Resolve(id string) (s *Session, created bool) {
	r.mu.Lock()
	if s, ok := r.sessions[id]; ok {
		s.lastSeen = r.now()
		r.mu.Unlock()
		return s, false
	}

	var evicted *Session
	if r.maxSessions > 0 && len(r.sessions) >= r.maxSessions {
		evicted = r.oldestLocked()
		delete(r.sessions, evicted.ID)
	}

	id = uuid.NewString()
	s = &Session{
		ID:       id,
		Upload:   r.newController(id),
		Theme:    &chrome.Theme{},
		About:    &chrome.Dropdown{},
		Effects:  chrome.NewEffects(chrome.RippleDuration),
		lastSeen: r.now(),
	}
	r.sessions[id] = s
	r.mu.Unlock()

	r.logger.Debug("page session created", zap.String("session_id", id))
	if evicted != nil {
		r.logger.Info("evicted least recently seen page session", zap.String("session_id", evicted.ID))
		evicted.Upload.Close(context.Background())
	}
	return s, true
}

func (r *Registry) oldestLocked() *Session {
	var oldest *Session
	for _, s := range r.sessions {
		if oldest == nil || s.lastSeen.Before(oldest.lastSeen) {
			oldest = s
		}
	}
	return oldest
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep evicts sessions idle for longer than idleTTL and releases their
// display handles. It returns how many were evicted.
func (r *Registry) Sweep(ctx context.Context, idleTTL time.Duration) int {
	cutoff := r.now().Add(-idleTTL)

	r.mu.Lock()
	var expired []*Session
	for id, s := range r.sessions {
		if s.lastSeen.Before(cutoff) {
			expired = append(expired, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, s := range expired {
		s.Upload.Close(ctx)
	}
	return len(expired)
}

// CloseAll evicts every session.
func (r *Registry) CloseAll(ctx context.Context) {
	r.mu.Lock()
	all := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range all {
		s.Upload.Close(ctx)
	}
}

// RunSweeper sweeps every interval until ctx is done, then closes all
// remaining sessions.
func (r *Registry) RunSweeper(ctx context.Context, every, idleTTL time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	r.logger.Info("session sweeper started", zap.Duration("interval", every), zap.Duration("idle_ttl", idleTTL))

	for {
		select {
		case <-ticker.C:
			if n := r.Sweep(ctx, idleTTL); n > 0 {
				r.logger.Info("evicted idle page sessions", zap.Int("count", n), zap.Int("remaining", r.Len()))
			}
		case <-ctx.Done():
			r.CloseAll(context.WithoutCancel(ctx))
			r.logger.Info("session sweeper stopped")
			return
		}
	}
}
