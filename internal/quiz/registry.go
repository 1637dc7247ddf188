package quiz

import (
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/pavelanni/smartquiz/internal/metrics"
)

// Registry owns the live sessions of a server. Sessions are kept in memory
// only and dropped on abandon or after ttl of inactivity.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
	now      func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry(ttl time.Duration) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Create registers a new loading session.
func (r *Registry) Create(summary string, parser Parser) *Session {
	s := NewSession(summary, parser)
	r.mu.Lock()
	r.sessions[s.ID()] = s
	n := len(r.sessions)
	r.mu.Unlock()
	metrics.ActiveSessions.Set(float64(n))
	return s
}

// Get returns the session with the given id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Abandon removes a session and marks it discarded.
func (r *Registry) Abandon(id string) bool {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	n := len(r.sessions)
	r.mu.Unlock()
	if !ok {
		return false
	}
	s.Abandon()
	metrics.ActiveSessions.Set(float64(n))
	return true
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep abandons every session idle for longer than ttl and returns how
// many were removed.
func (r *Registry) Sweep() int {
	if r.ttl <= 0 {
		return 0
	}
	now := r.now()
	r.mu.Lock()
	var expired []*Session
	for id, s := range r.sessions {
		if now.Sub(s.LastActive()) > r.ttl {
			expired = append(expired, s)
			delete(r.sessions, id)
		}
	}
	n := len(r.sessions)
	r.mu.Unlock()

	for _, s := range expired {
		s.Abandon()
	}
	metrics.ActiveSessions.Set(float64(n))
	if len(expired) > 0 {
		slog.Info("swept idle quiz sessions", "removed", len(expired), "remaining", n)
	}
	return len(expired)
}

// StartSweeper runs Sweep on the given cron schedule (e.g. "@every 5m").
// The caller stops the returned scheduler.
func (r *Registry) StartSweeper(schedule string) (*cron.Cron, error) {
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() { r.Sweep() }); err != nil {
		return nil, err
	}
	c.Start()
	slog.Info("session sweeper started", "schedule", schedule, "ttl", r.ttl)
	return c, nil
}
