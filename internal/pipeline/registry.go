package pipeline

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Registry tracks live sessions in memory so transports can stream their
// events and answer clarifications. Sessions age out after the retention
// window; persisted state outlives them in the store.
type Registry struct {
	mu        sync.Mutex
	sessions  map[string]*Session
	retention time.Duration
}

// NewRegistry creates a registry with the given retention window.
func NewRegistry(retention time.Duration) *Registry {
	if retention <= 0 {
		retention = 72 * time.Hour
	}
	return &Registry{
		sessions:  make(map[string]*Session),
		retention: retention,
	}
}

// Add registers a session.
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID()] = s
}

// Get returns a session by ID, or nil if not registered.
func (r *Registry) Get(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[id]
}

// List returns all registered sessions, newest first.
func (r *Registry) List() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Info().CreatedAt.After(out[j].Info().CreatedAt)
	})
	return out
}

// Evict removes sessions whose last update is older than the retention
// window and closes their event streams. It returns the number evicted.
func (r *Registry) Evict(now time.Time) int {
	cutoff := now.Add(-r.retention)

	r.mu.Lock()
	defer r.mu.Unlock()
	evicted := 0
	for id, s := range r.sessions {
		if s.Info().UpdatedAt.Before(cutoff) {
			s.bus.Close()
			delete(r.sessions, id)
			evicted++
		}
	}
	if evicted > 0 {
		zap.L().Info("registry: evicted expired sessions", zap.Int("count", evicted))
	}
	return evicted
}
