package bridge

import "sync"

// Registry holds the single active session of one signaling connection.
// The protocol allows at most one publish per connection at a time; a new
// publish replaces the prior session.
type Registry struct {
	mu      sync.Mutex
	current *Session
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Put installs s as the connection's session and returns the session it
// replaced, if any. The caller is responsible for stopping the prior one.
func (r *Registry) Put(s *Session) (prior *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prior = r.current
	r.current = s
	return prior
}

// Get returns the current session or nil.
func (r *Registry) Get() *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Remove clears s if it is still the current session. Returns false when s
// was already replaced, so a late teardown cannot evict its successor.
func (r *Registry) Remove(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != s {
		return false
	}
	r.current = nil
	return true
}

// Clear removes and returns the current session.
func (r *Registry) Clear() *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.current
	r.current = nil
	return s
}
