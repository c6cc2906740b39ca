package tool

import "sync"

// State is the per-session context handed to every handler. It is owned by
// one session and never shared between sessions.
type State struct {
	mu     sync.RWMutex
	values map[string]any
}

func NewState() *State {
	return &State{values: make(map[string]any)}
}

func (s *State) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *State) Set(key string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = v
}

func (s *State) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}

// Value returns the value stored under key if it has type T.
func Value[T any](s *State, key string) (T, bool) {
	var zero T
	if s == nil {
		return zero, false
	}
	v, ok := s.Get(key)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}
