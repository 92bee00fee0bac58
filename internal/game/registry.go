package game

import (
	"math/rand"
	"sync"
	"time"

	"quiz-live/internal/errors"
	"quiz-live/internal/models"
)

const (
	codeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength  = 6
)

// Registry maps session codes to live sessions. It is the only resource
// shared across sessions; inserts and removals are atomic with respect to
// lookups.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	tickInterval time.Duration
	lastAccess   map[string]time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		sessions:     make(map[string]*Session),
		lastAccess:   make(map[string]time.Time),
		tickInterval: time.Second,
	}
}

// SetTickInterval shortens the round tick interval for sessions created
// afterwards. Tests only.
func (r *Registry) SetTickInterval(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tickInterval = d
}

// CreateSession generates a collision-free code and stores a new session in
// the waiting state with default settings.
func (r *Registry) CreateSession(hostID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	code := generateCode()
	for _, exists := r.sessions[code]; exists; _, exists = r.sessions[code] {
		code = generateCode()
	}

	s := newSession(code, hostID, models.DefaultSettings, NewRoundWithInterval(r.tickInterval))
	r.sessions[code] = s
	r.lastAccess[code] = time.Now()
	return s
}

// Lookup returns the session for a code.
func (r *Registry) Lookup(code string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[code]
	r.mu.RUnlock()

	if !ok {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("no session with code %s", code))
	}

	r.Touch(code)
	return s, nil
}

// Touch refreshes the idle-eviction clock for a code.
func (r *Registry) Touch(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[code]; ok {
		r.lastAccess[code] = time.Now()
	}
}

// Destroy stops the session's round timer and removes it. Reports whether
// the session existed.
func (r *Registry) Destroy(code string) bool {
	r.mu.Lock()
	s, ok := r.sessions[code]
	delete(r.sessions, code)
	delete(r.lastAccess, code)
	r.mu.Unlock()

	if ok {
		s.Round().Close()
	}
	return ok
}

// Restore inserts a pre-built session, used when re-seeding from the
// fallback store. Existing codes are not overwritten.
func (r *Registry) Restore(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[s.Code()]; ok {
		return false
	}
	r.sessions[s.Code()] = s
	r.lastAccess[s.Code()] = time.Now()
	return true
}

// Codes lists the codes of all live sessions.
func (r *Registry) Codes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.sessions))
	for code := range r.sessions {
		out = append(out, code)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep evicts sessions idle for longer than maxIdle and returns the
// evicted codes.
func (r *Registry) Sweep(maxIdle time.Duration) []string {
	r.mu.Lock()
	now := time.Now()
	var evicted []string
	var stopped []*Session
	for code, s := range r.sessions {
		if now.Sub(r.lastAccess[code]) > maxIdle {
			evicted = append(evicted, code)
			stopped = append(stopped, s)
			delete(r.sessions, code)
			delete(r.lastAccess, code)
		}
	}
	r.mu.Unlock()

	for _, s := range stopped {
		s.Round().Close()
	}
	return evicted
}

func generateCode() string {
	code := make([]byte, codeLength)
	for i := range code {
		code[i] = codeCharset[rand.Intn(len(codeCharset))]
	}
	return string(code)
}
