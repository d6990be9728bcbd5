package game

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/errors"
	"github.com/victornm/livequiz/internal/telemetry"
)

const defaultMaxAttempts = 100

// Registry maps game codes to live sessions. Its lock only guards the map;
// session state is guarded by each session's own lock.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	newCode     func() string
	maxAttempts int
}

type RegistryOption func(*Registry)

// WithCodeGenerator replaces the random 6-digit code generator.
func WithCodeGenerator(f func() string) RegistryOption {
	return func(r *Registry) {
		r.newCode = f
	}
}

func WithMaxAttempts(n int) RegistryOption {
	return func(r *Registry) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		sessions:    make(map[string]*Session),
		newCode:     randomCode,
		maxAttempts: defaultMaxAttempts,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

func randomCode() string {
	return fmt.Sprintf("%06d", 100000+rand.IntN(900000))
}

// Create binds a new lobby session to a free code, resampling on collision.
func (r *Registry) Create(hostID, title string, questions []domain.Question, now time.Time) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for range r.maxAttempts {
		code := r.newCode()
		if _, taken := r.sessions[code]; taken {
			continue
		}

		s := newSession(code, hostID, title, questions, now)
		r.sessions[code] = s
		telemetry.SessionsActive.Inc()
		return s, nil
	}

	return nil, errors.New(errors.CodeResourceExhausted,
		errors.WithMessagef("no free game code after %d attempts", r.maxAttempts))
}

func (r *Registry) Get(code string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[code]
	if !ok {
		return nil, errors.NotFound("game not found: code=%s", code)
	}

	return s, nil
}

// Remove retires the session bound to code and cancels its timer.
func (r *Registry) Remove(code string) (*Session, error) {
	r.mu.Lock()
	s, ok := r.sessions[code]
	if ok {
		delete(r.sessions, code)
		telemetry.SessionsActive.Dec()
	}
	r.mu.Unlock()

	if !ok {
		return nil, errors.NotFound("game not found: code=%s", code)
	}

	s.retire()
	return s, nil
}

// drop removes s unless its code already points to another session.
func (r *Registry) drop(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sessions[s.code] == s {
		delete(r.sessions, s.code)
		telemetry.SessionsActive.Dec()
	}
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.sessions)
}

// Sessions returns the live sessions at the time of the call.
func (r *Registry) Sessions() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ss := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		ss = append(ss, s)
	}

	return ss
}
