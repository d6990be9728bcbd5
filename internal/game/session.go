package game

import (
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/victornm/livequiz/internal/domain"
)

// Session is the state of one live game. All fields are guarded by mu;
// commands against the same session never interleave.
type Session struct {
	mu sync.Mutex

	code      string
	quizTitle string
	hostID    string
	players   []domain.Player
	questions []domain.Question

	// index is in [0, len(questions)]; len(questions) means the game is over.
	index     int
	answered  map[string]struct{}
	startedAt time.Time
	phase     domain.Phase
	timer     clockwork.Timer

	lastActive time.Time
	closed     bool
}

func newSession(code, hostID, title string, questions []domain.Question, now time.Time) *Session {
	return &Session{
		code:       code,
		quizTitle:  title,
		hostID:     hostID,
		questions:  slices.Clone(questions),
		answered:   make(map[string]struct{}),
		phase:      domain.PhaseLobby,
		lastActive: now,
	}
}

func (s *Session) Code() string { return s.code }

// Snapshot returns a copy of the session state, roster in join order.
func (s *Session) Snapshot() domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.snapshot()
}

func (s *Session) snapshot() domain.Snapshot {
	return domain.Snapshot{
		GameCode:      s.code,
		QuizTitle:     s.quizTitle,
		Phase:         s.phase,
		QuestionIndex: s.index,
		QuestionCount: len(s.questions),
		Players:       s.roster(),
	}
}

// retire closes the session and cancels its timer. Commands that acquire the
// lock afterwards see a closed session and do nothing.
func (s *Session) retire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	s.closed = true
	s.cancelTimer()
	return true
}

func (s *Session) cancelTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Session) currentQuestion() (domain.Question, bool) {
	if s.index < 0 || s.index >= len(s.questions) {
		return domain.Question{}, false
	}

	return s.questions[s.index], true
}

func (s *Session) playerIndex(id string) int {
	return slices.IndexFunc(s.players, func(p domain.Player) bool { return p.ID == id })
}

func (s *Session) playerIndexByToken(token string) int {
	if token == "" {
		return -1
	}

	return slices.IndexFunc(s.players, func(p domain.Player) bool { return p.Token() == token })
}

// allAnswered reports whether every connected player has answered. Offline
// players are not waited for.
func (s *Session) allAnswered() bool {
	if len(s.answered) == 0 {
		return false
	}

	for _, p := range s.players {
		if _, ok := s.answered[p.ID]; !ok && p.Connected {
			return false
		}
	}

	return true
}

func (s *Session) roster() []domain.Player {
	return slices.Clone(s.players)
}

// standings returns the roster sorted by score descending, ties kept in join order.
func (s *Session) standings() []domain.Player {
	ps := s.roster()
	slices.SortStableFunc(ps, func(a, b domain.Player) int {
		return b.Score - a.Score
	})

	return ps
}
