package quiz

import (
	"context"
	"slices"
	"sync"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/errors"
)

// MemoryStore keeps quizzes in process memory, in insertion order.
type MemoryStore struct {
	mu      sync.RWMutex
	quizzes []domain.Quiz
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Insert(_ context.Context, q domain.Quiz) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	q.Questions = slices.Clone(q.Questions)
	m.quizzes = append(m.quizzes, q)
	return nil
}

func (m *MemoryStore) List(_ context.Context) ([]domain.QuizSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	l := make([]domain.QuizSummary, 0, len(m.quizzes))
	for _, q := range m.quizzes {
		l = append(l, domain.QuizSummary{ID: q.ID, Title: q.Title})
	}

	return l, nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*domain.Quiz, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	i := slices.IndexFunc(m.quizzes, func(q domain.Quiz) bool { return q.ID == id })
	if i < 0 {
		return nil, errors.NotFound("quiz not found: id=%s", id)
	}

	q := m.quizzes[i]
	q.Questions = slices.Clone(q.Questions)
	return &q, nil
}
