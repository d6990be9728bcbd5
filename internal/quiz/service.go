package quiz

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/errors"
)

// Store persists quiz definitions. Get returns a CodeNotFound error for unknown ids.
type Store interface {
	Insert(ctx context.Context, q domain.Quiz) error
	List(ctx context.Context) ([]domain.QuizSummary, error)
	Get(ctx context.Context, id string) (*domain.Quiz, error)
}

type Config struct {
	Store Store
	Now   func() time.Time
}

// Service is the quiz repository used by hosts and by game creation.
// Store failures surface as CodeUnavailable and are never retried.
type Service struct {
	store Store
	now   func() time.Time
}

func NewService(c Config) *Service {
	s := &Service{
		store: c.Store,
		now:   c.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}

	return s
}

// Save validates and stores a new quiz, returning its ID.
func (s *Service) Save(ctx context.Context, q domain.Quiz) (string, error) {
	if err := validate(&q); err != nil {
		return "", err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate quiz ID: %w", err)
	}
	q.ID = id.String()
	q.CreateTime = s.now()

	if err := s.store.Insert(ctx, q); err != nil {
		return "", errors.Unavailable(err, "save quiz %q", q.Title)
	}

	return q.ID, nil
}

// List returns the summaries of every stored quiz, oldest first.
func (s *Service) List(ctx context.Context) ([]domain.QuizSummary, error) {
	l, err := s.store.List(ctx)
	if err != nil {
		return nil, errors.Unavailable(err, "list quizzes")
	}

	return l, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Quiz, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.InvalidArgument("quiz id is required")
	}

	q, err := s.store.Get(ctx, id)
	if errors.Is(err, errors.CodeNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, errors.Unavailable(err, "get quiz %s", id)
	}

	return q, nil
}

func validate(q *domain.Quiz) error {
	q.Title = strings.TrimSpace(q.Title)
	if q.Title == "" {
		return errors.InvalidArgument("quiz title is required")
	}
	if len(q.Questions) == 0 {
		return errors.InvalidArgument("quiz %q has no questions", q.Title)
	}

	for i, qs := range q.Questions {
		if strings.TrimSpace(qs.Prompt) == "" {
			return errors.InvalidArgument("question %d has no prompt", i+1)
		}
		if len(qs.Options) < 2 {
			return errors.InvalidArgument("question %d needs at least two options", i+1)
		}
		if !slices.Contains(qs.Options, qs.CorrectAnswer) {
			return errors.InvalidArgument("question %d: correct answer %q is not an option", i+1, qs.CorrectAnswer)
		}
	}

	return nil
}
