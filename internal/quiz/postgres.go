package quiz

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/errors"
)

// PostgresStore keeps quizzes in a single table, questions as JSONB.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the quizzes table when it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	const stmt = `
CREATE TABLE IF NOT EXISTS quizzes (
	quiz_id     UUID PRIMARY KEY,
	title       TEXT NOT NULL,
	questions   JSONB NOT NULL,
	create_time TIMESTAMPTZ NOT NULL
);`

	if _, err := s.db.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("create quizzes table: %w", err)
	}

	return nil
}

func (s *PostgresStore) Insert(ctx context.Context, q domain.Quiz) error {
	const stmt = `INSERT INTO quizzes (quiz_id, title, questions, create_time) VALUES ($1, $2, $3, $4);`

	if _, err := s.db.Exec(ctx, stmt, q.ID, q.Title, q.Questions, q.CreateTime); err != nil {
		return fmt.Errorf("insert quiz: %w", err)
	}

	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]domain.QuizSummary, error) {
	const stmt = `SELECT quiz_id::text, title FROM quizzes ORDER BY create_time, quiz_id;`

	rows, err := s.db.Query(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}

	l, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.QuizSummary, error) {
		var qs domain.QuizSummary
		err := r.Scan(&qs.ID, &qs.Title)
		return qs, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan quizzes: %w", err)
	}

	return l, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*domain.Quiz, error) {
	const stmt = `SELECT quiz_id::text, title, questions, create_time FROM quizzes WHERE quiz_id::text = $1;`

	var q domain.Quiz
	err := s.db.QueryRow(ctx, stmt, id).Scan(&q.ID, &q.Title, &q.Questions, &q.CreateTime)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("quiz not found: id=%s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get quiz: %w", err)
	}

	return &q, nil
}
