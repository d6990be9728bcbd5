package quiz

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/errors"
)

// RedisStore keeps each quiz as a JSON string and indexes ids in a sorted set
// scored by creation time.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewRedisStore(r redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{
		redis:  r,
		prefix: prefix,
	}
}

func (s *RedisStore) Insert(ctx context.Context, q domain.Quiz) error {
	b, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("marshal quiz: %w", err)
	}

	_, err = s.redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.getQuizKey(q.ID), b, 0)
		p.ZAdd(ctx, s.getIndexKey(), redis.Z{
			Score:  float64(q.CreateTime.UnixMilli()),
			Member: q.ID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("insert quiz: %w", err)
	}

	return nil
}

func (s *RedisStore) List(ctx context.Context) ([]domain.QuizSummary, error) {
	ids, err := s.redis.ZRange(ctx, s.getIndexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list quiz ids: %w", err)
	}

	l := make([]domain.QuizSummary, 0, len(ids))
	if len(ids) == 0 {
		return l, nil
	}

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, s.getQuizKey(id))
	}

	vals, err := s.redis.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("get quizzes: %w", err)
	}

	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			// Indexed but missing, skip it.
			continue
		}

		var q domain.Quiz
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			return nil, fmt.Errorf("unmarshal quiz %s: %w", ids[i], err)
		}
		l = append(l, domain.QuizSummary{ID: q.ID, Title: q.Title})
	}

	return l, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*domain.Quiz, error) {
	raw, err := s.redis.Get(ctx, s.getQuizKey(id)).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return nil, errors.NotFound("quiz not found: id=%s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get quiz: %w", err)
	}

	var q domain.Quiz
	if err := json.Unmarshal(raw, &q); err != nil {
		return nil, fmt.Errorf("unmarshal quiz %s: %w", id, err)
	}

	return &q, nil
}

func (s *RedisStore) getQuizKey(id string) string {
	return fmt.Sprintf("%s:quiz:%s", s.prefix, id)
}

func (s *RedisStore) getIndexKey() string {
	return fmt.Sprintf("%s:quizzes", s.prefix)
}
