package leaderboard

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/errors"
	"github.com/victornm/livequiz/internal/event"
)

const (
	publishInterval = 200 * time.Millisecond
	defaultTTL      = 24 * time.Hour
)

type Config struct {
	EventBus *event.Bus
	Redis    redis.UniversalClient
	Prefix   string

	// TTL bounds how long a finished game's leaderboard stays readable.
	TTL time.Duration
}

// Service mirrors game standings into redis so they can be read after the
// session is gone, and announces changes on the event bus.
type Service struct {
	eb     *event.Bus
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewService(c Config) *Service {
	s := &Service{
		eb:     c.EventBus,
		redis:  c.Redis,
		prefix: c.Prefix,
		ttl:    c.TTL,
	}
	if s.ttl <= 0 {
		s.ttl = defaultTTL
	}

	s.eb.Subscribe(domain.EventNameRoundCompleted, func(ctx context.Context, e event.Event) error {
		rc := e.(domain.EventRoundCompleted)
		return s.UpdateLeaderboard(ctx, UpdateLeaderboardRequest{
			GameCode:  rc.GameCode,
			Standings: rc.Standings,
		})
	})
	s.eb.Subscribe(domain.EventNameGameFinished, func(ctx context.Context, e event.Event) error {
		gf := e.(domain.EventGameFinished)
		return s.UpdateLeaderboard(ctx, UpdateLeaderboardRequest{
			GameCode:  gf.GameCode,
			Standings: gf.Standings,
			Final:     true,
		})
	})

	return s
}

type GetLeaderboardRequest struct {
	GameCode string
}

// GetLeaderboard returns the stored standings of a game, highest score first.
func (s *Service) GetLeaderboard(ctx context.Context, req GetLeaderboardRequest) (*domain.Leaderboard, error) {
	res, err := s.redis.ZRevRangeWithScores(ctx, s.getLeaderboardKey(req.GameCode), 0, -1).Result()
	if err != nil {
		return nil, errors.Unavailable(err, "get leaderboard: game=%s", req.GameCode)
	}

	if len(res) == 0 {
		return nil, errors.NotFound("leaderboard not found: game=%s", req.GameCode)
	}

	ids := make([]string, 0, len(res))
	for _, z := range res {
		ids = append(ids, z.Member.(string))
	}

	names, err := s.redis.HMGet(ctx, s.getNamesKey(req.GameCode), ids...).Result()
	if err != nil {
		return nil, errors.Unavailable(err, "get player names: game=%s", req.GameCode)
	}

	entries := make([]domain.LeaderboardEntry, 0, len(res))
	for i, z := range res {
		name, _ := names[i].(string)
		entries = append(entries, domain.LeaderboardEntry{
			PlayerID: ids[i],
			Name:     name,
			Score:    z.Score,
		})
	}

	return &domain.Leaderboard{
		GameCode: req.GameCode,
		Entries:  entries,
	}, nil
}

type UpdateLeaderboardRequest struct {
	GameCode  string
	Standings []domain.Player

	// Final publishes the leaderboard regardless of the publish interval.
	Final bool
}

// UpdateLeaderboard overwrites the scores of every player in the standings.
func (s *Service) UpdateLeaderboard(ctx context.Context, req UpdateLeaderboardRequest) error {
	if len(req.Standings) == 0 {
		return nil
	}

	zs := make([]redis.Z, 0, len(req.Standings))
	names := make(map[string]any, len(req.Standings))
	for _, p := range req.Standings {
		zs = append(zs, redis.Z{Score: float64(p.Score), Member: p.ID})
		names[p.ID] = p.Name
	}

	lk, nk := s.getLeaderboardKey(req.GameCode), s.getNamesKey(req.GameCode)
	if _, err := s.redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZAdd(ctx, lk, zs...)
		p.HSet(ctx, nk, names)
		p.Expire(ctx, lk, s.ttl)
		p.Expire(ctx, nk, s.ttl)
		return nil
	}); err != nil {
		return fmt.Errorf("update leaderboard: %w", err)
	}

	if req.Final {
		return s.publishLeaderboard(ctx, req.GameCode)
	}

	return s.schedulePublishLeaderboard(ctx, req.GameCode)
}

// schedulePublishLeaderboard publishes at most once per interval per game.
// The redis key lets several instances share the same interval.
func (s *Service) schedulePublishLeaderboard(ctx context.Context, code string) error {
	ok, err := s.redis.SetNX(ctx, s.getLeaderboardTimeKey(code), time.Now().UnixMilli(), publishInterval).Result()
	if err != nil {
		return fmt.Errorf("setnx: %w", err)
	}

	if !ok {
		return nil
	}

	return s.publishLeaderboard(ctx, code)
}

func (s *Service) publishLeaderboard(ctx context.Context, code string) error {
	l, err := s.GetLeaderboard(ctx, GetLeaderboardRequest{
		GameCode: code,
	})
	if err != nil {
		return fmt.Errorf("get leaderboard failed: game=%s: %w", code, err)
	}

	s.eb.Publish(ctx, domain.EventLeaderboardUpdated{
		Leaderboard: *l,
	})

	return nil
}

func (s *Service) getLeaderboardKey(code string) string {
	return fmt.Sprintf("%s:game:%s:leaderboard", s.prefix, code)
}

func (s *Service) getNamesKey(code string) string {
	return fmt.Sprintf("%s:game:%s:names", s.prefix, code)
}

func (s *Service) getLeaderboardTimeKey(code string) string {
	return fmt.Sprintf("%s:game:%s:time", s.prefix, code)
}
