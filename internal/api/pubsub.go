package api

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/victornm/livequiz/internal/domain"
)

const maxConcurrent = 100

type (
	Notification struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}

	GameResult struct {
		GameCode  string           `json:"gameCode"`
		QuizTitle string           `json:"quizTitle"`
		Rank      int              `json:"rank"`
		Standings []StandingResult `json:"standings"`
	}

	StandingResult struct {
		PlayerID string `json:"playerId"`
		Name     string `json:"name"`
		Score    int    `json:"score"`
	}
)

// PublishGameFinished sends every player of a finished game its final rank
// together with the full standings.
func (a *API) PublishGameFinished(ctx context.Context, e domain.EventGameFinished) error {
	standings := make([]StandingResult, 0, len(e.Standings))
	for _, p := range e.Standings {
		standings = append(standings, StandingResult{
			PlayerID: p.ID,
			Name:     p.Name,
			Score:    p.Score,
		})
	}

	var eg errgroup.Group
	eg.SetLimit(maxConcurrent)

	for i, p := range e.Standings {
		data := GameResult{
			GameCode:  e.GameCode,
			QuizTitle: e.QuizTitle,
			Rank:      i + 1,
			Standings: standings,
		}

		eg.Go(func() error {
			return a.publishNotification(ctx, e.GameCode, p.ID, e.Name(), data)
		})
	}

	return eg.Wait()
}

func (a *API) publishNotification(ctx context.Context, code, player, event string, data any) error {
	n := Notification{
		Event: event,
		Data:  data,
	}

	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", event, err)
	}

	return a.redis.Publish(ctx, a.PlayerChannel(code, player), b).Err()
}

// PlayerChannel is the redis channel carrying notifications for one player of a game.
func (a *API) PlayerChannel(code, player string) string {
	return fmt.Sprintf("%s:game:%s:player:%s", a.prefix, code, player)
}
