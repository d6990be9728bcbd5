package gateway

import (
	"encoding/json"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/event"
)

// Inbound commands.
const (
	CommandCreateQuiz   = "host:create_quiz"
	CommandGetQuizzes   = "host:get_quizzes"
	CommandCreateGame   = "host:create_game"
	CommandStartGame    = "host:start_game"
	CommandNextQuestion = "host:next_question"
	CommandRejoin       = "host:rejoin"
	CommandEndGame      = "host:end_game"
	CommandJoinGame     = "player:join_game"
	CommandSubmitAnswer = "player:submit_answer"
)

// Envelope is the frame of every websocket message, in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

func encode(e event.Event) ([]byte, error) {
	return json.Marshal(outbound{Event: e.Name(), Data: e})
}

type (
	createQuizPayload struct {
		Title     string            `json:"title"`
		Questions []domain.Question `json:"questions"`
	}

	createGamePayload struct {
		QuizID string `json:"quizId"`
	}

	gameCodePayload struct {
		GameCode string `json:"gameCode"`
	}

	joinGamePayload struct {
		GameCode    string `json:"gameCode"`
		PlayerName  string `json:"playerName"`
		PlayerToken string `json:"playerToken"`
	}

	submitAnswerPayload struct {
		GameCode string `json:"gameCode"`
		Answer   string `json:"answer"`
	}
)
