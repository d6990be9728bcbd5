package domain

import (
	"time"
)

// Phase is the stage of a game session's lifecycle.
type Phase string

const (
	PhaseLobby          Phase = "lobby"
	PhaseQuestionActive Phase = "question_active"
	PhaseResults        Phase = "results"
	PhaseGameOver       Phase = "game_over"
)

// Question is a single quiz question. It is immutable once loaded.
type Question struct {
	Prompt        string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correctAnswer"`
}

// Quiz is a stored quiz definition.
type Quiz struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Questions  []Question `json:"questions"`
	CreateTime time.Time  `json:"createTime"`
}

type QuizSummary struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Player is a participant of a game session. Identity is the connection ID
// unless the player joined with a token, in which case the token survives reconnects.
type Player struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Score     int    `json:"score"`
	Connected bool   `json:"connected"`

	token string
}

func NewPlayer(id, name, token string) Player {
	return Player{ID: id, Name: name, Connected: true, token: token}
}

func (p Player) Token() string { return p.token }

// Snapshot is a read-only view of a live session.
type Snapshot struct {
	GameCode      string   `json:"gameCode"`
	QuizTitle     string   `json:"quizTitle"`
	Phase         Phase    `json:"phase"`
	QuestionIndex int      `json:"questionIndex"`
	QuestionCount int      `json:"questionCount"`
	Players       []Player `json:"players"`
}

// Leaderboard represents a list of players and their scores within a game.
// The list is sorted by score in descending order.
type Leaderboard struct {
	GameCode string             `json:"gameCode"`
	Entries  []LeaderboardEntry `json:"entries"`
}

type LeaderboardEntry struct {
	PlayerID string  `json:"playerId"`
	Name     string  `json:"name"`
	Score    float64 `json:"score"`
}
