package domain

// Events delivered to game rooms and single connections.
const (
	EventNameQuizSaved       = "quiz_saved"
	EventNameQuizzesList     = "quizzes_list"
	EventNameGameCreated     = "game_created"
	EventNameError           = "error"
	EventNamePlayerJoined    = "player_joined"
	EventNameQuestionStarted = "question_started"
	EventNameShowResults     = "show_results"
	EventNameGameOver        = "game_over"
	EventNameGameClosed      = "game_closed"
)

// Events published on the in-process bus.
const (
	EventNameRoundCompleted     = "round.completed"
	EventNameGameFinished       = "game.finished"
	EventNameLeaderboardUpdated = "leaderboard.updated"
)

type EventQuizSaved struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

func (EventQuizSaved) Name() string { return EventNameQuizSaved }

type EventQuizzesList []QuizSummary

func (EventQuizzesList) Name() string { return EventNameQuizzesList }

type EventGameCreated struct {
	GameCode string `json:"gameCode"`
	QuizID   string `json:"quizId,omitempty"`
}

func (EventGameCreated) Name() string { return EventNameGameCreated }

type EventError struct {
	Message string `json:"message"`
}

func (EventError) Name() string { return EventNameError }

// EventPlayerJoined always carries the full roster so every member converges on the same view.
type EventPlayerJoined struct {
	Players []Player `json:"players"`
}

func (EventPlayerJoined) Name() string { return EventNamePlayerJoined }

// EventQuestionStarted never carries the correct answer.
type EventQuestionStarted struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	QuestionIndex int      `json:"questionIndex"`
	QuestionCount int      `json:"questionCount"`
	TimeLimit     float64  `json:"timeLimit"`
}

func (EventQuestionStarted) Name() string { return EventNameQuestionStarted }

type EventShowResults struct {
	CorrectAnswer string   `json:"correctAnswer"`
	Players       []Player `json:"players"`
}

func (EventShowResults) Name() string { return EventNameShowResults }

type EventGameOver struct {
	Players []Player `json:"players"`
}

func (EventGameOver) Name() string { return EventNameGameOver }

type EventGameClosed struct {
	GameCode string `json:"gameCode"`
}

func (EventGameClosed) Name() string { return EventNameGameClosed }

// RoundEndReason tells why a round left the question phase.
type RoundEndReason string

const (
	RoundEndAllAnswered RoundEndReason = "all_answered"
	RoundEndTimeout     RoundEndReason = "timeout"
)

type EventRoundCompleted struct {
	GameCode      string
	QuestionIndex int
	Reason        RoundEndReason
	Standings     []Player
}

func (EventRoundCompleted) Name() string { return EventNameRoundCompleted }

type EventGameFinished struct {
	GameCode  string
	QuizTitle string
	Standings []Player
}

func (EventGameFinished) Name() string { return EventNameGameFinished }

type EventLeaderboardUpdated struct {
	Leaderboard Leaderboard
}

func (EventLeaderboardUpdated) Name() string { return EventNameLeaderboardUpdated }
