package game

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jonboulle/clockwork"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/errors"
	"github.com/victornm/livequiz/internal/event"
	"github.com/victornm/livequiz/internal/score"
	"github.com/victornm/livequiz/internal/telemetry"
)

// Broadcaster delivers engine events to connections. Implementations must not
// block, and must deliver the events of one game code in call order.
type Broadcaster interface {
	// Subscribe adds a connection to the room of a game.
	Subscribe(code, connID string)
	// Unsubscribe removes a connection from the room of a game.
	Unsubscribe(code, connID string)
	// Publish sends an event to every connection in the room of a game.
	Publish(code string, e event.Event)
	// Send sends an event to a single connection.
	Send(connID string, e event.Event)
	// Close drops the room of a game.
	Close(code string)
}

// QuizGetter loads quiz definitions for new games.
type QuizGetter interface {
	Get(ctx context.Context, id string) (*domain.Quiz, error)
}

type Config struct {
	Registry    *Registry
	Broadcaster Broadcaster
	Quizzes     QuizGetter
	EventBus    *event.Bus
	Clock       clockwork.Clock
	Score       *score.Calculator
}

// Engine is the game session state machine. Every command locks the target
// session for its whole duration and emits its events before unlocking.
type Engine struct {
	reg   *Registry
	bc    Broadcaster
	qz    QuizGetter
	eb    *event.Bus
	clock clockwork.Clock
	score *score.Calculator
}

func NewEngine(c Config) *Engine {
	e := &Engine{
		reg:   c.Registry,
		bc:    c.Broadcaster,
		qz:    c.Quizzes,
		eb:    c.EventBus,
		clock: c.Clock,
		score: c.Score,
	}

	if e.reg == nil {
		e.reg = NewRegistry()
	}
	if e.eb == nil {
		e.eb = event.NewBus()
	}
	if e.clock == nil {
		e.clock = clockwork.NewRealClock()
	}
	if e.score == nil {
		e.score = score.NewCalculator(score.DefaultBasePoints, score.DefaultRoundDuration)
	}

	return e
}

func (e *Engine) Registry() *Registry {
	return e.reg
}

type CreateGameRequest struct {
	HostID    string
	QuizID    string
	QuizTitle string
	Questions []domain.Question
}

// CreateGame registers a new lobby session owned by the host and confirms the code to the host.
func (e *Engine) CreateGame(ctx context.Context, req CreateGameRequest) (string, error) {
	if len(req.Questions) == 0 {
		return "", errors.InvalidArgument("a game needs at least one question")
	}

	s, err := e.reg.Create(req.HostID, req.QuizTitle, req.Questions, e.clock.Now())
	if err != nil {
		return "", fmt.Errorf("create game: %w", err)
	}

	e.bc.Subscribe(s.code, req.HostID)
	e.bc.Send(req.HostID, domain.EventGameCreated{GameCode: s.code, QuizID: req.QuizID})

	slog.InfoContext(ctx, "game: session created",
		"code", s.code,
		"host", req.HostID,
		"quiz", req.QuizTitle,
		"questions", len(req.Questions),
	)

	return s.code, nil
}

// CreateGameFromQuiz loads the quiz from the repository, then creates the game.
// Nothing is created when the repository call fails.
func (e *Engine) CreateGameFromQuiz(ctx context.Context, hostID, quizID string) (string, error) {
	q, err := e.qz.Get(ctx, quizID)
	if err != nil {
		return "", fmt.Errorf("load quiz %s: %w", quizID, err)
	}

	return e.CreateGame(ctx, CreateGameRequest{
		HostID:    hostID,
		QuizID:    q.ID,
		QuizTitle: q.Title,
		Questions: q.Questions,
	})
}

type JoinGameRequest struct {
	GameCode   string
	ConnID     string
	PlayerName string
	// Token is an optional client-held identity that survives reconnects.
	Token string
}

// JoinGame adds the caller to the roster and broadcasts the full roster.
// A second join from the same connection only re-sends the roster to it; a join
// carrying the token of a known player rebinds that player to the new connection.
func (e *Engine) JoinGame(ctx context.Context, req JoinGameRequest) error {
	name := strings.TrimSpace(req.PlayerName)
	if name == "" {
		return errors.InvalidArgument("player name is required")
	}

	s, unlock, err := e.lock(req.GameCode)
	if err != nil {
		return err
	}
	defer unlock()

	if s.phase == domain.PhaseGameOver {
		return errors.FailedPrecondition("game is over: code=%s", s.code)
	}

	if s.playerIndex(req.ConnID) >= 0 {
		e.bc.Send(req.ConnID, domain.EventPlayerJoined{Players: s.roster()})
		return nil
	}

	if i := s.playerIndexByToken(req.Token); i >= 0 {
		old := s.players[i].ID
		s.players[i].ID = req.ConnID
		s.players[i].Name = name
		s.players[i].Connected = true
		if _, ok := s.answered[old]; ok {
			delete(s.answered, old)
			s.answered[req.ConnID] = struct{}{}
		}

		e.bc.Unsubscribe(s.code, old)

		slog.InfoContext(ctx, "game: player reconnected", "code", s.code, "player", req.ConnID, "previous", old)
	} else {
		s.players = append(s.players, domain.NewPlayer(req.ConnID, name, req.Token))

		slog.InfoContext(ctx, "game: player joined", "code", s.code, "player", req.ConnID, "name", name)
	}

	e.bc.Subscribe(s.code, req.ConnID)
	e.bc.Publish(s.code, domain.EventPlayerJoined{Players: s.roster()})
	return nil
}

// HostRejoin rebinds the host to the calling connection and sends it the roster.
func (e *Engine) HostRejoin(ctx context.Context, code, connID string) error {
	s, unlock, err := e.lock(code)
	if err != nil {
		return err
	}
	defer unlock()

	slog.InfoContext(ctx, "game: host rejoined", "code", code, "host", connID, "previous", s.hostID)

	if s.hostID != connID && s.playerIndex(s.hostID) < 0 {
		e.bc.Unsubscribe(code, s.hostID)
	}
	s.hostID = connID
	e.bc.Subscribe(code, connID)
	e.bc.Send(connID, domain.EventPlayerJoined{Players: s.roster()})
	return nil
}

// StartGame moves a lobby to the first question.
func (e *Engine) StartGame(ctx context.Context, code, callerID string) error {
	s, unlock, err := e.lock(code)
	if err != nil {
		return err
	}
	defer unlock()

	if s.hostID != callerID {
		return errors.PermissionDenied("only the host can start the game: code=%s", code)
	}
	if s.phase != domain.PhaseLobby {
		return errors.FailedPrecondition("game already started: code=%s phase=%s", code, s.phase)
	}

	slog.InfoContext(ctx, "game: started", "code", code, "players", len(s.players))

	e.startQuestion(s, 0)
	return nil
}

type SubmitAnswerRequest struct {
	GameCode string
	PlayerID string
	Answer   string
}

// SubmitAnswer records the first answer of a player for the current question.
// The round ends early once every connected player has answered.
func (e *Engine) SubmitAnswer(ctx context.Context, req SubmitAnswerRequest) error {
	s, unlock, err := e.lock(req.GameCode)
	if err != nil {
		return err
	}
	defer unlock()

	if s.phase != domain.PhaseQuestionActive {
		return errors.FailedPrecondition("no question is open: code=%s phase=%s", s.code, s.phase)
	}

	q, ok := s.currentQuestion()
	if !ok {
		return errors.FailedPrecondition("no current question: code=%s", s.code)
	}

	i := s.playerIndex(req.PlayerID)
	if i < 0 {
		return errors.NotFound("player not in game: code=%s player=%s", s.code, req.PlayerID)
	}
	if _, done := s.answered[req.PlayerID]; done {
		return errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("answer is already submitted: code=%s player=%s question=%d", s.code, req.PlayerID, s.index))
	}

	s.answered[req.PlayerID] = struct{}{}

	elapsed := e.clock.Since(s.startedAt)
	points := e.score.Points(req.Answer == q.CorrectAnswer, elapsed)
	s.players[i].Score += points

	slog.DebugContext(ctx, "game: answer submitted",
		"code", s.code,
		"player", req.PlayerID,
		"question", s.index,
		"elapsed", elapsed,
		"points", points,
	)

	if s.allAnswered() {
		e.endRound(ctx, s, domain.RoundEndAllAnswered)
	}

	return nil
}

// ExpireTimer ends the round armed for questionIndex with whatever answers were
// collected. A stale expiry for an earlier question or another phase is rejected.
func (e *Engine) ExpireTimer(ctx context.Context, code string, questionIndex int) error {
	s, unlock, err := e.lock(code)
	if err != nil {
		return err
	}
	defer unlock()

	if s.phase != domain.PhaseQuestionActive || s.index != questionIndex {
		return errors.FailedPrecondition("stale round timer: code=%s question=%d current=%d phase=%s",
			code, questionIndex, s.index, s.phase)
	}

	slog.InfoContext(ctx, "game: round timed out", "code", code, "question", questionIndex,
		"answered", len(s.answered), "players", len(s.players))

	e.endRound(ctx, s, domain.RoundEndTimeout)
	return nil
}

// AdvanceQuestion opens the next question, or ends the game after the last one.
func (e *Engine) AdvanceQuestion(ctx context.Context, code, callerID string) error {
	s, unlock, err := e.lock(code)
	if err != nil {
		return err
	}
	defer unlock()

	if s.hostID != callerID {
		return errors.PermissionDenied("only the host can advance the game: code=%s", code)
	}
	if s.phase == domain.PhaseLobby || s.phase == domain.PhaseGameOver {
		return errors.FailedPrecondition("cannot advance: code=%s phase=%s", code, s.phase)
	}

	s.cancelTimer()
	clear(s.answered)

	next := s.index + 1
	if next < len(s.questions) {
		e.startQuestion(s, next)
		return nil
	}

	s.index = len(s.questions)
	s.phase = domain.PhaseGameOver
	standings := s.standings()

	e.bc.Publish(code, domain.EventGameOver{Players: standings})
	e.eb.Publish(ctx, domain.EventGameFinished{
		GameCode:  code,
		QuizTitle: s.quizTitle,
		Standings: standings,
	})

	slog.InfoContext(ctx, "game: over", "code", code, "players", len(standings))
	return nil
}

// EndGame lets the host retire the session explicitly.
func (e *Engine) EndGame(ctx context.Context, code, callerID string) error {
	s, unlock, err := e.lock(code)
	if err != nil {
		return err
	}
	defer unlock()

	if s.hostID != callerID {
		return errors.PermissionDenied("only the host can end the game: code=%s", code)
	}

	e.retire(ctx, s, "ended by host")
	return nil
}

// Disconnect marks a player as offline; the player keeps its place and score.
// The open round ends when every remaining connected player has answered.
func (e *Engine) Disconnect(ctx context.Context, code, connID string) error {
	s, unlock, err := e.lock(code)
	if err != nil {
		return err
	}
	defer unlock()

	if connID == s.hostID {
		slog.InfoContext(ctx, "game: host disconnected", "code", code, "host", connID)
		return nil
	}

	i := s.playerIndex(connID)
	if i < 0 {
		return errors.NotFound("player not in game: code=%s player=%s", code, connID)
	}

	s.players[i].Connected = false
	e.bc.Publish(code, domain.EventPlayerJoined{Players: s.roster()})

	slog.InfoContext(ctx, "game: player disconnected", "code", code, "player", connID)

	if s.phase == domain.PhaseQuestionActive && s.allAnswered() {
		e.endRound(ctx, s, domain.RoundEndAllAnswered)
	}

	return nil
}

func (e *Engine) Snapshot(code string) (*domain.Snapshot, error) {
	s, err := e.reg.Get(code)
	if err != nil {
		return nil, err
	}

	ss := s.Snapshot()
	return &ss, nil
}

// lock looks the session up and acquires its lock. Commands against a retired
// session fail with NotFound. Every successful command refreshes the idle clock.
func (e *Engine) lock(code string) (*Session, func(), error) {
	s, err := e.reg.Get(code)
	if err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, nil, errors.NotFound("game not found: code=%s", code)
	}
	s.lastActive = e.clock.Now()

	return s, s.mu.Unlock, nil
}

// retire closes the session and drops it from the registry. The caller holds the session lock.
func (e *Engine) retire(ctx context.Context, s *Session, reason string) {
	s.closed = true
	s.cancelTimer()
	e.reg.drop(s)

	e.bc.Publish(s.code, domain.EventGameClosed{GameCode: s.code})
	e.bc.Close(s.code)

	slog.InfoContext(ctx, "game: session retired", "code", s.code, "reason", reason)
}

func (e *Engine) startQuestion(s *Session, index int) {
	s.index = index
	clear(s.answered)
	s.startedAt = e.clock.Now()
	s.phase = domain.PhaseQuestionActive
	e.armTimer(s)

	q := s.questions[index]
	e.bc.Publish(s.code, domain.EventQuestionStarted{
		Question:      q.Prompt,
		Options:       q.Options,
		QuestionIndex: index,
		QuestionCount: len(s.questions),
		TimeLimit:     e.score.RoundDuration().Seconds(),
	})
}

// armTimer replaces any pending round timer of the session. The callback
// re-checks phase and question index under the session lock, so a timer that
// fires after being replaced is harmless.
func (e *Engine) armTimer(s *Session) {
	s.cancelTimer()

	code, index := s.code, s.index
	s.timer = e.clock.AfterFunc(e.score.RoundDuration(), func() {
		ctx := context.Background()
		if err := e.ExpireTimer(ctx, code, index); err != nil {
			slog.DebugContext(ctx, "game: round timer ignored", "code", code, "question", index, "error", err)
		}
	})
}

func (e *Engine) endRound(ctx context.Context, s *Session, reason domain.RoundEndReason) {
	s.cancelTimer()
	s.phase = domain.PhaseResults

	q, _ := s.currentQuestion()
	standings := s.standings()

	e.bc.Publish(s.code, domain.EventShowResults{
		CorrectAnswer: q.CorrectAnswer,
		Players:       standings,
	})
	e.eb.Publish(ctx, domain.EventRoundCompleted{
		GameCode:      s.code,
		QuestionIndex: s.index,
		Reason:        reason,
		Standings:     standings,
	})

	telemetry.RoundsCompleted.WithLabelValues(string(reason)).Inc()
}
