package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/errors"
	"github.com/victornm/livequiz/internal/game"
	"github.com/victornm/livequiz/internal/telemetry"
)

// Engine is the part of the game engine driven by websocket commands.
type Engine interface {
	CreateGameFromQuiz(ctx context.Context, hostID, quizID string) (string, error)
	JoinGame(ctx context.Context, req game.JoinGameRequest) error
	HostRejoin(ctx context.Context, code, connID string) error
	StartGame(ctx context.Context, code, callerID string) error
	SubmitAnswer(ctx context.Context, req game.SubmitAnswerRequest) error
	AdvanceQuestion(ctx context.Context, code, callerID string) error
	EndGame(ctx context.Context, code, callerID string) error
	Disconnect(ctx context.Context, code, connID string) error
}

// Quizzes is the quiz repository as seen by hosts.
type Quizzes interface {
	Save(ctx context.Context, q domain.Quiz) (string, error)
	List(ctx context.Context) ([]domain.QuizSummary, error)
}

type Config struct {
	Hub     *Hub
	Engine  Engine
	Quizzes Quizzes

	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
	SendBuffer     int
	CheckOrigin    func(r *http.Request) bool
}

func DefaultConfig() Config {
	return Config{
		WriteTimeout:   10 * time.Second,
		ReadTimeout:    60 * time.Second,
		PingInterval:   30 * time.Second,
		MaxMessageSize: 64 << 10,
		SendBuffer:     256,
	}
}

type handler func(ctx context.Context, c *Conn, data json.RawMessage) error

// Gateway upgrades HTTP requests to websocket connections and routes their
// commands to the engine and the quiz repository.
type Gateway struct {
	c        Config
	hub      *Hub
	engine   Engine
	quizzes  Quizzes
	upgrader websocket.Upgrader
	handlers map[string]handler
}

func New(c Config) *Gateway {
	d := DefaultConfig()
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.PingInterval <= 0 || c.PingInterval >= c.ReadTimeout {
		c.PingInterval = c.ReadTimeout * 9 / 10
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = d.MaxMessageSize
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = d.SendBuffer
	}

	g := &Gateway{
		c:       c,
		hub:     c.Hub,
		engine:  c.Engine,
		quizzes: c.Quizzes,
		upgrader: websocket.Upgrader{
			CheckOrigin: c.CheckOrigin,
		},
	}

	g.handlers = map[string]handler{
		CommandCreateQuiz:   g.createQuiz,
		CommandGetQuizzes:   g.getQuizzes,
		CommandCreateGame:   g.createGame,
		CommandStartGame:    g.startGame,
		CommandNextQuestion: g.nextQuestion,
		CommandRejoin:       g.rejoin,
		CommandEndGame:      g.endGame,
		CommandJoinGame:     g.joinGame,
		CommandSubmitAnswer: g.submitAnswer,
	}

	return g
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.WarnContext(r.Context(), "gateway: upgrade failed", "error", err)
		return
	}

	ctx := context.WithoutCancel(r.Context())
	c := newConn(uuid.NewString(), ws, g.c.SendBuffer)
	g.hub.register(c)
	telemetry.WSConnections.Inc()

	slog.InfoContext(ctx, "gateway: connection opened", "conn", c.id, "remote", r.RemoteAddr)

	go c.writePump(g.c)
	c.readPump(g.c, func(msg []byte) {
		g.dispatch(ctx, c, msg)
	})

	g.disconnect(ctx, c)
}

func (g *Gateway) disconnect(ctx context.Context, c *Conn) {
	c.close()
	telemetry.WSConnections.Dec()

	for _, code := range g.hub.unregister(c) {
		if err := g.engine.Disconnect(ctx, code, c.id); err != nil {
			slog.DebugContext(ctx, "gateway: disconnect ignored", "conn", c.id, "code", code, "error", err)
		}
	}

	slog.InfoContext(ctx, "gateway: connection closed", "conn", c.id)
}

func (g *Gateway) dispatch(ctx context.Context, c *Conn, msg []byte) {
	var in Envelope
	if err := json.Unmarshal(msg, &in); err != nil {
		slog.DebugContext(ctx, "gateway: malformed message", "conn", c.id, "error", err)
		telemetry.CommandsTotal.WithLabelValues("unknown", "malformed").Inc()
		return
	}

	h, ok := g.handlers[in.Event]
	if !ok {
		slog.DebugContext(ctx, "gateway: unknown command", "conn", c.id, "command", in.Event)
		telemetry.CommandsTotal.WithLabelValues("unknown", "unknown_command").Inc()
		return
	}

	err := h(ctx, c, in.Data)
	telemetry.CommandsTotal.WithLabelValues(in.Event, result(err)).Inc()
	if err == nil {
		return
	}

	if msg, ok := clientMessage(in.Event, err); ok {
		slog.WarnContext(ctx, "gateway: command failed", "conn", c.id, "command", in.Event, "error", err)
		g.hub.Send(c.id, domain.EventError{Message: msg})
		return
	}

	slog.DebugContext(ctx, "gateway: command dropped", "conn", c.id, "command", in.Event, "error", err)
}

func result(err error) string {
	if err == nil {
		return "ok"
	}

	return codeName(errors.Convert(err).Code)
}

func codeName(c errors.Code) string {
	switch c {
	case errors.CodeInvalidArgument:
		return "invalid_argument"
	case errors.CodeNotFound:
		return "not_found"
	case errors.CodeAlreadyExists:
		return "already_exists"
	case errors.CodePermissionDenied:
		return "permission_denied"
	case errors.CodeFailedPrecondition:
		return "failed_precondition"
	case errors.CodeResourceExhausted:
		return "resource_exhausted"
	case errors.CodeUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

// clientMessage returns the error text sent back to the caller. Only host
// commands that talk to the quiz repository and failed joins are answered;
// every other failure is dropped.
func clientMessage(command string, err error) (string, bool) {
	switch command {
	case CommandCreateQuiz:
		if errors.Is(err, errors.CodeInvalidArgument) {
			return errors.Convert(err).Message, true
		}
		return "Failed to save quiz.", true
	case CommandGetQuizzes:
		return "Failed to load quizzes.", true
	case CommandCreateGame:
		if errors.Is(err, errors.CodeNotFound) || errors.Is(err, errors.CodeInvalidArgument) {
			return "Selected quiz not found.", true
		}
		return "Could not create game.", true
	case CommandJoinGame:
		if errors.Is(err, errors.CodeNotFound) {
			return "Game not found.", true
		}
		if errors.Is(err, errors.CodeInvalidArgument) {
			return errors.Convert(err).Message, true
		}
	}

	return "", false
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("malformed payload"),
			errors.WithCause(err))
	}

	return nil
}

func (g *Gateway) createQuiz(ctx context.Context, c *Conn, data json.RawMessage) error {
	var p createQuizPayload
	if err := decode(data, &p); err != nil {
		return err
	}

	id, err := g.quizzes.Save(ctx, domain.Quiz{Title: p.Title, Questions: p.Questions})
	if err != nil {
		return fmt.Errorf("save quiz: %w", err)
	}

	g.hub.Send(c.id, domain.EventQuizSaved{ID: id, Title: p.Title})
	return nil
}

func (g *Gateway) getQuizzes(ctx context.Context, c *Conn, _ json.RawMessage) error {
	l, err := g.quizzes.List(ctx)
	if err != nil {
		return fmt.Errorf("list quizzes: %w", err)
	}

	g.hub.Send(c.id, domain.EventQuizzesList(l))
	return nil
}

func (g *Gateway) createGame(ctx context.Context, c *Conn, data json.RawMessage) error {
	var p createGamePayload
	if err := decode(data, &p); err != nil {
		return err
	}

	_, err := g.engine.CreateGameFromQuiz(ctx, c.id, p.QuizID)
	return err
}

func (g *Gateway) startGame(ctx context.Context, c *Conn, data json.RawMessage) error {
	var p gameCodePayload
	if err := decode(data, &p); err != nil {
		return err
	}

	return g.engine.StartGame(ctx, p.GameCode, c.id)
}

func (g *Gateway) nextQuestion(ctx context.Context, c *Conn, data json.RawMessage) error {
	var p gameCodePayload
	if err := decode(data, &p); err != nil {
		return err
	}

	return g.engine.AdvanceQuestion(ctx, p.GameCode, c.id)
}

func (g *Gateway) rejoin(ctx context.Context, c *Conn, data json.RawMessage) error {
	var p gameCodePayload
	if err := decode(data, &p); err != nil {
		return err
	}

	return g.engine.HostRejoin(ctx, p.GameCode, c.id)
}

func (g *Gateway) endGame(ctx context.Context, c *Conn, data json.RawMessage) error {
	var p gameCodePayload
	if err := decode(data, &p); err != nil {
		return err
	}

	return g.engine.EndGame(ctx, p.GameCode, c.id)
}

func (g *Gateway) joinGame(ctx context.Context, c *Conn, data json.RawMessage) error {
	var p joinGamePayload
	if err := decode(data, &p); err != nil {
		return err
	}

	return g.engine.JoinGame(ctx, game.JoinGameRequest{
		GameCode:   p.GameCode,
		ConnID:     c.id,
		PlayerName: p.PlayerName,
		Token:      p.PlayerToken,
	})
}

func (g *Gateway) submitAnswer(ctx context.Context, c *Conn, data json.RawMessage) error {
	var p submitAnswerPayload
	if err := decode(data, &p); err != nil {
		return err
	}

	return g.engine.SubmitAnswer(ctx, game.SubmitAnswerRequest{
		GameCode: p.GameCode,
		PlayerID: c.id,
		Answer:   p.Answer,
	})
}
