package gateway_test

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/game"
	"github.com/victornm/livequiz/internal/gateway"
	"github.com/victornm/livequiz/internal/quiz"
)

type fixture struct {
	srv    *httptest.Server
	hub    *gateway.Hub
	engine *game.Engine
	clock  *clockwork.FakeClock
}

func makeFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		hub:   gateway.NewHub(),
		clock: clockwork.NewFakeClock(),
	}

	quizzes := quiz.NewService(quiz.Config{Store: quiz.NewMemoryStore()})
	f.engine = game.NewEngine(game.Config{
		Broadcaster: f.hub,
		Quizzes:     quizzes,
		Clock:       f.clock,
	})

	f.srv = httptest.NewServer(gateway.New(gateway.Config{
		Hub:     f.hub,
		Engine:  f.engine,
		Quizzes: quizzes,
	}))
	t.Cleanup(func() {
		f.hub.CloseAll()
		f.srv.Close()
	})

	return f
}

type client struct {
	t  *testing.T
	ws *websocket.Conn
}

func (f *fixture) dial(t *testing.T) *client {
	t.Helper()

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })

	return &client{t: t, ws: ws}
}

func (c *client) send(event string, data any) {
	c.t.Helper()

	b, err := json.Marshal(data)
	require.NoError(c.t, err)
	require.NoError(c.t, c.ws.WriteJSON(gateway.Envelope{Event: event, Data: b}))
}

func (c *client) expect(event string, v any) {
	c.t.Helper()

	require.NoError(c.t, c.ws.SetReadDeadline(time.Now().Add(2*time.Second)))

	var in gateway.Envelope
	require.NoError(c.t, c.ws.ReadJSON(&in))
	require.Equal(c.t, event, in.Event, "unexpected event, data: %s", in.Data)

	if v != nil {
		require.NoError(c.t, json.Unmarshal(in.Data, v))
	}
}

func (c *client) expectNothing() {
	c.t.Helper()

	require.NoError(c.t, c.ws.SetReadDeadline(time.Now().Add(100*time.Millisecond)))

	var in gateway.Envelope
	err := c.ws.ReadJSON(&in)
	require.Error(c.t, err, "unexpected event %s", in.Event)
}

var sampleQuiz = map[string]any{
	"title": "Space",
	"questions": []map[string]any{
		{"question": "Largest planet?", "options": []string{"Mars", "Jupiter"}, "correctAnswer": "Jupiter"},
	},
}

func TestGateway_FullGame(t *testing.T) {
	f := makeFixture(t)
	host := f.dial(t)

	host.send(gateway.CommandCreateQuiz, sampleQuiz)
	var saved domain.EventQuizSaved
	host.expect(domain.EventNameQuizSaved, &saved)
	assert.Equal(t, "Space", saved.Title)

	host.send(gateway.CommandGetQuizzes, nil)
	var list []domain.QuizSummary
	host.expect(domain.EventNameQuizzesList, &list)
	require.Equal(t, []domain.QuizSummary{{ID: saved.ID, Title: "Space"}}, list)

	host.send(gateway.CommandCreateGame, map[string]string{"quizId": saved.ID})
	var created domain.EventGameCreated
	host.expect(domain.EventNameGameCreated, &created)
	assert.Equal(t, saved.ID, created.QuizID)
	require.Len(t, created.GameCode, 6)

	player := f.dial(t)
	player.send(gateway.CommandJoinGame, map[string]string{"gameCode": created.GameCode, "playerName": "Alice"})

	var joined domain.EventPlayerJoined
	host.expect(domain.EventNamePlayerJoined, &joined)
	require.Len(t, joined.Players, 1)
	assert.Equal(t, "Alice", joined.Players[0].Name)
	player.expect(domain.EventNamePlayerJoined, nil)

	// Only the host may start. The repeated join answers the player alone once
	// the start attempt has been handled.
	player.send(gateway.CommandStartGame, map[string]string{"gameCode": created.GameCode})
	player.send(gateway.CommandJoinGame, map[string]string{"gameCode": created.GameCode, "playerName": "Alice"})
	player.expect(domain.EventNamePlayerJoined, nil)

	ss, err := f.engine.Snapshot(created.GameCode)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseLobby, ss.Phase)

	host.send(gateway.CommandStartGame, map[string]string{"gameCode": created.GameCode})
	var started map[string]any
	player.expect(domain.EventNameQuestionStarted, &started)
	assert.Equal(t, "Largest planet?", started["question"])
	assert.NotContains(t, started, "correctAnswer")
	host.expect(domain.EventNameQuestionStarted, nil)

	player.send(gateway.CommandSubmitAnswer, map[string]string{"gameCode": created.GameCode, "answer": "Jupiter"})

	var results domain.EventShowResults
	host.expect(domain.EventNameShowResults, &results)
	assert.Equal(t, "Jupiter", results.CorrectAnswer)
	require.Len(t, results.Players, 1)
	assert.Equal(t, 1000, results.Players[0].Score)
	player.expect(domain.EventNameShowResults, nil)

	host.send(gateway.CommandNextQuestion, map[string]string{"gameCode": created.GameCode})
	var over domain.EventGameOver
	player.expect(domain.EventNameGameOver, &over)
	require.Len(t, over.Players, 1)
	assert.Equal(t, 1000, over.Players[0].Score)
	host.expect(domain.EventNameGameOver, nil)

	host.send(gateway.CommandEndGame, map[string]string{"gameCode": created.GameCode})
	host.expect(domain.EventNameGameClosed, nil)
	player.expect(domain.EventNameGameClosed, nil)
}

func TestGateway_Errors(t *testing.T) {
	tests := map[string]struct {
		command string
		data    any
		message string
	}{
		"join unknown game": {
			command: gateway.CommandJoinGame,
			data:    map[string]string{"gameCode": "000000", "playerName": "Bob"},
			message: "Game not found.",
		},
		"join with a blank name": {
			command: gateway.CommandJoinGame,
			data:    map[string]string{"gameCode": "000000", "playerName": "  "},
			message: "player name is required",
		},
		"create game from unknown quiz": {
			command: gateway.CommandCreateGame,
			data:    map[string]string{"quizId": "missing"},
			message: "Selected quiz not found.",
		},
		"create invalid quiz": {
			command: gateway.CommandCreateQuiz,
			data:    map[string]any{"title": "Empty"},
			message: `quiz "Empty" has no questions`,
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			f := makeFixture(t)
			c := f.dial(t)

			c.send(tt.command, tt.data)

			var e domain.EventError
			c.expect(domain.EventNameError, &e)
			assert.Equal(t, tt.message, e.Message)
		})
	}
}

func TestGateway_DroppedCommands(t *testing.T) {
	f := makeFixture(t)
	c := f.dial(t)

	require.NoError(t, c.ws.WriteMessage(websocket.TextMessage, []byte("not json")))
	c.send("player:dance", nil)
	c.send(gateway.CommandSubmitAnswer, map[string]string{"gameCode": "000000", "answer": "x"})
	c.send(gateway.CommandNextQuestion, map[string]string{"gameCode": "000000"})

	c.expectNothing()
}

func TestGateway_Disconnect(t *testing.T) {
	f := makeFixture(t)
	host := f.dial(t)

	host.send(gateway.CommandCreateQuiz, sampleQuiz)
	var saved domain.EventQuizSaved
	host.expect(domain.EventNameQuizSaved, &saved)

	host.send(gateway.CommandCreateGame, map[string]string{"quizId": saved.ID})
	var created domain.EventGameCreated
	host.expect(domain.EventNameGameCreated, &created)

	player := f.dial(t)
	player.send(gateway.CommandJoinGame, map[string]string{"gameCode": created.GameCode, "playerName": "Alice"})
	host.expect(domain.EventNamePlayerJoined, nil)
	player.expect(domain.EventNamePlayerJoined, nil)

	require.NoError(t, player.ws.Close())

	var roster domain.EventPlayerJoined
	host.expect(domain.EventNamePlayerJoined, &roster)
	require.Len(t, roster.Players, 1)
	assert.False(t, roster.Players[0].Connected)

	require.Eventually(t, func() bool {
		return f.hub.Members(created.GameCode) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestGateway_ReconnectWithToken(t *testing.T) {
	f := makeFixture(t)
	host := f.dial(t)

	host.send(gateway.CommandCreateQuiz, sampleQuiz)
	var saved domain.EventQuizSaved
	host.expect(domain.EventNameQuizSaved, &saved)

	host.send(gateway.CommandCreateGame, map[string]string{"quizId": saved.ID})
	var created domain.EventGameCreated
	host.expect(domain.EventNameGameCreated, &created)

	join := map[string]string{"gameCode": created.GameCode, "playerName": "Alice", "playerToken": "tok-a"}

	old := f.dial(t)
	old.send(gateway.CommandJoinGame, join)
	host.expect(domain.EventNamePlayerJoined, nil)
	old.expect(domain.EventNamePlayerJoined, nil)

	fresh := f.dial(t)
	fresh.send(gateway.CommandJoinGame, join)
	var roster domain.EventPlayerJoined
	host.expect(domain.EventNamePlayerJoined, &roster)
	require.Len(t, roster.Players, 1)
	fresh.expect(domain.EventNamePlayerJoined, nil)

	assert.Equal(t, 2, f.hub.Members(created.GameCode), "only the host and the new connection stay in the room")

	host.send(gateway.CommandStartGame, map[string]string{"gameCode": created.GameCode})
	fresh.expect(domain.EventNameQuestionStarted, nil)
	old.expectNothing()
}

func TestGateway_RoundTimeout(t *testing.T) {
	f := makeFixture(t)
	host := f.dial(t)

	host.send(gateway.CommandCreateQuiz, sampleQuiz)
	var saved domain.EventQuizSaved
	host.expect(domain.EventNameQuizSaved, &saved)

	host.send(gateway.CommandCreateGame, map[string]string{"quizId": saved.ID})
	var created domain.EventGameCreated
	host.expect(domain.EventNameGameCreated, &created)

	player := f.dial(t)
	player.send(gateway.CommandJoinGame, map[string]string{"gameCode": created.GameCode, "playerName": "Alice"})
	host.expect(domain.EventNamePlayerJoined, nil)

	host.send(gateway.CommandStartGame, map[string]string{"gameCode": created.GameCode})
	host.expect(domain.EventNameQuestionStarted, nil)

	f.clock.Advance(20 * time.Second)

	var results domain.EventShowResults
	host.expect(domain.EventNameShowResults, &results)
	assert.Equal(t, 0, results.Players[0].Score)
}
