package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/skip2/go-qrcode"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/errors"
	"github.com/victornm/livequiz/internal/event"
	"github.com/victornm/livequiz/internal/leaderboard"
)

const qrSize = 320

type Config struct {
	Router       gin.IRouter
	EventBus     *event.Bus
	Quizzes      Quizzes
	Games        Games
	Leaderboard  Leaderboard
	Redis        Redis
	PubsubPrefix string

	// PublicURL is the address players open to join; it is encoded in join QR codes.
	PublicURL string
}

type Quizzes interface {
	Save(ctx context.Context, q domain.Quiz) (string, error)
	List(ctx context.Context) ([]domain.QuizSummary, error)
	Get(ctx context.Context, id string) (*domain.Quiz, error)
}

type Games interface {
	Snapshot(code string) (*domain.Snapshot, error)
}

type Leaderboard interface {
	GetLeaderboard(ctx context.Context, req leaderboard.GetLeaderboardRequest) (*domain.Leaderboard, error)
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type API struct {
	qz    Quizzes
	games Games
	ls    Leaderboard

	redis     Redis
	prefix    string
	publicURL string
}

func New(c Config) *API {
	a := &API{
		qz:        c.Quizzes,
		games:     c.Games,
		ls:        c.Leaderboard,
		redis:     c.Redis,
		prefix:    c.PubsubPrefix,
		publicURL: strings.TrimSuffix(c.PublicURL, "/"),
	}

	// HTTP APIs
	r := c.Router.Group("/api")
	r.POST("/quizzes", a.CreateQuiz)
	r.GET("/quizzes", a.ListQuizzes)
	r.GET("/quizzes/:id", a.GetQuiz)
	r.GET("/games/:code", a.GetGame)
	r.GET("/games/:code/leaderboard", a.GetLeaderboard)
	r.GET("/games/:code/qr.png", a.GetJoinQRCode)

	// Register event handlers
	if a.redis != nil {
		c.EventBus.Subscribe(domain.EventNameGameFinished, func(ctx context.Context, e event.Event) error {
			return a.PublishGameFinished(ctx, e.(domain.EventGameFinished))
		})
	}

	return a
}

type CreateQuizRequest struct {
	Title     string            `json:"title"`
	Questions []domain.Question `json:"questions"`
}

func (a *API) CreateQuiz(c *gin.Context) {
	var req CreateQuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("malformed quiz"),
			errors.WithCause(err)))
		return
	}

	id, err := a.qz.Save(c.Request.Context(), domain.Quiz{Title: req.Title, Questions: req.Questions})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, domain.QuizSummary{ID: id, Title: strings.TrimSpace(req.Title)})
}

func (a *API) ListQuizzes(c *gin.Context) {
	l, err := a.qz.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, l)
}

func (a *API) GetQuiz(c *gin.Context) {
	q, err := a.qz.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, q)
}

func (a *API) GetGame(c *gin.Context) {
	ss, err := a.games.Snapshot(c.Param("code"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, ss)
}

func (a *API) GetLeaderboard(c *gin.Context) {
	l, err := a.ls.GetLeaderboard(c.Request.Context(), leaderboard.GetLeaderboardRequest{
		GameCode: c.Param("code"),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, l)
}

// GetJoinQRCode renders a PNG QR code of the join URL of a live game.
func (a *API) GetJoinQRCode(c *gin.Context) {
	code := c.Param("code")
	if _, err := a.games.Snapshot(code); err != nil {
		writeError(c, err)
		return
	}

	png, err := qrcode.Encode(a.JoinURL(code), qrcode.Medium, qrSize)
	if err != nil {
		writeError(c, fmt.Errorf("encode qr code: %w", err))
		return
	}

	c.Data(http.StatusOK, "image/png", png)
}

func (a *API) JoinURL(code string) string {
	return a.publicURL + "/?code=" + url.QueryEscape(code)
}

func writeError(c *gin.Context, err error) {
	e := errors.Convert(err)
	if e.Code == errors.CodeInternal || e.Code == errors.CodeUnavailable {
		slog.ErrorContext(c.Request.Context(), "api: request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"error", err,
		)
	}

	c.JSON(e.HTTPStatusCode(), e)
}
