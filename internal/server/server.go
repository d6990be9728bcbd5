package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/victornm/livequiz/internal/api"
	"github.com/victornm/livequiz/internal/event"
	"github.com/victornm/livequiz/internal/game"
	"github.com/victornm/livequiz/internal/gateway"
	"github.com/victornm/livequiz/internal/leaderboard"
	"github.com/victornm/livequiz/internal/quiz"
	"github.com/victornm/livequiz/internal/score"
	"github.com/victornm/livequiz/internal/telemetry"
)

const (
	QuizStoreMemory   = "memory"
	QuizStoreRedis    = "redis"
	QuizStorePostgres = "postgres"
)

type RedisConfig struct {
	Addrs  []string
	Pass   string
	Prefix string
}

type PostgresConfig struct {
	Addr string
	User string
	Pass string
	Name string
}

type Config struct {
	HTTP struct {
		Port int32
	}

	GRPC struct {
		Port int32
	}

	// PublicURL is where players open the game client.
	PublicURL string

	Log telemetry.LogConfig

	Game struct {
		RoundDuration  time.Duration
		BasePoints     int
		SessionTimeout time.Duration
		ReapInterval   time.Duration
	}

	WebSocket struct {
		WriteTimeout   time.Duration
		ReadTimeout    time.Duration
		PingInterval   time.Duration
		MaxMessageSize int64
		SendBuffer     int
	}

	CORS struct {
		AllowedOrigins []string
	}

	Quiz struct {
		Store string
	}

	Redis struct {
		Leaderboard struct {
			RedisConfig `mapstructure:",squash"`
			TTL         time.Duration
		}

		Pubsub RedisConfig
		Quiz   RedisConfig
	}

	Postgres struct {
		Quiz PostgresConfig
	}
}

// DefaultConfig returns the values used for every key missing from the config file.
func DefaultConfig() Config {
	var c Config
	c.HTTP.Port = 8080
	c.GRPC.Port = 9090
	c.PublicURL = "http://localhost:8080"
	c.Log = telemetry.LogConfig{Level: "info", Format: "tint"}

	c.Game.RoundDuration = score.DefaultRoundDuration
	c.Game.BasePoints = score.DefaultBasePoints
	c.Game.SessionTimeout = 2 * time.Hour
	c.Game.ReapInterval = time.Minute

	ws := gateway.DefaultConfig()
	c.WebSocket.WriteTimeout = ws.WriteTimeout
	c.WebSocket.ReadTimeout = ws.ReadTimeout
	c.WebSocket.PingInterval = ws.PingInterval
	c.WebSocket.MaxMessageSize = ws.MaxMessageSize
	c.WebSocket.SendBuffer = ws.SendBuffer

	c.CORS.AllowedOrigins = []string{"*"}
	c.Quiz.Store = QuizStoreMemory

	c.Redis.Leaderboard.Prefix = "livequiz"
	c.Redis.Leaderboard.TTL = 24 * time.Hour
	c.Redis.Pubsub.Prefix = "livequiz"
	c.Redis.Quiz.Prefix = "livequiz"

	return c
}

type Server struct {
	c Config

	eb    *event.Bus
	clock clockwork.Clock

	infra struct {
		redis struct {
			leaderboard redis.UniversalClient
			pubsub      redis.UniversalClient
			quiz        redis.UniversalClient
		}

		postgres struct {
			quiz *pgxpool.Pool
		}
	}

	service struct {
		quiz        *quiz.Service
		engine      *game.Engine
		leaderboard *leaderboard.Service
	}

	hub    *gateway.Hub
	health *health.Server
	reaper context.CancelFunc

	http *http.Server
	grpc *grpc.Server
}

func Init(c Config) (*Server, error) {
	s := &Server{
		c:     c,
		clock: clockwork.NewRealClock(),
	}

	s.eb = event.NewBus()

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	if err := s.initService(); err != nil {
		return nil, fmt.Errorf("server: init service: %w", err)
	}

	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := s.initPostgres(); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	return nil
}

func (s *Server) initRedis() error {
	connect := func(role string, rc RedisConfig) (redis.UniversalClient, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		r := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    rc.Addrs,
			Password: rc.Pass,
		})

		if err := telemetry.MonitorRedis(r, role); err != nil {
			return nil, err
		}

		if err := r.Ping(ctx).Err(); err != nil {
			return nil, err
		}

		return r, nil
	}

	var err error
	s.infra.redis.leaderboard, err = connect("leaderboard", s.c.Redis.Leaderboard.RedisConfig)
	if err != nil {
		return fmt.Errorf("leaderboard: %w", err)
	}

	s.infra.redis.pubsub, err = connect("pubsub", s.c.Redis.Pubsub)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}

	if s.c.Quiz.Store == QuizStoreRedis {
		s.infra.redis.quiz, err = connect("quiz", s.c.Redis.Quiz)
		if err != nil {
			return fmt.Errorf("quiz: %w", err)
		}
	}

	return nil
}

func (s *Server) initPostgres() (err error) {
	if s.c.Quiz.Store != QuizStorePostgres {
		return nil
	}

	connect := func(pc PostgresConfig) (*pgxpool.Pool, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		cc, err := pgxpool.ParseConfig(fmt.Sprintf("postgres://%s:%s@%s/%s", pc.User, pc.Pass, pc.Addr, pc.Name))
		if err != nil {
			return nil, err
		}

		db, err := pgxpool.NewWithConfig(ctx, cc)
		if err != nil {
			return nil, err
		}

		if err := db.Ping(ctx); err != nil {
			return nil, err
		}

		return db, nil
	}

	s.infra.postgres.quiz, err = connect(s.c.Postgres.Quiz)
	if err != nil {
		return fmt.Errorf("quiz: %w", err)
	}

	return nil
}

func (s *Server) quizStore() (quiz.Store, error) {
	switch s.c.Quiz.Store {
	case "", QuizStoreMemory:
		return quiz.NewMemoryStore(), nil

	case QuizStoreRedis:
		return quiz.NewRedisStore(s.infra.redis.quiz, s.c.Redis.Quiz.Prefix), nil

	case QuizStorePostgres:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		st := quiz.NewPostgresStore(s.infra.postgres.quiz)
		if err := st.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return st, nil

	default:
		return nil, fmt.Errorf("unknown quiz store %q", s.c.Quiz.Store)
	}
}

func (s *Server) initService() error {
	st, err := s.quizStore()
	if err != nil {
		return fmt.Errorf("quiz store: %w", err)
	}

	s.service.quiz = quiz.NewService(quiz.Config{
		Store: st,
	})

	s.hub = gateway.NewHub()

	s.service.engine = game.NewEngine(game.Config{
		Broadcaster: s.hub,
		Quizzes:     s.service.quiz,
		EventBus:    s.eb,
		Clock:       s.clock,
		Score:       score.NewCalculator(s.c.Game.BasePoints, s.c.Game.RoundDuration),
	})

	s.service.leaderboard = leaderboard.NewService(leaderboard.Config{
		EventBus: s.eb,
		Redis:    s.infra.redis.leaderboard,
		Prefix:   s.c.Redis.Leaderboard.Prefix,
		TTL:      s.c.Redis.Leaderboard.TTL,
	})

	return nil
}

func (s *Server) initAPI() {
	e := gin.New()
	e.Use(gin.Recovery())
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"sessions": s.service.engine.Registry().Len(),
		})
	})

	e.GET("/ws", gin.WrapH(gateway.New(gateway.Config{
		Hub:            s.hub,
		Engine:         s.service.engine,
		Quizzes:        s.service.quiz,
		WriteTimeout:   s.c.WebSocket.WriteTimeout,
		ReadTimeout:    s.c.WebSocket.ReadTimeout,
		PingInterval:   s.c.WebSocket.PingInterval,
		MaxMessageSize: s.c.WebSocket.MaxMessageSize,
		SendBuffer:     s.c.WebSocket.SendBuffer,
		CheckOrigin:    s.checkOrigin,
	})))

	api.New(api.Config{
		Router:       e,
		EventBus:     s.eb,
		Quizzes:      s.service.quiz,
		Games:        s.service.engine,
		Leaderboard:  s.service.leaderboard,
		Redis:        s.infra.redis.pubsub,
		PubsubPrefix: s.c.Redis.Pubsub.Prefix,
		PublicURL:    s.c.PublicURL,
	})

	cc := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: s.c.CORS.AllowedOrigins,
		AllowedHeaders: []string{"*"},
	})

	s.grpc = grpc.NewServer(telemetry.GRPCServerOptions()...)
	s.health = health.NewServer()
	healthpb.RegisterHealthServer(s.grpc, s.health)

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           cc.Handler(e),
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	for _, o := range s.c.CORS.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}

	return false
}

func (s *Server) Start() {
	ctx := context.TODO()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.c.GRPC.Port))
	if err != nil {
		slog.ErrorContext(ctx, "grpc server: listen failed", "error", err)
		panic(err)
	}

	reaperCtx, cancel := context.WithCancel(ctx)
	s.reaper = cancel
	go s.service.engine.RunReaper(reaperCtx, s.c.Game.ReapInterval, s.c.Game.SessionTimeout)

	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: gRPC listening on port %d", s.c.GRPC.Port))
		return s.grpc.Serve(lis)
	})

	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	err = eg.Wait()
	if err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.health.Shutdown()
	if s.reaper != nil {
		s.reaper()
	}

	s.grpc.GracefulStop()
	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}
	s.hub.CloseAll()

	s.eb.Stop()

	for _, r := range []redis.UniversalClient{s.infra.redis.leaderboard, s.infra.redis.pubsub, s.infra.redis.quiz} {
		if r != nil {
			_ = r.Close()
		}
	}
	if s.infra.postgres.quiz != nil {
		s.infra.postgres.quiz.Close()
	}

	slog.InfoContext(ctx, "server: shutdown completed")
}
