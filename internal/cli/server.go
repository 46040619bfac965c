package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"proctor-quiz-service/internal/app"
	"proctor-quiz-service/internal/config"
	"proctor-quiz-service/internal/infra/memory"
	"proctor-quiz-service/internal/infra/postgres"
	infraredis "proctor-quiz-service/internal/infra/redis"
	"proctor-quiz-service/internal/logger"
	"proctor-quiz-service/internal/metrics"
	transport "proctor-quiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

// backend is the storage wiring shared by start and import.
type backend struct {
	store       app.Store
	redisClient *redis.Client
	close       func()
}

func openBackend(ctx context.Context, cfg config.Config, log *zap.Logger) (*backend, error) {
	b := &backend{close: func() {}}

	if cfg.Redis.Addr != "" {
		b.redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := b.redisClient.Ping(ctx).Err(); err != nil {
			_ = b.redisClient.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
	}

	switch cfg.Store.Backend {
	case "", "memory":
		b.store = memory.NewStore()
	case "redis":
		if b.redisClient == nil {
			return nil, errors.New("store backend redis needs redis.addr")
		}
		b.store = infraredis.NewStore(b.redisClient, cfg.Store.Namespace)
	case "postgres":
		if err := runMigrations(ctx, cfg, log); err != nil {
			return nil, err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, err
		}
		b.store = postgres.NewStore(pool)
		b.close = pool.Close
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	if b.redisClient != nil {
		closeStore := b.close
		client := b.redisClient
		b.close = func() {
			closeStore()
			_ = client.Close()
		}
	}
	log.Info("store opened", zap.String("backend", cfg.Store.Backend), zap.Bool("redis", b.redisClient != nil))
	return b, nil
}

func sessionOptions(cfg config.Config) (app.Options, error) {
	opts := app.DefaultOptions()
	if cfg.Session.ViolationThreshold > 0 {
		opts.ViolationThreshold = cfg.Session.ViolationThreshold
	}
	policy, err := app.ParseTerminationPolicy(cfg.Session.TerminationPolicy)
	if err != nil {
		return opts, fmt.Errorf("session.termination_policy: %w", err)
	}
	opts.TerminationPolicy = policy
	opts.TickInterval = config.TTLDuration(cfg.Session.TickInterval, time.Second)
	return opts, nil
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	opts, err := sessionOptions(cfg)
	if err != nil {
		return err
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	metrics.Init()

	b, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.close()

	catalog := app.NewCatalog(b.store)
	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var (
		quizRepo app.QuizRepository
		sessions app.SessionRegistry
	)
	if b.redisClient != nil {
		quizRepo = infraredis.NewQuizRepository(b.redisClient, catalog, quizTTL)
		sessions = infraredis.NewSessionStore(b.redisClient, redisTTL)
	} else {
		quizRepo = memory.NewQuizRepository(catalog, quizTTL)
		sessions = memory.NewSessionStore()
	}

	service := app.NewSessionService(b.store, quizRepo, sessions, log, opts)
	router := transport.NewRouter(transport.Deps{
		Catalog:   catalog,
		Authoring: app.NewAuthoring(b.store, catalog, log),
		Review:    app.NewReview(b.store, log),
		Accounts:  app.NewAccounts(b.store, cfg.Accounts.Builtin, log),
		Sessions:  service,
		WS:        transport.NewWSHandler(service, log),
		Log:       log,
	})

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
	}

	go func() {
		log.Info("starting quiz service", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.Info("shutting down")
	return server.Shutdown(shutdownCtx)
}
