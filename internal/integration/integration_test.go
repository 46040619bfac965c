package integration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
	"go.uber.org/zap"

	"proctor-quiz-service/internal/app"
	"proctor-quiz-service/internal/domain"
	"proctor-quiz-service/internal/infra/postgres"
	pgmigrations "proctor-quiz-service/internal/infra/postgres/migrations"
	infraredis "proctor-quiz-service/internal/infra/redis"
)

func TestQuizAttemptEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	migrateSchema(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	log := zap.NewNop()
	store := postgres.NewStore(pool)
	catalog := app.NewCatalog(store)
	authoring := app.NewAuthoring(store, catalog, log)

	draft := app.NewDraft()
	draft.Title = "Arithmetic"
	if err := draft.SetQuestionText(0, 0, "What is 2 + 2?"); err != nil {
		t.Fatalf("edit draft: %v", err)
	}
	if err := draft.SetOption(0, 0, 0, "3"); err != nil {
		t.Fatalf("edit draft: %v", err)
	}
	if _, err := draft.AddOption(0, 0); err != nil {
		t.Fatalf("edit draft: %v", err)
	}
	if err := draft.SetOption(0, 0, 1, "4"); err != nil {
		t.Fatalf("edit draft: %v", err)
	}
	if err := draft.SetCorrect(0, 0, 1); err != nil {
		t.Fatalf("edit draft: %v", err)
	}
	quiz, err := authoring.Publish(ctx, draft)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	quizRepo := infraredis.NewQuizRepository(redisClient, catalog, 5*time.Minute)
	sessions := infraredis.NewSessionStore(redisClient, 5*time.Minute)
	service := app.NewSessionService(store, quizRepo, sessions, log, app.DefaultOptions())

	session, err := service.Start(ctx, quiz.ID, "u1", "Alice")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	key := app.SessionKey{StudentID: "u1", QuizID: quiz.ID}
	if id, ok, err := sessions.LiveSessionID(ctx, key); err != nil || !ok || id != session.ID() {
		t.Fatalf("expected live marker %s, got %s ok=%v err=%v", session.ID(), id, ok, err)
	}

	questionID := quiz.Pages[0].Questions[0].ID
	if err := session.RecordAnswer(ctx, questionID, domain.IndexAnswer(1)); err != nil {
		t.Fatalf("record answer: %v", err)
	}
	result, err := session.Submit(ctx, app.ReasonManual, false)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.Score != 100 {
		t.Fatalf("expected score 100, got %d", result.Score)
	}
	if _, ok, err := sessions.LiveSessionID(ctx, key); err != nil || ok {
		t.Fatalf("expected live marker cleared, ok=%v err=%v", ok, err)
	}

	results, err := app.NewReview(store, log).Results(ctx, app.ResultFilter{QuizID: quiz.ID})
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	if len(results) != 1 || results[0].ScoreReleased {
		t.Fatalf("expected one unreleased result, got %+v", results)
	}
	if _, err := service.Start(ctx, quiz.ID, "u1", "Alice"); !errors.Is(err, domain.ErrAlreadyAttempted) {
		t.Fatalf("expected already attempted, got %v", err)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

// migrateSchema runs the bun migrations twice; the second run must be a no-op.
func migrateSchema(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	group, err := migrator.Migrate(ctx)
	if err != nil {
		t.Fatalf("migrate again: %v", err)
	}
	if !group.IsZero() {
		t.Fatalf("expected nothing left to migrate, got %s", group)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
