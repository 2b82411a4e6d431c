package integration

import (
	"context"
	"database/sql"
	"encoding/json"
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

	"trivia-room-service/internal/app"
	"trivia-room-service/internal/domain"
	pgloader "trivia-room-service/internal/infra/postgres"
	pgmigrations "trivia-room-service/internal/infra/postgres/migrations"
	infraredis "trivia-room-service/internal/infra/redis"
)

func TestRoomRoundEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	seedBank(t, ctx, pgURL, sampleBank())

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}

	loader := pgloader.NewBankLoader(pool)
	banks := infraredis.NewBankRepository(redisClient, loader, 5*time.Minute)
	store := infraredis.NewRoomStore(redisClient, time.Hour)
	service := app.NewRoomService(store, banks, "bank-1")

	room, err := service.GetOrCreate(ctx, "ABCDE")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	host, err := room.Attach(ctx, domain.RoleHost, "")
	if err != nil {
		t.Fatalf("host attach: %v", err)
	}
	player, err := room.Attach(ctx, domain.RolePlayer, "Alice")
	if err != nil {
		t.Fatalf("player attach: %v", err)
	}

	if err := room.SetPhase(ctx, host, string(domain.PhaseAnswersOpen)); err != nil {
		t.Fatalf("open answers: %v", err)
	}
	if err := room.SubmitAnswer(ctx, player, 1); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if err := room.SetPhase(ctx, host, string(domain.PhaseReveal)); err != nil {
		t.Fatalf("reveal: %v", err)
	}

	state := room.State()
	if len(state.Players) != 1 || state.Players[0].Score != 1000 {
		t.Fatalf("expected Alice at 1000, got %+v", state.Players)
	}

	// A fresh service against the same redis sees the same truth.
	restarted := app.NewRoomService(infraredis.NewRoomStore(redisClient, time.Hour), banks, "bank-1")
	revived, err := restarted.GetOrCreate(ctx, "ABCDE")
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	restored := revived.State()
	if restored.Phase != domain.PhaseReveal {
		t.Fatalf("expected restored phase REVEAL, got %s", restored.Phase)
	}
	if len(restored.Players) != 1 || restored.Players[0].Score != 1000 {
		t.Fatalf("expected restored score, got %+v", restored.Players)
	}
	if restored.Counts != [4]int{0, 1, 0, 0} {
		t.Fatalf("expected restored counts, got %v", restored.Counts)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "trivia", "POSTGRES_PASSWORD": "triviapass", "POSTGRES_DB": "triviadb"},
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
	dsn := fmt.Sprintf("postgres://trivia:triviapass@%s:%s/triviadb?sslmode=disable", host, port.Port())
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

func seedBank(t *testing.T, ctx context.Context, dsn string, bank domain.QuestionBank) {
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

	data, err := json.Marshal(bank)
	if err != nil {
		t.Fatalf("marshal bank: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO question_banks (id, data) VALUES (? , ?::jsonb) ON CONFLICT (id) DO UPDATE SET data=EXCLUDED.data`, bank.ID, string(data)); err != nil {
		t.Fatalf("insert bank: %v", err)
	}
}

func sampleBank() domain.QuestionBank {
	return domain.QuestionBank{
		ID:    "bank-1",
		Title: "Integration",
		Questions: []domain.BankQuestion{
			{
				ID:           "q1",
				Prompt:       "What is 2 + 2?",
				Choices:      []string{"3", "4", "5", "22"},
				CorrectIndex: 1,
			},
			{
				ID:           "q2",
				Prompt:       "Which planet is closest to the sun?",
				Choices:      []string{"Venus", "Earth", "Mercury", "Mars"},
				CorrectIndex: 2,
			},
		},
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
