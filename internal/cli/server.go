package cli

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"quiz-results-service/internal/app"
	"quiz-results-service/internal/config"
	"quiz-results-service/internal/domain"
	"quiz-results-service/internal/infra/memory"
	"quiz-results-service/internal/infra/postgres"
	redisinfra "quiz-results-service/internal/infra/redis"
	"quiz-results-service/internal/telemetry"
	transport "quiz-results-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz results server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *goredis.Client
	if cfg.Redis.Addr != "" {
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	recorder := telemetry.NewRecorder(cfg.Telemetry.Buffer)
	defer recorder.Close()

	var (
		quizzes    app.QuizRecorder
		aggregates app.AggregateStore
		lbStore    app.LeaderboardStore
		snapshots  transport.SnapshotSource
	)
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
		db := bun.NewDB(sqldb, pgdialect.New())
		defer db.Close()

		store := postgres.NewStore(db, pool)
		quizzes, aggregates, lbStore, snapshots = store, store, store, store
	} else {
		store := seededMemoryStore()
		quizzes, aggregates, lbStore, snapshots = store, store, store, store
	}

	verifier, err := buildVerifier(cfg, redisClient)
	if err != nil {
		return err
	}

	engine := app.NewLeaderboardEngine(lbStore)
	service := app.NewResultService(verifier, quizzes, aggregates, engine).WithTelemetry(recorder)

	if redisClient != nil {
		cacheTTL := config.TTLDuration(cfg.Leaderboard.CacheTTL, time.Minute)
		cache := redisinfra.NewLeaderboardCache(redisClient, snapshots, cacheTTL)
		service = service.WithSnapshotCache(cache)
		snapshots = cache
	}

	handler := transport.NewHandler(service, snapshots, engine)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	handler.Register(mux)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting quiz results service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// buildVerifier picks the credential verifier. The demo token map only
// backs memory-mode runs: against a real database it would hand out real
// user identities, so postgres without redis is a configuration error.
func buildVerifier(cfg config.Config, redisClient *goredis.Client) (app.TokenVerifier, error) {
	if redisClient != nil {
		return redisinfra.NewTokenVerifier(redisClient), nil
	}
	if cfg.Postgres.URL != "" {
		return nil, fmt.Errorf("redis must be configured for token verification when postgres is enabled")
	}
	log.Printf("warning: no redis configured, falling back to built-in demo tokens")
	return memory.NewStaticTokenVerifier(map[string]int64{
		"token-alice": 1,
		"token-bob":   2,
	}), nil
}

// seededMemoryStore provides demo users and a small question catalog; swap
// in postgres for production.
func seededMemoryStore() *memory.Store {
	store := memory.NewStore()
	now := time.Now()
	store.AddUser(domain.User{ID: 1, DisplayName: "Alice", CreatedAt: now})
	store.AddUser(domain.User{ID: 2, DisplayName: "Bob", CreatedAt: now})
	store.AddQuestions(1, 2, 3, 4, 5)
	return store
}
