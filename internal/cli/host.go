package cli

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"peerquiz/internal/app"
	"peerquiz/internal/config"
	"peerquiz/internal/domain"
	"peerquiz/internal/infra/memory"
	pgloader "peerquiz/internal/infra/postgres"
	redisinfra "peerquiz/internal/infra/redis"
	"peerquiz/internal/protocol"
	"peerquiz/internal/transport/ws"
)

// NewHostCmd builds the CLI subcommand that hosts a game.
func NewHostCmd(configPath, bind *string) *cobra.Command {
	var (
		name         string
		setID        string
		difficulty   string
		allowUnready bool
	)
	cmd := &cobra.Command{
		Use:   "host",
		Short: "Host a multiplayer quiz game",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHost(cmd.Context(), *configPath, *bind, name, setID, domain.Difficulty(difficulty), allowUnready)
		},
	}
	cmd.Flags().StringVar(&name, "name", "host", "display name")
	cmd.Flags().StringVar(&setID, "questions", "general", "question set id")
	cmd.Flags().StringVar(&difficulty, "difficulty", string(domain.DifficultyMedium), "easy, medium or hard")
	cmd.Flags().BoolVar(&allowUnready, "allow-unready", false, "allow starting with not-ready participants")
	return cmd
}

func runHost(ctx context.Context, configPath, bind, name, setID string, difficulty domain.Difficulty, allowUnready bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if !difficulty.Valid() {
		return fmt.Errorf("unknown difficulty %q", difficulty)
	}
	if cfg.Server.Bind != "" {
		bind = cfg.Server.Bind
	}

	questions, scores, cleanup, err := buildStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	transport := ws.NewTransport(bind, ws.StaticResolver(""))
	service := app.NewHostService(app.HostConfig{
		LocalName:     name,
		QuestionSetID: setID,
		Difficulty:    difficulty,
		Rules:         cfg.Rules(),
		AllowUnready:  allowUnready,
		Heartbeat:     cfg.Heartbeat(),
		PeerTimeout:   cfg.PeerTimeout(),
	}, transport, app.NewScheduler(), questions, scores, consoleLobby{}, consoleSession{})
	defer service.Close()

	code, err := service.Start(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("hosting on %s, join code: %s\n", bind, code)
	fmt.Println(`type "start" to begin, or your answer once a question is up`)

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			switch {
			case line == "":
			case strings.EqualFold(line, "start"):
				if err := service.StartGame(); err != nil {
					fmt.Printf("cannot start: %v\n", err)
				}
			default:
				service.SubmitAnswer(line)
			}
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-stop:
		log.Println("shutting down host...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down host...")
	}
	return nil
}

// buildStores assembles the question repository and high-score store from
// config: postgres-backed when configured, redis-cached when available, and
// a bundled sample set otherwise.
func buildStores(ctx context.Context, cfg config.Config) (app.QuestionRepository, app.HighScoreStore, func(), error) {
	cleanup := func() {}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var loader memory.QuestionLoader = memory.NewStaticLoader(sampleQuestionSets())
	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		var err error
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, nil, cleanup, err
		}
		cleanup = pool.Close
		loader = pgloader.NewQuestionLoader(pool)
	}

	ttl := config.Duration(cfg.Questions.TTL, 10*time.Minute)
	var questions app.QuestionRepository
	if redisClient != nil {
		questions = redisinfra.NewQuestionRepository(redisClient, loader, ttl)
	} else {
		questions = memory.NewQuestionRepository(loader, ttl)
	}

	return questions, scoreStore(cfg, pool, redisClient), cleanup, nil
}

// scoreStore picks the high-score backend: postgres when connected, redis
// when available, in-memory otherwise.
func scoreStore(cfg config.Config, pool *pgxpool.Pool, rdb *redis.Client) app.HighScoreStore {
	switch {
	case pool != nil:
		return pgloader.NewHighScoreStore(pool, cfg.HighScores.Limit)
	case rdb != nil:
		return redisinfra.NewHighScoreStore(rdb, cfg.HighScores.Limit)
	default:
		return memory.NewHighScoreStore(cfg.HighScores.Limit)
	}
}

// sampleQuestionSets provides minimal content for runs without a database.
func sampleQuestionSets() map[string]domain.QuestionSet {
	return map[string]domain.QuestionSet{
		"general": {
			ID:    "general",
			Label: "General Knowledge",
			Questions: []domain.Question{
				{
					Prompt:  "What is the capital of France?",
					Answers: []string{"Paris", "Lyon", "Marseille", "Nice"},
					Correct: "Paris",
				},
				{
					Prompt:  "How many continents are there?",
					Answers: []string{"5", "6", "7", "8"},
					Correct: "7",
				},
				{
					Prompt:  "Which planet is known as the red planet?",
					Answers: []string{"Venus", "Mars", "Jupiter", "Mercury"},
					Correct: "Mars",
				},
			},
		},
	}
}

type consoleLobby struct{}

func (consoleLobby) HandleRosterChanged(roster map[string]domain.RosterEntry) {
	fmt.Println("lobby:")
	for id, entry := range roster {
		ready := " "
		if entry.IsReady {
			ready = "x"
		}
		fmt.Printf("  [%s] %s (%s)\n", ready, entry.Name, id)
	}
}

func (consoleLobby) HandleGameStarting(map[string]domain.RosterEntry) {
	fmt.Println("game starting")
}

type consoleSession struct{}

func (consoleSession) HandleQuestionPresented(q protocol.QuestionNew) {
	fmt.Printf("question %d/%d: %s\n", q.QuestionIndex+1, q.TotalQuestions, q.Prompt)
	for _, a := range q.Answers {
		fmt.Printf("  - %s\n", a)
	}
}

func (consoleSession) HandleRoundFinalized(r protocol.RoundResult) {
	fmt.Printf("round %d over, correct answer: %s\n", r.QuestionIndex+1, r.CorrectAnswer)
}

func (consoleSession) HandleWaitingForFinishers(n int) {
	fmt.Printf("waiting for %d player(s) to finish...\n", n)
}

func (consoleSession) HandleGameOver(g protocol.GameOver) {
	fmt.Printf("game over, winner: %s\n", g.Winner)
	for i, s := range g.Standings {
		fmt.Printf("  %d. %s: %d\n", i+1, s.Name, s.Score)
	}
}
