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

	"github.com/spf13/cobra"

	"peerquiz/internal/app"
	"peerquiz/internal/config"
	"peerquiz/internal/domain"
	"peerquiz/internal/infra/memory"
	"peerquiz/internal/protocol"
	"peerquiz/internal/transport/ws"
)

// NewJoinCmd builds the CLI subcommand that joins a hosted game.
func NewJoinCmd(configPath *string) *cobra.Command {
	var (
		name string
		code string
		addr string
	)
	cmd := &cobra.Command{
		Use:   "join",
		Short: "Join a hosted quiz game",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJoin(cmd.Context(), *configPath, name, code, addr)
		},
	}
	cmd.Flags().StringVar(&name, "name", "player", "display name")
	cmd.Flags().StringVar(&code, "code", "", "host join code")
	cmd.Flags().StringVar(&addr, "addr", "localhost:7777", "host address")
	_ = cmd.MarkFlagRequired("code")
	return cmd
}

func runJoin(ctx context.Context, configPath, name, code, addr string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	transport := ws.NewTransport("", ws.StaticResolver(addr))
	service := app.NewClientService(app.ClientConfig{
		LocalName:   name,
		HostCode:    code,
		Rules:       cfg.Rules(),
		Heartbeat:   cfg.Heartbeat(),
		PeerTimeout: cfg.PeerTimeout(),
	}, transport, app.NewScheduler(), memory.NewHighScoreStore(cfg.HighScores.Limit), consoleNotices{}, consoleClient{})
	defer service.Close()

	if err := service.Connect(ctx); err != nil {
		return err
	}
	fmt.Printf("connected to %s as %s\n", code, name)
	fmt.Println(`type "ready" when set, or your answer once a question is up`)

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			switch {
			case line == "":
			case strings.EqualFold(line, "ready"):
				service.Ready()
			default:
				service.SubmitAnswer(line)
			}
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-stop:
		log.Println("leaving game...")
	case <-ctx.Done():
		log.Println("context canceled, leaving game...")
	}
	return nil
}

type consoleNotices struct{}

func (consoleNotices) HandleRosterChanged(roster map[string]domain.RosterEntry) {
	fmt.Println("lobby:")
	for id, entry := range roster {
		ready := " "
		if entry.IsReady {
			ready = "x"
		}
		fmt.Printf("  [%s] %s (%s)\n", ready, entry.Name, id)
	}
}

func (consoleNotices) HandleFeedback(message, level string) {
	fmt.Printf("[%s] %s\n", level, message)
}

func (consoleNotices) HandleHostLost(reason domain.DisconnectReason) {
	fmt.Printf("lost connection to host (%s)\n", reason)
}

type consoleClient struct{}

func (consoleClient) HandleQuestionPresented(q protocol.QuestionNew) {
	fmt.Printf("question %d/%d: %s\n", q.QuestionIndex+1, q.TotalQuestions, q.Prompt)
	for _, a := range q.Answers {
		fmt.Printf("  - %s\n", a)
	}
}

func (consoleClient) HandleAnswerRecorded(delta int) {
	fmt.Printf("answer recorded (+%d provisional)\n", delta)
}

func (consoleClient) HandleRoundResult(r protocol.RoundResult) {
	fmt.Printf("round %d over, correct answer: %s\n", r.QuestionIndex+1, r.CorrectAnswer)
}

func (consoleClient) HandleGameOver(g protocol.GameOver) {
	fmt.Printf("game over, winner: %s\n", g.Winner)
	for i, s := range g.Standings {
		fmt.Printf("  %d. %s: %d\n", i+1, s.Name, s.Score)
	}
}
