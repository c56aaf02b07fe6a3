package redis

import (
	"context"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"peerquiz/internal/domain"
)

func TestHighScoreStoreQualification(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	store := NewHighScoreStore(newClient(mr), 2)
	ctx := context.Background()

	qualified, err := store.AddScore(ctx, highScore("Alice", 50, 1))
	if err != nil {
		t.Fatalf("add score: %v", err)
	}
	if !qualified {
		t.Fatal("expected Alice to qualify on an empty board")
	}

	if q, _ := store.AddScore(ctx, highScore("Bob", 70, 2)); !q {
		t.Fatal("expected Bob to qualify")
	}
	if q, _ := store.AddScore(ctx, highScore("Carol", 30, 3)); q {
		t.Fatal("Carol should not qualify on a full board")
	}

	board, err := store.Board(ctx, "General Knowledge", domain.DifficultyMedium)
	if err != nil {
		t.Fatalf("board: %v", err)
	}
	if len(board) != 2 {
		t.Fatalf("expected the board trimmed to 2, got %d", len(board))
	}
	if !strings.HasPrefix(board[0], "Bob@") || !strings.HasPrefix(board[1], "Alice@") {
		t.Fatalf("unexpected board order: %v", board)
	}
}

func TestHighScoreStoreSeparatesBoards(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	store := NewHighScoreStore(newClient(mr), 10)
	ctx := context.Background()

	hard := highScore("Alice", 50, 1)
	hard.Difficulty = domain.DifficultyHard
	if _, err := store.AddScore(ctx, hard); err != nil {
		t.Fatalf("add hard score: %v", err)
	}
	if _, err := store.AddScore(ctx, highScore("Bob", 40, 2)); err != nil {
		t.Fatalf("add medium score: %v", err)
	}

	hardBoard, err := store.Board(ctx, "General Knowledge", domain.DifficultyHard)
	if err != nil {
		t.Fatalf("hard board: %v", err)
	}
	mediumBoard, err := store.Board(ctx, "General Knowledge", domain.DifficultyMedium)
	if err != nil {
		t.Fatalf("medium board: %v", err)
	}
	if len(hardBoard) != 1 || len(mediumBoard) != 1 {
		t.Fatalf("expected one entry per board, got %d and %d", len(hardBoard), len(mediumBoard))
	}
}

func highScore(name string, score int, at int64) domain.HighScore {
	return domain.HighScore{
		PlayerName: name,
		Score:      score,
		GameLabel:  "General Knowledge",
		Mode:       "multiplayer",
		Difficulty: domain.DifficultyMedium,
		At:         time.Unix(at, 0),
	}
}
