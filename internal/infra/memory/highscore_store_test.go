package memory

import (
	"context"
	"testing"
	"time"

	"peerquiz/internal/domain"
)

func TestHighScoreStoreKeepsTopN(t *testing.T) {
	store := NewHighScoreStore(2)
	ctx := context.Background()

	qualified, err := store.AddScore(ctx, entry("Alice", 50, 1))
	if err != nil || !qualified {
		t.Fatalf("expected Alice to qualify, got %v %v", qualified, err)
	}
	qualified, _ = store.AddScore(ctx, entry("Bob", 70, 2))
	if !qualified {
		t.Fatal("expected Bob to qualify")
	}
	qualified, _ = store.AddScore(ctx, entry("Carol", 30, 3))
	if qualified {
		t.Fatal("Carol should fall off a full board")
	}

	board := store.Board("General Knowledge", domain.DifficultyMedium)
	if len(board) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(board))
	}
	if board[0].PlayerName != "Bob" || board[1].PlayerName != "Alice" {
		t.Fatalf("unexpected order: %+v", board)
	}
}

func TestHighScoreStoreTieBreaksByTime(t *testing.T) {
	store := NewHighScoreStore(10)
	ctx := context.Background()

	_, _ = store.AddScore(ctx, entry("Late", 50, 5))
	_, _ = store.AddScore(ctx, entry("Early", 50, 1))

	board := store.Board("General Knowledge", domain.DifficultyMedium)
	if board[0].PlayerName != "Early" {
		t.Fatalf("expected the earlier score first, got %+v", board)
	}
}

func TestHighScoreStoreSeparatesBoards(t *testing.T) {
	store := NewHighScoreStore(10)
	ctx := context.Background()

	hard := entry("Alice", 50, 1)
	hard.Difficulty = domain.DifficultyHard
	_, _ = store.AddScore(ctx, hard)
	_, _ = store.AddScore(ctx, entry("Bob", 40, 2))

	if got := store.Board("General Knowledge", domain.DifficultyHard); len(got) != 1 {
		t.Fatalf("expected 1 hard entry, got %d", len(got))
	}
	if got := store.Board("General Knowledge", domain.DifficultyMedium); len(got) != 1 {
		t.Fatalf("expected 1 medium entry, got %d", len(got))
	}
}

func entry(name string, score int, at int64) domain.HighScore {
	return domain.HighScore{
		PlayerName: name,
		Score:      score,
		GameLabel:  "General Knowledge",
		Mode:       "multiplayer",
		Difficulty: domain.DifficultyMedium,
		At:         time.Unix(at, 0),
	}
}
