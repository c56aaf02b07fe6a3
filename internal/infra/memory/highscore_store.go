package memory

import (
	"context"
	"sort"
	"sync"

	"peerquiz/internal/domain"
)

// HighScoreStore keeps the top N scores per (game label, difficulty) board
// in memory. AddScore reports whether the entry made the board.
type HighScoreStore struct {
	limit int

	mu     sync.Mutex
	boards map[string][]domain.HighScore
}

func NewHighScoreStore(limit int) *HighScoreStore {
	if limit <= 0 {
		limit = 10
	}
	return &HighScoreStore{
		limit:  limit,
		boards: make(map[string][]domain.HighScore),
	}
}

func (s *HighScoreStore) AddScore(_ context.Context, score domain.HighScore) (bool, error) {
	key := boardKey(score.GameLabel, score.Difficulty)

	s.mu.Lock()
	defer s.mu.Unlock()

	board := append(s.boards[key], score)
	sort.SliceStable(board, func(i, j int) bool {
		if board[i].Score != board[j].Score {
			return board[i].Score > board[j].Score
		}
		return board[i].At.Before(board[j].At)
	})
	if len(board) > s.limit {
		board = board[:s.limit]
	}
	s.boards[key] = board

	for _, entry := range board {
		if entry == score {
			return true, nil
		}
	}
	return false, nil
}

// Board returns a copy of one leaderboard, best first.
func (s *HighScoreStore) Board(gameLabel string, difficulty domain.Difficulty) []domain.HighScore {
	s.mu.Lock()
	defer s.mu.Unlock()
	board := s.boards[boardKey(gameLabel, difficulty)]
	out := make([]domain.HighScore, len(board))
	copy(out, board)
	return out
}

func boardKey(gameLabel string, difficulty domain.Difficulty) string {
	return gameLabel + ":" + string(difficulty)
}
