package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"peerquiz/internal/domain"
)

// HighScoreStore persists scores in the high_scores table. AddScore reports
// whether the entry ranks inside the board size.
type HighScoreStore struct {
	pool  *pgxpool.Pool
	limit int
}

func NewHighScoreStore(pool *pgxpool.Pool, limit int) *HighScoreStore {
	if limit <= 0 {
		limit = 10
	}
	return &HighScoreStore{pool: pool, limit: limit}
}

func (s *HighScoreStore) AddScore(ctx context.Context, score domain.HighScore) (bool, error) {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO high_scores (player_name, score, game_label, mode, difficulty, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		score.PlayerName, score.Score, score.GameLabel, score.Mode, string(score.Difficulty), score.At)
	if err != nil {
		return false, fmt.Errorf("insert high score: %w", err)
	}

	var above int
	err = s.pool.QueryRow(ctx,
		`SELECT count(*) FROM high_scores
		 WHERE game_label=$1 AND difficulty=$2 AND score > $3`,
		score.GameLabel, string(score.Difficulty), score.Score).Scan(&above)
	if err != nil {
		return false, fmt.Errorf("rank high score: %w", err)
	}
	return above < s.limit, nil
}
