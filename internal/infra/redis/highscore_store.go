package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"peerquiz/internal/domain"
)

// HighScoreStore keeps one sorted set per (game label, difficulty) board in
// Redis, trimmed to the configured size. AddScore reports whether the entry
// made the board.
type HighScoreStore struct {
	client *redis.Client
	limit  int
}

func NewHighScoreStore(client *redis.Client, limit int) *HighScoreStore {
	if limit <= 0 {
		limit = 10
	}
	return &HighScoreStore{client: client, limit: limit}
}

func (s *HighScoreStore) AddScore(ctx context.Context, score domain.HighScore) (bool, error) {
	key := s.key(score.GameLabel, score.Difficulty)
	member := fmt.Sprintf("%s@%d", score.PlayerName, score.At.UnixNano())

	if err := s.client.ZAdd(ctx, key, redis.Z{
		Score:  float64(score.Score),
		Member: member,
	}).Err(); err != nil {
		return false, fmt.Errorf("highscore zadd: %w", err)
	}

	rank, err := s.client.ZRevRank(ctx, key, member).Result()
	if err != nil {
		return false, fmt.Errorf("highscore rank: %w", err)
	}

	// Trim everything below the board size.
	if err := s.client.ZRemRangeByRank(ctx, key, 0, int64(-s.limit-1)).Err(); err != nil {
		return false, fmt.Errorf("highscore trim: %w", err)
	}
	return rank < int64(s.limit), nil
}

// Board returns the top entries of one leaderboard, best first.
func (s *HighScoreStore) Board(ctx context.Context, gameLabel string, difficulty domain.Difficulty) ([]string, error) {
	return s.client.ZRevRange(ctx, s.key(gameLabel, difficulty), 0, int64(s.limit-1)).Result()
}

func (s *HighScoreStore) key(gameLabel string, difficulty domain.Difficulty) string {
	return "highscores:" + gameLabel + ":" + string(difficulty)
}
