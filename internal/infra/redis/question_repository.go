package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"peerquiz/internal/domain"
)

// QuestionLoader fetches question-set content from a backing store.
type QuestionLoader interface {
	LoadQuestionSet(ctx context.Context, setID string) (domain.QuestionSet, error)
}

// QuestionRepository caches whole question sets as JSON in Redis and falls
// back to a loader on cache miss. Sets are stored under
// questions:{setID} with a jittered TTL.
type QuestionRepository struct {
	client *redis.Client
	loader QuestionLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewQuestionRepository(client *redis.Client, loader QuestionLoader, ttl time.Duration) *QuestionRepository {
	return &QuestionRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *QuestionRepository) GetQuestionSet(ctx context.Context, setID string) (domain.QuestionSet, error) {
	key := r.key(setID)

	if raw, err := r.client.Get(ctx, key).Bytes(); err == nil {
		var set domain.QuestionSet
		if err := json.Unmarshal(raw, &set); err == nil {
			return set, nil
		}
		// Corrupted cache entry: drop it and reload.
		_ = r.client.Del(ctx, key).Err()
	}

	result, err, _ := r.sf.Do(setID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if raw, err := r.client.Get(ctx, key).Bytes(); err == nil {
			var set domain.QuestionSet
			if err := json.Unmarshal(raw, &set); err == nil {
				return set, nil
			}
		}

		set, err := r.loader.LoadQuestionSet(ctx, setID)
		if err != nil {
			return domain.QuestionSet{}, err
		}

		raw, err := json.Marshal(set)
		if err != nil {
			return domain.QuestionSet{}, fmt.Errorf("marshal question set: %w", err)
		}
		_ = r.client.Set(ctx, key, raw, r.ttlWithJitter()).Err()
		return set, nil
	})
	if err != nil {
		return domain.QuestionSet{}, err
	}
	return result.(domain.QuestionSet), nil
}

func (r *QuestionRepository) key(setID string) string {
	return "questions:" + setID
}

func (r *QuestionRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
