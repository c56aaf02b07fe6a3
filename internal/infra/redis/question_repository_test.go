package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"peerquiz/internal/domain"
	"peerquiz/internal/infra/memory"
)

func TestQuestionRepositoryCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := newClient(mr)

	loader := &countingLoader{
		QuestionLoader: memory.NewStaticLoader(map[string]domain.QuestionSet{
			"general": sampleSet(),
		}),
	}
	repo := NewQuestionRepository(client, loader, time.Minute)

	set, err := repo.GetQuestionSet(context.Background(), "general")
	if err != nil {
		t.Fatalf("get question set: %v", err)
	}
	if set.Label != "General Knowledge" || len(set.Questions) != 1 {
		t.Fatalf("unexpected set: %+v", set)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader called once, got %d", loader.calls)
	}

	// Second call should hit the Redis entry, loader not incremented.
	_, _ = repo.GetQuestionSet(context.Background(), "general")
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls)
	}
}

func TestQuestionRepositoryReloadsCorruptEntry(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := newClient(mr)

	loader := &countingLoader{
		QuestionLoader: memory.NewStaticLoader(map[string]domain.QuestionSet{
			"general": sampleSet(),
		}),
	}
	repo := NewQuestionRepository(client, loader, time.Minute)

	if err := mr.Set("questions:general", "{not json"); err != nil {
		t.Fatalf("seed corrupt entry: %v", err)
	}

	set, err := repo.GetQuestionSet(context.Background(), "general")
	if err != nil {
		t.Fatalf("get question set: %v", err)
	}
	if len(set.Questions) != 1 {
		t.Fatalf("unexpected set: %+v", set)
	}
	if loader.calls != 1 {
		t.Fatalf("expected the corrupt entry to force a reload, calls=%d", loader.calls)
	}
}

type countingLoader struct {
	QuestionLoader
	calls int
}

func (l *countingLoader) LoadQuestionSet(ctx context.Context, setID string) (domain.QuestionSet, error) {
	l.calls++
	return l.QuestionLoader.LoadQuestionSet(ctx, setID)
}

func sampleSet() domain.QuestionSet {
	return domain.QuestionSet{
		ID:    "general",
		Label: "General Knowledge",
		Questions: []domain.Question{
			{
				Prompt:  "What is 2 + 2?",
				Answers: []string{"3", "4", "5"},
				Correct: "4",
			},
		},
	}
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
