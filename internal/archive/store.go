package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rumbleFTW/koe-app/internal/shared"
)

const (
	DefaultTTL       = 30 * 24 * time.Hour
	DefaultListLimit = 20
)

type Store struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewStore(redisClient *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{redis: redisClient, ttl: ttl}
}

func (s *Store) Save(ctx context.Context, t *Transcript) error {
	if t.ID == "" {
		t.ID = shared.NewID("tr_")
	}
	if t.EndedAt.IsZero() {
		t.EndedAt = time.Now()
	}

	data, err := json.Marshal(t)
	if err != nil {
		return err
	}

	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, t.RedisKey(), data, s.ttl)
	pipe.ZAdd(ctx, indexKey, redis.Z{Score: float64(t.EndedAt.UnixMilli()), Member: t.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save transcript %s: %w", t.ID, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*Transcript, error) {
	data, err := s.redis.Get(ctx, TranscriptKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var t Transcript
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// List returns the most recent transcripts first. Index entries whose
// transcript has expired are pruned.
func (s *Store) List(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	ids, err := s.redis.ZRevRange(ctx, indexKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}

	summaries := make([]Summary, 0, len(ids))
	for _, id := range ids {
		t, err := s.Get(ctx, id)
		if errors.Is(err, shared.ErrNotFound) {
			s.redis.ZRem(ctx, indexKey, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, t.Summary())
	}
	return summaries, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	pipe := s.redis.TxPipeline()
	pipe.Del(ctx, TranscriptKey(id))
	pipe.ZRem(ctx, indexKey, id)
	_, err := pipe.Exec(ctx)
	return err
}
