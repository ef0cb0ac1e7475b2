package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "jobradar:ratelimit:"

// RedisStore keeps window state in redis so a restart cannot hand a source
// a fresh budget mid-window. Keys expire well after the window rolls over.
type RedisStore struct {
	client *redis.Client
	logger *log.Logger
	ttl    time.Duration
}

func NewRedisStore(addr, password string, window time.Duration, logger *log.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	ttl := 2 * window
	if ttl < time.Hour {
		ttl = time.Hour
	}
	return &RedisStore{client: client, logger: logger, ttl: ttl}, nil
}

func (s *RedisStore) Get(ctx context.Context, source string) (State, bool, error) {
	b, err := s.client.Get(ctx, redisKeyPrefix+source).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return State{}, false, nil
		}
		return State{}, false, err
	}
	var st State
	if err := json.Unmarshal(b, &st); err != nil {
		return State{}, false, err
	}
	return st, true, nil
}

func (s *RedisStore) Put(ctx context.Context, source string, st State) error {
	b, err := json.Marshal(st)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, redisKeyPrefix+source, b, s.ttl).Err(); err != nil {
		if s.logger != nil {
			s.logger.Printf("[RateLimit] redis put failed | source=%s err=%v", source, err)
		}
		return err
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, source string) error {
	return s.client.Del(ctx, redisKeyPrefix+source).Err()
}

func (s *RedisStore) Sources(ctx context.Context) ([]string, error) {
	out := make([]string, 0)
	iter := s.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		out = append(out, iter.Val()[len(redisKeyPrefix):])
	}
	return out, iter.Err()
}

func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
