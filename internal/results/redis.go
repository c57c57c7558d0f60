package results

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// KeyPrefix namespaces result values
	KeyPrefix = "sight:result:"
	// IndexKey is a sorted set of result IDs scored by creation time
	IndexKey = "sight:results"
)

// RedisStore keeps results as JSON strings with an optional TTL
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// RedisOptions configures NewRedisStore
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// NewRedisStore connects and pings the server
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: 10 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}

	return &RedisStore{client: client, ttl: opts.TTL}, nil
}

// Key returns the redis key holding result id
func Key(id string) string {
	return KeyPrefix + id
}

func (s *RedisStore) Save(ctx context.Context, r *Result) (string, error) {
	prepare(r, time.Now())

	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("failed to encode result: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, Key(r.ID), data, s.ttl)
		pipe.ZAdd(ctx, IndexKey, redis.Z{Score: float64(r.CreatedAt.UnixNano()), Member: r.ID})
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to save result: %w", err)
	}
	return r.ID, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Result, error) {
	data, err := s.client.Get(ctx, Key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load result: %w", err)
	}
	return decode(data)
}

// List also prunes index entries whose values have expired
func (s *RedisStore) List(ctx context.Context) ([]Result, error) {
	ids, err := s.client.ZRevRange(ctx, IndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = Key(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load results: %w", err)
	}

	var stale []interface{}
	out := make([]Result, 0, len(values))
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		r, err := decode([]byte(str))
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}

	if len(stale) > 0 {
		if err := s.client.ZRem(ctx, IndexKey, stale...).Err(); err != nil {
			return nil, fmt.Errorf("failed to prune result index: %w", err)
		}
	}
	return out, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	var del *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, Key(id))
		pipe.ZRem(ctx, IndexKey, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete result: %w", err)
	}
	if del.Val() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func decode(data []byte) (*Result, error) {
	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode result: %w", err)
	}
	return &r, nil
}
