package deadletter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix = "deadletter:"
	redisIndexKey  = "deadletter:index"
)

// RedisConfig holds connection settings for the Redis dead-letter storage.
type RedisConfig struct {
	ConnectionURL  string        `env:"DEADLETTER_REDIS_URL,required" envDefault:"redis://localhost:6379/0"`
	RetryAttempts  int           `env:"DEADLETTER_REDIS_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval  time.Duration `env:"DEADLETTER_REDIS_RETRY_INTERVAL" envDefault:"5s"`
	ConnectTimeout time.Duration `env:"DEADLETTER_REDIS_CONNECT_TIMEOUT" envDefault:"30s"`
}

// RedisStorage persists dead-letter records in Redis as JSON values with a
// set-based id index. Records survive process restarts and are shared
// between instances.
type RedisStorage struct {
	client *redis.Client
}

// NewRedisStorage wraps an existing Redis client.
func NewRedisStorage(client *redis.Client) *RedisStorage {
	return &RedisStorage{client: client}
}

// ConnectRedisStorage connects to Redis with retry and returns a storage
// backed by the connection.
func ConnectRedisStorage(ctx context.Context, cfg RedisConfig) (*RedisStorage, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	opt, err := redis.ParseURL(cfg.ConnectionURL)
	if err != nil {
		return nil, errors.Join(ErrStorageUnavailable, err)
	}

	for i := 0; i < cfg.RetryAttempts; i++ {
		client := redis.NewClient(opt)
		if err := client.Ping(ctx).Err(); err == nil {
			return NewRedisStorage(client), nil
		}
		_ = client.Close()

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrStorageUnavailable, ctx.Err())
		case <-time.After(cfg.RetryInterval):
		}
	}

	return nil, ErrStorageUnavailable
}

// Close closes the underlying Redis client.
func (s *RedisStorage) Close() error {
	return s.client.Close()
}

func recordKey(notificationID string) string {
	return redisKeyPrefix + notificationID
}

func (s *RedisStorage) Save(ctx context.Context, rec FailedNotification) error {
	if rec.OriginalNotificationID == "" {
		return ErrMissingNotificationID
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal dead-letter record: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, recordKey(rec.OriginalNotificationID), payload, 0)
	pipe.SAdd(ctx, redisIndexKey, rec.OriginalNotificationID)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Join(ErrStorageUnavailable, err)
	}
	return nil
}

func (s *RedisStorage) Get(ctx context.Context, notificationID string) (FailedNotification, error) {
	payload, err := s.client.Get(ctx, recordKey(notificationID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return FailedNotification{}, ErrNotFound
		}
		return FailedNotification{}, errors.Join(ErrStorageUnavailable, err)
	}

	var rec FailedNotification
	if err := json.Unmarshal(payload, &rec); err != nil {
		return FailedNotification{}, fmt.Errorf("unmarshal dead-letter record: %w", err)
	}
	return rec, nil
}

func (s *RedisStorage) Delete(ctx context.Context, notificationID string) error {
	deleted, err := s.client.Del(ctx, recordKey(notificationID)).Result()
	if err != nil {
		return errors.Join(ErrStorageUnavailable, err)
	}
	if err := s.client.SRem(ctx, redisIndexKey, notificationID).Err(); err != nil {
		return errors.Join(ErrStorageUnavailable, err)
	}
	if deleted == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStorage) List(ctx context.Context) ([]FailedNotification, error) {
	ids, err := s.client.SMembers(ctx, redisIndexKey).Result()
	if err != nil {
		return nil, errors.Join(ErrStorageUnavailable, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = recordKey(id)
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, errors.Join(ErrStorageUnavailable, err)
	}

	out := make([]FailedNotification, 0, len(values))
	for _, value := range values {
		raw, ok := value.(string)
		if !ok {
			// Index entry without a value key, skip the orphan.
			continue
		}
		var rec FailedNotification
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("unmarshal dead-letter record: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *RedisStorage) DeleteAll(ctx context.Context) error {
	ids, err := s.client.SMembers(ctx, redisIndexKey).Result()
	if err != nil {
		return errors.Join(ErrStorageUnavailable, err)
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, recordKey(id))
	}
	keys = append(keys, redisIndexKey)

	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return errors.Join(ErrStorageUnavailable, err)
	}
	return nil
}
