package records

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"quiz-rewards-api/internal/models"
)

// DefaultRedisKey is the list records are pushed onto.
const DefaultRedisKey = "quiz:user_records"

type listPusher interface {
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	Close() error
}

// RedisSink appends each record as a CSV line to a Redis list.
type RedisSink struct {
	client listPusher
	key    string
}

func NewRedisSink(addr string, password string, db int, key string) (*RedisSink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return newRedisSink(client, key), nil
}

func newRedisSink(client listPusher, key string) *RedisSink {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisSink{client: client, key: key}
}

func (r *RedisSink) Append(record models.UserRecord) error {
	line, err := recordLine(record)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	if err := r.client.RPush(context.Background(), r.key, line).Err(); err != nil {
		return fmt.Errorf("failed to push record: %w", err)
	}
	return nil
}

func (r *RedisSink) Close() error {
	return r.client.Close()
}
