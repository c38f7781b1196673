package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/brainstorm/brainstorm/internal/models"
)

// RedisConversationStore implements ConversationStore on a Redis list per
// project, newest turn at the head.
type RedisConversationStore struct {
	client    *redis.Client
	keyPrefix string
	retention time.Duration
	maxTurns  int64
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	Retention time.Duration // conversation key TTL; 0 keeps forever
	MaxTurns  int64         // per-project cap; 0 keeps everything
}

// DefaultRedisConfig returns the default Redis settings.
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:      "localhost:6379",
		Retention: 30 * 24 * time.Hour,
		MaxTurns:  1000,
	}
}

// NewRedisConversationStore connects to Redis and verifies the connection.
func NewRedisConversationStore(config *RedisConfig) (*RedisConversationStore, error) {
	if config == nil {
		config = DefaultRedisConfig()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisConversationStore{
		client:    client,
		keyPrefix: "brainstorm:conversation:",
		retention: config.Retention,
		maxTurns:  config.MaxTurns,
	}, nil
}

func (s *RedisConversationStore) key(projectID string) string {
	return s.keyPrefix + projectID
}

// AppendTurn pushes one turn onto the head of the project's conversation list.
func (s *RedisConversationStore) AppendTurn(ctx context.Context, projectID string, turn models.ConversationTurn) error {
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now()
	}

	data, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("failed to marshal turn: %w", err)
	}

	key := s.key(projectID)
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, key, data)
	if s.maxTurns > 0 {
		pipe.LTrim(ctx, key, 0, s.maxTurns-1)
	}
	if s.retention > 0 {
		pipe.Expire(ctx, key, s.retention)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append turn: %w", err)
	}
	return nil
}

// RecentTurns fetches the newest turns and reverses them into chronological
// order.
func (s *RedisConversationStore) RecentTurns(ctx context.Context, projectID string, limit int) ([]models.ConversationTurn, error) {
	if limit <= 0 {
		limit = 20
	}

	raw, err := s.client.LRange(ctx, s.key(projectID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read turns: %w", err)
	}

	turns := make([]models.ConversationTurn, 0, len(raw))
	// LRange returns newest first; walk backwards for chronological order.
	for i := len(raw) - 1; i >= 0; i-- {
		var turn models.ConversationTurn
		if err := json.Unmarshal([]byte(raw[i]), &turn); err != nil {
			continue // skip malformed entries
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

// Close closes the Redis connection.
func (s *RedisConversationStore) Close() error {
	return s.client.Close()
}
