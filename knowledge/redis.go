package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "campaignflow:kb:"

// RedisConfig carries the redis-backed bank settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`

	// MaxPerCategory caps the retained history per category; zero keeps
	// everything.
	MaxPerCategory int `yaml:"max_per_category"`
}

// RedisBank stores entries as JSON in one list per category, newest at the
// head, so QueryTopN is a single LRANGE.
type RedisBank struct {
	client *redis.Client
	cfg    RedisConfig
	logger *zap.Logger
}

// NewRedisBank connects to redis and verifies the connection.
func NewRedisBank(cfg RedisConfig, logger *zap.Logger) (*RedisBank, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisBank{client: client, cfg: cfg, logger: logger}, nil
}

// QueryTopN implements Bank.
func (b *RedisBank) QueryTopN(ctx context.Context, category string, n int) ([]Entry, error) {
	if n <= 0 {
		n = DefaultTopN
	}
	raw, err := b.client.LRange(ctx, keyPrefix+category, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("kb query %q: %w", category, err)
	}

	entries := make([]Entry, 0, len(raw))
	for _, item := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			b.logger.Warn("skipping corrupt kb entry",
				zap.String("category", category),
				zap.Error(err))
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Write implements Bank.
func (b *RedisBank) Write(ctx context.Context, category, label, body string, metadata map[string]string) error {
	payload, err := json.Marshal(Entry{
		Label:     label,
		Body:      body,
		Timestamp: time.Now(),
		Metadata:  metadata,
	})
	if err != nil {
		return fmt.Errorf("kb marshal: %w", err)
	}

	key := keyPrefix + category
	pipe := b.client.TxPipeline()
	pipe.LPush(ctx, key, payload)
	if b.cfg.MaxPerCategory > 0 {
		pipe.LTrim(ctx, key, 0, int64(b.cfg.MaxPerCategory-1))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("kb write %q: %w", category, err)
	}
	return nil
}

// Close releases the redis connection.
func (b *RedisBank) Close() error {
	return b.client.Close()
}
