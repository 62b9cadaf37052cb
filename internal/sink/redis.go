package sink

import (
	"Go2NetGuard/internal/config"
	"Go2NetGuard/internal/model"
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher publishes alerts on a pub/sub channel and keeps a capped
// list of the most recent ones.
type RedisPublisher struct {
	client    *redis.Client
	channel   string
	recentKey string
	recentMax int64
}

// NewRedisPublisher connects to Redis and checks the connection.
func NewRedisPublisher(cfg config.RedisConfig) (*RedisPublisher, error) {
	if cfg.Channel == "" {
		cfg.Channel = "guard:alerts"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	log.Printf("Connected to Redis at %s, publishing alerts on %s", cfg.Addr, cfg.Channel)
	return newRedisPublisher(client, cfg), nil
}

func newRedisPublisher(client *redis.Client, cfg config.RedisConfig) *RedisPublisher {
	if cfg.RecentMax <= 0 {
		cfg.RecentMax = 1000
	}
	return &RedisPublisher{
		client:    client,
		channel:   cfg.Channel,
		recentKey: cfg.RecentKey,
		recentMax: cfg.RecentMax,
	}
}

func (p *RedisPublisher) Publish(ctx context.Context, alert *model.Alert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return err
	}
	if p.recentKey == "" {
		return p.client.Publish(ctx, p.channel, data).Err()
	}
	pipe := p.client.TxPipeline()
	pipe.Publish(ctx, p.channel, data)
	pipe.LPush(ctx, p.recentKey, data)
	pipe.LTrim(ctx, p.recentKey, 0, p.recentMax-1)
	_, err = pipe.Exec(ctx)
	return err
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
