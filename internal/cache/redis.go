package cache

import (
	"context"
	"fmt"
	"log"

	goredis "github.com/redis/go-redis/v9"
)

// PubSub is the part of Redis the status bus talks to.
type PubSub interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, func() error, error)
	Close() error
}

type client struct {
	rdb *goredis.Client
}

func NewRedisClient(host, port, password string) (PubSub, error) {
	addr := fmt.Sprintf("%s:%s", host, port)
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("could not connect to redis: %w", err)
	}

	log.Printf("[INFO] Successfully connected to Redis.")
	return &client{rdb: rdb}, nil
}

func (c *client) Publish(ctx context.Context, channel string, payload []byte) error {
	return c.rdb.Publish(ctx, channel, payload).Err()
}

func (c *client) Subscribe(ctx context.Context, channel string) (<-chan []byte, func() error, error) {
	ps := c.rdb.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, fmt.Errorf("could not subscribe to %s: %w", channel, err)
	}

	out := make(chan []byte)
	go func() {
		defer close(out)
		for msg := range ps.Channel() {
			select {
			case out <- []byte(msg.Payload):
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, ps.Close, nil
}

func (c *client) Close() error {
	return c.rdb.Close()
}
