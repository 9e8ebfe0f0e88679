package driver

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pot-code/learnsync/internal/infrastructure/logging"
	"go.uber.org/zap"
)

// RedisClient .
type RedisClient struct {
	conn *redis.Client
}

var _ KeyValueDB = &RedisClient{}

// NewRedisClient create a redis client
func NewRedisClient(host string, port int, password string, db int) *RedisClient {
	conn := redis.NewClient(&redis.Options{
		Addr:        fmt.Sprintf("%s:%d", host, port),
		Password:    password,
		DB:          db,
		DialTimeout: 5 * time.Second,
	})
	return &RedisClient{
		conn: conn,
	}
}

// Conn underlying client, used by stores that need transactions
func (rdb *RedisClient) Conn() *redis.Client {
	return rdb.conn
}

// Ping implement KeyValueDB
func (rdb *RedisClient) Ping(ctx context.Context) error {
	return rdb.conn.Ping(ctx).Err()
}

// Publish implement KeyValueDB
func (rdb *RedisClient) Publish(ctx context.Context, channel string, payload []byte) error {
	return rdb.conn.Publish(ctx, channel, payload).Err()
}

// Subscribe implement KeyValueDB, onMessage is called from a background goroutine until ctx is done
func (rdb *RedisClient) Subscribe(ctx context.Context, channel string, onMessage func([]byte)) error {
	sub := rdb.conn.Subscribe(ctx, channel)
	// ensures subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					logging.ExtractLoggerFromContext(ctx).Warn("redis subscription closed", zap.String("redis.channel", channel))
					return
				}
				onMessage([]byte(m.Payload))
			}
		}
	}()
	return nil
}

// Close implement KeyValueDB
func (rdb *RedisClient) Close() error {
	return rdb.conn.Close()
}
