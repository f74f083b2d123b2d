// Package queue moves job messages between producers and the worker.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// ErrEmpty is returned by Pop when no message is waiting.
var ErrEmpty = errors.New("queue empty")

// Queue is a FIFO of opaque messages.
type Queue interface {
	Push(ctx context.Context, msg []byte) error
	Pop(ctx context.Context) ([]byte, error)
}

// RedisQueue is a Redis list used as a FIFO: producers LPUSH, the worker
// RPOPs.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// RedisOptions configures NewRedisQueue.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

// NewRedisQueue connects to Redis and verifies the connection with PING.
func NewRedisQueue(ctx context.Context, opts RedisOptions) (*RedisQueue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	return &RedisQueue{client: client, key: opts.Key}, nil
}

// Push appends msg to the queue.
func (q *RedisQueue) Push(ctx context.Context, msg []byte) error {
	if err := q.client.LPush(ctx, q.key, msg).Err(); err != nil {
		return fmt.Errorf("redis lpush %s: %w", q.key, err)
	}
	return nil
}

// Pop removes and returns the oldest message, or ErrEmpty.
func (q *RedisQueue) Pop(ctx context.Context) ([]byte, error) {
	msg, err := q.client.RPop(ctx, q.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("redis rpop %s: %w", q.key, err)
	}
	return msg, nil
}

// Len returns the number of waiting messages.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}

// Close releases the Redis connection pool.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}

// MemoryQueue is an in-process Queue.
type MemoryQueue struct {
	mu   sync.Mutex
	msgs [][]byte
}

// NewMemoryQueue returns an empty MemoryQueue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

// Push appends a copy of msg.
func (q *MemoryQueue) Push(ctx context.Context, msg []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.msgs = append(q.msgs, append([]byte(nil), msg...))
	return nil
}

// Pop removes and returns the oldest message, or ErrEmpty.
func (q *MemoryQueue) Pop(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.msgs) == 0 {
		return nil, ErrEmpty
	}
	msg := q.msgs[0]
	q.msgs = q.msgs[1:]
	return msg, nil
}

// Len returns the number of waiting messages.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.msgs)
}
