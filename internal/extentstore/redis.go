package extentstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	maintnotifications "github.com/redis/go-redis/v9/maintnotifications"

	"github.com/ECCC-CCCS/geomet-climate/internal/core/observability"
)

type Option func(*redis.Options)

func WithDialTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.DialTimeout = d }
}

func WithReadTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.ReadTimeout = d }
}

func WithWriteTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.WriteTimeout = d }
}

// Redis shares extents between the compiler host and every front end.
// Keys never expire; a new compilation overwrites them.
type Redis struct {
	rdb *redis.Client
}

func NewRedis(ctx context.Context, addr string, opts ...Option) (*Redis, error) {
	if addr == "" {
		return nil, errors.New("redis address is required")
	}

	ro := &redis.Options{
		Addr:         addr,
		PoolSize:     16,
		MinIdleConns: 2,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
		MaintNotificationsConfig: &maintnotifications.Config{
			Mode: maintnotifications.ModeDisabled,
		},
	}
	for _, f := range opts {
		f(ro)
	}

	rdb := redis.NewClient(ro)

	start := time.Now()
	err := rdb.Ping(ctx).Err()
	observability.ObserveExtentOp("ping", err, time.Since(start).Seconds())
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Redis{rdb: rdb}, nil
}

// Put stores the extents of one service in a single pipeline.
func (s *Redis) Put(ctx context.Context, service string, extents map[string]string) error {
	start := time.Now()
	if len(extents) == 0 {
		return nil
	}
	_, err := s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for layer, e := range extents {
			if err := p.Set(ctx, Key(service, layer), e, 0).Err(); err != nil {
				return fmt.Errorf("redis SET %q: %w", Key(service, layer), err)
			}
		}
		return nil
	})
	observability.ObserveExtentOp("put", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("redis put %d extents (pipeline): %w", len(extents), err)
	}
	return nil
}

func (s *Redis) Extent(ctx context.Context, service, layer string) (string, error) {
	start := time.Now()
	v, err := s.rdb.Get(ctx, Key(service, layer)).Result()
	if errors.Is(err, redis.Nil) {
		observability.ObserveExtentOp("get", nil, time.Since(start).Seconds())
		return "", ErrNotFound
	}
	observability.ObserveExtentOp("get", err, time.Since(start).Seconds())
	if err != nil {
		return "", fmt.Errorf("redis GET %q: %w", Key(service, layer), err)
	}
	return v, nil
}

func (s *Redis) Ping(ctx context.Context) error {
	start := time.Now()
	err := s.rdb.Ping(ctx).Err()
	observability.ObserveExtentOp("ping", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (s *Redis) Close() error {
	if err := s.rdb.Close(); err != nil {
		return fmt.Errorf("redis close: %w", err)
	}
	return nil
}
