package extentstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ECCC-CCCS/geomet-climate/internal/core/observability"
)

// Cache memoises extents read from a slower Source. Entries live until a
// recompile event purges them.
type Cache struct {
	src     Source
	lru     *lru.Cache[string, string]
	timeout time.Duration
}

// NewCache wraps src. timeout bounds each lookup against src; zero means
// the caller's context alone applies.
func NewCache(src Source, size int, timeout time.Duration) (*Cache, error) {
	if size <= 0 {
		size = 512
	}
	c, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("extent cache: %w", err)
	}
	return &Cache{src: src, lru: c, timeout: timeout}, nil
}

func (c *Cache) Extent(ctx context.Context, service, layer string) (string, error) {
	k := Key(service, layer)
	if e, ok := c.lru.Get(k); ok {
		observability.IncExtentCacheHit()
		return e, nil
	}
	observability.IncExtentCacheMiss()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	e, err := c.src.Extent(ctx, service, layer)
	if err != nil {
		return "", err
	}
	c.lru.Add(k, e)
	return e, nil
}

// Purge drops cached extents. With no layers every entry of the service
// is dropped.
func (c *Cache) Purge(_ context.Context, service string, layers ...string) error {
	if len(layers) == 0 {
		prefix := Key(service, "")
		for _, k := range c.lru.Keys() {
			if strings.HasPrefix(k, prefix) {
				c.lru.Remove(k)
			}
		}
		return nil
	}
	for _, l := range layers {
		c.lru.Remove(Key(service, l))
	}
	return nil
}

func (c *Cache) Len() int { return c.lru.Len() }
