package kafkaconsumer

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// dedupe remembers recently applied event keys. The LRU is safe for
// concurrent claims.
type dedupe struct {
	lru *lru.Cache[string, struct{}]
}

func newDedupe(size int) *dedupe {
	if size <= 0 {
		size = 4096
	}
	c, _ := lru.New[string, struct{}](size)
	return &dedupe{lru: c}
}

func (d *dedupe) contains(key string) bool { return d.lru.Contains(key) }

func (d *dedupe) add(key string) { d.lru.Add(key, struct{}{}) }
