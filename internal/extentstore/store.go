// Package extentstore keeps the compiled time extent of every temporal layer
// so the front end can validate TIME without parsing mapfiles.
package extentstore

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// ErrNotFound means the layer has no time extent for the service.
var ErrNotFound = errors.New("extentstore: extent not found")

const keyPrefix = "geomet-climate:extent:"

// Key is the shared store key of a layer extent.
func Key(service, layer string) string {
	return keyPrefix + strings.ToUpper(strings.TrimSpace(service)) + ":" + strings.TrimSpace(layer)
}

// Source resolves the extent of one layer.
type Source interface {
	Extent(ctx context.Context, service, layer string) (string, error)
}

// Memory is an in-process store, used when no Redis is configured.
type Memory struct {
	mu sync.RWMutex
	m  map[string]string
}

func NewMemory() *Memory { return &Memory{m: map[string]string{}} }

func (s *Memory) Put(_ context.Context, service string, extents map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for layer, e := range extents {
		s.m[Key(service, layer)] = e
	}
	return nil
}

func (s *Memory) Extent(_ context.Context, service, layer string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.m[Key(service, layer)]
	if !ok {
		return "", ErrNotFound
	}
	return e, nil
}

func (s *Memory) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}
