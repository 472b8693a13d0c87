// Package policy answers the access-control predicates: bidder whitelist
// membership and approved-charity membership. Absence from a set is a normal
// false, never an error. Administration of the sets happens through the admin
// API; the engine only queries them.
package policy

import (
	"context"
	"sync"
)

type Registry interface {
	Contains(ctx context.Context, addr string) (bool, error)
}

// MutableRegistry is a Registry the admin API can edit.
type MutableRegistry interface {
	Registry
	Add(ctx context.Context, addr string) error
	Remove(ctx context.Context, addr string) error
}

// Static is a fixed in-memory address set, used by tests and dev mode.
type Static struct {
	mu  sync.RWMutex
	set map[string]struct{}
}

func NewStatic(addrs ...string) *Static {
	s := &Static{set: make(map[string]struct{}, len(addrs))}
	for _, a := range addrs {
		s.set[a] = struct{}{}
	}
	return s
}

func (s *Static) Contains(ctx context.Context, addr string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.set[addr]
	return ok, nil
}

func (s *Static) Add(ctx context.Context, addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set[addr] = struct{}{}
	return nil
}

func (s *Static) Remove(ctx context.Context, addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.set, addr)
	return nil
}
