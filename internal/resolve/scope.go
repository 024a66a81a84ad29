package resolve

import (
	"context"
	"sort"
	"sync"
)

type scopeKey struct{}

// Scope holds the logical merges of one query call. It maps alias ids to
// their canonical id and is never persisted.
type Scope struct {
	mu    sync.Mutex
	alias map[string]string
}

// NewScope returns an empty scope.
func NewScope() *Scope {
	return &Scope{alias: make(map[string]string)}
}

// WithScope returns a context carrying s.
func WithScope(ctx context.Context, s *Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, s)
}

// ScopeFrom returns the scope carried by ctx.
func ScopeFrom(ctx context.Context) (*Scope, bool) {
	s, ok := ctx.Value(scopeKey{}).(*Scope)

	return s, ok && s != nil
}

// Register records that a and b are the same entity. The higher id of the two
// groups' canonical ids wins. Nothing is recorded once ctx is done.
func (s *Scope) Register(ctx context.Context, a, b string) bool {
	if ctx.Err() != nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ra, rb := s.root(a), s.root(b)
	if ra == rb {
		return false
	}

	if ra > rb {
		s.alias[rb] = ra
	} else {
		s.alias[ra] = rb
	}

	return true
}

// Canonical returns the id that represents id in this scope.
func (s *Scope) Canonical(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.root(id)
}

// Groups returns canonical id → sorted alias ids.
func (s *Scope) Groups() map[string][]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string][]string)

	for alias := range s.alias {
		root := s.root(alias)
		out[root] = append(out[root], alias)
	}

	for _, aliases := range out {
		sort.Strings(aliases)
	}

	return out
}

// Len returns the number of aliased ids.
func (s *Scope) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.alias)
}

func (s *Scope) root(id string) string {
	for {
		next, ok := s.alias[id]
		if !ok {
			return id
		}

		id = next
	}
}
