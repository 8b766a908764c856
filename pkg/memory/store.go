// Package memory keeps the last few turns of every conversation in RAM.
package memory

import (
	"sort"
	"sync"

	"github.com/go-go-golems/atomclaw/pkg/helpers"
)

const (
	DefaultCapacity    = 20
	DefaultMaxTurnSize = 4096
)

// Role tells who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry of a conversation.
type Turn struct {
	Role Role
	Text string
}

type ring struct {
	turns []Turn
	start int
	n     int
}

func (r *ring) push(t Turn) {
	c := len(r.turns)
	if r.n < c {
		r.turns[(r.start+r.n)%c] = t
		r.n++
		return
	}
	r.turns[r.start] = t
	r.start = (r.start + 1) % c
}

// last returns the newest k turns, oldest first.
func (r *ring) last(k int) []Turn {
	if k <= 0 || k > r.n {
		k = r.n
	}
	out := make([]Turn, 0, k)
	c := len(r.turns)
	for i := r.n - k; i < r.n; i++ {
		out = append(out, r.turns[(r.start+i)%c])
	}
	return out
}

// Store is a bounded per-conversation history. When a conversation holds
// capacity turns, appending evicts the oldest one.
type Store struct {
	mu          sync.RWMutex
	capacity    int
	maxTurnSize int
	convs       map[string]*ring
}

type Option func(*Store)

// WithMaxTurnSize clamps the text of every stored turn to n bytes.
func WithMaxTurnSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxTurnSize = n
		}
	}
}

func NewStore(capacity int, opts ...Option) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	s := &Store{
		capacity:    capacity,
		maxTurnSize: DefaultMaxTurnSize,
		convs:       make(map[string]*ring),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) Capacity() int { return s.capacity }

func (s *Store) Append(conversationID string, role Role, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.convs[conversationID]
	if !ok {
		r = &ring{turns: make([]Turn, s.capacity)}
		s.convs[conversationID] = r
	}
	r.push(Turn{Role: role, Text: helpers.TruncateBytes(text, s.maxTurnSize)})
}

// History returns up to maxTurns of the most recent turns, oldest first.
// maxTurns <= 0 returns everything held.
func (s *Store) History(conversationID string, maxTurns int) []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.convs[conversationID]
	if !ok {
		return nil
	}
	return r.last(maxTurns)
}

func (s *Store) Len(conversationID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.convs[conversationID]; ok {
		return r.n
	}
	return 0
}

// Conversations lists known conversation ids in sorted order.
func (s *Store) Conversations() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.convs))
	for id := range s.convs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
