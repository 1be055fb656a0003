// Package sessions persists proof sessions between host actions.
package sessions

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"attest/internal/proof/domain/session"
	"attest/pkg/platform/sentinel"
)

// InMemory keeps sessions encoded, so callers never share state with the
// store.
type InMemory struct {
	mu       sync.RWMutex
	sessions map[string][]byte
	expiry   map[string]time.Time
}

func NewInMemory() *InMemory {
	return &InMemory{
		sessions: make(map[string][]byte),
		expiry:   make(map[string]time.Time),
	}
}

func (s *InMemory) Create(_ context.Context, sess *session.Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[sess.ID]; exists {
		return sentinel.ErrConflict
	}
	s.sessions[sess.ID] = raw
	s.expiry[sess.ID] = sess.ExpiresAt
	return nil
}

func (s *InMemory) Get(_ context.Context, id string) (*session.Session, error) {
	s.mu.RLock()
	raw, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return decode(raw)
}

// Update applies fn to the stored session under the store lock. Nothing is
// written when fn fails.
func (s *InMemory) Update(_ context.Context, id string, fn func(*session.Session) error) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.sessions[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	sess, err := decode(raw)
	if err != nil {
		return nil, err
	}
	if err := fn(sess); err != nil {
		return nil, err
	}
	updated, err := json.Marshal(sess)
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}
	s.sessions[id] = updated
	return sess, nil
}

func (s *InMemory) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	delete(s.expiry, id)
	return nil
}

// Expired lists sessions whose expiry is not after now, oldest first.
func (s *InMemory) Expired(_ context.Context, now time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id, at := range s.expiry {
		if !at.After(now) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		if s.expiry[ids[i]].Equal(s.expiry[ids[j]]) {
			return ids[i] < ids[j]
		}
		return s.expiry[ids[i]].Before(s.expiry[ids[j]])
	})
	return ids, nil
}

func decode(raw []byte) (*session.Session, error) {
	var sess session.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &sess, nil
}
